package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var ErrInvalid = errors.New("invalid config")

// Peer 同步管理器的配置，由外层应用（URL 参数、菜单）填充后传入
type Peer struct {
	DisplayName       string
	TransportEndpoint string // ws://host:port/ws；为空时只用本地广播
	ChannelName       string // 本地广播频道名，同时作为中继的房间名
	UseLocalFallback  bool   // 中继重试耗尽后是否退回本地广播
	Color             string // 为空时按 id 从调色板取色

	RelayMaxAttempts int
	RelayBackoff     time.Duration
	DialTimeout      time.Duration

	PulseInterval     time.Duration // 心跳
	SweepInterval     time.Duration // 不活跃剔除扫描
	InactivityTimeout time.Duration
}

// DefaultPeer 默认值
func DefaultPeer() Peer {
	return Peer{
		DisplayName:       "Player",
		ChannelName:       "circle-arena",
		UseLocalFallback:  true,
		RelayMaxAttempts:  3,
		RelayBackoff:      2 * time.Second,
		DialTimeout:       5 * time.Second,
		PulseInterval:     5 * time.Second,
		SweepInterval:     10 * time.Second,
		InactivityTimeout: 30 * time.Second,
	}
}

// Validate 构造时校验一次
func (c Peer) Validate() error {
	if c.DisplayName == "" {
		return fmt.Errorf("%w: empty display name", ErrInvalid)
	}
	if c.ChannelName == "" {
		return fmt.Errorf("%w: empty channel name", ErrInvalid)
	}
	if c.TransportEndpoint != "" {
		u, err := url.Parse(c.TransportEndpoint)
		if err != nil {
			return fmt.Errorf("%w: transport endpoint: %v", ErrInvalid, err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("%w: transport endpoint scheme %q, want ws or wss", ErrInvalid, u.Scheme)
		}
	}
	if c.RelayMaxAttempts < 1 {
		return fmt.Errorf("%w: relay max attempts %d < 1", ErrInvalid, c.RelayMaxAttempts)
	}
	if c.RelayBackoff < 0 || c.DialTimeout <= 0 {
		return fmt.Errorf("%w: negative backoff or non-positive dial timeout", ErrInvalid)
	}
	if c.PulseInterval <= 0 || c.SweepInterval <= 0 || c.InactivityTimeout <= 0 {
		return fmt.Errorf("%w: pulse, sweep and inactivity intervals must be positive", ErrInvalid)
	}
	if c.InactivityTimeout <= c.PulseInterval {
		return fmt.Errorf("%w: inactivity timeout %s must exceed pulse interval %s", ErrInvalid, c.InactivityTimeout, c.PulseInterval)
	}
	return nil
}

// Relay 中继服务器配置
type Relay struct {
	Addr     string
	LogFile  string
	LogLevel string

	SweepInterval     time.Duration
	InactivityTimeout time.Duration

	MaxMessagesPerSecond float64 // 每连接入站限流
	Burst                int

	RedisAddr     string // 为空时玩家快照只存内存
	RedisPassword string
	RedisDB       int
}

func DefaultRelay() Relay {
	return Relay{
		Addr:                 ":8080",
		LogFile:              "relay.log",
		LogLevel:             "info",
		SweepInterval:        10 * time.Second,
		InactivityTimeout:    30 * time.Second,
		MaxMessagesPerSecond: 60,
		Burst:                30,
	}
}

func (c Relay) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: empty listen address", ErrInvalid)
	}
	if c.SweepInterval <= 0 || c.InactivityTimeout <= 0 {
		return fmt.Errorf("%w: sweep interval and inactivity timeout must be positive", ErrInvalid)
	}
	if c.MaxMessagesPerSecond <= 0 || c.Burst < 1 {
		return fmt.Errorf("%w: rate limit %.1f/s burst %d", ErrInvalid, c.MaxMessagesPerSecond, c.Burst)
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("%w: redis db %d", ErrInvalid, c.RedisDB)
	}
	return nil
}

// LoadDotEnv 加载可选的 .env 文件；文件不存在不算错误
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// PeerFromEnv 以默认值为底，读取 ARENA_* 环境变量
func PeerFromEnv() (Peer, error) {
	c := DefaultPeer()
	str(&c.DisplayName, "ARENA_PLAYER_NAME")
	str(&c.TransportEndpoint, "ARENA_RELAY_URL")
	str(&c.ChannelName, "ARENA_CHANNEL")
	str(&c.Color, "ARENA_COLOR")
	err := errors.Join(
		boolean(&c.UseLocalFallback, "ARENA_LOCAL_FALLBACK"),
		integer(&c.RelayMaxAttempts, "ARENA_RELAY_MAX_ATTEMPTS"),
		duration(&c.RelayBackoff, "ARENA_RELAY_BACKOFF"),
		duration(&c.DialTimeout, "ARENA_DIAL_TIMEOUT"),
		duration(&c.PulseInterval, "ARENA_PULSE_INTERVAL"),
		duration(&c.SweepInterval, "ARENA_SWEEP_INTERVAL"),
		duration(&c.InactivityTimeout, "ARENA_INACTIVITY_TIMEOUT"),
	)
	return c, err
}

// RelayFromEnv 以默认值为底，读取 ARENA_RELAY_* 等环境变量
func RelayFromEnv() (Relay, error) {
	c := DefaultRelay()
	str(&c.Addr, "ARENA_RELAY_ADDR")
	str(&c.LogFile, "ARENA_LOG_FILE")
	str(&c.LogLevel, "ARENA_LOG_LEVEL")
	str(&c.RedisAddr, "ARENA_REDIS_ADDR")
	str(&c.RedisPassword, "ARENA_REDIS_PASSWORD")
	err := errors.Join(
		duration(&c.SweepInterval, "ARENA_RELAY_SWEEP_INTERVAL"),
		duration(&c.InactivityTimeout, "ARENA_RELAY_INACTIVITY_TIMEOUT"),
		float(&c.MaxMessagesPerSecond, "ARENA_RELAY_RATE"),
		integer(&c.Burst, "ARENA_RELAY_BURST"),
		integer(&c.RedisDB, "ARENA_REDIS_DB"),
	)
	return c, err
}

func str(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func boolean(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalid, key, v)
	}
	*dst = b
	return nil
}

func integer(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalid, key, v)
	}
	*dst = n
	return nil
}

func float(dst *float64, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalid, key, v)
	}
	*dst = f
	return nil
}

func duration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalid, key, v)
	}
	*dst = d
	return nil
}
