package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"arenasync/broadcast"
	"arenasync/config"
	"arenasync/game"
	"arenasync/logger"
	"arenasync/peer"
)

// 无人值守的对端：每个 bot 运行一局游戏，通过中继或进程内本地广播与其他对端同步
func main() {
	var (
		bots     int
		relay    string
		channel  string
		name     string
		seed     int64
		duration time.Duration
		logFile  string
		level    string
		envFile  string
	)
	flag.IntVar(&bots, "bots", 2, "number of bot peers in this process")
	flag.StringVar(&relay, "relay", "", "relay endpoint, e.g. ws://localhost:8080/ws (overrides ARENA_RELAY_URL)")
	flag.StringVar(&channel, "channel", "", "channel / room name (overrides ARENA_CHANNEL)")
	flag.StringVar(&name, "name", "", "display name prefix (overrides ARENA_PLAYER_NAME)")
	flag.Int64Var(&seed, "seed", time.Now().UnixNano(), "wave seed; bot i uses seed+i")
	flag.DurationVar(&duration, "duration", 0, "stop after this long; 0 runs until interrupted")
	flag.StringVar(&logFile, "log", "", "log file path; empty logs to stderr")
	flag.StringVar(&level, "level", "info", "log level: debug / info / warn / error")
	flag.StringVar(&envFile, "env", ".env", "optional dotenv file")
	flag.Parse()

	if err := logger.Init(logFile, level); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Named("main")

	if err := config.LoadDotEnv(envFile); err != nil {
		log.Fatalf("env: %v", err)
	}
	cfg, err := config.PeerFromEnv()
	if err != nil {
		log.Fatalf("peer config: %v", err)
	}
	if relay != "" {
		cfg.TransportEndpoint = relay
	}
	if channel != "" {
		cfg.ChannelName = channel
	}
	if name != "" {
		cfg.DisplayName = name
	}
	if bots < 1 {
		log.Fatalf("-bots must be at least 1, got %d", bots)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	// 同一进程内的 bot 共用一个本地广播总线
	hub := broadcast.NewHub()
	var wg sync.WaitGroup
	for i := 0; i < bots; i++ {
		c := cfg
		c.DisplayName = fmt.Sprintf("%s-%d", cfg.DisplayName, i+1)
		m, err := peer.NewManager(c, peer.WithHub(hub))
		if err != nil {
			log.Fatalf("bot %d: %v", i+1, err)
		}
		m.On(peer.PeerJoined, func(ev peer.Event) {
			log.Infow("peer joined", "self", m.ID(), "peer", ev.PeerID)
		})
		m.On(peer.PeerLeft, func(ev peer.Event) {
			log.Infow("peer left", "self", m.ID(), "peer", ev.PeerID, "reason", ev.Reason.String())
		})

		wg.Add(1)
		go func(i int, m *peer.Manager) {
			defer wg.Done()
			defer m.Shutdown()
			s, err := game.NewSession(m, seed+int64(i))
			if err != nil {
				log.Errorw("start session", "bot", i+1, "err", err)
				return
			}
			err = s.Run(ctx, game.BotInput)
			if errors.Is(err, game.ErrGameOver) {
				log.Infow("bot finished", "self", m.ID(), "wave", s.Wave(), "kills", s.Kills(), "level", s.Player().Level)
				return
			}
			log.Infow("bot stopped", "self", m.ID(), "transport", m.Transport().String(), "peers", len(s.Peers()))
		}(i, m)
	}

	wg.Wait()
	log.Info("all bots stopped")
}
