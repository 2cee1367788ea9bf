package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"arenasync/config"
	"arenasync/logger"
)

// Server 中继服务：按频道分房间转发 join / state / heartbeat / leave，并提供管理接口
type Server struct {
	cfg   config.Relay
	rooms *RoomManager
	store PlayerStore
	log   *zap.SugaredLogger
	reg   *prometheus.Registry
}

// Option 构造选项
type Option func(*Server)

// WithClock 房间用于剔除判断的时钟
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.rooms.now = now
	}
}

// New store 为 nil 时使用内存实现
func New(cfg config.Relay, store PlayerStore, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		store = NewMemoryStore()
	}
	log := logger.Named("relay")
	s := &Server{
		cfg:   cfg,
		store: store,
		log:   log,
		reg:   prometheus.NewRegistry(),
		rooms: NewRoomManager(RoomConfig{
			SweepInterval:     cfg.SweepInterval,
			InactivityTimeout: cfg.InactivityTimeout,
		}, store, time.Now, log),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reg.MustRegister(collector{rooms: s.rooms})
	return s, nil
}

func (s *Server) Rooms() *RoomManager { return s.rooms }

// Handler 路由表
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWS)
	// 管理与监控接口
	mux.HandleFunc("/admin/config", s.HandleAdminConfig)
	mux.HandleFunc("/admin/players", s.HandlePlayers)
	mux.HandleFunc("/metrics", s.HandleMetrics)
	mux.Handle("/metrics/prom", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Close 停止全部房间并关闭 store
func (s *Server) Close() error {
	s.rooms.StopAll()
	return s.store.Close()
}
