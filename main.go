package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arenasync/config"
	"arenasync/logger"
	"arenasync/server"
)

// 中继入口：启动 HTTP + WebSocket 服务，按房间转发对端消息
func main() {
	var (
		addr    string
		logFile string
		level   string
		envFile string
		webDir  string
	)
	flag.StringVar(&addr, "addr", "", "listen address, e.g. :8080 (overrides ARENA_RELAY_ADDR)")
	flag.StringVar(&logFile, "log", "", "log file path (overrides ARENA_LOG_FILE)")
	flag.StringVar(&level, "level", "", "log level: debug / info / warn / error")
	flag.StringVar(&envFile, "env", ".env", "optional dotenv file")
	flag.StringVar(&webDir, "web", "", "serve static client files from this directory at /")
	flag.Parse()

	if err := config.LoadDotEnv(envFile); err != nil {
		panic(err)
	}
	cfg, err := config.RelayFromEnv()
	if err != nil {
		panic(err)
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}
	if level != "" {
		cfg.LogLevel = level
	}

	if err := logger.Init(cfg.LogFile, cfg.LogLevel); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Named("main")

	var store server.PlayerStore
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rs, err := server.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		cancel()
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		log.Infow("player snapshots stored in redis", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
		store = rs
	}

	s, err := server.New(cfg, store)
	if err != nil {
		log.Fatalf("relay config: %v", err)
	}

	mux := http.NewServeMux()
	if webDir != "" {
		// 前后端分离：将 / 映射到静态资源目录
		mux.Handle("/", http.FileServer(http.Dir(webDir)))
	}
	api := s.Handler()
	for _, p := range []string{"/ws", "/admin/", "/metrics", "/metrics/prom", "/healthz"} {
		mux.Handle(p, api)
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Infof("arena relay listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// 优雅退出（Ctrl+C）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warnw("http shutdown", "err", err)
	}
	if err := s.Close(); err != nil {
		log.Warnw("close relay", "err", err)
	}
}
