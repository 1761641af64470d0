package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"gemcraft.ai/internal/gems/engine"
	"gemcraft.ai/internal/gems/trust"
	"gemcraft.ai/internal/gems/tuning"
	persistlog "gemcraft.ai/internal/persistence/log"
	"gemcraft.ai/internal/persistence/trustdb"
	"gemcraft.ai/internal/persistence/trustfile"
	"gemcraft.ai/internal/sim/world"
	"gemcraft.ai/internal/transport/feed"
	"gemcraft.ai/internal/transport/ws"
)

// serverConfig is filled from flags first; GEM_* environment variables override.
type serverConfig struct {
	Addr            string `env:"GEM_ADDR"`
	WorldID         string `env:"GEM_WORLD"`
	ConfigPath      string `env:"GEM_CONFIG"`
	DataDir         string `env:"GEM_DATA"`
	TrustStore      string `env:"GEM_TRUST_STORE"`
	TrustPath       string `env:"GEM_TRUST_PATH"`
	DisableJournal  bool   `env:"GEM_DISABLE_JOURNAL"`
	EnableAdminHTTP bool   `env:"GEM_ENABLE_ADMIN_HTTP"`
	FeedAllowRemote bool   `env:"GEM_FEED_ALLOW_REMOTE"`
	LogLevel        string `env:"GEM_LOG_LEVEL"`
}

func main() {
	var cfg serverConfig
	flag.StringVar(&cfg.Addr, "addr", ":8080", "http listen address")
	flag.StringVar(&cfg.WorldID, "world", "world_1", "world id")
	flag.StringVar(&cfg.ConfigPath, "config", "./configs/gems.yaml", "path to gems.yaml (empty for built-in defaults)")
	flag.StringVar(&cfg.DataDir, "data", "./data", "runtime data directory")
	flag.StringVar(&cfg.TrustStore, "trust_store", "sqlite", "trust store: sqlite, yaml or memory")
	flag.StringVar(&cfg.TrustPath, "trust_path", "", "trust store path (default: <data>/trust.sqlite or <data>/trusts.yml)")
	flag.BoolVar(&cfg.DisableJournal, "disable_journal", false, "do not write activation and notice logs")
	flag.BoolVar(&cfg.EnableAdminHTTP, "admin_http", true, "serve loopback-only admin endpoints")
	flag.BoolVar(&cfg.FeedAllowRemote, "feed_allow_remote", false, "allow non-loopback feed subscribers")
	flag.StringVar(&cfg.LogLevel, "log_level", "info", "log level")
	flag.Parse()
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, "env:", err)
		os.Exit(2)
	}

	logger := newLogger(cfg.LogLevel)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("gemd stopped")
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Str("component", "gemd").Logger()
}

func run(cfg serverConfig, logger zerolog.Logger) error {
	tune, err := tuning.Load(cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load tuning: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}

	w, err := world.New(world.WorldConfig{
		ID:         cfg.WorldID,
		TickRateHz: tune.TickRateHz,
		Epoch:      time.Now().UTC(),
		EquipSlot:  tune.EquipSlot,
	}, logger.With().Str("component", "world").Logger())
	if err != nil {
		return fmt.Errorf("world: %w", err)
	}

	store, closeStore, err := openTrustStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("trust store: %w", err)
	}
	defer closeStore()
	filter := trust.New(store, logger.With().Str("component", "trust").Logger())
	ctx, cancel := signalContext()
	defer cancel()
	if err := filter.Load(ctx); err != nil {
		return fmt.Errorf("load trust: %w", err)
	}

	hub := feed.NewHub(logger.With().Str("component", "feed").Logger())
	journals := multiJournal{hub}
	sinks := multiNoticeSink{hub}
	if !cfg.DisableJournal {
		actLog := persistlog.NewActivationLog(cfg.DataDir)
		noticeLog := persistlog.NewNoticeLog(cfg.DataDir)
		defer actLog.Close()
		defer noticeLog.Close()
		journals = append(journals, actLog)
		sinks = append(sinks, noticeLog)
	}
	w.SetNoticeSink(sinks)

	eng, err := engine.New(engine.Options{
		Host:    w,
		Clock:   w.Clock(),
		Config:  tune,
		Trust:   filter,
		Journal: journals,
		Log:     logger.With().Str("component", "engine").Logger(),
	})
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	w.SetHandler(eng)

	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("world stopped")
		}
	}()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	fs := feed.NewServer(hub, logger.With().Str("component", "feed").Logger())
	fs.AllowRemote = cfg.FeedAllowRemote
	api := &adminAPI{
		world:      w,
		engine:     eng,
		hub:        hub,
		feed:       fs.Handler(),
		configPath: cfg.ConfigPath,
		log:        logger.With().Str("component", "admin").Logger(),
	}
	r.Get("/metrics", api.metrics)
	if cfg.EnableAdminHTTP {
		r.Route("/admin/v1", api.routes)
	} else {
		logger.Info().Msg("admin endpoints disabled")
	}
	r.Get("/v1/ws", ws.NewServer(w, eng, hub, logger.With().Str("component", "ws").Logger()).Handler())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Info().Str("addr", cfg.Addr).Str("world", cfg.WorldID).Int("tick_rate_hz", tune.TickRateHz).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func openTrustStore(cfg serverConfig, logger zerolog.Logger) (trust.Store, func(), error) {
	log := logger.With().Str("component", "truststore").Logger()
	switch strings.ToLower(strings.TrimSpace(cfg.TrustStore)) {
	case "", "sqlite":
		path := cfg.TrustPath
		if path == "" {
			path = filepath.Join(cfg.DataDir, "trust.sqlite")
		}
		s, err := trustdb.OpenSQLite(path, log)
		if err != nil {
			return nil, func() {}, err
		}
		wr := trust.NewWriter(s, log)
		return wr, func() {
			_ = wr.Close()
			_ = s.Close()
		}, nil
	case "yaml":
		path := cfg.TrustPath
		if path == "" {
			path = filepath.Join(cfg.DataDir, "trusts.yml")
		}
		wr := trust.NewWriter(trustfile.New(path, log), log)
		return wr, func() { _ = wr.Close() }, nil
	case "memory":
		return nil, func() {}, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown trust store %q", cfg.TrustStore)
	}
}

// multiJournal writes to every journal and returns the first error.
type multiJournal []engine.Journal

func (m multiJournal) WriteActivation(e engine.ActivationEntry) error {
	var first error
	for _, j := range m {
		if err := j.WriteActivation(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type multiNoticeSink []world.NoticeSink

func (m multiNoticeSink) WriteNotice(n world.Notice) {
	for _, s := range m {
		s.WriteNotice(n)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
