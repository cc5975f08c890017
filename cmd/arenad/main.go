// Command arenad runs a Dragonfly server hosting arenas, with an optional
// HTTP admin surface.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/df-mc/dragonfly/server"
	"github.com/df-mc/dragonfly/server/cmd"
	"github.com/df-mc/dragonfly/server/player"
	"github.com/oriumgames/arena"
	"github.com/oriumgames/arena/admin"
	"github.com/oriumgames/arena/archive"
	"github.com/oriumgames/arena/config"
	"github.com/oriumgames/arena/store/memory"
	sqlstore "github.com/oriumgames/arena/store/sql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	path := flag.String("config", "arena.yml", "path of the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		slog.Error("create logger", "err", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("arenad stopped", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	uc := server.DefaultConfig()
	uc.Network.Address = cfg.Server.Address
	uc.Server.Name = cfg.Server.Name
	uc.Players.MaxCount = cfg.Server.MaxPlayers
	uc.World.Folder = filepath.Join(cfg.Worlds.Dir, cfg.Worlds.Default)
	conf, err := uc.Config(slog.Default())
	if err != nil {
		return err
	}
	srv := conf.New()

	worlds := arena.NewWorldManager(cfg.Worlds.Dir, srv.World(), cfg.Worlds.Default, slog.Default())
	sessions := arena.NewSessions(worlds, log.Named("sessions"))

	provider, closeProvider, err := openProvider(cfg, log)
	if err != nil {
		return err
	}
	defer closeProvider()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	hub := admin.NewHub(log, nil)
	defer hub.Close()

	messages, err := arena.LoadMessages(cfg.Messages)
	if errors.Is(err, fs.ErrNotExist) {
		log.Info("no messages file, using defaults", zap.String("path", cfg.Messages))
	} else if err != nil {
		return err
	}

	b := arena.NewBuilder().
		Provider(provider,
			arena.WithTimeout(cfg.Database.Timeout),
			arena.WithArchiveTimeout(cfg.Worlds.ArchiveTimeout)).
		Worlds(worlds).
		Archiver(archive.New(0)).
		BackupDir(cfg.Worlds.BackupDir).
		Logger(log).
		Messages(messages).
		Listener(arena.NewMetrics(reg)).
		Listener(arena.Protection{}).
		Listener(hub)
	if cfg.Lobby.Enabled {
		t, err := arena.NewLobbyTransfer(cfg.Lobby.Address)
		if err != nil {
			return err
		}
		b.Transfer(t)
	}
	engine := b.Init()
	defer func() { _ = engine.Close() }()

	watcher, err := arena.WatchMessages(cfg.Messages, log, engine.SetMessages)
	if err != nil {
		log.Warn("messages will not be reloaded", zap.Error(err))
	} else {
		defer func() { _ = watcher.Close() }()
	}

	_ = engine.Exec(func() {
		engine.LoadArenas(func(loaded []*arena.Arena, err error) {
			if err != nil {
				log.Error("some arenas failed to load", zap.Error(err))
			}
			log.Info("arenas loaded", zap.Int("count", len(loaded)))
		})
	})

	cmd.Register(arena.Commands(engine, worlds, func(src cmd.Source) bool {
		p, ok := src.(*player.Player)
		return ok && cfg.IsOperator(p.Name())
	}))

	if cfg.Admin.Address != "" {
		httpSrv := &http.Server{
			Addr: cfg.Admin.Address,
			Handler: admin.NewRouter(admin.Config{
				Engine:   engine,
				Hub:      hub,
				Gatherer: reg,
				RateLimitConfig: &admin.RateLimitConfig{
					RequestsPerSecond: cfg.Admin.RequestsPerSecond,
					Burst:             cfg.Admin.Burst,
				},
				Token: cfg.Admin.Token,
				Log:   log,
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("admin listening", zap.String("address", cfg.Admin.Address))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("admin server", zap.Error(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(sctx)
		}()
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		_ = srv.Close()
	}()

	srv.Listen()
	log.Info("server listening", zap.String("address", cfg.Server.Address))
	for p := range srv.Accept() {
		sess := sessions.NewSession(p)
		p.Handle(arena.NewHandler(engine, sessions, sess, nil))
	}
	return nil
}

// openProvider picks Postgres when a DSN is configured and memory otherwise.
func openProvider(cfg config.Config, log *zap.Logger) (arena.Provider, func(), error) {
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		log.Warn("no database configured, arenas are kept in memory")
		return memory.New(), func() {}, nil
	}
	store, err := sqlstore.Open(cfg.Database.DSN, log)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			log.Warn("close database", zap.Error(err))
		}
	}, nil
}
