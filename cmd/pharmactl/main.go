package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"pharmacy/admin/internal/apiclient"
	"pharmacy/admin/internal/cli"
	"pharmacy/admin/internal/config"
	"pharmacy/admin/internal/logger"
	"pharmacy/admin/internal/notify"
	"pharmacy/admin/internal/session"
)

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: "console", Output: "stderr"})
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions, closeSessions, err := openSessionStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("open session store", zap.Error(err))
	}
	defer closeSessions()

	app := &cli.App{
		Client:   apiclient.New(cfg.APIURL, cfg.Timeout, sessions, log.Named("api")),
		Sessions: sessions,
		Notifier: notify.Fanout{notify.NewTerminal(os.Stderr), notify.NewLog(log.Named("notify"))},
		Logger:   log,
	}
	cmd := cli.NewRootCmd(app)
	cmd.SetContext(ctx)
	if err := cli.Run(cmd, os.Args[1:], os.Stderr); err != nil {
		os.Exit(1)
	}
}

// openSessionStore uses redis when PHARMACTL_REDIS_ADDR is set and the
// session file otherwise.
func openSessionStore(ctx context.Context, cfg config.ClientConfig, log *zap.Logger) (session.Store, func(), error) {
	if cfg.RedisAddr != "" {
		store := session.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, nil, errors.Wrap(err, "redis session store")
		}
		log.Debug("session store: redis", zap.String("addr", cfg.RedisAddr))
		return store, func() { _ = store.Close() }, nil
	}

	path := cfg.SessionFile
	if path == "" {
		var err error
		if path, err = session.DefaultPath(); err != nil {
			return nil, nil, err
		}
	}
	log.Debug("session store: file", zap.String("path", path))
	return session.NewFileStore(path), func() {}, nil
}
