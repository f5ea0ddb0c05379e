package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"pharmacy/admin/internal/cache"
	"pharmacy/admin/internal/config"
	"pharmacy/admin/internal/dashboard"
	"pharmacy/admin/internal/domain"
	"pharmacy/admin/internal/httpapi"
	"pharmacy/admin/internal/logger"
	"pharmacy/admin/internal/service"
	"pharmacy/admin/internal/store"
	"pharmacy/admin/internal/store/memory"
	pgstore "pharmacy/admin/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	log := newLogger(cfg)
	defer func() { _ = log.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal("invalid security configuration", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if err := pg.Migrate(log); err != nil {
			log.Fatal("database migration failed", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("repository: postgres")
	} else {
		mem, err := memory.NewSeeded(cfg.SeedAdminPassword, log)
		if err != nil {
			log.Fatal("seed in-memory repository", zap.Error(err))
		}
		repo = mem
		log.Info("repository: in-memory")
	}

	cacheStore := cache.DashboardCache(cache.NoopDashboardCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisDashboardCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn("redis unavailable, using noop cache", zap.Error(err))
		} else {
			cacheStore = redisCache
			closers = append(closers, redisCache.Close)
			log.Info("cache: redis")
		}
	} else {
		log.Info("cache: noop")
	}

	engine := dashboard.NewEngine(repo, cacheStore, cfg.DashboardTTL(), log.Named("dashboard"))
	svc := service.New(repo, engine, log.Named("service"))
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo, log.Named("auth"))
	if cfg.DatabaseURL != "" && cfg.SeedAdminPassword != "" {
		if err := seedAdmin(ctx, auth, cfg.SeedAdminPassword, log); err != nil {
			log.Fatal("seed admin account", zap.Error(err))
		}
	}
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, log.Named("http"))

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("pharmacy admin API listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Warn("close error", zap.Error(err))
		}
	}

	log.Info("server stopped")
}

func newLogger(cfg config.Config) *zap.Logger {
	logCfg := logger.DefaultConfig()
	if cfg.Env == "production" {
		logCfg = logger.ProductionConfig()
	}
	if cfg.LogLevel != "" {
		logCfg.Level = cfg.LogLevel
	}
	if cfg.LogFormat != "" {
		logCfg.Format = cfg.LogFormat
	}
	return logger.New(logCfg)
}

func seedAdmin(ctx context.Context, auth *httpapi.AuthManager, password string, log *zap.Logger) error {
	created, err := auth.EnsureUser(ctx, domain.RegisterRequest{
		Username: "admin",
		Email:    memory.SeedAdminEmail,
		Password: password,
		Role:     domain.RoleAdmin,
	})
	if err != nil {
		return err
	}
	if created {
		log.Info("seeded admin account", zap.String("email", memory.SeedAdminEmail))
	}
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return errors.New("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.Env == "production" && cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL must be set in production; the in-memory store is for development")
	}
	if cfg.SeedAdminPassword != "" && len(cfg.SeedAdminPassword) < 8 {
		return errors.New("SEED_ADMIN_PASSWORD must be at least 8 characters")
	}
	return nil
}
