package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"retailpos/backend/internal/cache"
	"retailpos/backend/internal/config"
	"retailpos/backend/internal/httpapi"
	"retailpos/backend/internal/service"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/store/memory"
	pgstore "retailpos/backend/internal/store/postgres"
)

const estimationSweepInterval = 15 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.IsDevelopment() {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	zcfg.Level = level
	return zcfg.Build()
}

func run(cfg config.Config, logger *zap.Logger) error {
	if err := validateSecurityConfig(cfg); err != nil {
		return fmt.Errorf("invalid security configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var (
		repo    store.Repository
		users   httpapi.UserStore
		closers []func() error
	)
	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(startCtx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
		}
		closers = append(closers, pg.Close)
		if err := pg.Migrate(startCtx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		repo, users = pg, pg
		logger.Info("repository ready", zap.String("backend", "postgres"))
	} else {
		mem := memory.NewSeeded()
		repo, users = mem, mem
		logger.Info("repository ready", zap.String("backend", "memory"))
	}
	defer func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logger.Warn("close failed", zap.Error(err))
			}
		}
	}()

	reports := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(startCtx); err != nil {
			logger.Warn("redis unavailable, reports are not cached", zap.Error(err))
			_ = redisCache.Close()
		} else {
			reports = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("report cache ready", zap.String("addr", cfg.RedisAddr))
		}
	}

	svc, err := service.New(repo, reports, logger, service.Options{
		TaxPolicy:          cfg.TaxPolicy,
		FlatTaxRatePercent: cfg.FlatTaxRatePercent,
		TaxCountry:         cfg.TaxCountry,
		EstimationValidity: cfg.EstimationValidity,
		ReportCacheTTL:     cfg.ReportCacheTTL,
	})
	if err != nil {
		return err
	}
	auth, err := httpapi.NewAuthManager(startCtx, cfg.AuthSecret, cfg.AccessTokenTTL, cfg.ManagerPIN, users, logger)
	if err != nil {
		return err
	}
	api := httpapi.New(svc, auth, logger, httpapi.Options{
		AllowedOrigin:  cfg.AllowedOrigin,
		LoginRateLimit: cfg.LoginRateLimit,
		PINRateLimit:   cfg.PINRateLimit,
		Development:    cfg.IsDevelopment(),
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", server.Addr), zap.String("tax_policy", svc.TaxPolicy()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		sweepEstimations(gctx, svc, logger, estimationSweepInterval)
		return nil
	})
	return g.Wait()
}

// sweepEstimations marks lapsed estimations expired until ctx ends.
func sweepEstimations(ctx context.Context, svc *service.Service, logger *zap.Logger, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.ExpireEstimations(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("estimation sweep failed", zap.Error(err))
			}
		}
	}
}

func validateSecurityConfig(cfg config.Config) error {
	switch {
	case len(cfg.AuthSecret) < 32:
		return errors.New("AUTH_SECRET must be set and at least 32 characters")
	case len(cfg.ManagerPIN) < 6:
		return errors.New("MANAGER_PIN must be set and at least 6 digits")
	}
	for _, c := range cfg.ManagerPIN {
		if c < '0' || c > '9' {
			return errors.New("MANAGER_PIN must contain digits only")
		}
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

var commonPINs = map[string]struct{}{
	"121212": {}, "112233": {}, "123123": {}, "696969": {}, "159753": {}, "147258": {},
}

// validatePINStrength rejects repeated digits, straight runs and a short
// list of commonly chosen PINs.
func validatePINStrength(pin string) error {
	if _, ok := commonPINs[pin]; ok {
		return errors.New("common PIN not allowed")
	}

	same, up, down := true, true, true
	for i := 1; i < len(pin); i++ {
		step := int(pin[i]) - int(pin[i-1])
		same = same && step == 0
		up = up && step == 1
		down = down && step == -1
	}
	switch {
	case same:
		return errors.New("repeated digit PIN not allowed")
	case up || down:
		return errors.New("sequential PIN not allowed")
	}
	return nil
}
