package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"vendinha/internal/cache"
	"vendinha/internal/config"
	"vendinha/internal/domain"
	"vendinha/internal/httpapi"
	"vendinha/internal/logging"
	"vendinha/internal/reminder"
	"vendinha/internal/replication"
	pgremote "vendinha/internal/replication/postgres"
	"vendinha/internal/replication/sheets"
	"vendinha/internal/seed"
	"vendinha/internal/service"
	"vendinha/internal/store"
	"vendinha/internal/store/memory"
	"vendinha/internal/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

// run wires and serves the application until SIGINT or SIGTERM. Errors are
// returned rather than fatal so the deferred closers always run.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Setup(cfg.Env, cfg.LogLevel)
	if err := validateSecurityConfig(cfg); err != nil {
		return fmt.Errorf("invalid security configuration: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("invalid TZ_NAME: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	closers := make([]io.Closer, 0, 4)
	defer func() {
		// Stop background work first, then close in reverse order so the
		// replication queue drains before its remotes close.
		stop()
		for _, c := range slices.Backward(closers) {
			if err := c.Close(); err != nil {
				log.Error().Err(err).Msg("close error")
			}
		}
	}()

	var backend store.Backend
	if cfg.DataPath != "" {
		db, err := sqlite.Open(cfg.DataPath)
		if err != nil {
			return fmt.Errorf("open local store: %w", err)
		}
		closers = append(closers, db)
		backend = db
		log.Info().Str("path", cfg.DataPath).Msg("store: sqlite")
	} else {
		backend = memory.New()
		log.Warn().Msg("store: in-memory, data is lost on restart")
	}
	local := store.New(backend)

	remotes, remoteClosers := buildRemotes(ctx, cfg)
	closers = append(closers, remoteClosers...)

	var dispatcher replication.Dispatcher = replication.Discard{}
	var queue *replication.Queue
	if len(remotes) > 0 {
		queue = replication.NewQueue(remotes, replication.QueueOptions{
			Size:        cfg.ReplicationQueueSize,
			Workers:     cfg.ReplicationWorkers,
			PushTimeout: cfg.ReplicationTimeout,
		})
		queue.Start(ctx)
		closers = append(closers, queue)
		dispatcher = queue
	}

	summaryCache := cache.SummaryCache(cache.NewMemorySummaryCache())
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisSummaryCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := redisCache.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, using in-process cache")
			_ = redisCache.Close()
		} else {
			summaryCache = redisCache
			closers = append(closers, redisCache)
			log.Info().Msg("cache: redis")
		}
	}

	svc := service.New(local, service.Options{
		Dispatcher:      dispatcher,
		SummaryCache:    summaryCache,
		SummaryTTL:      cfg.SummaryTTL,
		Notifier:        reminder.LogNotifier{},
		ReminderOptions: reminder.Options{Hour: cfg.ReminderHour, Location: loc},
	})

	var source seed.Source = seed.Bundled{}
	if cfg.SeedURL != "" {
		source = seed.Fallback{Primary: seed.NewRemote(cfg.SeedURL, 10*time.Second), Secondary: seed.Bundled{}}
	}
	if err := svc.Bootstrap(ctx, source); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	go svc.Reminders().Run(ctx, cfg.ReminderInterval)

	auth := httpapi.NewAuthManager(cfg.JWTSecret, cfg.TokenTTL, accounts(cfg))
	api := httpapi.New(svc, auth, cfg.Origins())
	if queue != nil {
		api.WithReplicationStats(queue)
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Address()).Msg("vendinha listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("server stopped")
	return nil
}

// buildRemotes connects every configured replication target. A target that
// cannot be reached is logged and skipped; the local store stays authoritative.
func buildRemotes(ctx context.Context, cfg *config.Config) (replication.Fanout, []io.Closer) {
	var remotes replication.Fanout
	var closers []io.Closer

	if cfg.PostgresURL != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pg, err := pgremote.New(connectCtx, cfg.PostgresURL)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("postgres replica unavailable")
		} else {
			remotes = append(remotes, pg)
			closers = append(closers, pg)
			log.Info().Msg("replication: postgres")
		}
	}
	if cfg.SheetsURL != "" {
		sh, err := sheets.New(cfg.SheetsURL, cfg.SheetsToken, cfg.ReplicationTimeout)
		if err != nil {
			log.Warn().Err(err).Msg("sheets remote misconfigured")
		} else {
			remotes = append(remotes, sh)
			log.Info().Msg("replication: sheets")
		}
	}
	return remotes, closers
}

func accounts(cfg *config.Config) []httpapi.Account {
	out := []httpapi.Account{{Username: cfg.AdminUsername, Password: cfg.AdminPassword, Role: domain.RoleAdmin}}
	if cfg.CashierUsername != "" && cfg.CashierPassword != "" {
		out = append(out, httpapi.Account{Username: cfg.CashierUsername, Password: cfg.CashierPassword, Role: domain.RoleCashier})
	}
	return out
}

func validateSecurityConfig(cfg *config.Config) error {
	if len(cfg.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be set and at least 32 characters")
	}
	if cfg.AdminUsername == "" {
		return fmt.Errorf("ADMIN_USERNAME must be set")
	}
	if len(cfg.AdminPassword) < 8 {
		return fmt.Errorf("ADMIN_PASSWORD must be set and at least 8 characters")
	}
	if cfg.CashierPassword != "" && len(cfg.CashierPassword) < 8 {
		return fmt.Errorf("CASHIER_PASSWORD must be at least 8 characters")
	}
	if cfg.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if cfg.IsProduction() && slices.Contains(cfg.Origins(), "*") {
		return fmt.Errorf("ALLOWED_ORIGINS must not be * in production")
	}
	return nil
}
