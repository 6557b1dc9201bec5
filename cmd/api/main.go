package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dating-platform/internal/audit"
	"dating-platform/internal/auth"
	"dating-platform/internal/calls"
	"dating-platform/internal/config"
	"dating-platform/internal/httpapi"
	"dating-platform/internal/jobs"
	"dating-platform/internal/media"
	"dating-platform/internal/notify"
	"dating-platform/internal/pricing"
	"dating-platform/internal/realtime"
	"dating-platform/internal/reporting"
	"dating-platform/internal/signaling"
	"dating-platform/internal/wallet"
	"dating-platform/pkg/logger"
	"dating-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	issuer := newIssuer(cfg, log)

	// Storage
	coinStore := wallet.NewPostgresStore(db)
	callRepo := calls.NewPostgresRepo(db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db), log)
	pricer := pricing.NewService(pricing.NewPostgresRepo(db), pricing.Quote{
		CoinAmount:         cfg.Calls.CoinPrice,
		DurationSeconds:    int(cfg.Calls.Duration / time.Second),
		RingTimeoutSeconds: int(cfg.Calls.RingTimeout / time.Second),
	})
	earnings := wallet.NewEarningsBuffer(coinStore, log.With("component", "earnings"))
	earnings.OnDeadLetter(func(ctx context.Context, p wallet.Posting, err error) {
		auditSvc.LogDroppedEarning(ctx, p.ExternalRef, p.UserID, p.Amount, err)
	})

	// A slot must outlive the longest possible call, or a crashed process would
	// leave users locked out until the key expires.
	guardTTL := cfg.Calls.RingTimeout + cfg.Calls.AcceptGrace + cfg.Calls.Duration + time.Minute
	guard := calls.NewRedisGuard(rdb, cfg.Calls.MaxConcurrentPerUser, guardTTL)

	callSvc := calls.NewService(calls.Options{
		Repo:        callRepo,
		Wallet:      coinStore,
		Earnings:    earnings,
		Pricer:      pricer,
		Guard:       guard,
		Audit:       auditSvc,
		Logger:      log.With("component", "calls"),
		AcceptGrace: cfg.Calls.AcceptGrace,
	})

	// Realtime
	pushQueue := notify.NewQueue(notify.LogNotifier{Log: log.With("component", "push")}, notify.Config{
		Workers:     cfg.Notify.Workers,
		QueueSize:   cfg.Notify.QueueSize,
		MaxAttempts: cfg.Notify.MaxAttempts,
	}, log)
	pushQueue.Start(rootCtx)

	hub := realtime.NewHub(log.With("component", "realtime"))
	relay := signaling.NewRelay(callSvc, hub, issuer, pushQueue, log.With("component", "signaling"))
	hub.SetDispatcher(relay)
	callSvc.OnServerEnd(relay.OnServerEnd)

	runner, err := jobs.New(jobs.Config{
		FlushInterval:     cfg.Calls.EarningsFlushInterval,
		ReconcileInterval: cfg.Calls.ReconcileInterval,
	}, earnings, callSvc, log)
	if err != nil {
		log.Error("jobs init failed", "err", err)
		os.Exit(1)
	}
	runner.Start(rootCtx)

	h := httpapi.Handlers{
		Auth:    authManager,
		Calls:   callSvc,
		Wallet:  coinStore,
		Ledger:  coinStore,
		Reports: reporting.NewService(callRepo),
		Audit:   auditSvc,
		Ready: func(ctx context.Context) error {
			if err := utils.HealthCheck(ctx, db, 2*time.Second); err != nil {
				return err
			}
			return rdb.Ping(ctx).Err()
		},
		Online: hub.OnlineCount,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		handlers:  h,
		authMW:    auth.RequireAccessToken(authManager),
		ws:        realtime.NewHandler(hub),
		devRoutes: !cfg.IsProduction(),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: it would cut long-lived websocket connections.
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "video_enabled", issuer.Enabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	// Sessions stay in the ledger; the next process reconciles them on startup.
	callSvc.Close()
	hub.Shutdown()
	runner.Stop(shutdownCtx)
	pushQueue.Stop()
	log.Info("shutdown complete")
}

// newIssuer falls back to a disabled issuer when SFU credentials are absent,
// so only video calling is unavailable.
func newIssuer(cfg config.Config, log *slog.Logger) media.Issuer {
	iss, err := media.New(media.Config{
		URL:       cfg.Media.URL,
		APIKey:    cfg.Media.APIKey,
		APISecret: cfg.Media.APISecret,
		TTL:       cfg.Media.TokenTTL,
		UIDRange:  cfg.Media.UIDRange,
	})
	if errors.Is(err, media.ErrNotConfigured) {
		log.Warn("media credentials missing, video calling disabled")
		return media.Disabled{}
	}
	if err != nil {
		log.Error("media issuer init failed, video calling disabled", "err", err)
		return media.Disabled{}
	}
	return iss
}
