package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"payment-mail-reconciler-go/internal/config"
	"payment-mail-reconciler-go/internal/database"
	"payment-mail-reconciler-go/internal/handler"
	"payment-mail-reconciler-go/internal/lock"
	"payment-mail-reconciler-go/internal/mailbox"
	"payment-mail-reconciler-go/internal/matcher"
	"payment-mail-reconciler-go/internal/metrics"
	"payment-mail-reconciler-go/internal/parser"
	"payment-mail-reconciler-go/internal/repository"
	"payment-mail-reconciler-go/internal/router"
	"payment-mail-reconciler-go/internal/scheduler"
	"payment-mail-reconciler-go/internal/service/ledger"
	"payment-mail-reconciler-go/internal/service/notice"
	"payment-mail-reconciler-go/internal/service/reconcile"
)

// App holds the wired services of one process.
type App struct {
	Config     *config.Config
	DB         *gorm.DB
	Store      *repository.Repository
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Ledger     *ledger.Service
	Resolver   *notice.Resolver
	Reconciler *reconcile.Service
	Scheduler  *scheduler.Scheduler

	redis *redis.Client
}

// SetupLogging applies the configured logrus level and format.
func SetupLogging(cfg config.LogConfig) {
	if strings.EqualFold(cfg.Format, "text") {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logrus.Warnf("Unknown log level %q, using info", cfg.Level)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// New validates cfg, connects to the database and wires every service.
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	loc, err := cfg.Ledger.Location()
	if err != nil {
		return nil, err
	}

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	store := repository.New(db)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	p, err := parser.New(cfg.Parser.SenderMap(), loc)
	if err != nil {
		return nil, fmt.Errorf("failed to create email parser: %w", err)
	}

	mb := mailbox.NewClient(mailboxAccounts(cfg.Mailbox.Accounts), mailbox.Options{
		Senders:     p.Senders(),
		Timeout:     cfg.Mailbox.Timeout,
		Concurrency: cfg.Mailbox.Concurrency,
	}, nil)
	logrus.Infof("Scanning %d mailbox account(s) for %d sender(s)", len(cfg.Mailbox.Accounts), len(p.Senders()))

	a := &App{Config: cfg, DB: db, Store: store, Registry: reg, Metrics: m}

	var locker lock.Locker
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		locker = lock.NewRedisLocker(a.redis, "payment-reconciler:")
		logrus.Infof("Using Redis scan lock at %s", cfg.Redis.Addr)
	} else {
		locker = lock.NewLocalLocker()
	}

	a.Resolver = notice.NewResolver(store, loc, m)
	a.Ledger = ledger.NewService(store, a.Resolver, loc)
	a.Reconciler = reconcile.NewService(reconcile.Deps{
		Mailbox: mb,
		Parser:  p,
		Matcher: matcher.New(store, matcher.Options{
			Threshold: cfg.Matcher.Threshold,
			Margin:    cfg.Matcher.Margin,
		}),
		Ledger:   a.Ledger,
		Payments: store,
		Resolver: a.Resolver,
		Locker:   locker,
		Metrics:  m,
	}, reconcile.Options{
		MarkRead: cfg.Reconcile.MarkRead,
		LockTTL:  cfg.Reconcile.LockTTL,
	})
	a.Scheduler = scheduler.NewScheduler(cfg.Scheduler.IntervalMinutes, a.Reconciler)

	return a, nil
}

// Close releases the database and Redis connections.
func (a *App) Close() error {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logrus.Errorf("Failed to close Redis client: %v", err)
		}
	}
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Run serves the HTTP API and the scan scheduler until SIGINT or SIGTERM.
func Run(cfg *config.Config) error {
	logrus.Info("Starting Payment Mail Reconciler")

	a, err := New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	h := handler.NewHandlers(handler.Deps{
		Store:     a.Store,
		Ledger:    a.Ledger,
		Resolver:  a.Resolver,
		Scheduler: a.Scheduler,
		Gatherer:  a.Registry,
	})
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.SetupRouter(h),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if cfg.Scheduler.Enabled {
		if err := a.Scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.Scheduler.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}
	a.Scheduler.Wait()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return nil
}

func mailboxAccounts(in []config.AccountConfig) []mailbox.Account {
	out := make([]mailbox.Account, 0, len(in))
	for _, a := range in {
		provider := mailbox.Provider(strings.ToLower(a.Provider))
		if provider == "" {
			provider = mailbox.ProviderIMAP
		}
		out = append(out, mailbox.Account{
			ID:           a.ID,
			Provider:     provider,
			Host:         a.Host,
			Port:         a.Port,
			TLS:          a.TLS,
			Username:     a.Username,
			Password:     a.Password,
			Folder:       a.Folder,
			ClientID:     a.ClientID,
			ClientSecret: a.ClientSecret,
			RefreshToken: a.RefreshToken,
		})
	}
	return out
}
