package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/smolentsev/shopbot/internal/backup"
	"github.com/smolentsev/shopbot/internal/broadcast"
	"github.com/smolentsev/shopbot/internal/cart"
	"github.com/smolentsev/shopbot/internal/catalog"
	"github.com/smolentsev/shopbot/internal/checkout"
	"github.com/smolentsev/shopbot/internal/cron"
	"github.com/smolentsev/shopbot/internal/notify"
	"github.com/smolentsev/shopbot/internal/ops"
	"github.com/smolentsev/shopbot/internal/orders"
	"github.com/smolentsev/shopbot/internal/pricing"
	"github.com/smolentsev/shopbot/internal/promos"
	"github.com/smolentsev/shopbot/internal/referrals"
	"github.com/smolentsev/shopbot/internal/stats"
	"github.com/smolentsev/shopbot/internal/users"
	"github.com/smolentsev/shopbot/pkg/config"
	"github.com/smolentsev/shopbot/pkg/db"
	"github.com/smolentsev/shopbot/pkg/logger"
	"github.com/smolentsev/shopbot/pkg/metrics"
	"github.com/smolentsev/shopbot/pkg/migrate"
	"github.com/smolentsev/shopbot/pkg/redis"
	"github.com/smolentsev/shopbot/pkg/sheets"
	"github.com/smolentsev/shopbot/pkg/tasks"
)

// app is the composition root handed to whatever chat transport binds the
// bot. Everything a handler layer needs hangs off these services.
type app struct {
	Users       users.Service
	Carts       cart.Service
	Promos      promos.Service
	Referrals   referrals.Service
	Withdrawals *referrals.WithdrawalService
	Checkout    *checkout.Service
	Confirm     *orders.ConfirmService
	History     *orders.HistoryService
	Broadcast   *broadcast.Service
	Stats       *stats.Service
	Catalog     *catalog.Cache
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "bot"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "bot",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sheetsClient, err := sheets.New(context.Background(), cfg.Sheets)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap sheets client", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	runner, err := tasks.New(logg, prometheus.DefaultRegisterer)
	if err != nil {
		logg.Error(ctx, "failed to create task runner", err)
		os.Exit(1)
	}

	application, cronService, err := buildApp(ctx, cfg, logg, dbClient, redisClient, sheetsClient, runner)
	if err != nil {
		logg.Error(ctx, "failed to assemble services", err)
		os.Exit(1)
	}

	// First refresh happens inline so the catalog is warm before anything
	// serves; the cron loop keeps it fresh afterwards.
	if err := application.Catalog.Refresh(ctx); err != nil {
		logg.Error(ctx, "initial catalog refresh failed", err)
	}

	go func() {
		if err := cronService.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "cron loop stopped unexpectedly", err)
		}
	}()

	opsServer, err := ops.NewServer(ops.Params{
		Addr:     ":" + cfg.App.Port,
		Logger:   logg,
		Gatherer: prometheus.DefaultGatherer,
		DB:       dbClient,
		Redis:    redisClient,
	})
	if err != nil {
		logg.Error(ctx, "failed to create ops server", err)
		os.Exit(1)
	}

	logg.Info(ctx, "bot backend started")
	if err := opsServer.Run(ctx); err != nil {
		logg.Error(ctx, "ops server stopped unexpectedly", err)
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := runner.Wait(drainCtx); err != nil {
		logg.Error(drainCtx, "background tasks did not drain in time", err)
	}
	logg.Info(ctx, "bot backend shutting down gracefully")
}

func buildApp(
	ctx context.Context,
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	sheetsClient *sheets.Client,
	runner *tasks.Runner,
) (*app, *cron.Service, error) {
	catalogSource, err := catalog.NewSheetSource(sheetsClient, cfg.Sheets.CatalogSheet)
	if err != nil {
		return nil, nil, err
	}
	catalogCache, err := catalog.NewCache(catalogSource, logg)
	if err != nil {
		return nil, nil, err
	}
	refreshJob, err := catalog.NewRefreshJob(catalogCache)
	if err != nil {
		return nil, nil, err
	}

	// The chat transport binds outside this module; until it does, every
	// notification lands in the log.
	notifier, err := notify.NewLogNotifier(logg)
	if err != nil {
		return nil, nil, err
	}

	backupJob, err := backup.NewJob(backup.JobParams{
		DB:        dbClient.DB(),
		Notifier:  notifier,
		Logger:    logg,
		Dir:       cfg.Backup.Dir,
		SysChatID: cfg.Operator.SysChatID,
		Interval:  cfg.Backup.Interval,
	})
	if err != nil {
		return nil, nil, err
	}

	cronLock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("bot"), 0)
	if err != nil {
		return nil, nil, err
	}
	cronService, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(refreshJob, backupJob),
		Lock:     cronLock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Catalog.RefreshInterval,
	})
	if err != nil {
		return nil, nil, err
	}

	usersRepo := users.NewRepository(dbClient.DB())
	usersService, err := users.NewService(usersRepo, cfg.Operator.ManagerID)
	if err != nil {
		return nil, nil, err
	}
	promosService, err := promos.NewService(promos.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, nil, err
	}
	cartService, err := cart.NewService(cart.NewRepository(dbClient.DB()), catalogCache, promosService)
	if err != nil {
		return nil, nil, err
	}
	referralsService, err := referrals.NewService(referrals.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, nil, err
	}

	ledger, err := orders.NewSheetLedger(sheetsClient, cfg.Sheets.OrdersSheet)
	if err != nil {
		return nil, nil, err
	}
	orderMetrics := metrics.NewOrderMetrics(prometheus.DefaultRegisterer)

	withdrawalService, err := referrals.NewWithdrawalService(referrals.WithdrawalParams{
		Accounts:   usersService,
		Notifier:   notifier,
		Logger:     logg,
		OperatorID: cfg.Operator.ManagerID,
	})
	if err != nil {
		return nil, nil, err
	}

	sessions, err := checkout.NewRedisSessionStore(redisClient, cfg.Checkout.SessionTTL)
	if err != nil {
		return nil, nil, err
	}
	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Carts:            cartService,
		Snapshot:         catalogCache,
		Promos:           promosService,
		Referrals:        referralsService,
		Accounts:         usersService,
		Ledger:           ledger,
		Sessions:         sessions,
		Engine:           pricing.NewEngine(pricing.FromAppConfig(cfg)),
		Notifier:         notifier,
		Logger:           logg,
		Metrics:          orderMetrics,
		OperatorID:       cfg.Operator.ManagerID,
		OperatorUsername: cfg.Operator.ManagerUsername,
	})
	if err != nil {
		return nil, nil, err
	}

	confirmService, err := orders.NewConfirmService(orders.ConfirmParams{
		Ledger:    ledger,
		Stock:     catalogSource,
		Referrals: referralsService,
		Accounts:  usersService,
		Notifier:  notifier,
		Runner:    runner,
		Logger:    logg,
		Metrics:   orderMetrics,
	})
	if err != nil {
		return nil, nil, err
	}

	historyService, err := orders.NewHistoryService(ledger, catalogCache)
	if err != nil {
		return nil, nil, err
	}

	broadcastService, err := broadcast.NewService(broadcast.ServiceParams{
		Users:    usersRepo,
		Notifier: notifier,
		Runner:   runner,
		Logger:   logg,
		Throttle: cfg.Broadcast.Throttle,
	})
	if err != nil {
		return nil, nil, err
	}

	statsService, err := stats.NewService(ledger, catalogCache, usersRepo)
	if err != nil {
		return nil, nil, err
	}

	logg.Info(ctx, "services assembled")
	return &app{
		Users:       usersService,
		Carts:       cartService,
		Promos:      promosService,
		Referrals:   referralsService,
		Withdrawals: withdrawalService,
		Checkout:    checkoutService,
		Confirm:     confirmService,
		History:     historyService,
		Broadcast:   broadcastService,
		Stats:       statsService,
		Catalog:     catalogCache,
	}, cronService, nil
}
