// internal/app.go
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	router "salon-wallet/internal/api"
	"salon-wallet/internal/api/handler"
	"salon-wallet/internal/config"
	"salon-wallet/internal/lease"
	"salon-wallet/internal/notify"
	"salon-wallet/internal/payout"
	"salon-wallet/internal/repository"
	"salon-wallet/internal/repository/postgres"
	"salon-wallet/internal/service"
	"salon-wallet/internal/util"
	"salon-wallet/migrations"
	"salon-wallet/pkg/db"
)

// Application holds all the initialized components of the application.
type Application struct {
	Config *config.AppConfig
	Logger *zap.Logger
	DB     *sqlx.DB
	Redis  *redis.Client

	// Repositories
	WalletRepository      repository.WalletRepository
	TransactionRepository repository.TransactionRepository

	// Payout and notification plumbing
	Gateway    payout.Gateway
	Dispatcher *notify.Dispatcher
	Reconciler *service.Reconciler
	kafka      *notify.KafkaNotifier

	// Services
	WalletService     service.WalletService
	WithdrawalService service.WithdrawalService

	// HTTP API
	HTTPHandler http.Handler

	cancel context.CancelFunc
}

// NewApplication creates a new Application instance.
func NewApplication() *Application {
	return &Application{}
}

// Initialize initializes all application components. Background reconciliation
// runs until Shutdown, independent of ctx.
func (app *Application) Initialize(ctx context.Context) error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	app.Config = cfg

	// 2. Initialize Logger
	app.Logger, err = util.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	app.Logger.Info("Application configuration loaded successfully.")

	// 3. Connect to Database
	if cfg.AutoMigrate {
		if err := migrations.Up(cfg.DB.URL()); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		app.Logger.Info("Database schema is up to date.")
	}
	database, err := db.NewPostgresDB(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.DB = database
	app.Logger.Info("Database connection established.")

	// 4. Initialize Repositories
	app.WalletRepository = postgres.NewWalletRepository()
	app.TransactionRepository = postgres.NewTransactionRepository()
	store := service.NewStore(app.DB, app.WalletRepository, app.TransactionRepository)

	// 5. Payout gateway, notifications and the reconcile lease
	app.Gateway = app.newGateway()
	app.Logger.Info("Payout gateway selected.", zap.String("provider", app.Gateway.Name()))

	var notifier notify.Notifier = notify.NewLogNotifier(app.Logger)
	if cfg.Notify.Backend == config.NotifyBackendKafka {
		app.kafka = notify.NewKafkaNotifier(notify.NewKafkaWriter(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic))
		notifier = app.kafka
	}
	app.Dispatcher = notify.NewDispatcher(notifier, app.Logger, cfg.Notify.Workers, cfg.Notify.QueueSize)

	var locker lease.Locker = lease.NewLocalLocker()
	if cfg.Redis.Addr != "" {
		app.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := app.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		locker = lease.NewRedisLocker(app.Redis, "salon-wallet:reconcile:")
	}

	// 6. Initialize Services
	finalizer := service.NewFinalizer(store, app.Logger)
	app.Reconciler = service.NewReconciler(finalizer, app.Gateway, store, locker, app.Dispatcher,
		service.ReconcilerConfig{
			PollInterval: cfg.Reconcile.PollInterval,
			MaxAttempts:  cfg.Reconcile.MaxAttempts,
			ResumeBatch:  cfg.Reconcile.ResumeBatch,
			CheckTimeout: cfg.Payout.MoMoTimeout,
		}, app.Logger)
	app.WalletService = service.NewWalletService(store, cfg.Wallet.Currency, app.Logger,
		service.WithNotifications(app.Dispatcher))
	app.WithdrawalService = service.NewWithdrawalService(store, app.Gateway, finalizer, app.Reconciler,
		service.WithdrawalPolicy{
			Currency:      cfg.Wallet.Currency,
			MinWithdrawal: cfg.Wallet.MinWithdrawal,
		}, app.Logger)
	app.Logger.Info("Services initialized.")

	// 7. Initialize HTTP Handlers and Router
	walletHandler := handler.NewWalletHandler(app.WalletService, app.Logger)
	withdrawalHandler := handler.NewWithdrawalHandler(app.WithdrawalService, app.Logger)
	app.HTTPHandler = router.NewRouter(walletHandler, withdrawalHandler, cfg.AllowedOrigins, app.Logger)
	app.Logger.Info("HTTP router and handlers initialized.")

	// 8. Resume reconciliation of withdrawals left PENDING by a previous run
	runCtx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel
	if err := app.Reconciler.Start(runCtx); err != nil {
		return fmt.Errorf("failed to start reconciler: %w", err)
	}

	return nil
}

func (app *Application) newGateway() payout.Gateway {
	cfg := app.Config.Payout
	if cfg.Provider == config.PayoutProviderMoMo {
		return payout.NewMoMoGateway(payout.MoMoConfig{
			BaseURL:         cfg.MoMoBaseURL,
			APIUser:         cfg.MoMoAPIUser,
			APIKey:          cfg.MoMoAPIKey,
			SubscriptionKey: cfg.MoMoSubscriptionKey,
			TargetEnv:       cfg.MoMoTargetEnv,
			Timeout:         cfg.MoMoTimeout,
		}, app.Logger)
	}
	return payout.NewMockGateway(payout.MockConfig{
		Latency:       cfg.MockLatency,
		Outcome:       payout.Status(cfg.MockOutcome),
		FailureReason: cfg.MockFailureReason,
	})
}

// Shutdown gracefully shuts down application resources. Reconcile tasks are
// stopped first so no finalizer runs against a closed database.
func (app *Application) Shutdown(ctx context.Context) error {
	app.Logger.Info("Shutting down application...")
	if app.cancel != nil {
		app.cancel()
	}
	if app.Reconciler != nil {
		done := make(chan struct{})
		go func() {
			app.Reconciler.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			app.Logger.Warn("Reconcile tasks did not stop in time", zap.Error(ctx.Err()))
		}
	}
	if app.Dispatcher != nil {
		app.Dispatcher.Close()
	}
	if app.kafka != nil {
		if err := app.kafka.Close(); err != nil {
			app.Logger.Error("Failed to close kafka writer", zap.Error(err))
		}
	}
	if app.Redis != nil {
		if err := app.Redis.Close(); err != nil {
			app.Logger.Error("Failed to close redis client", zap.Error(err))
		}
	}
	if app.DB != nil {
		if err := app.DB.Close(); err != nil {
			app.Logger.Error("Failed to close database connection", zap.Error(err))
			return fmt.Errorf("failed to close database connection: %w", err)
		}
		app.Logger.Info("Database connection closed.")
	}
	app.Logger.Info("Application shut down gracefully.")
	_ = app.Logger.Sync()
	return nil
}
