package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"selah/internal/application/billing/provider"
	billingUsecases "selah/internal/application/billing/usecases"
	"selah/internal/infrastructure/config"
	"selah/internal/infrastructure/database"
	"selah/internal/infrastructure/migration"
	appstoreProvider "selah/internal/infrastructure/provider/appstore"
	googleplayProvider "selah/internal/infrastructure/provider/googleplay"
	razorpayProvider "selah/internal/infrastructure/provider/razorpay"
	"selah/internal/infrastructure/pubsub"
	"selah/internal/infrastructure/repository"
	"selah/internal/infrastructure/scheduler"
	httpRouter "selah/internal/interfaces/http"
	"selah/internal/interfaces/http/handlers"
	"selah/internal/shared/constants"
	"selah/internal/shared/lock"
	"selah/internal/shared/logger"
	vo "selah/internal/domain/subscription/valueobjects"
)

var (
	env         string
	autoMigrate bool
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP server",
		Long:  `Start the billing HTTP server with specified configuration.`,
		RunE:  run,
	}

	cmd.Flags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", false, "Automatically run database migrations on startup (not recommended for production)")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	if envVar := os.Getenv("ENV"); envVar != "" {
		env = envVar
	}

	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Server.Mode = mapEnvToGinMode(env)

	if err := logger.Init(&cfg.Logger, env == constants.EnvDevelopment); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.NewLogger()

	log.Infow("starting server", "environment", env, "auto_migrate", autoMigrate)

	gin.DefaultWriter = io.Discard
	gin.DebugPrintRouteFunc = func(httpMethod, absolutePath, handlerName string, numHandlers int) {}

	if err := database.Init(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	if autoMigrate || env == constants.EnvDevelopment {
		manager := migration.NewManager(env)
		if err := manager.Migrate(database.Get(), migration.AutoMigrateModels()...); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		// Revenue events are fire-and-forget; a dead Redis degrades the side
		// channel, not billing itself.
		log.Warnw("redis unreachable, billing events will be dropped", "error", err)
	}
	cancelPing()

	eventBus := pubsub.NewRedisBillingEventBus(redisClient, log)

	// Provider adapters are built lazily so one misconfigured provider does
	// not take down the others.
	registry := provider.NewRegistry()
	registry.Register(vo.ProviderRazorpay, func() (provider.Provider, error) {
		return razorpayProvider.NewProvider(&cfg.Providers.Razorpay, log.Named("razorpay"))
	})
	registry.Register(vo.ProviderGooglePlay, func() (provider.Provider, error) {
		return googleplayProvider.NewProvider(&cfg.Providers.GooglePlay, log.Named("googleplay"))
	})
	registry.Register(vo.ProviderAppStore, func() (provider.Provider, error) {
		return appstoreProvider.NewProvider(&cfg.Providers.AppStore, log.Named("appstore"))
	})

	subRepo := repository.NewSubscriptionRepository(database.Get(), log)
	invoiceRepo := repository.NewInvoiceRepository(database.Get(), log)
	locks := lock.NewKeyedMutex()

	processUC := billingUsecases.NewProcessWebhookEventUseCase(subRepo, invoiceRepo, registry, locks, log)
	processUC.SetEventPublisher(eventBus)
	submitUC := billingUsecases.NewSubmitReceiptUseCase(subRepo, registry, locks, log)
	submitUC.SetEventPublisher(eventBus)
	createUC := billingUsecases.NewCreateSubscriptionUseCase(subRepo, registry, log)
	cancelUC := billingUsecases.NewCancelSubscriptionUseCase(subRepo, registry, locks, log)
	resumeUC := billingUsecases.NewResumeSubscriptionUseCase(subRepo, registry, locks, log)
	getUC := billingUsecases.NewGetSubscriptionUseCase(subRepo, log)
	listUC := billingUsecases.NewListSubscriptionsUseCase(subRepo, log)

	expireUC := billingUsecases.NewExpireSubscriptionsUseCase(subRepo, locks, cfg.Billing.GraceDays, log)
	finalizeUC := billingUsecases.NewSweepPendingCancellationsUseCase(subRepo, locks, log)
	finalizeUC.SetEventPublisher(eventBus)

	billingScheduler := scheduler.NewBillingScheduler(
		expireUC, finalizeUC,
		time.Duration(cfg.Billing.SweepInterval)*time.Minute,
		log.Named("scheduler"),
	)
	schedulerCtx, cancelScheduler := context.WithCancel(context.Background())
	defer cancelScheduler()
	billingScheduler.Start(schedulerCtx)
	defer billingScheduler.Stop()

	webhookHandler := handlers.NewWebhookHandler(processUC, cfg.Providers.Razorpay.WebhookSecret, log.Named("webhook"))
	receiptHandler := handlers.NewReceiptHandler(submitUC, log.Named("receipt"))
	subscriptionHandler := handlers.NewSubscriptionHandler(createUC, cancelUC, resumeUC, getUC, listUC, log.Named("subscription"))

	router := httpRouter.NewRouter(webhookHandler, receiptHandler, subscriptionHandler, cfg.Server.Mode, log)

	srv := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      router.Engine(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "address", cfg.Server.GetAddr(), "mode", cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
		return err
	}

	log.Infow("server exited gracefully")
	return nil
}

func mapEnvToGinMode(env string) string {
	switch env {
	case constants.EnvProduction:
		return gin.ReleaseMode
	case constants.EnvTest:
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}
