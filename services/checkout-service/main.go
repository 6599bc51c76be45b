package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	awspkg "github.com/bmr-suspension/storefront-backend/pkg/aws"
	ddb "github.com/bmr-suspension/storefront-backend/pkg/dynamodb"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/controllers"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/database"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/notification"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/paypal"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/repository"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/routes"
	"github.com/bmr-suspension/storefront-backend/services/checkout-service/services"
	"github.com/bmr-suspension/storefront-backend/services/common/auth"
	"github.com/bmr-suspension/storefront-backend/services/common/logger"
)

const (
	serviceName      = "checkout-service"
	metricsNamespace = "Storefront/Checkout"
	logGroupName     = "/storefront/checkout-service"
)

func main() {
	// Load .env file (optional, falls back to system env)
	_ = godotenv.Load()

	// Money is serialised as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true

	cfg, err := LoadConfig()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	awsCfg, awsErr := awspkg.LoadAWSConfig(ctx)

	var cwWriter io.Writer
	if cfg.CloudWatchEnabled && awsErr == nil {
		if cw, err := awspkg.NewCloudWatchLogsClient(ctx, awsCfg, logGroupName, serviceName); err == nil {
			cwWriter = cw
		}
	}

	log, err := logger.New(cfg.AppEnv, cwWriter)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	if awsErr != nil {
		log.Warn("AWS config unavailable, AWS integrations disabled", zap.Error(awsErr))
	}
	awsReady := awsErr == nil

	metrics := awspkg.NewMetricsClient(awsCfg, metricsNamespace, cfg.CloudWatchEnabled && awsReady)

	// --- Storage ---
	db, err := database.ConnectPostgres(cfg.Postgres, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("Failed to get sql.DB", zap.Error(err))
	}

	checks := map[string]controllers.Pinger{"postgres": sqlDB.PingContext}

	pending, redisClient, err := newPendingStore(ctx, cfg, db, awsCfg, awsReady)
	if err != nil {
		log.Fatal("Failed to initialise pending-order store",
			zap.String("backend", cfg.PendingOrderBackend), zap.Error(err))
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	log.Info("Pending-order store ready", zap.String("backend", cfg.PendingOrderBackend))

	orderRepo := repository.NewOrderRepository(db)
	couponRepo := repository.NewCouponRepository(db)
	giftCardRepo := repository.NewGiftCardRepository(db)
	dealerTierRepo := repository.NewDealerTierRepository(db)
	customerRepo := repository.NewCustomerRepository(db)

	// --- Events ---
	var events services.EventPublisher
	if cfg.OrderTopicArn != "" && awsReady {
		events = awspkg.NewSNSClient(awsCfg)
	}

	orderService := services.NewOrderService(orderRepo, couponRepo, giftCardRepo, events, cfg.OrderTopicArn, metrics, log)

	var orderCreator services.OrderCreator = orderService
	if cfg.OrderServiceURL != "" {
		orderCreator = services.NewOrderHTTPClient(cfg.OrderServiceURL, cfg.ServiceToken, cfg.OrderCreateTimeout)
		log.Info("Orders are created remotely", zap.String("url", cfg.OrderServiceURL))
	}

	// --- Notifications ---
	var sender notification.EmailSender
	if smtpSender, err := notification.NewSMTPSender(cfg.SMTP); err == nil {
		sender = smtpSender
	} else {
		log.Warn("SMTP not configured, confirmation emails will not be sent", zap.Error(err))
	}

	dispatchOpts := notification.DispatcherOptions{Workers: cfg.EmailWorkers}
	var emailQueue *awspkg.SQSQueue
	if cfg.EmailQueueURL != "" && awsReady {
		emailQueue = awspkg.NewSQSQueue(awsCfg, cfg.EmailQueueURL, log)
		dispatchOpts.Queue = emailQueue
	}
	dispatcher := notification.NewDispatcher(sender, giftCardRepo, metrics, log, dispatchOpts)

	if emailQueue != nil {
		go func() {
			if err := emailQueue.StartPolling(ctx, dispatcher.HandleQueueMessage); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Email queue consumer stopped", zap.Error(err))
			}
		}()
		log.Info("Confirmation emails go through SQS", zap.String("queue", cfg.EmailQueueURL))
	}

	// --- Payments ---
	gateway := paypal.NewClient(cfg.PayPal, log)

	var cardProcessor services.CardProcessor
	if sp := services.NewStripeProcessor(cfg.StripeAPIKey, log); sp != nil {
		cardProcessor = sp
	}

	couponService := services.NewCouponService(couponRepo, log)
	checkoutService := services.NewCheckoutService(
		dealerTierRepo, customerRepo, couponService, gateway, pending,
		metrics, log, cfg.SiteURL, cfg.GatewayTimeout,
	)
	captureService := services.NewCaptureService(pending, gateway, orderCreator, dispatcher, metrics, log, services.CaptureConfig{
		GatewayTimeout: cfg.GatewayTimeout,
		OrderTimeout:   cfg.OrderCreateTimeout,
	})
	cardService := services.NewCardCheckoutService(checkoutService, cardProcessor, orderCreator, dispatcher, metrics, log)
	dealerTierService := services.NewDealerTierService(dealerTierRepo, log)

	// --- HTTP ---
	if cfg.ServiceToken == "" {
		log.Warn("SERVICE_TOKEN not set, the create-order endpoint will reject every call")
	}

	dev := cfg.IsDevelopment()
	r := routes.NewRouter(routes.Handlers{
		PayPal: controllers.NewPayPalController(captureService, checkoutService, dev),
		Orders: controllers.NewOrderController(orderService, dev),
		Card:   controllers.NewCardController(cardService, dev),
		Admin:  controllers.NewAdminController(orderService, dealerTierService, checkoutService, dev),
		Health: controllers.NewHealthController(serviceName, checks),
	}, routes.Options{
		Logger:            log,
		Metrics:           metrics,
		Verifier:          auth.NewVerifier(cfg.JWTSecret),
		ServiceToken:      cfg.ServiceToken,
		AllowedOrigins:    cfg.AllowedOrigins,
		CheckoutPerMinute: 30,
		CheckoutBurst:     10,
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	go func() {
		log.Info("Checkout Service starting", zap.String("port", cfg.Port), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Checkout Service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	stop()
	dispatcher.Close()
	if redisClient != nil {
		_ = redisClient.Close()
	}
	_ = sqlDB.Close()

	log.Info("Checkout Service stopped gracefully")
}

// newPendingStore builds the configured pending-order backend. The Redis
// client is returned so it can be health-checked and closed.
func newPendingStore(ctx context.Context, cfg *Config, db *gorm.DB, awsCfg sdkaws.Config, awsReady bool) (repository.PendingOrderRepository, *redis.Client, error) {
	switch cfg.PendingOrderBackend {
	case "redis":
		client, err := database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewRedisPendingOrderRepository(client, cfg.PendingOrderTTL), client, nil
	case "dynamodb":
		if !awsReady {
			return nil, nil, errors.New("dynamodb backend requires AWS configuration")
		}
		client := ddb.NewClientFromConfig(awsCfg)
		return repository.NewDynamoPendingOrderRepository(client, cfg.PendingOrderTable, cfg.PendingOrderTTL), nil, nil
	default:
		return repository.NewPendingOrderRepository(db, cfg.PendingOrderTTL), nil, nil
	}
}
