package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/pos-orderflow/internal/aws"
	"github.com/imrishuroy/pos-orderflow/internal/cancellation"
	"github.com/imrishuroy/pos-orderflow/internal/config"
	"github.com/imrishuroy/pos-orderflow/internal/customers"
	"github.com/imrishuroy/pos-orderflow/internal/handlers"
	"github.com/imrishuroy/pos-orderflow/internal/idempotency"
	"github.com/imrishuroy/pos-orderflow/internal/logging"
	"github.com/imrishuroy/pos-orderflow/internal/metrics"
	"github.com/imrishuroy/pos-orderflow/internal/orders"
	"github.com/imrishuroy/pos-orderflow/internal/payment"
	"github.com/imrishuroy/pos-orderflow/internal/retry"
	"github.com/imrishuroy/pos-orderflow/internal/session"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestLogger(cfg.Log))

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterTerminalRoutes(r, cfg)
	handlers.RegisterOrdersRoutes(r, cfg)
	handlers.RegisterPaymentRoutes(r, cfg)
	handlers.RegisterCustomerRoutes(r, cfg)

	return r
}

func buildConfig(ctx context.Context, cfg config.Config, logger *zap.Logger) (handlers.HandlerConfig, error) {
	clients, err := aws.NewAWSClients(ctx, aws.Settings{Region: cfg.AWSRegion, EndpointOverride: cfg.AWSEndpoint})
	if err != nil {
		return handlers.HandlerConfig{}, err
	}

	policy := retry.Policy{
		MaxRetries:     cfg.BackendMaxRetries,
		InitialBackoff: cfg.BackendInitialBackoff,
		MaxElapsed:     5 * time.Second,
	}
	recorder := metrics.NewCloudWatch(clients.CloudWatch, cfg.MetricsNamespace, logger)

	verifier := orders.NewHMACVerifier(cfg.VNPayHashSecret)
	service := orders.NewService(orders.NewStore(clients.DynamoDB, cfg.OrdersTable), verifier, logger)
	workflow := cancellation.NewWorkflow(service,
		cancellation.NewSQSInventory(clients.Publisher(cfg.RestockQueueURL)),
		policy, logger)
	registry := session.NewRegistry(func(terminalID string) *session.Session {
		return session.New(terminalID, service, workflow,
			session.WithMaxDrafts(cfg.MaxDraftOrders),
			session.WithRetryPolicy(policy),
			session.WithMetrics(recorder),
			session.WithLogger(logger))
	})
	reconciler := payment.NewReconciler(
		service,
		idempotency.NewStore(clients.DynamoDB, cfg.LedgerTable, cfg.LedgerTTL),
		clients.Publisher(cfg.DeferredQueueURL, aws.WithDelay(cfg.DeferredDelay)),
		registry,
		recorder,
		payment.Config{Policy: policy, MaxDeferredAttempts: cfg.DeferredMaxAttempts, Verifier: verifier},
		logger,
	)

	return handlers.HandlerConfig{
		Sessions:     registry,
		Orders:       service,
		Cancellation: workflow,
		Reconciler:   reconciler,
		Customers:    customers.NewStore(clients.DynamoDB, cfg.CustomersTable),
		Log:          logger,
	}, nil
}

func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg.LogLevel, cfg.RunLocal)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.VNPayHashSecret == "" {
		logger.Fatal("VNPAY_HASH_SECRET is required")
	}

	hcfg, err := buildConfig(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}
	if !cfg.RunLocal {
		gin.SetMode(gin.ReleaseMode)
	}
	r := setupRouter(hcfg)

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if cfg.RunLocal {
		logger.Info("running local server", zap.String("addr", cfg.Addr))
		if err := r.Run(cfg.Addr); err != nil {
			logger.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
