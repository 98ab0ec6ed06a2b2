package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/imrishuroy/pos-orderflow/internal/aws"
	"github.com/imrishuroy/pos-orderflow/internal/config"
	"github.com/imrishuroy/pos-orderflow/internal/idempotency"
	"github.com/imrishuroy/pos-orderflow/internal/logging"
	"github.com/imrishuroy/pos-orderflow/internal/metrics"
	"github.com/imrishuroy/pos-orderflow/internal/orders"
	"github.com/imrishuroy/pos-orderflow/internal/payment"
	"github.com/imrishuroy/pos-orderflow/internal/retry"
)

// logNotifier stands in for terminal sessions, which live in the api process.
type logNotifier struct{ log *zap.Logger }

func (n logNotifier) Resolve(orderID int64, st orders.Status) {
	n.log.Info("order resolved", zap.Int64("order_id", orderID), zap.String("status", string(st)))
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

	clients, err := aws.NewAWSClients(context.Background(), aws.Settings{Region: cfg.AWSRegion, EndpointOverride: cfg.AWSEndpoint})
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}

	verifier := orders.NewHMACVerifier(cfg.VNPayHashSecret)
	service := orders.NewService(orders.NewStore(clients.DynamoDB, cfg.OrdersTable), verifier, logger)
	reconciler := payment.NewReconciler(
		service,
		idempotency.NewStore(clients.DynamoDB, cfg.LedgerTable, cfg.LedgerTTL),
		clients.Publisher(cfg.DeferredQueueURL, aws.WithDelay(cfg.DeferredDelay)),
		logNotifier{log: logger},
		metrics.NewCloudWatch(clients.CloudWatch, cfg.MetricsNamespace, logger),
		payment.Config{
			Policy:              retry.Policy{MaxRetries: cfg.BackendMaxRetries, InitialBackoff: cfg.BackendInitialBackoff, MaxElapsed: retry.DefaultPolicy.MaxElapsed},
			MaxDeferredAttempts: cfg.DeferredMaxAttempts,
			Verifier:            verifier,
		},
		logger,
	)
	p := NewProcessor(reconciler, logger)

	// RUN_LOCAL=true feeds a single message from LOCAL_SQS_BODY through the handler.
	if cfg.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			logger.Fatal("LOCAL_SQS_BODY is required when RUN_LOCAL=true")
		}
		resp, _ := p.Handle(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local-1", Body: body}},
		})
		logger.Info("local run finished", zap.Int("failures", len(resp.BatchItemFailures)))
		return
	}

	lambda.Start(p.Handle)
}
