package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/healthorbit/thyrocare-bridge/internal/aws"
	"github.com/healthorbit/thyrocare-bridge/internal/breaker"
	"github.com/healthorbit/thyrocare-bridge/internal/credentials"
	"github.com/healthorbit/thyrocare-bridge/internal/orders"
	"github.com/healthorbit/thyrocare-bridge/internal/queue"
	"github.com/healthorbit/thyrocare-bridge/internal/session"
	"github.com/healthorbit/thyrocare-bridge/internal/upstream"
)

func main() {
	zl, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer zl.Sync()
	logger := zl.Sugar()

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		logger.Fatalw("failed to init aws clients", "error", err)
	}

	metrics := aws.NewMetricsEmitter(clients.CloudWatch, "ThyrocareBridge", logger)

	br := breaker.New(breaker.Settings{Name: "thyrocare"}, logger, metrics.EmitBreakerTransition)
	q := queue.New(queue.Config{OnDepth: metrics.EmitQueueDepth}, br)

	username := os.Getenv("THYROCARE_USERNAME")
	client := upstream.NewClient(upstream.Config{
		BaseURL:  os.Getenv("THYROCARE_BASE_URL"),
		Username: username,
		Password: os.Getenv("THYROCARE_PASSWORD"),
	}, logger)

	sessions := session.NewStore(clients.DynamoDB, os.Getenv("SESSIONS_TABLE"))
	creds := credentials.NewManager(sessions, client, q, credentials.Config{Principal: username}, logger)
	rc := upstream.NewResilientClient(creds, q, nil, logger)

	ordersStore := orders.NewStore(clients.DynamoDB, os.Getenv("ORDERS_TABLE"))
	syncSvc := orders.NewSyncService(ordersStore, rc, client, logger, metrics)

	p := NewProcessor(ordersStore, syncSvc, logger)

	// If RUN_LOCAL=true, simulate a single SQS event for local testing.
	if os.Getenv("RUN_LOCAL") == "true" {
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"all":true,"correlation_id":"local-run"}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{Body: testBody},
			},
		}
		if err := p.Handle(context.Background(), event); err != nil {
			logger.Fatalw("local handler error", "error", err)
		}
		return
	}

	lambda.Start(p.Handle)
}
