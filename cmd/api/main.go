package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/healthorbit/thyrocare-bridge/internal/aws"
	"github.com/healthorbit/thyrocare-bridge/internal/breaker"
	"github.com/healthorbit/thyrocare-bridge/internal/cart"
	"github.com/healthorbit/thyrocare-bridge/internal/credentials"
	"github.com/healthorbit/thyrocare-bridge/internal/handlers"
	"github.com/healthorbit/thyrocare-bridge/internal/orders"
	"github.com/healthorbit/thyrocare-bridge/internal/queue"
	"github.com/healthorbit/thyrocare-bridge/internal/session"
	"github.com/healthorbit/thyrocare-bridge/internal/upstream"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	handlers.RegisterRoutes(r, cfg)

	return r
}

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
	reconciler := cart.NewReconciler(rc, client, cart.Config{}, logger, metrics)
	syncSvc := orders.NewSyncService(ordersStore, rc, client, logger, metrics)
	publisher := aws.NewPublisher(clients.SQS, os.Getenv("SYNC_QUEUE_URL"))

	cfg := handlers.HandlerConfig{
		Creds:      creds,
		Reconciler: reconciler,
		Sync:       syncSvc,
		Orders:     ordersStore,
		Publisher:  publisher,
		Breaker:    br,
		Queue:      q,
		Logger:     logger,
	}

	r := setupRouter(cfg)

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if os.Getenv("RUN_LOCAL") == "true" {
		addr := ":8080"
		logger.Infow("running local server", "addr", addr)
		if err := r.Run(addr); err != nil {
			logger.Fatalw("failed to run local server", "error", err)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
