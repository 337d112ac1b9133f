package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/healthorbit/thyrocare-bridge/internal/breaker"
	"github.com/healthorbit/thyrocare-bridge/internal/cart"
	"github.com/healthorbit/thyrocare-bridge/internal/orders"
	"github.com/healthorbit/thyrocare-bridge/internal/queue"
	"github.com/healthorbit/thyrocare-bridge/internal/session"
	"github.com/healthorbit/thyrocare-bridge/internal/upstream"
	"github.com/healthorbit/thyrocare-bridge/internal/validation"
)

// CredentialRefresher forces a fresh upstream login session.
type CredentialRefresher interface {
	RefreshAPIKeys(ctx context.Context) (*session.Session, error)
}

// CartReconciler validates cart pricing against the upstream quote.
type CartReconciler interface {
	ValidateAndAdjustCart(ctx context.Context, items []cart.LineItem, benCount int) (*cart.Quote, error)
}

// OrderSyncer syncs a single order against the upstream summary.
type OrderSyncer interface {
	SyncOrderStatus(ctx context.Context, order *orders.Order) (*orders.SyncResult, error)
}

// OrderGetter loads orders by id.
type OrderGetter interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
}

// JobPublisher hands sync jobs to the worker queue.
type JobPublisher interface {
	SendSyncJob(ctx context.Context, messageBody string, attributes map[string]string) error
}

// HandlerConfig groups dependencies for the API routes.
type HandlerConfig struct {
	Creds      CredentialRefresher
	Reconciler CartReconciler
	Sync       OrderSyncer
	Orders     OrderGetter
	Publisher  JobPublisher
	Breaker    *breaker.Breaker
	Queue      *queue.Queue
	Logger     *zap.SugaredLogger
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":       "ok",
			"breakerState": cfg.Breaker.State(),
			"queueDepth":   cfg.Queue.Depth(),
		})
	})

	r.POST("/admin/thyrocare/login", func(c *gin.Context) {
		ctx := c.Request.Context()

		sess, err := cfg.Creds.RefreshAPIKeys(ctx)
		if err != nil {
			writeUpstreamError(c, cfg.Logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"sessionId":       sess.SessionID,
			"respId":          sess.RespID,
			"apiKeyExpiresAt": sess.APIKeyExpiresAt.Format(time.RFC3339),
		})
	})

	r.POST("/cart/validate", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.ValidateCartRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		items := make([]cart.LineItem, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, cart.LineItem{
				ProductCode:   it.ProductCode,
				ProductType:   it.ProductType,
				Quantity:      it.Quantity,
				OriginalPrice: it.OriginalPrice,
				Discount:      it.Discount,
				ThyrocareRate: it.ThyrocareRate,
			})
		}

		// Reconciliation never blocks checkout: on upstream trouble it falls
		// back to local pricing internally, so an error here is a hard bug.
		quote, err := cfg.Reconciler.ValidateAndAdjustCart(ctx, items, req.BenCount)
		if err != nil {
			cfg.Logger.Errorw("cart reconciliation failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "cart_validation_failed"})
			return
		}

		c.JSON(http.StatusOK, quote)
	})

	r.POST("/admin/orders/sync", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.TriggerSyncRequest
		if c.Request.ContentLength > 0 {
			if err := validation.BindAndValidate(c, &req, v); err != nil {
				return
			}
		}

		correlationID := c.GetHeader("X-Request-Id")
		if correlationID == "" {
			correlationID = uuid.NewString()
		}

		msg := map[string]interface{}{
			"all":            req.OrderID == "",
			"order_id":       req.OrderID,
			"correlation_id": correlationID,
		}
		body, _ := json.Marshal(msg)

		attrs := map[string]string{"correlation_id": correlationID}
		if err := cfg.Publisher.SendSyncJob(ctx, string(body), attrs); err != nil {
			cfg.Logger.Errorw("failed to enqueue sync job", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue_failed"})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"message": "sync scheduled", "correlationId": correlationID})
	})

	r.POST("/admin/orders/:id/sync", func(c *gin.Context) {
		ctx := c.Request.Context()
		orderID := c.Param("id")

		order, err := cfg.Orders.Get(ctx, orderID)
		if err != nil {
			cfg.Logger.Errorw("order lookup failed", "orderId", orderID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "order_lookup_failed"})
			return
		}
		if order == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
			return
		}

		result, err := cfg.Sync.SyncOrderStatus(ctx, order)
		if err != nil {
			writeUpstreamError(c, cfg.Logger, err)
			return
		}

		c.JSON(http.StatusOK, result)
	})
}

// writeUpstreamError maps resilience-layer errors onto HTTP statuses.
func writeUpstreamError(c *gin.Context, logger *zap.SugaredLogger, err error) {
	switch {
	case errors.Is(err, breaker.ErrCircuitOpen):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "upstream_unavailable"})
	case errors.Is(err, upstream.ErrLoginBlocked):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "login_blocked"})
	case errors.Is(err, queue.ErrSaturated):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too_many_pending_requests"})
	case errors.Is(err, upstream.ErrAuthRejected):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "upstream_auth_rejected"})
	default:
		logger.Errorw("upstream request failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream_error"})
	}
}
