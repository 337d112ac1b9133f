package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/healthorbit/thyrocare-bridge/internal/orders"
)

// OrderGetter loads orders by id.
type OrderGetter interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
}

// SyncRunner runs status syncs; satisfied by orders.SyncService.
type SyncRunner interface {
	SyncOrderStatus(ctx context.Context, order *orders.Order) (*orders.SyncResult, error)
	SyncAllOrdersStatus(ctx context.Context) (*orders.SyncSummary, error)
}

// Processor handles SQS sync jobs.
type Processor struct {
	store  OrderGetter
	sync   SyncRunner
	logger *zap.SugaredLogger
}

// NewProcessor wires a Processor.
func NewProcessor(store OrderGetter, sync SyncRunner, logger *zap.SugaredLogger) *Processor {
	return &Processor{store: store, sync: sync, logger: logger}
}

// Handle receives an SQS batch event and processes each message. A returned
// error makes Lambda retry the batch; after enough retries the message lands
// in the DLQ.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.Errorw("worker error", "error", err)
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg WorkerMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}

	p.logger.Infow("received sync job",
		"all", msg.All, "orderId", msg.OrderID, "correlationId", msg.CorrelationID)

	if msg.All {
		summary, err := p.sync.SyncAllOrdersStatus(ctx)
		if err != nil {
			return fmt.Errorf("full sync run failed: %w", err)
		}
		p.logger.Infow("full sync run finished",
			"correlationId", msg.CorrelationID,
			"total", summary.Total,
			"successful", summary.Successful,
			"failed", summary.Failed,
			"statusChanged", summary.StatusChanged)
		return nil
	}

	order, err := p.store.Get(ctx, msg.OrderID)
	if err != nil {
		return fmt.Errorf("failed to fetch order %s: %w", msg.OrderID, err)
	}
	if order == nil {
		// Retrying cannot make a deleted order reappear; drop the message.
		p.logger.Warnw("sync job for unknown order, skipping", "orderId", msg.OrderID)
		return nil
	}

	result, err := p.sync.SyncOrderStatus(ctx, order)
	if err != nil {
		return fmt.Errorf("sync failed for order %s: %w", msg.OrderID, err)
	}

	p.logger.Infow("order synced",
		"orderId", result.OrderID,
		"success", result.Success,
		"statusChanged", result.StatusChanged,
		"oldStatus", result.OldStatus,
		"newStatus", result.NewStatus)
	return nil
}
