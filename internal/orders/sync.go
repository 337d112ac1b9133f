package orders

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/healthorbit/thyrocare-bridge/internal/queue"
	"github.com/healthorbit/thyrocare-bridge/internal/upstream"
	"go.uber.org/zap"
)

// SyncStore is the slice of Store the sync service needs.
type SyncStore interface {
	Put(ctx context.Context, order *Order) error
	ListSyncable(ctx context.Context) ([]Order, error)
}

// Requester is the resilience facade the sync service calls through.
type Requester interface {
	MakeRequest(ctx context.Context, pri queue.Priority, call upstream.APICall) (upstream.Payload, error)
}

// SummaryClient performs the raw upstream order-summary call.
type SummaryClient interface {
	OrderSummary(ctx context.Context, apiKey, orderNo string) (*upstream.OrderSummaryResponse, error)
}

// SyncMetrics records sync-run outcomes; satisfied by aws.MetricsEmitter.
type SyncMetrics interface {
	EmitSyncSummary(total, successful, failed, statusChanged int)
}

// SyncResult reports the outcome of syncing one order.
type SyncResult struct {
	OrderID       string `json:"orderId"`
	Success       bool   `json:"success"`
	StatusChanged bool   `json:"statusChanged"`
	OldStatus     string `json:"oldStatus"`
	NewStatus     string `json:"newStatus"`
}

// SyncSummary aggregates a full sync run.
type SyncSummary struct {
	Total         int           `json:"total"`
	Successful    int           `json:"successful"`
	Failed        int           `json:"failed"`
	StatusChanged int           `json:"statusChanged"`
	StartedAt     time.Time     `json:"startedAt"`
	Duration      time.Duration `json:"duration"`
}

// SyncService polls the upstream order summary and reconciles it into the
// local order's status machine and report records.
type SyncService struct {
	store   SyncStore
	rc      Requester
	client  SummaryClient
	logger  *zap.SugaredLogger
	metrics SyncMetrics
	nowFunc func() time.Time
}

// NewSyncService wires a SyncService. metrics may be nil.
func NewSyncService(store SyncStore, rc Requester, client SummaryClient, logger *zap.SugaredLogger, metrics SyncMetrics) *SyncService {
	return &SyncService{
		store:   store,
		rc:      rc,
		client:  client,
		logger:  logger,
		metrics: metrics,
		nowFunc: time.Now,
	}
}

// SyncOrderStatus reconciles one order against the upstream summary. An
// order without an upstream order number is a non-fatal no-op
// (success=false). Upstream failures leave the order's status untouched and
// report success=false; they never return an error so one bad order cannot
// abort a batch run.
func (s *SyncService) SyncOrderStatus(ctx context.Context, order *Order) (*SyncResult, error) {
	res := &SyncResult{
		OrderID:   order.OrderID,
		OldStatus: order.Status,
		NewStatus: order.Status,
	}
	if order.Thyrocare == nil || order.Thyrocare.OrderNo == "" {
		s.logger.Debugw("order has no upstream order number, skipping sync", "order_id", order.OrderID)
		return res, nil
	}

	orderNo := order.Thyrocare.OrderNo
	payload, err := s.rc.MakeRequest(ctx, queue.PriorityLow,
		func(ctx context.Context, apiKey string) (upstream.Payload, error) {
			return s.client.OrderSummary(ctx, apiKey, orderNo)
		})
	if err != nil {
		s.logger.Warnw("order summary fetch failed", "order_id", order.OrderID, "order_no", orderNo, "error", err)
		order.Thyrocare.RetryCount++
		if putErr := s.store.Put(ctx, order); putErr != nil {
			s.logger.Errorw("failed to persist retry count", "order_id", order.OrderID, "error", putErr)
		}
		return res, nil
	}

	resp := payload.(*upstream.OrderSummaryResponse)
	now := s.nowFunc()
	upstreamStatus := strings.ToUpper(strings.TrimSpace(resp.Status))

	if upstreamStatus != "" && !strings.EqualFold(upstreamStatus, order.Thyrocare.Status) {
		order.Thyrocare.StatusHistory = append(order.Thyrocare.StatusHistory, StatusEvent{
			Status:    upstreamStatus,
			Timestamp: now,
			Note:      "reported by upstream order summary",
		})
		order.Thyrocare.Status = upstreamStatus
		res.StatusChanged = true
	}

	if next := nextLocalStatus(order.Status, upstreamStatus); next != order.Status {
		s.logger.Infow("order status transition",
			"order_id", order.OrderID, "from", order.Status, "to", next, "upstream_status", upstreamStatus)
		order.Status = next
		res.NewStatus = next
		res.StatusChanged = true
	}

	mergeReports(order, resp.Leads)

	order.Thyrocare.LastSyncedAt = now
	if raw, err := json.Marshal(resp); err == nil {
		order.Thyrocare.Response = string(raw)
	}

	if err := s.store.Put(ctx, order); err != nil {
		s.logger.Errorw("failed to persist synced order", "order_id", order.OrderID, "error", err)
		return res, err
	}
	res.Success = true
	return res, nil
}

// SyncAllOrdersStatus syncs every non-terminal order that has an upstream
// order number, sequentially; concurrency toward the upstream is already
// bounded by the shared request queue.
func (s *SyncService) SyncAllOrdersStatus(ctx context.Context) (*SyncSummary, error) {
	start := s.nowFunc()
	list, err := s.store.ListSyncable(ctx)
	if err != nil {
		return nil, err
	}

	summary := &SyncSummary{Total: len(list), StartedAt: start}
	for i := range list {
		res, err := s.SyncOrderStatus(ctx, &list[i])
		switch {
		case err != nil || !res.Success:
			summary.Failed++
		default:
			summary.Successful++
		}
		if res.StatusChanged {
			summary.StatusChanged++
		}
	}
	summary.Duration = s.nowFunc().Sub(start)

	s.logger.Infow("order sync run finished",
		"total", summary.Total,
		"successful", summary.Successful,
		"failed", summary.Failed,
		"status_changed", summary.StatusChanged,
		"duration", summary.Duration)
	if s.metrics != nil {
		s.metrics.EmitSyncSummary(summary.Total, summary.Successful, summary.Failed, summary.StatusChanged)
	}
	return summary, nil
}

// nextLocalStatus maps an upstream status into the local machine without
// ever regressing: DONE -> COMPLETED, FAILED -> FAILED, anything else only
// nudges a PENDING order to CREATED.
func nextLocalStatus(current, upstreamStatus string) string {
	var candidate string
	switch upstreamStatus {
	case UpstreamStatusDone:
		candidate = StatusCompleted
	case UpstreamStatusFailed:
		candidate = StatusFailed
	case "":
		return current
	default:
		if current != StatusPending {
			return current
		}
		candidate = StatusCreated
	}
	if statusRank[candidate] > statusRank[current] {
		return candidate
	}
	return current
}

// mergeReports upserts newly available report URLs per beneficiary, matched
// by name + upstream lead id. A changed URL is updated in place without
// touching the downloaded flag.
func mergeReports(order *Order, leads []upstream.LeadDetail) {
	for _, lead := range leads {
		if lead.ReportURL == "" {
			continue
		}
		found := false
		for i := range order.Reports {
			if order.Reports[i].BeneficiaryName == lead.Name && order.Reports[i].LeadID == lead.LeadID {
				found = true
				if order.Reports[i].URL != lead.ReportURL {
					order.Reports[i].URL = lead.ReportURL
				}
				break
			}
		}
		if !found {
			order.Reports = append(order.Reports, Report{
				BeneficiaryName: lead.Name,
				LeadID:          lead.LeadID,
				URL:             lead.ReportURL,
			})
		}
	}
}
