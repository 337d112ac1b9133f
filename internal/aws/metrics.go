package aws

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// MetricsEmitter publishes integration-layer metrics to CloudWatch:
// breaker state transitions, queue depth, sync summaries, pricing fallbacks.
// A nil client makes every method a no-op, which tests rely on.
type MetricsEmitter struct {
	client    CloudWatchAPI
	namespace string
	logger    *zap.SugaredLogger
	nowFunc   func() time.Time
}

// NewMetricsEmitter returns an emitter publishing under the given namespace.
func NewMetricsEmitter(client CloudWatchAPI, namespace string, logger *zap.SugaredLogger) *MetricsEmitter {
	return &MetricsEmitter{
		client:    client,
		namespace: namespace,
		logger:    logger,
		nowFunc:   time.Now,
	}
}

// EmitCount publishes a single Count datum with optional dimensions.
// Emission failures are logged, never returned: metrics must not break the
// call path they observe.
func (m *MetricsEmitter) EmitCount(name string, value float64, dims map[string]string) {
	if m == nil || m.client == nil {
		return
	}
	ts := m.nowFunc()
	datum := cwtypes.MetricDatum{
		MetricName: awsString(name),
		Timestamp:  &ts,
		Unit:       cwtypes.StandardUnitCount,
		Value:      &value,
	}
	for k, v := range dims {
		datum.Dimensions = append(datum.Dimensions, cwtypes.Dimension{
			Name:  awsString(k),
			Value: awsString(v),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  &m.namespace,
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil && m.logger != nil {
		m.logger.Warnw("failed to put metric data", "metric", name, "error", err)
	}
}

// EmitBreakerTransition records a circuit breaker state change.
func (m *MetricsEmitter) EmitBreakerTransition(name, from, to string) {
	m.EmitCount("BreakerStateChange", 1, map[string]string{
		"Breaker": name,
		"From":    from,
		"To":      to,
	})
}

// EmitQueueDepth records the pending depth of the upstream request queue.
func (m *MetricsEmitter) EmitQueueDepth(depth int) {
	m.EmitCount("RequestQueueDepth", float64(depth), nil)
}

// EmitPricingFallback records a cart that was priced locally because the
// upstream quote was unavailable.
func (m *MetricsEmitter) EmitPricingFallback() {
	m.EmitCount("CartPricingFallback", 1, nil)
}

// EmitSyncSummary records the outcome of a full order-status sync run.
func (m *MetricsEmitter) EmitSyncSummary(total, successful, failed, statusChanged int) {
	m.EmitCount("OrderSyncTotal", float64(total), nil)
	m.EmitCount("OrderSyncSuccessful", float64(successful), nil)
	m.EmitCount("OrderSyncFailed", float64(failed), nil)
	m.EmitCount("OrderSyncStatusChanged", float64(statusChanged), nil)
}
