// Package cart reconciles locally-computed cart pricing against the
// upstream's authoritative quote. Checkout never hard-fails on upstream
// unavailability: pricing silently degrades to local totals instead.
package cart

import (
	"context"

	"github.com/healthorbit/thyrocare-bridge/internal/queue"
	"github.com/healthorbit/thyrocare-bridge/internal/upstream"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// DefaultMinOrderValue is the product total under which the upstream
	// levies a collection charge.
	DefaultMinOrderValue = 300
	// DefaultCollectionCharge is the fixed surcharge for small orders.
	DefaultCollectionCharge = 200
)

// Requester is the resilience facade the reconciler calls through.
type Requester interface {
	MakeRequest(ctx context.Context, pri queue.Priority, call upstream.APICall) (upstream.Payload, error)
}

// QuoteClient performs the raw upstream pricing call.
type QuoteClient interface {
	CartQuote(ctx context.Context, apiKey string, req upstream.CartQuoteRequest) (*upstream.CartQuoteResponse, error)
}

// FallbackMetrics records pricing fallbacks; satisfied by aws.MetricsEmitter.
type FallbackMetrics interface {
	EmitPricingFallback()
}

// Config tunes a Reconciler.
type Config struct {
	MinOrderValue    float64
	CollectionCharge float64
}

// Reconciler validates and adjusts a cart against the upstream quote.
type Reconciler struct {
	rc      Requester
	client  QuoteClient
	cfg     Config
	logger  *zap.SugaredLogger
	metrics FallbackMetrics
}

// NewReconciler wires a Reconciler. metrics may be nil.
func NewReconciler(rc Requester, client QuoteClient, cfg Config, logger *zap.SugaredLogger, metrics FallbackMetrics) *Reconciler {
	if cfg.MinOrderValue <= 0 {
		cfg.MinOrderValue = DefaultMinOrderValue
	}
	if cfg.CollectionCharge <= 0 {
		cfg.CollectionCharge = DefaultCollectionCharge
	}
	return &Reconciler{rc: rc, client: client, cfg: cfg, logger: logger, metrics: metrics}
}

// ValidateAndAdjustCart submits the cart for an upstream quote, rescales the
// admin discounts so their aggregate never exceeds the upstream margin, and
// computes the charge breakdown. An upstream failure degrades to local
// pricing and never returns an error for it.
func (r *Reconciler) ValidateAndAdjustCart(ctx context.Context, items []LineItem, benCount int) (*Quote, error) {
	if benCount < 1 {
		benCount = 1
	}

	quoteReq := upstream.CartQuoteRequest{BenCount: benCount}
	for _, it := range items {
		quoteReq.Products = append(quoteReq.Products, upstream.QuoteProduct{
			ProductCode: it.ProductCode,
			ProductType: it.ProductType,
			Quantity:    it.Quantity,
			Rate:        it.OriginalPrice - it.Discount,
		})
	}

	payload, err := r.rc.MakeRequest(ctx, queue.PriorityNormal,
		func(ctx context.Context, apiKey string) (upstream.Payload, error) {
			return r.client.CartQuote(ctx, apiKey, quoteReq)
		})
	if err != nil {
		// graceful degradation: checkout must not block on upstream health
		r.logger.Warnw("cart quote unavailable, falling back to local pricing", "error", err)
		if r.metrics != nil {
			r.metrics.EmitPricingFallback()
		}
		quote := r.buildQuote(items, benCount, decimal.NewFromInt(1))
		quote.PricingSource = SourceLocal
		return quote, nil
	}

	resp := payload.(*upstream.CartQuoteResponse)
	margin := decimal.NewFromFloat(resp.Margin)
	ratio := discountRatio(items, benCount, margin)

	quote := r.buildQuote(items, benCount, ratio)
	quote.PricingSource = SourceUpstream
	quote.Payable = resp.Payable
	quote.Margin = resp.Margin
	return quote, nil
}

// discountRatio returns margin/totalAdminDiscount capped at 1. The single
// global ratio scales every line proportionally, so no item is zeroed out
// while the aggregate stays within what upstream will honor.
func discountRatio(items []LineItem, benCount int, margin decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	ben := decimal.NewFromInt(int64(benCount))
	for _, it := range items {
		line := decimal.NewFromFloat(it.Discount).
			Mul(decimal.NewFromInt(int64(it.Quantity))).
			Mul(ben)
		total = total.Add(line)
	}
	one := decimal.NewFromInt(1)
	if total.IsZero() || total.LessThanOrEqual(margin) {
		return one
	}
	return margin.Div(total)
}

// buildQuote rescales each line's discount by ratio (rounding once per line,
// to the nearest currency unit), recomputes selling prices, and applies the
// collection-charge rule.
func (r *Reconciler) buildQuote(items []LineItem, benCount int, ratio decimal.Decimal) *Quote {
	one := decimal.NewFromInt(1)
	ben := decimal.NewFromInt(int64(benCount))

	adjusted := make([]LineItem, len(items))
	productTotal := decimal.Zero
	for i, it := range items {
		discount := decimal.NewFromFloat(it.Discount)
		if ratio.LessThan(one) {
			discount = discount.Mul(ratio).Round(0)
		}
		original := decimal.NewFromFloat(it.OriginalPrice)
		// clamp: 0 <= discount <= originalPrice
		if discount.IsNegative() {
			discount = decimal.Zero
		}
		if discount.GreaterThan(original) {
			discount = original
		}
		selling := original.Sub(discount)

		out := it
		out.Discount, _ = discount.Float64()
		out.SellingPrice, _ = selling.Float64()
		adjusted[i] = out

		productTotal = productTotal.Add(selling.Mul(decimal.NewFromInt(int64(it.Quantity))).Mul(ben))
	}

	quote := &Quote{Items: adjusted}
	quote.ProductTotal, _ = productTotal.Float64()
	if productTotal.LessThan(decimal.NewFromFloat(r.cfg.MinOrderValue)) {
		quote.CollectionCharge = r.cfg.CollectionCharge
	}
	quote.GrandTotal, _ = productTotal.Add(decimal.NewFromFloat(quote.CollectionCharge)).Float64()
	return quote
}
