package orders

import "time"

// Local order statuses. Transitions are one-directional: an order never
// moves back from a terminal or later status.
const (
	StatusPending   = "PENDING"
	StatusCreated   = "CREATED"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

// Upstream (Thyrocare) order statuses this layer recognizes. Anything else
// is treated as "in progress".
const (
	UpstreamStatusDone   = "DONE"
	UpstreamStatusFailed = "FAILED"
)

// statusRank orders local statuses; a transition is only applied when it
// strictly increases the rank.
var statusRank = map[string]int{
	StatusPending:   0,
	StatusCreated:   1,
	StatusCompleted: 2,
	StatusFailed:    2,
	StatusCancelled: 2,
}

// IsTerminal reports whether a local status admits no further transitions.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusCancelled
}

// StatusEvent is one entry in the append-only upstream status history.
type StatusEvent struct {
	Status    string    `dynamodbav:"status" json:"status"`
	Timestamp time.Time `dynamodbav:"timestamp" json:"timestamp"`
	Note      string    `dynamodbav:"note,omitempty" json:"note,omitempty"`
}

// ThyrocareInfo is the upstream-tracking sub-record of an Order.
type ThyrocareInfo struct {
	OrderNo       string        `dynamodbav:"order_no" json:"orderNo"`
	Status        string        `dynamodbav:"status" json:"status"`
	StatusHistory []StatusEvent `dynamodbav:"status_history,omitempty" json:"statusHistory,omitempty"`
	RetryCount    int           `dynamodbav:"retry_count,omitempty" json:"retryCount,omitempty"`
	LastSyncedAt  time.Time     `dynamodbav:"last_synced_at,omitempty" json:"lastSyncedAt,omitempty"`
	// Response keeps the last raw upstream payload for audit.
	Response string `dynamodbav:"response,omitempty" json:"-"`
}

// Report is one beneficiary's report pointer, upserted during sync.
type Report struct {
	BeneficiaryName  string `dynamodbav:"beneficiary_name" json:"beneficiaryName"`
	LeadID           string `dynamodbav:"lead_id" json:"leadId"`
	URL              string `dynamodbav:"url" json:"url"`
	ReportDownloaded bool   `dynamodbav:"report_downloaded" json:"reportDownloaded"`
}

// Order represents the item stored in the orders DynamoDB table.
type Order struct {
	OrderID    string         `dynamodbav:"order_id" json:"orderId"` // PK
	CustomerID string         `dynamodbav:"customer_id,omitempty" json:"customerId,omitempty"`
	Status     string         `dynamodbav:"status" json:"status"`
	Amount     float64        `dynamodbav:"amount" json:"amount"`
	BenCount   int            `dynamodbav:"ben_count,omitempty" json:"benCount,omitempty"`
	Thyrocare  *ThyrocareInfo `dynamodbav:"thyrocare,omitempty" json:"thyrocare,omitempty"`
	Reports    []Report       `dynamodbav:"reports,omitempty" json:"reports,omitempty"`
	CreatedAt  time.Time      `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt  time.Time      `dynamodbav:"updated_at" json:"updatedAt"`
}
