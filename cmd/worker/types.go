package main

// WorkerMessage is the sync job payload sent from API -> SQS -> Worker.
// All=true requests a full pass over every syncable order; otherwise OrderID
// names the single order to sync.
type WorkerMessage struct {
	All           bool   `json:"all"`
	OrderID       string `json:"order_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}
