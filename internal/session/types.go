package session

import "time"

// Session is one acquired Thyrocare credential, persisted in the sessions
// DynamoDB table (PK principal, SK created_at). Sessions are never mutated
// after creation except to flip is_active off when a newer session for the
// same principal supersedes them.
type Session struct {
	Principal string    `dynamodbav:"principal" json:"principal"` // PK
	CreatedAt time.Time `dynamodbav:"created_at" json:"createdAt"`
	// CreatedAtUnix is the sort key: epoch nanos sort correctly as a DynamoDB
	// number, unlike RFC3339Nano strings with trimmed fractional digits.
	CreatedAtUnix    int64     `dynamodbav:"created_at_unix" json:"-"`
	SessionID        string    `dynamodbav:"session_id" json:"sessionId"`
	APIKey           string    `dynamodbav:"api_key" json:"-"` // opaque secret, never serialized out
	AccessToken      string    `dynamodbav:"access_token" json:"-"`
	RespID           string    `dynamodbav:"resp_id" json:"respId,omitempty"`
	IPAddress        string    `dynamodbav:"ip_address,omitempty" json:"ipAddress,omitempty"`
	APIKeyExpiresAt  time.Time `dynamodbav:"api_key_expires_at" json:"apiKeyExpiresAt"`
	SessionExpiresAt time.Time `dynamodbav:"session_expires_at" json:"sessionExpiresAt"`
	IsActive         bool      `dynamodbav:"is_active" json:"isActive"`
}
