package chatbridge

import (
	"context"
	"time"
)

// Request log statuses.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusBlocked = "blocked"
)

// Request log fail reasons.
const (
	FailReasonTimeout      = "timeout"
	FailReasonNetworkError = "network_error"
	FailReasonBlocked      = "blocked"
	FailReasonEmpty        = "empty_response"
	FailReasonUnknownError = "unknown_error"
)

// RequestLog records one model call for auditing.
type RequestLog struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Model       string    `json:"model"`
	Mode        string    `json:"mode"`
	Prompt      string    `json:"prompt"`
	Response    string    `json:"response"`
	FinalStatus string    `json:"final_status"`
	FailReason  string    `json:"fail_reason"`
	ErrorMsg    string    `json:"error_message"`
	Usage       Usage     `json:"usage"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RequestLogger persists request logs. Implementations must tolerate being
// called from concurrent handlers.
type RequestLogger interface {
	AddRequestLog(ctx context.Context, log RequestLog) (*RequestLog, error)
	UpdateRequestLog(ctx context.Context, id string, response string, status string, failReason string, errorMsg string, usage *Usage) error
}

// MigrationRecord tracks a single applied migration.
type MigrationRecord struct {
	Name      string
	Applied   bool
	AppliedAt *time.Time
	Checksum  string
}
