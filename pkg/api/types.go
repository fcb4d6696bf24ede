package api

import (
	"time"

	"github.com/aite550659-max/agent-trust-protocol/internal/projection"
	"github.com/aite550659-max/agent-trust-protocol/internal/supervisor"
)

// ListResponse is the envelope for paginated collections.
type ListResponse struct {
	Items      interface{}      `json:"items"`
	Pagination PaginationResult `json:"pagination"`
}

// PaginationResult contains pagination metadata.
type PaginationResult struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// HealthResponse surfaces per-topic sync and supervisor status.
type HealthResponse struct {
	Status    string        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Topics    []TopicHealth `json:"topics"`
}

// TopicHealth combines a topic's supervisor state with its durable cursor.
// A stalled cursor shows up as a stale updated_at next to a climbing
// reconnect counter.
type TopicHealth struct {
	TopicID            string            `json:"topic_id"`
	Status             supervisor.Status `json:"status"`
	ReconnectAttempts  int               `json:"reconnect_attempts"`
	LastErrorMessage   string            `json:"last_error_message,omitempty"`
	LastTimestamp      string            `json:"last_timestamp,omitempty"`
	LastSequenceNumber int64             `json:"last_sequence_number,omitempty"`
	CursorUpdatedAt    *time.Time        `json:"cursor_updated_at,omitempty"`
}

// AddTopicRequest registers a topic at runtime.
type AddTopicRequest struct {
	TopicID string `json:"topic_id"`
}

// AddTopicResponse acknowledges a topic registration.
type AddTopicResponse struct {
	TopicID string `json:"topic_id"`
	Topics  int    `json:"topics"`
}

// Aliases so the swagger annotations can reference the row types without
// reaching into internal packages from generated docs.
type (
	Agent      = projection.AgentRow
	AgentEvent = projection.AgentEventRow
	Rental     = projection.RentalRow
	Comms      = projection.CommsRow
	Message    = projection.MessageRow
)
