package projection

import (
	"time"

	"github.com/shopspring/decimal"
)

// MessageRow is a substrate record in hcs_messages: one row per received
// message, keyed by (topic_id, sequence_number).
type MessageRow struct {
	ID                 int64          `meddler:"id,pk" json:"id"`
	TopicID            string         `meddler:"topic_id" json:"topic_id"`
	ConsensusTimestamp string         `meddler:"consensus_timestamp" json:"consensus_timestamp"`
	SequenceNumber     int64          `meddler:"sequence_number" json:"sequence_number"`
	PayerAccountID     *string        `meddler:"payer_account_id" json:"payer_account_id,omitempty"`
	MessageBase64      string         `meddler:"message_base64" json:"message_base64"`
	DecodedJSON        map[string]any `meddler:"decoded_json,json" json:"decoded_json,omitempty"`
	MessageType        *string        `meddler:"message_type" json:"message_type,omitempty"`
	CreatedAt          time.Time      `meddler:"created_at" json:"created_at"`
}

// CursorRow is the per-topic sync cursor: the largest (consensus_timestamp,
// sequence_number) durably materialized for the topic.
type CursorRow struct {
	TopicID            string    `meddler:"topic_id" json:"topic_id"`
	LastTimestamp      string    `meddler:"last_timestamp" json:"last_timestamp"`
	LastSequenceNumber int64     `meddler:"last_sequence_number" json:"last_sequence_number"`
	UpdatedAt          time.Time `meddler:"updated_at" json:"updated_at"`
}

// AgentRow is a projected agent identity, upserted by AGENT_INIT and
// AGENT_CREATED and touched by every observed activity.
type AgentRow struct {
	AgentID          string         `meddler:"agent_id" json:"agent_id"`
	AgentName        string         `meddler:"agent_name" json:"agent_name"`
	Platform         string         `meddler:"platform" json:"platform"`
	Version          *string        `meddler:"version" json:"version,omitempty"`
	OperatingAccount *string        `meddler:"operating_account" json:"operating_account,omitempty"`
	FirstSeenAt      time.Time      `meddler:"first_seen_at" json:"first_seen_at"`
	LastSeenAt       time.Time      `meddler:"last_seen_at" json:"last_seen_at"`
	Metadata         map[string]any `meddler:"metadata,json" json:"metadata,omitempty"`
}

// AgentEventRow is an append-only audit record of an ACTION or TRANSACTION.
type AgentEventRow struct {
	ID                 int64          `meddler:"id,pk" json:"id"`
	AgentID            string         `meddler:"agent_id" json:"agent_id"`
	EventType          string         `meddler:"event_type" json:"event_type"`
	SessionKey         *string        `meddler:"session_key" json:"session_key,omitempty"`
	TransactionID      *string        `meddler:"transaction_id" json:"transaction_id,omitempty"`
	TransactionType    *string        `meddler:"transaction_type" json:"transaction_type,omitempty"`
	Action             map[string]any `meddler:"action,json" json:"action,omitempty"`
	Reasoning          *string        `meddler:"reasoning" json:"reasoning,omitempty"`
	Details            *string        `meddler:"details" json:"details,omitempty"`
	PreviousHash       *string        `meddler:"previous_hash" json:"previous_hash,omitempty"`
	Timestamp          int64          `meddler:"timestamp" json:"timestamp"`
	ConsensusTimestamp string         `meddler:"consensus_timestamp" json:"consensus_timestamp"`
	RawData            map[string]any `meddler:"raw_data,json" json:"raw_data,omitempty"`
	CreatedAt          time.Time      `meddler:"created_at" json:"created_at"`
}

// RentalRow is a projected rental with the two-state lifecycle
// initiated -> completed.
type RentalRow struct {
	RentalID      string           `meddler:"rental_id" json:"rental_id"`
	AgentID       string           `meddler:"agent_id" json:"agent_id"`
	Renter        *string          `meddler:"renter" json:"renter,omitempty"`
	EscrowAccount *string          `meddler:"escrow_account" json:"escrow_account,omitempty"`
	StakeUSD      *decimal.Decimal `meddler:"stake_usd,numeric" json:"stake_usd,omitempty"`
	BufferUSD     *decimal.Decimal `meddler:"buffer_usd,numeric" json:"buffer_usd,omitempty"`
	TotalCostUSD  *decimal.Decimal `meddler:"total_cost_usd,numeric" json:"total_cost_usd,omitempty"`
	Settlement    map[string]any   `meddler:"settlement,json" json:"settlement,omitempty"`
	Status        string           `meddler:"status" json:"status"`
	InitiatedAt   *int64           `meddler:"initiated_at" json:"initiated_at,omitempty"`
	CompletedAt   *int64           `meddler:"completed_at" json:"completed_at,omitempty"`
	CreatedAt     time.Time        `meddler:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `meddler:"updated_at" json:"updated_at"`
}

// Rental lifecycle states.
const (
	RentalStatusInitiated = "initiated"
	RentalStatusCompleted = "completed"
)

// CommsRow is an append-only agent-to-agent message record.
type CommsRow struct {
	ID                 int64          `meddler:"id,pk" json:"id"`
	TopicID            string         `meddler:"topic_id" json:"topic_id"`
	FromAgent          string         `meddler:"from_agent" json:"from_agent"`
	ToAgent            *string        `meddler:"to_agent" json:"to_agent,omitempty"`
	Text               string         `meddler:"text" json:"text"`
	Timestamp          string         `meddler:"timestamp" json:"timestamp"`
	ConsensusTimestamp string         `meddler:"consensus_timestamp" json:"consensus_timestamp"`
	Metadata           map[string]any `meddler:"metadata,json" json:"metadata,omitempty"`
	CreatedAt          time.Time      `meddler:"created_at" json:"created_at"`
}
