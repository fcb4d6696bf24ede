package parser

import (
	"github.com/shopspring/decimal"
)

// Message kinds recognized by the classifier. Unrecognized `type` strings
// are preserved verbatim, so the set of kinds observed in the database is
// open even though projection only handles the kinds below.
const (
	KindAgentInit       = "AGENT_INIT"
	KindAgentCreated    = "AGENT_CREATED"
	KindAction          = "ACTION"
	KindTransaction     = "TRANSACTION"
	KindRentalInitiated = "RENTAL_INITIATED"
	KindRentalCompleted = "RENTAL_COMPLETED"
	KindComms           = "COMMS"
	KindUnknown         = "unknown"
)

// AgentInitEvent announces an agent coming online or being registered.
// Emitted with type AGENT_INIT or AGENT_CREATED.
type AgentInitEvent struct {
	Type             string         `json:"type"`
	AgentID          string         `json:"agent_id"`
	AgentName        string         `json:"agent_name"`
	Platform         string         `json:"platform"`
	Version          string         `json:"version,omitempty"`
	OperatingAccount string         `json:"operating_account,omitempty"`
	Timestamp        int64          `json:"timestamp"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// ActionDetail describes the tool invocation carried by an ACTION event.
type ActionDetail struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
	Result     any            `json:"result"`
}

// ActionEvent records a single tool action taken by an agent.
type ActionEvent struct {
	Type         string       `json:"type"`
	AgentID      string       `json:"agent_id"`
	SessionKey   string       `json:"session_key"`
	Action       ActionDetail `json:"action"`
	Reasoning    string       `json:"reasoning,omitempty"`
	PreviousHash string       `json:"previous_hash,omitempty"`
	Timestamp    int64        `json:"timestamp"`
}

// TransactionEvent records an on-ledger transaction performed by an agent.
type TransactionEvent struct {
	Type            string  `json:"type"`
	AgentID         string  `json:"agent_id"`
	TransactionType string  `json:"transaction_type"`
	TransactionID   string  `json:"transaction_id"`
	Details         string  `json:"details"`
	Reasoning       *string `json:"reasoning,omitempty"`
	PreviousHash    string  `json:"previous_hash,omitempty"`
	Timestamp       int64   `json:"timestamp"`
}

// RentalInitiatedEvent opens a rental escrow for an agent.
type RentalInitiatedEvent struct {
	Type          string          `json:"type"`
	AgentID       string          `json:"agent_id"`
	RentalID      string          `json:"rental_id"`
	Renter        string          `json:"renter"`
	EscrowAccount string          `json:"escrow_account"`
	StakeUSD      decimal.Decimal `json:"stake_usd"`
	BufferUSD     decimal.Decimal `json:"buffer_usd"`
	Timestamp     int64           `json:"timestamp"`
}

// Settlement is the four-way split of a completed rental's cost.
type Settlement struct {
	Owner    decimal.Decimal `json:"owner"`
	Creator  decimal.Decimal `json:"creator"`
	Network  decimal.Decimal `json:"network"`
	Treasury decimal.Decimal `json:"treasury"`
}

// RentalCompletedEvent settles a previously initiated rental.
type RentalCompletedEvent struct {
	Type         string          `json:"type"`
	RentalID     string          `json:"rental_id"`
	TotalCostUSD decimal.Decimal `json:"total_cost_usd"`
	Settlement   Settlement      `json:"settlement"`
	Timestamp    int64           `json:"timestamp"`
}

// CommsEvent is an agent-to-agent message. It carries no `type`
// discriminator; classification is structural on {from, text, timestamp}.
// Its timestamp is an ISO-8601-like string, preserved as given.
type CommsEvent struct {
	From      string         `json:"from"`
	To        string         `json:"to,omitempty"`
	Text      string         `json:"text"`
	Timestamp string         `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Result is the outcome of running a payload through the parse pipeline.
// Each stage degrades independently: a payload that fails base64 or JSON
// decoding still produces a Result, just with fewer fields populated.
type Result struct {
	// Contents is the decoded payload bytes; nil when the wire form was
	// not valid base64.
	Contents []byte

	// Decoded is the payload as a JSON mapping; nil when the payload was
	// not a UTF-8 JSON object.
	Decoded map[string]any

	// Kind is the classification label. Empty when decoding failed
	// entirely, "unknown" when the document had no recognizable shape,
	// otherwise the discriminator value (preserved verbatim for
	// unrecognized type strings).
	Kind string

	// Event is the typed event when schema validation succeeded, one of
	// the *Event structs above. Nil otherwise.
	Event any
}

// Validated reports whether the payload matched a known event schema.
func (r *Result) Validated() bool {
	return r.Event != nil
}
