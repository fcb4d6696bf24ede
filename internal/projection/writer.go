package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/aite550659-max/agent-trust-protocol/internal/logger"
	"github.com/aite550659-max/agent-trust-protocol/internal/mirror"
	"github.com/aite550659-max/agent-trust-protocol/internal/parser"
)

// Writer materializes parsed messages. Each Apply is one atomic unit:
// substrate record, projection effect, and cursor advance commit together
// or not at all, so a crash can never leave the cursor ahead of the data.
type Writer struct {
	db  *sql.DB
	log *logger.Logger
}

// NewWriter creates a projection writer on the given connection pool.
func NewWriter(db *sql.DB, log *logger.Logger) *Writer {
	return &Writer{
		db:  db,
		log: log.WithComponent("projection-writer"),
	}
}

// Apply records a received message and, if it validated against a known
// schema, applies its projection, then advances the topic cursor. A message
// already present in hcs_messages (same topic and sequence number) is a
// duplicate delivery: the whole unit becomes a no-op.
func (w *Writer) Apply(ctx context.Context, msg mirror.Message, parsed parser.Result) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			w.log.Errorf("failed to rollback transaction: %v", err)
		}
	}()

	inserted, err := w.insertMessage(ctx, tx, msg, parsed)
	if err != nil {
		return err
	}
	if !inserted {
		w.log.Debugw("duplicate message skipped",
			"topic", msg.TopicID,
			"sequence", msg.SequenceNumber,
		)
		return nil
	}

	if parsed.Validated() {
		if err := w.project(ctx, tx, msg, parsed); err != nil {
			return err
		}
	}

	if err := w.upsertCursor(ctx, tx, msg); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (w *Writer) insertMessage(ctx context.Context, tx *sql.Tx, msg mirror.Message, parsed parser.Result) (bool, error) {
	const query = `
		INSERT INTO hcs_messages
			(topic_id, consensus_timestamp, sequence_number, payer_account_id,
			 message_base64, decoded_json, message_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (topic_id, sequence_number) DO NOTHING
	`

	decoded, err := jsonArg(parsed.Decoded)
	if err != nil {
		return false, err
	}

	result, err := tx.ExecContext(ctx, query,
		msg.TopicID,
		msg.ConsensusTimestamp,
		msg.SequenceNumber,
		nullableString(msg.PayerAccountID),
		msg.Base64Contents,
		decoded,
		nullableString(parsed.Kind),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert substrate record: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert outcome: %w", err)
	}

	return affected > 0, nil
}

func (w *Writer) upsertCursor(ctx context.Context, tx *sql.Tx, msg mirror.Message) error {
	const query = `
		INSERT INTO sync_cursors (topic_id, last_timestamp, last_sequence_number, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (topic_id) DO UPDATE SET
			last_timestamp = EXCLUDED.last_timestamp,
			last_sequence_number = EXCLUDED.last_sequence_number,
			updated_at = now()
		WHERE sync_cursors.last_sequence_number < EXCLUDED.last_sequence_number
	`

	if _, err := tx.ExecContext(ctx, query, msg.TopicID, msg.ConsensusTimestamp, msg.SequenceNumber); err != nil {
		return fmt.Errorf("failed to advance cursor: %w", err)
	}

	return nil
}

func (w *Writer) project(ctx context.Context, tx *sql.Tx, msg mirror.Message, parsed parser.Result) error {
	switch ev := parsed.Event.(type) {
	case *parser.AgentInitEvent:
		return w.applyAgentInit(ctx, tx, ev)
	case *parser.ActionEvent:
		return w.applyAction(ctx, tx, msg, ev, parsed.Decoded)
	case *parser.TransactionEvent:
		return w.applyTransaction(ctx, tx, msg, ev, parsed.Decoded)
	case *parser.RentalInitiatedEvent:
		return w.applyRentalInitiated(ctx, tx, ev)
	case *parser.RentalCompletedEvent:
		return w.applyRentalCompleted(ctx, tx, ev)
	case *parser.CommsEvent:
		return w.applyComms(ctx, tx, msg, ev)
	default:
		// Classified but carrying no projector; the substrate record is the
		// full materialization.
		return nil
	}
}

func (w *Writer) applyAgentInit(ctx context.Context, tx *sql.Tx, ev *parser.AgentInitEvent) error {
	const query = `
		INSERT INTO agents
			(agent_id, agent_name, platform, version, operating_account,
			 first_seen_at, last_seen_at, metadata)
		VALUES ($1, $2, $3, $4, $5, now(), now(), $6)
		ON CONFLICT (agent_id) DO UPDATE SET
			agent_name = EXCLUDED.agent_name,
			platform = EXCLUDED.platform,
			version = EXCLUDED.version,
			operating_account = EXCLUDED.operating_account,
			metadata = EXCLUDED.metadata,
			last_seen_at = now()
	`

	metadata, err := jsonArg(ev.Metadata)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, query,
		ev.AgentID,
		ev.AgentName,
		ev.Platform,
		nullableString(ev.Version),
		nullableString(ev.OperatingAccount),
		metadata,
	); err != nil {
		return fmt.Errorf("failed to upsert agent %s: %w", ev.AgentID, err)
	}

	return nil
}

func (w *Writer) applyAction(
	ctx context.Context, tx *sql.Tx, msg mirror.Message, ev *parser.ActionEvent, decoded map[string]any,
) error {
	const query = `
		INSERT INTO agent_events
			(agent_id, event_type, session_key, action, reasoning, previous_hash,
			 timestamp, consensus_timestamp, raw_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
	`

	action, err := json.Marshal(ev.Action)
	if err != nil {
		return fmt.Errorf("failed to encode action detail: %w", err)
	}
	rawData, err := jsonArg(decoded)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, query,
		ev.AgentID,
		parser.KindAction,
		ev.SessionKey,
		string(action),
		nullableString(ev.Reasoning),
		nullableString(ev.PreviousHash),
		ev.Timestamp,
		msg.ConsensusTimestamp,
		rawData,
	); err != nil {
		return fmt.Errorf("failed to append action event: %w", err)
	}

	return w.touchAgent(ctx, tx, ev.AgentID)
}

func (w *Writer) applyTransaction(
	ctx context.Context, tx *sql.Tx, msg mirror.Message, ev *parser.TransactionEvent, decoded map[string]any,
) error {
	const query = `
		INSERT INTO agent_events
			(agent_id, event_type, transaction_id, transaction_type, details,
			 reasoning, previous_hash, timestamp, consensus_timestamp, raw_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
	`

	rawData, err := jsonArg(decoded)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, query,
		ev.AgentID,
		parser.KindTransaction,
		ev.TransactionID,
		ev.TransactionType,
		ev.Details,
		ev.Reasoning,
		nullableString(ev.PreviousHash),
		ev.Timestamp,
		msg.ConsensusTimestamp,
		rawData,
	); err != nil {
		return fmt.Errorf("failed to append transaction event: %w", err)
	}

	return w.touchAgent(ctx, tx, ev.AgentID)
}

// touchAgent advances last_seen for the referenced agent. An unknown agent
// is left uncreated; the event row still records the activity.
func (w *Writer) touchAgent(ctx context.Context, tx *sql.Tx, agentID string) error {
	const query = `UPDATE agents SET last_seen_at = now() WHERE agent_id = $1`

	if _, err := tx.ExecContext(ctx, query, agentID); err != nil {
		return fmt.Errorf("failed to touch agent %s: %w", agentID, err)
	}

	return nil
}

func (w *Writer) applyRentalInitiated(ctx context.Context, tx *sql.Tx, ev *parser.RentalInitiatedEvent) error {
	const query = `
		INSERT INTO rentals
			(rental_id, agent_id, renter, escrow_account, stake_usd, buffer_usd,
			 status, initiated_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (rental_id) DO NOTHING
	`

	if _, err := tx.ExecContext(ctx, query,
		ev.RentalID,
		ev.AgentID,
		ev.Renter,
		ev.EscrowAccount,
		ev.StakeUSD.StringFixed(2),
		ev.BufferUSD.StringFixed(2),
		RentalStatusInitiated,
		ev.Timestamp,
	); err != nil {
		return fmt.Errorf("failed to insert rental %s: %w", ev.RentalID, err)
	}

	return nil
}

func (w *Writer) applyRentalCompleted(ctx context.Context, tx *sql.Tx, ev *parser.RentalCompletedEvent) error {
	// The initiation may arrive later in a different backfill window;
	// updating zero rows is a valid outcome and the cursor still advances.
	const query = `
		UPDATE rentals SET
			status = $2,
			total_cost_usd = $3,
			settlement = $4,
			completed_at = $5,
			updated_at = now()
		WHERE rental_id = $1
	`

	// The settlement legs live in a JSONB column and keep the precision
	// they arrived with; only the NUMERIC(10,2) columns are fixed-point.
	settlement, err := json.Marshal(map[string]string{
		"owner":    ev.Settlement.Owner.String(),
		"creator":  ev.Settlement.Creator.String(),
		"network":  ev.Settlement.Network.String(),
		"treasury": ev.Settlement.Treasury.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode settlement: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query,
		ev.RentalID,
		RentalStatusCompleted,
		ev.TotalCostUSD.StringFixed(2),
		string(settlement),
		ev.Timestamp,
	); err != nil {
		return fmt.Errorf("failed to complete rental %s: %w", ev.RentalID, err)
	}

	return nil
}

func (w *Writer) applyComms(ctx context.Context, tx *sql.Tx, msg mirror.Message, ev *parser.CommsEvent) error {
	const query = `
		INSERT INTO agent_comms
			(topic_id, from_agent, to_agent, text, timestamp, consensus_timestamp, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	`

	metadata, err := jsonArg(ev.Metadata)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, query,
		msg.TopicID,
		ev.From,
		nullableString(ev.To),
		ev.Text,
		ev.Timestamp,
		msg.ConsensusTimestamp,
		metadata,
	); err != nil {
		return fmt.Errorf("failed to append comms record: %w", err)
	}

	return nil
}

// jsonArg encodes a document for a JSONB parameter, mapping a nil document
// to SQL NULL.
func jsonArg(doc map[string]any) (any, error) {
	if doc == nil {
		return nil, nil
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSONB argument: %w", err)
	}

	return string(data), nil
}

// nullableString maps the empty string to SQL NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
