package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/aite550659-max/agent-trust-protocol/internal/db" // register meddler converters
	"github.com/aite550659-max/agent-trust-protocol/internal/logger"
	"github.com/aite550659-max/agent-trust-protocol/internal/metrics"
	"github.com/aite550659-max/agent-trust-protocol/internal/projection"
	"github.com/russross/meddler"
)

// ErrNotFound is returned when a keyed lookup matches no row.
var ErrNotFound = errors.New("not found")

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

// PageParams is limit/offset pagination for list queries.
type PageParams struct {
	Limit  int
	Offset int
}

// Normalize applies the default and maximum page limits.
func (p *PageParams) Normalize() {
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
}

// ReadStore serves the read API from the projected tables. It never
// writes; the projection writer is the only mutator.
type ReadStore struct {
	db  *sql.DB
	log *logger.Logger
}

// New creates a ReadStore on the shared connection pool.
func New(db *sql.DB, log *logger.Logger) *ReadStore {
	return &ReadStore{
		db:  db,
		log: log.WithComponent("read-store"),
	}
}

// ListAgents returns a page of agents ordered by most recent activity,
// plus the total count.
func (s *ReadStore) ListAgents(ctx context.Context, page PageParams) ([]*projection.AgentRow, int, error) {
	page.Normalize()
	defer s.observe("list_agents", time.Now())

	total, err := s.count(ctx, `SELECT count(*) FROM agents`)
	if err != nil {
		return nil, 0, err
	}

	var rows []*projection.AgentRow
	err = meddler.QueryAll(s.db, &rows, `
		SELECT * FROM agents
		ORDER BY last_seen_at DESC
		LIMIT $1 OFFSET $2
	`, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query agents: %w", err)
	}

	return rows, total, nil
}

// GetAgent returns one agent by id, or ErrNotFound.
func (s *ReadStore) GetAgent(ctx context.Context, agentID string) (*projection.AgentRow, error) {
	defer s.observe("get_agent", time.Now())

	var row projection.AgentRow
	err := meddler.QueryRow(s.db, &row, `SELECT * FROM agents WHERE agent_id = $1`, agentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query agent %s: %w", agentID, err)
	}

	return &row, nil
}

// ListAgentEvents returns a page of the agent's audit log in consensus
// order, newest first.
func (s *ReadStore) ListAgentEvents(
	ctx context.Context, agentID string, page PageParams,
) ([]*projection.AgentEventRow, int, error) {
	page.Normalize()
	defer s.observe("list_agent_events", time.Now())

	total, err := s.count(ctx, `SELECT count(*) FROM agent_events WHERE agent_id = $1`, agentID)
	if err != nil {
		return nil, 0, err
	}

	var rows []*projection.AgentEventRow
	err = meddler.QueryAll(s.db, &rows, `
		SELECT * FROM agent_events
		WHERE agent_id = $1
		ORDER BY consensus_timestamp DESC
		LIMIT $2 OFFSET $3
	`, agentID, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query agent events: %w", err)
	}

	return rows, total, nil
}

// ListRentals returns a page of rentals, optionally filtered by status.
func (s *ReadStore) ListRentals(
	ctx context.Context, status string, page PageParams,
) ([]*projection.RentalRow, int, error) {
	page.Normalize()
	defer s.observe("list_rentals", time.Now())

	var (
		total int
		err   error
		rows  []*projection.RentalRow
	)

	if status != "" {
		total, err = s.count(ctx, `SELECT count(*) FROM rentals WHERE status = $1`, status)
		if err != nil {
			return nil, 0, err
		}
		err = meddler.QueryAll(s.db, &rows, `
			SELECT * FROM rentals
			WHERE status = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3
		`, status, page.Limit, page.Offset)
	} else {
		total, err = s.count(ctx, `SELECT count(*) FROM rentals`)
		if err != nil {
			return nil, 0, err
		}
		err = meddler.QueryAll(s.db, &rows, `
			SELECT * FROM rentals
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2
		`, page.Limit, page.Offset)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query rentals: %w", err)
	}

	return rows, total, nil
}

// GetRental returns one rental by id, or ErrNotFound.
func (s *ReadStore) GetRental(ctx context.Context, rentalID string) (*projection.RentalRow, error) {
	defer s.observe("get_rental", time.Now())

	var row projection.RentalRow
	err := meddler.QueryRow(s.db, &row, `SELECT * FROM rentals WHERE rental_id = $1`, rentalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query rental %s: %w", rentalID, err)
	}

	return &row, nil
}

// ListComms returns a page of agent messages, optionally scoped to a topic,
// in consensus order, newest first.
func (s *ReadStore) ListComms(
	ctx context.Context, topicID string, page PageParams,
) ([]*projection.CommsRow, int, error) {
	page.Normalize()
	defer s.observe("list_comms", time.Now())

	var (
		total int
		err   error
		rows  []*projection.CommsRow
	)

	if topicID != "" {
		total, err = s.count(ctx, `SELECT count(*) FROM agent_comms WHERE topic_id = $1`, topicID)
		if err != nil {
			return nil, 0, err
		}
		err = meddler.QueryAll(s.db, &rows, `
			SELECT * FROM agent_comms
			WHERE topic_id = $1
			ORDER BY consensus_timestamp DESC
			LIMIT $2 OFFSET $3
		`, topicID, page.Limit, page.Offset)
	} else {
		total, err = s.count(ctx, `SELECT count(*) FROM agent_comms`)
		if err != nil {
			return nil, 0, err
		}
		err = meddler.QueryAll(s.db, &rows, `
			SELECT * FROM agent_comms
			ORDER BY consensus_timestamp DESC
			LIMIT $1 OFFSET $2
		`, page.Limit, page.Offset)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query comms: %w", err)
	}

	return rows, total, nil
}

// ListMessages returns a page of raw substrate records for one topic in
// ascending sequence order. Within one topic this is a prefix of the true
// stream.
func (s *ReadStore) ListMessages(
	ctx context.Context, topicID string, page PageParams,
) ([]*projection.MessageRow, int, error) {
	page.Normalize()
	defer s.observe("list_messages", time.Now())

	total, err := s.count(ctx, `SELECT count(*) FROM hcs_messages WHERE topic_id = $1`, topicID)
	if err != nil {
		return nil, 0, err
	}

	var rows []*projection.MessageRow
	err = meddler.QueryAll(s.db, &rows, `
		SELECT * FROM hcs_messages
		WHERE topic_id = $1
		ORDER BY sequence_number ASC
		LIMIT $2 OFFSET $3
	`, topicID, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query messages: %w", err)
	}

	return rows, total, nil
}

// Cursors returns every topic's sync cursor. A stalled cursor is visible
// through its stale updated_at.
func (s *ReadStore) Cursors(ctx context.Context) ([]*projection.CursorRow, error) {
	defer s.observe("list_cursors", time.Now())

	var rows []*projection.CursorRow
	err := meddler.QueryAll(s.db, &rows, `SELECT * FROM sync_cursors ORDER BY topic_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cursors: %w", err)
	}

	return rows, nil
}

func (s *ReadStore) count(ctx context.Context, query string, args ...any) (int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return total, nil
}

func (s *ReadStore) observe(operation string, start time.Time) {
	metrics.DBQueryInc(operation)
	metrics.DBQueryDuration(operation, time.Since(start))
}
