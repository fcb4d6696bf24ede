package projection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/russross/meddler"
)

// Cursor returns the last durably materialized (consensus_timestamp,
// sequence_number) for the topic. A topic that has never been ingested
// yields an empty timestamp and sequence zero.
func (w *Writer) Cursor(ctx context.Context, topicID string) (string, int64, error) {
	var row CursorRow
	err := meddler.QueryRow(w.db, &row, `SELECT * FROM sync_cursors WHERE topic_id = $1`, topicID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to load cursor for topic %s: %w", topicID, err)
	}

	return row.LastTimestamp, row.LastSequenceNumber, nil
}
