package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/russross/meddler"
)

func init() {
	// Register custom meddler converter for JSONB document columns
	meddler.Register("json", JSONMeddler{})
}

// JSONMeddler handles conversion between map[string]any and JSONB columns.
// A nil map round-trips as SQL NULL.
type JSONMeddler struct{}

func (j JSONMeddler) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	// Use sql.NullString to handle NULL values
	return new(sql.NullString), nil
}

func (j JSONMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return fmt.Errorf("expected *sql.NullString, got %T", scanTarget)
	}

	ptr, ok := fieldAddr.(*map[string]any)
	if !ok {
		return fmt.Errorf("expected *map[string]any, got %T", fieldAddr)
	}

	if !ns.Valid || ns.String == "" {
		*ptr = nil
		return nil
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(ns.String), &doc); err != nil {
		return fmt.Errorf("failed to decode JSONB column: %w", err)
	}
	*ptr = doc

	return nil
}

func (j JSONMeddler) PreWrite(field interface{}) (saveValue interface{}, err error) {
	doc, ok := field.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected map[string]any, got %T", field)
	}

	if doc == nil {
		return nil, nil
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSONB column: %w", err)
	}

	return string(data), nil
}
