//nolint:dupl
package db

import (
	"database/sql"
	"fmt"

	"github.com/russross/meddler"
	"github.com/shopspring/decimal"
)

func init() {
	// Register custom meddler converter for NUMERIC money columns
	meddler.Register("numeric", DecimalMeddler{})
}

// DecimalMeddler handles conversion between decimal.Decimal and NUMERIC
// database columns. Values are written as fixed-point strings with two
// fractional digits so USD amounts round-trip exactly.
type DecimalMeddler struct{}

func (d DecimalMeddler) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	// Use sql.NullString to handle NULL values
	return new(sql.NullString), nil
}

func (d DecimalMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return fmt.Errorf("expected *sql.NullString, got %T", scanTarget)
	}

	// Handle pointer to decimal.Decimal
	if ptr, ok := fieldAddr.(**decimal.Decimal); ok {
		if !ns.Valid {
			*ptr = nil
			return nil
		}
		val, err := decimal.NewFromString(ns.String)
		if err != nil {
			return fmt.Errorf("failed to parse NUMERIC column: %w", err)
		}
		*ptr = &val
		return nil
	}

	// Handle decimal.Decimal directly
	if ptr, ok := fieldAddr.(*decimal.Decimal); ok {
		if !ns.Valid {
			*ptr = decimal.Zero
			return nil
		}
		val, err := decimal.NewFromString(ns.String)
		if err != nil {
			return fmt.Errorf("failed to parse NUMERIC column: %w", err)
		}
		*ptr = val
		return nil
	}

	return fmt.Errorf("expected *decimal.Decimal or **decimal.Decimal, got %T", fieldAddr)
}

func (d DecimalMeddler) PreWrite(field interface{}) (saveValue interface{}, err error) {
	// Handle pointer to decimal.Decimal
	if ptr, ok := field.(*decimal.Decimal); ok {
		if ptr == nil {
			return nil, nil
		}
		return ptr.StringFixed(2), nil
	}

	// Handle decimal.Decimal directly
	if val, ok := field.(decimal.Decimal); ok {
		return val.StringFixed(2), nil
	}

	return nil, fmt.Errorf("expected decimal.Decimal or *decimal.Decimal, got %T", field)
}
