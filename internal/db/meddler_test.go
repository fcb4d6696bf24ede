package db

import (
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONMeddlerRoundTrip(t *testing.T) {
	m := JSONMeddler{}

	saved, err := m.PreWrite(map[string]any{"region": "eu", "tier": float64(2)})
	require.NoError(t, err)

	var doc map[string]any
	scan := &sql.NullString{String: saved.(string), Valid: true}
	require.NoError(t, m.PostRead(&doc, scan))

	assert.Equal(t, "eu", doc["region"])
	assert.Equal(t, float64(2), doc["tier"])
}

func TestJSONMeddlerNull(t *testing.T) {
	m := JSONMeddler{}

	saved, err := m.PreWrite(map[string]any(nil))
	require.NoError(t, err)
	assert.Nil(t, saved)

	var doc map[string]any
	require.NoError(t, m.PostRead(&doc, &sql.NullString{}))
	assert.Nil(t, doc)
}

func TestJSONMeddlerRejectsWrongTypes(t *testing.T) {
	m := JSONMeddler{}

	_, err := m.PreWrite("not a map")
	require.Error(t, err)

	var wrong string
	require.Error(t, m.PostRead(&wrong, &sql.NullString{Valid: true, String: "{}"}))
}

func TestDecimalMeddlerFixedPoint(t *testing.T) {
	m := DecimalMeddler{}

	val := decimal.RequireFromString("7.5")
	saved, err := m.PreWrite(val)
	require.NoError(t, err)
	assert.Equal(t, "7.50", saved)

	var out decimal.Decimal
	require.NoError(t, m.PostRead(&out, &sql.NullString{Valid: true, String: "7.50"}))
	assert.True(t, out.Equal(val))
}

func TestDecimalMeddlerNullablePointer(t *testing.T) {
	m := DecimalMeddler{}

	saved, err := m.PreWrite((*decimal.Decimal)(nil))
	require.NoError(t, err)
	assert.Nil(t, saved)

	var out *decimal.Decimal
	require.NoError(t, m.PostRead(&out, &sql.NullString{}))
	assert.Nil(t, out)

	require.NoError(t, m.PostRead(&out, &sql.NullString{Valid: true, String: "10.00"}))
	require.NotNil(t, out)
	assert.Equal(t, "10.00", out.StringFixed(2))
}
