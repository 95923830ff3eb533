package postgres

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketfund/internal/domain"
)

func TestListQuery(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	q, args := listQuery("SELECT id FROM funding_actions WHERE market = $1", []any{"0xabc"},
		"created_at", "DESC", domain.ListOpts{Since: &since, Limit: 10, Offset: 20})

	assert.Equal(t,
		"SELECT id FROM funding_actions WHERE market = $1 AND created_at >= $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4",
		q)
	assert.Equal(t, []any{"0xabc", since, 10, 20}, args)
}

func TestListQueryNoOpts(t *testing.T) {
	q, args := listQuery("SELECT 1 FROM audit_log WHERE 1=1", nil, "created_at", "ASC", domain.ListOpts{})
	assert.Equal(t, "SELECT 1 FROM audit_log WHERE 1=1 ORDER BY created_at ASC", q)
	assert.Empty(t, args)
}

func TestNumeric(t *testing.T) {
	big1, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)

	assert.Equal(t, "0", numericText(nil))
	got, err := parseNumeric(numericText(big1))
	require.NoError(t, err)
	assert.Equal(t, 0, got.Cmp(big1))

	_, err = parseNumeric("1.5")
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://explicit", DSN(ClientConfig{DSN: "postgres://explicit"}))
	assert.Equal(t,
		"postgres://app:p%40ss@db:5433/marketfund?sslmode=require",
		DSN(ClientConfig{Host: "db", Port: 5433, Database: "marketfund", User: "app", Password: "p@ss", SSLMode: "require"}))
	assert.Equal(t,
		"postgres://localhost:5432/marketfund?sslmode=disable",
		DSN(ClientConfig{Host: "localhost", Database: "marketfund"}))
}

func TestMigrationNamesOrdered(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_markets.sql", "002_funding_actions.sql"}, names)
}
