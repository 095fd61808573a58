package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsAlreadyProvisioned(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"duplicate table", &pgconn.PgError{Code: "42P07"}, true},
		{"catalog collision", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23505"}), true},
		{"permission denied", &pgconn.PgError{Code: "42501"}, false},
		{"not a postgres error", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isAlreadyProvisioned(tt.err))
		})
	}
}

func TestNewPostgresQuotesTableName(t *testing.T) {
	s := NewPostgres(nil, `identities"; DROP TABLE x; --`)
	assert.Contains(t, s.upsertSQL, `"identities""; DROP TABLE x; --"`)
	assert.Contains(t, s.findSQL, `"identities""; DROP TABLE x; --"`)

	defaulted := NewPostgres(nil, "")
	assert.Equal(t, DefaultTable, defaulted.Table())
	assert.Contains(t, defaulted.schemaSQL, `"personal_data"`)
	assert.Contains(t, defaulted.upsertSQL, "ON CONFLICT (citizen_id) DO UPDATE SET")
}
