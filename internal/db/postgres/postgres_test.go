package postgres

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMigrations_Ordered(t *testing.T) {
	seen := map[int]bool{}
	prev := 0
	for _, m := range Migrations {
		assert.Greater(t, m.Version, prev, "версии должны возрастать")
		assert.False(t, seen[m.Version], "повтор версии %d", m.Version)
		assert.NotEmpty(t, m.Name)
		assert.NotEmpty(t, strings.TrimSpace(m.SQL))
		seen[m.Version] = true
		prev = m.Version
	}
}

func TestMigrations_CoverTables(t *testing.T) {
	var all strings.Builder
	for _, m := range Migrations {
		all.WriteString(m.SQL)
	}
	for _, table := range []string{
		"users", "sessions", "login_attempts", "user_state", "xp_ledger",
		"communities", "community_members", "admin_settings",
	} {
		assert.Contains(t, all.String(), "CREATE TABLE "+table+" (", table)
	}
	assert.Contains(t, all.String(), "UNIQUE (user_id, habit_id, completed_on)")
}

func TestIsUniqueViolation(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505"}
	other := &pgconn.PgError{Code: "23503"}

	assert.True(t, IsUniqueViolation(unique))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", unique)))
	assert.False(t, IsUniqueViolation(other))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.False(t, IsUniqueViolation(nil))
}
