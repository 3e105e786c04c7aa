package db

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFilesAreGooseAnnotated(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	for _, entry := range entries {
		script, err := fs.ReadFile(migrationFiles, "migrations/"+entry.Name())
		require.NoError(t, err)

		text := string(script)
		assert.Contains(t, text, "-- +goose Up", entry.Name())
		assert.Contains(t, text, "-- +goose Down", entry.Name())
		assert.Less(t, strings.Index(text, "-- +goose Up"), strings.Index(text, "-- +goose Down"), entry.Name())
	}
}

func TestUsersMigrationKeepsSingleSessionSlot(t *testing.T) {
	script, err := fs.ReadFile(migrationFiles, "migrations/00001_create_users.sql")
	require.NoError(t, err)

	text := string(script)
	assert.Contains(t, text, "refresh_token TEXT")
	assert.Contains(t, text, "LOWER(username)")
	assert.Contains(t, text, "LOWER(email)")
}
