package store

import (
	"context"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenPingsDatabase(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, "sqlite3", filepath.Join(t.TempDir(), "roster.db"), 4)
	require.NoError(t, err)
	defer db.Close()

	wrapped := &DB{Client: db}
	assert.True(t, wrapped.Healthy(ctx))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "nope", "", 1)
	assert.Error(t, err)
}

func TestNilHandlesAreSafe(t *testing.T) {
	var d *DB
	assert.False(t, d.Healthy(context.Background()))
	assert.NoError(t, d.Close())

	var r *Redis
	assert.False(t, r.Healthy(context.Background()))
	assert.NoError(t, r.Close())
}
