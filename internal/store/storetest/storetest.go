// Package storetest opens throwaway Postgres schemas and Redis keys for
// integration tests. Tests skip unless TEST_DATABASE_URL or TEST_REDIS_ADDR
// is set.
package storetest

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"campusgate/internal/store"
)

// Postgres returns a connection whose search_path is a fresh schema that is
// dropped when the test ends.
func Postgres(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	schema := "campusgate_test_" + strings.ReplaceAll(uuid.NewString()[:8], "-", "")

	admin, err := store.Open(ctx, "pgx", dsn, 2)
	require.NoError(t, err)
	_, err = admin.ExecContext(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)

	db, err := store.Open(ctx, "pgx", withSearchPath(t, dsn, schema), 4)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
		_, _ = admin.ExecContext(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		_ = admin.Close()
	})
	return db
}

func withSearchPath(t *testing.T, dsn, schema string) string {
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return fmt.Sprintf("%s search_path=%s", dsn, schema)
	}
	u, err := url.Parse(dsn)
	require.NoError(t, err)
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String()
}

// Redis returns a client and a key prefix unique to the test; keys under
// the prefix are deleted when the test ends.
func Redis(t *testing.T) (*redis.Client, string) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := store.NewRedis(addr).Client
	require.NoError(t, client.Ping(context.Background()).Err())

	prefix := "campusgate:test:" + uuid.NewString() + ":"
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := client.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			_ = client.Del(ctx, keys...).Err()
		}
		_ = client.Close()
	})
	return client, prefix
}
