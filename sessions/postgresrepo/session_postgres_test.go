package postgresrepo_test

import (
	"context"
	"os"
	"testing"

	"github.com/jrsteele09/go-task-auth/sessions"
	"github.com/jrsteele09/go-task-auth/sessions/postgresrepo"
	"github.com/jrsteele09/go-task-auth/sessions/sessionstest"
	"github.com/stretchr/testify/require"
)

// Runs only against a real database: TEST_DATABASE_URL=postgres://... go test ./sessions/postgresrepo
func TestPostgresRepo_Contract(t *testing.T) {
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := postgresrepo.Open(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, postgresrepo.Migrate(ctx, db))

	sessionstest.RunRepoContract(t, func(t *testing.T) sessions.Repo {
		_, err := db.ExecContext(ctx, `TRUNCATE sessions`)
		require.NoError(t, err)
		return postgresrepo.NewSessionRepository(db)
	})
}
