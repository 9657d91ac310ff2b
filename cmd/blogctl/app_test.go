package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/redmonkez12/blog-api/internal/auth"
	"github.com/redmonkez12/blog-api/internal/config"
	"github.com/redmonkez12/blog-api/internal/logging"
)

type migrateCall struct {
	up    bool
	steps int
}

func newTestApp(t *testing.T) (*app, *bytes.Buffer, *[]migrateCall) {
	t.Helper()

	out := &bytes.Buffer{}
	calls := &[]migrateCall{}
	a := &app{
		cfg:    &config.Config{Database: config.DatabaseConfig{DBName: "blog_test"}},
		out:    out,
		logger: logging.NewNopLogger(),
		openDB: func(context.Context) (*bun.DB, error) {
			return nil, errors.New("no database in tests")
		},
		openRedis: func(context.Context) (redis.UniversalClient, error) {
			return nil, errors.New("no redis in tests")
		},
		migrate: func(up bool, steps int) error {
			*calls = append(*calls, migrateCall{up: up, steps: steps})
			return nil
		},
		confirm: func(string, string) (bool, error) { return false, nil },
	}
	return a, out, calls
}

func execute(t *testing.T, a *app, args ...string) error {
	t.Helper()
	cmd := a.rootCmd()
	cmd.SetArgs(args)
	cmd.SetErr(&bytes.Buffer{})
	return cmd.ExecuteContext(context.Background())
}

func TestVersion(t *testing.T) {
	a, out, _ := newTestApp(t)

	require.NoError(t, execute(t, a, "version"))
	assert.Equal(t, "blogctl dev\n", out.String())
}

func TestMigrateUp(t *testing.T) {
	a, out, calls := newTestApp(t)

	require.NoError(t, execute(t, a, "migrate", "up"))
	assert.Equal(t, []migrateCall{{up: true}}, *calls)
	assert.Contains(t, out.String(), "Migrations applied")
}

func TestMigrateDown(t *testing.T) {
	t.Run("declined", func(t *testing.T) {
		a, out, calls := newTestApp(t)

		require.NoError(t, execute(t, a, "migrate", "down"))
		assert.Empty(t, *calls)
		assert.Contains(t, out.String(), "Aborted.")
	})

	t.Run("confirmed", func(t *testing.T) {
		a, _, calls := newTestApp(t)
		var asked string
		a.confirm = func(title, _ string) (bool, error) {
			asked = title
			return true, nil
		}

		require.NoError(t, execute(t, a, "migrate", "down", "2"))
		assert.Equal(t, "Roll back 2 migration(s)?", asked)
		assert.Equal(t, []migrateCall{{up: false, steps: 2}}, *calls)
	})

	t.Run("yes flag skips prompt", func(t *testing.T) {
		a, _, calls := newTestApp(t)
		a.confirm = func(string, string) (bool, error) {
			t.Fatal("prompt shown")
			return false, nil
		}

		require.NoError(t, execute(t, a, "migrate", "down", "--yes"))
		assert.Equal(t, []migrateCall{{up: false, steps: 1}}, *calls)
	})

	t.Run("bad steps", func(t *testing.T) {
		a, _, calls := newTestApp(t)

		assert.Error(t, execute(t, a, "migrate", "down", "0", "--yes"))
		assert.Empty(t, *calls)
	})
}

func TestTokensPrune_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	a, out, _ := newTestApp(t)
	a.cfg.Auth.TokenStore = config.TokenStoreRedis
	a.openRedis = func(context.Context) (redis.UniversalClient, error) { return client, nil }

	repo := auth.NewRedisRepository(client)
	require.NoError(t, repo.Create(context.Background(), uuid.New(), auth.KindAccess, "secret", time.Now().Add(time.Hour)))

	require.NoError(t, execute(t, a, "tokens", "prune"))
	assert.Contains(t, out.String(), "Expired tokens pruned")
	assert.Contains(t, out.String(), "redis")
}

func TestTokensPrune_Postgres(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqlDB, pgdialect.New())

	a, out, _ := newTestApp(t)
	a.cfg.Auth.TokenStore = config.TokenStorePostgres
	a.openDB = func(context.Context) (*bun.DB, error) { return db, nil }

	mock.ExpectExec(`DELETE FROM "tokens" AS "t" WHERE \(expires_at <= `).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectClose()

	require.NoError(t, execute(t, a, "tokens", "prune"))
	assert.Contains(t, out.String(), "3")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokensPrune_StoreDown(t *testing.T) {
	a, _, _ := newTestApp(t)
	a.cfg.Auth.TokenStore = config.TokenStoreRedis

	assert.Error(t, execute(t, a, "tokens", "prune"))
}

var userColumns = []string{
	"id", "name", "username", "email", "phone", "password_hash",
	"is_verified", "avatar", "created_at", "updated_at", "deleted_at",
}

func TestUsersVerify(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqlDB, pgdialect.New())

	a, out, _ := newTestApp(t)
	a.openDB = func(context.Context) (*bun.DB, error) { return db, nil }

	id := uuid.New()
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .* FROM "users" AS "u" WHERE .*lower\(email\) = lower\('alice@example\.com'\)`).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(id.String(), "Alice", "alice", "alice@example.com", "+15550100", "hash", false, nil, now, now, nil))
	mock.ExpectExec(`UPDATE "users" AS "u" SET is_verified = TRUE`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	require.NoError(t, execute(t, a, "users", "verify", "--email", " Alice@Example.com "))
	assert.Contains(t, out.String(), "alice@example.com verified")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsersVerify_NotFound(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqlDB, pgdialect.New())

	a, _, _ := newTestApp(t)
	a.openDB = func(context.Context) (*bun.DB, error) { return db, nil }

	mock.ExpectQuery(`SELECT .* FROM "users"`).WillReturnError(sql.ErrNoRows)
	mock.ExpectClose()

	err = execute(t, a, "users", "verify", "--email", "ghost@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no active user")
}

func TestUsersVerify_RequiresEmail(t *testing.T) {
	a, _, _ := newTestApp(t)

	assert.Error(t, execute(t, a, "users", "verify"))
}
