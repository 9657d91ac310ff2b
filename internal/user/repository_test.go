package user

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

var userColumns = []string{
	"id", "name", "username", "email", "phone", "password_hash",
	"is_verified", "avatar", "created_at", "updated_at", "deleted_at",
}

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	db := bun.NewDB(sqlDB, pgdialect.New())
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})

	return NewRepository(db), mock
}

func TestRepository_GetByEmail(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .* FROM "users" AS "u" WHERE .*deleted_at IS NULL.*lower\(email\) = lower\('alice@example\.com'\)`).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(id.String(), "Alice", "alice", "alice@example.com", "+15550100", "hash", true, nil, now, now, nil))

	u, err := repo.GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)

	assert.Equal(t, id, u.ID)
	assert.Equal(t, "alice", u.Username)
	assert.True(t, u.IsVerified)
	assert.Nil(t, u.Avatar)
}

func TestRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT .* FROM "users" AS "u"`).
		WillReturnRows(sqlmock.NewRows(userColumns))

	_, err := repo.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_GetByEmailOrUsername_MatchesEither(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`lower\(email\) = lower\('alice'\).* OR .*lower\(username\) = lower\('alice'\)`).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(uuid.NewString(), "Alice", "alice", "alice@example.com", "+15550100", "hash", false, nil, now, now, nil))

	u, err := repo.GetByEmailOrUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)
}

func TestRepository_GetByEmailOrUsername_PrefersEmailOwner(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`ORDER BY lower\(email\) = lower\('alice@example\.com'\) DESC LIMIT 1`).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(uuid.NewString(), "Alice", "alice", "alice@example.com", "+15550100", "hash", false, nil, now, now, nil))

	u, err := repo.GetByEmailOrUsername(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
}

func TestRepository_Create_UniqueViolation(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`INSERT INTO "users"`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	_, err := repo.Create(context.Background(), NewUser{
		Name:         "Alice",
		Username:     "Alice",
		Email:        "Alice@Example.com",
		Phone:        "+15550100",
		PasswordHash: "hash",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicate)

	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, []string{"email"}, dup.Fields)
}

func TestRepository_Create_LowercasesIdentifiers(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	id := uuid.New()

	mock.ExpectQuery(`INSERT INTO "users" .*'alice'.*'alice@example\.com'`).
		WillReturnRows(sqlmock.NewRows(userColumns).
			AddRow(id.String(), "Alice", "alice", "alice@example.com", "+15550100", "hash", false, nil, now, now, nil))

	u, err := repo.Create(context.Background(), NewUser{
		Name:         "Alice",
		Username:     "ALICE",
		Email:        "Alice@Example.COM",
		Phone:        "+15550100",
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.False(t, u.IsVerified)
}

func TestRepository_FindConflicts(t *testing.T) {
	repo, mock := newMockRepo(t)
	self := uuid.New()

	mock.ExpectQuery(`SELECT .* FROM "users" AS "u" WHERE .*deleted_at IS NULL.*id <> '` + self.String() + `'`).
		WillReturnRows(sqlmock.NewRows([]string{"username", "email", "phone"}).
			AddRow("bob", "other@example.com", "+15550199").
			AddRow("carol", "taken@example.com", "+15550111"))

	fields, err := repo.FindConflicts(context.Background(), "BOB", "taken@example.com", "+15550100", self)
	require.NoError(t, err)
	assert.Equal(t, []string{"username", "email"}, fields)
}

func TestRepository_FindConflicts_NothingToCheck(t *testing.T) {
	repo, _ := newMockRepo(t)

	fields, err := repo.FindConflicts(context.Background(), "", "", "", uuid.Nil)
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestRepository_MarkEmailAsVerified(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE "users" AS "u" SET is_verified = TRUE`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkEmailAsVerified(context.Background(), uuid.New()))
}

func TestRepository_SoftDelete_MissingUser(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE "users" AS "u" SET deleted_at = NOW\(\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SoftDelete(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_UpdatePassword_DriverError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE "users" AS "u" SET password_hash = 'new-hash'`).
		WillReturnError(sql.ErrConnDone)

	err := repo.UpdatePassword(context.Background(), uuid.New(), "new-hash")
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestRepository_UpdateProfile_Duplicate(t *testing.T) {
	repo, mock := newMockRepo(t)
	username := "bob"

	mock.ExpectQuery(`UPDATE "users" AS "u" SET username = 'bob'.*RETURNING`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_username_key"})

	_, err := repo.UpdateProfile(context.Background(), uuid.New(), ProfileUpdate{Username: &username})

	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, []string{"username"}, dup.Fields)
}
