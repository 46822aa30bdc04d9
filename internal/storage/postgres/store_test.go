package postgres

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"usercenter/backend/internal/domain"
	"usercenter/backend/internal/storage"
)

// containsMatcher 只校验 SQL 片段，避免与 GORM 生成的完整语句强耦合
var containsMatcher = sqlmock.QueryMatcherFunc(func(expected, actual string) error {
	if !strings.Contains(actual, expected) {
		return &mismatchError{expected: expected, actual: actual}
	}
	return nil
})

type mismatchError struct {
	expected string
	actual   string
}

func (e *mismatchError) Error() string {
	return "sql " + e.actual + " does not contain " + e.expected
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(containsMatcher))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewStoreWithDialector(postgres.New(postgres.Config{Conn: db}), Options{})
	require.NoError(t, err)
	return store, mock
}

func TestStore_MarkAPIKeyInactive(t *testing.T) {
	ctx := context.Background()

	t.Run("激活记录发生迁移", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE "api_keys" SET`).WillReturnResult(sqlmock.NewResult(0, 1))

		moved, err := store.MarkAPIKeyInactive(ctx, 7)
		require.NoError(t, err)
		assert.True(t, moved)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("已失效记录不再迁移", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE "api_keys" SET`).WillReturnResult(sqlmock.NewResult(0, 0))

		moved, err := store.MarkAPIKeyInactive(ctx, 7)
		require.NoError(t, err)
		assert.False(t, moved)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_DeactivateExpiredAPIKeys(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE "api_keys" SET`).WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := store.DeactivateExpiredAPIKeys(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InsertAPIKey_Conflict(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`INSERT INTO "api_keys"`).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "idx_api_keys_api_key"})

	key := &domain.APIKey{APIKey: "dup", UserID: 1, IsActive: true, ExpiresAt: time.Now().Add(time.Hour)}
	err := store.InsertAPIKey(context.Background(), key)
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestStore_FindUsableAPIKey(t *testing.T) {
	ctx := context.Background()

	t.Run("命中", func(t *testing.T) {
		store, mock := newMockStore(t)
		expires := time.Now().Add(time.Hour)
		rows := sqlmock.NewRows([]string{"id", "api_key", "user_id", "is_active", "expires_at"}).
			AddRow(3, "tok", 1, true, expires)
		mock.ExpectQuery(`JOIN users ON users.id = api_keys.user_id`).WillReturnRows(rows)

		key, err := store.FindUsableAPIKey(ctx, "tok", time.Now())
		require.NoError(t, err)
		assert.Equal(t, int64(3), key.ID)
		assert.True(t, key.IsActive)
	})

	t.Run("未命中", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(`FROM "api_keys"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := store.FindUsableAPIKey(ctx, "tok", time.Now())
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestStore_CreateUser_KeepsFalseFlags(t *testing.T) {
	store, mock := newMockStore(t)
	// 列顺序: username, email, password_hash, is_active, is_disabled, created_at, updated_at
	mock.ExpectQuery(`INSERT INTO "users"`).
		WithArgs("carol", "carol@example.com", "hash", false, false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))

	user := &domain.User{Username: "carol", Email: "carol@example.com", PasswordHash: "hash", IsActive: false}
	require.NoError(t, store.CreateUser(context.Background(), user))
	assert.Equal(t, int64(9), user.ID)
	assert.False(t, user.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateUser_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE "users" SET`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateUser(context.Background(), &domain.User{ID: 42, Username: "ghost"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_GetUserByUsername(t *testing.T) {
	store, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "username", "email", "is_active"}).
		AddRow(1, "alice", "alice@example.com", true)
	mock.ExpectQuery(`FROM "users"`).WillReturnRows(rows)

	user, err := store.GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.True(t, user.CanAuthenticate())
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"记录不存在", gorm.ErrRecordNotFound, storage.ErrNotFound},
		{"GORM 重复键", gorm.ErrDuplicatedKey, storage.ErrConflict},
		{"PostgreSQL 唯一约束", &pgconn.PgError{Code: pgUniqueViolation}, storage.ErrConflict},
		{"PostgreSQL 外键约束", &pgconn.PgError{Code: pgForeignKeyViolation}, storage.ErrNotFound},
		{"MySQL 重复条目", &mysql.MySQLError{Number: myDuplicateEntry}, storage.ErrConflict},
		{"MySQL 外键约束", &mysql.MySQLError{Number: myNoReferencedRow}, storage.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, translate(tt.in), tt.want)
		})
	}

	assert.NoError(t, translate(nil))
}
