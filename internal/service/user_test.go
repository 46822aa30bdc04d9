package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"usercenter/backend/internal/domain"
	"usercenter/backend/internal/storage/memory"
)

type fakeHasher struct{}

func (fakeHasher) Hash(plain string) (string, error) { return "hashed:" + plain, nil }

type recordingNotifier struct {
	mu    sync.Mutex
	users []string
}

func (n *recordingNotifier) UserCreated(_ context.Context, user *domain.User) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.users = append(n.users, user.Username)
}

func newUserFixture(t *testing.T) (*UserService, *memory.Store, *recordingNotifier) {
	t.Helper()
	store := memory.NewStore()
	notifier := &recordingNotifier{}
	return NewUserService(store, fakeHasher{}, notifier, nil, zap.NewNop()), store, notifier
}

func TestUserService_Register(t *testing.T) {
	ctx := context.Background()
	svc, _, notifier := newUserFixture(t)

	user, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "Alice@Example.com", Password: "password123"})
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "hashed:password123", user.PasswordHash)
	assert.True(t, user.IsActive)
	assert.False(t, user.IsDisabled)
	assert.Equal(t, []string{"alice"}, notifier.users)

	tests := []struct {
		name  string
		input RegisterInput
		want  error
	}{
		{"用户名重复", RegisterInput{Username: "alice", Email: "other@example.com", Password: "password123"}, ErrUsernameExists},
		{"邮箱重复", RegisterInput{Username: "alice2", Email: "alice@example.com", Password: "password123"}, ErrEmailExists},
		{"密码过短", RegisterInput{Username: "bob", Email: "bob@example.com", Password: "short"}, domain.ErrPasswordTooShort},
		{"邮箱非法", RegisterInput{Username: "bob", Email: "not-an-email", Password: "password123"}, domain.ErrInvalidEmail},
		{"用户名非法", RegisterInput{Username: "1bob", Email: "bob@example.com", Password: "password123"}, domain.ErrInvalidUsername},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err = svc.Register(ctx, RegisterInput{Username: "alice", Email: "x@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrUserExists)
	assert.Len(t, notifier.users, 1)
}

func TestUserService_Update(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newUserFixture(t)

	alice, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "password123"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, RegisterInput{Username: "bob", Email: "bob@example.com", Password: "password123"})
	require.NoError(t, err)

	taken := "bob"
	_, err = svc.Update(ctx, alice.ID, UpdateUserInput{Username: &taken})
	assert.ErrorIs(t, err, ErrUsernameExists)

	same := "alice"
	disabled := true
	password := "newpassword"
	updated, err := svc.Update(ctx, alice.ID, UpdateUserInput{Username: &same, IsDisabled: &disabled, Password: &password})
	require.NoError(t, err)
	assert.True(t, updated.IsDisabled)
	assert.Equal(t, "hashed:newpassword", updated.PasswordHash)
	assert.Equal(t, "alice@example.com", updated.Email)

	_, err = svc.Update(ctx, 999, UpdateUserInput{})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserService_ProfileAndDelete(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newUserFixture(t)

	alice, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "password123"})
	require.NoError(t, err)

	_, err = svc.SaveProfile(ctx, &domain.UserProfile{UserID: alice.ID, FirstName: "Alice"})
	assert.ErrorIs(t, err, domain.ErrLastNameRequired)

	profile, err := svc.SaveProfile(ctx, &domain.UserProfile{
		UserID:    alice.ID,
		FirstName: "Alice",
		LastName:  "Liddell",
		BirthDate: time.Date(1990, 5, 4, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.NotZero(t, profile.ID)

	_, err = svc.SaveProfile(ctx, &domain.UserProfile{UserID: 999, FirstName: "A", LastName: "B", BirthDate: time.Now()})
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, store.InsertAPIKey(ctx, &domain.APIKey{APIKey: "k", UserID: alice.ID, IsActive: true, ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, svc.Delete(ctx, alice.ID))

	_, err = svc.GetProfile(ctx, alice.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
	keys, err := store.ListAPIKeysByUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.ErrorIs(t, svc.Delete(ctx, alice.ID), ErrUserNotFound)
}

func TestUserService_Assignments(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newUserFixture(t)
	roles := NewRoleService(store, zap.NewNop())
	perms := NewPermissionService(store, zap.NewNop())

	alice, err := svc.Register(ctx, RegisterInput{Username: "alice", Email: "alice@example.com", Password: "password123"})
	require.NoError(t, err)
	admin, err := roles.Create(ctx, domain.RoleAdmin)
	require.NoError(t, err)
	perm, err := perms.Create(ctx, PermissionInput{Name: domain.PermissionGenerateToken, Description: "mint tokens"})
	require.NoError(t, err)

	_, err = svc.AssignRole(ctx, alice.ID, admin.ID)
	require.NoError(t, err)
	_, err = svc.AssignRole(ctx, alice.ID, admin.ID)
	assert.ErrorIs(t, err, ErrRoleAlreadyGranted)
	_, err = svc.AssignRole(ctx, 999, admin.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = svc.AssignRole(ctx, alice.ID, 999)
	assert.ErrorIs(t, err, ErrRoleNotFound)

	_, err = svc.AssignPermission(ctx, admin.ID, perm.ID)
	require.NoError(t, err)
	_, err = svc.AssignPermission(ctx, admin.ID, perm.ID)
	assert.ErrorIs(t, err, ErrPermAlreadyGranted)
	_, err = svc.AssignPermission(ctx, admin.ID, 999)
	assert.ErrorIs(t, err, ErrPermissionNotFound)

	ok, err := NewRBACService(store).Authorize(ctx, alice, domain.PermissionGenerateToken)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, svc.RevokePermission(ctx, admin.ID, perm.ID))
	assert.ErrorIs(t, svc.RevokePermission(ctx, admin.ID, perm.ID), ErrAssignmentNotFound)
	require.NoError(t, svc.RevokeRole(ctx, alice.ID, admin.ID))

	list, err := svc.ListRoles(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}
