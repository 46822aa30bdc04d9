package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"usercenter/backend/internal/domain"
	"usercenter/backend/internal/storage/memory"
)

// MockRoleLookup 模拟 RBAC 查询
type MockRoleLookup struct {
	mock.Mock
}

func (m *MockRoleLookup) ListRolesForUser(ctx context.Context, userID int64) ([]domain.Role, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Role), args.Error(1)
}

func (m *MockRoleLookup) ListPermissionsForRole(ctx context.Context, roleName string) ([]domain.Permission, error) {
	args := m.Called(ctx, roleName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Permission), args.Error(1)
}

func TestRBACService_AdminManageRoles(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	user := &domain.User{Username: "carol", Email: "carol@example.com", IsActive: true}
	require.NoError(t, store.CreateUser(ctx, user))
	admin := &domain.Role{RoleName: domain.RoleAdmin}
	require.NoError(t, store.CreateRole(ctx, admin))
	perm := &domain.Permission{PermissionName: domain.PermissionManageRoles}
	require.NoError(t, store.CreatePermission(ctx, perm))

	_, err := store.AssignRole(ctx, user.ID, admin.ID)
	require.NoError(t, err)
	_, err = store.AssignPermission(ctx, admin.ID, perm.ID)
	require.NoError(t, err)

	rbac := NewRBACService(store)

	ok, err := rbac.Authorize(ctx, user, domain.PermissionManageRoles)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rbac.Authorize(ctx, user, "delete-everything")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, rbac.Check(ctx, user, "delete-everything"), ErrPermissionDenied)
}

func TestRBACService_UnionAcrossRoles(t *testing.T) {
	ctx := context.Background()
	lookup := &MockRoleLookup{}
	user := &domain.User{ID: 7}

	lookup.On("ListRolesForUser", ctx, int64(7)).Return([]domain.Role{
		{ID: 1, RoleName: "reader"},
		{ID: 2, RoleName: domain.RoleAPIUser},
	}, nil)
	lookup.On("ListPermissionsForRole", ctx, "reader").Return([]domain.Permission{
		{PermissionName: "read-users"},
	}, nil)
	lookup.On("ListPermissionsForRole", ctx, domain.RoleAPIUser).Return([]domain.Permission{
		{PermissionName: domain.PermissionGenerateToken},
	}, nil)

	rbac := NewRBACService(lookup)
	assert.NoError(t, rbac.Check(ctx, user, domain.PermissionGenerateToken))
	assert.NoError(t, rbac.Check(ctx, user, "read-users"))
	lookup.AssertExpectations(t)
}

func TestRBACService_Denials(t *testing.T) {
	ctx := context.Background()
	user := &domain.User{ID: 9}

	t.Run("未分配角色", func(t *testing.T) {
		lookup := &MockRoleLookup{}
		lookup.On("ListRolesForUser", ctx, int64(9)).Return([]domain.Role{}, nil)

		err := NewRBACService(lookup).Check(ctx, user, domain.PermissionGenerateToken)
		assert.ErrorIs(t, err, ErrNoRoleAssigned)
		assert.ErrorIs(t, err, ErrNotPermitted)
		lookup.AssertNotCalled(t, "ListPermissionsForRole", mock.Anything, mock.Anything)
	})

	t.Run("角色无权限", func(t *testing.T) {
		lookup := &MockRoleLookup{}
		lookup.On("ListRolesForUser", ctx, int64(9)).Return([]domain.Role{{RoleName: "empty"}}, nil)
		lookup.On("ListPermissionsForRole", ctx, "empty").Return([]domain.Permission{}, nil)

		err := NewRBACService(lookup).Check(ctx, user, domain.PermissionGenerateToken)
		assert.ErrorIs(t, err, ErrPermissionDenied)
		assert.ErrorIs(t, err, ErrNotPermitted)
		assert.NotErrorIs(t, err, ErrNoRoleAssigned)
	})

	t.Run("存储错误向上返回", func(t *testing.T) {
		boom := errors.New("connection refused")
		lookup := &MockRoleLookup{}
		lookup.On("ListRolesForUser", ctx, int64(9)).Return(nil, boom)

		ok, err := NewRBACService(lookup).Authorize(ctx, user, domain.PermissionGenerateToken)
		assert.False(t, ok)
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrNotPermitted)
	})
}
