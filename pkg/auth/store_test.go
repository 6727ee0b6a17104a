package auth

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()

	mock.ExpectQuery("SELECT id, uuid, name, email").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "uuid", "name", "email", "phone", "active", "created_at", "updated_at"}).
			AddRow(1, "u-uuid", "Sara", "sara@example.com", "", true, now, now))

	mock.ExpectQuery("SELECT r.id, r.name, r.display_name").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "display_name", "permissions", "created_at", "updated_at"}).
			AddRow(2, "Manager", "Property Manager", `["invoices.view","invoices.create"]`, now, now))

	mock.ExpectQuery("SELECT ownership_id, is_default").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"ownership_id", "is_default", "created_at"}).
			AddRow(5, true, now))

	store := NewStore(db)
	user, err := store.GetUser(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, "Sara", user.Name)
	assert.True(t, user.HasPermission("invoices.view"))
	assert.False(t, user.IsSuperAdmin())
	assert.True(t, user.HasOwnership(5))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, uuid, name, email").
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	store := NewStore(db)
	_, err = store.GetUser(context.Background(), 404)
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListUsersHidesSuperAdminsFromRegularCallers(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()

	mock.ExpectQuery(`NOT EXISTS`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "uuid", "name", "email", "phone", "active", "created_at", "updated_at"}).
			AddRow(1, "u1", "Sara", "sara@example.com", "", true, now, now))

	store := NewStore(db)
	users, err := store.ListUsers(context.Background(), 5, false)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRolesHidesSuperAdminRole(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()

	mock.ExpectQuery(`WHERE name <> 'Super Admin'`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "display_name", "permissions", "created_at", "updated_at"}).
			AddRow(2, "Manager", "Property Manager", `[]`, now, now))

	store := NewStore(db)
	roles, err := store.ListRoles(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "Manager", roles[0].Name)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPermissionCheckerCaches(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()

	// One DB round trip serves repeated checks for the same user
	mock.ExpectQuery("SELECT r.id, r.name, r.display_name").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "display_name", "permissions", "created_at", "updated_at"}).
			AddRow(2, "Manager", "Property Manager", `["invoices.view"]`, now, now))

	checker := NewPermissionChecker(NewStore(db), 16, time.Minute)

	ok, err := checker.HasPermission(context.Background(), 1, "invoices.view")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = checker.HasPermission(context.Background(), 1, "invoices.delete")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPermissionCheckerInvalidate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	roleRows := func(perms string) *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "name", "display_name", "permissions", "created_at", "updated_at"}).
			AddRow(2, "Manager", "Property Manager", perms, now, now)
	}

	mock.ExpectQuery("SELECT r.id, r.name, r.display_name").
		WithArgs(int64(1)).
		WillReturnRows(roleRows(`[]`))
	mock.ExpectQuery("SELECT r.id, r.name, r.display_name").
		WithArgs(int64(1)).
		WillReturnRows(roleRows(`["invoices.view"]`))

	checker := NewPermissionChecker(NewStore(db), 16, time.Minute)

	ok, err := checker.HasPermission(context.Background(), 1, "invoices.view")
	require.NoError(t, err)
	assert.False(t, ok)

	checker.InvalidateUser(1)

	ok, err = checker.HasPermission(context.Background(), 1, "invoices.view")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}
