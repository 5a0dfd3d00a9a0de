package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func testManager(t *testing.T) *Manager {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	manager, err := NewManager(zap.NewNop(), db)
	require.NoError(t, err)
	return manager
}

func TestNewUserDefaultsNameFromEmail(t *testing.T) {
	ctx := context.Background()
	manager := testManager(t)

	created, err := manager.NewUser(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "alice@example.com", created.Email)
	require.Equal(t, "alice", created.Name)
}

func TestNewUserDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	manager := testManager(t)

	_, err := manager.NewUser(ctx, "alice@example.com")
	require.NoError(t, err)
	_, err = manager.NewUser(ctx, "alice@example.com")
	require.Error(t, err)
}

func TestGetByIDAndEmail(t *testing.T) {
	ctx := context.Background()
	manager := testManager(t)

	created, err := manager.NewUser(ctx, "alice@example.com")
	require.NoError(t, err)

	byID, err := manager.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	require.Equal(t, created.Email, byID.Email)

	byEmail, err := manager.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	require.Equal(t, created.ID, byEmail.ID)

	missing, err := manager.GetByID(ctx, "no-such-id")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestUpdateName(t *testing.T) {
	ctx := context.Background()
	manager := testManager(t)

	created, err := manager.NewUser(ctx, "alice@example.com")
	require.NoError(t, err)

	updated, err := manager.UpdateName(ctx, created.ID, "Alice")
	require.NoError(t, err)
	require.NotNil(t, updated)
	require.Equal(t, "Alice", updated.Name)

	stored, err := manager.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Alice", stored.Name)

	missing, err := manager.UpdateName(ctx, "no-such-id", "Bob")
	require.NoError(t, err)
	require.Nil(t, missing)
}
