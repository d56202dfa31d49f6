// Package testutil holds shared fixtures for package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/FASALGAF00R/Campuscore-backend/models"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a private in-memory SQLite database with every table migrated.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.AutoMigrateAll(db))
	return db
}

// SeedUser inserts a user with the given role and active flag.
func SeedUser(t testing.TB, db *gorm.DB, role models.Role, active bool) *models.User {
	t.Helper()

	id := uuid.NewString()
	u := &models.User{
		ID:        id,
		FirstName: string(role),
		LastName:  id[:8],
		Email:     id + "@campus.test",
		Role:      role,
		IsActive:  active,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}
