// Package testutil provides an in-memory store for package tests.
package testutil

import (
	"testing"

	puresqlite "github.com/glebarez/sqlite"
	"github.com/localnerve/qatrack/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDB opens a migrated in-memory SQLite database that lives for the test.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(puresqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	// A single connection keeps every query on the same in-memory database
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get underlying SQL DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		_ = database.Close(db)
	})

	return db
}
