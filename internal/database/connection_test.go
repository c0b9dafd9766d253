package database_test

import (
	"path/filepath"
	"testing"

	"github.com/localnerve/qatrack/internal/config"
	"github.com/localnerve/qatrack/internal/database"
	"github.com/localnerve/qatrack/internal/models"
	"gorm.io/gorm/logger"
)

func TestDialectorUnsupported(t *testing.T) {
	_, err := database.Dialector(&config.Config{DBType: "oracle"})
	if err == nil {
		t.Fatal("Expected an error for an unsupported database type")
	}
}

func TestDialectorNames(t *testing.T) {
	tests := []struct {
		dbType string
		want   string
	}{
		{"mysql", "mysql"},
		{"mariadb", "mysql"},
		{"postgres", "postgres"},
		{"postgresql", "postgres"},
		{"sqlite-pure", "sqlite"},
		{"sqlserver", "sqlserver"},
		{"mssql", "sqlserver"},
	}

	for _, tt := range tests {
		t.Run(tt.dbType, func(t *testing.T) {
			d, err := database.Dialector(&config.Config{
				DBType:     tt.dbType,
				DBHost:     "localhost",
				DBPort:     "1234",
				DBDatabase: "qatrack",
			})
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if d.Name() != tt.want {
				t.Errorf("Expected dialector %s, got %s", tt.want, d.Name())
			}
		})
	}
}

func TestLogLevel(t *testing.T) {
	tests := map[string]logger.LogLevel{
		"silent": logger.Silent,
		"ERROR":  logger.Error,
		"info":   logger.Info,
		"":       logger.Warn,
		"bogus":  logger.Warn,
	}
	for level, want := range tests {
		if got := database.LogLevel(level); got != want {
			t.Errorf("LogLevel(%q) = %v, want %v", level, got, want)
		}
	}
}

func TestConnectSQLiteFile(t *testing.T) {
	cfg := &config.Config{
		DBType:            "sqlite-pure",
		DBDatabase:        filepath.Join(t.TempDir(), "qatrack.db"),
		DBConnectionLimit: 10,
		DBLogLevel:        "silent",
	}

	db, err := database.Connect(cfg)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close(db)

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get SQL DB: %v", err)
	}
	if got := sqlDB.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("Expected SQLite to be limited to 1 connection, got %d", got)
	}

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	for _, table := range []any{&models.Project{}, &models.Demand{}, &models.Scenario{}, &models.AuditLog{}, &models.PendingEmail{}} {
		if !db.Migrator().HasTable(table) {
			t.Errorf("Expected table for %T", table)
		}
	}

	// Migrating again is a no-op
	if err := database.AutoMigrate(db); err != nil {
		t.Errorf("Second migration failed: %v", err)
	}
}
