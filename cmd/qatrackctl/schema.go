package main

import (
	"fmt"
	"io"

	puresqlite "github.com/glebarez/sqlite"
	"github.com/localnerve/qatrack/internal/database"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the tables the migration creates",
		Long: `Migrates a throwaway in-memory SQLite database and prints the
resulting table definitions. No configured database is touched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(cmd.OutOrStdout())
		},
	}
}

func runSchema(out io.Writer) error {
	db, err := gorm.Open(puresqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	defer database.Close(db)

	// Every connection to :memory: is a separate database
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		return fmt.Errorf("schema: migrate: %w", err)
	}

	var tables []struct {
		Name string
		SQL  string
	}
	if err := db.Raw("SELECT name, sql FROM sqlite_master WHERE type = 'table' ORDER BY name").Scan(&tables).Error; err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	for _, table := range tables {
		fmt.Fprintf(out, "\n=== Table: %s ===\n%s\n", table.Name, table.SQL)
	}
	return nil
}
