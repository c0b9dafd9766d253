package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/localnerve/qatrack/internal/database"
	"github.com/localnerve/qatrack/internal/models"
	"github.com/localnerve/qatrack/internal/services"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, closeDB, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			if err := database.AutoMigrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
			return nil
		},
	}
}

func newCreateAdminCmd() *cobra.Command {
	var username, email, name, password string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		Long: `Creates an administrator account. Use it to bootstrap a fresh
deployment, since registering users requires a signed-in user.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, closeDB, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			if name == "" {
				name = username
			}
			return runCreateAdmin(cmd.OutOrStdout(), db, services.UserInput{
				Username: &username,
				Email:    &email,
				Name:     &name,
				Password: &password,
			})
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "login name")
	cmd.Flags().StringVarP(&email, "email", "e", "", "email address")
	cmd.Flags().StringVarP(&name, "name", "n", "", "display name (defaults to username)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "initial password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func runCreateAdmin(out io.Writer, db *gorm.DB, in services.UserInput) error {
	role := models.RoleAdmin
	in.Role = &role
	user, err := services.CreateUser(db, in)
	if err != nil {
		return fmt.Errorf("create-admin: %w", err)
	}
	services.NewRecorder(db).Record(context.Background(), models.ActionCreate, services.MenuUsers, user.ID, "", services.Created(user))
	fmt.Fprintf(out, "Created admin %s (%s)\n", user.Username, user.ID)
	return nil
}

func newImportUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-users <file.yaml>",
		Short: "Import users from a YAML list",
		Long: `Imports users from a YAML file holding a list of entries:

  - username: ana
    email: ana@example.com
    name: Ana
    role: qa
    password: changeme123

Every row is created on its own; failed rows are reported and skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := readUserFile(args[0])
			if err != nil {
				return err
			}

			db, _, closeDB, err := openDB()
			if err != nil {
				return err
			}
			defer closeDB()

			return runImportUsers(cmd.OutOrStdout(), db, rows)
		},
	}
}

func readUserFile(path string) ([]services.UserInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("import-users: %w", err)
	}
	var rows []services.UserInput
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("import-users: parse %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("import-users: %s has no users", path)
	}
	return rows, nil
}

func runImportUsers(out io.Writer, db *gorm.DB, rows []services.UserInput) error {
	results := services.ImportUsers(db, rows)

	audit := services.NewRecorder(db)
	failed := 0
	for _, r := range results {
		if !r.OK {
			failed++
			fmt.Fprintf(out, "row %d %-20s FAILED %s\n", r.Row, r.Username, r.Error)
			continue
		}
		audit.Record(context.Background(), models.ActionCreate, services.MenuUsers, r.User.ID, "", services.Created(r.User))
		fmt.Fprintf(out, "row %d %-20s ok\n", r.Row, r.Username)
	}
	fmt.Fprintf(out, "Imported %d of %d users.\n", len(results)-failed, len(results))

	if failed > 0 {
		return fmt.Errorf("import-users: %d rows failed", failed)
	}
	return nil
}
