package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/localnerve/qatrack/internal/config"
	"github.com/localnerve/qatrack/internal/models"
	"github.com/localnerve/qatrack/internal/services"
	"github.com/localnerve/qatrack/internal/testutil"
	"gorm.io/gorm"
)

// useTestDB points every command at an in-memory database for the test.
func useTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := testutil.OpenDB(t)
	cfg := &config.Config{EmailMaxAttempts: 2}
	prev := openDB
	openDB = func() (*gorm.DB, *config.Config, func(), error) {
		return db, cfg, func() {}, nil
	}
	t.Cleanup(func() { openDB = prev })
	return db
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCmd_ListsSubcommands(t *testing.T) {
	out, err := run(t, "--help")
	if err != nil {
		t.Fatalf("root --help failed: %v", err)
	}
	for _, sub := range []string{"migrate", "create-admin", "import-users", "sweep-emails", "version"} {
		if !strings.Contains(out, sub) {
			t.Errorf("root help should list %q", sub)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "qatrackctl dev") {
		t.Errorf("unexpected version output: %q", out)
	}
}

func TestMigrateCmd(t *testing.T) {
	useTestDB(t)
	out, err := run(t, "migrate")
	if err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if !strings.Contains(out, "up to date") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestMigrateCmd_ConnectError(t *testing.T) {
	prev := openDB
	openDB = func() (*gorm.DB, *config.Config, func(), error) {
		return nil, nil, nil, errors.New("connection refused")
	}
	t.Cleanup(func() { openDB = prev })

	if _, err := run(t, "migrate"); err == nil {
		t.Fatal("expected migrate to fail without a database")
	}
}

func TestCreateAdminCmd(t *testing.T) {
	db := useTestDB(t)

	out, err := run(t, "create-admin", "-u", "root", "-e", "root@example.com", "-p", "s3cret-pass")
	if err != nil {
		t.Fatalf("create-admin failed: %v\n%s", err, out)
	}

	var user models.User
	if err := db.Where("username = ?", "root").First(&user).Error; err != nil {
		t.Fatalf("admin not stored: %v", err)
	}
	if user.Role != models.RoleAdmin {
		t.Errorf("Role = %q, want admin", user.Role)
	}
	if user.Name != "root" {
		t.Errorf("Name = %q, want the username", user.Name)
	}

	var audits int64
	db.Model(&models.AuditLog{}).Where("target_id = ?", user.ID).Count(&audits)
	if audits != 1 {
		t.Errorf("expected 1 audit entry, got %d", audits)
	}

	if _, err := run(t, "create-admin", "-u", "root", "-e", "other@example.com", "-p", "s3cret-pass"); err == nil {
		t.Error("expected a duplicate username to fail")
	}
}

func TestCreateAdminCmd_RequiresFlags(t *testing.T) {
	useTestDB(t)
	if _, err := run(t, "create-admin", "-u", "root"); err == nil {
		t.Fatal("expected missing flags to fail")
	}
}

func TestImportUsersCmd(t *testing.T) {
	db := useTestDB(t)

	path := filepath.Join(t.TempDir(), "users.yaml")
	content := `- username: ana
  email: ana@example.com
  name: Ana
  role: qa
- username: bob
  email: not-an-email
- username: cris
  email: cris@example.com
  role: viewer
  password: changeme123
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "import-users", path)
	if err == nil {
		t.Fatal("expected the failing row to be reported as an error")
	}
	if !strings.Contains(out, "Imported 2 of 3 users.") {
		t.Errorf("unexpected summary: %s", out)
	}
	if !strings.Contains(out, "row 2") || !strings.Contains(out, "FAILED") {
		t.Errorf("expected row 2 to be reported as failed: %s", out)
	}

	var count int64
	db.Model(&models.User{}).Count(&count)
	if count != 2 {
		t.Errorf("expected 2 users, got %d", count)
	}
}

func TestReadUserFile(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(empty, []byte("[]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := readUserFile(empty); err == nil {
		t.Error("expected an empty list to be rejected")
	}

	broken := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(broken, []byte("username: [\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := readUserFile(broken); err == nil {
		t.Error("expected invalid YAML to be rejected")
	}

	if _, err := readUserFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected a missing file to be rejected")
	}
}

func TestSweepEmailsCmd(t *testing.T) {
	db := useTestDB(t)

	pending := models.PendingEmail{
		To:       "ana@example.com",
		Subject:  "Reset",
		Body:     "<p>hi</p>",
		Type:     "reset",
		Status:   models.EmailPending,
		Attempts: 1,
	}
	if err := db.Create(&pending).Error; err != nil {
		t.Fatal(err)
	}

	// No SMTP host is configured, so the retry fails and hits the limit of 2
	out, err := run(t, "sweep-emails")
	if err != nil {
		t.Fatalf("sweep-emails failed: %v", err)
	}
	if !strings.Contains(out, "sent=0 failed=1 still-queued=0") {
		t.Errorf("unexpected output: %q", out)
	}

	var stored models.PendingEmail
	if err := db.First(&stored, "id = ?", pending.ID).Error; err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.EmailFailed {
		t.Errorf("Status = %q, want %q", stored.Status, models.EmailFailed)
	}
	if stored.LastError != services.ErrEmailNotConfigured.Error() {
		t.Errorf("LastError = %q", stored.LastError)
	}
}

func TestSchemaCmd(t *testing.T) {
	out, err := run(t, "schema")
	if err != nil {
		t.Fatalf("schema failed: %v", err)
	}
	for _, table := range []string{"projects", "demands", "scenarios", "evidences", "audit_logs", "pending_emails"} {
		if !strings.Contains(out, "=== Table: "+table+" ===") {
			t.Errorf("expected table %s in output", table)
		}
	}
}
