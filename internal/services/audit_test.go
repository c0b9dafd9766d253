package services

import (
	"context"
	"testing"
	"time"

	"github.com/localnerve/qatrack/internal/models"
	"github.com/localnerve/qatrack/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotStripsSecrets(t *testing.T) {
	snap := Snapshot(map[string]any{
		"name":                 "Ana",
		"password":             "hunter22",
		"passwordHash":         "$argon2id$...",
		"resetPasswordToken":   "abc",
		"resetPasswordExpires": "2026-01-01",
		"__v":                  3,
		"evidences":            []string{"a.png"},
	})
	assert.Equal(t, map[string]any{"name": "Ana"}, snap)
	assert.Nil(t, Snapshot(nil))
	assert.Nil(t, Snapshot("not an object"))
}

func TestRecordUserSnapshotsHaveNoSecrets(t *testing.T) {
	db := testutil.OpenDB(t)
	user, err := CreateUser(db, UserInput{
		Username: ptr("ana"),
		Email:    ptr("ana@example.com"),
		Password: ptr("correct horse"),
	})
	require.NoError(t, err)
	_, _, err = ForgotPassword(db, "ana@example.com")
	require.NoError(t, err)
	reloaded, err := GetUser(db, user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, reloaded.ResetPasswordToken)

	// Raw maps carrying secrets are sanitized on write as well
	details := Updated(user, reloaded)
	details.New["password"] = "leaked"

	recorder := NewRecorder(db)
	recorder.Record(context.Background(), models.ActionCreate, MenuUsers, user.ID, user.ID, Created(user))
	recorder.Record(context.Background(), models.ActionUpdate, MenuUsers, user.ID, user.ID, details)

	var logs []models.AuditLog
	require.NoError(t, db.Order("id ASC").Find(&logs).Error)
	require.Len(t, logs, 2)
	for _, l := range logs {
		var stored AuditDetails
		require.NoError(t, l.Details.Decode(&stored))
		for _, snap := range []map[string]any{stored.Old, stored.New} {
			for _, key := range []string{"password", "passwordHash", "resetPasswordToken", "resetPasswordExpires"} {
				assert.NotContains(t, snap, key)
			}
		}
		require.NotNil(t, l.UserID)
		assert.Equal(t, user.ID, *l.UserID)
	}
}

func TestRecorderWithoutStoreIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Record(context.Background(), models.ActionCreate, MenuProjects, "x", "", AuditDetails{})
	})
}

func TestDiffSnapshots(t *testing.T) {
	before := map[string]any{
		"id":        "1",
		"title":     "Checkout",
		"tags":      []any{"a", "b"},
		"updatedAt": "yesterday",
		"link":      "",
	}
	after := map[string]any{
		"id":        "1",
		"title":     "Checkout v2",
		"tags":      []any{"a", "b", "c"},
		"updatedAt": "today",
		"link":      "",
		"status":    "Done",
	}

	assert.Equal(t, []string{
		`changed field status from (empty) to "Done"`,
		`changed field tags from [2 items] to [3 items]`,
		`changed field title from "Checkout" to "Checkout v2"`,
	}, DiffSnapshots(before, after))

	assert.Empty(t, DiffSnapshots(before, before))
}

func TestRenderChanges(t *testing.T) {
	raw, err := models.NewJSON(AuditDetails{
		Old:     map[string]any{"hours": 1.0},
		New:     map[string]any{"hours": 2.5},
		Summary: "Duplicated from project: Checkout",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Duplicated from project: Checkout",
		"changed field hours from 1 to 2.5",
	}, RenderChanges(raw))

	created, err := models.NewJSON(Created(map[string]any{"title": "x"}))
	require.NoError(t, err)
	assert.Empty(t, RenderChanges(created))
	assert.Empty(t, RenderChanges(models.JSON{}))
}

func TestAuditRange(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.Local)

	start, end, err := auditRange(AuditQuery{StartDate: "2026-03-01", EndDate: "2026-03-02", Now: now})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.Local), *start)
	assert.Equal(t, time.Date(2026, 3, 2, 23, 59, 59, 999_000_000, time.Local), *end)

	start, end, err = auditRange(AuditQuery{StartTime: "08:30", Now: now})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 14, 8, 30, 0, 0, time.Local), *start)
	assert.Nil(t, end)

	start, end, err = auditRange(AuditQuery{Now: now})
	require.NoError(t, err)
	assert.Nil(t, start)
	assert.Nil(t, end)

	_, _, err = auditRange(AuditQuery{StartDate: "14/03/2026", Now: now})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func seedAuditUsers(t *testing.T) (*Recorder, *models.User, *models.User) {
	t.Helper()
	db := testutil.OpenDB(t)
	zed, err := CreateUser(db, UserInput{Username: ptr("zed"), Email: ptr("zed@example.com"), Name: ptr("Zed")})
	require.NoError(t, err)
	amy, err := CreateUser(db, UserInput{Username: ptr("amy"), Email: ptr("amy@example.com"), Name: ptr("Amy")})
	require.NoError(t, err)

	r := NewRecorder(db)
	ctx := context.Background()
	r.Record(ctx, models.ActionCreate, MenuProjects, "p1", zed.ID, Created(map[string]any{"title": "P1"}))
	r.Record(ctx, models.ActionUpdate, MenuProjects, "p1", amy.ID, Updated(map[string]any{"title": "P1"}, map[string]any{"title": "P2"}))
	r.Record(ctx, models.ActionDelete, MenuDemands, "d1", zed.ID, Deleted(map[string]any{"name": "D1"}))
	r.Record(ctx, models.ActionCreate, MenuTags, "t1", "", Created(map[string]any{"name": "ui"}))
	return r, zed, amy
}

func TestQueryAuditFiltersAndPages(t *testing.T) {
	r, _, _ := seedAuditUsers(t)

	page, err := QueryAudit(r.DB, AuditQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 4, page.Total)
	assert.Equal(t, 1, page.Pages)
	assert.Equal(t, MenuTags, page.Logs[0].Menu, "newest first")

	page, err = QueryAudit(r.DB, AuditQuery{Action: "update"})
	require.NoError(t, err)
	require.Len(t, page.Logs, 1)
	assert.Equal(t, []string{`changed field title from "P1" to "P2"`}, page.Logs[0].Changes)
	require.NotNil(t, page.Logs[0].User)
	assert.Equal(t, "amy", page.Logs[0].User.Username)

	page, err = QueryAudit(r.DB, AuditQuery{Menu: MenuProjects, Limit: 1, Page: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)
	assert.Equal(t, 2, page.Pages)
	require.Len(t, page.Logs, 1)
	assert.Equal(t, models.ActionCreate, page.Logs[0].Action)

	page, err = QueryAudit(r.DB, AuditQuery{User: "ZE"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)

	page, err = QueryAudit(r.DB, AuditQuery{User: "nobody"})
	require.NoError(t, err)
	assert.EqualValues(t, 0, page.Total)
	assert.Empty(t, page.Logs)

	_, err = QueryAudit(r.DB, AuditQuery{SortBy: "details"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = QueryAudit(r.DB, AuditQuery{Order: "sideways"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestQueryAuditSortsByUserAcrossPages(t *testing.T) {
	r, zed, amy := seedAuditUsers(t)

	// SQLite sorts the entry without a user first
	var order []string
	for p := 1; p <= 2; p++ {
		page, err := QueryAudit(r.DB, AuditQuery{SortBy: "user", Order: "asc", Limit: 2, Page: p})
		require.NoError(t, err)
		for _, l := range page.Logs {
			if l.UserID == nil {
				order = append(order, "")
				continue
			}
			order = append(order, *l.UserID)
		}
	}
	assert.Equal(t, []string{"", amy.ID, zed.ID, zed.ID}, order)

	page, err := QueryAudit(r.DB, AuditQuery{SortBy: "user", Order: "desc", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Logs, 2)
	assert.Equal(t, zed.ID, *page.Logs[0].UserID)
	assert.Equal(t, zed.ID, *page.Logs[1].UserID)
}
