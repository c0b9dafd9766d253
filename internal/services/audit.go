package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/localnerve/qatrack/internal/models"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

// Audited entity types, stored as the audit menu.
const (
	MenuProjects     = "projects"
	MenuDemands      = "demandas"
	MenuScenarios    = "scenarios"
	MenuEvidence     = "evidence"
	MenuTags         = "tags"
	MenuResponsibles = "responsaveis"
	MenuVersions     = "versions"
	MenuServers      = "servers"
	MenuUsers        = "users"
	MenuConfig       = "config"
)

// DefaultAuditTimeout bounds one audit write.
const DefaultAuditTimeout = 5 * time.Second

var auditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "qatrack_audit_write_failures_total",
	Help: "Audit entries that could not be stored.",
})

// strippedKeys never reach a stored snapshot.
var strippedKeys = []string{
	"password", "passwordHash", "resetPasswordToken", "resetPasswordExpires",
	"__v", "version", "evidences",
}

// diffIgnoredKeys are not reported as field changes.
var diffIgnoredKeys = []string{"id", "_id", "createdAt", "updatedAt"}

// AuditDetails is the payload of an audit entry. Create carries New, Delete
// carries Old, Update carries both and an optional summary.
type AuditDetails struct {
	Old     map[string]any `json:"old,omitempty"`
	New     map[string]any `json:"new,omitempty"`
	Summary string         `json:"summary,omitempty"`
}

// Created builds the details of a create.
func Created(v any) AuditDetails { return AuditDetails{New: Snapshot(v)} }

// Updated builds the details of an update.
func Updated(before, after any) AuditDetails {
	return AuditDetails{Old: Snapshot(before), New: Snapshot(after)}
}

// Deleted builds the details of a delete.
func Deleted(v any) AuditDetails { return AuditDetails{Old: Snapshot(v)} }

// Snapshot renders v as a JSON object without secrets, version counters or
// evidence. A nil or non-object value yields nil.
func Snapshot(v any) map[string]any {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return sanitize(out)
}

func sanitize(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	for _, key := range strippedKeys {
		delete(m, key)
	}
	return m
}

// Recorder writes audit entries. A failed write is logged and counted,
// never returned.
type Recorder struct {
	DB      *gorm.DB
	Timeout time.Duration
}

// NewRecorder creates a recorder with the default write timeout.
func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{DB: db, Timeout: DefaultAuditTimeout}
}

// Record stores one audit entry, bounded by the recorder timeout. The
// request context's cancellation does not abort the write.
func (r *Recorder) Record(ctx context.Context, action, menu, targetID, userID string, details AuditDetails) {
	if r == nil || r.DB == nil {
		return
	}

	details.Old = sanitize(details.Old)
	details.New = sanitize(details.New)

	payload, err := models.NewJSON(details)
	if err != nil {
		auditWriteFailures.Inc()
		log.Printf("audit: encode %s %s %s: %v", action, menu, targetID, err)
		return
	}

	entry := models.AuditLog{
		ID:        ulid.Make().String(),
		Action:    action,
		Menu:      menu,
		TargetID:  targetID,
		Details:   payload,
		CreatedAt: time.Now(),
	}
	if userID != "" {
		entry.UserID = &userID
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultAuditTimeout
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := r.DB.WithContext(writeCtx).Create(&entry).Error; err != nil {
		auditWriteFailures.Inc()
		log.Printf("audit: write %s %s %s: %v", action, menu, targetID, err)
	}
}

// AuditQuery is the read side filter, sort and page request.
type AuditQuery struct {
	Page      int
	Limit     int
	Action    string
	Menu      string
	User      string
	StartDate string
	EndDate   string
	StartTime string
	EndTime   string
	SortBy    string
	Order     string
	// Now anchors time-only bounds; zero means the current time.
	Now time.Time
}

// AuditEntry is a stored entry with its rendered field changes.
type AuditEntry struct {
	models.AuditLog
	Changes []string `json:"changes"`
}

// AuditPage is one page of audit entries.
type AuditPage struct {
	Logs  []AuditEntry `json:"logs"`
	Total int64        `json:"total"`
	Page  int          `json:"page"`
	Pages int          `json:"pages"`
}

const (
	defaultAuditLimit = 20
	maxAuditLimit     = 100
)

var auditSortColumns = map[string]string{
	"createdAt": "audit_logs.created_at",
	"action":    "audit_logs.action",
	"menu":      "audit_logs.menu",
	"user":      "users.name",
}

// QueryAudit returns a page of audit entries, newest first by default.
// Sorting by user joins the acting user so ordering is global across pages.
func QueryAudit(db *gorm.DB, q AuditQuery) (*AuditPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultAuditLimit
	}
	if q.Limit > maxAuditLimit {
		q.Limit = maxAuditLimit
	}

	sortColumn, ok := auditSortColumns[q.SortBy]
	if q.SortBy == "" {
		sortColumn, ok = auditSortColumns["createdAt"], true
	}
	if !ok {
		return nil, invalid("sortBy must be one of createdAt, action, menu, user")
	}
	direction := "DESC"
	switch strings.ToLower(q.Order) {
	case "", "desc":
	case "asc":
		direction = "ASC"
	default:
		return nil, invalid("order must be asc or desc")
	}

	start, end, err := auditRange(q)
	if err != nil {
		return nil, err
	}

	query := db.Model(&models.AuditLog{})
	if q.Action != "" {
		query = query.Where("audit_logs.action = ?", strings.ToUpper(q.Action))
	}
	if q.Menu != "" {
		query = query.Where("audit_logs.menu = ?", q.Menu)
	}
	if s := strings.TrimSpace(q.User); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		var userIDs []string
		if err := db.Model(&models.User{}).
			Where("LOWER(name) LIKE ? OR LOWER(username) LIKE ?", like, like).
			Pluck("id", &userIDs).Error; err != nil {
			return nil, err
		}
		if len(userIDs) == 0 {
			return &AuditPage{Logs: []AuditEntry{}, Page: q.Page}, nil
		}
		query = query.Where("audit_logs.user_id IN ?", userIDs)
	}
	if start != nil {
		query = query.Where("audit_logs.created_at >= ?", *start)
	}
	if end != nil {
		query = query.Where("audit_logs.created_at <= ?", *end)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, err
	}

	rowsQuery := query.Session(&gorm.Session{}).Preload("User")
	if q.SortBy == "user" {
		rowsQuery = rowsQuery.Joins("LEFT JOIN users ON users.id = audit_logs.user_id")
	}

	var logs []models.AuditLog
	if err := rowsQuery.Select("audit_logs.*").
		Order(fmt.Sprintf("%s %s", sortColumn, direction)).
		Order("audit_logs.id DESC").
		Offset((q.Page - 1) * q.Limit).Limit(q.Limit).
		Find(&logs).Error; err != nil {
		return nil, err
	}

	page := &AuditPage{
		Logs:  make([]AuditEntry, 0, len(logs)),
		Total: total,
		Page:  q.Page,
		Pages: int(math.Ceil(float64(total) / float64(q.Limit))),
	}
	for _, l := range logs {
		page.Logs = append(page.Logs, AuditEntry{AuditLog: l, Changes: RenderChanges(l.Details)})
	}
	return page, nil
}

// auditRange resolves the date and time bounds. A date without a time spans
// the whole day; a time without a date applies to today.
func auditRange(q AuditQuery) (*time.Time, *time.Time, error) {
	now := q.Now
	if now.IsZero() {
		now = time.Now()
	}
	today := now.Format("2006-01-02")

	start, err := auditBound(q.StartDate, q.StartTime, today, "00:00:00", "start")
	if err != nil {
		return nil, nil, err
	}
	end, err := auditBound(q.EndDate, q.EndTime, today, "23:59:59.999", "end")
	if err != nil {
		return nil, nil, err
	}
	return start, end, nil
}

func auditBound(date, clock, today, defaultClock, which string) (*time.Time, error) {
	if date == "" && clock == "" {
		return nil, nil
	}
	if date == "" {
		date = today
	}
	if clock == "" {
		clock = defaultClock
	} else if len(clock) == len("15:04") {
		clock += ":00"
	}

	layout := "2006-01-02 15:04:05"
	if strings.Contains(clock, ".") {
		layout = "2006-01-02 15:04:05.000"
	}
	t, err := time.ParseInLocation(layout, date+" "+clock, time.Local)
	if err != nil {
		return nil, invalid("%s date or time is not valid", which)
	}
	return &t, nil
}

// RenderChanges lists the human readable changes stored in audit details.
func RenderChanges(raw models.JSON) []string {
	var details AuditDetails
	if err := raw.Decode(&details); err != nil {
		return []string{}
	}
	changes := []string{}
	if details.Summary != "" {
		changes = append(changes, details.Summary)
	}
	if details.Old != nil && details.New != nil {
		changes = append(changes, DiffSnapshots(details.Old, details.New)...)
	}
	return changes
}

// DiffSnapshots reports every field whose serialized value differs between
// the two snapshots. Arrays are summarized by length.
func DiffSnapshots(before, after map[string]any) []string {
	keys := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		keys[k] = struct{}{}
	}
	for k := range after {
		keys[k] = struct{}{}
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		if contains(diffIgnoredKeys, k) || contains(strippedKeys, k) {
			continue
		}
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	lines := []string{}
	for _, k := range sorted {
		a, b := before[k], after[k]
		if serialize(a) == serialize(b) {
			continue
		}
		lines = append(lines, fmt.Sprintf("changed field %s from %s to %s", k, describe(a), describe(b)))
	}
	return lines
}

func serialize(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}

func describe(v any) string {
	switch t := v.(type) {
	case nil:
		return "(empty)"
	case string:
		if t == "" {
			return "(empty)"
		}
		return fmt.Sprintf("%q", t)
	case []any:
		return fmt.Sprintf("[%d items]", len(t))
	}
	return serialize(v)
}
