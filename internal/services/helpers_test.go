package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/localnerve/qatrack/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func ptr[T any](v T) *T { return &v }

func seedProject(t *testing.T, db *gorm.DB, title string, responsibles ...string) *models.Project {
	t.Helper()
	in := ProjectInput{Title: ptr(title)}
	if len(responsibles) > 0 {
		in.Responsibles = &responsibles
	}
	p, err := CreateProject(db, in)
	require.NoError(t, err)
	return p
}

func seedDemand(t *testing.T, db *gorm.DB, projectID, name string, hours float64, responsibles ...string) *models.Demand {
	t.Helper()
	in := DemandInput{Name: ptr(name), ProjectID: ptr(projectID), EstimatedHours: ptr(hours)}
	if len(responsibles) > 0 {
		in.Responsibles = &responsibles
	}
	d, err := CreateDemand(db, in)
	require.NoError(t, err)
	return d
}

func seedScenario(t *testing.T, db *gorm.DB, demandID, title, status string) *models.Scenario {
	t.Helper()
	s, err := CreateScenario(db, ScenarioInput{
		Title:    ptr(title),
		DemandID: ptr(demandID),
		Status:   ptr(status),
		Steps:    &[]string{"open the page", " ", "click save"},
	})
	require.NoError(t, err)
	return s
}

func seedEvidence(t *testing.T, db *gorm.DB, demandID string, names ...string) *models.Demand {
	t.Helper()
	files := make([]models.Evidence, 0, len(names))
	for i, n := range names {
		files = append(files, models.Evidence{
			ID:           uuid.NewString(),
			Filename:     n,
			OriginalName: n,
			MimeType:     "image/png",
			Size:         int64(10 + i),
			UploadedAt:   time.Now().Add(time.Duration(i) * time.Second),
		})
	}
	d, err := AddEvidence(db, demandID, "", files)
	require.NoError(t, err)
	return d
}

func setDemandStatus(t *testing.T, db *gorm.DB, id, status string) {
	t.Helper()
	_, _, err := UpdateDemand(db, id, DemandInput{Status: ptr(status)})
	require.NoError(t, err)
}

func count(t *testing.T, db *gorm.DB, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	q := db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}
