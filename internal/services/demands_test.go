package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/localnerve/qatrack/internal/evidence"
	"github.com/localnerve/qatrack/internal/models"
	"github.com/localnerve/qatrack/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDemandValidation(t *testing.T) {
	db := testutil.OpenDB(t)
	p := seedProject(t, db, "P1")

	tests := []struct {
		name string
		in   DemandInput
		want error
	}{
		{"missing name", DemandInput{ProjectID: ptr(p.ID)}, ErrInvalidInput},
		{"missing project", DemandInput{Name: ptr("D")}, ErrInvalidInput},
		{"malformed project", DemandInput{Name: ptr("D"), ProjectID: ptr("nope")}, ErrInvalidInput},
		{"unknown project", DemandInput{Name: ptr("D"), ProjectID: ptr("1b4e28ba-2fa1-11d2-883f-0016d3cca427")}, ErrNotFound},
		{"negative hours", DemandInput{Name: ptr("D"), ProjectID: ptr(p.ID), EstimatedHours: ptr(-1.0)}, ErrInvalidInput},
		{"bad status", DemandInput{Name: ptr("D"), ProjectID: ptr(p.ID), Status: ptr("Done")}, ErrInvalidInput},
		{"bad link", DemandInput{Name: ptr("D"), ProjectID: ptr(p.ID), Link: ptr("ftp://x")}, ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateDemand(db, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateDemandDefaults(t *testing.T) {
	db := testutil.OpenDB(t)
	p := seedProject(t, db, "P1")

	d := seedDemand(t, db, p.ID, " Login Bug ", 1.5, "Alice", "alice")
	assert.Equal(t, "Login Bug", d.Name)
	assert.Equal(t, models.DemandPending, d.Status)
	assert.Len(t, d.Responsibles, 1)
	require.NotNil(t, d.Project)
	assert.Equal(t, "P1", d.Project.Title)
}

func TestDeleteDemandCascades(t *testing.T) {
	db := testutil.OpenDB(t)
	p := seedProject(t, db, "P1")
	d := seedDemand(t, db, p.ID, "D1", 1)
	other := seedDemand(t, db, p.ID, "D2", 1)
	seedScenario(t, db, d.ID, "S1", models.ScenarioAwaiting)
	seedScenario(t, db, other.ID, "S2", models.ScenarioAwaiting)

	deleted, err := DeleteDemand(db, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "D1", deleted.Name)

	assert.EqualValues(t, 0, count(t, db, &models.Scenario{}, "demand_id = ?", d.ID))
	assert.EqualValues(t, 1, count(t, db, &models.Scenario{}, "demand_id = ?", other.ID))
	assert.EqualValues(t, 1, count(t, db, &models.Project{}, ""))

	_, err = DeleteDemand(db, d.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCloneDemandCopiesScenariosButNotEvidence(t *testing.T) {
	db := testutil.OpenDB(t)
	p := seedProject(t, db, "P1")
	src := seedDemand(t, db, p.ID, "Login Bug", 3, "alice", "bob")
	for _, title := range []string{"S1", "S2", "S3"} {
		seedScenario(t, db, src.ID, title, models.ScenarioFailed)
	}
	seedEvidence(t, db, src.ID, "a.png", "b.png")
	setDemandStatus(t, db, src.ID, models.DemandTested)

	clone, source, err := CloneDemand(db, src.ID, DemandInput{})
	require.NoError(t, err)

	assert.Equal(t, "Login Bug", source.Name)
	assert.Equal(t, "Login Bug (Copy)", clone.Name)
	assert.Equal(t, p.ID, clone.ProjectID)
	assert.Equal(t, models.DemandPending, clone.Status, "a clone without evidence cannot be Tested")
	assert.Empty(t, clone.Evidences)
	assert.Equal(t, 3.0, clone.EstimatedHours)

	srcIDs := []string{src.Responsibles[0].ID, src.Responsibles[1].ID}
	cloneIDs := []string{clone.Responsibles[0].ID, clone.Responsibles[1].ID}
	assert.ElementsMatch(t, srcIDs, cloneIDs)

	scenarios, err := ListScenarios(db, ScenarioFilter{DemandID: clone.ID})
	require.NoError(t, err)
	titles := make([]string, 0, len(scenarios))
	for _, s := range scenarios {
		titles = append(titles, s.Title)
		assert.Equal(t, models.ScenarioFailed, s.Status)
		assert.Equal(t, []string{"open the page", "click save"}, []string(s.Steps))
	}
	assert.ElementsMatch(t, []string{"S1", "S2", "S3"}, titles)

	assert.EqualValues(t, 2, count(t, db, &models.Evidence{}, "demand_id = ?", src.ID))
	assert.EqualValues(t, 3, count(t, db, &models.Scenario{}, "demand_id = ?", src.ID))
}

func TestCloneDemandOverrides(t *testing.T) {
	db := testutil.OpenDB(t)
	p1 := seedProject(t, db, "P1")
	p2 := seedProject(t, db, "P2")
	src := seedDemand(t, db, p1.ID, "D1", 3, "alice")

	clone, _, err := CloneDemand(db, src.ID, DemandInput{
		Name:         ptr("D1 next sprint"),
		ProjectID:    ptr(p2.ID),
		Responsibles: &[]string{"carol"},
	})
	require.NoError(t, err)
	assert.Equal(t, "D1 next sprint", clone.Name)
	assert.Equal(t, p2.ID, clone.ProjectID)
	require.Len(t, clone.Responsibles, 1)
	assert.Equal(t, "carol", clone.Responsibles[0].Name)
}

func TestRemoveEvidenceRevertsTestedOnlyWhenEmpty(t *testing.T) {
	db := testutil.OpenDB(t)
	p := seedProject(t, db, "P1")
	d := seedDemand(t, db, p.ID, "D1", 1)
	d = seedEvidence(t, db, d.ID, "first.png", "second.png")
	require.Len(t, d.Evidences, 2)
	setDemandStatus(t, db, d.ID, models.DemandTested)

	removal, err := RemoveEvidence(db, d.ID, d.Evidences[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "first.png", removal.Evidence.OriginalName)
	assert.Equal(t, models.DemandTested, removal.After.Status)
	assert.Len(t, removal.After.Evidences, 1)

	removal, err = RemoveEvidence(db, d.ID, d.Evidences[1].ID)
	require.NoError(t, err)
	assert.Equal(t, models.DemandTested, removal.Before.Status)
	assert.Equal(t, models.DemandPending, removal.After.Status)
	assert.Empty(t, removal.After.Evidences)

	_, err = RemoveEvidence(db, d.ID, d.Evidences[1].ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveEvidenceKeepsOtherStatuses(t *testing.T) {
	db := testutil.OpenDB(t)
	p := seedProject(t, db, "P1")
	d := seedDemand(t, db, p.ID, "D1", 1)
	d = seedEvidence(t, db, d.ID, "only.png")
	setDemandStatus(t, db, d.ID, models.DemandAwaitingFix)

	removal, err := RemoveEvidence(db, d.ID, d.Evidences[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.DemandAwaitingFix, removal.After.Status)
}

func TestGetEvidence(t *testing.T) {
	db := testutil.OpenDB(t)
	p := seedProject(t, db, "P1")
	d := seedDemand(t, db, p.ID, "D1", 1)
	d = seedEvidence(t, db, d.ID, "only.png")

	demand, record, err := GetEvidence(db, d.ID, d.Evidences[0].ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, demand.ID)
	assert.Equal(t, "only.png", record.Filename)

	_, _, err = GetEvidence(db, d.ID, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListDemandsFilters(t *testing.T) {
	db := testutil.OpenDB(t)
	p1 := seedProject(t, db, "P1")
	p2 := seedProject(t, db, "P2")
	seedDemand(t, db, p1.ID, "Login Bug", 1, "alice")
	seedDemand(t, db, p1.ID, "Report", 1, "bob")
	seedDemand(t, db, p2.ID, "Export", 1, "alice")

	byProject, err := ListDemands(db, DemandFilter{ProjectID: p1.ID})
	require.NoError(t, err)
	assert.Len(t, byProject, 2)

	var alice models.Responsible
	require.NoError(t, db.Where("name = ?", "alice").First(&alice).Error)
	byResponsible, err := ListDemands(db, DemandFilter{ResponsibleID: alice.ID})
	require.NoError(t, err)
	assert.Len(t, byResponsible, 2)

	bySearch, err := ListDemands(db, DemandFilter{Search: "LOGIN"})
	require.NoError(t, err)
	require.Len(t, bySearch, 1)
	assert.Equal(t, "Login Bug", bySearch[0].Name)
}

func TestEvidenceDirOwnership(t *testing.T) {
	db := testutil.OpenDB(t)
	p := seedProject(t, db, "P1")
	first := seedDemand(t, db, p.ID, "Login Bug", 1)
	second := seedDemand(t, db, p.ID, "Login Bug", 1)
	require.NoError(t, db.Model(&models.Demand{}).Where("id = ?", first.ID).
		UpdateColumn("created_at", time.Now().Add(-time.Hour)).Error)
	first, _ = GetDemand(db, first.ID)
	second, _ = GetDemand(db, second.ID)

	name := evidence.Folder{Name: "Login Bug"}.DirName()

	// An older demand without a recorded folder owns its current name
	taken, err := EvidenceDirTaken(db, second, name)
	require.NoError(t, err)
	assert.True(t, taken)
	taken, err = EvidenceDirTaken(db, first, name)
	require.NoError(t, err)
	assert.False(t, taken)

	d, err := AddEvidence(db, first.ID, name, []models.Evidence{{
		ID: uuid.NewString(), Filename: "a.png", OriginalName: "a.png", MimeType: "image/png", UploadedAt: time.Now(),
	}})
	require.NoError(t, err)
	assert.Equal(t, name, d.EvidenceDir)

	taken, err = EvidenceDirTaken(db, second, name)
	require.NoError(t, err)
	assert.True(t, taken)
	taken, err = EvidenceDirTaken(db, first, name)
	require.NoError(t, err)
	assert.False(t, taken)

	require.NoError(t, SetEvidenceDir(db, second.ID, "elsewhere"))
	taken, err = EvidenceDirTaken(db, first, "elsewhere")
	require.NoError(t, err)
	assert.True(t, taken)
	taken, err = EvidenceDirTaken(db, second, "unused")
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestCloneStartsWithoutEvidenceDir(t *testing.T) {
	db := testutil.OpenDB(t)
	p := seedProject(t, db, "P1")
	src := seedDemand(t, db, p.ID, "Login Bug", 1)
	_, err := AddEvidence(db, src.ID, "_login_bug", []models.Evidence{{
		ID: uuid.NewString(), Filename: "a.png", OriginalName: "a.png", MimeType: "image/png", UploadedAt: time.Now(),
	}})
	require.NoError(t, err)

	clone, _, err := CloneDemand(db, src.ID, DemandInput{})
	require.NoError(t, err)
	assert.Empty(t, clone.EvidenceDir)
	assert.Empty(t, clone.Evidences)
}
