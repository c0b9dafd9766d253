package services

import (
	"testing"

	"github.com/localnerve/qatrack/internal/models"
	"github.com/localnerve/qatrack/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProjectResolvesReferences(t *testing.T) {
	db := testutil.OpenDB(t)

	p, err := CreateProject(db, ProjectInput{
		Title:        ptr("  Checkout  "),
		Tags:         &[]string{"UI", "ui ", "payments"},
		Responsibles: &[]string{"Alice"},
		Versions:     &[]string{"2.1"},
		Servers:      &[]string{"staging"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Checkout", p.Title)
	assert.Equal(t, models.ProjectNotStarted, p.Status)
	assert.Len(t, p.Tags, 2)
	require.Len(t, p.Responsibles, 1)
	assert.Equal(t, "alice", p.Responsibles[0].Name)
	assert.Len(t, p.Versions, 1)
	assert.Len(t, p.Servers, 1)
}

func TestCreateProjectValidation(t *testing.T) {
	db := testutil.OpenDB(t)

	_, err := CreateProject(db, ProjectInput{Title: ptr(" ")})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = CreateProject(db, ProjectInput{Title: ptr("P"), Status: ptr("Sleeping")})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdateProjectReplacesOnlyGivenLists(t *testing.T) {
	db := testutil.OpenDB(t)
	_, err := CreateProject(db, ProjectInput{Title: ptr("P1"), Tags: &[]string{"a", "b"}})
	require.NoError(t, err)
	p, err := CreateProject(db, ProjectInput{Title: ptr("P2"), Tags: &[]string{"a"}, Servers: &[]string{"qa"}})
	require.NoError(t, err)

	before, after, err := UpdateProject(db, p.ID, ProjectInput{Status: ptr(models.ProjectInProgress), Tags: &[]string{"c"}})
	require.NoError(t, err)

	assert.Equal(t, models.ProjectNotStarted, before.Status)
	assert.Equal(t, models.ProjectInProgress, after.Status)
	require.Len(t, after.Tags, 1)
	assert.Equal(t, "c", after.Tags[0].Name)
	assert.Len(t, after.Servers, 1, "servers were not part of the update")
	assert.EqualValues(t, 3, count(t, db, &models.Tag{}, ""), "replaced tags stay in the vocabulary")
}

func TestDeleteProjectCascades(t *testing.T) {
	db := testutil.OpenDB(t)

	doomed := seedProject(t, db, "Doomed", "alice")
	d1 := seedDemand(t, db, doomed.ID, "D1", 2, "alice")
	d2 := seedDemand(t, db, doomed.ID, "D2", 3)
	seedScenario(t, db, d1.ID, "S1", models.ScenarioAwaiting)
	seedScenario(t, db, d1.ID, "S2", models.ScenarioFailed)
	seedScenario(t, db, d2.ID, "S3", models.ScenarioPassed)
	seedEvidence(t, db, d1.ID, "shot.png")

	kept := seedProject(t, db, "Kept")
	kd := seedDemand(t, db, kept.ID, "K1", 1)
	seedScenario(t, db, kd.ID, "KS", models.ScenarioAwaiting)

	deletion, err := DeleteProject(db, doomed.ID)
	require.NoError(t, err)
	assert.Equal(t, "Doomed", deletion.Project.Title)
	assert.Len(t, deletion.Demands, 2)

	assert.EqualValues(t, 0, count(t, db, &models.Project{}, "id = ?", doomed.ID))
	assert.EqualValues(t, 0, count(t, db, &models.Demand{}, "project_id = ?", doomed.ID))
	assert.EqualValues(t, 0, count(t, db, &models.Scenario{}, "demand_id IN ?", []string{d1.ID, d2.ID}))
	assert.EqualValues(t, 0, count(t, db, &models.Evidence{}, "demand_id = ?", d1.ID))

	assert.EqualValues(t, 1, count(t, db, &models.Project{}, ""))
	assert.EqualValues(t, 1, count(t, db, &models.Demand{}, ""))
	assert.EqualValues(t, 1, count(t, db, &models.Scenario{}, ""))
	assert.EqualValues(t, 1, count(t, db, &models.Responsible{}, ""), "vocabulary survives the cascade")
}

func TestDeleteProjectNotFound(t *testing.T) {
	db := testutil.OpenDB(t)

	_, err := DeleteProject(db, "1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCloneProjectDuplicatesTree(t *testing.T) {
	db := testutil.OpenDB(t)

	src := seedProject(t, db, "Source", "alice")
	d := seedDemand(t, db, src.ID, "D1", 4, "bob")
	seedScenario(t, db, d.ID, "S1", models.ScenarioPassed)
	seedScenario(t, db, d.ID, "S2", models.ScenarioFailed)
	seedEvidence(t, db, d.ID, "proof.png")
	setDemandStatus(t, db, d.ID, models.DemandTested)

	clone, source, err := CloneProject(db, src.ID, ProjectInput{})
	require.NoError(t, err)

	assert.Equal(t, "Source", source.Title)
	assert.Equal(t, "Source (Copy)", clone.Title)
	assert.NotEqual(t, src.ID, clone.ID)
	require.Len(t, clone.Responsibles, 1)
	assert.Equal(t, src.Responsibles[0].ID, clone.Responsibles[0].ID)

	demands, err := ListDemands(db, DemandFilter{ProjectID: clone.ID})
	require.NoError(t, err)
	require.Len(t, demands, 1)
	assert.Equal(t, "D1", demands[0].Name)
	assert.Empty(t, demands[0].Evidences)
	assert.Equal(t, models.DemandPending, demands[0].Status)
	assert.EqualValues(t, 2, count(t, db, &models.Scenario{}, "demand_id = ?", demands[0].ID))

	// The source is untouched
	assert.EqualValues(t, 2, count(t, db, &models.Scenario{}, "demand_id = ?", d.ID))
	assert.EqualValues(t, 1, count(t, db, &models.Evidence{}, "demand_id = ?", d.ID))
}
