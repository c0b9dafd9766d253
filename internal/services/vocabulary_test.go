package services

import (
	"testing"

	"github.com/localnerve/qatrack/internal/models"
	"github.com/localnerve/qatrack/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVocabularyLifecycle(t *testing.T) {
	db := testutil.OpenDB(t)

	tag, err := CreateVocab[models.Tag](db, "  Regression ")
	require.NoError(t, err)
	assert.Equal(t, "regression", tag.Name)

	_, err = CreateVocab[models.Tag](db, "REGRESSION")
	assert.ErrorIs(t, err, ErrConflict)

	before, after, err := RenameVocab[models.Tag](db, tag.ID, "Smoke")
	require.NoError(t, err)
	assert.Equal(t, "regression", before.Name)
	assert.Equal(t, "smoke", after.Name)

	tags, err := ListVocab[models.Tag](db)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "smoke", tags[0].Name)
}

func TestDeleteTagPullsItFromProjects(t *testing.T) {
	db := testutil.OpenDB(t)
	p, err := CreateProject(db, ProjectInput{Title: ptr("P1"), Tags: &[]string{"smoke", "ui"}})
	require.NoError(t, err)

	var smoke models.Tag
	require.NoError(t, db.Where("name = ?", "smoke").First(&smoke).Error)

	deleted, err := DeleteVocab[models.Tag](db, smoke.ID)
	require.NoError(t, err)
	assert.Equal(t, "smoke", deleted.Name)

	reloaded, err := GetProjectWithRefs(db, p.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.Tags, 1)
	assert.Equal(t, "ui", reloaded.Tags[0].Name)

	_, err = DeleteVocab[models.Tag](db, smoke.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteResponsibleClearsDemands(t *testing.T) {
	db := testutil.OpenDB(t)
	p := seedProject(t, db, "P1", "alice")
	d := seedDemand(t, db, p.ID, "D1", 1, "alice")

	_, err := DeleteVocab[models.Responsible](db, d.Responsibles[0].ID)
	require.NoError(t, err)

	reloaded, err := GetDemand(db, d.ID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.Responsibles)
	project, err := GetProjectWithRefs(db, p.ID)
	require.NoError(t, err)
	assert.Empty(t, project.Responsibles)
}
