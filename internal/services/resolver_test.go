package services

import (
	"testing"

	"github.com/localnerve/qatrack/internal/models"
	"github.com/localnerve/qatrack/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "alice", NormalizeName("  Alice "))
	assert.Equal(t, "", NormalizeName("   "))
}

func TestResolveNamesCollapsesCaseAndWhitespace(t *testing.T) {
	db := testutil.OpenDB(t)

	ids, err := ResolveNames[models.Responsible](db, []string{"  Alice ", "ALICE", "bob", ""})
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.EqualValues(t, 2, count(t, db, &models.Responsible{}, ""))

	again, err := ResolveNames[models.Responsible](db, []string{"alice"})
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Contains(t, ids, again[0])
	assert.EqualValues(t, 2, count(t, db, &models.Responsible{}, ""))

	var stored models.Responsible
	require.NoError(t, db.First(&stored, "id = ?", again[0]).Error)
	assert.Equal(t, "alice", stored.Name)
}

func TestResolveNamesKeepsVocabulariesApart(t *testing.T) {
	db := testutil.OpenDB(t)

	tagIDs, err := ResolveNames[models.Tag](db, []string{"release"})
	require.NoError(t, err)
	serverIDs, err := ResolveNames[models.Server](db, []string{"release"})
	require.NoError(t, err)

	assert.NotEqual(t, tagIDs[0], serverIDs[0])
	assert.EqualValues(t, 1, count(t, db, &models.Tag{}, ""))
	assert.EqualValues(t, 1, count(t, db, &models.Server{}, ""))
}

func TestResolveNamesEmpty(t *testing.T) {
	db := testutil.OpenDB(t)

	ids, err := ResolveNames[models.Version](db, nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
