package evidence

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"PROJ-1":            "proj_1",
		"Login Bug":         "login_bug",
		"Ação de Relatório": "acao_de_relatorio",
		"  a -- b  ":        "_a_b_",
		"ÇÃO/../x":          "cao_x",
	}
	for in, want := range cases {
		assert.Equal(t, want, Sanitize(in), "Sanitize(%q)", in)
	}
}

func TestEnsureDirectoryUsesCurrentScheme(t *testing.T) {
	store := NewStore(t.TempDir())
	f := Folder{ID: "0d6f7f1e-8a63-4d5c-9a39-6a1b1c2d3e4f", DisplayID: "PROJ-1", Name: "Login Bug"}

	dir, err := store.EnsureDirectory(f)
	require.NoError(t, err)
	assert.Equal(t, "proj_1_login_bug", filepath.Base(dir))

	resolved, err := store.ResolveDirectory(f)
	require.NoError(t, err)
	assert.Equal(t, dir, resolved)
}

func TestResolveDirectoryLegacyFallbacks(t *testing.T) {
	id := "0d6f7f1e-8a63-4d5c-9a39-6a1b1c2d3e4f"
	f := Folder{ID: id, DisplayID: "PROJ-1", Name: "Login Bug"}

	t.Run("display id and internal id", func(t *testing.T) {
		base := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(base, "proj_1_"+id), 0o755))

		dir, err := NewStore(base).ResolveDirectory(f)
		require.NoError(t, err)
		assert.Equal(t, "proj_1_"+id, filepath.Base(dir))
	})

	t.Run("bare internal id", func(t *testing.T) {
		base := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(base, id), 0o755))

		dir, err := NewStore(base).ResolveDirectory(f)
		require.NoError(t, err)
		assert.Equal(t, id, filepath.Base(dir))
	})

	t.Run("any prefix ending in internal id", func(t *testing.T) {
		base := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(base, "old_name_"+id), 0o755))

		dir, err := NewStore(base).ResolveDirectory(f)
		require.NoError(t, err)
		assert.Equal(t, "old_name_"+id, filepath.Base(dir))
	})

	t.Run("current name wins", func(t *testing.T) {
		base := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(base, id), 0o755))
		require.NoError(t, os.Mkdir(filepath.Join(base, "proj_1_login_bug"), 0o755))

		dir, err := NewStore(base).ResolveDirectory(f)
		require.NoError(t, err)
		assert.Equal(t, "proj_1_login_bug", filepath.Base(dir))
	})

	t.Run("nothing found", func(t *testing.T) {
		dir, err := NewStore(filepath.Join(t.TempDir(), "missing")).ResolveDirectory(f)
		require.NoError(t, err)
		assert.Empty(t, dir)
	})
}

func TestSaveRemove(t *testing.T) {
	store := NewStore(t.TempDir())
	f := Folder{ID: "0d6f7f1e-8a63-4d5c-9a39-6a1b1c2d3e4f", DisplayID: "PROJ-1", Name: "Login Bug"}

	name, n, err := store.Save(f, "Screen Shot.PNG", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.EqualValues(t, len("png-bytes"), n)
	assert.True(t, strings.HasSuffix(name, "-screen_shot.png"), name)

	p, err := store.Path(f, name)
	require.NoError(t, err)
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	// Path traversal never resolves
	p, err = store.Path(f, "../"+name)
	require.NoError(t, err)
	assert.Empty(t, p)

	require.NoError(t, store.Remove(f, name))
	p, err = store.Path(f, name)
	require.NoError(t, err)
	assert.Empty(t, p)
	require.NoError(t, store.Remove(f, name))

	require.NoError(t, store.RemoveDirectory(f))
	dir, err := store.ResolveDirectory(f)
	require.NoError(t, err)
	assert.Empty(t, dir)
}

func TestStoredFilename(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	name := StoredFilename("Relatório Final.pdf", now)
	assert.True(t, strings.HasPrefix(name, "1700000000000-"), name)
	assert.True(t, strings.HasSuffix(name, "-relatorio_final.pdf"), name)

	assert.True(t, strings.HasSuffix(StoredFilename("...", now), "-file"))
}

func TestRecordedDirectoryWins(t *testing.T) {
	id := "0d6f7f1e-8a63-4d5c-9a39-6a1b1c2d3e4f"
	base := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(base, "proj_1_old_name"), 0o755))

	// Renamed demand still finds the folder it was created with
	f := Folder{ID: id, DisplayID: "PROJ-2", Name: "New Name", Dir: "proj_1_old_name"}
	dir, err := NewStore(base).ResolveDirectory(f)
	require.NoError(t, err)
	assert.Equal(t, "proj_1_old_name", filepath.Base(dir))
}

func TestTakenFolderIsNotShared(t *testing.T) {
	id := "0d6f7f1e-8a63-4d5c-9a39-6a1b1c2d3e4f"
	base := t.TempDir()
	store := NewStore(base)
	require.NoError(t, os.Mkdir(filepath.Join(base, "proj_1_login_bug"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "proj_1_login_bug", "a.txt"), []byte("a"), 0o644))

	owned := func(name string) bool { return name == "proj_1_login_bug" }
	f := Folder{ID: id, DisplayID: "PROJ-1", Name: "Login Bug", Taken: owned}

	dir, err := store.ResolveDirectory(f)
	require.NoError(t, err)
	assert.Empty(t, dir)

	dir, err = store.EnsureDirectory(f)
	require.NoError(t, err)
	assert.Equal(t, "proj_1_"+id, filepath.Base(dir))

	// Removing the second demand's folder leaves the owner's alone
	require.NoError(t, store.RemoveDirectory(f))
	_, err = os.Stat(filepath.Join(base, "proj_1_login_bug", "a.txt"))
	require.NoError(t, err)
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveDirectorySkipsTakenRecordedFolder(t *testing.T) {
	base := t.TempDir()
	store := NewStore(base)
	require.NoError(t, os.Mkdir(filepath.Join(base, "shared"), 0o755))

	f := Folder{ID: "x", DisplayID: "P", Name: "n", Dir: "shared", Taken: func(string) bool { return true }}
	require.NoError(t, store.RemoveDirectory(f))
	_, err := os.Stat(filepath.Join(base, "shared"))
	require.NoError(t, err)
}
