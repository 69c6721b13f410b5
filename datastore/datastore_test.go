package datastore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSnapshot(t *testing.T, backups int) *Snapshot {
	t.Helper()
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "global", "memory.json"))
	cfg.BackupCount = backups
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func TestLoadMissing(t *testing.T) {
	s := newTestSnapshot(t, 0)

	_, err := s.Load()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestSnapshot(t, 0)

	require.NoError(t, s.Save(map[string]any{"guilds": map[string]any{"1": map[string]any{"x": 1.0}}}))

	doc, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"guilds": map[string]any{"1": map[string]any{"x": 1.0}}}, doc)

	_, err = os.Stat(s.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")
}

func TestCorruptSnapshotIsQuarantined(t *testing.T) {
	s := newTestSnapshot(t, 0)
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o644))

	_, err := s.Load()
	require.ErrorIs(t, err, ErrCorrupt)

	_, err = os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err))
	matches, _ := filepath.Glob(s.Path() + ".corrupt.*")
	assert.Len(t, matches, 1)
}

func TestBackupsAreRotated(t *testing.T) {
	s := newTestSnapshot(t, 2)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Save(map[string]any{"n": float64(i)}))
	}

	matches, err := filepath.Glob(s.Path() + ".backup.*")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(matches), 2)
}

func TestUnchangedSaveIsSkipped(t *testing.T) {
	s := newTestSnapshot(t, 3)
	doc := map[string]any{"a": "b"}

	require.NoError(t, s.Save(doc))
	require.NoError(t, s.Save(doc))

	matches, _ := filepath.Glob(s.Path() + ".backup.*")
	assert.Empty(t, matches, "second save of identical content must not back up")
}
