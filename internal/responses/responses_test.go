package responses

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestDefaultTable(t *testing.T) {
	table := Default()
	require.NoError(t, table.Validate())

	for _, symbol := range []string{"AURA", "SPARK", "VOID"} {
		assert.Len(t, table.Replies(symbol), 3, symbol)
	}
	assert.Empty(t, table.Replies("NOVA"))
	assert.Len(t, table.Actions(), 5)
	assert.Equal(t, "Trust is earned through attention, human.", table.Replies("VOID")[2])
}

func TestNilTable(t *testing.T) {
	var table *Table
	assert.Nil(t, table.Replies("AURA"))
	assert.Nil(t, table.Actions())
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "responses.yaml")
	writeFile(t, path, `
replies:
  NOVA:
    - "A new star wakes."
  AURA:
    - "Only one thought remains."
`)

	table, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"A new star wakes."}, table.Replies("NOVA"))
	assert.Equal(t, []string{"Only one thought remains."}, table.Replies("AURA"))
	assert.Len(t, table.Replies("SPARK"), 3)
	assert.Len(t, table.Actions(), 5, "actions fall back to defaults")
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	dir := t.TempDir()

	blank := filepath.Join(dir, "blank.yaml")
	writeFile(t, blank, "replies:\n  AURA:\n    - \"  \"\n")
	_, err := LoadFile(blank)
	assert.ErrorIs(t, err, ErrInvalidTable)

	broken := filepath.Join(dir, "broken.yaml")
	writeFile(t, broken, "replies: [unterminated")
	_, err = LoadFile(broken)
	assert.ErrorIs(t, err, ErrInvalidTable)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestFileProviderHotReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "responses.yaml")
	writeFile(t, path, "actions:\n  - \"First action\"\n")

	fp, err := NewFileProvider(path, nil)
	require.NoError(t, err)
	require.NoError(t, fp.Watch())
	defer fp.Stop()
	assert.Equal(t, []string{"First action"}, fp.Actions())

	// Give fsnotify a moment to register
	time.Sleep(50 * time.Millisecond)
	writeFile(t, path, "actions:\n  - \"Second action\"\n")

	assert.Eventually(t, func() bool {
		actions := fp.Actions()
		return len(actions) == 1 && actions[0] == "Second action"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestFileProviderKeepsTableOnBadReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "responses.yaml")
	writeFile(t, path, "actions:\n  - \"Stable action\"\n")

	fp, err := NewFileProvider(path, nil)
	require.NoError(t, err)

	writeFile(t, path, "actions: [")
	assert.Error(t, fp.Reload())
	assert.Equal(t, []string{"Stable action"}, fp.Actions())

	fp.Stop()
	fp.Stop()
}
