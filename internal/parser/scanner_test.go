package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanFindsSessionLogs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main/sessions/b.jsonl", agentLine)
	writeFile(t, root, "main/sessions/a.jsonl", agentLine)
	writeFile(t, root, "main/sessions/a.jsonl.lock", "")
	writeFile(t, root, "main/sessions/old.jsonl.deleted", agentLine)
	writeFile(t, root, "coder/sessions/x.jsonl", anthropicLine)
	writeFile(t, root, "coder/notes.txt", "hi")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "idle"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "main/sessions/nested.jsonl"), 0o755))
	writeFile(t, root, "README.md", "not an agent")

	files, diags, err := Scan([]string{root, filepath.Join(root, "missing")})
	require.NoError(t, err)
	assert.Empty(t, diags)

	require.Len(t, files, 3)
	assert.Equal(t, "coder", files[0].Agent)
	assert.Equal(t, filepath.Join(root, "coder/sessions/x.jsonl"), files[0].Path)
	assert.Equal(t, filepath.Join(root, "main/sessions/a.jsonl"), files[1].Path)
	assert.Equal(t, filepath.Join(root, "main/sessions/b.jsonl"), files[2].Path)
	for _, f := range files {
		assert.True(t, filepath.IsAbs(f.Path))
		assert.False(t, f.ModTime.IsZero())
	}
}

func TestScanFollowsSymlinkedAgents(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	writeFile(t, other, "sessions/s.jsonl", agentLine)
	require.NoError(t, os.Symlink(other, filepath.Join(root, "linked")))

	files, _, err := Scan([]string{root})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "linked", files[0].Agent)
}

func TestScanMissingRootsAreNotAnError(t *testing.T) {
	files, diags, err := Scan([]string{filepath.Join(t.TempDir(), "nope")})
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.Empty(t, diags)
}

func TestScanNoReadableRoots(t *testing.T) {
	notDir := writeFile(t, t.TempDir(), "file", "x")

	_, diags, err := Scan([]string{notDir})
	require.ErrorIs(t, err, ErrNoReadableRoots)
	assert.Len(t, diags, 1)
}

func TestScanOneReadableRootIsEnough(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main/sessions/a.jsonl", agentLine)
	notDir := writeFile(t, t.TempDir(), "file", "x")

	files, diags, err := Scan([]string{notDir, root})
	require.NoError(t, err)
	assert.Len(t, files, 1)
	assert.Len(t, diags, 1)
}

func TestDirScanner(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main/sessions/a.jsonl", agentLine)

	files, _, err := DirScanner{}.Scan([]string{root})
	require.NoError(t, err)
	assert.Len(t, files, 1)
}
