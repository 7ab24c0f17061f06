package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclens/doclens/internal/config"
)

func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	got := map[string]bool{}
	for _, sub := range cmd.Commands() {
		got[sub.Name()] = true
	}
	for _, name := range []string{"init", "index", "search", "watch", "ask", "status", "version"} {
		assert.True(t, got[name], "missing subcommand %q", name)
	}
}

func TestInitCmd_WritesLoadableConfig(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, runCLI(t, "--dir", dir, "init"))

	path := filepath.Join(dir, config.ConfigFileName)
	_, err := os.Stat(path)
	require.NoError(t, err)

	// The template must round-trip through the real loader.
	_, err = config.Load(dir)
	require.NoError(t, err)

	// A second init must refuse to clobber the existing file.
	err = runCLI(t, "--dir", dir, "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestIndexThenSearch_EndToEnd(t *testing.T) {
	t.Setenv("DOCLENS_EMBEDDINGS_PROVIDER", "static")
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "billing.txt"),
		[]byte("Invoice G.P.# 12345 covers the quarterly billing cycle."), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"),
		[]byte("Meeting notes about the new search engine rollout."), 0644))

	require.NoError(t, runCLI(t, "--dir", dir, "index"))

	// The data directory must hold all three persisted stores.
	dataDir := filepath.Join(dir, config.DataDirName)
	for _, name := range []string{"vectors.gob", "metadata.db", "keyword"} {
		_, err := os.Stat(filepath.Join(dataDir, name))
		assert.NoError(t, err, "missing %s", name)
	}

	require.NoError(t, runCLI(t, "--dir", dir, "search", "G.P.#"))

	require.NoError(t, runCLI(t, "--dir", dir, "status"))
}

func TestIndexCmd_SecondRunIsNoOp(t *testing.T) {
	t.Setenv("DOCLENS_EMBEDDINGS_PROVIDER", "static")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.txt"),
		[]byte("stable content"), 0644))

	require.NoError(t, runCLI(t, "--dir", dir, "index"))
	// Unchanged files are skipped on the second pass.
	require.NoError(t, runCLI(t, "--dir", dir, "index"))
}
