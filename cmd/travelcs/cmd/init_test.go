package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angeless/travelcs/internal/config"
)

func TestInitCreatesWorkspace(t *testing.T) {
	dir := t.TempDir()

	out, err := runCLI(t, dir, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "travelcs.yaml")

	for _, name := range []string{
		"travelcs.yaml",
		filepath.Join("documents", "products.yaml"),
		filepath.Join("documents", "faqs.yaml"),
		filepath.Join("documents", "refund-policy.md"),
	} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, "init should create %s", name)
	}

	// The generated config must load and validate.
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "documents", cfg.DocumentsDir)
	assert.True(t, cfg.Index.Canary.Enabled)
}

func TestInitKeepsExistingFiles(t *testing.T) {
	dir := t.TempDir()

	custom := []byte("data_dir: .kb\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "travelcs.yaml"), custom, 0o644))

	out, err := runCLI(t, dir, "init", "--no-samples")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	kept, err := os.ReadFile(filepath.Join(dir, "travelcs.yaml"))
	require.NoError(t, err)
	assert.Equal(t, custom, kept)
}

func TestInitNoSamples(t *testing.T) {
	dir := t.TempDir()

	_, err := runCLI(t, dir, "init", "--no-samples")
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "documents"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInitThenIndexAndSearch(t *testing.T) {
	t.Setenv("TRAVELCS_EMBEDDER", "static")
	dir := t.TempDir()

	_, err := runCLI(t, dir, "init")
	require.NoError(t, err)

	out, err := runCLI(t, dir, "index")
	require.NoError(t, err)
	assert.Contains(t, out, "新增")

	out, err = runCLI(t, dir, "search", "巴厘岛")
	require.NoError(t, err)
	assert.Contains(t, out, "P001")
}
