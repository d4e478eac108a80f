package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// Run from a directory with no config file so only defaults apply.
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "https://en.wikipedia.org/w/api.php", cfg.Wikipedia.APIURL)
	assert.Equal(t, "https://query.wikidata.org/sparql", cfg.Wikidata.SPARQLURL)
	assert.Equal(t, 50, cfg.Batch.Size)
	assert.Equal(t, 5, cfg.Batch.AttrGroupSize)
	assert.Equal(t, 30*time.Second, cfg.Locks.TTL)
	assert.Equal(t, time.Minute, cfg.Locks.QueryTTL)
	assert.Equal(t, time.Minute, cfg.Locks.Window)
	assert.Equal(t, 5, cfg.Enrich.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Enrich.BaseDelay)
	assert.Equal(t, 2*time.Minute, cfg.Reconcile.FreshnessWindow)
	assert.Contains(t, cfg.HTTP.UserAgent, "mailto:")
	assert.Len(t, cfg.Schedule.Months, 12)
}

func TestLoad_FileOverrides(t *testing.T) {
	dir := t.TempDir()
	body := []byte("batch:\n  size: 25\nlocks:\n  window: 0s\nlog:\n  level: debug\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), body, 0o644))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Batch.Size)
	assert.Equal(t, time.Duration(0), cfg.Locks.Window)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestInitLogger_BadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	require.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
}
