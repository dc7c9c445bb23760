package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8787", cfg.Addr)
	assert.Equal(t, 5*time.Minute, cfg.GroupCacheTTL)
	assert.Equal(t, "diff-inserted", cfg.Diff.ClassInserted)
	assert.Equal(t, 32, cfg.Diff.MaxDepth)
	assert.Equal(t, 8, cfg.Builder.Concurrency)
	assert.Equal(t, 0.1, cfg.Feed.NotableVoteShare)
	assert.Equal(t, 30*time.Second, cfg.Export.Timeout)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proposals.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr = ":9000"
group_cache_ttl = "1m"

[log]
level = "debug"

[diff]
class_inserted = "ins"
`), 0o644))
	t.Setenv("PROPOSALS_ADDR", ":9100")
	t.Setenv("PROPOSALS_DIFF__MAX_NODES", "1000")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Addr)
	assert.Equal(t, time.Minute, cfg.GroupCacheTTL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "ins", cfg.Diff.ClassInserted)
	assert.Equal(t, "diff-deleted", cfg.Diff.ClassDeleted)
	assert.Equal(t, 1000, cfg.Diff.MaxNodes)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PROPOSALS_FEED__NOTABLE_VOTE_SHARE", "2")

	_, err := Load("")
	assert.ErrorContains(t, err, "notable_vote_share")
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "database_url", envKey("PROPOSALS_DATABASE_URL"))
	assert.Equal(t, "log.pretty", envKey("PROPOSALS_LOG__PRETTY"))
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(".env", []byte("PROPOSALS_DOTENV_CHECK=from-env\n"), 0o644))
	require.NoError(t, os.WriteFile(".env.local", []byte("PROPOSALS_DOTENV_CHECK=from-local\n"), 0o644))
	t.Setenv("PROPOSALS_DOTENV_CHECK", "")
	os.Unsetenv("PROPOSALS_DOTENV_CHECK")

	loaded := LoadDotEnv()

	assert.Equal(t, []string{".env.local", ".env"}, loaded)
	assert.Equal(t, "from-local", os.Getenv("PROPOSALS_DOTENV_CHECK"))
}
