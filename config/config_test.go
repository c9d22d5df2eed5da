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
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.CandidateCount)
	assert.Equal(t, "file", cfg.ArtifactStore)
	assert.Equal(t, 5*time.Minute, cfg.MatchLockTTL)
	assert.Equal(t, 0.25, cfg.RerankerValidationFrac)
	assert.Equal(t, int64(42), cfg.RerankerSeed)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
}

func TestLoadEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("ARTIFACT_STORE=redis\nMATCH_WORKERS=8\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("ARTIFACT_STORE")
		_ = os.Unsetenv("MATCH_WORKERS")
	})

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.ArtifactStore)
	assert.Equal(t, 8, cfg.MatchWorkers)
}
