package app

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/artifact"
	"github.com/Ramsey-B/fern/pkg/review"
	"github.com/Ramsey-B/fern/pkg/review/reviewtest"
)

var logger = ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "none.env"))
	require.NoError(t, err)
	return cfg
}

func TestNewLogger(t *testing.T) {
	cfg := testConfig(t)

	_, err := NewLogger(cfg)
	require.NoError(t, err)

	cfg.LogLevel = "loud"
	_, err = NewLogger(cfg)
	assert.Error(t, err)
}

func TestArtifactStore(t *testing.T) {
	tests := []struct {
		name     string
		store    string
		wantType any
		wantErr  bool
	}{
		{"default file store", "", &artifact.FileStore{}, false},
		{"file store", artifact.StoreFile, &artifact.FileStore{}, false},
		{"redis store without redis", artifact.StoreRedis, nil, true},
		{"unknown store", "s3", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.ArtifactStore = tt.store
			a := New(cfg, logger)

			store, err := a.artifactStore()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, store)
		})
	}
}

func TestRerankerParams(t *testing.T) {
	cfg := testConfig(t)
	cfg.RerankerRounds = 7
	cfg.RerankerSeed = 9

	params := New(cfg, logger).rerankerParams()
	assert.Equal(t, 7, params.NumRounds)
	assert.Equal(t, int64(9), params.Seed)
	assert.Equal(t, 17, params.NumLeaves)
}

func TestRouter(t *testing.T) {
	a := New(testConfig(t), logger)
	a.Queue = review.NewQueue(reviewtest.NewMemoryStore(), nil, logger)
	e := a.NewRouter()

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/api/v1/health/live", http.StatusOK},
		{"/api/v1/health/ready", http.StatusServiceUnavailable},
		{"/api/v1/health", http.StatusServiceUnavailable},
		{"/api/v1/statistics", http.StatusOK},
		{"/api/v1/review", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/api/v1/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}
