package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fishnet-client/fishnet/internal/config"
	"github.com/fishnet-client/fishnet/internal/domain"
)

func testConfig() config.Config {
	return config.Config{AppEnv: "test", HTTPReadTimeout: 2 * time.Second}
}

func TestAcquire_ReturnsJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fishnet/acquire", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))

		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"work_id": "abc123",
			"work":    map[string]any{"type": "analysis", "nnue": 2000000},
		})
	}))
	defer srv.Close()

	c := New(testConfig(), srv.URL, "secret", "fishnet-linux-amd64/2.0")
	res, err := c.Acquire(context.Background(), false, false, domain.FlavorNNUE)
	require.NoError(t, err)
	require.NotNil(t, res.Job)
	assert.Equal(t, "abc123", res.Job.WorkID)
	assert.Equal(t, domain.KindAnalysis, res.Job.Kind)
	assert.Equal(t, uint64(2000000), res.Job.NodesNNUE)
}

func TestAcquire_NoWork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(testConfig(), srv.URL, "secret", "ua")
	res, err := c.Acquire(context.Background(), false, false, "")
	require.NoError(t, err)
	assert.True(t, res.NoWork)
	assert.Nil(t, res.Job)
}

func TestAcquire_UpdateRequiredIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("update required"))
	}))
	defer srv.Close()

	c := New(testConfig(), srv.URL, "secret", "ua")
	_, err := c.Acquire(context.Background(), false, false, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpdateRequired)
}

func TestAcquire_RetriesOnTransient(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(testConfig(), srv.URL, "secret", "ua")
	res, err := c.Acquire(context.Background(), false, false, "")
	require.NoError(t, err)
	assert.True(t, res.NoWork)
	assert.Equal(t, 3, attempts)
}

func TestSubmitAnalysis_SendsPlyResults(t *testing.T) {
	var gotBody submitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fishnet/analysis/wid-1", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(testConfig(), srv.URL, "secret", "ua")
	results := []domain.PlyResult{
		{Status: domain.PlySkipped},
		{Status: domain.PlyComputed, PV: []string{"e2e4", "e7e5"}, Depth: 12, Score: domain.Score{CP: 20}},
	}
	res, err := c.SubmitAnalysis(context.Background(), "wid-1", results, true, domain.FlavorNNUE)
	require.NoError(t, err)
	assert.True(t, res.NoWork)
	require.Len(t, gotBody.Analysis, 2)
	assert.True(t, gotBody.Analysis[0].Skipped)
	assert.Equal(t, "e2e4 e7e5", gotBody.Analysis[1].PV)
	require.NotNil(t, gotBody.Analysis[1].Score.CP)
	assert.Equal(t, 20, *gotBody.Analysis[1].Score.CP)
}

func TestAbort_NotFoundIsBenign(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(testConfig(), srv.URL, "secret", "ua")
	err := c.Abort(context.Background(), "wid-1")
	assert.NoError(t, err)
}

func TestStatus_NotFoundMeansUnsupported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(testConfig(), srv.URL, "secret", "ua")
	_, ok, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatus_ParsesBacklog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user":   map[string]any{"acquired": 1, "queued": 2, "oldest_s": 5.5},
			"system": map[string]any{"acquired": 0, "queued": 10, "oldest_s": 61.0},
		})
	}))
	defer srv.Close()

	c := New(testConfig(), srv.URL, "secret", "ua")
	status, ok, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5.5, status.User.OldestS)
	assert.Equal(t, 61.0, status.System.OldestS)
}

func TestCheckKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fishnet/key/good" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(testConfig(), srv.URL, "secret", "ua")
	valid, err := c.CheckKey(context.Background(), "good")
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = c.CheckKey(context.Background(), "bad")
	require.NoError(t, err)
	assert.False(t, valid)
}
