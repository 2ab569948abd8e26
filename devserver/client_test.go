package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Client, *http.ServeMux) {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, HTTPClient: srv.Client()}), mux
}

func TestProjects(t *testing.T) {
	c, mux := newTestServer(t)
	mux.HandleFunc("GET /api/projects", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Project{{Key: "web", Name: "Web App"}})
	})

	got, err := c.Projects(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "web", got[0].Key)
}

func TestProjectSnapshot(t *testing.T) {
	c, mux := newTestServer(t)
	mux.HandleFunc("GET /api/projects/web", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"flagsState": map[string]any{
				"dark-mode": map[string]any{"value": true, "version": 3},
			},
			"overrides": map[string]any{
				"dark-mode": map[string]any{"value": false, "active": true},
			},
			"availableVariations": map[string]any{
				"dark-mode": []map[string]any{{"value": true}, {"value": false}},
			},
			"sourceEnvironmentKey":  "production",
			"_lastSyncedFromSource": 1700000000000,
		})
	})

	snap, err := c.ProjectSnapshot(context.Background(), "web")
	require.NoError(t, err)
	assert.Equal(t, true, snap.FlagsState["dark-mode"].Value)
	assert.Equal(t, 3, snap.FlagsState["dark-mode"].Version)
	assert.True(t, snap.Overrides["dark-mode"].Active)
	assert.Len(t, snap.AvailableVariations["dark-mode"], 2)
	assert.Equal(t, "production", snap.SourceEnvironmentKey)
	assert.Equal(t, int64(1700000000000), snap.LastSyncedFromSource)
}

func TestOverrideMutations(t *testing.T) {
	c, mux := newTestServer(t)

	var putBody map[string]any
	mux.HandleFunc("PUT /api/projects/web/overrides/dark-mode", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&putBody))
		w.WriteHeader(http.StatusNoContent)
	})
	var deleted, clearedAll bool
	mux.HandleFunc("DELETE /api/projects/web/overrides/dark-mode", func(w http.ResponseWriter, r *http.Request) {
		deleted = true
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("DELETE /api/projects/web/overrides", func(w http.ResponseWriter, r *http.Request) {
		clearedAll = true
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.PutOverride(context.Background(), "web", "dark-mode", true))
	assert.Equal(t, map[string]any{"value": true}, putBody)

	require.NoError(t, c.DeleteOverride(context.Background(), "web", "dark-mode"))
	assert.True(t, deleted)

	require.NoError(t, c.ClearOverrides(context.Background(), "web"))
	assert.True(t, clearedAll)
}

func TestErrorStatusBecomesAPIError(t *testing.T) {
	c, mux := newTestServer(t)
	mux.HandleFunc("GET /api/projects/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "project not found", http.StatusNotFound)
	})

	_, err := c.ProjectSnapshot(context.Background(), "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "error = %v, want *APIError", err)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "project not found", apiErr.Message)
}
