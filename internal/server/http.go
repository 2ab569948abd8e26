// Package server implements the dev server's HTTP API: project discovery,
// per-project flag snapshots, and server-side override mutations.
package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/launchdarkly/launchdarkly-toolbar/devserver"
	"github.com/launchdarkly/launchdarkly-toolbar/internal/metrics"
	"github.com/launchdarkly/launchdarkly-toolbar/internal/project"
)

const maxJSONBodyBytes = 1 << 20

var errJSONBodyTooLarge = errors.New("json request body too large")

// HTTPServer serves the dev server API over a project registry. Server-side
// overrides live in memory and survive projects-file reloads.
type HTTPServer struct {
	registry *project.Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu        sync.Mutex
	overrides map[string]map[string]devserver.Override
}

// NewHTTPHandler builds the dev server's HTTP handler. The metrics argument
// may be nil, which disables the /metrics endpoint and request counters.
func NewHTTPHandler(registry *project.Registry, logger *slog.Logger, m *metrics.Metrics) http.Handler {
	if registry == nil {
		panic("registry is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	server := &HTTPServer{
		registry:  registry,
		logger:    logger,
		metrics:   m,
		overrides: make(map[string]map[string]devserver.Override),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/projects", server.instrument("/api/projects", server.handleListProjects))
	mux.HandleFunc("GET /api/projects/{key}", server.instrument("/api/projects/{key}", server.handleProjectSnapshot))
	mux.HandleFunc("PUT /api/projects/{key}/overrides/{flag}", server.instrument("/api/projects/{key}/overrides/{flag}", server.handlePutOverride))
	mux.HandleFunc("DELETE /api/projects/{key}/overrides/{flag}", server.instrument("/api/projects/{key}/overrides/{flag}", server.handleDeleteOverride))
	mux.HandleFunc("DELETE /api/projects/{key}/overrides", server.instrument("/api/projects/{key}/overrides", server.handleClearOverrides))
	mux.HandleFunc("GET /healthz", server.handleHealthz)
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	return mux
}

func (s *HTTPServer) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	if s.metrics == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		status := strconv.Itoa(recorder.status)
		s.metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		s.metrics.HTTPRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *HTTPServer) handleListProjects(w http.ResponseWriter, _ *http.Request) {
	names := s.registry.Names()
	projects := make([]devserver.Project, 0, len(names))
	for _, key := range s.registry.Keys() {
		projects = append(projects, devserver.Project{Key: key, Name: names[key]})
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *HTTPServer) handleProjectSnapshot(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.PathValue("key"))
	proj, ok := s.registry.Get(key)
	if !ok {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("project %q not found", key))
		return
	}

	snapshot := devserver.Snapshot{
		FlagsState:           make(map[string]devserver.FlagState, len(proj.Flags)),
		Overrides:            s.overridesFor(key),
		AvailableVariations:  make(map[string][]devserver.Variation, len(proj.Flags)),
		SourceEnvironmentKey: proj.EnvironmentKey,
		LastSyncedFromSource: s.registry.LoadedAt(),
	}

	for flagKey, flag := range proj.Flags {
		snapshot.FlagsState[flagKey] = devserver.FlagState{
			Value:     flag.Value,
			Version:   flag.Version,
			Variation: variationIndex(flag),
		}
		if len(flag.Variations) > 0 {
			variations := make([]devserver.Variation, 0, len(flag.Variations))
			for _, v := range flag.Variations {
				variations = append(variations, devserver.Variation{ID: v.ID, Value: v.Value})
			}
			snapshot.AvailableVariations[flagKey] = variations
		}
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// variationIndex reports which variation the flag's current value matches,
// or nil when the value is not one of the declared variations.
func variationIndex(flag project.Flag) *int {
	for idx, v := range flag.Variations {
		if reflect.DeepEqual(v.Value, flag.Value) {
			i := idx
			return &i
		}
	}
	return nil
}

type overrideRequest struct {
	Value any `json:"value"`
}

func (s *HTTPServer) handlePutOverride(w http.ResponseWriter, r *http.Request) {
	projectKey := strings.TrimSpace(r.PathValue("key"))
	flagKey := strings.TrimSpace(r.PathValue("flag"))
	if _, ok := s.registry.Get(projectKey); !ok {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("project %q not found", projectKey))
		return
	}
	if flagKey == "" {
		writeJSONError(w, http.StatusBadRequest, "flag key is required")
		return
	}

	raw, err := readJSONBody(w, r)
	if err != nil {
		writeJSONDecodeError(w, err)
		return
	}
	var fields map[string]any
	if err := sonic.Unmarshal(raw, &fields); err != nil {
		writeJSONDecodeError(w, err)
		return
	}
	if _, ok := fields["value"]; !ok {
		writeJSONError(w, http.StatusBadRequest, "value is required")
		return
	}
	var request overrideRequest
	if err := sonic.Unmarshal(raw, &request); err != nil {
		writeJSONDecodeError(w, err)
		return
	}

	s.mu.Lock()
	if s.overrides[projectKey] == nil {
		s.overrides[projectKey] = make(map[string]devserver.Override)
	}
	s.overrides[projectKey][flagKey] = devserver.Override{Value: request.Value, Active: true}
	s.mu.Unlock()

	s.logger.Info("override set", "project", projectKey, "flag", flagKey)
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleDeleteOverride(w http.ResponseWriter, r *http.Request) {
	projectKey := strings.TrimSpace(r.PathValue("key"))
	flagKey := strings.TrimSpace(r.PathValue("flag"))
	if _, ok := s.registry.Get(projectKey); !ok {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("project %q not found", projectKey))
		return
	}

	s.mu.Lock()
	delete(s.overrides[projectKey], flagKey)
	s.mu.Unlock()

	s.logger.Info("override removed", "project", projectKey, "flag", flagKey)
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleClearOverrides(w http.ResponseWriter, r *http.Request) {
	projectKey := strings.TrimSpace(r.PathValue("key"))
	if _, ok := s.registry.Get(projectKey); !ok {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("project %q not found", projectKey))
		return
	}

	s.mu.Lock()
	delete(s.overrides, projectKey)
	s.mu.Unlock()

	s.logger.Info("overrides cleared", "project", projectKey)
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) overridesFor(projectKey string) map[string]devserver.Override {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]devserver.Override, len(s.overrides[projectKey]))
	for k, v := range s.overrides[projectKey] {
		out[k] = v
	}
	return out
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSONDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errJSONBodyTooLarge) {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, err := sonic.Marshal(payload)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func readJSONBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, io.EOF
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, errJSONBodyTooLarge
		}
		return nil, err
	}
	return data, nil
}
