package state

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/launchdarkly/launchdarkly-toolbar/devserver"
	"github.com/launchdarkly/launchdarkly-toolbar/storage"
)

// DefaultPollInterval is the remote reconciler's snapshot polling cadence.
const DefaultPollInterval = 5 * time.Second

// projectPrefKey persists the last-used project selection across sessions.
const projectPrefKey = "ld-toolbar:project"

// SnapshotClient is the dev-server surface the remote reconciler consumes.
// *devserver.Client implements it.
type SnapshotClient interface {
	Projects(ctx context.Context) ([]devserver.Project, error)
	ProjectSnapshot(ctx context.Context, projectKey string) (devserver.Snapshot, error)
	PutOverride(ctx context.Context, projectKey, flagKey string, value any) error
	DeleteOverride(ctx context.Context, projectKey, flagKey string) error
	ClearOverrides(ctx context.Context, projectKey string) error
}

// RemoteOption configures a [RemoteReconciler].
type RemoteOption func(*RemoteReconciler)

// WithPollInterval changes the polling cadence.
func WithPollInterval(d time.Duration) RemoteOption {
	return func(r *RemoteReconciler) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithProjectKey pins the project to connect to. When set, the key must be
// present in the dev server's project list; otherwise connecting fails with
// an error naming the valid alternatives.
func WithProjectKey(key string) RemoteOption {
	return func(r *RemoteReconciler) { r.configuredProject = key }
}

// WithPreferences sets the store persisting the project selection; defaults
// to an in-memory store.
func WithPreferences(s storage.Store) RemoteOption {
	return func(r *RemoteReconciler) {
		if s != nil {
			r.prefs = s
		}
	}
}

// WithRemoteLogger sets the logger; defaults to [slog.Default].
func WithRemoteLogger(l *slog.Logger) RemoteOption {
	return func(r *RemoteReconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithOnError registers a callback invoked with every connection or
// round-trip failure, in addition to the error surfacing in the state.
func WithOnError(fn func(error)) RemoteOption {
	return func(r *RemoteReconciler) { r.onError = fn }
}

// WithPollCounters wires instrumentation callbacks for poll outcomes.
func WithPollCounters(onSuccess, onFailure func()) RemoteOption {
	return func(r *RemoteReconciler) {
		r.onPollSuccess = onSuccess
		r.onPollFailure = onFailure
	}
}

// RemoteReconciler maintains flag state from a polled dev-server snapshot
// merged with locally tracked overrides (remote-snapshot mode).
//
// The connection lifecycle is an explicit state machine, Disconnected ->
// Connecting -> Connected or Error, driven entirely by [RemoteReconciler.Tick].
// The poll timer only calls Tick, so recovery is automatic: every tick from
// the Error state re-attempts the full connect sequence, including project
// discovery if no project was resolved yet.
//
// Every fetch carries a sequence token and a response is applied only if no
// later-issued response was applied before it, so a slow poll can never
// overwrite newer state. Overrides set through the reconciler are mirrored
// locally and merged over every applied snapshot, so they win regardless of
// how the round-trip and an in-flight poll interleave.
type RemoteReconciler struct {
	client            SnapshotClient
	prefs             storage.Store
	configuredProject string
	interval          time.Duration
	logger            *slog.Logger
	onError           func(error)
	onPollSuccess     func()
	onPollFailure     func()

	mu             sync.Mutex
	st             ToolbarState
	localOverrides map[string]any
	nextToken      uint64
	appliedToken   uint64
	subs           map[int]func()
	nextSubID      int
	cancel         context.CancelFunc
	closed         bool
}

// NewRemoteReconciler creates a reconciler in the Disconnected state. Call
// Start to begin polling, or drive Tick manually.
func NewRemoteReconciler(client SnapshotClient, opts ...RemoteOption) *RemoteReconciler {
	r := &RemoteReconciler{
		client:   client,
		prefs:    storage.NewMemory(),
		interval: DefaultPollInterval,
		logger:   slog.Default(),
		st: ToolbarState{
			Flags:            make(map[string]Flag),
			ConnectionStatus: StatusDisconnected,
		},
		localOverrides: make(map[string]any),
		subs:           make(map[int]func()),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns a copy of the current toolbar state.
func (r *RemoteReconciler) State() ToolbarState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyStateLocked()
}

// Subscribe registers a change listener; the returned function removes it.
func (r *RemoteReconciler) Subscribe(fn func()) (remove func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSubID
	r.nextSubID++
	r.subs[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

// Start launches the poll loop: one immediate tick, then one per interval,
// until ctx is cancelled or Close is called.
func (r *RemoteReconciler) Start(ctx context.Context) {
	r.mu.Lock()
	if r.closed || r.cancel != nil {
		r.mu.Unlock()
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	go func() {
		r.Tick(ctx)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Tick(ctx)
			}
		}
	}()
}

// Close stops polling and detaches the reconciler; responses arriving after
// Close are discarded.
func (r *RemoteReconciler) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Tick runs one poll cycle: resolve the project if none is resolved yet,
// fetch the snapshot, and apply it. Both refresh and connection recovery run
// through here; failures land in the Error state and the next tick retries.
func (r *RemoteReconciler) Tick(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.nextToken++
	token := r.nextToken
	project := r.st.CurrentProjectKey
	if project == "" {
		r.st.ConnectionStatus = StatusConnecting
	}
	r.mu.Unlock()

	if project == "" {
		resolved, err := r.connect(ctx)
		if err != nil {
			r.fail(err)
			return
		}
		project = resolved
	}

	snap, err := r.client.ProjectSnapshot(ctx, project)
	if err != nil {
		r.fail(fmt.Errorf("fetch snapshot for %q: %w", project, err))
		return
	}
	r.apply(token, snap)
}

// Refresh forces an immediate poll cycle.
func (r *RemoteReconciler) Refresh(ctx context.Context) {
	r.Tick(ctx)
}

// SwitchProject changes the active project, persists the selection, and
// fetches its snapshot immediately.
func (r *RemoteReconciler) SwitchProject(ctx context.Context, projectKey string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.st.CurrentProjectKey = projectKey
	r.st.IsLoading = true
	r.localOverrides = make(map[string]any)
	r.mu.Unlock()
	r.notify()

	if err := r.prefs.Set(projectPrefKey, projectKey); err != nil {
		r.logger.Warn("persisting project selection failed", "project", projectKey, "error", err)
	}

	r.Tick(ctx)

	r.mu.Lock()
	r.st.IsLoading = false
	r.mu.Unlock()
	r.notify()
}

// SetOverride sets a server-side override and mirrors it locally so the
// override wins over any in-flight snapshot.
func (r *RemoteReconciler) SetOverride(ctx context.Context, key string, value any) error {
	return r.mutateOverride(ctx, func(project string) error {
		return r.client.PutOverride(ctx, project, key, value)
	}, func() {
		r.localOverrides[key] = value
		if f, ok := r.st.Flags[key]; ok {
			f.CurrentValue = value
			f.IsOverridden = true
			r.st.Flags[key] = f
		} else {
			r.st.Flags[key] = Flag{
				Key:          key,
				Name:         FlagName(key),
				CurrentValue: value,
				IsOverridden: true,
				Type:         InferType(value, nil),
			}
		}
	})
}

// ClearOverride removes one server-side override. The flag reverts to its
// snapshot value immediately and is trued up on the next poll.
func (r *RemoteReconciler) ClearOverride(ctx context.Context, key string) error {
	return r.mutateOverride(ctx, func(project string) error {
		return r.client.DeleteOverride(ctx, project, key)
	}, func() {
		delete(r.localOverrides, key)
		if f, ok := r.st.Flags[key]; ok {
			f.CurrentValue = f.OriginalValue
			f.IsOverridden = false
			r.st.Flags[key] = f
		}
	})
}

// ClearAllOverrides removes every server-side override for the project.
func (r *RemoteReconciler) ClearAllOverrides(ctx context.Context) error {
	return r.mutateOverride(ctx, func(project string) error {
		return r.client.ClearOverrides(ctx, project)
	}, func() {
		r.localOverrides = make(map[string]any)
		for key, f := range r.st.Flags {
			f.CurrentValue = f.OriginalValue
			f.IsOverridden = false
			r.st.Flags[key] = f
		}
	})
}

// mutateOverride runs one override round-trip: loading is flagged for its
// duration and always reset, success applies the local mutation and clears
// the error, failure surfaces the error in the state and the callback.
func (r *RemoteReconciler) mutateOverride(ctx context.Context, call func(project string) error, onSuccess func()) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	project := r.st.CurrentProjectKey
	if project == "" {
		r.mu.Unlock()
		return fmt.Errorf("no project connected")
	}
	r.st.IsLoading = true
	r.mu.Unlock()
	r.notify()

	err := call(project)

	r.mu.Lock()
	if err != nil {
		r.st.Err = err.Error()
	} else {
		r.st.Err = ""
		onSuccess()
	}
	r.st.IsLoading = false
	r.mu.Unlock()
	r.notify()

	if err != nil && r.onError != nil {
		r.onError(err)
	}
	return err
}

// connect resolves which project to serve, by priority: the persisted
// selection when still available, the configured key, then the first
// available project. The resolved key is persisted for future sessions.
func (r *RemoteReconciler) connect(ctx context.Context) (string, error) {
	projects, err := r.client.Projects(ctx)
	if err != nil {
		return "", fmt.Errorf("list projects: %w", err)
	}
	keys := make([]string, 0, len(projects))
	for _, p := range projects {
		keys = append(keys, p.Key)
	}

	resolved, err := r.resolveProjectKey(keys)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.st.AvailableProjects = keys
	r.st.CurrentProjectKey = resolved
	r.mu.Unlock()

	if err := r.prefs.Set(projectPrefKey, resolved); err != nil {
		r.logger.Warn("persisting project selection failed", "project", resolved, "error", err)
	}
	return resolved, nil
}

func (r *RemoteReconciler) resolveProjectKey(available []string) (string, error) {
	if persisted, ok, err := r.prefs.Get(projectPrefKey); err == nil && ok && contains(available, persisted) {
		return persisted, nil
	}
	if r.configuredProject != "" {
		if contains(available, r.configuredProject) {
			return r.configuredProject, nil
		}
		return "", fmt.Errorf("configured project %q not found; available projects: %s",
			r.configuredProject, strings.Join(available, ", "))
	}
	if len(available) == 0 {
		return "", fmt.Errorf("dev server reports no projects")
	}
	return available[0], nil
}

// apply merges a fetched snapshot, unless a later-issued response has already
// been applied (stale-response guard) or the reconciler was closed.
func (r *RemoteReconciler) apply(token uint64, snap devserver.Snapshot) {
	r.mu.Lock()
	if r.closed || token <= r.appliedToken {
		r.mu.Unlock()
		return
	}
	r.appliedToken = token

	flags := make(map[string]Flag, len(snap.FlagsState))
	for key, fs := range snap.FlagsState {
		variations := convertVariations(snap.AvailableVariations[key])
		f := Flag{
			Key:                 key,
			Name:                FlagName(key),
			CurrentValue:        fs.Value,
			OriginalValue:       fs.Value,
			AvailableVariations: variations,
			Type:                InferType(fs.Value, variations),
		}
		if ov, ok := snap.Overrides[key]; ok && ov.Active {
			f.CurrentValue = ov.Value
			f.IsOverridden = true
		}
		// Local overrides merge last so they win over every snapshot.
		if lov, ok := r.localOverrides[key]; ok {
			f.CurrentValue = lov
			f.IsOverridden = true
		}
		flags[key] = f
	}
	r.st.Flags = flags
	r.st.ConnectionStatus = StatusConnected
	r.st.Err = ""
	r.st.LastSyncTime = time.Now()
	r.st.SourceEnvironmentKey = snap.SourceEnvironmentKey
	r.mu.Unlock()

	if r.onPollSuccess != nil {
		r.onPollSuccess()
	}
	r.notify()
}

func (r *RemoteReconciler) fail(err error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.st.ConnectionStatus = StatusError
	r.st.Err = err.Error()
	r.mu.Unlock()

	r.logger.Warn("dev server poll failed", "error", err)
	if r.onPollFailure != nil {
		r.onPollFailure()
	}
	if r.onError != nil {
		r.onError(err)
	}
	r.notify()
}

func (r *RemoteReconciler) notify() {
	r.mu.Lock()
	subs := make([]func(), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

func (r *RemoteReconciler) copyStateLocked() ToolbarState {
	st := r.st
	st.Flags = make(map[string]Flag, len(r.st.Flags))
	for k, v := range r.st.Flags {
		st.Flags[k] = v
	}
	st.AvailableProjects = append([]string(nil), r.st.AvailableProjects...)
	return st
}

func convertVariations(in []devserver.Variation) []Variation {
	if len(in) == 0 {
		return nil
	}
	out := make([]Variation, len(in))
	for i, v := range in {
		out[i] = Variation{ID: v.ID, Name: v.Name, Value: v.Value}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
