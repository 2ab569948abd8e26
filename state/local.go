package state

import (
	"log/slog"
	"sync"

	toolbar "github.com/launchdarkly/launchdarkly-toolbar"
	"github.com/launchdarkly/launchdarkly-toolbar/override"
)

// LocalReconciler merges the host SDK's evaluated flag values with the
// override plugin's forced values (SDK mode). It listens for the host's
// change notifications and recomputes only the reported keys, so untouched
// entries keep their previous contents and downstream consumers can skip
// re-render work for them.
type LocalReconciler struct {
	client    toolbar.Client
	overrides *override.Plugin
	logger    *slog.Logger

	mu        sync.RWMutex
	flags     map[string]Flag
	subs      map[int]func(changed []string)
	nextSubID int
	unlisten  func()
	closed    bool
}

// LocalOption configures a [LocalReconciler].
type LocalOption func(*LocalReconciler)

// WithLocalLogger sets the logger; defaults to [slog.Default].
func WithLocalLogger(l *slog.Logger) LocalOption {
	return func(r *LocalReconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewLocalReconciler computes the initial flag view from client.AllFlags()
// and subscribes to the host's change notifications. Call Close to detach.
func NewLocalReconciler(client toolbar.Client, overrides *override.Plugin, opts ...LocalOption) *LocalReconciler {
	r := &LocalReconciler{
		client:    client,
		overrides: overrides,
		logger:    slog.Default(),
		flags:     make(map[string]Flag),
		subs:      make(map[int]func([]string)),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.recomputeAll()
	r.unlisten = client.OnChange(r.handleChange)
	return r
}

// Flags returns a copy of the reconciled flag map.
func (r *LocalReconciler) Flags() map[string]Flag {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Flag, len(r.flags))
	for k, v := range r.flags {
		out[k] = v
	}
	return out
}

// Subscribe registers a listener invoked with the keys whose entries changed.
// The returned function removes the listener.
func (r *LocalReconciler) Subscribe(fn func(changed []string)) (remove func()) {
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

// SetOverride forces a value through the override plugin and recomputes the
// affected entry. The host SDK's own change notification, if any, recomputes
// it again idempotently.
func (r *LocalReconciler) SetOverride(key string, value any) {
	r.overrides.SetOverride(key, value)
	r.handleChange([]string{key})
}

// RemoveOverride clears a forced value and recomputes the affected entry.
func (r *LocalReconciler) RemoveOverride(key string) {
	r.overrides.RemoveOverride(key)
	r.handleChange([]string{key})
}

// ClearAllOverrides clears every forced value and recomputes the entries
// that were overridden.
func (r *LocalReconciler) ClearAllOverrides() {
	overridden := make([]string, 0)
	for k := range r.overrides.AllOverrides() {
		overridden = append(overridden, k)
	}
	r.overrides.ClearAllOverrides()
	if len(overridden) > 0 {
		r.handleChange(overridden)
	}
}

// AllOverrides exposes the override plugin's current map.
func (r *LocalReconciler) AllOverrides() map[string]any {
	return r.overrides.AllOverrides()
}

// Close detaches the host change listener. Further change notifications are
// ignored.
func (r *LocalReconciler) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	unlisten := r.unlisten
	r.mu.Unlock()

	if unlisten != nil {
		unlisten()
	}
}

// handleChange recomputes the reported keys plus any newly appeared keys,
// leaving every other entry untouched.
func (r *LocalReconciler) handleChange(changedKeys []string) {
	evaluated := r.client.AllFlags()
	overrides := r.overrides.AllOverrides()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}

	keys := make(map[string]struct{}, len(changedKeys))
	for _, k := range changedKeys {
		keys[k] = struct{}{}
	}
	for k := range evaluated {
		if _, known := r.flags[k]; !known {
			keys[k] = struct{}{}
		}
	}

	changed := make([]string, 0, len(keys))
	for k := range keys {
		value, evaluatedOK := evaluated[k]
		ov, overridden := overrides[k]
		switch {
		case !evaluatedOK && !overridden:
			if _, present := r.flags[k]; present {
				delete(r.flags, k)
				changed = append(changed, k)
			}
		default:
			if overridden {
				value = ov
			}
			r.flags[k] = Flag{
				Key:          k,
				Name:         FlagName(k),
				CurrentValue: value,
				IsOverridden: overridden,
				Type:         InferType(value, nil),
			}
			changed = append(changed, k)
		}
	}
	subs := make([]func([]string), 0, len(r.subs))
	for _, fn := range r.subs {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	if len(changed) == 0 {
		return
	}
	for _, fn := range subs {
		fn(changed)
	}
}

// recomputeAll builds the full flag map from scratch.
func (r *LocalReconciler) recomputeAll() {
	evaluated := r.client.AllFlags()
	overrides := r.overrides.AllOverrides()

	flags := make(map[string]Flag, len(evaluated))
	for k, value := range evaluated {
		ov, overridden := overrides[k]
		if overridden {
			value = ov
		}
		flags[k] = Flag{
			Key:          k,
			Name:         FlagName(k),
			CurrentValue: value,
			IsOverridden: overridden,
			Type:         InferType(value, nil),
		}
	}
	// Overridden flags the SDK does not know about still appear.
	for k, ov := range overrides {
		if _, ok := flags[k]; !ok {
			flags[k] = Flag{
				Key:          k,
				Name:         FlagName(k),
				CurrentValue: ov,
				IsOverridden: true,
				Type:         InferType(ov, nil),
			}
		}
	}

	r.mu.Lock()
	r.flags = flags
	r.mu.Unlock()
}
