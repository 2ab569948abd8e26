// Package override implements the developer override plugin: the single
// source of truth for flag values the developer has forced, independent of
// the host SDK's computed values. Overrides live in memory, are mirrored to
// persistent storage so they survive reloads, and are pushed into the host
// SDK's debug override surface so live evaluation reflects them immediately.
package override

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	toolbar "github.com/launchdarkly/launchdarkly-toolbar"
	"github.com/launchdarkly/launchdarkly-toolbar/storage"
)

// DefaultNamespace prefixes persisted override keys.
const DefaultNamespace = "ld-toolbar"

const pluginName = "launchdarkly-toolbar-flag-override"

// Option configures a [Plugin].
type Option func(*Plugin)

// WithNamespace changes the storage key prefix.
func WithNamespace(ns string) Option {
	return func(p *Plugin) {
		if ns != "" {
			p.namespace = ns
		}
	}
}

// WithStorage sets the persistence backend; defaults to an in-memory store.
func WithStorage(s storage.Store) Option {
	return func(p *Plugin) {
		if s != nil {
			p.store = s
		}
	}
}

// WithLogger sets the logger; defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(p *Plugin) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithGauge wires a callback reporting the number of active overrides.
func WithGauge(fn func(n int)) Option {
	return func(p *Plugin) { p.gauge = fn }
}

// Plugin owns the override map. Every mutating operation is best-effort per
// layer: a storage or host-interface failure is logged and skipped, never
// surfaced to the caller, because overrides are a developer convenience and
// must not crash the host application.
type Plugin struct {
	namespace string
	store     storage.Store
	logger    *slog.Logger
	gauge     func(int)

	mu        sync.RWMutex
	overrides map[string]any
	client    toolbar.Client
	setter    toolbar.DebugOverrideSetter
}

// New creates an override plugin. It becomes useful after [Plugin.Register].
func New(opts ...Option) *Plugin {
	p := &Plugin{
		namespace: DefaultNamespace,
		store:     storage.NewMemory(),
		logger:    slog.Default(),
		overrides: make(map[string]any),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Metadata names the plugin for host SDK registration.
func (p *Plugin) Metadata() toolbar.PluginMetadata {
	return toolbar.PluginMetadata{Name: pluginName}
}

// Register binds the plugin to the host SDK client and its debug override
// surface, then loads persisted overrides. Persisted entries that fail to
// parse are deleted from storage and logged; valid entries are loaded into
// memory and pushed into the host so overrides survive a reload.
func (p *Plugin) Register(client toolbar.Client, setter toolbar.DebugOverrideSetter) {
	p.mu.Lock()
	p.client = client
	p.setter = setter
	p.mu.Unlock()

	prefix := p.namespace + ":"
	keys, err := p.store.Keys(prefix)
	if err != nil {
		p.logger.Error("loading persisted overrides failed", "error", err)
		return
	}

	for _, storageKey := range keys {
		raw, ok, err := p.store.Get(storageKey)
		if err != nil || !ok {
			continue
		}
		flagKey := strings.TrimPrefix(storageKey, prefix)

		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			// Self-healing: a corrupt entry is removed rather than
			// blocking startup.
			p.logger.Warn("discarding malformed persisted override",
				"flag", flagKey, "error", err)
			if delErr := p.store.Delete(storageKey); delErr != nil {
				p.logger.Error("removing malformed override failed",
					"flag", flagKey, "error", delErr)
			}
			continue
		}

		p.mu.Lock()
		p.overrides[flagKey] = value
		p.mu.Unlock()
		p.pushToHost(flagKey, value)
	}
	p.reportGauge()
}

// SetOverride forces a value for the flag. An empty or whitespace key is
// rejected with a logged error and no other effect.
func (p *Plugin) SetOverride(key string, value any) {
	if strings.TrimSpace(key) == "" {
		p.logger.Error("override rejected: flag key must be a non-empty string")
		return
	}

	p.mu.Lock()
	p.overrides[key] = value
	p.mu.Unlock()

	if data, err := json.Marshal(value); err != nil {
		p.logger.Error("override value not serializable; not persisted",
			"flag", key, "error", err)
	} else if err := p.store.Set(p.storageKey(key), string(data)); err != nil {
		p.logger.Error("persisting override failed", "flag", key, "error", err)
	}

	p.pushToHost(key, value)
	p.reportGauge()
}

// RemoveOverride clears the forced value for the flag from memory, storage,
// and the host SDK.
func (p *Plugin) RemoveOverride(key string) {
	p.mu.Lock()
	delete(p.overrides, key)
	setter := p.setter
	p.mu.Unlock()

	if err := p.store.Delete(p.storageKey(key)); err != nil {
		p.logger.Error("removing persisted override failed", "flag", key, "error", err)
	}
	if setter != nil {
		callHost(p.logger, key, func() { setter.RemoveOverride(key) })
	}
	p.reportGauge()
}

// ClearAllOverrides removes every override this plugin owns from all three
// layers.
func (p *Plugin) ClearAllOverrides() {
	p.mu.Lock()
	keys := make([]string, 0, len(p.overrides))
	for k := range p.overrides {
		keys = append(keys, k)
	}
	p.overrides = make(map[string]any)
	setter := p.setter
	p.mu.Unlock()

	for _, k := range keys {
		if err := p.store.Delete(p.storageKey(k)); err != nil {
			p.logger.Error("removing persisted override failed", "flag", k, "error", err)
		}
	}
	if setter != nil {
		callHost(p.logger, "", func() { setter.ClearAllOverrides() })
	}
	p.reportGauge()
}

// AllOverrides returns a copy of the current override map.
func (p *Plugin) AllOverrides() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]any, len(p.overrides))
	for k, v := range p.overrides {
		out[k] = v
	}
	return out
}

// Client returns the wrapped host SDK client, or nil before registration.
func (p *Plugin) Client() toolbar.Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client
}

func (p *Plugin) storageKey(flagKey string) string {
	return p.namespace + ":" + flagKey
}

func (p *Plugin) pushToHost(key string, value any) {
	p.mu.RLock()
	setter := p.setter
	p.mu.RUnlock()
	if setter == nil {
		return
	}
	callHost(p.logger, key, func() { setter.SetOverride(key, value) })
}

func (p *Plugin) reportGauge() {
	if p.gauge == nil {
		return
	}
	p.mu.RLock()
	n := len(p.overrides)
	p.mu.RUnlock()
	p.gauge(n)
}

// callHost shields the plugin from a misbehaving host override surface.
func callHost(logger *slog.Logger, key string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("host override interface panicked", "flag", key, "panic", r)
		}
	}()
	fn()
}
