package interception

import (
	"log/slog"

	toolbar "github.com/launchdarkly/launchdarkly-toolbar"
	"github.com/launchdarkly/launchdarkly-toolbar/event"
)

const pluginName = "launchdarkly-toolbar-event-interception"

// Option configures a [Plugin].
type Option func(*options)

type options struct {
	filter     event.Filter
	capacity   int
	logger     *slog.Logger
	onNewEvent func(event.ProcessedEvent)
	onAccepted func(kind string)
	onFiltered func()
	onEvicted  func()
}

// WithFilter narrows which events the plugin records.
func WithFilter(f event.Filter) Option {
	return func(o *options) { o.filter = f }
}

// WithCapacity bounds the event store. Non-positive values use
// [DefaultCapacity].
func WithCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

// WithLogger sets the logger; defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithOnNewEvent registers a callback invoked with each stored event, after
// store subscribers have been notified.
func WithOnNewEvent(fn func(event.ProcessedEvent)) Option {
	return func(o *options) { o.onNewEvent = fn }
}

// WithEventCounters wires instrumentation callbacks: accepted events by kind,
// filtered-out events, and store evictions. Any may be nil.
func WithEventCounters(onAccepted func(kind string), onFiltered, onEvicted func()) Option {
	return func(o *options) {
		o.onAccepted = onAccepted
		o.onFiltered = onFiltered
		o.onEvicted = onEvicted
	}
}

// Plugin owns the event store and the two hook adapters that feed it. It is
// the event-inspection surface handed to the toolbar UI.
type Plugin struct {
	store *Store
	hooks []toolbar.Hook
}

// New creates an interception plugin. Register its Hooks with the host SDK,
// then read events through Events/Subscribe.
func New(opts ...Option) *Plugin {
	o := options{capacity: DefaultCapacity, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	store := NewStore(o.capacity)
	store.onEvict = o.onEvicted

	deliver := func(ev event.ProcessedEvent) {
		store.Add(ev)
		if o.onNewEvent != nil {
			o.onNewEvent(ev)
		}
	}
	pipe := &pipeline{
		normalizer: event.NewNormalizer(),
		filter:     o.filter.Compile(o.logger),
		deliver:    deliver,
		logger:     o.logger,
		onAccepted: o.onAccepted,
		onFiltered: o.onFiltered,
	}

	return &Plugin{
		store: store,
		hooks: []toolbar.Hook{&enqueueHook{pipe: pipe}, &evaluationHook{pipe: pipe}},
	}
}

// Metadata names the plugin for host SDK registration.
func (p *Plugin) Metadata() toolbar.PluginMetadata {
	return toolbar.PluginMetadata{Name: pluginName}
}

// Hooks returns the enqueue-time and post-evaluation hooks for registration
// with the host SDK.
func (p *Plugin) Hooks() []toolbar.Hook {
	return p.hooks
}

// Events returns a copy of the recorded events, oldest first.
func (p *Plugin) Events() []event.ProcessedEvent {
	return p.store.Events()
}

// Subscribe registers a change listener on the event store.
func (p *Plugin) Subscribe(fn func()) (remove func()) {
	return p.store.Subscribe(fn)
}

// ClearEvents empties the store and notifies subscribers.
func (p *Plugin) ClearEvents() {
	p.store.Clear()
}

// Destroy tears the plugin down, releasing events and subscribers.
func (p *Plugin) Destroy() {
	p.store.Destroy()
}
