// Package toolbar defines the contracts between the toolbar core and its
// external collaborators: the host evaluation SDK and the rendering layer.
//
// The host SDK is consumed through small interfaces rather than a concrete
// client so the core can be driven by any engine that exposes flag
// evaluation, change notification, and a debug override surface. The
// subpackages implement the core itself:
//
//   - event: canonical event model, normalization, and filtering
//   - interception: SDK hooks feeding a bounded observable event store
//   - override: persisted developer overrides pushed into the host SDK
//   - state: reconciliation of SDK, override, and dev-server flag state
//   - devserver: HTTP client for the local dev server's polling protocol
package toolbar

import "github.com/launchdarkly/launchdarkly-toolbar/event"

// Client is the read surface the toolbar consumes from the host SDK.
type Client interface {
	// AllFlags returns the current evaluated value of every flag known to
	// the SDK, keyed by flag key.
	AllFlags() map[string]any

	// Variation evaluates a single flag, returning def when the flag is
	// unknown.
	Variation(key string, def any) any

	// OnChange registers a listener invoked with the keys whose values
	// changed. The returned function removes the listener.
	OnChange(fn func(keys []string)) (remove func())
}

// DebugOverrideSetter is the host SDK's debug override surface. Values pushed
// here take precedence over evaluated values until removed.
type DebugOverrideSetter interface {
	SetOverride(key string, value any)
	RemoveOverride(key string)
	ClearAllOverrides()
}

// HookMetadata identifies a hook to the host SDK.
type HookMetadata struct {
	Name string
}

// PluginMetadata identifies a plugin to the host SDK.
type PluginMetadata struct {
	Name string
}

// Hook is the base contract for host SDK extension points.
type Hook interface {
	Metadata() HookMetadata
}

// EnqueueHook is invoked once per event actually queued for transmission by
// the host SDK. It receives the richest payload shape.
type EnqueueHook interface {
	Hook
	AfterEventEnqueue(ev event.RawEvent)
}

// EvaluationSeriesContext describes a single flag evaluation as seen by an
// EvaluationHook.
type EvaluationSeriesContext struct {
	FlagKey      string
	Context      event.EvalContext
	DefaultValue any
}

// EvaluationSeriesData is opaque hook-chain state owned by the host SDK.
// Hooks must return the value they were given.
type EvaluationSeriesData map[string]any

// EvaluationDetail is the result of one flag evaluation.
type EvaluationDetail struct {
	Value          any
	VariationIndex *int
	Reason         map[string]any
}

// EvaluationHook is invoked synchronously after every flag evaluation,
// including evaluations whose events are suppressed from transmission.
type EvaluationHook interface {
	Hook
	// AfterEvaluation must return data unchanged to satisfy the host's
	// hook-chaining contract.
	AfterEvaluation(series EvaluationSeriesContext, data EvaluationSeriesData, detail EvaluationDetail) EvaluationSeriesData
}
