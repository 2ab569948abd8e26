// Package event defines the canonical event model for the toolbar: the kinds
// and categories of host SDK events, normalization of raw hook payloads into
// [ProcessedEvent] records, and declarative filtering.
package event

// Kind is the host SDK's event taxonomy.
type Kind string

const (
	KindIdentify   Kind = "identify"
	KindFeature    Kind = "feature"
	KindCustom     Kind = "custom"
	KindDebug      Kind = "debug"
	KindSummary    Kind = "summary"
	KindDiagnostic Kind = "diagnostic"
)

// KnownKind reports whether k is one of the six kinds the host SDK emits.
func KnownKind(k Kind) bool {
	switch k {
	case KindIdentify, KindFeature, KindCustom, KindDebug, KindSummary, KindDiagnostic:
		return true
	}
	return false
}

// Category is the coarse grouping the toolbar UI filters on.
type Category string

const (
	CategoryFlag     Category = "flag"
	CategoryCustom   Category = "custom"
	CategoryIdentify Category = "identify"
	CategoryDebug    Category = "debug"
)

// CategoryOf maps a kind to its category. The mapping is total: kinds without
// a dedicated category fall into [CategoryDebug].
func CategoryOf(k Kind) Category {
	switch k {
	case KindFeature:
		return CategoryFlag
	case KindCustom:
		return CategoryCustom
	case KindIdentify:
		return CategoryIdentify
	default:
		return CategoryDebug
	}
}

// EvalContext is the evaluation context attached to host SDK events.
type EvalContext struct {
	Kind       string         `json:"kind,omitempty"`
	Key        string         `json:"key,omitempty"`
	Anonymous  bool           `json:"anonymous,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RawEvent is the payload shape delivered by the host SDK's hook points.
// Only Kind is always present; the remaining fields are populated per kind
// and per hook point (the enqueue-time hook sees the richest shape).
type RawEvent struct {
	Kind         string         `json:"kind"`
	Key          string         `json:"key,omitempty"`
	Context      *EvalContext   `json:"context,omitempty"`
	Value        any            `json:"value,omitempty"`
	Default      any            `json:"default,omitempty"`
	Version      *int           `json:"version,omitempty"`
	Variation    *int           `json:"variation,omitempty"`
	TrackEvents  bool           `json:"trackEvents,omitempty"`
	Reason       map[string]any `json:"reason,omitempty"`
	Data         any            `json:"data,omitempty"`
	MetricValue  *float64       `json:"metricValue,omitempty"`
	URL          string         `json:"url,omitempty"`
	CreationDate int64          `json:"creationDate,omitempty"`
}

// ProcessedEvent is the canonical, immutable record stored for inspection.
// Timestamp is the capture time in epoch milliseconds, not the event's
// origination time. Context retains the raw payload for detail drill-down.
type ProcessedEvent struct {
	ID          string         `json:"id"`
	Kind        Kind           `json:"kind"`
	Key         string         `json:"key,omitempty"`
	Timestamp   int64          `json:"timestamp"`
	Context     RawEvent       `json:"context"`
	DisplayName string         `json:"displayName"`
	Category    Category       `json:"category"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
