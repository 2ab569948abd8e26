package event

import (
	"fmt"
	"time"
)

const (
	unknownKey   = "unknown"
	anonymousKey = "anonymous"
)

// Normalizer converts raw hook payloads into [ProcessedEvent] records. It is
// safe for concurrent use; the only state is the ID counter.
type Normalizer struct {
	ids IDGenerator
}

// NewNormalizer returns a Normalizer with a fresh ID sequence.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize projects a raw payload into the canonical event shape. It never
// fails: missing or malformed fields are replaced with defaults so a partial
// payload still yields a usable record.
func (n *Normalizer) Normalize(raw RawEvent) ProcessedEvent {
	kind := Kind(raw.Kind)
	return ProcessedEvent{
		ID:          n.ids.NextID(kind),
		Kind:        kind,
		Key:         raw.Key,
		Timestamp:   time.Now().UnixMilli(),
		Context:     raw,
		DisplayName: displayName(kind, raw),
		Category:    CategoryOf(kind),
		Metadata:    metadata(kind, raw),
	}
}

func displayName(kind Kind, raw RawEvent) string {
	switch kind {
	case KindFeature:
		return "Flag: " + orUnknown(raw.Key)
	case KindCustom:
		return "Custom: " + orUnknown(raw.Key)
	case KindIdentify:
		key := anonymousKey
		if raw.Context != nil && raw.Context.Key != "" {
			key = raw.Context.Key
		}
		return "Identify: " + key
	default:
		return fmt.Sprintf("%s: %s", kind, orUnknown(raw.Key))
	}
}

// metadata extracts the kind-specific detail fields. The key set is stable
// per kind: absent source fields are stored as nil so consumers see a fixed
// shape.
func metadata(kind Kind, raw RawEvent) map[string]any {
	switch kind {
	case KindFeature:
		return map[string]any{
			"flagVersion":  nilableInt(raw.Version),
			"variation":    nilableInt(raw.Variation),
			"trackEvents":  raw.TrackEvents,
			"reason":       nilableMap(raw.Reason),
			"defaultValue": raw.Default,
		}
	case KindCustom:
		return map[string]any{
			"data":        raw.Data,
			"metricValue": nilableFloat(raw.MetricValue),
			"url":         nilableString(raw.URL),
		}
	case KindIdentify:
		return map[string]any{
			"contextKind": contextKind(raw.Context),
		}
	default:
		return nil
	}
}

// contextKind resolves the identify context kind: an explicit kind wins,
// anonymous contexts report "anonymousUser", and everything else (including
// a missing or empty context) falls back to the legacy "user".
func contextKind(ctx *EvalContext) string {
	if ctx == nil {
		return "user"
	}
	if ctx.Kind != "" {
		return ctx.Kind
	}
	if ctx.Anonymous {
		return "anonymousUser"
	}
	return "user"
}

func orUnknown(s string) string {
	if s == "" {
		return unknownKey
	}
	return s
}

func nilableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nilableFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nilableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nilableMap(m map[string]any) any {
	if m == nil {
		return nil
	}
	return m
}
