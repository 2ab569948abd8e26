// Package state reconciles flag values from multiple sources into one
// coherent view. Two reconcilers exist: [LocalReconciler] merges the host
// SDK's evaluated flags with developer overrides, and [RemoteReconciler]
// merges a periodically polled dev-server snapshot with locally tracked
// overrides, driving an explicit connection state machine.
package state

import (
	"strings"
	"time"
)

// FlagType classifies a flag's value for the toolbar's editors.
type FlagType string

const (
	TypeBoolean      FlagType = "boolean"
	TypeString       FlagType = "string"
	TypeNumber       FlagType = "number"
	TypeObject       FlagType = "object"
	TypeMultivariate FlagType = "multivariate"
)

// Variation is one selectable value of a multivariate flag.
type Variation struct {
	ID    string `json:"_id,omitempty"`
	Name  string `json:"name,omitempty"`
	Value any    `json:"value"`
}

// Flag is the reconciled view of a single flag. OriginalValue and
// AvailableVariations are populated only in remote-snapshot mode.
type Flag struct {
	Key                 string      `json:"key"`
	Name                string      `json:"name"`
	CurrentValue        any         `json:"currentValue"`
	IsOverridden        bool        `json:"isOverridden"`
	OriginalValue       any         `json:"originalValue,omitempty"`
	AvailableVariations []Variation `json:"availableVariations,omitempty"`
	Type                FlagType    `json:"type"`
}

// ConnectionStatus is the remote reconciler's connection state.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
)

// ToolbarState is the remote reconciler's observable state. Snapshots
// returned by [RemoteReconciler.State] are copies; mutating them has no
// effect.
type ToolbarState struct {
	Flags                map[string]Flag
	ConnectionStatus     ConnectionStatus
	LastSyncTime         time.Time
	IsLoading            bool
	Err                  string
	SourceEnvironmentKey string
	AvailableProjects    []string
	CurrentProjectKey    string
}

// FlagName derives a human-readable flag name by title-casing hyphenated key
// segments: "enable-dark-mode" becomes "Enable Dark Mode".
func FlagName(key string) string {
	segments := strings.Split(key, "-")
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		segments[i] = strings.ToUpper(seg[:1]) + seg[1:]
	}
	return strings.Join(segments, " ")
}

// InferType classifies a value, taking the variation list into account in
// remote-snapshot mode: more than two variations, or discrete non-boolean
// options, make the flag multivariate.
func InferType(value any, variations []Variation) FlagType {
	if len(variations) > 2 {
		return TypeMultivariate
	}
	if len(variations) > 0 {
		for _, v := range variations {
			if _, ok := v.Value.(bool); !ok {
				return TypeMultivariate
			}
		}
	}
	switch value.(type) {
	case bool:
		return TypeBoolean
	case string:
		return TypeString
	case int, int32, int64, float32, float64:
		return TypeNumber
	default:
		return TypeObject
	}
}
