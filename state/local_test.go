package state

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchdarkly/launchdarkly-toolbar/override"
)

type fakeClient struct {
	flags     map[string]any
	listeners []func([]string)
	removed   int
}

func newFakeClient(flags map[string]any) *fakeClient {
	return &fakeClient{flags: flags}
}

func (c *fakeClient) AllFlags() map[string]any {
	out := make(map[string]any, len(c.flags))
	for k, v := range c.flags {
		out[k] = v
	}
	return out
}

func (c *fakeClient) Variation(key string, def any) any {
	if v, ok := c.flags[key]; ok {
		return v
	}
	return def
}

func (c *fakeClient) OnChange(fn func([]string)) func() {
	c.listeners = append(c.listeners, fn)
	return func() { c.removed++ }
}

func (c *fakeClient) emitChange(keys ...string) {
	for _, fn := range c.listeners {
		fn(keys)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLocal(t *testing.T, flags map[string]any) (*LocalReconciler, *fakeClient, *override.Plugin) {
	t.Helper()
	client := newFakeClient(flags)
	ovr := override.New(override.WithLogger(quietLogger()))
	r := NewLocalReconciler(client, ovr, WithLocalLogger(quietLogger()))
	t.Cleanup(r.Close)
	return r, client, ovr
}

func TestLocalReconcilerInitialSnapshot(t *testing.T) {
	r, _, _ := newLocal(t, map[string]any{"enable-dark-mode": true, "api-timeout": 30})

	flags := r.Flags()
	require.Len(t, flags, 2)

	dark := flags["enable-dark-mode"]
	assert.Equal(t, "Enable Dark Mode", dark.Name)
	assert.Equal(t, true, dark.CurrentValue)
	assert.False(t, dark.IsOverridden)
	assert.Equal(t, TypeBoolean, dark.Type)

	timeout := flags["api-timeout"]
	assert.Equal(t, TypeNumber, timeout.Type)
}

func TestLocalReconcilerOverridePrecedence(t *testing.T) {
	r, _, _ := newLocal(t, map[string]any{"f": "v1"})

	r.SetOverride("f", "v2")

	got := r.Flags()["f"]
	assert.Equal(t, "v2", got.CurrentValue)
	assert.True(t, got.IsOverridden)

	r.RemoveOverride("f")

	got = r.Flags()["f"]
	assert.Equal(t, "v1", got.CurrentValue)
	assert.False(t, got.IsOverridden)
}

func TestLocalReconcilerChangeRecomputesOnlyReportedKeys(t *testing.T) {
	r, client, _ := newLocal(t, map[string]any{"a": 1, "b": 2})

	var notified [][]string
	r.Subscribe(func(changed []string) { notified = append(notified, changed) })

	client.flags["a"] = 10
	client.emitChange("a")

	require.Len(t, notified, 1)
	assert.Equal(t, []string{"a"}, notified[0])
	assert.Equal(t, 10, r.Flags()["a"].CurrentValue)
	assert.Equal(t, 2, r.Flags()["b"].CurrentValue)
}

func TestLocalReconcilerPicksUpNewAndDeletedKeys(t *testing.T) {
	r, client, _ := newLocal(t, map[string]any{"a": 1})

	client.flags["fresh-flag"] = "hello"
	client.emitChange("a")

	flags := r.Flags()
	require.Contains(t, flags, "fresh-flag")
	assert.Equal(t, "Fresh Flag", flags["fresh-flag"].Name)

	delete(client.flags, "a")
	client.emitChange("a")

	assert.NotContains(t, r.Flags(), "a")
}

func TestLocalReconcilerOverriddenFlagSurvivesDeletion(t *testing.T) {
	r, client, _ := newLocal(t, map[string]any{"a": 1})

	r.SetOverride("a", 99)
	delete(client.flags, "a")
	client.emitChange("a")

	got := r.Flags()["a"]
	assert.Equal(t, 99, got.CurrentValue)
	assert.True(t, got.IsOverridden)
}

func TestLocalReconcilerClearAllOverrides(t *testing.T) {
	r, _, _ := newLocal(t, map[string]any{"a": 1, "b": 2})

	r.SetOverride("a", 10)
	r.SetOverride("b", 20)
	r.ClearAllOverrides()

	flags := r.Flags()
	assert.Equal(t, 1, flags["a"].CurrentValue)
	assert.Equal(t, 2, flags["b"].CurrentValue)
	assert.False(t, flags["a"].IsOverridden)
	assert.False(t, flags["b"].IsOverridden)
}

func TestLocalReconcilerCloseDetachesListener(t *testing.T) {
	client := newFakeClient(map[string]any{"a": 1})
	ovr := override.New(override.WithLogger(quietLogger()))
	r := NewLocalReconciler(client, ovr, WithLocalLogger(quietLogger()))

	r.Close()
	assert.Equal(t, 1, client.removed)

	// Notifications after Close are ignored.
	client.flags["a"] = 2
	client.emitChange("a")
	assert.Equal(t, 1, r.Flags()["a"].CurrentValue)

	r.Close() // idempotent
	assert.Equal(t, 1, client.removed)
}

func TestFlagName(t *testing.T) {
	assert.Equal(t, "Enable Dark Mode", FlagName("enable-dark-mode"))
	assert.Equal(t, "Simple", FlagName("simple"))
	assert.Equal(t, "", FlagName(""))
}

func TestInferType(t *testing.T) {
	assert.Equal(t, TypeBoolean, InferType(true, nil))
	assert.Equal(t, TypeString, InferType("x", nil))
	assert.Equal(t, TypeNumber, InferType(3.14, nil))
	assert.Equal(t, TypeNumber, InferType(42, nil))
	assert.Equal(t, TypeObject, InferType(map[string]any{"a": 1}, nil))
	assert.Equal(t, TypeObject, InferType(nil, nil))

	boolVariations := []Variation{{Value: true}, {Value: false}}
	assert.Equal(t, TypeBoolean, InferType(true, boolVariations))

	three := []Variation{{Value: "a"}, {Value: "b"}, {Value: "c"}}
	assert.Equal(t, TypeMultivariate, InferType("a", three))

	discrete := []Variation{{Value: "low"}, {Value: "high"}}
	assert.Equal(t, TypeMultivariate, InferType("low", discrete))
}
