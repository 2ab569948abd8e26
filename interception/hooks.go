package interception

import (
	"log/slog"

	toolbar "github.com/launchdarkly/launchdarkly-toolbar"
	"github.com/launchdarkly/launchdarkly-toolbar/event"
)

const (
	enqueueHookName    = "launchdarkly-toolbar-event-interceptor"
	evaluationHookName = "launchdarkly-toolbar-evaluation-interceptor"
)

// pipeline is the shared normalize -> filter -> deliver path behind both hook
// adapters. Delivery failures are contained here: a panicking consumer is
// logged and swallowed so a single bad event can never break the host SDK's
// evaluation or event pipeline.
type pipeline struct {
	normalizer *event.Normalizer
	filter     *event.CompiledFilter
	deliver    func(event.ProcessedEvent)
	logger     *slog.Logger
	onAccepted func(kind string)
	onFiltered func()
}

func (p *pipeline) process(raw event.RawEvent) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("event consumer panicked; event dropped", "kind", raw.Kind, "panic", r)
		}
	}()

	if !p.filter.Accept(event.Kind(raw.Kind), raw.Key) {
		if p.onFiltered != nil {
			p.onFiltered()
		}
		return
	}
	processed := p.normalizer.Normalize(raw)
	if p.onAccepted != nil {
		p.onAccepted(raw.Kind)
	}
	p.deliver(processed)
}

// enqueueHook receives every event the host SDK actually queues for
// transmission. This is the richest payload shape.
type enqueueHook struct {
	pipe *pipeline
}

var _ toolbar.EnqueueHook = (*enqueueHook)(nil)

func (h *enqueueHook) Metadata() toolbar.HookMetadata {
	return toolbar.HookMetadata{Name: enqueueHookName}
}

func (h *enqueueHook) AfterEventEnqueue(ev event.RawEvent) {
	h.pipe.process(ev)
}

// evaluationHook fires synchronously after every flag evaluation, including
// ones whose events are suppressed from transmission, and synthesizes a
// feature-shaped event from the narrower evaluation payload.
type evaluationHook struct {
	pipe *pipeline
}

var _ toolbar.EvaluationHook = (*evaluationHook)(nil)

func (h *evaluationHook) Metadata() toolbar.HookMetadata {
	return toolbar.HookMetadata{Name: evaluationHookName}
}

func (h *evaluationHook) AfterEvaluation(series toolbar.EvaluationSeriesContext, data toolbar.EvaluationSeriesData, detail toolbar.EvaluationDetail) toolbar.EvaluationSeriesData {
	ctx := series.Context
	h.pipe.process(event.RawEvent{
		Kind:      string(event.KindFeature),
		Key:       series.FlagKey,
		Context:   &ctx,
		Value:     detail.Value,
		Default:   series.DefaultValue,
		Variation: detail.VariationIndex,
		Reason:    detail.Reason,
	})
	// The hook-chaining contract requires returning data unchanged.
	return data
}
