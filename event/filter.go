package event

import "log/slog"

// Filter is a declarative accept/reject configuration for events. The zero
// value accepts everything. The allow-lists narrow by kind, category, or flag
// key (an empty list means "allow all"); the Exclude switches are the coarse
// per-kind toggles, applied only after every populated allow-list has passed.
//
// Filtering is monotonic: populating an allow-list or setting an Exclude
// switch can only shrink the accepted set.
type Filter struct {
	Kinds      []Kind
	Categories []Category
	FlagKeys   []string

	ExcludeIdentify bool
	ExcludeFeature  bool
	ExcludeCustom   bool
	ExcludeDebug    bool
}

// Compile resolves the filter's allow-lists into set lookups. The returned
// CompiledFilter is immutable and safe for concurrent use; its Accept method
// is allocation-free.
func (f Filter) Compile(logger *slog.Logger) *CompiledFilter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompiledFilter{
		cfg:        f,
		kinds:      toSet(f.Kinds),
		categories: toSet(f.Categories),
		flagKeys:   toSet(f.FlagKeys),
		logger:     logger,
	}
}

// CompiledFilter evaluates the accept/reject decision for one event.
type CompiledFilter struct {
	cfg        Filter
	kinds      map[Kind]struct{}
	categories map[Category]struct{}
	flagKeys   map[string]struct{}
	logger     *slog.Logger
}

// Accept decides whether an event of the given kind and key passes the
// filter. Order matters: unknown kinds are rejected outright, then the
// allow-lists apply in kind, category, flag-key order, and only events that
// survive every populated allow-list reach the coarse per-kind switches.
func (f *CompiledFilter) Accept(kind Kind, key string) bool {
	if !KnownKind(kind) {
		f.logger.Warn("rejecting event with unknown kind", "kind", string(kind))
		return false
	}

	if len(f.kinds) > 0 {
		if _, ok := f.kinds[kind]; !ok {
			return false
		}
	}
	if len(f.categories) > 0 {
		if _, ok := f.categories[CategoryOf(kind)]; !ok {
			return false
		}
	}
	// Identify events carry no flag key and bypass the flag-key list.
	if len(f.flagKeys) > 0 && key != "" {
		if _, ok := f.flagKeys[key]; !ok {
			return false
		}
	}

	switch kind {
	case KindIdentify:
		return !f.cfg.ExcludeIdentify
	case KindFeature:
		return !f.cfg.ExcludeFeature
	case KindCustom:
		return !f.cfg.ExcludeCustom
	case KindDebug:
		return !f.cfg.ExcludeDebug
	default:
		// Summary and diagnostic events have no dedicated switch.
		return true
	}
}

func toSet[T comparable](items []T) map[T]struct{} {
	if len(items) == 0 {
		return nil
	}
	set := make(map[T]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
