package event

import (
	"crypto/rand"
	"fmt"
	"sync/atomic"
	"time"
)

const (
	idSuffixLen     = 6
	idSuffixCharset = "abcdefghijklmnopqrstuvwxyz0123456789"
	idCounterWrap   = 1000000
)

// IDGenerator produces process-unique event IDs of the form
// {kind}-{unix ms}-{counter}-{random suffix}. The counter is zero-padded to
// six digits and wraps at 999999; combined with the millisecond timestamp and
// the random suffix, IDs stay unique under same-millisecond bursts and across
// counter wraparound.
type IDGenerator struct {
	counter atomic.Uint64
}

// NextID returns a fresh ID for an event of the given kind.
func (g *IDGenerator) NextID(kind Kind) string {
	n := g.counter.Add(1) % idCounterWrap
	return fmt.Sprintf("%s-%d-%06d-%s", kind, time.Now().UnixMilli(), n, randomSuffix())
}

func randomSuffix() string {
	b := make([]byte, idSuffixLen)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing is effectively unreachable; fall back to a
		// time-derived suffix rather than returning an error from the hot path.
		return fmt.Sprintf("%06d", time.Now().UnixNano()%idCounterWrap)
	}
	for i := range b {
		b[i] = idSuffixCharset[int(b[i])%len(idSuffixCharset)]
	}
	return string(b)
}
