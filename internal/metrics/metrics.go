package metrics

import "sync"

// Event counter names. The signaling server increments these; tests assert on
// them to pin down fail-silent paths (malformed input, dropped unicasts).
const (
	RoomsCreated   = "rooms_created"
	RoomsDestroyed = "rooms_destroyed"
	MembersJoined  = "members_joined"
	MembersLeft    = "members_left"
	SignalsRelayed = "signals_relayed"

	DropReasonUnknownPeer = "signal_unknown_peer"
	DropReasonMalformed   = "malformed_message"
	DropReasonRateLimited = "rate_limited"
	DropReasonSlowReader  = "slow_reader"
)

// Metrics is a minimal, concurrency-safe counter registry. It exists so the
// server's drop decisions stay observable and testable without pulling in a
// full metrics backend; Prometheus scraping is layered on top in this package.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
