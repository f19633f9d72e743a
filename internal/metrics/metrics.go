package metrics

import "sync"

// Event names incremented by the signaling layer.
const (
	EventFrameReceived       = "frame_received"
	EventBadFrame            = "bad_frame"
	EventUnknownMessageType  = "unknown_message_type"
	EventSubscribeRejected   = "subscribe_rejected"
	EventPublishNoSubscriber = "publish_no_subscribers"
	EventDeliveryFailed      = "delivery_failed"
	EventConnectionReaped    = "connection_reaped"
	EventRateLimited         = "rate_limited"
)

// Metrics is a minimal, concurrency-safe counter registry. It keeps the
// broker's drop/reap accounting observable without pulling a full metrics
// SDK into a service this small; the /metrics endpoint exposes the counters
// in Prometheus' text format for scraping.
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
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	if delta == 0 {
		return
	}
	m.mu.Lock()
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
