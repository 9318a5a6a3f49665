// Package obs collects lightweight in-process counters for the gateway.
// Everything is atomic; there is no lock on the dispatch path.
package obs

import (
	"sync/atomic"
	"time"
)

// Metrics counts gateway activity and tracks fan-out latency.
type Metrics struct {
	tradesIn     uint64
	level2In     uint64
	framesOut    uint64
	sendFailures uint64
	unknownSym   uint64

	sessionsOpened uint64
	sessionsClosed uint64

	fanOutLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	TradesIn       uint64
	Level2In       uint64
	FramesOut      uint64
	SendFailures   uint64
	UnknownSymbols uint64
	SessionsOpened uint64
	SessionsClosed uint64
	FanOutLatency  LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncTradeIn counts one inbound trade event.
func (m *Metrics) IncTradeIn() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.tradesIn, 1)
}

// IncLevel2In counts one inbound top-of-book event.
func (m *Metrics) IncLevel2In() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.level2In, 1)
}

// AddFramesOut counts frames delivered to client queues.
func (m *Metrics) AddFramesOut(n int) {
	if m == nil || n <= 0 {
		return
	}
	atomic.AddUint64(&m.framesOut, uint64(n))
}

// IncSendFailure counts one failed delivery to a client queue.
func (m *Metrics) IncSendFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.sendFailures, 1)
}

// IncUnknownSymbol counts one event dropped for an unregistered symbol.
func (m *Metrics) IncUnknownSymbol() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.unknownSym, 1)
}

// IncSessionOpened counts one accepted connection.
func (m *Metrics) IncSessionOpened() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.sessionsOpened, 1)
}

// IncSessionClosed counts one finished connection.
func (m *Metrics) IncSessionClosed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.sessionsClosed, 1)
}

// ObserveFanOut measures one event's encode-and-enqueue latency.
func (m *Metrics) ObserveFanOut(d time.Duration) {
	if m == nil {
		return
	}
	m.fanOutLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		TradesIn:       atomic.LoadUint64(&m.tradesIn),
		Level2In:       atomic.LoadUint64(&m.level2In),
		FramesOut:      atomic.LoadUint64(&m.framesOut),
		SendFailures:   atomic.LoadUint64(&m.sendFailures),
		UnknownSymbols: atomic.LoadUint64(&m.unknownSym),
		SessionsOpened: atomic.LoadUint64(&m.sessionsOpened),
		SessionsClosed: atomic.LoadUint64(&m.sessionsClosed),
		FanOutLatency:  m.fanOutLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
