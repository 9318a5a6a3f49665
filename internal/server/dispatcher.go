package server

import (
	"time"

	"github.com/yanun0323/logs"

	"main/internal/dtc"
	"main/internal/feed"
	"main/internal/obs"
)

// Recorder receives a copy of every normalized event for persistence.
// Implementations must not block.
type Recorder interface {
	RecordTrade(ev feed.MarketTrade)
	RecordLevel2(ev feed.MarketLevel2)
}

// Dispatcher routes normalized exchange events to subscriber sessions.
// Each event is encoded exactly once and fanned out against a point-in-time
// subscriber snapshot, so a slow or dead client never stalls the rest.
// Independent feed goroutines may call it concurrently.
type Dispatcher struct {
	index    *SubscriptionIndex
	registry *Registry
	recorder Recorder
	metrics  *obs.Metrics
}

// NewDispatcher wires a dispatcher to the shared index and registry.
// recorder may be nil.
func NewDispatcher(index *SubscriptionIndex, registry *Registry, recorder Recorder) *Dispatcher {
	return &Dispatcher{
		index:    index,
		registry: registry,
		recorder: recorder,
	}
}

// WithMetrics attaches a metrics collector. All Metrics methods accept a nil
// receiver, so the dispatcher never checks.
func (d *Dispatcher) WithMetrics(m *obs.Metrics) *Dispatcher {
	d.metrics = m
	return d
}

// OnTrade delivers one trade event to every subscriber of its symbol.
func (d *Dispatcher) OnTrade(ev feed.MarketTrade) {
	d.metrics.IncTradeIn()
	if d.recorder != nil {
		d.recorder.RecordTrade(ev)
	}

	symbolID, ok := d.index.LookupSymbol(ev.Symbol)
	if !ok {
		d.metrics.IncUnknownSymbol()
		logs.Warnf("dispatch: trade for unregistered symbol %q dropped", ev.Symbol)
		return
	}
	subscribers := d.index.SubscribersOf(symbolID)
	if len(subscribers) == 0 {
		return
	}

	frame := dtc.EncodeTradeUpdate(nil, dtc.MarketDataUpdateTrade{
		SymbolID:  symbolID,
		Price:     ev.Price,
		Volume:    ev.Volume,
		Timestamp: ev.Timestamp,
	})
	d.fanOut(subscribers, frame)
}

// OnLevel2 delivers one top-of-book event to every subscriber of its symbol.
func (d *Dispatcher) OnLevel2(ev feed.MarketLevel2) {
	d.metrics.IncLevel2In()
	if d.recorder != nil {
		d.recorder.RecordLevel2(ev)
	}

	symbolID, ok := d.index.LookupSymbol(ev.Symbol)
	if !ok {
		d.metrics.IncUnknownSymbol()
		logs.Warnf("dispatch: level2 for unregistered symbol %q dropped", ev.Symbol)
		return
	}
	subscribers := d.index.SubscribersOf(symbolID)
	if len(subscribers) == 0 {
		return
	}

	frame := dtc.EncodeBidAskUpdate(nil, dtc.MarketDataUpdateBidAsk{
		SymbolID:  symbolID,
		BidPrice:  ev.BidPrice,
		BidQty:    ev.BidSize,
		AskPrice:  ev.AskPrice,
		AskQty:    ev.AskSize,
		Timestamp: ev.Timestamp,
	})
	d.fanOut(subscribers, frame)
}

// fanOut sends one encoded frame to each subscriber. A failed send closes
// only that session; delivery to the remaining subscribers continues.
func (d *Dispatcher) fanOut(subscribers []SessionID, frame []byte) {
	start := time.Now()
	delivered := 0
	for _, id := range subscribers {
		sess := d.registry.Get(id)
		if sess == nil {
			continue
		}
		if err := sess.Send(frame); err != nil {
			d.metrics.IncSendFailure()
			logs.Warnf("dispatch: session %d dropped: %v", id, err)
			sess.Close()
			continue
		}
		delivered++
	}
	d.metrics.AddFramesOut(delivered)
	d.metrics.ObserveFanOut(time.Since(start))
}
