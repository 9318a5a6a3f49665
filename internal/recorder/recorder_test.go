package recorder

import (
	"sync"
	"testing"

	"main/internal/feed"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.QueueSize != defaultQueueSize {
		t.Fatalf("QueueSize = %d, want %d", cfg.QueueSize, defaultQueueSize)
	}
	if cfg.FlushInterval != defaultFlushInterval {
		t.Fatalf("FlushInterval = %v, want %v", cfg.FlushInterval, defaultFlushInterval)
	}
	if cfg.BatchSize != defaultBatchSize {
		t.Fatalf("BatchSize = %d, want %d", cfg.BatchSize, defaultBatchSize)
	}
}

func TestEnqueueNeverBlocks(t *testing.T) {
	r := &Recorder{
		cfg: Config{QueueSize: 1}.withDefaults(),
		ch:  make(chan event, 1),
	}

	r.RecordTrade(feed.MarketTrade{Symbol: "BTC-USD", Price: 1, Volume: 1})
	// Queue is full now; further records must drop, not block.
	r.RecordTrade(feed.MarketTrade{Symbol: "BTC-USD", Price: 2, Volume: 1})
	r.RecordLevel2(feed.MarketLevel2{Symbol: "BTC-USD", BidPrice: 3})

	if got := r.Dropped(); got != 2 {
		t.Fatalf("dropped = %d, want 2", got)
	}

	ev := <-r.ch
	if ev.trade == nil || ev.trade.Price != 1 {
		t.Fatalf("queued event = %+v, want first trade", ev)
	}
}

func TestEnqueueAfterCloseDrops(t *testing.T) {
	r := &Recorder{
		cfg: Config{}.withDefaults(),
		ch:  make(chan event, 4),
	}
	r.closed.Store(true)

	r.RecordTrade(feed.MarketTrade{Symbol: "BTC-USD"})
	if len(r.ch) != 0 {
		t.Fatal("event enqueued after close")
	}
}

func TestCloseConcurrentWithEnqueue(t *testing.T) {
	r := &Recorder{
		cfg:  Config{QueueSize: 8}.withDefaults(),
		ch:   make(chan event, 8),
		done: make(chan struct{}),
	}

	// Feed callbacks may still fire while shutdown runs; enqueue must never
	// panic or block against a concurrent Close.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				r.RecordTrade(feed.MarketTrade{Symbol: "BTC-USD", Price: float64(j)})
			}
		}()
	}
	r.Close()
	wg.Wait()

	r.RecordTrade(feed.MarketTrade{Symbol: "BTC-USD", Price: 1})
}
