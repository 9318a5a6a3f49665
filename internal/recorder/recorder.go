package recorder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"
	"gorm.io/gorm"

	"main/internal/feed"
	"main/pkg/conn"
)

const (
	defaultQueueSize     = 4096
	defaultFlushInterval = time.Second
	defaultBatchSize     = 256
)

// Config controls the capture store.
type Config struct {
	QueueSize     int
	FlushInterval time.Duration
	BatchSize     int
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = defaultFlushInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	return c
}

type event struct {
	trade *TradeRecord
	quote *QuoteRecord
}

// Recorder buffers normalized events and writes them to PostgreSQL in
// batches. RecordTrade and RecordLevel2 never block: when the queue is full
// the event is dropped and counted, so a slow database cannot stall the
// dispatch path.
type Recorder struct {
	cfg  Config
	pg   *conn.Postgres
	ch   chan event
	done chan struct{}
	wg   sync.WaitGroup

	started atomic.Bool
	closed  atomic.Bool
	dropped atomic.Uint64
}

// New creates a recorder backed by the given database and runs migrations.
func New(pg *conn.Postgres, cfg Config) (*Recorder, error) {
	cfg = cfg.withDefaults()
	if err := pg.DB().AutoMigrate(&TradeRecord{}, &QuoteRecord{}); err != nil {
		return nil, err
	}
	return &Recorder{
		cfg:  cfg,
		pg:   pg,
		ch:   make(chan event, cfg.QueueSize),
		done: make(chan struct{}),
	}, nil
}

// Start launches the drain loop. The loop stops when ctx is canceled or
// Close is called, flushing whatever is buffered.
func (r *Recorder) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx)
	}()
}

// Close stops the drain loop after a final flush. The event channel itself
// is never closed, so a feed callback racing shutdown can at worst enqueue
// an event that goes unpersisted.
func (r *Recorder) Close() {
	if r.closed.CompareAndSwap(false, true) {
		close(r.done)
	}
	r.wg.Wait()
}

// Dropped returns how many events were discarded because the queue was full.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// RecordTrade enqueues a trade for persistence. Never blocks.
func (r *Recorder) RecordTrade(ev feed.MarketTrade) {
	r.enqueue(event{trade: &TradeRecord{
		Symbol:    ev.Symbol,
		Price:     ev.Price,
		Volume:    ev.Volume,
		EventTime: int64(ev.Timestamp),
	}})
}

// RecordLevel2 enqueues a top-of-book update for persistence. Never blocks.
func (r *Recorder) RecordLevel2(ev feed.MarketLevel2) {
	r.enqueue(event{quote: &QuoteRecord{
		Symbol:    ev.Symbol,
		BidPrice:  ev.BidPrice,
		BidQty:    ev.BidSize,
		AskPrice:  ev.AskPrice,
		AskQty:    ev.AskSize,
		EventTime: int64(ev.Timestamp),
	}})
}

func (r *Recorder) enqueue(ev event) {
	if r.closed.Load() {
		return
	}
	select {
	case r.ch <- ev:
	default:
		if r.dropped.Add(1)%1000 == 1 {
			logs.Warnf("recorder queue full, %d events dropped so far", r.dropped.Load())
		}
	}
}

func (r *Recorder) run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	trades := make([]TradeRecord, 0, r.cfg.BatchSize)
	quotes := make([]QuoteRecord, 0, r.cfg.BatchSize)

	flush := func() {
		if len(trades) > 0 {
			r.insert(&trades)
		}
		if len(quotes) > 0 {
			r.insertQuotes(&quotes)
		}
	}

	drain := func() {
		for {
			select {
			case ev := <-r.ch:
				if ev.trade != nil {
					trades = append(trades, *ev.trade)
				}
				if ev.quote != nil {
					quotes = append(quotes, *ev.quote)
				}
			default:
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			drain()
			flush()
			return
		case <-r.done:
			drain()
			flush()
			return
		case <-ticker.C:
			flush()
		case ev := <-r.ch:
			if ev.trade != nil {
				trades = append(trades, *ev.trade)
				if len(trades) >= r.cfg.BatchSize {
					r.insert(&trades)
				}
			}
			if ev.quote != nil {
				quotes = append(quotes, *ev.quote)
				if len(quotes) >= r.cfg.BatchSize {
					r.insertQuotes(&quotes)
				}
			}
		}
	}
}

func (r *Recorder) insert(trades *[]TradeRecord) {
	if err := r.pg.DB().Session(&gorm.Session{}).CreateInBatches(*trades, r.cfg.BatchSize).Error; err != nil {
		logs.Errorf("recorder: insert %d trades: %v", len(*trades), err)
	}
	*trades = (*trades)[:0]
}

func (r *Recorder) insertQuotes(quotes *[]QuoteRecord) {
	if err := r.pg.DB().Session(&gorm.Session{}).CreateInBatches(*quotes, r.cfg.BatchSize).Error; err != nil {
		logs.Errorf("recorder: insert %d quotes: %v", len(*quotes), err)
	}
	*quotes = (*quotes)[:0]
}
