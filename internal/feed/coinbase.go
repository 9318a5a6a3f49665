package feed

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/ws"

	"main/pkg/exception"
)

const _coinbaseBaseWsUrl = "wss://ws-feed.exchange.coinbase.com"

const (
	coinbaseChannelMatches = "matches"
	coinbaseChannelTicker  = "ticker"
)

// Coinbase consumes the Coinbase Exchange websocket feed. Trades come from
// the "matches" channel, top-of-book from the "ticker" channel.
type Coinbase struct {
	endpoint string

	mu        sync.Mutex
	wss       *ws.WebSocket
	connected bool
	cancel    func()
	trades    map[string]struct{}
	level2    map[string]struct{}
	onTrade   TradeHandler
	onLevel2  Level2Handler
}

// NewCoinbase creates a disconnected Coinbase adapter.
func NewCoinbase(cfg ExchangeConfig) *Coinbase {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = _coinbaseBaseWsUrl
	}
	return &Coinbase{
		endpoint: endpoint,
		trades:   make(map[string]struct{}),
		level2:   make(map[string]struct{}),
	}
}

func (repo *Coinbase) Name() string { return "coinbase" }

// SetTradeCallback registers the trade handler. Must be called before Connect.
func (repo *Coinbase) SetTradeCallback(handler TradeHandler) {
	repo.mu.Lock()
	repo.onTrade = handler
	repo.mu.Unlock()
}

// SetLevel2Callback registers the top-of-book handler. Must be called before Connect.
func (repo *Coinbase) SetLevel2Callback(handler Level2Handler) {
	repo.mu.Lock()
	repo.onLevel2 = handler
	repo.mu.Unlock()
}

func (repo *Coinbase) IsConnected() bool {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	return repo.connected
}

// Connect opens the websocket and starts the observe loop.
func (repo *Coinbase) Connect(ctx context.Context) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.connected {
		return nil
	}

	wss := ws.New(ctx, repo.endpoint)
	if err := wss.Start(ctx); err != nil {
		return errors.Wrap(exception.ErrFeedConnect, err.Error())
	}

	ch, cancel := wss.Subscribe()
	go repo.observe(ctx, ch, cancel)

	repo.wss = wss
	repo.cancel = cancel
	repo.connected = true
	return nil
}

// Disconnect closes the websocket and clears subscription state.
func (repo *Coinbase) Disconnect() {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if !repo.connected {
		return
	}
	if repo.cancel != nil {
		repo.cancel()
	}
	repo.wss.Close()
	repo.wss = nil
	repo.connected = false
	repo.trades = make(map[string]struct{})
	repo.level2 = make(map[string]struct{})
}

func (repo *Coinbase) SubscribedSymbols() []string {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	seen := make(map[string]struct{}, len(repo.trades)+len(repo.level2))
	for sym := range repo.trades {
		seen[sym] = struct{}{}
	}
	for sym := range repo.level2 {
		seen[sym] = struct{}{}
	}
	symbols := make([]string, 0, len(seen))
	for sym := range seen {
		symbols = append(symbols, sym)
	}
	return symbols
}

// SubscribeTrades subscribes the matches channel for one product.
func (repo *Coinbase) SubscribeTrades(ctx context.Context, symbol string) error {
	if err := repo.sendChannelRequest(ctx, "subscribe", symbol, coinbaseChannelMatches); err != nil {
		return err
	}
	repo.mu.Lock()
	repo.trades[symbol] = struct{}{}
	repo.mu.Unlock()
	return nil
}

// SubscribeLevel2 subscribes the ticker channel for one product.
func (repo *Coinbase) SubscribeLevel2(ctx context.Context, symbol string) error {
	if err := repo.sendChannelRequest(ctx, "subscribe", symbol, coinbaseChannelTicker); err != nil {
		return err
	}
	repo.mu.Lock()
	repo.level2[symbol] = struct{}{}
	repo.mu.Unlock()
	return nil
}

// Unsubscribe removes both channels for one product.
func (repo *Coinbase) Unsubscribe(ctx context.Context, symbol string) error {
	repo.mu.Lock()
	_, hadTrades := repo.trades[symbol]
	_, hadLevel2 := repo.level2[symbol]
	delete(repo.trades, symbol)
	delete(repo.level2, symbol)
	repo.mu.Unlock()

	if hadTrades {
		if err := repo.sendChannelRequest(ctx, "unsubscribe", symbol, coinbaseChannelMatches); err != nil {
			return err
		}
	}
	if hadLevel2 {
		if err := repo.sendChannelRequest(ctx, "unsubscribe", symbol, coinbaseChannelTicker); err != nil {
			return err
		}
	}
	return nil
}

type coinbaseChannelRequest struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

type coinbaseEnvelope struct {
	Type string `json:"type"`
}

type coinbaseMatch struct {
	Type      string          `json:"type"`
	ProductID string          `json:"product_id"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	Side      string          `json:"side"`
	Time      string          `json:"time"`
}

type coinbaseTicker struct {
	Type        string          `json:"type"`
	ProductID   string          `json:"product_id"`
	BestBid     decimal.Decimal `json:"best_bid"`
	BestBidSize decimal.Decimal `json:"best_bid_size"`
	BestAsk     decimal.Decimal `json:"best_ask"`
	BestAskSize decimal.Decimal `json:"best_ask_size"`
	Time        string          `json:"time"`
}

func (repo *Coinbase) sendChannelRequest(ctx context.Context, reqType, symbol, channel string) error {
	repo.mu.Lock()
	wss := repo.wss
	connected := repo.connected
	repo.mu.Unlock()
	if !connected || wss == nil {
		return exception.ErrFeedNotConnected
	}

	appendIntoRegister := reqType == "subscribe"
	if err := wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, client *ws.WebSocket) error {
			payload := coinbaseChannelRequest{
				Type:       reqType,
				ProductIDs: []string{symbol},
				Channels:   []string{channel},
			}
			if err := client.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write channel request").With("payload", payload)
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			resp, ok := ws.ReadMessage[coinbaseEnvelope](m)
			if !ok {
				return false, nil
			}
			switch resp.Type {
			case "subscriptions":
				return true, nil
			case "error":
				return false, errors.Errorf("channel request rejected: %s", resp.Type)
			default:
				return false, nil
			}
		},
	}, appendIntoRegister); err != nil {
		return errors.Wrap(err, "send and wait")
	}

	return nil
}

func (repo *Coinbase) observe(ctx context.Context, ch <-chan ws.Message, cancel func()) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			repo.handleMessage(m)
		}
	}
}

func (repo *Coinbase) handleMessage(m ws.Message) {
	env, ok := ws.ReadMessage[coinbaseEnvelope](m)
	if !ok {
		return
	}

	switch env.Type {
	case "match", "last_match":
		match, ok := ws.ReadMessage[coinbaseMatch](m)
		if !ok {
			logs.Errorf("coinbase: malformed match message")
			return
		}
		repo.mu.Lock()
		handler := repo.onTrade
		repo.mu.Unlock()
		if handler == nil {
			return
		}
		handler(MarketTrade{
			Symbol:    match.ProductID,
			Price:     match.Price.InexactFloat64(),
			Volume:    match.Size.InexactFloat64(),
			Side:      match.Side,
			Timestamp: parseCoinbaseTime(match.Time),
		})
	case "ticker":
		ticker, ok := ws.ReadMessage[coinbaseTicker](m)
		if !ok {
			logs.Errorf("coinbase: malformed ticker message")
			return
		}
		repo.mu.Lock()
		handler := repo.onLevel2
		repo.mu.Unlock()
		if handler == nil {
			return
		}
		handler(MarketLevel2{
			Symbol:    ticker.ProductID,
			BidPrice:  ticker.BestBid.InexactFloat64(),
			BidSize:   ticker.BestBidSize.InexactFloat64(),
			AskPrice:  ticker.BestAsk.InexactFloat64(),
			AskSize:   ticker.BestAskSize.InexactFloat64(),
			Timestamp: parseCoinbaseTime(ticker.Time),
		})
	}
}

func parseCoinbaseTime(value string) uint64 {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return uint64(time.Now().UnixMilli())
	}
	return uint64(ts.UnixMilli())
}
