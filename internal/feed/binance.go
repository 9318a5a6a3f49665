package feed

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/ws"

	"main/pkg/exception"
)

const _binanceBaseWsUrl = "wss://stream.binance.com:9443/ws"

// Binance consumes the Binance spot websocket feed. Trades come from the
// <symbol>@trade stream, top-of-book from <symbol>@bookTicker.
type Binance struct {
	endpoint string
	reqID    atomic.Int64

	mu        sync.Mutex
	wss       *ws.WebSocket
	connected bool
	cancel    func()
	trades    map[string]struct{}
	level2    map[string]struct{}
	names     map[string]string // upper stream symbol -> gateway symbol
	onTrade   TradeHandler
	onLevel2  Level2Handler
}

// NewBinance creates a disconnected Binance adapter.
func NewBinance(cfg ExchangeConfig) *Binance {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = _binanceBaseWsUrl
	}
	return &Binance{
		endpoint: endpoint,
		trades:   make(map[string]struct{}),
		level2:   make(map[string]struct{}),
		names:    make(map[string]string),
	}
}

func (repo *Binance) Name() string { return "binance" }

// SetTradeCallback registers the trade handler. Must be called before Connect.
func (repo *Binance) SetTradeCallback(handler TradeHandler) {
	repo.mu.Lock()
	repo.onTrade = handler
	repo.mu.Unlock()
}

// SetLevel2Callback registers the top-of-book handler. Must be called before Connect.
func (repo *Binance) SetLevel2Callback(handler Level2Handler) {
	repo.mu.Lock()
	repo.onLevel2 = handler
	repo.mu.Unlock()
}

func (repo *Binance) IsConnected() bool {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	return repo.connected
}

// Connect opens the websocket and starts the observe loop.
func (repo *Binance) Connect(ctx context.Context) error {
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
func (repo *Binance) Disconnect() {
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
	repo.names = make(map[string]string)
}

func (repo *Binance) SubscribedSymbols() []string {
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

// streamSymbol maps a gateway symbol like "BTC-USDT" to "btcusdt".
func streamSymbol(symbol string) string {
	return strings.ToLower(strings.ReplaceAll(symbol, "-", ""))
}

// SubscribeTrades subscribes the trade stream for one symbol.
func (repo *Binance) SubscribeTrades(ctx context.Context, symbol string) error {
	if err := repo.sendStreamRequest(ctx, "SUBSCRIBE", streamSymbol(symbol)+"@trade"); err != nil {
		return err
	}
	repo.mu.Lock()
	repo.trades[symbol] = struct{}{}
	repo.names[strings.ToUpper(streamSymbol(symbol))] = symbol
	repo.mu.Unlock()
	return nil
}

// SubscribeLevel2 subscribes the bookTicker stream for one symbol.
func (repo *Binance) SubscribeLevel2(ctx context.Context, symbol string) error {
	if err := repo.sendStreamRequest(ctx, "SUBSCRIBE", streamSymbol(symbol)+"@bookTicker"); err != nil {
		return err
	}
	repo.mu.Lock()
	repo.level2[symbol] = struct{}{}
	repo.names[strings.ToUpper(streamSymbol(symbol))] = symbol
	repo.mu.Unlock()
	return nil
}

// Unsubscribe removes both streams for one symbol.
func (repo *Binance) Unsubscribe(ctx context.Context, symbol string) error {
	repo.mu.Lock()
	_, hadTrades := repo.trades[symbol]
	_, hadLevel2 := repo.level2[symbol]
	delete(repo.trades, symbol)
	delete(repo.level2, symbol)
	if !hadTrades && !hadLevel2 {
		repo.mu.Unlock()
		return nil
	}
	delete(repo.names, strings.ToUpper(streamSymbol(symbol)))
	repo.mu.Unlock()

	if hadTrades {
		if err := repo.sendStreamRequest(ctx, "UNSUBSCRIBE", streamSymbol(symbol)+"@trade"); err != nil {
			return err
		}
	}
	if hadLevel2 {
		if err := repo.sendStreamRequest(ctx, "UNSUBSCRIBE", streamSymbol(symbol)+"@bookTicker"); err != nil {
			return err
		}
	}
	return nil
}

type binanceStreamRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

type binanceStreamResponse struct {
	ID     int64 `json:"id"`
	Result any   `json:"result"`
}

type binanceEnvelope struct {
	Event    string `json:"e"`
	UpdateID int64  `json:"u"`
}

type binanceTrade struct {
	Event     string          `json:"e"`
	Symbol    string          `json:"s"`
	Price     decimal.Decimal `json:"p"`
	Quantity  decimal.Decimal `json:"q"`
	TradeTime int64           `json:"T"`
	IsMaker   bool            `json:"m"`
}

type binanceBookTicker struct {
	UpdateID int64           `json:"u"`
	Symbol   string          `json:"s"`
	BidPrice decimal.Decimal `json:"b"`
	BidQty   decimal.Decimal `json:"B"`
	AskPrice decimal.Decimal `json:"a"`
	AskQty   decimal.Decimal `json:"A"`
}

func (repo *Binance) sendStreamRequest(ctx context.Context, method, stream string) error {
	repo.mu.Lock()
	wss := repo.wss
	connected := repo.connected
	repo.mu.Unlock()
	if !connected || wss == nil {
		return exception.ErrFeedNotConnected
	}

	reqID := repo.reqID.Add(1)
	appendIntoRegister := method == "SUBSCRIBE"
	if err := wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, client *ws.WebSocket) error {
			payload := binanceStreamRequest{
				Method: method,
				Params: []string{stream},
				ID:     reqID,
			}
			if err := client.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write stream request").With("payload", payload)
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			resp, ok := ws.ReadMessage[binanceStreamResponse](m)
			if !ok || resp.ID != reqID {
				return false, nil
			}
			if resp.Result != nil {
				return false, errors.Errorf("stream request rejected, err: %+v", resp.Result)
			}
			return true, nil
		},
	}, appendIntoRegister); err != nil {
		return errors.Wrap(err, "send and wait")
	}

	return nil
}

func (repo *Binance) observe(ctx context.Context, ch <-chan ws.Message, cancel func()) {
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

func (repo *Binance) handleMessage(m ws.Message) {
	env, ok := ws.ReadMessage[binanceEnvelope](m)
	if !ok {
		return
	}

	switch {
	case env.Event == "trade":
		trade, ok := ws.ReadMessage[binanceTrade](m)
		if !ok {
			logs.Errorf("binance: malformed trade message")
			return
		}
		symbol, handler := repo.resolveTrade(trade.Symbol)
		if handler == nil {
			return
		}
		// Binance reports the maker side; the aggressor is the opposite.
		side := "buy"
		if trade.IsMaker {
			side = "sell"
		}
		handler(MarketTrade{
			Symbol:    symbol,
			Price:     trade.Price.InexactFloat64(),
			Volume:    trade.Quantity.InexactFloat64(),
			Side:      side,
			Timestamp: uint64(trade.TradeTime),
		})
	case env.Event == "" && env.UpdateID != 0:
		book, ok := ws.ReadMessage[binanceBookTicker](m)
		if !ok || book.Symbol == "" {
			return
		}
		symbol, handler := repo.resolveLevel2(book.Symbol)
		if handler == nil {
			return
		}
		handler(MarketLevel2{
			Symbol:    symbol,
			BidPrice:  book.BidPrice.InexactFloat64(),
			BidSize:   book.BidQty.InexactFloat64(),
			AskPrice:  book.AskPrice.InexactFloat64(),
			AskSize:   book.AskQty.InexactFloat64(),
			Timestamp: uint64(time.Now().UnixMilli()),
		})
	}
}

func (repo *Binance) resolveTrade(streamSym string) (string, TradeHandler) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	symbol, ok := repo.names[strings.ToUpper(streamSym)]
	if !ok {
		return "", nil
	}
	return symbol, repo.onTrade
}

func (repo *Binance) resolveLevel2(streamSym string) (string, Level2Handler) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	symbol, ok := repo.names[strings.ToUpper(streamSym)]
	if !ok {
		return "", nil
	}
	return symbol, repo.onLevel2
}
