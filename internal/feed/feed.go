// Package feed contains the exchange market-data adapters. Each adapter owns
// one upstream websocket connection, normalizes the exchange's trade and
// top-of-book messages, and hands them to callbacks registered by the server.
package feed

import "context"

// ExchangeConfig names an exchange and how to reach it. An empty Endpoint
// selects the adapter's production URL.
type ExchangeConfig struct {
	Name         string `json:"name"`
	Endpoint     string `json:"endpoint"`
	RequiresAuth bool   `json:"requiresAuth"`
}

// MarketTrade is one normalized trade print.
type MarketTrade struct {
	Symbol    string
	Price     float64
	Volume    float64
	Side      string
	Timestamp uint64 // unix milliseconds
}

// MarketLevel2 is one normalized top-of-book snapshot.
type MarketLevel2 struct {
	Symbol    string
	BidPrice  float64
	BidSize   float64
	AskPrice  float64
	AskSize   float64
	Timestamp uint64 // unix milliseconds
}

// TradeHandler receives normalized trades.
type TradeHandler func(MarketTrade)

// Level2Handler receives normalized top-of-book updates.
type Level2Handler func(MarketLevel2)

// Feed is one exchange market-data connection. Callbacks must be set before
// Connect; Subscribe calls fail until Connect has succeeded.
type Feed interface {
	Name() string
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool

	SubscribeTrades(ctx context.Context, symbol string) error
	SubscribeLevel2(ctx context.Context, symbol string) error
	Unsubscribe(ctx context.Context, symbol string) error
	SubscribedSymbols() []string

	SetTradeCallback(handler TradeHandler)
	SetLevel2Callback(handler Level2Handler)
}
