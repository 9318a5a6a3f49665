package feed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/pkg/exception"
)

func TestNewCoinbase(t *testing.T) {
	f, err := New(ExchangeConfig{Name: "coinbase"})
	require.NoError(t, err)
	assert.Equal(t, "coinbase", f.Name())
	assert.False(t, f.IsConnected())
}

func TestNewBinance(t *testing.T) {
	f, err := New(ExchangeConfig{Name: "Binance"})
	require.NoError(t, err)
	assert.Equal(t, "binance", f.Name())
}

func TestNewUnknownExchange(t *testing.T) {
	_, err := New(ExchangeConfig{Name: "kraken"})
	require.ErrorIs(t, err, exception.ErrUnsupportedExchange)
}

func TestNewAuthenticatedExchangeUnsupported(t *testing.T) {
	_, err := New(ExchangeConfig{Name: "coinbase", RequiresAuth: true})
	require.ErrorIs(t, err, exception.ErrAuthNotSupported)
}

func TestSubscribeBeforeConnectFails(t *testing.T) {
	f, err := New(ExchangeConfig{Name: "coinbase"})
	require.NoError(t, err)

	ctx := context.Background()
	assert.ErrorIs(t, f.SubscribeTrades(ctx, "BTC-USD"), exception.ErrFeedNotConnected)
	assert.ErrorIs(t, f.SubscribeLevel2(ctx, "BTC-USD"), exception.ErrFeedNotConnected)
	assert.ErrorIs(t, f.Unsubscribe(ctx, "BTC-USD"), exception.ErrFeedNotConnected)
}

func TestSubscribedSymbolsEmptyBeforeConnect(t *testing.T) {
	f, err := New(ExchangeConfig{Name: "binance"})
	require.NoError(t, err)
	assert.Empty(t, f.SubscribedSymbols())
}
