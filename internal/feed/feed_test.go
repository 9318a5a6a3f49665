package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStreamSymbol(t *testing.T) {
	assert.Equal(t, "btcusdt", streamSymbol("BTC-USDT"))
	assert.Equal(t, "ethusdt", streamSymbol("ethusdt"))
	assert.Equal(t, "solusdc", streamSymbol("SOL-USDC"))
}

func TestParseCoinbaseTime(t *testing.T) {
	ms := parseCoinbaseTime("2024-03-01T12:30:45.123456Z")
	want := time.Date(2024, 3, 1, 12, 30, 45, 123456000, time.UTC).UnixMilli()
	assert.Equal(t, uint64(want), ms)
}

func TestParseCoinbaseTimeInvalidFallsBackToNow(t *testing.T) {
	before := uint64(time.Now().UnixMilli())
	ms := parseCoinbaseTime("not-a-time")
	after := uint64(time.Now().UnixMilli())
	assert.GreaterOrEqual(t, ms, before)
	assert.LessOrEqual(t, ms, after)
}
