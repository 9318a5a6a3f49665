package feed

import (
	"strings"

	"github.com/yanun0323/errors"

	"main/pkg/exception"
)

// New constructs the adapter for the named exchange. Names are matched
// case-insensitively; an unrecognized name fails with ErrUnsupportedExchange
// rather than silently degrading.
func New(cfg ExchangeConfig) (Feed, error) {
	if cfg.RequiresAuth {
		return nil, errors.Wrap(exception.ErrAuthNotSupported, cfg.Name)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case "coinbase":
		return NewCoinbase(cfg), nil
	case "binance":
		return NewBinance(cfg), nil
	default:
		return nil, errors.Wrapf(exception.ErrUnsupportedExchange, "name: %q, supported: coinbase, binance", cfg.Name)
	}
}
