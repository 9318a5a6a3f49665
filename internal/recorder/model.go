// Package recorder persists the normalized event stream to PostgreSQL so
// sessions can be replayed and audited after the fact.
package recorder

import "time"

// TradeRecord is one executed trade as received from a feed.
type TradeRecord struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Symbol    string    `gorm:"size:24;index:idx_trades_symbol_ts,priority:1"`
	Price     float64   `gorm:"not null"`
	Volume    float64   `gorm:"not null"`
	EventTime int64     `gorm:"index:idx_trades_symbol_ts,priority:2"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (TradeRecord) TableName() string { return "trades" }

// QuoteRecord is one top-of-book update as received from a feed.
type QuoteRecord struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Symbol    string    `gorm:"size:24;index:idx_quotes_symbol_ts,priority:1"`
	BidPrice  float64   `gorm:"not null"`
	BidQty    float64   `gorm:"not null"`
	AskPrice  float64   `gorm:"not null"`
	AskQty    float64   `gorm:"not null"`
	EventTime int64     `gorm:"index:idx_quotes_symbol_ts,priority:2"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (QuoteRecord) TableName() string { return "quotes" }
