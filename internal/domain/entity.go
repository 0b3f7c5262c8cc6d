package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RunRecord is one simulator run in the report archive.
type RunRecord struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Accepted   uint64    `json:"accepted"`
	Rejected   uint64    `json:"rejected"`
	Trades     uint64    `json:"trades"`
	Expiries   uint64    `json:"expiries"`
	Conflicts  uint64    `json:"conflicts"`
}

// OrderRecord is the final state of one order at the end of a run.
type OrderRecord struct {
	ID             uint            `gorm:"primaryKey" json:"-"`
	RunID          string          `gorm:"index:idx_order_run_ticker" json:"run_id"`
	Ticker         string          `gorm:"index:idx_order_run_ticker" json:"ticker"`
	OrderID        uint64          `json:"order_id"`
	Side           string          `json:"side"`
	LimitPrice     decimal.Decimal `gorm:"type:text" json:"limit_price"`
	Quantity       int64           `json:"quantity"`
	Active         int64           `json:"active"`
	Settled        int64           `json:"settled"`
	Notional       decimal.Decimal `gorm:"type:text" json:"notional"`
	AveragePrice   decimal.Decimal `gorm:"type:text" json:"average_price"`
	Counterparties string          `json:"counterparties"` // comma separated order ids
	InHistory      bool            `json:"in_history"`
	Position       int             `json:"position"` // index from head within its side
}

// TradeRecord is one fill from the event tape.
type TradeRecord struct {
	ID          uint            `gorm:"primaryKey" json:"-"`
	RunID       string          `gorm:"index" json:"run_id"`
	Seq         uint64          `json:"seq"`
	Ticker      string          `json:"ticker"`
	BuyOrderID  uint64          `json:"buy_order_id"`
	SellOrderID uint64          `json:"sell_order_id"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `gorm:"type:text" json:"price"`
	ExecutedAt  time.Time       `json:"executed_at"`
}
