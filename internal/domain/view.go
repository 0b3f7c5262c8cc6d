package domain

import "github.com/shopspring/decimal"

// OrderView is a point-in-time copy of an Order.
type OrderView struct {
	ID             uint64          `json:"id"`
	Side           Side            `json:"side"`
	LimitPrice     decimal.Decimal `json:"limit_price"`
	Quantity       int64           `json:"quantity"`
	Active         int64           `json:"active"`
	Settled        int64           `json:"settled"`
	Notional       decimal.Decimal `json:"notional"`
	Counterparties []uint64        `json:"counterparties"`
	AveragePrice   decimal.Decimal `json:"average_price"`
	HasExecutions  bool            `json:"has_executions"`
	InHistory      bool            `json:"in_history"`
	Version        uint64          `json:"version"`
}

// Conserved reports whether active + settled still equals the requested quantity.
func (v OrderView) Conserved() bool {
	return v.Active >= 0 && v.Settled >= 0 && v.Active+v.Settled == v.Quantity
}

// SideView lists one side of a book in list order.
type SideView struct {
	Side    Side        `json:"side"`
	Active  []OrderView `json:"active"`
	History []OrderView `json:"history"`
}

// Len is the total number of real orders on the side.
func (s SideView) Len() int {
	return len(s.Active) + len(s.History)
}

// BookView is the inspection result for one ticker.
type BookView struct {
	Ticker string   `json:"ticker"`
	Buy    SideView `json:"buy"`
	Sell   SideView `json:"sell"`
}

// OrderCount is the number of orders on both sides.
func (b BookView) OrderCount() int {
	return b.Buy.Len() + b.Sell.Len()
}
