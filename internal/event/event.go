package event

import (
	"time"

	"matchsim/internal/domain"

	"github.com/shopspring/decimal"
)

// Type identifies an event kind on the tape.
type Type string

const (
	TypeAccepted Type = "ACCEPTED"
	TypeFill     Type = "FILL"
	TypeExpired  Type = "EXPIRED"
)

// Event is anything the Sequencer numbers and fans out.
type Event interface {
	GetSeq() uint64
	SetSeq(seq uint64)
	GetType() Type
	GetTicker() string
}

// BaseEvent carries the sequence number and creation time.
type BaseEvent struct {
	Seq uint64    `json:"seq"`
	Ts  time.Time `json:"ts"`
}

func (b *BaseEvent) GetSeq() uint64    { return b.Seq }
func (b *BaseEvent) SetSeq(seq uint64) { b.Seq = seq }

// AcceptedEvent is emitted once an order has been inserted into its book.
type AcceptedEvent struct {
	BaseEvent
	Ticker   string          `json:"ticker"`
	OrderID  uint64          `json:"order_id"`
	Side     domain.Side     `json:"side"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

func (e *AcceptedEvent) GetType() Type     { return TypeAccepted }
func (e *AcceptedEvent) GetTicker() string { return e.Ticker }

// FillEvent is one committed match. Price is always the resting SELL's limit.
type FillEvent struct {
	BaseEvent
	Ticker        string          `json:"ticker"`
	BuyOrderID    uint64          `json:"buy_order_id"`
	SellOrderID   uint64          `json:"sell_order_id"`
	Quantity      int64           `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	BuyRemaining  int64           `json:"buy_remaining"`
	SellRemaining int64           `json:"sell_remaining"`
}

func (e *FillEvent) GetType() Type     { return TypeFill }
func (e *FillEvent) GetTicker() string { return e.Ticker }

// Notional is quantity times price.
func (e *FillEvent) Notional() decimal.Decimal {
	return e.Price.Mul(decimal.NewFromInt(e.Quantity))
}

// ExpiredEvent is emitted when a BUY order's matching attempt times out.
// It is an outcome, not a fault: the residual stays visible in history.
type ExpiredEvent struct {
	BaseEvent
	Ticker    string        `json:"ticker"`
	OrderID   uint64        `json:"order_id"`
	Remaining int64         `json:"remaining"`
	Settled   int64         `json:"settled"`
	Elapsed   time.Duration `json:"elapsed"`
}

func (e *ExpiredEvent) GetType() Type     { return TypeExpired }
func (e *ExpiredEvent) GetTicker() string { return e.Ticker }
