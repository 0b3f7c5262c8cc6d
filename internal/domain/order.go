package domain

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a limit order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether s is one of the two recognised sides.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// ParseSide converts a raw side tag. Anything other than "BUY" or "SELL" is rejected.
func ParseSide(raw string) (Side, error) {
	s := Side(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnrecognizedSide, raw)
	}
	return s, nil
}

// ValidateOrder checks submission arguments before any id is issued or book is touched.
func ValidateOrder(side Side, quantity int64, price decimal.Decimal) error {
	if !side.Valid() {
		return fmt.Errorf("%w: %q", ErrUnrecognizedSide, string(side))
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	if price.IsNegative() {
		return fmt.Errorf("%w: %s", ErrInvalidPrice, price.String())
	}
	return nil
}

// Order is one limit order and also the node type of an order book side.
//
// ID, Side, LimitPrice and Quantity never change after construction.
// The fill state (active, settled, notional, counterparties) may only be
// changed by the goroutine that holds the claim; mu makes those fields
// safe to read from inspection while a match is in flight.
type Order struct {
	ID         uint64
	Side       Side
	LimitPrice decimal.Decimal
	Quantity   int64 // originally requested
	CreatedAt  time.Time

	mu             sync.Mutex
	active         int64
	settled        int64
	notional       decimal.Decimal
	counterparties []uint64

	claimed   atomic.Bool
	version   atomic.Uint64
	inHistory atomic.Bool
	sentinel  bool

	// Links are owned by the side the order lives in and guarded by its lock.
	Prev, Next *Order
}

// NewOrder creates an unclaimed order with its full quantity active.
func NewOrder(id uint64, side Side, quantity int64, price decimal.Decimal) *Order {
	return &Order{
		ID:         id,
		Side:       side,
		LimitPrice: price,
		Quantity:   quantity,
		CreatedAt:  time.Now(),
		active:     quantity,
		notional:   decimal.Zero,
	}
}

// NewSentinel creates a bounding node. It is claimed forever so no scan can match it.
func NewSentinel(side Side) *Order {
	o := &Order{Side: side, sentinel: true, notional: decimal.Zero}
	o.claimed.Store(true)
	return o
}

// IsSentinel reports whether o is a head or tail placeholder.
func (o *Order) IsSentinel() bool { return o.sentinel }

// TryClaim takes the exclusive mutation right. It never blocks: a false return
// means another matcher holds the order and the caller should move on.
func (o *Order) TryClaim() bool {
	return o.claimed.CompareAndSwap(false, true)
}

// Release gives the claim back. Sentinels stay claimed.
func (o *Order) Release() {
	if o.sentinel {
		return
	}
	o.claimed.Store(false)
}

// Claimed reports whether some goroutine currently holds o.
func (o *Order) Claimed() bool { return o.claimed.Load() }

// BeginAttempt records a commit attempt and returns the version the committer
// must still observe when it commits.
func (o *Order) BeginAttempt() uint64 {
	return o.version.Add(1)
}

// CommitVersion atomically moves the version past expected. It fails when any
// other attempt has touched the order since BeginAttempt returned expected.
func (o *Order) CommitVersion(expected uint64) bool {
	return o.version.CompareAndSwap(expected, expected+1)
}

// Version returns the current optimistic-concurrency witness.
func (o *Order) Version() uint64 { return o.version.Load() }

// InHistory reports whether the order has been relocated to its side's history region.
func (o *Order) InHistory() bool { return o.inHistory.Load() }

// MarkHistory flags the order as settled. It returns false if it already was.
func (o *Order) MarkHistory() bool {
	return o.inHistory.CompareAndSwap(false, true)
}

// Remaining returns the unmatched quantity.
func (o *Order) Remaining() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Settled returns the cumulative matched quantity.
func (o *Order) Settled() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.settled
}

// ApplyFill moves quantity from active to settled at the given trade price and
// records the counterparty. The caller must hold the claim.
func (o *Order) ApplyFill(quantity int64, price decimal.Decimal, counterparty uint64) error {
	if o.InHistory() {
		return fmt.Errorf("order %d: %w", o.ID, ErrAlreadyInHistory)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if quantity <= 0 || quantity > o.active {
		return fmt.Errorf("order %d: fill %d against %d active: %w", o.ID, quantity, o.active, ErrInvalidQuantity)
	}
	o.active -= quantity
	o.settled += quantity
	o.notional = o.notional.Add(price.Mul(decimal.NewFromInt(quantity)))
	o.counterparties = append(o.counterparties, counterparty)
	return nil
}

// AveragePrice is notional / settled. ok is false when nothing has executed.
func (o *Order) AveragePrice() (avg decimal.Decimal, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return averagePrice(o.notional, o.settled)
}

func averagePrice(notional decimal.Decimal, settled int64) (decimal.Decimal, bool) {
	if settled == 0 {
		return decimal.Zero, false
	}
	return notional.Div(decimal.NewFromInt(settled)), true
}

// View returns a consistent copy of the order for inspection.
func (o *Order) View() OrderView {
	o.mu.Lock()
	defer o.mu.Unlock()

	avg, ok := averagePrice(o.notional, o.settled)
	cps := make([]uint64, len(o.counterparties))
	copy(cps, o.counterparties)

	return OrderView{
		ID:             o.ID,
		Side:           o.Side,
		LimitPrice:     o.LimitPrice,
		Quantity:       o.Quantity,
		Active:         o.active,
		Settled:        o.settled,
		Notional:       o.notional,
		Counterparties: cps,
		AveragePrice:   avg,
		HasExecutions:  ok,
		InHistory:      o.InHistory(),
		Version:        o.Version(),
	}
}
