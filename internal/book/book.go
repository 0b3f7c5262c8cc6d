package book

import (
	"fmt"

	"matchsim/internal/domain"
)

// OrderBook is the pair of sides for one ticker.
type OrderBook struct {
	ticker string
	Buy    *Side
	Sell   *Side
}

// New creates an empty book for ticker.
func New(ticker string) *OrderBook {
	return &OrderBook{
		ticker: ticker,
		Buy:    NewSide(domain.SideBuy),
		Sell:   NewSide(domain.SideSell),
	}
}

// Ticker returns the instrument this book trades.
func (b *OrderBook) Ticker() string { return b.ticker }

// SideFor returns the side an order of the given direction rests on.
func (b *OrderBook) SideFor(side domain.Side) (*Side, error) {
	switch side {
	case domain.SideBuy:
		return b.Buy, nil
	case domain.SideSell:
		return b.Sell, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnrecognizedSide, string(side))
	}
}

// Opposite returns the side an order of the given direction matches against.
func (b *OrderBook) Opposite(side domain.Side) (*Side, error) {
	switch side {
	case domain.SideBuy:
		return b.Sell, nil
	case domain.SideSell:
		return b.Buy, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnrecognizedSide, string(side))
	}
}

// Insert adds o to the active region of its side.
func (b *OrderBook) Insert(o *domain.Order) error {
	side, err := b.SideFor(o.Side)
	if err != nil {
		return err
	}
	return side.Insert(o)
}

// RelocateToHistory settles o on its side.
func (b *OrderBook) RelocateToHistory(o *domain.Order) error {
	side, err := b.SideFor(o.Side)
	if err != nil {
		return err
	}
	return side.RelocateToHistory(o)
}

// OrderCount is the number of real orders on both sides.
func (b *OrderBook) OrderCount() int {
	return b.Buy.Len() + b.Sell.Len()
}

// View copies both sides for inspection. The two sides are copied one after
// the other, so a view taken mid-match may show a trade on one side only.
func (b *OrderBook) View() domain.BookView {
	return domain.BookView{
		Ticker: b.ticker,
		Buy:    b.Buy.View(),
		Sell:   b.Sell.View(),
	}
}
