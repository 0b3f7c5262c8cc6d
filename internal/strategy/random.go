package strategy

import (
	"math/rand/v2"

	"matchsim/internal/domain"

	"github.com/shopspring/decimal"
)

// RandomParams bounds the orders a RandomStrategy generates.
type RandomParams struct {
	Orders   int
	Tickers  []string
	MinQty   int64
	MaxQty   int64
	MinPrice decimal.Decimal
	MaxPrice decimal.Decimal
}

// RandomStrategy emits a fixed number of orders with uniformly random side,
// ticker, quantity and price. Prices carry two decimal places.
// It is not safe for concurrent use; give each broker its own.
type RandomStrategy struct {
	params RandomParams
	rng    *rand.Rand
	issued int
}

// NewRandomStrategy creates a generator. Equal seeds produce equal sequences.
func NewRandomStrategy(params RandomParams, seed1, seed2 uint64) *RandomStrategy {
	if params.MaxQty < params.MinQty {
		params.MaxQty = params.MinQty
	}
	if params.MaxPrice.LessThan(params.MinPrice) {
		params.MaxPrice = params.MinPrice
	}
	return &RandomStrategy{
		params: params,
		rng:    rand.New(rand.NewPCG(seed1, seed2)),
	}
}

// Next implements Strategy.
func (s *RandomStrategy) Next() (Action, bool) {
	if s.issued >= s.params.Orders || len(s.params.Tickers) == 0 {
		return Action{}, false
	}
	s.issued++

	side := domain.SideBuy
	if s.rng.IntN(2) == 1 {
		side = domain.SideSell
	}

	qty := s.params.MinQty + s.rng.Int64N(s.params.MaxQty-s.params.MinQty+1)

	span := s.params.MaxPrice.Sub(s.params.MinPrice)
	price := s.params.MinPrice.Add(span.Mul(decimal.NewFromFloat(s.rng.Float64()))).Round(2)

	return Action{
		Side:   side,
		Symbol: s.params.Tickers[s.rng.IntN(len(s.params.Tickers))],
		Price:  price,
		Qty:    qty,
	}, true
}
