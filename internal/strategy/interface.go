package strategy

import (
	"matchsim/internal/domain"

	"github.com/shopspring/decimal"
)

// Action is one order a strategy wants submitted.
type Action struct {
	Side   domain.Side
	Symbol string
	Price  decimal.Decimal
	Qty    int64
}

// Strategy produces the orders of one broker.
// Next returns false once the strategy has nothing more to submit.
type Strategy interface {
	Next() (Action, bool)
}

// OrderSink accepts orders. It is satisfied by *service.Exchange.
type OrderSink interface {
	SubmitOrder(side domain.Side, ticker string, quantity int64, price decimal.Decimal) (uint64, error)
}
