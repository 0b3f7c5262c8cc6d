package service

import (
	"sort"
	"sync"

	"matchsim/internal/event"

	"github.com/shopspring/decimal"
)

// Quote summarises the trades of one ticker.
type Quote struct {
	Ticker   string          `json:"ticker"`
	Trades   uint64          `json:"trades"`
	Volume   int64           `json:"volume"`
	Notional decimal.Decimal `json:"notional"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Last     decimal.Decimal `json:"last"`
	Expiries uint64          `json:"expiries"`
}

// VWAP is the volume weighted average trade price. ok is false before the first trade.
func (q Quote) VWAP() (decimal.Decimal, bool) {
	if q.Volume == 0 {
		return decimal.Zero, false
	}
	return q.Notional.Div(decimal.NewFromInt(q.Volume)), true
}

// QuoteService keeps a Quote per ticker from the event tape. It is an
// engine.Handler; reads are safe from any goroutine.
type QuoteService struct {
	mu     sync.RWMutex
	quotes map[string]*Quote
}

// NewQuoteService creates a new QuoteService instance
func NewQuoteService() *QuoteService {
	return &QuoteService{quotes: make(map[string]*Quote)}
}

// Handle folds one sequenced event into its ticker's quote.
func (s *QuoteService) Handle(ev event.Event) {
	switch e := ev.(type) {
	case *event.FillEvent:
		s.mu.Lock()
		defer s.mu.Unlock()

		q := s.quoteLocked(e.Ticker)
		if q.Trades == 0 {
			q.Open, q.High, q.Low = e.Price, e.Price, e.Price
		}
		if e.Price.GreaterThan(q.High) {
			q.High = e.Price
		}
		if e.Price.LessThan(q.Low) {
			q.Low = e.Price
		}
		q.Last = e.Price
		q.Trades++
		q.Volume += e.Quantity
		q.Notional = q.Notional.Add(e.Notional())

	case *event.ExpiredEvent:
		s.mu.Lock()
		defer s.mu.Unlock()
		s.quoteLocked(e.Ticker).Expiries++
	}
}

// Must be called with lock held
func (s *QuoteService) quoteLocked(ticker string) *Quote {
	q, ok := s.quotes[ticker]
	if !ok {
		q = &Quote{Ticker: ticker, Notional: decimal.Zero}
		s.quotes[ticker] = q
	}
	return q
}

// GetData returns the quote for ticker.
func (s *QuoteService) GetData(ticker string) (Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quotes[ticker]
	if !ok {
		return Quote{}, false
	}
	return *q, true
}

// GetAllData returns every quote sorted by ticker
func (s *QuoteService) GetAllData() []Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Quote, 0, len(s.quotes))
	for _, q := range s.quotes {
		result = append(result, *q)
	}

	// Sort by ticker for consistent ordering
	sort.Slice(result, func(i, j int) bool {
		return result[i].Ticker < result[j].Ticker
	})

	return result
}
