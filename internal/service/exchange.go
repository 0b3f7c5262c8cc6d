package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"matchsim/internal/book"
	"matchsim/internal/domain"
	"matchsim/internal/engine"
	"matchsim/internal/event"
	"matchsim/internal/infra"

	"github.com/shopspring/decimal"
)

// DefaultOrderTimeout bounds one BUY order's matching attempt.
const DefaultOrderTimeout = 3 * time.Second

// Options configures an Exchange. Zero values fall back to defaults.
type Options struct {
	OrderTimeout time.Duration
	Workers      int
	Backoff      time.Duration
	Publisher    engine.Publisher
	Metrics      *infra.Metrics
	Logger       *slog.Logger
}

// Exchange accepts orders for any number of tickers, keeps one book per
// ticker and schedules a matching attempt for every BUY order.
type Exchange struct {
	registry  *book.Registry
	pool      *engine.Pool
	matcher   *engine.Matcher
	publisher engine.Publisher
	metrics   *infra.Metrics
	logger    *slog.Logger
	timeout   time.Duration

	lastID atomic.Uint64

	mu     sync.RWMutex // held for reading by submissions, for writing by Shutdown
	closed bool
}

// NewExchange creates an Exchange whose matching attempts run under ctx.
func NewExchange(ctx context.Context, opts Options) *Exchange {
	if opts.OrderTimeout <= 0 {
		opts.OrderTimeout = DefaultOrderTimeout
	}
	if opts.Workers <= 0 {
		opts.Workers = 20
	}
	if opts.Metrics == nil {
		opts.Metrics = &infra.Metrics{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Exchange{
		registry:  book.NewRegistry(),
		pool:      engine.NewPool(ctx, opts.Workers),
		matcher:   engine.NewMatcher(opts.Backoff, opts.Publisher, opts.Metrics, opts.Logger),
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		timeout:   opts.OrderTimeout,
	}
}

// SubmitOrder validates and inserts a limit order and returns its id. A BUY
// order also gets a matching attempt with the default timeout. Invalid
// arguments are rejected before an id is issued or any book is touched.
func (e *Exchange) SubmitOrder(side domain.Side, ticker string, quantity int64, price decimal.Decimal) (uint64, error) {
	if err := domain.ValidateOrder(side, quantity, price); err != nil {
		e.metrics.RecordRejected()
		return 0, err
	}
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		e.metrics.RecordRejected()
		return 0, fmt.Errorf("empty ticker: %w", domain.ErrUnknownTicker)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.metrics.RecordRejected()
		return 0, domain.ErrPoolClosed
	}

	b := e.bookFor(ticker)
	id := e.lastID.Add(1)
	o := domain.NewOrder(id, side, quantity, price)
	if err := b.Insert(o); err != nil {
		e.metrics.RecordRejected()
		return 0, err
	}
	e.metrics.RecordAccepted()

	e.logger.Debug("Order accepted",
		slog.String("ticker", ticker),
		slog.Uint64("order_id", id),
		slog.String("side", string(side)),
		slog.Int64("quantity", quantity),
		slog.String("price", price.String()))

	if e.publisher != nil {
		e.publisher.Publish(&event.AcceptedEvent{
			BaseEvent: event.BaseEvent{Ts: o.CreatedAt},
			Ticker:    ticker,
			OrderID:   id,
			Side:      side,
			Quantity:  quantity,
			Price:     price,
		})
	}

	if side == domain.SideBuy {
		if err := e.pool.Submit(e.matcher.Task(b, o, e.timeout)); err != nil {
			return id, err
		}
	}
	return id, nil
}

// bookFor returns the book for ticker, creating and registering one on a miss.
func (e *Exchange) bookFor(ticker string) *book.OrderBook {
	if b, ok := e.registry.Lookup(ticker); ok {
		return b
	}
	b, created := e.registry.Register(ticker, book.New(ticker))
	if created {
		e.logger.Info("Order book created", slog.String("ticker", ticker))
	}
	return b
}

// Book returns the inspection view of one ticker.
func (e *Exchange) Book(ticker string) (domain.BookView, error) {
	b, ok := e.registry.Lookup(ticker)
	if !ok {
		return domain.BookView{}, fmt.Errorf("%w: %s", domain.ErrUnknownTicker, ticker)
	}
	return b.View(), nil
}

// Books returns every book's view sorted by ticker.
func (e *Exchange) Books() []domain.BookView {
	tickers := e.registry.Tickers()
	result := make([]domain.BookView, 0, len(tickers))
	for _, t := range tickers {
		if b, ok := e.registry.Lookup(t); ok {
			result = append(result, b.View())
		}
	}
	return result
}

// Registry exposes the ticker registry.
func (e *Exchange) Registry() *book.Registry {
	return e.registry
}

// Metrics returns the counters this exchange records into.
func (e *Exchange) Metrics() *infra.Metrics {
	return e.metrics
}

// Pending returns the number of matching attempts queued or running.
func (e *Exchange) Pending() int64 {
	return e.pool.Queued() + e.pool.Running()
}

// Shutdown refuses new orders and waits for every matching attempt to end.
// Each attempt is bounded by its own timeout; if ctx ends first the remaining
// attempts are cancelled, which expires their orders.
func (e *Exchange) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.logger.Info("Draining matching attempts", slog.Int64("pending", e.Pending()))
	return e.pool.Shutdown(ctx)
}
