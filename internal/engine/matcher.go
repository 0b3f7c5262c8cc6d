package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"matchsim/internal/book"
	"matchsim/internal/domain"
	"matchsim/internal/event"
	"matchsim/internal/infra"

	"github.com/shopspring/decimal"
)

// Outcome is the terminal state of one matching attempt.
type Outcome int

const (
	OutcomeFilled Outcome = iota + 1
	OutcomeExpired
)

// String returns the string representation of Outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeFilled:
		return "FILLED"
	case OutcomeExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Publisher receives the events a matcher produces.
type Publisher interface {
	Publish(ev event.Event)
}

// DefaultBackoff is how long an idle or conflicted matcher waits before re-scanning.
const DefaultBackoff = 10 * time.Millisecond

// Matcher runs the matching loop for BUY orders. One Matcher is shared by all
// attempts; each call to Match is independent and may run in parallel.
type Matcher struct {
	backoff   time.Duration
	publisher Publisher
	metrics   *infra.Metrics
	logger    *slog.Logger

	// beforeCommit runs between claim and commit. Tests use it to interfere.
	beforeCommit func(sell *domain.Order)
}

// NewMatcher creates a matcher. publisher and metrics may be nil.
func NewMatcher(backoff time.Duration, publisher Publisher, metrics *infra.Metrics, logger *slog.Logger) *Matcher {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		backoff:   backoff,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
}

// Task adapts one attempt to the worker pool.
func (m *Matcher) Task(b *book.OrderBook, buy *domain.Order, timeout time.Duration) Task {
	return func(ctx context.Context) {
		if _, err := m.Match(ctx, b, buy, timeout); err != nil {
			m.logger.Error("Matching attempt failed",
				slog.String("ticker", b.Ticker()),
				slog.Uint64("order_id", buy.ID),
				slog.Any("error", err))
		}
	}
}

// Match repeatedly takes the best crossing SELL order and trades against it
// until buy is filled or timeout elapses. On timeout buy is relocated to
// history with its residual quantity. Cancelling ctx ends the attempt the same way.
func (m *Matcher) Match(ctx context.Context, b *book.OrderBook, buy *domain.Order, timeout time.Duration) (Outcome, error) {
	if buy.Side != domain.SideBuy {
		return 0, fmt.Errorf("order %d: matching runs for BUY orders only: %w", buy.ID, domain.ErrUnrecognizedSide)
	}
	if buy.InHistory() {
		return 0, fmt.Errorf("order %d: %w", buy.ID, domain.ErrAlreadyInHistory)
	}
	// Marks the aggressor as in matching; nobody else ever claims a BUY.
	if !buy.TryClaim() {
		return 0, fmt.Errorf("order %d: %w", buy.ID, domain.ErrAlreadyMatching)
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if m.metrics != nil {
		m.metrics.MatcherStarted()
		defer m.metrics.MatcherStopped()
	}

	for buy.Remaining() > 0 {
		if ctx.Err() != nil {
			return m.expire(b, buy, start)
		}

		// Taken before the scan so a change during the scan still wakes us.
		wake := b.Sell.Changed()

		sell := b.Sell.ClaimBest(buy.LimitPrice)
		if sell == nil {
			m.wait(ctx, wake)
			continue
		}

		filled, err := m.trade(ctx, b, buy, sell)
		if err != nil {
			return 0, err
		}
		if filled {
			latency := time.Since(start)
			if m.metrics != nil {
				m.metrics.RecordOrderFilled(latency)
			}
			m.logger.Debug("Order filled",
				slog.String("ticker", b.Ticker()),
				slog.Uint64("order_id", buy.ID),
				slog.Duration("elapsed", latency))
			return OutcomeFilled, nil
		}
	}

	// Only reachable if buy entered with nothing left to fill.
	if err := b.Buy.RelocateToHistory(buy); err != nil {
		return 0, err
	}
	return OutcomeFilled, nil
}

// tentative is the computed result of trading buy against sell before commit.
type tentative struct {
	quantity int64
	price    decimal.Decimal
}

func plan(buy, sell *domain.Order) tentative {
	return tentative{
		quantity: min(buy.Remaining(), sell.Remaining()),
		price:    sell.LimitPrice,
	}
}

// trade runs the claim/commit protocol against one claimed SELL order. It
// returns true once buy is completely filled. On a version conflict the claim
// is dropped, the matcher backs off and goes after the same order again.
func (m *Matcher) trade(ctx context.Context, b *book.OrderBook, buy, sell *domain.Order) (bool, error) {
	var fill tentative
	for {
		expected := sell.BeginAttempt()
		fill = plan(buy, sell)

		if m.beforeCommit != nil {
			m.beforeCommit(sell)
		}

		err := m.commit(buy, sell, expected, fill)
		if err == nil {
			break
		}
		if !domain.IsRetriable(err) {
			sell.Release()
			b.Sell.Notify()
			return false, err
		}

		m.conflict(b, sell, err)
		sell.Release()
		b.Sell.Notify()

		wait := time.NewTimer(m.backoff)
		select {
		case <-ctx.Done():
			wait.Stop()
			return false, nil
		case <-wait.C:
		}
		if !b.Sell.Reclaim(sell, buy.LimitPrice) {
			return false, nil
		}
	}

	// Read while the claim is still held; once released another matcher may trade sell.
	buyLeft, sellLeft := buy.Remaining(), sell.Remaining()
	sellDone := sellLeft == 0
	buyDone := buyLeft == 0

	if sellDone {
		if err := b.Sell.RelocateToHistory(sell); err != nil {
			return false, err
		}
	} else {
		sell.Release()
		b.Sell.Notify()
	}
	if buyDone {
		if err := b.Buy.RelocateToHistory(buy); err != nil {
			return false, err
		}
	}

	m.publishFill(b, buy.ID, sell.ID, fill, buyLeft, sellLeft)
	return buyDone, nil
}

// commit applies fill to both orders if sell's version has not moved since expected.
func (m *Matcher) commit(buy, sell *domain.Order, expected uint64, fill tentative) error {
	if !sell.CommitVersion(expected) {
		return &domain.ConflictError{OrderID: sell.ID, Expected: expected, Observed: sell.Version()}
	}
	if err := sell.ApplyFill(fill.quantity, fill.price, buy.ID); err != nil {
		return err
	}
	if err := buy.ApplyFill(fill.quantity, fill.price, sell.ID); err != nil {
		return err
	}
	return nil
}

func (m *Matcher) conflict(b *book.OrderBook, sell *domain.Order, err error) {
	if m.metrics != nil {
		m.metrics.RecordConflict()
	}
	var ce *domain.ConflictError
	if errors.As(err, &ce) {
		m.logger.Debug("Version conflict, retrying",
			slog.String("ticker", b.Ticker()),
			slog.Uint64("order_id", sell.ID),
			slog.Uint64("expected", ce.Expected),
			slog.Uint64("observed", ce.Observed))
	}
}

// wait blocks until the sell side changes, the back-off elapses or ctx ends.
func (m *Matcher) wait(ctx context.Context, wake <-chan struct{}) {
	t := time.NewTimer(m.backoff)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-wake:
	case <-t.C:
	}
}

func (m *Matcher) expire(b *book.OrderBook, buy *domain.Order, start time.Time) (Outcome, error) {
	if err := b.Buy.RelocateToHistory(buy); err != nil {
		return 0, err
	}

	elapsed := time.Since(start)
	remaining, settled := buy.Remaining(), buy.Settled()

	if m.metrics != nil {
		m.metrics.RecordExpiry(elapsed)
	}
	m.logger.Info("Order expired",
		slog.String("ticker", b.Ticker()),
		slog.Uint64("order_id", buy.ID),
		slog.Int64("unfilled", remaining),
		slog.Int64("settled", settled),
		slog.Duration("elapsed", elapsed))

	if m.publisher != nil {
		m.publisher.Publish(&event.ExpiredEvent{
			BaseEvent: event.BaseEvent{Ts: time.Now()},
			Ticker:    b.Ticker(),
			OrderID:   buy.ID,
			Remaining: remaining,
			Settled:   settled,
			Elapsed:   elapsed,
		})
	}
	return OutcomeExpired, nil
}

func (m *Matcher) publishFill(b *book.OrderBook, buyID, sellID uint64, fill tentative, buyLeft, sellLeft int64) {
	if m.metrics != nil {
		m.metrics.RecordFill(fill.quantity)
	}

	m.logger.Info("Trade",
		slog.String("ticker", b.Ticker()),
		slog.Uint64("buy_order_id", buyID),
		slog.Uint64("sell_order_id", sellID),
		slog.Int64("quantity", fill.quantity),
		slog.String("price", fill.price.String()),
		slog.Int64("buy_left", buyLeft),
		slog.Int64("sell_left", sellLeft))

	if m.publisher == nil {
		return
	}
	ev := event.AcquireFillEvent()
	ev.Ts = time.Now()
	ev.Ticker = b.Ticker()
	ev.BuyOrderID = buyID
	ev.SellOrderID = sellID
	ev.Quantity = fill.quantity
	ev.Price = fill.price
	ev.BuyRemaining = buyLeft
	ev.SellRemaining = sellLeft
	m.publisher.Publish(ev)
}
