package strategy

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"matchsim/internal/domain"

	"golang.org/x/time/rate"
)

// BrokerStats counts what one broker submitted.
type BrokerStats struct {
	Submitted int
	Accepted  int
	Rejected  int
}

// Add accumulates other into s.
func (s *BrokerStats) Add(other BrokerStats) {
	s.Submitted += other.Submitted
	s.Accepted += other.Accepted
	s.Rejected += other.Rejected
}

// Broker drains one Strategy into an OrderSink, optionally paced.
type Broker struct {
	ID       int
	strategy Strategy
	sink     OrderSink
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewBroker creates a broker. A nil limiter submits as fast as possible.
func NewBroker(id int, strat Strategy, sink OrderSink, limiter *rate.Limiter, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		ID:       id,
		strategy: strat,
		sink:     sink,
		limiter:  limiter,
		logger:   logger.With(slog.Int("broker", id)),
	}
}

// Run submits until the strategy is exhausted, ctx ends or the sink stops
// accepting orders. Rejected orders are logged and counted, not fatal.
func (b *Broker) Run(ctx context.Context) (BrokerStats, error) {
	var stats BrokerStats
	for {
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return stats, ctx.Err()
			}
		} else if err := ctx.Err(); err != nil {
			return stats, err
		}

		action, ok := b.strategy.Next()
		if !ok {
			return stats, nil
		}

		stats.Submitted++
		id, err := b.sink.SubmitOrder(action.Side, action.Symbol, action.Qty, action.Price)
		switch {
		case errors.Is(err, domain.ErrPoolClosed):
			if id == 0 {
				stats.Rejected++
			} else {
				stats.Accepted++
			}
			return stats, err
		case err != nil:
			stats.Rejected++
			b.logger.Warn("Order rejected",
				slog.String("side", string(action.Side)),
				slog.String("ticker", action.Symbol),
				slog.Int64("quantity", action.Qty),
				slog.String("price", action.Price.String()),
				slog.Any("error", err))
		default:
			stats.Accepted++
		}
	}
}

// RunBrokers runs every broker concurrently and returns the combined stats
// once all of them have stopped. The first non-cancellation error is returned.
func RunBrokers(ctx context.Context, brokers []*Broker) (BrokerStats, error) {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		total    BrokerStats
		firstErr error
	)

	for _, br := range brokers {
		wg.Add(1)
		go func(br *Broker) {
			defer wg.Done()
			stats, err := br.Run(ctx)

			mu.Lock()
			defer mu.Unlock()
			total.Add(stats)
			if err != nil && !errors.Is(err, context.Canceled) && firstErr == nil {
				firstErr = err
			}
			br.logger.Debug("Broker finished",
				slog.Int("submitted", stats.Submitted),
				slog.Int("rejected", stats.Rejected))
		}(br)
	}

	wg.Wait()
	return total, firstErr
}
