package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"matchsim/internal/book"
	"matchsim/internal/domain"
	"matchsim/internal/event"
	"matchsim/internal/infra"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type collector struct {
	mu      sync.Mutex
	fills   []event.FillEvent
	expired []event.ExpiredEvent
}

func (c *collector) Publish(ev event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch e := ev.(type) {
	case *event.FillEvent:
		c.fills = append(c.fills, *e)
		event.ReleaseFillEvent(e)
	case *event.ExpiredEvent:
		c.expired = append(c.expired, *e)
	}
}

func (c *collector) snapshot() ([]event.FillEvent, []event.ExpiredEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]event.FillEvent(nil), c.fills...), append([]event.ExpiredEvent(nil), c.expired...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMatcher(pub Publisher, metrics *infra.Metrics) *Matcher {
	return NewMatcher(time.Millisecond, pub, metrics, quietLogger())
}

func px(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func insert(t testing.TB, b *book.OrderBook, id uint64, side domain.Side, qty int64, price string) *domain.Order {
	t.Helper()
	o := domain.NewOrder(id, side, qty, px(price))
	require.NoError(t, b.Insert(o))
	return o
}

func TestMatch_PartialFillThenExpiry(t *testing.T) {
	b := book.New("X")
	pub := &collector{}
	m := newTestMatcher(pub, nil)

	sell := insert(t, b, 1, domain.SideSell, 50, "40.0")
	buy := insert(t, b, 2, domain.SideBuy, 100, "50.0")

	outcome, err := m.Match(context.Background(), b, buy, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, outcome)

	fills, expired := pub.snapshot()
	require.Len(t, fills, 1)
	assert.Equal(t, int64(50), fills[0].Quantity)
	assert.True(t, fills[0].Price.Equal(px("40")))
	assert.Equal(t, uint64(2), fills[0].BuyOrderID)
	assert.Equal(t, uint64(1), fills[0].SellOrderID)
	require.Len(t, expired, 1)
	assert.Equal(t, int64(50), expired[0].Remaining)

	sv := sell.View()
	assert.True(t, sv.InHistory)
	assert.Equal(t, int64(50), sv.Settled)
	assert.Zero(t, sv.Active)

	bv := buy.View()
	assert.True(t, bv.InHistory)
	assert.Equal(t, int64(50), bv.Settled)
	assert.Equal(t, int64(50), bv.Active)
	assert.True(t, bv.AveragePrice.Equal(px("40")))
	assert.Equal(t, []uint64{1}, bv.Counterparties)
	assert.Equal(t, []uint64{2}, sv.Counterparties)
}

func TestMatch_TimeoutWithoutCounterparty(t *testing.T) {
	b := book.New("X")
	pub := &collector{}
	metrics := &infra.Metrics{}
	m := newTestMatcher(pub, metrics)

	buy := insert(t, b, 1, domain.SideBuy, 10, "5.0")

	start := time.Now()
	outcome, err := m.Match(context.Background(), b, buy, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, outcome)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	v := buy.View()
	assert.True(t, v.InHistory)
	assert.Equal(t, int64(10), v.Active)
	assert.Zero(t, v.Settled)
	assert.False(t, v.HasExecutions)

	_, expired := pub.snapshot()
	assert.Len(t, expired, 1, "expiry is reported exactly once")
	assert.Equal(t, uint64(1), metrics.Snapshot().Expiries)
	assert.Equal(t, 1, b.Buy.HistoryLen())
	assert.Zero(t, b.Buy.ActiveLen())
}

func TestMatch_TimePriority(t *testing.T) {
	b := book.New("X")
	pub := &collector{}
	m := newTestMatcher(pub, nil)

	s1 := insert(t, b, 1, domain.SideSell, 20, "30.0")
	s2 := insert(t, b, 2, domain.SideSell, 20, "30.0")
	buy := insert(t, b, 3, domain.SideBuy, 25, "30.0")

	outcome, err := m.Match(context.Background(), b, buy, time.Second)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFilled, outcome)

	assert.Equal(t, int64(20), s1.Settled())
	assert.True(t, s1.InHistory())
	assert.Equal(t, int64(5), s2.Settled())
	assert.Equal(t, int64(15), s2.Remaining())
	assert.False(t, s2.InHistory())
	assert.False(t, s2.Claimed(), "partially filled sell must be released")

	bv := buy.View()
	assert.True(t, bv.InHistory)
	assert.Equal(t, []uint64{1, 2}, bv.Counterparties)

	fills, _ := pub.snapshot()
	require.Len(t, fills, 2)
	assert.Equal(t, int64(20), fills[0].Quantity)
	assert.Equal(t, int64(5), fills[1].Quantity)
}

func TestMatch_BestPriceFirst(t *testing.T) {
	b := book.New("X")
	m := newTestMatcher(nil, nil)

	dear := insert(t, b, 1, domain.SideSell, 10, "45")
	cheap := insert(t, b, 2, domain.SideSell, 10, "41")
	tooDear := insert(t, b, 3, domain.SideSell, 10, "60")
	buy := insert(t, b, 4, domain.SideBuy, 15, "50")

	outcome, err := m.Match(context.Background(), b, buy, time.Second)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFilled, outcome)

	assert.Equal(t, int64(10), cheap.Settled())
	assert.Equal(t, int64(5), dear.Settled())
	assert.Zero(t, tooDear.Settled(), "sell above the buy limit never trades")

	avg, ok := buy.AveragePrice()
	require.True(t, ok)
	assert.Equal(t, "42.33", avg.StringFixed(2))
}

func TestMatch_WakesOnLateSell(t *testing.T) {
	b := book.New("X")
	m := NewMatcher(time.Second, nil, nil, quietLogger())

	buy := insert(t, b, 1, domain.SideBuy, 10, "50")

	done := make(chan Outcome, 1)
	go func() {
		outcome, _ := m.Match(context.Background(), b, buy, 5*time.Second)
		done <- outcome
	}()

	time.Sleep(20 * time.Millisecond)
	insert(t, b, 2, domain.SideSell, 10, "49")

	select {
	case outcome := <-done:
		assert.Equal(t, OutcomeFilled, outcome)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("matcher did not wake on the book change")
	}
}

func TestMatch_ConflictRetriesSameOrder(t *testing.T) {
	b := book.New("X")
	pub := &collector{}
	metrics := &infra.Metrics{}
	m := newTestMatcher(pub, metrics)

	sell := insert(t, b, 1, domain.SideSell, 10, "40")
	other := insert(t, b, 2, domain.SideSell, 10, "40")
	buy := insert(t, b, 3, domain.SideBuy, 10, "40")

	var interfered bool
	m.beforeCommit = func(s *domain.Order) {
		if !interfered {
			interfered = true
			s.BeginAttempt() // another attempt slipped in
		}
	}

	outcome, err := m.Match(context.Background(), b, buy, time.Second)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFilled, outcome)

	assert.Equal(t, uint64(1), metrics.Snapshot().Conflicts)
	assert.Equal(t, int64(10), sell.Settled(), "the retry goes back to the same order")
	assert.Zero(t, other.Settled())

	fills, _ := pub.snapshot()
	require.Len(t, fills, 1, "the conflicted attempt must not commit")
	assert.Equal(t, int64(10), fills[0].Quantity)
}

func TestMatch_Errors(t *testing.T) {
	b := book.New("X")
	m := newTestMatcher(nil, nil)

	t.Run("sell aggressor", func(t *testing.T) {
		sell := insert(t, b, 1, domain.SideSell, 10, "40")
		_, err := m.Match(context.Background(), b, sell, time.Millisecond)
		assert.ErrorIs(t, err, domain.ErrUnrecognizedSide)
	})

	t.Run("already matching", func(t *testing.T) {
		buy := insert(t, b, 2, domain.SideBuy, 10, "1")
		require.True(t, buy.TryClaim())
		_, err := m.Match(context.Background(), b, buy, time.Millisecond)
		assert.ErrorIs(t, err, domain.ErrAlreadyMatching)
	})

	t.Run("already settled", func(t *testing.T) {
		buy := insert(t, b, 3, domain.SideBuy, 10, "1")
		require.NoError(t, b.RelocateToHistory(buy))
		_, err := m.Match(context.Background(), b, buy, time.Millisecond)
		assert.ErrorIs(t, err, domain.ErrAlreadyInHistory)
	})
}

func TestMatch_CancelledContextExpires(t *testing.T) {
	b := book.New("X")
	m := newTestMatcher(nil, nil)
	buy := insert(t, b, 1, domain.SideBuy, 10, "1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := m.Match(ctx, b, buy, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, outcome)
	assert.True(t, buy.InHistory())
}

// TestMatch_ConcurrentInvariants runs many BUY attempts against one book at
// once and checks conservation, the price bound and fill accounting.
func TestMatch_ConcurrentInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := book.New("X")
		pub := &collector{}
		m := newTestMatcher(pub, nil)

		n := rapid.IntRange(1, 30).Draw(t, "orders")
		orders := make(map[uint64]*domain.Order, n)
		var buys []*domain.Order
		for i := 1; i <= n; i++ {
			side := rapid.SampledFrom([]domain.Side{domain.SideBuy, domain.SideSell}).Draw(t, "side")
			qty := rapid.Int64Range(1, 50).Draw(t, "qty")
			price := decimal.NewFromInt(rapid.Int64Range(1, 10).Draw(t, "price"))
			o := domain.NewOrder(uint64(i), side, qty, price)
			if err := b.Insert(o); err != nil {
				t.Fatalf("insert: %v", err)
			}
			orders[o.ID] = o
			if side == domain.SideBuy {
				buys = append(buys, o)
			}
		}

		var wg sync.WaitGroup
		errs := make(chan error, len(buys))
		for _, buy := range buys {
			wg.Add(1)
			go func(buy *domain.Order) {
				defer wg.Done()
				if _, err := m.Match(context.Background(), b, buy, 20*time.Millisecond); err != nil {
					errs <- err
				}
			}(buy)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("match: %v", err)
		}

		fills, expired := pub.snapshot()
		filledBy := make(map[uint64]int64)
		for _, f := range fills {
			buy, sell := orders[f.BuyOrderID], orders[f.SellOrderID]
			if !f.Price.Equal(sell.LimitPrice) {
				t.Fatalf("fill at %s, resting limit %s", f.Price, sell.LimitPrice)
			}
			if f.Price.GreaterThan(buy.LimitPrice) {
				t.Fatalf("fill at %s above buy limit %s", f.Price, buy.LimitPrice)
			}
			filledBy[f.BuyOrderID] += f.Quantity
			filledBy[f.SellOrderID] += f.Quantity
		}

		for id, o := range orders {
			v := o.View()
			if !v.Conserved() {
				t.Fatalf("order %d not conserved: %+v", id, v)
			}
			if v.Settled != filledBy[id] {
				t.Fatalf("order %d settled %d, fills say %d", id, v.Settled, filledBy[id])
			}
			if o.Claimed() {
				t.Fatalf("order %d left claimed", id)
			}
			if o.Side == domain.SideBuy && !v.InHistory {
				t.Fatalf("buy %d did not terminate", id)
			}
			if o.Side == domain.SideSell && v.InHistory != (v.Active == 0) {
				t.Fatalf("sell %d in history=%v with %d active", id, v.InHistory, v.Active)
			}
		}

		var expiredCount int
		for _, o := range buys {
			if o.Remaining() > 0 {
				expiredCount++
			}
		}
		if len(expired) != expiredCount {
			t.Fatalf("%d expiry events for %d unfilled buys", len(expired), expiredCount)
		}
	})
}
