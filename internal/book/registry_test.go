package book

import (
	"sync"
	"testing"

	"matchsim/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_LookupRegister(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Lookup("X")
	assert.False(t, ok, "lookup must not create books")
	assert.Zero(t, r.Len())

	b := New("X")
	got, created := r.Register("X", b)
	assert.True(t, created)
	assert.Same(t, b, got)

	other, created := r.Register("X", New("X"))
	assert.False(t, created)
	assert.Same(t, b, other, "second register returns the existing book")

	found, ok := r.Lookup("X")
	require.True(t, ok)
	assert.Same(t, b, found)

	r.Register("A", New("A"))
	assert.Equal(t, []string{"A", "X"}, r.Tickers())

	assert.True(t, r.Delete("X"))
	assert.False(t, r.Delete("X"))
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_ConcurrentRegister(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	results := make([]*OrderBook, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = r.Register("X", New("X"))
		}(i)
	}
	wg.Wait()

	for _, b := range results {
		assert.Same(t, results[0], b)
	}
	assert.Equal(t, 1, r.Len())
}

func TestOrderBook_Sides(t *testing.T) {
	b := New("X")
	assert.Equal(t, "X", b.Ticker())

	side, err := b.SideFor(domain.SideBuy)
	require.NoError(t, err)
	assert.Same(t, b.Buy, side)

	opp, err := b.Opposite(domain.SideBuy)
	require.NoError(t, err)
	assert.Same(t, b.Sell, opp)

	_, err = b.SideFor(domain.Side("HOLD"))
	assert.ErrorIs(t, err, domain.ErrUnrecognizedSide)

	require.NoError(t, b.Insert(domain.NewOrder(1, domain.SideSell, 5, px(10))))
	require.NoError(t, b.Insert(domain.NewOrder(2, domain.SideBuy, 5, px(9))))
	assert.Equal(t, 2, b.OrderCount())

	view := b.View()
	assert.Equal(t, "X", view.Ticker)
	assert.Equal(t, 2, view.OrderCount())
}
