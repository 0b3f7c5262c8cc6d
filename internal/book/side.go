// Package book holds the price-ordered order lists that the matcher works on.
//
// Each side is one doubly linked list bounded by two sentinels. The prefix next
// to the head is the active region, ordered by price then arrival. Orders that
// fill completely or expire are moved to the suffix in front of the tail, the
// history region, and never come back.
package book

import (
	"fmt"
	"sync"

	"matchsim/internal/domain"

	"github.com/shopspring/decimal"
)

// Side is one half of an order book.
//
// mu guards the links of every node in the list, the region counters and the
// changed channel. Scanners hold it for reading so they never observe a
// half-linked chain; insert and relocation hold it for writing.
type Side struct {
	side domain.Side

	mu         sync.RWMutex
	head, tail *domain.Order
	active     int
	history    int
	changed    chan struct{}
}

// NewSide creates an empty side with its two sentinels linked together.
func NewSide(side domain.Side) *Side {
	head := domain.NewSentinel(side)
	tail := domain.NewSentinel(side)
	head.Next = tail
	tail.Prev = head

	return &Side{
		side:    side,
		head:    head,
		tail:    tail,
		changed: make(chan struct{}),
	}
}

// Kind returns which side of the book this is.
func (s *Side) Kind() domain.Side { return s.side }

// ranksBefore reports whether a resting price keeps priority over an incoming
// one, i.e. whether the insertion scan should step past it. Equal prices rank
// first so arrival order is kept.
func (s *Side) ranksBefore(resting, incoming decimal.Decimal) bool {
	if s.side == domain.SideBuy {
		return resting.GreaterThanOrEqual(incoming)
	}
	return resting.LessThanOrEqual(incoming)
}

// crosses reports whether a resting order on this side may trade against an
// aggressor whose limit is limit.
func (s *Side) crosses(resting, limit decimal.Decimal) bool {
	if s.side == domain.SideSell {
		return resting.LessThanOrEqual(limit)
	}
	return resting.GreaterThanOrEqual(limit)
}

// activeNode reports whether n is a real order still in the active region.
func (s *Side) activeNode(n *domain.Order) bool {
	return n != s.tail && !n.InHistory()
}

// Insert places o in the active region behind every order with equal or better price.
func (s *Side) Insert(o *domain.Order) error {
	if !o.Side.Valid() {
		return fmt.Errorf("order %d: %w: %q", o.ID, domain.ErrUnrecognizedSide, string(o.Side))
	}
	if o.Side != s.side {
		return fmt.Errorf("order %d: %s order on %s side: %w", o.ID, o.Side, s.side, domain.ErrUnrecognizedSide)
	}
	if o.IsSentinel() || o.InHistory() {
		return fmt.Errorf("order %d: %w", o.ID, domain.ErrAlreadyInHistory)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pos := s.head
	for s.activeNode(pos.Next) && s.ranksBefore(pos.Next.LimitPrice, o.LimitPrice) {
		pos = pos.Next
	}

	o.Prev = pos
	o.Next = pos.Next
	pos.Next.Prev = o
	pos.Next = o

	s.active++
	s.notifyLocked()
	return nil
}

// RelocateToHistory unlinks o and re-links it just before the tail, then clears
// its claim. The caller must hold o's claim, except for an aggressor relocating itself.
func (s *Side) RelocateToHistory(o *domain.Order) error {
	if o.IsSentinel() {
		return fmt.Errorf("cannot relocate a sentinel: %w", domain.ErrAlreadyInHistory)
	}
	if o.Side != s.side {
		return fmt.Errorf("order %d: %s order on %s side: %w", o.ID, o.Side, s.side, domain.ErrUnrecognizedSide)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if o.Prev == nil || o.Next == nil {
		return fmt.Errorf("order %d: %w", o.ID, domain.ErrNotInBook)
	}
	if !o.MarkHistory() {
		return fmt.Errorf("order %d: %w", o.ID, domain.ErrAlreadyInHistory)
	}

	o.Prev.Next = o.Next
	o.Next.Prev = o.Prev

	o.Prev = s.tail.Prev
	o.Next = s.tail
	s.tail.Prev.Next = o
	s.tail.Prev = o

	s.active--
	s.history++
	o.Release()
	s.notifyLocked()
	return nil
}

// ClaimBest walks the active region from the best price and claims the first
// unclaimed order with quantity left that crosses limit. Claimed orders are
// skipped rather than waited for. It returns nil when nothing is available.
func (s *Side) ClaimBest(limit decimal.Decimal) *domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for n := s.head.Next; s.activeNode(n); n = n.Next {
		if !s.crosses(n.LimitPrice, limit) {
			// Sorted by price: nothing further along can cross either.
			return nil
		}
		if n.Claimed() || n.Remaining() == 0 {
			continue
		}
		if n.TryClaim() {
			return n
		}
	}
	return nil
}

// Reclaim takes the claim on a specific order again, re-checking that it is
// still active, has quantity and crosses limit. It does not wait.
func (s *Side) Reclaim(o *domain.Order, limit decimal.Decimal) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if o.InHistory() || !s.crosses(o.LimitPrice, limit) {
		return false
	}
	if !o.TryClaim() {
		return false
	}
	if o.Remaining() == 0 || o.InHistory() {
		o.Release()
		return false
	}
	return true
}

// Changed returns a channel that is closed the next time the side's contents or
// claims change. Matchers with nothing to do wait on it instead of spinning.
func (s *Side) Changed() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changed
}

// Notify wakes everyone waiting on Changed.
func (s *Side) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyLocked()
}

func (s *Side) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// ActiveLen returns the number of orders in the active region.
func (s *Side) ActiveLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// HistoryLen returns the number of orders in the history region.
func (s *Side) HistoryLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history
}

// Len returns the number of real orders on the side.
func (s *Side) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active + s.history
}

// Walk calls fn for every real order from head to tail until fn returns false.
func (s *Side) Walk(fn func(o *domain.Order) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for n := s.head.Next; n != s.tail; n = n.Next {
		if !fn(n) {
			return
		}
	}
}

// View copies the side in list order, split into its two regions.
func (s *Side) View() domain.SideView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view := domain.SideView{
		Side:    s.side,
		Active:  make([]domain.OrderView, 0, s.active),
		History: make([]domain.OrderView, 0, s.history),
	}
	for n := s.head.Next; n != s.tail; n = n.Next {
		if n.InHistory() {
			view.History = append(view.History, n.View())
		} else {
			view.Active = append(view.Active, n.View())
		}
	}
	return view
}
