package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"matchsim/internal/event"

	"github.com/shopspring/decimal"
)

// Handler consumes sequenced events. Handle is called from the Sequencer's
// goroutine only; pooled events must not be retained after it returns.
type Handler interface {
	Handle(ev event.Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ev event.Event)

func (f HandlerFunc) Handle(ev event.Event) { f(ev) }

// TickerStats is the running tape summary for one ticker.
type TickerStats struct {
	Ticker    string          `json:"ticker"`
	Accepted  uint64          `json:"accepted"`
	Trades    uint64          `json:"trades"`
	Volume    int64           `json:"volume"`
	Notional  decimal.Decimal `json:"notional"`
	LastPrice decimal.Decimal `json:"last_price"`
	Expiries  uint64          `json:"expiries"`
	LastSeq   uint64          `json:"last_seq"`
}

// Sequencer is the single goroutine that puts every engine event in one total
// order and hands it to the handlers. Matchers publish concurrently; handlers
// never see two events at once.
type Sequencer struct {
	inbox    chan event.Event
	nextSeq  uint64
	handlers []Handler

	mu      sync.RWMutex // guards tickers for external reads
	tickers map[string]*TickerStats

	closeMu sync.RWMutex
	closed  bool
	done    chan struct{}
}

// NewSequencer creates a new sequencer instance.
func NewSequencer(inboxSize int, handlers ...Handler) *Sequencer {
	return &Sequencer{
		inbox:    make(chan event.Event, inboxSize),
		nextSeq:  1,
		handlers: handlers,
		tickers:  make(map[string]*TickerStats),
		done:     make(chan struct{}),
	}
}

// Publish queues ev for sequencing. Events published after Close are dropped.
func (s *Sequencer) Publish(ev event.Event) {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()

	if s.closed {
		slog.Warn("Event dropped after sequencer close", slog.Any("type", ev.GetType()))
		event.Release(ev)
		return
	}
	s.inbox <- ev
}

// Close stops intake. Run returns once everything already queued is dispatched.
func (s *Sequencer) Close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.inbox)
}

// Done is closed when Run has returned.
func (s *Sequencer) Done() <-chan struct{} {
	return s.done
}

// Run starts the main event loop. This MUST be run in a single goroutine.
// It returns when the inbox is closed and drained, or when ctx is cancelled.
func (s *Sequencer) Run(ctx context.Context) {
	slog.Info("Sequencer started")
	defer close(s.done)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState("panic_dump.json")
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sequencer stopping...")
			return
		case ev, ok := <-s.inbox:
			if !ok {
				slog.Info("Sequencer drained")
				return
			}
			s.processEvent(ev)
		}
	}
}

func (s *Sequencer) processEvent(ev event.Event) {
	// 1. Stamp the total order
	ev.SetSeq(s.nextSeq)

	// 2. Tape summary
	s.updateStats(ev)

	// 3. Fan out
	for _, h := range s.handlers {
		h.Handle(ev)
	}

	// 4. Recycle and advance
	event.Release(ev)
	s.nextSeq++
}

func (s *Sequencer) updateStats(ev event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.tickers[ev.GetTicker()]
	if !ok {
		st = &TickerStats{Ticker: ev.GetTicker(), Notional: decimal.Zero, LastPrice: decimal.Zero}
		s.tickers[ev.GetTicker()] = st
	}
	st.LastSeq = ev.GetSeq()

	switch e := ev.(type) {
	case *event.AcceptedEvent:
		st.Accepted++
	case *event.FillEvent:
		st.Trades++
		st.Volume += e.Quantity
		st.Notional = st.Notional.Add(e.Notional())
		st.LastPrice = e.Price
	case *event.ExpiredEvent:
		st.Expiries++
	default:
		slog.Warn("Unknown event type", slog.Any("type", ev.GetType()))
	}
}

// GetTickerStats returns a snapshot of the tape summary (external read).
func (s *Sequencer) GetTickerStats(ticker string) (TickerStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.tickers[ticker]
	if !ok {
		return TickerStats{}, false
	}
	return *st, true // Return copy
}

// DumpState writes the entire internal state to a file (for post-mortem).
func (s *Sequencer) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	s.mu.RLock()
	data := struct {
		NextSeq uint64                  `json:"next_seq"`
		Tickers map[string]*TickerStats `json:"tickers"`
	}{
		NextSeq: s.nextSeq,
		Tickers: s.tickers,
	}
	b, err := json.MarshalIndent(data, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	err = os.WriteFile(filename, b, 0644)
	if err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
