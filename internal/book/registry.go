package book

import (
	"sort"
	"sync"
)

// Registry maps tickers to their books. It never creates books on its own;
// creation on a miss is the caller's policy.
type Registry struct {
	mu    sync.RWMutex
	books map[string]*OrderBook
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{books: make(map[string]*OrderBook)}
}

// Lookup returns the book for ticker, if one is registered.
func (r *Registry) Lookup(ticker string) (*OrderBook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.books[ticker]
	return b, ok
}

// Register stores b under ticker unless a book is already there. It returns the
// registered book and whether b was the one stored, so two callers racing on
// the same ticker end up sharing one book.
func (r *Registry) Register(ticker string, b *OrderBook) (*OrderBook, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.books[ticker]; ok {
		return existing, false
	}
	r.books[ticker] = b
	return b, true
}

// Delete removes ticker. It reports whether a book was registered.
func (r *Registry) Delete(ticker string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.books[ticker]; !ok {
		return false
	}
	delete(r.books, ticker)
	return true
}

// Tickers returns all registered tickers sorted.
func (r *Registry) Tickers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.books))
	for t := range r.books {
		result = append(result, t)
	}
	sort.Strings(result)
	return result
}

// Len returns the number of registered books.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.books)
}
