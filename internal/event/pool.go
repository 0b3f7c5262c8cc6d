package event

import (
	"sync"

	"github.com/shopspring/decimal"
)

// fillPool recycles FillEvents; every committed match allocates one.
//
// Usage:
//
//	ev := AcquireFillEvent()
//	ev.Ticker = "X"
//	// ... publish, let the Sequencer dispatch ...
//	ReleaseFillEvent(ev)
var fillPool = sync.Pool{
	New: func() interface{} {
		return &FillEvent{}
	},
}

// AcquireFillEvent gets a zeroed FillEvent from the pool.
func AcquireFillEvent() *FillEvent {
	return fillPool.Get().(*FillEvent)
}

// ReleaseFillEvent resets ev and returns it to the pool.
// Handlers must not keep ev after their Handle call returns.
func ReleaseFillEvent(ev *FillEvent) {
	if ev == nil {
		return
	}
	*ev = FillEvent{Price: decimal.Zero}

	fillPool.Put(ev)
}

// Release returns pooled events to their pool and ignores the rest.
func Release(ev Event) {
	if f, ok := ev.(*FillEvent); ok {
		ReleaseFillEvent(f)
	}
}

// Warmup pre-allocates fill events so the first burst of matches does not hit the allocator.
func Warmup() {
	const batchSize = 1000

	evs := make([]*FillEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		evs = append(evs, AcquireFillEvent())
	}
	for _, ev := range evs {
		ReleaseFillEvent(ev)
	}
}
