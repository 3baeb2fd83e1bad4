package matcher

import "sync/atomic"

// joinBarrier counts down member completions and runs onDone exactly once,
// when the last expected member arrives. Extra arrivals are ignored.
type joinBarrier struct {
	remaining atomic.Int64
	fired     atomic.Bool
	onDone    func()
}

func newJoinBarrier(n int, onDone func()) *joinBarrier {
	b := &joinBarrier{onDone: onDone}
	b.remaining.Store(int64(n))
	return b
}

// Arrive records one completion and reports whether it triggered onDone.
func (b *joinBarrier) Arrive() bool {
	if b.remaining.Add(-1) != 0 {
		return false
	}
	if !b.fired.CompareAndSwap(false, true) {
		return false
	}
	b.onDone()
	return true
}
