package graph

import (
	"sync"
	"time"
)

// saveBuffer coalesces bursts of writes into a single trailing flush.
// Each schedule call restarts the quiet period; flush runs once after
// the last call unless take claims the pending write first.
type saveBuffer struct {
	mu      sync.Mutex
	delay   time.Duration
	flush   func()
	pending bool
	gen     uint64
	timer   *time.Timer
}

func newSaveBuffer(delay time.Duration, flush func()) *saveBuffer {
	return &saveBuffer{delay: delay, flush: flush}
}

// schedule marks a write as pending and restarts the timer. It reports
// whether a write was already pending, i.e. this call was coalesced.
func (b *saveBuffer) schedule() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	coalesced := b.pending
	b.pending = true
	b.gen++
	if b.timer != nil {
		b.timer.Stop()
	}
	gen := b.gen
	b.timer = time.AfterFunc(b.delay, func() { b.fire(gen) })
	return coalesced
}

func (b *saveBuffer) fire(gen uint64) {
	b.mu.Lock()
	// A stale timer that lost the race with Stop must not flush early.
	if !b.pending || gen != b.gen {
		b.mu.Unlock()
		return
	}
	b.pending = false
	b.timer = nil
	b.mu.Unlock()

	b.flush()
}

// take clears the pending write without flushing and reports whether
// there was one. Callers that are about to save anyway use it to absorb
// the buffered write.
func (b *saveBuffer) take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	was := b.pending
	b.pending = false
	b.gen++
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	return was
}

// restore marks a claimed write as pending again after it failed, so the
// next Flush retries it. No timer is armed.
func (b *saveBuffer) restore() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = true
}

func (b *saveBuffer) isPending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}
