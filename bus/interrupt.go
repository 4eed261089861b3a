// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bus

import (
	"context"
	"fmt"
	"slices"
)

// A Request is a pending interrupt request on one of the bus request
// levels.
type Request struct {
	Vector   uint16 // address of the new PC and PSW pair
	Priority int    // bus request level, 4 through 7
	Master   Master // requesting device

	seq       uint64
	delivered bool
	cleared   bool
}

func (r *Request) String() string {
	return fmt.Sprintf("BR%d vector %03o from %s", r.Priority, r.Vector, r.Master)
}

// RequestInterrupt posts an interrupt request and returns immediately. A
// request for a vector that is already pending is merged with the pending
// request. RequestInterrupt never blocks on the processor, so it is safe to
// call from within a device's register handlers.
func (p *Port) RequestInterrupt(vector uint16, priority int) {
	b := p.bus
	b.sack.Lock()
	b.post(p.master, vector, priority)
	b.sack.Unlock()
}

// Interrupt posts an interrupt request and blocks until the processor has
// taken the vector. It returns ErrReset if the request is withdrawn by a
// bus reset or CancelInterrupt, or the context's error if ctx is done
// first, in which case the request is withdrawn.
func (p *Port) Interrupt(ctx context.Context, vector uint16, priority int) error {
	return p.Await(ctx, p.Raise(vector, priority))
}

// Raise posts an interrupt request without blocking and returns it, so
// that a device can post while holding its own lock and wait for the
// grant with Await after releasing it.
func (p *Port) Raise(vector uint16, priority int) *Request {
	b := p.bus
	b.sack.Lock()
	defer b.sack.Unlock()
	return b.post(p.master, vector, priority)
}

// Await blocks until r has been taken by the processor, withdrawn, or ctx
// is done. Its results are those of Interrupt.
func (p *Port) Await(ctx context.Context, r *Request) error {
	b := p.bus
	stop := context.AfterFunc(ctx, func() {
		b.sack.Lock()
		b.cond.Broadcast()
		b.sack.Unlock()
	})
	defer stop()

	b.sack.Lock()
	defer b.sack.Unlock()

	for !r.delivered && !r.cleared && ctx.Err() == nil {
		b.cond.Wait()
	}

	switch {
	case r.delivered:
		return nil
	case r.cleared:
		return ErrReset
	default:
		b.withdraw(r)
		return ctx.Err()
	}
}

// CancelInterrupt withdraws any pending request the port's device holds for
// vector.
func (p *Port) CancelInterrupt(vector uint16) {
	b := p.bus
	b.sack.Lock()
	defer b.sack.Unlock()
	for _, r := range b.pending {
		if r.Vector == vector && r.Master == p.master {
			r.cleared = true
			b.withdraw(r)
			b.cond.Broadcast()
			return
		}
	}
}

// SetPriority records the processor's current priority level. The
// processor calls SetPriority whenever its status word priority changes, so
// that requests gated by the old level can be reconsidered.
func (b *Bus) SetPriority(level int) {
	b.sack.Lock()
	if b.priority != level {
		b.priority = level
		b.cond.Broadcast()
	}
	b.sack.Unlock()
}

// InterruptPending reports whether any interrupt request is queued,
// regardless of priority. It does not take the arbitration lock.
func (b *Bus) InterruptPending() bool {
	return b.npending.Load() != 0
}

// Pending returns a copy of the queued interrupt requests in the order they
// would be granted.
func (b *Bus) Pending() []Request {
	b.sack.Lock()
	reqs := make([]Request, len(b.pending))
	for i, r := range b.pending {
		reqs[i] = *r
	}
	b.sack.Unlock()

	slices.SortFunc(reqs, func(x, y Request) int {
		if outranks(&x, &y) {
			return -1
		}
		return 1
	})
	return reqs
}

// ServiceInterrupt grants the bus to the highest priority pending request
// whose level exceeds the processor priority. The granted device is
// recorded as the next master, and the processor keeps mastership for the
// delivery sequence: fn is called with the bus held to push its state and
// load the new vector. If no request is eligible, ServiceInterrupt returns
// false without calling fn.
//
// The request counts as delivered once fn returns, whatever its result.
func (b *Bus) ServiceInterrupt(fn func(r *Request, t *Transfer) error) (bool, error) {
	if b.npending.Load() == 0 {
		return false, nil
	}

	b.sack.Lock()
	i := b.selectRequest()
	if i < 0 {
		b.sack.Unlock()
		return false, nil
	}
	r := b.pending[i]
	b.remove(i)
	b.next = r.Master
	b.sack.Unlock()

	b.bbsy.Lock()
	b.master.Store(int32(CPU))
	err := fn(r, &Transfer{bus: b, master: CPU})
	b.bbsy.Unlock()

	b.sack.Lock()
	r.delivered = true
	b.cond.Broadcast()
	b.sack.Unlock()

	return true, err
}

// Wait blocks until an interrupt request with a level above the processor
// priority is pending, Wake is called, or ctx is done.
func (b *Bus) Wait(ctx context.Context) error {
	stop := context.AfterFunc(ctx, b.Wake)
	defer stop()

	b.sack.Lock()
	defer b.sack.Unlock()
	for !b.woken && b.selectRequest() < 0 && ctx.Err() == nil {
		b.cond.Wait()
	}
	b.woken = false
	return ctx.Err()
}

// Wake releases a processor blocked in Wait.
func (b *Bus) Wake() {
	b.sack.Lock()
	b.woken = true
	b.cond.Broadcast()
	b.sack.Unlock()
}

// The following helpers must be called with sack held.

func (b *Bus) post(m Master, vector uint16, priority int) *Request {
	for _, r := range b.pending {
		if r.Vector == vector {
			return r
		}
	}
	b.seq++
	r := &Request{Vector: vector, Priority: priority, Master: m, seq: b.seq}
	b.pending = append(b.pending, r)
	b.npending.Store(int32(len(b.pending)))
	b.cond.Broadcast()
	return r
}

func (b *Bus) selectRequest() int {
	best := -1
	for i, r := range b.pending {
		if r.Priority <= b.priority {
			continue
		}
		if best < 0 || outranks(r, b.pending[best]) {
			best = i
		}
	}
	return best
}

func outranks(a, b *Request) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.seq < b.seq
}

func (b *Bus) withdraw(r *Request) {
	for i, p := range b.pending {
		if p == r {
			b.remove(i)
			return
		}
	}
}

func (b *Bus) remove(i int) {
	b.pending = append(b.pending[:i], b.pending[i+1:]...)
	b.npending.Store(int32(len(b.pending)))
}
