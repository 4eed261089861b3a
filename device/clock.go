// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/beevik/gopdp11/bus"
)

// Line clock (KW11-L) register address and interrupt assignment.
const (
	LKS = 0o177546 // clock status

	ClockVector   = 0o100
	ClockPriority = 6
)

// LineClock sets its monitor bit at the mains frequency and, when
// interrupts are enabled, interrupts on every tick.
type LineClock struct {
	mu     sync.Mutex
	port   *bus.Port
	period time.Duration
	lks    uint16
	ticks  uint64
}

// NewLineClock creates a line clock ticking hz times per second. A clock
// with hz of zero never ticks.
func NewLineClock(hz int) *LineClock {
	c := &LineClock{lks: csrDone}
	if hz > 0 {
		c.period = time.Second / time.Duration(hz)
	}
	return c
}

// Connect is called when the clock is attached to the bus.
func (c *LineClock) Connect(p *bus.Port) {
	c.port = p
}

// Ticks returns the number of ticks since the clock started.
func (c *LineClock) Ticks() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Run ticks the clock until ctx is done. Each tick with interrupts
// enabled blocks until the processor takes the interrupt, so ticks that
// arrive while the processor runs at a higher priority are lost.
func (c *LineClock) Run(ctx context.Context) error {
	if c.period == 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(c.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !c.tick() {
				continue
			}
			err := c.port.Interrupt(ctx, ClockVector, ClockPriority)
			switch {
			case err == nil, errors.Is(err, bus.ErrReset):
			case ctx.Err() != nil:
				return nil
			default:
				return err
			}
		}
	}
}

// tick sets the monitor bit and reports whether an interrupt is due.
func (c *LineClock) tick() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks++
	c.lks |= csrDone
	return c.lks&csrIntEnb != 0 && c.port != nil
}

// Reset disables clock interrupts.
func (c *LineClock) Reset() {
	c.mu.Lock()
	c.lks = csrDone
	c.mu.Unlock()
}

func (c *LineClock) TryRead(addr uint16) (uint16, bool) {
	if addr != LKS {
		return 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lks, true
}

func (c *LineClock) TryWriteWord(addr uint16, v uint16) bool {
	if addr != LKS {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	// The monitor bit can only be cleared.
	c.lks = c.lks&v&csrDone | v&csrIntEnb
	if c.lks&csrIntEnb == 0 && c.port != nil {
		c.port.CancelInterrupt(ClockVector)
	}
	return true
}

func (c *LineClock) TryWriteByte(addr uint16, v byte) bool {
	switch addr {
	case LKS:
		return c.TryWriteWord(addr, uint16(v))
	case LKS + 1:
		return true
	}
	return false
}
