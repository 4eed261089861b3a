// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

import "strings"

// Register numbers with dedicated roles.
const (
	SP = 6 // stack pointer
	PC = 7 // program counter
)

// Registers contains the state of the eight general registers and the
// processor status word.
type Registers struct {
	R        [8]uint16 // general registers; R6 is SP and R7 is PC
	Priority int       // PS: processor priority, 0 through 7
	Trace    bool      // PS: Trace bit
	Negative bool      // PS: Negative bit
	Zero     bool      // PS: Zero bit
	Overflow bool      // PS: Overflow bit
	Carry    bool      // PS: Carry bit
}

// Bits assigned to the processor status word
const (
	CarryBit      = 1 << 0
	OverflowBit   = 1 << 1
	ZeroBit       = 1 << 2
	NegativeBit   = 1 << 3
	TraceBit      = 1 << 4
	PriorityShift = 5
	PriorityMask  = 7 << PriorityShift
)

// SavePS saves the processor status into a word value.
func (r *Registers) SavePS() uint16 {
	ps := uint16(r.Priority&7) << PriorityShift
	if r.Carry {
		ps |= CarryBit
	}
	if r.Overflow {
		ps |= OverflowBit
	}
	if r.Zero {
		ps |= ZeroBit
	}
	if r.Negative {
		ps |= NegativeBit
	}
	if r.Trace {
		ps |= TraceBit
	}
	return ps
}

// RestorePS restores the processor status from a word. Bits above the
// priority field are ignored.
func (r *Registers) RestorePS(ps uint16) {
	r.Carry = ps&CarryBit != 0
	r.Overflow = ps&OverflowBit != 0
	r.Zero = ps&ZeroBit != 0
	r.Negative = ps&NegativeBit != 0
	r.Trace = ps&TraceBit != 0
	r.Priority = int(ps&PriorityMask) >> PriorityShift
}

// FlagString returns the condition codes as a string such as "N-V-".
func (r *Registers) FlagString() string {
	var b strings.Builder
	for _, f := range []struct {
		set bool
		c   byte
	}{{r.Trace, 'T'}, {r.Negative, 'N'}, {r.Zero, 'Z'}, {r.Overflow, 'V'}, {r.Carry, 'C'}} {
		if f.set {
			b.WriteByte(f.c)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// Init initializes all registers and the processor status to zero.
func (r *Registers) Init() {
	r.R = [8]uint16{}
	r.RestorePS(0)
}

func boolToUint32(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
