// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

// exec executes a decoded instruction. PC has already been advanced past
// the instruction word.
func (cpu *CPU) exec(inst Instruction) {
	switch i := inst.(type) {
	case DoubleOperand:
		cpu.execDouble(i)
	case SingleOperand:
		cpu.execSingle(i)
	case RegisterOperand:
		cpu.execRegister(i)
	case RegisterOnly:
		cpu.execRegisterOnly(i)
	case Branch:
		if cpu.condition(i.Op) {
			cpu.Reg.R[PC] += uint16(int16(i.Offset) * 2)
		}
	case SOB:
		cpu.Reg.R[i.Reg]--
		if cpu.Reg.R[i.Reg] != 0 {
			cpu.Reg.R[PC] -= uint16(i.Offset) * 2
		}
	case Misc:
		cpu.execMisc(i)
	default:
		panic(trap{vector: VectorIllegal})
	}
}

func (cpu *CPU) execDouble(i DoubleOperand) {
	w := widthOf(i.Byte)

	src := cpu.load(cpu.resolve(i.Src, i.Byte))
	dst := cpu.resolve(i.Dst, i.Byte)

	switch i.Op {
	case OpMOV:
		cpu.updateNZ(uint32(src), w)
		cpu.Reg.Overflow = false
		if i.Byte && dst.IsReg {
			// MOVB to a register sign-extends.
			cpu.Reg.R[dst.Reg] = uint16(int16(int8(src)))
			return
		}
		cpu.store(dst, src)

	case OpCMP:
		cpu.arith(uint32(src), uint32(cpu.load(dst)), 1, w, true)

	case OpBIT:
		cpu.logical(uint32(src&cpu.load(dst)), w)

	case OpBIC:
		v := cpu.load(dst) &^ src
		cpu.logical(uint32(v), w)
		cpu.store(dst, v)

	case OpBIS:
		v := cpu.load(dst) | src
		cpu.logical(uint32(v), w)
		cpu.store(dst, v)

	case OpADD:
		d := cpu.load(dst)
		v := cpu.arith(uint32(d), uint32(src), 0, w, false)
		cpu.store(dst, v)

	case OpSUB:
		d := cpu.load(dst)
		v := cpu.arith(uint32(d), uint32(src), 1, w, true)
		cpu.store(dst, v)

	default:
		panic(trap{vector: VectorIllegal})
	}
}

func (cpu *CPU) execSingle(i SingleOperand) {
	switch i.Op {
	case OpJMP:
		cpu.Reg.R[PC] = cpu.address(i.Dst)
		return
	case OpMARK:
		cpu.Reg.R[SP] = cpu.Reg.R[PC] + 2*uint16(i.Dst)
		cpu.Reg.R[PC] = cpu.Reg.R[5]
		cpu.Reg.R[5] = cpu.pop()
		return
	}

	w := widthOf(i.Byte)
	dst := cpu.resolve(i.Dst, i.Byte)

	switch i.Op {
	case OpCLR:
		cpu.Reg.Negative, cpu.Reg.Zero = false, true
		cpu.Reg.Overflow, cpu.Reg.Carry = false, false
		cpu.store(dst, 0)

	case OpCOM:
		v := ^cpu.load(dst)
		cpu.logical(uint32(v), w)
		cpu.Reg.Carry = true
		cpu.store(dst, v)

	case OpINC:
		c := cpu.Reg.Carry
		v := cpu.arith(uint32(cpu.load(dst)), 1, 0, w, false)
		cpu.Reg.Carry = c
		cpu.store(dst, v)

	case OpDEC:
		c := cpu.Reg.Carry
		v := cpu.arith(uint32(cpu.load(dst)), 1, 1, w, true)
		cpu.Reg.Carry = c
		cpu.store(dst, v)

	case OpNEG:
		v := cpu.arith(0, uint32(cpu.load(dst)), 1, w, true)
		cpu.store(dst, v)

	case OpADC:
		v := cpu.arith(uint32(cpu.load(dst)), 0, boolToUint32(cpu.Reg.Carry), w, false)
		cpu.store(dst, v)

	case OpSBC:
		v := cpu.arith(uint32(cpu.load(dst)), 0, 1-boolToUint32(cpu.Reg.Carry), w, true)
		cpu.store(dst, v)

	case OpTST:
		cpu.logical(uint32(cpu.load(dst)), w)
		cpu.Reg.Carry = false

	case OpROR, OpROL, OpASR, OpASL:
		v := cpu.shift(i.Op, uint32(cpu.load(dst)), w)
		cpu.store(dst, v)

	case OpSXT:
		var v uint16
		if cpu.Reg.Negative {
			v = 0xffff
		}
		cpu.Reg.Zero = !cpu.Reg.Negative
		cpu.Reg.Overflow = false
		cpu.store(dst, v)

	case OpSWAB:
		d := cpu.load(dst)
		v := d<<8 | d>>8
		cpu.logical(uint32(v&0xff), byteWidth)
		cpu.Reg.Carry = false
		cpu.store(dst, v)

	default:
		panic(trap{vector: VectorIllegal})
	}
}

func (cpu *CPU) execRegister(i RegisterOperand) {
	r := i.Reg

	switch i.Op {
	case OpJSR:
		addr := cpu.address(i.Src)
		cpu.push(cpu.Reg.R[r])
		cpu.Reg.R[r] = cpu.Reg.R[PC]
		cpu.Reg.R[PC] = addr

	case OpXOR:
		dst := cpu.resolve(i.Src, false)
		v := cpu.Reg.R[r] ^ cpu.load(dst)
		cpu.logical(uint32(v), wordWidth)
		cpu.store(dst, v)

	case OpMUL:
		src := int32(int16(cpu.load(cpu.resolve(i.Src, false))))
		p := int32(int16(cpu.Reg.R[r])) * src
		if r&1 == 0 {
			cpu.Reg.R[r] = uint16(uint32(p) >> 16)
			cpu.Reg.R[r|1] = uint16(p)
		} else {
			cpu.Reg.R[r] = uint16(p)
		}
		cpu.Reg.Negative = p&0x8000 != 0
		cpu.Reg.Zero = p == 0
		cpu.Reg.Overflow = false
		cpu.Reg.Carry = p < -0x8000 || p > 0x7fff

	case OpDIV:
		cpu.div(r, int32(int16(cpu.load(cpu.resolve(i.Src, false)))))

	case OpASH:
		cpu.ash(r, cpu.load(cpu.resolve(i.Src, false)))

	case OpASHC:
		cpu.ashc(r, cpu.load(cpu.resolve(i.Src, false)))

	default:
		panic(trap{vector: VectorIllegal})
	}
}

func (cpu *CPU) execRegisterOnly(i RegisterOnly) {
	switch i.Op {
	case OpRTS:
		cpu.Reg.R[PC] = cpu.Reg.R[i.Reg]
		cpu.Reg.R[i.Reg] = cpu.pop()
	case OpSPL:
		cpu.Reg.Priority = i.Reg
		cpu.syncPriority()
	}
}

func (cpu *CPU) execMisc(i Misc) {
	switch i.Op {
	case OpHALT:
		cpu.setState(StateHalt)
		cpu.log.WithField("pc", octal(cpu.LastPC)).Info("halt instruction")
	case OpWAIT:
		cpu.setState(StateWait)
	case OpRTI, OpRTT:
		pc := cpu.pop()
		ps := cpu.pop()
		cpu.Reg.R[PC] = pc
		cpu.setPS(ps)
	case OpRESET:
		cpu.bus.Reset()
	case OpBPT:
		panic(trap{vector: VectorBPT})
	case OpIOT:
		panic(trap{vector: VectorIOT})
	case OpEMT:
		panic(trap{vector: VectorEMT})
	case OpTRAP:
		panic(trap{vector: VectorTRAP})
	case OpCCC, OpSCC:
		set := i.Op == OpSCC
		if i.Arg&CarryBit != 0 {
			cpu.Reg.Carry = set
		}
		if i.Arg&OverflowBit != 0 {
			cpu.Reg.Overflow = set
		}
		if i.Arg&ZeroBit != 0 {
			cpu.Reg.Zero = set
		}
		if i.Arg&NegativeBit != 0 {
			cpu.Reg.Negative = set
		}
	}
}

// condition evaluates a branch condition against the current flags.
func (cpu *CPU) condition(op Opcode) bool {
	r := &cpu.Reg
	switch op {
	case OpBR:
		return true
	case OpBNE:
		return !r.Zero
	case OpBEQ:
		return r.Zero
	case OpBGE:
		return r.Negative == r.Overflow
	case OpBLT:
		return r.Negative != r.Overflow
	case OpBGT:
		return !r.Zero && r.Negative == r.Overflow
	case OpBLE:
		return r.Zero || r.Negative != r.Overflow
	case OpBPL:
		return !r.Negative
	case OpBMI:
		return r.Negative
	case OpBHI:
		return !r.Carry && !r.Zero
	case OpBLOS:
		return r.Carry || r.Zero
	case OpBVC:
		return !r.Overflow
	case OpBVS:
		return r.Overflow
	case OpBCC:
		return !r.Carry
	case OpBCS:
		return r.Carry
	}
	return false
}

// updateNZ sets the Negative and Zero flags from v.
func (cpu *CPU) updateNZ(v uint32, w width) {
	cpu.Reg.Negative = v&w.sign != 0
	cpu.Reg.Zero = v&w.mask == 0
}

// logical sets the flags for a load-type result: N and Z from the value,
// V cleared, C unchanged.
func (cpu *CPU) logical(v uint32, w width) {
	cpu.updateNZ(v, w)
	cpu.Reg.Overflow = false
}

// arith computes a + b + carry in a domain one bit wider than w and sets
// all four flags from the result. When sub is set, b is complemented
// first and the carry out is inverted, so that a - b sets C on a borrow.
// Callers subtract by passing a carry of 1.
func (cpu *CPU) arith(a, b, carry uint32, w width, sub bool) uint16 {
	a &= w.mask
	b &= w.mask
	if sub {
		b = ^b & w.mask
	}
	sum := a + b + carry
	v := sum & w.mask

	cpu.updateNZ(v, w)
	cpu.Reg.Overflow = (a^v)&(b^v)&w.sign != 0
	cpu.Reg.Carry = (sum > w.mask) != sub
	return uint16(v)
}

// shift performs a one-bit shift or rotate. The new C and N are computed
// from the operand before it is shifted; Z comes from the result and V is
// N xor C.
func (cpu *CPU) shift(op Opcode, v uint32, w width) uint16 {
	v &= w.mask
	var c, n bool
	var r uint32
	switch op {
	case OpROR:
		c, n = v&1 != 0, cpu.Reg.Carry
		r = v >> 1
		if cpu.Reg.Carry {
			r |= w.sign
		}
	case OpROL:
		c, n = v&w.sign != 0, v&(w.sign>>1) != 0
		r = (v<<1 | boolToUint32(cpu.Reg.Carry)) & w.mask
	case OpASR:
		c, n = v&1 != 0, v&w.sign != 0
		r = v>>1 | v&w.sign
	case OpASL:
		c, n = v&w.sign != 0, v&(w.sign>>1) != 0
		r = (v << 1) & w.mask
	}
	cpu.Reg.Carry = c
	cpu.Reg.Negative = n
	cpu.Reg.Zero = r == 0
	cpu.Reg.Overflow = n != c
	return uint16(r)
}

// div divides the 32-bit value in the register pair starting at r by
// divisor. Division by zero sets V and C; a quotient that does not fit in
// 16 bits sets V. In both cases the registers are left unchanged.
func (cpu *CPU) div(r int, divisor int32) {
	if divisor == 0 {
		cpu.Reg.Overflow, cpu.Reg.Carry = true, true
		return
	}
	dividend := int32(uint32(cpu.Reg.R[r])<<16 | uint32(cpu.Reg.R[r|1]))
	q := dividend / divisor
	rem := dividend % divisor
	if q < -0x8000 || q > 0x7fff {
		cpu.Reg.Overflow, cpu.Reg.Carry = true, false
		return
	}
	cpu.Reg.R[r] = uint16(q)
	cpu.Reg.R[r|1] = uint16(rem)
	cpu.Reg.Negative = q < 0
	cpu.Reg.Zero = q == 0
	cpu.Reg.Overflow, cpu.Reg.Carry = false, false
}

// shiftCount extracts the signed six-bit shift count of ASH and ASHC.
func shiftCount(v uint16) int {
	n := int(v & 0o77)
	if n&0o40 != 0 {
		n -= 0o100
	}
	return n
}

// ash arithmetically shifts register r. Positive counts shift left.
func (cpu *CPU) ash(r int, count uint16) {
	v := cpu.Reg.R[r]
	n := shiftCount(count)
	var c, ovf bool
	switch {
	case n > 0:
		for range n {
			c = v&0x8000 != 0
			nv := v << 1
			if (nv^v)&0x8000 != 0 {
				ovf = true
			}
			v = nv
		}
	case n < 0:
		for range -n {
			c = v&1 != 0
			v = uint16(int16(v) >> 1)
		}
	}
	cpu.Reg.R[r] = v
	cpu.Reg.Negative = v&0x8000 != 0
	cpu.Reg.Zero = v == 0
	cpu.Reg.Overflow = ovf
	cpu.Reg.Carry = c
}

// ashc arithmetically shifts the 32-bit value in the register pair
// starting at r. With an odd register the low word of the result is kept.
func (cpu *CPU) ashc(r int, count uint16) {
	v := uint32(cpu.Reg.R[r])<<16 | uint32(cpu.Reg.R[r|1])
	n := shiftCount(count)
	var c, ovf bool
	switch {
	case n > 0:
		for range n {
			c = v&0x80000000 != 0
			nv := v << 1
			if (nv^v)&0x80000000 != 0 {
				ovf = true
			}
			v = nv
		}
	case n < 0:
		for range -n {
			c = v&1 != 0
			v = uint32(int32(v) >> 1)
		}
	}
	cpu.Reg.R[r] = uint16(v >> 16)
	cpu.Reg.R[r|1] = uint16(v)
	cpu.Reg.Negative = v&0x80000000 != 0
	cpu.Reg.Zero = v == 0
	cpu.Reg.Overflow = ovf
	cpu.Reg.Carry = c
}
