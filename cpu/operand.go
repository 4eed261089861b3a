// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

// A Location is the resolved target of an operand: either a general
// register or a bus address.
type Location struct {
	IsReg bool   // the location is a register
	Reg   int    // register number when IsReg is set
	Addr  uint16 // bus address when IsReg is clear
	Byte  bool   // the location is accessed as a byte
}

// resolve computes the location named by an operand, applying any
// autoincrement or autodecrement side effect and consuming any index word
// that follows the instruction. Byte operands step registers R0 through R5
// by one and SP and PC by two; deferred modes always step by two.
func (cpu *CPU) resolve(op Operand, byteMode bool) Location {
	mode, r := op.Mode(), op.Reg()
	step := uint16(2)
	if byteMode && r < SP {
		step = 1
	}

	loc := Location{Byte: byteMode}
	switch mode {
	case 0:
		loc.IsReg, loc.Reg = true, r
	case 1:
		loc.Addr = cpu.Reg.R[r]
	case 2:
		loc.Addr = cpu.Reg.R[r]
		cpu.Reg.R[r] += step
	case 3:
		loc.Addr = cpu.readWord(cpu.Reg.R[r])
		cpu.Reg.R[r] += 2
	case 4:
		cpu.Reg.R[r] -= step
		loc.Addr = cpu.Reg.R[r]
	case 5:
		cpu.Reg.R[r] -= 2
		loc.Addr = cpu.readWord(cpu.Reg.R[r])
	case 6:
		x := cpu.fetch()
		loc.Addr = x + cpu.Reg.R[r]
	case 7:
		x := cpu.fetch()
		loc.Addr = cpu.readWord(x + cpu.Reg.R[r])
	}
	return loc
}

// load reads the value at a location. A byte read of a register returns
// its low byte; a byte read of memory returns the byte zero-extended.
func (cpu *CPU) load(loc Location) uint16 {
	switch {
	case loc.IsReg && loc.Byte:
		return cpu.Reg.R[loc.Reg] & 0xff
	case loc.IsReg:
		return cpu.Reg.R[loc.Reg]
	case loc.Byte:
		return uint16(cpu.readByte(loc.Addr))
	default:
		return cpu.readWord(loc.Addr)
	}
}

// store writes v to a location. A byte store to a register replaces only
// its low byte.
func (cpu *CPU) store(loc Location, v uint16) {
	switch {
	case loc.IsReg && loc.Byte:
		cpu.Reg.R[loc.Reg] = cpu.Reg.R[loc.Reg]&0xff00 | v&0xff
	case loc.IsReg:
		cpu.Reg.R[loc.Reg] = v
	case loc.Byte:
		cpu.writeByte(loc.Addr, byte(v))
	default:
		cpu.writeWord(loc.Addr, v)
	}
}

// address resolves an operand that must name a memory location, as for
// JMP and JSR. Register mode raises an illegal instruction trap.
func (cpu *CPU) address(op Operand) uint16 {
	if op.Mode() == 0 {
		panic(trap{vector: VectorIllegal})
	}
	return cpu.resolve(op, false).Addr
}

// A width describes the size of an arithmetic operand.
type width struct {
	mask uint32
	sign uint32
}

var (
	wordWidth = width{mask: 0xffff, sign: 0x8000}
	byteWidth = width{mask: 0xff, sign: 0x80}
)

func widthOf(byteMode bool) width {
	if byteMode {
		return byteWidth
	}
	return wordWidth
}
