// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package disasm implements a disassembler for the processor's
// instruction set. Output follows MACRO-11 conventions, with all numbers
// in octal.
package disasm

import (
	"fmt"
	"strings"

	"github.com/beevik/gopdp11/cpu"
)

// A WordReader supplies the memory being disassembled. Both *bus.Bus and
// *bus.Port satisfy it.
type WordReader interface {
	ReadWord(addr uint16) (uint16, error)
}

var regNames = [8]string{"R0", "R1", "R2", "R3", "R4", "R5", "SP", "PC"}

// Condition code operation names, indexed by flag bit.
var (
	clearNames = [4]string{"CLC", "CLV", "CLZ", "CLN"}
	setNames   = [4]string{"SEC", "SEV", "SEZ", "SEN"}
)

// Disassemble the machine code in memory 'm' at address 'addr'. Return a
// 'line' string representing the disassembled instruction and a 'next'
// address that starts the following line of machine code.
func Disassemble(m WordReader, addr uint16) (line string, next uint16) {
	w, err := m.ReadWord(addr)
	if err != nil {
		return "?", addr + 2
	}

	d := &decoder{m: m, pc: addr + 2}
	line = d.format(addr, cpu.Decode(w), w)
	return line, d.pc
}

// decoder consumes the index and immediate words that follow an
// instruction.
type decoder struct {
	m  WordReader
	pc uint16
}

func (d *decoder) word() (uint16, bool) {
	v, err := d.m.ReadWord(d.pc)
	d.pc += 2
	return v, err == nil
}

func (d *decoder) format(addr uint16, inst cpu.Instruction, w uint16) string {
	switch i := inst.(type) {
	case cpu.DoubleOperand:
		src := d.operand(i.Src)
		return mnemonic(i.Op, i.Byte) + " " + src + "," + d.operand(i.Dst)

	case cpu.SingleOperand:
		if i.Op == cpu.OpMARK {
			return fmt.Sprintf("MARK %o", uint8(i.Dst))
		}
		return mnemonic(i.Op, i.Byte) + " " + d.operand(i.Dst)

	case cpu.RegisterOperand:
		switch i.Op {
		case cpu.OpJSR, cpu.OpXOR:
			return fmt.Sprintf("%s %s,%s", i.Op, regNames[i.Reg], d.operand(i.Src))
		default:
			return fmt.Sprintf("%s %s,%s", i.Op, d.operand(i.Src), regNames[i.Reg])
		}

	case cpu.RegisterOnly:
		if i.Op == cpu.OpSPL {
			return fmt.Sprintf("SPL %o", i.Reg)
		}
		return "RTS " + regNames[i.Reg]

	case cpu.Branch:
		target := addr + 2 + uint16(int16(i.Offset)*2)
		return fmt.Sprintf("%s %o", i.Op, target)

	case cpu.SOB:
		target := addr + 2 - uint16(i.Offset)*2
		return fmt.Sprintf("SOB %s,%o", regNames[i.Reg], target)

	case cpu.Misc:
		switch i.Op {
		case cpu.OpEMT, cpu.OpTRAP:
			return fmt.Sprintf("%s %o", i.Op, i.Arg)
		case cpu.OpCCC:
			return conditionCodes(i.Arg, "CCC", clearNames)
		case cpu.OpSCC:
			return conditionCodes(i.Arg, "SCC", setNames)
		}
		return i.Op.String()
	}

	return fmt.Sprintf(".WORD %o", w)
}

func mnemonic(op cpu.Opcode, isByte bool) string {
	if isByte {
		return op.String() + "B"
	}
	return op.String()
}

func conditionCodes(mask uint8, all string, names [4]string) string {
	switch mask {
	case 0:
		return "NOP"
	case 0o17:
		return all
	}
	var ops []string
	for bit := range 4 {
		if mask&(1<<bit) != 0 {
			ops = append(ops, names[bit])
		}
	}
	return strings.Join(ops, "!")
}

// operand formats an operand specifier, consuming its index word if it
// has one.
func (d *decoder) operand(op cpu.Operand) string {
	r := regNames[op.Reg()]

	if op.Reg() == cpu.PC {
		switch op.Mode() {
		case 2:
			return "#" + d.extra()
		case 3:
			return "@#" + d.extra()
		case 6, 7:
			at := ""
			if op.Mode() == 7 {
				at = "@"
			}
			x, ok := d.word()
			if !ok {
				return at + "?"
			}
			return fmt.Sprintf("%s%o", at, d.pc+x)
		}
	}

	switch op.Mode() {
	case 0:
		return r
	case 1:
		return "(" + r + ")"
	case 2:
		return "(" + r + ")+"
	case 3:
		return "@(" + r + ")+"
	case 4:
		return "-(" + r + ")"
	case 5:
		return "@-(" + r + ")"
	case 6:
		return d.extra() + "(" + r + ")"
	default:
		return "@" + d.extra() + "(" + r + ")"
	}
}

func (d *decoder) extra() string {
	v, ok := d.word()
	if !ok {
		return "?"
	}
	return fmt.Sprintf("%o", v)
}
