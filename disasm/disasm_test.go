// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package disasm_test

import (
	"errors"
	"testing"

	"github.com/beevik/gopdp11/disasm"
)

type words map[uint16]uint16

func (m words) ReadWord(addr uint16) (uint16, error) {
	v, ok := m[addr]
	if !ok {
		return 0, errors.New("no memory")
	}
	return v, nil
}

func load(addr uint16, code ...uint16) words {
	m := make(words)
	for i, w := range code {
		m[addr+uint16(2*i)] = w
	}
	return m
}

func TestDisassemble(t *testing.T) {
	tests := []struct {
		code []uint16
		line string
		size uint16
	}{
		{[]uint16{0o010203}, "MOV R2,R3", 2},
		{[]uint16{0o110203}, "MOVB R2,R3", 2},
		{[]uint16{0o012700, 0o177560}, "MOV #177560,R0", 4},
		{[]uint16{0o013737, 0o100, 0o200}, "MOV @#100,@#200", 6},
		{[]uint16{0o012001}, "MOV (R0)+,R1", 2},
		{[]uint16{0o013102}, "MOV @(R1)+,R2", 2},
		{[]uint16{0o014346}, "MOV -(R3),-(SP)", 2},
		{[]uint16{0o015504}, "MOV @-(R5),R4", 2},
		{[]uint16{0o016102, 0o10}, "MOV 10(R1),R2", 4},
		{[]uint16{0o017102, 0o10}, "MOV @10(R1),R2", 4},
		{[]uint16{0o011100}, "MOV (R1),R0", 2},
		{[]uint16{0o005067, 0o100}, "CLR 1104", 4},
		{[]uint16{0o005077, 0o100}, "CLR @1104", 4},
		{[]uint16{0o105737, 0o177560}, "TSTB @#177560", 4},
		{[]uint16{0o004767, 0o20}, "JSR PC,1024", 4},
		{[]uint16{0o000207}, "RTS PC", 2},
		{[]uint16{0o070127, 3}, "MUL #3,R1", 4},
		{[]uint16{0o074102}, "XOR R1,R2", 2},
		{[]uint16{0o000777}, "BR 1000", 2},
		{[]uint16{0o001003}, "BNE 1010", 2},
		{[]uint16{0o077102}, "SOB R1,776", 2},
		{[]uint16{0o006402}, "MARK 2", 2},
		{[]uint16{0o000233}, "SPL 3", 2},
		{[]uint16{0o104017}, "EMT 17", 2},
		{[]uint16{0o104401}, "TRAP 1", 2},
		{[]uint16{0o000240}, "NOP", 2},
		{[]uint16{0o000260}, "NOP", 2},
		{[]uint16{0o000241}, "CLC", 2},
		{[]uint16{0o000261}, "SEC", 2},
		{[]uint16{0o000243}, "CLC!CLV", 2},
		{[]uint16{0o000257}, "CCC", 2},
		{[]uint16{0o000277}, "SCC", 2},
		{[]uint16{0o000000}, "HALT", 2},
		{[]uint16{0o000002}, "RTI", 2},
		{[]uint16{0o170000}, ".WORD 170000", 2},
	}

	const addr = 0o1000
	for _, tt := range tests {
		line, next := disasm.Disassemble(load(addr, tt.code...), addr)
		if line != tt.line {
			t.Errorf("line incorrect. exp: %q, got: %q", tt.line, line)
		}
		if next != addr+tt.size {
			t.Errorf("%s: next incorrect. exp: %o, got: %o", tt.line, addr+tt.size, next)
		}
	}
}

func TestDisassembleUnreadable(t *testing.T) {
	line, next := disasm.Disassemble(words{}, 0o2000)
	if line != "?" || next != 0o2002 {
		t.Errorf("unreadable word incorrect. exp: %q %o, got: %q %o", "?", 0o2002, line, next)
	}

	line, next = disasm.Disassemble(load(0o2000, 0o012700), 0o2000)
	if line != "MOV #?,R0" || next != 0o2004 {
		t.Errorf("truncated instruction incorrect. exp: %q %o, got: %q %o", "MOV #?,R0", 0o2004, line, next)
	}
}
