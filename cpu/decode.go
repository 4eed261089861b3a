// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

// Instruction encodings are matched from the most specific mask to the
// least: exact words first, then the 13-, 10-, 8-, 7- and 4-bit opcode
// prefixes. Decode is total; every 16-bit word yields an Instruction.

var miscOps = map[uint16]Opcode{
	0o000000: OpHALT,
	0o000001: OpWAIT,
	0o000002: OpRTI,
	0o000003: OpBPT,
	0o000004: OpIOT,
	0o000005: OpRESET,
	0o000006: OpRTT,
}

// Single-operand instructions keyed by bits 14-6.
var singleOps = map[uint16]Opcode{
	0o0001: OpJMP,
	0o0003: OpSWAB,
	0o0050: OpCLR,
	0o0051: OpCOM,
	0o0052: OpINC,
	0o0053: OpDEC,
	0o0054: OpNEG,
	0o0055: OpADC,
	0o0056: OpSBC,
	0o0057: OpTST,
	0o0060: OpROR,
	0o0061: OpROL,
	0o0062: OpASR,
	0o0063: OpASL,
	0o0064: OpMARK,
	0o0067: OpSXT,
}

// Register-operand instructions keyed by bits 15-9.
var registerOps = map[uint16]Opcode{
	0o004: OpJSR,
	0o070: OpMUL,
	0o071: OpDIV,
	0o072: OpASH,
	0o073: OpASHC,
	0o074: OpXOR,
}

// Branches keyed by bits 15-8.
var branchOps = map[uint16]Opcode{
	0o000400: OpBR,
	0o001000: OpBNE,
	0o001400: OpBEQ,
	0o002000: OpBGE,
	0o002400: OpBLT,
	0o003000: OpBGT,
	0o003400: OpBLE,
	0o100000: OpBPL,
	0o100400: OpBMI,
	0o101000: OpBHI,
	0o101400: OpBLOS,
	0o102000: OpBVC,
	0o102400: OpBVS,
	0o103000: OpBCC,
	0o103400: OpBCS,
}

// Double-operand instructions keyed by bits 14-12.
var doubleOps = [8]Opcode{
	1: OpMOV,
	2: OpCMP,
	3: OpBIT,
	4: OpBIC,
	5: OpBIS,
}

// Decode decodes a single instruction word.
func Decode(w uint16) Instruction {
	if op, ok := miscOps[w]; ok {
		return Misc{Op: op}
	}
	switch {
	case w >= 0o104000 && w <= 0o104377:
		return Misc{Op: OpEMT, Arg: uint8(w)}
	case w >= 0o104400 && w <= 0o104777:
		return Misc{Op: OpTRAP, Arg: uint8(w)}
	case w >= 0o000240 && w <= 0o000277:
		op := OpCCC
		if w&0o20 != 0 {
			op = OpSCC
		}
		return Misc{Op: op, Arg: uint8(w & 0o17)}
	}

	switch w & 0o177770 {
	case 0o000200:
		return RegisterOnly{Op: OpRTS, Reg: int(w & 7)}
	case 0o000230:
		return RegisterOnly{Op: OpSPL, Reg: int(w & 7)}
	}

	isByte := w&0o100000 != 0
	if op, ok := singleOps[(w>>6)&0o777]; ok {
		switch {
		case !isByte:
			return SingleOperand{Op: op, Dst: Operand(w & 0o77)}
		case op >= OpCLR && op <= OpASL:
			return SingleOperand{Op: op, Byte: true, Dst: Operand(w & 0o77)}
		}
	}

	if op, ok := registerOps[w>>9]; ok {
		return RegisterOperand{Op: op, Reg: int(w>>6) & 7, Src: Operand(w & 0o77)}
	}
	if w>>9 == 0o077 {
		return SOB{Reg: int(w>>6) & 7, Offset: uint8(w & 0o77)}
	}
	if op, ok := branchOps[w&0o177400]; ok {
		return Branch{Op: op, Offset: int8(w)}
	}

	src, dst := Operand((w>>6)&0o77), Operand(w&0o77)
	switch w >> 12 {
	case 0o06:
		return DoubleOperand{Op: OpADD, Src: src, Dst: dst}
	case 0o16:
		return DoubleOperand{Op: OpSUB, Src: src, Dst: dst}
	}
	if op := doubleOps[(w>>12)&7]; op != OpIllegal {
		return DoubleOperand{Op: op, Byte: isByte, Src: src, Dst: dst}
	}

	return Illegal{Word: w}
}
