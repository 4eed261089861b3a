// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

// An Opcode identifies an operation in the instruction set, independent of
// its operand encoding and of whether it operates on words or bytes.
type Opcode byte

const (
	OpIllegal Opcode = iota

	// Double operand
	OpMOV
	OpCMP
	OpBIT
	OpBIC
	OpBIS
	OpADD
	OpSUB

	// Register and operand
	OpMUL
	OpDIV
	OpASH
	OpASHC
	OpXOR
	OpJSR

	// Single operand
	OpCLR
	OpCOM
	OpINC
	OpDEC
	OpNEG
	OpADC
	OpSBC
	OpTST
	OpROR
	OpROL
	OpASR
	OpASL
	OpSXT
	OpSWAB
	OpJMP
	OpMARK

	// Register only
	OpRTS
	OpSPL

	// Branches
	OpBR
	OpBNE
	OpBEQ
	OpBGE
	OpBLT
	OpBGT
	OpBLE
	OpBPL
	OpBMI
	OpBHI
	OpBLOS
	OpBVC
	OpBVS
	OpBCC
	OpBCS
	OpSOB

	// Miscellaneous
	OpHALT
	OpWAIT
	OpRTI
	OpBPT
	OpIOT
	OpRESET
	OpRTT
	OpEMT
	OpTRAP
	OpCCC // clear condition codes
	OpSCC // set condition codes

	opCount
)

var opNames = [opCount]string{
	OpIllegal: "???",
	OpMOV:     "MOV",
	OpCMP:     "CMP",
	OpBIT:     "BIT",
	OpBIC:     "BIC",
	OpBIS:     "BIS",
	OpADD:     "ADD",
	OpSUB:     "SUB",
	OpMUL:     "MUL",
	OpDIV:     "DIV",
	OpASH:     "ASH",
	OpASHC:    "ASHC",
	OpXOR:     "XOR",
	OpJSR:     "JSR",
	OpCLR:     "CLR",
	OpCOM:     "COM",
	OpINC:     "INC",
	OpDEC:     "DEC",
	OpNEG:     "NEG",
	OpADC:     "ADC",
	OpSBC:     "SBC",
	OpTST:     "TST",
	OpROR:     "ROR",
	OpROL:     "ROL",
	OpASR:     "ASR",
	OpASL:     "ASL",
	OpSXT:     "SXT",
	OpSWAB:    "SWAB",
	OpJMP:     "JMP",
	OpMARK:    "MARK",
	OpRTS:     "RTS",
	OpSPL:     "SPL",
	OpBR:      "BR",
	OpBNE:     "BNE",
	OpBEQ:     "BEQ",
	OpBGE:     "BGE",
	OpBLT:     "BLT",
	OpBGT:     "BGT",
	OpBLE:     "BLE",
	OpBPL:     "BPL",
	OpBMI:     "BMI",
	OpBHI:     "BHI",
	OpBLOS:    "BLOS",
	OpBVC:     "BVC",
	OpBVS:     "BVS",
	OpBCC:     "BCC",
	OpBCS:     "BCS",
	OpSOB:     "SOB",
	OpHALT:    "HALT",
	OpWAIT:    "WAIT",
	OpRTI:     "RTI",
	OpBPT:     "BPT",
	OpIOT:     "IOT",
	OpRESET:   "RESET",
	OpRTT:     "RTT",
	OpEMT:     "EMT",
	OpTRAP:    "TRAP",
	OpCCC:     "CCC",
	OpSCC:     "SCC",
}

func (op Opcode) String() string {
	if op < opCount {
		return opNames[op]
	}
	return opNames[OpIllegal]
}

// An Operand is a six-bit operand specifier: a three-bit addressing mode
// followed by a three-bit register number.
type Operand uint8

// Mode returns the operand's addressing mode, 0 through 7.
func (o Operand) Mode() int {
	return int(o>>3) & 7
}

// Reg returns the operand's register number.
func (o Operand) Reg() int {
	return int(o) & 7
}

// ExtraWords returns the number of words following the instruction that
// the operand consumes.
func (o Operand) ExtraWords() int {
	switch {
	case o.Mode() >= 6:
		return 1
	case o.Reg() == PC && (o.Mode() == 2 || o.Mode() == 3):
		return 1
	default:
		return 0
	}
}

// An Instruction is a decoded instruction word. The concrete type of an
// Instruction identifies its operand shape: DoubleOperand, SingleOperand,
// RegisterOperand, RegisterOnly, Branch, SOB, Misc or Illegal.
type Instruction interface {
	Opcode() Opcode
	instruction()
}

// DoubleOperand is a two-operand instruction such as MOV or ADD.
type DoubleOperand struct {
	Op   Opcode
	Byte bool
	Src  Operand
	Dst  Operand
}

// SingleOperand is a one-operand instruction such as CLR or JMP. For MARK
// the Dst field holds the six-bit parameter count rather than an operand.
type SingleOperand struct {
	Op   Opcode
	Byte bool
	Dst  Operand
}

// RegisterOperand is an instruction with a register and one operand, such
// as MUL or JSR.
type RegisterOperand struct {
	Op  Opcode
	Reg int
	Src Operand
}

// RegisterOnly is RTS, which names a register, or SPL, whose Reg field holds
// the new priority level.
type RegisterOnly struct {
	Op  Opcode
	Reg int
}

// Branch is a conditional or unconditional branch with a signed word
// offset.
type Branch struct {
	Op     Opcode
	Offset int8
}

// SOB is the subtract-one-and-branch instruction. Its offset is an unsigned
// backward word count.
type SOB struct {
	Reg    int
	Offset uint8
}

// Misc is a miscellaneous instruction with no operands. For EMT and TRAP,
// Arg holds the low byte of the instruction; for condition code operations
// it holds the mask of flags affected.
type Misc struct {
	Op  Opcode
	Arg uint8
}

// Illegal is an instruction word that matches no known encoding.
type Illegal struct {
	Word uint16
}

func (i DoubleOperand) Opcode() Opcode   { return i.Op }
func (i SingleOperand) Opcode() Opcode   { return i.Op }
func (i RegisterOperand) Opcode() Opcode { return i.Op }
func (i RegisterOnly) Opcode() Opcode    { return i.Op }
func (i Branch) Opcode() Opcode          { return i.Op }
func (i SOB) Opcode() Opcode             { return OpSOB }
func (i Misc) Opcode() Opcode            { return i.Op }
func (i Illegal) Opcode() Opcode         { return OpIllegal }

func (DoubleOperand) instruction()   {}
func (SingleOperand) instruction()   {}
func (RegisterOperand) instruction() {}
func (RegisterOnly) instruction()    {}
func (Branch) instruction()          {}
func (SOB) instruction()             {}
func (Misc) instruction()            {}
func (Illegal) instruction()         {}

// Length returns the length of the instruction in words, including any
// index or immediate words that follow it.
func Length(inst Instruction) int {
	switch i := inst.(type) {
	case DoubleOperand:
		return 1 + i.Src.ExtraWords() + i.Dst.ExtraWords()
	case SingleOperand:
		if i.Op == OpMARK {
			return 1
		}
		return 1 + i.Dst.ExtraWords()
	case RegisterOperand:
		return 1 + i.Src.ExtraWords()
	default:
		return 1
	}
}
