// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cpu implements a PDP-11 processor: the instruction set, its
// eight addressing modes, condition codes, traps, and interrupt handling.
// The processor reaches memory and devices only through a bus.
package cpu

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/beevik/gopdp11/bus"
	"github.com/sirupsen/logrus"
)

// Trap vectors
const (
	VectorBusError = 0o004 // odd address or no device responded
	VectorIllegal  = 0o010 // reserved or illegal instruction
	VectorBPT      = 0o014 // BPT instruction and trace trap
	VectorIOT      = 0o020
	VectorEMT      = 0o030
	VectorTRAP     = 0o034
)

// DefaultBootAddress is the initial program counter after a reset.
const DefaultBootAddress = 0o100

// A State is the processor's run state.
type State int32

const (
	StateHalt State = iota // stopped; registers may be examined
	StateRun               // executing instructions
	StateWait              // executed WAIT; idle until an interrupt
	StateStep              // executing a single instruction
)

var stateNames = []string{"HALT", "RUN", "WAIT", "STEP"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// CPU represents a single PDP-11 processor attached to a bus.
type CPU struct {
	Reg          Registers // CPU registers
	LastPC       uint16    // address of the most recently started instruction
	Instructions uint64    // total executed instructions
	BootAddress  uint16    // PC loaded on reset
	Fault        error     // the bus error that caused the last double fault

	bus      *bus.Bus
	mem      bus.Accessor
	log      logrus.FieldLogger
	debugger *Debugger
	priority int
	state    atomic.Int32
	halt     atomic.Bool
}

// A trap unwinds the current instruction and transfers control through
// a vector.
type trap struct {
	vector uint16
	err    error
}

// NewCPU creates a processor attached to the bus b and installs it as the
// bus's status word processor. The processor starts halted at
// DefaultBootAddress.
func NewCPU(b *bus.Bus, log logrus.FieldLogger) *CPU {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	cpu := &CPU{
		BootAddress: DefaultBootAddress,
		bus:         b,
		mem:         b,
		log:         log,
	}
	b.SetProcessor(cpu)
	cpu.Reg.Init()
	cpu.Reg.R[PC] = cpu.BootAddress
	return cpu
}

// Bus returns the bus the processor is attached to.
func (cpu *CPU) Bus() *bus.Bus {
	return cpu.bus
}

// SetPC updates the CPU program counter to 'addr'.
func (cpu *CPU) SetPC(addr uint16) {
	cpu.Reg.R[PC] = addr
}

// PSW returns the processor status word.
func (cpu *CPU) PSW() uint16 {
	return cpu.Reg.SavePS()
}

// SetPSW replaces the processor status word.
func (cpu *CPU) SetPSW(v uint16) {
	cpu.setPS(v)
}

// State returns the processor's run state. It may be called from any
// goroutine.
func (cpu *CPU) State() State {
	return State(cpu.state.Load())
}

func (cpu *CPU) setState(s State) {
	cpu.state.Store(int32(s))
}

// Reset performs a power-up reset. The registers and status word are
// cleared, the program counter is set to the boot address, and INIT is
// asserted on the bus.
func (cpu *CPU) Reset() {
	cpu.Reg.Init()
	cpu.Reg.R[PC] = cpu.BootAddress
	cpu.Fault = nil
	cpu.setState(StateHalt)
	cpu.syncPriority()
	cpu.bus.Reset()
}

// Halt asks a running processor to stop at the next instruction boundary.
// It may be called from any goroutine, and releases a processor idling in
// the WAIT state.
func (cpu *CPU) Halt() {
	cpu.halt.Store(true)
	cpu.bus.Wake()
}

// Run executes instructions on the calling goroutine until the processor
// halts, Halt is called, or ctx is done. While in the WAIT state the
// processor blocks until an interrupt it will accept is requested.
func (cpu *CPU) Run(ctx context.Context) error {
	cpu.halt.Store(false)
	cpu.syncPriority()
	cpu.setState(StateRun)

	for {
		if cpu.halt.Swap(false) {
			cpu.setState(StateHalt)
			return nil
		}
		if err := ctx.Err(); err != nil {
			cpu.setState(StateHalt)
			return err
		}

		switch cpu.State() {
		case StateHalt:
			return nil
		case StateWait:
			if !cpu.serviceInterrupt() {
				cpu.bus.Wait(ctx)
			}
			continue
		}

		if cpu.serviceInterrupt() {
			continue
		}
		cpu.step()
	}
}

// Step executes a single instruction, after first taking any pending
// interrupt the processor would accept. A processor in the WAIT state
// abandons it. The processor is left halted.
func (cpu *CPU) Step() {
	cpu.syncPriority()
	cpu.setState(StateStep)
	cpu.serviceInterrupt()
	if cpu.State() == StateStep {
		cpu.step()
	}
	cpu.setState(StateHalt)
}

// step executes one instruction and any trap it raises.
func (cpu *CPU) step() {
	traced := cpu.Reg.Trace

	if vector, ok := cpu.execute(); ok {
		cpu.takeTrap(vector)
	} else if traced && cpu.State() != StateHalt {
		cpu.takeTrap(VectorBPT)
	}

	if cpu.debugger != nil {
		cpu.debugger.onUpdatePC(cpu, cpu.Reg.R[PC])
	}
}

// execute fetches, decodes and executes the instruction at PC. If the
// instruction traps, its vector is returned.
func (cpu *CPU) execute() (vector uint16, trapped bool) {
	defer func() {
		if r := recover(); r != nil {
			t, ok := r.(trap)
			if !ok {
				panic(r)
			}
			vector, trapped = t.vector, true
		}
	}()

	cpu.LastPC = cpu.Reg.R[PC]
	inst := Decode(cpu.fetch())
	cpu.Instructions++
	cpu.exec(inst)
	return 0, false
}

// takeTrap pushes the status word and PC and loads both from the vector.
// A bus error while doing so is a double fault, which halts the processor.
func (cpu *CPU) takeTrap(vector uint16) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t, ok := r.(trap)
			if !ok {
				panic(r)
			}
			cpu.Fault = t.err
			cpu.setState(StateHalt)
			cpu.log.WithFields(logrus.Fields{
				"vector": fmt.Sprintf("%03o", vector),
				"pc":     octal(cpu.LastPC),
				"sp":     octal(cpu.Reg.R[SP]),
			}).WithError(t.err).Error("double fault, processor halted")
			err = t.err
		}
	}()

	ps := cpu.Reg.SavePS()
	cpu.push(ps)
	cpu.push(cpu.Reg.R[PC])
	pc := cpu.readWord(vector)
	ps = cpu.readWord(vector + 2)
	cpu.Reg.R[PC] = pc
	cpu.setPS(ps)
	return nil
}

// serviceInterrupt takes the highest priority interrupt the processor will
// accept, if any, and reports whether one was taken.
func (cpu *CPU) serviceInterrupt() bool {
	ok, err := cpu.bus.ServiceInterrupt(func(r *bus.Request, t *bus.Transfer) error {
		saved := cpu.mem
		cpu.mem = t
		defer func() { cpu.mem = saved }()

		cpu.log.WithFields(logrus.Fields{
			"vector":   fmt.Sprintf("%03o", r.Vector),
			"priority": r.Priority,
			"pc":       octal(cpu.Reg.R[PC]),
		}).Trace("interrupt")
		return cpu.takeTrap(r.Vector)
	})
	if ok && err == nil && cpu.State() == StateWait {
		cpu.setState(StateRun)
	}
	return ok
}

// AttachDebugger attaches a debugger to the CPU. The debugger receives
// notifications whenever the CPU executes an instruction or stores a value
// to memory.
func (cpu *CPU) AttachDebugger(debugger *Debugger) {
	cpu.debugger = debugger
}

// DetachDebugger detaches the current debugger from the CPU.
func (cpu *CPU) DetachDebugger() {
	cpu.debugger = nil
}

func (cpu *CPU) setPS(v uint16) {
	cpu.Reg.RestorePS(v)
	cpu.syncPriority()
}

// syncPriority tells the bus about a change in processor priority.
func (cpu *CPU) syncPriority() {
	if cpu.Reg.Priority != cpu.priority {
		cpu.priority = cpu.Reg.Priority
		cpu.bus.SetPriority(cpu.priority)
	}
}

func (cpu *CPU) fetch() uint16 {
	v := cpu.readWord(cpu.Reg.R[PC])
	cpu.Reg.R[PC] += 2
	return v
}

func (cpu *CPU) push(v uint16) {
	cpu.Reg.R[SP] -= 2
	cpu.writeWord(cpu.Reg.R[SP], v)
}

func (cpu *CPU) pop() uint16 {
	v := cpu.readWord(cpu.Reg.R[SP])
	cpu.Reg.R[SP] += 2
	return v
}

func (cpu *CPU) readWord(addr uint16) uint16 {
	v, err := cpu.mem.ReadWord(addr)
	if err != nil {
		panic(trap{vector: VectorBusError, err: err})
	}
	return v
}

func (cpu *CPU) readByte(addr uint16) byte {
	v, err := cpu.mem.ReadByte(addr)
	if err != nil {
		panic(trap{vector: VectorBusError, err: err})
	}
	return v
}

func (cpu *CPU) writeWord(addr uint16, v uint16) {
	if cpu.debugger != nil {
		cpu.debugger.onDataStore(cpu, addr, v)
	}
	if err := cpu.mem.WriteWord(addr, v); err != nil {
		panic(trap{vector: VectorBusError, err: err})
	}
}

func (cpu *CPU) writeByte(addr uint16, v byte) {
	if cpu.debugger != nil {
		cpu.debugger.onDataStore(cpu, addr, uint16(v))
	}
	if err := cpu.mem.WriteByte(addr, v); err != nil {
		panic(trap{vector: VectorBusError, err: err})
	}
}

func octal(v uint16) string {
	return fmt.Sprintf("%06o", v)
}
