// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package host implements an interactive monitor for an emulated machine.
// The monitor plays the part of the front panel: it examines and deposits
// registers and memory, loads programs, runs and single steps the
// processor, sets address and data breakpoints, disassembles memory,
// shows the state of the bus, and evaluates arbitrary expressions.
package host

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/beevik/cmd"
	"github.com/beevik/gopdp11/cpu"
	"github.com/beevik/gopdp11/disasm"
	"github.com/beevik/gopdp11/loader"
	"github.com/beevik/gopdp11/machine"
)

// ErrQuit is returned by RunCommands when the quit command is entered.
var ErrQuit = errors.New("quit")

type displayFlags uint8

const (
	displayRegisters displayFlags = 1 << iota
	displayAnnotations

	displayAll = displayRegisters | displayAnnotations
)

type state int32

const (
	stateProcessingCommands state = iota
	stateRunning
	stateInterrupted
	stateBreakpoint
	stateStepOverBreakpoint
)

// A Host is a monitor attached to a machine.
type Host struct {
	mu          sync.Mutex // guards output
	input       *bufio.Scanner
	output      *bufio.Writer
	interactive bool
	machine     *machine.Machine
	cpu         *cpu.CPU
	debugger    *cpu.Debugger
	keyboard    *Keyboard
	lastCmd     *selection
	state       atomic.Int32
	exprParser  *exprParser
	settings    *settings
	annotations map[uint16]string
	tape        io.Closer
}

// New creates a monitor for the machine m and attaches a debugger to its
// processor.
func New(m *machine.Machine) *Host {
	h := &Host{
		machine:     m,
		cpu:         m.CPU,
		exprParser:  newExprParser(),
		settings:    newSettings(),
		annotations: make(map[uint16]string),
		output:      bufio.NewWriter(io.Discard),
	}

	h.debugger = cpu.NewDebugger(newDebugHandler(h))
	h.cpu.AttachDebugger(h.debugger)
	h.settings.NextDisasmAddr = h.cpu.Reg.R[cpu.PC]
	h.settings.NextMemDumpAddr = h.cpu.Reg.R[cpu.PC]

	return h
}

// RunCommands accepts monitor commands from a reader and outputs the
// results to a writer. If the commands are interactive, a prompt is
// displayed while the host waits for the next command to be entered. If r
// is a Keyboard, keys typed while the processor runs go to the console.
// RunCommands returns ErrQuit if a quit command was processed.
func (h *Host) RunCommands(r io.Reader, w io.Writer, interactive bool) error {
	h.input = bufio.NewScanner(r)
	h.output = bufio.NewWriter(w)
	h.interactive = interactive
	if k, ok := r.(*Keyboard); ok {
		h.keyboard = k
	}

	if interactive {
		h.println()
	}

	h.displayPC()

	err := h.processCommands()
	h.flush()
	return err
}

func (h *Host) processCommands() error {
	for {
		h.prompt()

		line, err := h.getLine()
		if err != nil {
			return nil
		}

		var s selection
		if line != "" {
			n, args, err := cmds.Lookup(line)
			switch {
			case errors.Is(err, cmd.ErrNotFound):
				h.println("Command not found.")
				continue
			case errors.Is(err, cmd.ErrAmbiguous):
				h.println("Command is ambiguous.")
				continue
			case err != nil:
				h.printf("ERROR: %v.\n", err)
				continue
			}

			switch n := n.(type) {
			case *cmd.Command:
				s = selection{cmd: n.Data.(*command), args: args}
			case *cmd.Tree:
				h.displayCommands(n)
				continue
			}
		} else if h.lastCmd != nil && h.interactive {
			s = *h.lastCmd
		}

		if s.cmd == nil {
			continue
		}
		h.lastCmd = &s

		if err := s.cmd.handler(h, s); err != nil {
			return err
		}
	}
}

// Break interrupts a running processor. It may be called from any
// goroutine.
func (h *Host) Break() {
	if h.state.CompareAndSwap(int32(stateRunning), int32(stateInterrupted)) {
		h.cpu.Halt()
		return
	}

	h.println()
	h.prompt()
}

func (h *Host) getState() state {
	return state(h.state.Load())
}

func (h *Host) setState(s state) {
	h.state.Store(int32(s))
}

func (h *Host) printf(format string, args ...any) {
	h.mu.Lock()
	fmt.Fprintf(h.output, format, args...)
	h.output.Flush()
	h.mu.Unlock()
}

func (h *Host) println(args ...any) {
	h.mu.Lock()
	fmt.Fprintln(h.output, args...)
	h.output.Flush()
	h.mu.Unlock()
}

func (h *Host) flush() {
	h.mu.Lock()
	h.output.Flush()
	h.mu.Unlock()
}

func (h *Host) getLine() (string, error) {
	if h.input.Scan() {
		return strings.TrimSpace(h.input.Text()), nil
	}
	if h.input.Err() != nil {
		return "", h.input.Err()
	}
	return "", io.EOF
}

func (h *Host) prompt() {
	if h.interactive {
		h.printf("* ")
	}
}

func (h *Host) displayPC() {
	if h.interactive {
		d, _ := h.disassemble(h.cpu.Reg.R[cpu.PC], displayAll)
		h.println(d)
	}
}

func (h *Host) cmdAnnotate(s selection) error {
	if len(s.args) < 1 {
		h.displayUsage(s.cmd)
		return nil
	}

	addr, err := h.parseExpr(s.args[0])
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	var annotation string
	if len(s.args) >= 2 {
		annotation = strings.Join(s.args[1:], " ")
	}

	if annotation == "" {
		delete(h.annotations, addr)
		h.printf("Annotation removed at %06o.\n", addr)
	} else {
		h.annotations[addr] = annotation
		h.printf("Annotation added at %06o.\n", addr)
	}

	return nil
}

func (h *Host) cmdBreakpointList(s selection) error {
	h.println("Addr   Enabled  Hits")
	h.println("------ -------  ----")
	for _, b := range h.debugger.GetBreakpoints() {
		h.printf("%06o %-5v    %d\n", b.Address, !b.Disabled, b.Hits)
	}
	return nil
}

func (h *Host) cmdBreakpointAdd(s selection) error {
	if len(s.args) < 1 {
		h.displayUsage(s.cmd)
		return nil
	}

	addr, err := h.parseExpr(s.args[0])
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	h.debugger.AddBreakpoint(addr)
	h.printf("Breakpoint added at %06o.\n", addr)
	return nil
}

func (h *Host) cmdBreakpointRemove(s selection) error {
	b := h.lookupBreakpoint(s)
	if b == nil {
		return nil
	}

	h.debugger.RemoveBreakpoint(b.Address)
	h.printf("Breakpoint at %06o removed.\n", b.Address)
	return nil
}

func (h *Host) cmdBreakpointEnable(s selection) error {
	b := h.lookupBreakpoint(s)
	if b == nil {
		return nil
	}

	b.Disabled = false
	h.printf("Breakpoint at %06o enabled.\n", b.Address)
	return nil
}

func (h *Host) cmdBreakpointDisable(s selection) error {
	b := h.lookupBreakpoint(s)
	if b == nil {
		return nil
	}

	b.Disabled = true
	h.printf("Breakpoint at %06o disabled.\n", b.Address)
	return nil
}

func (h *Host) lookupBreakpoint(s selection) *cpu.Breakpoint {
	if len(s.args) < 1 {
		h.displayUsage(s.cmd)
		return nil
	}

	addr, err := h.parseExpr(s.args[0])
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	b := h.debugger.GetBreakpoint(addr)
	if b == nil {
		h.printf("No breakpoint was set on %06o.\n", addr)
	}
	return b
}

func (h *Host) cmdDataBreakpointList(s selection) error {
	h.println("Addr   Enabled  Value")
	h.println("------ -------  ------")
	for _, b := range h.debugger.GetDataBreakpoints() {
		if b.Conditional {
			h.printf("%06o %-5v    %06o\n", b.Address, !b.Disabled, b.Value)
		} else {
			h.printf("%06o %-5v    <none>\n", b.Address, !b.Disabled)
		}
	}
	return nil
}

func (h *Host) cmdDataBreakpointAdd(s selection) error {
	if len(s.args) < 1 {
		h.displayUsage(s.cmd)
		return nil
	}

	addr, err := h.parseExpr(s.args[0])
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	if len(s.args) > 1 {
		value, err := h.parseExpr(s.args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		h.debugger.AddConditionalDataBreakpoint(addr, value)
		h.printf("Conditional data breakpoint added at %06o for value %06o.\n", addr, value)
	} else {
		h.debugger.AddDataBreakpoint(addr)
		h.printf("Data breakpoint added at %06o.\n", addr)
	}

	return nil
}

func (h *Host) cmdDataBreakpointRemove(s selection) error {
	b := h.lookupDataBreakpoint(s)
	if b == nil {
		return nil
	}

	h.debugger.RemoveDataBreakpoint(b.Address)
	h.printf("Data breakpoint at %06o removed.\n", b.Address)
	return nil
}

func (h *Host) cmdDataBreakpointEnable(s selection) error {
	b := h.lookupDataBreakpoint(s)
	if b == nil {
		return nil
	}

	b.Disabled = false
	h.printf("Data breakpoint at %06o enabled.\n", b.Address)
	return nil
}

func (h *Host) cmdDataBreakpointDisable(s selection) error {
	b := h.lookupDataBreakpoint(s)
	if b == nil {
		return nil
	}

	b.Disabled = true
	h.printf("Data breakpoint at %06o disabled.\n", b.Address)
	return nil
}

func (h *Host) lookupDataBreakpoint(s selection) *cpu.DataBreakpoint {
	if len(s.args) < 1 {
		h.displayUsage(s.cmd)
		return nil
	}

	addr, err := h.parseExpr(s.args[0])
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	b := h.debugger.GetDataBreakpoint(addr)
	if b == nil {
		h.printf("No data breakpoint was set on %06o.\n", addr)
	}
	return b
}

func (h *Host) cmdBus(s selection) error {
	b := h.machine.Bus
	a := b.Activity()

	h.println("Devices:")
	for i, name := range b.Devices() {
		h.printf("    %2d  %s\n", i+1, name)
	}
	h.printf("Master:      %s\n", b.MasterName(a.Master))
	h.printf("Last NPR:    %s\n", b.MasterName(a.Next))
	h.printf("Last addr:   %06o\n", a.LastAddr)
	h.printf("Processor:   %s, priority %d\n", h.cpu.State(), h.cpu.Reg.Priority)
	h.printf("Executed:    %d instructions\n", h.cpu.Instructions)

	reqs := b.Pending()
	if len(reqs) == 0 {
		h.println("Interrupts:  none pending")
		return nil
	}
	h.println("Interrupts:")
	for _, r := range reqs {
		h.printf("    BR%d  vector %03o  %s\n", r.Priority, r.Vector, b.MasterName(r.Master))
	}
	return nil
}

func (h *Host) cmdDisassemble(s selection) error {
	addr := h.settings.NextDisasmAddr
	if len(s.args) > 0 {
		switch s.args[0] {
		case "$":
		case ".":
			addr = h.cpu.Reg.R[cpu.PC]
		default:
			a, err := h.parseExpr(s.args[0])
			if err != nil {
				h.printf("%v\n", err)
				return nil
			}
			addr = a
		}
	}

	lines := h.settings.DisasmLines
	if len(s.args) > 1 {
		l, err := h.parseExpr(s.args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		lines = int(l)
	}

	addr &^= 1
	for range lines {
		d, next := h.disassemble(addr, displayAnnotations)
		h.println(d)
		addr = next
	}

	h.settings.NextDisasmAddr = addr
	h.lastCmd.args = []string{"$", fmt.Sprintf("%d.", lines)}
	return nil
}

func (h *Host) cmdEvaluate(s selection) error {
	if len(s.args) < 1 {
		h.displayUsage(s.cmd)
		return nil
	}

	expr := strings.Join(s.args, " ")
	v, err := h.parseExpr(expr)
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	h.printf("%06o  %d.  $%04X\n", v, v, v)
	return nil
}

func (h *Host) cmdExecute(s selection) error {
	if len(s.args) < 1 {
		h.displayUsage(s.cmd)
		return nil
	}

	file, err := os.Open(s.args[0])
	if err != nil {
		h.printf("Failed to open '%s': %v\n", filepath.Base(s.args[0]), err)
		return nil
	}
	defer file.Close()

	input, interactive, lastCmd := h.input, h.interactive, h.lastCmd
	h.input, h.interactive, h.lastCmd = bufio.NewScanner(file), false, nil

	err = h.processCommands()

	h.input, h.interactive, h.lastCmd = input, interactive, lastCmd
	return err
}

func (h *Host) cmdHelp(s selection) error {
	if len(s.args) == 0 {
		h.displayCommands(cmds)
		return nil
	}

	n, _, err := cmds.Lookup(strings.Join(s.args, " "))
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	switch n := n.(type) {
	case *cmd.Tree:
		h.displayCommands(n)
	case *cmd.Command:
		c := n.Data.(*command)
		if c.usage != "" {
			h.printf("Syntax: %s\n\n", c.usage)
		}
		switch {
		case c.desc != "":
			h.printf("Description:\n%s\n\n", indentWrap(3, c.desc))
		case c.brief != "":
			h.printf("Description:\n%s.\n\n", indentWrap(3, c.brief))
		}
	}
	return nil
}

func (h *Host) cmdLoad(s selection) error {
	if len(s.args) < 1 {
		h.displayUsage(s.cmd)
		return nil
	}

	filename := s.args[0]
	file, err := os.Open(filename)
	if err != nil {
		h.printf("Failed to open '%s': %v\n", filepath.Base(filename), err)
		return nil
	}
	defer file.Close()

	var img *loader.Image
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".lda", ".ptap", ".pt":
		img, err = loader.ReadAbsolute(file)
	default:
		if len(s.args) < 2 {
			h.printf("File '%s' is not a paper tape and requires an address.\n", filepath.Base(filename))
			return nil
		}
		addr, perr := h.parseExpr(s.args[1])
		if perr != nil {
			h.printf("%v\n", perr)
			return nil
		}
		img, err = loader.ReadRaw(file, addr)
		if err == nil {
			img.Start, img.AutoStart = addr, true
		}
	}
	if err != nil {
		h.printf("Failed to read '%s': %v\n", filepath.Base(filename), err)
		return nil
	}

	if err := h.machine.Load(img); err != nil {
		h.printf("Failed to load '%s': %v\n", filepath.Base(filename), err)
		return nil
	}

	h.printf("Loaded '%s': %d bytes in %d blocks.\n", filepath.Base(filename), img.Size(), len(img.Blocks))
	if img.AutoStart {
		h.printf("Start address %06o.\n", img.Start)
		h.settings.NextDisasmAddr = img.Start
	}
	return nil
}

func (h *Host) cmdMemoryDump(s selection) error {
	addr := h.settings.NextMemDumpAddr
	if len(s.args) > 0 {
		switch s.args[0] {
		case "$":
		case ".":
			addr = h.cpu.Reg.R[cpu.PC]
		default:
			a, err := h.parseExpr(s.args[0])
			if err != nil {
				h.printf("%v\n", err)
				return nil
			}
			addr = a
		}
	}

	words := h.settings.MemDumpWords
	if len(s.args) > 1 {
		n, err := h.parseExpr(s.args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		words = int(n)
	}

	addr &^= 1
	h.dumpMemory(addr, words)
	h.settings.NextMemDumpAddr = addr + uint16(2*words)
	h.lastCmd.args = []string{"$", fmt.Sprintf("%d.", words)}
	return nil
}

func (h *Host) cmdMemorySet(s selection) error {
	if len(s.args) < 2 {
		h.displayUsage(s.cmd)
		return nil
	}

	addr, err := h.parseExpr(s.args[0])
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}
	addr &^= 1

	for i, arg := range s.args[1:] {
		v, err := h.parseExpr(arg)
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		a := addr + uint16(2*i)
		if err := h.machine.Panel.WriteWord(a, v); err != nil {
			h.printf("Deposit failed: %v\n", err)
			return nil
		}
	}

	h.printf("Memory set at %06o.\n", addr)
	return nil
}

func (h *Host) cmdQuit(s selection) error {
	return ErrQuit
}

var regNames = map[string]int{
	"r0": 0, "r1": 1, "r2": 2, "r3": 3, "r4": 4, "r5": 5, "r6": 6, "r7": 7,
	"sp": cpu.SP, "pc": cpu.PC, ".": cpu.PC, "ps": 8, "psw": 8,
}

var flagBits = map[string]uint16{
	"t": cpu.TraceBit, "n": cpu.NegativeBit, "z": cpu.ZeroBit, "v": cpu.OverflowBit, "c": cpu.CarryBit,
}

func (h *Host) cmdRegister(s selection) error {
	if len(s.args) == 0 {
		h.displayRegisters()
		return nil
	}
	if len(s.args) < 2 {
		h.displayUsage(s.cmd)
		return nil
	}

	key := strings.ToLower(s.args[0])
	v, err := h.parseExpr(strings.Join(s.args[1:], " "))
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	if bit, ok := flagBits[key]; ok {
		ps := h.cpu.PSW() &^ bit
		if v != 0 {
			ps |= bit
		}
		if err := h.machine.DepositRegister(8, ps); err != nil {
			h.printf("%v\n", err)
			return nil
		}
		h.printf("Flag %s set to %v.\n", strings.ToUpper(key), v != 0)
		return nil
	}

	r, ok := regNames[key]
	if !ok {
		h.printf("Register '%s' not found.\n", key)
		return nil
	}
	if err := h.machine.DepositRegister(r, v); err != nil {
		h.printf("%v\n", err)
		return nil
	}
	if r == cpu.PC {
		h.settings.NextDisasmAddr = v
	}
	h.printf("Register %s set to %06o.\n", strings.ToUpper(key), v)
	return nil
}

func (h *Host) cmdReset(s selection) error {
	h.machine.Reset()
	h.settings.NextDisasmAddr = h.cpu.Reg.R[cpu.PC]
	h.println("Machine reset.")
	h.displayPC()
	return nil
}

func (h *Host) cmdRun(s selection) error {
	if len(s.args) > 0 {
		pc, err := h.parseExpr(s.args[0])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		h.cpu.SetPC(pc)
	}

	h.printf("Running from %06o. Press Ctrl-C to break.\n", h.cpu.Reg.R[cpu.PC])

	h.setState(stateRunning)
	h.cpu.Fault = nil
	h.run()
	h.reportStop()

	h.setState(stateProcessingCommands)
	h.settings.NextDisasmAddr = h.cpu.Reg.R[cpu.PC]
	return nil
}

// run runs the processor until it halts or the host stops it. Keys typed
// at the keyboard go to the console while it runs.
func (h *Host) run() {
	if h.keyboard != nil {
		breakKey := h.settings.BreakKey
		h.keyboard.capture(func(c byte) {
			switch c {
			case breakKey:
				h.Break()
			case '\n':
				h.machine.Console.Type('\r')
			default:
				h.machine.Console.Type(c)
			}
		})
		defer h.keyboard.release()
	}

	if err := h.machine.Run(context.Background()); err != nil {
		h.printf("%v\n", err)
	}
}

// reportStop describes why a run ended.
func (h *Host) reportStop() {
	switch h.getState() {
	case stateRunning:
		if h.cpu.Fault != nil {
			h.printf("Double fault: %v\n", h.cpu.Fault)
		}
		h.printf("Processor halted at %06o.\n", h.cpu.Reg.R[cpu.PC])
		h.displayPC()
	case stateInterrupted:
		h.println()
		h.displayPC()
	case stateBreakpoint:
		h.displayPC()
	}
}

func (h *Host) cmdSet(s selection) error {
	switch len(s.args) {
	case 0:
		h.println("Variables:")
		h.mu.Lock()
		h.settings.Display(h.output)
		h.output.Flush()
		h.mu.Unlock()

	case 1:
		h.displayUsage(s.cmd)

	default:
		key, value := strings.ToLower(s.args[0]), strings.Join(s.args[1:], " ")

		var err error
		switch h.settings.Kind(key) {
		case reflect.Invalid:
			err = fmt.Errorf("setting '%s' not found", key)
		case reflect.String:
			err = h.settings.Set(key, value)
		case reflect.Bool:
			var v bool
			v, err = stringToBool(value)
			if err == nil {
				err = h.settings.Set(key, v)
			}
		default:
			var v int64
			v, err = h.exprParser.Parse(value, h)
			if err == nil {
				err = h.settings.Set(key, v)
			}
		}

		if err == nil {
			h.println("Setting updated.")
		} else {
			h.printf("%v\n", err)
		}
		h.onSettingsUpdate()
	}
	return nil
}

func (h *Host) cmdStepIn(s selection) error {
	return h.stepCommand(s, h.step)
}

func (h *Host) cmdStepOver(s selection) error {
	return h.stepCommand(s, h.stepOver)
}

func (h *Host) stepCommand(s selection, step func() cpu.Instruction) error {
	// Parse the number of steps.
	count := 1
	if len(s.args) > 0 {
		n, err := h.parseExpr(s.args[0])
		if err == nil {
			count = int(n)
		}
	}

	// Step the processor count times.
	h.setState(stateRunning)
	h.cpu.Fault = nil
	for i := count - 1; i >= 0 && h.getState() == stateRunning; i-- {
		inst := step()
		if inst.Opcode() == cpu.OpHALT || h.cpu.Fault != nil {
			h.reportStop()
			break
		}
		switch {
		case i == h.settings.MaxStepLines:
			h.println("...")
		case i < h.settings.MaxStepLines:
			h.displayPC()
		}
	}
	if st := h.getState(); st == stateInterrupted || st == stateBreakpoint {
		h.reportStop()
	}

	h.setState(stateProcessingCommands)
	h.settings.NextDisasmAddr = h.cpu.Reg.R[cpu.PC]
	return nil
}

func (h *Host) cmdStepOut(s selection) error {
	h.setState(stateRunning)
	h.cpu.Fault = nil
	for i := 0; i < h.settings.StepOutLimit && h.getState() == stateRunning; i++ {
		inst := h.stepOver()
		if inst.Opcode() == cpu.OpHALT || h.cpu.Fault != nil {
			h.reportStop()
			break
		}
		if op := inst.Opcode(); op == cpu.OpRTS || op == cpu.OpRTI || op == cpu.OpRTT {
			h.displayPC()
			break
		}
	}
	if st := h.getState(); st == stateInterrupted || st == stateBreakpoint {
		h.reportStop()
	}

	h.setState(stateProcessingCommands)
	h.settings.NextDisasmAddr = h.cpu.Reg.R[cpu.PC]
	return nil
}

func (h *Host) cmdTape(s selection) error {
	if len(s.args) < 1 {
		h.displayUsage(s.cmd)
		return nil
	}

	file, err := os.Open(s.args[0])
	if err != nil {
		h.printf("Failed to open '%s': %v\n", filepath.Base(s.args[0]), err)
		return nil
	}

	if h.tape != nil {
		h.tape.Close()
	}
	h.tape = file
	h.machine.Tape.Mount(file)
	h.printf("Mounted '%s' in the tape reader.\n", filepath.Base(s.args[0]))
	return nil
}

func (h *Host) cmdType(s selection) error {
	text := strings.Join(s.args, " ")
	h.machine.Console.Type(append([]byte(text), '\r')...)
	return nil
}

// current returns the instruction at the PC.
func (h *Host) current() cpu.Instruction {
	w, err := h.machine.Panel.ReadWord(h.cpu.Reg.R[cpu.PC])
	if err != nil {
		return cpu.Illegal{Word: w}
	}
	return cpu.Decode(w)
}

// step executes one instruction and returns it.
func (h *Host) step() cpu.Instruction {
	inst := h.current()
	h.cpu.Step()
	return inst
}

// stepOver executes one instruction, running a JSR until it returns.
func (h *Host) stepOver() cpu.Instruction {
	inst := h.current()
	if inst.Opcode() != cpu.OpJSR {
		h.cpu.Step()
		return inst
	}

	// Place a step-over breakpoint on the instruction following the JSR.
	// Either modify an already existing breakpoint on that instruction, or
	// create a temporary one.
	next := h.cpu.Reg.R[cpu.PC] + uint16(2*cpu.Length(inst))
	tmpBreakpointCreated := false
	b := h.debugger.GetBreakpoint(next)
	if b == nil {
		b = h.debugger.AddBreakpoint(next)
		tmpBreakpointCreated = true
	}
	b.StepOver = true

	h.run()
	b.StepOver = false

	// If we were stopped by the step-over breakpoint, continue as
	// normal. If the processor halted inside the subroutine, report it.
	switch h.getState() {
	case stateStepOverBreakpoint:
		h.setState(stateRunning)
	case stateRunning:
		inst = cpu.Misc{Op: cpu.OpHALT}
	}

	// Remove the temporarily created breakpoint.
	if tmpBreakpointCreated {
		h.debugger.RemoveBreakpoint(next)
	}
	return inst
}

func (h *Host) onSettingsUpdate() {
	h.exprParser.hexMode = h.settings.HexMode
}

func (h *Host) parseExpr(expr string) (uint16, error) {
	v, err := h.exprParser.Parse(expr, h)
	if err != nil {
		return 0, err
	}

	if v < 0 {
		v = 0x10000 + v
	}
	return uint16(v), nil
}

func (h *Host) disassemble(addr uint16, flags displayFlags) (str string, next uint16) {
	panel := h.machine.Panel

	var line string
	line, next = disasm.Disassemble(panel, addr)

	var words []uint16
	for a := addr; a != next; a += 2 {
		w, err := panel.ReadWord(a)
		if err != nil {
			break
		}
		words = append(words, w)
	}

	str = fmt.Sprintf("%06o  %-20s  %-24s", addr, codeString(words), line)

	if (flags & displayRegisters) != 0 {
		str += " " + h.registerString()
	}

	if (flags & displayAnnotations) != 0 {
		if anno, ok := h.annotations[addr]; ok {
			str += " ; " + anno
		}
	}

	return str, next
}

func (h *Host) registerString() string {
	return fmt.Sprintf("SP=%06o PS=%06o %s", h.cpu.Reg.R[cpu.SP], h.cpu.PSW(), h.cpu.Reg.FlagString())
}

func (h *Host) displayRegisters() {
	r := &h.cpu.Reg
	h.printf("R0=%06o R1=%06o R2=%06o R3=%06o\n", r.R[0], r.R[1], r.R[2], r.R[3])
	h.printf("R4=%06o R5=%06o SP=%06o PC=%06o\n", r.R[4], r.R[5], r.R[cpu.SP], r.R[cpu.PC])
	h.printf("PS=%06o P=%d %s  %s\n", h.cpu.PSW(), r.Priority, r.FlagString(), h.cpu.State())
	if h.interactive {
		d, _ := h.disassemble(r.R[cpu.PC], displayAnnotations)
		h.println(d)
	}
}

func (h *Host) dumpMemory(addr uint16, words int) {
	panel := h.machine.Panel

	buf := []byte(strings.Repeat(" ", 8+7*8+2+16))
	for words > 0 {
		for i := range buf {
			buf[i] = ' '
		}
		wordToBuf(addr, buf[0:6])

		n := min(words, 8)
		for i := range n {
			a := addr + uint16(2*i)
			c1, c2 := 8+7*i, 8+7*8+2+2*i
			w, err := panel.ReadWord(a)
			if err != nil {
				copy(buf[c1:c1+6], "??????")
				continue
			}
			wordToBuf(w, buf[c1:c1+6])
			buf[c2] = toPrintableChar(byte(w))
			buf[c2+1] = toPrintableChar(byte(w >> 8))
		}
		h.println(strings.TrimRight(string(buf), " "))

		addr += uint16(2 * n)
		words -= n
	}
}

func (h *Host) displayUsage(c *command) {
	if c.usage != "" {
		h.printf("Syntax: %s\n", c.usage)
	} else {
		h.println("<no help text>")
	}
}

func (h *Host) displayCommands(t *cmd.Tree) {
	g := groups[t]
	if g == nil {
		return
	}
	h.printf("%s commands:\n", g.title)
	for _, c := range g.commands {
		if c.brief != "" {
			h.printf("    %-15s  %s\n", c.name, c.brief)
		}
	}
}

func (h *Host) resolveIdentifier(s string) (int64, error) {
	s = strings.ToLower(s)

	if r, ok := regNames[s]; ok {
		if r == 8 {
			return int64(h.cpu.PSW()), nil
		}
		return int64(h.cpu.Reg.R[r]), nil
	}

	return 0, fmt.Errorf("identifier '%s' not found", s)
}

func (h *Host) onBreakpoint(c *cpu.CPU, b *cpu.Breakpoint) {
	if b.StepOver {
		if h.state.CompareAndSwap(int32(stateRunning), int32(stateStepOverBreakpoint)) {
			c.Halt()
		}
		return
	}

	if h.state.CompareAndSwap(int32(stateRunning), int32(stateBreakpoint)) {
		c.Halt()
	}
	h.printf("Breakpoint hit at %06o.\n", b.Address)
}

// onDataBreakpoint may be called during interrupt entry while the bus is
// held, so it must not make bus transfers.
func (h *Host) onDataBreakpoint(c *cpu.CPU, b *cpu.DataBreakpoint) {
	h.printf("Data breakpoint hit on address %06o by instruction at %06o.\n", b.Address, c.LastPC)

	if h.state.CompareAndSwap(int32(stateRunning), int32(stateBreakpoint)) {
		c.Halt()
	}
}
