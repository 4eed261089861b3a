// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package machine assembles a complete computer from a processor, a bus,
// memory and the standard peripherals, and supervises the peripherals'
// worker goroutines.
package machine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/beevik/gopdp11/bus"
	"github.com/beevik/gopdp11/cpu"
	"github.com/beevik/gopdp11/device"
	"github.com/beevik/gopdp11/loader"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidConfig is returned by New when the configuration cannot be
// built.
var ErrInvalidConfig = errors.New("invalid machine configuration")

// A ROMImage is read-only memory installed at a fixed address. ROMs are
// attached ahead of RAM, so a ROM overlays any RAM at the same addresses.
type ROMImage struct {
	Addr  uint16
	Words []uint16
}

// Config describes the machine to build.
type Config struct {
	MemorySize  int        // bytes of RAM starting at address 0
	BootAddress uint16     // PC loaded on reset
	ClockHz     int        // line clock frequency; 0 stops the clock
	ROMs        []ROMImage // read-only memories
	ConsoleIn   io.Reader  // console keyboard, may be nil
	ConsoleOut  io.Writer  // console printer
	Tape        io.Reader  // tape mounted in the reader, may be nil
	Punch       io.Writer  // punch output, may be nil
	Logger      logrus.FieldLogger
}

// DefaultConfig returns a machine with all memory below the I/O page, a 60
// Hz line clock and the console on standard output.
func DefaultConfig() Config {
	return Config{
		MemorySize:  bus.IOPage,
		BootAddress: cpu.DefaultBootAddress,
		ClockHz:     60,
		ConsoleOut:  os.Stdout,
	}
}

func (c *Config) validate() error {
	switch {
	case c.MemorySize <= 0 || c.MemorySize > bus.IOPage:
		return fmt.Errorf("%w: memory size %o must be between 2 and %o bytes", ErrInvalidConfig, c.MemorySize, bus.IOPage)
	case c.MemorySize&1 != 0:
		return fmt.Errorf("%w: memory size %o is odd", ErrInvalidConfig, c.MemorySize)
	case c.BootAddress&1 != 0:
		return fmt.Errorf("%w: boot address %06o is odd", ErrInvalidConfig, c.BootAddress)
	case c.ClockHz < 0:
		return fmt.Errorf("%w: clock frequency %d", ErrInvalidConfig, c.ClockHz)
	}
	return nil
}

// Machine is a complete computer.
type Machine struct {
	Bus     *bus.Bus
	CPU     *cpu.CPU
	RAM     *device.RAM
	Console *device.Teletype
	Tape    *device.PaperTape
	Clock   *device.LineClock
	Panel   *Panel

	log    logrus.FieldLogger
	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New builds a machine from cfg. The processor is left halted at the boot
// address and no device workers are running until Start is called.
func New(cfg Config) (*Machine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(os.Stderr)
		l.SetLevel(logrus.WarnLevel)
		log = l
	}

	m := &Machine{
		Bus: bus.New(log.WithField("component", "bus")),
		log: log,
	}

	for _, r := range cfg.ROMs {
		rom, err := device.NewROM(r.Addr, r.Words, log.WithField("component", "rom"))
		if err != nil {
			return nil, fmt.Errorf("%w: rom at %06o: %w", ErrInvalidConfig, r.Addr, err)
		}
		m.Bus.Attach(fmt.Sprintf("rom@%06o", r.Addr), rom)
	}

	ram, err := device.NewRAM(0, cfg.MemorySize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	m.RAM = ram
	m.Bus.Attach("ram", ram)

	m.Clock = device.NewLineClock(cfg.ClockHz)
	m.Bus.Attach("clock", m.Clock)

	m.Console = device.NewTeletype(cfg.ConsoleIn, cfg.ConsoleOut, log.WithField("component", "console"))
	m.Bus.Attach("console", m.Console)

	m.Tape = device.NewPaperTape(cfg.Tape, cfg.Punch, log.WithField("component", "papertape"))
	m.Bus.Attach("papertape", m.Tape)

	m.Panel = &Panel{}
	m.Bus.Attach("panel", m.Panel)

	m.CPU = cpu.NewCPU(m.Bus, log.WithField("component", "cpu"))
	m.CPU.BootAddress = cfg.BootAddress
	m.CPU.SetPC(cfg.BootAddress)

	return m, nil
}

// Start launches the device worker goroutines. They run until ctx is done
// or Close is called. Start has no effect if the workers are running.
func (m *Machine) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.group != nil {
		return
	}

	ctx, m.cancel = context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	m.group = g

	workers := []struct {
		name string
		run  func(context.Context) error
	}{
		{"clock", m.Clock.Run},
		{"console", m.Console.Run},
		{"papertape", m.Tape.Run},
	}
	for _, w := range workers {
		g.Go(func() error {
			log := m.log.WithField("worker", w.name)
			log.Debug("device worker started")
			err := w.run(ctx)
			log.WithError(err).Debug("device worker stopped")
			if err != nil {
				return fmt.Errorf("%s: %w", w.name, err)
			}
			return nil
		})
	}
}

// Close halts the processor, stops the device workers and waits for them
// to exit. It returns the first error a worker failed with.
func (m *Machine) Close() error {
	m.CPU.Halt()

	m.mu.Lock()
	g, cancel := m.group, m.cancel
	m.group, m.cancel = nil, nil
	m.mu.Unlock()

	if g == nil {
		return nil
	}
	cancel()
	return g.Wait()
}

// Run starts the processor on the calling goroutine and returns when it
// halts or ctx is done.
func (m *Machine) Run(ctx context.Context) error {
	return m.CPU.Run(ctx)
}

// Reset performs a power-up reset of the processor and every device.
func (m *Machine) Reset() {
	m.CPU.Reset()
}

// Load deposits an image into memory through the front panel. If the
// image starts itself and the processor is halted, the PC is set to its
// transfer address.
func (m *Machine) Load(img *loader.Image) error {
	if err := img.Deposit(m.Panel); err != nil {
		return err
	}
	m.log.WithFields(logrus.Fields{
		"bytes":  img.Size(),
		"blocks": len(img.Blocks),
	}).Debug("image loaded")

	if img.AutoStart && m.CPU.State() == cpu.StateHalt {
		m.CPU.SetPC(img.Start)
	}
	return nil
}
