// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package machine

import (
	"errors"

	"github.com/beevik/gopdp11/bus"
	"github.com/beevik/gopdp11/cpu"
)

// ErrRunning is returned when a register deposit is attempted while the
// processor is not halted.
var ErrRunning = errors.New("processor is running")

// Panel is the front panel. It is a bus master in its own right, so memory
// can be examined and deposited while the processor runs. The panel claims
// no bus addresses.
type Panel struct {
	port *bus.Port
}

// Connect is called when the panel is attached to the bus.
func (p *Panel) Connect(port *bus.Port) {
	p.port = port
}

func (p *Panel) Reset()                                  {}
func (p *Panel) TryRead(addr uint16) (uint16, bool)      { return 0, false }
func (p *Panel) TryWriteWord(addr uint16, v uint16) bool { return false }
func (p *Panel) TryWriteByte(addr uint16, v byte) bool   { return false }
func (p *Panel) ReadWord(addr uint16) (uint16, error)    { return p.port.ReadWord(addr) }
func (p *Panel) WriteWord(addr uint16, v uint16) error   { return p.port.WriteWord(addr, v) }
func (p *Panel) ReadByte(addr uint16) (byte, error)      { return p.port.ReadByte(addr) }
func (p *Panel) WriteByte(addr uint16, v byte) error     { return p.port.WriteByte(addr, v) }

// Transfer performs a sequence of transfers as a single bus tenure.
func (p *Panel) Transfer(fn func(t *bus.Transfer) error) error {
	return p.port.Transfer(fn)
}

// DepositRegister sets general register r, or the status word when r is
// 8. The processor must be halted.
func (m *Machine) DepositRegister(r int, v uint16) error {
	if m.CPU.State() != cpu.StateHalt {
		return ErrRunning
	}
	switch {
	case r >= 0 && r < 8:
		m.CPU.Reg.R[r] = v
	case r == 8:
		m.CPU.SetPSW(v)
	default:
		return errors.New("no such register")
	}
	return nil
}
