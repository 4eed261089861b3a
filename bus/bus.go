// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bus implements a PDP-11 style Unibus: a single 16-bit address
// space shared by the processor and any number of peripheral devices.
//
// The bus serializes transfers between bus masters using two locks that
// mirror the Unibus arbitration signals. SACK guards the selection of the
// next bus master and the queue of pending interrupt requests. BBSY is held
// for the duration of each data transfer. SACK is always released before
// BBSY is taken, so a device waiting for an interrupt grant never blocks
// the processor's own transfers.
package bus

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// PSWAddr is the address at which the processor status word appears on
// the bus.
const PSWAddr = 0177776

// IOPage is the lowest address of the peripheral page. Addresses at or
// above IOPage are reserved for device registers.
const IOPage = 0160000

// A Master identifies the device currently holding bus mastership. The
// processor is always master 0; attached devices are numbered from 1 in
// the order they were attached.
type Master int

// CPU is the bus master token held by the processor.
const CPU Master = 0

func (m Master) String() string {
	if m == CPU {
		return "cpu"
	}
	return fmt.Sprintf("dev%d", int(m))
}

// A Device is a peripheral or memory attached to the bus. Each device owns
// a range of addresses. The bus offers every transfer to its devices in
// attachment order, and the first device to claim the address services it.
//
// Devices are called with the bus transfer lock held, possibly from a
// different goroutine than the one running the device's own worker, so a
// device must protect its registers with its own lock.
type Device interface {
	// Reset returns the device to its power-up state.
	Reset()

	// TryRead returns the word at the even address addr and true if the
	// device claims the address.
	TryRead(addr uint16) (v uint16, ok bool)

	// TryWriteWord stores v at the even address addr and returns true if
	// the device claims the address.
	TryWriteWord(addr uint16, v uint16) bool

	// TryWriteByte stores v at addr and returns true if the device claims
	// the address.
	TryWriteByte(addr uint16, v byte) bool
}

// A Connector is a device that wants a Port handle when it is attached, so
// it can become bus master or raise interrupts on its own.
type Connector interface {
	Connect(p *Port)
}

// A Processor exposes the processor status word to the bus so that it can
// be read and written at PSWAddr.
type Processor interface {
	PSW() uint16
	SetPSW(v uint16)
}

// The Accessor interface is the set of data transfers a bus master may
// perform. The Bus itself implements Accessor for the processor.
type Accessor interface {
	ReadWord(addr uint16) (uint16, error)
	WriteWord(addr uint16, v uint16) error
	ReadByte(addr uint16) (byte, error)
	WriteByte(addr uint16, v byte) error
}

type attachment struct {
	name   string
	dev    Device
	master Master
}

// Bus represents the shared address space and its arbitration state.
type Bus struct {
	sack sync.Mutex // arbitration lock
	bbsy sync.Mutex // transfer lock
	cond *sync.Cond // signaled on SACK when request or priority state changes

	devices []attachment
	proc    Processor
	log     logrus.FieldLogger

	// Guarded by sack.
	next     Master
	priority int
	pending  []*Request
	woken    bool
	seq      uint64

	npending atomic.Int32
	master   atomic.Int32
	lastAddr atomic.Uint32
}

// New creates an empty bus. If log is nil, a logger that discards its
// output is used.
func New(log logrus.FieldLogger) *Bus {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	b := &Bus{log: log}
	b.cond = sync.NewCond(&b.sack)
	return b
}

// SetProcessor installs the processor whose status word is mapped at
// PSWAddr.
func (b *Bus) SetProcessor(p Processor) {
	b.proc = p
}

// Attach adds a device to the bus and returns the port through which the
// device may become bus master or request interrupts. Devices are offered
// transfers in the order they were attached. Attach must be called before
// the bus is shared between goroutines.
func (b *Bus) Attach(name string, d Device) *Port {
	m := Master(len(b.devices) + 1)
	b.devices = append(b.devices, attachment{name: name, dev: d, master: m})
	p := &Port{bus: b, master: m, name: name}
	if c, ok := d.(Connector); ok {
		c.Connect(p)
	}
	return p
}

// Devices returns the names of all attached devices in dispatch order.
func (b *Bus) Devices() []string {
	names := make([]string, len(b.devices))
	for i, a := range b.devices {
		names[i] = a.name
	}
	return names
}

// MasterName returns the name of the device holding the master token m.
func (b *Bus) MasterName(m Master) string {
	if m > CPU && int(m) <= len(b.devices) {
		return b.devices[m-1].name
	}
	return m.String()
}

// Activity describes recent bus activity for front panel displays.
type Activity struct {
	Master   Master // current bus master
	Next     Master // most recently selected non-processor master
	LastAddr uint16 // address of the most recent transfer
}

// Activity returns a snapshot of the bus activity indicators. It may be
// called from any goroutine.
func (b *Bus) Activity() Activity {
	b.sack.Lock()
	next := b.next
	b.sack.Unlock()
	return Activity{
		Master:   Master(b.master.Load()),
		Next:     next,
		LastAddr: uint16(b.lastAddr.Load()),
	}
}

// ReadWord reads a word as the processor.
func (b *Bus) ReadWord(addr uint16) (uint16, error) {
	b.bbsy.Lock()
	defer b.bbsy.Unlock()
	return b.readWord(CPU, addr)
}

// WriteWord writes a word as the processor.
func (b *Bus) WriteWord(addr uint16, v uint16) error {
	b.bbsy.Lock()
	defer b.bbsy.Unlock()
	return b.writeWord(CPU, addr, v)
}

// ReadByte reads a byte as the processor.
func (b *Bus) ReadByte(addr uint16) (byte, error) {
	b.bbsy.Lock()
	defer b.bbsy.Unlock()
	return b.readByte(CPU, addr)
}

// WriteByte writes a byte as the processor.
func (b *Bus) WriteByte(addr uint16, v byte) error {
	b.bbsy.Lock()
	defer b.bbsy.Unlock()
	return b.writeByte(CPU, addr, v)
}

// Reset asserts INIT on the bus. Every attached device is reset and all
// pending interrupt requests are withdrawn. Callers blocked in
// Port.Interrupt return ErrReset.
func (b *Bus) Reset() {
	b.bbsy.Lock()
	for _, a := range b.devices {
		a.dev.Reset()
	}
	b.bbsy.Unlock()

	b.sack.Lock()
	for _, r := range b.pending {
		r.cleared = true
	}
	b.pending = b.pending[:0]
	b.npending.Store(0)
	b.cond.Broadcast()
	b.sack.Unlock()

	b.log.Debug("bus reset")
}

// The following transfer helpers must be called with bbsy held.

func (b *Bus) readWord(m Master, addr uint16) (uint16, error) {
	b.lastAddr.Store(uint32(addr))
	if addr&1 != 0 {
		return 0, b.fault("read", m, addr, ErrOddAddress)
	}
	if addr == PSWAddr && b.proc != nil {
		if m != CPU {
			return 0, b.fault("read", m, addr, ErrNoDevice)
		}
		return b.proc.PSW(), nil
	}
	for _, a := range b.devices {
		if v, ok := a.dev.TryRead(addr); ok {
			return v, nil
		}
	}
	return 0, b.fault("read", m, addr, ErrNoDevice)
}

func (b *Bus) readByte(m Master, addr uint16) (byte, error) {
	v, err := b.readWord(m, addr&^1)
	if err != nil {
		return 0, err
	}
	if addr&1 != 0 {
		return byte(v >> 8), nil
	}
	return byte(v), nil
}

func (b *Bus) writeWord(m Master, addr uint16, v uint16) error {
	b.lastAddr.Store(uint32(addr))
	if addr&1 != 0 {
		return b.fault("write", m, addr, ErrOddAddress)
	}
	if addr == PSWAddr && b.proc != nil {
		if m != CPU {
			return b.fault("write", m, addr, ErrNoDevice)
		}
		b.proc.SetPSW(v)
		return nil
	}
	for _, a := range b.devices {
		if a.dev.TryWriteWord(addr, v) {
			return nil
		}
	}
	return b.fault("write", m, addr, ErrNoDevice)
}

func (b *Bus) writeByte(m Master, addr uint16, v byte) error {
	b.lastAddr.Store(uint32(addr))
	if addr&^1 == PSWAddr && b.proc != nil {
		if m != CPU {
			return b.fault("write", m, addr, ErrNoDevice)
		}
		ps := b.proc.PSW()
		if addr&1 != 0 {
			ps = ps&0x00ff | uint16(v)<<8
		} else {
			ps = ps&0xff00 | uint16(v)
		}
		b.proc.SetPSW(ps)
		return nil
	}
	for _, a := range b.devices {
		if a.dev.TryWriteByte(addr, v) {
			return nil
		}
	}
	return b.fault("write", m, addr, ErrNoDevice)
}

func (b *Bus) fault(op string, m Master, addr uint16, err error) error {
	b.log.WithFields(logrus.Fields{
		"op":     op,
		"addr":   fmt.Sprintf("%06o", addr),
		"master": b.MasterName(m),
	}).Debug("bus error")
	return &Error{Op: op, Addr: addr, Master: m, Err: err}
}
