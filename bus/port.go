// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bus

// A Port is a device's handle on the bus. Through its port a device can
// become bus master for direct memory transfers (a non-processor request)
// or raise interrupts at one of the bus request levels.
type Port struct {
	bus    *Bus
	master Master
	name   string
}

// Master returns the master token assigned to the port's device.
func (p *Port) Master() Master {
	return p.master
}

// Name returns the name the device was attached with.
func (p *Port) Name() string {
	return p.name
}

// Transfer acquires bus mastership for the port's device and calls fn. All
// transfers made through t complete without interleaving with any other
// master's transfers. Mastership returns to the processor when fn returns.
//
// fn must not call any other Port or Bus transfer method, since the bus
// transfer lock is already held.
func (p *Port) Transfer(fn func(t *Transfer) error) error {
	b := p.bus

	b.sack.Lock()
	b.next = p.master
	b.sack.Unlock()

	b.bbsy.Lock()
	b.master.Store(int32(p.master))
	defer func() {
		b.master.Store(int32(CPU))
		b.bbsy.Unlock()
	}()

	return fn(&Transfer{bus: b, master: p.master})
}

// ReadWord reads a single word as the port's device.
func (p *Port) ReadWord(addr uint16) (v uint16, err error) {
	err = p.Transfer(func(t *Transfer) error {
		v, err = t.ReadWord(addr)
		return err
	})
	return v, err
}

// WriteWord writes a single word as the port's device.
func (p *Port) WriteWord(addr uint16, v uint16) error {
	return p.Transfer(func(t *Transfer) error {
		return t.WriteWord(addr, v)
	})
}

// ReadByte reads a single byte as the port's device.
func (p *Port) ReadByte(addr uint16) (v byte, err error) {
	err = p.Transfer(func(t *Transfer) error {
		v, err = t.ReadByte(addr)
		return err
	})
	return v, err
}

// WriteByte writes a single byte as the port's device.
func (p *Port) WriteByte(addr uint16, v byte) error {
	return p.Transfer(func(t *Transfer) error {
		return t.WriteByte(addr, v)
	})
}

// A Transfer performs data transfers on behalf of the current bus master.
// It is only valid inside the function passed to Port.Transfer or
// Bus.ServiceInterrupt.
type Transfer struct {
	bus    *Bus
	master Master
}

// ReadWord reads a word at addr.
func (t *Transfer) ReadWord(addr uint16) (uint16, error) {
	return t.bus.readWord(t.master, addr)
}

// WriteWord writes a word at addr.
func (t *Transfer) WriteWord(addr uint16, v uint16) error {
	return t.bus.writeWord(t.master, addr, v)
}

// ReadByte reads a byte at addr.
func (t *Transfer) ReadByte(addr uint16) (byte, error) {
	return t.bus.readByte(t.master, addr)
}

// WriteByte writes a byte at addr.
func (t *Transfer) WriteByte(addr uint16, v byte) error {
	return t.bus.writeByte(t.master, addr, v)
}
