// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bus_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/beevik/gopdp11/bus"
	"golang.org/x/sync/errgroup"
)

// mem is a minimal word-addressed memory device used by the tests.
type mem struct {
	mu     sync.Mutex
	base   uint16
	words  []uint16
	resets int
}

func newMem(base uint16, words int) *mem {
	return &mem{base: base, words: make([]uint16, words)}
}

func (m *mem) index(addr uint16) (int, bool) {
	if addr < m.base || int(addr-m.base)>>1 >= len(m.words) {
		return 0, false
	}
	return int(addr-m.base) >> 1, true
}

func (m *mem) Reset() {
	m.mu.Lock()
	m.resets++
	m.mu.Unlock()
}

func (m *mem) TryRead(addr uint16) (uint16, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index(addr)
	if !ok {
		return 0, false
	}
	return m.words[i], true
}

func (m *mem) TryWriteWord(addr uint16, v uint16) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index(addr)
	if ok {
		m.words[i] = v
	}
	return ok
}

func (m *mem) TryWriteByte(addr uint16, v byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index(addr)
	if ok {
		if addr&1 != 0 {
			m.words[i] = m.words[i]&0x00ff | uint16(v)<<8
		} else {
			m.words[i] = m.words[i]&0xff00 | uint16(v)
		}
	}
	return ok
}

type proc struct {
	psw uint16
}

func (p *proc) PSW() uint16     { return p.psw }
func (p *proc) SetPSW(v uint16) { p.psw = v }

func expectWord(t *testing.T, b bus.Accessor, addr, v uint16) {
	t.Helper()
	got, err := b.ReadWord(addr)
	if err != nil {
		t.Fatalf("read %06o: %v", addr, err)
	}
	if got != v {
		t.Errorf("word at %06o incorrect. exp: %06o, got: %06o", addr, v, got)
	}
}

func expectErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Errorf("error incorrect. exp: %v, got: %v", target, err)
	}
}

func expectVector(t *testing.T, b *bus.Bus, vector uint16) {
	t.Helper()
	var got uint16
	ok, err := b.ServiceInterrupt(func(r *bus.Request, _ *bus.Transfer) error {
		got = r.Vector
		return nil
	})
	if err != nil {
		t.Fatalf("service interrupt: %v", err)
	}
	if !ok {
		t.Fatalf("no interrupt granted, expected vector %03o", vector)
	}
	if got != vector {
		t.Errorf("vector incorrect. exp: %03o, got: %03o", vector, got)
	}
}

func expectNoGrant(t *testing.T, b *bus.Bus) {
	t.Helper()
	ok, _ := b.ServiceInterrupt(func(r *bus.Request, _ *bus.Transfer) error {
		t.Errorf("unexpected grant of %v", r)
		return nil
	})
	if ok {
		t.Errorf("interrupt granted unexpectedly")
	}
}

func TestDispatchOrder(t *testing.T) {
	b := bus.New(nil)
	rom := newMem(0o1000, 8)
	ram := newMem(0, 1024)
	b.Attach("rom", rom)
	b.Attach("ram", ram)

	rom.words[0] = 0o12345
	if err := b.WriteWord(0o1000, 0o777); err != nil {
		t.Fatal(err)
	}
	expectWord(t, b, 0o1000, 0o777)
	if ram.words[0o1000>>1] != 0 {
		t.Errorf("write reached shadowed device")
	}

	if err := b.WriteWord(0o2000, 0o4242); err != nil {
		t.Fatal(err)
	}
	expectWord(t, b, 0o2000, 0o4242)
}

func TestAddressErrors(t *testing.T) {
	b := bus.New(nil)
	b.Attach("ram", newMem(0, 16))

	_, err := b.ReadWord(3)
	expectErr(t, err, bus.ErrOddAddress)
	expectErr(t, b.WriteWord(5, 1), bus.ErrOddAddress)

	_, err = b.ReadWord(0o100)
	expectErr(t, err, bus.ErrNoDevice)

	var be *bus.Error
	if !errors.As(err, &be) || be.Addr != 0o100 || be.Op != "read" {
		t.Errorf("bus error details incorrect: %v", err)
	}

	if err := b.WriteByte(3, 0o377); err != nil {
		t.Fatal(err)
	}
	v, err := b.ReadByte(3)
	if err != nil || v != 0o377 {
		t.Errorf("odd byte read incorrect. exp: 377, got: %o (%v)", v, err)
	}
	expectWord(t, b, 2, 0o177400)
}

func TestStatusWordMapping(t *testing.T) {
	b := bus.New(nil)
	p := &proc{psw: 0o340}
	b.SetProcessor(p)
	port := b.Attach("ram", newMem(0, 16))

	expectWord(t, b, bus.PSWAddr, 0o340)
	if err := b.WriteByte(bus.PSWAddr, 0o17); err != nil {
		t.Fatal(err)
	}
	if p.psw != 0o17 {
		t.Errorf("psw incorrect. exp: 017, got: %03o", p.psw)
	}

	_, err := port.ReadWord(bus.PSWAddr)
	expectErr(t, err, bus.ErrNoDevice)
	expectErr(t, port.WriteWord(bus.PSWAddr, 0), bus.ErrNoDevice)
}

func TestTransferIsAtomic(t *testing.T) {
	b := bus.New(nil)
	port1 := b.Attach("ram", newMem(0, 16))
	port2 := b.Attach("dma", newMem(0o1000, 16))

	var g errgroup.Group
	var mu sync.Mutex
	var torn int
	for id, port := range []*bus.Port{port1, port2} {
		g.Go(func() error {
			for i := range 500 {
				v := uint16(id<<12 | i)
				err := port.Transfer(func(t *bus.Transfer) error {
					if err := t.WriteWord(0, v); err != nil {
						return err
					}
					if err := t.WriteWord(2, v); err != nil {
						return err
					}
					lo, _ := t.ReadWord(0)
					hi, _ := t.ReadWord(2)
					if lo != v || hi != v {
						mu.Lock()
						torn++
						mu.Unlock()
					}
					return nil
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if torn != 0 {
		t.Errorf("%d transfers interleaved", torn)
	}
	if a := b.Activity(); a.Master != bus.CPU {
		t.Errorf("mastership not returned to cpu: %v", a.Master)
	}
}

func TestInterruptPriority(t *testing.T) {
	b := bus.New(nil)
	kbd := b.Attach("kbd", newMem(0o177560, 2))
	clk := b.Attach("clk", newMem(0o177546, 1))
	ptr := b.Attach("ptr", newMem(0o177550, 2))

	b.SetPriority(7)
	kbd.RequestInterrupt(0o60, 4)
	clk.RequestInterrupt(0o100, 6)
	ptr.RequestInterrupt(0o70, 4)
	kbd.RequestInterrupt(0o60, 4)

	if got := len(b.Pending()); got != 3 {
		t.Errorf("pending count incorrect. exp: 3, got: %d", got)
	}
	expectNoGrant(t, b)

	b.SetPriority(5)
	expectVector(t, b, 0o100)
	expectNoGrant(t, b)

	b.SetPriority(0)
	expectVector(t, b, 0o60)
	expectVector(t, b, 0o70)
	expectNoGrant(t, b)

	if b.InterruptPending() {
		t.Errorf("queue not empty")
	}
}

func TestInterruptGrantActivity(t *testing.T) {
	b := bus.New(nil)
	b.Attach("ram", newMem(0, 16))
	clk := b.Attach("clk", newMem(0o177546, 1))

	clk.RequestInterrupt(0o100, 6)
	var during bus.Activity
	ok, err := b.ServiceInterrupt(func(r *bus.Request, _ *bus.Transfer) error {
		during = b.Activity()
		return nil
	})
	if err != nil || !ok {
		t.Fatalf("interrupt not granted: %v", err)
	}

	if during.Master != bus.CPU {
		t.Errorf("delivery master incorrect. exp: %v, got: %v", bus.CPU, during.Master)
	}
	if during.Next != clk.Master() {
		t.Errorf("next master incorrect. exp: %v, got: %v", clk.Master(), during.Next)
	}
	if a := b.Activity(); a.Master != bus.CPU || a.Next != clk.Master() {
		t.Errorf("activity after grant incorrect: %+v", a)
	}
}

func TestInterruptBlocks(t *testing.T) {
	b := bus.New(nil)
	port := b.Attach("clk", newMem(0o177546, 1))
	b.SetPriority(7)

	done := make(chan error, 1)
	go func() {
		done <- port.Interrupt(context.Background(), 0o100, 6)
	}()

	for !b.InterruptPending() {
		time.Sleep(time.Millisecond)
	}
	select {
	case err := <-done:
		t.Fatalf("interrupt returned before delivery: %v", err)
	default:
	}

	b.SetPriority(0)
	expectVector(t, b, 0o100)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("interrupt failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("interrupt never returned")
	}
}

func TestInterruptCancel(t *testing.T) {
	b := bus.New(nil)
	port := b.Attach("clk", newMem(0o177546, 1))
	b.SetPriority(7)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := port.Interrupt(ctx, 0o100, 6)
	expectErr(t, err, context.DeadlineExceeded)

	if b.InterruptPending() {
		t.Errorf("cancelled request still queued")
	}
}

func TestCancelReleasesWaiter(t *testing.T) {
	b := bus.New(nil)
	port := b.Attach("ptr", newMem(0o177550, 2))
	b.SetPriority(7)

	r := port.Raise(0o70, 4)
	done := make(chan error, 1)
	go func() {
		done <- port.Await(context.Background(), r)
	}()

	port.CancelInterrupt(0o70)
	select {
	case err := <-done:
		expectErr(t, err, bus.ErrReset)
	case <-time.After(time.Second):
		t.Fatal("waiter not released by cancel")
	}

	b.SetPriority(0)
	expectNoGrant(t, b)
}

func TestResetWithdrawsRequests(t *testing.T) {
	b := bus.New(nil)
	m := newMem(0o177546, 1)
	port := b.Attach("clk", m)
	b.SetPriority(7)

	done := make(chan error, 1)
	go func() {
		done <- port.Interrupt(context.Background(), 0o100, 6)
	}()
	for !b.InterruptPending() {
		time.Sleep(time.Millisecond)
	}

	b.Reset()
	select {
	case err := <-done:
		expectErr(t, err, bus.ErrReset)
	case <-time.After(5 * time.Second):
		t.Fatalf("interrupt not released by reset")
	}
	if m.resets != 1 {
		t.Errorf("device reset count incorrect. exp: 1, got: %d", m.resets)
	}
}

func TestWaitWake(t *testing.T) {
	b := bus.New(nil)
	port := b.Attach("kbd", newMem(0o177560, 2))

	done := make(chan error, 1)
	go func() {
		done <- b.Wait(context.Background())
	}()
	port.RequestInterrupt(0o60, 4)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("wait failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("wait not released by interrupt request")
	}

	b.SetPriority(7)
	go func() {
		done <- b.Wait(context.Background())
	}()
	b.Wake()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("wait not released by wake")
	}
}
