// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/beevik/gopdp11/bus"
	"github.com/beevik/gopdp11/device"
)

const (
	csrError  = 0o100000
	csrBusy   = 0o004000
	csrDone   = 0o000200
	csrIntEnb = 0o000100
	csrGo     = 0o000001
)

// runDevice starts a device worker and returns a function that stops it.
func runDevice(t *testing.T, run func(ctx context.Context) error) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()
	return func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("device worker failed: %v", err)
		}
	}
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// takeInterrupt accepts the next pending interrupt as the processor would
// and returns its vector.
func takeInterrupt(t *testing.T, b *bus.Bus) uint16 {
	t.Helper()
	var vector uint16
	ok, err := b.ServiceInterrupt(func(r *bus.Request, _ *bus.Transfer) error {
		vector = r.Vector
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("no interrupt was granted")
	}
	return vector
}

func expectNoInterrupt(t *testing.T, b *bus.Bus) {
	t.Helper()
	ok, _ := b.ServiceInterrupt(func(r *bus.Request, _ *bus.Transfer) error {
		t.Errorf("unexpected interrupt %v", r)
		return nil
	})
	if ok {
		t.Error("interrupt granted unexpectedly")
	}
}

func readReg(t *testing.T, b *bus.Bus, addr uint16) uint16 {
	t.Helper()
	v, err := b.ReadWord(addr)
	if err != nil {
		t.Fatalf("read %06o: %v", addr, err)
	}
	return v
}

func writeReg(t *testing.T, b *bus.Bus, addr uint16, v uint16) {
	t.Helper()
	if err := b.WriteWord(addr, v); err != nil {
		t.Fatalf("write %06o: %v", addr, err)
	}
}

func TestTeletypeKeyboard(t *testing.T) {
	b := bus.New(nil)
	tty := device.NewTeletype(nil, nil, nil)
	b.Attach("tty", tty)

	if readReg(t, b, device.TKS)&csrDone != 0 {
		t.Error("keyboard done before any key was typed")
	}

	tty.Type('h', 'i')
	if tty.Pending() != 2 {
		t.Errorf("pending incorrect. exp: 2, got: %d", tty.Pending())
	}
	if readReg(t, b, device.TKS)&csrDone == 0 {
		t.Fatal("keyboard not done after a key was typed")
	}
	if c := readReg(t, b, device.TKB); c != 'h' {
		t.Errorf("keyboard buffer incorrect. exp: %03o, got: %03o", 'h', c)
	}
	if c := readReg(t, b, device.TKB); c != 'i' {
		t.Errorf("keyboard buffer incorrect. exp: %03o, got: %03o", 'i', c)
	}
	if readReg(t, b, device.TKS)&csrDone != 0 {
		t.Error("keyboard still done after the queue drained")
	}
}

func TestTeletypeKeyboardInterrupt(t *testing.T) {
	b := bus.New(nil)
	tty := device.NewTeletype(nil, nil, nil)
	b.Attach("tty", tty)

	writeReg(t, b, device.TKS, csrIntEnb)
	if b.InterruptPending() {
		t.Fatal("interrupt requested with no key typed")
	}

	tty.Type('x')
	if v := takeInterrupt(t, b); v != device.TeletypeRxVector {
		t.Errorf("vector incorrect. exp: %03o, got: %03o", device.TeletypeRxVector, v)
	}

	tty.Type('y')
	writeReg(t, b, device.TKS, 0)
	readReg(t, b, device.TKB)
	if b.InterruptPending() {
		t.Error("interrupt still pending after interrupts were disabled")
	}
}

func TestTeletypeReadWithdrawsInterrupt(t *testing.T) {
	b := bus.New(nil)
	tty := device.NewTeletype(nil, nil, nil)
	b.Attach("tty", tty)

	b.SetPriority(7)
	writeReg(t, b, device.TKS, csrIntEnb)
	tty.Type('a')
	if !b.InterruptPending() {
		t.Fatal("no interrupt requested for a typed key")
	}

	if c := readReg(t, b, device.TKB); c != 'a' {
		t.Errorf("keyboard buffer incorrect. exp: %03o, got: %03o", 'a', c)
	}
	if v := readReg(t, b, device.TKS); v != csrIntEnb {
		t.Errorf("keyboard status incorrect. exp: %06o, got: %06o", csrIntEnb, v)
	}
	if n := len(b.Pending()); n != 0 {
		t.Errorf("pending requests incorrect. exp: 0, got: %d", n)
	}

	b.SetPriority(0)
	expectNoInterrupt(t, b)
}

func TestTeletypePrinter(t *testing.T) {
	b := bus.New(nil)
	var out bytes.Buffer
	tty := device.NewTeletype(nil, &out, nil)
	b.Attach("tty", tty)

	if readReg(t, b, device.TPS)&csrDone == 0 {
		t.Fatal("printer not ready")
	}
	writeReg(t, b, device.TPB, 'O')
	if err := b.WriteByte(device.TPB, 'K'|0o200); err != nil {
		t.Fatal(err)
	}
	if out.String() != "OK" {
		t.Errorf("printer output incorrect. exp: %q, got: %q", "OK", out.String())
	}

	writeReg(t, b, device.TPS, csrIntEnb)
	if v := takeInterrupt(t, b); v != device.TeletypeTxVector {
		t.Errorf("vector incorrect. exp: %03o, got: %03o", device.TeletypeTxVector, v)
	}
}

func TestTeletypeReader(t *testing.T) {
	b := bus.New(nil)
	tty := device.NewTeletype(strings.NewReader("go"), nil, nil)
	b.Attach("tty", tty)

	stop := runDevice(t, tty.Run)
	defer stop()

	waitFor(t, "typed input", func() bool { return tty.Pending() == 2 })
	if c := readReg(t, b, device.TKB); c != 'g' {
		t.Errorf("keyboard buffer incorrect. exp: %03o, got: %03o", 'g', c)
	}
}

func TestPaperTapeRead(t *testing.T) {
	b := bus.New(nil)
	pt := device.NewPaperTape(bytes.NewReader([]byte{0o351, 0o017}), nil, nil)
	b.Attach("pt", pt)

	stop := runDevice(t, pt.Run)
	defer stop()

	writeReg(t, b, device.PRS, csrGo)
	waitFor(t, "reader done", func() bool { return readReg(t, b, device.PRS)&csrDone != 0 })
	if c := readReg(t, b, device.PRB); c != 0o351 {
		t.Errorf("reader buffer incorrect. exp: %03o, got: %03o", 0o351, c)
	}
	if readReg(t, b, device.PRS)&csrDone != 0 {
		t.Error("reader still done after the buffer was read")
	}

	writeReg(t, b, device.PRS, csrIntEnb|csrGo)
	waitFor(t, "reader interrupt", b.InterruptPending)
	if v := takeInterrupt(t, b); v != device.ReaderVector {
		t.Errorf("vector incorrect. exp: %03o, got: %03o", device.ReaderVector, v)
	}
	if c := readReg(t, b, device.PRB); c != 0o017 {
		t.Errorf("reader buffer incorrect. exp: %03o, got: %03o", 0o017, c)
	}

	writeReg(t, b, device.PRS, csrGo)
	waitFor(t, "end of tape", func() bool { return readReg(t, b, device.PRS)&csrError != 0 })
	if readReg(t, b, device.PRS)&csrBusy != 0 {
		t.Error("reader busy at end of tape")
	}
}

func TestPaperTapeReadWithdrawsInterrupt(t *testing.T) {
	b := bus.New(nil)
	pt := device.NewPaperTape(bytes.NewReader([]byte{0o123}), nil, nil)
	b.Attach("pt", pt)

	stop := runDevice(t, pt.Run)
	defer stop()

	b.SetPriority(7)
	writeReg(t, b, device.PRS, csrIntEnb|csrGo)
	waitFor(t, "reader interrupt", b.InterruptPending)

	if c := readReg(t, b, device.PRB); c != 0o123 {
		t.Errorf("reader buffer incorrect. exp: %03o, got: %03o", 0o123, c)
	}
	if v := readReg(t, b, device.PRS); v != csrIntEnb {
		t.Errorf("reader status incorrect. exp: %06o, got: %06o", csrIntEnb, v)
	}
	if n := len(b.Pending()); n != 0 {
		t.Errorf("pending requests incorrect. exp: 0, got: %d", n)
	}

	b.SetPriority(0)
	expectNoInterrupt(t, b)
}

func TestPaperTapeEmpty(t *testing.T) {
	b := bus.New(nil)
	pt := device.NewPaperTape(nil, nil, nil)
	b.Attach("pt", pt)

	if readReg(t, b, device.PRS)&csrError == 0 {
		t.Error("empty reader does not report an error")
	}
	if readReg(t, b, device.PPS)&csrError == 0 {
		t.Error("missing punch does not report an error")
	}

	pt.Mount(strings.NewReader("A"))
	if readReg(t, b, device.PRS)&csrError != 0 {
		t.Error("reader reports an error after a tape was mounted")
	}
}

func TestPaperTapePunch(t *testing.T) {
	b := bus.New(nil)
	var punched bytes.Buffer
	pt := device.NewPaperTape(nil, &punched, nil)
	b.Attach("pt", pt)

	stop := runDevice(t, pt.Run)
	defer stop()

	for _, c := range []byte{1, 0, 0o377} {
		waitFor(t, "punch ready", func() bool { return readReg(t, b, device.PPS)&csrDone != 0 })
		writeReg(t, b, device.PPB, uint16(c))
	}
	waitFor(t, "punch ready", func() bool { return readReg(t, b, device.PPS)&csrDone != 0 })
	if !bytes.Equal(punched.Bytes(), []byte{1, 0, 0o377}) {
		t.Errorf("punched tape incorrect. exp: %v, got: %v", []byte{1, 0, 0o377}, punched.Bytes())
	}
}

func TestLineClock(t *testing.T) {
	b := bus.New(nil)
	clk := device.NewLineClock(1000)
	b.Attach("clock", clk)

	stop := runDevice(t, clk.Run)
	defer stop()

	waitFor(t, "clock tick", func() bool { return clk.Ticks() > 0 })
	writeReg(t, b, device.LKS, 0)
	waitFor(t, "monitor bit", func() bool { return readReg(t, b, device.LKS)&csrDone != 0 })

	writeReg(t, b, device.LKS, csrIntEnb)
	waitFor(t, "clock interrupt", b.InterruptPending)
	if v := takeInterrupt(t, b); v != device.ClockVector {
		t.Errorf("vector incorrect. exp: %03o, got: %03o", device.ClockVector, v)
	}

	b.Reset()
	if readReg(t, b, device.LKS)&csrIntEnb != 0 {
		t.Error("bus reset did not disable clock interrupts")
	}
}

func TestStoppedClock(t *testing.T) {
	clk := device.NewLineClock(0)
	stop := runDevice(t, clk.Run)
	time.Sleep(5 * time.Millisecond)
	stop()
	if clk.Ticks() != 0 {
		t.Errorf("ticks incorrect. exp: 0, got: %d", clk.Ticks())
	}
}
