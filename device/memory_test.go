// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device_test

import (
	"errors"
	"testing"

	"github.com/beevik/gopdp11/bus"
	"github.com/beevik/gopdp11/device"
)

func TestRAMBounds(t *testing.T) {
	tests := []struct {
		base uint16
		size int
		err  error
	}{
		{0, bus.IOPage, nil},
		{0o1000, 0o1000, nil},
		{0o1001, 0o1000, device.ErrMemoryAlignment},
		{0o1000, 0o777, device.ErrMemoryAlignment},
		{0, 0, device.ErrMemoryOutOfBounds},
		{0o170000, 0o20000, device.ErrMemoryOutOfBounds},
	}
	for _, tt := range tests {
		_, err := device.NewRAM(tt.base, tt.size)
		if !errors.Is(err, tt.err) {
			t.Errorf("NewRAM(%06o, %o) error incorrect. exp: %v, got: %v", tt.base, tt.size, tt.err, err)
		}
	}
}

func TestRAMAccess(t *testing.T) {
	ram, err := device.NewRAM(0o1000, 0o100)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := ram.TryRead(0o776); ok {
		t.Error("RAM claimed address below its base")
	}
	if _, ok := ram.TryRead(0o1100); ok {
		t.Error("RAM claimed address above its top")
	}

	ram.TryWriteWord(0o1010, 0o123456)
	ram.TryWriteByte(0o1011, 0o377)
	v, ok := ram.TryRead(0o1010)
	if !ok || v != 0o177456 {
		t.Errorf("word incorrect. exp: %06o, got: %06o", 0o177456, v)
	}

	ram.TryWriteByte(0o1010, 0)
	v, _ = ram.TryRead(0o1010)
	if v != 0o177400 {
		t.Errorf("word incorrect. exp: %06o, got: %06o", 0o177400, v)
	}

	if err := ram.LoadWords(0o1074, []uint16{1, 2, 3}); !errors.Is(err, device.ErrMemoryOutOfBounds) {
		t.Errorf("LoadWords past end error incorrect. exp: %v, got: %v", device.ErrMemoryOutOfBounds, err)
	}
}

func TestROMIgnoresWrites(t *testing.T) {
	b := bus.New(nil)
	rom, err := device.NewROM(0o173000, []uint16{0o012706, 0o1000}, nil)
	if err != nil {
		t.Fatal(err)
	}
	b.Attach("rom", rom)

	if err := b.WriteWord(0o173000, 0); err != nil {
		t.Errorf("write to rom failed: %v", err)
	}
	if err := b.WriteByte(0o173003, 0o377); err != nil {
		t.Errorf("byte write to rom failed: %v", err)
	}
	expectBusWord(t, b, 0o173000, 0o012706)
	expectBusWord(t, b, 0o173002, 0o1000)

	if _, err := b.ReadWord(0o173004); !errors.Is(err, bus.ErrNoDevice) {
		t.Errorf("read past rom error incorrect. exp: %v, got: %v", bus.ErrNoDevice, err)
	}
}

func expectBusWord(t *testing.T, b *bus.Bus, addr uint16, exp uint16) {
	t.Helper()
	v, err := b.ReadWord(addr)
	if err != nil {
		t.Fatalf("read %06o: %v", addr, err)
	}
	if v != exp {
		t.Errorf("word at %06o incorrect. exp: %06o, got: %06o", addr, exp, v)
	}
}
