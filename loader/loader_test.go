// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loader_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/beevik/gopdp11/loader"
)

// block punches one absolute loader block with a correct checksum.
func block(addr uint16, data ...byte) []byte {
	count := 6 + len(data)
	b := []byte{1, 0, byte(count), byte(count >> 8), byte(addr), byte(addr >> 8)}
	b = append(b, data...)
	var sum byte
	for _, c := range b {
		sum += c
	}
	return append(b, -sum)
}

func tape(blocks ...[]byte) []byte {
	t := make([]byte, 8) // leader
	for _, b := range blocks {
		t = append(t, b...)
		t = append(t, 0, 0)
	}
	return t
}

type memory map[uint16]byte

func (m memory) WriteWord(addr uint16, v uint16) error {
	m[addr] = byte(v)
	m[addr+1] = byte(v >> 8)
	return nil
}

func (m memory) WriteByte(addr uint16, v byte) error {
	m[addr] = v
	return nil
}

func TestReadAbsolute(t *testing.T) {
	data := tape(
		block(0o1000, 0o300, 0o025, 0o000, 0o000),
		block(0o2001, 0o377),
		block(0o1000),
	)
	img, err := loader.ReadAbsolute(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(img.Blocks) != 2 {
		t.Fatalf("block count incorrect. exp: 2, got: %d", len(img.Blocks))
	}
	if img.Start != 0o1000 || !img.AutoStart {
		t.Errorf("start incorrect. exp: %06o auto, got: %06o %v", 0o1000, img.Start, img.AutoStart)
	}
	if img.Size() != 5 {
		t.Errorf("size incorrect. exp: 5, got: %d", img.Size())
	}

	m := make(memory)
	if err := img.Deposit(m); err != nil {
		t.Fatal(err)
	}
	exp := memory{0o1000: 0o300, 0o1001: 0o025, 0o1002: 0, 0o1003: 0, 0o2001: 0o377}
	for addr, v := range exp {
		if m[addr] != v {
			t.Errorf("byte at %06o incorrect. exp: %03o, got: %03o", addr, v, m[addr])
		}
	}

	words := img.Blocks[0].Words()
	if len(words) != 2 || words[0] != 0o012700 {
		t.Errorf("words incorrect. exp: [012700 0], got: %o", words)
	}
}

func TestReadAbsoluteNoAutoStart(t *testing.T) {
	img, err := loader.ReadAbsolute(bytes.NewReader(tape(block(0o500, 1, 2), block(1))))
	if err != nil {
		t.Fatal(err)
	}
	if img.AutoStart {
		t.Error("odd transfer address started automatically")
	}

	img, err = loader.ReadAbsolute(bytes.NewReader(tape(block(0o500, 1, 2))))
	if err != nil {
		t.Fatal(err)
	}
	if img.AutoStart || len(img.Blocks) != 1 {
		t.Errorf("tape without end block incorrect: %+v", img)
	}
}

func TestReadAbsoluteErrors(t *testing.T) {
	bad := block(0o1000, 1, 2, 3)
	bad[len(bad)-1]++

	short := block(0o1000, 1, 2, 3)
	short = short[:len(short)-2]

	tests := []struct {
		name string
		data []byte
		err  error
	}{
		{"checksum", tape(bad), loader.ErrChecksum},
		{"truncated", short, loader.ErrFormat},
		{"header", []byte{1, 7, 6, 0, 0, 0, 0}, loader.ErrFormat},
		{"garbage", []byte{0, 0, 0o123}, loader.ErrFormat},
		{"count", []byte{1, 0, 4, 0, 0, 0, 0o373}, loader.ErrFormat},
		{"blank", make([]byte, 20), loader.ErrEmpty},
	}
	for _, tt := range tests {
		_, err := loader.ReadAbsolute(bytes.NewReader(tt.data))
		if !errors.Is(err, tt.err) {
			t.Errorf("%s: error incorrect. exp: %v, got: %v", tt.name, tt.err, err)
		}
	}
}

func TestReadRaw(t *testing.T) {
	img, err := loader.ReadRaw(bytes.NewReader([]byte{0o300, 0o025, 0o060, 0o000, 7}), 0o1000)
	if err != nil {
		t.Fatal(err)
	}
	if img.AutoStart || img.Start != 0o1000 {
		t.Errorf("start incorrect: %06o %v", img.Start, img.AutoStart)
	}
	words := img.Blocks[0].Words()
	exp := []uint16{0o012700, 0o060, 7}
	if len(words) != len(exp) {
		t.Fatalf("word count incorrect. exp: %d, got: %d", len(exp), len(words))
	}
	for i := range exp {
		if words[i] != exp[i] {
			t.Errorf("word %d incorrect. exp: %06o, got: %06o", i, exp[i], words[i])
		}
	}

	if _, err := loader.ReadRaw(bytes.NewReader(nil), 0); !errors.Is(err, loader.ErrEmpty) {
		t.Errorf("empty image error incorrect. exp: %v, got: %v", loader.ErrEmpty, err)
	}
	if _, err := loader.ReadRaw(bytes.NewReader(make([]byte, 4)), 0o177776); !errors.Is(err, loader.ErrFormat) {
		t.Errorf("oversized image error incorrect. exp: %v, got: %v", loader.ErrFormat, err)
	}
}
