// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package device implements the memories and peripherals that attach to
// the bus: RAM and ROM, the console teletype, the paper tape reader and
// punch, and the line clock.
package device

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Errors
var (
	ErrMemoryOutOfBounds = errors.New("memory access out of bounds")
	ErrMemoryAlignment   = errors.New("memory base and size must be even")
)

// RAM is read-write memory occupying a contiguous range of bus addresses.
type RAM struct {
	mu    sync.RWMutex
	base  uint16
	words []uint16
}

// NewRAM creates size bytes of zeroed memory starting at address base.
func NewRAM(base uint16, size int) (*RAM, error) {
	if err := checkRange(base, size); err != nil {
		return nil, err
	}
	return &RAM{base: base, words: make([]uint16, size/2)}, nil
}

func checkRange(base uint16, size int) error {
	switch {
	case base&1 != 0 || size&1 != 0:
		return ErrMemoryAlignment
	case size <= 0 || int(base)+size > 0x10000:
		return fmt.Errorf("%w: %d bytes at %06o", ErrMemoryOutOfBounds, size, base)
	}
	return nil
}

// Base returns the lowest address of the memory.
func (m *RAM) Base() uint16 {
	return m.base
}

// Size returns the size of the memory in bytes.
func (m *RAM) Size() int {
	return len(m.words) * 2
}

func (m *RAM) index(addr uint16) (int, bool) {
	if addr < m.base {
		return 0, false
	}
	i := int(addr-m.base) >> 1
	return i, i < len(m.words)
}

// Reset leaves memory contents intact.
func (m *RAM) Reset() {}

// TryRead returns the word at addr if addr lies within the memory.
func (m *RAM) TryRead(addr uint16) (uint16, bool) {
	i, ok := m.index(addr)
	if !ok {
		return 0, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.words[i], true
}

// TryWriteWord stores a word at addr if addr lies within the memory.
func (m *RAM) TryWriteWord(addr uint16, v uint16) bool {
	i, ok := m.index(addr)
	if ok {
		m.mu.Lock()
		m.words[i] = v
		m.mu.Unlock()
	}
	return ok
}

// TryWriteByte stores a byte at addr if addr lies within the memory.
func (m *RAM) TryWriteByte(addr uint16, v byte) bool {
	i, ok := m.index(addr)
	if ok {
		m.mu.Lock()
		m.words[i] = mergeByte(m.words[i], addr, v)
		m.mu.Unlock()
	}
	return ok
}

// LoadWords copies words into memory starting at addr, bypassing the
// bus. It is used to preload memory before the processor starts.
func (m *RAM) LoadWords(addr uint16, words []uint16) error {
	i, ok := m.index(addr)
	if !ok || addr&1 != 0 || i+len(words) > len(m.words) {
		return fmt.Errorf("%w: %d words at %06o", ErrMemoryOutOfBounds, len(words), addr)
	}
	m.mu.Lock()
	copy(m.words[i:], words)
	m.mu.Unlock()
	return nil
}

// ROM is read-only memory. Writes to a ROM address are accepted and
// ignored.
type ROM struct {
	base  uint16
	words []uint16
	log   logrus.FieldLogger
}

// NewROM creates a ROM at address base holding a copy of words.
func NewROM(base uint16, words []uint16, log logrus.FieldLogger) (*ROM, error) {
	if err := checkRange(base, len(words)*2); err != nil {
		return nil, err
	}
	if log == nil {
		log = discard()
	}
	return &ROM{base: base, words: append([]uint16(nil), words...), log: log}, nil
}

// Base returns the lowest address of the ROM.
func (m *ROM) Base() uint16 {
	return m.base
}

// Size returns the size of the ROM in bytes.
func (m *ROM) Size() int {
	return len(m.words) * 2
}

func (m *ROM) index(addr uint16) (int, bool) {
	if addr < m.base {
		return 0, false
	}
	i := int(addr-m.base) >> 1
	return i, i < len(m.words)
}

func (m *ROM) Reset() {}

func (m *ROM) TryRead(addr uint16) (uint16, bool) {
	i, ok := m.index(addr)
	if !ok {
		return 0, false
	}
	return m.words[i], true
}

func (m *ROM) TryWriteWord(addr uint16, v uint16) bool {
	_, ok := m.index(addr)
	if ok {
		m.log.WithField("addr", fmt.Sprintf("%06o", addr)).Debug("write to rom ignored")
	}
	return ok
}

func (m *ROM) TryWriteByte(addr uint16, v byte) bool {
	return m.TryWriteWord(addr&^1, uint16(v))
}

// mergeByte replaces the byte of w selected by addr's low bit.
func mergeByte(w uint16, addr uint16, v byte) uint16 {
	if addr&1 != 0 {
		return w&0x00ff | uint16(v)<<8
	}
	return w&0xff00 | uint16(v)
}

func discard() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}
