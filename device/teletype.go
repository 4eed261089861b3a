// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/beevik/gopdp11/bus"
	"github.com/sirupsen/logrus"
)

// Console teletype (KL11) register addresses and interrupt assignments.
const (
	TKS = 0o177560 // keyboard status
	TKB = 0o177562 // keyboard buffer
	TPS = 0o177564 // printer status
	TPB = 0o177566 // printer buffer

	TeletypeRxVector = 0o060
	TeletypeTxVector = 0o064
	TeletypePriority = 4
)

// Status register bits shared by the character devices.
const (
	csrError  = 0o100000
	csrBusy   = 0o004000
	csrDone   = 0o000200
	csrIntEnb = 0o000100
	csrGo     = 0o000001
)

// Teletype is the console terminal interface. Characters typed on the
// keyboard are queued and presented one at a time in the keyboard buffer.
// Characters written to the printer buffer are sent to the output writer
// immediately, so the printer is always ready.
type Teletype struct {
	mu    sync.Mutex
	port  *bus.Port
	in    io.Reader
	out   io.Writer
	log   logrus.FieldLogger
	tks   uint16
	tkb   uint16
	tps   uint16
	queue []byte
}

// NewTeletype creates a console teletype. Keyboard input is read from in,
// which may be nil if characters are only supplied through Type. Printer
// output goes to out.
func NewTeletype(in io.Reader, out io.Writer, log logrus.FieldLogger) *Teletype {
	if out == nil {
		out = io.Discard
	}
	if log == nil {
		log = discard()
	}
	return &Teletype{in: in, out: out, log: log, tps: csrDone}
}

// Connect is called when the teletype is attached to the bus.
func (t *Teletype) Connect(p *bus.Port) {
	t.port = p
}

// Type queues characters as if they were typed on the keyboard. It may be
// called from any goroutine.
func (t *Teletype) Type(chars ...byte) {
	t.mu.Lock()
	t.queue = append(t.queue, chars...)
	t.advance()
	t.mu.Unlock()
}

// Pending returns the number of typed characters not yet read by the
// processor.
func (t *Teletype) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.queue)
	if t.tks&csrDone != 0 {
		n++
	}
	return n
}

// Run copies characters from the keyboard reader into the keyboard queue
// until ctx is done or the reader is exhausted.
func (t *Teletype) Run(ctx context.Context) error {
	if t.in == nil {
		<-ctx.Done()
		return nil
	}

	chars := make(chan byte)
	go func() {
		defer close(chars)
		var buf [1]byte
		for {
			_, err := t.in.Read(buf[:])
			if err != nil {
				if !errors.Is(err, io.EOF) {
					t.log.WithError(err).Warn("console input failed")
				}
				return
			}
			select {
			case chars <- buf[0]:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-chars:
			if !ok {
				<-ctx.Done()
				return nil
			}
			t.Type(c)
		}
	}
}

// Reset clears the interrupt enables and any character in the keyboard
// buffer. Characters still queued remain queued.
func (t *Teletype) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tks = 0
	t.tkb = 0
	t.tps = csrDone
	t.advance()
}

func (t *Teletype) TryRead(addr uint16) (uint16, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch addr {
	case TKS:
		return t.tks, true
	case TKB:
		v := t.tkb
		t.tks &^= csrDone
		t.updateInterrupt(t.tks, TeletypeRxVector)
		t.advance()
		return v, true
	case TPS:
		return t.tps, true
	case TPB:
		return 0, true
	}
	return 0, false
}

func (t *Teletype) TryWriteWord(addr uint16, v uint16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch addr {
	case TKS:
		t.tks = t.tks&^csrIntEnb | v&csrIntEnb
		t.updateInterrupt(t.tks, TeletypeRxVector)
	case TKB:
	case TPS:
		t.tps = t.tps&^csrIntEnb | v&csrIntEnb
		t.updateInterrupt(t.tps, TeletypeTxVector)
	case TPB:
		if _, err := t.out.Write([]byte{byte(v) & 0x7f}); err != nil {
			t.log.WithError(err).Warn("console output failed")
		}
		t.updateInterrupt(t.tps, TeletypeTxVector)
	default:
		return false
	}
	return true
}

func (t *Teletype) TryWriteByte(addr uint16, v byte) bool {
	if addr < TKS || addr > TPB+1 {
		return false
	}
	if addr&1 != 0 {
		return true
	}
	return t.TryWriteWord(addr, uint16(v))
}

// advance moves the next queued character into the keyboard buffer once
// the previous character has been read. Must be called with t.mu held.
func (t *Teletype) advance() {
	if t.tks&csrDone != 0 || len(t.queue) == 0 {
		return
	}
	t.tkb = uint16(t.queue[0])
	t.queue = t.queue[1:]
	t.tks |= csrDone
	t.updateInterrupt(t.tks, TeletypeRxVector)
}

// updateInterrupt requests an interrupt while a status register has both
// its done and interrupt enable bits set, and withdraws it otherwise.
func (t *Teletype) updateInterrupt(csr uint16, vector uint16) {
	if t.port == nil {
		return
	}
	if csr&csrIntEnb != 0 && csr&csrDone != 0 {
		t.port.RequestInterrupt(vector, TeletypePriority)
	} else {
		t.port.CancelInterrupt(vector)
	}
}
