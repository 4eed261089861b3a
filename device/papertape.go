// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/beevik/gopdp11/bus"
	"github.com/sirupsen/logrus"
)

// Paper tape reader and punch (PC11) register addresses and interrupt
// assignments.
const (
	PRS = 0o177550 // reader status
	PRB = 0o177552 // reader buffer
	PPS = 0o177554 // punch status
	PPB = 0o177556 // punch buffer

	ReaderVector      = 0o070
	PunchVector       = 0o074
	PaperTapePriority = 4
)

// PaperTape is a high speed paper tape reader and punch. Setting the
// reader enable bit starts the reader, which fetches one frame from the
// mounted tape on the device's own goroutine and then interrupts. The
// punch likewise completes each frame asynchronously.
type PaperTape struct {
	mu    sync.Mutex
	port  *bus.Port
	log   logrus.FieldLogger
	tape  *bufio.Reader
	punch io.Writer
	prs   uint16
	prb   uint16
	pps   uint16

	readReq  chan struct{}
	punchReq chan byte
}

// NewPaperTape creates a reader and punch. Either tape or punch may be nil,
// in which case that half of the device reports an error.
func NewPaperTape(tape io.Reader, punch io.Writer, log logrus.FieldLogger) *PaperTape {
	if log == nil {
		log = discard()
	}
	p := &PaperTape{
		log:      log,
		punch:    punch,
		readReq:  make(chan struct{}, 1),
		punchReq: make(chan byte, 1),
	}
	p.Mount(tape)
	p.Reset()
	return p
}

// Connect is called when the paper tape is attached to the bus.
func (p *PaperTape) Connect(port *bus.Port) {
	p.port = port
}

// Mount places a new tape in the reader. A nil tape empties the reader.
func (p *PaperTape) Mount(tape io.Reader) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if tape == nil {
		p.tape = nil
		p.prs |= csrError
	} else {
		p.tape = bufio.NewReader(tape)
		p.prs &^= csrError
	}
}

// Run services reader and punch requests until ctx is done.
func (p *PaperTape) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.readReq:
			if err := p.read(ctx); err != nil {
				return err
			}
		case c := <-p.punchReq:
			if err := p.write(ctx, c); err != nil {
				return err
			}
		}
	}
}

func (p *PaperTape) read(ctx context.Context) error {
	p.mu.Lock()
	var c byte
	err := io.EOF
	if p.tape != nil {
		c, err = p.tape.ReadByte()
	}
	switch {
	case err == nil:
		p.prb = uint16(c)
		p.prs |= csrDone
	case errors.Is(err, io.EOF):
		p.prs |= csrError
	default:
		p.log.WithError(err).Warn("paper tape read failed")
		p.prs |= csrError
	}
	p.prs &^= csrBusy
	r := p.raise(p.prs, ReaderVector)
	p.mu.Unlock()

	return p.await(ctx, r)
}

func (p *PaperTape) write(ctx context.Context, c byte) error {
	p.mu.Lock()
	if p.punch != nil {
		if _, err := p.punch.Write([]byte{c}); err != nil {
			p.log.WithError(err).Warn("paper tape punch failed")
			p.pps |= csrError
		}
	}
	p.pps |= csrDone
	r := p.raise(p.pps, PunchVector)
	p.mu.Unlock()

	return p.await(ctx, r)
}

// raise posts an interrupt request for a completed operation if interrupts
// are enabled. Must be called with p.mu held.
func (p *PaperTape) raise(csr uint16, vector uint16) *bus.Request {
	if p.port == nil || csr&csrIntEnb == 0 {
		return nil
	}
	return p.port.Raise(vector, PaperTapePriority)
}

// await blocks until the processor takes the interrupt. A withdrawn request
// is abandoned.
func (p *PaperTape) await(ctx context.Context, r *bus.Request) error {
	if r == nil {
		return nil
	}
	err := p.port.Await(ctx, r)
	switch {
	case err == nil, errors.Is(err, bus.ErrReset):
		return nil
	case ctx.Err() != nil:
		return nil
	default:
		return err
	}
}

// Reset stops the reader and clears both interrupt enables.
func (p *PaperTape) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prs &= csrError
	p.prb = 0
	p.pps = csrDone
	if p.punch == nil {
		p.pps |= csrError
	}
}

func (p *PaperTape) TryRead(addr uint16) (uint16, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch addr {
	case PRS:
		return p.prs, true
	case PRB:
		p.prs &^= csrDone
		p.updateInterrupt(p.prs, ReaderVector)
		return p.prb, true
	case PPS:
		return p.pps, true
	case PPB:
		return 0, true
	}
	return 0, false
}

func (p *PaperTape) TryWriteWord(addr uint16, v uint16) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch addr {
	case PRS:
		p.prs = p.prs&^csrIntEnb | v&csrIntEnb
		if v&csrGo != 0 && p.prs&(csrBusy|csrError) == 0 {
			p.prs = p.prs&^csrDone | csrBusy
			select {
			case p.readReq <- struct{}{}:
			default:
			}
		}
		p.updateInterrupt(p.prs, ReaderVector)
	case PRB:
	case PPS:
		p.pps = p.pps&^csrIntEnb | v&csrIntEnb
		p.updateInterrupt(p.pps, PunchVector)
	case PPB:
		if p.pps&csrDone != 0 {
			p.pps &^= csrDone
			p.updateInterrupt(p.pps, PunchVector)
			select {
			case p.punchReq <- byte(v):
			default:
			}
		}
	default:
		return false
	}
	return true
}

func (p *PaperTape) TryWriteByte(addr uint16, v byte) bool {
	if addr < PRS || addr > PPB+1 {
		return false
	}
	if addr&1 != 0 {
		return true
	}
	return p.TryWriteWord(addr, uint16(v))
}

// updateInterrupt requests an interrupt while a unit has interrupts enabled
// and is done or in error, and withdraws it once neither holds. Must be
// called with p.mu held.
func (p *PaperTape) updateInterrupt(csr uint16, vector uint16) {
	if p.port == nil {
		return
	}
	if csr&csrIntEnb != 0 && csr&(csrDone|csrError) != 0 {
		p.port.RequestInterrupt(vector, PaperTapePriority)
	} else {
		p.port.CancelInterrupt(vector)
	}
}
