// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"io"
	"os"
	"sync"

	"github.com/beevik/term"
)

// A Keyboard reads keys typed at the host terminal. Keys normally flow to
// the monitor's command reader. While the processor runs, the monitor
// captures the keyboard and each key is delivered to the emulated console
// instead, with the terminal switched to raw input mode.
type Keyboard struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	mu     sync.Mutex
	target func(c byte)

	fd      int
	isTerm  bool
	restore *term.State
}

// NewKeyboard creates a keyboard that reads from in. If in is a terminal,
// captured keys are read in raw mode.
func NewKeyboard(in io.Reader) *Keyboard {
	k := &Keyboard{fd: -1}
	k.pr, k.pw = io.Pipe()
	if f, ok := in.(*os.File); ok {
		k.fd = int(f.Fd())
		k.isTerm = term.IsTerminal(k.fd)
	}
	go k.pump(in)
	return k
}

// Read reads keys that were not captured by the processor.
func (k *Keyboard) Read(p []byte) (int, error) {
	return k.pr.Read(p)
}

func (k *Keyboard) pump(in io.Reader) {
	var buf [1]byte
	for {
		n, err := in.Read(buf[:])
		if n > 0 {
			k.mu.Lock()
			target := k.target
			k.mu.Unlock()

			if target != nil {
				target(buf[0])
			} else if _, werr := k.pw.Write(buf[:1]); werr != nil {
				return
			}
		}
		if err != nil {
			k.pw.CloseWithError(err)
			return
		}
	}
}

// capture routes subsequent keys to fn until release is called.
func (k *Keyboard) capture(fn func(c byte)) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.target = fn
	if k.isTerm && k.restore == nil {
		if s, err := term.MakeRawInput(k.fd); err == nil {
			k.restore = s
		}
	}
}

func (k *Keyboard) release() {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.target = nil
	if k.restore != nil {
		term.Restore(k.fd, k.restore)
		k.restore = nil
	}
}
