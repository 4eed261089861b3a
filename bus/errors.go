// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bus

import (
	"errors"
	"fmt"
)

// Errors returned by bus transfers and interrupt requests.
var (
	ErrOddAddress = errors.New("odd address")
	ErrNoDevice   = errors.New("no device responded")
	ErrReset      = errors.New("interrupt request withdrawn")
)

// An Error describes a failed bus transfer. The processor turns an Error
// into a bus error trap.
type Error struct {
	Op     string // "read" or "write"
	Addr   uint16
	Master Master
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("bus %s at %06o by %s: %v", e.Op, e.Addr, e.Master, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
