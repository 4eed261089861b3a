// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"fmt"
	"testing"
)

type registers map[string]int64

func (r registers) resolveIdentifier(s string) (int64, error) {
	if v, ok := r[s]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("identifier '%s' not found", s)
}

func TestExprParse(t *testing.T) {
	r := registers{"pc": 0o1000, ".": 0o1000, "r1": 7}

	tests := []struct {
		expr string
		exp  int64
	}{
		{"17", 0o17},
		{"17.", 17},
		{"99.", 99},
		{"$7F", 0x7f},
		{"0x10", 16},
		{"0d10", 10},
		{"0o10", 8},
		{"0b101", 5},
		{"%101", 5},
		{"%101 + %11", 8},
		{"10 % 3", 2},
		{"(1 + 2) * 3", 9},
		{"1 + 2 * 3", 7},
		{"-1", -1},
		{"~0 & 177777", 0o177777},
		{"1 << 10.", 1024},
		{"400 >> 1", 0o200},
		{"'A'", 'A'},
		{"pc + 4", 0o1004},
		{". - 2", 0o776},
		{"r1 * 2", 14},
		{"7 / 0", 0},
		{"10 - 2 - 1", 5},
		{"100 / 4 / 2", 0o10},
		{"-(2 + 1) * 2", -6},
		{"1 | 6 & 3", 3},
	}

	p := newExprParser()
	for _, tt := range tests {
		v, err := p.Parse(tt.expr, r)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tt.expr, err)
			continue
		}
		if v != tt.exp {
			t.Errorf("%q: result incorrect. exp: %o, got: %o", tt.expr, tt.exp, v)
		}
	}
}

func TestExprHexMode(t *testing.T) {
	r := registers{"pc": 0o1000}

	p := newExprParser()
	p.hexMode = true

	tests := []struct {
		expr string
		exp  int64
	}{
		{"10", 16},
		{"ff", 255},
		{"10.", 10},
		{"0o17", 0o17},
		{"pc", 0o1000},
	}
	for _, tt := range tests {
		v, err := p.Parse(tt.expr, r)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tt.expr, err)
			continue
		}
		if v != tt.exp {
			t.Errorf("%q: result incorrect. exp: %d, got: %d", tt.expr, tt.exp, v)
		}
	}
}

func TestExprErrors(t *testing.T) {
	r := registers{}
	p := newExprParser()

	for _, expr := range []string{"8", "19", "(1 + 2", "1 + 2)", "1 +", "%", "%2", "0x", "'A", "sp", "1 # 2"} {
		if _, err := p.Parse(expr, r); err == nil {
			t.Errorf("%q: expected an error", expr)
		}
	}
}
