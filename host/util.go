// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"fmt"
	"strings"
)

func codeString(words []uint16) string {
	s := make([]string, len(words))
	for i, w := range words {
		s[i] = fmt.Sprintf("%06o", w)
	}
	return strings.Join(s, " ")
}

func stringToBool(s string) (bool, error) {
	s = strings.ToLower(s)
	switch s {
	case "0", "false", "off":
		return false, nil
	case "1", "true", "on":
		return true, nil
	default:
		return false, fmt.Errorf("invalid bool value '%s'", s)
	}
}

func wordToBuf(v uint16, b []byte) {
	for i := 5; i >= 0; i-- {
		b[i] = '0' + byte(v&7)
		v >>= 3
	}
}

func toPrintableChar(v byte) byte {
	v &= 0o177
	switch {
	case v >= 32 && v < 127:
		return v
	default:
		return '.'
	}
}

func indentWrap(indent int, s string) string {
	const width = 76
	pad := strings.Repeat(" ", indent)

	var b strings.Builder
	n := 0
	for _, w := range strings.Fields(s) {
		switch {
		case n == 0:
			b.WriteString(pad)
			n = indent
		case n+1+len(w) > width:
			b.WriteString("\n")
			b.WriteString(pad)
			n = indent
		default:
			b.WriteByte(' ')
			n++
		}
		b.WriteString(w)
		n += len(w)
	}
	return b.String()
}
