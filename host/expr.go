// Copyright 2026 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"errors"
	"strconv"
)

var errExprParse = errors.New("expression syntax error")

type tokenType byte

const (
	tokenEnd tokenType = iota
	tokenNumber
	tokenIdentifier
	tokenOp
	tokenLParen
	tokenRParen
)

type token struct {
	typ tokenType
	num int64  // tokenNumber
	str string // tokenIdentifier and tokenOp
}

// A binaryOp is an infix operator. Higher prec binds tighter, and all
// binary operators associate to the left.
type binaryOp struct {
	prec int
	eval func(a, b int64) int64
}

var binaryOps = map[string]binaryOp{
	"|":  {1, func(a, b int64) int64 { return a | b }},
	"^":  {2, func(a, b int64) int64 { return a ^ b }},
	"&":  {3, func(a, b int64) int64 { return a & b }},
	"<<": {4, func(a, b int64) int64 { return a << uint(b&63) }},
	">>": {4, func(a, b int64) int64 { return a >> uint(b&63) }},
	"+":  {5, func(a, b int64) int64 { return a + b }},
	"-":  {5, func(a, b int64) int64 { return a - b }},
	"*":  {6, func(a, b int64) int64 { return a * b }},
	"/":  {6, divide},
	"%":  {6, modulo},
}

var unaryOps = map[string]func(a int64) int64{
	"-": func(a int64) int64 { return -a },
	"+": func(a int64) int64 { return a },
	"~": func(a int64) int64 { return ^a },
}

type resolver interface {
	resolveIdentifier(s string) (int64, error)
}

// An exprParser evaluates the arithmetic expressions accepted wherever the
// monitor expects an address or value. Numbers are octal unless hexMode is
// set. Identifiers are resolved by the caller, which is how register names
// and '.' take on values.
type exprParser struct {
	hexMode bool

	tokens []token
	pos    int
	r      resolver
}

func newExprParser() *exprParser {
	return &exprParser{}
}

// Parse evaluates expr, resolving identifiers through r.
func (p *exprParser) Parse(expr string, r resolver) (int64, error) {
	defer p.reset()

	if err := p.scan(tstring(expr)); err != nil {
		return 0, err
	}

	p.r = r
	v, err := p.evalBinary(1)
	if err != nil {
		return 0, err
	}
	if p.peek().typ != tokenEnd {
		return 0, errExprParse
	}
	return v, nil
}

func (p *exprParser) reset() {
	p.tokens = p.tokens[:0]
	p.pos = 0
	p.r = nil
}

//
// scanner
//

// scan splits an expression into tokens.
func (p *exprParser) scan(t tstring) error {
	for {
		t = t.consumeWhitespace()
		if len(t) == 0 {
			return nil
		}

		var tok token
		var err error
		c := t[0]
		switch {
		case decimal(c) || c == '$':
			tok, t, err = p.scanNumber(t)
		case c == '\'':
			tok, t, err = scanChar(t)
		case c == '%' && p.operandExpected():
			tok, t, err = scanBinary(t)
		case identifierStart(c):
			tok, t, err = p.scanIdentifier(t)
		case c == '(':
			tok, t = token{typ: tokenLParen}, t.consume(1)
		case c == ')':
			tok, t = token{typ: tokenRParen}, t.consume(1)
		case c == '<' || c == '>':
			if len(t) < 2 || t[1] != c {
				return errExprParse
			}
			tok, t = token{typ: tokenOp, str: string(t[:2])}, t.consume(2)
		default:
			op := string(t[:1])
			if _, ok := binaryOps[op]; !ok && unaryOps[op] == nil {
				return errExprParse
			}
			tok, t = token{typ: tokenOp, str: op}, t.consume(1)
		}
		if err != nil {
			return err
		}
		p.tokens = append(p.tokens, tok)
	}
}

// operandExpected reports whether the next token begins an operand rather
// than continuing an expression with an operator.
func (p *exprParser) operandExpected() bool {
	if len(p.tokens) == 0 {
		return true
	}
	prev := p.tokens[len(p.tokens)-1].typ
	return prev == tokenOp || prev == tokenLParen
}

// scanNumber scans a number. Numbers are octal unless hex mode is on. A
// trailing '.' marks a decimal number, and the prefixes $, 0x, 0o, 0d and
// 0b select a radix explicitly.
func (p *exprParser) scanNumber(t tstring) (token, tstring, error) {
	base, digit := 8, decimal
	if p.hexMode {
		base, digit = 16, hexadecimal
	}

	num, prefixed := t, false
	switch {
	case num[0] == '$':
		base, digit, num, prefixed = 16, hexadecimal, num.consume(1), true
	case len(num) > 1 && num[0] == '0':
		prefixed = true
		switch num[1] {
		case 'x':
			base, digit = 16, hexadecimal
		case 'o':
			base, digit = 8, octal
		case 'd':
			base, digit = 10, decimal
		case 'b':
			base, digit = 2, binary
		default:
			prefixed = false
		}
		if prefixed {
			num = num.consume(2)
		}
	}

	digits, remain := num.consumeWhile(digit)
	if digits == "" {
		return token{}, t, errExprParse
	}
	if !prefixed && len(remain) > 0 && remain[0] == '.' {
		base, remain = 10, remain.consume(1)
	}

	v, err := strconv.ParseInt(string(digits), base, 64)
	if err != nil {
		return token{}, t, errExprParse
	}
	return token{typ: tokenNumber, num: v}, remain, nil
}

// scanBinary scans a binary literal written %1010.
func scanBinary(t tstring) (token, tstring, error) {
	digits, remain := t.consume(1).consumeWhile(binary)
	if digits == "" {
		return token{}, t, errExprParse
	}
	v, err := strconv.ParseInt(string(digits), 2, 64)
	if err != nil {
		return token{}, t, errExprParse
	}
	return token{typ: tokenNumber, num: v}, remain, nil
}

// scanChar scans a character constant written 'c'.
func scanChar(t tstring) (token, tstring, error) {
	if len(t) < 3 || t[2] != '\'' {
		return token{}, t, errExprParse
	}
	return token{typ: tokenNumber, num: int64(t[1])}, t.consume(3), nil
}

// scanIdentifier scans a name. In hex mode a name made only of hex digits
// is a number.
func (p *exprParser) scanIdentifier(t tstring) (token, tstring, error) {
	id, remain := t.consumeWhile(identifier)
	if p.hexMode && id.all(hexadecimal) {
		return p.scanNumber(t)
	}
	return token{typ: tokenIdentifier, str: string(id)}, remain, nil
}

//
// evaluator
//

func (p *exprParser) peek() token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return token{typ: tokenEnd}
}

func (p *exprParser) next() token {
	tok := p.peek()
	if tok.typ != tokenEnd {
		p.pos++
	}
	return tok
}

// evalBinary evaluates a run of operands joined by binary operators whose
// precedence is at least minPrec.
func (p *exprParser) evalBinary(minPrec int) (int64, error) {
	lhs, err := p.evalOperand()
	if err != nil {
		return 0, err
	}

	for {
		tok := p.peek()
		if tok.typ != tokenOp {
			return lhs, nil
		}
		op, ok := binaryOps[tok.str]
		if !ok || op.prec < minPrec {
			return lhs, nil
		}
		p.pos++

		rhs, err := p.evalBinary(op.prec + 1)
		if err != nil {
			return 0, err
		}
		lhs = op.eval(lhs, rhs)
	}
}

// evalOperand evaluates a number, an identifier, a parenthesized
// expression or a unary operator applied to an operand.
func (p *exprParser) evalOperand() (int64, error) {
	tok := p.next()
	switch tok.typ {
	case tokenNumber:
		return tok.num, nil

	case tokenIdentifier:
		return p.r.resolveIdentifier(tok.str)

	case tokenLParen:
		v, err := p.evalBinary(1)
		if err != nil {
			return 0, err
		}
		if p.next().typ != tokenRParen {
			return 0, errExprParse
		}
		return v, nil

	case tokenOp:
		if fn := unaryOps[tok.str]; fn != nil {
			v, err := p.evalOperand()
			if err != nil {
				return 0, err
			}
			return fn(v), nil
		}
	}
	return 0, errExprParse
}

func divide(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func modulo(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	return a % b
}

//
// tstring
//

type tstring string

func (t tstring) consume(n int) tstring {
	return t[n:]
}

func (t tstring) consumeWhitespace() tstring {
	return t.consume(t.scanWhile(whitespace))
}

func (t tstring) scanWhile(fn func(c byte) bool) int {
	i := 0
	for ; i < len(t) && fn(t[i]); i++ {
	}
	return i
}

func (t tstring) all(fn func(c byte) bool) bool {
	return t.scanWhile(fn) == len(t)
}

func (t tstring) consumeWhile(fn func(c byte) bool) (consumed, remain tstring) {
	i := t.scanWhile(fn)
	return t[:i], t[i:]
}

func whitespace(c byte) bool {
	return c == ' ' || c == '\t'
}

func decimal(c byte) bool {
	return c >= '0' && c <= '9'
}

func octal(c byte) bool {
	return c >= '0' && c <= '7'
}

func hexadecimal(c byte) bool {
	return decimal(c) || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}

func binary(c byte) bool {
	return c == '0' || c == '1'
}

func identifierStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == '.'
}

func identifier(c byte) bool {
	return identifierStart(c) || decimal(c)
}
