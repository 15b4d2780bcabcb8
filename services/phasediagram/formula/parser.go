// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package formula

import (
	"fmt"
	"math"
	"strconv"
	"unicode"
)

// maxGroupDepth bounds parenthesis nesting so hostile input cannot recurse
// without limit.
const maxGroupDepth = 32

// Parse converts a chemical formula into element amounts.
//
// Description:
//
//	Parses element symbols with optional counts, nested groups in
//	(), [] or {}, and adduct separators ('·', '•', '*') with an optional
//	leading coefficient ("CuSO4·5H2O"). Repeated elements are summed.
//
// Inputs:
//
//	s - The formula string. Surrounding and interior whitespace is ignored.
//
// Outputs:
//
//	Amounts - Element symbol to count. Every count is positive.
//	error - Wraps ErrMalformedFormula (and ErrUnknownElement for unknown
//	        symbols) with the offending token and position.
//
// Examples:
//
//	Parse("Fe2O3")      // {Fe: 2, O: 3}
//	Parse("Ca(OH)2")    // {Ca: 1, O: 2, H: 2}
//	Parse("Li0.5CoO2")  // {Li: 0.5, Co: 1, O: 2}
func Parse(s string) (Amounts, error) {
	p := &parser{src: s, in: []rune(s)}
	p.skipSpace()
	if p.eof() {
		return nil, p.errorf("empty formula")
	}

	amounts, err := p.parseFormula(0)
	if err != nil {
		return nil, err
	}

	p.skipSpace()
	if !p.eof() {
		return nil, p.errorf("unexpected %q at position %d", p.peek(), p.pos)
	}
	return amounts, nil
}

// MustParse is Parse for formulas known to be valid at compile time.
// It panics on error.
func MustParse(s string) Amounts {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

type parser struct {
	src string
	in  []rune
	pos int
}

func (p *parser) parseFormula(depth int) (Amounts, error) {
	total := Amounts{}
	for {
		seg, err := p.parseSegment(depth)
		if err != nil {
			return nil, err
		}
		total.add(seg, 1)

		p.skipSpace()
		if p.eof() || !isAdductSeparator(p.peek()) {
			return total, nil
		}
		p.pos++
	}
}

func (p *parser) parseSegment(depth int) (Amounts, error) {
	p.skipSpace()

	multiplier := 1.0
	if !p.eof() && isNumberStart(p.peek()) {
		m, err := p.parseCount()
		if err != nil {
			return nil, err
		}
		multiplier = m
	}

	seg := Amounts{}
	groups := 0
	for {
		p.skipSpace()
		if p.eof() {
			break
		}
		r := p.peek()

		if isUpperASCII(r) {
			start := p.pos
			sym := p.parseSymbol()
			if !IsElement(sym) {
				return nil, fmt.Errorf("%w: %w %q at position %d in %q",
					ErrMalformedFormula, ErrUnknownElement, sym, start, p.src)
			}
			n, err := p.parseOptionalCount()
			if err != nil {
				return nil, err
			}
			seg[sym] += n
			groups++
			continue
		}

		if closer, ok := groupCloser(r); ok {
			if depth >= maxGroupDepth {
				return nil, p.errorf("groups nested deeper than %d", maxGroupDepth)
			}
			start := p.pos
			p.pos++
			inner, err := p.parseFormula(depth + 1)
			if err != nil {
				return nil, err
			}
			p.skipSpace()
			if p.eof() || p.peek() != closer {
				return nil, p.errorf("unbalanced %q opened at position %d", r, start)
			}
			p.pos++
			n, err := p.parseOptionalCount()
			if err != nil {
				return nil, err
			}
			seg.add(inner, n)
			groups++
			continue
		}

		if isGroupClose(r) || isAdductSeparator(r) {
			break
		}
		return nil, p.errorf("unexpected %q at position %d", r, p.pos)
	}

	if groups == 0 {
		return nil, p.errorf("expected element or group at position %d", p.pos)
	}
	if multiplier != 1 {
		scaled := Amounts{}
		scaled.add(seg, multiplier)
		seg = scaled
	}
	return seg, nil
}

// parseSymbol reads one uppercase letter followed by any lowercase letters.
func (p *parser) parseSymbol() string {
	start := p.pos
	p.pos++
	for !p.eof() && isLowerASCII(p.peek()) {
		p.pos++
	}
	return string(p.in[start:p.pos])
}

func (p *parser) parseOptionalCount() (float64, error) {
	if p.eof() || !isNumberStart(p.peek()) {
		return 1, nil
	}
	return p.parseCount()
}

func (p *parser) parseCount() (float64, error) {
	start := p.pos
	for !p.eof() && isDigit(p.peek()) {
		p.pos++
	}
	if !p.eof() && p.peek() == '.' {
		p.pos++
		for !p.eof() && isDigit(p.peek()) {
			p.pos++
		}
	}

	text := string(p.in[start:p.pos])
	n, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, p.errorf("invalid count %q at position %d", text, start)
	}
	if n <= 0 || math.IsInf(n, 0) {
		return 0, p.errorf("count %q at position %d must be positive", text, start)
	}
	return n, nil
}

func (p *parser) skipSpace() {
	for !p.eof() && unicode.IsSpace(p.peek()) {
		p.pos++
	}
}

func (p *parser) eof() bool { return p.pos >= len(p.in) }

func (p *parser) peek() rune { return p.in[p.pos] }

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s in %q", ErrMalformedFormula, fmt.Sprintf(format, args...), p.src)
}

func groupCloser(r rune) (rune, bool) {
	switch r {
	case '(':
		return ')', true
	case '[':
		return ']', true
	case '{':
		return '}', true
	}
	return 0, false
}

func isGroupClose(r rune) bool { return r == ')' || r == ']' || r == '}' }

func isAdductSeparator(r rune) bool { return r == '·' || r == '•' || r == '*' }

func isNumberStart(r rune) bool { return isDigit(r) || r == '.' }

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isUpperASCII(r rune) bool { return r >= 'A' && r <= 'Z' }

func isLowerASCII(r rune) bool { return r >= 'a' && r <= 'z' }
