// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package expr parses and evaluates pixel-wise band-algebra expressions
// like "(nir-red)/(nir+red)".
//
// Grammar (standard precedence, left associative):
//
//	expr    = term { ("+" | "-") term }
//	term    = unary { ("*" | "/") unary }
//	unary   = "-" unary | primary
//	primary = number | band | "(" expr ")"
//
// Band identifiers are lowercase names validated against the canonical
// vocabulary by the caller. Division guards denominators within epsilon of
// zero by substituting epsilon (sign preserved), so a normalized
// difference over zero-valued bands yields 0, never Inf or NaN from the
// division itself. NaN samples (nodata) propagate through arithmetic and
// come out as nodata pixels.
package expr

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Epsilon replaces near-zero denominators during evaluation.
const Epsilon = 1e-10

// maxLength bounds accepted expressions; anything longer is hostile input.
const maxLength = 512

// Expression is a parsed band-algebra expression, safe for concurrent use.
type Expression struct {
	root  node
	bands []string
}

type node interface {
	eval(bands map[string][]float64, idx int) float64
}

type literal float64

func (l literal) eval(map[string][]float64, int) float64 { return float64(l) }

type bandRef string

func (b bandRef) eval(bands map[string][]float64, idx int) float64 {
	samples, ok := bands[string(b)]
	if !ok || idx >= len(samples) {
		return math.NaN()
	}
	return samples[idx]
}

type binary struct {
	op    byte
	left  node
	right node
}

func (n *binary) eval(bands map[string][]float64, idx int) float64 {
	l := n.left.eval(bands, idx)
	r := n.right.eval(bands, idx)
	switch n.op {
	case '+':
		return l + r
	case '-':
		return l - r
	case '*':
		return l * r
	default: // '/'
		if math.Abs(r) < Epsilon {
			r = math.Copysign(Epsilon, r)
		}
		return l / r
	}
}

type negate struct{ inner node }

func (n *negate) eval(bands map[string][]float64, idx int) float64 {
	return -n.inner.eval(bands, idx)
}

// Parse compiles an expression string.
func Parse(input string) (*Expression, error) {
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("expr: empty expression")
	}
	if len(input) > maxLength {
		return nil, fmt.Errorf("expr: expression longer than %d bytes", maxLength)
	}

	p := &parser{input: input}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return nil, fmt.Errorf("expr: unexpected %q at offset %d", p.input[p.pos], p.pos)
	}

	bandSet := make(map[string]bool)
	collectBands(root, bandSet)
	bands := make([]string, 0, len(bandSet))
	for b := range bandSet {
		bands = append(bands, b)
	}
	sort.Strings(bands)
	return &Expression{root: root, bands: bands}, nil
}

// Bands returns the band names the expression references, sorted. Tile
// compute fetches exactly these.
func (e *Expression) Bands() []string { return e.bands }

// EvalPixel evaluates the expression for the sample at idx in each band
// window.
func (e *Expression) EvalPixel(bands map[string][]float64, idx int) float64 {
	return e.root.eval(bands, idx)
}

// Eval evaluates the expression over n pixels into a fresh slice.
func (e *Expression) Eval(bands map[string][]float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = e.root.eval(bands, i)
	}
	return out
}

func collectBands(n node, into map[string]bool) {
	switch v := n.(type) {
	case bandRef:
		into[string(v)] = true
	case *binary:
		collectBands(v.left, into)
		collectBands(v.right, into)
	case *negate:
		collectBands(v.inner, into)
	}
}

// --- recursive descent parser ---

type parser struct {
	input string
	pos   int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		op := p.peek()
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &binary{op: op, left: left, right: right}
	}
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		op := p.peek()
		if op != '*' && op != '/' {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &binary{op: op, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	p.skipSpace()
	if p.peek() == '-' {
		p.pos++
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &negate{inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	p.skipSpace()
	c := p.peek()
	switch {
	case c == '(':
		p.pos++
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ')' {
			return nil, fmt.Errorf("expr: missing closing parenthesis at offset %d", p.pos)
		}
		p.pos++
		return inner, nil
	case c >= '0' && c <= '9' || c == '.':
		return p.parseNumber()
	case unicode.IsLower(rune(c)):
		return p.parseBand()
	case c == 0:
		return nil, fmt.Errorf("expr: unexpected end of expression")
	default:
		return nil, fmt.Errorf("expr: unexpected %q at offset %d", c, p.pos)
	}
}

func (p *parser) parseNumber() (node, error) {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c >= '0' && c <= '9') || c == '.' {
			p.pos++
			continue
		}
		break
	}
	v, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return nil, fmt.Errorf("expr: bad number %q at offset %d", p.input[start:p.pos], start)
	}
	return literal(v), nil
}

func (p *parser) parseBand() (node, error) {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' {
			p.pos++
			continue
		}
		break
	}
	return bandRef(p.input[start:p.pos]), nil
}
