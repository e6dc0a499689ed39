// Copyright 2018 The CUE Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package expr

import (
	"fmt"
	"strconv"
	"strings"

	"blockdsl.dev/go/blockerrors"
	"blockdsl.dev/go/token"
)

// parser is a recursive-descent, precedence-climbing parser for the
// grammar in spec.md §4.2. Precedence, low to high:
//
//	?:  ||  &&  |  ^  &  == !=  < > <= >=  << >>  + -  * / %  unary
type parser struct {
	s     Scanner
	tok   Token
	src   string
	path  []string
	err   blockerrors.Error
}

// Parse parses a single expression and returns its AST. On the first
// syntax error it stops and returns a blockerrors.Error describing it;
// Parse never returns a partial/best-effort tree.
func Parse(src string, path []string) (Node, blockerrors.Error) {
	p := &parser{src: src, path: path}
	p.s.Init(src)
	p.advance()
	n := p.parseTernary()
	if p.err != nil {
		return nil, p.err
	}
	if p.tok.Kind != EOF {
		return nil, p.failf(p.tok.Off, "unexpected %q after expression", p.tok.Lit)
	}
	return n, nil
}

func (p *parser) advance() {
	p.tok = p.s.Scan()
}

func (p *parser) failf(off int, format string, args ...interface{}) blockerrors.Error {
	if p.err == nil {
		p.err = blockerrors.NewAt(blockerrors.ExpressionError, p.path, token.Pos_(off), format, args...)
	}
	return p.err
}

func (p *parser) parseTernary() Node {
	if p.err != nil {
		return nil
	}
	cond := p.parseLogicalOr()
	if p.err != nil || p.tok.Kind != QUESTION {
		return cond
	}
	off := p.tok.Off
	p.advance()
	then := p.parseTernary()
	if p.err != nil {
		return nil
	}
	if p.tok.Kind != COLON {
		p.failf(p.tok.Off, "expected ':' in ternary expression, got %q", p.tok.Lit)
		return nil
	}
	p.advance()
	els := p.parseTernary()
	if p.err != nil {
		return nil
	}
	return &CondExpr{Offset: off, Cond: cond, Then: then, Else: els}
}

func (p *parser) binaryLevel(next func() Node, kinds ...Kind) Node {
	x := next()
	for p.err == nil {
		if !containsKind(kinds, p.tok.Kind) {
			return x
		}
		op := p.tok.Kind
		off := p.tok.Off
		p.advance()
		y := next()
		if p.err != nil {
			return nil
		}
		x = &BinaryExpr{Offset: off, Op: op, X: x, Y: y}
	}
	return nil
}

func containsKind(ks []Kind, k Kind) bool {
	for _, x := range ks {
		if x == k {
			return true
		}
	}
	return false
}

func (p *parser) parseLogicalOr() Node  { return p.binaryLevel(p.parseLogicalAnd, LOR) }
func (p *parser) parseLogicalAnd() Node { return p.binaryLevel(p.parseBitOr, LAND) }
func (p *parser) parseBitOr() Node      { return p.binaryLevel(p.parseBitXor, PIPE) }
func (p *parser) parseBitXor() Node     { return p.binaryLevel(p.parseBitAnd, CARET) }
func (p *parser) parseBitAnd() Node     { return p.binaryLevel(p.parseEquality, AMP) }
func (p *parser) parseEquality() Node   { return p.binaryLevel(p.parseRelational, EQ, NEQ) }
func (p *parser) parseRelational() Node { return p.binaryLevel(p.parseShift, LT, GT, LE, GE) }
func (p *parser) parseShift() Node      { return p.binaryLevel(p.parseAdditive, SHL, SHR) }
func (p *parser) parseAdditive() Node   { return p.binaryLevel(p.parseMultiplicative, PLUS, MINUS) }
func (p *parser) parseMultiplicative() Node {
	return p.binaryLevel(p.parseUnary, STAR, SLASH, PCT)
}

func (p *parser) parseUnary() Node {
	if p.err != nil {
		return nil
	}
	switch p.tok.Kind {
	case PLUS, MINUS, BANG, TILDE:
		op := p.tok.Kind
		off := p.tok.Off
		p.advance()
		x := p.parseUnary()
		if p.err != nil {
			return nil
		}
		return &UnaryExpr{Offset: off, Op: op, X: x}
	case INCR, DECR:
		p.failf(p.tok.Off, "%q is not a supported operator", p.tok.Lit)
		return nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() Node {
	if p.err != nil {
		return nil
	}
	switch p.tok.Kind {
	case INT, FLOAT:
		return p.parseNumber()
	case LPAREN:
		p.advance()
		x := p.parseTernary()
		if p.err != nil {
			return nil
		}
		if p.tok.Kind != RPAREN {
			p.failf(p.tok.Off, "expected ')', got %q", p.tok.Lit)
			return nil
		}
		p.advance()
		return x
	case IDENT:
		off := p.tok.Off
		name := p.tok.Lit
		p.advance()
		if p.tok.Kind == LPAREN {
			return p.parseCall(off, name)
		}
		return &Ident{Offset: off, Name: name}
	case INCR, DECR:
		p.failf(p.tok.Off, "%q is not a supported operator", p.tok.Lit)
		return nil
	default:
		p.failf(p.tok.Off, "unexpected token %q", p.tok.Lit)
		return nil
	}
}

func (p *parser) parseCall(off int, name string) Node {
	p.advance() // consume '('
	var args []Node
	if p.tok.Kind != RPAREN {
		for {
			a := p.parseTernary()
			if p.err != nil {
				return nil
			}
			args = append(args, a)
			if p.tok.Kind == COMMA {
				p.advance()
				continue
			}
			break
		}
	}
	if p.tok.Kind != RPAREN {
		p.failf(p.tok.Off, "expected ')' to close call to %q, got %q", name, p.tok.Lit)
		return nil
	}
	p.advance()
	return &CallExpr{Offset: off, Name: name, Args: args}
}

func (p *parser) parseNumber() Node {
	tok := p.tok
	off := tok.Off
	lit := tok.Lit
	if tok.Kind == FLOAT {
		p.advance()
		v, err := strconv.ParseFloat(trimFloatSuffix(lit), 64)
		if err != nil {
			p.failf(off, "invalid float literal %q: %v", lit, err)
			return nil
		}
		return &NumberLit{Offset: off, IsFloat: true, Value: v}
	}
	p.advance()
	v, err := parseIntLiteral(lit)
	if err != nil {
		p.failf(off, "invalid integer literal %q: %v", lit, err)
		return nil
	}
	return &NumberLit{Offset: off, IsFloat: false, Value: float64(v)}
}

func trimFloatSuffix(lit string) string {
	return strings.TrimRight(lit, "fFlL")
}

func parseIntLiteral(lit string) (int64, error) {
	trimmed := strings.TrimRight(lit, "uUlL")
	base := 10
	switch {
	case strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X"):
		base = 16
		trimmed = trimmed[2:]
	case len(trimmed) > 1 && trimmed[0] == '0':
		base = 8
		trimmed = trimmed[1:]
	}
	if trimmed == "" {
		return 0, nil
	}
	return strconv.ParseInt(trimmed, base, 64)
}

// describeErr returns err's message, or "" for a nil error.
func describeErr(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprint(err)
}
