// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rowfilter

import (
	"strconv"

	"github.com/cockroachdb/errors"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokArg // ?N
	tokOp  // == != < <= > >=
	tokIn
	tokNotIn
	tokAnd
	tokOr
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	op   Op
	arg  int
}

type lexer struct {
	src []rune
	pos int
}

func newLexer(s string) *lexer { return &lexer{src: []rune(s)} }

func (l *lexer) peekRune() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) && (l.src[l.pos] == ' ' || l.src[l.pos] == '\t' || l.src[l.pos] == '\n') {
		l.pos++
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentRune(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9') || r == '.'
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF}, nil
	}
	r := l.src[l.pos]
	switch {
	case r == '(':
		l.pos++
		return token{kind: tokLParen}, nil
	case r == ')':
		l.pos++
		return token{kind: tokRParen}, nil
	case r == ',':
		l.pos++
		return token{kind: tokComma}, nil
	case r == '?':
		l.pos++
		start := l.pos
		for l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '9' {
			l.pos++
		}
		if start == l.pos {
			return token{}, errors.Newf("rowfilter: expected digits after '?' at offset %d", start)
		}
		n, err := strconv.Atoi(string(l.src[start:l.pos]))
		if err != nil {
			return token{}, errors.Wrapf(err, "rowfilter: invalid argument placeholder")
		}
		return token{kind: tokArg, arg: n}, nil
	case r == '=':
		if l.peekAt(1) == '=' {
			l.pos += 2
			return token{kind: tokOp, op: OpEQ}, nil
		}
		return token{}, errors.Newf("rowfilter: unexpected '=' at offset %d, expected '=='", l.pos)
	case r == '!':
		if l.peekAt(1) == '=' {
			l.pos += 2
			return token{kind: tokOp, op: OpNE}, nil
		}
		if matchKeyword(l.src[l.pos:], "!in") {
			l.pos += 3
			return token{kind: tokNotIn}, nil
		}
		return token{}, errors.Newf("rowfilter: unexpected '!' at offset %d", l.pos)
	case r == '<':
		if l.peekAt(1) == '=' {
			l.pos += 2
			return token{kind: tokOp, op: OpLE}, nil
		}
		l.pos++
		return token{kind: tokOp, op: OpLT}, nil
	case r == '>':
		if l.peekAt(1) == '=' {
			l.pos += 2
			return token{kind: tokOp, op: OpGE}, nil
		}
		l.pos++
		return token{kind: tokOp, op: OpGT}, nil
	case r == '&' && l.peekAt(1) == '&':
		l.pos += 2
		return token{kind: tokAnd}, nil
	case r == '|' && l.peekAt(1) == '|':
		l.pos += 2
		return token{kind: tokOr}, nil
	case isIdentStart(r):
		start := l.pos
		for l.pos < len(l.src) && isIdentRune(l.src[l.pos]) {
			l.pos++
		}
		text := string(l.src[start:l.pos])
		if text == "in" {
			return token{kind: tokIn}, nil
		}
		return token{kind: tokIdent, text: text}, nil
	default:
		return token{}, errors.Newf("rowfilter: unexpected character %q at offset %d", r, l.pos)
	}
}

func (l *lexer) peekAt(n int) rune {
	if l.pos+n >= len(l.src) {
		return 0
	}
	return l.src[l.pos+n]
}

func matchKeyword(s []rune, kw string) bool {
	if len(s) < len(kw) {
		return false
	}
	for i, r := range kw {
		if s[i] != r {
			return false
		}
	}
	return true
}
