// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rowfilter

import (
	"github.com/cockroachdb/errors"
)

// Parse parses the filter grammar from spec.md §4.2:
//
//	expr  := or
//	or    := and ('||' and)*
//	and   := atom ('&&' atom)*
//	atom  := '(' or ')' | col op value | col op col | col 'in' '(' list ')'
//
// "value" is an argument placeholder ?N; a column on the right-hand side
// gives a ColumnToColumn comparison. "col" may be a dotted join path. A single-placeholder IN list (`col in ?0`) is kept as ColumnToArg
// with Op=IN (spec.md §9's decision: IN requires an array-typed argument); a
// literal parenthesized list of placeholders (`col in (?0, ?1)`) is
// desugared into an Or of equalities (NOT IN into an And of inequalities),
// since both forms are semantically OR/AND-of-equality and the AST has no
// separate "list of scalar args" node.
func Parse(s string) (Filter, error) {
	p := &parser{lex: newLexer(s)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	f, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, errors.Newf("rowfilter: unexpected trailing input in filter %q", s)
	}
	return f, nil
}

type parser struct {
	lex *lexer
	tok token
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) parseOr() (Filter, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []Filter{first}
	for p.tok.kind == tokOr {
		if err := p.advance(); err != nil {
			return nil, err
		}
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return Or{Children: children}, nil
}

func (p *parser) parseAnd() (Filter, error) {
	first, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	children := []Filter{first}
	for p.tok.kind == tokAnd {
		if err := p.advance(); err != nil {
			return nil, err
		}
		next, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return And{Children: children}, nil
}

func (p *parser) parseAtom() (Filter, error) {
	if p.tok.kind == tokLParen {
		if err := p.advance(); err != nil {
			return nil, err
		}
		f, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, errors.New("rowfilter: expected ')'")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return f, nil
	}
	if p.tok.kind != tokIdent {
		return nil, errors.Newf("rowfilter: expected column name or '(', got token kind %d", p.tok.kind)
	}
	col := p.tok.text
	if err := p.advance(); err != nil {
		return nil, err
	}

	switch p.tok.kind {
	case tokIn, tokNotIn:
		negated := p.tok.kind == tokNotIn
		if err := p.advance(); err != nil {
			return nil, err
		}
		return p.parseInList(col, negated)
	case tokOp:
		op := p.tok.op
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind == tokArg {
			arg := p.tok.arg
			if err := p.advance(); err != nil {
				return nil, err
			}
			return ColumnToArg{Column: col, Op: op, ArgNum: arg}, nil
		}
		if p.tok.kind == tokIdent {
			col2 := p.tok.text
			if err := p.advance(); err != nil {
				return nil, err
			}
			return ColumnToColumn{Column: col, Op: op, Column2: col2}, nil
		}
		return nil, errors.Newf("rowfilter: expected argument placeholder or column after operator for column %q", col)
	default:
		return nil, errors.Newf("rowfilter: expected operator or 'in'/'!in' after column %q", col)
	}
}

func (p *parser) parseInList(col string, negated bool) (Filter, error) {
	if p.tok.kind == tokArg {
		arg := p.tok.arg
		if err := p.advance(); err != nil {
			return nil, err
		}
		op := OpIN
		if negated {
			op = OpNotIN
		}
		return ColumnToArg{Column: col, Op: op, ArgNum: arg}, nil
	}
	if p.tok.kind != tokLParen {
		return nil, errors.Newf("rowfilter: expected '(' or argument placeholder after 'in' for column %q", col)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	var args []int
	for {
		if p.tok.kind != tokArg {
			return nil, errors.Newf("rowfilter: expected argument placeholder in 'in' list for column %q", col)
		}
		args = append(args, p.tok.arg)
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind == tokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if p.tok.kind != tokRParen {
		return nil, errors.New("rowfilter: expected ')' closing 'in' list")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	eqOp, neOp := OpEQ, OpNE
	var children []Filter
	for _, a := range args {
		op := eqOp
		if negated {
			op = neOp
		}
		children = append(children, ColumnToArg{Column: col, Op: op, ArgNum: a})
	}
	if len(children) == 1 {
		return children[0], nil
	}
	if negated {
		return And{Children: children}, nil
	}
	return Or{Children: children}, nil
}
