// Package parser converts transform source text into expression trees.
//
// The grammar is a small operator-precedence language:
//
//	expr   := term (('+'|'-') term)*
//	term   := factor (('*'|'/') factor)*
//	factor := NUMBER | STRING | IDENT | IDENT '.' IDENT
//	        | IDENT '(' (expr (',' expr)*)? ')' | '(' expr ')'
//
// plus comparison operators at the lowest binding power. A transform body
// is one or more statements separated by newlines or ';', the last of
// which may be 'return expr'. Malformed input is reported as a *Error
// value, never a panic.
package parser

import (
	"strconv"

	"github.com/weftdb/weft/internal/expr"
)

// Binding powers, lowest first. Higher binds tighter.
const (
	bpNone    = 0
	bpCompare = 10
	bpSum     = 20
	bpProduct = 30
	bpUnary   = 40
)

var binaryOps = map[tokenKind]struct {
	op expr.Operator
	bp int
}{
	tokenEq:    {expr.OpEq, bpCompare},
	tokenNe:    {expr.OpNe, bpCompare},
	tokenLt:    {expr.OpLt, bpCompare},
	tokenLe:    {expr.OpLe, bpCompare},
	tokenGt:    {expr.OpGt, bpCompare},
	tokenGe:    {expr.OpGe, bpCompare},
	tokenPlus:  {expr.OpAdd, bpSum},
	tokenMinus: {expr.OpSub, bpSum},
	tokenStar:  {expr.OpMul, bpProduct},
	tokenSlash: {expr.OpDiv, bpProduct},
}

type parser struct {
	tokens []token
	pos    int
}

// Parse parses a single expression.
// Trailing tokens after the expression are an error.
func Parse(src string) (expr.Expression, error) {
	tokens, lerr := lex(src)
	if lerr != nil {
		return nil, lerr
	}
	p := &parser{tokens: tokens}
	p.skipSeparators()

	e, err := p.parseExpr(bpNone)
	if err != nil {
		return nil, err
	}

	p.skipSeparators()
	if tok := p.peek(); tok.kind != tokenEOF {
		return nil, errAt(tok.line, tok.col, "unexpected %s after expression", tok.kind)
	}
	return e, nil
}

// ParseProgram parses a transform body: one or more statements separated
// by newlines or ';'. Only the final statement may be a return.
func ParseProgram(src string) ([]expr.Expression, error) {
	tokens, lerr := lex(src)
	if lerr != nil {
		return nil, lerr
	}
	p := &parser{tokens: tokens}

	var stmts []expr.Expression
	for {
		p.skipSeparators()
		if p.peek().kind == tokenEOF {
			break
		}

		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)

		if tok := p.peek(); tok.kind != tokenSemi && tok.kind != tokenEOF {
			return nil, errAt(tok.line, tok.col, "unexpected %s after statement", tok.kind)
		}
	}

	if len(stmts) == 0 {
		tok := p.peek()
		return nil, errAt(tok.line, tok.col, "empty transform body")
	}

	// Return statements terminate the body.
	for i, s := range stmts {
		if _, ok := s.(expr.Return); ok && i != len(stmts)-1 {
			return nil, errAt(1, 1, "return must be the final statement")
		}
	}

	return stmts, nil
}

func (p *parser) parseStatement() (expr.Expression, error) {
	if tok := p.peek(); tok.kind == tokenReturn {
		p.next()
		e, err := p.parseExpr(bpNone)
		if err != nil {
			return nil, err
		}
		return expr.Return{Expr: e}, nil
	}
	return p.parseExpr(bpNone)
}

// parseExpr is the Pratt loop: parse a prefix expression, then fold in
// binary operators while their binding power exceeds minBP.
func (p *parser) parseExpr(minBP int) (expr.Expression, error) {
	left, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.peek()
		entry, ok := binaryOps[tok.kind]
		if !ok || entry.bp <= minBP {
			return left, nil
		}
		p.next()

		right, err := p.parseExpr(entry.bp)
		if err != nil {
			return nil, err
		}
		left = expr.BinaryOp{Left: left, Operator: entry.op, Right: right}
	}
}

func (p *parser) parsePrefix() (expr.Expression, error) {
	tok := p.next()
	switch tok.kind {
	case tokenNumber:
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, errAt(tok.line, tok.col, "invalid number %q", tok.text)
		}
		return expr.Literal{Value: expr.Number(f)}, nil

	case tokenString:
		return expr.Literal{Value: expr.String(tok.text)}, nil

	case tokenIdent:
		return p.parseIdent(tok)

	case tokenMinus:
		operand, err := p.parseUnaryOperand(tok)
		if err != nil {
			return nil, err
		}
		return expr.UnaryOp{Operator: expr.OpNeg, Operand: operand}, nil

	case tokenBang:
		operand, err := p.parseUnaryOperand(tok)
		if err != nil {
			return nil, err
		}
		return expr.UnaryOp{Operator: expr.OpNot, Operand: operand}, nil

	case tokenLParen:
		e, err := p.parseExpr(bpNone)
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokenRParen {
			return nil, errAt(closing.line, closing.col, "expected ')' but found %s", closing.kind)
		}
		return e, nil

	case tokenEOF, tokenSemi:
		return nil, errAt(tok.line, tok.col, "unexpected end of input: expected an operand")

	default:
		return nil, errAt(tok.line, tok.col, "unexpected %s: expected an operand", tok.kind)
	}
}

func (p *parser) parseUnaryOperand(opTok token) (expr.Expression, error) {
	if tok := p.peek(); tok.kind == tokenEOF || tok.kind == tokenSemi {
		return nil, errAt(opTok.line, opTok.col, "operator %q has no operand", opTok.text)
	}
	return p.parseExpr(bpUnary)
}

// parseIdent handles the three identifier forms: a bare variable, a dotted
// field access (Schema.field), and a function call.
func (p *parser) parseIdent(ident token) (expr.Expression, error) {
	switch p.peek().kind {
	case tokenDot:
		p.next()
		field := p.next()
		if field.kind != tokenIdent {
			return nil, errAt(field.line, field.col, "expected field name after '%s.'", ident.text)
		}
		return expr.FieldAccess{Object: ident.text, Field: field.text}, nil

	case tokenLParen:
		p.next()
		args, err := p.parseCallArgs(ident)
		if err != nil {
			return nil, err
		}
		return expr.FunctionCall{Name: ident.text, Args: args}, nil

	default:
		return expr.Variable{Name: ident.text}, nil
	}
}

func (p *parser) parseCallArgs(ident token) ([]expr.Expression, error) {
	var args []expr.Expression

	if p.peek().kind == tokenRParen {
		p.next()
		return args, nil
	}

	for {
		if tok := p.peek(); tok.kind == tokenEOF || tok.kind == tokenSemi {
			return nil, errAt(ident.line, ident.col, "unterminated call to %q: missing ')'", ident.text)
		}

		arg, err := p.parseExpr(bpNone)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		switch tok := p.next(); tok.kind {
		case tokenComma:
			// next argument
		case tokenRParen:
			return args, nil
		case tokenEOF, tokenSemi:
			return nil, errAt(ident.line, ident.col, "unterminated call to %q: missing ')'", ident.text)
		default:
			return nil, errAt(tok.line, tok.col, "expected ',' or ')' in call to %q", ident.text)
		}
	}
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) skipSeparators() {
	for p.peek().kind == tokenSemi {
		p.pos++
	}
}
