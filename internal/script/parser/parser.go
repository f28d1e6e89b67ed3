// Package parser implements a recursive-descent parser for the scripted
// payoff DSL described in spec §4.2: numeric literals, identifiers, 1-based
// array subscripting, arithmetic/comparison/short-circuit logical
// operators, IF/FOR control flow, NUMBER declarations, assignment, and the
// built-in functions of spec §4.4.
package parser

import (
	"fmt"

	"github.com/banachtech/orex/internal/script/ast"
)

// ParseError carries a source position, matching spec §7's ParseError taxon.
type ParseError struct {
	Line, Col int
	Msg       string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Col, e.Msg)
}

type Parser struct {
	lex  *lexer
	cur  token
	err  error
}

// Parse parses a full script (an implicit top-level sequence of statements,
// optionally wrapped in braces) and returns its AST root.
func Parse(src string) (*ast.Node, error) {
	p := &Parser{lex: newLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	var stmts []*ast.Node
	for p.cur.kind != tokEOF {
		s, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
		if p.isPunct(";") {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	return &ast.Node{Kind: ast.KindSequence, Children: stmts}, nil
}

func (p *Parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = t
	return nil
}

func (p *Parser) pos() ast.Pos { return ast.Pos{Line: p.cur.line, Col: p.cur.col} }

func (p *Parser) isPunct(s string) bool   { return p.cur.kind == tokPunct && p.cur.text == s }
func (p *Parser) isKeyword(s string) bool { return p.cur.kind == tokKeyword && p.cur.text == s }

func (p *Parser) errf(format string, args ...interface{}) error {
	return &ParseError{Line: p.cur.line, Col: p.cur.col, Msg: fmt.Sprintf(format, args...)}
}

func (p *Parser) expectPunct(s string) error {
	if !p.isPunct(s) {
		return p.errf("expected %q, got %q", s, p.cur.text)
	}
	return p.advance()
}

func (p *Parser) expectKeyword(s string) error {
	if !p.isKeyword(s) {
		return p.errf("expected %q, got %q", s, p.cur.text)
	}
	return p.advance()
}

// parseStatement dispatches on the leading token.
func (p *Parser) parseStatement() (*ast.Node, error) {
	switch {
	case p.isPunct("{"):
		return p.parseBlock()
	case p.isKeyword("NUMBER"):
		return p.parseDeclaration()
	case p.isKeyword("IF"):
		return p.parseIf()
	case p.isKeyword("FOR"):
		return p.parseFor()
	case p.isKeyword("REQUIRE"):
		return p.parseRequire()
	case p.cur.kind == tokIdent:
		return p.parseAssignOrCall()
	default:
		return nil, p.errf("unexpected token %q", p.cur.text)
	}
}

func (p *Parser) parseBlock() (*ast.Node, error) {
	pos := p.pos()
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	var stmts []*ast.Node
	for !p.isPunct("}") {
		s, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
		if p.isPunct(";") {
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return &ast.Node{Kind: ast.KindSequence, Pos: pos, Children: stmts}, nil
}

func (p *Parser) parseDeclaration() (*ast.Node, error) {
	pos := p.pos()
	if err := p.expectKeyword("NUMBER"); err != nil {
		return nil, err
	}
	var decls []*ast.Node
	for {
		if p.cur.kind != tokIdent {
			return nil, p.errf("expected identifier in declaration, got %q", p.cur.text)
		}
		name := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.isPunct("[") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			size, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct("]"); err != nil {
				return nil, err
			}
			decls = append(decls, &ast.Node{Kind: ast.KindDeclareArray, Pos: pos, Name: name, ArraySize: size})
		} else {
			decls = append(decls, &ast.Node{Kind: ast.KindDeclareScalar, Pos: pos, Name: name})
		}
		if p.isPunct(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if len(decls) == 1 {
		return decls[0], nil
	}
	return &ast.Node{Kind: ast.KindSequence, Pos: pos, Children: decls}, nil
}

func (p *Parser) parseIf() (*ast.Node, error) {
	pos := p.pos()
	if err := p.expectKeyword("IF"); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("THEN"); err != nil {
		return nil, err
	}
	thenStmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	node := &ast.Node{Kind: ast.KindIf, Pos: pos, Cond: cond, Then: thenStmt}
	if p.isPunct(";") {
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if p.isKeyword("ELSE") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		elseStmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		node.Else = elseStmt
	}
	return node, nil
}

func (p *Parser) parseFor() (*ast.Node, error) {
	pos := p.pos()
	if err := p.expectKeyword("FOR"); err != nil {
		return nil, err
	}
	if p.cur.kind != tokIdent {
		return nil, p.errf("expected loop variable name, got %q", p.cur.text)
	}
	name := p.cur.text
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.expectPunct("="); err != nil {
		return nil, err
	}
	from, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("TO"); err != nil {
		return nil, err
	}
	to, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	var step *ast.Node
	if p.isKeyword("STEP") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		step, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	} else {
		step = &ast.Node{Kind: ast.KindNumberLit, NumberLit: 1}
	}
	if err := p.expectKeyword("DO"); err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &ast.Node{Kind: ast.KindFor, Pos: pos, Name: name, From: from, To: to, Step: step, Body: body}, nil
}

func (p *Parser) parseRequire() (*ast.Node, error) {
	pos := p.pos()
	if err := p.expectKeyword("REQUIRE"); err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return &ast.Node{Kind: ast.KindRequire, Pos: pos, Cond: cond}, nil
}

// parseAssignOrCall handles `name = expr`, `name[expr] = expr`, and bare
// call-expression statements like `pay(...)`.
func (p *Parser) parseAssignOrCall() (*ast.Node, error) {
	pos := p.pos()
	name := p.cur.text
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.isPunct("[") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		idx, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("]"); err != nil {
			return nil, err
		}
		if err := p.expectPunct("="); err != nil {
			return nil, err
		}
		rhs, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.Node{Kind: ast.KindIndexedAssign, Pos: pos, Name: name, Index: idx, Right: rhs}, nil
	}
	if p.isPunct("=") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		rhs, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.Node{Kind: ast.KindAssign, Pos: pos, Name: name, Right: rhs}, nil
	}
	if p.isPunct("(") {
		call, err := p.parseCallArgs(name, pos)
		if err != nil {
			return nil, err
		}
		return call, nil
	}
	return nil, p.errf("expected '=' or '(' after %q", name)
}

func (p *Parser) parseCallArgs(name string, pos ast.Pos) (*ast.Node, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var args []*ast.Node
	for !p.isPunct(")") {
		a, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if p.isPunct(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return &ast.Node{Kind: ast.KindCall, Pos: pos, FuncName: name, Children: args}, nil
}

// ---- expression grammar ----

func (p *Parser) parseExpr() (*ast.Node, error) { return p.parseOr() }

func (p *Parser) parseOr() (*ast.Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("OR") {
		pos := p.pos()
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.Node{Kind: ast.KindOr, Pos: pos, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (*ast.Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("AND") {
		pos := p.pos()
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &ast.Node{Kind: ast.KindAnd, Pos: pos, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (*ast.Node, error) {
	if p.isKeyword("NOT") {
		pos := p.pos()
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &ast.Node{Kind: ast.KindNot, Pos: pos, Left: inner}, nil
	}
	return p.parseComparison()
}

var cmpOps = map[string]ast.CmpOp{
	"==": ast.CmpEq, "!=": ast.CmpNe,
	"<": ast.CmpLt, "<=": ast.CmpLe,
	">": ast.CmpGt, ">=": ast.CmpGe,
}

func (p *Parser) parseComparison() (*ast.Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if p.cur.kind == tokPunct {
		if op, ok := cmpOps[p.cur.text]; ok {
			pos := p.pos()
			if err := p.advance(); err != nil {
				return nil, err
			}
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			return &ast.Node{Kind: ast.KindCompare, Pos: pos, CmpOp: op, Left: left, Right: right}, nil
		}
	}
	return left, nil
}

func (p *Parser) parseAdditive() (*ast.Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.isPunct("+") || p.isPunct("-") {
		op := ast.OpAdd
		if p.cur.text == "-" {
			op = ast.OpSub
		}
		pos := p.pos()
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &ast.Node{Kind: ast.KindBinaryOp, Pos: pos, BinOp: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseTerm() (*ast.Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isPunct("*") || p.isPunct("/") {
		op := ast.OpMul
		if p.cur.text == "/" {
			op = ast.OpDiv
		}
		pos := p.pos()
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &ast.Node{Kind: ast.KindBinaryOp, Pos: pos, BinOp: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (*ast.Node, error) {
	if p.isPunct("-") {
		pos := p.pos()
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.Node{Kind: ast.KindUnaryOp, Pos: pos, Left: inner}, nil
	}
	return p.parsePower()
}

func (p *Parser) parsePower() (*ast.Node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.isPunct("^") {
		pos := p.pos()
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.Node{Kind: ast.KindBinaryOp, Pos: pos, BinOp: ast.OpPow, Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *Parser) parsePrimary() (*ast.Node, error) {
	pos := p.pos()
	switch {
	case p.cur.kind == tokNumber:
		v := p.cur.num
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.Node{Kind: ast.KindNumberLit, Pos: pos, NumberLit: v}, nil

	case p.cur.kind == tokString:
		s := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ast.Node{Kind: ast.KindStringLit, Pos: pos, StringLit: s}, nil

	case p.isPunct("("):
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return inner, nil

	case p.isKeyword("SIZE"):
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		if p.cur.kind != tokIdent {
			return nil, p.errf("SIZE expects an array name")
		}
		name := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return &ast.Node{Kind: ast.KindSize, Pos: pos, Name: name}, nil

	case p.isKeyword("DATEINDEX"):
		return p.parseDateIndex(pos)

	case p.isKeyword("SORT"), p.isKeyword("PERMUTE"):
		return p.parseSortPermute(pos)

	case p.cur.kind == tokIdent:
		name := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.isPunct("(") {
			return p.parseCallArgs(name, pos)
		}
		if p.isPunct("[") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct("]"); err != nil {
				return nil, err
			}
			return &ast.Node{Kind: ast.KindArrayIndex, Pos: pos, Name: name, Index: idx}, nil
		}
		return &ast.Node{Kind: ast.KindVarRef, Pos: pos, Name: name}, nil

	default:
		return nil, p.errf("unexpected token %q in expression", p.cur.text)
	}
}

func (p *Parser) parseDateIndex(pos ast.Pos) (*ast.Node, error) {
	if err := p.expectKeyword("DATEINDEX"); err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	eventExpr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(","); err != nil {
		return nil, err
	}
	if p.cur.kind != tokIdent {
		return nil, p.errf("DATEINDEX expects an array name")
	}
	arrName := p.cur.text
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.expectPunct(","); err != nil {
		return nil, err
	}
	if p.cur.kind != tokIdent {
		return nil, p.errf("DATEINDEX expects an op name (EQ, GEQ, GT)")
	}
	var op ast.DateIndexOp
	switch p.cur.text {
	case "EQ":
		op = ast.DateIndexEQ
	case "GEQ":
		op = ast.DateIndexGEQ
	case "GT":
		op = ast.DateIndexGT
	default:
		return nil, p.errf("unknown DATEINDEX op %q", p.cur.text)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return &ast.Node{Kind: ast.KindDateIndex, Pos: pos, Left: eventExpr, Name: arrName, DateIdxOp: op}, nil
}

func (p *Parser) parseSortPermute(pos ast.Pos) (*ast.Node, error) {
	kind := ast.KindSort
	kw := "SORT"
	if p.isKeyword("PERMUTE") {
		kind = ast.KindPermute
		kw = "PERMUTE"
	}
	if err := p.expectKeyword(kw); err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var names []string
	for {
		if p.cur.kind != tokIdent {
			return nil, p.errf("%s expects array names", kw)
		}
		names = append(names, p.cur.text)
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.isPunct(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	if len(names) < 1 || len(names) > 3 {
		return nil, p.errf("%s expects 1 to 3 array names, got %d", kw, len(names))
	}
	return &ast.Node{Kind: kind, Pos: pos, Names: names}, nil
}
