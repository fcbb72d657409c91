package parser

import (
	"github.com/mna/roseau/lang/ast"
	"github.com/mna/roseau/lang/scanner"
	"github.com/mna/roseau/lang/token"
)

// binaryPrec returns the precedence of a binary operator, 0 for
// non-operators. Higher binds tighter.
func binaryPrec(k token.Kind) int {
	switch k {
	case token.COND_OR:
		return 1
	case token.COND_AND:
		return 2
	case token.OR:
		return 3
	case token.XOR:
		return 4
	case token.AND:
		return 5
	case token.EQL, token.NEQ, token.MATCH, token.UNMATCH:
		return 6
	case token.LT, token.GT, token.LE, token.GE:
		return 7
	case token.RANGE:
		return 8
	case token.PLUS, token.MINUS:
		return 9
	case token.STAR, token.SLASH, token.PERCENT:
		return 10
	}
	return 0
}

// expression parses a full expression: a ternary over the binary operator
// levels.
func (p *parser) expression() ast.Expr {
	cond := p.binary(1)
	if p.tok.Kind != token.QUESTION {
		return cond
	}
	p.advance()
	then := p.expression()
	p.expect(token.COLON)
	els := p.expression()
	return &ast.Ternary{Cond: cond, Then: then, Els: els}
}

func (p *parser) binary(minPrec int) ast.Expr {
	left := p.unary()
	for {
		prec := binaryPrec(p.tok.Kind)
		if prec < minPrec {
			return left
		}
		opTok := p.tok
		p.advance()
		p.skipNewlines()
		right := p.binary(prec + 1)
		left = &ast.Binary{Left: left, OpTok: opTok, Op: opTok.Kind, Right: right}
	}
}

func (p *parser) unary() ast.Expr {
	switch p.tok.Kind {
	case token.PLUS, token.MINUS, token.NOT_OP, token.NOT:
		opTok := p.tok
		p.advance()
		x := p.unary()
		return &ast.Unary{OpTok: opTok, Op: opTok.Kind, X: x}
	}
	return p.postfix(p.primary())
}

func (p *parser) postfix(x ast.Expr) ast.Expr {
	for {
		switch p.tok.Kind {
		case token.DOT:
			name, ntok := p.name()
			if p.tok.Kind == token.LPAREN {
				p.advance()
				args, rparen := p.callArgs()
				x = &ast.MethodCall{Recv: x, Name: name, NTok: ntok, Args: args, Rparen: rparen}
			} else {
				x = &ast.Access{Recv: x, Name: name, NTok: ntok}
			}

		case token.LBRACK:
			p.advance()
			idx := p.expression()
			rbrack := p.expect(token.RBRACK)
			x = &ast.Index{Recv: x, Idx: idx, Rbrack: rbrack.Pos}

		case token.LPAREN:
			p.advance()
			args, rparen := p.callArgs()
			x = &ast.Apply{Fn: x, Args: args, Rparen: rparen}

		case token.AS:
			p.advanceIn(scanner.ModeType)
			spec := p.typeSpec()
			p.popRefetch()
			x = &ast.Cast{X: x, Spec: spec}

		case token.IS:
			p.advanceIn(scanner.ModeType)
			spec := p.typeSpec()
			p.popRefetch()
			x = &ast.InstanceOf{X: x, Spec: spec}

		case token.WITH:
			x = p.withRedirs(x)

		default:
			return x
		}
	}
}

// callArgs parses a comma-separated argument list; the opening paren is
// already consumed.
func (p *parser) callArgs() ([]ast.Expr, token.Pos) {
	var args []ast.Expr
	p.skipNewlines()
	for p.tok.Kind != token.RPAREN {
		args = append(args, p.expression())
		p.skipNewlines()
		if !p.got(token.COMMA) {
			break
		}
		p.skipNewlines()
	}
	rparen := p.expect(token.RPAREN)
	return args, rparen.Pos
}

func (p *parser) primary() ast.Expr {
	switch p.tok.Kind {
	case token.INT:
		return p.intLit()

	case token.FLOAT:
		tok := p.tok
		v, err := scanner.ParseFloat(p.text())
		if err != nil {
			p.errorf(tok.Pos, ErrTokenFormat, "invalid float literal: %s", err)
		}
		p.advance()
		return &ast.FloatLit{Tok: tok, Val: v}

	case token.STRING:
		return p.stringLit()

	case token.REGEX:
		tok := p.tok
		raw := p.text()
		p.advance()
		return &ast.RegexLit{Tok: tok, Val: raw[2 : len(raw)-1]}

	case token.SIGNAL:
		tok := p.tok
		raw := p.text()
		p.advance()
		return &ast.SignalLit{Tok: tok, Name: raw[2 : len(raw)-1]}

	case token.APPLIED_NAME, token.SPECIAL_NAME:
		tok := p.tok
		name := p.text()[1:]
		p.advance()
		return &ast.Var{Tok: tok, Name: name}

	case token.IDENT:
		if p.inInterp > 0 {
			tok := p.tok
			name := p.text()
			p.advance()
			return &ast.Var{Tok: tok, Name: name}
		}

	case token.OPEN_DQUOTE:
		return p.stringExpr()

	case token.START_INTERP:
		return p.interpExpr()

	case token.START_SUB_CMD, token.START_PROC_SUB:
		return p.substitution()

	case token.LPAREN:
		lparen := p.tok.Pos
		p.advance()
		p.skipNewlines()
		first := p.expression()
		if p.tok.Kind == token.COMMA {
			elems := []ast.Expr{first}
			for p.got(token.COMMA) {
				p.skipNewlines()
				if p.tok.Kind == token.RPAREN {
					break
				}
				elems = append(elems, p.expression())
			}
			rparen := p.expect(token.RPAREN)
			return &ast.TupleLit{Lparen: lparen, Rparen: rparen.Pos, Elems: elems}
		}
		p.expect(token.RPAREN)
		return first

	case token.LBRACK:
		return p.arrayOrMap()

	case token.NEW:
		newPos := p.tok.Pos
		p.advanceIn(scanner.ModeType)
		spec := p.typeSpec()
		p.popRefetch()
		p.expect(token.LPAREN)
		args, rparen := p.callArgs()
		return &ast.New{NewPos: newPos, Spec: spec, Args: args, Rparen: rparen}

	case token.COMMAND:
		return p.commandLine()
	}

	p.errorf(p.tok.Pos, ErrNoViableAlter, "no viable alternative at %#v", p.tok.Kind)
	return nil
}

func (p *parser) intLit() ast.Expr {
	tok := p.tok
	v, suffix, err := scanner.ParseInt(p.text())
	if err != nil {
		p.errorf(tok.Pos, ErrTokenFormat, "invalid int literal: %s", err)
	}
	hint := "Int"
	switch suffix {
	case scanner.SuffixU:
		hint = "Uint32"
	case scanner.SuffixL:
		hint = "Int64"
	case scanner.SuffixUL:
		hint = "Uint64"
	case scanner.SuffixB:
		hint = "Byte"
	case scanner.SuffixS:
		hint = "Int16"
	case scanner.SuffixUS:
		hint = "Uint16"
	}
	p.advance()
	return &ast.IntLit{Tok: tok, Val: v, TypeHint: hint}
}

func (p *parser) stringLit() ast.Expr {
	tok := p.tok
	raw := p.text()
	var val string
	if len(raw) > 0 && raw[0] == '$' {
		val = scanner.UnquoteDollar(raw)
	} else {
		val = scanner.UnquoteSingle(raw)
	}
	p.advance()
	return &ast.StringLit{Tok: tok, Val: val}
}

// stringExpr parses a double-quoted string with interpolation; the current
// token is OPEN_DQUOTE.
func (p *parser) stringExpr() ast.Expr {
	open := p.tok.Pos
	n := &ast.StringExpr{Open: open}
	p.advanceIn(scanner.ModeDString)
	for {
		switch p.tok.Kind {
		case token.CLOSE_DQUOTE:
			n.Close = p.tok.Pos
			p.popAdvance()
			return n

		case token.STR_ELEMENT:
			n.Parts = append(n.Parts, &ast.StringLit{
				Tok: p.tok,
				Val: scanner.UnquoteElement(p.text()),
			})
			p.advance()

		case token.APPLIED_NAME, token.SPECIAL_NAME:
			tok := p.tok
			name := p.text()[1:]
			p.advance()
			n.Parts = append(n.Parts, &ast.Var{Tok: tok, Name: name})

		case token.START_INTERP:
			n.Parts = append(n.Parts, p.interpExpr())

		case token.START_SUB_CMD:
			n.Parts = append(n.Parts, p.substitution())

		default:
			p.mismatch(token.CLOSE_DQUOTE)
		}
	}
}

// interpExpr parses a ${...} interpolation; the current token is
// START_INTERP. Inside the braces, bare identifiers denote variables.
func (p *parser) interpExpr() ast.Expr {
	p.advanceIn(scanner.ModeInterp)
	p.inInterp++
	x := p.expression()
	p.inInterp--
	if p.tok.Kind != token.RBRACE {
		p.mismatch(token.RBRACE)
	}
	p.popAdvance()
	return x
}

// substitution parses a $(...) or @(...) form; the current token is the
// opener. The body is a full statement list evaluated in a child context.
func (p *parser) substitution() ast.Expr {
	start := p.tok
	n := &ast.Substitution{
		Start: start,
		Proc:  start.Kind == token.START_PROC_SUB,
	}
	p.advanceIn(scanner.ModeStmt)
	p.skipNewlines()
	for p.tok.Kind != token.RPAREN {
		if p.tok.Kind == token.EOF {
			p.mismatch(token.RPAREN)
		}
		n.Stmts = append(n.Stmts, p.statement())
		p.endOfStatement()
	}
	n.Rparen = p.tok.Pos
	p.popAdvance()
	return n
}

func (p *parser) arrayOrMap() ast.Expr {
	lbrack := p.tok.Pos
	p.advance()
	p.skipNewlines()
	first := p.expression()
	if p.tok.Kind == token.COLON {
		m := &ast.MapLit{Lbrack: lbrack}
		p.advance()
		p.skipNewlines()
		m.Keys = append(m.Keys, first)
		m.Vals = append(m.Vals, p.expression())
		for p.got(token.COMMA) {
			p.skipNewlines()
			m.Keys = append(m.Keys, p.expression())
			p.expect(token.COLON)
			p.skipNewlines()
			m.Vals = append(m.Vals, p.expression())
		}
		p.skipNewlines()
		rbrack := p.expect(token.RBRACK)
		m.Rbrack = rbrack.Pos
		return m
	}

	a := &ast.ArrayLit{Lbrack: lbrack, Elems: []ast.Expr{first}}
	for p.got(token.COMMA) {
		p.skipNewlines()
		if p.tok.Kind == token.RBRACK {
			break
		}
		a.Elems = append(a.Elems, p.expression())
	}
	p.skipNewlines()
	rbrack := p.expect(token.RBRACK)
	a.Rbrack = rbrack.Pos
	return a
}
