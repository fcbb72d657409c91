package parser

import (
	"github.com/mna/roseau/lang/ast"
	"github.com/mna/roseau/lang/scanner"
	"github.com/mna/roseau/lang/token"
)

func (p *parser) statement() ast.Stmt {
	switch p.tok.Kind {
	case token.VAR, token.LET:
		return p.varDecl()
	case token.FUNCTION:
		return p.funcDecl()
	case token.IF:
		return p.ifStmt()
	case token.WHILE:
		return p.whileStmt()
	case token.DO:
		return p.doWhileStmt()
	case token.FOR:
		return p.forStmt()
	case token.CASE:
		return p.caseStmt()
	case token.TRY:
		return p.tryStmt()
	case token.BREAK:
		tok := p.tok
		p.advance()
		n := &ast.Break{Tok: tok}
		if !p.atStmtEnd() {
			n.Val = p.expression()
		}
		return n
	case token.CONTINUE:
		tok := p.tok
		p.advance()
		return &ast.Continue{Tok: tok}
	case token.RETURN:
		tok := p.tok
		p.advance()
		n := &ast.Return{Tok: tok}
		if !p.atStmtEnd() {
			n.Val = p.expression()
		}
		return n
	case token.THROW:
		tok := p.tok
		p.advance()
		return &ast.Throw{Tok: tok, Val: p.expression()}
	case token.ASSERT:
		pos := p.tok.Pos
		p.advance()
		n := &ast.Assert{AssertPos: pos, Cond: p.expression()}
		if p.got(token.COLON) {
			n.Msg = p.expression()
		}
		return n
	case token.IMPORT_ENV:
		return p.importEnv()
	case token.EXPORT_ENV:
		return p.exportEnv()
	case token.ALIAS:
		return p.typeAlias()
	case token.SOURCE:
		return p.sourceStmt()
	case token.INTERFACE:
		return p.interfaceDecl()
	case token.LBRACE:
		return p.block()
	case token.COMMAND:
		// a bareword immediately followed by () declares a command
		if end := int(p.tok.End()); end+1 < p.file.Size() &&
			p.file.Src()[end] == '(' && p.file.Src()[end+1] == ')' {
			return p.udcDecl()
		}
	}
	return p.exprStmt()
}

// atStmtEnd reports whether the current token terminates a statement.
func (p *parser) atStmtEnd() bool {
	switch p.tok.Kind {
	case token.NEWLINE, token.SEMI, token.RBRACE, token.EOF:
		return true
	}
	return false
}

// exprStmt parses an expression statement, which may turn out to be an
// assignment or an increment/decrement.
func (p *parser) exprStmt() ast.Stmt {
	x := p.expression()
	switch {
	case p.tok.Kind.IsAssignOp():
		opTok := p.tok
		p.advance()
		p.skipNewlines()
		right := p.expression()
		return &ast.Assign{Left: x, OpTok: opTok, Op: opTok.Kind, Right: right}

	case p.tok.Kind == token.INC || p.tok.Kind == token.DEC:
		opTok := p.tok
		op := token.PLUS_EQ
		if opTok.Kind == token.DEC {
			op = token.MINUS_EQ
		}
		p.advance()
		one := &ast.IntLit{Tok: opTok, Val: 1, TypeHint: "Int"}
		return &ast.Assign{Left: x, OpTok: opTok, Op: op, Right: one}
	}
	return &ast.ExprStmt{X: x}
}

func (p *parser) block() *ast.Block {
	lbrace := p.expect(token.LBRACE)
	b := &ast.Block{Lbrace: lbrace.Pos}
	p.skipNewlines()
	for p.tok.Kind != token.RBRACE {
		if p.tok.Kind == token.EOF {
			p.mismatch(token.RBRACE)
		}
		b.Stmts = append(b.Stmts, p.statement())
		p.endOfStatement()
	}
	b.Rbrace = p.tok.Pos
	p.advance()
	return b
}

func (p *parser) varDecl() ast.Stmt {
	declTok := p.tok
	p.advance() // var or let, current token is then refetched as the name
	p.refetchName()
	n := &ast.VarDecl{
		DeclPos:  declTok.Pos,
		ReadOnly: declTok.Kind == token.LET,
		Name:     p.text(),
		NTok:     p.tok,
	}
	p.popAdvance()
	if p.got(token.COLON) {
		p.scn.PushMode(scanner.ModeType)
		p.refetch(scanner.ModeType)
		n.Spec = p.typeSpec()
		p.popRefetch()
	}
	if p.got(token.EQ) {
		p.skipNewlines()
		n.Init = p.expression()
	}
	if n.Spec == nil && n.Init == nil {
		p.errorf(declTok.Pos, ErrNoViableAlter, "variable %s requires a type or an initializer", n.Name)
	}
	return n
}

// refetchName rescans the current token as a single identifier under the
// name mode, leaving the mode pushed.
func (p *parser) refetchName() {
	p.scn.PushMode(scanner.ModeName)
	p.tok = p.scn.Refetch(p.tok, scanner.ModeName)
	if p.tok.Kind != token.IDENT {
		p.mismatch(token.IDENT)
	}
}

func (p *parser) funcDecl() ast.Stmt {
	funcPos := p.tok.Pos
	p.advance()
	p.refetchName()
	n := &ast.FuncDecl{FuncPos: funcPos, Name: p.text(), NTok: p.tok}
	p.popAdvance()

	p.expect(token.LPAREN)
	for p.tok.Kind != token.RPAREN {
		p.refetchName()
		param := &ast.Param{Name: p.text(), NTok: p.tok}
		p.popAdvance()
		p.expect(token.COLON)
		p.scn.PushMode(scanner.ModeType)
		p.refetch(scanner.ModeType)
		param.Spec = p.typeSpec()
		p.popRefetch()
		n.Params = append(n.Params, param)
		if !p.got(token.COMMA) {
			break
		}
	}
	p.expect(token.RPAREN)

	if p.got(token.COLON) {
		p.scn.PushMode(scanner.ModeType)
		p.refetch(scanner.ModeType)
		n.RetSpec = p.typeSpec()
		p.popRefetch()
	}
	n.Body = p.block()
	return n
}

func (p *parser) ifStmt() ast.Stmt {
	ifPos := p.tok.Pos
	p.advance()
	n := &ast.If{IfPos: ifPos, Cond: p.expression()}
	n.Then = p.block()
	if p.got(token.ELSE) {
		if p.tok.Kind == token.IF {
			n.Els = p.ifStmt()
		} else {
			n.Els = p.block()
		}
	}
	return n
}

func (p *parser) whileStmt() ast.Stmt {
	pos := p.tok.Pos
	p.advance()
	n := &ast.While{WhilePos: pos, Cond: p.expression()}
	n.Body = p.block()
	return n
}

func (p *parser) doWhileStmt() ast.Stmt {
	pos := p.tok.Pos
	p.advance()
	n := &ast.DoWhile{DoPos: pos}
	n.Body = p.block()
	p.expect(token.WHILE)
	n.Cond = p.expression()
	return n
}

func (p *parser) forStmt() ast.Stmt {
	forPos := p.tok.Pos
	p.advance()

	if p.tok.Kind == token.LPAREN {
		// C-style: for(init; cond; iter) { ... }
		p.advance()
		n := &ast.For{ForPos: forPos}
		if p.tok.Kind != token.SEMI {
			n.Init = p.statement()
		}
		p.expect(token.SEMI)
		if p.tok.Kind != token.SEMI {
			n.Cond = p.expression()
		}
		p.expect(token.SEMI)
		if p.tok.Kind != token.RPAREN {
			n.Iter = p.statement()
		}
		p.expect(token.RPAREN)
		n.Body = p.block()
		return n
	}

	p.refetchName()
	n := &ast.ForIn{ForPos: forPos, Name: p.text(), NTok: p.tok}
	p.popAdvance()
	p.expect(token.IN)
	n.X = p.expression()
	n.Body = p.block()
	return n
}

func (p *parser) caseStmt() ast.Stmt {
	casePos := p.tok.Pos
	p.advance()
	n := &ast.Case{CasePos: casePos, X: p.expression()}
	p.expect(token.LBRACE)
	p.skipNewlines()
	for p.tok.Kind != token.RBRACE {
		arm := &ast.Arm{ArmPos: p.tok.Pos}
		if p.got(token.ELSE) {
			arm.Default = true
		} else {
			arm.Pats = append(arm.Pats, p.expression())
			for p.got(token.COMMA) {
				p.skipNewlines()
				arm.Pats = append(arm.Pats, p.expression())
			}
		}
		p.expect(token.ARROW)
		if p.tok.Kind == token.LBRACE {
			arm.Body = p.block()
		} else {
			s := p.statement()
			start, end := s.Span()
			arm.Body = &ast.Block{Lbrace: start, Rbrace: end, Stmts: []ast.Stmt{s}}
		}
		n.Arms = append(n.Arms, arm)
		p.skipNewlines()
	}
	n.Rbrace = p.tok.Pos
	p.advance()
	return n
}

func (p *parser) tryStmt() ast.Stmt {
	tryPos := p.tok.Pos
	p.advance()
	n := &ast.Try{TryPos: tryPos, Body: p.block()}
	if p.tok.Kind == token.NEWLINE {
		p.skipNewlines()
		p.pendingSep = true
	}
	for p.tok.Kind == token.CATCH {
		p.pendingSep = false
		catchPos := p.tok.Pos
		p.advance()
		p.refetchName()
		c := &ast.Catch{CatchPos: catchPos, Name: p.text(), NTok: p.tok}
		p.popAdvance()
		if p.got(token.COLON) {
			p.scn.PushMode(scanner.ModeType)
			p.refetch(scanner.ModeType)
			c.Spec = p.typeSpec()
			p.popRefetch()
		}
		c.Body = p.block()
		n.Catches = append(n.Catches, c)
		if p.tok.Kind == token.NEWLINE {
			p.skipNewlines()
			p.pendingSep = true
		}
	}
	if p.tok.Kind == token.FINALLY {
		p.pendingSep = false
		p.advance()
		n.Finally = p.block()
	}
	return n
}

func (p *parser) importEnv() ast.Stmt {
	pos := p.tok.Pos
	p.advance()
	p.refetchName()
	n := &ast.ImportEnv{ImpPos: pos, Name: p.text(), NTok: p.tok}
	p.popAdvance()
	if p.got(token.COLON) {
		n.Default = p.expression()
	}
	return n
}

func (p *parser) exportEnv() ast.Stmt {
	pos := p.tok.Pos
	p.advance()
	p.refetchName()
	n := &ast.ExportEnv{ExpPos: pos, Name: p.text(), NTok: p.tok}
	p.popAdvance()
	p.expect(token.EQ)
	n.Val = p.expression()
	return n
}

func (p *parser) typeAlias() ast.Stmt {
	pos := p.tok.Pos
	p.advance()
	p.refetchName()
	n := &ast.TypeAlias{AliasPos: pos, Name: p.text(), NTok: p.tok}
	p.popAdvance()
	p.expect(token.EQ)
	p.scn.PushMode(scanner.ModeType)
	p.refetch(scanner.ModeType)
	n.Target = p.typeSpec()
	p.popRefetch()
	return n
}

func (p *parser) sourceStmt() ast.Stmt {
	pos := p.tok.Pos
	p.advanceIn(scanner.ModeCmd)
	n := &ast.Source{SrcPos: pos}
	if p.tok.Kind == token.NOT_OP {
		n.Optional = true
		p.advance()
	}
	if !isCmdArgStart(p.tok.Kind) {
		p.mismatch(token.CMD_ARG_PART)
	}
	n.Path = p.cmdArg()
	p.scn.PopMode()
	return n
}

// interfaceDecl consumes the retained parsing surface of an interface
// declaration: the body tokens are skipped up to the matching brace. The
// check phase rejects the node.
func (p *parser) interfaceDecl() ast.Stmt {
	pos := p.tok.Pos
	p.advance()
	p.refetchName()
	n := &ast.InterfaceDecl{IfacePos: pos, Name: p.text(), NTok: p.tok}
	p.popAdvance()
	p.expect(token.LBRACE)
	depth := 1
	for depth > 0 {
		switch p.tok.Kind {
		case token.LBRACE:
			depth++
		case token.RBRACE:
			depth--
		case token.EOF:
			p.mismatch(token.RBRACE)
		}
		if depth > 0 {
			p.advance()
		}
	}
	n.Rbrace = p.tok.Pos
	p.advance()
	return n
}

func (p *parser) udcDecl() ast.Stmt {
	declTok := p.tok
	name := p.text()
	p.advance() // the () pair follows the name
	p.expect(token.LPAREN)
	p.expect(token.RPAREN)
	n := &ast.UdcDecl{DeclPos: declTok.Pos, Name: name, NTok: declTok}
	n.Body = p.block()
	return n
}
