package parser

import (
	"github.com/mna/roseau/lang/ast"
	"github.com/mna/roseau/lang/scanner"
	"github.com/mna/roseau/lang/token"
)

// typeSpec parses a type under the type mode. On return, the current token
// is the first token after the type, still scanned under the type mode; the
// caller pops the mode and refetches it.
func (p *parser) typeSpec() ast.TypeSpec {
	var spec ast.TypeSpec

	switch p.tok.Kind {
	case token.IDENT:
		ntok := p.tok
		name := p.text()
		p.advance()
		n := &ast.NamedTypeSpec{NTok: ntok, Name: name}
		// dotted type path
		for p.tok.Kind == token.DOT {
			p.advance()
			nt := p.expect(token.IDENT)
			n.Name += "." + p.file.Text(nt)
			n.End_ = nt.End()
		}
		if p.tok.Kind == token.LT {
			p.advance()
			for {
				n.Args = append(n.Args, p.typeSpec())
				if !p.got(token.COMMA) {
					break
				}
			}
			gt := p.expect(token.GT)
			n.End_ = gt.End()
		}
		spec = n
		if name == "Func" && len(n.Args) > 0 {
			f := &ast.FuncTypeSpec{FuncPos: ntok.Pos, Ret: n.Args[0], End_: n.End_}
			if len(n.Args) > 1 {
				f.Params = n.Args[1:]
			}
			spec = f
		}

	case token.TYPEOF:
		pos := p.tok.Pos
		p.advance()
		p.expect(token.LPAREN)
		// the expression is scanned under the expression rules
		p.scn.PushMode(scanner.ModeInterp)
		p.refetch(scanner.ModeInterp)
		p.inInterp++
		x := p.expression()
		p.inInterp--
		if p.tok.Kind != token.RPAREN {
			p.mismatch(token.RPAREN)
		}
		rparen := p.tok.Pos
		p.popAdvance()
		spec = &ast.TypeOfSpec{TypeofPos: pos, X: x, Rparen: rparen}

	case token.LBRACK:
		lbrack := p.tok.Pos
		p.advance()
		elem := p.typeSpec()
		if p.got(token.COLON) {
			val := p.typeSpec()
			rbrack := p.expect(token.RBRACK)
			spec = &ast.MapTypeSpec{Lbrack: lbrack, Key: elem, Val: val, Rbrack: rbrack.Pos}
		} else {
			rbrack := p.expect(token.RBRACK)
			spec = &ast.ArrayTypeSpec{Lbrack: lbrack, Elem: elem, Rbrack: rbrack.Pos}
		}

	case token.LPAREN:
		lparen := p.tok.Pos
		p.advance()
		n := &ast.TupleTypeSpec{Lparen: lparen}
		for p.tok.Kind != token.RPAREN {
			n.Elems = append(n.Elems, p.typeSpec())
			if !p.got(token.COMMA) {
				break
			}
		}
		rparen := p.expect(token.RPAREN)
		n.Rparen = rparen.Pos
		spec = n

	default:
		p.mismatch(token.IDENT)
	}

	// optional suffix: T?
	for p.tok.Kind == token.QUESTION {
		q := p.tok.Pos
		p.advance()
		spec = &ast.OptionTypeSpec{Elem: spec, Question: q}
	}
	return spec
}
