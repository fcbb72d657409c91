package parser

import (
	"strings"

	"github.com/mna/roseau/lang/ast"
	"github.com/mna/roseau/lang/scanner"
	"github.com/mna/roseau/lang/token"
)

// commandLine parses a command chain starting at the current COMMAND token,
// which was scanned in statement mode. It pushes the command mode for the
// arguments and pops it before returning.
func (p *parser) commandLine() ast.Expr {
	p.scn.PushMode(scanner.ModeCmd)
	x := p.cmdChain()
	p.scn.PopMode()
	return x
}

// cmdChain parses pipelines chained with && and ||, with optional fork
// trailers. The scanner must be in command mode; the current token is the
// first command word.
func (p *parser) cmdChain() ast.Expr {
	left := p.pipeline()
	for {
		switch p.tok.Kind {
		case token.COND_AND, token.COND_OR:
			opTok := p.tok
			p.advance()
			p.skipNewlines()
			right := p.pipeline()
			left = &ast.Binary{Left: left, OpTok: opTok, Op: opTok.Kind, Right: right}

		case token.BACKGROUND, token.DISOWN_BG, token.PIPE_BG:
			opTok := p.tok
			p.advance()
			return &ast.Fork{X: left, OpTok: opTok, Op: opTok.Kind}

		default:
			return left
		}
	}
}

// pipeline parses one or more commands joined by |.
func (p *parser) pipeline() ast.Expr {
	first := p.command()
	if p.tok.Kind != token.PIPE {
		return first
	}
	pl := &ast.Pipeline{Cmds: []ast.Expr{first}}
	for p.got(token.PIPE) {
		p.skipNewlines()
		pl.Cmds = append(pl.Cmds, p.command())
	}
	return pl
}

// command parses one command: the command word then argument and
// redirection nodes until a separator.
func (p *parser) command() ast.Expr {
	if p.tok.Kind != token.COMMAND && p.tok.Kind != token.CMD_ARG_PART {
		p.mismatch(token.COMMAND)
	}
	cmd := &ast.Cmd{
		NameTok: p.tok,
		Name:    scanner.UnquoteCmdArg(p.text()),
	}
	p.advance()

	for {
		switch k := p.tok.Kind; {
		case k.IsRedirOp():
			cmd.Args = append(cmd.Args, p.redir())

		case isCmdArgStart(k):
			cmd.Args = append(cmd.Args, p.cmdArg())

		default:
			return cmd
		}
	}
}

func isCmdArgStart(k token.Kind) bool {
	switch k {
	case token.CMD_ARG_PART, token.STRING, token.OPEN_DQUOTE,
		token.APPLIED_NAME, token.SPECIAL_NAME, token.START_INTERP,
		token.START_SUB_CMD, token.START_PROC_SUB,
		token.GLOB_ANY, token.GLOB_ZERO_OR_MORE, token.TILDE:
		return true
	}
	return false
}

// cmdArg parses one argument: adjacent segments not separated by
// whitespace.
func (p *parser) cmdArg() *ast.CmdArg {
	arg := &ast.CmdArg{}
	for {
		arg.Segs = append(arg.Segs, p.cmdArgSeg(arg))
		if !isCmdArgStart(p.tok.Kind) || p.scn.PrevSpace() {
			return arg
		}
	}
}

func (p *parser) cmdArgSeg(arg *ast.CmdArg) ast.Expr {
	switch p.tok.Kind {
	case token.CMD_ARG_PART:
		tok := p.tok
		val := scanner.UnquoteCmdArg(p.text())
		p.advance()
		return &ast.StringLit{Tok: tok, Val: val}

	case token.STRING:
		return p.stringLit()

	case token.OPEN_DQUOTE:
		return p.stringExpr()

	case token.APPLIED_NAME, token.SPECIAL_NAME:
		tok := p.tok
		name := p.text()[1:]
		p.advance()
		return &ast.Var{Tok: tok, Name: name}

	case token.START_INTERP:
		return p.interpExpr()

	case token.START_SUB_CMD, token.START_PROC_SUB:
		return p.substitution()

	case token.GLOB_ANY, token.GLOB_ZERO_OR_MORE:
		tok := p.tok
		p.advance()
		arg.HasGlob = true
		return &ast.GlobSeg{Tok: tok, Kind: tok.Kind}

	case token.TILDE:
		tok := p.tok
		p.advance()
		t := &ast.Tilde{Tok: tok}
		// an adjacent bare word is the user name up to the first slash
		if p.tok.Kind == token.CMD_ARG_PART && !p.scn.PrevSpace() {
			word := scanner.UnquoteCmdArg(p.text())
			if i := strings.IndexByte(word, '/'); i != 0 {
				wtok := p.tok
				p.advance()
				if i < 0 {
					t.Name = word
					return t
				}
				t.Name = word[:i]
				arg.Segs = append(arg.Segs, t)
				return &ast.StringLit{Tok: wtok, Val: word[i:]}
			}
		}
		return t
	}
	p.mismatch(token.CMD_ARG_PART)
	return nil
}

// redir parses one redirection; the fd-merge forms take no target.
func (p *parser) redir() *ast.Redir {
	opTok := p.tok
	p.advance()
	r := &ast.Redir{OpTok: opTok, Op: opTok.Kind}
	if opTok.Kind == token.REDIR_ERR_2_OUT || opTok.Kind == token.REDIR_OUT_2_ERR {
		return r
	}
	if !isCmdArgStart(p.tok.Kind) {
		p.mismatch(token.CMD_ARG_PART)
	}
	r.Target = p.cmdArg()
	return r
}

// withRedirs parses the `expr with redir...` form; the current token is the
// WITH keyword.
func (p *parser) withRedirs(x ast.Expr) ast.Expr {
	p.advanceIn(scanner.ModeCmd)
	w := &ast.With{X: x}
	for p.tok.Kind.IsRedirOp() {
		w.Redirs = append(w.Redirs, p.redir())
	}
	p.scn.PopMode()
	if len(w.Redirs) == 0 {
		p.mismatch(token.REDIR_OUT)
	}
	return w
}
