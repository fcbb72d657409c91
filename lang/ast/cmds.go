package ast

import (
	"fmt"

	"github.com/mna/roseau/lang/token"
)

type (
	// Cmd represents a single command: a name followed by argument and
	// redirection nodes. A command in expression position evaluates to a
	// Boolean (success of its exit status); in statement position its
	// status is stored in $?.
	Cmd struct {
		typed
		NameTok token.Token
		Name    string // unquoted command word
		Args    []Expr // *CmdArg and *Redir nodes in source order
	}

	// CmdArg represents one command argument: adjacent segments
	// concatenated without whitespace. Segments are string literals,
	// interpolations, substitutions, tilde and glob nodes.
	CmdArg struct {
		typed
		Segs []Expr

		// HasGlob is set when any segment is a glob wildcard, which makes
		// the argument expand against the filesystem.
		HasGlob bool
	}

	// GlobSeg represents a glob wildcard segment (* or ?).
	GlobSeg struct {
		typed
		Tok  token.Token
		Kind token.Kind
	}

	// Tilde represents a leading tilde segment (~ or ~user).
	Tilde struct {
		typed
		Tok  token.Token
		Name string // user name, empty for plain ~
	}

	// Redir represents one redirection: an operator and its target
	// argument (absent for the fd-merge forms 2>&1 and 1>&2).
	Redir struct {
		typed
		OpTok  token.Token
		Op     token.Kind
		Target *CmdArg
	}

	// Pipeline represents two or more commands joined by |.
	Pipeline struct {
		typed
		Cmds []Expr
	}

	// Fork represents an evaluation that forks a child process: the job
	// trailers &, &! and &|.
	Fork struct {
		typed
		X     Expr
		OpTok token.Token
		Op    token.Kind
	}

	// With represents an expression evaluated with a redirection list
	// applied, expr with > file.
	With struct {
		typed
		X      Expr
		Redirs []*Redir
	}
)

func (n *Cmd) Format(f fmt.State, verb rune) {
	format(f, verb, n, "cmd "+n.Name, map[string]int{"args": len(n.Args)})
}
func (n *Cmd) Span() (token.Pos, token.Pos) {
	if len(n.Args) == 0 {
		return n.NameTok.Pos, n.NameTok.End()
	}
	_, end := n.Args[len(n.Args)-1].Span()
	return n.NameTok.Pos, end
}
func (n *Cmd) Walk(v Visitor) {
	for _, a := range n.Args {
		Walk(v, a)
	}
}

func (n *CmdArg) Format(f fmt.State, verb rune) {
	format(f, verb, n, "cmdArg", map[string]int{"segs": len(n.Segs)})
}
func (n *CmdArg) Span() (token.Pos, token.Pos) {
	start, _ := n.Segs[0].Span()
	_, end := n.Segs[len(n.Segs)-1].Span()
	return start, end
}
func (n *CmdArg) Walk(v Visitor) {
	for _, s := range n.Segs {
		Walk(v, s)
	}
}

func (n *GlobSeg) Format(f fmt.State, verb rune) {
	format(f, verb, n, "glob "+n.Kind.String(), nil)
}
func (n *GlobSeg) Span() (token.Pos, token.Pos) { return n.Tok.Pos, n.Tok.End() }
func (n *GlobSeg) Walk(_ Visitor)               {}

func (n *Tilde) Format(f fmt.State, verb rune) { format(f, verb, n, "tilde ~"+n.Name, nil) }
func (n *Tilde) Span() (token.Pos, token.Pos)  { return n.Tok.Pos, n.Tok.End() }
func (n *Tilde) Walk(_ Visitor)                {}

func (n *Redir) Format(f fmt.State, verb rune) {
	format(f, verb, n, "redir "+n.Op.String(), nil)
}
func (n *Redir) Span() (token.Pos, token.Pos) {
	if n.Target == nil {
		return n.OpTok.Pos, n.OpTok.End()
	}
	_, end := n.Target.Span()
	return n.OpTok.Pos, end
}
func (n *Redir) Walk(v Visitor) {
	if n.Target != nil {
		Walk(v, n.Target)
	}
}

func (n *Pipeline) Format(f fmt.State, verb rune) {
	format(f, verb, n, "pipeline", map[string]int{"cmds": len(n.Cmds)})
}
func (n *Pipeline) Span() (token.Pos, token.Pos) {
	start, _ := n.Cmds[0].Span()
	_, end := n.Cmds[len(n.Cmds)-1].Span()
	return start, end
}
func (n *Pipeline) Walk(v Visitor) {
	for _, c := range n.Cmds {
		Walk(v, c)
	}
}

func (n *Fork) Format(f fmt.State, verb rune) {
	format(f, verb, n, "fork "+n.Op.String(), nil)
}
func (n *Fork) Span() (token.Pos, token.Pos) {
	start, _ := n.X.Span()
	return start, n.OpTok.End()
}
func (n *Fork) Walk(v Visitor) { Walk(v, n.X) }

func (n *With) Format(f fmt.State, verb rune) {
	format(f, verb, n, "with", map[string]int{"redirs": len(n.Redirs)})
}
func (n *With) Span() (token.Pos, token.Pos) {
	start, _ := n.X.Span()
	_, end := n.Redirs[len(n.Redirs)-1].Span()
	return start, end
}
func (n *With) Walk(v Visitor) {
	Walk(v, n.X)
	for _, r := range n.Redirs {
		Walk(v, r)
	}
}
