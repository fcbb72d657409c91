package checker

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/mna/roseau/lang/ast"
	"github.com/mna/roseau/lang/token"
)

// Version is the language version reported by the VERSION build-time
// constant.
const Version = "0.1.0"

// buildConst resolves the build-time constant variables that may appear in
// foldable positions: case patterns and source paths.
func (c *Checker) buildConst(name string) (string, bool) {
	switch name {
	case "OSTYPE":
		return runtime.GOOS, true
	case "MACHTYPE":
		return runtime.GOARCH, true
	case "VERSION":
		return Version, true
	case "SCRIPT_NAME":
		return filepath.Base(c.file.Name()), true
	case "SCRIPT_DIR":
		dir, err := filepath.Abs(filepath.Dir(c.file.Name()))
		if err != nil {
			dir = filepath.Dir(c.file.Name())
		}
		return dir, true
	case "HOME":
		// resolvable at check time for source paths
		if h, ok := os.LookupEnv("HOME"); ok {
			return h, true
		}
	}
	return "", false
}

// foldPattern folds a case pattern to a stable key for duplicate
// detection. Foldable patterns are literals, unary +/-/! on integer
// literals, and interpolated strings whose variables are build-time
// constants.
func (c *Checker) foldPattern(x ast.Expr) (string, bool) {
	switch n := x.(type) {
	case *ast.IntLit:
		return fmt.Sprintf("i:%d", int64(n.Val)), true
	case *ast.FloatLit:
		return fmt.Sprintf("f:%g", n.Val), true
	case *ast.StringLit:
		return "s:" + n.Val, true
	case *ast.SignalLit:
		return "g:" + n.Name, true
	case *ast.RegexLit:
		return "r:" + n.Val, true
	case *ast.Unary:
		if lit, ok := n.X.(*ast.IntLit); ok {
			switch n.Op {
			case token.PLUS:
				return fmt.Sprintf("i:%d", int64(lit.Val)), true
			case token.MINUS:
				return fmt.Sprintf("i:%d", -int64(lit.Val)), true
			case token.NOT_OP, token.NOT:
				return fmt.Sprintf("i:%d", ^int64(lit.Val)), true
			}
		}
	case *ast.TypeOp:
		return c.foldPattern(n.X)
	case *ast.StringExpr:
		if s, ok := c.foldStringExpr(n); ok {
			return "s:" + s, true
		}
	}
	return "", false
}

// foldStringExpr folds an interpolated string whose parts are literals or
// build-time constant variables.
func (c *Checker) foldStringExpr(n *ast.StringExpr) (string, bool) {
	var out string
	for _, part := range n.Parts {
		switch p := part.(type) {
		case *ast.StringLit:
			out += p.Val
		case *ast.Var:
			v, ok := c.buildConst(p.Name)
			if !ok {
				return "", false
			}
			out += v
		case *ast.TypeOp:
			if v, ok := p.X.(*ast.Var); ok {
				s, ok := c.buildConst(v.Name)
				if !ok {
					return "", false
				}
				out += s
				continue
			}
			return "", false
		default:
			return "", false
		}
	}
	return out, true
}

// foldCmdArg folds a source path to its constant value. Non-foldable
// content is an error at these sites.
func (c *Checker) foldCmdArg(n *ast.CmdArg) (string, bool) {
	var out string
	for _, seg := range n.Segs {
		switch s := seg.(type) {
		case *ast.StringLit:
			out += s.Val
		case *ast.Tilde:
			home, ok := c.buildConst("HOME")
			if !ok || s.Name != "" {
				return "", false
			}
			out += home
		case *ast.Var:
			v, ok := c.buildConst(s.Name)
			if !ok {
				return "", false
			}
			out += v
		case *ast.StringExpr:
			v, ok := c.foldStringExpr(s)
			if !ok {
				return "", false
			}
			out += v
		default:
			return "", false
		}
	}
	return out, true
}

// FoldSourcePath returns the folded path of a checked source statement.
func (c *Checker) FoldSourcePath(n *ast.Source) (string, bool) {
	return c.foldCmdArg(n.Path)
}
