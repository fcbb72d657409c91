package checker

import (
	"github.com/mna/roseau/lang/ast"
	"github.com/mna/roseau/lang/types"
)

// checkCmd checks a command: its arguments and redirections. A command in
// expression position evaluates to a Boolean reflecting its exit status.
func (c *Checker) checkCmd(n *ast.Cmd) *types.Type {
	for i := range n.Args {
		c.checkExpr(&n.Args[i])
	}
	return c.pool.Boolean
}

// checkCmdArg checks the segments of one argument; every segment must
// render as a String. A command substitution that is the only segment is
// word-split into [String].
func (c *Checker) checkCmdArg(n *ast.CmdArg) *types.Type {
	if n.HasGlob {
		globs := 0
		for _, seg := range n.Segs {
			if _, ok := seg.(*ast.GlobSeg); ok {
				globs++
			}
		}
		if globs > maxGlobFragments {
			c.errorf(n, "GlobLimit", "glob pattern has too many wildcards (max %d)", maxGlobFragments)
		}
	}
	if len(n.Segs) == 1 {
		if sub, ok := n.Segs[0].(*ast.Substitution); ok && !sub.Proc {
			sub.Split = true
		}
	}
	for i := range n.Segs {
		t := c.checkExpr(&n.Segs[i])
		if t == c.pool.Void || t == c.pool.Nothing {
			c.errorf(n.Segs[i], "Unacceptable", "unacceptable type in command argument: %s", t.Name())
		}
		if t == c.pool.String || t == c.pool.StringArray {
			continue
		}
		c.coerce(c.pool.String, types.SitePrint, &n.Segs[i])
	}
	if n.HasGlob || (len(n.Segs) == 1 && n.Segs[0].ComputedType() == c.pool.StringArray) {
		return c.pool.StringArray
	}
	return c.pool.String
}

func (c *Checker) checkRedir(n *ast.Redir) *types.Type {
	if n.Target != nil {
		var e ast.Expr = n.Target
		c.checkExpr(&e)
	}
	return c.pool.Void
}
