package checker

import (
	"regexp"

	"github.com/mna/roseau/lang/ast"
	"github.com/mna/roseau/lang/token"
	"github.com/mna/roseau/lang/types"
)

// opMethodNames maps binary operator tokens to the method resolved on the
// left operand's type.
var opMethodNames = map[token.Kind]string{
	token.PLUS:    types.OpAdd,
	token.MINUS:   types.OpSub,
	token.STAR:    types.OpMul,
	token.SLASH:   types.OpDiv,
	token.PERCENT: types.OpMod,
	token.AND:     types.OpAnd,
	token.OR:      types.OpOr,
	token.XOR:     types.OpXor,
	token.EQL:     types.OpEq,
	token.NEQ:     types.OpNe,
	token.LT:      types.OpLt,
	token.GT:      types.OpGt,
	token.LE:      types.OpLe,
	token.GE:      types.OpGe,
}

// checkExpr type-checks the expression at *ptr, possibly replacing it with
// a rewritten node, and returns its computed type.
func (c *Checker) checkExpr(ptr *ast.Expr) *types.Type {
	x := *ptr
	var t *types.Type

	switch n := x.(type) {
	case *ast.IntLit:
		t = c.pool.Get(n.TypeHint)

	case *ast.FloatLit:
		t = c.pool.Float

	case *ast.StringLit:
		t = c.pool.String

	case *ast.RegexLit:
		if _, err := regexp.Compile(n.Val); err != nil {
			c.errorf(n, "TokenFormat", "invalid regex literal: %s", err)
		}
		t = c.pool.Regex

	case *ast.SignalLit:
		t = c.pool.Signal

	case *ast.StringExpr:
		for i := range n.Parts {
			c.checkExpr(&n.Parts[i])
			c.coerce(c.pool.String, types.SitePrint, &n.Parts[i])
		}
		t = c.pool.String

	case *ast.ArrayLit:
		var elem *types.Type
		for i := range n.Elems {
			et := c.checkExpr(&n.Elems[i])
			elem = c.pool.CommonSuper(elem, et)
		}
		if elem == nil {
			c.errorf(n, "Unacceptable", "empty array literal requires a type context")
		}
		for i := range n.Elems {
			c.coerce(elem, types.SiteDefault, &n.Elems[i])
		}
		t = c.reify(n, c.pool.Array, elem)

	case *ast.MapLit:
		var key, val *types.Type
		for i := range n.Keys {
			key = c.pool.CommonSuper(key, c.checkExpr(&n.Keys[i]))
			val = c.pool.CommonSuper(val, c.checkExpr(&n.Vals[i]))
		}
		for i := range n.Keys {
			c.coerce(key, types.SiteDefault, &n.Keys[i])
			c.coerce(val, types.SiteDefault, &n.Vals[i])
		}
		t = c.reify(n, c.pool.Map, key, val)

	case *ast.TupleLit:
		elems := make([]*types.Type, len(n.Elems))
		for i := range n.Elems {
			elems[i] = c.checkExpr(&n.Elems[i])
		}
		t = c.reify(n, c.pool.Tuple, elems...)

	case *ast.Var:
		s := c.lookup(n.Name)
		if s == nil {
			c.errorf(n, "UndefinedSymbol", "undefined symbol: %s", n.Name)
		}
		n.Global = s.Global
		n.Index = s.Index
		n.Env = s.Env
		t = s.Type

	case *ast.Access:
		t = c.checkAccess(n)

	case *ast.Index:
		t = c.checkIndex(n)

	case *ast.Apply:
		t = c.checkApply(n)

	case *ast.MethodCall:
		t = c.checkMethodCall(n)

	case *ast.New:
		t = c.checkNew(n)

	case *ast.Unary:
		t = c.checkUnary(n)

	case *ast.Binary:
		t = c.checkBinary(ptr, n)

	case *ast.Ternary:
		c.checkExpr(&n.Cond)
		c.coerce(c.pool.Boolean, types.SiteCond, &n.Cond)
		tt := c.checkExpr(&n.Then)
		et := c.checkExpr(&n.Els)
		t = c.pool.CommonSuper(tt, et)
		c.coerce(t, types.SiteDefault, &n.Then)
		c.coerce(t, types.SiteDefault, &n.Els)

	case *ast.Cast:
		t = c.checkCast(ptr, n)

	case *ast.InstanceOf:
		c.checkExpr(&n.X)
		c.resolveType(n.Spec)
		t = c.pool.Boolean

	case *ast.TypeOp:
		// already checked, produced by a rewrite
		return n.ComputedType()

	case *ast.Substitution:
		c.pushChild()
		c.checkStmts(n.Stmts)
		c.popChild()
		switch {
		case n.Proc:
			t = c.pool.Job
		case n.Split:
			t = c.pool.StringArray
		default:
			t = c.pool.String
		}

	case *ast.Cmd:
		t = c.checkCmd(n)

	case *ast.CmdArg:
		t = c.checkCmdArg(n)

	case *ast.Redir:
		t = c.checkRedir(n)

	case *ast.GlobSeg:
		t = c.pool.String

	case *ast.Tilde:
		t = c.pool.String

	case *ast.Pipeline:
		if len(n.Cmds) > maxPipelineLen {
			c.errorf(n, "PipeLimit", "pipeline has too many stages (max %d)", maxPipelineLen)
		}
		for i := range n.Cmds {
			c.checkExpr(&n.Cmds[i])
		}
		t = c.pool.Boolean

	case *ast.Fork:
		c.pushChild()
		c.checkExpr(&n.X)
		c.popChild()
		t = c.pool.Job

	case *ast.With:
		t = c.checkExpr(&n.X)
		for _, r := range n.Redirs {
			var e ast.Expr = r
			c.checkExpr(&e)
		}

	default:
		c.errorf(x, "Unacceptable", "unacceptable expression")
	}

	x = *ptr
	x.SetComputedType(t)
	return t
}

func (c *Checker) pushChild() {
	c.childLoops = append(c.childLoops, len(c.loops))
}

func (c *Checker) popChild() {
	c.childLoops = c.childLoops[:len(c.childLoops)-1]
}

// inChild returns true when checking inside a forked child context.
func (c *Checker) inChild() bool { return len(c.childLoops) > 0 }

// jumpCrossesChild returns true when a break or continue would have to
// unwind through the innermost child boundary: the target loop was opened
// before the child context was entered.
func (c *Checker) jumpCrossesChild() bool {
	return c.inChild() && len(c.loops) <= c.childLoops[len(c.childLoops)-1]
}

func (c *Checker) checkAccess(n *ast.Access) *types.Type {
	c.checkExpr(&n.Recv)
	recv := c.unwrapOption(&n.Recv)
	h := recv.LookupField(n.Name)
	if h == nil {
		c.errorf(n, "UndefinedField", "undefined field: %s.%s", recv.Name(), n.Name)
	}
	n.Handle = h
	return types.Substitute(h.Type, recv)
}

func (c *Checker) checkIndex(n *ast.Index) *types.Type {
	c.checkExpr(&n.Recv)
	recv := c.unwrapOption(&n.Recv)
	get := recv.LookupMethod(types.OpGet)
	if get == nil {
		c.errorf(n, "UndefinedMethod", "undefined method: %s.%s", recv.Name(), types.OpGet)
	}
	c.checkExpr(&n.Idx)
	c.coerce(types.Substitute(get.Params[0], recv), types.SiteDefault, &n.Idx)
	n.GetHandle = get
	return types.Substitute(get.Return, recv)
}

func (c *Checker) checkApply(n *ast.Apply) *types.Type {
	ft := c.checkExpr(&n.Fn)
	if !ft.IsFunc() {
		c.errorf(n, "NotCallable", "%s is not a callable type", ft.Name())
	}
	params := ft.ElemNum() - 1
	if len(n.Args) != params {
		c.errorf(n, "UnmatchParam", "require %d argument(s), got %d", params, len(n.Args))
	}
	for i := range n.Args {
		c.checkExpr(&n.Args[i])
		c.coerce(ft.Elem(i+1), types.SiteDefault, &n.Args[i])
	}
	return ft.Elem(0)
}

func (c *Checker) checkMethodCall(n *ast.MethodCall) *types.Type {
	c.checkExpr(&n.Recv)
	recv := c.unwrapOption(&n.Recv)
	h := recv.LookupMethod(n.Name)
	if h == nil {
		c.errorf(n, "UndefinedMethod", "undefined method: %s.%s", recv.Name(), n.Name)
	}
	if len(n.Args) != len(h.Params) {
		c.errorf(n, "UnmatchParam", "%s.%s requires %d argument(s), got %d",
			recv.Name(), n.Name, len(h.Params), len(n.Args))
	}
	for i := range n.Args {
		c.checkExpr(&n.Args[i])
		c.coerce(types.Substitute(h.Params[i], recv), types.SiteDefault, &n.Args[i])
	}
	n.Handle = h

	ret := types.Substitute(h.Return, recv)
	// element-producing methods of the templates return types that depend
	// on the receiver instance
	if recv.Template() == c.pool.Array && n.Name == "slice" {
		ret = recv
	}
	if recv.Template() == c.pool.Map && n.Name == "find" {
		ret = c.reify(n, c.pool.Option, ret)
	}
	return ret
}

func (c *Checker) checkNew(n *ast.New) *types.Type {
	t := c.resolveType(n.Spec)
	if !t.IsSubtypeOf(c.pool.Error) {
		c.errorf(n, "UndefinedInit", "type %s has no constructor", t.Name())
	}
	if len(n.Args) > 1 {
		c.errorf(n, "UnmatchParam", "%s requires at most 1 argument, got %d", t.Name(), len(n.Args))
	}
	for i := range n.Args {
		c.checkExpr(&n.Args[i])
		c.coerce(c.pool.String, types.SiteDefault, &n.Args[i])
	}
	return t
}

func (c *Checker) checkUnary(n *ast.Unary) *types.Type {
	xt := c.checkExpr(&n.X)
	xt = c.unwrapOption(&n.X)

	switch n.Op {
	case token.PLUS:
		if !c.pool.IsNumeric(xt) {
			c.errorf(n, "UndefinedMethod", "unary + undefined for %s", xt.Name())
		}
		return xt
	case token.MINUS:
		h := xt.LookupMethod(types.OpNeg)
		if h == nil {
			c.errorf(n, "UndefinedMethod", "unary - undefined for %s", xt.Name())
		}
		n.Handle = h
		return types.Substitute(h.Return, xt)
	case token.NOT_OP, token.NOT:
		if xt == c.pool.Boolean {
			return c.pool.Boolean
		}
		if xt.LookupMethod(types.OpBool) != nil {
			c.coerce(c.pool.Boolean, types.SiteCond, &n.X)
			return c.pool.Boolean
		}
		h := xt.LookupMethod(types.OpNot)
		if h == nil {
			c.errorf(n, "UndefinedMethod", "unary ! undefined for %s", xt.Name())
		}
		n.Handle = h
		return types.Substitute(h.Return, xt)
	}
	c.errorf(n, "Unacceptable", "invalid unary operator %s", n.Op)
	return nil
}

func (c *Checker) checkBinary(ptr *ast.Expr, n *ast.Binary) *types.Type {
	// condition operators short-circuit over Boolean operands
	if n.Op == token.COND_AND || n.Op == token.COND_OR {
		c.checkExpr(&n.Left)
		c.coerce(c.pool.Boolean, types.SiteCond, &n.Left)
		c.checkExpr(&n.Right)
		c.coerce(c.pool.Boolean, types.SiteCond, &n.Right)
		return c.pool.Boolean
	}

	lt := c.checkExpr(&n.Left)
	rt := c.checkExpr(&n.Right)

	// regex match operators
	if n.Op == token.MATCH || n.Op == token.UNMATCH {
		c.coerce(c.pool.String, types.SiteDefault, &n.Left)
		c.coerce(c.pool.Regex, types.SiteDefault, &n.Right)
		h := c.pool.Regex.LookupMethod("match")
		n.Handle = h
		return c.pool.Boolean
	}

	lt = c.unwrapOption(&n.Left)

	// string concatenation: + with a String operand lifts the other side
	if n.Op == token.PLUS && (lt == c.pool.String || rt == c.pool.String) {
		c.coerce(c.pool.String, types.SitePrint, &n.Left)
		c.coerce(c.pool.String, types.SitePrint, &n.Right)
		n.StrConcat = true
		return c.pool.String
	}

	// function equality is structural identity, not method dispatch
	if (n.Op == token.EQL || n.Op == token.NEQ) && lt.IsFunc() {
		n.FuncIdentity = true
		return c.pool.Boolean
	}

	// the range operator resolves against the integer range method
	if n.Op == token.RANGE {
		c.coerce(c.pool.Int, types.SiteDefault, &n.Left)
		c.coerce(c.pool.Int, types.SiteDefault, &n.Right)
		n.Handle = c.pool.Int.LookupMethod("__RANGE__")
		return c.reify(n, c.pool.Array, c.pool.Int)
	}

	name, ok := opMethodNames[n.Op]
	if !ok {
		c.errorf(n, "Unacceptable", "invalid binary operator %s", n.Op)
	}

	// numeric operands widen to the larger side before resolution
	if c.pool.IsNumeric(lt) && c.pool.IsNumeric(rt) && lt != rt {
		if c.pool.CanWiden(lt, rt) {
			c.coerce(rt, types.SiteDefault, &n.Left)
			lt = rt
		} else {
			c.coerce(lt, types.SiteDefault, &n.Right)
		}
	}

	h := lt.LookupMethod(name)
	if h == nil {
		c.errorf(n, "UndefinedMethod", "binary %s undefined for %s", n.Op, lt.Name())
	}
	c.coerce(types.Substitute(h.Params[0], lt), types.SiteDefault, &n.Right)
	n.Handle = h
	return types.Substitute(h.Return, lt)
}

func (c *Checker) checkCast(ptr *ast.Expr, n *ast.Cast) *types.Type {
	at := c.checkExpr(&n.X)
	target := c.resolveType(n.Spec)

	var op ast.CastOp
	switch {
	case at == target || at.IsSubtypeOf(target):
		op = ast.NoCast
	case at.IsOption() && at.Elem(0).IsSubtypeOf(target):
		op = ast.CheckUnwrap
	case c.pool.IsNumeric(at) && c.pool.IsNumeric(target):
		op = ast.NumCast
	case target == c.pool.String && at.LookupMethod(types.OpStr) != nil:
		op = ast.ToString
	case target == c.pool.Boolean && at.LookupMethod(types.OpBool) != nil:
		op = ast.ToBool
	case target.IsSubtypeOf(at):
		op = ast.CheckCast
	default:
		c.errorf(n, "CastOp", "cannot cast %s to %s", at.Name(), target.Name())
	}

	*ptr = c.wrap(n.X, op, target)
	return target
}
