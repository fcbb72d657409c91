package checker

import (
	"strings"

	"github.com/mna/roseau/lang/ast"
	"github.com/mna/roseau/lang/token"
	"github.com/mna/roseau/lang/types"
)

// checkStmts checks a statement list, raising Unreachable when a statement
// follows a block-ending one.
func (c *Checker) checkStmts(stmts []ast.Stmt) {
	for i, s := range stmts {
		if i > 0 && stmts[i-1].BlockEnding() {
			c.errorf(s, "Unreachable", "unreachable code")
		}
		c.checkStmt(s)
	}
}

func (c *Checker) checkStmt(s ast.Stmt) {
	switch n := s.(type) {
	case *ast.ExprStmt:
		t := c.checkExpr(&n.X)
		// a non-Void expression statement discards its value
		if t != c.pool.Void && t != c.pool.Nothing {
			c.coerce(c.pool.Void, types.SiteDefault, &n.X)
		}

	case *ast.Block:
		c.pushScope()
		c.checkStmts(n.Stmts)
		c.popScope()

	case *ast.VarDecl:
		c.checkVarDecl(n)

	case *ast.Assign:
		c.checkAssign(n)

	case *ast.ElementSelfAssign:
		// produced by this phase, nothing to do

	case *ast.If:
		c.checkExpr(&n.Cond)
		c.coerce(c.pool.Boolean, types.SiteCond, &n.Cond)
		c.checkStmt(n.Then)
		if n.Els != nil {
			c.checkStmt(n.Els)
		}

	case *ast.While:
		c.checkExpr(&n.Cond)
		c.coerce(c.pool.Boolean, types.SiteCond, &n.Cond)
		n.BreakType = c.checkLoopBody(n.Body)

	case *ast.DoWhile:
		n.BreakType = c.checkLoopBody(n.Body)
		c.checkExpr(&n.Cond)
		c.coerce(c.pool.Boolean, types.SiteCond, &n.Cond)

	case *ast.For:
		c.pushScope()
		if n.Init != nil {
			c.checkStmt(n.Init)
		}
		if n.Cond != nil {
			c.checkExpr(&n.Cond)
			c.coerce(c.pool.Boolean, types.SiteCond, &n.Cond)
		}
		if n.Iter != nil {
			c.checkStmt(n.Iter)
		}
		n.BreakType = c.checkLoopBody(n.Body)
		c.popScope()

	case *ast.ForIn:
		c.checkForIn(n)

	case *ast.Case:
		c.checkCase(n)

	case *ast.Break:
		if len(c.loops) == 0 {
			c.errorf(n, "InsideLoop", "break must be inside a loop")
		}
		if c.jumpCrossesChild() {
			c.errorf(n, "InsideChild", "break cannot leave a child process")
		}
		if c.inFinally > 0 {
			c.errorf(n, "InsideFinally", "break cannot leave a finally block")
		}
		if n.Val != nil {
			c.checkExpr(&n.Val)
		}
		lc := &c.loops[len(c.loops)-1]
		lc.breaks = append(lc.breaks, n)

	case *ast.Continue:
		if len(c.loops) == 0 {
			c.errorf(n, "InsideLoop", "continue must be inside a loop")
		}
		if c.jumpCrossesChild() {
			c.errorf(n, "InsideChild", "continue cannot leave a child process")
		}
		if c.inFinally > 0 {
			c.errorf(n, "InsideFinally", "continue cannot leave a finally block")
		}

	case *ast.Return:
		c.checkReturn(n)

	case *ast.Throw:
		c.checkExpr(&n.Val)
		c.coerce(c.pool.Any, types.SiteDefault, &n.Val)

	case *ast.Try:
		c.checkTry(n)

	case *ast.Assert:
		c.checkExpr(&n.Cond)
		c.coerce(c.pool.Boolean, types.SiteCond, &n.Cond)
		if n.Msg != nil {
			c.checkExpr(&n.Msg)
			c.coerce(c.pool.String, types.SitePrint, &n.Msg)
		}

	case *ast.ImportEnv:
		if n.Default != nil {
			c.checkExpr(&n.Default)
			c.coerce(c.pool.String, types.SiteDefault, &n.Default)
		}
		s := c.declare(n, n.Name, c.pool.String, false)
		s.Env = true
		n.Global, n.Index = s.Global, s.Index

	case *ast.ExportEnv:
		c.checkExpr(&n.Val)
		c.coerce(c.pool.String, types.SitePrint, &n.Val)
		s := c.declare(n, n.Name, c.pool.String, false)
		s.Env = true
		n.Global, n.Index = s.Global, s.Index

	case *ast.TypeAlias:
		if !c.atToplevel() {
			c.errorf(n, "OutsideToplevel", "type alias is only allowed at toplevel")
		}
		if _, ok := c.aliases[n.Name]; ok || c.pool.Get(n.Name) != nil {
			c.errorf(n, "DefinedType", "already defined type: %s", n.Name)
		}
		c.aliases[n.Name] = c.resolveType(n.Target)

	case *ast.FuncDecl:
		c.checkFuncDecl(n)

	case *ast.InterfaceDecl:
		c.errorf(n, "OutsideToplevel", "interface declarations are unsupported")

	case *ast.UdcDecl:
		c.checkUdcDecl(n)

	case *ast.Source:
		c.checkSource(n)

	default:
		c.errorf(s, "Unacceptable", "unacceptable statement")
	}
}

// checkLoopBody checks a loop body with a fresh loop context and scope, and
// returns the common super type of the break values (Void when none).
func (c *Checker) checkLoopBody(body *ast.Block) *types.Type {
	c.loops = append(c.loops, loopCtx{})
	c.pushScope()
	c.checkStmts(body.Stmts)
	c.popScope()
	lc := c.loops[len(c.loops)-1]
	c.loops = c.loops[:len(c.loops)-1]

	var bt *types.Type
	for _, b := range lc.breaks {
		if b.Val != nil {
			bt = c.pool.CommonSuper(bt, b.Val.ComputedType())
		}
	}
	if bt == nil {
		return c.pool.Void
	}
	for _, b := range lc.breaks {
		if b.Val != nil {
			c.coerce(bt, types.SiteDefault, &b.Val)
		}
	}
	return bt
}

func (c *Checker) checkVarDecl(n *ast.VarDecl) {
	var declared *types.Type
	if n.Spec != nil {
		declared = c.resolveType(n.Spec)
		if declared == c.pool.Void || declared == c.pool.Nothing {
			c.errorf(n, "Unacceptable", "unacceptable type: %s", declared.Name())
		}
	}
	if n.Init != nil {
		it := c.checkExpr(&n.Init)
		if declared != nil {
			c.coerce(declared, types.SiteDefault, &n.Init)
		} else {
			if it == c.pool.Void || it == c.pool.Nothing {
				c.errorf(n, "Unacceptable", "unacceptable initializer type: %s", it.Name())
			}
			declared = it
		}
	} else if !declared.IsOption() {
		c.errorf(n, "Required", "variable %s of type %s requires an initializer", n.Name, declared.Name())
	}

	s := c.declare(n, n.Name, declared, n.ReadOnly)
	n.Global, n.Index, n.Type = s.Global, s.Index, declared
}

func (c *Checker) checkAssign(n *ast.Assign) {
	switch left := n.Left.(type) {
	case *ast.Var:
		s := c.lookup(left.Name)
		if s == nil {
			c.errorf(left, "UndefinedSymbol", "undefined symbol: %s", left.Name)
		}
		if s.ReadOnly {
			c.errorf(left, "ReadOnly", "cannot assign to read-only symbol: %s", left.Name)
		}
		left.Global, left.Index, left.Env = s.Global, s.Index, s.Env
		left.SetComputedType(s.Type)
		c.lowerCompound(n, s.Type)
		c.coerce(s.Type, types.SiteDefault, &n.Right)

	case *ast.Access:
		t := c.checkAccess(left)
		left.SetComputedType(t)
		if left.Handle.Attrs&types.FieldReadOnly != 0 {
			c.errorf(left, "ReadOnly", "cannot assign to read-only field: %s", left.Name)
		}
		c.lowerCompound(n, t)
		c.coerce(t, types.SiteDefault, &n.Right)

	case *ast.Index:
		c.checkIndexAssign(n, left)

	default:
		c.errorf(n.Left, "Assignable", "left side of assignment is not assignable")
	}
}

// lowerCompound rewrites `x op= y` into `x = x op y`, resolving the binary
// operator against the left type.
func (c *Checker) lowerCompound(n *ast.Assign, lt *types.Type) {
	if n.Op == token.EQ {
		c.checkExpr(&n.Right)
		return
	}
	op := compoundOp(n.Op)
	bin := &ast.Binary{Left: n.Left, OpTok: n.OpTok, Op: op, Right: n.Right}
	var e ast.Expr = bin
	c.checkExpr(&e)
	n.Op = token.EQ
	n.Right = e
}

func compoundOp(k token.Kind) token.Kind {
	switch k {
	case token.PLUS_EQ:
		return token.PLUS
	case token.MINUS_EQ:
		return token.MINUS
	case token.STAR_EQ:
		return token.STAR
	case token.SLASH_EQ:
		return token.SLASH
	case token.PERCENT_EQ:
		return token.PERCENT
	}
	return token.EQ
}

// checkIndexAssign handles assignment through an indexing form: a simple
// assignment resolves the receiver's set method; a compound one is
// rewritten into an ElementSelfAssign holding both handles.
func (c *Checker) checkIndexAssign(n *ast.Assign, left *ast.Index) {
	c.checkExpr(&left.Recv)
	recv := c.unwrapOption(&left.Recv)
	get := recv.LookupMethod(types.OpGet)
	set := recv.LookupMethod(types.OpSet)
	if get == nil || set == nil {
		c.errorf(left, "UndefinedMethod", "type %s does not support element assignment", recv.Name())
	}
	c.checkExpr(&left.Idx)
	c.coerce(types.Substitute(set.Params[0], recv), types.SiteDefault, &left.Idx)
	left.GetHandle = get
	elem := types.Substitute(get.Return, recv)
	left.SetComputedType(elem)

	if n.Op == token.EQ {
		c.checkExpr(&n.Right)
		c.coerce(types.Substitute(set.Params[1], recv), types.SiteDefault, &n.Right)
		return
	}

	// compound: rewrite to an element self-assign with an explicit binary
	op := compoundOp(n.Op)
	name := opMethodNames[op]
	h := elem.LookupMethod(name)
	if h == nil {
		c.errorf(n, "UndefinedMethod", "binary %s undefined for %s", op, elem.Name())
	}
	c.checkExpr(&n.Right)
	bin := &ast.Binary{Left: left, OpTok: n.OpTok, Op: op, Right: n.Right, Handle: h}
	bin.SetComputedType(types.Substitute(h.Return, elem))
	c.coerce(types.Substitute(h.Params[0], elem), types.SiteDefault, &bin.Right)

	n.Element = &ast.ElementSelfAssign{
		Recv:      left.Recv,
		Idx:       left.Idx,
		GetHandle: get,
		SetHandle: set,
		Bin:       bin,
	}
}

func (c *Checker) checkForIn(n *ast.ForIn) {
	it := c.checkExpr(&n.X)
	it = c.unwrapOption(&n.X)

	var elem *types.Type
	switch {
	case it.Template() == c.pool.Array:
		elem = it.Elem(0)
	case it.Template() == c.pool.Map:
		elem = c.reify(n, c.pool.Tuple, it.Elem(0), it.Elem(1))
	case it == c.pool.String:
		elem = c.pool.String
	default:
		c.errorf(n.X, "Required", "%s is not iterable", it.Name())
	}

	c.loops = append(c.loops, loopCtx{})
	c.pushScope()
	s := c.declare(n, n.Name, elem, false)
	n.VarIndex = s.Index
	c.checkStmts(n.Body.Stmts)
	c.popScope()
	lc := c.loops[len(c.loops)-1]
	c.loops = c.loops[:len(c.loops)-1]

	var bt *types.Type
	for _, b := range lc.breaks {
		if b.Val != nil {
			bt = c.pool.CommonSuper(bt, b.Val.ComputedType())
		}
	}
	if bt == nil {
		bt = c.pool.Void
	}
	n.BreakType = bt
}

func (c *Checker) checkCase(n *ast.Case) {
	target := c.checkExpr(&n.X)
	n.EqHandle = target.LookupMethod(types.OpEq)
	if n.EqHandle == nil {
		c.errorf(n.X, "UndefinedMethod", "type %s does not support case matching", target.Name())
	}
	seen := make(map[string]bool)
	hasDefault := false
	for _, arm := range n.Arms {
		if arm.Default {
			if hasDefault {
				c.errorf(arm, "NeedPattern", "duplicated else arm")
			}
			hasDefault = true
		}
		for i := range arm.Pats {
			c.checkExpr(&arm.Pats[i])
			key, ok := c.foldPattern(arm.Pats[i])
			if !ok {
				c.errorf(arm.Pats[i], "Constant", "case pattern must be a constant expression")
			}
			if seen[key] {
				c.errorf(arm.Pats[i], "DupPattern", "duplicated case pattern")
			}
			seen[key] = true
			c.coerce(target, types.SiteDefault, &arm.Pats[i])
		}
		c.checkStmt(arm.Body)
	}
	if len(n.Arms) == 0 {
		c.errorf(n, "NeedPattern", "case requires at least one arm")
	}
}

func (c *Checker) checkReturn(n *ast.Return) {
	if c.atToplevel() {
		c.errorf(n, "InsideFunc", "return must be inside a function or command")
	}
	if c.inChild() {
		c.errorf(n, "InsideChild", "return cannot leave a child process")
	}
	if c.inFinally > 0 {
		c.errorf(n, "InsideFinally", "return cannot leave a finally block")
	}
	cur := c.current()
	cur.returned = true
	ret := cur.retType
	if ret == nil || ret == c.pool.Void {
		if n.Val != nil {
			vt := c.checkExpr(&n.Val)
			if vt != c.pool.Void {
				c.coerce(c.pool.Void, types.SiteDefault, &n.Val)
			}
		}
		return
	}
	if n.Val == nil {
		c.errorf(n, "Required", "return requires a value of type %s", ret.Name())
	}
	c.checkExpr(&n.Val)
	c.coerce(ret, types.SiteDefault, &n.Val)
}

func (c *Checker) checkTry(n *ast.Try) {
	if len(n.Catches) == 0 && n.Finally == nil {
		c.errorf(n, "MeaninglessTry", "try requires a catch or finally block")
	}
	if len(n.Body.Stmts) == 0 {
		c.errorf(n, "EmptyTry", "useless empty try block")
	}
	c.checkStmt(n.Body)

	for _, cat := range n.Catches {
		t := c.pool.Error
		if cat.Spec != nil {
			t = c.resolveType(cat.Spec)
			if !t.IsSubtypeOf(c.pool.Error) {
				c.errorf(cat, "Unacceptable", "cannot catch type: %s", t.Name())
			}
		}
		cat.Type = t

		c.pushScope()
		s := c.declare(cat, cat.Name, t, false)
		cat.VarIndex = s.Index
		c.checkStmts(cat.Body.Stmts)
		c.popScope()
	}

	if n.Finally != nil {
		c.inFinally++
		c.checkStmt(n.Finally)
		c.inFinally--
	}
}

func (c *Checker) checkFuncDecl(n *ast.FuncDecl) {
	if !c.atToplevel() {
		c.errorf(n, "OutsideToplevel", "function declaration is only allowed at toplevel")
	}

	ret := c.pool.Void
	if n.RetSpec != nil {
		ret = c.resolveType(n.RetSpec)
	}
	elems := make([]*types.Type, 0, len(n.Params)+1)
	elems = append(elems, ret)
	for _, pm := range n.Params {
		pm.Type = c.resolveType(pm.Spec)
		elems = append(elems, pm.Type)
	}
	ft := c.reify(n, c.pool.Func, elems...)
	n.Type = ft

	// the function value lives in a global slot, visible to its own body
	// for recursion
	s := c.declare(n, n.Name, ft, true)
	n.Index = s.Index

	c.funcs = append(c.funcs, funcCtx{retType: ret})
	c.pushScope()
	for i, pm := range n.Params {
		ps := c.declare(n, pm.Name, pm.Type, false)
		pm.Index = ps.Index
		if ps.Index != i {
			c.errorf(n, "LocalLimit", "parameter slot mismatch")
		}
	}
	c.checkStmts(n.Body.Stmts)
	c.popScope()
	fc := c.funcs[len(c.funcs)-1]
	c.funcs = c.funcs[:len(c.funcs)-1]
	n.MaxVarNum = fc.maxLocal

	if ret != c.pool.Void && ret != c.pool.Nothing && !blockReturns(n.Body) {
		c.errorf(n, "UnfoundReturn", "not all control paths return a value")
	}
}

// blockReturns reports whether the block always exits through a
// block-ending statement.
func blockReturns(b *ast.Block) bool {
	if len(b.Stmts) == 0 {
		return false
	}
	return stmtReturns(b.Stmts[len(b.Stmts)-1])
}

func stmtReturns(s ast.Stmt) bool {
	switch n := s.(type) {
	case *ast.Return, *ast.Throw:
		return true
	case *ast.Block:
		return blockReturns(n)
	case *ast.If:
		if n.Els == nil {
			return false
		}
		return blockReturns(n.Then) && stmtReturns(n.Els)
	case *ast.Try:
		if !blockReturns(n.Body) {
			return false
		}
		for _, cat := range n.Catches {
			if !blockReturns(cat.Body) {
				return false
			}
		}
		return true
	}
	return s.BlockEnding()
}

func (c *Checker) checkUdcDecl(n *ast.UdcDecl) {
	if !c.atToplevel() {
		c.errorf(n, "OutsideToplevel", "command declaration is only allowed at toplevel")
	}
	if _, ok := c.udcs[n.Name]; ok {
		c.errorf(n, "DefinedSymbol", "already defined command: %s", n.Name)
	}
	c.udcs[n.Name] = n

	c.funcs = append(c.funcs, funcCtx{retType: c.pool.Void})
	c.pushScope()
	c.checkStmts(n.Body.Stmts)
	c.popScope()
	fc := c.funcs[len(c.funcs)-1]
	c.funcs = c.funcs[:len(c.funcs)-1]
	n.MaxVarNum = fc.maxLocal
}

func (c *Checker) checkSource(n *ast.Source) {
	if !c.atToplevel() {
		c.errorf(n, "OutsideToplevel", "source is only allowed at toplevel")
	}
	var e ast.Expr = n.Path
	c.checkExpr(&e)
	path, ok := c.foldCmdArg(n.Path)
	if !ok {
		c.errorf(n.Path, "Constant", "source path must be a constant expression")
	}
	if strings.ContainsRune(path, 0) {
		c.errorf(n.Path, "NullInPath", "source path contains a null character")
	}
}
