package compiler

import (
	"fmt"

	"github.com/mna/roseau/lang/ast"
)

func (b *builder) stmt(s ast.Stmt) {
	b.pos(s)
	switch n := s.(type) {
	case *ast.ExprStmt:
		b.expr(n.X)
		// a Void-typed expression leaves nothing on the stack

	case *ast.Block:
		for _, st := range n.Stmts {
			b.stmt(st)
		}

	case *ast.VarDecl:
		if n.Init != nil {
			b.expr(n.Init)
		} else {
			b.emit(PUSH_INVALID)
			b.adjust(+1)
		}
		b.storeVar(n.Global, n.Index)

	case *ast.Assign:
		b.assign(n)

	case *ast.If:
		b.ifStmt(n)

	case *ast.While:
		cont, brk := b.newLabel(), b.newLabel()
		b.pushLoop(cont, brk, false)
		b.bind(cont)
		b.expr(n.Cond)
		b.emitBranch(brk)
		b.stmt(n.Body)
		b.emitGoto(cont)
		b.bind(brk)
		b.popLoop()

	case *ast.DoWhile:
		body, cont, brk := b.newLabel(), b.newLabel(), b.newLabel()
		b.pushLoop(cont, brk, false)
		b.bind(body)
		b.stmt(n.Body)
		b.bind(cont)
		b.expr(n.Cond)
		b.emitBranch(brk)
		b.emitGoto(body)
		b.bind(brk)
		b.popLoop()

	case *ast.For:
		if n.Init != nil {
			b.stmt(n.Init)
		}
		cond, cont, brk := b.newLabel(), b.newLabel(), b.newLabel()
		b.pushLoop(cont, brk, false)
		b.bind(cond)
		if n.Cond != nil {
			b.expr(n.Cond)
			b.emitBranch(brk)
		}
		b.stmt(n.Body)
		b.bind(cont)
		if n.Iter != nil {
			b.stmt(n.Iter)
		}
		b.emitGoto(cond)
		b.bind(brk)
		b.popLoop()

	case *ast.ForIn:
		b.forIn(n)

	case *ast.Case:
		b.caseStmt(n)

	case *ast.Break:
		if n.Val != nil {
			// the loop is in statement position, the break value is
			// evaluated then discarded
			b.expr(n.Val)
			if !isVoid(n.Val) {
				b.emit(POP)
				b.adjust(-1)
			}
		}
		lp := b.loops[len(b.loops)-1]
		b.enterFinallies(len(b.loops) - 1)
		b.emitGoto(lp.brk)

	case *ast.Continue:
		lp := b.loops[len(b.loops)-1]
		b.enterFinallies(len(b.loops) - 1)
		b.emitGoto(lp.cont)

	case *ast.Return:
		if n.Val != nil && !isVoid(n.Val) {
			b.expr(n.Val)
			b.enterFinallies(-1)
			b.emit(RETURN_V)
			b.adjust(-1)
		} else {
			if n.Val != nil {
				b.expr(n.Val)
			}
			b.enterFinallies(-1)
			b.emit(RETURN)
		}

	case *ast.Throw:
		b.expr(n.Val)
		b.emit(THROW)
		b.adjust(-1)

	case *ast.Try:
		b.tryStmt(n)

	case *ast.Assert:
		b.expr(n.Cond)
		if n.Msg != nil {
			b.expr(n.Msg)
		} else {
			// the default message is the condition's source text
			start, end := n.Cond.Span()
			b.loadStr(string(b.comp.file.Src()[start:end]))
		}
		b.emit(ASSERT)
		b.adjust(-2)

	case *ast.ImportEnv:
		b.loadStr(n.Name)
		flag := uint8(0)
		if n.Default != nil {
			b.expr(n.Default)
			flag = 1
		}
		b.emit1(IMPORT_ENV, flag)
		if flag == 1 {
			b.adjust(-1)
		}
		// IMPORT_ENV replaces the name with the imported value
		b.storeVar(n.Global, n.Index)

	case *ast.ExportEnv:
		b.loadStr(n.Name)
		b.expr(n.Val)
		b.emit(STORE_ENV)
		b.adjust(-2)

	case *ast.TypeAlias:
		// resolved at check time, no code

	case *ast.FuncDecl:
		b.funcDecl(n)

	case *ast.UdcDecl:
		b.udcDecl(n)

	case *ast.Source:
		// sourcing is routed through the source built-in, which compiles
		// and evaluates the file in the current interpreter
		b.loadStr("source")
		b.emit(NEW_CMD)
		b.exprForArg(n.Path)
		b.emit1(ADD_CMD_ARG, 0)
		b.adjust(-1)
		b.emit(CALL_CMD)
		b.emit(POP)
		b.adjust(-1)

	default:
		panic(fmt.Sprintf("compiler: unexpected statement %T", s))
	}
}

func isVoid(x ast.Expr) bool {
	t := x.ComputedType()
	return t != nil && (t.Name() == "Void" || t.Name() == "Nothing")
}

func (b *builder) pushLoop(cont, brk *label, iter bool) {
	b.loops = append(b.loops, loopLabels{brk: brk, cont: cont, iter: iter})
}

func (b *builder) popLoop() { b.loops = b.loops[:len(b.loops)-1] }

func (b *builder) storeVar(global bool, index int) {
	if global {
		b.emit2(STORE_GLOBAL, uint16(index))
	} else {
		b.emit2(STORE_LOCAL, uint16(index))
	}
	b.adjust(-1)
}

func (b *builder) loadVar(global bool, index int) {
	if global {
		b.emit2(LOAD_GLOBAL, uint16(index))
	} else {
		b.emit2(LOAD_LOCAL, uint16(index))
	}
	b.adjust(+1)
}

func (b *builder) assign(n *ast.Assign) {
	if n.Element != nil {
		e := n.Element
		b.expr(e.Recv)
		b.expr(e.Idx)
		b.emit(DUP2)
		b.adjust(+2)
		b.emitCallMethod(e.GetHandle, 1, true)
		b.expr(e.Bin.Right)
		b.emitCallMethod(e.Bin.Handle, 1, true)
		b.emitCallMethod(e.SetHandle, 2, false)
		return
	}

	switch left := n.Left.(type) {
	case *ast.Var:
		if left.Env {
			b.loadStr(left.Name)
			b.expr(n.Right)
			b.emit(STORE_ENV)
			b.adjust(-2)
			return
		}
		b.expr(n.Right)
		b.storeVar(left.Global, left.Index)

	case *ast.Access:
		b.expr(left.Recv)
		b.expr(n.Right)
		b.emit2(STORE_FIELD, uint16(left.Handle.Index))
		b.adjust(-2)

	case *ast.Index:
		b.expr(left.Recv)
		b.expr(left.Idx)
		b.expr(n.Right)
		set := setHandleFor(left)
		b.emitCallMethod(set, 2, false)

	default:
		panic(fmt.Sprintf("compiler: unexpected assignment target %T", n.Left))
	}
}

func (b *builder) ifStmt(n *ast.If) {
	els, end := b.newLabel(), b.newLabel()
	b.expr(n.Cond)
	b.emitBranch(els)
	b.stmt(n.Then)
	if n.Els != nil {
		b.emitGoto(end)
		b.bind(els)
		b.stmt(n.Els)
		b.bind(end)
	} else {
		b.bind(els)
		b.bind(end)
	}
}

func (b *builder) forIn(n *ast.ForIn) {
	cont, brk := b.newLabel(), b.newLabel()
	b.expr(n.X)
	b.emit(ITER_INIT)
	b.pushLoop(cont, brk, true)
	b.bind(cont)
	b.emitAbs(ITER_NEXT, brk)
	b.adjust(+1)
	b.emit2(STORE_LOCAL, uint16(n.VarIndex))
	b.adjust(-1)
	b.stmt(n.Body)
	b.emitGoto(cont)
	b.bind(brk)
	b.emit(POP) // the iterator
	b.adjust(-1)
	b.popLoop()
}

func (b *builder) caseStmt(n *ast.Case) {
	end := b.newLabel()
	b.expr(n.X)
	d1 := b.depth // target value on the stack

	for _, arm := range n.Arms {
		b.depth = d1
		if arm.Default {
			b.emit(POP)
			b.adjust(-1)
			b.stmt(arm.Body)
			b.emitGoto(end)
			continue
		}

		body, next := b.newLabel(), b.newLabel()
		for _, pat := range arm.Pats {
			b.emit(DUP)
			b.adjust(+1)
			b.expr(pat)
			b.emitCallMethod(n.EqHandle, 1, true)
			// a match jumps to the arm body
			miss := b.newLabel()
			b.emitBranch(miss)
			b.emitGoto(body)
			b.bind(miss)
		}
		b.emitGoto(next)

		b.bind(body)
		b.depth = d1
		b.emit(POP)
		b.adjust(-1)
		b.stmt(arm.Body)
		b.emitGoto(end)
		b.bind(next)
	}

	// no arm matched, drop the target
	b.depth = d1
	b.emit(POP)
	b.adjust(-1)
	b.bind(end)
	b.depth = d1 - 1
}

func (b *builder) tryStmt(n *ast.Try) {
	depth0 := b.depth
	end := b.newLabel()
	var fin *label
	if n.Finally != nil {
		fin = b.newLabel()
		b.finallies = append(b.finallies, &tryCtx{finally: fin, loopDepth: len(b.loops)})
	}

	begin := b.pc()
	b.stmt(n.Body)
	if fin != nil {
		b.emitAbs(ENTER_FINALLY, fin)
	}
	b.emitGoto(end)
	bodyEnd := b.pc()

	for _, cat := range n.Catches {
		handler := b.pc()
		b.depth = depth0 + 1 // the raised value
		b.emit2(STORE_LOCAL, uint16(cat.VarIndex))
		b.adjust(-1)
		b.stmt(cat.Body)
		if fin != nil {
			b.emitAbs(ENTER_FINALLY, fin)
		}
		b.emitGoto(end)
		b.code.Exceptions = append(b.code.Exceptions, ExceptionEntry{
			TypeID:  cat.Type.ID(),
			Begin:   begin,
			End:     bodyEnd,
			Handler: handler,
		})
	}
	catchesEnd := b.pc()

	if fin != nil {
		b.finallies = b.finallies[:len(b.finallies)-1]

		// the catch-all entry runs the finally block then resumes
		// unwinding; it also covers the catch bodies
		rethrow := b.pc()
		b.depth = depth0 + 1
		b.emitAbs(ENTER_FINALLY, fin)
		b.emit(THROW)
		b.adjust(-1)
		b.code.Exceptions = append(b.code.Exceptions, ExceptionEntry{
			TypeID:  b.comp.pool.Any.ID(),
			Begin:   begin,
			End:     catchesEnd,
			Handler: rethrow,
		})

		b.bind(fin)
		// on the exception path the in-flight value sits below the
		// sentinel, so account for both
		b.depth = depth0 + 2
		b.stmt(n.Finally)
		b.emit(EXIT_FINALLY)
		b.adjust(-1)
	}

	b.bind(end)
	b.depth = depth0
}

func (b *builder) funcDecl(n *ast.FuncDecl) {
	fb := b.comp.newBuilder(KindFunction, n.Name, n.MaxVarNum)
	fb.code.ParamNum = len(n.Params)
	for _, st := range n.Body.Stmts {
		fb.stmt(st)
	}
	fb.emit(RETURN)
	fc := fb.finish()

	b.code.Constants = append(b.code.Constants, CodeConst(fc))
	idx := uint16(len(b.code.Constants) - 1)
	b.emit2(LOAD_FUNC, idx)
	b.adjust(+1)
	b.storeVar(true, n.Index)
}

func (b *builder) udcDecl(n *ast.UdcDecl) {
	ub := b.comp.newBuilder(KindUserDefinedCmd, n.Name, n.MaxVarNum)
	for _, st := range n.Body.Stmts {
		ub.stmt(st)
	}
	ub.emit(RETURN)
	b.comp.top.code.Udcs = append(b.comp.top.code.Udcs, ub.finish())
}
