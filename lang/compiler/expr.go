package compiler

import (
	"fmt"
	"strings"

	"github.com/mna/roseau/lang/ast"
	"github.com/mna/roseau/lang/token"
	"github.com/mna/roseau/lang/types"
)

func (b *builder) expr(x ast.Expr) {
	switch n := x.(type) {
	case *ast.IntLit:
		t := n.ComputedType()
		if t == b.comp.pool.Uint32 || t == b.comp.pool.Uint64 || t == b.comp.pool.Uint16 || t == b.comp.pool.Byte {
			b.emit2(LOAD_CONST, b.constant(UintConst(n.Val)))
		} else {
			b.emit2(LOAD_CONST, b.constant(IntConst(int64(n.Val))))
		}
		b.adjust(+1)

	case *ast.FloatLit:
		b.emit2(LOAD_CONST, b.constant(FloatConst(n.Val)))
		b.adjust(+1)

	case *ast.StringLit:
		b.loadStr(n.Val)

	case *ast.RegexLit:
		b.emit2(LOAD_CONST, b.constant(Const{Str: &n.Val, TypeID: b.comp.pool.Regex.ID()}))
		b.adjust(+1)

	case *ast.SignalLit:
		b.emit2(LOAD_CONST, b.constant(Const{Str: &n.Name, TypeID: b.comp.pool.Signal.ID()}))
		b.adjust(+1)

	case *ast.StringExpr:
		b.emit(NEW_STRING)
		b.adjust(+1)
		for _, part := range n.Parts {
			b.expr(part)
			b.emit(APPEND_STRING)
			b.adjust(-1)
		}

	case *ast.ArrayLit:
		b.emit4(NEW_ARRAY, uint32(n.ComputedType().ID()))
		b.adjust(+1)
		for _, e := range n.Elems {
			b.expr(e)
			b.emit(APPEND_ARRAY)
			b.adjust(-1)
		}

	case *ast.MapLit:
		b.emit4(NEW_MAP, uint32(n.ComputedType().ID()))
		b.adjust(+1)
		for i := range n.Keys {
			b.expr(n.Keys[i])
			b.expr(n.Vals[i])
			b.emit(APPEND_MAP)
			b.adjust(-2)
		}

	case *ast.TupleLit:
		for _, e := range n.Elems {
			b.expr(e)
		}
		b.emit4(NEW_TUPLE, uint32(n.ComputedType().ID()))
		b.adjust(-len(n.Elems) + 1)

	case *ast.Var:
		if n.Env {
			b.loadStr(n.Name)
			b.emit(LOAD_ENV)
			return
		}
		b.loadVar(n.Global, n.Index)

	case *ast.Access:
		b.expr(n.Recv)
		b.emit2(LOAD_FIELD, uint16(n.Handle.Index))

	case *ast.Index:
		b.expr(n.Recv)
		b.expr(n.Idx)
		b.emitCallMethod(n.GetHandle, 1, true)

	case *ast.Apply:
		b.expr(n.Fn)
		for _, a := range n.Args {
			b.expr(a)
		}
		b.emit2(CALL_FUNC, uint16(len(n.Args)))
		b.adjust(-len(n.Args) - 1)
		if n.ComputedType() != b.comp.pool.Void {
			b.adjust(+1)
		}

	case *ast.MethodCall:
		b.expr(n.Recv)
		for _, a := range n.Args {
			b.expr(a)
		}
		b.emitCallMethod(n.Handle, len(n.Args), n.ComputedType() != b.comp.pool.Void)

	case *ast.New:
		b.emit4(NEW, uint32(n.ComputedType().ID()))
		b.adjust(+1)
		for _, a := range n.Args {
			b.expr(a)
		}
		b.emit2(CALL_INIT, uint16(len(n.Args)))
		b.adjust(-len(n.Args))

	case *ast.Unary:
		b.unary(n)

	case *ast.Binary:
		b.binary(n)

	case *ast.Ternary:
		els, end := b.newLabel(), b.newLabel()
		b.expr(n.Cond)
		b.emitBranch(els)
		d0 := b.depth
		b.expr(n.Then)
		b.emitGoto(end)
		b.bind(els)
		b.depth = d0
		b.expr(n.Els)
		b.bind(end)

	case *ast.TypeOp:
		b.typeOp(n)

	case *ast.Substitution:
		kind := ForkStr
		switch {
		case n.Proc:
			kind = ForkProc
		case n.Split:
			kind = ForkArray
		}
		b.forkStmts(kind, n.Stmts)

	case *ast.Fork:
		kind := ForkBg
		switch n.Op {
		case token.DISOWN_BG:
			kind = ForkDisown
		case token.PIPE_BG:
			kind = ForkPipeBg
		}
		b.forkExpr(kind, n.X)

	case *ast.Cmd:
		b.cmdObj(n)
		b.emit(CALL_CMD)

	case *ast.Pipeline:
		for _, cm := range n.Cmds {
			b.cmdObj(cm.(*ast.Cmd))
		}
		b.emit1(CALL_PIPELINE, uint8(len(n.Cmds)))
		b.adjust(-len(n.Cmds) + 1)

	case *ast.With:
		b.withExpr(n)

	default:
		panic(fmt.Sprintf("compiler: unexpected expression %T", x))
	}
}

func (b *builder) unary(n *ast.Unary) {
	b.expr(n.X)
	switch {
	case n.Op == token.PLUS && n.Handle == nil:
		// identity
	case n.Op == token.NOT_OP || n.Op == token.NOT:
		if n.Handle != nil {
			b.emitCallMethod(n.Handle, 0, true)
			return
		}
		// Boolean negation
		t, end := b.newLabel(), b.newLabel()
		b.emitBranch(t)
		b.emit(PUSH_FALSE)
		b.adjust(+1)
		b.emitGoto(end)
		b.bind(t)
		b.adjust(-1)
		b.emit(PUSH_TRUE)
		b.adjust(+1)
		b.bind(end)
	default:
		b.emitCallMethod(n.Handle, 0, true)
	}
}

func (b *builder) binary(n *ast.Binary) {
	switch {
	case n.Op == token.COND_AND:
		f, end := b.newLabel(), b.newLabel()
		b.expr(n.Left)
		b.emitBranch(f)
		d0 := b.depth
		b.expr(n.Right)
		b.emitGoto(end)
		b.bind(f)
		b.depth = d0
		b.emit(PUSH_FALSE)
		b.adjust(+1)
		b.bind(end)

	case n.Op == token.COND_OR:
		f, end := b.newLabel(), b.newLabel()
		b.expr(n.Left)
		b.emitBranch(f)
		d0 := b.depth
		b.emit(PUSH_TRUE)
		b.adjust(+1)
		b.emitGoto(end)
		b.bind(f)
		b.depth = d0
		b.expr(n.Right)
		b.bind(end)

	case n.StrConcat:
		b.emit(NEW_STRING)
		b.adjust(+1)
		b.expr(n.Left)
		b.emit(APPEND_STRING)
		b.adjust(-1)
		b.expr(n.Right)
		b.emit(APPEND_STRING)
		b.adjust(-1)

	case n.FuncIdentity:
		b.expr(n.Left)
		b.expr(n.Right)
		if n.Op == token.EQL {
			b.emit(REF_EQ)
		} else {
			b.emit(REF_NE)
		}
		b.adjust(-1)

	case n.Op == token.MATCH || n.Op == token.UNMATCH:
		// lhs =~ re compiles as re.match(lhs)
		b.expr(n.Right)
		b.expr(n.Left)
		b.emitCallMethod(n.Handle, 1, true)
		if n.Op == token.UNMATCH {
			b.negate()
		}

	default:
		b.expr(n.Left)
		b.expr(n.Right)
		b.emitCallMethod(n.Handle, 1, true)
	}
}

// negate inverts the Boolean at the top of the stack.
func (b *builder) negate() {
	t, end := b.newLabel(), b.newLabel()
	b.emitBranch(t)
	b.emit(PUSH_FALSE)
	b.adjust(+1)
	b.emitGoto(end)
	b.bind(t)
	b.adjust(-1)
	b.emit(PUSH_TRUE)
	b.adjust(+1)
	b.bind(end)
}

func (b *builder) typeOp(n *ast.TypeOp) {
	b.expr(n.X)
	switch n.Op {
	case ast.NoCast:
		// representation is unchanged

	case ast.ToVoid:
		if !isVoid(n.X) {
			b.emit(POP)
			b.adjust(-1)
		}

	case ast.NumCast:
		b.emit4(NUM_CAST, uint32(n.To.ID()))

	case ast.ToString:
		h := n.X.ComputedType().LookupMethod(types.OpStr)
		b.emitCallMethod(h, 0, true)

	case ast.ToBool:
		h := n.X.ComputedType().LookupMethod(types.OpBool)
		b.emitCallMethod(h, 0, true)

	case ast.CheckCast:
		b.emit4(CHECK_CAST, uint32(n.To.ID()))

	case ast.CheckUnwrap:
		b.emit(UNWRAP)

	case ast.Print:
		b.emit4(PRINT, uint32(n.To.ID()))
		b.adjust(-1)

	case ast.AlwaysTrue:
		b.emit(POP)
		b.emit(PUSH_TRUE)

	case ast.AlwaysFalse:
		b.emit(POP)
		b.emit(PUSH_FALSE)

	case ast.Instanceof:
		b.emit4(INSTANCE_OF, uint32(n.To.ID()))
	}
}

// forkExpr compiles the body into a subshell code constant and emits FORK.
func (b *builder) forkExpr(kind ForkKind, body ast.Expr) {
	sb := b.comp.newBuilder(KindSubshell, "", b.code.LocalVarNum)
	sb.expr(body)
	if !isVoid(body) {
		sb.emit(POP)
		sb.adjust(-1)
	}
	sb.emit(RETURN)
	b.emitForkCode(kind, sb.finish())
}

// forkStmts compiles a substitution's statement list into a subshell code
// constant and emits FORK.
func (b *builder) forkStmts(kind ForkKind, stmts []ast.Stmt) {
	sb := b.comp.newBuilder(KindSubshell, "", b.code.LocalVarNum)
	for _, s := range stmts {
		sb.stmt(s)
	}
	sb.emit(RETURN)
	b.emitForkCode(kind, sb.finish())
}

func (b *builder) emitForkCode(kind ForkKind, sc *Code) {
	b.code.Constants = append(b.code.Constants, CodeConst(sc))
	b.emitFork(kind, uint16(len(b.code.Constants)-1))
	b.adjust(+1)
}

// withExpr compiles `x with redirs`: the redirections are collected into a
// holder and the body runs inline with them applied.
func (b *builder) withExpr(n *ast.With) {
	b.emit(PUSH_ESTRING)
	b.adjust(+1)
	b.emit(NEW_CMD)
	for _, r := range n.Redirs {
		b.redir(r)
	}

	sb := b.comp.newBuilder(KindSubshell, "", b.code.LocalVarNum)
	sb.expr(n.X)
	if isVoid(n.X) {
		sb.emit(RETURN)
	} else {
		sb.emit(RETURN_V)
		sb.adjust(-1)
	}
	sc := sb.finish()

	b.code.Constants = append(b.code.Constants, CodeConst(sc))
	b.emit2(WITH_DO, uint16(len(b.code.Constants)-1))
	b.adjust(-1) // the holder
	if !isVoid(n.X) {
		b.adjust(+1)
	}
}

// cmdObj compiles a command into a command object left on the stack.
func (b *builder) cmdObj(n *ast.Cmd) {
	b.pos(n)
	b.loadStr(n.Name)
	b.emit(NEW_CMD)
	for _, a := range n.Args {
		switch arg := a.(type) {
		case *ast.CmdArg:
			flags := b.exprForArgFlags(arg)
			b.emit1(ADD_CMD_ARG, flags)
			b.adjust(-1)
		case *ast.Redir:
			b.redir(arg)
		}
	}
}

const (
	argFlagGlob  = 1 << 0
	argFlagTilde = 1 << 1
)

// exprForArg compiles a command argument value onto the stack.
func (b *builder) exprForArg(arg *ast.CmdArg) {
	b.exprForArgFlags(arg)
}

// exprForArgFlags compiles the argument value and returns its expansion
// flags.
func (b *builder) exprForArgFlags(arg *ast.CmdArg) uint8 {
	var flags uint8
	if arg.HasGlob {
		flags |= argFlagGlob
	}
	if _, ok := arg.Segs[0].(*ast.Tilde); ok {
		flags |= argFlagTilde
	}

	if len(arg.Segs) == 1 {
		b.argSeg(arg.Segs[0], arg.HasGlob)
		return flags
	}
	b.emit(NEW_STRING)
	b.adjust(+1)
	for _, seg := range arg.Segs {
		b.argSeg(seg, arg.HasGlob)
		b.emit(APPEND_STRING)
		b.adjust(-1)
	}
	return flags
}

func (b *builder) argSeg(seg ast.Expr, glob bool) {
	switch s := seg.(type) {
	case *ast.GlobSeg:
		if s.Kind == token.GLOB_ZERO_OR_MORE {
			b.loadStr("*")
		} else {
			b.loadStr("?")
		}
	case *ast.Tilde:
		b.loadStr("~" + s.Name)
	case *ast.StringLit:
		v := s.Val
		if glob {
			// literal text in a glob argument must not act as pattern
			v = escapeGlobMeta(v)
		}
		b.loadStr(v)
	default:
		b.expr(seg)
	}
}

func escapeGlobMeta(s string) string {
	if !strings.ContainsAny(s, `*?[\`) {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

// redir compiles one redirection onto the command at the top of the stack.
func (b *builder) redir(r *ast.Redir) {
	if r.Target != nil {
		b.exprForArg(r.Target)
	} else {
		b.emit(PUSH_ESTRING)
		b.adjust(+1)
	}
	b.emit1(ADD_REDIR, uint8(redirOpOf(r.Op)))
	b.adjust(-1)
}

func redirOpOf(k token.Kind) RedirOp {
	switch k {
	case token.REDIR_IN:
		return RedirIn
	case token.REDIR_OUT:
		return RedirOut
	case token.REDIR_APPEND:
		return RedirAppend
	case token.REDIR_ERR:
		return RedirErr
	case token.REDIR_ERR_APPEND:
		return RedirErrAppend
	case token.REDIR_MERGE:
		return RedirMerge
	case token.REDIR_MERGE_APP:
		return RedirMergeApp
	case token.REDIR_ERR_2_OUT:
		return RedirErr2Out
	case token.REDIR_OUT_2_ERR:
		return RedirOut2Err
	case token.REDIR_HERE_STR:
		return RedirHereStr
	}
	panic(fmt.Sprintf("compiler: not a redirection operator: %s", k))
}

// setHandleFor returns the set method matching a checked Index node used
// as an assignment target.
func setHandleFor(idx *ast.Index) *types.MethodHandle {
	recvType := idx.Recv.ComputedType()
	if recvType.IsOption() {
		recvType = recvType.Elem(0)
	}
	return recvType.LookupMethod(types.OpSet)
}
