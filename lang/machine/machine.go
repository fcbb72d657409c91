package machine

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/mna/roseau/lang/compiler"
	"github.com/mna/roseau/lang/types"
	"golang.org/x/sys/unix"
)

func fdFile(fd int) *os.File {
	return os.NewFile(uintptr(fd), fmt.Sprintf("fd/%d", fd))
}

// printTrace writes an error value's stack trace.
func printTrace(w io.Writer, e *Error) {
	fmt.Fprintf(w, "[runtime error]\n%s: %s\n", e.T.Name(), e.Message)
	for _, fr := range e.Trace {
		src := fr.Source
		if src == "" {
			src = "<input>"
		}
		fmt.Fprintf(w, "    from %s:%d '%s'\n", src, fr.Line, fr.Name)
	}
}

// PrintTrace writes the stack trace of a raised error value, used by the
// launcher for unhandled toplevel errors.
func PrintTrace(w io.Writer, v Value) {
	if e, ok := v.(*Error); ok {
		printTrace(w, e)
		return
	}
	fmt.Fprintf(w, "[runtime error]\n%s\n", v.String())
}

// EvalToplevel runs a toplevel code unit.
func (th *Thread) EvalToplevel(code *compiler.Code) (Value, error) {
	th.RT.EnsureGlobals(code.GlobalVarNum)
	locals := make([]Value, code.LocalVarNum)
	return th.eval(code, locals)
}

// CallFunction invokes a function value with the arguments, winding a new
// frame.
func (th *Thread) CallFunction(fn *Function, args []Value) (Value, error) {
	locals := make([]Value, fn.Code.LocalVarNum)
	copy(locals, args)
	return th.eval(fn.Code, locals)
}

// EvalCode runs a code unit over the provided locals; used by the process
// executor for subshell and user-defined command bodies.
func (th *Thread) EvalCode(code *compiler.Code, locals []Value) (Value, error) {
	return th.eval(code, locals)
}

// finallyRet is the sentinel pushed by ENTER_FINALLY: the pc to resume at
// when the finally block exits normally.
type finallyRet struct {
	pc uint32
}

func (f *finallyRet) VType() *types.Type { return nil }
func (f *finallyRet) String() string     { return "(finally)" }

func (th *Thread) eval(code *compiler.Code, locals []Value) (result Value, err error) {
	if th.frames >= MaxFrames {
		return nil, th.RaiseError(th.RT.Pool.StackOverflowError, "frame stack limit exceeded")
	}
	th.frames++
	defer func() { th.frames-- }()

	rt := th.RT
	pool := rt.Pool
	insns := code.Insns
	stack := make([]Value, code.MaxStackDepth+4)
	sp := 0
	var pc uint32

	push := func(v Value) {
		stack[sp] = v
		sp++
	}
	pop := func() Value {
		sp--
		return stack[sp]
	}

	var inFlight Value

loop:
	for {
		opPC := pc
		var op compiler.Opcode
		var arg uint32

		// signal delivery at instruction boundaries
		if rt.Signals.Pending() {
			if err := th.deliverSignals(); err != nil {
				if v := Raised(err); v != nil {
					inFlight = v
					goto unwind
				}
				return nil, err
			}
		}

		op = compiler.Opcode(insns[pc])
		pc++
		switch op.Width() {
		case 1:
			arg = uint32(insns[pc])
			pc++
		case 2:
			arg = uint32(binary.BigEndian.Uint16(insns[pc:]))
			pc += 2
		case 3:
			arg = uint32(insns[pc])<<16 | uint32(binary.BigEndian.Uint16(insns[pc+1:]))
			pc += 3
		case 4:
			arg = binary.BigEndian.Uint32(insns[pc:])
			pc += 4
		}

		switch op {
		case compiler.NOP:

		case compiler.STOP_EVAL:
			return result, nil

		case compiler.ASSERT:
			msg := pop()
			cond := pop()
			if !rt.DisableAssert && !Truth(cond) {
				inFlight = &Error{
					T:       pool.AssertFail,
					Message: "assertion failed: " + msg.String(),
					Trace:   th.trace(code, opPC),
				}
				goto unwind
			}

		case compiler.POP:
			pop()

		case compiler.DUP:
			v := stack[sp-1]
			push(v)

		case compiler.DUP2:
			a, b := stack[sp-2], stack[sp-1]
			push(a)
			push(b)

		case compiler.SWAP:
			stack[sp-1], stack[sp-2] = stack[sp-2], stack[sp-1]

		case compiler.PUSH_TRUE:
			push(&Bool{T: pool.Boolean, V: true})

		case compiler.PUSH_FALSE:
			push(&Bool{T: pool.Boolean, V: false})

		case compiler.PUSH_ESTRING:
			push(&Str{T: pool.String})

		case compiler.PUSH_INVALID:
			push(None)

		case compiler.LOAD_CONST:
			push(th.constValue(code.Constants[arg]))

		case compiler.LOAD_LOCAL:
			push(locals[arg])

		case compiler.STORE_LOCAL:
			locals[arg] = pop()

		case compiler.LOAD_GLOBAL:
			push(rt.Globals[arg])

		case compiler.STORE_GLOBAL:
			rt.Globals[arg] = pop()

		case compiler.LOAD_FIELD:
			recv := pop()
			push(recv.(*Tuple).Fields[arg])

		case compiler.STORE_FIELD:
			v := pop()
			recv := pop()
			recv.(*Tuple).Fields[arg] = v

		case compiler.LOAD_FUNC:
			fc := code.Constants[arg].Code
			ft := funcTypeOf(pool, fc)
			push(&Function{T: ft, Code: fc})

		case compiler.IMPORT_ENV:
			var def Value
			if arg == 1 {
				def = pop()
			}
			name := pop().(*Str).V
			v, ok := os.LookupEnv(name)
			if !ok {
				if def == nil {
					inFlight = &Error{
						T:       pool.SystemError,
						Message: "undefined environment variable: " + name,
						Trace:   th.trace(code, opPC),
					}
					goto unwind
				}
				v = def.(*Str).V
				os.Setenv(name, v)
			}
			push(&Str{T: pool.String, V: v})

		case compiler.LOAD_ENV:
			name := pop().(*Str).V
			push(&Str{T: pool.String, V: os.Getenv(name)})

		case compiler.STORE_ENV:
			v := pop()
			name := pop().(*Str).V
			os.Setenv(name, v.String())

		case compiler.NEW_STRING:
			push(&Str{T: pool.String})

		case compiler.APPEND_STRING:
			v := pop()
			s := stack[sp-1].(*Str)
			stack[sp-1] = &Str{T: pool.String, V: s.V + v.String()}

		case compiler.NEW_ARRAY:
			push(&Array{T: pool.ByID(int(arg))})

		case compiler.APPEND_ARRAY:
			v := pop()
			a := stack[sp-1].(*Array)
			a.Elems = append(a.Elems, v)

		case compiler.NEW_MAP:
			push(NewMap(pool.ByID(int(arg)), 8))

		case compiler.APPEND_MAP:
			v := pop()
			k := pop()
			stack[sp-1].(*Map).Set(k, v)

		case compiler.NEW_TUPLE:
			t := pool.ByID(int(arg))
			n := t.ElemNum()
			fields := make([]Value, n)
			copy(fields, stack[sp-n:sp])
			sp -= n
			push(&Tuple{T: t, Fields: fields})

		case compiler.NEW:
			push(&Error{T: pool.ByID(int(arg))})

		case compiler.CALL_INIT:
			var msg string
			if arg == 1 {
				msg = pop().(*Str).V
			}
			e := stack[sp-1].(*Error)
			e.Message = msg
			e.Trace = th.trace(code, opPC)

		case compiler.CALL_METHOD:
			methIdx := arg >> 16
			argc := int(arg & 0xFFFF)
			args := make([]Value, argc)
			copy(args, stack[sp-argc:sp])
			sp -= argc
			recv := pop()
			h := pool.Methods()[methIdx]
			res, err := rt.methods[methIdx](th, recv, args)
			if err != nil {
				if v := Raised(err); v != nil {
					th.addTrace(v, code, opPC)
					inFlight = v
					goto unwind
				}
				return nil, err
			}
			if returnsValue(pool, h) {
				push(res)
			}

		case compiler.CALL_FUNC:
			argc := int(arg)
			args := make([]Value, argc)
			copy(args, stack[sp-argc:sp])
			sp -= argc
			fn := pop().(*Function)
			res, err := th.CallFunction(fn, args)
			if err != nil {
				if v := Raised(err); v != nil {
					th.addTrace(v, code, opPC)
					inFlight = v
					goto unwind
				}
				return nil, err
			}
			// a Void function body returns no value
			if res != nil {
				push(res)
			}

		case compiler.BRANCH:
			off := int16(arg)
			if !Truth(pop()) {
				pc = uint32(int32(pc) + int32(off))
			}

		case compiler.GOTO:
			pc = arg

		case compiler.RETURN:
			return nil, nil

		case compiler.RETURN_V:
			return pop(), nil

		case compiler.THROW:
			inFlight = pop()
			th.addTrace(inFlight, code, opPC)
			goto unwind

		case compiler.ENTER_FINALLY:
			push(&finallyRet{pc: pc})
			pc = arg

		case compiler.EXIT_FINALLY:
			switch v := pop().(type) {
			case *finallyRet:
				pc = v.pc
			default:
				inFlight = v
				goto unwind
			}

		case compiler.PRINT:
			v := pop()
			fmt.Fprintln(rt.Stdout, v.String())

		case compiler.INSTANCE_OF:
			v := pop()
			t := pool.ByID(int(arg))
			vt := v.VType()
			push(&Bool{T: pool.Boolean, V: vt != nil && vt.IsSubtypeOf(t)})

		case compiler.CHECK_CAST:
			v := stack[sp-1]
			t := pool.ByID(int(arg))
			vt := v.VType()
			if vt == nil || !vt.IsSubtypeOf(t) {
				name := "(invalid)"
				if vt != nil {
					name = vt.Name()
				}
				inFlight = &Error{
					T:       pool.TypeCastError,
					Message: fmt.Sprintf("cannot cast %s to %s", name, t.Name()),
					Trace:   th.trace(code, opPC),
				}
				goto unwind
			}

		case compiler.NUM_CAST:
			v := pop()
			push(numCast(pool, v, pool.ByID(int(arg))))

		case compiler.UNWRAP:
			if _, none := stack[sp-1].(*Invalid); none {
				inFlight = &Error{
					T:       pool.UnwrappingError,
					Message: "invalid value",
					Trace:   th.trace(code, opPC),
				}
				goto unwind
			}

		case compiler.REF_EQ:
			b := pop()
			a := pop()
			push(&Bool{T: pool.Boolean, V: sameFunc(a, b)})

		case compiler.REF_NE:
			b := pop()
			a := pop()
			push(&Bool{T: pool.Boolean, V: !sameFunc(a, b)})

		case compiler.ITER_INIT:
			push(newIterator(pop()))

		case compiler.ITER_NEXT:
			it := stack[sp-1].(*iterator)
			v, ok := it.next(pool)
			if !ok {
				pc = arg
			} else {
				push(v)
			}

		case compiler.NEW_CMD:
			name := pop().(*Str).V
			push(&Cmd{T: pool.Any, Name: name})

		case compiler.ADD_CMD_ARG:
			v := pop()
			c := stack[sp-1].(*Cmd)
			addCmdArg(th, c, v, uint8(arg))

		case compiler.ADD_REDIR:
			v := pop()
			c := stack[sp-1].(*Cmd)
			c.Redirs = append(c.Redirs, Redir{Op: compiler.RedirOp(arg), Target: v.String()})

		case compiler.CALL_CMD:
			c := pop().(*Cmd)
			status, err := rt.Exec.CallCommand(th, c)
			if err != nil {
				if v := Raised(err); v != nil {
					th.addTrace(v, code, opPC)
					inFlight = v
					goto unwind
				}
				return nil, err
			}
			rt.SetExitStatus(status)
			push(&Bool{T: pool.Boolean, V: status == 0})

		case compiler.CALL_PIPELINE:
			n := int(arg)
			cmds := make([]*Cmd, n)
			for i := n - 1; i >= 0; i-- {
				cmds[i] = pop().(*Cmd)
			}
			status, err := rt.Exec.CallPipeline(th, cmds)
			if err != nil {
				if v := Raised(err); v != nil {
					th.addTrace(v, code, opPC)
					inFlight = v
					goto unwind
				}
				return nil, err
			}
			rt.SetExitStatus(status)
			push(&Bool{T: pool.Boolean, V: status == 0})

		case compiler.FORK:
			kind := compiler.ForkKind(arg >> 16)
			fc := code.Constants[arg&0xFFFF].Code
			v, err := rt.Exec.Fork(th, kind, fc, locals)
			if err != nil {
				if rv := Raised(err); rv != nil {
					th.addTrace(rv, code, opPC)
					inFlight = rv
					goto unwind
				}
				return nil, err
			}
			push(v)

		case compiler.WITH_DO:
			holder := pop().(*Cmd)
			fc := code.Constants[arg].Code
			v, err := rt.Exec.WithRedir(th, holder, fc, locals)
			if err != nil {
				if rv := Raised(err); rv != nil {
					th.addTrace(rv, code, opPC)
					inFlight = rv
					goto unwind
				}
				return nil, err
			}
			if v != nil {
				push(v)
			}

		default:
			return nil, fmt.Errorf("machine: illegal opcode %d at pc %d", uint8(op), opPC)
		}
		continue

	unwind:
		// walk the exception table in order; the first entry whose range
		// contains the raising pc and whose type covers the raised value
		// handles it
		vt := valueTypeOf(pool, inFlight)
		for _, e := range code.Exceptions {
			if opPC < e.Begin || opPC >= e.End {
				continue
			}
			ht := pool.ByID(e.TypeID)
			if !vt.IsSubtypeOf(ht) {
				continue
			}
			sp = 0
			push(inFlight)
			pc = e.Handler
			inFlight = nil
			continue loop
		}
		return nil, Throw(inFlight)
	}
}

// valueTypeOf returns the pool type of a value, mapping the typeless
// internal values to Any.
func valueTypeOf(pool *types.Pool, v Value) *types.Type {
	if t := v.VType(); t != nil {
		return t
	}
	return pool.Any
}

func returnsValue(pool *types.Pool, h *types.MethodHandle) bool {
	return h.Return != pool.Void
}

func sameFunc(a, b Value) bool {
	fa, aok := a.(*Function)
	fb, bok := b.(*Function)
	if !aok || !bok {
		return a == b
	}
	return fa.Code == fb.Code
}

func numCast(pool *types.Pool, v Value, to *types.Type) Value {
	var f float64
	var i int64
	var u uint64
	switch x := v.(type) {
	case *Int:
		i, u, f = x.V, uint64(x.V), float64(x.V)
	case *Uint:
		i, u, f = int64(x.V), x.V, float64(x.V)
	case *Float:
		i, u, f = int64(x.V), uint64(x.V), x.V
	}
	switch to {
	case pool.Float:
		return &Float{T: to, V: f}
	case pool.Byte:
		return &Uint{T: to, V: uint64(uint8(u))}
	case pool.Uint16:
		return &Uint{T: to, V: uint64(uint16(u))}
	case pool.Uint32:
		return &Uint{T: to, V: uint64(uint32(u))}
	case pool.Uint64:
		return &Uint{T: to, V: u}
	case pool.Int16:
		return &Int{T: to, V: int64(int16(i))}
	default:
		return &Int{T: to, V: i}
	}
}

// constValue converts a constant pool entry to its runtime value.
func (th *Thread) constValue(ct compiler.Const) Value {
	pool := th.RT.Pool
	switch {
	case ct.Int != nil:
		return &Int{T: pool.Int, V: *ct.Int}
	case ct.Uint != nil:
		return &Uint{T: pool.Uint64, V: *ct.Uint}
	case ct.Float != nil:
		return &Float{T: pool.Float, V: *ct.Float}
	case ct.Str != nil:
		switch ct.TypeID {
		case pool.Regex.ID():
			re := regexp.MustCompile(*ct.Str)
			return &Regex{T: pool.Regex, Re: re}
		case pool.Signal.ID():
			return &Signal{T: pool.Signal, Sig: unix.SignalNum("SIG" + strings.ToUpper(*ct.Str))}
		}
		return &Str{T: pool.String, V: *ct.Str}
	case ct.Code != nil:
		return &Function{T: funcTypeOf(pool, ct.Code), Code: ct.Code}
	}
	return None
}

// funcTypeOf returns a best-effort Func instance for a code constant; the
// precise type was established at check time, only identity matters at
// runtime.
func funcTypeOf(pool *types.Pool, _ *compiler.Code) *types.Type {
	t, err := pool.Reify(pool.Func, pool.Any)
	if err != nil {
		panic(err)
	}
	return t
}

// trace builds a one-frame stack trace for an error raised at pc.
func (th *Thread) trace(code *compiler.Code, pc uint32) []TraceFrame {
	name := code.Name
	if name == "" {
		name = "<" + code.Kind.String() + ">"
	}
	return []TraceFrame{{Source: code.SourceName, Line: code.LineAt(pc), Name: name}}
}

// addTrace appends the current frame to a raised error's trace.
func (th *Thread) addTrace(v Value, code *compiler.Code, pc uint32) {
	e, ok := v.(*Error)
	if !ok {
		return
	}
	name := code.Name
	if name == "" {
		name = "<" + code.Kind.String() + ">"
	}
	e.Trace = append(e.Trace, TraceFrame{
		Source: code.SourceName,
		Line:   code.LineAt(pc),
		Name:   name,
	})
}

// deliverSignals drains the pending signals and invokes the user handler
// for each, raising a SystemError subtype when no handler is installed for
// an interrupting signal.
func (th *Thread) deliverSignals() error {
	rt := th.RT
	sigs := rt.Signals.Drain()
	for _, sig := range sigs {
		fn := rt.handler[int(sig)]
		if fn == nil {
			if sig == unix.SIGINT {
				return th.RaiseError(rt.Pool.SystemError, "interrupted")
			}
			continue
		}
		rt.Signals.Mask()
		_, err := th.CallFunction(fn, []Value{&Signal{T: rt.Pool.Signal, Sig: sig}})
		rt.Signals.Unmask()
		if err != nil {
			return err
		}
	}
	return nil
}

// addCmdArg appends an expanded argument to the command under
// construction. Tilde and glob expansion flags are stored with the argv
// index and resolved by the executor.
func addCmdArg(_ *Thread, c *Cmd, v Value, flags uint8) {
	if arr, ok := v.(*Array); ok {
		for _, e := range arr.Elems {
			c.Argv = append(c.Argv, e.String())
		}
		return
	}
	c.Argv = append(c.Argv, v.String())
	if flags != 0 {
		c.Flags = append(c.Flags, ArgFlag{Index: len(c.Argv) - 1, Flags: flags})
	}
}

// iterator drives the ITER_INIT/ITER_NEXT instructions.
type iterator struct {
	arr  *Array
	m    []*mapEntry
	str  []rune
	pos  int
	mapT *types.Type
}

func newIterator(v Value) *iterator {
	switch x := v.(type) {
	case *Array:
		return &iterator{arr: x}
	case *Map:
		ents := make([]*mapEntry, 0, len(x.order))
		for _, e := range x.order {
			if e != nil {
				ents = append(ents, e)
			}
		}
		return &iterator{m: ents, mapT: x.T}
	case *Str:
		return &iterator{str: []rune(x.V)}
	}
	return &iterator{}
}

func (it *iterator) VType() *types.Type { return nil }
func (it *iterator) String() string     { return "(iterator)" }

func (it *iterator) next(pool *types.Pool) (Value, bool) {
	switch {
	case it.arr != nil:
		if it.pos >= len(it.arr.Elems) {
			return nil, false
		}
		v := it.arr.Elems[it.pos]
		it.pos++
		return v, true
	case it.m != nil:
		if it.pos >= len(it.m) {
			return nil, false
		}
		e := it.m[it.pos]
		it.pos++
		tt, err := pool.Reify(pool.Tuple, it.mapT.Elem(0), it.mapT.Elem(1))
		if err != nil {
			return nil, false
		}
		return &Tuple{T: tt, Fields: []Value{e.key, e.val}}, true
	case it.str != nil:
		if it.pos >= len(it.str) {
			return nil, false
		}
		v := &Str{T: pool.String, V: string(it.str[it.pos])}
		it.pos++
		return v, true
	}
	return nil, false
}
