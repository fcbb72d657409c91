package compiler

import (
	"encoding/binary"
	"fmt"

	"github.com/mna/roseau/lang/ast"
	"github.com/mna/roseau/lang/token"
	"github.com/mna/roseau/lang/types"
)

// Compile lowers a checked AST into the toplevel Code. An AST that
// resulted in errors during the check phase must never be passed to the
// compiler, the behavior is undefined.
func Compile(pool *types.Pool, file *token.File, root *ast.Root) *Code {
	c := &comp{pool: pool, file: file}
	b := c.newBuilder(KindToplevel, "", root.MaxVarNum)
	b.code.GlobalVarNum = root.MaxGVarNum
	for _, s := range root.Stmts {
		b.stmt(s)
	}
	b.emit(STOP_EVAL)
	return b.finish()
}

type comp struct {
	pool *types.Pool
	file *token.File
	top  *builder // toplevel builder, collects user-defined commands
}

// label is a late-bound jump target.
type label struct {
	pc    uint32
	bound bool
	refs  []labelRef
}

type labelRef struct {
	at       uint32 // offset of the operand bytes
	relative bool   // i16 relative to the next instruction, else u32 absolute
	next     uint32 // pc of the next instruction, for relative refs
}

// tryCtx tracks an enclosing try statement with a pending finally block,
// so that jumps crossing it first execute the finally code.
type tryCtx struct {
	finally   *label
	loopDepth int
}

// loopLabels tracks the break and continue targets of an enclosing loop.
type loopLabels struct {
	brk  *label
	cont *label
	// iter is true for iterator-based loops, whose break target must drop
	// the iterator pushed below the loop.
	iter bool
}

type builder struct {
	comp *comp
	code *Code

	depth    int
	maxDepth int

	loops     []loopLabels
	finallies []*tryCtx
	labels    []*label
}

func (c *comp) newBuilder(kind CodeKind, name string, localNum int) *builder {
	b := &builder{
		comp: c,
		code: &Code{
			Kind:        kind,
			Name:        name,
			SourceName:  c.file.Name(),
			LocalVarNum: localNum,
		},
	}
	if kind == KindToplevel {
		c.top = b
	}
	return b
}

func (b *builder) finish() *Code {
	b.code.MaxStackDepth = b.maxDepth
	for _, l := range b.labels {
		if !l.bound {
			panic("compiler: unbound label")
		}
	}
	return b.code
}

func (b *builder) pc() uint32 { return uint32(len(b.code.Insns)) }

func (b *builder) adjust(delta int) {
	b.depth += delta
	if b.depth > b.maxDepth {
		b.maxDepth = b.depth
	}
	if b.depth < 0 {
		panic(fmt.Sprintf("compiler: operand stack underflow at pc %d", b.pc()))
	}
}

func (b *builder) emit(op Opcode) {
	if op.Width() != 0 {
		panic(fmt.Sprintf("compiler: %s requires an operand", op))
	}
	b.code.Insns = append(b.code.Insns, byte(op))
}

func (b *builder) emit1(op Opcode, v uint8) {
	if op.Width() != 1 {
		panic(fmt.Sprintf("compiler: bad operand width for %s", op))
	}
	b.code.Insns = append(b.code.Insns, byte(op), v)
}

func (b *builder) emit2(op Opcode, v uint16) {
	if op.Width() != 2 {
		panic(fmt.Sprintf("compiler: bad operand width for %s", op))
	}
	b.code.Insns = append(b.code.Insns, byte(op), 0, 0)
	binary.BigEndian.PutUint16(b.code.Insns[len(b.code.Insns)-2:], v)
}

func (b *builder) emit4(op Opcode, v uint32) {
	if op.Width() != 4 {
		panic(fmt.Sprintf("compiler: bad operand width for %s", op))
	}
	b.code.Insns = append(b.code.Insns, byte(op), 0, 0, 0, 0)
	binary.BigEndian.PutUint32(b.code.Insns[len(b.code.Insns)-4:], v)
}

// emitFork emits a FORK with its kind and body constant index.
func (b *builder) emitFork(kind ForkKind, constIdx uint16) {
	b.code.Insns = append(b.code.Insns, byte(FORK), byte(kind), 0, 0)
	binary.BigEndian.PutUint16(b.code.Insns[len(b.code.Insns)-2:], constIdx)
}

// emitCallMethod emits CALL_METHOD with the method slot and argument
// count.
func (b *builder) emitCallMethod(h *types.MethodHandle, argc int, pushes bool) {
	b.code.Insns = append(b.code.Insns, byte(CALL_METHOD), 0, 0, 0, 0)
	binary.BigEndian.PutUint16(b.code.Insns[len(b.code.Insns)-4:], uint16(h.Index))
	binary.BigEndian.PutUint16(b.code.Insns[len(b.code.Insns)-2:], uint16(argc))
	b.adjust(-argc - 1)
	if pushes {
		b.adjust(+1)
	}
}

func (b *builder) newLabel() *label {
	l := &label{}
	b.labels = append(b.labels, l)
	return l
}

func (b *builder) bind(l *label) {
	l.pc = b.pc()
	l.bound = true
	for _, ref := range l.refs {
		b.patch(ref, l.pc)
	}
	l.refs = nil
}

func (b *builder) patch(ref labelRef, target uint32) {
	if ref.relative {
		off := int32(target) - int32(ref.next)
		if off < -32768 || off > 32767 {
			panic("compiler: branch offset out of range")
		}
		binary.BigEndian.PutUint16(b.code.Insns[ref.at:], uint16(int16(off)))
	} else {
		binary.BigEndian.PutUint32(b.code.Insns[ref.at:], target)
	}
}

// emitBranch emits a BRANCH to the label, taken when the popped Boolean is
// false.
func (b *builder) emitBranch(l *label) {
	at := b.pc() + 1
	b.code.Insns = append(b.code.Insns, byte(BRANCH), 0, 0)
	b.adjust(-1)
	ref := labelRef{at: at, relative: true, next: b.pc()}
	if l.bound {
		b.patch(ref, l.pc)
	} else {
		l.refs = append(l.refs, ref)
	}
}

// emitGoto emits an unconditional jump to the label.
func (b *builder) emitGoto(l *label) {
	b.emitAbs(GOTO, l)
}

func (b *builder) emitAbs(op Opcode, l *label) {
	at := b.pc() + 1
	switch op {
	case GOTO:
		b.code.Insns = append(b.code.Insns, byte(GOTO), 0, 0, 0, 0)
	case ENTER_FINALLY:
		b.code.Insns = append(b.code.Insns, byte(ENTER_FINALLY), 0, 0, 0, 0)
	case ITER_NEXT:
		b.code.Insns = append(b.code.Insns, byte(ITER_NEXT), 0, 0, 0, 0)
	default:
		panic(fmt.Sprintf("compiler: %s is not an absolute jump", op))
	}
	ref := labelRef{at: at}
	if l.bound {
		b.patch(ref, l.pc)
	} else {
		l.refs = append(l.refs, ref)
	}
}

// pos records the source position of the next instruction.
func (b *builder) pos(n ast.Node) {
	start, _ := n.Span()
	line := b.comp.file.Position(start).Line
	pc := b.pc()
	if len(b.code.Positions) > 0 && b.code.Positions[len(b.code.Positions)-1].PC == pc {
		b.code.Positions[len(b.code.Positions)-1].Pos = start
		b.code.Positions[len(b.code.Positions)-1].Line = line
		return
	}
	b.code.Positions = append(b.code.Positions, PosEntry{PC: pc, Pos: start, Line: line})
}

// constant interns a constant and returns its pool index.
func (b *builder) constant(ct Const) uint16 {
	for i, c := range b.code.Constants {
		if sameConst(c, ct) {
			return uint16(i)
		}
	}
	b.code.Constants = append(b.code.Constants, ct)
	if len(b.code.Constants) > 0xFFFF {
		panic("compiler: constant pool overflow")
	}
	return uint16(len(b.code.Constants) - 1)
}

func sameConst(a, b Const) bool {
	switch {
	case a.Int != nil && b.Int != nil:
		return *a.Int == *b.Int
	case a.Uint != nil && b.Uint != nil:
		return *a.Uint == *b.Uint
	case a.Float != nil && b.Float != nil:
		return *a.Float == *b.Float
	case a.Str != nil && b.Str != nil:
		return *a.Str == *b.Str && a.TypeID == b.TypeID
	}
	return false
}

// loadStr emits a string constant load.
func (b *builder) loadStr(s string) {
	if s == "" {
		b.emit(PUSH_ESTRING)
	} else {
		b.emit2(LOAD_CONST, b.constant(StrConst(s)))
	}
	b.adjust(+1)
}

// enterFinallies emits ENTER_FINALLY for every pending finally between the
// current position and the jump target depth, innermost first.
func (b *builder) enterFinallies(downToLoop int) {
	for i := len(b.finallies) - 1; i >= 0; i-- {
		fc := b.finallies[i]
		if downToLoop >= 0 && fc.loopDepth <= downToLoop {
			break
		}
		b.emitAbs(ENTER_FINALLY, fc.finally)
	}
}
