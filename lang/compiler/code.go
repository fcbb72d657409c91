package compiler

import (
	"sort"

	"github.com/mna/roseau/lang/token"
)

// CodeKind identifies the kind of a compiled callable.
type CodeKind uint8

//nolint:revive
const (
	KindToplevel CodeKind = iota
	KindFunction
	KindUserDefinedCmd
	KindSubshell
	KindNative
)

var codeKindNames = [...]string{
	KindToplevel:       "toplevel",
	KindFunction:       "function",
	KindUserDefinedCmd: "user-defined-cmd",
	KindSubshell:       "subshell",
	KindNative:         "native",
}

func (k CodeKind) String() string { return codeKindNames[k] }

// ExceptionEntry is one range of the exception table: when an instruction
// in [Begin, End) raises a value whose type is a subtype of the entry's
// type, control transfers to Handler with the operand stack truncated and
// the raised value pushed.
type ExceptionEntry struct {
	TypeID  int
	Begin   uint32
	End     uint32
	Handler uint32
}

// PosEntry maps an instruction offset to its source position. Entries are
// sorted by PC.
type PosEntry struct {
	PC   uint32
	Pos  token.Pos
	Line int
}

// Code is one compiled callable with its own constant pool, exception
// table and source position table.
type Code struct {
	Kind       CodeKind
	Name       string // function or command name, empty for toplevel
	SourceName string

	Insns      []byte
	Constants  []Const
	Exceptions []ExceptionEntry
	Positions  []PosEntry

	LocalVarNum   int
	ParamNum      int
	MaxStackDepth int
	GlobalVarNum  int // toplevel only

	// Udcs lists the user-defined commands declared by a toplevel unit;
	// the executor registers them before running the code.
	Udcs []*Code
}

// Const is one constant pool entry. Exactly one field is set.
type Const struct {
	Int    *int64
	Uint   *uint64
	Float  *float64
	Str    *string
	Code   *Code
	TypeID int // used with Str for typed constants (regex, signal)
}

// IntConst creates an integer constant.
func IntConst(v int64) Const { return Const{Int: &v} }

// UintConst creates an unsigned integer constant.
func UintConst(v uint64) Const { return Const{Uint: &v} }

// FloatConst creates a float constant.
func FloatConst(v float64) Const { return Const{Float: &v} }

// StrConst creates a string constant.
func StrConst(v string) Const { return Const{Str: &v} }

// CodeConst creates a nested code constant.
func CodeConst(c *Code) Const { return Const{Code: c} }

// PosAt returns the source position of the instruction at pc, or an
// invalid position when untracked.
func (c *Code) PosAt(pc uint32) token.Pos {
	i := sort.Search(len(c.Positions), func(i int) bool {
		return c.Positions[i].PC > pc
	})
	if i == 0 {
		return token.NoPos
	}
	return c.Positions[i-1].Pos
}

// LineAt returns the source line of the instruction at pc, 0 when
// untracked.
func (c *Code) LineAt(pc uint32) int {
	i := sort.Search(len(c.Positions), func(i int) bool {
		return c.Positions[i].PC > pc
	})
	if i == 0 {
		return 0
	}
	return c.Positions[i-1].Line
}
