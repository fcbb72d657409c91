package ast

import (
	"fmt"

	"github.com/mna/roseau/lang/token"
	"github.com/mna/roseau/lang/types"
)

type (
	// IntLit represents an integer literal. TypeHint names the built-in
	// numeric type selected by the literal's suffix ("Int" when absent).
	IntLit struct {
		typed
		Tok      token.Token
		Val      uint64 // raw bits for the hinted type
		TypeHint string
	}

	// FloatLit represents a float literal.
	FloatLit struct {
		typed
		Tok token.Token
		Val float64
	}

	// StringLit represents a single-quoted, $'...' or string-element
	// literal, with its decoded value.
	StringLit struct {
		typed
		Tok token.Token
		Val string
	}

	// RegexLit represents a $/.../ literal.
	RegexLit struct {
		typed
		Tok token.Token
		Val string // pattern text without delimiters
	}

	// SignalLit represents a %'name' literal.
	SignalLit struct {
		typed
		Tok  token.Token
		Name string
	}

	// StringExpr represents a double-quoted string with interpolation:
	// parts are StringLit elements, interpolated expressions and command
	// substitutions, concatenated in order.
	StringExpr struct {
		typed
		Open  token.Pos
		Close token.Pos
		Parts []Expr
	}

	// ArrayLit represents an array literal [a, b, c].
	ArrayLit struct {
		typed
		Lbrack token.Pos
		Rbrack token.Pos
		Elems  []Expr
	}

	// MapLit represents a map literal [k1 : v1, k2 : v2].
	MapLit struct {
		typed
		Lbrack token.Pos
		Rbrack token.Pos
		Keys   []Expr
		Vals   []Expr
	}

	// TupleLit represents a tuple literal (a, b, c).
	TupleLit struct {
		typed
		Lparen token.Pos
		Rparen token.Pos
		Elems  []Expr
	}

	// Var represents an applied or special name: $x, $?, $0.
	Var struct {
		typed
		Tok  token.Token
		Name string // without the $

		// set by the check phase; Env marks names bound to environment
		// variables, accessed through the environment instead of a slot
		Global bool
		Index  int
		Env    bool
	}

	// Access represents a field access recv.name.
	Access struct {
		typed
		Recv Expr
		Name string
		NTok token.Token

		// set by the check phase
		Handle *types.FieldHandle
	}

	// Index represents an indexing expression recv[idx]; the check phase
	// resolves it to the receiver's get method.
	Index struct {
		typed
		Recv   Expr
		Idx    Expr
		Rbrack token.Pos

		// set by the check phase
		GetHandle *types.MethodHandle
	}

	// Apply represents a function call fn(args...).
	Apply struct {
		typed
		Fn     Expr
		Args   []Expr
		Rparen token.Pos
	}

	// MethodCall represents recv.name(args...).
	MethodCall struct {
		typed
		Recv   Expr
		Name   string
		NTok   token.Token
		Args   []Expr
		Rparen token.Pos

		// set by the check phase
		Handle *types.MethodHandle
	}

	// New represents an instantiation new T(args...).
	New struct {
		typed
		NewPos token.Pos
		Spec   TypeSpec
		Args   []Expr
		Rparen token.Pos
	}

	// Unary represents a prefix operator applied to an operand. The check
	// phase resolves the operator to a method of the operand type.
	Unary struct {
		typed
		OpTok token.Token
		Op    token.Kind
		X     Expr

		// set by the check phase
		Handle *types.MethodHandle
	}

	// Binary represents a binary operator. The check phase resolves it to a
	// method call on the left operand, a string concatenation, or a
	// function identity comparison.
	Binary struct {
		typed
		Left  Expr
		OpTok token.Token
		Op    token.Kind
		Right Expr

		// set by the check phase
		Handle       *types.MethodHandle
		StrConcat    bool // '+' with a String operand
		FuncIdentity bool // ==/!= on function values
	}

	// Ternary represents cond ? then : els.
	Ternary struct {
		typed
		Cond Expr
		Then Expr
		Els  Expr
	}

	// Cast represents expr as T. The check phase rewrites it to a TypeOp.
	Cast struct {
		typed
		X    Expr
		Spec TypeSpec
	}

	// InstanceOf represents expr is T.
	InstanceOf struct {
		typed
		X    Expr
		Spec TypeSpec
	}

	// TypeOp is inserted by the check phase to materialize a coercion or
	// cast; it never comes out of the parser.
	TypeOp struct {
		typed
		X  Expr
		Op CastOp
		To *types.Type
	}

	// Substitution represents a command substitution $(...) or a process
	// substitution @(...). The body is a statement list evaluated in a
	// child context. A $(...) yields a String, or [String] in
	// command-argument position; @(...) yields a Job.
	Substitution struct {
		typed
		Start  token.Token // START_SUB_CMD or START_PROC_SUB
		Stmts  []Stmt
		Rparen token.Pos
		Proc   bool
		Split  bool // set by the check phase in argument position
	}
)

// CastOp selects the action of a TypeOp node.
type CastOp uint8

//nolint:revive
const (
	NoCast CastOp = iota
	ToVoid
	NumCast
	ToString
	ToBool
	CheckCast
	CheckUnwrap
	Print
	AlwaysTrue
	AlwaysFalse
	Instanceof
)

var castOpNames = [...]string{
	NoCast:      "NO_CAST",
	ToVoid:      "TO_VOID",
	NumCast:     "NUM_CAST",
	ToString:    "TO_STRING",
	ToBool:      "TO_BOOL",
	CheckCast:   "CHECK_CAST",
	CheckUnwrap: "CHECK_UNWRAP",
	Print:       "PRINT",
	AlwaysTrue:  "ALWAYS_TRUE",
	AlwaysFalse: "ALWAYS_FALSE",
	Instanceof:  "INSTANCEOF",
}

func (op CastOp) String() string { return castOpNames[op] }

func (n *IntLit) Format(f fmt.State, verb rune) {
	format(f, verb, n, fmt.Sprintf("int %d", int64(n.Val)), nil)
}
func (n *IntLit) Span() (token.Pos, token.Pos) { return n.Tok.Pos, n.Tok.End() }
func (n *IntLit) Walk(_ Visitor)               {}

func (n *FloatLit) Format(f fmt.State, verb rune) {
	format(f, verb, n, fmt.Sprintf("float %g", n.Val), nil)
}
func (n *FloatLit) Span() (token.Pos, token.Pos) { return n.Tok.Pos, n.Tok.End() }
func (n *FloatLit) Walk(_ Visitor)               {}

func (n *StringLit) Format(f fmt.State, verb rune) {
	format(f, verb, n, fmt.Sprintf("string %q", n.Val), nil)
}
func (n *StringLit) Span() (token.Pos, token.Pos) { return n.Tok.Pos, n.Tok.End() }
func (n *StringLit) Walk(_ Visitor)               {}

func (n *RegexLit) Format(f fmt.State, verb rune) {
	format(f, verb, n, fmt.Sprintf("regex /%s/", n.Val), nil)
}
func (n *RegexLit) Span() (token.Pos, token.Pos) { return n.Tok.Pos, n.Tok.End() }
func (n *RegexLit) Walk(_ Visitor)               {}

func (n *SignalLit) Format(f fmt.State, verb rune) {
	format(f, verb, n, "signal "+n.Name, nil)
}
func (n *SignalLit) Span() (token.Pos, token.Pos) { return n.Tok.Pos, n.Tok.End() }
func (n *SignalLit) Walk(_ Visitor)               {}

func (n *StringExpr) Format(f fmt.State, verb rune) {
	format(f, verb, n, "stringExpr", map[string]int{"parts": len(n.Parts)})
}
func (n *StringExpr) Span() (token.Pos, token.Pos) { return n.Open, n.Close + 1 }
func (n *StringExpr) Walk(v Visitor) {
	for _, p := range n.Parts {
		Walk(v, p)
	}
}

func (n *ArrayLit) Format(f fmt.State, verb rune) {
	format(f, verb, n, "array", map[string]int{"elems": len(n.Elems)})
}
func (n *ArrayLit) Span() (token.Pos, token.Pos) { return n.Lbrack, n.Rbrack + 1 }
func (n *ArrayLit) Walk(v Visitor) {
	for _, e := range n.Elems {
		Walk(v, e)
	}
}

func (n *MapLit) Format(f fmt.State, verb rune) {
	format(f, verb, n, "map", map[string]int{"entries": len(n.Keys)})
}
func (n *MapLit) Span() (token.Pos, token.Pos) { return n.Lbrack, n.Rbrack + 1 }
func (n *MapLit) Walk(v Visitor) {
	for i := range n.Keys {
		Walk(v, n.Keys[i])
		Walk(v, n.Vals[i])
	}
}

func (n *TupleLit) Format(f fmt.State, verb rune) {
	format(f, verb, n, "tuple", map[string]int{"elems": len(n.Elems)})
}
func (n *TupleLit) Span() (token.Pos, token.Pos) { return n.Lparen, n.Rparen + 1 }
func (n *TupleLit) Walk(v Visitor) {
	for _, e := range n.Elems {
		Walk(v, e)
	}
}

func (n *Var) Format(f fmt.State, verb rune) { format(f, verb, n, "var $"+n.Name, nil) }
func (n *Var) Span() (token.Pos, token.Pos)  { return n.Tok.Pos, n.Tok.End() }
func (n *Var) Walk(_ Visitor)                {}

func (n *Access) Format(f fmt.State, verb rune) { format(f, verb, n, "access ."+n.Name, nil) }
func (n *Access) Span() (token.Pos, token.Pos) {
	start, _ := n.Recv.Span()
	return start, n.NTok.End()
}
func (n *Access) Walk(v Visitor) { Walk(v, n.Recv) }

func (n *Index) Format(f fmt.State, verb rune) { format(f, verb, n, "index", nil) }
func (n *Index) Span() (token.Pos, token.Pos) {
	start, _ := n.Recv.Span()
	return start, n.Rbrack + 1
}
func (n *Index) Walk(v Visitor) {
	Walk(v, n.Recv)
	Walk(v, n.Idx)
}

func (n *Apply) Format(f fmt.State, verb rune) {
	format(f, verb, n, "apply", map[string]int{"args": len(n.Args)})
}
func (n *Apply) Span() (token.Pos, token.Pos) {
	start, _ := n.Fn.Span()
	return start, n.Rparen + 1
}
func (n *Apply) Walk(v Visitor) {
	Walk(v, n.Fn)
	for _, a := range n.Args {
		Walk(v, a)
	}
}

func (n *MethodCall) Format(f fmt.State, verb rune) {
	format(f, verb, n, "methodCall ."+n.Name, map[string]int{"args": len(n.Args)})
}
func (n *MethodCall) Span() (token.Pos, token.Pos) {
	start, _ := n.Recv.Span()
	return start, n.Rparen + 1
}
func (n *MethodCall) Walk(v Visitor) {
	Walk(v, n.Recv)
	for _, a := range n.Args {
		Walk(v, a)
	}
}

func (n *New) Format(f fmt.State, verb rune) {
	format(f, verb, n, "new", map[string]int{"args": len(n.Args)})
}
func (n *New) Span() (token.Pos, token.Pos) { return n.NewPos, n.Rparen + 1 }
func (n *New) Walk(v Visitor) {
	Walk(v, n.Spec)
	for _, a := range n.Args {
		Walk(v, a)
	}
}

func (n *Unary) Format(f fmt.State, verb rune) {
	format(f, verb, n, "unary "+n.Op.String(), nil)
}
func (n *Unary) Span() (token.Pos, token.Pos) {
	_, end := n.X.Span()
	return n.OpTok.Pos, end
}
func (n *Unary) Walk(v Visitor) { Walk(v, n.X) }

func (n *Binary) Format(f fmt.State, verb rune) {
	format(f, verb, n, "binary "+n.Op.String(), nil)
}
func (n *Binary) Span() (token.Pos, token.Pos) {
	start, _ := n.Left.Span()
	_, end := n.Right.Span()
	return start, end
}
func (n *Binary) Walk(v Visitor) {
	Walk(v, n.Left)
	Walk(v, n.Right)
}

func (n *Ternary) Format(f fmt.State, verb rune) { format(f, verb, n, "ternary", nil) }
func (n *Ternary) Span() (token.Pos, token.Pos) {
	start, _ := n.Cond.Span()
	_, end := n.Els.Span()
	return start, end
}
func (n *Ternary) Walk(v Visitor) {
	Walk(v, n.Cond)
	Walk(v, n.Then)
	Walk(v, n.Els)
}

func (n *Cast) Format(f fmt.State, verb rune) { format(f, verb, n, "cast", nil) }
func (n *Cast) Span() (token.Pos, token.Pos) {
	start, _ := n.X.Span()
	_, end := n.Spec.Span()
	return start, end
}
func (n *Cast) Walk(v Visitor) {
	Walk(v, n.X)
	Walk(v, n.Spec)
}

func (n *InstanceOf) Format(f fmt.State, verb rune) { format(f, verb, n, "instanceOf", nil) }
func (n *InstanceOf) Span() (token.Pos, token.Pos) {
	start, _ := n.X.Span()
	_, end := n.Spec.Span()
	return start, end
}
func (n *InstanceOf) Walk(v Visitor) {
	Walk(v, n.X)
	Walk(v, n.Spec)
}

func (n *TypeOp) Format(f fmt.State, verb rune) {
	format(f, verb, n, "typeOp "+n.Op.String(), nil)
}
func (n *TypeOp) Span() (token.Pos, token.Pos) { return n.X.Span() }
func (n *TypeOp) Walk(v Visitor)               { Walk(v, n.X) }

func (n *Substitution) Format(f fmt.State, verb rune) {
	lbl := "substitution"
	if n.Proc {
		lbl = "procSubstitution"
	}
	format(f, verb, n, lbl, map[string]int{"stmts": len(n.Stmts)})
}
func (n *Substitution) Span() (token.Pos, token.Pos) { return n.Start.Pos, n.Rparen + 1 }
func (n *Substitution) Walk(v Visitor) {
	for _, s := range n.Stmts {
		Walk(v, s)
	}
}
