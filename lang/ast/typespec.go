package ast

import (
	"fmt"

	"github.com/mna/roseau/lang/token"
	"github.com/mna/roseau/lang/types"
)

// TypeSpec represents a type written in the source. The check phase
// resolves each spec against the type pool.
type TypeSpec interface {
	Node

	// ResolvedType returns the pool type resolved by the check phase, nil
	// before.
	ResolvedType() *types.Type

	// SetResolvedType stores the resolved pool type.
	SetResolvedType(*types.Type)
}

// resolved is the header embedded by every type spec.
type resolved struct {
	rt *types.Type
}

func (r *resolved) ResolvedType() *types.Type      { return r.rt }
func (r *resolved) SetResolvedType(tp *types.Type) { r.rt = tp }

type (
	// NamedTypeSpec represents a base type name or a parametric
	// application Name<T, ...>, possibly a dotted path.
	NamedTypeSpec struct {
		resolved
		NTok token.Token
		Name string
		Args []TypeSpec
		End_ token.Pos
	}

	// ArrayTypeSpec represents [T].
	ArrayTypeSpec struct {
		resolved
		Lbrack token.Pos
		Elem   TypeSpec
		Rbrack token.Pos
	}

	// MapTypeSpec represents [K : V].
	MapTypeSpec struct {
		resolved
		Lbrack token.Pos
		Key    TypeSpec
		Val    TypeSpec
		Rbrack token.Pos
	}

	// TupleTypeSpec represents (T, U, ...).
	TupleTypeSpec struct {
		resolved
		Lparen token.Pos
		Elems  []TypeSpec
		Rparen token.Pos
	}

	// FuncTypeSpec represents Func<R, P1, P2, ...>: the return type followed
	// by the parameter types as a flat list. A bracketed argument such as
	// [P] is an array type, not a parameter list.
	FuncTypeSpec struct {
		resolved
		FuncPos token.Pos
		Ret     TypeSpec
		Params  []TypeSpec
		End_    token.Pos
	}

	// OptionTypeSpec represents T?.
	OptionTypeSpec struct {
		resolved
		Elem     TypeSpec
		Question token.Pos
	}

	// TypeOfSpec represents typeof(expr).
	TypeOfSpec struct {
		resolved
		TypeofPos token.Pos
		X         Expr
		Rparen    token.Pos
	}
)

func (n *NamedTypeSpec) Format(f fmt.State, verb rune) {
	format(f, verb, n, "type "+n.Name, map[string]int{"args": len(n.Args)})
}
func (n *NamedTypeSpec) Span() (token.Pos, token.Pos) {
	if n.End_ > n.NTok.End() {
		return n.NTok.Pos, n.End_
	}
	return n.NTok.Pos, n.NTok.End()
}
func (n *NamedTypeSpec) Walk(v Visitor) {
	for _, a := range n.Args {
		Walk(v, a)
	}
}

func (n *ArrayTypeSpec) Format(f fmt.State, verb rune) { format(f, verb, n, "type array", nil) }
func (n *ArrayTypeSpec) Span() (token.Pos, token.Pos)  { return n.Lbrack, n.Rbrack + 1 }
func (n *ArrayTypeSpec) Walk(v Visitor)                { Walk(v, n.Elem) }

func (n *MapTypeSpec) Format(f fmt.State, verb rune) { format(f, verb, n, "type map", nil) }
func (n *MapTypeSpec) Span() (token.Pos, token.Pos)  { return n.Lbrack, n.Rbrack + 1 }
func (n *MapTypeSpec) Walk(v Visitor) {
	Walk(v, n.Key)
	Walk(v, n.Val)
}

func (n *TupleTypeSpec) Format(f fmt.State, verb rune) {
	format(f, verb, n, "type tuple", map[string]int{"elems": len(n.Elems)})
}
func (n *TupleTypeSpec) Span() (token.Pos, token.Pos) { return n.Lparen, n.Rparen + 1 }
func (n *TupleTypeSpec) Walk(v Visitor) {
	for _, e := range n.Elems {
		Walk(v, e)
	}
}

func (n *FuncTypeSpec) Format(f fmt.State, verb rune) {
	format(f, verb, n, "type func", map[string]int{"params": len(n.Params)})
}
func (n *FuncTypeSpec) Span() (token.Pos, token.Pos) { return n.FuncPos, n.End_ }
func (n *FuncTypeSpec) Walk(v Visitor) {
	Walk(v, n.Ret)
	for _, p := range n.Params {
		Walk(v, p)
	}
}

func (n *OptionTypeSpec) Format(f fmt.State, verb rune) { format(f, verb, n, "type option", nil) }
func (n *OptionTypeSpec) Span() (token.Pos, token.Pos) {
	start, _ := n.Elem.Span()
	return start, n.Question + 1
}
func (n *OptionTypeSpec) Walk(v Visitor) { Walk(v, n.Elem) }

func (n *TypeOfSpec) Format(f fmt.State, verb rune) { format(f, verb, n, "type typeof", nil) }
func (n *TypeOfSpec) Span() (token.Pos, token.Pos)  { return n.TypeofPos, n.Rparen + 1 }
func (n *TypeOfSpec) Walk(v Visitor)                { Walk(v, n.X) }
