package ast

import (
	"fmt"

	"github.com/mna/roseau/lang/token"
	"github.com/mna/roseau/lang/types"
)

type (
	// ExprStmt represents an expression used as a statement.
	ExprStmt struct {
		X Expr
	}

	// VarDecl represents a var or let declaration.
	VarDecl struct {
		DeclPos  token.Pos
		ReadOnly bool // let
		Name     string
		NTok     token.Token
		Spec     TypeSpec // may be nil when inferred
		Init     Expr     // may be nil when Spec is an Option type

		// set by the check phase
		Global bool
		Index  int
		Type   *types.Type
	}

	// Assign represents an assignment, simple or compound. The check phase
	// lowers compound operators into a self-assign of a binary node.
	Assign struct {
		Left  Expr // *Var, *Access or *Index
		OpTok token.Token
		Op    token.Kind
		Right Expr

		// Element is set by the check phase when the left side is an
		// indexing form combined with a compound operator; it supersedes
		// Left/Right for code generation.
		Element *ElementSelfAssign
	}

	// ElementSelfAssign is created by the check phase for a compound
	// assignment whose left side is an indexing form: it holds the explicit
	// get and set method handles and the binary operation.
	ElementSelfAssign struct {
		Recv      Expr
		Idx       Expr
		GetHandle *types.MethodHandle
		SetHandle *types.MethodHandle
		Bin       *Binary
	}

	// If represents an if statement with optional else or else-if.
	If struct {
		IfPos token.Pos
		Cond  Expr
		Then  *Block
		Els   Stmt // *Block or *If, may be nil
	}

	// While represents a while loop.
	While struct {
		WhilePos token.Pos
		Cond     Expr
		Body     *Block

		// BreakType is assigned by the check phase from break values.
		BreakType *types.Type
	}

	// DoWhile represents a do-while loop.
	DoWhile struct {
		DoPos token.Pos
		Body  *Block
		Cond  Expr

		BreakType *types.Type
	}

	// For represents a C-style for loop.
	For struct {
		ForPos token.Pos
		Init   Stmt // may be nil
		Cond   Expr // may be nil
		Iter   Stmt // may be nil
		Body   *Block

		BreakType *types.Type
	}

	// ForIn represents iteration over a value: for NAME in expr { ... }.
	ForIn struct {
		ForPos token.Pos
		Name   string
		NTok   token.Token
		X      Expr
		Body   *Block

		// set by the check phase
		VarIndex  int
		BreakType *types.Type
	}

	// Case represents a case statement with pattern arms.
	Case struct {
		CasePos token.Pos
		X       Expr
		Arms    []*Arm
		Rbrace  token.Pos

		// EqHandle is the target type's equality method, resolved by the
		// check phase for pattern dispatch.
		EqHandle *types.MethodHandle
	}

	// Arm represents one arm of a case statement. Pattern expressions must
	// be constant; Default is the else arm.
	Arm struct {
		ArmPos  token.Pos
		Pats    []Expr
		Default bool
		Body    *Block
	}

	// Break represents a break statement with an optional value
	// contributing to the enclosing loop's result type.
	Break struct {
		Tok token.Token
		Val Expr // may be nil
	}

	// Continue represents a continue statement.
	Continue struct {
		Tok token.Token
	}

	// Return represents a return statement with an optional value.
	Return struct {
		Tok token.Token
		Val Expr // may be nil
	}

	// Throw represents a throw statement.
	Throw struct {
		Tok token.Token
		Val Expr
	}

	// Try represents a try statement with catch arms and an optional
	// finally block.
	Try struct {
		TryPos  token.Pos
		Body    *Block
		Catches []*Catch
		Finally *Block // may be nil
	}

	// Catch represents one catch arm: catch NAME [: T] { ... }.
	Catch struct {
		CatchPos token.Pos
		Name     string
		NTok     token.Token
		Spec     TypeSpec // may be nil, defaults to Error

		Body *Block

		// set by the check phase
		VarIndex int
		Type     *types.Type
	}

	// Assert represents an assert statement with an optional message.
	Assert struct {
		AssertPos token.Pos
		Cond      Expr
		Msg       Expr // may be nil
	}

	// ImportEnv represents import-env NAME [: default].
	ImportEnv struct {
		ImpPos  token.Pos
		Name    string
		NTok    token.Token
		Default Expr // may be nil

		Index  int
		Global bool
	}

	// ExportEnv represents export-env NAME = expr.
	ExportEnv struct {
		ExpPos token.Pos
		Name   string
		NTok   token.Token
		Val    Expr

		Index  int
		Global bool
	}

	// TypeAlias represents alias NAME = T.
	TypeAlias struct {
		AliasPos token.Pos
		Name     string
		NTok     token.Token
		Target   TypeSpec
	}

	// Param is one parameter of a function declaration.
	Param struct {
		Name string
		NTok token.Token
		Spec TypeSpec

		Type  *types.Type
		Index int
	}

	// FuncDecl represents a function declaration.
	FuncDecl struct {
		FuncPos token.Pos
		Name    string
		NTok    token.Token
		Params  []*Param
		RetSpec TypeSpec // may be nil (Void)
		Body    *Block

		// set by the check phase
		Type      *types.Type // reified Func instance
		MaxVarNum int
		Index     int // global slot holding the function value
	}

	// InterfaceDecl is the retained parsing surface of interface
	// declarations; the check phase rejects it.
	InterfaceDecl struct {
		IfacePos token.Pos
		Name     string
		NTok     token.Token
		Rbrace   token.Pos
	}

	// UdcDecl represents a user-defined command declaration.
	UdcDecl struct {
		DeclPos token.Pos
		Name    string
		NTok    token.Token
		Body    *Block

		MaxVarNum int
	}

	// Source represents a source statement, loading and evaluating the
	// script named by its single path argument.
	Source struct {
		SrcPos   token.Pos
		Path     *CmdArg
		Optional bool
	}
)

func (n *ExprStmt) Format(f fmt.State, verb rune)  { format(f, verb, n, "exprStmt", nil) }
func (n *ExprStmt) Span() (token.Pos, token.Pos)   { return n.X.Span() }
func (n *ExprStmt) Walk(v Visitor)                 { Walk(v, n.X) }
func (n *ExprStmt) BlockEnding() bool              { return false }

func (n *VarDecl) Format(f fmt.State, verb rune) {
	lbl := "var " + n.Name
	if n.ReadOnly {
		lbl = "let " + n.Name
	}
	format(f, verb, n, lbl, nil)
}
func (n *VarDecl) Span() (token.Pos, token.Pos) {
	end := n.NTok.End()
	if n.Init != nil {
		_, end = n.Init.Span()
	} else if n.Spec != nil {
		_, end = n.Spec.Span()
	}
	return n.DeclPos, end
}
func (n *VarDecl) Walk(v Visitor) {
	if n.Spec != nil {
		Walk(v, n.Spec)
	}
	if n.Init != nil {
		Walk(v, n.Init)
	}
}
func (n *VarDecl) BlockEnding() bool { return false }

func (n *Assign) Format(f fmt.State, verb rune) {
	format(f, verb, n, "assign "+n.Op.String(), nil)
}
func (n *Assign) Span() (token.Pos, token.Pos) {
	start, _ := n.Left.Span()
	_, end := n.Right.Span()
	return start, end
}
func (n *Assign) Walk(v Visitor) {
	Walk(v, n.Left)
	Walk(v, n.Right)
}
func (n *Assign) BlockEnding() bool { return false }

func (n *ElementSelfAssign) Format(f fmt.State, verb rune) {
	format(f, verb, n, "elementSelfAssign", nil)
}
func (n *ElementSelfAssign) Span() (token.Pos, token.Pos) {
	start, _ := n.Recv.Span()
	_, end := n.Bin.Span()
	return start, end
}
func (n *ElementSelfAssign) Walk(v Visitor) {
	Walk(v, n.Recv)
	Walk(v, n.Idx)
	Walk(v, n.Bin)
}
func (n *ElementSelfAssign) BlockEnding() bool { return false }

func (n *If) Format(f fmt.State, verb rune) { format(f, verb, n, "if", nil) }
func (n *If) Span() (token.Pos, token.Pos) {
	_, end := n.Then.Span()
	if n.Els != nil {
		_, end = n.Els.Span()
	}
	return n.IfPos, end
}
func (n *If) Walk(v Visitor) {
	Walk(v, n.Cond)
	Walk(v, n.Then)
	if n.Els != nil {
		Walk(v, n.Els)
	}
}
func (n *If) BlockEnding() bool { return false }

func (n *While) Format(f fmt.State, verb rune) { format(f, verb, n, "while", nil) }
func (n *While) Span() (token.Pos, token.Pos) {
	_, end := n.Body.Span()
	return n.WhilePos, end
}
func (n *While) Walk(v Visitor) {
	Walk(v, n.Cond)
	Walk(v, n.Body)
}
func (n *While) BlockEnding() bool { return false }

func (n *DoWhile) Format(f fmt.State, verb rune) { format(f, verb, n, "doWhile", nil) }
func (n *DoWhile) Span() (token.Pos, token.Pos) {
	_, end := n.Cond.Span()
	return n.DoPos, end
}
func (n *DoWhile) Walk(v Visitor) {
	Walk(v, n.Body)
	Walk(v, n.Cond)
}
func (n *DoWhile) BlockEnding() bool { return false }

func (n *For) Format(f fmt.State, verb rune) { format(f, verb, n, "for", nil) }
func (n *For) Span() (token.Pos, token.Pos) {
	_, end := n.Body.Span()
	return n.ForPos, end
}
func (n *For) Walk(v Visitor) {
	if n.Init != nil {
		Walk(v, n.Init)
	}
	if n.Cond != nil {
		Walk(v, n.Cond)
	}
	if n.Iter != nil {
		Walk(v, n.Iter)
	}
	Walk(v, n.Body)
}
func (n *For) BlockEnding() bool { return false }

func (n *ForIn) Format(f fmt.State, verb rune) { format(f, verb, n, "forIn "+n.Name, nil) }
func (n *ForIn) Span() (token.Pos, token.Pos) {
	_, end := n.Body.Span()
	return n.ForPos, end
}
func (n *ForIn) Walk(v Visitor) {
	Walk(v, n.X)
	Walk(v, n.Body)
}
func (n *ForIn) BlockEnding() bool { return false }

func (n *Case) Format(f fmt.State, verb rune) {
	format(f, verb, n, "case", map[string]int{"arms": len(n.Arms)})
}
func (n *Case) Span() (token.Pos, token.Pos) { return n.CasePos, n.Rbrace + 1 }
func (n *Case) Walk(v Visitor) {
	Walk(v, n.X)
	for _, a := range n.Arms {
		Walk(v, a)
	}
}
func (n *Case) BlockEnding() bool { return false }

func (n *Arm) Format(f fmt.State, verb rune) {
	lbl := "arm"
	if n.Default {
		lbl = "arm else"
	}
	format(f, verb, n, lbl, map[string]int{"pats": len(n.Pats)})
}
func (n *Arm) Span() (token.Pos, token.Pos) {
	_, end := n.Body.Span()
	return n.ArmPos, end
}
func (n *Arm) Walk(v Visitor) {
	for _, p := range n.Pats {
		Walk(v, p)
	}
	Walk(v, n.Body)
}

func (n *Break) Format(f fmt.State, verb rune) { format(f, verb, n, "break", nil) }
func (n *Break) Span() (token.Pos, token.Pos) {
	if n.Val != nil {
		_, end := n.Val.Span()
		return n.Tok.Pos, end
	}
	return n.Tok.Pos, n.Tok.End()
}
func (n *Break) Walk(v Visitor) {
	if n.Val != nil {
		Walk(v, n.Val)
	}
}
func (n *Break) BlockEnding() bool { return true }

func (n *Continue) Format(f fmt.State, verb rune) { format(f, verb, n, "continue", nil) }
func (n *Continue) Span() (token.Pos, token.Pos)  { return n.Tok.Pos, n.Tok.End() }
func (n *Continue) Walk(_ Visitor)                {}
func (n *Continue) BlockEnding() bool             { return true }

func (n *Return) Format(f fmt.State, verb rune) { format(f, verb, n, "return", nil) }
func (n *Return) Span() (token.Pos, token.Pos) {
	if n.Val != nil {
		_, end := n.Val.Span()
		return n.Tok.Pos, end
	}
	return n.Tok.Pos, n.Tok.End()
}
func (n *Return) Walk(v Visitor) {
	if n.Val != nil {
		Walk(v, n.Val)
	}
}
func (n *Return) BlockEnding() bool { return true }

func (n *Throw) Format(f fmt.State, verb rune) { format(f, verb, n, "throw", nil) }
func (n *Throw) Span() (token.Pos, token.Pos) {
	_, end := n.Val.Span()
	return n.Tok.Pos, end
}
func (n *Throw) Walk(v Visitor)    { Walk(v, n.Val) }
func (n *Throw) BlockEnding() bool { return true }

func (n *Try) Format(f fmt.State, verb rune) {
	format(f, verb, n, "try", map[string]int{"catches": len(n.Catches)})
}
func (n *Try) Span() (token.Pos, token.Pos) {
	_, end := n.Body.Span()
	if n.Finally != nil {
		_, end = n.Finally.Span()
	} else if len(n.Catches) > 0 {
		_, end = n.Catches[len(n.Catches)-1].Span()
	}
	return n.TryPos, end
}
func (n *Try) Walk(v Visitor) {
	Walk(v, n.Body)
	for _, c := range n.Catches {
		Walk(v, c)
	}
	if n.Finally != nil {
		Walk(v, n.Finally)
	}
}
func (n *Try) BlockEnding() bool { return false }

func (n *Catch) Format(f fmt.State, verb rune) { format(f, verb, n, "catch "+n.Name, nil) }
func (n *Catch) Span() (token.Pos, token.Pos) {
	_, end := n.Body.Span()
	return n.CatchPos, end
}
func (n *Catch) Walk(v Visitor) {
	if n.Spec != nil {
		Walk(v, n.Spec)
	}
	Walk(v, n.Body)
}

func (n *Assert) Format(f fmt.State, verb rune) { format(f, verb, n, "assert", nil) }
func (n *Assert) Span() (token.Pos, token.Pos) {
	_, end := n.Cond.Span()
	if n.Msg != nil {
		_, end = n.Msg.Span()
	}
	return n.AssertPos, end
}
func (n *Assert) Walk(v Visitor) {
	Walk(v, n.Cond)
	if n.Msg != nil {
		Walk(v, n.Msg)
	}
}
func (n *Assert) BlockEnding() bool { return false }

func (n *ImportEnv) Format(f fmt.State, verb rune) {
	format(f, verb, n, "importEnv "+n.Name, nil)
}
func (n *ImportEnv) Span() (token.Pos, token.Pos) {
	end := n.NTok.End()
	if n.Default != nil {
		_, end = n.Default.Span()
	}
	return n.ImpPos, end
}
func (n *ImportEnv) Walk(v Visitor) {
	if n.Default != nil {
		Walk(v, n.Default)
	}
}
func (n *ImportEnv) BlockEnding() bool { return false }

func (n *ExportEnv) Format(f fmt.State, verb rune) {
	format(f, verb, n, "exportEnv "+n.Name, nil)
}
func (n *ExportEnv) Span() (token.Pos, token.Pos) {
	_, end := n.Val.Span()
	return n.ExpPos, end
}
func (n *ExportEnv) Walk(v Visitor)    { Walk(v, n.Val) }
func (n *ExportEnv) BlockEnding() bool { return false }

func (n *TypeAlias) Format(f fmt.State, verb rune) {
	format(f, verb, n, "typeAlias "+n.Name, nil)
}
func (n *TypeAlias) Span() (token.Pos, token.Pos) {
	_, end := n.Target.Span()
	return n.AliasPos, end
}
func (n *TypeAlias) Walk(v Visitor)    { Walk(v, n.Target) }
func (n *TypeAlias) BlockEnding() bool { return false }

func (n *FuncDecl) Format(f fmt.State, verb rune) {
	format(f, verb, n, "function "+n.Name, map[string]int{"params": len(n.Params)})
}
func (n *FuncDecl) Span() (token.Pos, token.Pos) {
	_, end := n.Body.Span()
	return n.FuncPos, end
}
func (n *FuncDecl) Walk(v Visitor) {
	for _, p := range n.Params {
		if p.Spec != nil {
			Walk(v, p.Spec)
		}
	}
	if n.RetSpec != nil {
		Walk(v, n.RetSpec)
	}
	Walk(v, n.Body)
}
func (n *FuncDecl) BlockEnding() bool { return false }

func (n *InterfaceDecl) Format(f fmt.State, verb rune) {
	format(f, verb, n, "interface "+n.Name, nil)
}
func (n *InterfaceDecl) Span() (token.Pos, token.Pos) { return n.IfacePos, n.Rbrace + 1 }
func (n *InterfaceDecl) Walk(_ Visitor)               {}
func (n *InterfaceDecl) BlockEnding() bool            { return false }

func (n *UdcDecl) Format(f fmt.State, verb rune) {
	format(f, verb, n, "udc "+n.Name, nil)
}
func (n *UdcDecl) Span() (token.Pos, token.Pos) {
	_, end := n.Body.Span()
	return n.DeclPos, end
}
func (n *UdcDecl) Walk(v Visitor)    { Walk(v, n.Body) }
func (n *UdcDecl) BlockEnding() bool { return false }

func (n *Source) Format(f fmt.State, verb rune) { format(f, verb, n, "source", nil) }
func (n *Source) Span() (token.Pos, token.Pos) {
	_, end := n.Path.Span()
	return n.SrcPos, end
}
func (n *Source) Walk(v Visitor)    { Walk(v, n.Path) }
func (n *Source) BlockEnding() bool { return false }
