// Package ast defines the types to represent the abstract syntax tree (AST)
// of the language. Nodes carry the span of source bytes they cover and,
// after the check phase, the computed type of the expression they denote.
package ast

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mna/roseau/lang/token"
	"github.com/mna/roseau/lang/types"
)

// Node represents any node in the AST.
type Node interface {
	// Every Node implements the fmt.Formatter interface so they can print a
	// description of themselves. The only supported verbs are 'v' and 's'.
	// The '#' flag can be used to print count information about children
	// nodes.
	fmt.Formatter

	// Span reports the start and end position of the node.
	Span() (start, end token.Pos)

	// Walk enters each node inside itself to implement the Visitor pattern.
	Walk(v Visitor)
}

// Expr represents an expression in the AST. Expressions have a computed
// type slot assigned during the check phase.
type Expr interface {
	Node

	// ComputedType returns the type assigned by the check phase, nil before.
	ComputedType() *types.Type

	// SetComputedType stores the checked type of the expression.
	SetComputedType(*types.Type)
}

// Stmt represents a statement in the AST.
type Stmt interface {
	Node

	// BlockEnding returns true if the statement should only appear as the
	// last statement in a block (break, continue, return and throw).
	BlockEnding() bool
}

// typed is the common header embedded by every expression node to hold the
// computed type slot.
type typed struct {
	ct *types.Type
}

func (t *typed) ComputedType() *types.Type      { return t.ct }
func (t *typed) SetComputedType(tp *types.Type) { t.ct = tp }

// Root is the top-level node of a parsed source unit.
type Root struct {
	Name  string // source name, may be empty for non-file sources
	Stmts []Stmt
	EOF   token.Pos // position of the EOF marker

	// MaxVarNum and MaxGVarNum are assigned by the check phase: the number
	// of local slots of the toplevel and the global table high-water mark.
	MaxVarNum  int
	MaxGVarNum int
}

func (n *Root) Format(f fmt.State, verb rune) {
	format(f, verb, n, "root", map[string]int{"stmts": len(n.Stmts)})
}

func (n *Root) Span() (start, end token.Pos) {
	if len(n.Stmts) == 0 {
		return n.EOF, n.EOF
	}
	start, _ = n.Stmts[0].Span()
	_, end = n.Stmts[len(n.Stmts)-1].Span()
	return start, end
}

func (n *Root) Walk(v Visitor) {
	for _, s := range n.Stmts {
		Walk(v, s)
	}
}

// Block represents a braced block of statements.
type Block struct {
	typed
	Lbrace token.Pos
	Rbrace token.Pos
	Stmts  []Stmt
}

func (n *Block) Format(f fmt.State, verb rune) {
	format(f, verb, n, "block", map[string]int{"stmts": len(n.Stmts)})
}
func (n *Block) Span() (start, end token.Pos) { return n.Lbrace, n.Rbrace + 1 }
func (n *Block) Walk(v Visitor) {
	for _, s := range n.Stmts {
		Walk(v, s)
	}
}
func (n *Block) BlockEnding() bool { return false }

func format(f fmt.State, verb rune, n Node, label string, counts map[string]int) {
	if verb != 'v' && verb != 's' {
		fmt.Fprintf(f, "%%!%c(%T)", verb, n)
		return
	}

	// replace tabs and newlines with the corresponding unicode key
	label = strings.ReplaceAll(label, "\r\n", "⏎")
	label = strings.ReplaceAll(label, "\n", "⏎")
	label = strings.ReplaceAll(label, "\t", "⭾")

	if w, ok := f.Width(); ok {
		minus, plus := f.Flag('-'), f.Flag('+')
		runes := []rune(label)
		if len(runes) >= w {
			runes = runes[:w]
		} else if minus {
			runes = append(runes, []rune(strings.Repeat(" ", w-len(runes)))...)
		} else if !plus {
			runes = append([]rune(strings.Repeat(" ", w-len(runes))), runes...)
		}
		label = string(runes)
	}

	fmt.Fprint(f, label)
	if f.Flag('#') && len(counts) > 0 {
		keys := make([]string, 0, len(counts))
		for k := range counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprint(f, " {")
		for i, k := range keys {
			if i > 0 {
				fmt.Fprint(f, ", ")
			}
			fmt.Fprintf(f, "%s=%d", k, counts[k])
		}
		fmt.Fprint(f, "}")
	}
}
