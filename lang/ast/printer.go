package ast

import (
	"fmt"
	"io"
	"strings"

	"github.com/mna/roseau/lang/token"
)

// Printer controls pretty-printing of AST nodes as indented trees, used by
// the AST dump options of the launcher.
type Printer struct {
	// Output is the io.Writer to print to.
	Output io.Writer

	// Positions controls whether node spans are printed as line:col ranges.
	Positions bool

	// Types controls whether computed expression types are printed; only
	// meaningful after the check phase.
	Types bool

	// NodeFmt is the format string to use to print the nodes. The verb must
	// be either `s` or `v`, a width can be set, and the `#` and `-` flags
	// are supported. Defaults to `%v`.
	NodeFmt string
}

// Print pretty-prints the AST rooted at n. The file argument is required
// only when positions are printed.
func (p *Printer) Print(n Node, file *token.File) error {
	pp := &printer{
		w:       p.Output,
		pos:     p.Positions,
		typs:    p.Types,
		nodeFmt: p.NodeFmt,
		file:    file,
	}
	if pp.nodeFmt == "" {
		pp.nodeFmt = "%v"
	}
	Walk(pp, n)

	if root, ok := n.(*Root); ok && pp.err == nil && p.Types {
		_, pp.err = fmt.Fprintf(pp.w, "maxVarNum: %d\nmaxGVarNum: %d\n", root.MaxVarNum, root.MaxGVarNum)
	}
	return pp.err
}

type printer struct {
	w       io.Writer
	pos     bool
	typs    bool
	nodeFmt string
	file    *token.File
	depth   int
	err     error
}

func (p *printer) Visit(n Node, dir VisitDirection) Visitor {
	if dir == VisitExit || p.err != nil {
		p.depth--
		return nil
	}

	p.depth++
	p.printNode(n, p.depth-1)
	return p
}

func (p *printer) printNode(n Node, indent int) {
	if p.err != nil {
		return
	}

	format := "%s"
	args := []interface{}{strings.Repeat(". ", indent)}
	if p.pos {
		start, end := n.Span()
		sp, ep := p.file.Position(start), p.file.Position(end)
		format += "[%d:%d-%d:%d] "
		args = append(args, sp.Line, sp.Col, ep.Line, ep.Col)
	}
	format += p.nodeFmt
	args = append(args, n)

	if p.typs {
		if e, ok := n.(Expr); ok && e.ComputedType() != nil {
			format += " : %s"
			args = append(args, e.ComputedType().Name())
		}
	}
	format += "\n"

	_, p.err = fmt.Fprintf(p.w, format, args...)
}
