// Package parser implements the recursive-descent parser of the language.
// The parser drives the scanner's mode stack to disambiguate the grammar:
// it pushes the name mode after binders, the type mode after ':' in type
// positions, the command mode after a command word, and the string mode
// inside double quotes. There is no error recovery: the first parse error
// aborts the source unit.
package parser

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/roseau/lang/ast"
	"github.com/mna/roseau/lang/scanner"
	"github.com/mna/roseau/lang/token"
)

// Stable parse error codes; scan errors carry the scanner package's
// codes.
const (
	// ErrTokenMismatch reports a token other than the expected set.
	ErrTokenMismatch = "TokenMismatch"

	// ErrNoViableAlter reports a position where no production applies.
	ErrNoViableAlter = "NoViableAlter"

	// ErrTokenFormat reports a literal whose value is malformed or out of
	// range.
	ErrTokenFormat = scanner.ErrTokenFormat
)

// Error is a parse or scan error with its resolved position and stable
// code.
type Error struct {
	Pos  token.Position
	Code string
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: [%s] %s", e.Pos, e.Code, e.Msg) }

// bailout is the panic sentinel used to abort on the first error.
type bailout struct{ err *Error }

// ParseFile parses a single source buffer.
func ParseFile(name string, src []byte) (*ast.Root, *token.File, error) {
	file := token.NewFile(name, src)
	var p parser
	root, err := p.parse(file)
	return root, file, err
}

// ParseFiles is a helper that parses the source files and returns the list
// of roots with the corresponding files. Parsing stops at the first file
// that fails.
func ParseFiles(ctx context.Context, files ...string) ([]*ast.Root, []*token.File, error) {
	roots := make([]*ast.Root, 0, len(files))
	fs := make([]*token.File, 0, len(files))
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return roots, fs, err
		}
		b, err := os.ReadFile(name)
		if err != nil {
			return roots, fs, err
		}
		root, file, err := ParseFile(name, b)
		if err != nil {
			return roots, fs, err
		}
		roots = append(roots, root)
		fs = append(fs, file)
	}
	return roots, fs, nil
}

type parser struct {
	file *token.File
	scn  scanner.Scanner
	tok  token.Token

	// inInterp is > 0 while parsing inside ${...}, where bare identifiers
	// denote variables.
	inInterp int

	// pendingSep is set when a production consumed statement separators
	// while looking ahead (e.g. newlines between a try block and a
	// possible catch), satisfying the next end-of-statement check.
	pendingSep bool
}

func (p *parser) parse(file *token.File) (root *ast.Root, err error) {
	defer func() {
		if e := recover(); e != nil {
			if b, ok := e.(bailout); ok {
				err = b.err
				return
			}
			panic(e)
		}
	}()

	p.file = file
	p.scn.Init(file, func(pos token.Position, code, msg string) {
		panic(bailout{&Error{Pos: pos, Code: code, Msg: msg}})
	})

	root = &ast.Root{Name: file.Name()}
	p.advance()
	p.skipNewlines()
	for p.tok.Kind != token.EOF {
		root.Stmts = append(root.Stmts, p.statement())
		p.endOfStatement()
	}
	root.EOF = p.tok.Pos
	return root, nil
}

func (p *parser) errorf(pos token.Pos, code, format string, args ...any) {
	panic(bailout{&Error{
		Pos:  p.file.Position(pos),
		Code: code,
		Msg:  fmt.Sprintf(format, args...),
	}})
}

// mismatch raises a token-mismatch error with the expected set.
func (p *parser) mismatch(expected ...token.Kind) {
	msg := "mismatched token " + p.tok.Kind.GoString() + ", expected"
	for i, k := range expected {
		if i > 0 {
			msg += " or"
		}
		msg += " " + k.GoString()
	}
	p.errorf(p.tok.Pos, ErrTokenMismatch, "%s", msg)
}

// text returns the source text of the current token.
func (p *parser) text() string { return p.file.Text(p.tok) }

// advance fetches the next token under the current scanner mode.
func (p *parser) advance() { p.tok = p.scn.Next() }

// advanceIn pushes mode, fetches a token, and leaves the mode pushed; the
// caller pops it when the construct ends.
func (p *parser) advanceIn(m scanner.Mode) {
	p.scn.PushMode(m)
	p.advance()
}

// popAdvance pops the current mode then fetches the next token under the
// restored mode.
func (p *parser) popAdvance() {
	p.scn.PopMode()
	p.advance()
}

// refetch rescans the current token under a different mode.
func (p *parser) refetch(m scanner.Mode) {
	p.tok = p.scn.Refetch(p.tok, m)
}

// popRefetch pops the current mode and rescans the current token under the
// restored mode. It is used when a sub-mode had to scan one token past its
// own construct to detect its end.
func (p *parser) popRefetch() {
	p.scn.PopMode()
	p.tok = p.scn.Refetch(p.tok, p.scn.Mode())
}

// expect checks the current token kind and advances.
func (p *parser) expect(k token.Kind) token.Token {
	if p.tok.Kind != k {
		p.mismatch(k)
	}
	t := p.tok
	p.advance()
	return t
}

// got advances and returns true if the current token has the given kind.
func (p *parser) got(k token.Kind) bool {
	if p.tok.Kind == k {
		p.advance()
		return true
	}
	return false
}

func (p *parser) skipNewlines() {
	for p.tok.Kind == token.NEWLINE {
		p.advance()
	}
}

// endOfStatement consumes the statement separator: newline, semicolon or
// EOF.
func (p *parser) endOfStatement() {
	if p.pendingSep {
		p.pendingSep = false
		return
	}
	switch p.tok.Kind {
	case token.NEWLINE, token.SEMI:
		p.advance()
		p.skipNewlines()
	case token.EOF, token.RBRACE, token.RPAREN:
		// block, substitution or file end closes the statement
	default:
		p.mismatch(token.NEWLINE, token.SEMI)
	}
}

// name parses a single identifier under the name mode and restores the
// previous mode.
func (p *parser) name() (string, token.Token) {
	p.scn.PushMode(scanner.ModeName)
	p.advance()
	if p.tok.Kind != token.IDENT {
		p.mismatch(token.IDENT)
	}
	t := p.tok
	n := p.text()
	p.popAdvance()
	return n, t
}
