package token

import (
	"fmt"
	"sort"
)

// Pos is a byte offset into the source buffer of a File. The zero value is a
// valid offset (the first byte); NoPos marks an unknown position.
type Pos uint32

// NoPos is the sentinel for an unknown position. It is distinct from offset
// zero, which is a valid position.
const NoPos Pos = ^Pos(0)

// IsValid returns true if the position is known.
func (p Pos) IsValid() bool { return p != NoPos }

// Position is a resolved, human-readable source position.
type Position struct {
	Filename string
	Line     int // 1-based
	Col      int // 1-based, in bytes
}

func (p Position) String() string {
	s := p.Filename
	if s == "" {
		s = "<input>"
	}
	if p.Line > 0 {
		s += fmt.Sprintf(":%d", p.Line)
		if p.Col > 0 {
			s += fmt.Sprintf(":%d", p.Col)
		}
	}
	return s
}

// A File holds a source buffer along with the byte offsets at which each
// line starts, so that any Pos can be resolved to a line and column in
// O(log n).
type File struct {
	name  string
	src   []byte
	lines []int // offset of the first byte of each line; lines[0] == 0
}

// NewFile creates a File for the provided source buffer. The line index is
// built eagerly in a single pass.
func NewFile(name string, src []byte) *File {
	f := &File{name: name, src: src, lines: []int{0}}
	for i, b := range src {
		if b == '\n' && i+1 < len(src) {
			f.lines = append(f.lines, i+1)
		}
	}
	return f
}

// Name returns the file name, which may be empty for non-file sources.
func (f *File) Name() string { return f.name }

// Size returns the size of the source buffer in bytes.
func (f *File) Size() int { return len(f.src) }

// Src returns the underlying source buffer. The caller must not modify it.
func (f *File) Src() []byte { return f.src }

// Text returns the source text covered by the token.
func (f *File) Text(t Token) string {
	return string(f.src[t.Pos:t.End()])
}

// Line returns the 1-based line number containing the offset.
func (f *File) Line(p Pos) int {
	return sort.Search(len(f.lines), func(i int) bool {
		return f.lines[i] > int(p)
	})
}

// Position resolves an offset to a full position.
func (f *File) Position(p Pos) Position {
	if !p.IsValid() {
		return Position{Filename: f.name}
	}
	line := f.Line(p)
	return Position{
		Filename: f.name,
		Line:     line,
		Col:      int(p) - f.lines[line-1] + 1,
	}
}
