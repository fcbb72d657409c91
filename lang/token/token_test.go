package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindNames(t *testing.T) {
	// every kind must have a name
	for k := INVALID; k < maxKind; k++ {
		assert.NotEmpty(t, kindNames[k], "kind %d", k)
	}
}

func TestLookupKw(t *testing.T) {
	cases := map[string]Kind{
		"var":        VAR,
		"let":        LET,
		"function":   FUNCTION,
		"export-env": EXPORT_ENV,
		"import-env": IMPORT_ENV,
		"typeof":     TYPEOF,
		"while":      WHILE,
		"notakw":     IDENT,
		"varx":       IDENT,
	}
	for in, want := range cases {
		assert.Equal(t, want, LookupKw(in), in)
	}
}

func TestKindClasses(t *testing.T) {
	assert.True(t, REDIR_IN.IsRedirOp())
	assert.True(t, REDIR_HERE_STR.IsRedirOp())
	assert.False(t, PIPE.IsRedirOp())
	assert.True(t, EQ.IsAssignOp())
	assert.True(t, PERCENT_EQ.IsAssignOp())
	assert.False(t, EQL.IsAssignOp())
	assert.True(t, VAR.IsKeyword())
	assert.False(t, IDENT.IsKeyword())
}

func TestGoString(t *testing.T) {
	assert.Equal(t, "'+'", PLUS.GoString())
	assert.Equal(t, "identifier", IDENT.GoString())
}

func TestFileLineMap(t *testing.T) {
	src := []byte("ab\ncd\n\nef")
	f := NewFile("t.rs", src)

	require.Equal(t, len(src), f.Size())
	cases := []struct {
		off  Pos
		line int
		col  int
	}{
		{0, 1, 1},
		{1, 1, 2},
		{2, 1, 3}, // the newline itself
		{3, 2, 1},
		{5, 2, 3},
		{6, 3, 1},
		{7, 4, 1},
		{8, 4, 2},
	}
	for _, c := range cases {
		pos := f.Position(c.off)
		assert.Equal(t, c.line, pos.Line, "offset %d", c.off)
		assert.Equal(t, c.col, pos.Col, "offset %d", c.off)
	}
}

func TestFileText(t *testing.T) {
	f := NewFile("", []byte("echo hello"))
	tok := Token{Kind: COMMAND, Pos: 0, Size: 4}
	require.Equal(t, "echo", f.Text(tok))
	require.Equal(t, Pos(4), tok.End())
}

func TestPositionString(t *testing.T) {
	p := Position{Filename: "x.rs", Line: 3, Col: 7}
	assert.Equal(t, "x.rs:3:7", p.String())
	assert.Equal(t, "<input>", Position{}.String())
}

func TestNoPos(t *testing.T) {
	assert.False(t, NoPos.IsValid())
	assert.True(t, Pos(0).IsValid())
}
