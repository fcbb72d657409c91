package scanner

import (
	"testing"

	"github.com/mna/roseau/lang/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanAll(t *testing.T, src string, mode Mode) []token.Token {
	t.Helper()
	var s Scanner
	file := token.NewFile("test", []byte(src))
	s.Init(file, func(pos token.Position, code, msg string) {
		t.Fatalf("%s: [%s] %s", pos, code, msg)
	})
	s.SetMode(mode)

	var toks []token.Token
	for {
		tok := s.Next()
		if tok.Kind == token.EOF {
			return toks
		}
		toks = append(toks, tok)
		require.Less(t, len(toks), 1000, "runaway scan")
	}
}

func kinds(toks []token.Token) []token.Kind {
	out := make([]token.Kind, len(toks))
	for i, tk := range toks {
		out[i] = tk.Kind
	}
	return out
}

func TestScanStmtKeywords(t *testing.T) {
	toks := scanAll(t, "var x = 1", ModeStmt)
	assert.Equal(t, []token.Kind{token.VAR, token.COMMAND, token.EQ, token.INT}, kinds(toks))
}

func TestScanHyphenKeyword(t *testing.T) {
	toks := scanAll(t, "export-env FOO = $x", ModeStmt)
	require.Equal(t, token.EXPORT_ENV, toks[0].Kind)

	toks = scanAll(t, "import-env HOME", ModeStmt)
	require.Equal(t, token.IMPORT_ENV, toks[0].Kind)
}

func TestScanCommandWord(t *testing.T) {
	toks := scanAll(t, "echo", ModeStmt)
	require.Len(t, toks, 1)
	assert.Equal(t, token.COMMAND, toks[0].Kind)

	// paths are commands too
	toks = scanAll(t, "/bin/ls", ModeStmt)
	require.Len(t, toks, 1)
	assert.Equal(t, token.COMMAND, toks[0].Kind)
}

func TestScanExprOperators(t *testing.T) {
	toks := scanAll(t, "+ - * / % == != <= >= =~ !~ && || .. ++ --", ModeExpr)
	want := []token.Kind{
		token.PLUS, token.MINUS, token.STAR, token.SLASH, token.PERCENT,
		token.EQL, token.NEQ, token.LE, token.GE, token.MATCH, token.UNMATCH,
		token.COND_AND, token.COND_OR, token.RANGE, token.INC, token.DEC,
	}
	assert.Equal(t, want, kinds(toks))
}

func TestScanDollar(t *testing.T) {
	toks := scanAll(t, "$x ${ $( $? $0 $'a\\n' $/re/", ModeExpr)
	want := []token.Kind{
		token.APPLIED_NAME, token.START_INTERP, token.START_SUB_CMD,
		token.SPECIAL_NAME, token.SPECIAL_NAME, token.STRING, token.REGEX,
	}
	assert.Equal(t, want, kinds(toks))
}

func TestScanNumbers(t *testing.T) {
	toks := scanAll(t, "0 42 0xff 0o17 0b101 12u 12l 12ul 7b 3s 3us 1.5 1.5e3 2.5e-2", ModeExpr)
	for i, tk := range toks {
		if i < 11 {
			assert.Equal(t, token.INT, tk.Kind, "token %d", i)
		} else {
			assert.Equal(t, token.FLOAT, tk.Kind, "token %d", i)
		}
	}
}

func TestScanLeadingZero(t *testing.T) {
	var s Scanner
	var codes, msgs []string
	file := token.NewFile("test", []byte("0123"))
	s.Init(file, func(_ token.Position, code, msg string) {
		codes = append(codes, code)
		msgs = append(msgs, msg)
	})
	s.SetMode(ModeExpr)
	tok := s.Next()
	assert.Equal(t, token.INVALID, tok.Kind)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "invalid int")
	assert.Equal(t, []string{ErrTokenFormat}, codes)
}

func TestScanErrorCodes(t *testing.T) {
	cases := []struct {
		src  string
		mode Mode
		code string
	}{
		{"'never closed", ModeExpr, ErrTokenFormat},
		{"$/never closed", ModeExpr, ErrTokenFormat},
		{"0x", ModeExpr, ErrTokenFormat},
		{"\x01", ModeExpr, ErrInvalidToken},
	}
	for _, c := range cases {
		var s Scanner
		var code string
		file := token.NewFile("test", []byte(c.src))
		s.Init(file, func(_ token.Position, cd, _ string) { code = cd })
		s.SetMode(c.mode)
		s.Next()
		assert.Equal(t, c.code, code, "%q", c.src)
	}
}

func TestScanCmdMode(t *testing.T) {
	toks := scanAll(t, "foo -n a*b < in.txt 2>&1 | bar && baz &", ModeCmd)
	want := []token.Kind{
		token.CMD_ARG_PART, token.CMD_ARG_PART, token.CMD_ARG_PART,
		token.GLOB_ZERO_OR_MORE, token.CMD_ARG_PART,
		token.REDIR_IN, token.CMD_ARG_PART, token.REDIR_ERR_2_OUT,
		token.PIPE, token.CMD_ARG_PART, token.COND_AND, token.CMD_ARG_PART,
		token.BACKGROUND,
	}
	assert.Equal(t, want, kinds(toks))
}

func TestScanCmdRedirs(t *testing.T) {
	toks := scanAll(t, "> >> 2> 2>> &> &>> 1>&2 <<< ~ &! &|", ModeCmd)
	want := []token.Kind{
		token.REDIR_OUT, token.REDIR_APPEND, token.REDIR_ERR,
		token.REDIR_ERR_APPEND, token.REDIR_MERGE, token.REDIR_MERGE_APP,
		token.REDIR_OUT_2_ERR, token.REDIR_HERE_STR, token.TILDE,
		token.DISOWN_BG, token.PIPE_BG,
	}
	assert.Equal(t, want, kinds(toks))
}

func TestScanPrevSpace(t *testing.T) {
	var s Scanner
	file := token.NewFile("test", []byte("a b$c"))
	s.Init(file, nil)
	s.SetMode(ModeCmd)

	tok := s.Next()
	require.Equal(t, token.CMD_ARG_PART, tok.Kind)
	tok = s.Next()
	require.Equal(t, token.CMD_ARG_PART, tok.Kind)
	assert.True(t, s.PrevSpace())
	tok = s.Next()
	require.Equal(t, token.APPLIED_NAME, tok.Kind)
	assert.False(t, s.PrevSpace(), "adjacent segments are not separated")
}

func TestScanDString(t *testing.T) {
	var s Scanner
	file := token.NewFile("test", []byte(`"ab$x${y}cd"`))
	s.Init(file, nil)
	s.SetMode(ModeExpr)

	require.Equal(t, token.OPEN_DQUOTE, s.Next().Kind)
	s.PushMode(ModeDString)
	want := []token.Kind{
		token.STR_ELEMENT, token.APPLIED_NAME, token.START_INTERP,
	}
	for _, k := range want {
		assert.Equal(t, k, s.Next().Kind)
	}
	// the parser switches to interp mode for the ${...} body
	s.PushMode(ModeInterp)
	require.Equal(t, token.IDENT, s.Next().Kind)
	require.Equal(t, token.RBRACE, s.Next().Kind)
	s.PopMode()
	require.Equal(t, token.STR_ELEMENT, s.Next().Kind)
	require.Equal(t, token.CLOSE_DQUOTE, s.Next().Kind)
}

func TestRefetch(t *testing.T) {
	var s Scanner
	file := token.NewFile("test", []byte("var x: Int"))
	s.Init(file, nil)

	require.Equal(t, token.VAR, s.Next().Kind)
	// the bareword scans as a command word in statement mode...
	tok := s.Next()
	require.Equal(t, token.COMMAND, tok.Kind)
	// ...and refetches as an identifier under the name mode
	s.PushMode(ModeName)
	tok = s.Refetch(tok, ModeName)
	require.Equal(t, token.IDENT, tok.Kind)
	require.Equal(t, "x", file.Text(tok))
	s.PopMode()

	require.Equal(t, token.COLON, s.Next().Kind)
	s.PushMode(ModeType)
	tok = s.Next()
	require.Equal(t, token.IDENT, tok.Kind)
	require.Equal(t, "Int", file.Text(tok))
}

func TestScanTypeMode(t *testing.T) {
	toks := scanAll(t, "Map<String, [Int]>?", ModeType)
	want := []token.Kind{
		token.IDENT, token.LT, token.IDENT, token.COMMA, token.LBRACK,
		token.IDENT, token.RBRACK, token.GT, token.QUESTION,
	}
	assert.Equal(t, want, kinds(toks))
}

func TestScanComment(t *testing.T) {
	toks := scanAll(t, "echo # a comment\n", ModeStmt)
	require.NotEmpty(t, toks)
	assert.Equal(t, token.COMMAND, toks[0].Kind)
	assert.Equal(t, token.NEWLINE, toks[1].Kind)
}

func TestParseIntValues(t *testing.T) {
	cases := []struct {
		lit    string
		want   uint64
		suffix IntSuffix
	}{
		{"42", 42, SuffixNone},
		{"0xff", 255, SuffixNone},
		{"0o17", 15, SuffixNone},
		{"0b101", 5, SuffixNone},
		{"12u", 12, SuffixU},
		{"12l", 12, SuffixL},
		{"12ul", 12, SuffixUL},
		{"7b", 7, SuffixB},
		{"3s", 3, SuffixS},
		{"3us", 3, SuffixUS},
	}
	for _, c := range cases {
		v, suffix, err := ParseInt(c.lit)
		require.NoError(t, err, c.lit)
		assert.Equal(t, c.want, v, c.lit)
		assert.Equal(t, c.suffix, suffix, c.lit)
	}
}

func TestParseIntRange(t *testing.T) {
	_, _, err := ParseInt("256b")
	assert.ErrorIs(t, err, ErrRange)
	_, _, err = ParseInt("65536us")
	assert.ErrorIs(t, err, ErrRange)
	_, _, err = ParseInt("99999999999999999999")
	assert.ErrorIs(t, err, ErrRange)
	_, _, err = ParseInt("255b")
	assert.NoError(t, err)
}

func TestUnquote(t *testing.T) {
	assert.Equal(t, "abc", UnquoteSingle("'abc'"))
	assert.Equal(t, `a\nb`, UnquoteSingle(`'a\nb'`), "single quotes are literal")
	assert.Equal(t, "a\nb", UnquoteDollar(`$'a\nb'`))
	assert.Equal(t, "a\tb\"c", UnquoteElement(`a\tb\"c`))
	assert.Equal(t, "$x", UnquoteElement(`\$x`))
	assert.Equal(t, "a b", UnquoteCmdArg(`a\ b`))
}
