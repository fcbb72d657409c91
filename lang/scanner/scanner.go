// Package scanner implements the modal tokenizer for the language. The
// scanner produces tokens for the mode at the top of its mode stack; the
// parser pushes and pops modes to disambiguate the grammar (command words,
// type positions, interpolation), and may refetch a token under a different
// mode when lookahead in one mode consumed characters meaningful in another.
package scanner

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/mna/roseau/lang/token"
)

// Stable error codes reported through the error handler.
const (
	// ErrInvalidToken reports a character that cannot start or continue
	// any token in the current mode.
	ErrInvalidToken = "InvalidToken"

	// ErrTokenFormat reports a malformed literal: unterminated string or
	// regex, bad digits, out-of-range value.
	ErrTokenFormat = "TokenFormat"
)

// Mode selects the tokenization rules for the next token.
type Mode uint8

//nolint:revive
const (
	ModeStmt    Mode = iota // statement position
	ModeExpr                // expression position
	ModeName                // a single identifier is expected
	ModeType                // type position
	ModeCmd                 // command word and arguments
	ModeDString             // inside a double-quoted string
	ModeInterp              // inside ${...}
)

var modeNames = [...]string{
	ModeStmt:    "stmt",
	ModeExpr:    "expr",
	ModeName:    "name",
	ModeType:    "type",
	ModeCmd:     "cmd",
	ModeDString: "dstring",
	ModeInterp:  "interp",
}

func (m Mode) String() string { return modeNames[m] }

// Scanner tokenizes a source file. The zero value is not usable, call Init
// first.
type Scanner struct {
	file *token.File
	src  []byte
	err  func(token.Position, string, string)

	pos         int
	modes       []Mode
	prevNewline bool // a newline was crossed before the current token
	prevSpace   bool // whitespace was crossed before the current token
}

// Init readies the scanner to tokenize the file. The error handler
// receives the resolved position, the stable error code (InvalidToken or
// TokenFormat) and the message. The mode stack starts with a single
// ModeStmt entry.
func (s *Scanner) Init(file *token.File, errHandler func(token.Position, string, string)) {
	s.file = file
	s.src = file.Src()
	s.err = errHandler
	s.pos = 0
	s.modes = append(s.modes[:0], ModeStmt)
	s.prevNewline = false
	s.prevSpace = false
}

// Mode returns the mode at the top of the stack.
func (s *Scanner) Mode() Mode { return s.modes[len(s.modes)-1] }

// PushMode pushes a new mode on the stack.
func (s *Scanner) PushMode(m Mode) { s.modes = append(s.modes, m) }

// PopMode pops the top mode. The bottom entry is never popped.
func (s *Scanner) PopMode() {
	if len(s.modes) > 1 {
		s.modes = s.modes[:len(s.modes)-1]
	}
}

// SetMode replaces the mode at the top of the stack.
func (s *Scanner) SetMode(m Mode) { s.modes[len(s.modes)-1] = m }

// Refetch rewinds the scanner to the start of tok, replaces the top mode
// with m and tokenizes again. It is required when a token scanned under one
// mode covers characters that another mode would split differently.
func (s *Scanner) Refetch(tok token.Token, m Mode) token.Token {
	s.pos = int(tok.Pos)
	s.SetMode(m)
	return s.Next()
}

// PrevNewline reports whether a newline was crossed immediately before the
// most recently returned token.
func (s *Scanner) PrevNewline() bool { return s.prevNewline }

// PrevSpace reports whether whitespace was crossed immediately before the
// most recently returned token. Meaningful in ModeCmd where whitespace
// separates arguments.
func (s *Scanner) PrevSpace() bool { return s.prevSpace }

// Next returns the next token under the current mode and advances.
func (s *Scanner) Next() token.Token {
	switch s.Mode() {
	case ModeStmt:
		return s.scanStmt()
	case ModeExpr, ModeInterp:
		return s.scanExpr()
	case ModeName:
		return s.scanName()
	case ModeType:
		return s.scanType()
	case ModeCmd:
		return s.scanCmd()
	case ModeDString:
		return s.scanDString()
	}
	panic(fmt.Sprintf("unknown scanner mode %d", s.Mode()))
}

func (s *Scanner) error(off int, code, msg string) {
	if s.err != nil {
		s.err(s.file.Position(token.Pos(off)), code, msg)
	}
}

func (s *Scanner) errorf(off int, code, format string, args ...any) {
	s.error(off, code, fmt.Sprintf(format, args...))
}

func (s *Scanner) make(k token.Kind, start int) token.Token {
	return token.Token{Kind: k, Pos: token.Pos(start), Size: uint32(s.pos - start)}
}

func (s *Scanner) eof() bool { return s.pos >= len(s.src) }

func (s *Scanner) cur() byte {
	if s.pos < len(s.src) {
		return s.src[s.pos]
	}
	return 0
}

func (s *Scanner) at(off int) byte {
	if s.pos+off < len(s.src) {
		return s.src[s.pos+off]
	}
	return 0
}

// advanceIf consumes the current byte if it matches any of the candidates.
func (s *Scanner) advanceIf(matches ...byte) bool {
	c := s.cur()
	for _, m := range matches {
		if c == m && !s.eof() {
			s.pos++
			return true
		}
	}
	return false
}

// skipBlank consumes spaces, tabs and escaped newlines, recording whether
// any whitespace or newline was crossed. Newlines themselves are not
// consumed: they are significant separators in every mode.
func (s *Scanner) skipBlank() {
	s.prevSpace, s.prevNewline = false, false
	for !s.eof() {
		switch s.cur() {
		case ' ', '\t', '\r':
			s.prevSpace = true
			s.pos++
		case '\\':
			if s.at(1) == '\n' {
				s.prevSpace = true
				s.pos += 2
				continue
			}
			return
		case '#':
			// comment runs to end of line
			for !s.eof() && s.cur() != '\n' {
				s.pos++
			}
		default:
			return
		}
	}
}

// consumeNewline eats a run of newline characters together with the blanks
// and comments between them, returning a single NEWLINE token.
func (s *Scanner) consumeNewline() token.Token {
	start := s.pos
	for !s.eof() {
		if s.cur() == '\n' {
			s.prevNewline = true
			s.pos++
			continue
		}
		c := s.cur()
		if c == ' ' || c == '\t' || c == '\r' {
			s.pos++
			continue
		}
		if c == '#' {
			for !s.eof() && s.cur() != '\n' {
				s.pos++
			}
			continue
		}
		break
	}
	return token.Token{Kind: token.NEWLINE, Pos: token.Pos(start), Size: 1}
}

// scanStmt tokenizes at statement position: keywords, variable declarations
// and expressions are recognized; any other bareword starts a command.
func (s *Scanner) scanStmt() token.Token {
	s.skipBlank()
	start := s.pos
	if s.eof() {
		return s.make(token.EOF, start)
	}

	c := s.cur()
	switch {
	case c == '\n':
		return s.consumeNewline()

	case isLetter(rune(c)):
		s.ident()
		if kw := token.LookupKw(string(s.src[start:s.pos])); kw != token.IDENT {
			return s.make(kw, start)
		}
		if s.cur() == '-' && isLetter(rune(s.at(1))) {
			// maybe a hyphenated keyword (export-env, import-env)
			save := s.pos
			s.pos++
			s.ident()
			if kw := token.LookupKw(string(s.src[start:s.pos])); kw != token.IDENT {
				return s.make(kw, start)
			}
			s.pos = save
		}
		// barewords begin a command; the rest of the word may include
		// path characters, rescan it in command mode
		s.pos = start
		return s.scanCmdWord(token.COMMAND)

	case c == '/' || c == '.' && (s.at(1) == '/' || isCmdWordByte(s.at(1))):
		return s.scanCmdWord(token.COMMAND)

	default:
		// everything else is an expression opener
		return s.scanExpr()
	}
}

// scanName expects exactly one identifier.
func (s *Scanner) scanName() token.Token {
	s.skipBlank()
	start := s.pos
	if s.eof() {
		return s.make(token.EOF, start)
	}
	if !isLetter(rune(s.cur())) {
		s.pos++
		s.errorf(start, ErrInvalidToken, "invalid name character %#U", rune(s.src[start]))
		return s.make(token.INVALID, start)
	}
	s.ident()
	return s.make(token.IDENT, start)
}

// scanType tokenizes at type position. Characters that cannot appear in a
// type are returned as a silent INVALID token: they may belong to the
// enclosing mode, and the parser refetches them under it.
func (s *Scanner) scanType() token.Token {
	s.skipBlank()
	start := s.pos
	if s.eof() {
		return s.make(token.EOF, start)
	}

	c := s.cur()
	switch {
	case c == '\n':
		return s.consumeNewline()
	case isLetter(rune(c)):
		s.ident()
		if string(s.src[start:s.pos]) == "typeof" {
			return s.make(token.TYPEOF, start)
		}
		return s.make(token.IDENT, start)
	case c == '<':
		s.pos++
		return s.make(token.LT, start)
	case c == '>':
		s.pos++
		return s.make(token.GT, start)
	case c == ',':
		s.pos++
		return s.make(token.COMMA, start)
	case c == '[':
		s.pos++
		return s.make(token.LBRACK, start)
	case c == ']':
		s.pos++
		return s.make(token.RBRACK, start)
	case c == '(':
		s.pos++
		return s.make(token.LPAREN, start)
	case c == ')':
		s.pos++
		return s.make(token.RPAREN, start)
	case c == '?':
		s.pos++
		return s.make(token.QUESTION, start)
	case c == '.':
		s.pos++
		return s.make(token.DOT, start)
	case c == ':':
		s.pos++
		return s.make(token.COLON, start)
	}
	s.pos++
	return s.make(token.INVALID, start)
}

// scanExpr tokenizes at expression position (also used inside ${...}).
func (s *Scanner) scanExpr() token.Token {
	s.skipBlank()
	start := s.pos
	if s.eof() {
		return s.make(token.EOF, start)
	}

	c := s.cur()
	switch {
	case c == '\n':
		return s.consumeNewline()

	case isLetter(rune(c)):
		s.ident()
		if kw := token.LookupKw(string(s.src[start:s.pos])); kw != token.IDENT {
			return s.make(kw, start)
		}
		return s.make(token.IDENT, start)

	case isDecimal(rune(c)):
		return s.number()

	case c == '$':
		return s.dollar()

	case c == '%' && s.at(1) == '\'':
		return s.signalLiteral()

	case c == '\'':
		return s.singleString()

	case c == '"':
		s.pos++
		return s.make(token.OPEN_DQUOTE, start)
	}

	s.pos++
	switch c {
	case '+':
		if s.advanceIf('+') {
			return s.make(token.INC, start)
		}
		if s.advanceIf('=') {
			return s.make(token.PLUS_EQ, start)
		}
		return s.make(token.PLUS, start)
	case '-':
		if s.advanceIf('-') {
			return s.make(token.DEC, start)
		}
		if s.advanceIf('=') {
			return s.make(token.MINUS_EQ, start)
		}
		return s.make(token.MINUS, start)
	case '*':
		if s.advanceIf('=') {
			return s.make(token.STAR_EQ, start)
		}
		return s.make(token.STAR, start)
	case '/':
		if s.advanceIf('=') {
			return s.make(token.SLASH_EQ, start)
		}
		return s.make(token.SLASH, start)
	case '%':
		if s.advanceIf('=') {
			return s.make(token.PERCENT_EQ, start)
		}
		return s.make(token.PERCENT, start)
	case '=':
		if s.advanceIf('=') {
			return s.make(token.EQL, start)
		}
		if s.advanceIf('~') {
			return s.make(token.MATCH, start)
		}
		if s.advanceIf('>') {
			return s.make(token.ARROW, start)
		}
		return s.make(token.EQ, start)
	case '!':
		if s.advanceIf('=') {
			return s.make(token.NEQ, start)
		}
		if s.advanceIf('~') {
			return s.make(token.UNMATCH, start)
		}
		return s.make(token.NOT_OP, start)
	case '<':
		if s.advanceIf('=') {
			return s.make(token.LE, start)
		}
		return s.make(token.LT, start)
	case '>':
		if s.advanceIf('=') {
			return s.make(token.GE, start)
		}
		return s.make(token.GT, start)
	case '&':
		if s.advanceIf('&') {
			return s.make(token.COND_AND, start)
		}
		return s.make(token.AND, start)
	case '|':
		if s.advanceIf('|') {
			return s.make(token.COND_OR, start)
		}
		return s.make(token.OR, start)
	case '^':
		return s.make(token.XOR, start)
	case '.':
		if s.advanceIf('.') {
			return s.make(token.RANGE, start)
		}
		return s.make(token.DOT, start)
	case ',':
		return s.make(token.COMMA, start)
	case ':':
		return s.make(token.COLON, start)
	case ';':
		return s.make(token.SEMI, start)
	case '?':
		return s.make(token.QUESTION, start)
	case '(':
		return s.make(token.LPAREN, start)
	case ')':
		return s.make(token.RPAREN, start)
	case '[':
		return s.make(token.LBRACK, start)
	case ']':
		return s.make(token.RBRACK, start)
	case '{':
		return s.make(token.LBRACE, start)
	case '}':
		return s.make(token.RBRACE, start)
	}

	r, _ := utf8.DecodeRune(s.src[start:])
	s.errorf(start, ErrInvalidToken, "illegal character %#U", r)
	return s.make(token.INVALID, start)
}

// dollar scans the token introduced by '$': an applied name, a special
// name, an interpolation opener, a substitution opener, a $'...' string or a
// $/.../ regex literal.
func (s *Scanner) dollar() token.Token {
	start := s.pos
	s.pos++ // consume $
	switch c := s.cur(); {
	case c == '{':
		s.pos++
		return s.make(token.START_INTERP, start)
	case c == '(':
		s.pos++
		return s.make(token.START_SUB_CMD, start)
	case c == '\'':
		return s.dollarString(start)
	case c == '/':
		return s.regexLiteral(start)
	case isLetter(rune(c)):
		s.ident()
		return s.make(token.APPLIED_NAME, start)
	case c == '?' || c == '#' || c == '@' || c == '$':
		s.pos++
		return s.make(token.SPECIAL_NAME, start)
	case isDecimal(rune(c)):
		s.pos++
		return s.make(token.SPECIAL_NAME, start)
	}
	s.error(start, ErrInvalidToken, "illegal character '$'")
	return s.make(token.INVALID, start)
}

func (s *Scanner) ident() string {
	start := s.pos
	for !s.eof() && (isLetter(rune(s.cur())) || isDigit(rune(s.cur()))) {
		s.pos++
	}
	return string(s.src[start:s.pos])
}

func isLetter(rn rune) bool {
	return 'a' <= rn && rn <= 'z' ||
		'A' <= rn && rn <= 'Z' ||
		rn == '_' ||
		rn >= utf8.RuneSelf && unicode.IsLetter(rn)
}

func isDigit(rn rune) bool {
	return '0' <= rn && rn <= '9' ||
		rn >= utf8.RuneSelf && unicode.IsDigit(rn)
}

func isDecimal(rn rune) bool { return '0' <= rn && rn <= '9' }
