package scanner

import "github.com/mna/roseau/lang/token"

// isCmdWordByte reports whether the byte may appear in a bare command word
// or argument fragment without quoting.
func isCmdWordByte(c byte) bool {
	switch c {
	case 0, ' ', '\t', '\r', '\n', ';', '\'', '"', '`', '|', '&', '<', '>',
		'(', ')', '{', '}', '$', '*', '?', '#':
		return false
	}
	return true
}

// scanCmdWord scans a bare fragment in command mode and tags it with the
// provided kind (COMMAND for the first word, CMD_ARG_PART otherwise).
// Backslash escapes the next byte.
func (s *Scanner) scanCmdWord(kind token.Kind) token.Token {
	start := s.pos
	for !s.eof() {
		c := s.cur()
		if c == '\\' && s.pos+1 < len(s.src) && s.at(1) != '\n' {
			s.pos += 2
			continue
		}
		if !isCmdWordByte(c) {
			break
		}
		s.pos++
	}
	if s.pos == start {
		s.pos++
		s.errorf(start, ErrInvalidToken, "illegal character %#U in command", rune(s.src[start]))
		return s.make(token.INVALID, start)
	}
	return s.make(kind, start)
}

// scanCmd tokenizes in command mode: argument fragments, quote and
// interpolation openers, glob wildcards, redirections and the pipeline/job
// trailers. Whitespace separates arguments and is surfaced via PrevSpace.
func (s *Scanner) scanCmd() token.Token {
	s.skipBlank()
	start := s.pos
	if s.eof() {
		return s.make(token.EOF, start)
	}

	switch c := s.cur(); c {
	case '\n':
		return s.consumeNewline()

	case ';':
		s.pos++
		return s.make(token.SEMI, start)

	case ')':
		s.pos++
		return s.make(token.RPAREN, start)

	case '}':
		s.pos++
		return s.make(token.RBRACE, start)

	case '\'':
		return s.singleString()

	case '"':
		s.pos++
		return s.make(token.OPEN_DQUOTE, start)

	case '$':
		return s.dollar()

	case '@':
		if s.at(1) == '(' {
			s.pos += 2
			return s.make(token.START_PROC_SUB, start)
		}
		return s.scanCmdWord(token.CMD_ARG_PART)

	case '*':
		s.pos++
		return s.make(token.GLOB_ZERO_OR_MORE, start)

	case '?':
		s.pos++
		return s.make(token.GLOB_ANY, start)

	case '~':
		if s.prevSpace || s.pos == 0 || s.src[s.pos-1] == '\n' {
			s.pos++
			return s.make(token.TILDE, start)
		}
		return s.scanCmdWord(token.CMD_ARG_PART)

	case '|':
		s.pos++
		if s.advanceIf('|') {
			return s.make(token.COND_OR, start)
		}
		return s.make(token.PIPE, start)

	case '&':
		s.pos++
		switch {
		case s.advanceIf('&'):
			return s.make(token.COND_AND, start)
		case s.advanceIf('!'):
			return s.make(token.DISOWN_BG, start)
		case s.advanceIf('|'):
			return s.make(token.PIPE_BG, start)
		case s.cur() == '>':
			s.pos++
			if s.advanceIf('>') {
				return s.make(token.REDIR_MERGE_APP, start)
			}
			return s.make(token.REDIR_MERGE, start)
		}
		return s.make(token.BACKGROUND, start)

	case '<':
		s.pos++
		if s.cur() == '<' && s.at(1) == '<' {
			s.pos += 2
			return s.make(token.REDIR_HERE_STR, start)
		}
		return s.make(token.REDIR_IN, start)

	case '>':
		s.pos++
		if s.advanceIf('>') {
			return s.make(token.REDIR_APPEND, start)
		}
		return s.make(token.REDIR_OUT, start)

	case '1':
		if s.at(1) == '>' && s.at(2) == '&' && s.at(3) == '2' {
			s.pos += 4
			return s.make(token.REDIR_OUT_2_ERR, start)
		}
		return s.scanCmdWord(token.CMD_ARG_PART)

	case '2':
		if s.at(1) == '>' {
			if s.at(2) == '&' && s.at(3) == '1' {
				s.pos += 4
				return s.make(token.REDIR_ERR_2_OUT, start)
			}
			s.pos += 2
			if s.advanceIf('>') {
				return s.make(token.REDIR_ERR_APPEND, start)
			}
			return s.make(token.REDIR_ERR, start)
		}
		return s.scanCmdWord(token.CMD_ARG_PART)
	}
	return s.scanCmdWord(token.CMD_ARG_PART)
}

// scanDString tokenizes inside a double-quoted string: literal element
// runs, interpolations and the closing quote.
func (s *Scanner) scanDString() token.Token {
	start := s.pos
	if s.eof() {
		s.error(start, ErrTokenFormat, "unterminated double-quoted string")
		return s.make(token.EOF, start)
	}

	switch s.cur() {
	case '"':
		s.pos++
		return s.make(token.CLOSE_DQUOTE, start)
	case '$':
		return s.dollar()
	}

	// a literal element run, ending at '"', '$' or EOF
	for !s.eof() {
		c := s.cur()
		if c == '"' || c == '$' {
			break
		}
		if c == '\\' && s.pos+1 < len(s.src) {
			s.pos += 2
			continue
		}
		s.pos++
	}
	if s.eof() {
		s.error(start, ErrTokenFormat, "unterminated double-quoted string")
	}
	return s.make(token.STR_ELEMENT, start)
}
