// Package lex tokenizes pipeline description (.pmd) sources.
//
// The .pmd language is small: identifiers, double-quoted strings, and
// the punctuation used by #render_pipeline(...) blocks. The lexer is
// eager ([New] tokenizes the whole input up front) and rune-correct,
// so multi-byte identifiers and strings survive intact.
package lex

import (
	"errors"
	"fmt"
	"unicode"
)

// Kind identifies a token class.
type Kind uint8

const (
	KindIdent Kind = iota
	KindString
	KindHash
	KindComma
	KindLeftParen
	KindRightParen
	KindColon
)

// Token is a single lexed token. Text is set for KindIdent and
// KindString; punctuation tokens carry no text. Tokens are comparable,
// so parsers can match them with ==.
type Token struct {
	Kind Kind
	Text string
}

// Convenience constructors used by parsers when reporting what they
// expected.

func Ident(text string) Token  { return Token{Kind: KindIdent, Text: text} }
func String(text string) Token { return Token{Kind: KindString, Text: text} }

var (
	Hash       = Token{Kind: KindHash}
	Comma      = Token{Kind: KindComma}
	LeftParen  = Token{Kind: KindLeftParen}
	RightParen = Token{Kind: KindRightParen}
	Colon      = Token{Kind: KindColon}
)

// String renders the token the way it appears in source.
func (t Token) String() string {
	switch t.Kind {
	case KindIdent:
		return t.Text
	case KindString:
		return fmt.Sprintf("%q", t.Text)
	case KindHash:
		return "#"
	case KindComma:
		return ","
	case KindLeftParen:
		return "("
	case KindRightParen:
		return ")"
	case KindColon:
		return ":"
	default:
		return fmt.Sprintf("Token(%d)", t.Kind)
	}
}

// Lex errors. ErrEndOfInput terminates token scanning and is only
// surfaced by New when the input contains no tokens at all.
var (
	ErrEndOfInput         = errors.New("reached end of input")
	ErrUnterminatedString = errors.New("string literal is not terminated")
)

// InvalidCharError reports a character no token can start with.
type InvalidCharError struct {
	Char rune
}

func (e *InvalidCharError) Error() string {
	return fmt.Sprintf("invalid character %q", e.Char)
}

// TokenStream is a cursor over the tokens of one source string.
type TokenStream struct {
	tokens []Token
	index  int
}

// New tokenizes src. Input that contains no tokens (empty or
// whitespace only) fails with ErrEndOfInput.
func New(src string) (*TokenStream, error) {
	tok, rest, err := nextToken(src)
	if err != nil {
		return nil, err
	}
	tokens := []Token{tok}
	for rest != "" {
		next, newRest, err := nextToken(rest)
		if errors.Is(err, ErrEndOfInput) {
			break
		}
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, next)
		rest = newRest
	}
	return &TokenStream{tokens: tokens}, nil
}

// Peek returns the current token without advancing. Peeking past the
// end reports ok=false.
func (ts *TokenStream) Peek() (Token, bool) {
	if ts.index < len(ts.tokens) {
		return ts.tokens[ts.index], true
	}
	return Token{}, false
}

// Next returns the current token and advances past it.
func (ts *TokenStream) Next() (Token, bool) {
	tok, ok := ts.Peek()
	if ok {
		ts.index++
	}
	return tok, ok
}

// spannedStr is a window into a source string, identified by byte
// offsets. Offsets are bytes, but skip counts runes, so windows never
// split a multi-byte character.
type spannedStr struct {
	src   string
	start int
	end   int
}

func span(src string, start, end int) spannedStr {
	return spannedStr{src: src, start: start, end: end}
}

func fullSpan(src string) spannedStr {
	return span(src, 0, len(src))
}

func (s spannedStr) substring() string {
	if s.start >= s.end {
		return ""
	}
	return s.src[s.start:s.end]
}

// remaining returns the window from the end of s to the end of the
// source, or ok=false when s already reaches the end.
func (s spannedStr) remaining() (spannedStr, bool) {
	if s.end < len(s.src) {
		return span(s.src, s.end, len(s.src)), true
	}
	return spannedStr{}, false
}

func (s spannedStr) firstChar() (rune, bool) {
	for _, r := range s.substring() {
		return r, true
	}
	return 0, false
}

// skip drops n runes from the front of s and widens the window to the
// end of the source. It reports ok=false when s holds fewer than n+1
// runes.
func (s spannedStr) skip(n int) (spannedStr, bool) {
	newStart := s.start
	num := 0
	for i := range s.substring() {
		if num > n {
			break
		}
		newStart = s.start + i
		num++
	}
	if num <= n {
		return spannedStr{}, false
	}
	return span(s.src, newStart, len(s.src)), true
}

// lexWhile returns the longest prefix of src whose runes satisfy
// matcher. The matcher also receives the rune index within the prefix.
func lexWhile(src string, matcher func(r rune, i int) bool) spannedStr {
	s := span(src, 0, 0)
	charIndex := 0
	for i, r := range src {
		if !matcher(r, charIndex) {
			s.end = i
			return s
		}
		charIndex++
	}
	s.end = len(src)
	return s
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isIdentPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// nextToken scans one token from the front of src, skipping leading
// whitespace, and returns the unconsumed remainder. Whitespace-only
// input fails with ErrEndOfInput.
func nextToken(src string) (Token, string, error) {
	ws := lexWhile(src, func(r rune, _ int) bool { return unicode.IsSpace(r) })
	s, ok := ws.remaining()
	if !ok {
		return Token{}, "", ErrEndOfInput
	}

	first, ok := s.firstChar()
	if !ok {
		return Token{}, "", ErrEndOfInput
	}

	after := func(sp spannedStr, ok bool) string {
		if !ok {
			return ""
		}
		return sp.substring()
	}

	switch {
	case isIdentStart(first):
		data := lexWhile(s.substring(), func(r rune, _ int) bool { return isIdentPart(r) })
		rest, ok := data.remaining()
		return Ident(data.substring()), after(rest, ok), nil
	case first == '#':
		rest, ok := s.skip(1)
		return Hash, after(rest, ok), nil
	case first == '(':
		rest, ok := s.skip(1)
		return LeftParen, after(rest, ok), nil
	case first == ')':
		rest, ok := s.skip(1)
		return RightParen, after(rest, ok), nil
	case first == ',':
		rest, ok := s.skip(1)
		return Comma, after(rest, ok), nil
	case first == ':':
		rest, ok := s.skip(1)
		return Colon, after(rest, ok), nil
	case first == '"':
		body, ok := s.skip(1)
		if !ok {
			return Token{}, "", ErrUnterminatedString
		}
		data := lexWhile(body.substring(), func(r rune, _ int) bool {
			return r != '"' && r != '\n'
		})
		closing, ok := data.remaining()
		if !ok {
			return Token{}, "", ErrUnterminatedString
		}
		if r, _ := closing.firstChar(); r != '"' {
			return Token{}, "", ErrUnterminatedString
		}
		rest, ok := closing.skip(1)
		return String(data.substring()), after(rest, ok), nil
	default:
		return Token{}, "", &InvalidCharError{Char: first}
	}
}
