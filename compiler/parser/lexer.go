// Package parser turns exo declaration source into the ast package's syntax
// tree. The lexer and parser are hand written: the language is small and the
// diagnostics need precise positions.
package parser

import (
	"strings"

	"github.com/syssam/exo"
	"github.com/syssam/exo/compiler/ast"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	span ast.Span
}

type lexer struct {
	file   string
	src    string
	pos    int
	line   int
	column int
}

func newLexer(file, src string) *lexer {
	return &lexer{file: file, src: src, line: 1, column: 1}
}

func (l *lexer) span() ast.Span {
	return ast.Span{File: l.file, Line: l.line, Column: l.column}
}

func (l *lexer) advance() byte {
	c := l.src[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	return c
}

func (l *lexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) peekAt(n int) byte {
	if l.pos+n >= len(l.src) {
		return 0
	}
	return l.src[l.pos+n]
}

// next returns the next token, skipping whitespace and comments.
func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) {
		c := l.peek()
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.advance()
		case c == '/' && l.peekAt(1) == '/':
			for l.pos < len(l.src) && l.peek() != '\n' {
				l.advance()
			}
		case c == '/' && l.peekAt(1) == '*':
			l.advance()
			l.advance()
			for l.pos < len(l.src) && !(l.peek() == '*' && l.peekAt(1) == '/') {
				l.advance()
			}
			if l.pos < len(l.src) {
				l.advance()
				l.advance()
			}
		default:
			return l.token()
		}
	}
	return token{kind: tokEOF, span: l.span()}, nil
}

func (l *lexer) token() (token, error) {
	span := l.span()
	c := l.peek()
	switch {
	case isIdentStart(c):
		var sb strings.Builder
		for l.pos < len(l.src) && isIdentPart(l.peek()) {
			sb.WriteByte(l.advance())
		}
		return token{kind: tokIdent, text: sb.String(), span: span}, nil
	case c >= '0' && c <= '9' || c == '-' && l.peekAt(1) >= '0' && l.peekAt(1) <= '9':
		var sb strings.Builder
		sb.WriteByte(l.advance())
		for l.pos < len(l.src) && (l.peek() >= '0' && l.peek() <= '9' || l.peek() == '.') {
			sb.WriteByte(l.advance())
		}
		return token{kind: tokNumber, text: sb.String(), span: span}, nil
	case c == '"':
		l.advance()
		var sb strings.Builder
		for {
			if l.pos >= len(l.src) {
				return token{}, exo.Validationf("%s: unterminated string literal", span)
			}
			c := l.advance()
			if c == '"' {
				break
			}
			if c == '\\' && l.pos < len(l.src) {
				switch e := l.advance(); e {
				case 'n':
					sb.WriteByte('\n')
				case 't':
					sb.WriteByte('\t')
				default:
					sb.WriteByte(e)
				}
				continue
			}
			sb.WriteByte(c)
		}
		return token{kind: tokString, text: sb.String(), span: span}, nil
	default:
		// Multi-byte operators first.
		for _, op := range []string{"==", "!=", "<=", ">=", "&&", "||", "=>"} {
			if strings.HasPrefix(l.src[l.pos:], op) {
				l.advance()
				l.advance()
				return token{kind: tokPunct, text: op, span: span}, nil
			}
		}
		switch c {
		case '{', '}', '(', ')', '<', '>', ':', ';', ',', '.', '=', '@', '?', '!', '[', ']':
			l.advance()
			return token{kind: tokPunct, text: string(c), span: span}, nil
		}
		return token{}, exo.Validationf("%s: unexpected character %q", span, string(c))
	}
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}
