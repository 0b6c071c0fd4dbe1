package toolchain

import (
	"unicode"

	appErr "algojudge/pkg/errors"
)

var typeKeywords = map[string]bool{
	"class":     true,
	"interface": true,
	"enum":      true,
	"record":    true,
}

// JavaEntryClass returns the name of the top-level public type, or the first
// top-level class when none is public. Comments and string, char and text
// block literals are skipped, so nested or quoted declarations never match.
func JavaEntryClass(code string) (string, error) {
	lx := javaLexer{src: []rune(code)}
	depth := 0
	public := false
	firstClass := ""
	prev := ""
	for {
		tok, ok := lx.next()
		if !ok {
			break
		}
		switch tok {
		case "{":
			depth++
			public = false
		case "}":
			if depth > 0 {
				depth--
			}
			public = false
		case ";":
			if depth == 0 {
				public = false
			}
		default:
			if depth != 0 {
				break
			}
			if tok == "public" {
				public = true
				break
			}
			// Foo.class in a top-level annotation argument is not a declaration.
			if typeKeywords[tok] && prev != "." && prev != "@" {
				name, ok := lx.next()
				if !ok || !isJavaIdentifier(name) {
					break
				}
				if public {
					return name, nil
				}
				if firstClass == "" && tok == "class" {
					firstClass = name
				}
				prev = name
				continue
			}
		}
		prev = tok
	}
	if firstClass != "" {
		return firstClass, nil
	}
	return "", appErr.New(appErr.CompilationError).WithMessage("no top-level class declaration found")
}

type javaLexer struct {
	src []rune
	pos int
}

// next returns the next identifier or punctuation token.
func (l *javaLexer) next() (string, bool) {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case unicode.IsSpace(c):
			l.pos++
		case c == '/' && l.peek(1) == '/':
			l.skipLineComment()
		case c == '/' && l.peek(1) == '*':
			l.skipBlockComment()
		case c == '"' && l.peek(1) == '"' && l.peek(2) == '"':
			l.skipTextBlock()
		case c == '"' || c == '\'':
			l.skipQuoted(c)
		case isJavaIdentStart(c):
			start := l.pos
			for l.pos < len(l.src) && isJavaIdentPart(l.src[l.pos]) {
				l.pos++
			}
			return string(l.src[start:l.pos]), true
		default:
			l.pos++
			return string(c), true
		}
	}
	return "", false
}

func (l *javaLexer) peek(offset int) rune {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	return l.src[l.pos+offset]
}

func (l *javaLexer) skipLineComment() {
	for l.pos < len(l.src) && l.src[l.pos] != '\n' {
		l.pos++
	}
}

func (l *javaLexer) skipBlockComment() {
	l.pos += 2
	for l.pos < len(l.src) {
		if l.src[l.pos] == '*' && l.peek(1) == '/' {
			l.pos += 2
			return
		}
		l.pos++
	}
}

func (l *javaLexer) skipTextBlock() {
	l.pos += 3
	for l.pos < len(l.src) {
		switch {
		case l.src[l.pos] == '\\':
			l.pos += 2
		case l.src[l.pos] == '"' && l.peek(1) == '"' && l.peek(2) == '"':
			l.pos += 3
			return
		default:
			l.pos++
		}
	}
}

func (l *javaLexer) skipQuoted(quote rune) {
	l.pos++
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case '\\':
			l.pos += 2
		case quote:
			l.pos++
			return
		case '\n':
			// Unterminated literal; let javac report it.
			return
		default:
			l.pos++
		}
	}
}

func isJavaIdentStart(c rune) bool {
	return c == '_' || c == '$' || unicode.IsLetter(c)
}

func isJavaIdentPart(c rune) bool {
	return isJavaIdentStart(c) || unicode.IsDigit(c)
}

func isJavaIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		if i == 0 && !isJavaIdentStart(c) {
			return false
		}
		if !isJavaIdentPart(c) {
			return false
		}
	}
	return !typeKeywords[s]
}
