package parser

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenNumber
	tokenString
	tokenIdent
	tokenReturn
	tokenPlus
	tokenMinus
	tokenStar
	tokenSlash
	tokenBang
	tokenEq  // ==
	tokenNe  // !=
	tokenLt  // <
	tokenLe  // <=
	tokenGt  // >
	tokenGe  // >=
	tokenLParen
	tokenRParen
	tokenComma
	tokenDot
	tokenSemi // ';' or newline: statement separator
)

func (k tokenKind) String() string {
	switch k {
	case tokenEOF:
		return "end of input"
	case tokenNumber:
		return "number"
	case tokenString:
		return "string"
	case tokenIdent:
		return "identifier"
	case tokenReturn:
		return "'return'"
	case tokenSemi:
		return "statement separator"
	case tokenLParen:
		return "'('"
	case tokenRParen:
		return "')'"
	case tokenComma:
		return "','"
	case tokenDot:
		return "'.'"
	default:
		return "operator"
	}
}

type token struct {
	kind tokenKind
	text string
	line int
	col  int
}

// Error is a structured parse error with source position.
// Parsing never panics; malformed input always surfaces as one of these.
type Error struct {
	Line    int
	Col     int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Col, e.Message)
}

func errAt(line, col int, format string, args ...any) *Error {
	return &Error{Line: line, Col: col, Message: fmt.Sprintf(format, args...)}
}

// lex tokenizes transform source text.
// Newlines become statement separators; all other whitespace is skipped.
func lex(src string) ([]token, *Error) {
	var tokens []token
	line, col := 1, 1

	emit := func(kind tokenKind, text string, l, c int) {
		tokens = append(tokens, token{kind: kind, text: text, line: l, col: c})
	}

	runes := []rune(src)
	i := 0
	for i < len(runes) {
		r := runes[i]
		startLine, startCol := line, col

		switch {
		case r == '\n':
			emit(tokenSemi, "\n", startLine, startCol)
			line++
			col = 1
			i++
		case r == ' ' || r == '\t' || r == '\r':
			col++
			i++
		case r == ';':
			emit(tokenSemi, ";", startLine, startCol)
			col++
			i++
		case r == '+':
			emit(tokenPlus, "+", startLine, startCol)
			col++
			i++
		case r == '-':
			emit(tokenMinus, "-", startLine, startCol)
			col++
			i++
		case r == '*':
			emit(tokenStar, "*", startLine, startCol)
			col++
			i++
		case r == '/':
			emit(tokenSlash, "/", startLine, startCol)
			col++
			i++
		case r == '(':
			emit(tokenLParen, "(", startLine, startCol)
			col++
			i++
		case r == ')':
			emit(tokenRParen, ")", startLine, startCol)
			col++
			i++
		case r == ',':
			emit(tokenComma, ",", startLine, startCol)
			col++
			i++
		case r == '.':
			emit(tokenDot, ".", startLine, startCol)
			col++
			i++
		case r == '=':
			if i+1 < len(runes) && runes[i+1] == '=' {
				emit(tokenEq, "==", startLine, startCol)
				col += 2
				i += 2
			} else {
				return nil, errAt(startLine, startCol, "unexpected character '=' (did you mean '==')")
			}
		case r == '!':
			if i+1 < len(runes) && runes[i+1] == '=' {
				emit(tokenNe, "!=", startLine, startCol)
				col += 2
				i += 2
			} else {
				emit(tokenBang, "!", startLine, startCol)
				col++
				i++
			}
		case r == '<':
			if i+1 < len(runes) && runes[i+1] == '=' {
				emit(tokenLe, "<=", startLine, startCol)
				col += 2
				i += 2
			} else {
				emit(tokenLt, "<", startLine, startCol)
				col++
				i++
			}
		case r == '>':
			if i+1 < len(runes) && runes[i+1] == '=' {
				emit(tokenGe, ">=", startLine, startCol)
				col += 2
				i += 2
			} else {
				emit(tokenGt, ">", startLine, startCol)
				col++
				i++
			}
		case r == '"':
			text, consumed, err := lexString(runes[i:], startLine, startCol)
			if err != nil {
				return nil, err
			}
			emit(tokenString, text, startLine, startCol)
			col += consumed
			i += consumed
		case unicode.IsDigit(r):
			text := lexNumber(runes[i:])
			emit(tokenNumber, text, startLine, startCol)
			col += len(text)
			i += len(text)
		case unicode.IsLetter(r) || r == '_':
			text := lexIdent(runes[i:])
			if text == "return" {
				emit(tokenReturn, text, startLine, startCol)
			} else {
				emit(tokenIdent, text, startLine, startCol)
			}
			col += len(text)
			i += len(text)
		default:
			return nil, errAt(startLine, startCol, "unexpected character %q", string(r))
		}
	}

	emit(tokenEOF, "", line, col)
	return tokens, nil
}

// lexString scans a double-quoted string starting at runes[0] == '"'.
// Supports \" \\ \n \t escapes. Returns the unescaped text and the number
// of runes consumed including both quotes.
func lexString(runes []rune, line, col int) (string, int, *Error) {
	var b strings.Builder
	i := 1
	for i < len(runes) {
		r := runes[i]
		switch r {
		case '"':
			return b.String(), i + 1, nil
		case '\n':
			return "", 0, errAt(line, col, "unterminated string literal")
		case '\\':
			if i+1 >= len(runes) {
				return "", 0, errAt(line, col, "unterminated string literal")
			}
			switch runes[i+1] {
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				return "", 0, errAt(line, col+i, "unknown escape sequence '\\%s'", string(runes[i+1]))
			}
			i += 2
		default:
			b.WriteRune(r)
			i++
		}
	}
	return "", 0, errAt(line, col, "unterminated string literal")
}

func lexNumber(runes []rune) string {
	i := 0
	for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
		// A dot only continues the number when followed by a digit;
		// otherwise it is a field-access dot (e.g. "1.foo" is not valid
		// but "x.y" after a number boundary must not be eaten here).
		if runes[i] == '.' {
			if i+1 >= len(runes) || !unicode.IsDigit(runes[i+1]) {
				break
			}
		}
		i++
	}

	// Exponent part: [eE][+-]?digits. Consumed only when the digits are
	// actually there, so "2e" stays a number followed by an identifier.
	if i < len(runes) && (runes[i] == 'e' || runes[i] == 'E') {
		j := i + 1
		if j < len(runes) && (runes[j] == '+' || runes[j] == '-') {
			j++
		}
		if j < len(runes) && unicode.IsDigit(runes[j]) {
			for j < len(runes) && unicode.IsDigit(runes[j]) {
				j++
			}
			i = j
		}
	}
	return string(runes[:i])
}

func lexIdent(runes []rune) string {
	i := 0
	for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
		i++
	}
	return string(runes[:i])
}
