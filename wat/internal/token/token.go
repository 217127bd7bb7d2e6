package token

import (
	"fmt"
	"strconv"
	"unicode"
)

type Type int

const (
	LParen Type = iota
	RParen
	Ident
	String
	Number
)

func (t Type) String() string {
	switch t {
	case LParen:
		return "'('"
	case RParen:
		return "')'"
	case Ident:
		return "identifier"
	case String:
		return "string"
	case Number:
		return "number"
	}
	return "unknown"
}

type Token struct {
	Value string
	Type  Type
	Line  int
}

// Error is a lexical error. Tokenize stops at the first one.
type Error struct {
	Msg  string
	Line int
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

func isIdentRune(c rune) bool {
	if unicode.IsLetter(c) || unicode.IsDigit(c) {
		return true
	}
	switch c {
	case '_', '.', '$', '-', ':', '=', '+', '/', '@', '!', '?', '<', '>', '*', '#', '\'', '~', '^', '|', '`', '&', '%':
		return true
	}
	return false
}

func Tokenize(input string) ([]Token, error) {
	var tokens []Token
	line := 1
	runes := []rune(input)

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if r == '\n' {
			line++
			continue
		}
		if unicode.IsSpace(r) {
			continue
		}

		// Line comment
		if r == ';' && i+1 < len(runes) && runes[i+1] == ';' {
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			line++
			continue
		}

		if r == '(' {
			if i+1 < len(runes) && runes[i+1] == ';' {
				start := line
				depth := 1
				i += 2
				for i < len(runes) && depth > 0 {
					switch {
					case runes[i] == '(' && i+1 < len(runes) && runes[i+1] == ';':
						depth++
						i++
					case runes[i] == ';' && i+1 < len(runes) && runes[i+1] == ')':
						depth--
						i++
					case runes[i] == '\n':
						line++
					}
					i++
				}
				if depth > 0 {
					return nil, &Error{Msg: "unterminated block comment", Line: start}
				}
				i--
				continue
			}
			tokens = append(tokens, Token{"(", LParen, line})
			continue
		}

		if r == ')' {
			tokens = append(tokens, Token{")", RParen, line})
			continue
		}

		if r == '"' {
			s, end, err := readString(runes, i+1)
			if err != nil {
				return nil, &Error{Msg: err.Error(), Line: line}
			}
			tokens = append(tokens, Token{s, String, line})
			i = end
			continue
		}

		if !isIdentRune(r) {
			return nil, &Error{Msg: fmt.Sprintf("unexpected character %q", r), Line: line}
		}

		start := i
		for i < len(runes) && isIdentRune(runes[i]) {
			i++
		}
		typ := Ident
		if unicode.IsDigit(r) || ((r == '-' || r == '+') && start+1 < i && unicode.IsDigit(runes[start+1])) {
			typ = Number
		}
		tokens = append(tokens, Token{string(runes[start:i]), typ, line})
		i--
	}

	return tokens, nil
}

// readString decodes a string literal starting after the opening quote and
// returns the index of the closing quote.
func readString(runes []rune, i int) (string, int, error) {
	var out []byte
	for ; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '"':
			return string(out), i, nil
		case '\n':
			return "", i, fmt.Errorf("newline in string literal")
		case '\\':
			if i+1 >= len(runes) {
				return "", i, fmt.Errorf("unterminated escape")
			}
			i++
			switch e := runes[i]; e {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			case 'r':
				out = append(out, '\r')
			case '\\', '"', '\'':
				out = append(out, byte(e))
			default:
				if i+1 >= len(runes) {
					return "", i, fmt.Errorf("unterminated escape")
				}
				v, err := strconv.ParseUint(string(runes[i:i+2]), 16, 8)
				if err != nil {
					return "", i, fmt.Errorf("invalid escape \\%s", string(runes[i:i+2]))
				}
				out = append(out, byte(v))
				i++
			}
		default:
			out = append(out, string(c)...)
		}
	}
	return "", i, fmt.Errorf("unterminated string literal")
}
