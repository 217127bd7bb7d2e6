package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/wasm-enclave/errors"
	"github.com/wippyai/wasm-enclave/wat/internal/ast"
	"github.com/wippyai/wasm-enclave/wat/internal/token"
)

type Parser struct {
	mod     *ast.Module
	typeMap map[string]uint32
	funcMap map[string]uint32
	memMap  map[string]uint32
	locals  map[string]uint32
	defIdx  map[int]uint32 // field position -> index of the func or memory it defines
	tokens  []token.Token
	pos     int
}

func New(tokens []token.Token) *Parser {
	return &Parser{
		tokens:  tokens,
		mod:     &ast.Module{},
		typeMap: make(map[string]uint32),
		funcMap: make(map[string]uint32),
		memMap:  make(map[string]uint32),
		defIdx:  make(map[int]uint32),
	}
}

func (p *Parser) Parse() (*ast.Module, error) {
	return p.parseModule()
}

func (p *Parser) peek() *token.Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	return &p.tokens[p.pos]
}

// peekKeyword returns the keyword of the form starting at the current '('.
func (p *Parser) peekKeyword() string {
	if p.pos+1 >= len(p.tokens) || p.tokens[p.pos].Type != token.LParen {
		return ""
	}
	if t := p.tokens[p.pos+1]; t.Type == token.Ident {
		return t.Value
	}
	return ""
}

func (p *Parser) next() *token.Token {
	if p.pos >= len(p.tokens) {
		return nil
	}
	t := &p.tokens[p.pos]
	p.pos++
	return t
}

func (p *Parser) line() int {
	if t := p.peek(); t != nil {
		return t.Line
	}
	if len(p.tokens) > 0 {
		return p.tokens[len(p.tokens)-1].Line
	}
	return 1
}

func (p *Parser) malformed(format string, args ...any) *errors.Error {
	return errors.Compile(errors.KindMalformed, fmt.Sprintf("line %d: ", p.line())+fmt.Sprintf(format, args...), nil)
}

func (p *Parser) unsupported(format string, args ...any) *errors.Error {
	return errors.Compile(errors.KindUnsupported, fmt.Sprintf("line %d: ", p.line())+fmt.Sprintf(format, args...), nil)
}

func (p *Parser) expect(typ token.Type) (*token.Token, error) {
	if p.peek() == nil {
		return nil, p.malformed("unexpected end of input")
	}
	if t := p.peek(); t.Type != typ {
		return nil, p.malformed("expected %v, got %q", typ, t.Value)
	}
	return p.next(), nil
}

func (p *Parser) expectKeyword(kw string) error {
	t := p.peek()
	if t == nil {
		return p.malformed("unexpected end of input")
	}
	if t.Type != token.Ident || t.Value != kw {
		return p.malformed("expected '%s', got %q", kw, t.Value)
	}
	p.next()
	return nil
}

func (p *Parser) closeForm() error {
	_, err := p.expect(token.RParen)
	return err
}

// skipForm consumes a balanced form starting at '('.
func (p *Parser) skipForm() error {
	depth := 0
	for {
		t := p.next()
		if t == nil {
			return p.malformed("unexpected end of input")
		}
		switch t.Type {
		case token.LParen:
			depth++
		case token.RParen:
			depth--
			if depth == 0 {
				return nil
			}
		}
	}
}

// optName consumes a $name if present.
func (p *Parser) optName() string {
	if t := p.peek(); t != nil && t.Type == token.Ident && strings.HasPrefix(t.Value, "$") {
		p.next()
		return t.Value
	}
	return ""
}

func (p *Parser) parseValType() (ast.ValType, error) {
	t, err := p.expect(token.Ident)
	if err != nil {
		return 0, err
	}
	switch t.Value {
	case "i32":
		return ast.ValTypeI32, nil
	case "i64":
		return ast.ValTypeI64, nil
	case "f32":
		return ast.ValTypeF32, nil
	case "f64":
		return ast.ValTypeF64, nil
	case "v128", "funcref", "externref":
		return 0, p.unsupported("value type %s", t.Value)
	default:
		return 0, p.malformed("unknown value type: %s", t.Value)
	}
}

func (p *Parser) parseIdx(nameMap map[string]uint32, what string) (uint32, error) {
	t := p.peek()
	if t == nil {
		return 0, p.malformed("expected %s index", what)
	}
	if t.Type == token.Ident && strings.HasPrefix(t.Value, "$") {
		if idx, ok := nameMap[t.Value]; ok {
			p.next()
			return idx, nil
		}
		return 0, p.malformed("unknown %s: %s", what, t.Value)
	}
	return p.parseU32()
}

func (p *Parser) parseU32() (uint32, error) {
	t, err := p.expect(token.Number)
	if err != nil {
		return 0, err
	}
	val, err := strconv.ParseUint(strings.ReplaceAll(t.Value, "_", ""), 0, 32)
	if err != nil {
		return 0, p.malformed("invalid number: %s", t.Value)
	}
	return uint32(val), nil
}

// parseInt accepts both signed and unsigned spellings of a bits-wide integer.
func (p *Parser) parseInt(bits int) (int64, error) {
	t, err := p.expect(token.Number)
	if err != nil {
		return 0, err
	}
	s := strings.ReplaceAll(t.Value, "_", "")
	if v, err := strconv.ParseInt(s, 0, bits); err == nil {
		return v, nil
	}
	u, err := strconv.ParseUint(strings.TrimPrefix(s, "+"), 0, bits)
	if err != nil {
		return 0, p.malformed("invalid i%d: %s", bits, t.Value)
	}
	if bits == 32 {
		return int64(int32(uint32(u))), nil
	}
	return int64(u), nil
}

func (p *Parser) parseFloat(bits int) (float64, error) {
	t := p.next()
	if t == nil {
		return 0, p.malformed("unexpected end of input")
	}
	if t.Type != token.Number {
		return 0, p.malformed("expected f%d, got %q", bits, t.Value)
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(t.Value, "_", ""), bits)
	if err != nil {
		return 0, p.malformed("invalid f%d: %s", bits, t.Value)
	}
	return v, nil
}

func (p *Parser) findOrAddType(ft ast.FuncType) uint32 {
	for i, t := range p.mod.Types {
		if t.Equal(ft) {
			return uint32(i)
		}
	}
	idx := uint32(len(p.mod.Types))
	p.mod.Types = append(p.mod.Types, ft)
	return idx
}
