package parser

import (
	"strconv"
	"strings"

	"github.com/wippyai/wasm-enclave/wat/internal/ast"
	"github.com/wippyai/wasm-enclave/wat/internal/encoder"
	"github.com/wippyai/wasm-enclave/wat/internal/token"
)

type immKind int

const (
	immNone immKind = iota
	immLocal
	immFunc
	immMemarg
	immMemIdx
	immI32
	immI64
	immF32
	immF64
)

type opInfo struct {
	imm    immKind
	opcode byte
	align  uint32 // natural alignment exponent for memory access
}

var opcodes = map[string]opInfo{
	"unreachable": {opcode: 0x00},
	"nop":         {opcode: 0x01},
	"return":      {opcode: 0x0F},
	"call":        {opcode: 0x10, imm: immFunc},
	"drop":        {opcode: 0x1A},

	"local.get": {opcode: 0x20, imm: immLocal},
	"local.set": {opcode: 0x21, imm: immLocal},
	"local.tee": {opcode: 0x22, imm: immLocal},

	"i32.load":    {opcode: 0x28, imm: immMemarg, align: 2},
	"i64.load":    {opcode: 0x29, imm: immMemarg, align: 3},
	"i32.load8_u": {opcode: 0x2D, imm: immMemarg},
	"i32.store":   {opcode: 0x36, imm: immMemarg, align: 2},
	"i64.store":   {opcode: 0x37, imm: immMemarg, align: 3},
	"i32.store8":  {opcode: 0x3A, imm: immMemarg},
	"memory.size": {opcode: 0x3F, imm: immMemIdx},
	"memory.grow": {opcode: 0x40, imm: immMemIdx},

	"i32.const": {opcode: 0x41, imm: immI32},
	"i64.const": {opcode: 0x42, imm: immI64},
	"f32.const": {opcode: 0x43, imm: immF32},
	"f64.const": {opcode: 0x44, imm: immF64},

	"i32.eqz":  {opcode: 0x45},
	"i32.eq":   {opcode: 0x46},
	"i32.ne":   {opcode: 0x47},
	"i32.lt_s": {opcode: 0x48},
	"i32.lt_u": {opcode: 0x49},
	"i32.gt_s": {opcode: 0x4A},
	"i32.gt_u": {opcode: 0x4B},

	"i32.add":   {opcode: 0x6A},
	"i32.sub":   {opcode: 0x6B},
	"i32.mul":   {opcode: 0x6C},
	"i32.div_s": {opcode: 0x6D},
	"i32.div_u": {opcode: 0x6E},
	"i32.rem_s": {opcode: 0x6F},
	"i32.rem_u": {opcode: 0x70},
	"i32.and":   {opcode: 0x71},
	"i32.or":    {opcode: 0x72},
	"i32.xor":   {opcode: 0x73},
	"i32.shl":   {opcode: 0x74},
	"i32.shr_s": {opcode: 0x75},
	"i32.shr_u": {opcode: 0x76},

	"i64.add": {opcode: 0x7C},
	"i64.sub": {opcode: 0x7D},
	"i64.mul": {opcode: 0x7E},

	"f32.add": {opcode: 0x92},
	"f64.add": {opcode: 0xA0},
}

// Structured control flow and proposals past MVP are recognised but rejected
// as unsupported rather than unknown.
var unsupportedOps = map[string]bool{
	"block": true, "loop": true, "if": true, "else": true, "end": true,
	"br": true, "br_if": true, "br_table": true, "call_indirect": true,
	"select": true, "return_call": true, "return_call_indirect": true,
	"try": true, "throw": true, "rethrow": true,
}

var unsupportedPrefixes = []string{
	"i32.", "i64.", "f32.", "f64.", "v128.", "i8x16.", "i16x8.", "i32x4.", "i64x2.",
	"f32x4.", "f64x2.", "global.", "table.", "elem.", "data.", "memory.", "ref.", "local.",
}

func isUnsupportedOp(name string) bool {
	if unsupportedOps[name] {
		return true
	}
	for _, prefix := range unsupportedPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// parseSig parses (param ...)* (result ...)* and returns parameter names
// aligned with the parameter list.
func (p *Parser) parseSig(allowNames bool) (ast.FuncType, []string, error) {
	var ft ast.FuncType
	var names []string
	for {
		switch p.peekKeyword() {
		case "param":
			if len(ft.Results) > 0 {
				return ft, nil, p.malformed("param after result")
			}
			p.next()
			p.next()
			if name := p.optName(); name != "" {
				if !allowNames {
					return ft, nil, p.malformed("named param not allowed here")
				}
				vt, err := p.parseValType()
				if err != nil {
					return ft, nil, err
				}
				ft.Params = append(ft.Params, vt)
				names = append(names, name)
			} else {
				for p.peek() != nil && p.peek().Type == token.Ident {
					vt, err := p.parseValType()
					if err != nil {
						return ft, nil, err
					}
					ft.Params = append(ft.Params, vt)
					names = append(names, "")
				}
			}
			if err := p.closeForm(); err != nil {
				return ft, nil, err
			}
		case "result":
			p.next()
			p.next()
			for p.peek() != nil && p.peek().Type == token.Ident {
				vt, err := p.parseValType()
				if err != nil {
					return ft, nil, err
				}
				ft.Results = append(ft.Results, vt)
			}
			if err := p.closeForm(); err != nil {
				return ft, nil, err
			}
		default:
			return ft, names, nil
		}
	}
}

// parseTypeUse parses an optional (type idx) followed by an inline signature.
func (p *Parser) parseTypeUse() (uint32, []string, error) {
	explicit := p.peekKeyword() == "type"
	var idx uint32
	if explicit {
		p.next()
		p.next()
		var err error
		idx, err = p.parseIdx(p.typeMap, "type")
		if err != nil {
			return 0, nil, err
		}
		if idx >= uint32(len(p.mod.Types)) {
			return 0, nil, p.malformed("type index %d out of range", idx)
		}
		if err := p.closeForm(); err != nil {
			return 0, nil, err
		}
	}

	sig, names, err := p.parseSig(true)
	if err != nil {
		return 0, nil, err
	}

	if !explicit {
		return p.findOrAddType(sig), names, nil
	}
	declared := p.mod.Types[idx]
	if len(sig.Params) == 0 && len(sig.Results) == 0 {
		return idx, make([]string, len(declared.Params)), nil
	}
	if !declared.Equal(sig) {
		return 0, nil, p.malformed("inline signature does not match type %d", idx)
	}
	return idx, names, nil
}

func (p *Parser) importedFuncs() uint32 {
	var n uint32
	for _, imp := range p.mod.Imports {
		if imp.Kind == ast.KindFunc {
			n++
		}
	}
	return n
}

func (p *Parser) defineFunc(f field) error {
	if err := p.openField("func"); err != nil {
		return err
	}
	p.optName()
	if p.peekKeyword() == "import" {
		return nil
	}

	idx := p.defIdx[f.pos]
	if err := p.inlineExports(ast.KindFunc, idx); err != nil {
		return err
	}
	_, names, err := p.parseTypeUse()
	if err != nil {
		return err
	}

	p.locals = make(map[string]uint32)
	for i, name := range names {
		if name == "" {
			continue
		}
		if _, dup := p.locals[name]; dup {
			return p.malformed("duplicate local %s", name)
		}
		p.locals[name] = uint32(i)
	}

	fn := &p.mod.Funcs[idx-p.importedFuncs()]
	next := uint32(len(names))
	for p.peekKeyword() == "local" {
		p.next()
		p.next()
		if name := p.optName(); name != "" {
			if _, dup := p.locals[name]; dup {
				return p.malformed("duplicate local %s", name)
			}
			vt, err := p.parseValType()
			if err != nil {
				return err
			}
			p.locals[name] = next
			next++
			fn.Locals = append(fn.Locals, vt)
		} else {
			for p.peek() != nil && p.peek().Type == token.Ident {
				vt, err := p.parseValType()
				if err != nil {
					return err
				}
				next++
				fn.Locals = append(fn.Locals, vt)
			}
		}
		if err := p.closeForm(); err != nil {
			return err
		}
	}

	code, err := p.parseInstrs()
	if err != nil {
		return err
	}
	fn.Code = code
	p.locals = nil
	return p.closeForm()
}

// parseInstrs reads plain and folded instructions up to the closing ')'.
func (p *Parser) parseInstrs() ([]ast.Instr, error) {
	var out []ast.Instr
	for {
		t := p.peek()
		if t == nil {
			return nil, p.malformed("unexpected end of input")
		}
		switch t.Type {
		case token.RParen:
			return out, nil
		case token.LParen:
			p.next()
			instr, err := p.parseInstr()
			if err != nil {
				return nil, err
			}
			operands, err := p.parseInstrs()
			if err != nil {
				return nil, err
			}
			if err := p.closeForm(); err != nil {
				return nil, err
			}
			out = append(out, operands...)
			out = append(out, instr)
		case token.Ident:
			instr, err := p.parseInstr()
			if err != nil {
				return nil, err
			}
			out = append(out, instr)
		default:
			return nil, p.malformed("expected instruction, got %q", t.Value)
		}
	}
}

func (p *Parser) parseInstr() (ast.Instr, error) {
	t, err := p.expect(token.Ident)
	if err != nil {
		return ast.Instr{}, err
	}
	info, ok := opcodes[t.Value]
	if !ok {
		if isUnsupportedOp(t.Value) {
			return ast.Instr{}, p.unsupported("instruction %s", t.Value)
		}
		return ast.Instr{}, p.malformed("unknown instruction: %s", t.Value)
	}

	imm := &encoder.Buffer{}
	switch info.imm {
	case immLocal:
		idx, err := p.parseIdx(p.locals, "local")
		if err != nil {
			return ast.Instr{}, err
		}
		imm.U32(idx)
	case immFunc:
		idx, err := p.parseIdx(p.funcMap, "func")
		if err != nil {
			return ast.Instr{}, err
		}
		if idx >= p.funcCount() {
			return ast.Instr{}, p.malformed("func index %d out of range", idx)
		}
		imm.U32(idx)
	case immMemarg:
		if p.memCount() == 0 {
			return ast.Instr{}, p.malformed("%s without memory", t.Value)
		}
		align, offset, err := p.parseMemarg(info.align)
		if err != nil {
			return ast.Instr{}, err
		}
		imm.U32(align)
		imm.U32(offset)
	case immMemIdx:
		if p.memCount() == 0 {
			return ast.Instr{}, p.malformed("%s without memory", t.Value)
		}
		imm.Byte(0x00)
	case immI32:
		v, err := p.parseInt(32)
		if err != nil {
			return ast.Instr{}, err
		}
		imm.I32(int32(v))
	case immI64:
		v, err := p.parseInt(64)
		if err != nil {
			return ast.Instr{}, err
		}
		imm.I64(v)
	case immF32:
		v, err := p.parseFloat(32)
		if err != nil {
			return ast.Instr{}, err
		}
		imm.F32(float32(v))
	case immF64:
		v, err := p.parseFloat(64)
		if err != nil {
			return ast.Instr{}, err
		}
		imm.F64(v)
	}
	return ast.Instr{Opcode: info.opcode, Imm: imm.Bytes}, nil
}

// parseMemarg reads optional offset=N and align=N, returning the alignment
// as a power-of-two exponent.
func (p *Parser) parseMemarg(natural uint32) (uint32, uint32, error) {
	align, offset := natural, uint32(0)
	for {
		t := p.peek()
		if t == nil || t.Type != token.Ident {
			return align, offset, nil
		}
		key, val, ok := strings.Cut(t.Value, "=")
		if !ok || (key != "offset" && key != "align") {
			return align, offset, nil
		}
		p.next()
		n, err := strconv.ParseUint(strings.ReplaceAll(val, "_", ""), 0, 32)
		if err != nil {
			return 0, 0, p.malformed("invalid %s: %s", key, val)
		}
		if key == "offset" {
			offset = uint32(n)
			continue
		}
		if n == 0 || n&(n-1) != 0 {
			return 0, 0, p.malformed("alignment %d is not a power of two", n)
		}
		exp := uint32(0)
		for n > 1 {
			n >>= 1
			exp++
		}
		if exp > natural {
			return 0, 0, p.malformed("alignment exceeds natural alignment")
		}
		align = exp
	}
}
