package parser

import (
	"github.com/wippyai/wasm-enclave/wat/internal/ast"
	"github.com/wippyai/wasm-enclave/wat/internal/token"
)

// Module fields that are valid WAT but outside what this translator handles.
var unsupportedFields = map[string]bool{
	"table":  true,
	"global": true,
	"elem":   true,
	"tag":    true,
	"rec":    true,
}

type field struct {
	keyword string
	pos     int // index of the field's '('
}

func (p *Parser) parseModule() (*ast.Module, error) {
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("module"); err != nil {
		return nil, err
	}
	p.optName()

	var fields []field
	for {
		t := p.peek()
		if t == nil {
			return nil, p.malformed("unexpected end of input")
		}
		if t.Type == token.RParen {
			p.next()
			break
		}
		kw := p.peekKeyword()
		if kw == "" {
			return nil, p.malformed("expected module field, got %q", t.Value)
		}
		if unsupportedFields[kw] {
			return nil, p.unsupported("module field %q", kw)
		}
		fields = append(fields, field{keyword: kw, pos: p.pos})
		if err := p.skipForm(); err != nil {
			return nil, err
		}
	}
	if t := p.peek(); t != nil {
		return nil, p.malformed("unexpected %q after module", t.Value)
	}

	// Index spaces put imports first, so fields are visited in passes:
	// types, imports, definitions, then bodies and references.
	passes := []func(field) error{p.declareType, p.declareImport, p.declareDefinition, p.defineField}
	for _, pass := range passes {
		for _, f := range fields {
			p.pos = f.pos
			if err := pass(f); err != nil {
				return nil, err
			}
		}
	}
	return p.mod, nil
}

func (p *Parser) openField(kw string) error {
	if _, err := p.expect(token.LParen); err != nil {
		return err
	}
	return p.expectKeyword(kw)
}

func (p *Parser) declareType(f field) error {
	if f.keyword != "type" {
		return nil
	}
	if err := p.openField("type"); err != nil {
		return err
	}
	name := p.optName()
	if _, err := p.expect(token.LParen); err != nil {
		return err
	}
	if err := p.expectKeyword("func"); err != nil {
		return err
	}
	ft, _, err := p.parseSig(true)
	if err != nil {
		return err
	}
	if err := p.closeForm(); err != nil {
		return err
	}
	if name != "" {
		if _, dup := p.typeMap[name]; dup {
			return p.malformed("duplicate type %s", name)
		}
		p.typeMap[name] = uint32(len(p.mod.Types))
	}
	// Explicit type definitions keep their own index even when equal to an
	// earlier one.
	p.mod.Types = append(p.mod.Types, ft)
	return nil
}

// declareImport handles (import ...) fields and funcs with an inline import.
func (p *Parser) declareImport(f field) error {
	switch f.keyword {
	case "import":
		if err := p.openField("import"); err != nil {
			return err
		}
		mod, name, err := p.parseImportNames()
		if err != nil {
			return err
		}
		if _, err := p.expect(token.LParen); err != nil {
			return err
		}
		kind, err := p.expect(token.Ident)
		if err != nil {
			return err
		}
		switch kind.Value {
		case "func":
			if err := p.importFunc(mod, name); err != nil {
				return err
			}
		case "memory":
			if err := p.importMemory(mod, name); err != nil {
				return err
			}
		case "table", "global", "tag":
			return p.unsupported("%s import", kind.Value)
		default:
			return p.malformed("unknown import kind %q", kind.Value)
		}
		return p.closeForm()

	case "func":
		if err := p.openField("func"); err != nil {
			return err
		}
		id := p.optName()
		if p.peekKeyword() != "import" {
			return nil
		}
		p.next()
		p.next()
		mod, name, err := p.parseImportNames()
		if err != nil {
			return err
		}
		if err := p.closeForm(); err != nil {
			return err
		}
		return p.addFuncImport(id, mod, name)
	}
	return nil
}

func (p *Parser) parseImportNames() (string, string, error) {
	mod, err := p.expect(token.String)
	if err != nil {
		return "", "", err
	}
	name, err := p.expect(token.String)
	if err != nil {
		return "", "", err
	}
	return mod.Value, name.Value, nil
}

func (p *Parser) importFunc(mod, name string) error {
	return p.addFuncImport(p.optName(), mod, name)
}

// addFuncImport parses the type use at the current position and appends the
// import, then consumes the closing ')' of the func descriptor.
func (p *Parser) addFuncImport(id, mod, name string) error {
	typeIdx, _, err := p.parseTypeUse()
	if err != nil {
		return err
	}
	if err := p.closeForm(); err != nil {
		return err
	}
	if id != "" {
		if _, dup := p.funcMap[id]; dup {
			return p.malformed("duplicate func %s", id)
		}
		p.funcMap[id] = p.funcCount()
	}
	p.mod.Imports = append(p.mod.Imports, ast.Import{
		Module:  mod,
		Name:    name,
		Kind:    ast.KindFunc,
		TypeIdx: typeIdx,
	})
	return nil
}

func (p *Parser) importMemory(mod, name string) error {
	id := p.optName()
	lim, err := p.parseLimits()
	if err != nil {
		return err
	}
	if err := p.closeForm(); err != nil {
		return err
	}
	if id != "" {
		p.memMap[id] = p.memCount()
	}
	p.mod.Imports = append(p.mod.Imports, ast.Import{
		Module: mod,
		Name:   name,
		Kind:   ast.KindMemory,
		Mem:    &lim,
	})
	return nil
}

func (p *Parser) funcCount() uint32 {
	var n uint32
	for _, imp := range p.mod.Imports {
		if imp.Kind == ast.KindFunc {
			n++
		}
	}
	return n + uint32(len(p.mod.Funcs))
}

func (p *Parser) memCount() uint32 {
	var n uint32
	for _, imp := range p.mod.Imports {
		if imp.Kind == ast.KindMemory {
			n++
		}
	}
	return n + uint32(len(p.mod.Memories))
}

// declareDefinition assigns indices to defined funcs and memories. Bodies are
// parsed later so calls can refer forward.
func (p *Parser) declareDefinition(f field) error {
	switch f.keyword {
	case "func":
		if err := p.openField("func"); err != nil {
			return err
		}
		id := p.optName()
		if p.peekKeyword() == "import" {
			return nil
		}
		if err := p.skipInlineExports(); err != nil {
			return err
		}
		typeIdx, _, err := p.parseTypeUse()
		if err != nil {
			return err
		}
		idx := p.funcCount()
		if id != "" {
			if _, dup := p.funcMap[id]; dup {
				return p.malformed("duplicate func %s", id)
			}
			p.funcMap[id] = idx
		}
		p.defIdx[f.pos] = idx
		p.mod.Funcs = append(p.mod.Funcs, ast.Func{TypeIdx: typeIdx})

	case "memory":
		if err := p.openField("memory"); err != nil {
			return err
		}
		id := p.optName()
		if err := p.skipInlineExports(); err != nil {
			return err
		}
		if p.peekKeyword() == "import" || p.peekKeyword() == "data" {
			return p.unsupported("inline memory %s", p.peekKeyword())
		}
		lim, err := p.parseLimits()
		if err != nil {
			return err
		}
		idx := p.memCount()
		if id != "" {
			p.memMap[id] = idx
		}
		p.defIdx[f.pos] = idx
		p.mod.Memories = append(p.mod.Memories, lim)
	}
	return nil
}

func (p *Parser) skipInlineExports() error {
	for p.peekKeyword() == "export" {
		if err := p.skipForm(); err != nil {
			return err
		}
	}
	return nil
}

// inlineExports collects (export "name")* at the current position.
func (p *Parser) inlineExports(kind byte, idx uint32) error {
	for p.peekKeyword() == "export" {
		p.next()
		p.next()
		name, err := p.expect(token.String)
		if err != nil {
			return err
		}
		if err := p.closeForm(); err != nil {
			return err
		}
		if err := p.addExport(name.Value, kind, idx); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) addExport(name string, kind byte, idx uint32) error {
	for _, e := range p.mod.Exports {
		if e.Name == name {
			return p.malformed("duplicate export %q", name)
		}
	}
	p.mod.Exports = append(p.mod.Exports, ast.Export{Name: name, Kind: kind, Idx: idx})
	return nil
}

func (p *Parser) parseLimits() (ast.Limits, error) {
	min, err := p.parseU32()
	if err != nil {
		return ast.Limits{}, err
	}
	lim := ast.Limits{Min: min}
	if t := p.peek(); t != nil && t.Type == token.Number {
		max, err := p.parseU32()
		if err != nil {
			return ast.Limits{}, err
		}
		if max < min {
			return ast.Limits{}, p.malformed("memory max %d below min %d", max, min)
		}
		lim.Max = &max
	}
	if t := p.peek(); t != nil && t.Type == token.Ident && t.Value == "shared" {
		return ast.Limits{}, p.unsupported("shared memory")
	}
	return lim, nil
}

// defineField parses function bodies, exports, start and data.
func (p *Parser) defineField(f field) error {
	switch f.keyword {
	case "type", "import":
		return nil
	case "func":
		return p.defineFunc(f)
	case "memory":
		if err := p.openField("memory"); err != nil {
			return err
		}
		p.optName()
		return p.inlineExports(ast.KindMemory, p.defIdx[f.pos])
	case "export":
		return p.defineExport()
	case "start":
		if err := p.openField("start"); err != nil {
			return err
		}
		idx, err := p.parseIdx(p.funcMap, "func")
		if err != nil {
			return err
		}
		if p.mod.Start != nil {
			return p.malformed("multiple start functions")
		}
		p.mod.Start = &idx
		return p.closeForm()
	case "data":
		return p.defineData()
	default:
		return p.malformed("unknown module field %q", f.keyword)
	}
}

func (p *Parser) defineExport() error {
	if err := p.openField("export"); err != nil {
		return err
	}
	name, err := p.expect(token.String)
	if err != nil {
		return err
	}
	if _, err := p.expect(token.LParen); err != nil {
		return err
	}
	kind, err := p.expect(token.Ident)
	if err != nil {
		return err
	}
	var idx uint32
	var k byte
	switch kind.Value {
	case "func":
		k = ast.KindFunc
		idx, err = p.parseIdx(p.funcMap, "func")
		if err == nil && idx >= p.funcCount() {
			err = p.malformed("func index %d out of range", idx)
		}
	case "memory":
		k = ast.KindMemory
		idx, err = p.parseIdx(p.memMap, "memory")
		if err == nil && idx >= p.memCount() {
			err = p.malformed("memory index %d out of range", idx)
		}
	case "table", "global", "tag":
		return p.unsupported("%s export", kind.Value)
	default:
		return p.malformed("unknown export kind %q", kind.Value)
	}
	if err != nil {
		return err
	}
	if err := p.closeForm(); err != nil {
		return err
	}
	if err := p.closeForm(); err != nil {
		return err
	}
	return p.addExport(name.Value, k, idx)
}

func (p *Parser) defineData() error {
	if err := p.openField("data"); err != nil {
		return err
	}
	p.optName()
	if p.peekKeyword() == "memory" {
		if err := p.skipForm(); err != nil {
			return err
		}
	}
	wrapped := p.peekKeyword() == "offset"
	if wrapped {
		p.next()
		p.next()
	}
	if p.peekKeyword() != "i32.const" {
		if t := p.peek(); !wrapped && t != nil && (t.Type == token.String || t.Type == token.RParen) {
			return p.unsupported("passive data segment")
		}
		return p.unsupported("data offset must be a single folded i32.const")
	}
	p.next()
	p.next()
	off, err := p.parseInt(32)
	if err != nil {
		return err
	}
	if err := p.closeForm(); err != nil {
		return err
	}
	if wrapped {
		if err := p.closeForm(); err != nil {
			return err
		}
	}
	if p.memCount() == 0 {
		return p.malformed("data segment without memory")
	}
	seg := ast.DataSegment{Offset: int32(off)}
	for {
		t := p.peek()
		if t == nil || t.Type != token.String {
			break
		}
		p.next()
		seg.Init = append(seg.Init, t.Value...)
	}
	p.mod.Data = append(p.mod.Data, seg)
	return p.closeForm()
}
