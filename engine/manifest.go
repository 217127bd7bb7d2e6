package engine

import (
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/tetratelabs/wazero/api"
)

// Manifest is the serializable description of a compiled module. Two compiles
// of the same source for the same backend yield equal manifests.
type Manifest struct {
	Module      string     `cbor:"1,keyasint" yaml:"module"`
	Backend     string     `cbor:"2,keyasint" yaml:"backend"`
	Fingerprint string     `cbor:"3,keyasint" yaml:"fingerprint"`
	Imports     []FuncDesc `cbor:"4,keyasint" yaml:"imports"`
	Exports     []FuncDesc `cbor:"5,keyasint" yaml:"exports"`
	Memories    []Memory   `cbor:"6,keyasint,omitempty" yaml:"memories,omitempty"`
}

// FuncDesc is a function signature with value types spelled out.
type FuncDesc struct {
	Namespace string   `cbor:"1,keyasint,omitempty" yaml:"namespace,omitempty"`
	Name      string   `cbor:"2,keyasint" yaml:"name"`
	Params    []string `cbor:"3,keyasint" yaml:"params"`
	Results   []string `cbor:"4,keyasint" yaml:"results"`
}

// Memory is an exported linear memory, sizes in pages.
type Memory struct {
	Max  *uint32 `cbor:"3,keyasint,omitempty" yaml:"max,omitempty"`
	Name string  `cbor:"1,keyasint" yaml:"name"`
	Min  uint32  `cbor:"2,keyasint" yaml:"min"`
}

// String renders the signature as "ns#name(i32, i32) -> (i32)".
func (d FuncDesc) String() string {
	var b strings.Builder
	if d.Namespace != "" {
		b.WriteString(d.Namespace)
		b.WriteByte('#')
	}
	fmt.Fprintf(&b, "%s(%s) -> (%s)", d.Name, strings.Join(d.Params, ", "), strings.Join(d.Results, ", "))
	return b.String()
}

func describe(f Func) FuncDesc {
	return FuncDesc{
		Namespace: f.Namespace,
		Name:      f.Name,
		Params:    typeNames(f.Params),
		Results:   typeNames(f.Results),
	}
}

func typeNames(types []api.ValueType) []string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = api.ValueTypeName(t)
	}
	return names
}

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2) so a manifest
// always encodes to the same bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("engine: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("engine: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeCBOR encodes the manifest as deterministic CBOR.
func (m Manifest) EncodeCBOR() ([]byte, error) {
	return encMode.Marshal(m)
}

// DecodeManifest decodes a manifest produced by EncodeCBOR.
func DecodeManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := decMode.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}
