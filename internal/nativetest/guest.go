package nativetest

import (
	"github.com/tetratelabs/wazero/api"
)

// GuestBuilder assembles a core WASM module standing in for a native build.
// Every function it exports is a thin body that forwards its parameters to
// the import of the same name, so the behaviour lives in Go host functions
// while the calling module still owns the exported memory.
type GuestBuilder struct {
	hostModuleName string
	memoryPages    uint32
	funcs          []guestFunc
}

type guestFunc struct {
	name        string
	paramTypes  []api.ValueType
	resultTypes []api.ValueType
}

// NewGuestBuilder creates a builder importing from hostModuleName.
func NewGuestBuilder(hostModuleName string) *GuestBuilder {
	return &GuestBuilder{
		hostModuleName: hostModuleName,
		memoryPages:    1,
	}
}

// SetMemoryPages sets the initial size of the exported memory.
// 0 omits the memory entirely.
func (b *GuestBuilder) SetMemoryPages(pages uint32) {
	b.memoryPages = pages
}

// AddFunc adds a function to import and re-export.
func (b *GuestBuilder) AddFunc(name string, params, results []api.ValueType) {
	b.funcs = append(b.funcs, guestFunc{
		name:        name,
		paramTypes:  params,
		resultTypes: results,
	})
}

// Build generates the WASM module bytes.
func (b *GuestBuilder) Build() []byte {
	hasFuncs := len(b.funcs) > 0
	var wasm []byte

	// Magic and version
	wasm = append(wasm, 0x00, 0x61, 0x73, 0x6d)
	wasm = append(wasm, 0x01, 0x00, 0x00, 0x00)

	if hasFuncs {
		wasm = appendSection(wasm, 0x01, b.buildTypeSection())
		wasm = appendSection(wasm, 0x02, b.buildImportSection())
		wasm = appendSection(wasm, 0x03, b.buildFuncSection())
	}
	if b.memoryPages > 0 {
		wasm = appendSection(wasm, 0x05, b.buildMemorySection())
	}
	wasm = appendSection(wasm, 0x07, b.buildExportSection())
	if hasFuncs {
		wasm = appendSection(wasm, 0x0a, b.buildCodeSection())
	}
	return wasm
}

func appendSection(wasm []byte, id byte, section []byte) []byte {
	wasm = append(wasm, id)
	wasm = append(wasm, EncodeULEB128(uint32(len(section)))...)
	return append(wasm, section...)
}

func appendName(section []byte, name string) []byte {
	section = append(section, EncodeULEB128(uint32(len(name)))...)
	return append(section, name...)
}

func (b *GuestBuilder) buildTypeSection() []byte {
	var section []byte
	section = append(section, EncodeULEB128(uint32(len(b.funcs)))...)

	for _, f := range b.funcs {
		section = append(section, 0x60)
		section = append(section, EncodeULEB128(uint32(len(f.paramTypes)))...)
		for _, t := range f.paramTypes {
			section = append(section, ValTypeToWasm(t))
		}
		section = append(section, EncodeULEB128(uint32(len(f.resultTypes)))...)
		for _, t := range f.resultTypes {
			section = append(section, ValTypeToWasm(t))
		}
	}
	return section
}

func (b *GuestBuilder) buildImportSection() []byte {
	var section []byte
	section = append(section, EncodeULEB128(uint32(len(b.funcs)))...)

	for i, f := range b.funcs {
		section = appendName(section, b.hostModuleName)
		section = appendName(section, f.name)
		section = append(section, 0x00)
		section = append(section, EncodeULEB128(uint32(i))...)
	}
	return section
}

func (b *GuestBuilder) buildFuncSection() []byte {
	var section []byte
	section = append(section, EncodeULEB128(uint32(len(b.funcs)))...)
	for i := range b.funcs {
		section = append(section, EncodeULEB128(uint32(i))...)
	}
	return section
}

func (b *GuestBuilder) buildMemorySection() []byte {
	var section []byte
	section = append(section, 0x01)
	section = append(section, 0x00)
	section = append(section, EncodeULEB128(b.memoryPages)...)
	return section
}

func (b *GuestBuilder) buildExportSection() []byte {
	var section []byte

	numExports := len(b.funcs)
	if b.memoryPages > 0 {
		numExports++
	}
	section = append(section, EncodeULEB128(uint32(numExports))...)

	if b.memoryPages > 0 {
		section = appendName(section, "memory")
		section = append(section, 0x02)
		section = append(section, 0x00)
	}

	// Local functions follow the imports in the function index space.
	numImports := len(b.funcs)
	for i, f := range b.funcs {
		section = appendName(section, f.name)
		section = append(section, 0x00)
		section = append(section, EncodeULEB128(uint32(numImports+i))...)
	}
	return section
}

func (b *GuestBuilder) buildCodeSection() []byte {
	var section []byte
	section = append(section, EncodeULEB128(uint32(len(b.funcs)))...)

	for i, f := range b.funcs {
		body := buildFuncBody(i, f)
		section = append(section, EncodeULEB128(uint32(len(body)))...)
		section = append(section, body...)
	}
	return section
}

func buildFuncBody(importIdx int, f guestFunc) []byte {
	var body []byte
	body = append(body, 0x00)

	for i := range f.paramTypes {
		body = append(body, 0x20)
		body = append(body, EncodeULEB128(uint32(i))...)
	}

	body = append(body, 0x10)
	body = append(body, EncodeULEB128(uint32(importIdx))...)
	body = append(body, 0x0b)
	return body
}

// EncodeULEB128 encodes an unsigned value in LEB128 format.
func EncodeULEB128(v uint32) []byte {
	var result []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		result = append(result, b)
		if v == 0 {
			break
		}
	}
	return result
}

// ValTypeToWasm converts a wazero value type to WASM encoding.
func ValTypeToWasm(t api.ValueType) byte {
	switch t {
	case api.ValueTypeI32:
		return 0x7f
	case api.ValueTypeI64:
		return 0x7e
	case api.ValueTypeF32:
		return 0x7d
	case api.ValueTypeF64:
		return 0x7c
	default:
		return 0x7f
	}
}
