package nativetest

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// HostModule is the import module of guests built by Guest.
const HostModule = "nativetest"

// Guest memory layout used by Native.
const (
	errorRecordAddr = 256
	nameRecordAddr  = 1024
	heapBase        = 4096
)

var (
	i32 = api.ValueTypeI32
	f32 = api.ValueTypeF32
)

type signature struct {
	params  []api.ValueType
	results []api.ValueType
}

var signatures = map[string]signature{
	"inAlloc":                {[]api.ValueType{i32}, []api.ValueType{i32}},
	"inFree":                 {[]api.ValueType{i32}, nil},
	"inInit":                 {nil, []api.ValueType{i32}},
	"inCleanup":              {nil, nil},
	"inPuppetLoadEx":         {[]api.ValueType{i32, i32}, []api.ValueType{i32}},
	"inPuppetLoadFromMemory": {[]api.ValueType{i32, i32}, []api.ValueType{i32}},
	"inPuppetGetName":        {[]api.ValueType{i32}, []api.ValueType{i32}},
	"inPuppetUpdate":         {[]api.ValueType{i32}, nil},
	"inPuppetDraw":           {[]api.ValueType{i32}, nil},
	"inPuppetDestroy":        {[]api.ValueType{i32}, nil},
	"inErrorGet":             {nil, []api.ValueType{i32}},
	"inSceneBegin":           {nil, nil},
	"inSceneEnd":             {nil, nil},
	"inSceneDraw":            {[]api.ValueType{f32, f32, f32, f32}, nil},
}

// RequiredExports are the entry points every native build provides.
var RequiredExports = []string{
	"inAlloc", "inFree", "inInit",
	"inPuppetLoadEx", "inPuppetLoadFromMemory",
	"inPuppetUpdate", "inPuppetDestroy", "inErrorGet",
}

// OptionalExports are the entry points a reduced build may leave out.
var OptionalExports = []string{
	"inCleanup", "inPuppetGetName", "inPuppetDraw",
	"inSceneBegin", "inSceneEnd", "inSceneDraw",
}

// AllExports returns RequiredExports followed by OptionalExports.
func AllExports() []string {
	all := make([]string, 0, len(RequiredExports)+len(OptionalExports))
	all = append(all, RequiredExports...)
	return append(all, OptionalExports...)
}

// Guest builds a guest module exporting the named entry points plus memory.
func Guest(exports ...string) []byte {
	b := NewGuestBuilder(HostModule)
	for _, name := range exports {
		sig, ok := signatures[name]
		if !ok {
			panic("nativetest: unknown export " + name)
		}
		b.AddFunc(name, sig.params, sig.results)
	}
	return b.Build()
}

// Native scripts the behaviour behind a Guest module. Set the scripted
// fields before the first call; the recorded fields are filled in as the
// guest calls back into Go.
type Native struct {
	// Scripted behaviour.
	InitStatus       int32
	Handles          map[string]uint32 // path -> handle, unknown paths load as 0
	MemoryHandle     uint32            // handle for non-empty in-memory loads
	Names            map[uint32]string
	Error            []byte // nil means inErrorGet reports no record
	ErrorOutOfBounds bool
	TrapOn           string // entry point that traps when called

	// Recorded calls.
	Calls      []string
	Paths      []string
	Buffers    [][]byte
	Allocs     int
	Frees      int
	Updates    []uint32
	Draws      []uint32
	Destroyed  []uint32
	SceneDraws [][4]float32

	next uint32
}

// Register instantiates the host module guests built by Guest import from.
func (n *Native) Register(ctx context.Context, r wazero.Runtime) error {
	b := r.NewHostModuleBuilder(HostModule)
	for name, fn := range n.funcs() {
		sig := signatures[name]
		b.NewFunctionBuilder().
			WithGoModuleFunction(n.wrap(name, fn), sig.params, sig.results).
			Export(name)
	}
	_, err := b.Instantiate(ctx)
	return err
}

// Count returns how many times the named entry point was called.
func (n *Native) Count(name string) int {
	c := 0
	for _, call := range n.Calls {
		if call == name {
			c++
		}
	}
	return c
}

type hostFunc func(mem api.Memory, stack []uint64)

func (n *Native) wrap(name string, fn hostFunc) api.GoModuleFunc {
	return func(_ context.Context, mod api.Module, stack []uint64) {
		n.Calls = append(n.Calls, name)
		if n.TrapOn == name {
			panic(fmt.Errorf("nativetest: trap in %s", name))
		}
		fn(mod.Memory(), stack)
	}
}

func (n *Native) funcs() map[string]hostFunc {
	return map[string]hostFunc{
		"inAlloc": func(_ api.Memory, stack []uint64) {
			if n.next == 0 {
				n.next = heapBase
			}
			size := api.DecodeU32(stack[0])
			ptr := n.next
			n.next += (size + 7) &^ 7
			n.Allocs++
			stack[0] = api.EncodeU32(ptr)
		},
		"inFree": func(_ api.Memory, _ []uint64) {
			n.Frees++
		},
		"inInit": func(_ api.Memory, stack []uint64) {
			stack[0] = api.EncodeI32(n.InitStatus)
		},
		"inCleanup": func(_ api.Memory, _ []uint64) {},
		"inPuppetLoadEx": func(mem api.Memory, stack []uint64) {
			data := readBytes(mem, stack[0], stack[1])
			path := string(data)
			n.Paths = append(n.Paths, path)
			stack[0] = api.EncodeU32(n.Handles[path])
		},
		"inPuppetLoadFromMemory": func(mem api.Memory, stack []uint64) {
			data := readBytes(mem, stack[0], stack[1])
			n.Buffers = append(n.Buffers, data)
			if len(data) == 0 {
				stack[0] = 0
				return
			}
			stack[0] = api.EncodeU32(n.MemoryHandle)
		},
		"inPuppetGetName": func(mem api.Memory, stack []uint64) {
			name, ok := n.Names[api.DecodeU32(stack[0])]
			if !ok {
				stack[0] = 0
				return
			}
			stack[0] = api.EncodeU32(writeRecord(mem, nameRecordAddr, []byte(name)))
		},
		"inPuppetUpdate": func(_ api.Memory, stack []uint64) {
			n.Updates = append(n.Updates, api.DecodeU32(stack[0]))
		},
		"inPuppetDraw": func(_ api.Memory, stack []uint64) {
			n.Draws = append(n.Draws, api.DecodeU32(stack[0]))
		},
		"inPuppetDestroy": func(_ api.Memory, stack []uint64) {
			n.Destroyed = append(n.Destroyed, api.DecodeU32(stack[0]))
		},
		"inErrorGet": func(mem api.Memory, stack []uint64) {
			switch {
			case n.ErrorOutOfBounds:
				mem.WriteUint32Le(errorRecordAddr, 16)
				mem.WriteUint32Le(errorRecordAddr+4, 0xffffff00)
				stack[0] = api.EncodeU32(errorRecordAddr)
			case n.Error == nil:
				stack[0] = 0
			default:
				stack[0] = api.EncodeU32(writeRecord(mem, errorRecordAddr, n.Error))
			}
		},
		"inSceneBegin": func(_ api.Memory, _ []uint64) {},
		"inSceneEnd":   func(_ api.Memory, _ []uint64) {},
		"inSceneDraw": func(_ api.Memory, stack []uint64) {
			n.SceneDraws = append(n.SceneDraws, [4]float32{
				api.DecodeF32(stack[0]), api.DecodeF32(stack[1]),
				api.DecodeF32(stack[2]), api.DecodeF32(stack[3]),
			})
		},
	}
}

func readBytes(mem api.Memory, ptr, n uint64) []byte {
	if n == 0 {
		return []byte{}
	}
	view, ok := mem.Read(api.DecodeU32(ptr), api.DecodeU32(n))
	if !ok {
		panic("nativetest: buffer out of bounds")
	}
	return append([]byte(nil), view...)
}

// writeRecord stores a {len, ptr} text record at addr with the text right
// after the header.
func writeRecord(mem api.Memory, addr uint32, text []byte) uint32 {
	mem.WriteUint32Le(addr, uint32(len(text)))
	mem.WriteUint32Le(addr+4, addr+8)
	mem.Write(addr+8, text)
	return addr
}
