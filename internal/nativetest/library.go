// Package nativetest provides scripted stand-ins for the native library:
// Library, a pure Go inochi2d.Library, and Native plus Guest, a WASM guest
// whose entry points call back into Go for exercising the wazero backend.
package nativetest

import (
	"context"
	"fmt"

	inochi2d "github.com/Thog/inochi2d-go"
	"github.com/Thog/inochi2d-go/errors"
)

// Text is a text record that always decodes.
type Text string

// Text implements inochi2d.TextRecord.
func (t Text) Text() (string, error) {
	return string(t), nil
}

// BadText is a text record holding bytes that fail to decode.
type BadText []byte

// Text implements inochi2d.TextRecord.
func (b BadText) Text() (string, error) {
	return "", errors.InvalidUTF8(errors.PhaseLoad, b)
}

// Call is one recorded native call.
type Call struct {
	Name   string
	Handle inochi2d.Handle
}

// Library is a scripted inochi2d.Library that records every call.
type Library struct {
	Caps       inochi2d.Capabilities
	InitErr    error
	CleanupErr error
	CloseErr   error

	// Paths maps a path to the handle PuppetLoad returns. Unknown paths
	// load as the null handle.
	Paths map[string]inochi2d.Handle
	// MemoryHandle is returned for non-empty in-memory loads.
	MemoryHandle inochi2d.Handle
	// Record is what LastError reports. nil means no record.
	Record inochi2d.ErrorRecord
	Names  map[inochi2d.Handle]inochi2d.TextRecord

	UpdateErr  error
	DrawErr    error
	DestroyErr error
	SceneErr   error

	Calls      []Call
	Buffers    [][]byte
	SceneDraws [][4]float32
	Destroyed  map[inochi2d.Handle]int
	Closed     bool
}

var _ inochi2d.Library = (*Library)(nil)

// NewLibrary returns a Library reporting caps.
func NewLibrary(caps inochi2d.Capabilities) *Library {
	return &Library{
		Caps:      caps,
		Paths:     make(map[string]inochi2d.Handle),
		Names:     make(map[inochi2d.Handle]inochi2d.TextRecord),
		Destroyed: make(map[inochi2d.Handle]int),
	}
}

// Count returns how many times the named method was called.
func (l *Library) Count(name string) int {
	n := 0
	for _, c := range l.Calls {
		if c.Name == name {
			n++
		}
	}
	return n
}

// CallNames returns the recorded call names in order.
func (l *Library) CallNames() []string {
	names := make([]string, len(l.Calls))
	for i, c := range l.Calls {
		names[i] = c.Name
	}
	return names
}

func (l *Library) record(name string, h inochi2d.Handle) error {
	l.Calls = append(l.Calls, Call{Name: name, Handle: h})
	if l.Closed {
		return fmt.Errorf("nativetest: %s after Close", name)
	}
	return nil
}

func (l *Library) Capabilities() inochi2d.Capabilities { return l.Caps }

func (l *Library) Init(context.Context) error {
	if err := l.record("Init", 0); err != nil {
		return err
	}
	return l.InitErr
}

func (l *Library) Cleanup(context.Context) error {
	if err := l.record("Cleanup", 0); err != nil {
		return err
	}
	return l.CleanupErr
}

func (l *Library) PuppetLoad(_ context.Context, path string) (inochi2d.Handle, error) {
	if err := l.record("PuppetLoad", 0); err != nil {
		return 0, err
	}
	return l.Paths[path], nil
}

func (l *Library) PuppetLoadFromMemory(_ context.Context, data []byte) (inochi2d.Handle, error) {
	if err := l.record("PuppetLoadFromMemory", 0); err != nil {
		return 0, err
	}
	l.Buffers = append(l.Buffers, append([]byte(nil), data...))
	if len(data) == 0 {
		return 0, nil
	}
	return l.MemoryHandle, nil
}

func (l *Library) PuppetName(_ context.Context, h inochi2d.Handle) (inochi2d.TextRecord, error) {
	if err := l.record("PuppetName", h); err != nil {
		return nil, err
	}
	return l.Names[h], nil
}

func (l *Library) PuppetUpdate(_ context.Context, h inochi2d.Handle) error {
	if err := l.record("PuppetUpdate", h); err != nil {
		return err
	}
	return l.UpdateErr
}

func (l *Library) PuppetDraw(_ context.Context, h inochi2d.Handle) error {
	if err := l.record("PuppetDraw", h); err != nil {
		return err
	}
	return l.DrawErr
}

func (l *Library) PuppetDestroy(_ context.Context, h inochi2d.Handle) error {
	if err := l.record("PuppetDestroy", h); err != nil {
		return err
	}
	l.Destroyed[h]++
	return l.DestroyErr
}

func (l *Library) LastError(context.Context) (inochi2d.ErrorRecord, error) {
	if err := l.record("LastError", 0); err != nil {
		return nil, err
	}
	return l.Record, nil
}

func (l *Library) SceneBegin(context.Context) error {
	if err := l.record("SceneBegin", 0); err != nil {
		return err
	}
	return l.SceneErr
}

func (l *Library) SceneEnd(context.Context) error {
	if err := l.record("SceneEnd", 0); err != nil {
		return err
	}
	return l.SceneErr
}

func (l *Library) SceneDraw(_ context.Context, x, y, width, height float32) error {
	if err := l.record("SceneDraw", 0); err != nil {
		return err
	}
	l.SceneDraws = append(l.SceneDraws, [4]float32{x, y, width, height})
	return l.SceneErr
}

func (l *Library) Close(context.Context) error {
	if err := l.record("Close", 0); err != nil {
		return err
	}
	l.Closed = true
	return l.CloseErr
}
