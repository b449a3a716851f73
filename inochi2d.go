package inochi2d

import (
	"context"
	"strings"
)

// Handle is an opaque native resource identifier.
// Handle 0 is the native null handle and never refers to a live resource.
type Handle uint32

// IsNull reports whether h is the native null handle.
func (h Handle) IsNull() bool {
	return h == 0
}

// TextRecord is a string record owned by the native side.
type TextRecord interface {
	// Text decodes the record. Decoding is fallible: a record may exist and
	// still not be readable as text.
	Text() (string, error)
}

// ErrorRecord is the native error-info record returned after a failed call.
type ErrorRecord = TextRecord

// Capabilities is a set of optional features.
type Capabilities uint32

const (
	// CapRender enables puppet drawing and the scene bindings.
	CapRender Capabilities = 1 << iota
	// CapDiagnostics enables debug logging of handle lifecycle events.
	CapDiagnostics
	// CapPuppetName enables reading a puppet's name from the native side.
	CapPuppetName
)

// Has reports whether every capability in want is present in c.
func (c Capabilities) Has(want Capabilities) bool {
	return c&want == want
}

func (c Capabilities) String() string {
	if c == 0 {
		return "none"
	}
	var names []string
	if c.Has(CapRender) {
		names = append(names, "render")
	}
	if c.Has(CapDiagnostics) {
		names = append(names, "diagnostics")
	}
	if c.Has(CapPuppetName) {
		names = append(names, "puppet-name")
	}
	return strings.Join(names, "|")
}

// ParseCapability maps a capability name as printed by String to its flag.
func ParseCapability(name string) (Capabilities, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "render", "rendering-backend":
		return CapRender, true
	case "diagnostics":
		return CapDiagnostics, true
	case "puppet-name":
		return CapPuppetName, true
	}
	return 0, false
}

// Library is the native calling interface of Inochi2D.
//
// Errors returned by Library methods report that the call itself could not be
// made (missing entry point, trap, closed backend). A native load failure is
// not an error at this level: it is a null Handle followed by LastError.
type Library interface {
	// Capabilities returns the optional features the library was built with.
	Capabilities() Capabilities

	Init(ctx context.Context) error
	Cleanup(ctx context.Context) error

	PuppetLoad(ctx context.Context, path string) (Handle, error)
	PuppetLoadFromMemory(ctx context.Context, data []byte) (Handle, error)
	PuppetName(ctx context.Context, h Handle) (TextRecord, error)
	PuppetUpdate(ctx context.Context, h Handle) error
	PuppetDraw(ctx context.Context, h Handle) error
	PuppetDestroy(ctx context.Context, h Handle) error

	// LastError returns the native error record, or nil if the native side
	// reported none.
	LastError(ctx context.Context) (ErrorRecord, error)

	SceneBegin(ctx context.Context) error
	SceneEnd(ctx context.Context) error
	SceneDraw(ctx context.Context, x, y, width, height float32) error

	// Close releases the backend itself. No method may be called afterwards.
	Close(ctx context.Context) error
}
