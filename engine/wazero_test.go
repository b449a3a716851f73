package engine

import (
	"bytes"
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	inochi2d "github.com/Thog/inochi2d-go"
	"github.com/Thog/inochi2d-go/errors"
	"github.com/Thog/inochi2d-go/internal/nativetest"
)

func newTestLibrary(t *testing.T, n *nativetest.Native, exports ...string) *WazeroLibrary {
	t.Helper()
	if len(exports) == 0 {
		exports = nativetest.AllExports()
	}
	ctx := context.Background()
	lib, err := NewWazeroLibrary(ctx, nativetest.Guest(exports...), &Config{Setup: n.Register})
	if err != nil {
		t.Fatalf("NewWazeroLibrary: %v", err)
	}
	t.Cleanup(func() { _ = lib.Close(ctx) })
	return lib
}

func without(names []string, drop ...string) []string {
	var out []string
outer:
	for _, n := range names {
		for _, d := range drop {
			if n == d {
				continue outer
			}
		}
		out = append(out, n)
	}
	return out
}

func TestNewWazeroLibrary_Capabilities(t *testing.T) {
	render := append(append([]string(nil), nativetest.RequiredExports...),
		"inPuppetDraw", "inSceneBegin", "inSceneEnd", "inSceneDraw")

	tests := []struct {
		name    string
		exports []string
		want    inochi2d.Capabilities
	}{
		{"full build", nativetest.AllExports(), inochi2d.CapRender | inochi2d.CapPuppetName},
		{"required only", nativetest.RequiredExports, 0},
		{"render without names", render, inochi2d.CapRender},
		{"scene without draw", without(render, "inPuppetDraw"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := newTestLibrary(t, &nativetest.Native{}, tt.exports...)
			if got := lib.Capabilities(); got != tt.want {
				t.Errorf("Capabilities() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewWazeroLibrary_MissingExports(t *testing.T) {
	ctx := context.Background()
	n := &nativetest.Native{}
	guest := nativetest.Guest(without(nativetest.AllExports(), "inInit", "inErrorGet")...)

	_, err := NewWazeroLibrary(ctx, guest, &Config{Setup: n.Register})
	if err == nil {
		t.Fatal("expected error for missing exports")
	}
	if !stderrors.Is(err, &errors.MissingExportsError{}) {
		t.Errorf("expected MissingExportsError, got %v", err)
	}
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseEngine, Kind: errors.KindNotFound}) {
		t.Errorf("expected engine not_found, got %v", err)
	}
	for _, name := range []string{"inInit", "inErrorGet"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q should name %s", err.Error(), name)
		}
	}
}

func TestNewWazeroLibrary_InvalidBinary(t *testing.T) {
	_, err := NewWazeroLibrary(context.Background(), []byte("not wasm"), nil)
	if !stderrors.Is(err, &errors.Error{Kind: errors.KindInvalidInput}) {
		t.Errorf("expected invalid_input, got %v", err)
	}
}

func TestWazeroLibrary_Init(t *testing.T) {
	ctx := context.Background()

	t.Run("ok", func(t *testing.T) {
		lib := newTestLibrary(t, &nativetest.Native{})
		if err := lib.Init(ctx); err != nil {
			t.Fatalf("Init: %v", err)
		}
	})

	t.Run("nonzero status", func(t *testing.T) {
		lib := newTestLibrary(t, &nativetest.Native{InitStatus: 3})
		err := lib.Init(ctx)
		if !stderrors.Is(err, errors.ErrInitialization) {
			t.Fatalf("expected initialization error, got %v", err)
		}
		if !strings.Contains(err.Error(), "status 3") {
			t.Errorf("error %q should carry the status", err.Error())
		}
	})
}

func TestWazeroLibrary_Cleanup(t *testing.T) {
	ctx := context.Background()

	n := &nativetest.Native{}
	lib := newTestLibrary(t, n)
	if err := lib.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n.Count("inCleanup") != 1 {
		t.Errorf("inCleanup called %d times, want 1", n.Count("inCleanup"))
	}

	bare := &nativetest.Native{}
	lib = newTestLibrary(t, bare, nativetest.RequiredExports...)
	if err := lib.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup without export: %v", err)
	}
	if len(bare.Calls) != 0 {
		t.Errorf("unexpected calls %v", bare.Calls)
	}
}

func TestWazeroLibrary_PuppetLoad(t *testing.T) {
	ctx := context.Background()
	n := &nativetest.Native{Handles: map[string]uint32{"models/Aka.inx": 5}}
	lib := newTestLibrary(t, n)

	h, err := lib.PuppetLoad(ctx, "models/Aka.inx")
	if err != nil {
		t.Fatalf("PuppetLoad: %v", err)
	}
	if h != 5 {
		t.Errorf("handle = %d, want 5", h)
	}
	if len(n.Paths) != 1 || n.Paths[0] != "models/Aka.inx" {
		t.Errorf("native saw paths %q", n.Paths)
	}
	if n.Allocs != 1 || n.Frees != 1 {
		t.Errorf("allocs=%d frees=%d, want 1/1", n.Allocs, n.Frees)
	}

	h, err = lib.PuppetLoad(ctx, "missing.inx")
	if err != nil {
		t.Fatalf("PuppetLoad: %v", err)
	}
	if !h.IsNull() {
		t.Errorf("unknown path should load as null, got %d", h)
	}
	if n.Frees != 2 {
		t.Errorf("frees = %d, want 2", n.Frees)
	}
}

func TestWazeroLibrary_PuppetLoadFromMemory(t *testing.T) {
	ctx := context.Background()

	t.Run("buffer", func(t *testing.T) {
		n := &nativetest.Native{MemoryHandle: 9}
		lib := newTestLibrary(t, n)
		data := []byte("TRNSRTS\x00payload")

		h, err := lib.PuppetLoadFromMemory(ctx, data)
		if err != nil {
			t.Fatalf("PuppetLoadFromMemory: %v", err)
		}
		if h != 9 {
			t.Errorf("handle = %d, want 9", h)
		}
		if len(n.Buffers) != 1 || !bytes.Equal(n.Buffers[0], data) {
			t.Errorf("native saw %q, want %q", n.Buffers, data)
		}
		if n.Allocs != 1 || n.Frees != 1 {
			t.Errorf("allocs=%d frees=%d, want 1/1", n.Allocs, n.Frees)
		}
	})

	t.Run("empty buffer", func(t *testing.T) {
		n := &nativetest.Native{MemoryHandle: 9}
		lib := newTestLibrary(t, n)

		h, err := lib.PuppetLoadFromMemory(ctx, nil)
		if err != nil {
			t.Fatalf("PuppetLoadFromMemory: %v", err)
		}
		if !h.IsNull() {
			t.Errorf("handle = %d, want null", h)
		}
		if n.Allocs != 0 {
			t.Errorf("empty buffer should not allocate, allocs=%d", n.Allocs)
		}
		if len(n.Buffers) != 1 || len(n.Buffers[0]) != 0 {
			t.Errorf("native saw %q", n.Buffers)
		}
	})

	t.Run("trap still frees", func(t *testing.T) {
		n := &nativetest.Native{TrapOn: "inPuppetLoadFromMemory"}
		lib := newTestLibrary(t, n)

		_, err := lib.PuppetLoadFromMemory(ctx, []byte{1, 2, 3})
		if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindCallFailed}) {
			t.Fatalf("expected load call_failed, got %v", err)
		}
		if n.Frees != 1 {
			t.Errorf("frees = %d, want 1", n.Frees)
		}
	})
}

func TestWazeroLibrary_LastError(t *testing.T) {
	ctx := context.Background()

	t.Run("no record", func(t *testing.T) {
		lib := newTestLibrary(t, &nativetest.Native{})
		rec, err := lib.LastError(ctx)
		if err != nil {
			t.Fatalf("LastError: %v", err)
		}
		if rec != nil {
			t.Errorf("expected nil record, got %v", rec)
		}
	})

	t.Run("text", func(t *testing.T) {
		n := &nativetest.Native{Error: []byte("file not found: Aka.inx")}
		lib := newTestLibrary(t, n)

		rec, err := lib.LastError(ctx)
		if err != nil || rec == nil {
			t.Fatalf("LastError: %v, %v", rec, err)
		}

		// The record is a snapshot and survives later native calls.
		n.Error = []byte("something else")
		if _, err := lib.LastError(ctx); err != nil {
			t.Fatalf("LastError: %v", err)
		}

		text, err := rec.Text()
		if err != nil {
			t.Fatalf("Text: %v", err)
		}
		if text != "file not found: Aka.inx" {
			t.Errorf("Text() = %q", text)
		}
	})

	tests := []struct {
		name   string
		native *nativetest.Native
	}{
		{"invalid utf8", &nativetest.Native{Error: []byte{0xff, 0xfe, 0xfd}}},
		{"out of bounds", &nativetest.Native{ErrorOutOfBounds: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := newTestLibrary(t, tt.native)
			rec, err := lib.LastError(ctx)
			if err != nil || rec == nil {
				t.Fatalf("LastError: %v, %v", rec, err)
			}
			if _, err := rec.Text(); !stderrors.Is(err, errors.ErrUndecodable) {
				t.Errorf("Text() error = %v, want undecodable", err)
			}
		})
	}
}

func TestWazeroLibrary_PuppetName(t *testing.T) {
	ctx := context.Background()
	n := &nativetest.Native{Names: map[uint32]string{5: "Aka"}}
	lib := newTestLibrary(t, n)

	rec, err := lib.PuppetName(ctx, 5)
	if err != nil || rec == nil {
		t.Fatalf("PuppetName: %v, %v", rec, err)
	}
	if text, _ := rec.Text(); text != "Aka" {
		t.Errorf("name = %q, want Aka", text)
	}

	rec, err = lib.PuppetName(ctx, 6)
	if err != nil {
		t.Fatalf("PuppetName: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil record for unnamed puppet")
	}
}

func TestWazeroLibrary_PuppetCalls(t *testing.T) {
	ctx := context.Background()
	n := &nativetest.Native{}
	lib := newTestLibrary(t, n)

	if err := lib.PuppetUpdate(ctx, 4); err != nil {
		t.Fatalf("PuppetUpdate: %v", err)
	}
	if err := lib.PuppetDraw(ctx, 4); err != nil {
		t.Fatalf("PuppetDraw: %v", err)
	}
	if err := lib.PuppetDestroy(ctx, 4); err != nil {
		t.Fatalf("PuppetDestroy: %v", err)
	}

	if len(n.Updates) != 1 || n.Updates[0] != 4 {
		t.Errorf("updates = %v", n.Updates)
	}
	if len(n.Draws) != 1 || n.Draws[0] != 4 {
		t.Errorf("draws = %v", n.Draws)
	}
	if len(n.Destroyed) != 1 || n.Destroyed[0] != 4 {
		t.Errorf("destroyed = %v", n.Destroyed)
	}
}

func TestWazeroLibrary_UpdateTrap(t *testing.T) {
	n := &nativetest.Native{TrapOn: "inPuppetUpdate"}
	lib := newTestLibrary(t, n)

	err := lib.PuppetUpdate(context.Background(), 1)
	var e *errors.Error
	if !stderrors.As(err, &e) {
		t.Fatalf("expected *errors.Error, got %T: %v", err, err)
	}
	if e.Kind != errors.KindCallFailed || e.Entry != exportPuppetUpdate {
		t.Errorf("got %+v", e)
	}
}

func TestWazeroLibrary_DrawNotExported(t *testing.T) {
	n := &nativetest.Native{}
	lib := newTestLibrary(t, n, nativetest.RequiredExports...)

	err := lib.PuppetDraw(context.Background(), 1)
	if !stderrors.Is(err, errors.ErrUnsupported) {
		t.Errorf("expected unsupported, got %v", err)
	}
	if err := lib.SceneBegin(context.Background()); !stderrors.Is(err, errors.ErrUnsupported) {
		t.Errorf("expected unsupported, got %v", err)
	}
}

func TestWazeroLibrary_Scene(t *testing.T) {
	ctx := context.Background()
	n := &nativetest.Native{}
	lib := newTestLibrary(t, n)

	if err := lib.SceneBegin(ctx); err != nil {
		t.Fatalf("SceneBegin: %v", err)
	}
	if err := lib.SceneDraw(ctx, 1, 2, 3.5, 480); err != nil {
		t.Fatalf("SceneDraw: %v", err)
	}
	if err := lib.SceneEnd(ctx); err != nil {
		t.Fatalf("SceneEnd: %v", err)
	}

	want := []string{"inSceneBegin", "inSceneDraw", "inSceneEnd"}
	if strings.Join(n.Calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", n.Calls, want)
	}
	if len(n.SceneDraws) != 1 || n.SceneDraws[0] != [4]float32{1, 2, 3.5, 480} {
		t.Errorf("scene draws = %v", n.SceneDraws)
	}
}

func TestWazeroLibrary_Close(t *testing.T) {
	ctx := context.Background()
	n := &nativetest.Native{}
	lib := newTestLibrary(t, n)

	if err := lib.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := lib.Close(ctx); err != nil {
		t.Errorf("second Close: %v", err)
	}

	err := lib.PuppetUpdate(ctx, 1)
	if !stderrors.Is(err, errors.ErrClosed) {
		t.Errorf("expected closed, got %v", err)
	}
	if len(n.Calls) != 0 {
		t.Errorf("no native call expected after Close, got %v", n.Calls)
	}
}

func TestHostTiming(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	mod, err := instantiateHost(ctx, r, time.Now().Add(-2*time.Second))
	if err != nil {
		t.Fatalf("instantiateHost: %v", err)
	}
	res, err := mod.ExportedFunction(hostTimingName).Call(ctx)
	if err != nil {
		t.Fatalf("timing: %v", err)
	}
	if secs := api.DecodeF64(res[0]); secs < 2 {
		t.Errorf("timing() = %v, want >= 2", secs)
	}
}
