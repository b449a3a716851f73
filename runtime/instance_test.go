package runtime

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	inochi2d "github.com/Thog/inochi2d-go"
	"github.com/Thog/inochi2d-go/errors"
	"github.com/Thog/inochi2d-go/internal/nativetest"
	"github.com/Thog/inochi2d-go/resource"
)

var ctx = context.Background()

func newInstance(t *testing.T, lib *nativetest.Library, opts ...Option) *Instance {
	t.Helper()
	inst, err := New(ctx, lib, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = inst.Close(ctx) })
	return inst
}

func TestNew(t *testing.T) {
	lib := nativetest.NewLibrary(inochi2d.CapRender)
	inst := newInstance(t, lib, WithCapabilities(inochi2d.CapRender))

	if got := inst.Capabilities(); got != inochi2d.CapRender {
		t.Errorf("Capabilities() = %v, want render", got)
	}
	if lib.Count("Init") != 1 {
		t.Errorf("Init called %d times, want 1", lib.Count("Init"))
	}
	if inst.Live() != 0 {
		t.Errorf("Live() = %d, want 0", inst.Live())
	}
}

func TestNew_Failures(t *testing.T) {
	initErr := stderrors.New("no GL context")

	tests := []struct {
		name     string
		lib      *nativetest.Library
		opts     []Option
		wantInit int
	}{
		{
			name:     "init fails",
			lib:      &nativetest.Library{InitErr: initErr},
			wantInit: 1,
		},
		{
			name:     "render not built",
			lib:      nativetest.NewLibrary(0),
			opts:     []Option{WithCapabilities(inochi2d.CapRender)},
			wantInit: 0,
		},
		{
			name:     "names not built",
			lib:      nativetest.NewLibrary(inochi2d.CapRender),
			opts:     []Option{WithCapabilities(inochi2d.CapRender | inochi2d.CapPuppetName)},
			wantInit: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := New(ctx, tt.lib, tt.opts...)
			if inst != nil {
				t.Fatal("expected nil instance")
			}
			if !stderrors.Is(err, errors.ErrInitialization) {
				t.Fatalf("expected initialization error, got %v", err)
			}
			if got := tt.lib.Count("Init"); got != tt.wantInit {
				t.Errorf("Init called %d times, want %d", got, tt.wantInit)
			}
			if tt.lib.Closed {
				t.Error("a failed New must leave the library to the caller")
			}
		})
	}

	t.Run("cause kept", func(t *testing.T) {
		_, err := New(ctx, &nativetest.Library{InitErr: initErr})
		if !stderrors.Is(err, initErr) {
			t.Errorf("expected cause %v in %v", initErr, err)
		}
	})

	t.Run("nil library", func(t *testing.T) {
		_, err := New(ctx, nil)
		if !stderrors.Is(err, errors.ErrInitialization) {
			t.Errorf("expected initialization error, got %v", err)
		}
	})
}

func TestNew_DiagnosticsNeedsNoNativeSupport(t *testing.T) {
	inst := newInstance(t, nativetest.NewLibrary(0), WithCapabilities(inochi2d.CapDiagnostics))
	if !inst.Capabilities().Has(inochi2d.CapDiagnostics) {
		t.Error("diagnostics should be enabled")
	}
}

func TestInstance_CloseReleasesEverything(t *testing.T) {
	lib := nativetest.NewLibrary(0)
	lib.Paths["a.inx"] = 1
	lib.Paths["b.inx"] = 2

	inst, err := New(ctx, lib)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a, err := LoadFromPath(ctx, inst, "a.inx")
	if err != nil {
		t.Fatalf("load a: %v", err)
	}
	b, err := LoadFromPath(ctx, inst, "b.inx")
	if err != nil {
		t.Fatalf("load b: %v", err)
	}
	if inst.Live() != 2 {
		t.Fatalf("Live() = %d, want 2", inst.Live())
	}

	if err := inst.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	for _, h := range []inochi2d.Handle{1, 2} {
		if lib.Destroyed[h] != 1 {
			t.Errorf("handle %d destroyed %d times, want 1", h, lib.Destroyed[h])
		}
	}
	if !a.Closed() || !b.Closed() {
		t.Error("puppets should be closed with their instance")
	}

	got := strings.Join(lib.CallNames(), ",")
	want := "Init,PuppetLoad,PuppetLoad,PuppetDestroy,PuppetDestroy,Cleanup,Close"
	if got != want {
		t.Errorf("calls = %s, want %s", got, want)
	}

	// Closing the puppets and the instance again is a no-op.
	calls := len(lib.Calls)
	_ = a.Close(ctx)
	if err := inst.Close(ctx); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if len(lib.Calls) != calls {
		t.Errorf("unexpected calls after Close: %v", lib.CallNames()[calls:])
	}
}

func TestInstance_ClosedRejectsConstruction(t *testing.T) {
	lib := nativetest.NewLibrary(inochi2d.CapRender)
	lib.Paths["a.inx"] = 1
	inst, err := New(ctx, lib, WithCapabilities(inochi2d.CapRender))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := inst.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !inst.Closed() {
		t.Fatal("Closed() = false after Close")
	}

	if _, err := LoadFromPath(ctx, inst, "a.inx"); !stderrors.Is(err, errors.ErrClosed) {
		t.Errorf("LoadFromPath: expected closed, got %v", err)
	}
	if _, err := LoadFromMemory(ctx, inst, []byte{1}); !stderrors.Is(err, errors.ErrClosed) {
		t.Errorf("LoadFromMemory: expected closed, got %v", err)
	}
	if _, err := Adopt(ctx, inst, 3, "raw"); !stderrors.Is(err, errors.ErrClosed) {
		t.Errorf("Adopt: expected closed, got %v", err)
	}
	if _, err := inst.BeginScene(ctx); !stderrors.Is(err, errors.ErrClosed) {
		t.Errorf("BeginScene: expected closed, got %v", err)
	}
	if lib.Count("PuppetLoad") != 0 || lib.Count("SceneBegin") != 0 {
		t.Errorf("no native call expected, got %v", lib.CallNames())
	}
}

func TestInstance_CloseCombinesErrors(t *testing.T) {
	lib := nativetest.NewLibrary(0)
	lib.Paths["a.inx"] = 1
	lib.DestroyErr = stderrors.New("destroy failed")
	lib.CleanupErr = stderrors.New("cleanup failed")

	inst, err := New(ctx, lib)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := LoadFromPath(ctx, inst, "a.inx"); err != nil {
		t.Fatalf("load: %v", err)
	}

	err = inst.Close(ctx)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"destroy failed", "cleanup failed"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should contain %q", err.Error(), want)
		}
	}
	if !lib.Closed {
		t.Error("library should be closed even when teardown fails")
	}
}

func TestInstance_Each(t *testing.T) {
	lib := nativetest.NewLibrary(0)
	lib.Paths["a.inx"] = 1
	lib.Paths["b.inx"] = 2
	lib.Paths["c.inx"] = 3
	inst := newInstance(t, lib)

	for _, path := range []string{"a.inx", "b.inx", "c.inx"} {
		if _, err := LoadFromPath(ctx, inst, path); err != nil {
			t.Fatalf("load %s: %v", path, err)
		}
	}

	var names []string
	inst.Each(func(p *Puppet) bool {
		names = append(names, p.Name())
		return true
	})
	if len(names) != 3 {
		t.Errorf("Each visited %v", names)
	}

	// Closing puppets from inside Each is allowed.
	inst.Each(func(p *Puppet) bool {
		_ = p.Close(ctx)
		return true
	})
	if inst.Live() != 0 {
		t.Errorf("Live() = %d after closing all, want 0", inst.Live())
	}
}

func TestInstance_Diagnostics(t *testing.T) {
	tests := []struct {
		name string
		caps inochi2d.Capabilities
		want int
	}{
		{"enabled", inochi2d.CapRender | inochi2d.CapDiagnostics, 1},
		{"disabled", inochi2d.CapRender, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			lib := nativetest.NewLibrary(inochi2d.CapRender)
			lib.Paths["a.inx"] = 1
			lib.MemoryHandle = 2
			inst := newInstance(t, lib, WithCapabilities(tt.caps), WithLogger(zap.New(core)))

			p, err := LoadFromPath(ctx, inst, "a.inx")
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			m, err := LoadFromMemory(ctx, inst, []byte("puppet"))
			if err != nil {
				t.Fatalf("load from memory: %v", err)
			}
			if err := p.Update(ctx); err != nil {
				t.Fatalf("Update: %v", err)
			}
			if err := p.Draw(ctx); err != nil {
				t.Fatalf("Draw: %v", err)
			}
			if err := p.Close(ctx); err != nil {
				t.Fatalf("Close: %v", err)
			}
			if err := m.Close(ctx); err != nil {
				t.Fatalf("Close: %v", err)
			}

			for msg, want := range map[string]int{
				"loading puppet from file":   tt.want,
				"loading puppet from memory": tt.want,
				"puppet loaded":              2 * tt.want,
				"puppet updated":             tt.want,
				"puppet drawn":               tt.want,
				"puppet released":            2 * tt.want,
			} {
				if got := logs.FilterMessage(msg).Len(); got != want {
					t.Errorf("%q logged %d times, want %d", msg, got, want)
				}
			}

			if tt.want == 0 {
				return
			}
			entry := logs.FilterMessage("loading puppet from memory").All()[0]
			if entry.ContextMap()["bytes"] != int64(6) {
				t.Errorf("bytes field = %v, want 6", entry.ContextMap()["bytes"])
			}
			entry = logs.FilterMessage("puppet updated").All()[0]
			if entry.ContextMap()["name"] != "a.inx" {
				t.Errorf("name field = %v, want a.inx", entry.ContextMap()["name"])
			}
		})
	}
}

type recordingObserver struct {
	events   []resource.Event
	failures []error
}

func (o *recordingObserver) OnResourceEvent(e resource.Event) { o.events = append(o.events, e) }
func (o *recordingObserver) LoadFailed(err error)             { o.failures = append(o.failures, err) }

func TestInstance_Observer(t *testing.T) {
	obs := &recordingObserver{}
	lib := nativetest.NewLibrary(0)
	lib.Paths["a.inx"] = 1
	inst := newInstance(t, lib, WithObserver(obs))

	p, err := LoadFromPath(ctx, inst, "a.inx")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	_ = p.Close(ctx)
	if _, err := LoadFromPath(ctx, inst, "missing.inx"); err == nil {
		t.Fatal("expected load failure")
	}

	if len(obs.events) != 2 {
		t.Fatalf("got %d events, want 2", len(obs.events))
	}
	if obs.events[0].Type != resource.EventCreated || obs.events[1].Type != resource.EventDropped {
		t.Errorf("events = %v", obs.events)
	}
	if obs.events[0].TypeID != resource.TypePuppet {
		t.Errorf("TypeID = %v, want puppet", obs.events[0].TypeID)
	}
	if len(obs.failures) != 1 || !stderrors.Is(obs.failures[0], errors.ErrUnavailable) {
		t.Errorf("failures = %v", obs.failures)
	}
}
