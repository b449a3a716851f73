package testbed

import (
	"context"
	stderrors "errors"
	"os"
	"testing"

	inochi2d "github.com/Thog/inochi2d-go"
	"github.com/Thog/inochi2d-go/engine"
	"github.com/Thog/inochi2d-go/errors"
	"github.com/Thog/inochi2d-go/runtime"
)

// Fixtures are looked up next to this file unless the environment overrides
// them. Tests skip when a fixture is missing.
func fixture(t *testing.T, env, fallback string) string {
	t.Helper()
	path := os.Getenv(env)
	if path == "" {
		path = fallback
	}
	if _, err := os.Stat(path); err != nil {
		t.Skipf("%s not found: %v", path, err)
	}
	return path
}

func newInstance(t *testing.T, ctx context.Context, caps inochi2d.Capabilities) *runtime.Instance {
	t.Helper()

	wasmBytes, err := os.ReadFile(fixture(t, "INOCHI2D_WASM", "inochi2d.wasm"))
	if err != nil {
		t.Fatal(err)
	}

	lib, err := engine.NewWazeroLibrary(ctx, wasmBytes, &engine.Config{EnableWASI: true})
	if err != nil {
		t.Fatalf("bind native library: %v", err)
	}

	if missing := caps &^ inochi2d.CapDiagnostics &^ lib.Capabilities(); missing != 0 {
		_ = lib.Close(ctx)
		t.Skipf("native build lacks %s", missing)
	}

	inst, err := runtime.New(ctx, lib, runtime.WithCapabilities(caps))
	if err != nil {
		_ = lib.Close(ctx)
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		if err := inst.Close(ctx); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return inst
}

func TestPuppet_LoadFromPath(t *testing.T) {
	ctx := context.Background()
	inst := newInstance(t, ctx, 0)
	path := fixture(t, "INOCHI2D_PUPPET", "Aka.inx")

	p, err := runtime.LoadFromPath(ctx, inst, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Name() != path {
		t.Errorf("Name() = %q, want %q", p.Name(), path)
	}

	for i := 0; i < 3; i++ {
		if err := p.Update(ctx); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
	if err := p.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if inst.Live() != 0 {
		t.Errorf("Live() = %d after close", inst.Live())
	}
}

func TestPuppet_LoadFromMemory(t *testing.T) {
	ctx := context.Background()
	inst := newInstance(t, ctx, 0)

	data, err := os.ReadFile(fixture(t, "INOCHI2D_PUPPET", "Aka.inx"))
	if err != nil {
		t.Fatal(err)
	}

	p, err := runtime.LoadFromMemory(ctx, inst, data)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Name() != runtime.MemoryPuppetName {
		t.Errorf("Name() = %q, want %q", p.Name(), runtime.MemoryPuppetName)
	}
	if err := p.Update(ctx); err != nil {
		t.Fatalf("update: %v", err)
	}
}

func TestPuppet_LoadMissingFile(t *testing.T) {
	ctx := context.Background()
	inst := newInstance(t, ctx, 0)

	p, err := runtime.LoadFromPath(ctx, inst, "does-not-exist.inx")
	if err == nil {
		t.Fatal("expected load error")
	}
	if p != nil {
		t.Error("failed load must not return a puppet")
	}
	switch {
	case stderrors.Is(err, errors.ErrNative),
		stderrors.Is(err, errors.ErrUnavailable),
		stderrors.Is(err, errors.ErrUndecodable):
	default:
		t.Errorf("unexpected error kind: %v", err)
	}
	if inst.Live() != 0 {
		t.Errorf("Live() = %d after failed load", inst.Live())
	}
}

func TestScene_Frame(t *testing.T) {
	ctx := context.Background()
	inst := newInstance(t, ctx, inochi2d.CapRender)

	p, err := runtime.LoadFromPath(ctx, inst, fixture(t, "INOCHI2D_PUPPET", "Aka.inx"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	scene, err := inst.BeginScene(ctx)
	if err != nil {
		t.Fatalf("begin scene: %v", err)
	}
	if err := p.Update(ctx); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := p.Draw(ctx); err != nil {
		t.Fatalf("draw: %v", err)
	}
	if err := scene.End(ctx); err != nil {
		t.Fatalf("end scene: %v", err)
	}
	if err := scene.Draw(ctx, 0, 0, 800, 600); err != nil {
		t.Fatalf("draw scene: %v", err)
	}
}
