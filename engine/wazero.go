package engine

import (
	"context"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	inochi2d "github.com/Thog/inochi2d-go"
	"github.com/Thog/inochi2d-go/errors"
)

// Config holds configuration for library creation
type Config struct {
	// Setup runs after the host modules are registered and before the guest
	// is instantiated. Use it to provide extra imports the build expects.
	Setup func(ctx context.Context, r wazero.Runtime) error

	// Name is the guest module name. Empty means "inochi2d".
	Name string

	// MemoryLimitPages sets the maximum guest memory in pages (64KB each).
	// 0 means the wazero default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// EnableWASI instantiates wasi_snapshot_preview1 for builds that import it.
	EnableWASI bool

	// CloseOnContextDone makes native calls abort when their context is done.
	CloseOnContextDone bool
}

// WazeroLibrary implements inochi2d.Library over a WASM build of Inochi2D.
// It is not safe for concurrent use.
type WazeroLibrary struct {
	runtime wazero.Runtime
	module  api.Module
	memory  api.Memory
	ex      exports
	caps    inochi2d.Capabilities
	closed  bool
}

var _ inochi2d.Library = (*WazeroLibrary)(nil)

// NewWazeroLibrary compiles and instantiates a WASM build of Inochi2D.
// cfg may be nil.
func NewWazeroLibrary(ctx context.Context, wasmBytes []byte, cfg *Config) (*WazeroLibrary, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	if cfg.CloseOnContextDone {
		runtimeCfg = runtimeCfg.WithCloseOnContextDone(true)
	}
	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	lib, err := instantiate(ctx, r, wasmBytes, cfg)
	if err != nil {
		_ = r.Close(ctx)
		return nil, err
	}
	return lib, nil
}

func instantiate(ctx context.Context, r wazero.Runtime, wasmBytes []byte, cfg *Config) (*WazeroLibrary, error) {
	if _, err := instantiateHost(ctx, r, time.Now()); err != nil {
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindCallFailed, err, "instantiate host module")
	}
	if cfg.EnableWASI {
		if err := instantiateWASI(ctx, r); err != nil {
			return nil, errors.Wrap(errors.PhaseEngine, errors.KindCallFailed, err, "instantiate WASI")
		}
	}
	if cfg.Setup != nil {
		if err := cfg.Setup(ctx, r); err != nil {
			return nil, errors.Wrap(errors.PhaseEngine, errors.KindCallFailed, err, "setup runtime")
		}
	}

	compiled, err := r.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindInvalidInput, err, "compile native library")
	}

	name := cfg.Name
	if name == "" {
		name = defaultGuestName
	}
	modCfg := wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions(reactorInitFunction)

	mod, err := r.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindCallFailed, err, "instantiate native library")
	}

	mem := mod.ExportedMemory(exportMemory)
	ex, missing := bindExports(mod)
	if mem == nil {
		missing = append([]string{exportMemory}, missing...)
	}
	if len(missing) > 0 {
		_ = mod.Close(ctx)
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindNotFound, errors.NewMissingExportsError(missing), "bind native exports")
	}

	lib := &WazeroLibrary{
		runtime: r,
		module:  mod,
		memory:  mem,
		ex:      ex,
		caps:    ex.capabilities(),
	}

	Logger().Debug("native library bound",
		zap.String("module", name),
		zap.Stringer("capabilities", lib.caps),
		zap.Uint32("memory_bytes", mem.Size()),
	)
	return lib, nil
}

// call invokes a guest export. A nil fn means the export is optional and
// absent from this build.
func (l *WazeroLibrary) call(ctx context.Context, phase errors.Phase, name string, fn api.Function, params ...uint64) ([]uint64, error) {
	if l.closed {
		return nil, errors.Closed(phase, "native library", "")
	}
	if fn == nil {
		return nil, errors.New(phase, errors.KindUnsupported).
			Entry(name).
			Detail("not exported by this build").
			Build()
	}
	res, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, errors.CallFailed(phase, name, err)
	}
	return res, nil
}

// Capabilities implements inochi2d.Library.
func (l *WazeroLibrary) Capabilities() inochi2d.Capabilities {
	return l.caps
}

// Init implements inochi2d.Library.
func (l *WazeroLibrary) Init(ctx context.Context) error {
	res, err := l.call(ctx, errors.PhaseInit, exportInit, l.ex.init)
	if err != nil {
		return err
	}
	if status := api.DecodeI32(res[0]); status != 0 {
		return errors.New(errors.PhaseInit, errors.KindInitialization).
			Entry(exportInit).
			Detail("status %d", status).
			Build()
	}
	return nil
}

// Cleanup implements inochi2d.Library. Builds without inCleanup need none.
func (l *WazeroLibrary) Cleanup(ctx context.Context) error {
	if l.ex.cleanup == nil {
		return nil
	}
	_, err := l.call(ctx, errors.PhaseDispose, exportCleanup, l.ex.cleanup)
	return err
}

// PuppetLoad implements inochi2d.Library.
func (l *WazeroLibrary) PuppetLoad(ctx context.Context, path string) (inochi2d.Handle, error) {
	return l.load(ctx, exportPuppetLoadEx, l.ex.loadEx, []byte(path))
}

// PuppetLoadFromMemory implements inochi2d.Library.
func (l *WazeroLibrary) PuppetLoadFromMemory(ctx context.Context, data []byte) (inochi2d.Handle, error) {
	return l.load(ctx, exportPuppetLoadMem, l.ex.loadMem, data)
}

func (l *WazeroLibrary) load(ctx context.Context, name string, fn api.Function, data []byte) (inochi2d.Handle, error) {
	var h inochi2d.Handle
	err := l.withGuestBytes(ctx, errors.PhaseLoad, data, func(ptr, n uint32) error {
		res, err := l.call(ctx, errors.PhaseLoad, name, fn, uint64(ptr), uint64(n))
		if err != nil {
			return err
		}
		h = inochi2d.Handle(api.DecodeU32(res[0]))
		return nil
	})
	if err != nil {
		// A handle obtained before a failed free is still owned by nobody.
		if !h.IsNull() {
			_, _ = l.call(ctx, errors.PhaseLoad, exportPuppetDestroy, l.ex.destroy, uint64(h))
		}
		return 0, err
	}
	return h, nil
}

// PuppetName implements inochi2d.Library.
func (l *WazeroLibrary) PuppetName(ctx context.Context, h inochi2d.Handle) (inochi2d.TextRecord, error) {
	res, err := l.call(ctx, errors.PhaseQuery, exportPuppetGetName, l.ex.getName, uint64(h))
	if err != nil {
		return nil, err
	}
	ptr := api.DecodeU32(res[0])
	if ptr == 0 {
		return nil, nil
	}
	return readTextRecord(l.memory, errors.PhaseQuery, ptr), nil
}

// PuppetUpdate implements inochi2d.Library.
func (l *WazeroLibrary) PuppetUpdate(ctx context.Context, h inochi2d.Handle) error {
	_, err := l.call(ctx, errors.PhaseUpdate, exportPuppetUpdate, l.ex.update, uint64(h))
	return err
}

// PuppetDraw implements inochi2d.Library.
func (l *WazeroLibrary) PuppetDraw(ctx context.Context, h inochi2d.Handle) error {
	_, err := l.call(ctx, errors.PhaseDraw, exportPuppetDraw, l.ex.draw, uint64(h))
	return err
}

// PuppetDestroy implements inochi2d.Library.
func (l *WazeroLibrary) PuppetDestroy(ctx context.Context, h inochi2d.Handle) error {
	_, err := l.call(ctx, errors.PhaseDispose, exportPuppetDestroy, l.ex.destroy, uint64(h))
	return err
}

// LastError implements inochi2d.Library.
func (l *WazeroLibrary) LastError(ctx context.Context) (inochi2d.ErrorRecord, error) {
	res, err := l.call(ctx, errors.PhaseLoad, exportErrorGet, l.ex.errorGet)
	if err != nil {
		return nil, err
	}
	ptr := api.DecodeU32(res[0])
	if ptr == 0 {
		return nil, nil
	}
	return readTextRecord(l.memory, errors.PhaseLoad, ptr), nil
}

// SceneBegin implements inochi2d.Library.
func (l *WazeroLibrary) SceneBegin(ctx context.Context) error {
	_, err := l.call(ctx, errors.PhaseScene, exportSceneBegin, l.ex.sceneBegin)
	return err
}

// SceneEnd implements inochi2d.Library.
func (l *WazeroLibrary) SceneEnd(ctx context.Context) error {
	_, err := l.call(ctx, errors.PhaseScene, exportSceneEnd, l.ex.sceneEnd)
	return err
}

// SceneDraw implements inochi2d.Library.
func (l *WazeroLibrary) SceneDraw(ctx context.Context, x, y, width, height float32) error {
	_, err := l.call(ctx, errors.PhaseScene, exportSceneDraw, l.ex.sceneDraw,
		api.EncodeF32(x), api.EncodeF32(y), api.EncodeF32(width), api.EncodeF32(height))
	return err
}

// Close releases the guest module and the wazero runtime.
func (l *WazeroLibrary) Close(ctx context.Context) error {
	if l.closed {
		return nil
	}
	l.closed = true
	return l.runtime.Close(ctx)
}
