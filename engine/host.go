package engine

import (
	"context"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// instantiateHost registers the inochi2d_host module. timing() is the Go side
// of the timing callback Inochi2D is initialized with.
func instantiateHost(ctx context.Context, r wazero.Runtime, start time.Time) (api.Module, error) {
	return r.NewHostModuleBuilder(hostModuleName).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = api.EncodeF64(time.Since(start).Seconds())
		}), nil, []api.ValueType{api.ValueTypeF64}).
		Export(hostTimingName).
		Instantiate(ctx)
}

// instantiateWASI registers WASI preview1 unless another caller already did.
func instantiateWASI(ctx context.Context, r wazero.Runtime) error {
	if r.Module(wasi_snapshot_preview1.ModuleName) != nil {
		return nil
	}
	_, err := wasi_snapshot_preview1.Instantiate(ctx, r)
	return err
}
