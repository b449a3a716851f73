// Package inochi2d provides safe Go bindings for the Inochi2D puppet renderer.
//
// Inochi2D does the real work: puppet file parsing, animation, rendering and
// scene compositing. This module only owns the native handles it hands out,
// validates them, ties their lifetime to an initialized context and releases
// them deterministically.
//
// # Architecture Overview
//
//	inochi2d/            Root package with the native calling boundary (Library)
//	├── runtime/         Instance, Puppet and Scene: the safe ownership layer
//	├── engine/          wazero backend driving a WASM build of Inochi2D
//	├── resource/        Live-handle table with lifecycle observers
//	├── errors/          Structured error types
//	├── metrics/         Prometheus collector for handle lifecycles
//	├── tracing/         OpenTelemetry provider setup
//	├── internal/
//	│   └── nativetest/  Scripted native library and test guest module
//	├── testbed/         Integration tests against a real WASM build
//	└── cmd/puppetview/  CLI for loading, stepping and serving puppets
//
// # Quick Start
//
//	lib, err := engine.NewWazeroLibrary(ctx, wasmBytes, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	inst, err := runtime.New(ctx, lib, runtime.WithCapabilities(inochi2d.CapRender))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	p, err := runtime.LoadFromPath(ctx, inst, "Aka.inx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close(ctx)
//
//	for frame := 0; frame < 60; frame++ {
//	    _ = p.Update(ctx)
//	    _ = p.Draw(ctx)
//	}
//
// # Ownership
//
// A Puppet owns exactly one native handle. Close releases it exactly once;
// Instance.Close releases every puppet that is still live before tearing the
// native context down, so no handle outlives the context that created it.
//
// # Thread Safety
//
// Instance, Puppet and Scene are NOT thread-safe. The native library has no
// locking of its own; use a single goroutine per Instance or synchronize
// externally.
package inochi2d
