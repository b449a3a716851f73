// Package engine drives a WebAssembly build of Inochi2D with wazero.
//
// WazeroLibrary implements inochi2d.Library on top of a core WASM module that
// exports the Inochi2D C ABI. No cgo is involved: the native library runs in
// the wazero sandbox and the bindings talk to it through its exports and
// linear memory.
//
// # Native ABI
//
// All values are wasm32, little endian. Handles are i32, 0 is null.
//
//	Export                          Signature                 Required
//	──────────────────────────────────────────────────────────────────
//	memory                          memory                    yes
//	inAlloc                         (size) -> ptr             yes
//	inFree                          (ptr)                     yes
//	inInit                          () -> status (0 = ok)     yes
//	inCleanup                       ()                        no
//	inPuppetLoadEx                  (ptr, len) -> handle      yes
//	inPuppetLoadFromMemory          (ptr, len) -> handle      yes
//	inPuppetGetName                 (handle) -> record|0      no
//	inPuppetUpdate                  (handle)                  yes
//	inPuppetDraw                    (handle)                  no
//	inPuppetDestroy                 (handle)                  yes
//	inErrorGet                      () -> record|0            yes
//	inSceneBegin                    ()                        no
//	inSceneEnd                      ()                        no
//	inSceneDraw                     (f32, f32, f32, f32)      no
//
// A text record is 8 bytes: {len u32, ptr u32}. inPuppetDraw together with
// the three scene exports make up the rendering backend (CapRender);
// inPuppetGetName provides CapPuppetName.
//
// # Host Imports
//
// The host module "inochi2d_host" exports timing() -> f64, the number of
// seconds since the library was created. It is the Go side of the timing
// callback Inochi2D takes at init. WASI preview1 is available through
// Config.EnableWASI for builds that need it.
//
// # Guest Memory
//
// Paths and puppet buffers are copied into guest memory allocated with
// inAlloc and released with inFree when the call returns, on every path.
package engine
