// Package runtime is the ownership layer over an inochi2d.Library.
//
// # Quick Start
//
//	inst, err := runtime.New(ctx, lib, runtime.WithCapabilities(inochi2d.CapRender))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	p, err := runtime.LoadFromPath(ctx, inst, "Aka.inx")
//	if err != nil {
//	    log.Fatal(err) // e.g. "[load] native for Aka.inx: file not found"
//	}
//	defer p.Close(ctx)
//
//	scene, err := inst.BeginScene(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = p.Update(ctx)
//	_ = p.Draw(ctx)
//	_ = scene.End(ctx)
//	_ = scene.Draw(ctx, 0, 0, 800, 600)
//
// # Load Failures
//
// A native load that returns the null handle is resolved through the
// native error record:
//
//	no record              errors.KindUnavailable
//	record decodes         errors.KindNative, Message is the record text
//	record does not decode errors.KindUndecodable
//
// LoadFromPath, LoadFromMemory and Adopt all apply the same rule.
//
// # Lifetimes
//
// Puppets and scenes are registered in the Instance's resource table.
// Close on either releases the native handle exactly once; Instance.Close
// releases whatever is still live, the open scene first. After release every
// method returns an errors.KindClosed error without calling the library.
//
// There are no finalizers. Release is always explicit, usually deferred.
package runtime
