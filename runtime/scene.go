package runtime

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	inochi2d "github.com/Thog/inochi2d-go"
	"github.com/Thog/inochi2d-go/errors"
	"github.com/Thog/inochi2d-go/resource"
)

// Scene is a native scene. Puppets drawn between BeginScene and End are
// composited into it; Draw then presents the result.
type Scene struct {
	inst  *Instance
	slot  resource.Slot
	ended bool
}

var _ resource.Releaser = (*Scene)(nil)

// BeginScene opens the native scene. Only one scene may be open at a time.
func (i *Instance) BeginScene(ctx context.Context) (*Scene, error) {
	if err := i.checkOpen(errors.PhaseScene, ""); err != nil {
		return nil, err
	}
	if !i.caps.Has(inochi2d.CapRender) {
		return nil, errors.Unsupported(errors.PhaseScene, "rendering backend not enabled")
	}
	if i.scene != nil {
		return nil, errors.InvalidInput(errors.PhaseScene, "a scene is already open")
	}

	ctx, span := i.tracer.Start(ctx, "inochi2d.scene.begin")
	defer span.End()

	if err := i.lib.SceneBegin(ctx); err != nil {
		recordError(span, err)
		return nil, err
	}

	s := &Scene{inst: i}
	s.slot = i.table.Insert(resource.TypeScene, s)
	i.scene = s
	i.debug("scene begun")
	return s, nil
}

// Scene returns the open scene, or nil.
func (i *Instance) Scene() *Scene {
	return i.scene
}

// Draw presents the composited scene in the given viewport. It is usually
// called after End and stays valid until the Instance is closed.
func (s *Scene) Draw(ctx context.Context, x, y, width, height float32) error {
	if err := s.inst.checkOpen(errors.PhaseScene, ""); err != nil {
		return err
	}

	ctx, span := s.inst.tracer.Start(ctx, "inochi2d.scene.draw", trace.WithAttributes(
		attribute.Float64("inochi2d.scene.x", float64(x)),
		attribute.Float64("inochi2d.scene.y", float64(y)),
		attribute.Float64("inochi2d.scene.width", float64(width)),
		attribute.Float64("inochi2d.scene.height", float64(height)),
	))
	defer span.End()

	if err := s.inst.lib.SceneDraw(ctx, x, y, width, height); err != nil {
		recordError(span, err)
		return err
	}
	return nil
}

// Ended reports whether the scene has been ended.
func (s *Scene) Ended() bool {
	return s.ended
}

// End closes the native scene. Calling End again does nothing.
func (s *Scene) End(ctx context.Context) error {
	if s.ended {
		return nil
	}
	_, err := s.inst.table.Remove(ctx, s.slot)
	return err
}

// Release implements resource.Releaser.
func (s *Scene) Release(ctx context.Context) error {
	if s.ended {
		return nil
	}
	s.ended = true
	if s.inst.scene == s {
		s.inst.scene = nil
	}

	ctx, span := s.inst.tracer.Start(ctx, "inochi2d.scene.end")
	defer span.End()

	if err := s.inst.lib.SceneEnd(ctx); err != nil {
		recordError(span, err)
		return err
	}
	s.inst.debug("scene ended")
	return nil
}
