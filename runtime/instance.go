package runtime

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	inochi2d "github.com/Thog/inochi2d-go"
	"github.com/Thog/inochi2d-go/errors"
	"github.com/Thog/inochi2d-go/resource"
)

// Instance is an initialized native context. Every Puppet and Scene is
// created against an Instance and released no later than it.
type Instance struct {
	lib     inochi2d.Library
	table   *resource.Table
	logger  *zap.Logger
	tracer  trace.Tracer
	loadObs []LoadObserver
	scene   *Scene
	caps    inochi2d.Capabilities
	closed  bool
}

// New initializes the native library and returns the Instance owning it.
// On success the Instance takes ownership of lib and closes it in Close;
// on failure lib is left to the caller.
func New(ctx context.Context, lib inochi2d.Library, opts ...Option) (*Instance, error) {
	if lib == nil {
		return nil, errors.Initialization("native library is nil", nil)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	native := o.caps &^ inochi2d.CapDiagnostics
	if missing := native &^ lib.Capabilities(); missing != 0 {
		return nil, errors.Initialization(
			fmt.Sprintf("capabilities not supported by native library: %s", missing), nil)
	}

	ctx, span := o.tracer.Start(ctx, "inochi2d.init",
		trace.WithAttributes(attribute.String("inochi2d.capabilities", o.caps.String())))
	defer span.End()

	if err := lib.Init(ctx); err != nil {
		err = errors.Initialization("native initialization failed", err)
		recordError(span, err)
		return nil, err
	}

	inst := &Instance{
		lib:    lib,
		table:  resource.NewTable(),
		logger: o.logger,
		tracer: o.tracer,
		caps:   o.caps,
	}
	for _, obs := range o.observers {
		inst.table.Subscribe(obs)
		if lo, ok := obs.(LoadObserver); ok {
			inst.loadObs = append(inst.loadObs, lo)
		}
	}

	inst.debug("native context initialized", zap.Stringer("capabilities", o.caps))
	return inst, nil
}

// Capabilities returns the enabled capability set.
func (i *Instance) Capabilities() inochi2d.Capabilities {
	return i.caps
}

// Live returns the number of puppets and scenes not yet released.
func (i *Instance) Live() int {
	return i.table.Len()
}

// Each calls fn for every live puppet until fn returns false.
func (i *Instance) Each(fn func(*Puppet) bool) {
	i.table.Each(resource.TypePuppet, func(_ resource.Slot, v any) bool {
		return fn(v.(*Puppet))
	})
}

// Closed reports whether Close has been called.
func (i *Instance) Closed() bool {
	return i.closed
}

// Close ends an open scene, releases every live puppet, runs native cleanup
// and closes the library. Calling Close again does nothing.
func (i *Instance) Close(ctx context.Context) error {
	if i.closed {
		return nil
	}

	ctx, span := i.tracer.Start(ctx, "inochi2d.close",
		trace.WithAttributes(attribute.Int("inochi2d.live", i.table.Len())))
	defer span.End()

	var err error
	if i.scene != nil {
		err = multierr.Append(err, i.scene.End(ctx))
	}
	err = multierr.Append(err, i.table.Close(ctx))
	i.closed = true

	err = multierr.Append(err, i.lib.Cleanup(ctx))
	err = multierr.Append(err, i.lib.Close(ctx))
	if err != nil {
		recordError(span, err)
		i.logger.Warn("instance teardown incomplete", zap.Error(err))
	}

	i.debug("native context closed")
	return err
}

func (i *Instance) checkOpen(phase errors.Phase, name string) error {
	if i.closed {
		return errors.Closed(phase, "instance", name)
	}
	return nil
}

func (i *Instance) debug(msg string, fields ...zap.Field) {
	if i.caps.Has(inochi2d.CapDiagnostics) {
		i.logger.Debug(msg, fields...)
	}
}

func (i *Instance) loadFailed(err error) {
	for _, lo := range i.loadObs {
		lo.LoadFailed(err)
	}
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// named fills in the resource name on errors coming back from the library.
func named(err error, name string) error {
	e, ok := err.(*errors.Error)
	if !ok || e.Name != "" || name == "" {
		return err
	}
	c := *e
	c.Name = name
	return &c
}
