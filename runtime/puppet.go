package runtime

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	inochi2d "github.com/Thog/inochi2d-go"
	"github.com/Thog/inochi2d-go/errors"
	"github.com/Thog/inochi2d-go/resource"
)

// MemoryPuppetName is the display name of puppets loaded from memory
// without an explicit name.
const MemoryPuppetName = "<in-memory-puppet>"

// Puppet owns one live native puppet handle.
type Puppet struct {
	inst   *Instance
	name   string
	slot   resource.Slot
	handle inochi2d.Handle
	closed bool
}

var _ resource.Releaser = (*Puppet)(nil)

// LoadFromPath loads a puppet file. The puppet is named after path.
func LoadFromPath(ctx context.Context, inst *Instance, path string) (*Puppet, error) {
	if err := inst.checkOpen(errors.PhaseLoad, path); err != nil {
		return nil, err
	}

	ctx, span := inst.startPuppetSpan(ctx, "inochi2d.puppet.load", path,
		attribute.String("inochi2d.puppet.source", "path"))
	defer span.End()

	inst.debug("loading puppet from file", zap.String("path", path))
	h, err := inst.lib.PuppetLoad(ctx, path)
	if err != nil {
		return nil, inst.failLoad(span, named(err, path))
	}
	p, err := adopt(ctx, inst, h, path)
	if err != nil {
		return nil, inst.failLoad(span, err)
	}
	return p, nil
}

// LoadFromMemory loads a puppet from an in-memory file image. The optional
// name defaults to MemoryPuppetName. buf is not retained.
func LoadFromMemory(ctx context.Context, inst *Instance, buf []byte, name ...string) (*Puppet, error) {
	display := MemoryPuppetName
	if len(name) > 0 && name[0] != "" {
		display = name[0]
	}
	if err := inst.checkOpen(errors.PhaseLoad, display); err != nil {
		return nil, err
	}

	ctx, span := inst.startPuppetSpan(ctx, "inochi2d.puppet.load", display,
		attribute.String("inochi2d.puppet.source", "memory"),
		attribute.Int("inochi2d.puppet.bytes", len(buf)))
	defer span.End()

	inst.debug("loading puppet from memory", zap.String("name", display), zap.Int("bytes", len(buf)))
	h, err := inst.lib.PuppetLoadFromMemory(ctx, buf)
	if err != nil {
		return nil, inst.failLoad(span, named(err, display))
	}
	p, err := adopt(ctx, inst, h, display)
	if err != nil {
		return nil, inst.failLoad(span, err)
	}
	return p, nil
}

// Adopt takes ownership of a handle returned by a native load call made
// outside this package. A null handle is resolved into the native error; a
// handle another live Puppet already owns is rejected.
func Adopt(ctx context.Context, inst *Instance, raw inochi2d.Handle, name string) (*Puppet, error) {
	if err := inst.checkOpen(errors.PhaseLoad, name); err != nil {
		return nil, err
	}
	p, err := adopt(ctx, inst, raw, name)
	if err != nil {
		inst.loadFailed(err)
		return nil, err
	}
	return p, nil
}

func adopt(ctx context.Context, inst *Instance, raw inochi2d.Handle, name string) (*Puppet, error) {
	if raw.IsNull() {
		return nil, inst.nativeError(ctx, errors.PhaseLoad, name)
	}
	if owner := inst.owner(raw); owner != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Name(name).
			Detail("handle %d is already owned by %s", raw, owner.name).
			Build()
	}

	p := &Puppet{
		inst:   inst,
		name:   name,
		handle: raw,
	}
	p.slot = inst.table.Insert(resource.TypePuppet, p)

	inst.debug("puppet loaded",
		zap.String("name", name),
		zap.Uint32("handle", uint32(raw)),
		zap.Uint32("slot", uint32(p.slot)),
	)
	return p, nil
}

// owner returns the live puppet holding h, if any.
func (i *Instance) owner(h inochi2d.Handle) *Puppet {
	var found *Puppet
	i.Each(func(p *Puppet) bool {
		if p.handle == h {
			found = p
			return false
		}
		return true
	})
	return found
}

// nativeError resolves a failed native call into its error record.
func (i *Instance) nativeError(ctx context.Context, phase errors.Phase, name string) error {
	rec, err := i.lib.LastError(ctx)
	if err != nil {
		e := errors.Unavailable(phase, name)
		e.Cause = err
		return e
	}
	if rec == nil {
		return errors.Unavailable(phase, name)
	}
	text, err := rec.Text()
	if err != nil {
		return errors.Undecodable(phase, name, err)
	}
	return errors.Native(phase, name, text)
}

func (i *Instance) failLoad(span trace.Span, err error) error {
	recordError(span, err)
	i.loadFailed(err)
	i.debug("puppet load failed", zap.Error(err))
	return err
}

func (i *Instance) startPuppetSpan(ctx context.Context, op, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("inochi2d.puppet.name", name))
	return i.tracer.Start(ctx, op, trace.WithAttributes(attrs...))
}

// Name returns the display name given at construction.
func (p *Puppet) Name() string {
	return p.name
}

// Handle returns the native handle, or the null handle once closed.
func (p *Puppet) Handle() inochi2d.Handle {
	return p.handle
}

// Closed reports whether the native handle has been released.
func (p *Puppet) Closed() bool {
	return p.closed
}

// Update advances the puppet's animation state by one frame.
func (p *Puppet) Update(ctx context.Context) error {
	if p.closed {
		return errors.Closed(errors.PhaseUpdate, "puppet", p.name)
	}

	ctx, span := p.inst.startPuppetSpan(ctx, "inochi2d.puppet.update", p.name)
	defer span.End()

	if err := p.inst.lib.PuppetUpdate(ctx, p.handle); err != nil {
		err = named(err, p.name)
		recordError(span, err)
		return err
	}
	p.inst.debug("puppet updated", zap.String("name", p.name))
	return nil
}

// Draw renders the puppet with the native rendering backend. It requires
// CapRender on the Instance.
func (p *Puppet) Draw(ctx context.Context) error {
	if p.closed {
		return errors.Closed(errors.PhaseDraw, "puppet", p.name)
	}
	if !p.inst.caps.Has(inochi2d.CapRender) {
		return errors.Unsupported(errors.PhaseDraw, "rendering backend not enabled")
	}

	ctx, span := p.inst.startPuppetSpan(ctx, "inochi2d.puppet.draw", p.name)
	defer span.End()

	if err := p.inst.lib.PuppetDraw(ctx, p.handle); err != nil {
		err = named(err, p.name)
		recordError(span, err)
		return err
	}
	p.inst.debug("puppet drawn", zap.String("name", p.name))
	return nil
}

// NativeName returns the name stored in the puppet file, or "" if it has
// none. It requires CapPuppetName on the Instance.
func (p *Puppet) NativeName(ctx context.Context) (string, error) {
	if p.closed {
		return "", errors.Closed(errors.PhaseQuery, "puppet", p.name)
	}
	if !p.inst.caps.Has(inochi2d.CapPuppetName) {
		return "", errors.Unsupported(errors.PhaseQuery, "puppet names not enabled")
	}

	rec, err := p.inst.lib.PuppetName(ctx, p.handle)
	if err != nil {
		return "", named(err, p.name)
	}
	if rec == nil {
		return "", nil
	}
	text, err := rec.Text()
	if err != nil {
		return "", errors.Undecodable(errors.PhaseQuery, p.name, err)
	}
	return text, nil
}

// Close releases the native handle. Calling Close again does nothing.
func (p *Puppet) Close(ctx context.Context) error {
	if p.closed {
		return nil
	}
	_, err := p.inst.table.Remove(ctx, p.slot)
	return err
}

// Release implements resource.Releaser. It is called by the table exactly
// once, from Close or from Instance.Close.
func (p *Puppet) Release(ctx context.Context) error {
	if p.closed {
		return nil
	}
	p.closed = true
	h := p.handle
	p.handle = 0

	ctx, span := p.inst.startPuppetSpan(ctx, "inochi2d.puppet.destroy", p.name)
	defer span.End()

	if err := p.inst.lib.PuppetDestroy(ctx, h); err != nil {
		err = named(err, p.name)
		recordError(span, err)
		p.inst.logger.Warn("puppet release failed", zap.String("name", p.name), zap.Error(err))
		return err
	}
	p.inst.debug("puppet released", zap.String("name", p.name), zap.Uint32("handle", uint32(h)))
	return nil
}
