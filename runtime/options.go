package runtime

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	inochi2d "github.com/Thog/inochi2d-go"
	"github.com/Thog/inochi2d-go/resource"
)

const tracerName = "github.com/Thog/inochi2d-go/runtime"

// Option configures an Instance.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	tracer    trace.Tracer
	observers []resource.Observer
	caps      inochi2d.Capabilities
}

func defaultOptions() options {
	return options{
		logger: Logger(),
		tracer: otel.Tracer(tracerName),
	}
}

// WithCapabilities enables optional features. CapRender and CapPuppetName
// must be supported by the library; CapDiagnostics is handled here.
func WithCapabilities(caps inochi2d.Capabilities) Option {
	return func(o *options) {
		o.caps |= caps
	}
}

// WithLogger sets the instance logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracer wraps native calls in spans started from t.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithObserver subscribes o to puppet and scene lifecycle events.
// If o also implements LoadObserver it is told about failed loads.
func WithObserver(o resource.Observer) Option {
	return func(opts *options) {
		if o != nil {
			opts.observers = append(opts.observers, o)
		}
	}
}

// LoadObserver is notified when a puppet cannot be constructed.
type LoadObserver interface {
	LoadFailed(err error)
}
