// Package metrics exports puppet and scene lifecycles as Prometheus metrics.
package metrics

import (
	stderrors "errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thog/inochi2d-go/errors"
	"github.com/Thog/inochi2d-go/resource"
)

// Collector counts native resources as they are created and released.
// Pass it to runtime.WithObserver.
type Collector struct {
	registry     *prometheus.Registry
	live         *prometheus.GaugeVec
	created      *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	loadFailures *prometheus.CounterVec
}

// NewCollector registers the metrics with reg. A nil reg gets a fresh registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: reg,
		live: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "inochi2d_live_resources",
				Help: "Native resources currently held",
			},
			[]string{"type"},
		),
		created: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inochi2d_resources_created_total",
				Help: "Native resources created",
			},
			[]string{"type"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inochi2d_resources_released_total",
				Help: "Native resources released",
			},
			[]string{"type", "result"}, // "ok", "error"
		),
		loadFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inochi2d_load_failures_total",
				Help: "Puppet loads that did not produce a handle",
			},
			[]string{"kind"},
		),
	}

	reg.MustRegister(c.live, c.created, c.dropped, c.loadFailures)
	return c
}

// OnResourceEvent implements resource.Observer.
func (c *Collector) OnResourceEvent(e resource.Event) {
	typ := e.TypeID.String()
	switch e.Type {
	case resource.EventCreated:
		c.created.WithLabelValues(typ).Inc()
		c.live.WithLabelValues(typ).Inc()
	case resource.EventDropped:
		result := "ok"
		if e.Err != nil {
			result = "error"
		}
		c.dropped.WithLabelValues(typ, result).Inc()
		c.live.WithLabelValues(typ).Dec()
	}
}

// LoadFailed records a failed puppet construction by error kind.
func (c *Collector) LoadFailed(err error) {
	kind := "unknown"
	var e *errors.Error
	if stderrors.As(err, &e) {
		kind = string(e.Kind)
	}
	c.loadFailures.WithLabelValues(kind).Inc()
}

// Registry returns the registry the metrics live in.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
