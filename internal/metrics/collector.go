// Package metrics exports engine activity as Prometheus metrics.
//
// A Collector watches an event bus and style load results. Register it with
// a prometheus.Registerer, Attach it to the map's bus and pass
// ObserveStyle to engine.WithStyleObserver.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/Iron-Ham/mapcore/internal/event"
	"github.com/Iron-Ham/mapcore/internal/style"
)

// DefaultNamespace prefixes metric names when none is given.
const DefaultNamespace = "mapcore"

// Collector counts bus events, failures and style loads.
type Collector struct {
	events        *prometheus.CounterVec
	errors        *prometheus.CounterVec
	layerErrors   *prometheus.CounterVec
	pluginErrors  *prometheus.CounterVec
	styleLoads    *prometheus.CounterVec
	styleDuration *prometheus.HistogramVec
	styleAttempts prometheus.Histogram
	layers        prometheus.Gauge
	plugins       prometheus.Gauge
	ready         prometheus.Gauge

	mu       sync.Mutex
	detaches []func()
}

// NewCollector creates a collector whose metric names start with
// namespace. An empty namespace means DefaultNamespace.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Collector{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events published on the map bus, by type.",
		}, []string{"type"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "map.error events, by category and code.",
		}, []string{"category", "code"}),
		layerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "layer",
			Name:      "errors_total",
			Help:      "Layer apply, remove and update failures, by code.",
		}, []string{"code"}),
		pluginErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "plugin",
			Name:      "errors_total",
			Help:      "Plugin hook failures, by plugin and hook.",
		}, []string{"plugin", "hook"}),
		styleLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "style",
			Name:      "loads_total",
			Help:      "Basemap loads, by basemap and result.",
		}, []string{"basemap", "result"}),
		styleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "style",
			Name:      "load_duration_seconds",
			Help:      "Time spent loading a basemap, including retries and rollback.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"result"}),
		styleAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "style",
			Name:      "load_attempts",
			Help:      "Attempts made per basemap load.",
			Buckets:   prometheus.LinearBuckets(1, 1, 5),
		}),
		layers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "layer",
			Name:      "registered",
			Help:      "Layers currently registered.",
		}),
		plugins: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "plugin",
			Name:      "registered",
			Help:      "Plugins currently registered.",
		}),
		ready: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ready",
			Help:      "1 while the map is ready.",
		}),
	}
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.events, c.errors, c.layerErrors, c.pluginErrors,
		c.styleLoads, c.styleDuration, c.styleAttempts,
		c.layers, c.plugins, c.ready,
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.collectors() {
		m.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, m := range c.collectors() {
		m.Collect(ch)
	}
}

// Attach subscribes to every event on bus. The returned func detaches.
func (c *Collector) Attach(bus *event.Bus) func() {
	id := bus.SubscribeAll(c.observe)
	detach := func() { bus.Unsubscribe(id) }

	c.mu.Lock()
	c.detaches = append(c.detaches, detach)
	c.mu.Unlock()
	return detach
}

// Detach removes every bus subscription made by Attach.
func (c *Collector) Detach() {
	c.mu.Lock()
	detaches := c.detaches
	c.detaches = nil
	c.mu.Unlock()
	for _, fn := range detaches {
		fn()
	}
}

func (c *Collector) observe(e event.Event) {
	c.events.WithLabelValues(e.EventType()).Inc()

	switch ev := e.(type) {
	case event.ErrorEvent:
		c.errors.WithLabelValues(ev.Category, ev.Code).Inc()
	case event.LayerErrorEvent:
		c.layerErrors.WithLabelValues(ev.Code).Inc()
	case event.PluginErrorEvent:
		c.pluginErrors.WithLabelValues(ev.PluginID, ev.Hook).Inc()
	case event.LayerEvent:
		switch ev.EventType() {
		case event.TypeLayerAdded:
			c.layers.Inc()
		case event.TypeLayerRemoved:
			c.layers.Dec()
		}
	case event.PluginEvent:
		switch ev.EventType() {
		case event.TypePluginRegistered:
			c.plugins.Inc()
		case event.TypePluginUnregistered:
			c.plugins.Dec()
		}
	case event.LifecycleChangedEvent:
		if ev.To == "ready" {
			c.ready.Set(1)
		} else {
			c.ready.Set(0)
		}
	}
}

// ObserveStyle records a style load. It matches style.Observer.
func (c *Collector) ObserveStyle(res style.Result) {
	result := "success"
	switch {
	case res.Err != nil && res.RolledBack:
		result = "rolled_back"
	case res.Err != nil:
		result = "failure"
	}
	c.styleLoads.WithLabelValues(res.Basemap, result).Inc()
	c.styleDuration.WithLabelValues(result).Observe(res.Duration.Seconds())
	c.styleAttempts.Observe(float64(res.Attempts))
}

// Stats is a point-in-time summary for display.
type Stats struct {
	Events       float64
	Errors       float64
	LayerErrors  float64
	PluginErrors float64
	StyleLoads   float64
	StyleFailed  float64
	Layers       float64
	Plugins      float64
	Ready        bool
}

// Stats sums the collector's metrics.
func (c *Collector) Stats() Stats {
	s := Stats{
		Events:       sumCounters(c.events),
		Errors:       sumCounters(c.errors),
		LayerErrors:  sumCounters(c.layerErrors),
		PluginErrors: sumCounters(c.pluginErrors),
		StyleLoads:   sumCounters(c.styleLoads),
		Layers:       gaugeValue(c.layers),
		Plugins:      gaugeValue(c.plugins),
		Ready:        gaugeValue(c.ready) == 1,
	}
	s.StyleFailed = s.StyleLoads - sumMatching(c.styleLoads, "result", "success")
	return s
}

func sumCounters(v prometheus.Collector) float64 {
	return sumMatching(v, "", "")
}

// sumMatching adds every counter in v whose label name equals value. An
// empty name matches all.
func sumMatching(v prometheus.Collector, name, value string) float64 {
	ch := make(chan prometheus.Metric, 64)
	go func() {
		v.Collect(ch)
		close(ch)
	}()

	var total float64
	for m := range ch {
		var pb dto.Metric
		if err := m.Write(&pb); err != nil {
			continue
		}
		if name != "" && !hasLabel(&pb, name, value) {
			continue
		}
		total += pb.GetCounter().GetValue()
	}
	return total
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

func gaugeValue(g prometheus.Gauge) float64 {
	var pb dto.Metric
	if err := g.Write(&pb); err != nil {
		return 0
	}
	return pb.GetGauge().GetValue()
}
