// Package diag counts the failures Kai recovers from so they stay visible
// even though the user only ever sees a fallback reply.
package diag

import (
	"errors"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Kind names the stage that failed.
type Kind string

const (
	KindReply      Kind = "reply"
	KindTTS        Kind = "tts"
	KindClassifier Kind = "classifier"
	KindBridge     Kind = "bridge"
	KindLaunch     Kind = "launch"
)

const (
	errorsMetric = "kai_errors_total"
	eventsMetric = "kai_events_total"
)

// Counters holds error and event counts in a private Prometheus registry.
// The zero value is ready to use.
type Counters struct {
	once     sync.Once
	registry *prometheus.Registry
	errors   *prometheus.CounterVec
	events   *prometheus.CounterVec
}

// New returns an empty counter set.
func New() *Counters {
	c := &Counters{}
	c.init()
	return c
}

func (c *Counters) init() {
	c.once.Do(func() {
		c.registry = prometheus.NewRegistry()
		c.errors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: errorsMetric,
			Help: "Recovered failures by stage and reason.",
		}, []string{"kind", "reason"})
		c.events = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: eventsMetric,
			Help: "Pipeline events.",
		}, []string{"event"})
		c.registry.MustRegister(c.errors, c.events)
	})
}

// Error records one failure of the given kind. reason is a short
// classification such as "quota" or "timeout"; empty becomes "other".
func (c *Counters) Error(kind Kind, reason string) {
	if c == nil {
		return
	}
	if reason == "" {
		reason = "other"
	}
	c.init()
	c.errors.WithLabelValues(string(kind), reason).Inc()
}

// Event records one occurrence of a named event, e.g. "frames_dropped".
func (c *Counters) Event(name string) {
	if c == nil {
		return
	}
	c.init()
	c.events.WithLabelValues(name).Inc()
}

// Gauge registers a gauge sampled from fn on every scrape. Registering the
// same name twice keeps the first one.
func (c *Counters) Gauge(name, help string, fn func() float64) error {
	if c == nil {
		return nil
	}
	c.init()
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn)
	if err := c.registry.Register(g); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return nil
		}
		return err
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Counters) Handler() http.Handler {
	if c == nil {
		c = New()
	}
	c.init()
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Errors returns the total failures recorded for kind.
func (c *Counters) Errors(kind Kind) int64 {
	var n int64
	c.each(errorsMetric, func(labels map[string]string, v float64) {
		if labels["kind"] == string(kind) {
			n += int64(v)
		}
	})
	return n
}

// Events returns the count for a named event.
func (c *Counters) Events(name string) int64 {
	var n int64
	c.each(eventsMetric, func(labels map[string]string, v float64) {
		if labels["event"] == name {
			n += int64(v)
		}
	})
	return n
}

// Snapshot contains a point-in-time copy of every counter.
type Snapshot struct {
	Errors map[string]int64 `json:"errors"`
	Events map[string]int64 `json:"events"`
}

// Snapshot copies the counters. Error keys are "kind/reason".
func (c *Counters) Snapshot() Snapshot {
	s := Snapshot{Errors: map[string]int64{}, Events: map[string]int64{}}
	c.each(errorsMetric, func(labels map[string]string, v float64) {
		s.Errors[labels["kind"]+"/"+labels["reason"]] = int64(v)
	})
	c.each(eventsMetric, func(labels map[string]string, v float64) {
		s.Events[labels["event"]] = int64(v)
	})
	return s
}

// each calls fn for every sample of the named counter family.
func (c *Counters) each(family string, fn func(labels map[string]string, v float64)) {
	if c == nil {
		return
	}
	c.init()
	families, err := c.registry.Gather()
	if err != nil {
		return
	}
	for _, mf := range families {
		if mf.GetName() != family {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			fn(labels, m.GetCounter().GetValue())
		}
	}
}
