// Package metrics exposes Prometheus collectors for instrument round trips and
// buffered decode sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Round trip kinds.
const (
	KindCommand = "command"
	KindQuery   = "query"
)

// Error kinds.
const (
	ErrorConnection = "connection"
	ErrorProtocol   = "protocol"
	ErrorRecord     = "record"
)

// Collector groups the driver's metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	roundTrips *prometheus.CounterVec
	errors     *prometheus.CounterVec
	polls      prometheus.Counter
	emptyPolls prometheus.Counter
	samples    prometheus.Counter
	sessions   prometheus.Histogram
}

// New creates a Collector and registers it with reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		roundTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teslameter_round_trips_total",
			Help: "Instructions written to the instrument.",
		}, []string{"kind"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teslameter_instrument_errors_total",
			Help: "Failed instrument interactions by error kind.",
		}, []string{"kind"}),
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teslameter_polls_total",
			Help: "Batch buffer fetches issued by decode sessions.",
		}),
		emptyPolls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teslameter_empty_polls_total",
			Help: "Batch buffer fetches that returned no records.",
		}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teslameter_samples_decoded_total",
			Help: "Samples parsed from batch buffer records.",
		}),
		sessions: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "teslameter_session_seconds",
			Help:    "Wall clock duration of completed decode sessions.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
	}

	for _, col := range []prometheus.Collector{c.roundTrips, c.errors, c.polls, c.emptyPolls, c.samples, c.sessions} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RoundTrip counts one instruction written, labeled command or query.
func (c *Collector) RoundTrip(kind string) {
	if c == nil {
		return
	}
	c.roundTrips.WithLabelValues(kind).Inc()
}

// Error counts one failure of the given kind.
func (c *Collector) Error(kind string) {
	if c == nil {
		return
	}
	c.errors.WithLabelValues(kind).Inc()
}

// Poll records one batch fetch; empty is true when it carried no records.
func (c *Collector) Poll(empty bool) {
	if c == nil {
		return
	}
	c.polls.Inc()
	if empty {
		c.emptyPolls.Inc()
	}
}

// Samples adds n decoded samples.
func (c *Collector) Samples(n int) {
	if c == nil {
		return
	}
	c.samples.Add(float64(n))
}

// Session observes the length of a completed buffered data session.
func (c *Collector) Session(seconds float64) {
	if c == nil {
		return
	}
	c.sessions.Observe(seconds)
}
