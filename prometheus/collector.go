// Package prometheus exports the authentication stats of a mongo.Authenticator
// as Prometheus metrics.
package prometheus

import (
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"
	mongo "github.com/segmentio/mongo-go"
)

// StatsSource is implemented by *mongo.Authenticator. Each call to Stats
// returns the values observed since the previous call.
type StatsSource interface {
	Stats() mongo.AuthStats
}

// Collector accumulates the stats snapshots of a source into monotonic
// counters. A source must be exported by a single Collector, and Stats must
// not be called elsewhere, otherwise observations are lost.
type Collector struct {
	source StatsSource

	mutex  sync.Mutex
	totals totals

	attempts     *prom.Desc
	successes    *prom.Desc
	failures     *prom.Desc
	callbackTime *prom.Desc
	roundTrip    *prom.Desc
}

type totals struct {
	attempts  float64
	successes float64
	failures  map[string]float64

	callbackCount   uint64
	callbackSeconds float64
	roundTripCount  uint64
	roundTripSecs   float64
}

// NewCollector returns a Collector reading the stats of source. The labels
// are attached to every metric, they usually identify the client.
func NewCollector(source StatsSource, labels prom.Labels) *Collector {
	desc := func(name, help string, variable ...string) *prom.Desc {
		return prom.NewDesc(prom.BuildFQName("mongo", "auth", name), help, variable, labels)
	}
	return &Collector{
		source: source,
		totals: totals{failures: make(map[string]float64)},

		attempts:     desc("attempts_total", "Number of authentication attempts."),
		successes:    desc("successes_total", "Number of successful authentications."),
		failures:     desc("failures_total", "Number of failed authentications by error class.", "reason"),
		callbackTime: desc("callback_seconds", "Time spent in the OIDC callback."),
		roundTrip:    desc("roundtrip_seconds", "Time spent in the SASL conversation with the server."),
	}
}

// Describe satisfies the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prom.Desc) {
	ch <- c.attempts
	ch <- c.successes
	ch <- c.failures
	ch <- c.callbackTime
	ch <- c.roundTrip
}

// Collect satisfies the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prom.Metric) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	s := c.source.Stats()
	t := &c.totals
	t.attempts += float64(s.Attempts)
	t.successes += float64(s.Successes)
	t.failures["callback_failed"] += float64(s.CallbackFailures)
	t.failures["callback_timeout"] += float64(s.CallbackTimeouts)
	t.failures["protocol_violation"] += float64(s.ProtocolViolations)
	t.failures["transport_failure"] += float64(s.TransportFailures)
	t.callbackCount += uint64(s.CallbackTime.Count)
	t.callbackSeconds += s.CallbackTime.Avg.Seconds() * float64(s.CallbackTime.Count)
	t.roundTripCount += uint64(s.RoundTripTime.Count)
	t.roundTripSecs += s.RoundTripTime.Avg.Seconds() * float64(s.RoundTripTime.Count)

	ch <- prom.MustNewConstMetric(c.attempts, prom.CounterValue, t.attempts)
	ch <- prom.MustNewConstMetric(c.successes, prom.CounterValue, t.successes)
	for _, reason := range [...]string{"callback_failed", "callback_timeout", "protocol_violation", "transport_failure"} {
		ch <- prom.MustNewConstMetric(c.failures, prom.CounterValue, t.failures[reason], reason)
	}
	ch <- prom.MustNewConstSummary(c.callbackTime, t.callbackCount, t.callbackSeconds, nil)
	ch <- prom.MustNewConstSummary(c.roundTrip, t.roundTripCount, t.roundTripSecs, nil)
}
