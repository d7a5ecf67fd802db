package prometheus

import (
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	mongo "github.com/segmentio/mongo-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	stats []mongo.AuthStats
}

func (f *fakeSource) Stats() mongo.AuthStats {
	if len(f.stats) == 0 {
		return mongo.AuthStats{}
	}
	s := f.stats[0]
	f.stats = f.stats[1:]
	return s
}

func TestCollectorAccumulates(t *testing.T) {
	source := &fakeSource{stats: []mongo.AuthStats{
		{
			Attempts:          3,
			Successes:         2,
			TransportFailures: 1,
			CallbackTime:      mongo.DurationStats{Avg: 100 * time.Millisecond, Count: 3},
		},
		{
			Attempts:         1,
			CallbackTimeouts: 1,
			CallbackTime:     mongo.DurationStats{Avg: time.Second, Count: 1},
		},
	}}

	c := NewCollector(source, prom.Labels{"client": "billing"})
	registry := prom.NewPedanticRegistry()
	require.NoError(t, registry.Register(c))

	_, err := registry.Gather()
	require.NoError(t, err)

	expected := `
# HELP mongo_auth_attempts_total Number of authentication attempts.
# TYPE mongo_auth_attempts_total counter
mongo_auth_attempts_total{client="billing"} 4
# HELP mongo_auth_failures_total Number of failed authentications by error class.
# TYPE mongo_auth_failures_total counter
mongo_auth_failures_total{client="billing",reason="callback_failed"} 0
mongo_auth_failures_total{client="billing",reason="callback_timeout"} 1
mongo_auth_failures_total{client="billing",reason="protocol_violation"} 0
mongo_auth_failures_total{client="billing",reason="transport_failure"} 1
# HELP mongo_auth_successes_total Number of successful authentications.
# TYPE mongo_auth_successes_total counter
mongo_auth_successes_total{client="billing"} 2
`
	err = testutil.GatherAndCompare(registry, strings.NewReader(expected),
		"mongo_auth_attempts_total",
		"mongo_auth_failures_total",
		"mongo_auth_successes_total",
	)
	assert.NoError(t, err)
}

func TestCollectorCount(t *testing.T) {
	c := NewCollector(&fakeSource{}, nil)
	assert.Equal(t, 8, testutil.CollectAndCount(c))
}
