package mongo

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDurationStats(t *testing.T) {
	d := makeDurationStats()
	assert.Equal(t, DurationStats{}, d.snapshot())

	d.observe(1 * time.Second)
	d.observe(3 * time.Second)
	d.observe(2 * time.Second)

	assert.Equal(t, DurationStats{
		Avg:   2 * time.Second,
		Min:   1 * time.Second,
		Max:   3 * time.Second,
		Count: 3,
	}, d.snapshot())

	assert.Equal(t, DurationStats{}, d.snapshot(), "snapshot must reset the stats")
}

func TestAuthStatsObserveError(t *testing.T) {
	s := makeAuthStats()

	s.observeError(makeError(CallbackFailed, "", nil))
	s.observeError(makeError(CallbackTimeout, "", nil))
	s.observeError(fmt.Errorf("wrapped: %w", makeError(ProtocolViolation, "", nil)))
	s.observeError(makeError(TransportFailure, "", nil))
	s.observeError(makeError(TransportFailure, "", nil))
	s.observeError(errors.New("not an authentication error"))

	stats := s.snapshot()
	assert.Equal(t, int64(1), stats.CallbackFailures)
	assert.Equal(t, int64(1), stats.CallbackTimeouts)
	assert.Equal(t, int64(1), stats.ProtocolViolations)
	assert.Equal(t, int64(2), stats.TransportFailures)

	assert.Equal(t, AuthStats{}, s.snapshot())
}
