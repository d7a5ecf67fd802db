package mongo

import (
	"errors"
	"sync/atomic"
	"time"
	"unsafe"
)

// DurationStats is a data structure that carries a summary of observed duration
// values. The average, minimum, maximum, and count are reported.
type DurationStats struct {
	Avg time.Duration `metric:"avg" type:"gauge"`
	Min time.Duration `metric:"min" type:"gauge"`
	Max time.Duration `metric:"max" type:"gauge"`

	Count int64 `metric:"count" type:"counter"`
}

type durationStats struct {
	min   minimum
	max   maximum
	sum   counter
	count counter
}

func makeDurationStats() durationStats {
	return durationStats{
		min: -1,
		max: -1,
	}
}

func (d *durationStats) observe(v time.Duration) {
	d.min.observe(int64(v))
	d.max.observe(int64(v))
	d.sum.observe(int64(v))
	d.count.observe(1)
}

func (d *durationStats) snapshot() DurationStats {
	min := d.min.snapshot()
	max := d.max.snapshot()
	sum := d.sum.snapshot()
	count := d.count.snapshot()
	avg := time.Duration(0)
	if count > 0 {
		avg = time.Duration(float64(sum) / float64(count))
	}
	return DurationStats{
		Avg:   avg,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Count: count,
	}
}

// counter is an atomic incrementing counter which gets reset on snapshot.
type counter int64

func (c *counter) ptr() *int64 {
	return (*int64)(unsafe.Pointer(c))
}

func (c *counter) observe(v int64) {
	atomic.AddInt64(c.ptr(), v)
}

func (c *counter) snapshot() int64 {
	p := c.ptr()
	v := atomic.LoadInt64(p)
	atomic.AddInt64(p, -v)
	return v
}

// minimum is an atomic integral type that keeps track of the minimum of all
// values that it observed between snapshots.
type minimum int64

func (m *minimum) ptr() *int64 {
	return (*int64)(unsafe.Pointer(m))
}

func (m *minimum) observe(v int64) {
	for {
		ptr := m.ptr()
		min := atomic.LoadInt64(ptr)

		if min >= 0 && min <= v {
			break
		}

		if atomic.CompareAndSwapInt64(ptr, min, v) {
			break
		}
	}
}

func (m *minimum) snapshot() int64 {
	p := m.ptr()
	v := atomic.LoadInt64(p)
	atomic.CompareAndSwapInt64(p, v, -1)
	if v < 0 {
		v = 0
	}
	return v
}

// maximum is an atomic integral type that keeps track of the maximum of all
// values that it observed between snapshots.
type maximum int64

func (m *maximum) ptr() *int64 {
	return (*int64)(unsafe.Pointer(m))
}

func (m *maximum) observe(v int64) {
	for {
		ptr := m.ptr()
		max := atomic.LoadInt64(ptr)

		if max >= 0 && max >= v {
			break
		}

		if atomic.CompareAndSwapInt64(ptr, max, v) {
			break
		}
	}
}

func (m *maximum) snapshot() int64 {
	p := m.ptr()
	v := atomic.LoadInt64(p)
	atomic.CompareAndSwapInt64(p, v, -1)
	if v < 0 {
		v = 0
	}
	return v
}

// AuthStats is a data structure returned by a call to Authenticator.Stats that
// exposes details about the authentication attempts made since the previous
// call. Counters are reset after each snapshot.
type AuthStats struct {
	Attempts           int64 `metric:"mongo.auth.attempt.count"            type:"counter"`
	Successes          int64 `metric:"mongo.auth.success.count"            type:"counter"`
	CallbackFailures   int64 `metric:"mongo.auth.callback.failure.count"   type:"counter"`
	CallbackTimeouts   int64 `metric:"mongo.auth.callback.timeout.count"   type:"counter"`
	ProtocolViolations int64 `metric:"mongo.auth.protocol.violation.count" type:"counter"`
	TransportFailures  int64 `metric:"mongo.auth.transport.failure.count"  type:"counter"`

	CallbackTime  DurationStats `metric:"mongo.auth.callback.seconds"`
	RoundTripTime DurationStats `metric:"mongo.auth.roundtrip.seconds"`
}

type authStats struct {
	attempts           counter
	successes          counter
	callbackFailures   counter
	callbackTimeouts   counter
	protocolViolations counter
	transportFailures  counter

	callbackTime  durationStats
	roundTripTime durationStats
}

func makeAuthStats() authStats {
	return authStats{
		callbackTime:  makeDurationStats(),
		roundTripTime: makeDurationStats(),
	}
}

func (s *authStats) observeError(err error) {
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		return
	}
	switch authErr.Code {
	case CallbackFailed:
		s.callbackFailures.observe(1)
	case CallbackTimeout:
		s.callbackTimeouts.observe(1)
	case ProtocolViolation:
		s.protocolViolations.observe(1)
	case TransportFailure:
		s.transportFailures.observe(1)
	}
}

func (s *authStats) snapshot() AuthStats {
	return AuthStats{
		Attempts:           s.attempts.snapshot(),
		Successes:          s.successes.snapshot(),
		CallbackFailures:   s.callbackFailures.snapshot(),
		CallbackTimeouts:   s.callbackTimeouts.snapshot(),
		ProtocolViolations: s.protocolViolations.snapshot(),
		TransportFailures:  s.transportFailures.snapshot(),
		CallbackTime:       s.callbackTime.snapshot(),
		RoundTripTime:      s.roundTripTime.snapshot(),
	}
}
