package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicyDelaySequence(t *testing.T) {
	p := DefaultPolicy()
	expected := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
		30 * time.Second, 30 * time.Second, 30 * time.Second, 30 * time.Second, 30 * time.Second,
	}
	var got []time.Duration
	for attempt := 1; attempt <= p.MaxRetries; attempt++ {
		got = append(got, p.Delay(attempt))
	}
	assert.Equal(t, expected, got)
	assert.Zero(t, p.Delay(0))
}

func TestPolicyBackOffMatchesDelay(t *testing.T) {
	p := DefaultPolicy()
	b := p.NewBackOff()
	for attempt := 1; attempt <= 12; attempt++ {
		assert.Equal(t, p.Delay(attempt), b.NextBackOff(), "attempt %d", attempt)
	}

	b.Reset()
	assert.Equal(t, time.Second, b.NextBackOff(), "reset starts over at the base delay")
}

func TestPolicyCustomValues(t *testing.T) {
	p := Policy{MaxRetries: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 250 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 250*time.Millisecond, p.Delay(3))
	assert.Equal(t, 250*time.Millisecond, p.Delay(4))
}
