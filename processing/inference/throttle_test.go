package inference

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(base time.Time, seconds float64) time.Time {
	return base.Add(time.Duration(seconds * float64(time.Second)))
}

func TestThrottleSequences(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		times []float64
		want  []bool
	}{
		{"inside interval", []float64{0.00, 0.05}, []bool{true, false}},
		{"past interval", []float64{0.00, 0.12}, []bool{true, true}},
		{"exactly interval", []float64{0.00, 0.10}, []bool{true, true}},
		{"skip does not reset", []float64{0.00, 0.05, 0.09, 0.10, 0.15, 0.21}, []bool{true, false, false, true, false, true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := NewThrottle(100 * time.Millisecond)
			var got []bool
			for _, s := range tt.times {
				got = append(got, th.Try(at(base, s)))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestThrottleAllowDoesNotMark(t *testing.T) {
	base := time.Now()
	th := NewThrottle(time.Second)

	assert.True(t, th.Allow(base))
	assert.True(t, th.Allow(base))

	th.Mark(base)
	assert.False(t, th.Allow(base.Add(999*time.Millisecond)))
	assert.True(t, th.Allow(base.Add(time.Second)))
}
