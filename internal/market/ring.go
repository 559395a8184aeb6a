package market

import (
	"math"
	"sync"
)

// SampleRing keeps the most recent mid prices for volatility estimation.
// Writes overwrite the oldest entry once the window is full.
type SampleRing struct {
	mu    sync.Mutex
	buf   []float64
	next  int
	count int
}

func NewSampleRing(window int) *SampleRing {
	if window < 2 {
		window = 2
	}
	return &SampleRing{buf: make([]float64, window)}
}

func (r *SampleRing) Push(price float64) {
	if price <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = price
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Values returns the samples oldest first.
func (r *SampleRing) Values() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]float64, 0, r.count)
	if r.count < len(r.buf) {
		out = append(out, r.buf[:r.count]...)
		return out
	}
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}

func (r *SampleRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// StdDev is the population standard deviation of the samples. Fewer than
// two samples yield zero.
func StdDev(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	mean := sum / float64(len(samples))
	var variance float64
	for _, v := range samples {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(samples))
	return math.Sqrt(variance)
}
