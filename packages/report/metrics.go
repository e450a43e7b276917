package report

import (
	"strconv"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const maxLatencyUs = 60_000_000

// ResponseTimes collects dispatch latencies.
type ResponseTimes struct {
	mu sync.Mutex
	// Histogram: 1us to 60s range, 3 significant digits
	histogram *hdrhistogram.Histogram
}

func NewResponseTimes() *ResponseTimes {
	return &ResponseTimes{
		histogram: hdrhistogram.New(1, maxLatencyUs, 3),
	}
}

// Record records one latency, clamped to the histogram range.
func (r *ResponseTimes) Record(d time.Duration) {
	latencyUs := d.Microseconds()
	if latencyUs < 1 {
		latencyUs = 1
	}
	if latencyUs > maxLatencyUs {
		latencyUs = maxLatencyUs
	}

	r.mu.Lock()
	_ = r.histogram.RecordValue(latencyUs)
	r.mu.Unlock()
}

func (r *ResponseTimes) Count() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.histogram.TotalCount()
}

func (r *ResponseTimes) Mean() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Duration(r.histogram.Mean()) * time.Microsecond
}

func (r *ResponseTimes) Percentile(p float64) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Duration(r.histogram.ValueAtQuantile(p)) * time.Microsecond
}

func formatMs(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
}
