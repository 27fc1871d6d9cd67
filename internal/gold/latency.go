package gold

import (
	"math"
	"slices"

	"github.com/DataDog/sketches-go/ddsketch"
)

// ExactQuantileLimit is the group size up to which quantiles are computed
// exactly over the kept values. Larger groups switch to the DDSketch.
const ExactQuantileLimit = 8192

// Latency keeps running response-time statistics for one group. Quantiles
// are exact, linearly interpolated between closest ranks, until the group
// outgrows ExactQuantileLimit; after that they come from a DDSketch.
type Latency struct {
	count int64
	sum   float64
	max   uint32

	// values holds every sample while count <= ExactQuantileLimit.
	values []float64

	// nil when percentiles are disabled
	sketch *ddsketch.DDSketch
}

// NewLatency creates a Latency. accuracy <= 0 disables quantiles.
func NewLatency(accuracy float64) (*Latency, error) {
	l := &Latency{}
	if accuracy > 0 {
		sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
		if err != nil {
			return nil, err
		}
		l.sketch = sketch
	}
	return l, nil
}

// Add records one response time in milliseconds.
func (l *Latency) Add(ms uint32) {
	l.count++
	l.sum += float64(ms)
	if ms > l.max {
		l.max = ms
	}
	if l.sketch == nil {
		return
	}
	// DDSketch only rejects negative or non-finite values.
	_ = l.sketch.Add(float64(ms))

	if l.count <= ExactQuantileLimit {
		l.values = append(l.values, float64(ms))
	} else {
		l.values = nil
	}
}

// Count returns the number of values added.
func (l *Latency) Count() int64 { return l.count }

// Avg returns the arithmetic mean, 0 when empty.
func (l *Latency) Avg() float64 {
	if l.count == 0 {
		return 0
	}
	return l.sum / float64(l.count)
}

// Max returns the largest value, 0 when empty.
func (l *Latency) Max() uint32 { return l.max }

// Quantile returns the q-quantile, 0 when empty or disabled.
func (l *Latency) Quantile(q float64) float64 {
	if l.sketch == nil || l.count == 0 {
		return 0
	}
	if l.values != nil {
		return interpolate(l.values, q)
	}
	v, err := l.sketch.GetValueAtQuantile(q)
	if err != nil {
		return 0
	}
	return v
}

// interpolate sorts values in place and interpolates between the two
// closest ranks at position q*(n-1).
func interpolate(values []float64, q float64) float64 {
	slices.Sort(values)
	q = min(max(q, 0), 1)
	pos := q * float64(len(values)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return values[lo] + (pos-float64(lo))*(values[hi]-values[lo])
}
