package render

import "math"

const (
	DefaultMinPower = -120.0 // dB
	DefaultMaxPower = -20.0  // dB

	// minimumRange is the narrowest span returned by PowerHistogram.Bounds, in dB
	minimumRange = 30

	// For 20 samples the 5th percentile is the 1st sample and the 95th the 19th
	minimumSampleCount = 20
)

// PowerBounds is the power range mapped onto the colour table.
type PowerBounds struct {
	Min  float64 // dB
	Max  float64 // dB
	Mean float64 // dB
}

func DefaultPowerBounds() PowerBounds {
	return PowerBounds{
		Min:  DefaultMinPower,
		Max:  DefaultMaxPower,
		Mean: (DefaultMinPower + DefaultMaxPower) / 2,
	}
}

// PowerHistogram counts power levels in 1 dB bins.
type PowerHistogram struct {
	bins   map[int]uint64
	total  uint64
	minBin int
	maxBin int
}

func NewPowerHistogram() *PowerHistogram {
	h := PowerHistogram{}
	h.Clear()
	return &h
}

// Update adds a power level. NaN and infinite values are ignored.
func (h *PowerHistogram) Update(power float64) {
	if math.IsNaN(power) || math.IsInf(power, 0) {
		return
	}

	bin := int(math.Floor(power))
	h.bins[bin]++
	h.total++

	h.minBin = min(h.minBin, bin)
	h.maxBin = max(h.maxBin, bin)
}

// UpdateAll adds every level of values.
func (h *PowerHistogram) UpdateAll(values []float64) {
	for _, v := range values {
		h.Update(v)
	}
}

func (h *PowerHistogram) Count() uint64 {
	return h.total
}

func (h *PowerHistogram) Clear() {
	h.bins = make(map[int]uint64)
	h.total = 0
	h.minBin = math.MaxInt32
	h.maxBin = math.MinInt32
}

// Bounds returns the 5th to 95th percentile range widened to at least 30 dB and
// padded by a 10% margin. Below 20 samples the default bounds are returned.
func (h *PowerHistogram) Bounds() PowerBounds {
	if h.total < minimumSampleCount {
		return DefaultPowerBounds()
	}

	target := h.total * 5 / 100

	var count uint64
	low := h.minBin
	for bin := h.minBin; bin <= h.maxBin; bin++ {
		count += h.bins[bin]
		if count >= target {
			low = bin
			break
		}
	}

	count = 0
	high := h.maxBin
	for bin := h.maxBin; bin >= h.minBin; bin-- {
		count += h.bins[bin]
		if count >= target {
			high = bin
			break
		}
	}

	var sum float64
	for bin, n := range h.bins {
		sum += float64(bin) * float64(n)
	}

	if high-low < minimumRange {
		center := (high + low) / 2
		low = center - minimumRange/2
		high = center + minimumRange/2
	}

	margin := (high - low) / 10
	return PowerBounds{
		Min:  float64(low - margin),
		Max:  float64(high + margin),
		Mean: sum / float64(h.total),
	}
}

// SmoothBounds follows the histogram bounds with exponential smoothing, for
// renderers that redraw as data arrives.
type SmoothBounds struct {
	hist    *PowerHistogram
	alpha   float64
	current PowerBounds
}

// NewSmoothBounds creates a smoother with factor alpha in (0, 1]; higher values
// follow the data faster.
func NewSmoothBounds(alpha float64) *SmoothBounds {
	return &SmoothBounds{
		hist:    NewPowerHistogram(),
		alpha:   min(max(alpha, 0.01), 1),
		current: DefaultPowerBounds(),
	}
}

// Update folds values into the histogram and returns the smoothed bounds.
func (s *SmoothBounds) Update(values []float64) PowerBounds {
	if len(values) == 0 {
		return s.current
	}

	s.hist.UpdateAll(values)
	next := s.hist.Bounds()

	s.current.Min = s.current.Min*(1-s.alpha) + next.Min*s.alpha
	s.current.Max = s.current.Max*(1-s.alpha) + next.Max*s.alpha
	s.current.Mean = next.Mean
	return s.current
}

func (s *SmoothBounds) Current() PowerBounds {
	return s.current
}

func (s *SmoothBounds) Clear() {
	s.hist.Clear()
	s.current = DefaultPowerBounds()
}
