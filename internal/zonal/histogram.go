package zonal

import "math"

// binWidth returns the value span of one bucket. A single bucket is treated
// as one unit wide.
func (h Histogram) binWidth() float64 {
	if len(h.Counts) > 1 {
		return (h.Max - h.Min) / float64(len(h.Counts))
	}
	return 1
}

// BucketCenter returns the value at the centre of bucket i.
func (h Histogram) BucketCenter(i int) float64 {
	return h.Min + (float64(i)+0.5)*h.binWidth()
}

// Total returns the sum of all bucket counts.
func (h Histogram) Total() float64 {
	var t float64
	for _, c := range h.Counts {
		t += c
	}
	return t
}

// ClassCounts maps each bucket centre to the nearest integer class and sums
// counts per class. Classes outside [lo, hi] are dropped. The result is
// indexed by class-lo.
func (h Histogram) ClassCounts(lo, hi int) []float64 {
	if hi < lo {
		return nil
	}
	out := make([]float64, hi-lo+1)
	for i, c := range h.Counts {
		class := int(math.Round(h.BucketCenter(i)))
		if class < lo || class > hi {
			continue
		}
		out[class-lo] += c
	}
	return out
}

// ClassDistribution normalises ClassCounts(lo, hi) to fractions summing to 1.
// When no counts fall inside [lo, hi], fallback is returned instead; it is
// copied so callers may modify the result.
func (h Histogram) ClassDistribution(lo, hi int, fallback []float64) []float64 {
	counts := h.ClassCounts(lo, hi)
	var total float64
	for _, c := range counts {
		total += c
	}
	if total <= 0 {
		return append([]float64(nil), fallback...)
	}
	for i := range counts {
		counts[i] /= total
	}
	return counts
}

// RangeDistribution assigns each bucket centre to the first range whose
// upper bound it is below; values at or above the last bound go to an
// overflow range. ok is false when the histogram is empty.
func (h Histogram) RangeDistribution(upper []float64) (fractions []float64, ok bool) {
	counts := make([]float64, len(upper)+1)
	var total float64
	for i, c := range h.Counts {
		v := h.BucketCenter(i)
		idx := len(upper)
		for j, u := range upper {
			if v < u {
				idx = j
				break
			}
		}
		counts[idx] += c
		total += c
	}
	if total <= 0 {
		return counts, false
	}
	for i := range counts {
		counts[i] /= total
	}
	return counts, true
}
