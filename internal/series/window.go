package series

// Window is the trailing, missing-free view of a buffer used for a trend fit.
type Window struct {
	Times  []float64
	Values []float64
}

// Len returns the number of points in the window.
func (w Window) Len() int {
	return len(w.Times)
}

// Select returns the samples within [latest-duration, latest] whose timestamp
// and value are both present, oldest first. duration is in days, the unit of
// Sample.Time. When the newest timestamp is missing the window is empty.
func Select(b *Buffer, duration float64) Window {
	latest, ok := b.Latest()
	if !ok || IsMissing(latest.Time) {
		return Window{Times: []float64{}, Values: []float64{}}
	}

	cutoff := latest.Time - duration

	// Walk back from the newest entry; the buffer is time ordered, so the
	// first timestamp before the cutoff ends the window.
	first := b.Len()
	for i := b.Len() - 1; i >= 0; i-- {
		s := b.At(i)
		if IsMissing(s.Time) {
			continue
		}
		if s.Time < cutoff {
			break
		}
		first = i
	}

	w := Window{
		Times:  make([]float64, 0, b.Len()-first),
		Values: make([]float64, 0, b.Len()-first),
	}
	for i := first; i < b.Len(); i++ {
		s := b.At(i)
		if IsMissing(s.Time) || IsMissing(s.Value) {
			continue
		}
		if s.Time < cutoff || s.Time > latest.Time {
			continue
		}
		w.Times = append(w.Times, s.Time)
		w.Values = append(w.Values, s.Value)
	}

	return w
}
