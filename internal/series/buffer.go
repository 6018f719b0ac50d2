// Package series holds the rolling sample history and the trailing
// window view the trend estimator consumes.
package series

import (
	"math"
	"time"

	"codeberg.org/mutker/thermotrend/internal/errors"
	"github.com/gammazero/deque"
)

// Missing marks an absent value or timestamp.
var Missing = math.NaN()

// IsMissing reports whether v is the missing sentinel.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

const nanosPerDay = 24 * float64(time.Hour)

// DayNumber converts t to fractional days since the Unix epoch.
func DayNumber(t time.Time) float64 {
	return float64(t.UnixNano()) / nanosPerDay
}

// TimeOf is the inverse of DayNumber.
func TimeOf(day float64) time.Time {
	return time.Unix(0, int64(math.Round(day*nanosPerDay)))
}

// Sample is one reading; Time is fractional days since the Unix epoch.
type Sample struct {
	Time  float64
	Value float64
}

// Buffer is a fixed-capacity, time-ordered history. Position 0 is the
// oldest entry and position Len()-1 the newest; inserting drops the oldest.
// Buffer is not safe for concurrent use.
type Buffer struct {
	capacity int
	samples  deque.Deque[Sample]
}

// New returns a buffer of the given capacity filled with missing samples.
func New(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}

	b := &Buffer{capacity: capacity}
	for i := 0; i < capacity; i++ {
		b.samples.PushBack(Sample{Time: Missing, Value: Missing})
	}

	return b
}

// Restore builds a buffer from persisted parallel sequences. The sequences
// must have equal length, and that length must equal capacity.
func Restore(capacity int, timestamps, values []float64) (*Buffer, error) {
	errFactory := errors.New()

	if len(timestamps) != len(values) {
		return nil, errFactory.WithData(errors.ErrShapeMismatch, struct {
			Timestamps int
			Values     int
		}{
			Timestamps: len(timestamps),
			Values:     len(values),
		})
	}
	if len(timestamps) != capacity {
		return nil, errFactory.WithData(errors.ErrCapacityMismatch, struct {
			Length   int
			Capacity int
		}{
			Length:   len(timestamps),
			Capacity: capacity,
		})
	}

	b := &Buffer{capacity: capacity}
	for i := range timestamps {
		b.samples.PushBack(Sample{Time: timestamps[i], Value: values[i]})
	}

	return b, nil
}

// RestoreResized is Restore with a right-aligned resize: when the persisted
// sequences are longer than capacity the oldest entries are dropped, when
// shorter the front is padded with missing samples.
func RestoreResized(capacity int, timestamps, values []float64) (*Buffer, error) {
	if len(timestamps) != len(values) {
		return Restore(capacity, timestamps, values)
	}

	b := New(capacity)
	start := 0
	if len(timestamps) > capacity {
		start = len(timestamps) - capacity
	}
	for i := start; i < len(timestamps); i++ {
		b.Insert(timestamps[i], values[i])
	}

	return b, nil
}

// Insert appends a sample at the newest position, dropping the oldest.
func (b *Buffer) Insert(timestamp, value float64) {
	if b.capacity == 0 {
		return
	}

	b.samples.PopFront()
	b.samples.PushBack(Sample{Time: timestamp, Value: value})
}

// Latest returns the newest sample; ok is false only for a zero-capacity buffer.
func (b *Buffer) Latest() (Sample, bool) {
	if b.capacity == 0 {
		return Sample{}, false
	}

	return b.samples.Back(), true
}

// At returns the sample at position i, 0 being the oldest.
func (b *Buffer) At(i int) Sample {
	return b.samples.At(i)
}

// Len returns the number of positions, which always equals Cap.
func (b *Buffer) Len() int {
	return b.samples.Len()
}

// Cap returns the configured capacity.
func (b *Buffer) Cap() int {
	return b.capacity
}

// Slices returns copies of the timestamps and values, oldest first.
func (b *Buffer) Slices() (timestamps, values []float64) {
	n := b.samples.Len()
	timestamps = make([]float64, n)
	values = make([]float64, n)
	for i := 0; i < n; i++ {
		s := b.samples.At(i)
		timestamps[i] = s.Time
		values[i] = s.Value
	}

	return timestamps, values
}

// Valid returns the number of samples holding both a timestamp and a value.
func (b *Buffer) Valid() int {
	n := 0
	for i := 0; i < b.samples.Len(); i++ {
		s := b.samples.At(i)
		if !IsMissing(s.Time) && !IsMissing(s.Value) {
			n++
		}
	}

	return n
}
