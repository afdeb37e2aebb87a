// Package clock provides the nanosecond time sources used to stamp round trips
// and the calibration that estimates the cost of reading them.
package clock

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultCalibrationReads is the number of back-to-back reads averaged by Calibrate.
const DefaultCalibrationReads = 400

// ErrCalibration reports that the clock overhead could not be estimated.
var ErrCalibration = errors.New("clock calibration failed")

// Source returns a nanosecond reading on an arbitrary but fixed epoch.
// Differences between two readings of the same Source are durations.
type Source interface {
	Now() int64
}

// SourceFunc adapts a function to a Source.
type SourceFunc func() int64

func (f SourceFunc) Now() int64 { return f() }

const (
	KindMonotonic = "monotonic"
	KindRaw       = "raw"
)

// New returns the named clock source. Raw is CLOCK_MONOTONIC_RAW and only exists on Linux.
func New(kind string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindMonotonic:
		return NewMonotonic(), nil
	case KindRaw:
		return newRaw()
	default:
		return nil, fmt.Errorf("unknown clock source %q", kind)
	}
}

type monotonic struct {
	epoch time.Time
}

// NewMonotonic returns a Source backed by the runtime's monotonic clock.
func NewMonotonic() Source {
	return monotonic{epoch: time.Now()}
}

func (m monotonic) Now() int64 {
	return int64(time.Since(m.epoch))
}

// Calibrate takes one reading followed by reads back-to-back readings and returns
// the average interval between consecutive readings. The readings are stored
// first and checked for order afterwards so the loop does nothing but read.
func Calibrate(src Source, reads int) (time.Duration, error) {
	if src == nil {
		return 0, fmt.Errorf("%w: no clock source", ErrCalibration)
	}
	if reads < 1 {
		return 0, fmt.Errorf("%w: need at least one read, got %d", ErrCalibration, reads)
	}

	readings := make([]int64, reads+1)
	for i := range readings {
		readings[i] = src.Now()
	}

	for i := 1; i < len(readings); i++ {
		if readings[i] < readings[i-1] {
			return 0, fmt.Errorf("%w: clock went backwards by %dns", ErrCalibration, readings[i-1]-readings[i])
		}
	}
	return time.Duration((readings[reads] - readings[0]) / int64(reads)), nil
}
