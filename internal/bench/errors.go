package bench

import (
	"errors"
	"fmt"

	"github.com/torosent/echobench/internal/clock"
	"github.com/torosent/echobench/internal/metrics"
)

var (
	ErrCalibration           = clock.ErrCalibration
	ErrMatchTimeout          = errors.New("timed out waiting for a matched endpoint")
	ErrContentMismatch       = errors.New("echoed message does not match the message sent")
	ErrMeasurementCorruption = errors.New("compensated round trip is negative")
	ErrAnalysisRange         = metrics.ErrAnalysisRange
	ErrIncompleteRun         = errors.New("run ended before every sample was recorded")
	ErrRunInProgress         = errors.New("a run is already in progress")
)

// RunError describes a failed run. Sample is the 1-based index of the round trip
// that failed, or 0 when the failure is not tied to one sample.
type RunError struct {
	PayloadSize int
	Sample      int
	Err         error
}

func (e *RunError) Error() string {
	if e.Sample > 0 {
		return fmt.Sprintf("run %dB: sample %d: %v", e.PayloadSize, e.Sample, e.Err)
	}
	return fmt.Sprintf("run %dB: %v", e.PayloadSize, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Kind names the failure class of err for counters and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCalibration):
		return "calibration failure"
	case errors.Is(err, ErrMatchTimeout):
		return "match timeout"
	case errors.Is(err, ErrContentMismatch):
		return "content mismatch"
	case errors.Is(err, ErrMeasurementCorruption):
		return "measurement corruption"
	case errors.Is(err, ErrAnalysisRange):
		return "analysis range"
	case errors.Is(err, ErrIncompleteRun):
		return "incomplete run"
	default:
		return "other"
	}
}
