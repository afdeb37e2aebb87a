//go:build linux

package clock

import (
	"fmt"

	"golang.org/x/sys/unix"
)

type raw struct{}

func newRaw() (Source, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC_RAW, &ts); err != nil {
		return nil, fmt.Errorf("clock_gettime(CLOCK_MONOTONIC_RAW): %w", err)
	}
	return raw{}, nil
}

// Now ignores the error: newRaw already proved the clock id is supported.
func (raw) Now() int64 {
	var ts unix.Timespec
	_ = unix.ClockGettime(unix.CLOCK_MONOTONIC_RAW, &ts)
	return ts.Nano()
}
