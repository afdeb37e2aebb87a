//go:build !linux

package clock

import "errors"

func newRaw() (Source, error) {
	return nil, errors.New("raw monotonic clock is only available on linux")
}
