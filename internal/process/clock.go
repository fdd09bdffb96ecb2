package process

import (
	"errors"
	"time"
)

// ErrClockBeforeEpoch is returned when the system clock reads earlier than
// the Unix epoch.
var ErrClockBeforeEpoch = errors.New("system clock is before the Unix epoch")

var unixEpoch = time.Unix(0, 0)

// timestamp converts t to fractional milliseconds since the Unix epoch.
func timestamp(t time.Time) (float64, error) {
	if t.Before(unixEpoch) {
		return 0, ErrClockBeforeEpoch
	}
	return float64(t.UnixNano()) / float64(time.Millisecond), nil
}
