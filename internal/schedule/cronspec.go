package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	ErrInvalidTime = errors.New("time must be HH:mm in 24-hour format")
	ErrUnknownSlot = errors.New("slot must be 1 or 2")
)

var hhmm = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// ParseClock validates an HH:mm wall-clock time.
func ParseClock(s string) (hour, minute int, err error) {
	m := hhmm.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	return hour, minute, nil
}

// CronSpec converts campus wall time to a daily cron spec in UTC by
// subtracting the fixed offset, wrapped to 0-23.
func CronSpec(clock string, utcOffset int) (string, error) {
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return "", err
	}
	utcHour := ((hour-utcOffset)%24 + 24) % 24
	return fmt.Sprintf("%d %d * * *", minute, utcHour), nil
}

// NextRun returns the next UTC fire time of spec after now.
func NextRun(spec string, now time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(now.UTC()), nil
}
