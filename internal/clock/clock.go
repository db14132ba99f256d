// Package clock provides a monotonic nanosecond clock read from
// CLOCK_MONOTONIC. The connector stream takes its timestamps
// (nsStarted, nsLastIterated, ...) from time.Now, not from here. Grounded
// on the teacher's own use of golang.org/x/sys/unix for low-level syscalls
// (ptt.go, cm108.go); CLOCK_MONOTONIC is the same source VirtualBox's
// RTTimeNanoTS() ultimately reads on Linux.
package clock

import (
	"golang.org/x/sys/unix"
)

// NowNs returns a monotonic nanosecond timestamp. It is not comparable
// across process restarts or machines; only differences are meaningful.
func NowNs() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return ts.Sec*1e9 + int64(ts.Nsec)
}
