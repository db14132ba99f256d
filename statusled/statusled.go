// Package statusled drives a GPIO line as a sink-running indicator,
// registered with a mixer.Sink as one of the AIO worker's "registered
// update jobs" (spec §3 Mixer Sink, §4.2.3 step 2b). Grounded on the
// teacher's CM108/CM119 GPIO PTT keying in src/ptt.go (get_access_to_gpio,
// ptt_set) and src/cm108.go, which toggle a GPIO/HID line in lockstep with
// transmitter state; here the line tracks sink.Running/Draining instead of
// PTT, using github.com/warthog618/go-gpiocdev in place of the teacher's
// /sys/class/gpio/export + raw chardev ioctl dance.
package statusled

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/warthog618/go-gpiocdev"

	"github.com/doismellburning/ac97mixer/mixer"
)

// Line drives a single GPIO output line high while a sink is actively
// producing/consuming audio (Running or Draining) and low otherwise.
type Line struct {
	log  *log.Logger
	line *gpiocdev.Line
	lit  bool
}

// Open requests offset on chip (e.g. "gpiochip0") as an output line,
// initially low.
func Open(chip string, offset int, logger *log.Logger) (*Line, error) {
	if logger == nil {
		logger = log.Default()
	}

	l, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("statusled: request %s:%d: %w", chip, offset, err)
	}

	return &Line{log: logger.With("chip", chip, "offset", offset), line: l}, nil
}

// Close releases the underlying GPIO line request.
func (s *Line) Close() error {
	return s.line.Close()
}

// UpdateJob returns a mixer.UpdateJob that drives the line from sink
// status on every AIO tick (spec §4.2.3 step 2b). interval is the job's
// declared typical cadence, used by the sink to size its drain-mode poll
// wait (spec §4.2.3 step 1).
func (s *Line) UpdateJob(name string, interval time.Duration) mixer.UpdateJob {
	return mixer.UpdateJob{
		Name:     name,
		Interval: interval,
		Fn:       s.onTick,
	}
}

func (s *Line) onTick(status mixer.StatusBits) {
	want := status.Has(mixer.Running) || status.Has(mixer.Draining)
	if want == s.lit {
		return
	}
	v := 0
	if want {
		v = 1
	}
	if err := s.line.SetValue(v); err != nil {
		s.log.Warn("failed to set status line", "err", err, "want", want)
		return
	}
	s.lit = want
}
