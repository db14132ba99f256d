// Package hotplug watches Linux udev for USB/ALSA sound-card add/remove
// events and turns them into the connector's device-change fan-out
// (spec §4.3.5, component G). This is the concrete implementation of
// the hot-plug notification the core treats abstractly via
// Stream.NotifyDeviceChanged / Manager.ReInitAll. Grounded on the
// teacher's background-goroutine-watches-an-external-source-and-calls-
// back-into-the-core shape (src/audio.go's device poll loop),
// generalized to an event-driven udev monitor.
package hotplug

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/jochenvg/go-udev"
)

// Notifier is the subset of connector.Manager the watcher drives.
type Notifier interface {
	ReInitAllForDeviceChange()
}

// Watcher subscribes to udev "sound" subsystem events and calls back
// into a Notifier whenever a device is added or removed.
type Watcher struct {
	log *log.Logger
}

// New returns a Watcher. Run starts the actual udev monitor.
func New(logger *log.Logger) *Watcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Watcher{log: logger}
}

// Run blocks, dispatching notifier.ReInitAllForDeviceChange on every
// udev "sound" subsystem add/remove/change event, until ctx is
// cancelled.
func (w *Watcher) Run(ctx context.Context, notifier Notifier) error {
	u := udev.Udev{}
	mon := u.NewMonitorFromNetlink("udev")
	if err := mon.FilterAddMatchSubsystem("sound"); err != nil {
		return err
	}

	deviceCh, errCh, err := mon.DeviceChan(ctx)
	if err != nil {
		return err
	}

	w.log.Info("hotplug: watching udev sound subsystem")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			if err != nil {
				w.log.Warn("hotplug: udev monitor error", "err", err)
			}
		case dev, ok := <-deviceCh:
			if !ok {
				return nil
			}
			w.log.Info("hotplug: sound device event", "action", dev.Action(), "syspath", dev.Syspath())
			notifier.ReInitAllForDeviceChange()
		}
	}
}
