// Command acmixerd wires the mixing core's packages into a runnable demo:
// a connector.Manager backed by a real (PortAudio) or null backend, one
// mixer.Sink per enabled direction, a dmapump.Pump driven by an in-process
// "guest memory" loopback standing in for the PCI bus master DMA a real
// AC'97 device model would provide, and the optional udev/dnssd/gpiocdev
// collaborators. Grounded on the teacher's cmd/direwolf/main.go top-level
// "parse config, open audio, wire modems, run until signal" shape, adapted
// away from its CGo direwolf.h include chain to a plain Go flag/YAML/
// package wiring.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/doismellburning/ac97mixer/backend"
	"github.com/doismellburning/ac97mixer/backend/portaudio"
	"github.com/doismellburning/ac97mixer/config"
	"github.com/doismellburning/ac97mixer/connector"
	"github.com/doismellburning/ac97mixer/discovery"
	"github.com/doismellburning/ac97mixer/dmapump"
	"github.com/doismellburning/ac97mixer/hotplug"
	"github.com/doismellburning/ac97mixer/logging"
	"github.com/doismellburning/ac97mixer/mixer"
	"github.com/doismellburning/ac97mixer/pcm"
	"github.com/doismellburning/ac97mixer/statusled"
)

func main() {
	var (
		configPath  = pflag.StringP("config", "c", "", "path to a YAML config file (spec §6 keys)")
		driverName  = pflag.String("driver", "acmixer", "driver name shown in the startup log (stream names come from the sink name and direction)")
		useNull     = pflag.Bool("null", false, "use the null backend instead of PortAudio")
		channels    = pflag.Int("channels", 2, "guest-facing channel count")
		hz          = pflag.Int("rate", 48000, "guest-facing sample rate in Hz")
		timerHz     = pflag.Int("timer-hz", 100, "DMA pump timer rate in Hz")
		announce    = pflag.Int("announce-port", 0, "if nonzero, announce this backend over mDNS on the given port")
		gpioChip    = pflag.String("gpio-chip", "", "if set, drive a status line on this gpiochip (e.g. gpiochip0)")
		gpioOffset  = pflag.Int("gpio-offset", 0, "GPIO line offset for --gpio-chip")
		watchUdev   = pflag.Bool("watch-udev", false, "watch udev for sound device hot-plug and trigger stream re-init")
	)
	pflag.Parse()

	logger := logging.New("acmixerd")

	cfg := config.Default()
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			logger.Fatal("read config", "path", *configPath, "err", err)
		}
		cfg, err = config.LoadYAML(data)
		if err != nil {
			logger.Fatal("parse config", "path", *configPath, "err", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, closeBe := openBackend(*useNull, logger)
	defer closeBe()

	mgr := connector.NewManager(be, cfg, 16, 16, logger.With("component", "connector"))
	defer mgr.Shutdown()

	dflt := pcm.Internal(*channels, *hz)

	var sinks []*mixer.Sink
	if cfg.OutputEnabled {
		sinks = append(sinks, mustRunDirection(ctx, mgr, backend.Out, "playback", dflt, *timerHz, logger))
	}
	if cfg.InputEnabled {
		sinks = append(sinks, mustRunDirection(ctx, mgr, backend.In, "capture", dflt, *timerHz, logger))
	}

	if *gpioChip != "" {
		line, err := statusled.Open(*gpioChip, *gpioOffset, logger.With("component", "statusled"))
		if err != nil {
			logger.Warn("status LED unavailable", "err", err)
		} else {
			defer line.Close()
			for _, s := range sinks {
				s.RegisterUpdateJob(line.UpdateJob("statusled", 50*time.Millisecond))
			}
		}
	}

	if *announce != 0 {
		a, err := discovery.Announce(ctx, cfg.DriverName, *announce, logger.With("component", "discovery"))
		if err != nil {
			logger.Warn("mDNS announce failed", "err", err)
		} else {
			defer a.Remove(context.Background())
		}
	}

	if *watchUdev {
		w := hotplug.New(logger.With("component", "hotplug"))
		go func() {
			if err := w.Run(ctx, mgr); err != nil && ctx.Err() == nil {
				logger.Warn("udev watcher stopped", "err", err)
			}
		}()
	}

	logger.Info("acmixerd running", "driver", *driverName)
	<-ctx.Done()
	logger.Info("acmixerd shutting down")
}

func openBackend(useNull bool, logger *log.Logger) (backend.Backend, func()) {
	if useNull {
		return backend.Null{}, func() {}
	}
	pa, err := portaudio.New(logger.With("component", "portaudio"))
	if err != nil {
		logger.Warn("PortAudio unavailable, falling back to null backend", "err", err)
		return backend.Null{}, func() {}
	}
	return pa, func() {
		if err := pa.Close(); err != nil {
			logger.Warn("PortAudio close failed", "err", err)
		}
	}
}

// mustRunDirection creates one sink + connector stream + DMA pump for a
// single direction, starts their goroutines under ctx, and returns the
// sink so callers can register further update jobs against it.
func mustRunDirection(ctx context.Context, mgr *connector.Manager, dir backend.Direction, name string, dflt pcm.Properties, timerHz int, logger *log.Logger) *mixer.Sink {
	bufMs := 300
	capFrames := dflt.MillisToFrames(bufMs)

	sink, err := mixer.NewSink(name, dir, dflt.Channels, dflt.FrequencyHz, capFrames, logger.With("component", "mixer", "sink", name))
	if err != nil {
		logger.Fatal("create sink", "direction", dir, "err", err)
	}

	stream, _, err := mgr.CreateStream(fmt.Sprintf("%s-%s", name, dir), dir, dflt)
	if err != nil {
		logger.Fatal("create connector stream", "direction", dir, "err", err)
	}
	sink.AddStream(stream, stream.AcceptedConfig())

	mem := newLoopbackMemory(capFrames * dflt.FrameSize() * 4)
	pump := dmapump.New(dir, dflt, mem, sink, capFrames*dflt.FrameSize()*2, timerHz, logger.With("component", "dmapump", "sink", name))

	go sink.Run(ctx)
	go runPump(ctx, pump)

	if err := stream.Control("ENABLE"); err != nil {
		logger.Warn("enable stream failed", "direction", dir, "err", err)
	}
	sink.SetRunning(true)

	return sink
}

func runPump(ctx context.Context, pump *dmapump.Pump) {
	wait := time.Millisecond
	for {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			wait = pump.Tick()
		}
	}
}

// loopbackMemory is a fixed-size byte arena standing in for guest
// physical memory in this standalone demo: acmixerd has no guest, so
// "physical addresses" are just offsets into one local buffer the DMA
// pump reads/writes, letting the pump's BDL walk and transfer logic run
// unmodified against a real dmapump.GuestMemory.
type loopbackMemory struct {
	buf []byte
}

func newLoopbackMemory(size int) *loopbackMemory {
	if size <= 0 {
		size = 4096
	}
	return &loopbackMemory{buf: make([]byte, size)}
}

func (m *loopbackMemory) ReadPhys(addr uint32, dst []byte) error {
	return m.copyAt(addr, dst, true)
}

func (m *loopbackMemory) WritePhys(addr uint32, src []byte) error {
	return m.copyAt(addr, src, false)
}

func (m *loopbackMemory) copyAt(addr uint32, buf []byte, read bool) error {
	a := int(addr) % len(m.buf)
	for i := range buf {
		idx := (a + i) % len(m.buf)
		if read {
			buf[i] = m.buf[idx]
		} else {
			m.buf[idx] = buf[i]
		}
	}
	return nil
}
