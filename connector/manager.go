package connector

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/doismellburning/ac97mixer/backend"
	"github.com/doismellburning/ac97mixer/cerr"
	"github.com/doismellburning/ac97mixer/config"
	"github.com/doismellburning/ac97mixer/pcm"
)

// Manager owns the global connector-stream list, the free-slot budgets,
// and the shared worker pool (spec §4.3.1 step 4, §5 "the connector owns
// a small worker pool"). Lock order: Manager.mu (the "global-stream-list"
// lock) is always taken before any individual Stream.mu (spec §5).
type Manager struct {
	mu       sync.RWMutex
	streams  map[string]*Stream
	nextSeq  map[string]int
	slotsIn  int
	slotsOut int
	pool     *workerPool
	log      *log.Logger
	be       backend.Backend
	cfg      config.Config
}

// NewManager builds a Manager backed by be, with slotsIn/slotsOut free
// stream budgets per direction (spec §4.3.1 step 4).
func NewManager(be backend.Backend, cfg config.Config, slotsIn, slotsOut int, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		streams:  make(map[string]*Stream),
		nextSeq:  make(map[string]int),
		slotsIn:  slotsIn,
		slotsOut: slotsOut,
		pool:     newWorkerPool(3, 30*time.Second),
		log:      logger,
		be:       be,
		cfg:      cfg,
	}
}

// CreateStream implements spec §4.3.1 in full: slot budget, unique
// naming, and delegating to Create.
func (m *Manager) CreateStream(driverName string, dir backend.Direction, dflt pcm.Properties) (*Stream, CreateOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if dir == backend.In {
		if m.slotsIn <= 0 {
			return nil, CreateOutcome{}, cerr.New(cerr.NoFreeSlots, "no free input streams")
		}
	} else if m.slotsOut <= 0 {
		return nil, CreateOutcome{}, cerr.New(cerr.NoFreeSlots, "no free output streams")
	}

	n := m.nextSeq[driverName]
	m.nextSeq[driverName] = n + 1
	name := fmt.Sprintf("%s:%d", driverName, n)

	var override config.DirectionOverride
	if dir == backend.In {
		override = m.cfg.In
	} else {
		override = m.cfg.Out
	}

	stream, outcome, err := Create(name, dir, m.be, dflt, override, m.pool, m.log)
	if err != nil {
		return nil, CreateOutcome{}, err
	}

	if dir == backend.In {
		m.slotsIn--
	} else {
		m.slotsOut--
	}
	m.streams[name] = stream

	return stream, outcome, nil
}

// DestroyStream implements spec §4.3.2's list-removal half; Stream.Destroy
// handles the reference-counted backend teardown.
func (m *Manager) DestroyStream(name string, immediate bool) {
	m.mu.Lock()
	stream, ok := m.streams[name]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.streams, name)
	if stream.Direction() == backend.In {
		m.slotsIn++
	} else {
		m.slotsOut++
	}
	m.mu.Unlock()

	stream.Destroy(immediate)
}

// Streams returns a snapshot of the current stream list (spec §5: "the
// connector's stream list is traversed under the global lock shared").
func (m *Manager) Streams() []*Stream {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Stream, 0, len(m.streams))
	for _, s := range m.streams {
		out = append(out, s)
	}
	return out
}

// ReInitAll runs ReInit on every stream flagged NEED_REINIT (driven by
// a hot-plug device-change notification fanned out via the worker pool).
func (m *Manager) ReInitAll(now time.Time) {
	for _, s := range m.Streams() {
		if s.NeedsReInit() {
			m.pool.Submit(func() {
				if err := s.ReInit(now); err != nil {
					m.log.Warn("stream reinit attempt failed", "stream", s.Name(), "err", err)
				}
			})
		}
	}
}

// ReInitAllForDeviceChange is the hotplug.Notifier hook: a udev (or
// other host) device-change event marks every stream NEED_REINIT; it
// arrives with no meaningful "now" of its own, so this stamps the
// current time and delegates to ReInitAll.
func (m *Manager) ReInitAllForDeviceChange() {
	for _, s := range m.Streams() {
		s.NotifyDeviceChanged()
	}
	m.ReInitAll(time.Now())
}

// Shutdown destroys every stream immediately.
func (m *Manager) Shutdown() {
	for _, s := range m.Streams() {
		m.DestroyStream(s.Name(), true)
	}
}
