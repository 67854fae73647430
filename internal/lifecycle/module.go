package lifecycle

import (
	"sync"
	"time"

	"github.com/hcswitch/ofcore/internal/xerr"
)

const (
	graceRightNowDeadline   = 100 * time.Millisecond
	graceGracefullyDeadline = 1500 * time.Millisecond
)

// Callbacks is the five-callback-plus-usage protocol every registered
// module implements (spec §4.7): Init may spawn a goroutine and
// returns a Handle (nil for synchronous modules); Start transitions to
// running and must be idempotent under "already started"; Stop cancels
// the goroutine asynchronously; Shutdown requests termination with a
// grace level and blocks until the goroutine is observed dead or the
// deadline elapses; Finalize releases resources and is callable
// exactly once after the goroutine is dead.
type Callbacks struct {
	Init     func() (Handle, error)
	Start    func() error
	Stop     func()
	Shutdown func(level GraceLevel) error
	Finalize func() error
	// Usage is an optional diagnostic hook returned by
	// Supervisor.Usage; nil means the module has none.
	Usage func() string
}

// Handle observes whether a module's spawned goroutine has exited; Init
// returns nil for synchronous modules that do nothing concurrent.
type Handle interface {
	// Done returns a channel closed when the goroutine has exited.
	Done() <-chan struct{}
}

// chanHandle is the Handle a module's Init typically returns: close(ch)
// when its goroutine returns.
type chanHandle chan struct{}

func (c chanHandle) Done() <-chan struct{} { return c }

// NewHandle returns a Handle plus the channel Init's goroutine should
// close on exit.
func NewHandle() (Handle, chan struct{}) {
	ch := make(chan struct{})
	return chanHandle(ch), ch
}

// moduleState is a module's own lifecycle state, independent of the
// global Gate (spec §4.7: "per-module mutual exclusion on state
// transitions via a per-module mutex").
type moduleState int

const (
	modRegistered moduleState = iota
	modInitialized
	modStarted
	modShutdown
	modFinalized
)

// module is one registered entry in the Supervisor.
type module struct {
	mu     sync.Mutex
	name   string
	cb     Callbacks
	state  moduleState
	handle Handle
}

// Supervisor owns the registry of modules and the shared Gate (spec
// §4.7).
type Supervisor struct {
	Gate *Gate

	mu      sync.Mutex
	order   []string
	modules map[string]*module
}

// NewSupervisor constructs an empty Supervisor with a fresh Gate.
func NewSupervisor() *Supervisor {
	return &Supervisor{Gate: NewGate(), modules: make(map[string]*module)}
}

// Register adds a module under name; name must be unique.
func (s *Supervisor) Register(name string, cb Callbacks) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.modules[name]; exists {
		return xerr.AlreadyExists("lifecycle.Supervisor.Register")
	}
	s.modules[name] = &module{name: name, cb: cb}
	s.order = append(s.order, name)
	return nil
}

// Names returns registered module names in registration order.
func (s *Supervisor) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *Supervisor) get(name string) (*module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[name]
	if !ok {
		return nil, xerr.NotFound("lifecycle.Supervisor")
	}
	return m, nil
}

// Init runs a module's Init callback, storing the returned Handle.
func (s *Supervisor) Init(name string) error {
	m, err := s.get(name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != modRegistered {
		return xerr.InvalidStateTransition("lifecycle.Supervisor.Init")
	}
	h, err := m.cb.Init()
	if err != nil {
		return err
	}
	m.handle = h
	m.state = modInitialized
	return nil
}

// Start runs a module's Start callback. Calling Start on an
// already-started module is idempotent success (spec §4.7: "it must be
// idempotent under already started"; DESIGN.md Open Question decision).
func (s *Supervisor) Start(name string) error {
	m, err := s.get(name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == modStarted {
		return nil
	}
	if m.state != modInitialized {
		return xerr.InvalidStateTransition("lifecycle.Supervisor.Start")
	}
	if err := m.cb.Start(); err != nil {
		return err
	}
	m.state = modStarted
	return nil
}

// Shutdown requests termination at level, blocking until the module's
// Handle reports done or the level's deadline elapses (spec §4.7:
// "shutdown(level)... the call blocks until the thread joins or the
// deadline elapses"). When the deadline elapses first, Stop is called
// and Shutdown returns without waiting for the goroutine to exit.
func (s *Supervisor) Shutdown(name string, level GraceLevel) error {
	m, err := s.get(name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != modStarted {
		return nil
	}
	if err := m.cb.Shutdown(level); err != nil {
		return err
	}
	deadline := graceGracefullyDeadline
	if level == GraceRightNow {
		deadline = graceRightNowDeadline
	}
	if m.handle != nil {
		select {
		case <-m.handle.Done():
		case <-time.After(deadline):
			m.cb.Stop()
		}
	}
	m.state = modShutdown
	return nil
}

// Finalize runs a module's Finalize callback exactly once after its
// goroutine is observed dead.
func (s *Supervisor) Finalize(name string) error {
	m, err := s.get(name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == modFinalized {
		return xerr.InvalidStateTransition("lifecycle.Supervisor.Finalize")
	}
	if err := m.cb.Finalize(); err != nil {
		return err
	}
	m.state = modFinalized
	return nil
}

// Usage returns a module's diagnostic string, or "" if it has none.
func (s *Supervisor) Usage(name string) string {
	m, err := s.get(name)
	if err != nil {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cb.Usage == nil {
		return ""
	}
	return m.cb.Usage()
}

// ShutdownAll shuts down every registered module in reverse
// registration order (spec §5: "Shutdown order is the reverse of
// startup").
func (s *Supervisor) ShutdownAll(level GraceLevel) error {
	names := s.Names()
	for i := len(names) - 1; i >= 0; i-- {
		if err := s.Shutdown(names[i], level); err != nil {
			return err
		}
	}
	return nil
}

// FinalizeAll finalizes every registered module in reverse registration
// order.
func (s *Supervisor) FinalizeAll() error {
	names := s.Names()
	for i := len(names) - 1; i >= 0; i-- {
		if err := s.Finalize(names[i]); err != nil {
			return err
		}
	}
	return nil
}
