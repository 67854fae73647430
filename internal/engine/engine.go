// Package engine wires every in-scope component into the startup/
// shutdown order spec.md §2 names: "datastore, raw-socket driver,
// high-speed driver (optional), timer, queue-manager, protocol agent,
// protocol handler, stats agent (optional), config loader" — shutdown
// is the reverse. The datastore, raw-socket driver, and high-speed
// driver are external collaborators out of this core's scope (spec §1),
// and the config loader is not registered as a module (cmd/ofswitch
// parses the CLI before New); Engine registers the remaining five as
// internal/lifecycle modules:
// timer (internal/timeout), queue-manager (internal/dataplane lcores),
// protocol agent and protocol handler (internal/ofproto), and stats
// agent (internal/portmon).
package engine

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/hcswitch/ofcore/internal/dataplane"
	"github.com/hcswitch/ofcore/internal/flowtable"
	"github.com/hcswitch/ofcore/internal/lifecycle"
	"github.com/hcswitch/ofcore/internal/ofproto"
	"github.com/hcswitch/ofcore/internal/portmon"
	"github.com/hcswitch/ofcore/internal/timeout"
)

// indexRebuildInterval is passed to Wheel.Run, which uses it to
// reschedule a match-index-rebuild slot after that slot fires (spec
// §4.6, final paragraph). Engine itself adds no such slot, so no rebuild
// runs unless a caller first calls Wheel.AddIndexRebuildTimer.
const indexRebuildInterval = time.Second

// Engine is the top-level value a process entry point constructs and
// drives; it owns the module supervisor and every long-lived
// component registered on it.
type Engine struct {
	Supervisor *ofproto.Agent
	Bridge     *flowtable.Bridge
	Wheel      *timeout.Wheel
	Monitor    *portmon.Monitor
	Notifier   *ofproto.PortStatusNotifier
	Roles      *dataplane.RoleAssignment

	log zerolog.Logger
	sup *lifecycle.Supervisor

	ioLoops     []*dataplane.IORXLoop
	workerLoops []*dataplane.WorkerLoop
	txLoops     []*dataplane.IOTXLoop

	timerStart   chan struct{}
	monitorStart chan struct{}
}

// Options configures New.
type Options struct {
	BridgeName   string
	Bridge       *flowtable.Bridge
	Roles        *dataplane.RoleAssignment
	Prober       portmon.Prober
	PollInterval time.Duration
	Logger       zerolog.Logger
}

// New constructs an Engine and registers its modules on a fresh
// lifecycle.Supervisor, in spec §2's startup order. It does not start
// anything; call Start.
func New(opts Options) *Engine {
	agent := ofproto.NewAgent()
	ofBridge := ofproto.NewBridge(opts.BridgeName, opts.Bridge)
	_ = agent.AddBridge(ofBridge)

	wheel := timeout.NewWheel(opts.Bridge)
	notifier := ofproto.NewPortStatusNotifier()
	wheel.SetNext(notifier)
	opts.Bridge.SetRemovalNotifier(wheel)

	var monitor *portmon.Monitor
	if opts.Prober != nil {
		interval := opts.PollInterval
		if interval <= 0 {
			interval = time.Second
		}
		monitor = portmon.NewMonitor(opts.Prober, interval, 256)
	}

	e := &Engine{
		Supervisor: agent,
		Bridge:     opts.Bridge,
		Wheel:      wheel,
		Monitor:    monitor,
		Notifier:   notifier,
		Roles:      opts.Roles,
		log:        opts.Logger,
		sup:        lifecycle.NewSupervisor(),
	}
	e.registerModules()
	return e
}

// registerModules registers the timer, queue-manager (dataplane
// lcores), protocol agent/handler, and stats agent modules in spec
// §2's startup order.
func (e *Engine) registerModules() {
	_ = e.sup.Register("timer", lifecycle.Callbacks{
		Init: func() (lifecycle.Handle, error) {
			h, ch := lifecycle.NewHandle()
			started := make(chan struct{})
			e.timerStart = started
			go func() {
				<-started
				e.Wheel.Run(indexRebuildInterval)
				close(ch)
			}()
			return h, nil
		},
		Start:    func() error { close(e.timerStart); return nil },
		Stop:     func() { e.Wheel.Stop() },
		Shutdown: func(lifecycle.GraceLevel) error { e.Wheel.Stop(); return nil },
		Finalize: func() error { return nil },
	})

	_ = e.sup.Register("queue-manager", lifecycle.Callbacks{
		Init:  func() (lifecycle.Handle, error) { return nil, nil },
		Start: func() error { return e.startDataplane() },
		Stop:  func() { e.stopDataplane() },
		Shutdown: func(lifecycle.GraceLevel) error {
			e.stopDataplane()
			return nil
		},
		Finalize: func() error { return nil },
	})

	_ = e.sup.Register("protocol-agent", lifecycle.Callbacks{
		Init:     func() (lifecycle.Handle, error) { return nil, nil },
		Start:    func() error { return nil },
		Stop:     func() {},
		Shutdown: func(lifecycle.GraceLevel) error { return nil },
		Finalize: func() error { return nil },
	})

	_ = e.sup.Register("protocol-handler", lifecycle.Callbacks{
		Init:     func() (lifecycle.Handle, error) { return nil, nil },
		Start:    func() error { return nil },
		Stop:     func() {},
		Shutdown: func(lifecycle.GraceLevel) error { return nil },
		Finalize: func() error { return nil },
	})

	if e.Monitor != nil {
		_ = e.sup.Register("stats-agent", lifecycle.Callbacks{
			Init: func() (lifecycle.Handle, error) {
				h, ch := lifecycle.NewHandle()
				started := make(chan struct{})
				e.monitorStart = started
				go func() {
					<-started
					e.Monitor.Run()
					close(ch)
				}()
				return h, nil
			},
			Start:    func() error { close(e.monitorStart); return nil },
			Stop:     func() { e.Monitor.Stop() },
			Shutdown: func(lifecycle.GraceLevel) error { e.Monitor.Stop(); return nil },
			Finalize: func() error { return nil },
		})
	}
}

// Start initializes and starts every registered module in registration
// order (spec §2 startup order).
func (e *Engine) Start() error {
	for _, name := range e.sup.Names() {
		if err := e.sup.Init(name); err != nil {
			e.log.Error().Str("module", name).Err(err).Msg("module init failed")
			return err
		}
		if err := e.sup.Start(name); err != nil {
			e.log.Error().Str("module", name).Err(err).Msg("module start failed")
			return err
		}
		e.log.Info().Str("module", name).Msg("module started")
	}
	return nil
}

// Shutdown tears down every module in reverse registration order with
// the given grace level (spec §2: "Shutdown is the reverse order with
// a grace level").
func (e *Engine) Shutdown(level lifecycle.GraceLevel) error {
	e.log.Info().Str("grace", graceLevelString(level)).Msg("engine shutdown requested")
	if err := e.sup.ShutdownAll(level); err != nil {
		return err
	}
	return e.sup.FinalizeAll()
}

func graceLevelString(level lifecycle.GraceLevel) string {
	if level == lifecycle.GraceRightNow {
		return "right-now"
	}
	return "gracefully"
}

func (e *Engine) startDataplane() error {
	// Dataplane lcore construction (ports, pools, rings) is wired by
	// the process entry point via AttachLoops, since it depends on the
	// concrete Port/pool instances the driver layer supplies (spec §1:
	// NIC PMD and raw-socket drivers are out of scope here).
	for _, l := range e.ioLoops {
		go l.Run()
	}
	for _, l := range e.workerLoops {
		go l.Run()
	}
	for _, l := range e.txLoops {
		go l.Run()
	}
	return nil
}

func (e *Engine) stopDataplane() {
	for _, l := range e.ioLoops {
		l.Stop.Request()
	}
	for _, l := range e.workerLoops {
		l.Stop.Request()
	}
	for _, l := range e.txLoops {
		l.Stop.Request()
	}
}

// AttachLoops registers the concrete lcore loops the queue-manager
// module drives once Start is called; it must be invoked before Start.
func (e *Engine) AttachLoops(io []*dataplane.IORXLoop, workers []*dataplane.WorkerLoop, tx []*dataplane.IOTXLoop) {
	e.ioLoops = io
	e.workerLoops = workers
	e.txLoops = tx
}
