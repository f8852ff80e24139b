// Package sim drives the simulation. An Engine owns the game State; each
// Tick advances simulated time and runs the ledger, scheduler, daemon and
// billing passes in a fixed order. Readers only ever see deep copies.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/netip"
	"sync"
	"time"

	"github.com/tphummel/rackops/internal/catalog"
	"github.com/tphummel/rackops/internal/daemon"
	"github.com/tphummel/rackops/internal/ledger"
	"github.com/tphummel/rackops/internal/models"
	"github.com/tphummel/rackops/internal/scheduler"
	"github.com/tphummel/rackops/internal/scripting"
)

// Source is the event-log source for engine entries.
const Source = "engine"

// DefaultAgent is the monitoring agent every new game starts with.
const DefaultAgent = "sysmon"

// Stats are cumulative counters since the Engine was created.
type Stats struct {
	Ticks         uint64
	DaemonFirings uint64
	DaemonErrors  uint64
	Settlements   uint64
	StepPanics    uint64
}

// TickReport describes what one Tick did.
type TickReport struct {
	Advanced time.Duration
	Fired    int
	Settled  int
}

// Engine is the tick driver. All methods are safe for concurrent use; the
// mutex makes every tick and command one atomic batch.
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	cat    *catalog.Catalog
	sched  *scheduler.Scheduler
	eval   *daemon.Evaluator
	logger *slog.Logger

	st    *models.State
	stats Stats
}

// New creates an Engine with a fresh game. A nil logger uses slog.Default().
func New(cfg Config, cat *catalog.Catalog, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	subnet, err := netip.ParsePrefix(cfg.InternalSubnet)
	if err != nil {
		return nil, fmt.Errorf("internal subnet: %w", err)
	}

	sched := scheduler.New(cat, logger)
	sched.InternalSubnet = subnet
	sched.ReleaseStagedOnAbort = cfg.ReleaseStagedOnAbort

	e := &Engine{
		cfg:    cfg,
		cat:    cat,
		sched:  sched,
		logger: logger,
	}
	e.eval = &daemon.Evaluator{
		Env:           e.env(),
		Logger:        logger,
		EdgeTriggered: cfg.EdgeTriggeredDaemons,
	}
	e.st = e.freshState()
	return e, nil
}

func (e *Engine) env() scripting.Env {
	return scripting.Env{Catalog: e.cat, Scheduler: e.sched, Params: e.cfg.Ledger}
}

func (e *Engine) freshState() *models.State {
	st := models.NewState(e.cfg.StartCash, e.cfg.StartTime)
	st.Agents[DefaultAgent] = &models.Agent{Name: DefaultAgent, Permissions: append([]catalog.Permission(nil), daemon.DefaultAgentPermissions...)}
	ledger.Refresh(e.cat, e.cfg.Ledger, st)
	return st
}

// SetExecutor installs the external script sandbox used by script actions.
func (e *Engine) SetExecutor(x scripting.Executor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.eval.Executor = x
}

// Catalog returns the reference data the engine was built with.
func (e *Engine) Catalog() *catalog.Catalog { return e.cat }

// Config returns the balance configuration.
func (e *Engine) Config() Config { return e.cfg }

// Snapshot returns a deep copy of the current state.
func (e *Engine) Snapshot() *models.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.Clone()
}

// Stats returns the cumulative counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Tick advances the game by deltaSeconds of real time scaled by the game
// speed. It does nothing while paused and never fails: a panicking pass is
// logged and the remaining passes still run.
func (e *Engine) Tick(ctx context.Context, deltaSeconds float64) TickReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	var rep TickReport
	st := e.st
	if st.Paused || deltaSeconds <= 0 || math.IsNaN(deltaSeconds) || math.IsInf(deltaSeconds, 0) {
		return rep
	}

	advance := time.Duration(deltaSeconds * st.Speed * float64(time.Second))
	prev := st.Time
	st.Time = prev.Add(advance)
	hours := advance.Hours()
	rep.Advanced = advance
	e.stats.Ticks++

	e.step(st, "energy", func() { ledger.AccrueEnergy(st, hours) })
	e.step(st, "fuel", func() { ledger.BurnFuel(e.cat, st, hours) })
	e.step(st, "ledger", func() { ledger.Refresh(e.cat, e.cfg.Ledger, st) })
	e.step(st, "assign", func() { e.sched.Assign(st) })
	e.step(st, "progress", func() { e.sched.Progress(st) })
	e.step(st, "ledger", func() { ledger.Refresh(e.cat, e.cfg.Ledger, st) })
	e.step(st, "daemons", func() {
		res := e.eval.Evaluate(ctx, st)
		rep.Fired = res.Fired
		e.stats.DaemonFirings += uint64(res.Fired)
		e.stats.DaemonErrors += uint64(res.Errors)
	})
	e.step(st, "billing", func() {
		rep.Settled = e.settle(st)
		e.stats.Settlements += uint64(rep.Settled)
	})

	e.trim(st)
	return rep
}

func (e *Engine) step(st *models.State, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.stats.StepPanics++
			e.logger.Error("tick step panicked", "step", name, "panic", fmt.Sprint(r))
			st.Record(models.LevelError, Source, fmt.Sprintf("%s pass failed: %v", name, r))
		}
	}()
	fn()
}

// mutate runs fn under the lock and refreshes the aggregates afterwards.
func (e *Engine) mutate(fn func(st *models.State) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(e.st); err != nil {
		return err
	}
	ledger.Refresh(e.cat, e.cfg.Ledger, e.st)
	e.trim(e.st)
	return nil
}

func (e *Engine) trim(st *models.State) {
	st.TrimLog(e.cfg.EventLogCap)
	st.TrimNotifications(e.cfg.NotificationCap)
}
