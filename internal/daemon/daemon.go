// Package daemon evaluates deployed monitoring rules against live device
// telemetry once per tick and dispatches the actions whose conditions hold.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/tphummel/rackops/internal/catalog"
	"github.com/tphummel/rackops/internal/layout"
	"github.com/tphummel/rackops/internal/models"
	"github.com/tphummel/rackops/internal/scripting"
)

// Source is the event-log source for evaluator errors.
const Source = "daemon"

// Evaluator runs every deployed daemon.
type Evaluator struct {
	Env      scripting.Env
	Executor scripting.Executor
	Logger   *slog.Logger

	// EdgeTriggered fires a rule only when its condition goes from false
	// to true. When off, a rule fires on every tick its condition holds.
	EdgeTriggered bool
}

// Result counts what one pass did.
type Result struct {
	Fired  int
	Errors int
}

// Validate checks a daemon's rules without evaluating them.
func Validate(d *models.Daemon) error {
	if d.Target == "" {
		return models.Invalid("deploy daemon", "target is required")
	}
	if d.Agent == "" {
		return models.Invalid("deploy daemon", "agent is required")
	}
	for i, r := range d.Rules {
		if r.Metric == "" {
			return models.Invalid("deploy daemon", "rule %d: metric is required", i)
		}
		switch r.Comparator {
		case models.CompareGreater, models.CompareLess, models.CompareEqual, models.CompareNotEqual:
		default:
			return models.Invalid("deploy daemon", "rule %d: unknown comparator %q", i, r.Comparator)
		}
		switch r.Action {
		case models.ActionAlert, models.ActionLog, models.ActionScript:
		default:
			return models.Invalid("deploy daemon", "rule %d: unknown action %q", i, r.Action)
		}
	}
	return nil
}

// Evaluate runs one pass over every daemon in target order.
func (e *Evaluator) Evaluate(ctx context.Context, st *models.State) Result {
	var res Result
	targets := make([]string, 0, len(st.Daemons))
	for k := range st.Daemons {
		targets = append(targets, k)
	}
	slices.Sort(targets)

	for _, target := range targets {
		d := st.Daemons[target]
		e.evaluateDaemon(ctx, st, d, &res)
	}
	return res
}

func (e *Evaluator) evaluateDaemon(ctx context.Context, st *models.State, d *models.Daemon, res *Result) {
	p, ok := layout.FindDevice(st.Layout, d.Target)
	if !ok {
		e.fail(st, res, &models.ConfigurationError{Daemon: d.Target, Rule: -1, Reason: "target device does not exist"})
		return
	}
	metrics := scripting.MetricsFor(e.Env.Catalog, st, p.Device)
	surface := scripting.NewSurface(e.Env, st, st.Agents[d.Agent])

	if len(d.Firing) != len(d.Rules) {
		d.Firing = make([]bool, len(d.Rules))
	}

	for i, r := range d.Rules {
		v, ok := metrics.Lookup(r.Metric)
		if !ok {
			e.fail(st, res, &models.ConfigurationError{Daemon: d.Target, Rule: i, Reason: fmt.Sprintf("unknown metric %q", r.Metric)})
			continue
		}
		cond, err := holds(r.Comparator, v, r.Value)
		if err != nil {
			e.fail(st, res, &models.ConfigurationError{Daemon: d.Target, Rule: i, Reason: err.Error()})
			continue
		}
		was := d.Firing[i]
		d.Firing[i] = cond
		if !cond || (e.EdgeTriggered && was) {
			continue
		}
		if err := e.dispatch(ctx, surface, d, i, r, v); err != nil {
			e.fail(st, res, err)
			continue
		}
		res.Fired++
	}
}

func (e *Evaluator) dispatch(ctx context.Context, s *scripting.Surface, d *models.Daemon, i int, r models.Rule, v any) error {
	msg := message(d, r, v)
	cfgErr := func(reason string) error {
		return &models.ConfigurationError{Daemon: d.Target, Rule: i, Reason: reason}
	}

	switch r.Action {
	case models.ActionAlert, models.ActionLog:
		switch r.Destination {
		case models.DestinationPlayerUI:
			cmd := r.Command
			if cmd == "" {
				cmd = "toast"
				if r.Action == models.ActionAlert {
					cmd = "alert"
				}
			}
			switch cmd {
			case "toast", "notify":
				return s.Toast(msg)
			case "alert":
				return s.Alert(msg)
			default:
				return cfgErr(fmt.Sprintf("unknown %s command %q", r.Destination, cmd))
			}
		case models.DestinationSystemLog:
			level := models.LevelInfo
			if r.Action == models.ActionAlert {
				level = models.LevelWarn
			}
			return s.Log(level, msg)
		default:
			return cfgErr(fmt.Sprintf("unknown destination %q", r.Destination))
		}
	case models.ActionScript:
		if e.Executor == nil {
			return cfgErr("no script executor configured")
		}
		if r.Command == "" {
			return cfgErr("script action needs a command")
		}
		if err := e.Executor.Run(ctx, r.Command, r.Args, s); err != nil {
			return fmt.Errorf("daemon %s rule %d: script %q: %w", d.Target, i, r.Command, err)
		}
		return nil
	default:
		return cfgErr(fmt.Sprintf("unknown action %q", r.Action))
	}
}

func message(d *models.Daemon, r models.Rule, v any) string {
	if r.Action != models.ActionScript && len(r.Args) > 0 {
		return strings.Join(r.Args, " ")
	}
	return fmt.Sprintf("[%s] %s: %s %s %v (now %v)", d.Agent, d.Target, r.Metric, r.Comparator, r.Value, v)
}

func (e *Evaluator) fail(st *models.State, res *Result, err error) {
	res.Errors++
	level := slog.LevelError
	var perm *models.PermissionError
	if errors.As(err, &perm) {
		level = slog.LevelWarn
	}
	e.logger().Log(context.Background(), level, "daemon rule failed", "error", err)
	st.Record(models.LevelError, Source, err.Error())
}

func (e *Evaluator) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// DefaultAgentPermissions is what the built-in monitoring agent may do.
var DefaultAgentPermissions = []catalog.Permission{
	catalog.PermReadServer,
	catalog.PermReadNetwork,
	catalog.PermReadPower,
	catalog.PermReadCooling,
	catalog.PermWritePlayerNotify,
	catalog.PermWritePlayerAlert,
	catalog.PermWriteSystemLog,
}
