package daemon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphummel/rackops/internal/catalog"
	"github.com/tphummel/rackops/internal/ledger"
	"github.com/tphummel/rackops/internal/models"
	"github.com/tphummel/rackops/internal/scheduler"
	"github.com/tphummel/rackops/internal/scripting"
)

type fakeExecutor struct {
	calls []string
	err   error
	run   func(s *scripting.Surface) error
}

func (f *fakeExecutor) Run(_ context.Context, command string, _ []string, s *scripting.Surface) error {
	f.calls = append(f.calls, command)
	if f.run != nil {
		return f.run(s)
	}
	return f.err
}

func newEvaluator(exec scripting.Executor) *Evaluator {
	cat := catalog.Default()
	return &Evaluator{
		Env:      scripting.Env{Catalog: cat, Scheduler: scheduler.New(cat, nil), Params: ledger.DefaultParams()},
		Executor: exec,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func monitoredState(rules ...models.Rule) *models.State {
	st := models.NewState(5000, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))
	st.Layout = append(st.Layout, &models.RackSlot{ID: "A1", PDU: "pdu-1", Contents: []*models.DeviceInstance{
		{ID: "pdu-1", Type: "pdu_basic_01", Status: models.StatusOnline},
		{ID: "web-1", Type: "srv_web_01", Status: models.StatusOnline},
	}})
	st.Agents["monitor"] = &models.Agent{Name: "monitor", Permissions: DefaultAgentPermissions}
	st.Daemons["web-1"] = &models.Daemon{Target: "web-1", Agent: "monitor", Rules: rules}
	return st
}

func highDraw(action models.RuleAction, dest string) models.Rule {
	return models.Rule{Metric: "powerDraw", Comparator: models.CompareGreater, Value: 100.0, Action: action, Destination: dest}
}

func TestEvaluate_AlertToPlayer(t *testing.T) {
	e := newEvaluator(nil)
	st := monitoredState(highDraw(models.ActionAlert, models.DestinationPlayerUI))

	res := e.Evaluate(context.Background(), st)
	assert.Equal(t, Result{Fired: 1}, res)
	require.Len(t, st.Notifications, 1)
	assert.Equal(t, models.NotifyAlert, st.Notifications[0].Kind)
	assert.Contains(t, st.Notifications[0].Message, "powerDraw")
}

func TestEvaluate_ConditionFalse(t *testing.T) {
	e := newEvaluator(nil)
	rule := highDraw(models.ActionAlert, models.DestinationPlayerUI)
	rule.Value = 500
	st := monitoredState(rule)

	assert.Equal(t, Result{}, e.Evaluate(context.Background(), st))
	assert.Empty(t, st.Notifications)
}

func TestEvaluate_LogToSystem(t *testing.T) {
	e := newEvaluator(nil)
	rule := highDraw(models.ActionLog, models.DestinationSystemLog)
	rule.Args = []string{"web-1", "is", "busy"}
	st := monitoredState(rule)

	e.Evaluate(context.Background(), st)
	last := st.EventLog[len(st.EventLog)-1]
	assert.Equal(t, "web-1 is busy", last.Message)
	assert.Equal(t, models.LevelInfo, last.Level)
	assert.Equal(t, "script:monitor", last.Source)
}

func TestEvaluate_LevelTriggered(t *testing.T) {
	e := newEvaluator(nil)
	st := monitoredState(highDraw(models.ActionLog, models.DestinationPlayerUI))

	for range 3 {
		e.Evaluate(context.Background(), st)
	}
	assert.Len(t, st.Notifications, 3)
}

func TestEvaluate_EdgeTriggered(t *testing.T) {
	e := newEvaluator(nil)
	e.EdgeTriggered = true
	st := monitoredState(highDraw(models.ActionLog, models.DestinationPlayerUI))
	ctx := context.Background()

	e.Evaluate(ctx, st)
	e.Evaluate(ctx, st)
	assert.Len(t, st.Notifications, 1)

	web := st.Layout[0].Contents[1]
	web.Status = models.StatusOfflineHeat
	e.Evaluate(ctx, st)
	web.Status = models.StatusOnline
	e.Evaluate(ctx, st)
	assert.Len(t, st.Notifications, 2, "fires again after the condition clears")
}

func TestEvaluate_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		rule models.Rule
	}{
		{"unknown metric", models.Rule{Metric: "uptime", Comparator: models.CompareGreater, Value: 1.0, Action: models.ActionAlert, Destination: models.DestinationPlayerUI}},
		{"non-numeric threshold", models.Rule{Metric: "powerDraw", Comparator: models.CompareGreater, Value: "lots", Action: models.ActionAlert, Destination: models.DestinationPlayerUI}},
		{"unknown destination", highDraw(models.ActionAlert, "pager")},
		{"unknown command", models.Rule{Metric: "powerDraw", Comparator: models.CompareGreater, Value: 1.0, Action: models.ActionAlert, Destination: models.DestinationPlayerUI, Command: "siren"}},
		{"no executor", models.Rule{Metric: "powerDraw", Comparator: models.CompareGreater, Value: 1.0, Action: models.ActionScript, Command: "restart.js"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEvaluator(nil)
			st := monitoredState(tt.rule)

			res := e.Evaluate(context.Background(), st)
			assert.Equal(t, Result{Errors: 1}, res)
			assert.Empty(t, st.Notifications)
			last := st.EventLog[len(st.EventLog)-1]
			assert.Equal(t, models.LevelError, last.Level)
			assert.Equal(t, Source, last.Source)
		})
	}
}

func TestEvaluate_MissingTarget(t *testing.T) {
	e := newEvaluator(nil)
	st := monitoredState(highDraw(models.ActionAlert, models.DestinationPlayerUI))
	st.Layout[0].Contents = st.Layout[0].Contents[:1]

	assert.Equal(t, Result{Errors: 1}, e.Evaluate(context.Background(), st))
}

func TestEvaluate_PermissionDenied(t *testing.T) {
	e := newEvaluator(nil)
	st := monitoredState(highDraw(models.ActionAlert, models.DestinationPlayerUI))
	st.Agents["monitor"].Permissions = []catalog.Permission{catalog.PermWritePlayerNotify}

	res := e.Evaluate(context.Background(), st)
	assert.Equal(t, Result{Errors: 1}, res)
	assert.Empty(t, st.Notifications)
	assert.Contains(t, st.EventLog[len(st.EventLog)-1].Message, "write:player:alert")
}

func TestEvaluate_ErrorDoesNotStopOtherRules(t *testing.T) {
	e := newEvaluator(nil)
	st := monitoredState(
		highDraw(models.ActionAlert, "pager"),
		highDraw(models.ActionLog, models.DestinationPlayerUI),
	)
	assert.Equal(t, Result{Fired: 1, Errors: 1}, e.Evaluate(context.Background(), st))
	assert.Len(t, st.Notifications, 1)
}

func TestEvaluate_Script(t *testing.T) {
	exec := &fakeExecutor{run: func(s *scripting.Surface) error {
		_, err := s.CreateTask(scheduler.Request{Template: "unbox_hardware", HardwareID: "rack_std_01"})
		return err
	}}
	e := newEvaluator(exec)
	rule := models.Rule{Metric: "status", Comparator: models.CompareEqual, Value: "ONLINE", Action: models.ActionScript, Command: "order-rack"}
	st := monitoredState(rule)

	// The default agent cannot write:server.
	res := e.Evaluate(context.Background(), st)
	assert.Equal(t, Result{Errors: 1}, res)
	assert.Equal(t, []string{"order-rack"}, exec.calls)
	assert.Empty(t, st.Tasks)

	st.Agents["monitor"].Permissions = append(st.Agents["monitor"].Permissions, catalog.PermWriteServer)
	res = e.Evaluate(context.Background(), st)
	assert.Equal(t, Result{Fired: 1}, res)
	assert.Len(t, st.Tasks, 1)
}

func TestEvaluate_ScriptError(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("sandbox timeout")}
	e := newEvaluator(exec)
	rule := models.Rule{Metric: "powerDraw", Comparator: models.CompareGreater, Value: 1.0, Action: models.ActionScript, Command: "noop"}
	st := monitoredState(rule)

	assert.Equal(t, Result{Errors: 1}, e.Evaluate(context.Background(), st))
	assert.Contains(t, st.EventLog[len(st.EventLog)-1].Message, "sandbox timeout")
}

func TestValidate(t *testing.T) {
	good := highDraw(models.ActionAlert, models.DestinationPlayerUI)
	tests := []struct {
		name    string
		daemon  models.Daemon
		wantErr bool
	}{
		{"valid", models.Daemon{Target: "web-1", Agent: "monitor", Rules: []models.Rule{good}}, false},
		{"no rules", models.Daemon{Target: "web-1", Agent: "monitor"}, false},
		{"no target", models.Daemon{Agent: "monitor", Rules: []models.Rule{good}}, true},
		{"no agent", models.Daemon{Target: "web-1", Rules: []models.Rule{good}}, true},
		{"no metric", models.Daemon{Target: "web-1", Agent: "monitor", Rules: []models.Rule{{Comparator: ">", Action: models.ActionLog}}}, true},
		{"bad comparator", models.Daemon{Target: "web-1", Agent: "monitor", Rules: []models.Rule{{Metric: "powerDraw", Comparator: ">=", Action: models.ActionLog}}}, true},
		{"bad action", models.Daemon{Target: "web-1", Agent: "monitor", Rules: []models.Rule{{Metric: "powerDraw", Comparator: ">", Action: "reboot"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.daemon)
			if tt.wantErr {
				var verr *models.ValidationError
				assert.ErrorAs(t, err, &verr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHolds(t *testing.T) {
	tests := []struct {
		cmp     models.Comparator
		metric  any
		value   any
		want    bool
		wantErr bool
	}{
		{models.CompareGreater, 350.0, 100.0, true, false},
		{models.CompareGreater, 350.0, "400", false, false},
		{models.CompareLess, 10.0, 20, true, false},
		{models.CompareEqual, "ONLINE", "ONLINE", true, false},
		{models.CompareEqual, 5.0, "5", true, false},
		{models.CompareNotEqual, "ONLINE", "NETWORKED", true, false},
		{models.CompareEqual, true, 1, true, false},
		{models.CompareGreater, "ONLINE", 1, false, true},
		{"~", 1.0, 1.0, false, true},
	}
	for _, tt := range tests {
		got, err := holds(tt.cmp, tt.metric, tt.value)
		if tt.wantErr {
			assert.Error(t, err, "%v %s %v", tt.metric, tt.cmp, tt.value)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%v %s %v", tt.metric, tt.cmp, tt.value)
	}
}
