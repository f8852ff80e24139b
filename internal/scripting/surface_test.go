package scripting_test

import (
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

func setup() (scripting.Env, *models.State) {
	cat := catalog.Default()
	env := scripting.Env{Catalog: cat, Scheduler: scheduler.New(cat, nil), Params: ledger.DefaultParams()}
	st := models.NewState(5000, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))
	st.Layout = append(st.Layout, &models.RackSlot{ID: "A1", PDU: "pdu-1", Contents: []*models.DeviceInstance{
		{ID: "pdu-1", Type: "pdu_basic_01", Status: models.StatusOnline},
		{ID: "web-1", Type: "srv_web_01", Status: models.StatusNetworked, Hostname: "node-010", InternalIP: "10.0.0.10", PublicIP: "203.0.113.1"},
	}})
	st.Network.AssignedPublicIPs["web-1"] = "203.0.113.1"
	ledger.Refresh(cat, env.Params, st)
	return env, st
}

func agent(perms ...catalog.Permission) *models.Agent {
	return &models.Agent{Name: "bot", Permissions: perms}
}

func TestSurface_DeniedWithoutPermission(t *testing.T) {
	env, st := setup()
	s := scripting.NewSurface(env, st, agent())

	calls := map[string]func() error{
		"ListDevices":   func() error { _, err := s.ListDevices(); return err },
		"DeviceMetrics": func() error { _, err := s.DeviceMetrics("web-1"); return err },
		"Power":         func() error { _, err := s.Power(); return err },
		"Cooling":       func() error { _, err := s.Cooling(); return err },
		"Network":       func() error { _, err := s.Network(); return err },
		"CreateTask": func() error {
			_, err := s.CreateTask(scheduler.Request{Template: "unbox_hardware", HardwareID: "rack_std_01"})
			return err
		},
		"SetGridActive": func() error { return s.SetGridActive(false) },
		"SetHVACMode":   func() error { return s.SetHVACMode(models.HVACBoost) },
		"Hire":          func() error { _, err := s.Hire("Ada", catalog.SkillHardwareTechnician); return err },
		"Toast":         func() error { return s.Toast("hi") },
		"Alert":         func() error { return s.Alert("hi") },
		"Log":           func() error { return s.Log(models.LevelInfo, "hi") },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			var perr *models.PermissionError
			require.ErrorAs(t, call(), &perr)
			assert.Equal(t, "bot", perr.Agent)
		})
	}

	assert.True(t, st.Power.GridActive)
	assert.Equal(t, models.HVACEco, st.Cooling.Mode)
	assert.Empty(t, st.Tasks)
	assert.Empty(t, st.Employees)
	assert.Empty(t, st.Notifications)
	assert.Equal(t, 5000.0, st.Cash)
}

func TestSurface_NilAgent(t *testing.T) {
	env, st := setup()
	s := scripting.NewSurface(env, st, nil)
	assert.Empty(t, s.Agent())
	assert.Equal(t, 5000.0, s.Cash())
	var perr *models.PermissionError
	assert.ErrorAs(t, s.Toast("x"), &perr)
}

func TestSurface_Reads(t *testing.T) {
	env, st := setup()
	s := scripting.NewSurface(env, st, agent(
		catalog.PermReadServer, catalog.PermReadPower, catalog.PermReadCooling, catalog.PermReadNetwork))

	devices, err := s.ListDevices()
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, catalog.CategoryServer, devices[1].Category)
	assert.Equal(t, "A1", devices[1].Slot)

	m, err := s.DeviceMetrics("web-1")
	require.NoError(t, err)
	assert.Equal(t, 350.0, m.PowerDraw)
	_, err = s.DeviceMetrics("ghost")
	assert.ErrorIs(t, err, models.ErrNotFound)

	p, err := s.Power()
	require.NoError(t, err)
	assert.Equal(t, st.Power, p)

	c, err := s.Cooling()
	require.NoError(t, err)
	assert.Equal(t, st.ServerRoomTemp, c.ServerRoomTemp)

	n, err := s.Network()
	require.NoError(t, err)
	n.AssignedPublicIPs["web-1"] = "changed"
	assert.Equal(t, "203.0.113.1", st.Network.AssignedPublicIPs["web-1"])
}

func TestSurface_Writes(t *testing.T) {
	env, st := setup()
	s := scripting.NewSurface(env, st, agent(catalog.Permissions...))

	require.NoError(t, s.SetGridActive(false))
	assert.False(t, st.Power.GridActive)
	assert.Zero(t, st.Power.Capacity, "aggregates are refreshed immediately")

	require.NoError(t, s.SetHVACMode(models.HVACBoost))
	assert.Equal(t, models.HVACBoost, st.Cooling.Mode)
	var verr *models.ValidationError
	assert.ErrorAs(t, s.SetHVACMode("arctic"), &verr)

	task, err := s.CreateTask(scheduler.Request{Template: "unbox_hardware", HardwareID: "rack_std_01"})
	require.NoError(t, err)
	assert.Equal(t, models.TaskPending, task.Status)
	assert.Equal(t, 3800.0, st.Cash)

	_, err = s.Hire("Ada", catalog.SkillNetworkEngineer)
	require.NoError(t, err)
	assert.Len(t, st.Employees, 1)

	require.NoError(t, s.Toast("t"))
	require.NoError(t, s.Alert("a"))
	require.Len(t, st.Notifications, 2)
	assert.Equal(t, models.NotifyToast, st.Notifications[0].Kind)
	assert.Equal(t, models.NotifyAlert, st.Notifications[1].Kind)

	require.NoError(t, s.Log(models.LevelWarn, "hello"))
	last := st.EventLog[len(st.EventLog)-1]
	assert.Equal(t, "script:bot", last.Source)
	assert.Equal(t, models.LevelWarn, last.Level)
}

func TestMetricsFor(t *testing.T) {
	env, st := setup()
	fuel := 120.0
	gen := &models.DeviceInstance{ID: "gen-1", Type: "gen_diesel_01", Status: models.StatusInstalled, FuelLevel: &fuel}

	m := scripting.MetricsFor(env.Catalog, st, gen)
	assert.Zero(t, m.PowerDraw, "inactive devices draw nothing")
	assert.Equal(t, 120.0, m.FuelLevel)

	web, _ := scripting.NewSurface(env, st, agent(catalog.PermReadServer)).DeviceMetrics("web-1")
	tests := []struct {
		name string
		want any
	}{
		{"powerDraw", 350.0},
		{"heatOutput", 340.0},
		{"status", "NETWORKED"},
		{"temperature", st.ServerRoomTemp},
		{"fuelLevel", 0.0},
		{"hostname", "node-010"},
		{"internalIp", "10.0.0.10"},
		{"publicIp", "203.0.113.1"},
	}
	for _, tt := range tests {
		got, ok := web.Lookup(tt.name)
		require.True(t, ok, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
	_, ok := web.Lookup("uptime")
	assert.False(t, ok)
}
