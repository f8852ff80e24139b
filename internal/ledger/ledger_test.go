package ledger_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphummel/rackops/internal/catalog"
	"github.com/tphummel/rackops/internal/ledger"
	"github.com/tphummel/rackops/internal/models"
)

var start = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

func fuel(f float64) *float64 { return &f }

func stateWith(devices ...*models.DeviceInstance) *models.State {
	st := models.NewState(10000, start)
	st.Layout = append(st.Layout, &models.RackSlot{ID: "A1", PDU: "pdu-1", Contents: devices})
	return st
}

func TestRecompute_SumsActiveDevices(t *testing.T) {
	cat := catalog.Default()
	p := ledger.DefaultParams()
	st := stateWith(
		&models.DeviceInstance{ID: "web-1", Type: "srv_web_01", Status: models.StatusOnline},
		&models.DeviceInstance{ID: "web-2", Type: "srv_web_01", Status: models.StatusInstalled},
		&models.DeviceInstance{ID: "db-1", Type: "srv_db_01", Status: models.StatusNetworked},
	)

	tot := ledger.Recompute(cat, p, st.Layout, true, models.HVACEco)
	assert.Equal(t, p.GridCapacity, tot.PowerCapacity)
	assert.Equal(t, p.HVACEcoDraw+350+650, tot.PowerLoad)
	assert.Equal(t, 340.0+630.0, tot.CoolingLoad)
	assert.Equal(t, p.HVACEcoCooling, tot.CoolingCapacity)
	assert.Equal(t, p.AmbientTemp, tot.ServerRoomTemp)
	assert.False(t, tot.Overloaded())
}

func TestRecompute_Idempotent(t *testing.T) {
	cat := catalog.Default()
	p := ledger.DefaultParams()
	st := stateWith(&models.DeviceInstance{ID: "gpu-1", Type: "srv_gpu_01", Status: models.StatusOnline})

	first := ledger.Refresh(cat, p, st)
	second := ledger.Refresh(cat, p, st)
	assert.Equal(t, first, second)
	assert.Equal(t, first.PowerLoad, st.Power.Load)
}

func TestRecompute_GridOff(t *testing.T) {
	cat := catalog.Default()
	p := ledger.DefaultParams()
	st := stateWith(&models.DeviceInstance{ID: "web-1", Type: "srv_web_01", Status: models.StatusOnline})

	tot := ledger.Recompute(cat, p, st.Layout, false, models.HVACEco)
	assert.Zero(t, tot.PowerCapacity)
	assert.Greater(t, tot.PowerLoad, tot.PowerCapacity)
	assert.True(t, tot.Overloaded())
	assert.Zero(t, tot.PowerLoadPct())
	assert.False(t, math.IsNaN(tot.PowerLoadPct()))
}

func TestRecompute_Generators(t *testing.T) {
	cat := catalog.Default()
	p := ledger.DefaultParams()
	gen, _ := cat.HardwareByID("gen_diesel_01")

	fueled := stateWith(&models.DeviceInstance{ID: "gen-1", Type: "gen_diesel_01", Status: models.StatusOnline, FuelLevel: fuel(10)})
	assert.Equal(t, gen.PowerCapacity, ledger.Recompute(cat, p, fueled.Layout, false, models.HVACEco).PowerCapacity)

	dry := stateWith(&models.DeviceInstance{ID: "gen-1", Type: "gen_diesel_01", Status: models.StatusOnline, FuelLevel: fuel(0)})
	assert.Zero(t, ledger.Recompute(cat, p, dry.Layout, false, models.HVACEco).PowerCapacity)
}

func TestRecompute_BoostAndCRAC(t *testing.T) {
	cat := catalog.Default()
	p := ledger.DefaultParams()
	crac, _ := cat.HardwareByID("crac_small_01")
	st := stateWith(&models.DeviceInstance{ID: "crac-1", Type: "crac_small_01", Status: models.StatusOnline})

	tot := ledger.Recompute(cat, p, st.Layout, true, models.HVACBoost)
	assert.Equal(t, p.HVACBoostDraw+crac.PowerDraw, tot.PowerLoad)
	assert.Equal(t, p.HVACBoostCooling+crac.CoolingCapacity, tot.CoolingCapacity)
}

func TestTemperature(t *testing.T) {
	p := ledger.DefaultParams()
	assert.Equal(t, p.AmbientTemp, ledger.Temperature(p, 100, 5000))
	assert.InDelta(t, p.AmbientTemp+1000*p.ThermalFactor, ledger.Temperature(p, 3500, 2500), 1e-9)
}

func TestAccrueEnergy(t *testing.T) {
	st := models.NewState(0, start)
	st.Power.Load = 2000
	ledger.AccrueEnergy(st, 1.5)
	assert.InDelta(t, 3.0, st.Power.TotalConsumedKWh, 1e-9)
	assert.InDelta(t, 3.0, st.Power.MonthConsumedKWh, 1e-9)

	ledger.AccrueEnergy(st, -1)
	assert.InDelta(t, 3.0, st.Power.TotalConsumedKWh, 1e-9)
}

func TestBurnFuel(t *testing.T) {
	cat := catalog.Default()
	gen, _ := cat.HardwareByID("gen_diesel_01")
	st := stateWith(&models.DeviceInstance{ID: "gen-1", Type: "gen_diesel_01", Status: models.StatusOnline, FuelLevel: fuel(gen.FuelCapacity)})

	ledger.BurnFuel(cat, st, 1)
	assert.Equal(t, gen.FuelCapacity, *st.Layout[0].Contents[0].FuelLevel, "grid power burns no fuel")

	ledger.SetGridActive(st, false)
	ledger.BurnFuel(cat, st, 2)
	assert.InDelta(t, gen.FuelCapacity-2*gen.FuelConsumption, *st.Layout[0].Contents[0].FuelLevel, 1e-9)

	ledger.BurnFuel(cat, st, 1000)
	assert.Zero(t, *st.Layout[0].Contents[0].FuelLevel)
}

func TestRefresh_Network(t *testing.T) {
	cat := catalog.Default()
	st := models.NewState(0, start)
	st.Network.ISPContract = "isp_basic"
	st.Clients = []string{"client_blog", "client_shop"}

	ledger.Refresh(cat, ledger.DefaultParams(), st)
	assert.Equal(t, 100.0, st.Network.Capacity)
	assert.Equal(t, 50.0, st.Network.Load)
}

func TestSetHVACMode(t *testing.T) {
	st := models.NewState(0, start)
	require.NoError(t, ledger.SetHVACMode(st, models.HVACBoost))
	assert.Equal(t, models.HVACBoost, st.Cooling.Mode)

	var verr *models.ValidationError
	assert.ErrorAs(t, ledger.SetHVACMode(st, "turbo"), &verr)
	assert.Equal(t, models.HVACBoost, st.Cooling.Mode)
}

func TestDevicePower(t *testing.T) {
	def := catalog.HardwareDefinition{PowerDraw: 100, HeatOutput: 90}
	draw, heat := ledger.DevicePower(def, models.StatusOnline)
	assert.Equal(t, 100.0, draw)
	assert.Equal(t, 90.0, heat)
	draw, heat = ledger.DevicePower(def, models.StatusOfflineHeat)
	assert.Zero(t, draw)
	assert.Zero(t, heat)
}
