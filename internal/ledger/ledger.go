// Package ledger derives aggregate power, cooling, temperature and network
// figures from the layout, and arbitrates cash and staged inventory.
package ledger

import (
	"math"

	"github.com/tphummel/rackops/internal/catalog"
	"github.com/tphummel/rackops/internal/models"
)

// Params are the building constants the recompute depends on.
type Params struct {
	GridCapacity     float64 `json:"grid_capacity"`
	HVACEcoDraw      float64 `json:"hvac_eco_draw"`
	HVACBoostDraw    float64 `json:"hvac_boost_draw"`
	HVACEcoCooling   float64 `json:"hvac_eco_cooling"`
	HVACBoostCooling float64 `json:"hvac_boost_cooling"`
	AmbientTemp      float64 `json:"ambient_temp"`
	// ThermalFactor is degrees Celsius per watt of uncooled heat.
	ThermalFactor float64 `json:"thermal_factor"`
}

// DefaultParams returns the constants used by a new game.
func DefaultParams() Params {
	return Params{
		GridCapacity:     20000,
		HVACEcoDraw:      400,
		HVACBoostDraw:    1200,
		HVACEcoCooling:   2500,
		HVACBoostCooling: 6000,
		AmbientTemp:      21,
		ThermalFactor:    0.005,
	}
}

// Totals is the output of Recompute.
type Totals struct {
	PowerCapacity   float64 `json:"power_capacity"`
	PowerLoad       float64 `json:"power_load"`
	CoolingCapacity float64 `json:"cooling_capacity"`
	CoolingLoad     float64 `json:"cooling_load"`
	ServerRoomTemp  float64 `json:"server_room_temp"`
}

// PowerLoadPct is load as a percentage of capacity, 0 when there is none.
func (t Totals) PowerLoadPct() float64 { return pct(t.PowerLoad, t.PowerCapacity) }

// CoolingLoadPct is heat as a percentage of cooling capacity, 0 when there is none.
func (t Totals) CoolingLoadPct() float64 { return pct(t.CoolingLoad, t.CoolingCapacity) }

// Overloaded reports whether load exceeds capacity.
func (t Totals) Overloaded() bool { return t.PowerLoad > t.PowerCapacity }

func pct(load, capacity float64) float64 {
	if capacity <= 0 {
		return 0
	}
	return load / capacity * 100
}

// Recompute scans every slot and sums the contribution of active devices.
// It does not modify its inputs.
func Recompute(cat *catalog.Catalog, p Params, slots []*models.RackSlot, gridActive bool, mode models.HVACMode) Totals {
	var t Totals
	if gridActive {
		t.PowerCapacity = p.GridCapacity
	}
	if mode == models.HVACBoost {
		t.PowerLoad = p.HVACBoostDraw
		t.CoolingCapacity = p.HVACBoostCooling
	} else {
		t.PowerLoad = p.HVACEcoDraw
		t.CoolingCapacity = p.HVACEcoCooling
	}

	for _, slot := range slots {
		for _, d := range slot.Contents {
			if !d.Status.Active() {
				continue
			}
			def, ok := cat.HardwareByID(d.Type)
			if !ok {
				continue
			}
			t.PowerLoad += def.PowerDraw
			t.CoolingLoad += def.HeatOutput
			t.CoolingCapacity += def.CoolingCapacity
			switch def.Category {
			case catalog.CategorySolar, catalog.CategoryBattery:
				t.PowerCapacity += def.PowerCapacity
			case catalog.CategoryGenerator:
				if d.FuelLevel != nil && *d.FuelLevel > 0 {
					t.PowerCapacity += def.PowerCapacity
				}
			}
		}
	}

	t.ServerRoomTemp = Temperature(p, t.CoolingLoad, t.CoolingCapacity)
	return t
}

// Temperature rises linearly with uncooled heat and never drops below ambient.
func Temperature(p Params, heat, cooling float64) float64 {
	return p.AmbientTemp + math.Max(0, heat-cooling)*p.ThermalFactor
}

// Apply stores recompute output on the state.
func Apply(st *models.State, t Totals) {
	st.Power.Capacity = t.PowerCapacity
	st.Power.Load = t.PowerLoad
	st.Cooling.Capacity = t.CoolingCapacity
	st.Cooling.Load = t.CoolingLoad
	st.ServerRoomTemp = t.ServerRoomTemp
}

// RecomputeNetwork derives upstream capacity from the ISP contract and load
// from the signed client contracts.
func RecomputeNetwork(cat *catalog.Catalog, st *models.State) (capacity, load float64) {
	if isp, ok := cat.ISPByID(st.Network.ISPContract); ok {
		capacity = isp.BandwidthMbps
	}
	for _, id := range st.Clients {
		if c, ok := cat.ClientByID(id); ok {
			load += c.BandwidthDemand
		}
	}
	return capacity, load
}

// DevicePower is what one device currently draws; zero unless it is active.
func DevicePower(def catalog.HardwareDefinition, status models.DeviceStatus) (draw, heat float64) {
	if !status.Active() {
		return 0, 0
	}
	return def.PowerDraw, def.HeatOutput
}

// AccrueEnergy adds the energy used at load watts over hours to the counters.
func AccrueEnergy(st *models.State, hours float64) {
	if hours <= 0 {
		return
	}
	kwh := st.Power.Load * hours / 1000
	st.Power.TotalConsumedKWh += kwh
	st.Power.MonthConsumedKWh += kwh
}

// BurnFuel drains active generators while the grid is down. Fuel never goes
// below zero.
func BurnFuel(cat *catalog.Catalog, st *models.State, hours float64) {
	if st.Power.GridActive || hours <= 0 {
		return
	}
	for _, slot := range st.Layout {
		for _, d := range slot.Contents {
			if !d.Status.Active() || d.FuelLevel == nil {
				continue
			}
			def, ok := cat.HardwareByID(d.Type)
			if !ok || def.Category != catalog.CategoryGenerator {
				continue
			}
			left := math.Max(0, *d.FuelLevel-def.FuelConsumption*hours)
			d.FuelLevel = &left
		}
	}
}

// Refresh recomputes every aggregate and stores it on the state.
func Refresh(cat *catalog.Catalog, p Params, st *models.State) Totals {
	t := Recompute(cat, p, st.Layout, st.Power.GridActive, st.Cooling.Mode)
	Apply(st, t)
	st.Network.Capacity, st.Network.Load = RecomputeNetwork(cat, st)
	return t
}

// SetGridActive connects or disconnects the utility feed.
func SetGridActive(st *models.State, active bool) {
	st.Power.GridActive = active
}

// SetHVACMode switches the building cooling profile.
func SetHVACMode(st *models.State, mode models.HVACMode) error {
	if mode != models.HVACEco && mode != models.HVACBoost {
		return models.Invalid("set hvac mode", "unknown mode %q", mode)
	}
	st.Cooling.Mode = mode
	return nil
}
