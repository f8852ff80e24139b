package scripting

import (
	"github.com/tphummel/rackops/internal/catalog"
	"github.com/tphummel/rackops/internal/ledger"
	"github.com/tphummel/rackops/internal/models"
)

// Metrics is the live telemetry snapshot of one device.
type Metrics struct {
	DeviceID    string              `json:"device_id"`
	Type        string              `json:"type"`
	PowerDraw   float64             `json:"powerDraw"`
	HeatOutput  float64             `json:"heatOutput"`
	Status      models.DeviceStatus `json:"status"`
	Temperature float64             `json:"temperature"`
	FuelLevel   float64             `json:"fuelLevel"`
	Hostname    string              `json:"hostname"`
	InternalIP  string              `json:"internalIp"`
	PublicIP    string              `json:"publicIp"`
}

// MetricsFor builds the snapshot for d from the catalog and current state.
func MetricsFor(cat *catalog.Catalog, st *models.State, d *models.DeviceInstance) Metrics {
	m := Metrics{
		DeviceID:    d.ID,
		Type:        d.Type,
		Status:      d.Status,
		Temperature: st.ServerRoomTemp,
		Hostname:    d.Hostname,
		InternalIP:  d.InternalIP,
		PublicIP:    d.PublicIP,
	}
	if def, ok := cat.HardwareByID(d.Type); ok {
		m.PowerDraw, m.HeatOutput = ledger.DevicePower(def, d.Status)
	}
	if d.FuelLevel != nil {
		m.FuelLevel = *d.FuelLevel
	}
	return m
}

// Lookup returns the named metric. Numbers come back as float64 and
// everything else as string.
func (m Metrics) Lookup(name string) (any, bool) {
	switch name {
	case "powerDraw":
		return m.PowerDraw, true
	case "heatOutput":
		return m.HeatOutput, true
	case "status":
		return string(m.Status), true
	case "temperature":
		return m.Temperature, true
	case "fuelLevel":
		return m.FuelLevel, true
	case "hostname":
		return m.Hostname, true
	case "internalIp":
		return m.InternalIP, true
	case "publicIp":
		return m.PublicIP, true
	}
	return nil, false
}
