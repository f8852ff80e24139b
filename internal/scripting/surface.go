// Package scripting is the boundary between the simulation and the external
// script sandbox. A Surface exposes read-only queries and a narrow set of
// writes, each gated by the calling agent's permissions.
package scripting

import (
	"context"
	"maps"

	"github.com/tphummel/rackops/internal/catalog"
	"github.com/tphummel/rackops/internal/layout"
	"github.com/tphummel/rackops/internal/ledger"
	"github.com/tphummel/rackops/internal/models"
	"github.com/tphummel/rackops/internal/scheduler"
)

// Source is the event-log source for entries written by scripts.
const Source = "script"

// Executor runs user scripts. Implementations live outside this module; the
// simulation calls Run synchronously and treats it as atomic.
type Executor interface {
	Run(ctx context.Context, command string, args []string, s *Surface) error
}

// Env is the static machinery a Surface needs.
type Env struct {
	Catalog   *catalog.Catalog
	Scheduler *scheduler.Scheduler
	Params    ledger.Params
}

// Surface is bound to one agent and one state for the duration of a call.
type Surface struct {
	env   Env
	st    *models.State
	agent *models.Agent
}

// NewSurface binds env and st to agent. A nil agent has no permissions.
func NewSurface(env Env, st *models.State, agent *models.Agent) *Surface {
	return &Surface{env: env, st: st, agent: agent}
}

// Agent returns the name of the bound agent.
func (s *Surface) Agent() string {
	if s.agent == nil {
		return ""
	}
	return s.agent.Name
}

func (s *Surface) require(p catalog.Permission) error {
	if !s.agent.Has(p) {
		return &models.PermissionError{Agent: s.Agent(), Permission: string(p)}
	}
	return nil
}

// DeviceView is the read-only shape of a device returned to scripts.
type DeviceView struct {
	ID         string              `json:"id"`
	Type       string              `json:"type"`
	Category   catalog.Category    `json:"category"`
	Slot       string              `json:"slot"`
	Status     models.DeviceStatus `json:"status"`
	Hostname   string              `json:"hostname,omitempty"`
	InternalIP string              `json:"internal_ip,omitempty"`
	PublicIP   string              `json:"public_ip,omitempty"`
}

// ListDevices requires read:server.
func (s *Surface) ListDevices() ([]DeviceView, error) {
	if err := s.require(catalog.PermReadServer); err != nil {
		return nil, err
	}
	placements := layout.ListDevicesByStatus(s.st.Layout, layout.AllDevices)
	out := make([]DeviceView, 0, len(placements))
	for _, p := range placements {
		def, _ := s.env.Catalog.HardwareByID(p.Device.Type)
		out = append(out, DeviceView{
			ID:         p.Device.ID,
			Type:       p.Device.Type,
			Category:   def.Category,
			Slot:       p.Slot.ID,
			Status:     p.Device.Status,
			Hostname:   p.Device.Hostname,
			InternalIP: p.Device.InternalIP,
			PublicIP:   p.Device.PublicIP,
		})
	}
	return out, nil
}

// DeviceMetrics requires read:server.
func (s *Surface) DeviceMetrics(id string) (Metrics, error) {
	if err := s.require(catalog.PermReadServer); err != nil {
		return Metrics{}, err
	}
	p, ok := layout.FindDevice(s.st.Layout, id)
	if !ok {
		return Metrics{}, models.ErrNotFound
	}
	return MetricsFor(s.env.Catalog, s.st, p.Device), nil
}

// Cash is readable by every agent.
func (s *Surface) Cash() float64 { return s.st.Cash }

// Power requires read:power.
func (s *Surface) Power() (models.Power, error) {
	if err := s.require(catalog.PermReadPower); err != nil {
		return models.Power{}, err
	}
	return s.st.Power, nil
}

// CoolingReading is cooling plus the derived room temperature.
type CoolingReading struct {
	models.Cooling
	ServerRoomTemp float64 `json:"server_room_temp"`
}

// Cooling requires read:cooling.
func (s *Surface) Cooling() (CoolingReading, error) {
	if err := s.require(catalog.PermReadCooling); err != nil {
		return CoolingReading{}, err
	}
	return CoolingReading{Cooling: s.st.Cooling, ServerRoomTemp: s.st.ServerRoomTemp}, nil
}

// Network requires read:network. The public address map is copied.
func (s *Surface) Network() (models.Network, error) {
	if err := s.require(catalog.PermReadNetwork); err != nil {
		return models.Network{}, err
	}
	n := s.st.Network
	n.AssignedPublicIPs = maps.Clone(s.st.Network.AssignedPublicIPs)
	return n, nil
}

// CreateTask requires write:server.
func (s *Surface) CreateTask(req scheduler.Request) (*models.Task, error) {
	if err := s.require(catalog.PermWriteServer); err != nil {
		return nil, err
	}
	return s.env.Scheduler.Create(s.st, req)
}

// SetGridActive requires write:power.
func (s *Surface) SetGridActive(active bool) error {
	if err := s.require(catalog.PermWritePower); err != nil {
		return err
	}
	ledger.SetGridActive(s.st, active)
	ledger.Refresh(s.env.Catalog, s.env.Params, s.st)
	return nil
}

// SetHVACMode requires write:cooling.
func (s *Surface) SetHVACMode(mode models.HVACMode) error {
	if err := s.require(catalog.PermWriteCooling); err != nil {
		return err
	}
	if err := ledger.SetHVACMode(s.st, mode); err != nil {
		return err
	}
	ledger.Refresh(s.env.Catalog, s.env.Params, s.st)
	return nil
}

// Hire requires write:employee.
func (s *Surface) Hire(name string, skill catalog.Skill) (*models.Employee, error) {
	if err := s.require(catalog.PermWriteEmployee); err != nil {
		return nil, err
	}
	return s.env.Scheduler.Hire(s.st, name, skill)
}

// Toast requires write:player:notify.
func (s *Surface) Toast(msg string) error {
	if err := s.require(catalog.PermWritePlayerNotify); err != nil {
		return err
	}
	s.st.Notify(models.NotifyToast, msg)
	return nil
}

// Alert requires write:player:alert.
func (s *Surface) Alert(msg string) error {
	if err := s.require(catalog.PermWritePlayerAlert); err != nil {
		return err
	}
	s.st.Notify(models.NotifyAlert, msg)
	return nil
}

// Log requires write:system:log.
func (s *Surface) Log(level models.LogLevel, msg string) error {
	if err := s.require(catalog.PermWriteSystemLog); err != nil {
		return err
	}
	s.st.Record(level, Source+":"+s.Agent(), msg)
	return nil
}
