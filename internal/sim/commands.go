package sim

import (
	"fmt"
	"slices"

	"github.com/tphummel/rackops/internal/catalog"
	"github.com/tphummel/rackops/internal/daemon"
	"github.com/tphummel/rackops/internal/layout"
	"github.com/tphummel/rackops/internal/ledger"
	"github.com/tphummel/rackops/internal/models"
	"github.com/tphummel/rackops/internal/scheduler"
	"github.com/tphummel/rackops/internal/scripting"
)

// Purchase buys qty boxes of hardware into the loading-dock inventory.
func (e *Engine) Purchase(hardwareID string, qty int) error {
	return e.mutate(func(st *models.State) error {
		def, ok := e.cat.HardwareByID(hardwareID)
		if !ok {
			return models.Invalid("purchase", "unknown hardware %q", hardwareID)
		}
		if qty < 1 {
			return models.Invalid("purchase", "quantity must be at least 1")
		}
		cost := def.Price * float64(qty)
		if !ledger.CanAfford(st.Cash, cost) {
			return models.Invalid("purchase", "cost %.2f exceeds cash %.2f", cost, st.Cash)
		}
		st.Cash -= cost
		st.Inventory[def.ID] += qty
		st.Record(models.LevelInfo, Source, fmt.Sprintf("purchased %d x %s for %.2f", qty, def.Name, cost))
		return nil
	})
}

// Hire adds an employee to the roster.
func (e *Engine) Hire(name string, skill catalog.Skill) (models.Employee, error) {
	var out models.Employee
	err := e.mutate(func(st *models.State) error {
		emp, err := e.sched.Hire(st, name, skill)
		if err != nil {
			return err
		}
		out = *emp
		return nil
	})
	return out, err
}

// CreateTask validates and queues a task.
func (e *Engine) CreateTask(req scheduler.Request) (models.Task, error) {
	var out models.Task
	err := e.mutate(func(st *models.State) error {
		t, err := e.sched.Create(st, req)
		if err != nil {
			return err
		}
		out = *t
		return nil
	})
	return out, err
}

// AbortTask removes a queued task and frees its employee immediately.
func (e *Engine) AbortTask(id string) error {
	return e.mutate(func(st *models.State) error {
		return e.sched.Abort(st, id)
	})
}

// RegisterAgent creates or replaces a scripting agent.
func (e *Engine) RegisterAgent(name string, perms []catalog.Permission) error {
	return e.mutate(func(st *models.State) error {
		if name == "" {
			return models.Invalid("register agent", "name is required")
		}
		for _, p := range perms {
			if !catalog.ValidPermission(p) {
				return models.Invalid("register agent", "unknown permission %q", p)
			}
		}
		st.Agents[name] = &models.Agent{Name: name, Permissions: slices.Clone(perms)}
		return nil
	})
}

// DeployDaemon installs (or replaces) the daemon watching d.Target.
func (e *Engine) DeployDaemon(d models.Daemon) error {
	return e.mutate(func(st *models.State) error {
		if err := daemon.Validate(&d); err != nil {
			return err
		}
		if _, ok := layout.FindDevice(st.Layout, d.Target); !ok {
			return models.Invalid("deploy daemon", "device %q does not exist", d.Target)
		}
		if _, ok := st.Agents[d.Agent]; !ok {
			return models.Invalid("deploy daemon", "agent %q is not registered", d.Agent)
		}
		d.DeployedAt = st.Time
		d.Firing = nil
		d.Rules = slices.Clone(d.Rules)
		st.Daemons[d.Target] = &d
		st.Record(models.LevelInfo, Source, fmt.Sprintf("deployed daemon %s on %s with %d rules", d.Agent, d.Target, len(d.Rules)))
		return nil
	})
}

// RemoveDaemon stops monitoring target.
func (e *Engine) RemoveDaemon(target string) error {
	return e.mutate(func(st *models.State) error {
		if _, ok := st.Daemons[target]; !ok {
			return fmt.Errorf("daemon %s: %w", target, models.ErrNotFound)
		}
		delete(st.Daemons, target)
		return nil
	})
}

// SetGridActive connects or disconnects the utility feed.
func (e *Engine) SetGridActive(active bool) error {
	return e.mutate(func(st *models.State) error {
		ledger.SetGridActive(st, active)
		state := "disconnected"
		if active {
			state = "connected"
		}
		st.Record(models.LevelWarn, Source, "utility grid "+state)
		return nil
	})
}

// SetHVACMode switches the building cooling profile.
func (e *Engine) SetHVACMode(mode models.HVACMode) error {
	return e.mutate(func(st *models.State) error {
		return ledger.SetHVACMode(st, mode)
	})
}

// SignISP leases an uplink. Switching provider requires that no public
// address from the old block is still assigned.
func (e *Engine) SignISP(id string) error {
	return e.mutate(func(st *models.State) error {
		isp, ok := e.cat.ISPByID(id)
		if !ok {
			return models.Invalid("sign isp", "unknown ISP contract %q", id)
		}
		if st.Network.ISPContract == id {
			return nil
		}
		if len(st.Network.AssignedPublicIPs) > 0 {
			return models.Invalid("sign isp", "%d public addresses still assigned from %s",
				len(st.Network.AssignedPublicIPs), st.Network.PublicIPBlock)
		}
		st.Network.ISPContract = isp.ID
		st.Network.PublicIPBlock = isp.PublicIPBlock
		st.Record(models.LevelInfo, Source, fmt.Sprintf("signed %s (%g Mbps, %s)", isp.Name, isp.BandwidthMbps, isp.PublicIPBlock))
		return nil
	})
}

// AcceptClient signs a hosting customer if the floor can serve it now.
func (e *Engine) AcceptClient(id string) error {
	return e.mutate(func(st *models.State) error {
		c, ok := e.cat.ClientByID(id)
		if !ok {
			return models.Invalid("accept client", "unknown client contract %q", id)
		}
		if slices.Contains(st.Clients, id) {
			return models.Invalid("accept client", "%s is already a client", c.Name)
		}
		servers := networkedServers(e.cat, st)
		bandwidth := st.Network.Capacity
		for _, other := range st.Clients {
			if oc, ok := e.cat.ClientByID(other); ok {
				servers -= oc.RequiredServers
				bandwidth -= oc.BandwidthDemand
			}
		}
		if c.RequiredServers > servers {
			return models.Invalid("accept client", "%s needs %d networked servers, %d free", c.Name, c.RequiredServers, max(servers, 0))
		}
		if c.BandwidthDemand > bandwidth {
			return models.Invalid("accept client", "%s needs %g Mbps, %g free", c.Name, c.BandwidthDemand, max(bandwidth, 0))
		}
		st.Clients = append(st.Clients, id)
		st.Record(models.LevelInfo, Source, "signed client "+c.Name)
		return nil
	})
}

// CancelClient ends a client contract.
func (e *Engine) CancelClient(id string) error {
	return e.mutate(func(st *models.State) error {
		i := slices.Index(st.Clients, id)
		if i < 0 {
			return fmt.Errorf("client %s: %w", id, models.ErrNotFound)
		}
		st.Clients = slices.Delete(st.Clients, i, i+1)
		return nil
	})
}

// InjectFailure knocks an active device into an OFFLINE_* state.
func (e *Engine) InjectFailure(deviceID string, status models.DeviceStatus) error {
	return e.mutate(func(st *models.State) error {
		if !status.Failed() {
			return models.Invalid("inject failure", "%s is not a failure state", status)
		}
		p, ok := layout.FindDevice(st.Layout, deviceID)
		if !ok {
			return fmt.Errorf("device %s: %w", deviceID, models.ErrNotFound)
		}
		if !p.Device.Status.Active() {
			return models.Invalid("inject failure", "device %s is %s, not online", deviceID, p.Device.Status)
		}
		p.Device.Status = status
		msg := fmt.Sprintf("device %s in %s went %s", deviceID, p.Slot.ID, status)
		st.Record(models.LevelError, Source, msg)
		st.Notify(models.NotifyAlert, msg)
		return nil
	})
}

// SetPaused suspends or resumes ticking.
func (e *Engine) SetPaused(paused bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.st.Paused = paused
}

// SetSpeed changes the game speed multiplier.
func (e *Engine) SetSpeed(speed float64) error {
	return e.mutate(func(st *models.State) error {
		if !slices.Contains(e.cfg.Speeds, speed) {
			return models.Invalid("set speed", "speed %g is not one of %v", speed, e.cfg.Speeds)
		}
		st.Speed = speed
		return nil
	})
}

// TakeNotifications returns pending toasts and unacknowledged alerts.
// Toasts are removed as they are handed out; alerts stay until acknowledged.
func (e *Engine) TakeNotifications() []models.Notification {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.Notification, 0, len(e.st.Notifications))
	kept := e.st.Notifications[:0]
	for _, n := range e.st.Notifications {
		out = append(out, n)
		if n.Kind == models.NotifyAlert {
			kept = append(kept, n)
		}
	}
	e.st.Notifications = kept
	return out
}

// AcknowledgeAlert dismisses a blocking alert.
func (e *Engine) AcknowledgeAlert(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, n := range e.st.Notifications {
		if n.ID == id {
			e.st.Notifications = slices.Delete(e.st.Notifications, i, i+1)
			return nil
		}
	}
	return fmt.Errorf("notification %s: %w", id, models.ErrNotFound)
}

// Events returns up to limit of the newest event-log entries, oldest first.
func (e *Engine) Events(limit int) []models.LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	log := e.st.EventLog
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}
	return slices.Clone(log)
}

// WithSurface runs fn as agent against a working copy of the state. It is
// how the external script sandbox reaches the simulation. The copy replaces
// the live state only when fn succeeds, so a failing script leaves no
// partial writes behind.
func (e *Engine) WithSurface(agent string, fn func(*scripting.Surface) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.st.Agents[agent]; !ok {
		return fmt.Errorf("agent %s: %w", agent, models.ErrNotFound)
	}
	work := e.st.Clone()
	if err := fn(scripting.NewSurface(e.env(), work, work.Agents[agent])); err != nil {
		return err
	}
	e.st = work
	ledger.Refresh(e.cat, e.cfg.Ledger, e.st)
	e.trim(e.st)
	return nil
}
