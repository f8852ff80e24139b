package models

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is bumped whenever the serialized State gains fields that
// need more than zero-value backfill.
const SchemaVersion = 2

// State is the whole simulation. It is owned by the tick driver; everything
// else reads a Clone.
type State struct {
	Version int       `json:"version"`
	Cash    float64   `json:"cash"`
	Time    time.Time `json:"time"`
	Paused  bool      `json:"paused"`
	Speed   float64   `json:"speed"`

	Power          Power   `json:"power"`
	Cooling        Cooling `json:"cooling"`
	ServerRoomTemp float64 `json:"server_room_temp"`
	Network        Network `json:"network"`

	Layout    []*RackSlot          `json:"data_center_layout"`
	Staging   []StagedHardwareItem `json:"staged_hardware"`
	Inventory map[string]int       `json:"inventory"`
	Tasks     []*Task              `json:"tasks"`
	Employees []*Employee          `json:"employees"`
	Daemons   map[string]*Daemon   `json:"daemons"`
	Agents    map[string]*Agent    `json:"agents"`
	Clients   []string             `json:"client_contracts"`

	// AbandonedStaged maps staged item ids to the aborted task that still
	// holds them.
	AbandonedStaged map[string]string `json:"abandoned_staged"`

	EventLog      []LogEntry     `json:"event_log"`
	Notifications []Notification `json:"notifications"`

	NextRackSlot   int       `json:"next_rack_slot"`
	NextInternalIP int       `json:"next_internal_ip"`
	NextTaskSeq    uint64    `json:"next_task_seq"`
	LastBilledAt   time.Time `json:"last_billed_at"`
}

// NewState returns a fresh game at start with the given cash.
func NewState(cash float64, start time.Time) *State {
	s := &State{
		Version:      SchemaVersion,
		Cash:         cash,
		Time:         start,
		Speed:        1,
		Power:        Power{GridActive: true},
		Cooling:      Cooling{Mode: HVACEco},
		LastBilledAt: start,
		// .1 is the gateway.
		NextInternalIP: 10,
	}
	s.Backfill()
	return s
}

// Backfill replaces nil collections with empty ones so that states decoded
// from older saves behave like fresh ones.
func (s *State) Backfill() {
	if s.Layout == nil {
		s.Layout = []*RackSlot{}
	}
	for _, slot := range s.Layout {
		if slot.Contents == nil {
			slot.Contents = []*DeviceInstance{}
		}
	}
	if s.Staging == nil {
		s.Staging = []StagedHardwareItem{}
	}
	if s.Inventory == nil {
		s.Inventory = map[string]int{}
	}
	if s.Tasks == nil {
		s.Tasks = []*Task{}
	}
	if s.Employees == nil {
		s.Employees = []*Employee{}
	}
	if s.Daemons == nil {
		s.Daemons = map[string]*Daemon{}
	}
	if s.Agents == nil {
		s.Agents = map[string]*Agent{}
	}
	if s.Clients == nil {
		s.Clients = []string{}
	}
	if s.AbandonedStaged == nil {
		s.AbandonedStaged = map[string]string{}
	}
	if s.Network.AssignedPublicIPs == nil {
		s.Network.AssignedPublicIPs = map[string]string{}
	}
	if s.EventLog == nil {
		s.EventLog = []LogEntry{}
	}
	if s.Notifications == nil {
		s.Notifications = []Notification{}
	}
	if s.Cooling.Mode == "" {
		s.Cooling.Mode = HVACEco
	}
	if s.Speed <= 0 {
		s.Speed = 1
	}
}

// Record appends an entry to the event log stamped with the current sim time.
func (s *State) Record(level LogLevel, source, msg string) {
	s.EventLog = append(s.EventLog, LogEntry{At: s.Time, Level: level, Source: source, Message: msg})
}

// TrimLog drops the oldest event-log entries beyond limit.
func (s *State) TrimLog(limit int) {
	if limit > 0 && len(s.EventLog) > limit {
		s.EventLog = slices.Clone(s.EventLog[len(s.EventLog)-limit:])
	}
}

// TrimNotifications drops the oldest notifications beyond limit.
func (s *State) TrimNotifications(limit int) {
	if limit > 0 && len(s.Notifications) > limit {
		s.Notifications = slices.Clone(s.Notifications[len(s.Notifications)-limit:])
	}
}

// Notify enqueues a UI notification and returns its id.
func (s *State) Notify(kind NotificationKind, msg string) string {
	id := uuid.New().String()
	s.Notifications = append(s.Notifications, Notification{ID: id, Kind: kind, Message: msg, At: s.Time})
	return id
}

// TaskByID returns the queued task with id.
func (s *State) TaskByID(id string) (*Task, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// EmployeeByID returns the employee with id.
func (s *State) EmployeeByID(id string) (*Employee, bool) {
	for _, e := range s.Employees {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

// Clone returns a deep copy that shares no mutable memory with s.
func (s *State) Clone() *State {
	c := *s

	c.Network.AssignedPublicIPs = maps.Clone(s.Network.AssignedPublicIPs)

	c.Layout = make([]*RackSlot, len(s.Layout))
	for i, slot := range s.Layout {
		ns := *slot
		ns.Contents = make([]*DeviceInstance, len(slot.Contents))
		for j, d := range slot.Contents {
			nd := *d
			if d.FuelLevel != nil {
				f := *d.FuelLevel
				nd.FuelLevel = &f
			}
			ns.Contents[j] = &nd
		}
		c.Layout[i] = &ns
	}

	c.Staging = slices.Clone(s.Staging)
	c.Inventory = maps.Clone(s.Inventory)

	c.Tasks = make([]*Task, len(s.Tasks))
	for i, t := range s.Tasks {
		nt := *t
		nt.RequiredHardware = maps.Clone(t.RequiredHardware)
		if t.CompletionTime != nil {
			ct := *t.CompletionTime
			nt.CompletionTime = &ct
		}
		c.Tasks[i] = &nt
	}

	c.Employees = make([]*Employee, len(s.Employees))
	for i, e := range s.Employees {
		ne := *e
		c.Employees[i] = &ne
	}

	c.Daemons = make(map[string]*Daemon, len(s.Daemons))
	for k, d := range s.Daemons {
		nd := *d
		nd.Rules = make([]Rule, len(d.Rules))
		for i, r := range d.Rules {
			r.Args = slices.Clone(r.Args)
			nd.Rules[i] = r
		}
		nd.Firing = slices.Clone(d.Firing)
		c.Daemons[k] = &nd
	}

	c.Agents = make(map[string]*Agent, len(s.Agents))
	for k, a := range s.Agents {
		na := *a
		na.Permissions = slices.Clone(a.Permissions)
		c.Agents[k] = &na
	}

	c.Clients = slices.Clone(s.Clients)
	c.AbandonedStaged = maps.Clone(s.AbandonedStaged)
	c.EventLog = slices.Clone(s.EventLog)
	c.Notifications = slices.Clone(s.Notifications)
	return &c
}
