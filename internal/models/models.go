package models

import (
	"time"

	"github.com/tphummel/rackops/internal/catalog"
)

// TechRoom is where staged hardware waits until it is installed.
const TechRoom = "Tech Room"

// ServerRoom is where employees work while assigned to a task.
const ServerRoom = "Server Room"

// DeviceStatus is the lifecycle state of an installed device.
type DeviceStatus string

const (
	StatusInstalled     DeviceStatus = "INSTALLED"
	StatusOnline        DeviceStatus = "ONLINE"
	StatusLANConfigured DeviceStatus = "LAN_CONFIGURED"
	StatusNetworked     DeviceStatus = "NETWORKED"
	StatusOfflinePower  DeviceStatus = "OFFLINE_POWER"
	StatusOfflineHeat   DeviceStatus = "OFFLINE_HEAT"
	StatusOfflineFailed DeviceStatus = "OFFLINE_FAILED"
)

// Active reports whether the device draws power and produces heat.
func (s DeviceStatus) Active() bool {
	return s == StatusOnline || s == StatusLANConfigured || s == StatusNetworked
}

// Failed reports whether the device is in one of the OFFLINE_* states.
func (s DeviceStatus) Failed() bool {
	return s == StatusOfflinePower || s == StatusOfflineHeat || s == StatusOfflineFailed
}

// StagedHardwareItem is unboxed hardware waiting in the tech room.
type StagedHardwareItem struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Location string `json:"location"`
}

// DeviceInstance is a piece of hardware mounted in a rack slot.
type DeviceInstance struct {
	ID         string       `json:"id"`
	Type       string       `json:"type"`
	Status     DeviceStatus `json:"status"`
	Hostname   string       `json:"hostname,omitempty"`
	InternalIP string       `json:"internal_ip,omitempty"`
	PublicIP   string       `json:"public_ip,omitempty"`
	FuelLevel  *float64     `json:"fuel_level,omitempty"`
}

// RackSlot is one position on the data-center floor.
type RackSlot struct {
	ID       string            `json:"id"`
	PDU      string            `json:"pdu,omitempty"`
	Contents []*DeviceInstance `json:"contents"`
}

// Priority orders pending work; higher values are assigned first.
type Priority int

const (
	PriorityLow       Priority = 1
	PriorityNormal    Priority = 2
	PriorityHigh      Priority = 3
	PriorityEmergency Priority = 4
)

var priorityNames = map[Priority]string{
	PriorityLow:       "Low",
	PriorityNormal:    "Normal",
	PriorityHigh:      "High",
	PriorityEmergency: "Emergency",
}

func (p Priority) String() string {
	if n, ok := priorityNames[p]; ok {
		return n
	}
	return "Unknown"
}

// Valid reports whether p is one of the four defined priorities.
func (p Priority) Valid() bool {
	_, ok := priorityNames[p]
	return ok
}

// TaskStatus is the queue state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "Pending"
	TaskInProgress TaskStatus = "In Progress"
	TaskComplete   TaskStatus = "Complete"
)

// Effect is the tagged action applied when a task completes.
type Effect struct {
	Action       catalog.EffectAction `json:"action"`
	HardwareType string               `json:"hardware_type,omitempty"`
}

// Task is a unit of queued work.
type Task struct {
	ID               string              `json:"id"`
	Seq              uint64              `json:"seq"`
	Template         string              `json:"template"`
	Description      string              `json:"description"`
	RequiredSkill    catalog.Skill       `json:"required_skill"`
	RequiredHardware map[string]int      `json:"required_hardware,omitempty"`
	NeedsStaged      string              `json:"needs_staged,omitempty"`
	NeedsTarget      catalog.TargetClass `json:"needs_target,omitempty"`
	DurationMinutes  int                 `json:"duration_minutes"`
	Priority         Priority            `json:"priority"`
	Status           TaskStatus          `json:"status"`
	AssignedTo       string              `json:"assigned_to,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	CompletionTime   *time.Time          `json:"completion_time,omitempty"`
	TargetLocation   string              `json:"target_location,omitempty"`
	TargetItem       string              `json:"target_item,omitempty"`
	TargetPDU        string              `json:"target_pdu,omitempty"`
	RequiredStaged   string              `json:"required_staged,omitempty"`
	Hostname         string              `json:"hostname,omitempty"`
	IP               string              `json:"ip,omitempty"`
	PublicIP         string              `json:"public_ip,omitempty"`
	OnComplete       Effect              `json:"on_complete_effect"`
}

// EmployeeStatus is whether an employee can take work.
type EmployeeStatus string

const (
	EmployeeIdle    EmployeeStatus = "Idle"
	EmployeeWorking EmployeeStatus = "Working"
)

// Employee is a member of staff on the roster.
type Employee struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Skill          catalog.Skill  `json:"skill"`
	Status         EmployeeStatus `json:"status"`
	AssignedTaskID string         `json:"assigned_task_id,omitempty"`
	Location       string         `json:"location"`
	HiredAt        time.Time      `json:"hired_at"`
}

// HVACMode selects the building cooling profile.
type HVACMode string

const (
	HVACEco   HVACMode = "eco"
	HVACBoost HVACMode = "boost"
)

// Power aggregates electrical capacity and load in watts.
type Power struct {
	Capacity         float64 `json:"capacity"`
	Load             float64 `json:"load"`
	GridActive       bool    `json:"grid_active"`
	TotalConsumedKWh float64 `json:"total_consumed_kwh"`
	MonthConsumedKWh float64 `json:"month_consumed_kwh"`
}

// Cooling aggregates heat removal capacity and heat load in watts.
type Cooling struct {
	Capacity float64  `json:"capacity"`
	Load     float64  `json:"load"`
	Mode     HVACMode `json:"mode"`
}

// Network aggregates upstream bandwidth and public addressing.
type Network struct {
	Capacity          float64           `json:"capacity"`
	Load              float64           `json:"load"`
	ISPContract       string            `json:"isp_contract,omitempty"`
	PublicIPBlock     string            `json:"public_ip_block,omitempty"`
	AssignedPublicIPs map[string]string `json:"assigned_public_ips"`
}

// LogLevel grades an event-log entry.
type LogLevel string

const (
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogEntry is one line of the in-game event log.
type LogEntry struct {
	At      time.Time `json:"at"`
	Level   LogLevel  `json:"level"`
	Source  string    `json:"source"`
	Message string    `json:"message"`
}

// NotificationKind distinguishes auto-dismissing toasts from blocking alerts.
type NotificationKind string

const (
	NotifyToast NotificationKind = "toast"
	NotifyAlert NotificationKind = "alert"
)

// Notification is a request for the UI to show a message.
type Notification struct {
	ID      string           `json:"id"`
	Kind    NotificationKind `json:"kind"`
	Message string           `json:"message"`
	At      time.Time        `json:"at"`
}
