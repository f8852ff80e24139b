// Package catalog holds the read-only reference data of the game: hardware,
// task templates, contracts, skills and the scripting permission taxonomy.
package catalog

import (
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Category classifies a piece of hardware.
type Category string

const (
	CategoryRack          Category = "RACK"
	CategoryServer        Category = "SERVER"
	CategoryNetworking    Category = "NETWORKING"
	CategoryPDU           Category = "PDU"
	CategoryRouter        Category = "ROUTER"
	CategoryCRAC          Category = "CRAC"
	CategoryGenerator     Category = "GENERATOR"
	CategorySolar         Category = "SOLAR"
	CategoryBattery       Category = "BATTERY"
	CategoryFiberTerminal Category = "FIBER_TERMINAL"
)

// ValidCategories is the set of allowed hardware categories.
var ValidCategories = map[Category]bool{
	CategoryRack:          true,
	CategoryServer:        true,
	CategoryNetworking:    true,
	CategoryPDU:           true,
	CategoryRouter:        true,
	CategoryCRAC:          true,
	CategoryGenerator:     true,
	CategorySolar:         true,
	CategoryBattery:       true,
	CategoryFiberTerminal: true,
}

// TargetClass names the kind of layout object a task must be pointed at.
type TargetClass string

const (
	TargetNone                TargetClass = ""
	TargetRackUnpowered       TargetClass = "RACK_UNPOWERED"
	TargetRackPowered         TargetClass = "RACK_POWERED"
	TargetServerInstalled     TargetClass = "SERVER_INSTALLED"
	TargetServerOnline        TargetClass = "SERVER_ONLINE"
	TargetServerLANConfigured TargetClass = "SERVER_LAN_CONFIGURED"
	TargetServerFailed        TargetClass = "SERVER_FAILED"
)

// IsRack reports whether the class targets a rack slot rather than a device.
func (c TargetClass) IsRack() bool {
	return c == TargetRackUnpowered || c == TargetRackPowered
}

// EffectAction tags the state change applied when a task completes.
type EffectAction string

const (
	EffectStageHardware    EffectAction = "STAGE_HARDWARE"
	EffectInstallHardware  EffectAction = "INSTALL_HARDWARE"
	EffectConnectRackToPDU EffectAction = "CONNECT_RACK_TO_PDU"
	EffectBringOnline      EffectAction = "BRING_ONLINE"
	EffectConfigureLAN     EffectAction = "CONFIGURE_LAN"
	EffectConfigureWAN     EffectAction = "CONFIGURE_WAN"
)

// Skill is an employee specialisation.
type Skill string

const (
	SkillHardwareTechnician Skill = "Hardware Technician"
	SkillNetworkEngineer    Skill = "Network Engineer"
)

// HardwareDefinition describes a purchasable piece of equipment.
type HardwareDefinition struct {
	ID              string   `yaml:"id" json:"id"`
	Name            string   `yaml:"name" json:"name"`
	Price           float64  `yaml:"price" json:"price"`
	Category        Category `yaml:"category" json:"category"`
	PowerDraw       float64  `yaml:"power_draw" json:"power_draw"`
	HeatOutput      float64  `yaml:"heat_output" json:"heat_output"`
	PowerCapacity   float64  `yaml:"power_capacity" json:"power_capacity"`
	CoolingCapacity float64  `yaml:"cooling_capacity" json:"cooling_capacity"`
	StorageCapacity float64  `yaml:"storage_capacity" json:"storage_capacity"`
	FuelCapacity    float64  `yaml:"fuel_capacity" json:"fuel_capacity"`
	FuelConsumption float64  `yaml:"fuel_consumption" json:"fuel_consumption"`
	Bandwidth       float64  `yaml:"bandwidth" json:"bandwidth"`
}

// TaskDefinition is a template the player instantiates into a queued task.
type TaskDefinition struct {
	ID               string       `yaml:"id" json:"id"`
	Description      string       `yaml:"description" json:"description"`
	Skill            Skill        `yaml:"skill" json:"skill"`
	DurationMinutes  int          `yaml:"duration_minutes" json:"duration_minutes"`
	Priority         int          `yaml:"priority" json:"priority"`
	NeedsStaged      bool         `yaml:"needs_staged" json:"needs_staged"`
	RequiredHardware bool         `yaml:"required_hardware" json:"required_hardware"`
	NeedsTarget      TargetClass  `yaml:"needs_target" json:"needs_target,omitempty"`
	NeedsISP         bool         `yaml:"needs_isp" json:"needs_isp"`
	Categories       []Category   `yaml:"categories" json:"categories,omitempty"`
	Effect           EffectAction `yaml:"effect" json:"effect"`
}

// Accepts reports whether the template can operate on hardware of category c.
// An empty category list accepts anything.
func (d TaskDefinition) Accepts(c Category) bool {
	if len(d.Categories) == 0 {
		return true
	}
	for _, allowed := range d.Categories {
		if allowed == c {
			return true
		}
	}
	return false
}

// ISPContract is an upstream connectivity offer.
type ISPContract struct {
	ID            string  `yaml:"id" json:"id"`
	Name          string  `yaml:"name" json:"name"`
	MonthlyCost   float64 `yaml:"monthly_cost" json:"monthly_cost"`
	BandwidthMbps float64 `yaml:"bandwidth_mbps" json:"bandwidth_mbps"`
	PublicIPBlock string  `yaml:"public_ip_block" json:"public_ip_block"`
}

// ClientContract is a hosting customer paying monthly revenue.
type ClientContract struct {
	ID              string  `yaml:"id" json:"id"`
	Name            string  `yaml:"name" json:"name"`
	MonthlyRevenue  float64 `yaml:"monthly_revenue" json:"monthly_revenue"`
	RequiredServers int     `yaml:"required_servers" json:"required_servers"`
	BandwidthDemand float64 `yaml:"bandwidth_demand" json:"bandwidth_demand"`
}

// SkillDefinition carries the payroll cost of a skill.
type SkillDefinition struct {
	Name          Skill   `yaml:"name" json:"name"`
	MonthlySalary float64 `yaml:"monthly_salary" json:"monthly_salary"`
}

// Catalog is the full set of reference data.
type Catalog struct {
	Hardware []HardwareDefinition `yaml:"hardware" json:"hardware"`
	Tasks    []TaskDefinition     `yaml:"tasks" json:"tasks"`
	ISPs     []ISPContract        `yaml:"isps" json:"isps"`
	Clients  []ClientContract     `yaml:"clients" json:"clients"`
	Skills   []SkillDefinition    `yaml:"skills" json:"skills"`

	hardware map[string]HardwareDefinition
	tasks    map[string]TaskDefinition
	isps     map[string]ISPContract
	clients  map[string]ClientContract
	skills   map[Skill]SkillDefinition
}

// Default returns the catalog shipped with the binary.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// LoadFile reads a catalog from a YAML file on disk.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a YAML catalog from r.
func Load(r io.Reader) (*Catalog, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates a YAML catalog document.
func Parse(b []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) index() error {
	c.hardware = make(map[string]HardwareDefinition, len(c.Hardware))
	for _, h := range c.Hardware {
		if h.ID == "" {
			return fmt.Errorf("hardware %q: id is required", h.Name)
		}
		if !ValidCategories[h.Category] {
			return fmt.Errorf("hardware %q: invalid category %q", h.ID, h.Category)
		}
		if _, dup := c.hardware[h.ID]; dup {
			return fmt.Errorf("hardware %q: duplicate id", h.ID)
		}
		c.hardware[h.ID] = h
	}

	c.skills = make(map[Skill]SkillDefinition, len(c.Skills))
	for _, s := range c.Skills {
		c.skills[s.Name] = s
	}

	c.tasks = make(map[string]TaskDefinition, len(c.Tasks))
	for _, t := range c.Tasks {
		if _, ok := c.skills[t.Skill]; !ok {
			return fmt.Errorf("task %q: unknown skill %q", t.ID, t.Skill)
		}
		if t.DurationMinutes < 0 {
			return fmt.Errorf("task %q: negative duration", t.ID)
		}
		switch t.Effect {
		case EffectStageHardware, EffectInstallHardware, EffectConnectRackToPDU,
			EffectBringOnline, EffectConfigureLAN, EffectConfigureWAN:
		default:
			return fmt.Errorf("task %q: unknown effect %q", t.ID, t.Effect)
		}
		c.tasks[t.ID] = t
	}

	c.isps = make(map[string]ISPContract, len(c.ISPs))
	for _, i := range c.ISPs {
		c.isps[i.ID] = i
	}
	c.clients = make(map[string]ClientContract, len(c.Clients))
	for _, cl := range c.Clients {
		c.clients[cl.ID] = cl
	}
	return nil
}

// HardwareByID looks up a hardware definition.
func (c *Catalog) HardwareByID(id string) (HardwareDefinition, bool) {
	h, ok := c.hardware[id]
	return h, ok
}

// TaskByID looks up a task template.
func (c *Catalog) TaskByID(id string) (TaskDefinition, bool) {
	t, ok := c.tasks[id]
	return t, ok
}

// ISPByID looks up an ISP contract offer.
func (c *Catalog) ISPByID(id string) (ISPContract, bool) {
	i, ok := c.isps[id]
	return i, ok
}

// ClientByID looks up a client contract offer.
func (c *Catalog) ClientByID(id string) (ClientContract, bool) {
	cl, ok := c.clients[id]
	return cl, ok
}

// SkillByName looks up payroll data for a skill.
func (c *Catalog) SkillByName(name Skill) (SkillDefinition, bool) {
	s, ok := c.skills[name]
	return s, ok
}
