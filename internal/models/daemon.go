package models

import (
	"slices"
	"time"

	"github.com/tphummel/rackops/internal/catalog"
)

// Comparator is the relational operator of a rule.
type Comparator string

const (
	CompareGreater  Comparator = ">"
	CompareLess     Comparator = "<"
	CompareEqual    Comparator = "=="
	CompareNotEqual Comparator = "!="
)

// RuleAction is what a rule does when its condition holds.
type RuleAction string

const (
	ActionAlert  RuleAction = "alert"
	ActionLog    RuleAction = "log"
	ActionScript RuleAction = "script"
)

// Dispatch destinations understood by the evaluator.
const (
	DestinationPlayerUI  = "player.ui"
	DestinationSystemLog = "system.log"
)

// Rule is one condition→action pair of a daemon. Value holds either a number
// or a string, as decoded from JSON.
type Rule struct {
	Metric      string     `json:"metric"`
	Comparator  Comparator `json:"comparator"`
	Value       any        `json:"value"`
	Action      RuleAction `json:"action"`
	Destination string     `json:"destination"`
	Command     string     `json:"command"`
	Args        []string   `json:"args,omitempty"`
}

// Daemon is a set of monitoring rules deployed against one device.
type Daemon struct {
	Target     string    `json:"target"`
	Agent      string    `json:"agent"`
	Rules      []Rule    `json:"rules"`
	DeployedAt time.Time `json:"deployed_at"`

	// Firing remembers, per rule index, whether the condition held on the
	// previous evaluation. Only consulted in edge-triggered mode.
	Firing []bool `json:"firing,omitempty"`
}

// Agent is a named scripting identity with a permission set.
type Agent struct {
	Name        string               `json:"name"`
	Permissions []catalog.Permission `json:"permissions"`
}

// Has reports whether the agent holds permission p.
func (a *Agent) Has(p catalog.Permission) bool {
	if a == nil {
		return false
	}
	return slices.Contains(a.Permissions, p)
}
