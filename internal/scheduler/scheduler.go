// Package scheduler owns the task queue: it validates new tasks, hands
// pending work to idle employees by priority, and applies each task's effect
// when its timer runs out.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tphummel/rackops/internal/catalog"
	"github.com/tphummel/rackops/internal/layout"
	"github.com/tphummel/rackops/internal/ledger"
	"github.com/tphummel/rackops/internal/models"
)

// Source is the event-log source for scheduler entries.
const Source = "scheduler"

// Scheduler holds the rules the queue is run by. It keeps no game state of
// its own; every call operates on the State it is given.
type Scheduler struct {
	Catalog *catalog.Catalog
	Logger  *slog.Logger

	// InternalSubnet is where CONFIGURE_LAN addresses come from.
	InternalSubnet netip.Prefix

	// ReleaseStagedOnAbort frees a staged item held by an aborted task.
	// Off by default: aborted tasks keep their staged item.
	ReleaseStagedOnAbort bool
}

// New returns a Scheduler with the default 10.0.0.0/16 internal subnet.
func New(cat *catalog.Catalog, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		Catalog:        cat,
		Logger:         logger,
		InternalSubnet: netip.MustParsePrefix("10.0.0.0/16"),
	}
}

// Request describes a task the player or an automation wants queued.
type Request struct {
	Template       string          `json:"template"`
	Priority       models.Priority `json:"priority,omitempty"`
	HardwareID     string          `json:"hardware_id,omitempty"`
	TargetLocation string          `json:"target_location,omitempty"`
	TargetItem     string          `json:"target_item,omitempty"`
	TargetPDU      string          `json:"target_pdu,omitempty"`
	Hostname       string          `json:"hostname,omitempty"`
}

// Create validates req against the state and, if it passes, appends a
// Pending task. A rejected request leaves the state untouched.
func (s *Scheduler) Create(st *models.State, req Request) (*models.Task, error) {
	const op = "create task"

	def, ok := s.Catalog.TaskByID(req.Template)
	if !ok {
		return nil, models.Invalid(op, "unknown task template %q", req.Template)
	}
	prio := req.Priority
	if prio == 0 {
		prio = models.Priority(def.Priority)
	}
	if !prio.Valid() {
		return nil, models.Invalid(op, "invalid priority %d", req.Priority)
	}

	t := &models.Task{
		ID:              uuid.New().String(),
		Template:        def.ID,
		Description:     def.Description,
		RequiredSkill:   def.Skill,
		DurationMinutes: def.DurationMinutes,
		Priority:        prio,
		Status:          models.TaskPending,
		CreatedAt:       st.Time,
		OnComplete:      models.Effect{Action: def.Effect},
	}

	var hw catalog.HardwareDefinition
	if def.RequiredHardware || def.NeedsStaged {
		if req.HardwareID == "" {
			return nil, models.Invalid(op, "%s requires hardware_id", def.ID)
		}
		hw, ok = s.Catalog.HardwareByID(req.HardwareID)
		if !ok {
			return nil, models.Invalid(op, "unknown hardware %q", req.HardwareID)
		}
		if !def.Accepts(hw.Category) {
			return nil, models.Invalid(op, "%s cannot handle %s hardware", def.ID, hw.Category)
		}
		t.OnComplete.HardwareType = hw.ID
		t.Description = fmt.Sprintf("%s (%s)", def.Description, hw.Name)
	}

	if def.NeedsStaged {
		item, err := ledger.ReserveStagedItem(st, hw.ID)
		if err != nil {
			return nil, models.Invalid(op, "no unreserved %s in staging", hw.ID)
		}
		t.NeedsStaged = hw.ID
		t.RequiredStaged = item.ID
	}

	if err := s.bindTarget(st, def, req, t); err != nil {
		return nil, models.Invalid(op, "%v", err)
	}

	if def.NeedsISP && st.Network.ISPContract == "" {
		return nil, models.Invalid(op, "no ISP contract signed")
	}
	switch def.Effect {
	case catalog.EffectConfigureLAN:
		ip, ok := nextInternalIP(st, s.InternalSubnet)
		if !ok {
			return nil, models.Invalid(op, "internal subnet %s is exhausted", s.InternalSubnet)
		}
		t.IP = ip
		t.Hostname = req.Hostname
		if t.Hostname == "" {
			n, _ := hostIndex(s.InternalSubnet, ip)
			t.Hostname = fmt.Sprintf("node-%03d", n)
		}
	case catalog.EffectConfigureWAN:
		ip, ok := nextPublicIP(st)
		if !ok {
			return nil, models.Invalid(op, "no free address in public block %q", st.Network.PublicIPBlock)
		}
		t.PublicIP = ip
	}

	// Spending comes last so that a rejected request costs nothing.
	if def.RequiredHardware {
		switch {
		case st.Inventory[hw.ID] > 0:
			st.Inventory[hw.ID]--
			if st.Inventory[hw.ID] == 0 {
				delete(st.Inventory, hw.ID)
			}
		case ledger.CanAfford(st.Cash, hw.Price):
			st.Cash -= hw.Price
		default:
			return nil, models.Invalid(op, "no boxed %s and cannot afford %.2f", hw.ID, hw.Price)
		}
		t.RequiredHardware = map[string]int{hw.ID: 1}
	}

	st.NextTaskSeq++
	t.Seq = st.NextTaskSeq
	st.Tasks = append(st.Tasks, t)
	st.Record(models.LevelInfo, Source, fmt.Sprintf("queued %s [%s]", t.Description, t.Priority))
	return t, nil
}

func (s *Scheduler) bindTarget(st *models.State, def catalog.TaskDefinition, req Request, t *models.Task) error {
	t.NeedsTarget = def.NeedsTarget
	switch {
	case def.NeedsTarget == catalog.TargetNone:
	case def.NeedsTarget.IsRack():
		if req.TargetLocation == "" {
			return errors.New("target_location is required")
		}
		if err := layout.CheckRack(st.Layout, def.NeedsTarget, req.TargetLocation); err != nil {
			return err
		}
		t.TargetLocation = req.TargetLocation
	default:
		if req.TargetItem == "" {
			return errors.New("target_item is required")
		}
		p, err := layout.CheckDevice(st.Layout, def.NeedsTarget, req.TargetItem)
		if err != nil {
			return err
		}
		t.TargetItem = req.TargetItem
		t.TargetLocation = p.Slot.ID
	}

	if def.Effect == catalog.EffectConnectRackToPDU {
		if !layout.IsPDU(st.Layout, s.Catalog, req.TargetPDU) {
			return fmt.Errorf("target_pdu %q is not an installed PDU", req.TargetPDU)
		}
		t.TargetPDU = req.TargetPDU
	}
	return nil
}

// checkTarget re-validates a task's bound target right before it starts.
func (s *Scheduler) checkTarget(st *models.State, t *models.Task) error {
	switch {
	case t.NeedsTarget == catalog.TargetNone:
	case t.NeedsTarget.IsRack():
		if err := layout.CheckRack(st.Layout, t.NeedsTarget, t.TargetLocation); err != nil {
			return err
		}
	default:
		if _, err := layout.CheckDevice(st.Layout, t.NeedsTarget, t.TargetItem); err != nil {
			return err
		}
	}
	if t.OnComplete.Action == catalog.EffectConnectRackToPDU && !layout.IsPDU(st.Layout, s.Catalog, t.TargetPDU) {
		return fmt.Errorf("PDU %q is gone", t.TargetPDU)
	}
	return nil
}

// Assign runs the assignment pass: pending tasks in descending priority
// (creation order within a priority) each take the first idle employee with
// the required skill.
func (s *Scheduler) Assign(st *models.State) {
	pending := make([]*models.Task, 0, len(st.Tasks))
	for _, t := range st.Tasks {
		if t.Status == models.TaskPending {
			pending = append(pending, t)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Priority != pending[j].Priority {
			return pending[i].Priority > pending[j].Priority
		}
		return pending[i].Seq < pending[j].Seq
	})

	for _, t := range pending {
		emp := s.idleEmployee(st, t.RequiredSkill)
		if emp == nil {
			continue
		}
		if t.NeedsStaged != "" && !s.holdStaged(st, t) {
			continue
		}
		if err := s.checkTarget(st, t); err != nil {
			s.drop(st, t, &models.ResolutionError{TaskID: t.ID, Reason: err.Error()})
			continue
		}

		done := st.Time.Add(time.Duration(t.DurationMinutes) * time.Minute)
		t.Status = models.TaskInProgress
		t.AssignedTo = emp.ID
		t.CompletionTime = &done
		emp.Status = models.EmployeeWorking
		emp.AssignedTaskID = t.ID
		emp.Location = models.ServerRoom

		s.Logger.Debug("task assigned", "task_id", t.ID, "employee_id", emp.ID, "priority", t.Priority.String())
		st.Record(models.LevelInfo, Source, fmt.Sprintf("%s started %s", emp.Name, t.Description))
	}
}

func (s *Scheduler) idleEmployee(st *models.State, skill catalog.Skill) *models.Employee {
	for _, e := range st.Employees {
		if e.Status == models.EmployeeIdle && e.Skill == skill {
			return e
		}
	}
	return nil
}

// holdStaged makes sure t still holds a staged item of the type it needs,
// rebinding to another one if its original item vanished.
func (s *Scheduler) holdStaged(st *models.State, t *models.Task) bool {
	if t.RequiredStaged != "" && ledger.StagedIndex(st, t.RequiredStaged) >= 0 &&
		!ledger.Reserved(st, t.RequiredStaged, t.ID) {
		return true
	}
	item, err := ledger.RebindStagedItem(st, t.NeedsStaged, t.ID)
	if err != nil {
		return false
	}
	t.RequiredStaged = item.ID
	return true
}

// Progress runs the progress pass: every in-progress task whose completion
// time has been reached applies its effect, frees its employee and leaves
// the queue.
func (s *Scheduler) Progress(st *models.State) {
	var finished []*models.Task
	for _, t := range st.Tasks {
		if t.Status == models.TaskInProgress && t.CompletionTime != nil && !t.CompletionTime.After(st.Time) {
			finished = append(finished, t)
		}
	}
	for _, t := range finished {
		if err := s.complete(st, t); err != nil {
			s.report(st, t, err)
		} else {
			st.Record(models.LevelInfo, Source, fmt.Sprintf("completed %s", t.Description))
		}
		t.Status = models.TaskComplete
		s.release(st, t)
		s.remove(st, t.ID)
	}
}

// complete applies the effect of t, converting a panic into an error so one
// broken task cannot stop the rest of the pass.
func (s *Scheduler) complete(st *models.State, t *models.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("effect %s panicked: %v", t.OnComplete.Action, r)
		}
	}()
	return s.apply(st, t)
}

// Abort removes task id from the queue at any status before completion. The
// employee is freed; required-hardware spending is not refunded.
func (s *Scheduler) Abort(st *models.State, id string) error {
	t, ok := st.TaskByID(id)
	if !ok {
		return fmt.Errorf("abort task %s: %w", id, models.ErrNotFound)
	}
	s.release(st, t)
	if t.RequiredStaged != "" && !s.ReleaseStagedOnAbort {
		st.AbandonedStaged[t.RequiredStaged] = t.ID
	}
	s.remove(st, id)
	st.Record(models.LevelWarn, Source, fmt.Sprintf("aborted %s", t.Description))
	return nil
}

func (s *Scheduler) drop(st *models.State, t *models.Task, err error) {
	s.report(st, t, err)
	s.release(st, t)
	s.remove(st, t.ID)
}

func (s *Scheduler) report(st *models.State, t *models.Task, err error) {
	s.Logger.Warn("task failed", "task_id", t.ID, "template", t.Template, "error", err)
	st.Record(models.LevelError, Source, err.Error())
}

func (s *Scheduler) release(st *models.State, t *models.Task) {
	if t.AssignedTo == "" {
		return
	}
	if e, ok := st.EmployeeByID(t.AssignedTo); ok && e.AssignedTaskID == t.ID {
		e.Status = models.EmployeeIdle
		e.AssignedTaskID = ""
		e.Location = models.TechRoom
	}
	t.AssignedTo = ""
}

func (s *Scheduler) remove(st *models.State, id string) {
	for i, t := range st.Tasks {
		if t.ID == id {
			st.Tasks = append(st.Tasks[:i], st.Tasks[i+1:]...)
			return
		}
	}
}

// Hire adds an idle employee to the roster.
func (s *Scheduler) Hire(st *models.State, name string, skill catalog.Skill) (*models.Employee, error) {
	if name == "" {
		return nil, models.Invalid("hire", "name is required")
	}
	if _, ok := s.Catalog.SkillByName(skill); !ok {
		return nil, models.Invalid("hire", "unknown skill %q", skill)
	}
	e := &models.Employee{
		ID:       uuid.New().String(),
		Name:     name,
		Skill:    skill,
		Status:   models.EmployeeIdle,
		Location: models.TechRoom,
		HiredAt:  st.Time,
	}
	st.Employees = append(st.Employees, e)
	st.Record(models.LevelInfo, Source, fmt.Sprintf("hired %s (%s)", name, skill))
	return e, nil
}
