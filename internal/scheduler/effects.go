package scheduler

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tphummel/rackops/internal/catalog"
	"github.com/tphummel/rackops/internal/layout"
	"github.com/tphummel/rackops/internal/ledger"
	"github.com/tphummel/rackops/internal/models"
)

// apply runs the completion effect of t. A returned error means the effect
// was abandoned; the task leaves the queue either way.
func (s *Scheduler) apply(st *models.State, t *models.Task) error {
	switch t.OnComplete.Action {
	case catalog.EffectStageHardware:
		return s.stageHardware(st, t)
	case catalog.EffectInstallHardware:
		return s.installHardware(st, t)
	case catalog.EffectConnectRackToPDU:
		s.connectRack(st, t)
		return nil
	case catalog.EffectBringOnline:
		s.bringOnline(st, t)
		return nil
	case catalog.EffectConfigureLAN:
		s.configureLAN(st, t)
		return nil
	case catalog.EffectConfigureWAN:
		s.configureWAN(st, t)
		return nil
	default:
		return &models.ResolutionError{TaskID: t.ID, Reason: fmt.Sprintf("unknown effect %q", t.OnComplete.Action)}
	}
}

func (s *Scheduler) stageHardware(st *models.State, t *models.Task) error {
	if _, ok := s.Catalog.HardwareByID(t.OnComplete.HardwareType); !ok {
		return &models.ResolutionError{TaskID: t.ID, Reason: fmt.Sprintf("unknown hardware %q", t.OnComplete.HardwareType)}
	}
	st.Staging = append(st.Staging, models.StagedHardwareItem{
		ID:       uuid.New().String(),
		Type:     t.OnComplete.HardwareType,
		Location: models.TechRoom,
	})
	return nil
}

func (s *Scheduler) installHardware(st *models.State, t *models.Task) error {
	i := ledger.StagedIndex(st, t.RequiredStaged)
	if i < 0 {
		return &models.ResolutionError{TaskID: t.ID, Reason: fmt.Sprintf("staged item %q is missing", t.RequiredStaged)}
	}
	item := st.Staging[i]
	def, ok := s.Catalog.HardwareByID(item.Type)
	if !ok {
		return &models.ResolutionError{TaskID: t.ID, Reason: fmt.Sprintf("unknown hardware %q", item.Type)}
	}

	if def.Category == catalog.CategoryRack {
		ledger.ConsumeStaged(st, item.ID)
		st.Layout = append(st.Layout, &models.RackSlot{
			ID:       layout.AllocateNextRackSlot(st),
			Contents: []*models.DeviceInstance{},
		})
		return nil
	}

	slot, ok := layout.FindSlot(st.Layout, t.TargetLocation)
	if !ok {
		// The item stays in staging.
		return &models.ResolutionError{TaskID: t.ID, Reason: fmt.Sprintf("rack slot %q is gone", t.TargetLocation)}
	}
	ledger.ConsumeStaged(st, item.ID)
	dev := &models.DeviceInstance{
		ID:     uuid.New().String(),
		Type:   item.Type,
		Status: models.StatusInstalled,
	}
	if def.Category == catalog.CategoryGenerator {
		fuel := def.FuelCapacity
		dev.FuelLevel = &fuel
	}
	slot.Contents = append(slot.Contents, dev)
	return nil
}

func (s *Scheduler) connectRack(st *models.State, t *models.Task) {
	if slot, ok := layout.FindSlot(st.Layout, t.TargetLocation); ok {
		slot.PDU = t.TargetPDU
	}
}

// The device effects below only advance a device from the state their
// targeting class expects, so a device never skips a step.

func (s *Scheduler) bringOnline(st *models.State, t *models.Task) {
	p, ok := layout.FindDevice(st.Layout, t.TargetItem)
	if !ok {
		return
	}
	if p.Device.Status != models.StatusInstalled && !p.Device.Status.Failed() {
		s.Logger.Warn("bring online skipped", "task_id", t.ID, "device_id", p.Device.ID, "status", p.Device.Status)
		return
	}
	p.Device.Status = models.StatusOnline
}

func (s *Scheduler) configureLAN(st *models.State, t *models.Task) {
	p, ok := layout.FindDevice(st.Layout, t.TargetItem)
	if !ok || p.Device.Status != models.StatusOnline {
		return
	}
	p.Device.Status = models.StatusLANConfigured
	p.Device.Hostname = t.Hostname
	p.Device.InternalIP = t.IP
	if n, ok := hostIndex(s.InternalSubnet, t.IP); ok && n >= st.NextInternalIP {
		st.NextInternalIP = n + 1
	}
}

func (s *Scheduler) configureWAN(st *models.State, t *models.Task) {
	p, ok := layout.FindDevice(st.Layout, t.TargetItem)
	if !ok || p.Device.Status != models.StatusLANConfigured {
		return
	}
	p.Device.Status = models.StatusNetworked
	p.Device.PublicIP = t.PublicIP
	st.Network.AssignedPublicIPs[p.Device.ID] = t.PublicIP
}
