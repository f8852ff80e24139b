// Package layout answers questions about the data-center floor: which rack
// slots exist, which devices are mounted where, and whether a slot or device
// satisfies a task's targeting class.
package layout

import (
	"fmt"

	"github.com/tphummel/rackops/internal/catalog"
	"github.com/tphummel/rackops/internal/models"
)

// SlotsPerRow is the number of slot positions in one lettered row.
const SlotsPerRow = 24

// Placement pairs a device with the slot that owns it.
type Placement struct {
	Slot   *models.RackSlot
	Device *models.DeviceInstance
}

// SlotID renders the n-th allocated slot (zero based) as A1..A24, B1...
func SlotID(n int) string {
	row := n / SlotsPerRow
	label := ""
	for {
		label = string(rune('A'+row%26)) + label
		row = row/26 - 1
		if row < 0 {
			break
		}
	}
	return fmt.Sprintf("%s%d", label, n%SlotsPerRow+1)
}

// AllocateNextRackSlot reserves the next slot id. Ids are never reused.
func AllocateNextRackSlot(st *models.State) string {
	id := SlotID(st.NextRackSlot)
	st.NextRackSlot++
	return id
}

// FindSlot returns the slot with id.
func FindSlot(slots []*models.RackSlot, id string) (*models.RackSlot, bool) {
	for _, s := range slots {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// FindDevice returns the device with id and the slot containing it.
func FindDevice(slots []*models.RackSlot, id string) (Placement, bool) {
	for _, s := range slots {
		for _, d := range s.Contents {
			if d.ID == id {
				return Placement{Slot: s, Device: d}, true
			}
		}
	}
	return Placement{}, false
}

// ListDevicesByStatus returns every device whose status satisfies pred, in
// floor order.
func ListDevicesByStatus(slots []*models.RackSlot, pred func(models.DeviceStatus) bool) []Placement {
	var out []Placement
	for _, s := range slots {
		for _, d := range s.Contents {
			if pred(d.Status) {
				out = append(out, Placement{Slot: s, Device: d})
			}
		}
	}
	return out
}

// AllDevices matches every status.
func AllDevices(models.DeviceStatus) bool { return true }

// CheckRack reports why slot id does not satisfy class, or nil if it does.
func CheckRack(slots []*models.RackSlot, class catalog.TargetClass, id string) error {
	slot, ok := FindSlot(slots, id)
	if !ok {
		return fmt.Errorf("rack slot %q does not exist", id)
	}
	switch class {
	case catalog.TargetRackUnpowered:
		if slot.PDU != "" {
			return fmt.Errorf("rack slot %q is already powered", id)
		}
	case catalog.TargetRackPowered:
		if slot.PDU == "" {
			return fmt.Errorf("rack slot %q has no PDU connection", id)
		}
	default:
		return fmt.Errorf("%s is not a rack targeting class", class)
	}
	return nil
}

// CheckDevice reports why device id does not satisfy class, or nil if it does.
func CheckDevice(slots []*models.RackSlot, class catalog.TargetClass, id string) (Placement, error) {
	p, ok := FindDevice(slots, id)
	if !ok {
		return Placement{}, fmt.Errorf("device %q does not exist", id)
	}
	var want bool
	switch class {
	case catalog.TargetServerInstalled:
		want = p.Device.Status == models.StatusInstalled
	case catalog.TargetServerOnline:
		want = p.Device.Status == models.StatusOnline
	case catalog.TargetServerLANConfigured:
		want = p.Device.Status == models.StatusLANConfigured
	case catalog.TargetServerFailed:
		want = p.Device.Status.Failed()
	default:
		return Placement{}, fmt.Errorf("%s is not a device targeting class", class)
	}
	if !want {
		return Placement{}, fmt.Errorf("device %q is %s, want %s", id, p.Device.Status, class)
	}
	return p, nil
}

// IsPDU reports whether device id exists and is a PDU.
func IsPDU(slots []*models.RackSlot, cat *catalog.Catalog, id string) bool {
	p, ok := FindDevice(slots, id)
	if !ok {
		return false
	}
	def, ok := cat.HardwareByID(p.Device.Type)
	return ok && def.Category == catalog.CategoryPDU
}
