package ledger

import (
	"github.com/tphummel/rackops/internal/models"
)

// CanAfford reports whether cash covers a non-negative amount.
func CanAfford(cash, amount float64) bool {
	return amount >= 0 && cash >= amount
}

// Reserved reports whether staged item id is held by a queued task other than
// except, or by a task that was aborted while holding it.
func Reserved(st *models.State, id, except string) bool {
	if _, held := st.AbandonedStaged[id]; held {
		return true
	}
	for _, t := range st.Tasks {
		if t.ID != except && t.RequiredStaged == id {
			return true
		}
	}
	return false
}

// ReserveStagedItem returns the oldest staged item of type catalogID that no
// task holds. The caller binds it by setting the task's RequiredStaged.
func ReserveStagedItem(st *models.State, catalogID string) (models.StagedHardwareItem, error) {
	return reserveFor(st, catalogID, "")
}

// RebindStagedItem is ReserveStagedItem on behalf of task taskID, which may
// already hold the returned item.
func RebindStagedItem(st *models.State, catalogID, taskID string) (models.StagedHardwareItem, error) {
	return reserveFor(st, catalogID, taskID)
}

func reserveFor(st *models.State, catalogID, taskID string) (models.StagedHardwareItem, error) {
	for _, item := range st.Staging {
		if item.Type == catalogID && !Reserved(st, item.ID, taskID) {
			return item, nil
		}
	}
	return models.StagedHardwareItem{}, models.ErrNotFound
}

// StagedIndex returns the position of staged item id, or -1.
func StagedIndex(st *models.State, id string) int {
	for i, item := range st.Staging {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// ConsumeStaged removes staged item id. It reports false if the item is gone.
func ConsumeStaged(st *models.State, id string) bool {
	i := StagedIndex(st, id)
	if i < 0 {
		return false
	}
	st.Staging = append(st.Staging[:i], st.Staging[i+1:]...)
	delete(st.AbandonedStaged, id)
	return true
}
