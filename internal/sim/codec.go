package sim

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tphummel/rackops/internal/ledger"
	"github.com/tphummel/rackops/internal/models"
)

// Store is the persistence collaborator. Load returns an error wrapping
// sql.ErrNoRows (or any error) when the session has no save.
type Store interface {
	Save(ctx context.Context, sessionID string, data []byte) error
	Load(ctx context.Context, sessionID string) ([]byte, error)
}

// Encode serializes a state. Timestamps are RFC 3339.
func Encode(st *models.State) ([]byte, error) {
	b, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return b, nil
}

// Decode parses a saved state over fresh defaults, so fields missing from
// an older save keep the value a new game would have.
func Decode(data []byte, base *models.State) (*models.State, error) {
	st := base
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	st.Backfill()
	st.Version = models.SchemaVersion
	return st, nil
}

// Save writes the current state to store under sessionID.
func (e *Engine) Save(ctx context.Context, store Store, sessionID string) error {
	e.mu.Lock()
	data, err := Encode(e.st)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if err := store.Save(ctx, sessionID, data); err != nil {
		return fmt.Errorf("save session %s: %w", sessionID, err)
	}
	return nil
}

// Load replaces the current state with the one saved under sessionID.
func (e *Engine) Load(ctx context.Context, store Store, sessionID string) error {
	data, err := store.Load(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := Decode(data, e.freshState())
	if err != nil {
		return err
	}
	ledger.Refresh(e.cat, e.cfg.Ledger, st)
	e.st = st
	e.logger.Info("session loaded", "session", sessionID, "time", st.Time, "cash", st.Cash)
	return nil
}

// Reset discards the current game and starts a new one.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.st = e.freshState()
}
