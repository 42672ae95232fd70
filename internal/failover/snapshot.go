package failover

import (
	"context"
	"time"
)

// Persister stores failover state so block windows survive a restart.
type Persister interface {
	SaveFailover(ctx context.Context, snap Snapshot) error
	LoadFailover(ctx context.Context) (*Snapshot, error)
}

// Snapshot is a serialisable view of the controller state. Secrets are
// never included; credentials are identified by fingerprint.
type Snapshot struct {
	CredentialIndex int               `json:"credentialIndex"`
	ModelIndex      int               `json:"modelIndex"`
	Credentials     []CredentialState `json:"credentials"`
	Models          []ModelState      `json:"models"`
	TakenAt         time.Time         `json:"takenAt"`
}

// CredentialState is the persisted state of one credential slot.
type CredentialState struct {
	ID           string        `json:"id"`
	BlockedUntil time.Time     `json:"blockedUntil,omitzero"`
	FailureCount int           `json:"failureCount,omitempty"`
	Window       time.Duration `json:"window,omitempty"`
	Permanent    bool          `json:"permanent,omitempty"`
}

// ModelState is the persisted state of one model slot.
type ModelState struct {
	ID           string    `json:"id"`
	Rank         int       `json:"rank"`
	BlockedUntil time.Time `json:"blockedUntil,omitzero"`
}

// Blocked reports whether the credential is excluded at t.
func (s CredentialState) Blocked(t time.Time) bool {
	return !s.BlockedUntil.IsZero() && t.Before(s.BlockedUntil)
}

// Blocked reports whether the model is excluded at t.
func (s ModelState) Blocked(t time.Time) bool {
	return !s.BlockedUntil.IsZero() && t.Before(s.BlockedUntil)
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(c.clock.Now())
}

func (c *Controller) snapshotLocked(now time.Time) Snapshot {
	snap := Snapshot{
		CredentialIndex: c.credIdx,
		ModelIndex:      c.modelIdx,
		Credentials:     make([]CredentialState, len(c.creds)),
		Models:          make([]ModelState, len(c.models)),
		TakenAt:         now,
	}
	for i, s := range c.creds {
		snap.Credentials[i] = CredentialState{
			ID:           s.id,
			BlockedUntil: s.blockedUntil,
			FailureCount: s.failureCount,
			Window:       s.window,
			Permanent:    s.permanent,
		}
	}
	for i, m := range c.models {
		snap.Models[i] = ModelState{ID: m.id, Rank: m.rank, BlockedUntil: m.blockedUntil}
	}
	return snap
}

// Restore reapplies a snapshot taken earlier. Slots are matched by id;
// entries for credentials or models no longer configured are ignored, and
// the cursors are kept only if they still point at the same ids.
func (c *Controller) Restore(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	creds := make(map[string]CredentialState, len(snap.Credentials))
	for _, s := range snap.Credentials {
		creds[s.ID] = s
	}
	for _, s := range c.creds {
		if st, ok := creds[s.id]; ok {
			s.blockedUntil = st.BlockedUntil
			s.failureCount = st.FailureCount
			s.window = st.Window
			s.permanent = st.Permanent
		}
	}

	models := make(map[string]ModelState, len(snap.Models))
	for _, m := range snap.Models {
		models[m.ID] = m
	}
	for _, m := range c.models {
		if st, ok := models[m.id]; ok {
			m.blockedUntil = st.BlockedUntil
		}
	}

	if i := snap.ModelIndex; i >= 0 && i < len(snap.Models) && i < len(c.models) && c.models[i].id == snap.Models[i].ID {
		c.modelIdx = i
	}
	if i := snap.CredentialIndex; i >= 0 && i < len(snap.Credentials) && i < len(c.creds) && c.creds[i].id == snap.Credentials[i].ID {
		c.credIdx = i
	}

	c.log.Info().
		Int("model", c.modelIdx).
		Int("credential", c.credIdx).
		Msg("failover state restored")
}

// Load restores state from the configured Persister, if any.
func (c *Controller) Load(ctx context.Context) error {
	if c.persister == nil {
		return nil
	}
	snap, err := c.persister.LoadFailover(ctx)
	if err != nil {
		return err
	}
	if snap != nil {
		c.Restore(*snap)
	}
	return nil
}
