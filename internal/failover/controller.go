// Package failover rotates requests across a credential pool and a
// prioritised model list, blocking slots that hit rate or permission limits
// and releasing them lazily once their block window has passed.
package failover

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/tagstream/internal/logging"
)

// Default block windows.
const (
	DefaultShortBlock      = time.Minute
	DefaultLongBlock       = 24 * time.Hour
	DefaultPermissionBlock = 365 * 24 * time.Hour
)

// ErrExhausted is returned by Current when no model or credential is
// available until some block window passes.
var ErrExhausted = errors.New("failover: all credentials and models are blocked")

// credentialNamespace scopes credential fingerprints.
var credentialNamespace = uuid.MustParse("9b2f6c1e-4a8d-5e3b-9c7f-2d1e0a6b8c4f")

// Config configures a Controller.
type Config struct {
	Credentials []string // opaque secrets, in rotation order
	Models      []string // model ids, most preferred first

	ShortBlock      time.Duration
	LongBlock       time.Duration
	PermissionBlock time.Duration

	Clock     Clock
	Persister Persister
}

// Credential is one entry of the credential pool.
type Credential struct {
	ID     string
	Secret string
}

// Selection is the credential and model an attempt should use.
type Selection struct {
	Credential      Credential
	Model           string
	CredentialIndex int
	ModelIndex      int
}

type credentialSlot struct {
	id           string
	secret       string
	blockedUntil time.Time
	failureCount int
	window       time.Duration // last rate-limit window applied
	permanent    bool          // blocked by a permission error
}

func (s *credentialSlot) blocked(now time.Time) bool {
	return !s.blockedUntil.IsZero() && now.Before(s.blockedUntil)
}

type modelSlot struct {
	id           string
	rank         int
	blockedUntil time.Time
}

func (s *modelSlot) blocked(now time.Time) bool {
	return !s.blockedUntil.IsZero() && now.Before(s.blockedUntil)
}

// Controller owns the process-wide rotation state. All methods are safe for
// concurrent use; each error event is applied atomically.
type Controller struct {
	mu sync.Mutex

	shortBlock      time.Duration
	longBlock       time.Duration
	permissionBlock time.Duration
	clock           Clock
	persister       Persister
	log             *logging.Logger

	creds    []*credentialSlot
	models   []*modelSlot
	credIdx  int
	modelIdx int
	version  uint64 // bumped under mu for every snapshot handed to persist

	saveMu sync.Mutex
	saved  uint64 // highest version written, guarded by saveMu
}

// New creates a Controller. Duplicate credentials are collapsed.
func New(cfg Config, log *logging.Logger) (*Controller, error) {
	if len(cfg.Credentials) == 0 {
		return nil, errors.New("failover: no credentials configured")
	}
	if len(cfg.Models) == 0 {
		return nil, errors.New("failover: no models configured")
	}

	c := &Controller{
		shortBlock:      orDefault(cfg.ShortBlock, DefaultShortBlock),
		longBlock:       orDefault(cfg.LongBlock, DefaultLongBlock),
		permissionBlock: orDefault(cfg.PermissionBlock, DefaultPermissionBlock),
		clock:           cfg.Clock,
		persister:       cfg.Persister,
		log:             log.Sub("failover"),
	}
	if c.clock == nil {
		c.clock = SystemClock
	}

	seen := make(map[string]bool)
	for _, secret := range cfg.Credentials {
		id := CredentialID(secret)
		if seen[id] {
			continue
		}
		seen[id] = true
		c.creds = append(c.creds, &credentialSlot{id: id, secret: secret})
	}
	for i, m := range cfg.Models {
		c.models = append(c.models, &modelSlot{id: m, rank: i})
	}
	return c, nil
}

// CredentialID returns the stable fingerprint used to identify a secret in
// logs and persisted state.
func CredentialID(secret string) string {
	return "cred-" + uuid.NewSHA1(credentialNamespace, []byte(secret)).String()[:8]
}

// Current returns the selection for the next attempt. Expired blocks are
// cleared first; if a more preferred model has become available the
// selection snaps back to it with a fresh credential pool.
func (c *Controller) Current() (Selection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.unblockExpired(now)

	if best := c.firstFreeModel(now, -1); best >= 0 && best != c.modelIdx {
		if best < c.modelIdx || c.models[c.modelIdx].blocked(now) {
			c.log.Info().
				Str("from", c.models[c.modelIdx].id).
				Str("to", c.models[best].id).
				Msg("model restored")
			c.switchModel(best)
		}
	}

	if c.models[c.modelIdx].blocked(now) {
		return c.selection(), ErrExhausted
	}
	if c.creds[c.credIdx].blocked(now) {
		next := c.nextFreeCredential(now)
		if next < 0 {
			return c.selection(), ErrExhausted
		}
		c.credIdx = next
	}
	return c.selection(), nil
}

// OnRateLimited records a rate-limit hit on the current credential and
// rotates away from it. A credential that was already rate limited earlier
// in its run gets the long block. When no other credential is free the model
// itself is blocked and the next free model is selected. It reports whether
// any rotation happened.
func (c *Controller) OnRateLimited() bool {
	c.mu.Lock()
	now := c.clock.Now()
	slot := c.creds[c.credIdx]

	window := c.shortBlock
	if slot.failureCount >= 1 {
		window = c.longBlock
	}
	slot.failureCount++
	slot.window = window
	slot.blockedUntil = now.Add(window)

	c.log.Warn().
		Str("credential", slot.id).
		Str("model", c.models[c.modelIdx].id).
		Int("failures", slot.failureCount).
		Dur("block", window).
		Msg("credential rate limited")

	rotated := c.rotateCredential(now)
	if !rotated {
		rotated = c.blockModelAndRotate(now)
	}
	snap, ver := c.pendingLocked(now)
	c.mu.Unlock()

	c.persist(snap, ver)
	return rotated
}

// OnPermissionDenied blocks the current credential for the permission window
// and rotates to the next free credential. The model is never blocked.
func (c *Controller) OnPermissionDenied() bool {
	c.mu.Lock()
	now := c.clock.Now()
	slot := c.creds[c.credIdx]
	slot.blockedUntil = now.Add(c.permissionBlock)
	slot.permanent = true

	c.log.Warn().
		Str("credential", slot.id).
		Str("model", c.models[c.modelIdx].id).
		Msg("credential permission denied")

	rotated := c.rotateCredential(now)
	snap, ver := c.pendingLocked(now)
	c.mu.Unlock()

	c.persist(snap, ver)
	return rotated
}

// OnSuccess ends an escalation run for the current credential.
func (c *Controller) OnSuccess() {
	c.mu.Lock()
	slot := c.creds[c.credIdx]
	if slot.failureCount == 0 {
		c.mu.Unlock()
		return
	}
	slot.failureCount = 0
	snap, ver := c.pendingLocked(c.clock.Now())
	c.mu.Unlock()

	c.persist(snap, ver)
}

// Reset clears every block and returns to the first credential and model.
func (c *Controller) Reset() {
	c.mu.Lock()
	for _, m := range c.models {
		m.blockedUntil = time.Time{}
	}
	c.resetCredentials()
	c.modelIdx = 0
	snap, ver := c.pendingLocked(c.clock.Now())
	c.mu.Unlock()

	c.log.Info().Msg("failover state reset")
	c.persist(snap, ver)
}

// --- internal helpers; callers hold c.mu ---

func (c *Controller) selection() Selection {
	slot := c.creds[c.credIdx]
	return Selection{
		Credential:      Credential{ID: slot.id, Secret: slot.secret},
		Model:           c.models[c.modelIdx].id,
		CredentialIndex: c.credIdx,
		ModelIndex:      c.modelIdx,
	}
}

func (c *Controller) unblockExpired(now time.Time) {
	for _, s := range c.creds {
		if !s.blockedUntil.IsZero() && !now.Before(s.blockedUntil) {
			s.blockedUntil = time.Time{}
			s.permanent = false
		}
	}
	for _, m := range c.models {
		if !m.blockedUntil.IsZero() && !now.Before(m.blockedUntil) {
			m.blockedUntil = time.Time{}
		}
	}
}

// rotateCredential moves to the next free credential after the current one,
// wrapping around once.
func (c *Controller) rotateCredential(now time.Time) bool {
	next := c.nextFreeCredential(now)
	if next < 0 {
		return false
	}
	c.log.Info().
		Str("from", c.creds[c.credIdx].id).
		Str("to", c.creds[next].id).
		Msg("credential rotated")
	c.credIdx = next
	return true
}

func (c *Controller) nextFreeCredential(now time.Time) int {
	n := len(c.creds)
	for step := 1; step <= n; step++ {
		i := (c.credIdx + step) % n
		if !c.creds[i].blocked(now) {
			return i
		}
	}
	return -1
}

func (c *Controller) blockModelAndRotate(now time.Time) bool {
	cur := c.models[c.modelIdx]
	window := c.worstWindow()
	cur.blockedUntil = now.Add(window)
	c.log.Warn().Str("model", cur.id).Dur("block", window).Msg("model blocked, credential pool exhausted")

	next := c.firstFreeModel(now, c.modelIdx)
	if next < 0 {
		c.log.Error().Msg("no model available")
		return false
	}
	c.log.Info().Str("from", cur.id).Str("to", c.models[next].id).Msg("model rotated")
	c.switchModel(next)
	return true
}

// worstWindow is the longest rate-limit window among the current pool.
func (c *Controller) worstWindow() time.Duration {
	worst := time.Duration(0)
	for _, s := range c.creds {
		if s.window > worst {
			worst = s.window
		}
	}
	if worst == 0 {
		worst = c.shortBlock
	}
	return worst
}

// firstFreeModel returns the most preferred unblocked model other than skip.
func (c *Controller) firstFreeModel(now time.Time, skip int) int {
	for i, m := range c.models {
		if i != skip && !m.blocked(now) {
			return i
		}
	}
	return -1
}

// switchModel selects model i with a clean credential pool. Credential
// blocks are scoped to the model they were observed under.
func (c *Controller) switchModel(i int) {
	c.modelIdx = i
	c.resetCredentials()
}

func (c *Controller) resetCredentials() {
	for _, s := range c.creds {
		s.blockedUntil = time.Time{}
		s.failureCount = 0
		s.window = 0
		s.permanent = false
	}
	c.credIdx = 0
}

// pendingLocked takes a snapshot for persistence and numbers it.
func (c *Controller) pendingLocked(now time.Time) (Snapshot, uint64) {
	c.version++
	return c.snapshotLocked(now), c.version
}

// persist writes snap unless a newer snapshot was already written. Saves
// run outside c.mu, so racing error events may arrive here out of order.
func (c *Controller) persist(snap Snapshot, ver uint64) {
	if c.persister == nil {
		return
	}
	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	if ver <= c.saved {
		return
	}
	c.saved = ver
	if err := c.persister.SaveFailover(context.Background(), snap); err != nil {
		c.log.Warn().Err(err).Msg("persisting failover state")
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
