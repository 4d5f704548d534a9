// Package memrepo is an in-process implementation of repo.Repository.
//
// Each slot has its own mutex standing in for the postgres row lock, so the
// capacity guard behaves the same against either store. Writes made inside
// WithSlotLock are staged and applied only when the callback succeeds.
package memrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/model"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/repo"
)

type Store struct {
	mu        sync.RWMutex
	slots     map[string]model.Slot
	signups   map[string]model.Signup
	tokens    map[string]string
	users     map[string]model.User
	templates map[string]model.Template
	claimed   map[string]bool

	lockMu    sync.Mutex
	slotLocks map[string]*sync.Mutex
}

var _ repo.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		slots:     make(map[string]model.Slot),
		signups:   make(map[string]model.Signup),
		tokens:    make(map[string]string),
		users:     make(map[string]model.User),
		templates: make(map[string]model.Template),
		claimed:   make(map[string]bool),
		slotLocks: make(map[string]*sync.Mutex),
	}
}

func (s *Store) AddUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Store) AddTemplate(t model.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = t
}

func (s *Store) slotLock(id string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.slotLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.slotLocks[id] = l
	}
	return l
}

// must hold s.mu
func (s *Store) occupancy(slotID string) int {
	total := 0
	for _, g := range s.signups {
		if g.SlotID == slotID {
			total += g.AttendeeCount
		}
	}
	return total
}

// must hold s.mu
func (s *Store) ownerName(ownerID string) string {
	u, ok := s.users[ownerID]
	if !ok {
		return ""
	}
	return u.DisplayName()
}

// must hold s.mu
func (s *Store) details(g model.Signup) model.SignupDetails {
	slot := s.slots[g.SlotID]
	return model.SignupDetails{Signup: g, Slot: slot, OwnerName: s.ownerName(slot.CreatedByID)}
}

func (s *Store) CreateSlot(_ context.Context, slot *model.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot.ID] = *slot
	return nil
}

func (s *Store) GetSlot(_ context.Context, id string) (*model.SlotView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.slots[id]
	if !ok {
		return nil, repo.ErrSlotNotFound
	}
	v := model.NewSlotView(slot, s.occupancy(id), s.ownerName(slot.CreatedByID))
	return &v, nil
}

func (s *Store) ListSlots(_ context.Context, f model.SlotFilter) ([]model.SlotView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.SlotView
	for _, slot := range s.slots {
		if f.EventPageID != "" && (slot.EventPageID == nil || *slot.EventPageID != f.EventPageID) {
			continue
		}
		if f.OwnerID != "" && slot.CreatedByID != f.OwnerID {
			continue
		}
		if !f.From.IsZero() && slot.StartTime.Before(f.From) {
			continue
		}
		out = append(out, model.NewSlotView(slot, s.occupancy(slot.ID), s.ownerName(slot.CreatedByID)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *Store) DeleteSlot(_ context.Context, id string) error {
	l := s.slotLock(id)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.slots[id]; !ok {
		return repo.ErrSlotNotFound
	}
	delete(s.slots, id)
	for gid, g := range s.signups {
		if g.SlotID == id {
			delete(s.tokens, g.CancellationToken)
			delete(s.signups, gid)
		}
	}
	return nil
}

func (s *Store) WithSlotLock(ctx context.Context, slotID string, fn func(tx repo.SlotTx) error) error {
	l := s.slotLock(slotID)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	slot, ok := s.slots[slotID]
	s.mu.RUnlock()
	if !ok {
		return repo.ErrSlotNotFound
	}

	tx := &slotTx{store: s, slot: slot}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.apply()
}

type slotTx struct {
	store   *Store
	slot    model.Slot
	updated bool
	inserts []model.Signup
}

func (t *slotTx) Slot() model.Slot { return t.slot }

func (t *slotTx) Occupancy(_ context.Context) (int, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	total := t.store.occupancy(t.slot.ID)
	for _, g := range t.inserts {
		total += g.AttendeeCount
	}
	return total, nil
}

func (t *slotTx) InsertSignup(_ context.Context, g *model.Signup) error {
	t.store.mu.RLock()
	_, taken := t.store.tokens[g.CancellationToken]
	t.store.mu.RUnlock()
	if taken {
		return repo.ErrTokenConflict
	}
	for _, pending := range t.inserts {
		if pending.CancellationToken == g.CancellationToken {
			return repo.ErrTokenConflict
		}
	}
	g.SlotID = t.slot.ID
	t.inserts = append(t.inserts, *g)
	return nil
}

func (t *slotTx) UpdateSlot(_ context.Context, slot *model.Slot) error {
	updated := *slot
	updated.ID = t.slot.ID
	t.slot = updated
	t.updated = true
	return nil
}

func (t *slotTx) apply() error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if _, ok := t.store.slots[t.slot.ID]; !ok {
		return repo.ErrSlotNotFound
	}
	for _, g := range t.inserts {
		if _, taken := t.store.tokens[g.CancellationToken]; taken {
			return repo.ErrTokenConflict
		}
	}
	if t.updated {
		t.store.slots[t.slot.ID] = t.slot
	}
	for _, g := range t.inserts {
		t.store.signups[g.ID] = g
		t.store.tokens[g.CancellationToken] = g.ID
	}
	return nil
}

func (s *Store) GetSignupByToken(_ context.Context, token string) (*model.SignupDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.tokens[token]
	if !ok {
		return nil, repo.ErrSignupNotFound
	}
	d := s.details(s.signups[id])
	return &d, nil
}

func (s *Store) GetSignupDetails(_ context.Context, id string) (*model.SignupDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.signups[id]
	if !ok {
		return nil, repo.ErrSignupNotFound
	}
	d := s.details(g)
	return &d, nil
}

func (s *Store) DeleteSignupByToken(_ context.Context, token string) (*model.SignupDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tokens[token]
	if !ok {
		return nil, repo.ErrSignupNotFound
	}
	d := s.details(s.signups[id])
	delete(s.tokens, token)
	delete(s.signups, id)
	return &d, nil
}

func (s *Store) DeleteSignup(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.signups[id]
	if !ok {
		return repo.ErrSignupNotFound
	}
	delete(s.tokens, g.CancellationToken)
	delete(s.signups, id)
	return nil
}

func (s *Store) ListSignupsBySlot(_ context.Context, slotID string) ([]model.Signup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Signup
	for _, g := range s.signups {
		if g.SlotID == slotID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListReminderCandidates(_ context.Context, from, to time.Time) ([]model.SignupDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.SignupDetails
	for _, g := range s.signups {
		if g.ReminderSent {
			continue
		}
		start := s.slots[g.SlotID].StartTime
		if start.Before(from) || !start.Before(to) {
			continue
		}
		out = append(out, s.details(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot.StartTime.Before(out[j].Slot.StartTime) })
	return out, nil
}

func (s *Store) WithReminderClaim(_ context.Context, signupID string, fn func(d model.SignupDetails) error) (bool, error) {
	s.mu.Lock()
	g, ok := s.signups[signupID]
	if !ok || g.ReminderSent || s.claimed[signupID] {
		s.mu.Unlock()
		return false, nil
	}
	s.claimed[signupID] = true
	d := s.details(g)
	s.mu.Unlock()

	err := fn(d)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claimed, signupID)
	if err != nil {
		return true, err
	}
	if g, ok := s.signups[signupID]; ok {
		g.ReminderSent = true
		s.signups[signupID] = g
	}
	return true, nil
}

func (s *Store) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repo.ErrUserNotFound
	}
	return &u, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, repo.ErrUserNotFound
}

func (s *Store) GetTemplate(_ context.Context, id string) (*model.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, repo.ErrTemplateNotFound
	}
	return &t, nil
}

func (s *Store) GetDefaultTemplate(_ context.Context) (*model.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *model.Template
	for _, t := range s.templates {
		if !t.IsDefault {
			continue
		}
		if found == nil || t.Name < found.Name {
			t := t
			found = &t
		}
	}
	if found == nil {
		return nil, repo.ErrTemplateNotFound
	}
	return found, nil
}
