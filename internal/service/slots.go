package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/dto"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/model"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/repo"
)

// hiddenEndDuration is the end time given to slots that hide their end time
// and were created without one.
const hiddenEndDuration = time.Hour

type SlotService struct {
	repo repo.Repository
	log  *zerolog.Logger
	now  func() time.Time
}

func NewSlotService(r repo.Repository, log *zerolog.Logger, now func() time.Time) *SlotService {
	if now == nil {
		now = time.Now
	}
	return &SlotService{repo: r, log: log, now: now}
}

func (s *SlotService) CreateSlot(ctx context.Context, actor model.Actor, req dto.CreateSlotRequest) (*model.SlotView, error) {
	if !actor.IsActive() {
		return nil, ErrForbidden
	}
	if req.MaxCapacity < 1 {
		return nil, &ValidationError{Field: "max_capacity", Reason: "must be at least 1"}
	}
	if req.StartTime.IsZero() {
		return nil, &ValidationError{Field: "start_time", Reason: "is required"}
	}

	tmpl, err := s.template(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}

	slot := model.Slot{
		ID:           uuid.NewString(),
		StartTime:    req.StartTime.UTC(),
		MaxCapacity:  req.MaxCapacity,
		Name:         strings.TrimSpace(req.Name),
		Description:  strings.TrimSpace(req.Description),
		DonationLink: strings.TrimSpace(req.DonationLink),
		CreatedByID:  actor.UserID,
		CreatedAt:    s.now().UTC(),
	}
	if req.HideTime != nil {
		slot.HideTime = *req.HideTime
	}
	if tmpl != nil {
		slot.TemplateID = &tmpl.ID
		if slot.Name == "" {
			slot.Name = tmpl.Name
		}
		if slot.Description == "" {
			slot.Description = tmpl.Description
		}
		slot.HideEndTime = tmpl.HideEndTime
	}
	if req.HideEndTime != nil {
		slot.HideEndTime = *req.HideEndTime
	}
	if req.EventPageID != "" {
		page := req.EventPageID
		slot.EventPageID = &page
	}

	switch {
	case req.EndTime != nil:
		slot.EndTime = req.EndTime.UTC()
	case slot.HideEndTime:
		slot.EndTime = slot.StartTime.Add(hiddenEndDuration)
	default:
		return nil, &ValidationError{Field: "end_time", Reason: "is required unless the end time is hidden"}
	}
	if slot.EndTime.Before(slot.StartTime) {
		return nil, &ValidationError{Field: "end_time", Reason: "must not be before start_time"}
	}

	if err := s.repo.CreateSlot(ctx, &slot); err != nil {
		if errors.Is(err, repo.ErrInvalidReference) {
			return nil, &ValidationError{Field: "event_page_id", Reason: "unknown event page"}
		}
		return nil, err
	}
	s.log.Info().Str("slot_id", slot.ID).Str("owner_id", actor.UserID).Int("max_capacity", slot.MaxCapacity).Msg("slot created")

	return s.repo.GetSlot(ctx, slot.ID)
}

// template returns the named template, or the default template when id is
// empty. No default is not an error.
func (s *SlotService) template(ctx context.Context, id string) (*model.Template, error) {
	if id != "" {
		t, err := s.repo.GetTemplate(ctx, id)
		if errors.Is(err, repo.ErrTemplateNotFound) {
			return nil, &ValidationError{Field: "template_id", Reason: "unknown template"}
		}
		return t, err
	}
	t, err := s.repo.GetDefaultTemplate(ctx)
	if errors.Is(err, repo.ErrTemplateNotFound) {
		return nil, nil
	}
	return t, err
}

// UpdateSlot applies a partial update under the slot lock. A capacity below
// the current occupancy is refused with *OccupancyError.
func (s *SlotService) UpdateSlot(ctx context.Context, actor model.Actor, id string, req dto.UpdateSlotRequest) (*model.SlotView, error) {
	if !actor.IsActive() {
		return nil, ErrForbidden
	}
	err := s.repo.WithSlotLock(ctx, id, func(tx repo.SlotTx) error {
		slot := tx.Slot()
		if !actor.CanManage(slot.CreatedByID) {
			return ErrForbidden
		}

		if req.StartTime != nil {
			slot.StartTime = req.StartTime.UTC()
		}
		if req.EndTime != nil {
			slot.EndTime = req.EndTime.UTC()
		}
		if req.Name != nil {
			slot.Name = strings.TrimSpace(*req.Name)
		}
		if req.Description != nil {
			slot.Description = strings.TrimSpace(*req.Description)
		}
		if req.DonationLink != nil {
			slot.DonationLink = strings.TrimSpace(*req.DonationLink)
		}
		if req.HideTime != nil {
			slot.HideTime = *req.HideTime
		}
		if req.HideEndTime != nil {
			slot.HideEndTime = *req.HideEndTime
		}
		if slot.EndTime.Before(slot.StartTime) {
			return &ValidationError{Field: "end_time", Reason: "must not be before start_time"}
		}

		if req.MaxCapacity != nil {
			if *req.MaxCapacity < 1 {
				return &ValidationError{Field: "max_capacity", Reason: "must be at least 1"}
			}
			occupied, err := tx.Occupancy(ctx)
			if err != nil {
				return err
			}
			if *req.MaxCapacity < occupied {
				return &OccupancyError{Occupied: occupied, Requested: *req.MaxCapacity}
			}
			slot.MaxCapacity = *req.MaxCapacity
		}
		return tx.UpdateSlot(ctx, &slot)
	})
	if err != nil {
		if errors.Is(err, repo.ErrSlotNotFound) && !actor.IsAdmin() {
			return nil, ErrForbidden
		}
		return nil, err
	}
	s.log.Info().Str("slot_id", id).Str("actor_id", actor.UserID).Msg("slot updated")
	return s.repo.GetSlot(ctx, id)
}

// DeleteSlot removes the slot and, by cascade, every signup in it.
func (s *SlotService) DeleteSlot(ctx context.Context, actor model.Actor, id string) error {
	if err := s.authorize(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.DeleteSlot(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("slot_id", id).Str("actor_id", actor.UserID).Msg("slot deleted")
	return nil
}

func (s *SlotService) GetSlot(ctx context.Context, id string) (*model.SlotView, error) {
	return s.repo.GetSlot(ctx, id)
}

func (s *SlotService) ListSlots(ctx context.Context, f model.SlotFilter) ([]model.SlotView, error) {
	return s.repo.ListSlots(ctx, f)
}

func (s *SlotService) ListSlotSignups(ctx context.Context, actor model.Actor, slotID string) ([]model.Signup, error) {
	if err := s.authorize(ctx, actor, slotID); err != nil {
		return nil, err
	}
	return s.repo.ListSignupsBySlot(ctx, slotID)
}

// ListTeacherSlots lists a teacher's slots starting at or after from.
// Suspended teachers are reported as not found.
func (s *SlotService) ListTeacherSlots(ctx context.Context, username string, from time.Time) (*model.User, []model.SlotView, error) {
	u, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	if u.Status != model.StatusActive {
		return nil, nil, repo.ErrUserNotFound
	}
	slots, err := s.repo.ListSlots(ctx, model.SlotFilter{OwnerID: u.ID, From: from})
	if err != nil {
		return nil, nil, err
	}
	return u, slots, nil
}

func (s *SlotService) authorize(ctx context.Context, actor model.Actor, slotID string) error {
	if !actor.IsActive() {
		return ErrForbidden
	}
	v, err := s.repo.GetSlot(ctx, slotID)
	if err != nil {
		if errors.Is(err, repo.ErrSlotNotFound) && !actor.IsAdmin() {
			return ErrForbidden
		}
		return err
	}
	if !actor.CanManage(v.CreatedByID) {
		return ErrForbidden
	}
	return nil
}
