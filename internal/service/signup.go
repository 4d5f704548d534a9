package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/dto"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/model"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/notify"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/repo"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/token"
	"github.com/Patrick-Flanagan-13/parent-invite-app/pkg/validator"
)

type SignupService struct {
	repo     repo.Repository
	dispatch notify.Dispatcher
	log      *zerolog.Logger
	now      func() time.Time
}

func NewSignupService(r repo.Repository, d notify.Dispatcher, log *zerolog.Logger, now func() time.Time) *SignupService {
	if now == nil {
		now = time.Now
	}
	return &SignupService{repo: r, dispatch: d, log: log, now: now}
}

// AttemptSignup admits a registrant into a slot if the slot has room for
// AttendeeCount more people. The occupancy read and the insert happen under
// the slot's row lock, so concurrent attempts for the last spot serialize.
//
// Returns repo.ErrSlotNotFound, *CapacityError or *ValidationError. The
// confirmation email is sent after commit and its failure is only logged.
func (s *SignupService) AttemptSignup(ctx context.Context, slotID string, req dto.SignupRequest) (*model.Signup, error) {
	signup, err := newSignup(req)
	if err != nil {
		return nil, err
	}

	var slot model.Slot
	for attempt := 1; ; attempt++ {
		tok, err := token.New()
		if err != nil {
			return nil, err
		}
		signup.ID = uuid.NewString()
		signup.CancellationToken = tok
		signup.CreatedAt = s.now().UTC()

		err = s.repo.WithSlotLock(ctx, slotID, func(tx repo.SlotTx) error {
			slot = tx.Slot()
			occupied, err := tx.Occupancy(ctx)
			if err != nil {
				return err
			}
			if occupied+signup.AttendeeCount > slot.MaxCapacity {
				return &CapacityError{Requested: signup.AttendeeCount, Remaining: max(slot.MaxCapacity-occupied, 0)}
			}
			return tx.InsertSignup(ctx, &signup)
		})
		if errors.Is(err, repo.ErrTokenConflict) && attempt < tokenAttempts {
			s.log.Warn().Str("slot_id", slotID).Int("attempt", attempt).Msg("cancellation token collision, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}

	s.log.Info().
		Str("signup_id", signup.ID).
		Str("slot_id", slotID).
		Int("attendee_count", signup.AttendeeCount).
		Msg("signup created")

	details := model.SignupDetails{
		Signup:    signup,
		Slot:      slot,
		OwnerName: ownerName(ctx, s.repo, s.log, slot.CreatedByID),
	}
	if err := s.dispatch.SendConfirmation(ctx, details); err != nil {
		s.log.Warn().Err(err).Str("signup_id", signup.ID).Msg("failed to send confirmation email")
	}

	return &signup, nil
}

func newSignup(req dto.SignupRequest) (model.Signup, error) {
	count := req.AttendeeCount
	if count == 0 {
		count = 1
	}
	if count < 0 {
		return model.Signup{}, &ValidationError{Field: "attendee_count", Reason: "must be at least 1"}
	}

	parent := strings.TrimSpace(req.ParentName)
	if parent == "" {
		return model.Signup{}, &ValidationError{Field: "parent_name", Reason: "is required"}
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !validator.Email(email) {
		return model.Signup{}, &ValidationError{Field: "email", Reason: fmt.Sprintf("%q is not an email address", req.Email)}
	}

	return model.Signup{
		ParentName:    parent,
		ChildName:     strings.TrimSpace(req.ChildName),
		Email:         email,
		Contribution:  strings.TrimSpace(req.Contribution),
		Donation:      strings.TrimSpace(req.Donation),
		AttendeeCount: count,
	}, nil
}
