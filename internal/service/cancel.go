package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/model"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/notify"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/repo"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/token"
)

type CancellationService struct {
	repo     repo.Repository
	dispatch notify.Dispatcher
	log      *zerolog.Logger
}

func NewCancellationService(r repo.Repository, d notify.Dispatcher, log *zerolog.Logger) *CancellationService {
	return &CancellationService{repo: r, dispatch: d, log: log}
}

// ResolveByToken looks the token up verbatim. Malformed tokens never reach
// the store.
func (s *CancellationService) ResolveByToken(ctx context.Context, tok string) (*model.SignupDetails, error) {
	if !token.WellFormed(tok) {
		return nil, repo.ErrSignupNotFound
	}
	return s.repo.GetSignupByToken(ctx, tok)
}

// CancelByToken deletes the signup the token belongs to. Holding the token is
// the only authorization required.
func (s *CancellationService) CancelByToken(ctx context.Context, tok string) (*model.SignupDetails, error) {
	if !token.WellFormed(tok) {
		return nil, repo.ErrSignupNotFound
	}
	d, err := s.repo.DeleteSignupByToken(ctx, tok)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("signup_id", d.Signup.ID).Str("slot_id", d.Slot.ID).Msg("signup cancelled by token")
	s.notify(ctx, d)
	return d, nil
}

// CancelByID is the management path. The actor must be an administrator or
// own the signup's slot. Non-administrators get ErrForbidden for unknown ids.
func (s *CancellationService) CancelByID(ctx context.Context, actor model.Actor, signupID string) error {
	if !actor.IsActive() {
		return ErrForbidden
	}
	d, err := s.repo.GetSignupDetails(ctx, signupID)
	if err != nil {
		if errors.Is(err, repo.ErrSignupNotFound) && !actor.IsAdmin() {
			return ErrForbidden
		}
		return err
	}
	if !actor.CanManage(d.Slot.CreatedByID) {
		return ErrForbidden
	}
	if err := s.repo.DeleteSignup(ctx, signupID); err != nil {
		return err
	}
	s.log.Info().
		Str("signup_id", signupID).
		Str("slot_id", d.Slot.ID).
		Str("actor_id", actor.UserID).
		Msg("signup cancelled by owner")
	s.notify(ctx, d)
	return nil
}

func (s *CancellationService) notify(ctx context.Context, d *model.SignupDetails) {
	if err := s.dispatch.SendCancellationNotice(ctx, d.Signup.Email, d.Signup.ParentName, d.Slot.StartTime); err != nil {
		s.log.Warn().Err(err).Str("signup_id", d.Signup.ID).Msg("failed to send cancellation email")
	}
}
