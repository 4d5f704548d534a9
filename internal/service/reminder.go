package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/model"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/notify"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/repo"
)

type SweepResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	// Skipped counts candidates another sweep reminded or held first.
	Skipped int `json:"skipped"`
}

type ReminderService struct {
	repo        repo.Repository
	dispatch    notify.Dispatcher
	log         *zerolog.Logger
	lead        time.Duration
	window      time.Duration
	concurrency int
	now         func() time.Time
}

func NewReminderService(r repo.Repository, d notify.Dispatcher, log *zerolog.Logger, cfg Config) *ReminderService {
	cfg = cfg.withDefaults()
	return &ReminderService{
		repo:        r,
		dispatch:    d,
		log:         log,
		lead:        cfg.ReminderLead,
		window:      cfg.ReminderWindow,
		concurrency: cfg.SweepConcurrency,
		now:         cfg.Now,
	}
}

// Window returns the half-open start-time range the sweep selects for now.
func (s *ReminderService) Window(now time.Time) (from, to time.Time) {
	from = now.Add(s.lead)
	return from, from.Add(s.window)
}

// RunSweep reminds every unreminded signup whose slot starts inside the
// window. Each signup is claimed under a row lock, the email is sent, and
// reminder_sent is set only if the send succeeded. A failure for one signup
// never stops the others; a later sweep retries it.
func (s *ReminderService) RunSweep(ctx context.Context, now time.Time) (SweepResult, error) {
	if now.IsZero() {
		now = s.now()
	}
	from, to := s.Window(now)

	candidates, err := s.repo.ListReminderCandidates(ctx, from, to)
	if err != nil {
		return SweepResult{}, err
	}

	var sent, failed, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, c := range candidates {
		signupID := c.Signup.ID
		g.Go(func() error {
			claimed, err := s.repo.WithReminderClaim(gctx, signupID, func(d model.SignupDetails) error {
				return s.dispatch.SendReminder(gctx, d)
			})
			switch {
			case err != nil:
				failed.Add(1)
				s.log.Warn().Err(err).Str("signup_id", signupID).Msg("failed to send reminder")
			case !claimed:
				skipped.Add(1)
			default:
				sent.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := SweepResult{
		Processed: len(candidates),
		Sent:      int(sent.Load()),
		Failed:    int(failed.Load()),
		Skipped:   int(skipped.Load()),
	}
	s.log.Info().
		Time("from", from).
		Time("to", to).
		Int("processed", res.Processed).
		Int("sent", res.Sent).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Msg("reminder sweep finished")
	return res, nil
}
