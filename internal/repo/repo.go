package repo

import (
	"context"
	"errors"
	"time"

	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/model"
)

var (
	ErrSlotNotFound     = errors.New("slot not found")
	ErrSignupNotFound   = errors.New("signup not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrTemplateNotFound = errors.New("template not found")
	ErrTokenConflict    = errors.New("cancellation token already in use")
	ErrInvalidReference = errors.New("referenced template, event page or user does not exist")
)

// SlotTx is the view of one slot inside a transaction that holds its row lock.
// Nothing else can insert signups for the slot until the transaction ends.
type SlotTx interface {
	Slot() model.Slot
	Occupancy(ctx context.Context) (int, error)
	InsertSignup(ctx context.Context, s *model.Signup) error
	UpdateSlot(ctx context.Context, s *model.Slot) error
}

type Repository interface {
	CreateSlot(ctx context.Context, s *model.Slot) error
	GetSlot(ctx context.Context, id string) (*model.SlotView, error)
	ListSlots(ctx context.Context, f model.SlotFilter) ([]model.SlotView, error)
	DeleteSlot(ctx context.Context, id string) error

	// WithSlotLock runs fn inside a transaction that holds an exclusive lock on
	// the slot row. A non-nil error from fn rolls the transaction back and is
	// returned unchanged.
	WithSlotLock(ctx context.Context, slotID string, fn func(tx SlotTx) error) error

	GetSignupByToken(ctx context.Context, token string) (*model.SignupDetails, error)
	GetSignupDetails(ctx context.Context, id string) (*model.SignupDetails, error)
	DeleteSignupByToken(ctx context.Context, token string) (*model.SignupDetails, error)
	DeleteSignup(ctx context.Context, id string) error
	ListSignupsBySlot(ctx context.Context, slotID string) ([]model.Signup, error)

	// ListReminderCandidates returns unreminded signups whose slot starts in [from, to).
	ListReminderCandidates(ctx context.Context, from, to time.Time) ([]model.SignupDetails, error)
	// WithReminderClaim locks an unreminded signup and runs fn. reminder_sent is
	// set only when fn returns nil. claimed is false when the signup was already
	// reminded, deleted, or is held by a concurrent sweep.
	WithReminderClaim(ctx context.Context, signupID string, fn func(d model.SignupDetails) error) (claimed bool, err error)

	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetTemplate(ctx context.Context, id string) (*model.Template, error)
	GetDefaultTemplate(ctx context.Context) (*model.Template, error)
}
