// Package notify turns ledger events into emails.
//
// Direct renders and hands the email to the sink in the caller's goroutine.
// Queued publishes a NotificationMessage to RabbitMQ and lets the consumer
// worker call Direct.Deliver. Neither retries: a failed confirmation is lost,
// and reminders are retried only by the next sweep because reminder_sent was
// never set.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/dto"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/mailer"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/model"
)

type Dispatcher interface {
	SendConfirmation(ctx context.Context, d model.SignupDetails) error
	SendReminder(ctx context.Context, d model.SignupDetails) error
	SendCancellationNotice(ctx context.Context, email, name string, start time.Time) error
}

func conference(d model.SignupDetails) mailer.Conference {
	return mailer.Conference{
		Email:             d.Signup.Email,
		ParentName:        d.Signup.ParentName,
		ChildName:         d.Signup.ChildName,
		TeacherName:       d.OwnerName,
		Start:             d.Slot.StartTime,
		End:               d.Slot.EndTime,
		HideTime:          d.Slot.HideTime,
		HideEndTime:       d.Slot.HideEndTime,
		CancellationToken: d.Signup.CancellationToken,
	}
}

type Direct struct {
	renderer *mailer.Renderer
	sink     mailer.Sink
	log      *zerolog.Logger
}

func NewDirect(renderer *mailer.Renderer, sink mailer.Sink, log *zerolog.Logger) *Direct {
	return &Direct{renderer: renderer, sink: sink, log: log}
}

func (d *Direct) SendConfirmation(ctx context.Context, sd model.SignupDetails) error {
	e, err := d.renderer.Confirmation(conference(sd))
	if err != nil {
		return fmt.Errorf("render confirmation: %w", err)
	}
	return d.sink.Send(ctx, e)
}

func (d *Direct) SendReminder(ctx context.Context, sd model.SignupDetails) error {
	e, err := d.renderer.Reminder(conference(sd))
	if err != nil {
		return fmt.Errorf("render reminder: %w", err)
	}
	return d.sink.Send(ctx, e)
}

func (d *Direct) SendCancellationNotice(ctx context.Context, email, name string, start time.Time) error {
	e, err := d.renderer.Cancellation(email, name, start)
	if err != nil {
		return fmt.Errorf("render cancellation: %w", err)
	}
	return d.sink.Send(ctx, e)
}

// Deliver sends a message taken off the queue.
func (d *Direct) Deliver(ctx context.Context, msg dto.NotificationMessage) error {
	switch msg.Kind {
	case dto.NotifyConfirmation:
		return d.SendConfirmation(ctx, msg.Details())
	case dto.NotifyReminder:
		return d.SendReminder(ctx, msg.Details())
	case dto.NotifyCancellation:
		return d.SendCancellationNotice(ctx, msg.Email, msg.ParentName, msg.StartTime)
	default:
		return fmt.Errorf("unknown notification kind %q", msg.Kind)
	}
}

// Publisher is satisfied by *rabbit.Client.
type Publisher interface {
	Publish(ctx context.Context, message []byte) error
}

type Queued struct {
	pub Publisher
	log *zerolog.Logger
}

func NewQueued(pub Publisher, log *zerolog.Logger) *Queued {
	return &Queued{pub: pub, log: log}
}

func (q *Queued) SendConfirmation(ctx context.Context, d model.SignupDetails) error {
	return q.publish(ctx, dto.NewNotificationMessage(dto.NotifyConfirmation, d))
}

func (q *Queued) SendReminder(ctx context.Context, d model.SignupDetails) error {
	return q.publish(ctx, dto.NewNotificationMessage(dto.NotifyReminder, d))
}

func (q *Queued) SendCancellationNotice(ctx context.Context, email, name string, start time.Time) error {
	return q.publish(ctx, dto.NotificationMessage{
		Kind:       dto.NotifyCancellation,
		Email:      email,
		ParentName: name,
		StartTime:  start,
	})
}

func (q *Queued) publish(ctx context.Context, msg dto.NotificationMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := q.pub.Publish(ctx, payload); err != nil {
		return fmt.Errorf("%w: publish: %v", mailer.ErrDelivery, err)
	}
	q.log.Debug().Str("kind", string(msg.Kind)).Str("signup_id", msg.SignupID).Msg("notification queued")
	return nil
}
