package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/dto"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/mailer"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/model"
)

type recordingSink struct {
	sent []mailer.Email
}

func (s *recordingSink) Send(_ context.Context, e mailer.Email) error {
	s.sent = append(s.sent, e)
	return nil
}

type fakePublisher struct {
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(ctx context.Context, message []byte) error {
	if p.err != nil {
		return p.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.payloads = append(p.payloads, message)
	return nil
}

func details() model.SignupDetails {
	start := time.Date(2026, 11, 3, 15, 0, 0, 0, time.UTC)
	return model.SignupDetails{
		Signup: model.Signup{
			ID:                "signup-1",
			Email:             "parent@example.com",
			ParentName:        "Dana",
			ChildName:         "Sam",
			CancellationToken: "tok123",
		},
		Slot:      model.Slot{ID: "slot-1", StartTime: start, EndTime: start.Add(30 * time.Minute)},
		OwnerName: "Ms. Rivera",
	}
}

func TestQueuedThenDeliver_RoundTrip(t *testing.T) {
	log := zerolog.Nop()
	pub := &fakePublisher{}
	q := NewQueued(pub, &log)

	if err := q.SendConfirmation(context.Background(), details()); err != nil {
		t.Fatalf("SendConfirmation: %v", err)
	}
	if len(pub.payloads) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(pub.payloads))
	}

	var msg dto.NotificationMessage
	if err := json.Unmarshal(pub.payloads[0], &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Kind != dto.NotifyConfirmation || msg.CancellationToken != "tok123" {
		t.Fatalf("unexpected message %+v", msg)
	}

	sink := &recordingSink{}
	d := NewDirect(mailer.NewRenderer("https://school.example", "", time.UTC), sink, &log)
	if err := d.Deliver(context.Background(), msg); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(sink.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(sink.sent))
	}
	if !strings.Contains(sink.sent[0].HTML, "https://school.example/cancel/tok123") {
		t.Fatalf("delivered email lacks cancel link:\n%s", sink.sent[0].HTML)
	}
	if !strings.Contains(sink.sent[0].HTML, "Ms. Rivera") {
		t.Fatalf("delivered email lacks teacher name:\n%s", sink.sent[0].HTML)
	}
}

func TestQueued_PublishFailureIsDeliveryError(t *testing.T) {
	log := zerolog.Nop()
	q := NewQueued(&fakePublisher{err: errors.New("channel closed")}, &log)

	err := q.SendCancellationNotice(context.Background(), "a@b.c", "Dana", time.Now())
	if !errors.Is(err, mailer.ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
}

func TestDeliver_UnknownKind(t *testing.T) {
	log := zerolog.Nop()
	d := NewDirect(mailer.NewRenderer("", "", time.UTC), &recordingSink{}, &log)
	if err := d.Deliver(context.Background(), dto.NotificationMessage{Kind: "bogus"}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestQueued_HonoursCallerContext(t *testing.T) {
	log := zerolog.Nop()
	pub := &fakePublisher{}
	q := NewQueued(pub, &log)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := q.SendReminder(ctx, details())
	if !errors.Is(err, mailer.ErrDelivery) {
		t.Fatalf("expected ErrDelivery for cancelled context, got %v", err)
	}
	if len(pub.payloads) != 0 {
		t.Fatalf("message published despite cancelled context")
	}
}
