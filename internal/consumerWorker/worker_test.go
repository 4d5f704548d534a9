package consumerWorker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/dto"
)

type recordingDeliverer struct {
	got []dto.NotificationMessage
	err error
}

func (d *recordingDeliverer) Deliver(_ context.Context, msg dto.NotificationMessage) error {
	d.got = append(d.got, msg)
	return d.err
}

// chanConsumer feeds bodies to the handler until ctx is done.
type chanConsumer struct {
	bodies  chan []byte
	handled chan error
}

func (c *chanConsumer) Consume(ctx context.Context, handler func(context.Context, []byte) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case b := <-c.bodies:
			c.handled <- handler(ctx, b)
		}
	}
}

func TestHandle(t *testing.T) {
	log := zerolog.Nop()
	d := &recordingDeliverer{}
	r := NewReader(nil, d, &log)

	body, _ := json.Marshal(dto.NotificationMessage{Kind: dto.NotifyReminder, SignupID: "g1", Email: "a@b.c"})
	if err := r.Handle(context.Background(), body); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(d.got) != 1 || d.got[0].SignupID != "g1" || d.got[0].Kind != dto.NotifyReminder {
		t.Fatalf("unexpected deliveries %+v", d.got)
	}

	if err := r.Handle(context.Background(), []byte("{not json")); err == nil {
		t.Fatalf("expected error for malformed body")
	}

	d.err = errors.New("smtp down")
	if err := r.Handle(context.Background(), body); err == nil {
		t.Fatalf("expected delivery error to be returned")
	}
}

func TestStartStop(t *testing.T) {
	log := zerolog.Nop()
	d := &recordingDeliverer{}
	c := &chanConsumer{bodies: make(chan []byte), handled: make(chan error, 1)}
	r := NewReader(c, d, &log)
	r.Start(context.Background())

	body, _ := json.Marshal(dto.NotificationMessage{Kind: dto.NotifyConfirmation, SignupID: "g2"})
	c.bodies <- body
	select {
	case err := <-c.handled:
		if err != nil {
			t.Fatalf("handler: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("message not handled")
	}

	r.Stop()
	if len(d.got) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(d.got))
	}
}
