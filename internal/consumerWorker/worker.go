package consumerWorker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/dto"
)

// Consumer is satisfied by *rabbit.Client.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, []byte) error) error
}

// Deliverer is satisfied by *notify.Direct.
type Deliverer interface {
	Deliver(ctx context.Context, msg dto.NotificationMessage) error
}

type Reader struct {
	rmq     Consumer
	deliver Deliverer
	log     *zerolog.Logger
	done    chan struct{}
	cancel  context.CancelFunc
}

func NewReader(rmq Consumer, deliver Deliverer, log *zerolog.Logger) *Reader {
	return &Reader{
		rmq:     rmq,
		deliver: deliver,
		log:     log,
		done:    make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.log.Info().Msg("notification reader started")

	go func() {
		defer close(r.done)
		if err := r.rmq.Consume(cctx, r.Handle); err != nil {
			r.log.Error().Err(err).Msg("failed to start consuming")
			return
		}
		r.log.Info().Msg("notification reader stopped")
	}()
}

// Handle decodes one queued notification and sends it.
func (r *Reader) Handle(ctx context.Context, body []byte) error {
	var msg dto.NotificationMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("unmarshal notification: %w", err)
	}

	if err := r.deliver.Deliver(ctx, msg); err != nil {
		r.log.Warn().
			Err(err).
			Str("kind", string(msg.Kind)).
			Str("signup_id", msg.SignupID).
			Msg("failed to deliver queued notification")
		return err
	}

	r.log.Info().
		Str("kind", string(msg.Kind)).
		Str("signup_id", msg.SignupID).
		Msg("queued notification delivered")
	return nil
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
