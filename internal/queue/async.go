package queue

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/account-auth/internal/logging"
)

// ErrBufferFull is returned by AsyncPublisher.Publish when the worker is
// behind and the event was dropped.
var ErrBufferFull = errors.New("queue: event buffer full")

const publishTimeout = 5 * time.Second

// Publisher delivers one event to the broker.
type Publisher interface {
	Publish(ctx context.Context, ev AuthEvent) error
}

// AsyncPublisher buffers events and hands them to next from a single
// background worker, so the request that produced an event returns without
// waiting on the broker. Run must be started for events to be delivered.
type AsyncPublisher struct {
	next   Publisher
	events chan AuthEvent
	log    logging.Logger
}

// NewAsyncPublisher wraps next with a buffer of size events.
func NewAsyncPublisher(next Publisher, size int, log logging.Logger) *AsyncPublisher {
	if size <= 0 {
		size = 1
	}
	return &AsyncPublisher{
		next:   next,
		events: make(chan AuthEvent, size),
		log:    log.With("component", "auth-publisher"),
	}
}

// Publish enqueues ev without blocking.
func (p *AsyncPublisher) Publish(_ context.Context, ev AuthEvent) error {
	select {
	case p.events <- ev:
		return nil
	default:
		return ErrBufferFull
	}
}

// Run delivers buffered events until ctx is cancelled, then flushes what is
// left with a bounded deadline.
func (p *AsyncPublisher) Run(ctx context.Context) {
	for {
		select {
		case ev := <-p.events:
			p.deliver(context.WithoutCancel(ctx), ev)
		case <-ctx.Done():
			p.flush(context.WithoutCancel(ctx))
			return
		}
	}
}

func (p *AsyncPublisher) flush(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	for {
		select {
		case ev := <-p.events:
			if ctx.Err() != nil {
				p.log.Warn(ctx, "dropping auth event on shutdown", "type", ev.Type)
				continue
			}
			p.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (p *AsyncPublisher) deliver(ctx context.Context, ev AuthEvent) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.next.Publish(ctx, ev); err != nil {
		p.log.Warn(ctx, "publish auth event failed", "type", ev.Type, "err", err)
	}
}
