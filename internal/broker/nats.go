package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/folio/events"
	"github.com/casualjim/folio/pkg/slogx"
	"github.com/casualjim/folio/pkg/uuidx"
	"github.com/nats-io/nats.go"
)

// EventTypeHeader carries the event type of every message published by the NATS broker.
const EventTypeHeader = "Folio-Event-Type"

type natsBroker struct {
	conn   *nats.Conn
	prefix string
	topics *haxmap.Map[string, *natsTopic]
	log    *slog.Logger
}

// NATS returns a broker publishing JSON encoded events on NATS subjects named
// after the topic, so several server instances can share sessions.
func NATS(conn *nats.Conn) *natsBroker {
	return &natsBroker{
		conn:   conn,
		topics: haxmap.New[string, *natsTopic](),
		log:    slogx.Component("broker.nats"),
	}
}

// WithSubjectPrefix prepends prefix to the subject of every topic, to share one
// NATS account between deployments.
func (b *natsBroker) WithSubjectPrefix(prefix string) *natsBroker {
	b.prefix = prefix
	return b
}

func (b *natsBroker) Topic(_ context.Context, id string) Topic {
	t, _ := b.topics.GetOrCompute(id, func() *natsTopic {
		return &natsTopic{
			conn:    b.conn,
			subject: b.prefix + id,
			log:     b.log.With(slog.String("subject", b.prefix+id)),
		}
	})
	return t
}

type natsTopic struct {
	conn    *nats.Conn
	subject string
	log     *slog.Logger
}

func (t *natsTopic) Publish(ctx context.Context, event events.Event) error {
	if event == nil {
		return errors.New("event is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := events.ToJSON(event)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(t.subject)
	msg.Header.Set(EventTypeHeader, string(event.Type()))
	msg.Data = data
	if err := t.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish %s on %s: %w", event.Type(), t.subject, err)
	}
	return nil
}

func (t *natsTopic) Subscribe(ctx context.Context, hook events.Hook) (Subscription, error) {
	if hook == nil {
		return nil, errors.New("hook is required")
	}
	ch := make(chan events.Event, subscriptionBuffer)
	done := make(chan struct{})
	nsub, err := t.conn.Subscribe(t.subject, func(msg *nats.Msg) {
		event, err := events.FromJSON(msg.Data)
		if err != nil {
			t.log.Warn("dropping undecodable message", slogx.Error(err))
			return
		}
		select {
		case ch <- event:
		case <-done:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", t.subject, err)
	}

	go forwardToHook(ctx, ch, done, hook)
	return &natsSubscription{
		id:   uuidx.NewString(),
		sub:  nsub,
		done: done,
		log:  t.log,
	}, nil
}

type natsSubscription struct {
	id   string
	sub  *nats.Subscription
	done chan struct{}
	once sync.Once
	log  *slog.Logger
}

func (n *natsSubscription) ID() string {
	return n.id
}

// Unsubscribe stops the NATS subscription and the delivery goroutine. It is safe to call twice.
func (n *natsSubscription) Unsubscribe() {
	n.once.Do(func() {
		if err := n.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			n.log.Warn("failed to unsubscribe", slogx.Error(err), slog.String("subscription", n.id))
		}
		close(n.done)
	})
}
