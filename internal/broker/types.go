package broker

import (
	"context"

	"github.com/casualjim/folio/events"
	"github.com/google/uuid"
)

type Broker interface {
	Topic(context.Context, string) Topic
}

type Topic interface {
	Publish(context.Context, events.Event) error
	Subscribe(context.Context, events.Hook) (Subscription, error)
}

type Subscription interface {
	ID() string
	Unsubscribe()
}

// SessionTopic names the topic carrying the events of one client session.
func SessionTopic(clientID uuid.UUID) string {
	return "session." + clientID.String()
}
