package mailer

import (
	"context"
	"fmt"

	"github.com/aolus-software/rbac-api/internal/core/events"
)

type Subscriber interface {
	Subscribe(eventType string, handler events.Handler)
}

type Enqueuer interface {
	Enqueue(msg Message) error
}

// Register wires the auth token events to mail delivery.
func Register(bus Subscriber, queue Enqueuer, clientURL string) {
	bus.Subscribe(events.EventTypeEmailVerificationRequested, handle(queue, clientURL, VerificationMessage))
	bus.Subscribe(events.EventTypePasswordResetRequested, handle(queue, clientURL, PasswordResetMessage))
}

type composeFunc func(clientURL, name, email, token string) (Message, error)

func handle(queue Enqueuer, clientURL string, compose composeFunc) events.Handler {
	return func(_ context.Context, event events.Event) error {
		issued, ok := event.(*events.TokenIssuedEvent)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", event)
		}

		msg, err := compose(clientURL, issued.Name, issued.Email, issued.Token)
		if err != nil {
			return fmt.Errorf("compose %s mail: %w", event.EventType(), err)
		}
		return queue.Enqueue(msg)
	}
}
