package bus

import (
	"context"
	"errors"
	"time"
)

// DefaultPublisherID is used when the context carries no publisher.
const DefaultPublisherID = "game-server"

var ErrClosed = errors.New("bus closed")

// Message is a single delivery on a channel.
type Message struct {
	ID          string
	Channel     string
	Data        []byte
	Persisted   bool
	PublisherID string
	Timestamp   time.Time
}

// Handler receives messages for a subscription.
type Handler func(ctx context.Context, msg Message)

// Subscription is an active subscription to one or more channels.
type Subscription interface {
	Unsubscribe() error
}

// Bus is the pub/sub transport. Persisted messages are kept in channel history
// so late joiners can rebuild state; the rest are live only.
type Bus interface {
	Publish(ctx context.Context, channel string, payload any, persist bool) error
	Subscribe(ctx context.Context, channels []string, handler Handler) (Subscription, error)
	History(ctx context.Context, channel string, limit int) ([]Message, error)
	Close() error
}

type publisherKey struct{}

// WithPublisher attaches the publishing user id to ctx.
func WithPublisher(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, publisherKey{}, id)
}

// PublisherFrom returns the publisher id carried by ctx, or DefaultPublisherID.
func PublisherFrom(ctx context.Context) string {
	if id, ok := ctx.Value(publisherKey{}).(string); ok && id != "" {
		return id
	}
	return DefaultPublisherID
}
