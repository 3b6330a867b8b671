package bus

import "context"

// Handler receives every payload published on the subscribed channel,
// including payloads published by this instance.
type Handler func(payload []byte)

// Bus is the publish/subscribe backbone used for cross-instance fanout.
// Implementations deliver best-effort: no retries, no acknowledgments, and
// no ordering guarantee across publishers.
type Bus interface {
	// Publish sends the payload to every subscriber of the channel.
	Publish(ctx context.Context, payload []byte) error
	// Subscribe starts delivering channel payloads to the handler until the
	// context is cancelled. It returns once the subscription is established.
	Subscribe(ctx context.Context, handler Handler) error
	// Close releases the underlying connections.
	Close() error
}
