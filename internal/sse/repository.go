// sse repository encapsulates the Redis pub/sub connection the relay listens on.

package sse

import (
	"Hearth/pkg/db"
	"context"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// Size of the buffer between the redis reader and the listener goroutine.
const messageBufferSize = 256

type Repository interface {
	// Subscribe issues SUBSCRIBE for channels on the dedicated pub/sub connection.
	Subscribe(ctx context.Context, channels ...string) error
	// Unsubscribe issues UNSUBSCRIBE for channels, never for "everything".
	Unsubscribe(ctx context.Context, channels ...string) error
	// Messages streams every message received on the subscribed channels, closed after Close.
	Messages() <-chan *redis.Message
	// Close releases the pub/sub connection.
	Close() error
}

// repository struct of sse Repository.
// Exactly one per process, go-redis re-subscribes its channels by itself after a reconnect.
type repository struct {
	pubsub *redis.PubSub
	once   sync.Once
	msgs   <-chan *redis.Message
}

// Returns a new instance of sse repository for other packages to access its interface.
// No connection is made until the first channel is subscribed.
func NewRepository(dbwrp *db.RedisDB) Repository {
	return &repository{pubsub: dbwrp.Client().Subscribe(context.Background())}
}

func (r *repository) Subscribe(ctx context.Context, channels ...string) error {
	if len(channels) == 0 {
		return nil
	}
	err := r.pubsub.Subscribe(ctx, channels...)
	if err != nil {
		// A failed write reconnects before go-redis records the names, the fresh connection lacks them.
		err = r.pubsub.Subscribe(ctx, channels...)
	}
	if err != nil {
		return errors.Wrapf(err, "SUBSCRIBE %v", channels)
	}
	return nil
}

func (r *repository) Unsubscribe(ctx context.Context, channels ...string) error {
	// UNSUBSCRIBE without arguments would drop every channel.
	if len(channels) == 0 {
		return nil
	}
	if err := r.pubsub.Unsubscribe(ctx, channels...); err != nil {
		return errors.Wrapf(err, "UNSUBSCRIBE %v", channels)
	}
	return nil
}

func (r *repository) Messages() <-chan *redis.Message {
	r.once.Do(func() {
		r.msgs = r.pubsub.Channel(redis.WithChannelSize(messageBufferSize))
	})
	return r.msgs
}

func (r *repository) Close() error {
	return r.pubsub.Close()
}
