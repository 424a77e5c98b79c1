// Subscriber keeps the Redis subscriptions of this instance in line with its local clients
// and hands every inbound message to the client registry.

package sse

import (
	"Hearth/internal/channel"
	"Hearth/internal/entity"
	"Hearth/internal/metrics"
	"Hearth/pkg/log"
	"context"
	"sort"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// ErrSubscriberClosed is returned once Disconnect ran.
var ErrSubscriberClosed = errors.New("subscriber is disconnected")

type Subscriber interface {
	// SubscribeToChannels subscribes to every name not subscribed yet.
	SubscribeToChannels(ctx context.Context, names ...string) error
	// UnsubscribeFromChannels drops the channels of a departed client no remaining local client needs.
	UnsubscribeFromChannels(ctx context.Context, clientID string, userID int64, role entity.Role) error
	// Listen handles inbound messages one at a time until ctx is done or the connection is closed.
	Listen(ctx context.Context)
	// Channels returns the sorted names currently subscribed.
	Channels() []string
	// Disconnect drops every subscription and closes the connection.
	Disconnect(ctx context.Context) error
}

// What the subscriber needs from the client registry.
type localClients interface {
	snapshot() []*entity.SSEClient
	has(client *entity.SSEClient) bool
	UnicastEvent(ctx context.Context, userID int64, env entity.EventEnvelope) int
	MulticastEventToRole(ctx context.Context, role entity.Role, env entity.EventEnvelope) int
	BroadcastEvent(ctx context.Context, env entity.EventEnvelope) int
}

type subscriber struct {
	repo    Repository
	clients localClients
	logger  log.Logger
	metrics *metrics.Metrics

	// mu serializes every change of the subscription set, including the decision leading to it.
	mu       sync.Mutex
	channels map[string]struct{}
	closed   bool
}

func newSubscriber(repo Repository, clients localClients, logger log.Logger, m *metrics.Metrics) *subscriber {
	return &subscriber{
		repo:     repo,
		clients:  clients,
		logger:   logger,
		metrics:  m,
		channels: make(map[string]struct{}),
	}
}

func (s *subscriber) SubscribeToChannels(ctx context.Context, names ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribeLocked(ctx, names)
}

// subscribeClient subscribes the channels of client unless it left the registry meanwhile,
// in which case its removal already reassessed the set.
func (s *subscriber) subscribeClient(ctx context.Context, client *entity.SSEClient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.clients.has(client) {
		return nil
	}
	return s.subscribeLocked(ctx, channel.ForClient(client.UserID, client.Role))
}

func (s *subscriber) subscribeLocked(ctx context.Context, names []string) error {
	if s.closed {
		return ErrSubscriberClosed
	}
	fresh := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := s.channels[name]; ok {
			continue
		}
		s.channels[name] = struct{}{}
		fresh = append(fresh, name)
	}
	if len(fresh) == 0 {
		return nil
	}
	err := s.repo.Subscribe(ctx, fresh...)
	// go-redis keeps failed names and subscribes them on its next connection, so does the set.
	s.metrics.SetChannels(len(s.channels))
	if err != nil {
		s.logger.WithCtx(ctx).Error().Err(err).Strs("channels", fresh).Msg("Couldn't subscribe to redis channels")
		return err
	}
	s.logger.WithCtx(ctx).Debug().Strs("channels", fresh).Msg("Subscribed to redis channels")
	return nil
}

func (s *subscriber) UnsubscribeFromChannels(ctx context.Context, clientID string, userID int64, role entity.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	needBroadcast, needRole, needUser := false, false, false
	for _, c := range s.clients.snapshot() {
		if c.ID == clientID {
			continue
		}
		needBroadcast = true
		if c.Role == role {
			needRole = true
		}
		if c.UserID == userID {
			needUser = true
		}
		if needRole && needUser {
			break
		}
	}

	var drop []string
	for name, needed := range map[string]bool{
		channel.Broadcast():  needBroadcast,
		channel.Role(role):   needRole,
		channel.User(userID): needUser,
	} {
		if _, subscribed := s.channels[name]; subscribed && !needed {
			drop = append(drop, name)
		}
	}
	return s.unsubscribeLocked(ctx, drop)
}

// unsubscribeAll drops every channel, used once the registry was emptied.
func (s *subscriber) unsubscribeAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.unsubscribeLocked(ctx, s.namesLocked())
}

func (s *subscriber) unsubscribeLocked(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	err := s.repo.Unsubscribe(ctx, names...)
	// go-redis forgets the names before UNSUBSCRIBE is written and won't restore them on reconnect.
	for _, name := range names {
		delete(s.channels, name)
	}
	s.metrics.SetChannels(len(s.channels))
	if err != nil {
		s.logger.WithCtx(ctx).Error().Err(err).Strs("channels", names).Msg("Couldn't unsubscribe from redis channels")
		return err
	}
	s.logger.WithCtx(ctx).Debug().Strs("channels", names).Msg("Unsubscribed from redis channels")
	return nil
}

func (s *subscriber) Listen(ctx context.Context) {
	msgs := s.repo.Messages()
	s.logger.WithCtx(ctx).Info().Msg("Launching redis subscriber listener")
	for {
		select {
		case <-ctx.Done():
			s.logger.WithCtx(ctx).Info().Msg("Stopped redis subscriber listener")
			return
		case msg, ok := <-msgs:
			if !ok {
				s.logger.WithCtx(ctx).Info().Msg("Redis subscriber connection closed, listener exiting")
				return
			}
			s.handleMessage(ctx, msg)
		}
	}
}

// handleMessage routes one message to the registry, anything unusable is logged and dropped.
func (s *subscriber) handleMessage(ctx context.Context, msg *redis.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.Dropped("panic")
			s.logger.WithCtx(ctx).Error().Interface("panic", r).Str("channel", msg.Channel).Msg("Recovered while handling redis message")
		}
	}()

	env, err := entity.DecodeEnvelope([]byte(msg.Payload))
	if err != nil {
		s.metrics.Dropped("invalid")
		s.logger.WithCtx(ctx).Warn().Err(err).Str("channel", msg.Channel).Msg("Discarding malformed event envelope")
		return
	}
	target, err := channel.Parse(msg.Channel)
	if err != nil {
		s.metrics.Dropped("unknown_channel")
		s.logger.WithCtx(ctx).Warn().Str("channel", msg.Channel).Msg("Discarding message from unknown channel")
		return
	}

	var delivered int
	switch target.Kind {
	case channel.KindBroadcast:
		delivered = s.clients.BroadcastEvent(ctx, env)
	case channel.KindRole:
		delivered = s.clients.MulticastEventToRole(ctx, target.Role, env)
	case channel.KindUser:
		delivered = s.clients.UnicastEvent(ctx, target.UserID, env)
	}
	s.logger.WithCtx(ctx).Debug().
		Str("channel", msg.Channel).
		Str("event", string(env.EventName)).
		Int("delivered", delivered).
		Msg("Relayed redis message")
}

func (s *subscriber) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.namesLocked()
}

func (s *subscriber) namesLocked() []string {
	names := make([]string, 0, len(s.channels))
	for name := range s.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *subscriber) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if err := s.unsubscribeLocked(ctx, s.namesLocked()); err != nil {
		s.logger.WithCtx(ctx).Warn().Err(err).Msg("Closing the subscriber with channels still subscribed")
	}
	s.closed = true
	s.channels = make(map[string]struct{})
	s.metrics.SetChannels(0)
	if err := s.repo.Close(); err != nil {
		return errors.Wrap(err, "closing redis subscriber connection")
	}
	return nil
}
