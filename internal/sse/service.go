// Service layer of Server Side Events (SSE) in Hearth: the registry of the connections held by this instance.

package sse

import (
	"Hearth/internal/entity"
	"Hearth/internal/metrics"
	"Hearth/pkg/log"
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrRegistryClosed is returned by AddClient once ClearSseClients ran.
var ErrRegistryClosed = errors.New("sse registry is shut down")

type Service interface {
	// AddClient registers an authenticated connection whose headers were flushed and subscribes
	// to its broadcast, role and user channels. Registering an id twice replaces the first entry
	// without ending its stream, callers guarantee one call per physical connection.
	AddClient(ctx context.Context, userID int64, role entity.Role, sink entity.StreamSink, connectionID string) error
	// RemoveClient ends the stream of connectionID and drops channels nobody needs anymore.
	// Returns false when the id is unknown, later calls for the same id are no-ops.
	RemoveClient(ctx context.Context, connectionID string) bool
	// UnicastEvent delivers env to every connection of userID.
	UnicastEvent(ctx context.Context, userID int64, env entity.EventEnvelope) int
	// MulticastEventToRole delivers env to every connection with role.
	MulticastEventToRole(ctx context.Context, role entity.Role, env entity.EventEnvelope) int
	// MulticastEventToRoles delivers env once to every connection whose role is in roles.
	MulticastEventToRoles(ctx context.Context, roles []entity.Role, env entity.EventEnvelope) int
	// BroadcastEvent delivers env to every connection.
	BroadcastEvent(ctx context.Context, env entity.EventEnvelope) int
	// SendHeartbeat writes a keep-alive comment to every open stream and sweeps ended ones.
	SendHeartbeat(ctx context.Context)
	// ClearSseClients ends every stream, empties the registry and refuses new clients.
	ClearSseClients(ctx context.Context)
	// Client returns the registered connection with id.
	Client(id string) (entity.SSEClient, bool)
	// Count is the number of registered connections.
	Count() int
	// Subscriber returns the redis subscriber owned by this registry.
	Subscriber() Subscriber
}

// Object of this will be passed around from main to routers to API.
type service struct {
	logger     log.Logger
	metrics    *metrics.Metrics
	subscriber *subscriber

	mu      sync.RWMutex
	clients map[string]*entity.SSEClient
	closed  bool
}

// NewService builds the registry along with the subscriber listening on repo.
func NewService(repo Repository, logger log.Logger, m *metrics.Metrics) Service {
	s := &service{
		logger:  logger,
		metrics: m,
		clients: make(map[string]*entity.SSEClient),
	}
	s.subscriber = newSubscriber(repo, s, logger, m)
	return s
}

func (s *service) Subscriber() Subscriber {
	return s.subscriber
}

func (s *service) AddClient(ctx context.Context, userID int64, role entity.Role, sink entity.StreamSink, connectionID string) error {
	client := &entity.SSEClient{
		ID:          connectionID,
		UserID:      userID,
		Role:        role,
		Sink:        sink,
		ConnectedAt: time.Now(),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrRegistryClosed
	}
	if _, exists := s.clients[connectionID]; exists {
		s.logger.WithCtx(ctx).Warn().Str("client_id", connectionID).Msg("Replacing a registered SSE client, its stream is left open")
	}
	s.clients[connectionID] = client
	total := len(s.clients)
	s.mu.Unlock()

	s.metrics.SetClients(total)
	s.logger.WithCtx(ctx).Info().
		Str("client_id", connectionID).
		Int64("user_id", userID).
		Str("role", string(role)).
		Int("clients", total).
		Msg("Added client into Hearth SSE registry")
	return s.subscriber.subscribeClient(ctx, client)
}

func (s *service) RemoveClient(ctx context.Context, connectionID string) bool {
	s.mu.Lock()
	client, ok := s.clients[connectionID]
	if ok {
		delete(s.clients, connectionID)
	}
	total := len(s.clients)
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.drop(ctx, client, total)
	return true
}

// removeEntry removes client only if it is still the entry registered under its id.
func (s *service) removeEntry(ctx context.Context, client *entity.SSEClient) {
	s.mu.Lock()
	current, ok := s.clients[client.ID]
	ok = ok && current == client
	if ok {
		delete(s.clients, client.ID)
	}
	total := len(s.clients)
	s.mu.Unlock()
	if ok {
		s.drop(ctx, client, total)
	} else {
		client.Sink.End()
	}
}

func (s *service) drop(ctx context.Context, client *entity.SSEClient, total int) {
	client.Sink.End()
	s.metrics.SetClients(total)
	s.logger.WithCtx(ctx).Info().
		Str("client_id", client.ID).
		Dur("connected_for", time.Since(client.ConnectedAt)).
		Int("clients", total).
		Msg("Removed client from Hearth SSE registry")
	// failures are logged by the subscriber, the heartbeat sweep keeps the registry itself honest
	_ = s.subscriber.UnsubscribeFromChannels(ctx, client.ID, client.UserID, client.Role)
}

func (s *service) UnicastEvent(ctx context.Context, userID int64, env entity.EventEnvelope) int {
	return s.deliver(ctx, s.filter(func(c *entity.SSEClient) bool { return c.UserID == userID }), env, entity.Unicast)
}

func (s *service) MulticastEventToRole(ctx context.Context, role entity.Role, env entity.EventEnvelope) int {
	return s.MulticastEventToRoles(ctx, []entity.Role{role}, env)
}

func (s *service) MulticastEventToRoles(ctx context.Context, roles []entity.Role, env entity.EventEnvelope) int {
	wanted := make(map[entity.Role]bool, len(roles))
	for _, r := range roles {
		wanted[r] = true
	}
	return s.deliver(ctx, s.filter(func(c *entity.SSEClient) bool { return wanted[c.Role] }), env, entity.Multicast)
}

func (s *service) BroadcastEvent(ctx context.Context, env entity.EventEnvelope) int {
	return s.deliver(ctx, s.snapshot(), env, entity.Broadcast)
}

// deliver writes one frame to every target outside the registry lock.
// A stream found closed is treated as a disconnect of that client.
func (s *service) deliver(ctx context.Context, targets []*entity.SSEClient, env entity.EventEnvelope, transmission entity.TransmissionType) int {
	if len(targets) == 0 {
		return 0
	}
	frame, err := FormatEvent(env)
	if err != nil {
		s.logger.WithCtx(ctx).Error().Err(err).Msg("Couldn't format SSE frame")
		return 0
	}
	delivered := 0
	for _, client := range targets {
		if werr := client.Sink.Write(frame); werr != nil {
			s.metrics.WriteFailed()
			s.logger.WithCtx(ctx).Debug().Err(werr).Str("client_id", client.ID).Msg("SSE stream closed during write")
			s.removeEntry(ctx, client)
			continue
		}
		delivered++
		s.metrics.Delivered(string(transmission))
	}
	return delivered
}

func (s *service) SendHeartbeat(ctx context.Context) {
	s.metrics.Heartbeat()
	for _, client := range s.snapshot() {
		if client.Sink.Ended() {
			// a lifecycle signal was missed
			s.removeEntry(ctx, client)
			continue
		}
		if err := client.Sink.Write(heartbeatFrame); err != nil {
			s.metrics.WriteFailed()
			s.removeEntry(ctx, client)
		}
	}
}

func (s *service) ClearSseClients(ctx context.Context) {
	s.mu.Lock()
	clients := s.clients
	s.clients = make(map[string]*entity.SSEClient)
	s.closed = true
	s.mu.Unlock()

	for _, client := range clients {
		client.Sink.End()
	}
	s.metrics.SetClients(0)
	s.logger.WithCtx(ctx).Info().Int("clients", len(clients)).Msg("Closed every SSE connection")
	_ = s.subscriber.unsubscribeAll(ctx)
}

func (s *service) Client(id string) (entity.SSEClient, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, ok := s.clients[id]
	if !ok {
		return entity.SSEClient{}, false
	}
	return *client, true
}

func (s *service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *service) snapshot() []*entity.SSEClient {
	return s.filter(nil)
}

func (s *service) filter(keep func(*entity.SSEClient) bool) []*entity.SSEClient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entity.SSEClient, 0, len(s.clients))
	for _, client := range s.clients {
		if keep == nil || keep(client) {
			out = append(out, client)
		}
	}
	return out
}

func (s *service) has(client *entity.SSEClient) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clients[client.ID] == client
}
