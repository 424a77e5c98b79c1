package sse

import (
	"Hearth/internal/entity"
	"Hearth/internal/metrics"
	"Hearth/pkg/log"
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

// fakeRepo records the subscription set it was asked for instead of talking to redis.
// Failures keep the bookkeeping of go-redis: a failed SUBSCRIBE still holds its names,
// a failed UNSUBSCRIBE already forgot them.
type fakeRepo struct {
	mu             sync.Mutex
	subscribed     map[string]bool
	subscribeErr   error
	unsubscribeErr error
	closed       bool
	msgs         chan *redis.Message
	closeOnce    sync.Once
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{subscribed: make(map[string]bool), msgs: make(chan *redis.Message, 16)}
}

func (r *fakeRepo) Subscribe(ctx context.Context, channels ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range channels {
		r.subscribed[c] = true
	}
	return r.subscribeErr
}

func (r *fakeRepo) Unsubscribe(ctx context.Context, channels ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range channels {
		delete(r.subscribed, c)
	}
	return r.unsubscribeErr
}

func (r *fakeRepo) Messages() <-chan *redis.Message {
	return r.msgs
}

func (r *fakeRepo) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.closeOnce.Do(func() { close(r.msgs) })
	return nil
}

func (r *fakeRepo) channels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.subscribed))
	for name := range r.subscribed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *fakeRepo) failSubscribe(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribeErr = err
}

func (r *fakeRepo) failUnsubscribe(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribeErr = err
}

var errBrokenPipe = errors.New("broken pipe")

// fakeSink collects frames in memory, broken makes every write fail like a dead connection.
type fakeSink struct {
	mu     sync.Mutex
	frames []string
	ended  bool
	broken bool
	done   chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{done: make(chan struct{})}
}

func (s *fakeSink) Write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return entity.ErrStreamEnded
	}
	if s.broken {
		s.endLocked()
		return errBrokenPipe
	}
	s.frames = append(s.frames, string(frame))
	return nil
}

func (s *fakeSink) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLocked()
}

func (s *fakeSink) endLocked() {
	if !s.ended {
		s.ended = true
		close(s.done)
	}
}

func (s *fakeSink) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

func (s *fakeSink) Done() <-chan struct{} {
	return s.done
}

func (s *fakeSink) Frames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.frames...)
}

func (s *fakeSink) breakPipe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broken = true
}

func newTestService(t *testing.T) (*service, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	svc := NewService(repo, log.Nop(), metrics.MustNewMetrics(prometheus.NewRegistry())).(*service)
	return svc, repo
}

func messageEnvelope(id string, transmission entity.TransmissionType) entity.EventEnvelope {
	return entity.EventEnvelope{
		EventName:        entity.MessageEvent,
		Payload:          json.RawMessage(`{"action":"created","messageId":7,"authorId":3}`),
		ID:               id,
		TransmissionType: transmission,
	}
}
