// Redis subscriber tests in Hearth.

package sse

import (
	"Hearth/internal/entity"
	"Hearth/internal/metrics"
	"Hearth/pkg/db"
	"Hearth/pkg/log"
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawEnvelope(t *testing.T, env entity.EventEnvelope) string {
	t.Helper()
	data, err := json.Marshal(env)
	require.NoError(t, err)
	return string(data)
}

func TestListenSurvivesMalformedMessages(t *testing.T) {
	reg := prometheus.NewRegistry()
	repo := newFakeRepo()
	svc := NewService(repo, log.Nop(), metrics.MustNewMetrics(reg))
	sink := newFakeSink()
	require.NoError(t, svc.AddClient(ctx, 1, entity.RoleUser, sink, "c1"))

	lctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		svc.Subscriber().Listen(lctx)
		close(stopped)
	}()

	repo.msgs <- &redis.Message{Channel: "channel:broadcast", Payload: "{not json"}
	repo.msgs <- &redis.Message{Channel: "channel:broadcast", Payload: `{"eventName":"NOPE","payload":{},"transmissionType":"broadcast"}`}
	repo.msgs <- &redis.Message{Channel: "channel:elsewhere", Payload: rawEnvelope(t, messageEnvelope("x", entity.Broadcast))}
	repo.msgs <- &redis.Message{Channel: "channel:broadcast", Payload: rawEnvelope(t, messageEnvelope("e1", entity.Broadcast))}

	assert.Eventually(t, func() bool { return len(sink.Frames()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{frameE1}, sink.Frames())
	dropped, gerr := testutil.GatherAndCount(reg, "hearth_redis_messages_dropped_total")
	require.NoError(t, gerr)
	assert.Equal(t, 2, dropped)

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("listener did not stop with its context")
	}
}

func TestListenRoutesByChannel(t *testing.T) {
	svc, repo := newTestService(t)
	user, admin := newFakeSink(), newFakeSink()
	require.NoError(t, svc.AddClient(ctx, 1, entity.RoleUser, user, "u"))
	require.NoError(t, svc.AddClient(ctx, 2, entity.RoleAdmin, admin, "a"))
	go svc.Subscriber().Listen(ctx)

	repo.msgs <- &redis.Message{Channel: "channel:role:ADMIN", Payload: rawEnvelope(t, messageEnvelope("r", entity.Multicast))}
	repo.msgs <- &redis.Message{Channel: "channel:user:1", Payload: rawEnvelope(t, messageEnvelope("u", entity.Unicast))}

	assert.Eventually(t, func() bool { return len(user.Frames()) == 1 && len(admin.Frames()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, admin.Frames()[0], "id: r\n")
	assert.Contains(t, user.Frames()[0], "id: u\n")

	// Disconnect closes the message stream, which stops the listener
	require.NoError(t, svc.Subscriber().Disconnect(ctx))
	require.NoError(t, svc.Subscriber().Disconnect(ctx))
	assert.True(t, repo.closed)
	assert.ErrorIs(t, svc.Subscriber().SubscribeToChannels(ctx, "channel:broadcast"), ErrSubscriberClosed)
}

func TestSubscribeToChannelsSkipsKnownNames(t *testing.T) {
	svc, repo := newTestService(t)
	sub := svc.Subscriber()

	require.NoError(t, sub.SubscribeToChannels(ctx, "channel:broadcast", "channel:user:1"))
	require.NoError(t, sub.SubscribeToChannels(ctx, "channel:user:1", "channel:role:ADMIN"))

	assert.Equal(t, []string{"channel:broadcast", "channel:role:ADMIN", "channel:user:1"}, sub.Channels())
	assert.Equal(t, sub.Channels(), repo.channels())
}

// Runs the subscriber against an in-process redis-server.
func newRedisService(t *testing.T) (Service, *miniredis.Miniredis, *db.RedisDB) {
	t.Helper()
	mr := miniredis.RunT(t)
	dbConnWrp, err := db.NewDbConnection(db.Options{Addr: mr.Addr(), MaxRetries: 3})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbConnWrp.CloseDbConnection(ctx) })

	svc := NewService(NewRepository(dbConnWrp), log.Nop(), nil)
	lctx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	go svc.Subscriber().Listen(lctx)
	t.Cleanup(func() { _ = svc.Subscriber().Disconnect(ctx) })
	return svc, mr, dbConnWrp
}

func TestRedisRoundTrip(t *testing.T) {
	svc, mr, dbConnWrp := newRedisService(t)
	sink := newFakeSink()
	require.NoError(t, svc.AddClient(ctx, 5, entity.RoleMember, sink, "c1"))

	// SUBSCRIBE is not acknowledged synchronously
	assert.Eventually(t, func() bool { return len(mr.PubSubChannels("")) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"channel:broadcast", "channel:role:MEMBER", "channel:user:5"}, mr.PubSubChannels(""))

	receivers, err := dbConnWrp.Client().Publish(ctx, "channel:user:5", rawEnvelope(t, messageEnvelope("e1", entity.Unicast))).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), receivers)
	assert.Eventually(t, func() bool { return len(sink.Frames()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{frameE1}, sink.Frames())

	svc.RemoveClient(ctx, "c1")
	assert.Eventually(t, func() bool { return len(mr.PubSubChannels("")) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestDeliveryResumesAfterRedisRestart(t *testing.T) {
	svc, mr, dbConnWrp := newRedisService(t)
	sink := newFakeSink()
	require.NoError(t, svc.AddClient(ctx, 5, entity.RoleMember, sink, "c1"))

	mr.Close()
	require.NoError(t, mr.Restart())

	payload := rawEnvelope(t, messageEnvelope("e1", entity.Broadcast))
	assert.Eventually(t, func() bool {
		_ = dbConnWrp.Client().Publish(ctx, "channel:broadcast", payload).Err()
		return len(sink.Frames()) > 0
	}, 10*time.Second, 100*time.Millisecond)
	// The application level set is left as it was
	assert.Equal(t, []string{"channel:broadcast", "channel:role:MEMBER", "channel:user:5"}, svc.Subscriber().Channels())
}

// redisChannels lists what the redis-server really has subscribed, sorted.
func redisChannels(mr *miniredis.Miniredis) []string {
	names := mr.PubSubChannels("")
	sort.Strings(names)
	return names
}

func TestChannelsReleasedWhileRedisDownAreSubscribedAgain(t *testing.T) {
	svc, mr, dbConnWrp := newRedisService(t)
	require.NoError(t, svc.AddClient(ctx, 5, entity.RoleMember, newFakeSink(), "a"))
	require.Eventually(t, func() bool { return len(redisChannels(mr)) == 3 }, 2*time.Second, 10*time.Millisecond)

	mr.Close()
	svc.RemoveClient(ctx, "a")
	assert.Empty(t, svc.Subscriber().Channels())
	require.NoError(t, mr.Restart())

	sink := newFakeSink()
	// The pub/sub connection may not be back yet, the names are kept either way
	_ = svc.AddClient(ctx, 5, entity.RoleMember, sink, "b")
	want := []string{"channel:broadcast", "channel:role:MEMBER", "channel:user:5"}
	assert.Equal(t, want, svc.Subscriber().Channels())

	payload := rawEnvelope(t, messageEnvelope("e1", entity.Unicast))
	assert.Eventually(t, func() bool {
		_ = dbConnWrp.Client().Publish(ctx, "channel:user:5", payload).Err()
		return len(sink.Frames()) > 0
	}, 10*time.Second, 100*time.Millisecond)
	assert.Equal(t, want, redisChannels(mr))
}

func TestFailedSubscribeLeavesNoSubscriptionBehind(t *testing.T) {
	svc, mr, _ := newRedisService(t)
	require.NoError(t, svc.AddClient(ctx, 1, entity.RoleUser, newFakeSink(), "c1"))
	require.Eventually(t, func() bool { return len(redisChannels(mr)) == 3 }, 2*time.Second, 10*time.Millisecond)

	mr.Close()
	_ = svc.AddClient(ctx, 9, entity.RoleAdmin, newFakeSink(), "late")
	svc.RemoveClient(ctx, "late")
	want := []string{"channel:broadcast", "channel:role:USER", "channel:user:1"}
	assert.Equal(t, want, svc.Subscriber().Channels())
	require.NoError(t, mr.Restart())

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(want, redisChannels(mr))
	}, 10*time.Second, 50*time.Millisecond)
	assert.Never(t, func() bool { return len(redisChannels(mr)) > 3 }, 300*time.Millisecond, 50*time.Millisecond)
	assert.Equal(t, want, svc.Subscriber().Channels())
}
