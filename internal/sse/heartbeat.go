// Heartbeat scheduler keeping idle SSE connections alive through proxies.

package sse

import (
	"Hearth/pkg/log"
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

type Heartbeat struct {
	cron     *cron.Cron
	stopOnce sync.Once
}

// NewHeartbeat schedules service.SendHeartbeat every interval (whole seconds, at least one).
// A beat still running when the next one is due makes the latter skip.
func NewHeartbeat(service Service, interval time.Duration, logger log.Logger) *Heartbeat {
	clog := cronLogger{logger}
	c := cron.New(cron.WithLogger(clog))
	// Schedule bypasses the cron chain, so the job is wrapped by hand.
	job := cron.NewChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)).Then(cron.FuncJob(func() {
		service.SendHeartbeat(context.Background())
	}))
	c.Schedule(cron.Every(interval), job)
	return &Heartbeat{cron: c}
}

func (h *Heartbeat) Start() {
	h.cron.Start()
}

// Stop halts the schedule and waits for a running beat, at most until ctx is done.
// Safe to call multiple times.
func (h *Heartbeat) Stop(ctx context.Context) error {
	var err error
	h.stopOnce.Do(func() {
		select {
		case <-h.cron.Stop().Done():
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}

// cronLogger routes cron's own logging into zerolog.
type cronLogger struct {
	logger log.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("heartbeat: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("heartbeat: " + msg)
}
