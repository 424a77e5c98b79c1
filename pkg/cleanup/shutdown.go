// Closes open external connections before shutting down Hearth.
// Inspired from https://medium.com/tokopedia-engineering/gracefully-shutdown-your-go-application-9e7d5c73b5ac

package cleanup

import (
	"Hearth/pkg/log"
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// operation is a clean up function standard.
type Operation func(ctx context.Context) error

// Stage groups operations which may run concurrently. Stages run one after another.
type Stage map[string]Operation

// Replaced in tests.
var exit = os.Exit

// GracefulShutdown waits for a termination system-call (or ctx being done) and then runs stages in order.
// The returned channel is closed once every stage finished, the process exits if timeout elapses first.
func GracefulShutdown(ctx context.Context, logger log.Logger, timeout time.Duration, stages ...Stage) <-chan struct{} {
	wait := make(chan struct{})

	// buffered channel to receive shutdown signal, registered before returning so no signal is missed
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		defer close(wait)
		select {
		case sig := <-s:
			logger.Warn().Str("signal", sig.String()).Msg("Graceful shutdown in progress.")
		case <-ctx.Done():
			logger.Warn().Msg("Graceful shutdown requested.")
		}
		signal.Stop(s)

		// Force exit after timeout duration has been elapsed
		force := time.AfterFunc(timeout, func() {
			logger.Warn().Dur("timeout", timeout).Msg("Shutdown timeout has been elapsed. Forcing shutdown!")
			exit(3)
		})
		defer force.Stop()

		sctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		for i, stage := range stages {
			runStage(sctx, logger, i+1, stage)
		}
	}()

	return wait
}

// runStage executes the operations of one stage asynchronously and waits for all of them.
// A failing operation is logged, it never stops the others.
func runStage(ctx context.Context, logger log.Logger, n int, stage Stage) {
	var g errgroup.Group
	for opname, op := range stage {
		opname, op := opname, op
		g.Go(func() error {
			logger.Info().Int("stage", n).Msgf("Shutting down: %s", opname)
			if err := op(ctx); err != nil {
				logger.Error().Err(err).Int("stage", n).Msgf("%s shutdown failed.", opname)
				return err
			}
			logger.Info().Int("stage", n).Msgf("%s shutdown completed.", opname)
			return nil
		})
	}
	_ = g.Wait()
}
