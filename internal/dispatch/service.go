// Service layer of the internal package dispatch.

package dispatch

import (
	"Hearth/internal/channel"
	"Hearth/internal/entity"
	"Hearth/internal/errors"
	"Hearth/internal/metrics"
	"Hearth/pkg/log"
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Outcome of one Dispatch call, counted per event.
type Result struct {
	Published int
	Invalid   int
	Failed    int
}

type Service interface {
	// Dispatch validates every raw event and publishes the valid ones to their channels.
	// One bad event never stops the others and nothing is reported back to the caller.
	Dispatch(ctx context.Context, events []json.RawMessage) Result
}

type service struct {
	repo    Repository
	logger  log.Logger
	metrics *metrics.Metrics
}

func NewService(repo Repository, logger log.Logger, m *metrics.Metrics) Service {
	return service{repo: repo, logger: logger, metrics: m}
}

func (s service) Dispatch(ctx context.Context, events []json.RawMessage) Result {
	var res Result
	for i, raw := range events {
		env, err := entity.DecodeEnvelope(raw)
		if err != nil {
			res.Invalid++
			s.metrics.Dispatched("unknown", "invalid")
			event := s.logger.WithCtx(ctx).Warn().Err(err).Int("index", i)
			if verr, ok := err.(*entity.ValidationError); ok {
				event = event.Interface("details", errors.GenerateValidationErrorResponse(verr.Issues).Details)
			}
			event.Msg("Skipping invalid event")
			continue
		}
		if env.ID == "" {
			env.ID = uuid.NewString()
		}
		if s.publish(ctx, env) {
			res.Published++
			s.metrics.Dispatched(string(env.TransmissionType), "published")
		} else {
			res.Failed++
			s.metrics.Dispatched(string(env.TransmissionType), "failed")
		}
	}
	return res
}

// publish sends env on every channel it targets, reports false if any publish failed.
func (s service) publish(ctx context.Context, env entity.EventEnvelope) bool {
	ok := true
	for _, name := range channel.ForEnvelope(env) {
		receivers, err := s.repo.Publish(ctx, name, env)
		if err != nil {
			ok = false
			s.logger.WithCtx(ctx).Error().Err(err).Str("channel", name).Str("event_id", env.ID).Msg("Couldn't publish event")
			continue
		}
		s.logger.WithCtx(ctx).Debug().
			Str("channel", name).
			Str("event", string(env.EventName)).
			Str("event_id", env.ID).
			Int64("receivers", receivers).
			Msg("Published event")
	}
	return ok
}
