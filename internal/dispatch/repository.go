// Dispatch repository publishes event envelopes on the Redis channels every relay instance listens to.

package dispatch

import (
	"Hearth/internal/entity"
	"Hearth/pkg/db"
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

type Repository interface {
	// Publish sends env on channel once and returns how many subscribers received it.
	// Nothing is retried or queued beyond the client's own retry policy.
	Publish(ctx context.Context, channel string, env entity.EventEnvelope) (int64, error)
}

// repository struct of dispatch Repository.
type repository struct {
	db *db.RedisDB
}

// Returns a new instance of dispatch repository for other packages to access its interface.
func NewRepository(dbwrp *db.RedisDB) Repository {
	return repository{db: dbwrp}
}

func (r repository) Publish(ctx context.Context, channel string, env entity.EventEnvelope) (int64, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return 0, errors.Wrap(err, "encoding event envelope")
	}
	receivers, err := r.db.Client().Publish(ctx, channel, data).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "PUBLISH %s", channel)
	}
	return receivers, nil
}
