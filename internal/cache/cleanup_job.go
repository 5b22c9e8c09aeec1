package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// CleanupJob removes expired entries from a store that does not evict on
// its own. It is scheduled hourly.
type CleanupJob struct {
	store   Expirer
	timeout time.Duration
	log     zerolog.Logger
}

// NewCleanupJob creates a new hot cache cleanup job.
func NewCleanupJob(store Expirer, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		store:   store,
		timeout: 30 * time.Second,
		log:     log.With().Str("job", "hot_cache_cleanup").Logger(),
	}
}

// Run deletes expired entries.
func (j *CleanupJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	deleted, err := j.store.DeleteExpired(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete expired cache entries")
		return err
	}

	if deleted > 0 {
		j.log.Info().
			Int64("deleted", deleted).
			Msg("Cleaned up expired cache entries")
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "hot_cache_cleanup"
}
