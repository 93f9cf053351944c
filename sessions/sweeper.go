package sessions

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// StartExpirySweeper deletes expired sessions every interval until ctx is done.
// The returned channel is closed when the sweeper has stopped.
func StartExpirySweeper(ctx context.Context, repo Repo, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				SweepExpired(ctx, repo)
			}
		}
	}()
	return done
}

// SweepExpired runs one expiry pass, logging the outcome.
func SweepExpired(ctx context.Context, repo Repo) {
	removed, err := repo.DeleteExpired(ctx)
	if err != nil {
		log.Err(err).Msg("Session sweep failed")
		return
	}
	if removed > 0 {
		log.Debug().Int64("removed", removed).Msg("Expired sessions swept")
	}
}
