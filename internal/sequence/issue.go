package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"

	"github.com/mhaswell/fabtrace/internal/metrics"
	"github.com/mhaswell/fabtrace/internal/models"
	"github.com/mhaswell/fabtrace/internal/store"
	"github.com/mhaswell/fabtrace/internal/store/postgres"
)

const defaultMaxAttempts = 5

// Issuer issues numbers for a series, each attempt inside its own scoped
// transaction. Used by callers that do not already hold a transaction;
// request handlers that do should call Next directly inside it.
type Issuer struct {
	DB     *postgres.DB
	Series Series

	// MaxAttempts bounds retries after unique-index collisions.
	MaxAttempts uint
}

// Issue computes the next number and runs insert with it, retrying with
// exponential backoff when a concurrent writer wins the unique index. Any
// other failure, including a malformed existing value, stops immediately.
func (i *Issuer) Issue(ctx context.Context, tenant *models.Tenant, prefix string, padding int, insert func(ctx context.Context, number string) error) (string, error) {
	maxAttempts := i.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = defaultMaxAttempts
	}

	attempt := func() (string, error) {
		var number string
		err := i.DB.RunScopedFor(ctx, tenant, func(ctx context.Context) error {
			scope := postgres.ScopeTenant(ctx)

			next, err := Next(ctx, i.DB.Querier(ctx), i.Series, scope, prefix, padding)
			if err != nil {
				return err
			}
			number = next
			return insert(ctx, number)
		})
		if err != nil {
			if isCollision(err) || postgres.IsRetryableConflict(err) {
				metrics.SequenceRetries.WithLabelValues(i.Series.Table).Inc()
				log.Debug().
					Str("series", i.Series.Table).
					Str("number", number).
					Msg("Sequence collision, retrying")
				return "", err
			}
			return "", backoff.Permanent(err)
		}
		return number, nil
	}

	number, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxAttempts))
	if err != nil {
		if isCollision(err) {
			return "", fmt.Errorf("%w: %s after %d attempts", ErrCollision, i.Series.Table, maxAttempts)
		}
		return "", err
	}
	return number, nil
}

// isCollision matches both the raw unique violation and the sentinel the
// stores map it to.
func isCollision(err error) bool {
	return postgres.IsUniqueViolation(err) || errors.Is(err, store.ErrDuplicate)
}
