// Package sequence issues gapless, human-readable record numbers that are
// unique within a tenant. Concurrency safety comes from two layers: a row
// lock on the current maximum while a transaction computes the next value,
// and a unique index on (tenant, number) that catches whatever the lock
// cannot, driving a bounded retry.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/mhaswell/fabtrace/internal/store/postgres"
)

var (
	// ErrMalformedValue means an existing row holds a number that does not
	// parse under the series' prefix. Issuing stops rather than guessing:
	// restarting a series because of one bad row would hand out duplicates.
	ErrMalformedValue = errors.New("existing sequence value is malformed")

	// ErrCollision means every attempt lost the race on the unique index.
	ErrCollision = errors.New("sequence number collision")
)

// identRe matches SQL identifiers safe to interpolate into statements.
var identRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Series names the table and columns a number series lives in.
type Series struct {
	Table        string
	Column       string
	TenantColumn string
}

// Validate checks the identifiers are safe to build SQL from.
func (s Series) Validate() error {
	for _, ident := range []string{s.Table, s.Column, s.TenantColumn} {
		if !identRe.MatchString(ident) {
			return fmt.Errorf("invalid identifier %q", ident)
		}
	}
	return nil
}

// Next computes the next number in the series for the given tenant scope,
// locking the current maximum row for the rest of the transaction. Must be
// called inside the transaction that inserts the row, or the lock protects
// nothing.
func Next(ctx context.Context, q postgres.Querier, series Series, tenantID *uuid.UUID, prefix string, padding int) (string, error) {
	if err := series.Validate(); err != nil {
		return "", err
	}

	// Zero-padded suffixes of equal width order correctly as strings;
	// ordering by length first keeps overflowed (wider) values on top.
	query := fmt.Sprintf(
		`SELECT %s FROM %s WHERE %s LIKE $1 ESCAPE '\' AND %s ORDER BY length(%s) DESC, %s DESC LIMIT 1 FOR UPDATE`,
		series.Column, series.Table, series.Column, tenantClause(series.TenantColumn, tenantID, 2), series.Column, series.Column)

	args := []any{escapeLike(prefix) + "%"}
	if tenantID != nil {
		args = append(args, *tenantID)
	}

	var current string
	err := q.QueryRow(ctx, query, args...).Scan(&current)
	switch {
	case err == nil:
		n, perr := Parse(current, prefix)
		if perr != nil {
			log.Warn().
				Str("series", series.Table).
				Str("value", current).
				Msg("Sequence maximum does not parse, refusing to issue")
			return "", perr
		}
		return Format(prefix, n+1, padding), nil
	case errors.Is(err, pgx.ErrNoRows):
		return Format(prefix, 1, padding), nil
	default:
		return "", fmt.Errorf("lock sequence maximum: %w", err)
	}
}

// Parse extracts the numeric suffix of value under prefix. The suffix is
// everything after the prefix, located by length rather than by delimiter,
// so prefixes containing the delimiter (or none at all) work.
func Parse(value, prefix string) (int, error) {
	if !strings.HasPrefix(value, prefix) {
		return 0, fmt.Errorf("%w: %q does not carry prefix %q", ErrMalformedValue, value, prefix)
	}
	suffix := value[len(prefix):]
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q has non-numeric suffix %q", ErrMalformedValue, value, suffix)
	}
	return n, nil
}

// Format renders a sequence number with a zero-padded suffix.
func Format(prefix string, n, padding int) string {
	return fmt.Sprintf("%s%0*d", prefix, padding, n)
}

func tenantClause(column string, tenantID *uuid.UUID, arg int) string {
	if tenantID == nil {
		return column + " IS NULL"
	}
	return fmt.Sprintf("%s = $%d", column, arg)
}

// escapeLike escapes LIKE metacharacters so a prefix is matched literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
