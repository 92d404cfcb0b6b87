package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coursehub/payout-api/internal/database"
	"github.com/coursehub/payout-api/internal/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	allPendingKey     = "all"
	invalidateTimeout = 2 * time.Second
)

// PendingStore defines the DB methods the aggregator needs.
type PendingStore interface {
	ListPendingSummaries(ctx context.Context) ([]database.ListPendingSummariesRow, error)
	GetPendingSummaryForProfessor(ctx context.Context, professorID uuid.UUID) (database.ListPendingSummariesRow, error)
}

// SummaryCache stores encoded summaries under a generation number. Bumping the
// generation makes every entry written under an older one unreachable.
type SummaryCache interface {
	Generation(ctx context.Context) (int64, error)
	Get(ctx context.Context, gen int64, key string) ([]byte, bool, error)
	Set(ctx context.Context, gen int64, key string, value []byte) error
	Bump(ctx context.Context) error
}

type nopSummaryCache struct{}

func (nopSummaryCache) Generation(context.Context) (int64, error) { return 0, nil }
func (nopSummaryCache) Get(context.Context, int64, string) ([]byte, bool, error) {
	return nil, false, nil
}
func (nopSummaryCache) Set(context.Context, int64, string, []byte) error { return nil }
func (nopSummaryCache) Bump(context.Context) error                       { return nil }

// PendingAggregator reports what each professor is owed from unbatched sales.
type PendingAggregator struct {
	store PendingStore
	cache SummaryCache
	log   *logger.Logger
}

// NewPendingAggregator creates a PendingAggregator. A nil cache disables caching.
func NewPendingAggregator(store PendingStore, cache SummaryCache, log *logger.Logger) *PendingAggregator {
	if cache == nil {
		cache = nopSummaryCache{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PendingAggregator{store: store, cache: cache, log: log.With("component", "pending_aggregator")}
}

// ComputePendingSummary lists every professor with a positive unbatched total,
// ordered by professor name.
func (a *PendingAggregator) ComputePendingSummary(ctx context.Context) ([]PendingSummary, error) {
	gen, cached := a.lookup(ctx, allPendingKey)
	if cached != nil {
		var out []PendingSummary
		if err := json.Unmarshal(cached, &out); err == nil {
			return out, nil
		}
	}

	rows, err := a.store.ListPendingSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending summaries: %w", err)
	}
	out := make([]PendingSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, summaryFromRow(r))
	}

	a.remember(ctx, gen, allPendingKey, out)
	return out, nil
}

// PendingSummaryFor returns a single professor's pending total. Professors
// with nothing pending get a zero summary.
func (a *PendingAggregator) PendingSummaryFor(ctx context.Context, professorID uuid.UUID) (*PendingSummary, error) {
	key := "professor:" + professorID.String()
	gen, cached := a.lookup(ctx, key)
	if cached != nil {
		var out PendingSummary
		if err := json.Unmarshal(cached, &out); err == nil {
			return &out, nil
		}
	}

	row, err := a.store.GetPendingSummaryForProfessor(ctx, professorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfessorNotFound
		}
		return nil, fmt.Errorf("get pending summary: %w", err)
	}
	out := summaryFromRow(row)

	a.remember(ctx, gen, key, out)
	return &out, nil
}

// Invalidate drops every cached summary. Called after a sale is recorded or
// claimed. The write has already committed, so the bump outlives the caller's
// cancellation. Cache failures are logged, never returned.
func (a *PendingAggregator) Invalidate(ctx context.Context) {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidateTimeout)
	defer cancel()
	if err := a.cache.Bump(ctx); err != nil {
		a.log.Warn("pending cache invalidation failed", "error", err)
	}
}

// lookup returns the generation to write under and the cached value, if any.
// A generation of -1 means the cache is unavailable and must not be written.
func (a *PendingAggregator) lookup(ctx context.Context, key string) (int64, []byte) {
	gen, err := a.cache.Generation(ctx)
	if err != nil {
		a.log.Warn("pending cache unavailable", "error", err)
		return -1, nil
	}
	val, ok, err := a.cache.Get(ctx, gen, key)
	if err != nil {
		a.log.Warn("pending cache read failed", "key", key, "error", err)
		return gen, nil
	}
	if !ok {
		return gen, nil
	}
	return gen, val
}

func (a *PendingAggregator) remember(ctx context.Context, gen int64, key string, v any) {
	if gen < 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		a.log.Warn("pending cache encode failed", "key", key, "error", err)
		return
	}
	if err := a.cache.Set(ctx, gen, key, data); err != nil {
		a.log.Warn("pending cache write failed", "key", key, "error", err)
	}
}
