package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/coursehub/payout-api/internal/logger"
	"github.com/coursehub/payout-api/internal/service"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

const digestTimeout = 30 * time.Second

// PendingSource computes what professors are owed. Satisfied by
// *service.PendingAggregator.
type PendingSource interface {
	ComputePendingSummary(ctx context.Context) ([]service.PendingSummary, error)
}

// PendingDigest periodically logs the outstanding payout obligations. Each run
// recomputes the summaries, which also warms the pending summary cache.
type PendingDigest struct {
	source PendingSource
	log    *logger.Logger
}

// NewPendingDigest creates a PendingDigest.
func NewPendingDigest(source PendingSource, log *logger.Logger) *PendingDigest {
	if log == nil {
		log = logger.Nop()
	}
	return &PendingDigest{source: source, log: log.With("job", "pending_digest")}
}

// Schedule registers the digest on c using a standard 5-field cron spec.
// Runs use ctx as their parent so shutdown cancels an in-flight digest.
func (d *PendingDigest) Schedule(ctx context.Context, c *cron.Cron, spec string) (cron.EntryID, error) {
	id, err := c.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, digestTimeout)
		defer cancel()
		if err := d.Run(runCtx); err != nil {
			d.log.Error("pending digest failed", "error", err)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("schedule pending digest %q: %w", spec, err)
	}
	return id, nil
}

// Run computes the digest once and logs a line per professor plus a total.
func (d *PendingDigest) Run(ctx context.Context) error {
	summaries, err := d.source.ComputePendingSummary(ctx)
	if err != nil {
		return fmt.Errorf("compute pending summary: %w", err)
	}

	total := decimal.Zero
	sales := 0
	for _, s := range summaries {
		total = total.Add(s.TotalOwed)
		sales += s.SalesCount
		d.log.Info("professor owed",
			"professor_id", s.ProfessorID,
			"professor_name", s.ProfessorName,
			"total_owed", s.TotalOwed.StringFixed(2),
			"sales_count", s.SalesCount,
		)
	}

	d.log.Info("pending digest",
		"professors", len(summaries),
		"sales_count", sales,
		"total_owed", total.StringFixed(2),
	)
	return nil
}
