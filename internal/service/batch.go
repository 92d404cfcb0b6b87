package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coursehub/payout-api/internal/database"
	"github.com/coursehub/payout-api/internal/enum"
	"github.com/coursehub/payout-api/internal/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const (
	maxBatchRetries         = 3
	defaultBatchLockTimeout = 2 * time.Second
	defaultBatchBackoff     = 50 * time.Millisecond
)

// errShortClaim means a snapshot sale was claimed by someone else between the
// snapshot read and the claim update.
var errShortClaim = errors.New("claimed fewer sales than snapshot")

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// BatchStore defines the DB methods needed to create and read payout batches.
// Satisfied by *database.Queries (and its WithTx variant).
type BatchStore interface {
	SetLockTimeout(ctx context.Context, timeout string) error
	LockProfessorForBatch(ctx context.Context, id uuid.UUID) (database.Professor, error)
	ListUnbatchedSalesForUpdate(ctx context.Context, professorID uuid.UUID) ([]database.Sale, error)
	CreatePayoutBatch(ctx context.Context, arg database.CreatePayoutBatchParams) (database.PayoutBatch, error)
	ClaimSales(ctx context.Context, arg database.ClaimSalesParams) (int64, error)
	GetPayoutBatch(ctx context.Context, id uuid.UUID) (database.PayoutBatchRow, error)
	ListSalesByBatch(ctx context.Context, batchID uuid.UUID) ([]database.Sale, error)
}

// NewBatchStore creates a BatchStore from a DBTX (pool or tx).
type NewBatchStore func(db database.DBTX) BatchStore

// BatchOptions tunes lock waiting and retry pacing. Zero values use defaults.
type BatchOptions struct {
	LockTimeout  time.Duration
	RetryBackoff time.Duration
}

// BatchManager turns a professor's pending sales into a payout batch.
type BatchManager struct {
	pool     TxBeginner
	newStore NewBatchStore
	pending  *PendingAggregator
	notifier Notifier
	log      *logger.Logger

	lockTimeout string
	backoff     time.Duration
}

// NewBatchManager creates a BatchManager. pending, notifier and log may be nil.
func NewBatchManager(pool TxBeginner, newStore NewBatchStore, pending *PendingAggregator, notifier Notifier, log *logger.Logger, opts BatchOptions) *BatchManager {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = defaultBatchLockTimeout
	}
	if opts.RetryBackoff < 0 {
		opts.RetryBackoff = 0
	} else if opts.RetryBackoff == 0 {
		opts.RetryBackoff = defaultBatchBackoff
	}
	return &BatchManager{
		pool:        pool,
		newStore:    newStore,
		pending:     pending,
		notifier:    notifier,
		log:         log.With("component", "batch_manager"),
		lockTimeout: fmt.Sprintf("%dms", opts.LockTimeout.Milliseconds()),
		backoff:     opts.RetryBackoff,
	}
}

// CreateBatch claims every unbatched sale of the professor into one PENDING
// batch. The batch row and the claims commit together. Lock and serialization
// conflicts are retried up to maxBatchRetries times.
func (m *BatchManager) CreateBatch(ctx context.Context, professorID uuid.UUID) (*PayoutBatch, error) {
	if professorID == uuid.Nil {
		return nil, invalid("professor_id", "is required")
	}

	var lastErr error
	for attempt := 0; attempt < maxBatchRetries; attempt++ {
		if attempt > 0 {
			if err := m.sleep(ctx, attempt); err != nil {
				return nil, err
			}
		}
		batch, err := m.createBatchTx(ctx, professorID)
		if err == nil {
			m.pending.Invalidate(ctx)
			m.notifier.Notify(batch.ProfessorID, enum.EventBatchCreated, batch)
			m.log.Info("payout batch created",
				"batch_id", batch.ID, "professor_id", batch.ProfessorID,
				"total_amount", batch.TotalAmount.StringFixed(2), "sales_count", batch.SalesCount)
			return batch, nil
		}
		if !isBatchContention(err) {
			return nil, err
		}
		lastErr = err
		m.log.Warn("payout batch contention, retrying",
			"professor_id", professorID, "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("%w: %w", ErrConcurrencyConflict, lastErr)
}

func (m *BatchManager) sleep(ctx context.Context, attempt int) error {
	if m.backoff == 0 {
		return ctx.Err()
	}
	t := time.NewTimer(time.Duration(attempt) * m.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// isBatchContention reports whether a failed attempt may succeed on retry:
// lock_not_available, serialization_failure, deadlock_detected or a short claim.
func isBatchContention(err error) bool {
	if errors.Is(err, errShortClaim) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", "40001", "40P01":
			return true
		}
	}
	return false
}

// createBatchTx runs one batch creation attempt in a single transaction.
func (m *BatchManager) createBatchTx(ctx context.Context, professorID uuid.UUID) (*PayoutBatch, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := m.newStore(tx)

	if err := store.SetLockTimeout(ctx, m.lockTimeout); err != nil {
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}

	professor, err := store.LockProfessorForBatch(ctx, professorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfessorNotFound
		}
		return nil, fmt.Errorf("lock professor: %w", err)
	}

	snapshot, err := store.ListUnbatchedSalesForUpdate(ctx, professorID)
	if err != nil {
		return nil, fmt.Errorf("list unbatched sales: %w", err)
	}
	if len(snapshot) == 0 {
		return nil, ErrNoPendingSales
	}

	total := decimal.Zero
	ids := make([]uuid.UUID, 0, len(snapshot))
	for _, s := range snapshot {
		total = total.Add(numericToDecimal(s.ProfessorEarnings))
		ids = append(ids, s.ID)
	}

	row, err := store.CreatePayoutBatch(ctx, database.CreatePayoutBatchParams{
		ProfessorID: professorID,
		TotalAmount: decimalToNumeric(total),
		SalesCount:  int32(len(snapshot)),
	})
	if err != nil {
		return nil, fmt.Errorf("create payout batch: %w", err)
	}

	claimed, err := store.ClaimSales(ctx, database.ClaimSalesParams{BatchID: row.ID, SaleIDs: ids})
	if err != nil {
		return nil, fmt.Errorf("claim sales: %w", err)
	}
	if claimed != int64(len(ids)) {
		return nil, fmt.Errorf("%w: %d of %d", errShortClaim, claimed, len(ids))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	batch := batchFromDB(row, professor.FullName)
	return &batch, nil
}

// GetBatch returns a batch with its member sales.
func (m *BatchManager) GetBatch(ctx context.Context, batchID uuid.UUID) (*BatchDetail, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := m.newStore(tx)

	row, err := store.GetPayoutBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBatchNotFound
		}
		return nil, fmt.Errorf("get payout batch: %w", err)
	}
	members, err := store.ListSalesByBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch sales: %w", err)
	}

	batch := batchFromRow(row)
	detail := &BatchDetail{Batch: batch, Sales: make([]Sale, 0, len(members))}
	for _, s := range members {
		sale := saleFromDB(s, batch.Status)
		sale.ProfessorName = batch.ProfessorName
		detail.Sales = append(detail.Sales, sale)
	}
	return detail, nil
}
