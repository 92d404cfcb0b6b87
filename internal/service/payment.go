package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/coursehub/payout-api/internal/database"
	"github.com/coursehub/payout-api/internal/enum"
	"github.com/coursehub/payout-api/internal/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const maxReferenceNumberLen = 100

// PaymentStore defines the DB methods needed to confirm payouts.
type PaymentStore interface {
	MarkPayoutBatchPaid(ctx context.Context, arg database.MarkPayoutBatchPaidParams) (database.PayoutBatchRow, error)
	GetPayoutBatch(ctx context.Context, id uuid.UUID) (database.PayoutBatchRow, error)
}

// PaymentRecorder confirms that a batch was paid out externally.
type PaymentRecorder struct {
	store    PaymentStore
	notifier Notifier
	log      *logger.Logger
}

// NewPaymentRecorder creates a PaymentRecorder. notifier and log may be nil.
func NewPaymentRecorder(store PaymentStore, notifier Notifier, log *logger.Logger) *PaymentRecorder {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PaymentRecorder{store: store, notifier: notifier, log: log.With("component", "payment_recorder")}
}

// MarkAsPaid moves a PENDING batch to PAID with the given transfer reference.
// The transition is a single compare-and-swap; a batch is paid at most once.
func (p *PaymentRecorder) MarkAsPaid(ctx context.Context, batchID uuid.UUID, referenceNumber string) (*PayoutBatch, error) {
	ref := strings.TrimSpace(referenceNumber)
	if err := validateReference(ref); err != nil {
		// An unknown batch is reported ahead of a bad reference.
		if _, gerr := p.store.GetPayoutBatch(ctx, batchID); gerr != nil {
			if errors.Is(gerr, pgx.ErrNoRows) {
				return nil, ErrBatchNotFound
			}
			return nil, fmt.Errorf("get payout batch: %w", gerr)
		}
		return nil, err
	}

	row, err := p.store.MarkPayoutBatchPaid(ctx, database.MarkPayoutBatchPaidParams{
		ID:              batchID,
		ReferenceNumber: ref,
	})
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("mark payout batch paid: %w", err)
		}
		return nil, p.explainRejected(ctx, batchID)
	}

	batch := batchFromRow(row)
	p.notifier.Notify(batch.ProfessorID, enum.EventBatchPaid, batch)
	p.log.Info("payout batch paid", "batch_id", batch.ID, "professor_id", batch.ProfessorID, "reference_number", ref)
	return &batch, nil
}

func validateReference(ref string) error {
	if ref == "" {
		return invalid("reference_number", "is required")
	}
	if utf8.RuneCountInString(ref) > maxReferenceNumberLen {
		return invalid("reference_number", fmt.Sprintf("must be at most %d characters", maxReferenceNumberLen))
	}
	return nil
}

// explainRejected works out why the compare-and-swap matched no row.
func (p *PaymentRecorder) explainRejected(ctx context.Context, batchID uuid.UUID) error {
	current, err := p.store.GetPayoutBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrBatchNotFound
		}
		return fmt.Errorf("get payout batch: %w", err)
	}
	if string(current.Status) == enum.BatchStatusPaid {
		return ErrAlreadyPaid
	}
	return ErrConcurrencyConflict
}
