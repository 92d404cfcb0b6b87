package service

import (
	"context"
	"strconv"
	"sync"

	"github.com/coursehub/payout-api/internal/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// --- Mock implementations ---

// mockTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type mockTx struct {
	commitErr error
	committed bool
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error {
	if m.commitErr == nil {
		m.committed = true
	}
	return m.commitErr
}
func (m *mockTx) Rollback(ctx context.Context) error { return nil }
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// mockTxBeginner implements TxBeginner, handing out fresh transactions.
type mockTxBeginner struct {
	mu    sync.Mutex
	txs   []*mockTx
	err   error
	begun int
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.begun++
	if m.err != nil {
		return nil, m.err
	}
	tx := &mockTx{}
	m.txs = append(m.txs, tx)
	return tx, nil
}

// mockBatchStore implements BatchStore with configurable behavior.
type mockBatchStore struct {
	setLockTimeoutFn    func(ctx context.Context, timeout string) error
	lockProfessorFn     func(ctx context.Context, id uuid.UUID) (database.Professor, error)
	listUnbatchedFn     func(ctx context.Context, professorID uuid.UUID) ([]database.Sale, error)
	createPayoutBatchFn func(ctx context.Context, arg database.CreatePayoutBatchParams) (database.PayoutBatch, error)
	claimSalesFn        func(ctx context.Context, arg database.ClaimSalesParams) (int64, error)
	getPayoutBatchFn    func(ctx context.Context, id uuid.UUID) (database.PayoutBatchRow, error)
	listSalesByBatchFn  func(ctx context.Context, batchID uuid.UUID) ([]database.Sale, error)
}

func (m *mockBatchStore) SetLockTimeout(ctx context.Context, timeout string) error {
	if m.setLockTimeoutFn == nil {
		return nil
	}
	return m.setLockTimeoutFn(ctx, timeout)
}
func (m *mockBatchStore) LockProfessorForBatch(ctx context.Context, id uuid.UUID) (database.Professor, error) {
	return m.lockProfessorFn(ctx, id)
}
func (m *mockBatchStore) ListUnbatchedSalesForUpdate(ctx context.Context, professorID uuid.UUID) ([]database.Sale, error) {
	return m.listUnbatchedFn(ctx, professorID)
}
func (m *mockBatchStore) CreatePayoutBatch(ctx context.Context, arg database.CreatePayoutBatchParams) (database.PayoutBatch, error) {
	return m.createPayoutBatchFn(ctx, arg)
}
func (m *mockBatchStore) ClaimSales(ctx context.Context, arg database.ClaimSalesParams) (int64, error) {
	return m.claimSalesFn(ctx, arg)
}
func (m *mockBatchStore) GetPayoutBatch(ctx context.Context, id uuid.UUID) (database.PayoutBatchRow, error) {
	return m.getPayoutBatchFn(ctx, id)
}
func (m *mockBatchStore) ListSalesByBatch(ctx context.Context, batchID uuid.UUID) ([]database.Sale, error) {
	return m.listSalesByBatchFn(ctx, batchID)
}

// mockSaleStore implements SaleStore.
type mockSaleStore struct {
	createSaleFn func(ctx context.Context, arg database.CreateSaleParams) (database.Sale, error)
	listSalesFn  func(ctx context.Context, arg database.ListSalesParams) ([]database.ListSalesRow, error)
}

func (m *mockSaleStore) CreateSale(ctx context.Context, arg database.CreateSaleParams) (database.Sale, error) {
	return m.createSaleFn(ctx, arg)
}
func (m *mockSaleStore) ListSales(ctx context.Context, arg database.ListSalesParams) ([]database.ListSalesRow, error) {
	return m.listSalesFn(ctx, arg)
}

// mockPendingStore implements PendingStore and counts DB reads.
type mockPendingStore struct {
	mu      sync.Mutex
	calls   int
	rows    []database.ListPendingSummariesRow
	listErr error
}

func (m *mockPendingStore) ListPendingSummaries(ctx context.Context) ([]database.ListPendingSummariesRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.rows, m.listErr
}

func (m *mockPendingStore) GetPendingSummaryForProfessor(ctx context.Context, professorID uuid.UUID) (database.ListPendingSummariesRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	for _, r := range m.rows {
		if r.ProfessorID == professorID {
			return r, nil
		}
	}
	return database.ListPendingSummariesRow{}, pgx.ErrNoRows
}

// mockPaymentStore implements PaymentStore.
type mockPaymentStore struct {
	markPaidFn       func(ctx context.Context, arg database.MarkPayoutBatchPaidParams) (database.PayoutBatchRow, error)
	getPayoutBatchFn func(ctx context.Context, id uuid.UUID) (database.PayoutBatchRow, error)
}

func (m *mockPaymentStore) MarkPayoutBatchPaid(ctx context.Context, arg database.MarkPayoutBatchPaidParams) (database.PayoutBatchRow, error) {
	return m.markPaidFn(ctx, arg)
}
func (m *mockPaymentStore) GetPayoutBatch(ctx context.Context, id uuid.UUID) (database.PayoutBatchRow, error) {
	return m.getPayoutBatchFn(ctx, id)
}

// mockQueryStore implements QueryStore.
type mockQueryStore struct {
	listBatchesFn func(ctx context.Context, arg database.ListPayoutBatchesParams) ([]database.PayoutBatchRow, error)
	bucketsFn     func(ctx context.Context, arg database.GetEarningsBucketsParams) ([]database.GetEarningsBucketsRow, error)
}

func (m *mockQueryStore) ListPayoutBatches(ctx context.Context, arg database.ListPayoutBatchesParams) ([]database.PayoutBatchRow, error) {
	return m.listBatchesFn(ctx, arg)
}
func (m *mockQueryStore) GetEarningsBuckets(ctx context.Context, arg database.GetEarningsBucketsParams) ([]database.GetEarningsBucketsRow, error) {
	return m.bucketsFn(ctx, arg)
}

// memCache is an in-memory SummaryCache.
type memCache struct {
	mu      sync.Mutex
	gen     int64
	entries map[string][]byte
	bumps   int
	getErr  error
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (c *memCache) key(gen int64, key string) string {
	return strconv.FormatInt(gen, 10) + ":" + key
}

func (c *memCache) Generation(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, nil
}

func (c *memCache) Get(ctx context.Context, gen int64, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.entries[c.key(gen, key)]
	return v, ok, nil
}

func (c *memCache) Set(ctx context.Context, gen int64, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.key(gen, key)] = value
	return nil
}

func (c *memCache) Bump(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.bumps++
	return nil
}

// recordingNotifier captures published events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notifiedEvent
}

type notifiedEvent struct {
	professorID uuid.UUID
	eventType   string
	payload     any
}

func (n *recordingNotifier) Notify(professorID uuid.UUID, eventType string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notifiedEvent{professorID: professorID, eventType: eventType, payload: payload})
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.eventType)
	}
	return out
}

// --- Test helpers ---

func makeNumeric(val string) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(val)
	return n
}

func numericEquals(n pgtype.Numeric, expected string) bool {
	d := numericToDecimal(n)
	exp, _ := decimal.NewFromString(expected)
	return d.Equal(exp)
}

func dbSale(professorID uuid.UUID, price string) database.Sale {
	total := decimal.RequireFromString(price)
	prof, admin := SplitEarnings(total)
	return database.Sale{
		ID:                uuid.New(),
		CourseID:          uuid.New(),
		StudentID:         uuid.New(),
		ProfessorID:       professorID,
		TotalPrice:        decimalToNumeric(total),
		ProfessorEarnings: decimalToNumeric(prof),
		AdminEarnings:     decimalToNumeric(admin),
	}
}
