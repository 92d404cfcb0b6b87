//go:build integration

package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coursehub/payout-api/internal/auth"
	"github.com/coursehub/payout-api/internal/config"
	"github.com/coursehub/payout-api/internal/database"
	"github.com/coursehub/payout-api/internal/enum"
	"github.com/coursehub/payout-api/internal/router"
	"github.com/coursehub/payout-api/internal/service"
	"github.com/coursehub/payout-api/internal/ws"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const integrationSecret = "integration-test-secret"

// TestIntegrationPayoutFlow exercises sale intake, batching and payment
// against a real PostgreSQL database through the full router.
func TestIntegrationPayoutFlow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	if err := database.Migrate(connStr); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	cfg := &config.Config{
		JWTSecret:          integrationSecret,
		ReportTimezone:     "UTC",
		CORSAllowedOrigins: []string{"http://localhost:5173"},
		BatchLockTimeout:   2 * time.Second,
	}
	hub := ws.NewHub(nil)
	go hub.Run(ctx)

	svc, err := router.NewServices(cfg, pool, nil, hub, nil)
	if err != nil {
		t.Fatalf("new services: %v", err)
	}
	server := httptest.NewServer(router.New(cfg, svc, hub, nil))
	defer server.Close()

	queries := database.New(pool)
	ada, adaCourse := createProfessorWithCourse(t, ctx, queries, "Ada Lovelace", "ada@test.dev")
	grace, graceCourse := createProfessorWithCourse(t, ctx, queries, "Grace Hopper", "grace@test.dev")

	adminToken := token(t, uuid.New(), enum.RoleAdmin)
	checkoutToken := token(t, uuid.New(), enum.RoleCheckout)
	adaToken := token(t, ada, enum.RoleProfessor)

	// --- 1. Record sales ---
	for _, price := range []string{"100", "49.99", "0.01"} {
		sale := call(t, server, http.MethodPost, "/sales", checkoutToken, map[string]string{
			"course_id": adaCourse.String(), "student_id": uuid.NewString(),
			"professor_id": ada.String(), "total_price": price,
		}, http.StatusCreated)
		if sale["payout_status"] != "pending" {
			t.Fatalf("new sale status: got %v", sale["payout_status"])
		}
	}
	call(t, server, http.MethodPost, "/sales", checkoutToken, map[string]string{
		"course_id": graceCourse.String(), "student_id": uuid.NewString(),
		"professor_id": grace.String(), "total_price": "10",
	}, http.StatusCreated)

	// A course must belong to the professor it is sold under.
	call(t, server, http.MethodPost, "/sales", checkoutToken, map[string]string{
		"course_id": graceCourse.String(), "student_id": uuid.NewString(),
		"professor_id": ada.String(), "total_price": "10",
	}, http.StatusNotFound)

	// --- 2. Pending summary ---
	pending := call(t, server, http.MethodGet, "/professors/"+ada.String()+"/pending", adaToken, nil, http.StatusOK)
	if pending["total_owed"] != "105.00" || pending["sales_count"] != float64(3) {
		t.Fatalf("ada pending: got %v", pending)
	}

	// --- 3. Batch Ada's sales ---
	batch := call(t, server, http.MethodPost, "/payouts/batches", adminToken,
		map[string]string{"professor_id": ada.String()}, http.StatusCreated)
	batchID := batch["id"].(string)
	if batch["total_amount"] != "105.00" || batch["sales_count"] != float64(3) || batch["status"] != "PENDING" {
		t.Fatalf("batch: got %v", batch)
	}
	call(t, server, http.MethodPost, "/payouts/batches", adminToken,
		map[string]string{"professor_id": ada.String()}, http.StatusConflict)

	pending = call(t, server, http.MethodGet, "/professors/"+ada.String()+"/pending", adaToken, nil, http.StatusOK)
	if pending["total_owed"] != "0.00" {
		t.Fatalf("ada pending after batch: got %v", pending["total_owed"])
	}

	// --- 4. Mark paid ---
	call(t, server, http.MethodPost, "/payouts/batches/"+batchID+"/pay", adminToken,
		map[string]string{"reference_number": "   "}, http.StatusBadRequest)
	paid := call(t, server, http.MethodPost, "/payouts/batches/"+batchID+"/pay", adminToken,
		map[string]string{"reference_number": "WIRE-0001"}, http.StatusOK)
	if paid["status"] != "PAID" || paid["reference_number"] != "WIRE-0001" {
		t.Fatalf("paid batch: got %v", paid)
	}
	call(t, server, http.MethodPost, "/payouts/batches/"+batchID+"/pay", adminToken,
		map[string]string{"reference_number": "WIRE-0002"}, http.StatusConflict)

	detail := call(t, server, http.MethodGet, "/payouts/batches/"+batchID, adminToken, nil, http.StatusOK)
	sales := detail["sales"].([]interface{})
	if len(sales) != 3 {
		t.Fatalf("batch sales: got %d, want 3", len(sales))
	}
	for _, s := range sales {
		if s.(map[string]interface{})["payout_status"] != "paid" {
			t.Errorf("sale in paid batch: got %v", s)
		}
	}

	// --- 5. Concurrent batch creation never double-claims ---
	for i := 0; i < 20; i++ {
		if _, err := svc.Ledger.RecordSale(ctx, service.RecordSaleRequest{
			CourseID: graceCourse, StudentID: uuid.New(), ProfessorID: grace, TotalPrice: decimal.RequireFromString("12.34"),
		}); err != nil {
			t.Fatalf("record grace sale: %v", err)
		}
	}

	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created []*service.PayoutBatch
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := svc.Batches.CreateBatch(ctx, grace)
			switch {
			case err == nil:
				mu.Lock()
				created = append(created, b)
				mu.Unlock()
			case errors.Is(err, service.ErrNoPendingSales):
			default:
				t.Errorf("create batch: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(created) != 1 {
		t.Fatalf("batches created: got %d, want 1", len(created))
	}
	if created[0].SalesCount != 21 {
		t.Fatalf("claimed sales: got %d, want 21", created[0].SalesCount)
	}

	var unbatched int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM sales WHERE professor_id = $1 AND payout_batch_id IS NULL`, grace).Scan(&unbatched); err != nil {
		t.Fatalf("count unbatched: %v", err)
	}
	if unbatched != 0 {
		t.Fatalf("unbatched grace sales: got %d, want 0", unbatched)
	}

	var mismatched int
	if err := pool.QueryRow(ctx, `
		SELECT count(*) FROM payout_batches b
		WHERE b.total_amount <> (SELECT sum(s.professor_earnings) FROM sales s WHERE s.payout_batch_id = b.id)
		   OR b.sales_count <> (SELECT count(*) FROM sales s WHERE s.payout_batch_id = b.id)`).Scan(&mismatched); err != nil {
		t.Fatalf("check batch totals: %v", err)
	}
	if mismatched != 0 {
		t.Fatalf("batches with totals not matching their sales: %d", mismatched)
	}
}

// --- Setup helpers ---

func setupPostgresContainer(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("payouts_test"),
		tcpostgres.WithUsername("payouts"),
		tcpostgres.WithPassword("payouts"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}
	return connStr, cleanup
}

func createProfessorWithCourse(t *testing.T, ctx context.Context, q *database.Queries, name, email string) (uuid.UUID, uuid.UUID) {
	t.Helper()
	prof, err := q.CreateProfessor(ctx, database.CreateProfessorParams{FullName: name, Email: email})
	if err != nil {
		t.Fatalf("create professor: %v", err)
	}
	course, err := q.CreateCourse(ctx, database.CreateCourseParams{ProfessorID: prof.ID, Title: name + " Seminar"})
	if err != nil {
		t.Fatalf("create course: %v", err)
	}
	return prof.ID, course.ID
}

func token(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	tok, err := auth.GenerateToken(integrationSecret, userID, role, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return tok
}

func call(t *testing.T, server *httptest.Server, method, path, tok string, body interface{}, wantStatus int) map[string]interface{} {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: status %d, want %d (body=%v)", method, path, resp.StatusCode, wantStatus, out)
	}
	return out
}
