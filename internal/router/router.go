package router

import (
	"fmt"
	"net/http"
	"time"

	"github.com/coursehub/payout-api/internal/config"
	"github.com/coursehub/payout-api/internal/database"
	"github.com/coursehub/payout-api/internal/enum"
	"github.com/coursehub/payout-api/internal/handler"
	"github.com/coursehub/payout-api/internal/logger"
	mw "github.com/coursehub/payout-api/internal/middleware"
	"github.com/coursehub/payout-api/internal/service"
	"github.com/coursehub/payout-api/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Services bundles the payout components shared by the HTTP routes and the
// background jobs.
type Services struct {
	Ledger   *service.SaleLedger
	Pending  *service.PendingAggregator
	Batches  *service.BatchManager
	Payments *service.PaymentRecorder
	Query    *service.QueryService
	Location *time.Location
}

// NewServices wires the payout services on top of the pool. cache may be nil
// to run without a shared summary cache.
func NewServices(cfg *config.Config, pool *pgxpool.Pool, cache service.SummaryCache, hub *ws.Hub, log *logger.Logger) (*Services, error) {
	loc, err := time.LoadLocation(cfg.ReportTimezone)
	if err != nil {
		return nil, fmt.Errorf("load report timezone %q: %w", cfg.ReportTimezone, err)
	}

	queries := database.New(pool)
	pending := service.NewPendingAggregator(queries, cache, log)
	ledger := service.NewSaleLedger(queries, pending, hub, log)

	newBatchStore := func(db database.DBTX) service.BatchStore {
		return database.New(db)
	}
	batches := service.NewBatchManager(pool, newBatchStore, pending, hub, log, service.BatchOptions{
		LockTimeout: cfg.BatchLockTimeout,
	})

	return &Services{
		Ledger:   ledger,
		Pending:  pending,
		Batches:  batches,
		Payments: service.NewPaymentRecorder(queries, hub, log),
		Query:    service.NewQueryService(queries, ledger, pending, loc),
		Location: loc,
	}, nil
}

// New creates a Chi router with all application routes wired up.
// Applies authentication, professor scoping, and role-based middleware as needed.
func New(cfg *config.Config, svc *Services, hub *ws.Hub, log *logger.Logger) chi.Router {
	if log == nil {
		log = logger.Nop()
	}
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(mw.RequestLogger(log))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	})

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/payouts", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	salesHandler := handler.NewSalesHandler(svc.Ledger, svc.Query, svc.Location, log)
	payoutHandler := handler.NewPayoutHandler(svc.Batches, svc.Payments, svc.Query, log)
	reportsHandler := handler.NewReportsHandler(svc.Query, nil, log)
	professorHandler := handler.NewProfessorHandler(svc.Query, svc.Location, log)

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		r.Route("/sales", func(r chi.Router) {
			// Checkout clients report purchases; only admins read the ledger.
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole(enum.RoleCheckout, enum.RoleAdmin))
				salesHandler.RegisterCheckoutRoutes(r)
			})
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole(enum.RoleAdmin))
				salesHandler.RegisterRoutes(r)
			})
		})

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.RoleAdmin))
			r.Route("/payouts", payoutHandler.RegisterRoutes)
			r.Route("/reports", reportsHandler.RegisterRoutes)
		})

		// Professor-scoped routes
		r.Route("/professors/{pid}", func(r chi.Router) {
			r.Use(mw.RequireProfessorScope)
			professorHandler.RegisterRoutes(r)
		})
	})

	log.Info("router initialized", "cors_origins", cfg.CORSAllowedOrigins)
	return r
}
