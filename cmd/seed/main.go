package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/coursehub/payout-api/internal/auth"
	"github.com/coursehub/payout-api/internal/config"
	"github.com/coursehub/payout-api/internal/database"
	"github.com/coursehub/payout-api/internal/enum"
	"github.com/coursehub/payout-api/internal/logger"
	"github.com/coursehub/payout-api/internal/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type seedProfessor struct {
	name    string
	email   string
	courses []string
}

var professors = []seedProfessor{
	{"Ada Lovelace", "ada@coursehub.dev", []string{"Analytical Engines 101", "Notes on Computation"}},
	{"Grace Hopper", "grace@coursehub.dev", []string{"Compilers from Scratch"}},
}

var prices = []string{"49.99", "19.90", "120.00", "0.01", "75.50"}

func main() {
	salesPerCourse := flag.Int("sales", 3, "Sales to record per course")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of the printed dev tokens")
	flag.Parse()

	log, err := logger.New("dev")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg := config.Load()
	if cfg.IsProduction() {
		log.Fatal("refusing to seed a production environment")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("unable to connect to database", "error", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatal("unable to ping database", "error", err)
	}
	log.Info("connected to database")

	// Professors and courses go in one transaction: all or nothing.
	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatal("failed to begin transaction", "error", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	type courseRef struct{ professorID, courseID uuid.UUID }
	var courses []courseRef
	professorIDs := make(map[string]uuid.UUID, len(professors))

	qtx := database.New(tx)
	for _, p := range professors {
		id, created, err := seedProfessorRow(ctx, tx, qtx, p)
		if err != nil {
			log.Fatal("failed to seed professor", "email", p.email, "error", err)
		}
		professorIDs[p.name] = id
		if !created {
			log.Info("professor already exists, skipping courses", "email", p.email, "professor_id", id)
			continue
		}
		for _, title := range p.courses {
			c, err := qtx.CreateCourse(ctx, database.CreateCourseParams{ProfessorID: id, Title: title})
			if err != nil {
				log.Fatal("failed to seed course", "title", title, "error", err)
			}
			courses = append(courses, courseRef{professorID: id, courseID: c.ID})
		}
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatal("failed to commit", "error", err)
	}

	// Sales go through the ledger so the split and validation match production.
	ledger := service.NewSaleLedger(database.New(pool), nil, nil, log)
	recorded := 0
	for i, c := range courses {
		for n := 0; n < *salesPerCourse; n++ {
			price := decimal.RequireFromString(prices[(i+n)%len(prices)])
			if _, err := ledger.RecordSale(ctx, service.RecordSaleRequest{
				CourseID:    c.courseID,
				StudentID:   uuid.New(),
				ProfessorID: c.professorID,
				TotalPrice:  price,
			}); err != nil {
				log.Fatal("failed to record sale", "course_id", c.courseID, "error", err)
			}
			recorded++
		}
	}
	log.Info("seed completed", "courses", len(courses), "sales", recorded)

	printToken(log, cfg.JWTSecret, "admin", uuid.New(), enum.RoleAdmin, *tokenTTL)
	printToken(log, cfg.JWTSecret, "checkout", uuid.New(), enum.RoleCheckout, *tokenTTL)
	for _, p := range professors {
		printToken(log, cfg.JWTSecret, p.name, professorIDs[p.name], enum.RoleProfessor, *tokenTTL)
	}
}

// seedProfessorRow returns the professor with p's email, creating it when missing.
func seedProfessorRow(ctx context.Context, tx pgx.Tx, qtx *database.Queries, p seedProfessor) (uuid.UUID, bool, error) {
	var existingID uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM professors WHERE email = $1`, p.email).Scan(&existingID)
	if err == nil {
		return existingID, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, fmt.Errorf("check professor: %w", err)
	}

	prof, err := qtx.CreateProfessor(ctx, database.CreateProfessorParams{FullName: p.name, Email: p.email})
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("insert professor: %w", err)
	}
	return prof.ID, true, nil
}

func printToken(log *logger.Logger, secret, label string, userID uuid.UUID, role string, ttl time.Duration) {
	token, err := auth.GenerateToken(secret, userID, role, ttl)
	if err != nil {
		log.Fatal("failed to sign dev token", "label", label, "error", err)
	}
	// Printed raw on stdout; the logger redacts anything named like a token.
	fmt.Printf("%-14s %-10s %s %s\n", label, role, userID, token)
}
