// Command migrate applies or rolls back the schema and optionally seeds a
// few demo accounts and events for local development.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"golang.org/x/crypto/bcrypt"

	"eventhub/internal/config"
	"eventhub/internal/database/migrations"
	"eventhub/internal/logger"
	"eventhub/internal/models"
)

func main() {
	down := flag.Bool("down", false, "roll back all migrations")
	seed := flag.Bool("seed", false, "insert demo data after migrating")
	dir := flag.String("dir", "./migrations", "migrations directory")
	flag.Parse()

	log := logger.NewLogger()
	defer log.Close()

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("open postgres: %v", err))
	}
	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("ping postgres: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.Options{MigrationsDir: *dir}, log)
	defer runner.Close()

	if *down {
		if err := runner.MigrateDown(); err != nil {
			log.Fatal("MIGRATE", fmt.Sprintf("down: %v", err))
		}
		log.Info("MIGRATE", "All migrations rolled back")
		return
	}

	if err := runner.MigrateUp(); err != nil {
		log.Fatal("MIGRATE", fmt.Sprintf("up: %v", err))
	}
	log.Info("MIGRATE", "Migrations applied")

	if *seed {
		if err := seedDemoData(context.Background(), bunDB); err != nil {
			log.Fatal("SEED", fmt.Sprintf("seed demo data: %v", err))
		}
		log.Info("SEED", "Demo data inserted")
	}
}

func seedDemoData(ctx context.Context, bunDB *bun.DB) error {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	organizer := &models.User{
		ID:           uuid.New().String(),
		Name:         "Demo Organizer",
		Email:        "organizer@example.com",
		PasswordHash: string(passwordHash),
		IsVerified:   true,
		CreatedAt:    time.Now(),
	}
	attendee := &models.User{
		ID:           uuid.New().String(),
		Name:         "Demo Attendee",
		Email:        "attendee@example.com",
		PasswordHash: string(passwordHash),
		IsVerified:   true,
		CreatedAt:    time.Now(),
	}

	events := []*models.Event{
		{
			ID:              uuid.New().String(),
			Title:           "City Park Cleanup",
			Description:     "Bring gloves, we supply the rest.",
			Date:            time.Now().Add(7 * 24 * time.Hour),
			LocationAddress: "Central Park, Main Gate",
			OrganizerID:     organizer.ID,
			Category:        models.CategorySocial,
			DurationMinutes: 180,
			Capacity:        50,
			IsFree:          true,
			AgeRestriction:  models.AgeAll,
			CreatedAt:       time.Now(),
		},
		{
			ID:              uuid.New().String(),
			Title:           "Intro to Backend Go",
			Description:     "Hands-on workshop, laptops required.",
			Date:            time.Now().Add(14 * 24 * time.Hour),
			LocationAddress: "Tech Hub, Room 4",
			OrganizerID:     organizer.ID,
			Category:        models.CategoryWorkshop,
			DurationMinutes: 120,
			Capacity:        30,
			IsFree:          false,
			EntryFeeAmount:  15,
			AgeRestriction:  models.AgeAll,
			CreatedAt:       time.Now(),
		},
	}

	return bunDB.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, u := range []*models.User{organizer, attendee} {
			if _, err := tx.NewInsert().Model(u).On("CONFLICT (email) DO NOTHING").Exec(ctx); err != nil {
				return err
			}
		}
		for _, e := range events {
			if _, err := tx.NewInsert().Model(e).Exec(ctx); err != nil {
				return err
			}
			tags := []models.EventTag{
				{EventID: e.ID, Tag: "demo"},
			}
			if _, err := tx.NewInsert().Model(&tags).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}
