package seed

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/Simplici0/printquote/internal/db"
	"github.com/Simplici0/printquote/internal/migrations"
)

func openSeeded(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "seed-test.db")
	database, err := db.Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := migrations.Up(context.Background(), database, nil); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return database
}

func TestRunIsIdempotent(t *testing.T) {
	database := openSeeded(t)
	cfg := Config{
		AdminEmail:    "admin@printquote.test",
		AdminPassword: "12345",
	}

	for i := 0; i < 5; i++ {
		stats, err := Run(context.Background(), database, cfg)
		if err != nil {
			t.Fatalf("run seed (iteration=%d): %v", i, err)
		}
		if i == 0 {
			if stats.Inserts != 1 {
				t.Fatalf("expected 1 insert in first run, got %d", stats.Inserts)
			}
			continue
		}
		if stats.Inserts != 0 || stats.Updates != 0 {
			t.Fatalf("expected no changes in iteration %d, got %+v", i, stats)
		}
	}

	assertCount(t, database, `SELECT COUNT(*) FROM users WHERE email = ?`, "admin@printquote.test", 1)
	assertPassword(t, database, "admin@printquote.test", "12345")
}

func TestRunRotatesChangedPassword(t *testing.T) {
	database := openSeeded(t)
	if _, err := Run(context.Background(), database, Config{AdminEmail: "ops@printquote.test", AdminPassword: "old"}); err != nil {
		t.Fatalf("first seed: %v", err)
	}

	stats, err := Run(context.Background(), database, Config{AdminEmail: "ops@printquote.test", AdminPassword: "new"})
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if stats.Updates != 1 || stats.Inserts != 0 {
		t.Fatalf("expected a single update, got %+v", stats)
	}
	assertPassword(t, database, "ops@printquote.test", "new")
}

func TestRunWithoutAdminDoesNothing(t *testing.T) {
	database := openSeeded(t)
	stats, err := Run(context.Background(), database, Config{})
	if err != nil {
		t.Fatalf("run seed: %v", err)
	}
	if stats != (Stats{}) {
		t.Fatalf("expected no changes, got %+v", stats)
	}
	assertCount(t, database, `SELECT COUNT(*) FROM users`, nil, 0)
}

func assertPassword(t *testing.T, database *sql.DB, email, password string) {
	t.Helper()

	var hash string
	if err := database.QueryRow(`SELECT password_hash FROM users WHERE email = ?`, email).Scan(&hash); err != nil {
		t.Fatalf("query admin hash: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		t.Fatalf("expected admin hash to match password: %v", err)
	}
}

func assertCount(t *testing.T, database *sql.DB, query string, args any, expected int) {
	t.Helper()

	var count int
	var err error
	switch v := args.(type) {
	case nil:
		err = database.QueryRow(query).Scan(&count)
	case []any:
		err = database.QueryRow(query, v...).Scan(&count)
	default:
		err = database.QueryRow(query, v).Scan(&count)
	}
	if err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != expected {
		t.Fatalf("expected count %d, got %d", expected, count)
	}
}
