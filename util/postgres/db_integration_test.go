package postgres

import (
	"context"
	"os"
	"testing"
	"time"
)

// skipIfNoPostgres returns a connected DB, or skips the test if PostgreSQL is not available
func skipIfNoPostgres(t *testing.T) *DB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping PostgreSQL integration test in short mode")
	}
	if os.Getenv("SKIP_POSTGRES_TESTS") == "1" {
		t.Skip("Skipping PostgreSQL integration test (SKIP_POSTGRES_TESTS=1)")
	}

	config := &Config{
		Host:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
		Port:     5432,
		User:     getEnvOrDefault("POSTGRES_USER", "postgres"),
		Password: getEnvOrDefault("POSTGRES_PASSWORD", "postgres"),
		Database: getEnvOrDefault("POSTGRES_DB", "postgres"),
		SSLMode:  "disable",
	}

	db, err := NewDB(config)
	if err != nil {
		t.Fatalf("NewDB() failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.Ping(ctx); err != nil {
		db.Close()
		t.Skipf("Skipping test - PostgreSQL not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func TestDB_InitSchema_Integration(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()

	if err := db.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM edgegate_outcomes").Scan(&count); err != nil {
		t.Fatalf("Failed to query edgegate_outcomes table: %v", err)
	}

	// Verify we can run InitSchema multiple times (idempotent)
	if err := db.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema() second call failed: %v", err)
	}
}

func TestDB_Close_Integration(t *testing.T) {
	db := skipIfNoPostgres(t)

	if err := db.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := db.Ping(context.Background()); err == nil {
		t.Fatal("Ping() should fail after Close()")
	}
}

func TestDB_Connection_Integration(t *testing.T) {
	db := skipIfNoPostgres(t)

	conn := db.Connection()
	if conn == nil {
		t.Fatal("Connection() returned nil")
	}
	if err := conn.PingContext(context.Background()); err != nil {
		t.Fatalf("PingContext() on raw connection failed: %v", err)
	}
}
