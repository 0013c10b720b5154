package testutil

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/xiaonanln/edgegate/util/postgres"
)

var invalidDBNameChars = regexp.MustCompile(`[^a-z0-9_]`)

// sanitizeDBName derives a valid PostgreSQL database name (<= 63 chars,
// letters, digits and underscores) from a test name.
func sanitizeDBName(testName string) string {
	name := "edgegate_" + invalidDBNameChars.ReplaceAllString(strings.ToLower(testName), "_")
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}

func adminConfig() *postgres.Config {
	return &postgres.Config{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "postgres",
		SSLMode:  "disable",
	}
}

// CreateTestDatabase creates a fresh database named after the test and returns
// a connection to it plus its config. The database is dropped when the test
// completes. If PostgreSQL is not available, the test is skipped.
func CreateTestDatabase(t *testing.T) (*postgres.DB, *postgres.Config) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping PostgreSQL test in short mode")
	}

	dbName := sanitizeDBName(t.Name())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	adminDB, err := postgres.NewDB(adminConfig())
	if err != nil {
		t.Skipf("Skipping test - PostgreSQL not available: %v", err)
	}
	if err := adminDB.Ping(ctx); err != nil {
		adminDB.Close()
		t.Skipf("Skipping test - PostgreSQL not available: %v", err)
	}

	_, _ = adminDB.Connection().ExecContext(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", dbName))
	_, err = adminDB.Connection().ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", dbName))
	adminDB.Close()
	if err != nil {
		t.Skipf("Failed to create test database: %v", err)
	}

	config := adminConfig()
	config.Database = dbName
	db, err := postgres.NewDB(config)
	if err != nil {
		t.Skipf("Skipping test - Failed to connect to test database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()

		cleanupDB, err := postgres.NewDB(adminConfig())
		if err != nil {
			t.Logf("Warning: Failed to connect for cleanup: %v", err)
			return
		}
		defer cleanupDB.Close()

		_, err = cleanupDB.Connection().ExecContext(context.Background(),
			fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", dbName))
		if err != nil {
			t.Logf("Warning: Failed to drop test database: %v", err)
		}
	})

	return db, config
}
