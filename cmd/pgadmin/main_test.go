package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/xiaonanln/edgegate/config"
	"github.com/xiaonanln/edgegate/outcome"
	"github.com/xiaonanln/edgegate/util/postgres"
	"github.com/xiaonanln/edgegate/util/testutil"
)

func testConfig() *postgres.Config {
	return &postgres.Config{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "postgres",
		SSLMode:  "disable",
	}
}

func TestFromConfig(t *testing.T) {
	c := fromConfig(config.PostgresConfig{Host: "db", Port: 6543, Database: "outcomes", SSLMode: "require"})
	if c.Host != "db" || c.Port != 6543 || c.Database != "outcomes" || c.SSLMode != "require" {
		t.Errorf("unexpected config: %+v", c)
	}
	if c.User != "edgegate" {
		t.Errorf("User = %q, want default edgegate", c.User)
	}
}

func TestExecute_UnknownCommand(t *testing.T) {
	var out bytes.Buffer
	a := &admin{config: testConfig(), out: &out}
	err := a.execute(context.Background(), "frobnicate")
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestExecute_ResetCancelled(t *testing.T) {
	var out bytes.Buffer
	// no database needed: the answer is read before connecting
	a := &admin{config: testConfig(), in: strings.NewReader("no\n"), out: &out}
	if err := a.execute(context.Background(), commandReset); err != nil {
		t.Fatalf("reset cancelled should not error, got %v", err)
	}
	if !strings.Contains(out.String(), "Operation cancelled.") {
		t.Errorf("expected cancellation message, got %q", out.String())
	}
}

func TestExecute_Lifecycle(t *testing.T) {
	db, dbConfig := testutil.CreateTestDatabase(t)
	ctx := context.Background()

	var out bytes.Buffer
	a := &admin{config: dbConfig, in: strings.NewReader("yes\n"), out: &out, limit: 5}

	if err := a.execute(ctx, commandReset); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if err := a.execute(ctx, commandInit); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if err := a.execute(ctx, commandVerify); err != nil {
		t.Fatalf("verify failed: %v\n%s", err, out.String())
	}

	store, err := postgres.NewOutcomeStore(ctx, db)
	if err != nil {
		t.Fatalf("NewOutcomeStore failed: %v", err)
	}
	id := uuid.NewString()
	err = store.Record(ctx, outcome.Row{
		Timestamp:     time.Now(),
		Endpoint:      "localhost:50052",
		Success:       true,
		TotalLatency:  4 * time.Millisecond,
		CorrelationID: id,
		Kind:          "predict",
		Attempts:      1,
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	out.Reset()
	if err := a.execute(ctx, commandStatus); err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out.String(), "edgegate_outcomes: 1 rows, 1 succeeded") {
		t.Errorf("unexpected status output: %q", out.String())
	}

	out.Reset()
	if err := a.execute(ctx, commandRecent); err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if !strings.Contains(out.String(), id) {
		t.Errorf("recent output missing %s: %q", id, out.String())
	}

	if _, err := db.Connection().ExecContext(ctx, dropSchemaSQL); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	exists, err := tableExists(ctx, db, tableOutcomes)
	if err != nil {
		t.Fatalf("tableExists failed: %v", err)
	}
	if exists {
		t.Error("expected table to be dropped")
	}

	out.Reset()
	if err := a.execute(ctx, commandVerify); err == nil {
		t.Error("verify should fail without the table")
	}
}
