package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/xiaonanln/edgegate/config"
	"github.com/xiaonanln/edgegate/util/postgres"
)

const (
	commandInit   = "init"
	commandVerify = "verify"
	commandReset  = "reset"
	commandStatus = "status"
	commandRecent = "recent"
)

// Must match util/postgres/db.go:InitSchema()
const (
	tableOutcomes = "edgegate_outcomes"
	dropSchemaSQL = `DROP TABLE IF EXISTS edgegate_outcomes CASCADE;`
)

var outcomeIndexes = []string{"idx_edgegate_outcomes_ts", "idx_edgegate_outcomes_correlation_id"}

func main() {
	var (
		configFile = flag.String("config", "", "Path to YAML configuration file (postgres section)")
		host       = flag.String("host", "localhost", "PostgreSQL host")
		port       = flag.Int("port", 5432, "PostgreSQL port")
		user       = flag.String("user", "edgegate", "PostgreSQL user")
		password   = flag.String("password", "edgegate", "PostgreSQL password")
		database   = flag.String("database", "edgegate", "PostgreSQL database")
		sslmode    = flag.String("sslmode", "disable", "PostgreSQL SSL mode")
		limit      = flag.Int("limit", 20, "Rows shown by the recent command")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <command>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Manages the PostgreSQL outcome sink of edgegate.\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  init     Create the outcome table and indexes\n")
		fmt.Fprintf(os.Stderr, "  verify   Check the connection and schema\n")
		fmt.Fprintf(os.Stderr, "  status   Show row counts and success rate\n")
		fmt.Fprintf(os.Stderr, "  recent   Print the most recent outcomes\n")
		fmt.Fprintf(os.Stderr, "  reset    Drop and recreate the table (WARNING: deletes all outcomes)\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Error: command required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	pgConfig := &postgres.Config{
		Host:     *host,
		Port:     *port,
		User:     *user,
		Password: *password,
		Database: *database,
		SSLMode:  *sslmode,
	}
	if *configFile != "" {
		cfg, err := config.LoadConfig(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config file: %v\n", err)
			os.Exit(1)
		}
		if !cfg.Postgres.Enabled() {
			fmt.Fprintf(os.Stderr, "Error: %s has no postgres section\n", *configFile)
			os.Exit(1)
		}
		pgConfig = fromConfig(cfg.Postgres)
	}

	admin := &admin{config: pgConfig, in: os.Stdin, out: os.Stdout, limit: *limit}
	if err := admin.execute(context.Background(), flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// fromConfig converts the config file's postgres section; ApplyDefaults already set port and sslmode
func fromConfig(pg config.PostgresConfig) *postgres.Config {
	c := &postgres.Config{
		Host:     pg.Host,
		Port:     pg.Port,
		User:     pg.User,
		Password: pg.Password,
		Database: pg.Database,
		SSLMode:  pg.SSLMode,
	}
	if c.User == "" {
		c.User = "edgegate"
	}
	return c
}

type admin struct {
	config *postgres.Config
	in     io.Reader
	out    io.Writer
	limit  int
}

func (a *admin) execute(ctx context.Context, command string) error {
	var run func(context.Context, *postgres.DB) error
	switch command {
	case commandInit:
		run = a.initSchema
	case commandVerify:
		run = a.verify
	case commandStatus:
		run = a.status
	case commandRecent:
		run = a.recent
	case commandReset:
		if !a.confirm() {
			fmt.Fprintln(a.out, "Operation cancelled.")
			return nil
		}
		run = a.reset
	default:
		return fmt.Errorf("unknown command: %s", command)
	}

	db, err := postgres.NewDB(a.config)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	start := time.Now()
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	fmt.Fprintf(a.out, "✓ Connected to %s:%d/%s (latency: %v)\n", a.config.Host, a.config.Port, a.config.Database, time.Since(start))
	return run(ctx, db)
}

func (a *admin) confirm() bool {
	fmt.Fprintln(a.out, "WARNING: This will delete all recorded outcomes!")
	fmt.Fprint(a.out, "Are you sure you want to continue? (yes/no): ")
	scanner := bufio.NewScanner(a.in)
	if !scanner.Scan() {
		return false
	}
	return strings.ToLower(strings.TrimSpace(scanner.Text())) == "yes"
}

func (a *admin) initSchema(ctx context.Context, db *postgres.DB) error {
	if err := db.InitSchema(ctx); err != nil {
		return err
	}
	exists, err := tableExists(ctx, db, tableOutcomes)
	if err != nil {
		return fmt.Errorf("failed to verify table %s: %w", tableOutcomes, err)
	}
	if !exists {
		return fmt.Errorf("table '%s' was not created", tableOutcomes)
	}
	fmt.Fprintf(a.out, "✓ Table '%s' ready\n", tableOutcomes)
	return nil
}

func (a *admin) verify(ctx context.Context, db *postgres.DB) error {
	exists, err := tableExists(ctx, db, tableOutcomes)
	if err != nil {
		return fmt.Errorf("failed to check table %s: %w", tableOutcomes, err)
	}
	if !exists {
		fmt.Fprintf(a.out, "✗ Table '%s' does not exist. Run 'init' to create it.\n", tableOutcomes)
		return fmt.Errorf("schema verification failed")
	}
	fmt.Fprintf(a.out, "✓ Table '%s' exists\n", tableOutcomes)

	missing := 0
	for _, idx := range outcomeIndexes {
		ok, err := indexExists(ctx, db, tableOutcomes, idx)
		if err != nil {
			return fmt.Errorf("failed to check index %s: %w", idx, err)
		}
		if ok {
			fmt.Fprintf(a.out, "✓ Index '%s' exists\n", idx)
		} else {
			fmt.Fprintf(a.out, "✗ Index '%s' does not exist\n", idx)
			missing++
		}
	}
	if missing > 0 {
		return fmt.Errorf("%d index(es) missing", missing)
	}
	return nil
}

func (a *admin) status(ctx context.Context, db *postgres.DB) error {
	var version string
	if err := db.Connection().QueryRowContext(ctx, "SELECT version()").Scan(&version); err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}
	if len(version) > 80 {
		version = version[:77] + "..."
	}
	fmt.Fprintf(a.out, "Version: %s\n", version)

	exists, err := tableExists(ctx, db, tableOutcomes)
	if err != nil {
		return err
	}
	if !exists {
		fmt.Fprintf(a.out, "%s: ✗ (does not exist)\n", tableOutcomes)
		return nil
	}

	var total, succeeded int64
	var meanMs *float64
	err = db.Connection().QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE success), AVG(latency_ms) FILTER (WHERE success)
		FROM edgegate_outcomes
	`).Scan(&total, &succeeded, &meanMs)
	if err != nil {
		return fmt.Errorf("failed to summarize outcomes: %w", err)
	}
	fmt.Fprintf(a.out, "%s: %d rows, %d succeeded", tableOutcomes, total, succeeded)
	if meanMs != nil {
		fmt.Fprintf(a.out, ", mean success latency %.3f ms", *meanMs)
	}
	fmt.Fprintln(a.out)
	return nil
}

func (a *admin) recent(ctx context.Context, db *postgres.DB) error {
	rows, err := db.Connection().QueryContext(ctx, `
		SELECT ts, replica, success, latency_ms, correlation_id, kind, attempts
		FROM edgegate_outcomes
		ORDER BY id DESC
		LIMIT $1
	`, a.limit)
	if err != nil {
		return fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ts          time.Time
			replica, id string
			kind        string
			success     bool
			latencyMs   float64
			attempts    int
		)
		if err := rows.Scan(&ts, &replica, &success, &latencyMs, &id, &kind, &attempts); err != nil {
			return err
		}
		if replica == "" {
			replica = "-"
		}
		fmt.Fprintf(a.out, "%s %s %-7s %-21s %-5t %9.3f ms attempts=%d\n",
			ts.Format(time.RFC3339Nano), id, kind, replica, success, latencyMs, attempts)
	}
	return rows.Err()
}

func (a *admin) reset(ctx context.Context, db *postgres.DB) error {
	if _, err := db.Connection().ExecContext(ctx, dropSchemaSQL); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	fmt.Fprintln(a.out, "✓ Dropped existing tables")
	if err := db.InitSchema(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "✓ Schema recreated successfully")
	return nil
}

func tableExists(ctx context.Context, db *postgres.DB, tableName string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)
	`
	err := db.Connection().QueryRowContext(ctx, query, tableName).Scan(&exists)
	return exists, err
}

func indexExists(ctx context.Context, db *postgres.DB, tableName, indexName string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT FROM pg_indexes
			WHERE schemaname = 'public'
			AND tablename = $1
			AND indexname = $2
		)
	`
	err := db.Connection().QueryRowContext(ctx, query, tableName, indexName).Scan(&exists)
	return exists, err
}
