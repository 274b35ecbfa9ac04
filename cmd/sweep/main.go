// Command sweep deactivates expired role grants once and exits. Run it from
// cron or a scheduler; a failed run can simply be retried.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"kadra.org/internal/audit"
	"kadra.org/internal/rbac"
	"kadra.org/internal/store/pg"
)

func main() {
	log.SetFlags(0)
	var (
		dsn     = flag.String("dsn", os.Getenv("KADRA_PG_DSN"), "PostgreSQL DSN")
		timeout = flag.Duration("timeout", 2*time.Minute, "Run deadline")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or KADRA_PG_DSN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	auditLog, err := audit.NewLog(store.Audit)
	if err != nil {
		log.Fatalf("audit log: %v", err)
	}
	engine, err := rbac.NewEngine(store.Grants, rbac.NewCatalog(), auditLog)
	if err != nil {
		log.Fatalf("role engine: %v", err)
	}

	result := engine.SweepExpired(ctx, time.Now().UTC())
	log.Printf("sweep finished: expired=%d errors=%d", result.ExpiredCount, result.ErrorCount)
	if result.ErrorCount > 0 {
		os.Exit(1)
	}
}
