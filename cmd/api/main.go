package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kadra.org/internal/audit"
	"kadra.org/internal/httpapi"
	"kadra.org/internal/mail"
	"kadra.org/internal/obs"
	"kadra.org/internal/onboarding"
	"kadra.org/internal/rbac"
	"kadra.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("KADRA_PG_DSN")
	if dsn == "" {
		log.Fatal("KADRA_PG_DSN is required")
	}
	secret := []byte(os.Getenv("KADRA_AUTH_SECRET"))
	if len(secret) == 0 {
		log.Fatal("KADRA_AUTH_SECRET is required")
	}
	addr := os.Getenv("KADRA_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	auditLog, err := audit.NewLog(store.Audit)
	if err != nil {
		log.Fatalf("audit log: %v", err)
	}

	verifySvc, err := onboarding.NewService(store.Employees, store.Attempts, store.Tokens, auditLog, secret)
	if err != nil {
		log.Fatalf("onboarding service: %v", err)
	}

	var activatorOpts []onboarding.ActivatorOption
	if smtpAddr := os.Getenv("KADRA_SMTP_ADDR"); smtpAddr != "" {
		mailer, err := mail.NewSMTP(smtpAddr, os.Getenv("KADRA_SMTP_FROM"), nil)
		if err != nil {
			log.Fatalf("mailer: %v", err)
		}
		activatorOpts = append(activatorOpts, onboarding.WithMailer(mailer))
	}
	activator, err := onboarding.NewActivator(store.Employees, store.Tokens, store.Accounts, auditLog, secret, activatorOpts...)
	if err != nil {
		log.Fatalf("activator: %v", err)
	}

	engine, err := rbac.NewEngine(store.Grants, rbac.NewCatalog(), auditLog)
	if err != nil {
		log.Fatalf("role engine: %v", err)
	}

	api := httpapi.New(httpapi.Config{
		ReadyProbe: httpapi.ReadyProbe{DB: store.DB()},
		Version:    version,
		Verify:     verifySvc,
		Setup:      activator,
		Roles:      engine,
		Audit:      auditLog,
		Sessions:   store.Sessions,
	})

	handler := httpapi.MaxBodyBytes(httpapi.RateLimit(api.Handler(), 20, 10), 1<<20)

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting kadra-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
