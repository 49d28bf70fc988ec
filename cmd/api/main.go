package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"erbms.org/internal/audit"
	"erbms.org/internal/auth"
	"erbms.org/internal/config"
	"erbms.org/internal/httpapi"
	"erbms.org/internal/migrate"
	"erbms.org/internal/obs"
	"erbms.org/internal/rbac"
	"erbms.org/internal/seed"
	"erbms.org/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.PGDSN == "" {
		log.Fatal("config: ERBMS_PG_DSN is required")
	}

	store, err := pg.Open(cfg.PGDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	migrationsDir := os.Getenv("ERBMS_MIGRATIONS_DIR")
	if migrationsDir == "" {
		migrationsDir = "migrations"
	}
	if err := migrate.NewManager(store.DB(), migrationsDir).Up(ctx); err != nil {
		cancel()
		log.Fatalf("migrate: %v", err)
	}

	seeder, err := seed.New(cfg, store, store.Users(), store.Roles(), store.Permissions())
	if err != nil {
		cancel()
		log.Fatalf("seed: %v", err)
	}
	if err := seeder.Run(ctx); err != nil {
		cancel()
		log.Fatalf("seed: %v", err)
	}
	cancel()

	issuer, err := auth.NewTokenIssuer(cfg.JWTKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL, cfg.ClockSkew)
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}

	authSvc, err := auth.NewService(store, store.Users(), issuer, cfg.AdminEmail, cfg.RefreshExtra)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	userSvc, err := rbac.NewUserService(store.Users(), store.Roles(), store, cfg.AdminEmail)
	if err != nil {
		log.Fatalf("user service: %v", err)
	}
	roleSvc, err := rbac.NewRoleService(store.Roles(), store.Permissions(), store)
	if err != nil {
		log.Fatalf("role service: %v", err)
	}
	permSvc, err := rbac.NewPermissionService(store.Permissions())
	if err != nil {
		log.Fatalf("permission service: %v", err)
	}

	api := httpapi.New(httpapi.Deps{
		Auth:        authSvc,
		Users:       userSvc,
		Roles:       roleSvc,
		Permissions: permSvc,
		Issuer:      issuer,
		Recorder:    audit.NewRecorder(store.Audit()),
		ReadyProbe:  httpapi.ReadyProbe{DB: store.DB()},
		Version:     version,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(cfg.ClientOrigin),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting erbms-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Println("Stopped")
}
