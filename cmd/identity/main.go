package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	"lendstock.org/internal/config"
	"lendstock.org/internal/httpapi"
	"lendstock.org/internal/identity"
	"lendstock.org/internal/obs"
	"lendstock.org/internal/token"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo("identity", version)

	cfg, err := config.LoadIdentity()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Without a DSN the service runs on the in-memory store, which is
	// enough for local development and smoke tests.
	var (
		db    *sql.DB
		store identity.Store
	)
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		store = identity.NewPGStore(db)
	} else {
		log.Printf("IDENTITY_PG_DSN not set, using in-memory store")
		store = identity.NewMemStore()
	}

	svc, err := identity.NewService(store)
	if err != nil {
		log.Fatalf("identity service: %v", err)
	}
	codec, err := token.NewCodec(cfg.TokenSecret,
		token.WithAccessTTL(cfg.AccessTTL),
		token.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	api := httpapi.New(svc, codec, httpapi.ReadyProbe{DB: db}, []byte(cfg.AssertionSecret), version)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("starting lendstock-identity %s on %s", version, srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Println("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("identity: %v", err)
	}
	if db != nil {
		_ = db.Close()
	}
	log.Println("stopped")
}
