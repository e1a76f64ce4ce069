package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"lendstock.org/internal/identity"
	"lendstock.org/internal/migrate"
)

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", os.Getenv("IDENTITY_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "ops/migrations/sql", "Path to SQL migrations")
		adminUser      = flag.String("admin-user", os.Getenv("IDENTITY_BOOTSTRAP_USERNAME"), "Username for the bootstrap command")
		adminPassword  = flag.String("admin-password", os.Getenv("IDENTITY_BOOTSTRAP_PASSWORD"), "Password for the bootstrap command")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or IDENTITY_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|status|bootstrap]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, *migrationsPath)

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	case "bootstrap":
		err = bootstrap(ctx, db, *adminUser, *adminPassword)
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

// bootstrap registers the first super_admin through the regular
// identity service, so password policy and hashing match runtime
// registration. Idempotent: an existing active holder of the username
// is left untouched.
func bootstrap(ctx context.Context, db *sql.DB, username, password string) error {
	if username == "" || password == "" {
		return errors.New("bootstrap requires -admin-user and -admin-password (or the IDENTITY_BOOTSTRAP_* variables)")
	}
	svc, err := identity.NewService(identity.NewPGStore(db))
	if err != nil {
		return err
	}
	if _, err := svc.Register(ctx, username, password, identity.RoleSuperAdmin); err != nil {
		if errors.Is(err, identity.ErrConflict) {
			log.Printf("super_admin %q already exists, nothing to do", username)
			return nil
		}
		return err
	}
	log.Printf("super_admin %q created", username)
	return nil
}
