package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"erbms.org/internal/migrate"
	"erbms.org/internal/store/pg"
)

func main() {
	_ = godotenv.Load()

	dir := flag.String("dir", "migrations", "directory containing *.up.sql / *.down.sql files")
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "up"
	}

	dsn := os.Getenv("ERBMS_PG_DSN")
	if dsn == "" {
		log.Fatal("ERBMS_PG_DSN is required")
	}

	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	mgr := migrate.NewManager(store.DB(), *dir)

	switch cmd {
	case "up":
		if err := mgr.Up(ctx); err != nil {
			log.Fatalf("up: %v", err)
		}
		fmt.Println("migrations applied")
	case "down":
		if err := mgr.Down(ctx); err != nil {
			log.Fatalf("down: %v", err)
		}
		fmt.Println("last migration rolled back")
	case "status":
		applied, err := mgr.Status(ctx)
		if err != nil {
			log.Fatalf("status: %v", err)
		}
		if len(applied) == 0 {
			fmt.Println("no migrations applied")
			return
		}
		for _, name := range applied {
			fmt.Println(name)
		}
	default:
		log.Fatalf("unknown command %q (want up, down or status)", cmd)
	}
}
