package main

import (
	"errors"
	"flag"
	"log"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/mediflow/go-booking-saga/internal/config"
)

func main() {
	var direction string
	var source string
	flag.StringVar(&direction, "direction", "up", "Migration direction (up or down)")
	flag.StringVar(&source, "source", "file://migrations", "Migration source URL")
	flag.Parse()

	if direction != "up" && direction != "down" {
		log.Fatal("Direction must be 'up' or 'down'")
	}

	cfg := config.Load()

	// golang-migrate selects its driver by URL scheme.
	databaseURL := strings.Replace(cfg.DatabaseURL, "postgres://", "pgx5://", 1)

	m, err := migrate.New(source, databaseURL)
	if err != nil {
		log.Fatalf("Failed to create migration instance: %v", err)
	}
	defer m.Close()

	log.Printf("Running database migrations (%s)...", direction)

	if direction == "up" {
		err = m.Up()
	} else {
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migration completed successfully")
}
