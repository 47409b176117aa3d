package main

import (
	"flag"
	"fmt"
	"log"

	"multipay.dev/app/internal/config"
	"multipay.dev/app/internal/database"
)

func main() {
	file := flag.String("config", "", "optional config file (defaults to ./multipay.yaml when present)")
	flag.Parse()

	var files []string
	if *file != "" {
		files = append(files, *file)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := database.Open(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}

	fmt.Printf("✓ payments and provider_events are up to date (%s)\n", cfg.DB.Driver)
}
