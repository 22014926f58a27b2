package main

import (
	"context"
	"log"
	"os"
	"time"

	pg "github.com/NordCoder/Pipewatch/internal/repository/postgres"
)

func main() {
	dbURL := os.Getenv("ARCHIVE_DB_DSN")
	if dbURL == "" {
		dbURL = os.Getenv("DB_DSN")
	}
	if dbURL == "" {
		log.Fatal("ARCHIVE_DB_DSN is empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := pg.Migrate(ctx, dbURL); err != nil {
		log.Fatal(err)
	}
	log.Println("migrations: up OK")
}
