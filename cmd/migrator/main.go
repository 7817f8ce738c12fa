package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"authd/internal/config"
	"authd/internal/storage/mongodb"
)

func main() {
	var configPath string
	var migrationsPath string
	flag.StringVar(&configPath, "config", "", "path to config file (or use CONFIG_PATH env)")
	flag.StringVar(&migrationsPath, "migrations-path", "migrations", "path to migrations directory")
	flag.Parse()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}

	cfg := config.LoadConfig(configPath)

	switch cfg.Storage.Backend {
	case "sqlite":
		migrateSQLite(cfg.Storage.Path, migrationsPath)
	case "mongo":
		initMongo(cfg.Mongo.URI, cfg.Mongo.Database)
	default:
		log.Fatalf("unknown storage backend: %s", cfg.Storage.Backend)
	}

	fmt.Println("Database initialization completed successfully")
}

func migrateSQLite(storagePath, migrationsPath string) {
	m, err := migrate.New(
		"file://"+migrationsPath,
		fmt.Sprintf("sqlite3://%s", storagePath),
	)
	if err != nil {
		log.Fatalf("failed to create migrator: %v", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			fmt.Println("no migrations to apply")
			return
		}
		log.Fatalf("failed to apply migrations: %v", err)
	}

	fmt.Println("migrations applied")
}

func initMongo(uri, database string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Println("Connecting to MongoDB...")

	storage, err := mongodb.New(ctx, uri, database)
	if err != nil {
		log.Fatalf("failed to connect to mongodb: %v", err)
	}
	defer storage.Close(ctx)

	log.Println("MongoDB connected, indexes created successfully")
}
