package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"github.com/kalviis/factory-bridge/internal/config"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	steps := flag.Int("steps", 0, "number of steps (0 = all)")
	dbURL := flag.String("db-url", "", "database URL (overrides env)")
	migrationsPath := flag.String("path", "migrations", "path to migrations directory")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}

	dsn := *dbURL
	if dsn == "" {
		dsn = os.Getenv("BRIDGE_DATABASE_URL")
	}
	if dsn == "" {
		dsn = databaseFromEnv().DSN()
	}

	m, err := migrate.New("file://"+*migrationsPath, dsn)
	if err != nil {
		log.Fatalf("failed to create migrator: %v", err)
	}
	defer m.Close()

	switch *direction {
	case "up":
		if *steps > 0 {
			err = m.Steps(*steps)
		} else {
			err = m.Up()
		}
	case "down":
		if *steps > 0 {
			err = m.Steps(-*steps)
		} else {
			err = m.Down()
		}
	default:
		log.Fatalf("invalid direction: %s (use 'up' or 'down')", *direction)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("migration failed: %v", err)
	}

	v, dirty, _ := m.Version()
	fmt.Printf("migration %s complete (version: %d, dirty: %v)\n", *direction, v, dirty)
}

// databaseFromEnv starts from the bridge defaults and applies BRIDGE_DB_* overrides.
func databaseFromEnv() config.DatabaseConfig {
	db := config.DefaultConfig().Database
	db.Host = envOrDefault("BRIDGE_DB_HOST", "localhost")
	if p, err := strconv.Atoi(os.Getenv("BRIDGE_DB_PORT")); err == nil {
		db.Port = p
	}
	db.User = envOrDefault("BRIDGE_DB_USER", db.User)
	db.Password = envOrDefault("BRIDGE_DB_PASSWORD", db.Password)
	db.Name = envOrDefault("BRIDGE_DB_NAME", db.Name)
	return db
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
