package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// database/sql drivers
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config binds DATABASE_* variables. SQLite is the local default; postgres
// is used in deployments.
type Config struct {
	Driver string `envconfig:"DATABASE_DRIVER" default:"sqlite"`
	URL    string `envconfig:"DATABASE_URL" default:"file:repairfix.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"`
}

func (c *Config) driver() (string, error) {
	switch d := strings.ToLower(strings.TrimSpace(c.Driver)); d {
	case "", DriverSQLite, "sqlite3":
		return DriverSQLite, nil
	case DriverPostgres, "postgresql", "pg":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", c.Driver)
	}
}

// Open connects and pings the database. Migrations are not applied; call
// Store.Migrate.
func (c *Config) Open(ctx context.Context) (*Store, error) {
	driver, err := c.driver()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, c.URL)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		// one writer; also keeps a :memory: database alive across calls
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}

	return New(db, driver), nil
}
