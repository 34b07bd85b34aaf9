// Package store persists users, conversations, messages and usage counters
// in a relational database (postgres or sqlite).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/repairfix-assistant/server/internal/agent/model"
	errx "github.com/repairfix-assistant/server/internal/core/error"
)

// Store implements the conversation, usage and user repositories over
// database/sql. Queries are written with postgres $N placeholders.
type Store struct {
	db     *sql.DB
	driver string
}

func New(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

func (s *Store) Driver() string { return s.driver }

// rebind rewrites $N placeholders to sqlite's numbered ?N form.
func (s *Store) rebind(q string) string {
	if s.driver != DriverSQLite {
		return q
	}
	return strings.ReplaceAll(q, "$", "?")
}

// Migrate brings the schema to the latest version.
func (s *Store) Migrate(ctx context.Context) error {
	return NewMigrationManager(s.db, migrations(s.driver)).RunMigrations(ctx)
}

// Ping verifies the connection is healthy.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errx.WrapStore(fmt.Errorf("ping database: %w", err))
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

var (
	_ model.ConversationRepository = (*Store)(nil)
	_ model.UsageRepository        = (*Store)(nil)
	_ model.UserRepository         = (*Store)(nil)
)

// timestamp scans driver time values: time.Time from postgres, text from
// sqlite when the declared type is lost (RETURNING, expressions).
type timestamp struct{ t *time.Time }

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (ts timestamp) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		*ts.t = time.Time{}
		return nil
	case time.Time:
		*ts.t = x
		return nil
	case string:
		return ts.parse(x)
	case []byte:
		return ts.parse(string(x))
	default:
		return fmt.Errorf("scan timestamp: unsupported type %T", v)
	}
}

func (ts timestamp) parse(s string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*ts.t = t
			return nil
		}
	}
	return fmt.Errorf("scan timestamp: unrecognised value %q", s)
}

// metadata scans a JSON object column; NULL becomes an empty map.
type metadata struct{ m *map[string]any }

func (md metadata) Scan(v any) error {
	var raw []byte
	switch x := v.(type) {
	case nil:
		*md.m = map[string]any{}
		return nil
	case string:
		raw = []byte(x)
	case []byte:
		raw = x
	default:
		return fmt.Errorf("scan metadata: unsupported type %T", v)
	}
	out := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("scan metadata: %w", err)
		}
	}
	*md.m = out
	return nil
}

func encodeMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

// nullable turns "" into SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
