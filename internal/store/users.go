package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/repairfix-assistant/server/internal/agent/model"
	errx "github.com/repairfix-assistant/server/internal/core/error"
)

const userColumns = "id, email, full_name, created_at, updated_at"

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u           model.User
		email, name sql.NullString
	)
	if err := row.Scan(&u.ID, &email, &name, timestamp{&u.CreatedAt}, timestamp{&u.UpdatedAt}); err != nil {
		return nil, err
	}
	u.Email = email.String
	u.FullName = name.String
	return &u, nil
}

// UpsertUser inserts the user or refreshes it. Empty email or name keep the
// stored values.
func (s *Store) UpsertUser(ctx context.Context, user model.User) (*model.User, error) {
	q := `INSERT INTO users (id, email, full_name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			email = COALESCE(excluded.email, users.email),
			full_name = COALESCE(excluded.full_name, users.full_name),
			updated_at = CURRENT_TIMESTAMP
		RETURNING ` + userColumns
	u, err := scanUser(s.db.QueryRowContext(ctx, s.rebind(q), user.ID, nullable(user.Email), nullable(user.FullName)))
	if err != nil {
		return nil, errx.WrapStore(fmt.Errorf("upsert user: %w", err))
	}
	return u, nil
}

func (s *Store) FindUser(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, s.rebind(`SELECT `+userColumns+` FROM users WHERE id = $1`), id))
	if err != nil {
		return nil, errx.WrapStore(fmt.Errorf("find user: %w", err))
	}
	return u, nil
}
