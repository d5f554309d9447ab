package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/c4bridge/internal/director"
	"github.com/nerrad567/c4bridge/internal/infrastructure/database"
)

// Store persists the Director item inventory and service tokens in SQLite.
// It satisfies director.TokenStore so the token manager can survive restarts
// without re-authenticating against the cloud.
type Store struct {
	db *database.DB
}

// NewStore creates a store backed by an open database handle.
// Migrations must already have been applied.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// SaveToken upserts a bearer token for the given scope.
func (s *Store) SaveToken(ctx context.Context, scope, token string, expiresAt time.Time) error {
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tokens (scope, token, expires_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(scope) DO UPDATE SET
		   token = excluded.token,
		   expires_at = excluded.expires_at,
		   updated_at = excluded.updated_at`,
		scope, token, expiresAt.Unix(), now,
	)
	if err != nil {
		return fmt.Errorf("saving %s token: %w", scope, err)
	}
	return nil
}

// LoadToken returns the stored token for a scope. A scope that was never
// saved yields an empty token and zero expiry, not an error.
func (s *Store) LoadToken(ctx context.Context, scope string) (string, time.Time, error) {
	var token string
	var expiresAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT token, expires_at FROM tokens WHERE scope = ?`, scope,
	).Scan(&token, &expiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", time.Time{}, nil
		}
		return "", time.Time{}, fmt.Errorf("loading %s token: %w", scope, err)
	}

	return token, time.Unix(expiresAt, 0), nil
}

// DeleteToken removes a stored token. Missing scopes are not an error.
func (s *Store) DeleteToken(ctx context.Context, scope string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE scope = ?`, scope); err != nil {
		return fmt.Errorf("deleting %s token: %w", scope, err)
	}
	return nil
}

// SaveItems replaces the stored snapshot for one item category.
//
// Each item is upserted with a fresh last_seen stamp; rows in the same
// category that were not part of this snapshot are removed afterwards, so
// devices deleted from the Director project disappear on the next sync.
func (s *Store) SaveItems(ctx context.Context, category string, items []director.Item) error {
	// Nanosecond stamp so back-to-back snapshots never collide
	now := time.Now().UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	for _, item := range items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO items (id, name, type, category, proxy, control, parent_id,
			                    room_id, room_name, manufacturer, model, serial_number,
			                    last_seen, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   name = excluded.name,
			   type = excluded.type,
			   category = excluded.category,
			   proxy = excluded.proxy,
			   control = excluded.control,
			   parent_id = excluded.parent_id,
			   room_id = excluded.room_id,
			   room_name = excluded.room_name,
			   manufacturer = excluded.manufacturer,
			   model = excluded.model,
			   serial_number = excluded.serial_number,
			   last_seen = excluded.last_seen,
			   updated_at = excluded.updated_at`,
			item.ID, item.Name, item.Type, category, item.Proxy, item.Control,
			item.ParentID, item.RoomID, item.RoomName,
			item.Manufacturer, item.Model, item.SerialNumber,
			now, now,
		)
		if err != nil {
			return fmt.Errorf("saving item %d: %w", item.ID, err)
		}
	}

	// Prune category rows not refreshed by this snapshot
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM items WHERE category = ? AND last_seen < ?`, category, now,
	); err != nil {
		return fmt.Errorf("pruning stale %s items: %w", category, err)
	}

	return tx.Commit()
}

// LoadItems returns the stored items for a category, or every stored item
// when category is empty. Results are ordered by item ID for stable output.
func (s *Store) LoadItems(ctx context.Context, category string) ([]director.Item, error) {
	query := `SELECT id, name, type, category, proxy, control, parent_id,
	                 room_id, room_name, manufacturer, model, serial_number
	          FROM items`
	args := []any{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("loading items: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	var items []director.Item
	for rows.Next() {
		var item director.Item
		var itemCategory string
		if err := rows.Scan(
			&item.ID, &item.Name, &item.Type, &itemCategory, &item.Proxy,
			&item.Control, &item.ParentID, &item.RoomID, &item.RoomName,
			&item.Manufacturer, &item.Model, &item.SerialNumber,
		); err != nil {
			return nil, fmt.Errorf("scanning item row: %w", err)
		}
		item.Categories = []string{itemCategory}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating items: %w", err)
	}

	return items, nil
}

// ItemCount returns the number of stored items across all categories.
func (s *Store) ItemCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting items: %w", err)
	}
	return count, nil
}
