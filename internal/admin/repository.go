// Package admin checks membership in the admin allow-list.
package admin

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads the admins table.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new admin Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// IsAdmin returns true if the user id is present in the allow-list.
func (r *Repository) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var isAdmin bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM admins WHERE user_id = $1)`,
		userID,
	).Scan(&isAdmin)
	if err != nil {
		return false, fmt.Errorf("check admin membership: %w", err)
	}
	return isAdmin, nil
}
