// Package profile exposes the read-only user directory used to label task
// ownership in the all-tasks view.
package profile

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads the profiles table.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new profile Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// EmailsByUserIDs resolves the given user ids to emails in a single query.
// Missing ids and null emails are simply absent from the result map.
func (r *Repository) EmailsByUserIDs(ctx context.Context, userIDs []string) (map[string]string, error) {
	if len(userIDs) == 0 {
		return map[string]string{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT user_id, email FROM profiles WHERE user_id = ANY($1)`,
		userIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	emails := make(map[string]string, len(userIDs))
	for rows.Next() {
		var userID string
		var email *string
		if err := rows.Scan(&userID, &email); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		if email != nil {
			emails[userID] = *email
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return emails, nil
}
