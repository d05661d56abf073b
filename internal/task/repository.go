package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles all task database operations.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new task and returns the created record.
func (r *Repository) Create(ctx context.Context, owner, text string, imageURL *string) (*Task, error) {
	t := &Task{}
	err := r.db.QueryRow(ctx,
		`INSERT INTO tasks (user_id, text, image_url)
		 VALUES ($1, $2, $3)
		 RETURNING id, user_id, text, image_url, created_at`,
		owner, text, imageURL,
	).Scan(&t.ID, &t.Owner, &t.Text, &t.ImageURL, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

// GetByID fetches a task by its UUID.
func (r *Repository) GetByID(ctx context.Context, id string) (*Task, error) {
	t := &Task{}
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, text, image_url, created_at
		 FROM tasks WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.Owner, &t.Text, &t.ImageURL, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task by id: %w", err)
	}
	return t, nil
}

// UpdateText changes only the task's text, leaving image_url untouched.
func (r *Repository) UpdateText(ctx context.Context, id, text string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE tasks SET text = $2 WHERE id = $1`,
		id, text,
	)
	if err != nil {
		return fmt.Errorf("update task text: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateTextAndImage changes the task's text and image_url together. A nil
// imageURL clears the column.
func (r *Repository) UpdateTextAndImage(ctx context.Context, id, text string, imageURL *string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE tasks SET text = $2, image_url = $3 WHERE id = $1`,
		id, text, imageURL,
	)
	if err != nil {
		return fmt.Errorf("update task text and image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the task row.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM tasks WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByOwner returns the owner's tasks, newest first. The id tie-break keeps
// same-timestamp rows in a stable order.
func (r *Repository) ListByOwner(ctx context.Context, owner string) ([]Task, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, text, image_url, created_at
		 FROM tasks
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks by owner: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ListAll returns every task, newest first.
func (r *Repository) ListAll(ctx context.Context) ([]Task, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, text, image_url, created_at
		 FROM tasks
		 ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list all tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func scanTasks(rows pgx.Rows) ([]Task, error) {
	tasks := []Task{}
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.Owner, &t.Text, &t.ImageURL, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}
