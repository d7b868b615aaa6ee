package repository

import (
	"context"
	"database/sql"

	"scrumdeck/internal/domain"
)

// SprintRepo implements domain.SprintRepository on SQLite. It holds the
// sprint-to-product ownership projection the scope resolver consults.
type SprintRepo struct {
	db *sql.DB
}

// NewSprintRepo creates a new SprintRepo.
func NewSprintRepo(db *sql.DB) *SprintRepo {
	return &SprintRepo{db: db}
}

var _ domain.SprintRepository = (*SprintRepo)(nil)

// Register records (or updates) a sprint's owning product.
func (r *SprintRepo) Register(ctx context.Context, s *domain.Sprint) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sprint_products (sprint_id, product_id, name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (sprint_id) DO UPDATE SET product_id = excluded.product_id, name = excluded.name`,
		s.ID, s.ProductID, s.Name, s.CreatedAt.UTC(),
	)
	return mapDBError(err)
}

// ProductForSprint returns the owning product id for a sprint.
func (r *SprintRepo) ProductForSprint(ctx context.Context, sprintID string) (string, error) {
	var productID string
	err := r.db.QueryRowContext(ctx,
		`SELECT product_id FROM sprint_products WHERE sprint_id = ?`, sprintID).Scan(&productID)
	if err != nil {
		return "", mapDBError(err)
	}
	return productID, nil
}
