package database

import (
	"context"

	"github.com/trivio-gg/trivio/internal/models"
)

func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	q := `
	SELECT id, email, name, is_admin, created_at
	FROM users
	WHERE id=$1
	`
	err := db.Pool.QueryRow(ctx, q, id).Scan(
		&u.ID, &u.Email, &u.Name, &u.IsAdmin, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
