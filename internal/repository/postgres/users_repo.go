package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/baharkarakas/card-ledger/internal/models"
	"github.com/baharkarakas/card-ledger/internal/repository"
)

type usersRepo struct{ pool *pgxpool.Pool }

func (r *usersRepo) Create(ctx context.Context, u models.User) (models.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users(id, first_name, last_name, email, active)
		 VALUES($1,$2,$3,$4,$5)
		 RETURNING created_at, updated_at`,
		u.ID, u.FirstName, u.LastName, u.Email, u.Active,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return models.User{}, mapErr(err)
	}
	return u, nil
}

func (r *usersRepo) GetByID(ctx context.Context, id string) (models.User, error) {
	if uuid.Validate(id) != nil {
		return models.User{}, repository.ErrNotFound
	}
	var u models.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, first_name, last_name, email, active, created_at, updated_at FROM users WHERE id=$1`, id,
	).Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return models.User{}, mapErr(err)
	}
	return u, nil
}
