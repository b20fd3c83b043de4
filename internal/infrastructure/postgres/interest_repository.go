package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	repo "github.com/oksasatya/account-guard/internal/domain/repository"
)

// InterestRepository stores sign-up attempts turned away at capacity.
// One row per address; a repeat keeps the first request time.
type InterestRepository struct {
	pool *pgxpool.Pool
}

func NewInterestRepository(pool *pgxpool.Pool) *InterestRepository {
	return &InterestRepository{pool: pool}
}

func (r *InterestRepository) Record(ctx context.Context, e repo.InterestEntry) error {
	var ip any
	if e.Address.IsValid() {
		ip = e.Address.String()
	}
	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.pool.Exec(c, `
		INSERT INTO signup_interest (email, source_ip, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT ((lower(email))) DO NOTHING
	`, e.Email, ip, e.CreatedAt)
	return err
}

var _ repo.InterestLog = (*InterestRepository)(nil)
