package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/qrave1/TalkRooms/internal/domain/models"
)

type UserStatsRepository interface {
	IncrementSessionCount(ctx context.Context, userID string) error
	AddHours(ctx context.Context, userID string, hours float64) error
	GetStats(ctx context.Context, userID string) (*models.UserStats, error)
}

type userStatsRepo struct {
	db *sqlx.DB
}

func NewUserStatsRepo(db *sqlx.DB) UserStatsRepository {
	return &userStatsRepo{db: db}
}

func (r *userStatsRepo) IncrementSessionCount(ctx context.Context, userID string) error {
	query := `
		INSERT INTO user_stats (user_id, session_count)
		VALUES ($1, 1)
		ON CONFLICT (user_id) DO UPDATE
		SET session_count = user_stats.session_count + 1, updated_at = now()
	`

	_, err := r.db.ExecContext(ctx, query, userID)

	return err
}

func (r *userStatsRepo) AddHours(ctx context.Context, userID string, hours float64) error {
	query := `
		INSERT INTO user_stats (user_id, hours)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET hours = user_stats.hours + EXCLUDED.hours, updated_at = now()
	`

	_, err := r.db.ExecContext(ctx, query, userID, hours)

	return err
}

func (r *userStatsRepo) GetStats(ctx context.Context, userID string) (*models.UserStats, error) {
	var stats models.UserStats

	err := r.db.GetContext(
		ctx,
		&stats,
		"SELECT user_id, session_count, hours, updated_at FROM user_stats WHERE user_id = $1",
		userID,
	)
	if err != nil {
		return nil, err
	}

	return &stats, nil
}
