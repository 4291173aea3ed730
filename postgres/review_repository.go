package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reelcritic/reelcritic/domain"
)

// Compile-time interface assertion.
var _ domain.ReviewRepository = (*ReviewRepository)(nil)

// ReviewRepository implements domain.ReviewRepository on PostgreSQL.
type ReviewRepository struct {
	pool *pgxpool.Pool
}

func NewReviewRepository(pool *pgxpool.Pool) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

func (r *ReviewRepository) FindByID(ctx context.Context, id int64) (*domain.Review, error) {
	var rev domain.Review
	err := r.pool.QueryRow(ctx,
		`SELECT id, movie_id, user_id, rating, comment FROM reviews WHERE id = $1`, id,
	).Scan(&rev.ID, &rev.MovieID, &rev.UserID, &rev.Rating, &rev.Comment)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find review by id: %w", err)
	}
	return &rev, nil
}

func (r *ReviewRepository) ListByMovie(ctx context.Context, movieID int64) ([]domain.MovieReview, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT r.id, r.movie_id, r.user_id, r.rating, r.comment, u.username
		   FROM reviews r JOIN users u ON u.id = r.user_id
		  WHERE r.movie_id = $1
		  ORDER BY r.id`, movieID)
	if err != nil {
		return nil, fmt.Errorf("list reviews by movie: %w", err)
	}
	defer rows.Close()

	var out []domain.MovieReview
	for rows.Next() {
		var rev domain.MovieReview
		if err := rows.Scan(&rev.ID, &rev.MovieID, &rev.UserID, &rev.Rating, &rev.Comment, &rev.Username); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		out = append(out, rev)
	}
	return out, rows.Err()
}

func (r *ReviewRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Review, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, movie_id, user_id, rating, comment FROM reviews
		  WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list reviews by user: %w", err)
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		var rev domain.Review
		if err := rows.Scan(&rev.ID, &rev.MovieID, &rev.UserID, &rev.Rating, &rev.Comment); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		out = append(out, rev)
	}
	return out, rows.Err()
}

func (r *ReviewRepository) Create(ctx context.Context, review *domain.Review) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO reviews (movie_id, user_id, rating, comment)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		review.MovieID, review.UserID, review.Rating, review.Comment,
	).Scan(&review.ID)
	if err != nil {
		return fmt.Errorf("create review: %w", err)
	}
	return nil
}

func (r *ReviewRepository) Update(ctx context.Context, review *domain.Review) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE reviews SET rating = $1, comment = $2 WHERE id = $3`,
		review.Rating, review.Comment, review.ID)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ReviewRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
