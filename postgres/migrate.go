package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Deleting a user intentionally does not cascade to reviews, and there is
// no uniqueness on (user_id, movie_id): a user may review a movie more than
// once.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    username text NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS reviews (
    id bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    movie_id bigint NOT NULL,
    user_id bigint NOT NULL REFERENCES users(id),
    rating integer,
    comment text
);

CREATE INDEX IF NOT EXISTS reviews_movie_id_idx ON reviews (movie_id);
CREATE INDEX IF NOT EXISTS reviews_user_id_idx ON reviews (user_id);
`

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migration: %w", err)
	}
	return nil
}
