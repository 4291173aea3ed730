package domain

import (
	"context"
	"errors"
)

// ErrNotFound is returned by repositories when a row does not exist.
var ErrNotFound = errors.New("not found")

// UserRepository persists users.
type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	// Create inserts the user and fills in its ID.
	Create(ctx context.Context, user *User) error
}

// ReviewRepository persists reviews.
type ReviewRepository interface {
	FindByID(ctx context.Context, id int64) (*Review, error)
	ListByMovie(ctx context.Context, movieID int64) ([]MovieReview, error)
	ListByUser(ctx context.Context, userID int64) ([]Review, error)
	// Create inserts the review and fills in its ID.
	Create(ctx context.Context, review *Review) error
	Update(ctx context.Context, review *Review) error
	Delete(ctx context.Context, id int64) error
}
