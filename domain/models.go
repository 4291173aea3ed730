// Package domain holds the durable data model and the repository contracts
// the storage layer implements.
package domain

// User is a locally-known account. Identity is federated: the row exists so
// reviews have an owner, there are no credentials.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Review is a star rating and/or comment a user attached to a movie.
// Rating and Comment are both optional, but at least one must be present at
// creation time. A user may review the same movie more than once.
type Review struct {
	ID      int64   `json:"id"`
	MovieID int64   `json:"movie_id"`
	UserID  int64   `json:"user_id"`
	Rating  *int    `json:"rating,omitempty"`
	Comment *string `json:"comment,omitempty"`
}

// MovieReview is a review joined with its author's username, as embedded in
// movie payloads.
type MovieReview struct {
	Review
	Username string `json:"username"`
}
