package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/reelcritic/reelcritic/apperr"
	"github.com/reelcritic/reelcritic/domain"
)

type reviewRequest struct {
	MovieID int64   `json:"movie_id"`
	Rating  *int    `json:"rating,omitempty"`
	Comment *string `json:"comment,omitempty"`
}

func (r *reviewRequest) empty() bool {
	return r.Rating == nil && (r.Comment == nil || *r.Comment == "")
}

// CreateReviewHandler creates a review owned by the session's user and
// invalidates the affected movie's cached responses.
func (a *API) CreateReviewHandler(c echo.Context) error {
	sess := currentSession(c)

	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, &apperr.Error{Code: "invalid_body"})
	}
	if req.MovieID == 0 {
		return c.JSON(http.StatusBadRequest, &apperr.Error{
			Code:        "invalid_body",
			Description: "movie_id is required",
		})
	}
	if req.empty() {
		return c.JSON(http.StatusBadRequest, &apperr.Error{
			Code:        "invalid_body",
			Description: "a rating or a comment is required",
		})
	}

	review := &domain.Review{
		MovieID: req.MovieID,
		UserID:  sess.UserID,
		Rating:  req.Rating,
		Comment: req.Comment,
	}
	ctx := c.Request().Context()
	if err := a.reviews.Create(ctx, review); err != nil {
		return writeError(c, err)
	}
	a.cache.InvalidateMovie(ctx, review.MovieID)

	return c.JSON(http.StatusCreated, domain.MovieReview{
		Review:   *review,
		Username: sess.Username,
	})
}

// UpdateReviewHandler changes the rating/comment of a review owned by the
// session's user.
func (a *API) UpdateReviewHandler(c echo.Context) error {
	sess := currentSession(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, &apperr.Error{Code: "invalid_review_id"})
	}

	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, &apperr.Error{Code: "invalid_body"})
	}
	if req.empty() {
		return c.JSON(http.StatusBadRequest, &apperr.Error{
			Code:        "invalid_body",
			Description: "a rating or a comment is required",
		})
	}

	ctx := c.Request().Context()
	review, err := a.reviews.FindByID(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	if review.UserID != sess.UserID {
		return c.JSON(http.StatusForbidden, &apperr.Error{Code: "forbidden"})
	}

	review.Rating = req.Rating
	review.Comment = req.Comment
	if err := a.reviews.Update(ctx, review); err != nil {
		return writeError(c, err)
	}
	a.cache.InvalidateMovie(ctx, review.MovieID)

	return c.JSON(http.StatusOK, review)
}

// DeleteReviewHandler removes a review owned by the session's user.
func (a *API) DeleteReviewHandler(c echo.Context) error {
	sess := currentSession(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, &apperr.Error{Code: "invalid_review_id"})
	}

	ctx := c.Request().Context()
	review, err := a.reviews.FindByID(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	if review.UserID != sess.UserID {
		return c.JSON(http.StatusForbidden, &apperr.Error{Code: "forbidden"})
	}

	if err := a.reviews.Delete(ctx, id); err != nil {
		return writeError(c, err)
	}
	a.cache.InvalidateMovie(ctx, review.MovieID)

	return c.NoContent(http.StatusNoContent)
}

// MyReviewsHandler lists the session user's reviews.
func (a *API) MyReviewsHandler(c echo.Context) error {
	sess := currentSession(c)
	reviews, err := a.reviews.ListByUser(c.Request().Context(), sess.UserID)
	if err != nil {
		return writeError(c, err)
	}
	if reviews == nil {
		reviews = []domain.Review{}
	}
	return c.JSON(http.StatusOK, reviews)
}
