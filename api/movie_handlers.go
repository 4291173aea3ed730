package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/reelcritic/reelcritic/apperr"
)

// RandomMovieHandler serves one movie from the fixed pool, with reviews and
// encyclopedia link, cached.
func (a *API) RandomMovieHandler(c echo.Context) error {
	movie, err := a.movies.GetRandom(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, movie)
}

// MovieHandler serves a single movie by identifier, cached.
func (a *API) MovieHandler(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, &apperr.Error{
			Code:        "invalid_movie_id",
			Description: "movie id must be an integer",
		})
	}
	movie, err := a.movies.GetByID(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, movie)
}
