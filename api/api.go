// Package api exposes the HTTP surface: auth flow endpoints, cached movie
// reads, and review mutations.
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/reelcritic/reelcritic/apperr"
	"github.com/reelcritic/reelcritic/auth"
	"github.com/reelcritic/reelcritic/config"
	"github.com/reelcritic/reelcritic/domain"
	"github.com/reelcritic/reelcritic/movies"
)

// API holds the handler dependencies.
type API struct {
	cfg      *config.Config
	flow     *auth.Flow
	sessions *auth.SessionManager
	movies   *movies.Service
	cache    *movies.ResponseCache
	reviews  domain.ReviewRepository
}

func New(
	cfg *config.Config,
	flow *auth.Flow,
	sessions *auth.SessionManager,
	movieSvc *movies.Service,
	cache *movies.ResponseCache,
	reviews domain.ReviewRepository,
) *API {
	return &API{
		cfg:      cfg,
		flow:     flow,
		sessions: sessions,
		movies:   movieSvc,
		cache:    cache,
		reviews:  reviews,
	}
}

// RegisterRoutes registers all routes and shared middleware.
func (a *API) RegisterRoutes(e *echo.Echo) {
	e.Use(requestLogger())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{a.cfg.FrontendOrigin},
		AllowCredentials: true,
	}))

	e.GET("/api/auth/login", a.LoginHandler)
	e.GET("/api/auth/callback", a.CallbackHandler)
	e.GET("/api/auth/logout", a.LogoutHandler)
	e.POST("/api/auth/logout", a.LogoutHandler)
	e.GET("/api/auth-status", a.AuthStatusHandler)

	e.GET("/api/movies/random", a.RandomMovieHandler)
	e.GET("/api/movies/:id", a.MovieHandler)

	reviews := e.Group("/api/reviews", a.requireSession)
	reviews.POST("", a.CreateReviewHandler)
	reviews.PUT("/:id", a.UpdateReviewHandler)
	reviews.DELETE("/:id", a.DeleteReviewHandler)
	reviews.GET("/mine", a.MyReviewsHandler)
}

// requestLogger attaches a request-scoped zerolog logger to the context so
// downstream code can use log.Ctx.
func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			logger := log.With().
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Logger()
			c.SetRequest(req.WithContext(logger.WithContext(req.Context())))

			err := next(c)
			evt := logger.Info()
			if err != nil || c.Response().Status >= http.StatusInternalServerError {
				evt = logger.Error().Err(err)
			}
			evt.Int("status", c.Response().Status).Msg("request")
			return err
		}
	}
}

// writeError translates an error into the JSON error body. Not-found rows
// get a plain 404.
func writeError(c echo.Context, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return c.JSON(http.StatusNotFound, &apperr.Error{Code: "not_found"})
	}
	status, body := apperr.Wire(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(c.Request().Context()).Error().Err(err).Msg("request failed")
	} else {
		zerolog.Ctx(c.Request().Context()).Warn().Err(err).Msg("request rejected")
	}
	return c.JSON(status, body)
}
