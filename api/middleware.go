package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/reelcritic/reelcritic/apperr"
	"github.com/reelcritic/reelcritic/auth"
)

const sessionContextKey = "session"

// sessionID extracts the session identifier from the cookie, or "" when the
// cookie is absent.
func (a *API) sessionID(c echo.Context) string {
	cookie, err := c.Cookie(a.cfg.SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// requireSession resolves the session cookie and rejects the request with
// 401 when there is no valid session.
func (a *API) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := a.sessionID(c)
		if id == "" {
			return writeError(c, apperr.ErrUnauthorized)
		}
		sess, err := a.sessions.Get(c.Request().Context(), id)
		if err != nil {
			return writeError(c, apperr.ErrUnauthorized)
		}
		c.Set(sessionContextKey, sess)
		return next(c)
	}
}

// currentSession returns the session stashed by requireSession.
func currentSession(c echo.Context) *auth.Session {
	sess, _ := c.Get(sessionContextKey).(*auth.Session)
	return sess
}

// setSessionCookie sets the session cookie: whole-application scope,
// secure, http-only, cross-site-capable.
func (a *API) setSessionCookie(c echo.Context, id string, maxAge int) {
	c.SetCookie(&http.Cookie{
		Name:     a.cfg.SessionCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteNoneMode,
	})
}

// clearSessionCookie instructs the client to drop the session cookie.
func (a *API) clearSessionCookie(c echo.Context) {
	a.setSessionCookie(c, "", -1)
}
