package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// LoginHandler initiates the login flow and redirects to the provider's
// hosted authorization endpoint. The optional signup query parameter hints
// the sign-up-first UI.
func (a *API) LoginHandler(c echo.Context) error {
	signup := c.QueryParam("signup") != ""
	authURL, err := a.flow.Initiate(c.Request().Context(), signup)
	if err != nil {
		return writeError(c, err)
	}
	return c.Redirect(http.StatusFound, authURL)
}

// CallbackHandler completes the login flow: exchanges the code, establishes
// the session, sets the cookie, and redirects to the post-login
// destination.
func (a *API) CallbackHandler(c echo.Context) error {
	code := c.QueryParam("code")
	state := c.QueryParam("state")

	sess, ttl, err := a.flow.Callback(c.Request().Context(), code, state)
	if err != nil {
		return writeError(c, err)
	}

	a.setSessionCookie(c, sess.ID, int(ttl.Seconds()))
	return c.Redirect(http.StatusFound, a.postLoginURL())
}

func (a *API) postLoginURL() string {
	dest := a.cfg.PostLoginURI
	if strings.HasPrefix(dest, "http://") || strings.HasPrefix(dest, "https://") {
		return dest
	}
	return strings.TrimSuffix(a.cfg.FrontendOrigin, "/") + dest
}

// LogoutHandler tears down the session server-side and clears the cookie.
// A navigational GET additionally redirects to the provider logout endpoint
// when one is configured.
func (a *API) LogoutHandler(c echo.Context) error {
	if id := a.sessionID(c); id != "" {
		if err := a.flow.Logout(c.Request().Context(), id); err != nil {
			return writeError(c, err)
		}
	}
	a.clearSessionCookie(c)

	if c.Request().Method == http.MethodGet {
		if logoutURL := a.flow.ProviderLogoutURL(); logoutURL != "" {
			return c.Redirect(http.StatusFound, logoutURL)
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "logged out"})
}

// AuthStatusHandler reports the authenticated identity behind the session
// cookie. All failure modes collapse into one unauthenticated response.
func (a *API) AuthStatusHandler(c echo.Context) error {
	status := a.flow.Status(c.Request().Context(), a.sessionID(c))
	return c.JSON(http.StatusOK, status)
}
