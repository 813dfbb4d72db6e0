package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const tokenKey = "session_token"

// sessionMiddleware resolves the browser session token from the session
// cookie. When the cookie is missing and issuing is enabled, a new token is
// set on the response and added to the current request so handlers see it.
func sessionMiddleware(config Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := ""
			if cookie, err := c.Cookie(config.CookieName); err == nil {
				token = cookie.Value
			} else if config.IssueCookie {
				cookie := &http.Cookie{
					Name:     config.CookieName,
					Value:    uuid.NewString(),
					Path:     "/",
					HttpOnly: true,
					Secure:   config.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				}
				c.SetCookie(cookie)
				c.Request().AddCookie(cookie)
				token = cookie.Value
			}
			c.Set(tokenKey, token)
			return next(c)
		}
	}
}

// sessionToken returns the token resolved by sessionMiddleware, "" if none.
func sessionToken(c echo.Context) string {
	token, _ := c.Get(tokenKey).(string)
	return token
}
