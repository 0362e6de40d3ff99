package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const ContextUserID = "user_id"

// AuthMiddleware validates the bearer token and stores the caller's wallet
// address in the request context under ContextUserID.
func AuthMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid claims")
			}
			wallet, _ := claims["wallet"].(string)
			if wallet == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token missing wallet claim")
			}

			c.Set(ContextUserID, wallet)
			return next(c)
		}
	}
}

// CallerID reads the authenticated wallet from the context.
func CallerID(c echo.Context) string {
	id, _ := c.Get(ContextUserID).(string)
	return id
}
