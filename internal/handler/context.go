package handler

import (
	"github.com/labstack/echo/v4"

	"accounts/internal/access"
	"accounts/internal/auth"
)

// ClaimsKey is the context key the JWT middleware stores validated claims under.
const ClaimsKey = "user"

// ClaimsFrom returns the access token claims of the request, or nil.
func ClaimsFrom(c echo.Context) *auth.Claims {
	claims, _ := c.Get(ClaimsKey).(*auth.Claims)
	return claims
}

// PrincipalFrom returns the caller of the request. Requests that passed no
// token are anonymous.
func PrincipalFrom(c echo.Context) access.Principal {
	claims := ClaimsFrom(c)
	if claims == nil {
		return access.Anonymous()
	}
	return access.Authenticated(claims.UserID, claims.IsStaff)
}
