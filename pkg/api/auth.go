package api

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echo "github.com/labstack/echo/v5"
)

// identity is the authenticated caller. The zero value is an anonymous
// guest.
type identity struct {
	UserID string
	Email  string
	Role   string
	Name   string
}

// currentUser extracts the caller identity from the Authorization header or
// the token query parameter. Missing or invalid tokens degrade to guest
// rather than failing the request; endpoints that require authentication
// check identity.UserID themselves.
func (s *Server) currentUser(c *echo.Context) identity {
	token := c.QueryParam("token")
	if auth := c.Request().Header.Get("Authorization"); auth != "" {
		if t, ok := strings.CutPrefix(auth, "Bearer "); ok {
			token = t
		}
	}
	return parseIdentity(token, s.cfg.JWTSecretKey)
}

// parseIdentity validates an HS256 token and pulls the identity claims.
func parseIdentity(tokenStr, secret string) identity {
	if tokenStr == "" {
		return identity{}
	}
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return identity{}
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return identity{}
	}
	return identity{
		UserID: stringClaim(claims, "user_id"),
		Email:  stringClaim(claims, "email"),
		Role:   stringClaim(claims, "role"),
		Name:   stringClaim(claims, "name"),
	}
}

func stringClaim(claims jwt.MapClaims, key string) string {
	v, _ := claims[key].(string)
	return v
}

// mintToken signs an HS256 token for the given identity.
func mintToken(secret string, id identity, expiry time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": id.UserID,
		"email":   id.Email,
		"role":    id.Role,
		"name":    id.Name,
		"exp":     time.Now().Add(expiry).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
