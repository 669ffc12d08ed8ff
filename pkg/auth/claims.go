package auth

import "github.com/golang-jwt/jwt/v5"

// AdminTokenClaims is the JWT issued after a successful admin login. The
// jti doubles as the server-side session id.
type AdminTokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}
