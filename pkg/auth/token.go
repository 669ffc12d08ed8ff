package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/wdir-license-backend/pkg/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// MintAdminToken issues a signed JWT for the admin email using the configured
// session TTL. An empty jti is replaced with a fresh uuid.
func MintAdminToken(cfg config.JWTConfig, now time.Time, email, jti string) (string, *AdminTokenClaims, error) {
	if cfg.Secret == "" {
		return "", nil, fmt.Errorf("jwt secret is required")
	}
	if cfg.Issuer == "" {
		return "", nil, fmt.Errorf("jwt issuer is required")
	}
	ttl := cfg.SessionTTL()
	if ttl <= 0 {
		return "", nil, fmt.Errorf("admin session ttl must be positive")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", nil, fmt.Errorf("email is required")
	}

	jti = strings.TrimSpace(jti)
	if jti == "" {
		jti = uuid.NewString()
	}

	claims := &AdminTokenClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	}

	token := jwt.NewWithClaims(jwtSigningMethod, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", nil, fmt.Errorf("signing jwt: %w", err)
	}
	return signed, claims, nil
}

// ParseAdminToken validates signature, issuer and expiry and returns the claims.
func ParseAdminToken(cfg config.JWTConfig, tokenString string) (*AdminTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	claims := &AdminTokenClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		},
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" || claims.Email == "" {
		return nil, fmt.Errorf("token missing session claims")
	}

	return claims, nil
}
