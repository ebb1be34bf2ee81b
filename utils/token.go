package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/princinho/agrorfq/models"
)

// Claims mirrors the access token issued by the identity service.
type Claims struct {
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	IsVerified bool   `json:"is_verified"`
	jwt.RegisteredClaims
}

func (c *Claims) Caller() models.Caller {
	return models.Caller{
		ID:         c.UserID,
		Username:   c.Username,
		Email:      c.Email,
		Role:       models.Role(c.Role),
		IsVerified: c.IsVerified,
	}
}

// GenerateAccessToken signs an HS256 token for caller. The identity service
// owns token issuance in production; this is used by tests and local tooling.
func GenerateAccessToken(caller models.Caller, secret string, accessTTL time.Duration) (string, error) {
	claims := Claims{
		UserID:     caller.ID,
		Username:   caller.Username,
		Email:      caller.Email,
		Role:       string(caller.Role),
		IsVerified: caller.IsVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateToken(tokenStr string, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user id")
	}
	return claims, nil
}
