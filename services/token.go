package services

import (
	"time"

	"flowboard/model"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "flowboard"

// CreateAccessToken signs an HS256 access token for userID. Real tokens come
// from the auth service; this one is for local tooling and tests.
func CreateAccessToken(secret []byte, userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &model.AccessClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
