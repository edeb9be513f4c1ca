package model

import "github.com/golang-jwt/jwt/v5"

// AccessClaims are the claims carried by access tokens issued by the auth
// service. Only UserID is relied on.
type AccessClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}
