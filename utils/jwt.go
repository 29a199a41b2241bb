package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"time"

	"guardget/config"

	"github.com/golang-jwt/jwt"
)

// Secret resolves the HMAC key. Config wins over the raw environment.
func Secret() []byte {
	if config.AppConfig.JWTSecret != "" {
		return []byte(config.AppConfig.JWTSecret)
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		return []byte(secret)
	}
	return []byte("guardget-dev-secret")
}

type bearerClaims struct {
	Email string `json:"email"`
	jwt.StandardClaims
}

var bearerParser = &jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}}

// GenerateToken signs a bearer token for a user that expires after duration.
func GenerateToken(userID, email string, duration time.Duration) (string, error) {
	now := time.Now()
	claims := bearerClaims{
		Email: email,
		StandardClaims: jwt.StandardClaims{
			Subject:   userID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(duration).Unix(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(Secret())
}

// HashToken is the at-rest form of a bearer token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ExtractIDFromToken checks signature and expiry and returns the user id.
func ExtractIDFromToken(tokenString string) (string, error) {
	claims := &bearerClaims{}
	token, err := bearerParser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return Secret(), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("token does not contain a valid 'sub' claim")
	}
	return claims.Subject, nil
}
