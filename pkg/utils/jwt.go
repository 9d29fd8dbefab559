package utils

import (
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type OpsClaims struct {
	Subject string `json:"sub_name"`
	jwt.RegisteredClaims
}

// GenerateToken mints an HS256 ops token for the status API.
func GenerateToken(secretKey, subject string, tokenDuration time.Duration) (string, error) {
	claims := OpsClaims{
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "postflow",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(secretKey))
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	return signedToken, nil
}

func ValidateToken(secretKey, tokenString string) (*OpsClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &OpsClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid token signing method")
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	if claims, ok := token.Claims.(*OpsClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
