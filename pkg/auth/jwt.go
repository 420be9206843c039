package auth

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chatline/pkg/model"
)

func signingKey() []byte {
	if k := os.Getenv("JWT_SECRET"); k != "" {
		return []byte(k)
	}
	return []byte("chatline_dev_secret")
}

// Claims carries the full sender identity so services and the client can
// resolve uid, display name, and email from the token alone.
type Claims struct {
	UID   string `json:"uid"`
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Identity converts the claims into the shared sender identity shape.
func (c *Claims) Identity() model.Sender {
	return model.Sender{UID: c.UID, Name: c.Name, Email: c.Email}
}

type contextKey string

const UserKey contextKey = "user"

// GenerateToken creates a JWT for the given identity, valid for 24 hours.
func GenerateToken(identity model.Sender) (string, error) {
	expirationTime := time.Now().Add(24 * time.Hour)
	claims := &Claims{
		UID:   identity.UID,
		Name:  identity.Name,
		Email: identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(signingKey())
}

// ValidateToken parses and validates a JWT token.
func ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return signingKey(), nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}
