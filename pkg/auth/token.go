package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid widget token")

// WidgetClaims are minted by the embedding application. The verifier only
// checks them; issuing sessions stays with the host.
type WidgetClaims struct {
	Reference string `json:"ref,omitempty"`
	jwt.RegisteredClaims
}

type TokenVerifier struct {
	secretKey []byte
}

func NewTokenVerifier(secretKey string) *TokenVerifier {
	return &TokenVerifier{secretKey: []byte(secretKey)}
}

func (v *TokenVerifier) Verify(tokenString string) (*WidgetClaims, error) {
	claims := &WidgetClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secretKey, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Issue signs a token the way the host application is expected to. It is
// used by operator tooling and tests.
func (v *TokenVerifier) Issue(subject, reference string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := WidgetClaims{
		Reference: reference,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secretKey)
}
