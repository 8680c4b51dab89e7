package auth

import (
	"crypto/rsa"
	"errors"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Verifier validates bearer tokens and extracts the subject user id.
// Issuance lives elsewhere; this service only verifies.
type Verifier struct {
	method string
	secret []byte
	pub    *rsa.PublicKey
}

func NewHS256Verifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret required")
	}
	return &Verifier{method: "HS256", secret: []byte(secret)}, nil
}

func NewRS256Verifier(publicKeyPath string) (*Verifier, error) {
	b, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, err
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(b)
	if err != nil {
		return nil, err
	}
	return &Verifier{method: "RS256", pub: pub}, nil
}

// Verify returns the user id carried in the token's "sub" claim.
func (v *Verifier) Verify(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		switch v.method {
		case "RS256":
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, ErrInvalidToken
			}
			return v.pub, nil
		default:
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return v.secret, nil
		}
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}
