// Package auth turns capability tokens into verified identities. Tokens are
// minted elsewhere; this side only checks them. A connection that fails here
// is rejected before a single intent is read.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hathor-music/syncd/internal/domain"
)

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and checks an HS256 capability token and returns the
// identity it grants. Any failure (bad signature, wrong method, expired,
// empty subject) comes back as a domain authentication error.
func (v *Verifier) Verify(token string) (domain.UserID, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return "", domain.Errf(domain.KindAuthentication, "invalid token")
	}
	if claims.Subject == "" {
		return "", domain.Errf(domain.KindAuthentication, "token has no subject")
	}
	return domain.UserID(claims.Subject), nil
}
