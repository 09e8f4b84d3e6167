package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidInvite is returned for any token that fails verification
var ErrInvalidInvite = errors.New("invalid invitation token")

const inviteIssuer = "memberdir"

// inviteClaims carries a registration code inside a signed invitation link
type inviteClaims struct {
	Code string `json:"code"`
	jwt.RegisteredClaims
}

// InviteSigner issues and verifies HS256 invitation tokens.
// The token only carries the code; the code store still decides validity.
type InviteSigner struct {
	secret []byte
}

func NewInviteSigner(secret string) *InviteSigner {
	return &InviteSigner{secret: []byte(secret)}
}

// Sign returns a token for code. A zero expiresAt yields a token without expiry.
func (s *InviteSigner) Sign(code string, expiresAt time.Time) (string, error) {
	claims := inviteClaims{
		Code: code,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   inviteIssuer,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if !expiresAt.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign invitation: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry and returns the embedded code
func (s *InviteSigner) Verify(tokenString string) (string, error) {
	claims := &inviteClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(inviteIssuer),
	)
	if err != nil || claims.Code == "" {
		return "", ErrInvalidInvite
	}
	return claims.Code, nil
}
