package session

import (
	"errors"
	"fmt"
	"strings"

	jwt "github.com/dgrijalva/jwt-go"
	"github.com/jonboulle/clockwork"
)

var (
	ErrInvalidToken      = errors.New("invalid identity token")
	ErrMissingSigningKey = errors.New("session signing key is required")
)

// IdentityClaims are the claims read from an identity-provider token.
type IdentityClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.StandardClaims
}

// Identity is the verified user behind a token.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// Authenticator turns an identity token into a verified Identity.
type Authenticator interface {
	Verify(idToken string) (Identity, error)
}

// Verifier checks HS256 identity tokens signed with a shared secret. Time-based
// claims are checked against the injected clock rather than jwt-go's global.
type Verifier struct {
	key      []byte
	issuer   string
	audience string
	clock    clockwork.Clock
	parser   *jwt.Parser
}

// NewVerifier creates a Verifier. Empty issuer or audience disables that check.
func NewVerifier(signingKey, issuer, audience string, clock clockwork.Clock) (*Verifier, error) {
	if strings.TrimSpace(signingKey) == "" {
		return nil, ErrMissingSigningKey
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Verifier{
		key:      []byte(signingKey),
		issuer:   issuer,
		audience: audience,
		clock:    clock,
		parser: &jwt.Parser{
			ValidMethods:         []string{jwt.SigningMethodHS256.Alg()},
			SkipClaimsValidation: true,
		},
	}, nil
}

// Verify checks an HS256 id token's signature and its time, issuer, audience and
// subject claims, and returns the identity it names. Every failure wraps ErrInvalidToken.
func (v *Verifier) Verify(idToken string) (Identity, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return Identity{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	token, err := v.parser.ParseWithClaims(idToken, &IdentityClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.key, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*IdentityClaims)
	if !ok || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	now := v.clock.Now().Unix()
	switch {
	case !claims.VerifyExpiresAt(now, true):
		return Identity{}, fmt.Errorf("%w: token expired or missing exp", ErrInvalidToken)
	case !claims.VerifyNotBefore(now, false):
		return Identity{}, fmt.Errorf("%w: token not valid yet", ErrInvalidToken)
	case !claims.VerifyIssuedAt(now, false):
		return Identity{}, fmt.Errorf("%w: token issued in the future", ErrInvalidToken)
	case v.issuer != "" && !claims.VerifyIssuer(v.issuer, true):
		return Identity{}, fmt.Errorf("%w: unexpected issuer", ErrInvalidToken)
	case v.audience != "" && !claims.VerifyAudience(v.audience, true):
		return Identity{}, fmt.Errorf("%w: unexpected audience", ErrInvalidToken)
	case claims.Subject == "":
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
		Name:   strings.TrimSpace(claims.Name),
	}, nil
}
