package devtoken

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Params captures the claims required to mint a signed dev token for local and
// CI environments. All fields are provided by the caller; no environment
// variables are read so the builder stays deterministic for tooling.
type Params struct {
	UserID         string        // sub/uid (required)
	Email          string        // email claim (required)
	Name           string        // display name (optional)
	OrganizationID string        // organizationId claim (optional; personal scope when empty)
	ExpiresIn      time.Duration // relative expiry; default 1h if zero
	Issuer         string        // optional override; defaults to "leadpilot-dev"
}

// BuildSignedToken returns an HS256 JWT accepted by auth.NewHS256Verifier when
// signed with the same secret.
func BuildSignedToken(p Params, secret []byte, now time.Time) (string, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return "", errors.New("userID is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return "", errors.New("email is required")
	}
	if len(secret) == 0 {
		return "", errors.New("secret is required")
	}

	if now.IsZero() {
		now = time.Now().UTC()
	}

	expiresIn := p.ExpiresIn
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	issuer := p.Issuer
	if strings.TrimSpace(issuer) == "" {
		issuer = "leadpilot-dev"
	}

	claims := jwt.MapClaims{
		"iss":   issuer,
		"sub":   p.UserID,
		"uid":   p.UserID,
		"email": p.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(expiresIn).Unix(),
	}
	if p.Name != "" {
		claims["name"] = p.Name
	}
	if p.OrganizationID != "" {
		claims["organizationId"] = p.OrganizationID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
