package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"dropstack/internal/config"
)

// OwnerLocalKey is the fiber locals key holding the authenticated owner identity.
const OwnerLocalKey = "owner_id"

var ErrUnauthenticated = errors.New("unauthenticated")

// Verifier validates bearer tokens and extracts the owner identity from the subject claim.
type Verifier struct {
	keyfunc jwt.Keyfunc
	parser  *jwt.Parser
}

// NewVerifier builds a verifier from cfg. A JWKS URL takes precedence over the shared secret.
func NewVerifier(ctx context.Context, cfg config.AuthConfig) (*Verifier, error) {
	switch {
	case cfg.JWKSURL != "":
		jwks, err := keyfunc.NewDefaultCtx(ctx, []string{cfg.JWKSURL})
		if err != nil {
			return nil, fmt.Errorf("create JWKS client: %w", err)
		}
		return newVerifier(jwks.Keyfunc, cfg.Issuer, "RS256", "ES256"), nil
	case cfg.JWTSecret != "":
		return NewHMACVerifier([]byte(cfg.JWTSecret), cfg.Issuer), nil
	default:
		return nil, errors.New("either JWT_JWKS_URL or JWT_SECRET is required")
	}
}

// NewHMACVerifier accepts HS256/384/512 tokens signed with secret.
func NewHMACVerifier(secret []byte, issuer string) *Verifier {
	kf := func(*jwt.Token) (any, error) { return secret, nil }
	return newVerifier(kf, issuer, "HS256", "HS384", "HS512")
}

func newVerifier(kf jwt.Keyfunc, issuer string, methods ...string) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Verifier{keyfunc: kf, parser: jwt.NewParser(opts...)}
}

// Verify returns the token's subject.
func (v *Verifier) Verify(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	token, err := v.parser.ParseWithClaims(raw, &claims, v.keyfunc)
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", fmt.Errorf("%w: missing subject", ErrUnauthenticated)
	}
	return claims.Subject, nil
}

// Auth rejects requests without a valid bearer token and stores the subject under OwnerLocalKey.
func Auth(v *Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		h := c.Get(fiber.HeaderAuthorization)
		scheme, raw, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}
		owner, err := v.Verify(strings.TrimSpace(raw))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}
		c.Locals(OwnerLocalKey, owner)
		return c.Next()
	}
}

// OwnerFromCtx returns the owner identity stored by Auth.
func OwnerFromCtx(c *fiber.Ctx) (string, bool) {
	owner, ok := c.Locals(OwnerLocalKey).(string)
	return owner, ok && owner != ""
}
