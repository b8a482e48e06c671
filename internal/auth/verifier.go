// Package auth verifies bearer JWTs issued by the external identity
// provider against its JWKS endpoint and validates issuer and audience.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const defaultLeeway = 30 * time.Second

// Claims contains the verified token details the app cares about.
type Claims struct {
	Subject   string
	Email     string
	Name      string
	ExpiresAt time.Time
	Raw       map[string]any
}

// Verifier validates JWT access tokens against a JWKS endpoint.
type Verifier struct {
	issuer   string
	audience string
	keyfunc  keyfunc.Keyfunc
	parser   *jwt.Parser
}

// NewVerifier builds a verifier. jwksURL may be empty, in which case the
// standard well-known path under the issuer is used.
func NewVerifier(issuer, audience, jwksURL string) (*Verifier, error) {
	issuer = normalizeIssuer(issuer)
	if issuer == "" {
		return nil, errors.New("issuer must be set")
	}
	if audience == "" {
		return nil, errors.New("audience must be set")
	}
	if jwksURL == "" {
		jwksURL = issuer + ".well-known/jwks.json"
	}

	keyProvider, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("init jwks keyfunc: %w", err)
	}

	parser := jwt.NewParser(
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithLeeway(defaultLeeway),
		jwt.WithValidMethods([]string{
			jwt.SigningMethodRS256.Name,
			jwt.SigningMethodRS384.Name,
			jwt.SigningMethodRS512.Name,
		}),
	)

	return &Verifier{
		issuer:   issuer,
		audience: audience,
		keyfunc:  keyProvider,
		parser:   parser,
	}, nil
}

// Verify parses and validates a JWT, returning extracted claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := v.parser.Parse(tokenString, v.keyfunc.Keyfunc)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	claims := &Claims{
		Subject:   readString(mapClaims, "sub"),
		Email:     readString(mapClaims, "email"),
		Name:      readString(mapClaims, "name"),
		ExpiresAt: readExpiry(mapClaims["exp"]),
		Raw:       mapClaims,
	}
	if claims.Subject == "" {
		return nil, errors.New("token missing sub")
	}
	return claims, nil
}

// normalizeIssuer ensures a trailing slash so the JWKS path concatenates
// cleanly, matching how the provider formats the iss claim.
func normalizeIssuer(issuer string) string {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return ""
	}
	if !strings.HasSuffix(issuer, "/") {
		issuer += "/"
	}
	return issuer
}

func readString(claims map[string]any, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

func readExpiry(v any) time.Time {
	switch exp := v.(type) {
	case float64:
		return time.Unix(int64(exp), 0)
	case int64:
		return time.Unix(exp, 0)
	}
	return time.Time{}
}
