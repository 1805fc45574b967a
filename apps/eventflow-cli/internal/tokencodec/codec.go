// Package tokencodec reads the claims of a bearer token without verifying it.
// Claims are advisory and only drive client-side decisions; the server checks
// the signature on every request.
package tokencodec

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/domain"
)

// Codec decodes token claims
type Codec struct {
	parser *jwt.Parser
}

// New creates a Codec
func New() *Codec {
	return &Codec{parser: jwt.NewParser()}
}

// Decode extracts the claims of token. Any malformed input, or a payload
// without exp or sub, yields an error wrapping domain.ErrDecodeFailure.
func (c *Codec) Decode(token string) (*domain.Claims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", domain.ErrDecodeFailure)
	}

	mc := jwt.MapClaims{}
	if _, _, err := c.parser.ParseUnverified(token, mc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecodeFailure, err)
	}

	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: missing exp claim", domain.ErrDecodeFailure)
	}
	sub, err := mc.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing sub claim", domain.ErrDecodeFailure)
	}

	claims := &domain.Claims{
		Subject:   sub,
		UserID:    stringClaim(mc, "userId"),
		Email:     stringClaim(mc, "email"),
		Role:      domain.Role(strings.ToUpper(stringClaim(mc, "role"))),
		ExpiresAt: exp.Time,
	}
	if claims.UserID == "" {
		claims.UserID = sub
	}
	return claims, nil
}

// stringClaim returns a claim as a string; numeric ids are formatted
func stringClaim(mc jwt.MapClaims, key string) string {
	switch v := mc[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

var defaultCodec = New()

// Decode decodes token with the default codec
func Decode(token string) (*domain.Claims, error) {
	return defaultCodec.Decode(token)
}
