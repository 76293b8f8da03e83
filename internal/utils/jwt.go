package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prperemyshlev/session-gateway/internal/domain"
)

// segmentParser only decodes segments; signatures are never checked here.
var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// DecodeToken structurally decodes the middle segment of a token.
// Both URL-safe and standard base64 alphabets are accepted, padded or not.
func DecodeToken(token string) (*domain.TokenPayload, error) {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: expected at least 2 segments, got %d", domain.ErrDecode, len(parts))
	}

	segment := strings.NewReplacer("+", "-", "/", "_").Replace(parts[1])
	raw, err := segmentParser.DecodeSegment(segment)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 payload: %v", domain.ErrDecode, err)
	}

	var claims jwt.MapClaims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, fmt.Errorf("%w: invalid json payload: %v", domain.ErrDecode, err)
	}
	if claims == nil {
		return nil, fmt.Errorf("%w: payload is not an object", domain.ErrDecode)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: invalid exp claim: %v", domain.ErrDecode, err)
	}

	payload := &domain.TokenPayload{
		Subject: LookupString(claims, domain.PayloadSubjects),
		Claims:  claims,
	}
	if exp != nil {
		expiresAt := exp.Time
		payload.ExpiresAt = &expiresAt
	}

	return payload, nil
}

// IsDecodeError reports whether err came from DecodeToken
func IsDecodeError(err error) bool {
	return errors.Is(err, domain.ErrDecode)
}
