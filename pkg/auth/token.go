package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/tableside-backend/pkg/config"
)

var signingMethod = jwt.SigningMethodHS256

// AccessTokenPayload is what a caller supplies to mint a token. JTI keys the
// refresh session and is generated when empty.
type AccessTokenPayload struct {
	UserID      uuid.UUID
	DisplayName string
	JTI         string
}

// AccessTokenClaims is the decoded form of an access token.
type AccessTokenClaims struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	jwt.RegisteredClaims
}

// clockSkew tolerated on exp/iat between API instances.
const clockSkew = 5 * time.Second

var (
	errSecretRequired = errors.New("jwt secret is required")
	errIssuerRequired = errors.New("jwt issuer is required")
)

// MintAccessToken signs an HS256 access token valid for cfg.ExpirationMinutes from now.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", errSecretRequired
	case cfg.Issuer == "":
		return "", errIssuerRequired
	case cfg.ExpirationMinutes <= 0:
		return "", errors.New("jwt expiration minutes must be positive")
	case payload.UserID == uuid.Nil:
		return "", errors.New("user id is required")
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	claims := AccessTokenClaims{
		UserID:      payload.UserID,
		DisplayName: payload.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)),
		},
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	return parse(cfg, raw, jwt.WithExpirationRequired(), jwt.WithLeeway(clockSkew))
}

// ParseAccessTokenAllowExpired verifies the signature and issuer only. Refresh
// uses it to recover the session id from an expired token.
func ParseAccessTokenAllowExpired(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	claims, err := parse(cfg, raw, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, err
	}
	if claims.Issuer != cfg.Issuer {
		return nil, jwt.ErrTokenInvalidIssuer
	}
	return claims, nil
}

func parse(cfg config.JWTConfig, raw string, opts ...jwt.ParserOption) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, errSecretRequired
	}
	opts = append(opts,
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
	)

	claims := &AccessTokenClaims{}
	_, err := jwt.NewParser(opts...).ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing user_id", jwt.ErrTokenInvalidClaims)
	}
	return claims, nil
}
