package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/strefethen/metalookup-go/internal/config"
)

const (
	tokenIssuer   = "metalookup"
	tokenAudience = "metalookup-client"
	clockSkew     = 5 * time.Second
)

// TokenType describes the token's purpose. Only access tokens are issued.
type TokenType string

const TokenTypeAccess TokenType = "access"

// TokenPayload is what a verified token says about its holder. ID is the jti
// claim, unique per minted token.
type TokenPayload struct {
	ID         string
	Sub        string
	ClientName string
	Type       TokenType
}

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenClaims  = errors.New("token subject and client name are required")
)

type tokenClaims struct {
	ClientName string    `json:"clientName"`
	Type       TokenType `json:"type"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies HS256 access tokens for a single secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

func NewIssuer(cfg config.Config) *Issuer {
	i := &Issuer{
		secret: []byte(cfg.JWTSecret),
		ttl:    time.Duration(cfg.JWTAccessTokenExpirySec) * time.Second,
		now:    time.Now,
	}
	i.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithAudience(tokenAudience),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(func() time.Time { return i.now() }),
	)
	return i
}

// Mint signs a token for payload and returns it with its lifetime in seconds.
func (i *Issuer) Mint(payload TokenPayload) (string, int, error) {
	if payload.Sub == "" || payload.ClientName == "" {
		return "", 0, ErrTokenClaims
	}

	issuedAt := i.now()
	claims := tokenClaims{
		ClientName: payload.ClientName,
		Type:       TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   payload.Sub,
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", 0, err
	}
	return signed, int(i.ttl / time.Second), nil
}

// Verify checks signature, issuer, audience and expiry, and returns the payload.
func (i *Issuer) Verify(token string) (TokenPayload, error) {
	claims := &tokenClaims{}
	_, err := i.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return TokenPayload{}, ErrTokenExpired
	case err != nil:
		return TokenPayload{}, ErrTokenInvalid
	}

	if claims.Subject == "" || claims.ClientName == "" || claims.Type != TokenTypeAccess {
		return TokenPayload{}, ErrTokenInvalid
	}
	return TokenPayload{
		ID:         claims.ID,
		Sub:        claims.Subject,
		ClientName: claims.ClientName,
		Type:       claims.Type,
	}, nil
}

// GenerateAccessToken mints a single token with cfg's secret.
func GenerateAccessToken(cfg config.Config, payload TokenPayload) (string, int, error) {
	return NewIssuer(cfg).Mint(payload)
}

// VerifyToken verifies a single token with cfg's secret.
func VerifyToken(cfg config.Config, token string) (TokenPayload, error) {
	return NewIssuer(cfg).Verify(token)
}
