// Package auth issues, verifies and revokes JWT access/refresh token pairs.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"classifieds/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// Issuer is the iss claim of every token.
	Issuer = "classifieds-api"
	// Audience is the aud claim of every token.
	Audience = "classifieds-client"

	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	revokedKeyPrefix = "blacklist:"
)

var (
	// ErrInvalidToken covers malformed, expired, mis-signed or wrong-type tokens.
	ErrInvalidToken = errors.New("token is invalid or expired")
	// ErrRevokedToken is returned for tokens whose jti was revoked.
	ErrRevokedToken = errors.New("token has been revoked")
)

// Claims is the payload of both token types.
type Claims struct {
	Username  string `json:"username"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return uint(id), nil
}

// TokenPair is returned on register, login and refresh.
type TokenPair struct {
	Refresh string `json:"refresh"`
	Access  string `json:"access"`
}

// TokenIssuer signs tokens with HS256 and tracks revoked refresh tokens in Redis.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	rdb        *redis.Client
	now        func() time.Time
}

// NewTokenIssuer returns an issuer. rdb may be nil, in which case revocation is not persisted.
func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration, rdb *redis.Client) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		rdb:        rdb,
		now:        time.Now,
	}
}

// IssuePair creates a fresh access and refresh token for user.
func (i *TokenIssuer) IssuePair(user *models.User) (*TokenPair, error) {
	access, err := i.sign(user, TokenTypeAccess, i.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := i.sign(user, TokenTypeRefresh, i.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Refresh: refresh, Access: access}, nil
}

// IssueAccess creates an access token only.
func (i *TokenIssuer) IssueAccess(user *models.User) (string, error) {
	return i.sign(user, TokenTypeAccess, i.accessTTL)
}

func (i *TokenIssuer) sign(user *models.User, tokenType string, ttl time.Duration) (string, error) {
	if len(i.secret) == 0 {
		return "", fmt.Errorf("JWT secret not configured")
	}

	now := i.now()
	claims := Claims{
		Username:  user.Username,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Parse verifies signature, issuer, audience, expiry and token type, then checks revocation.
func (i *TokenIssuer) Parse(ctx context.Context, tokenString, wantType string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(_ *jwt.Token) (interface{}, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != wantType {
		return nil, ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}

	revoked, err := i.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrRevokedToken
	}
	return claims, nil
}

// Revoke blacklists the token's jti until it would have expired anyway.
func (i *TokenIssuer) Revoke(ctx context.Context, claims *Claims) error {
	if i.rdb == nil || claims.ID == "" {
		return nil
	}
	ttl := claims.ExpiresAt.Sub(i.now())
	if ttl <= 0 {
		return nil
	}
	if err := i.rdb.Set(ctx, revokedKeyPrefix+claims.ID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether jti has been revoked. Without Redis nothing is revoked.
func (i *TokenIssuer) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if i.rdb == nil || jti == "" {
		return false, nil
	}
	n, err := i.rdb.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("check token revocation: %w", err)
	}
	return n > 0, nil
}
