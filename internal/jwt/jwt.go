package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/oklog/ulid/v2"

	"github.com/smallbiznis/ifs-auth/internal/domain"
)

const minSecretLength = 32

var allowedAlgorithms = []gojose.SignatureAlgorithm{gojose.HS256}

// Claims is the verified content of an access or refresh token.
type Claims struct {
	UserID    int64
	RoleName  string
	TokenType domain.TokenType
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// privateClaims are the non-registered claim keys on the wire.
type privateClaims struct {
	UserID    int64            `json:"user_id"`
	RoleName  string           `json:"user_role"`
	TokenType domain.TokenType `json:"token_type"`
}

// Codec signs and verifies HS256 tokens with a server-held secret.
type Codec struct {
	secret     []byte
	signer     gojose.Signer
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec constructs a codec. The secret must be at least 32 bytes.
func NewCodec(secret string, accessTTL, refreshTTL time.Duration, opts ...Option) (*Codec, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes", minSecretLength)
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token ttl must be greater than zero")
	}

	key := []byte(secret)
	signer, err := gojose.NewSigner(gojose.SigningKey{Algorithm: gojose.HS256, Key: key}, (&gojose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return nil, fmt.Errorf("new signer: %w", err)
	}

	c := &Codec{
		secret:     key,
		signer:     signer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AccessTTL returns the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// IssueAccessToken signs a short-lived token that authenticates requests.
func (c *Codec) IssueAccessToken(user domain.User) (string, error) {
	return c.issue(user, domain.TokenTypeAccess, c.accessTTL)
}

// IssueRefreshToken signs a long-lived token that can only mint new pairs.
func (c *Codec) IssueRefreshToken(user domain.User) (string, error) {
	return c.issue(user, domain.TokenTypeRefresh, c.refreshTTL)
}

// IssuePair signs a fresh access and refresh token for the user.
func (c *Codec) IssuePair(user domain.User) (domain.TokenPair, error) {
	access, err := c.IssueAccessToken(user)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, err := c.IssueRefreshToken(user)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(c.accessTTL.Seconds()),
	}, nil
}

func (c *Codec) issue(user domain.User, tokenType domain.TokenType, ttl time.Duration) (string, error) {
	if user.ID == 0 {
		return "", fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}

	now := c.now().UTC()
	std := gojwt.Claims{
		ID:       ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		IssuedAt: gojwt.NewNumericDate(now),
		Expiry:   gojwt.NewNumericDate(now.Add(ttl)),
	}
	custom := privateClaims{
		UserID:    user.ID,
		RoleName:  user.RoleName,
		TokenType: tokenType,
	}

	token, err := gojwt.Signed(c.signer).Claims(std).Claims(custom).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize jwt: %w", err)
	}
	return token, nil
}

// Verify checks signature and expiry and returns the token's claims.
// Expired tokens fail with domain.ErrTokenExpired; anything else unverifiable
// fails with domain.ErrTokenInvalid.
func (c *Codec) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrTokenInvalid
	}

	parsed, err := gojwt.ParseSigned(token, allowedAlgorithms)
	if err != nil {
		return nil, fmt.Errorf("%w: parse: %v", domain.ErrTokenInvalid, err)
	}

	var std gojwt.Claims
	var custom privateClaims
	if err := parsed.Claims(c.secret, &std, &custom); err != nil {
		return nil, fmt.Errorf("%w: signature: %v", domain.ErrTokenInvalid, err)
	}

	if std.Expiry == nil {
		return nil, fmt.Errorf("%w: exp missing", domain.ErrTokenInvalid)
	}
	// A token is expired from its exp instant on, the same instant its
	// revocation entry lapses.
	now := c.now()
	if !now.Before(std.Expiry.Time()) {
		return nil, domain.ErrTokenExpired
	}
	if err := std.ValidateWithLeeway(gojwt.Expected{Time: now}, 0); err != nil {
		if errors.Is(err, gojwt.ErrExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}
	if custom.UserID == 0 {
		return nil, fmt.Errorf("%w: user_id missing", domain.ErrTokenInvalid)
	}
	if !custom.TokenType.Valid() {
		return nil, fmt.Errorf("%w: unknown token_type %q", domain.ErrTokenInvalid, custom.TokenType)
	}

	claims := &Claims{
		UserID:    custom.UserID,
		RoleName:  custom.RoleName,
		TokenType: custom.TokenType,
		ID:        std.ID,
		ExpiresAt: std.Expiry.Time().UTC(),
	}
	if std.IssuedAt != nil {
		claims.IssuedAt = std.IssuedAt.Time().UTC()
	}
	return claims, nil
}

// Fingerprint returns a short, non-reusable token prefix for logs. The
// signature segment is used because every token shares the same header.
func Fingerprint(token string) string {
	const size = 10
	if i := strings.LastIndexByte(token, '.'); i >= 0 {
		token = token[i+1:]
	}
	if len(token) > size {
		return token[:size]
	}
	return token
}
