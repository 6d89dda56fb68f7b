package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the validity window of a session token.
const DefaultTokenTTL = time.Hour

var (
	// ErrTokenInvalid indicates a token with a bad signature or malformed claims.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired indicates a well-formed token whose expiry has passed.
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the signed payload of a session token.
type Claims struct {
	jwt.RegisteredClaims
	UserID                 string `json:"id"`
	Name                   string `json:"name"`
	Role                   string `json:"role"`
	ProfilePictureFileName string `json:"profilePictureFileName"`
}

// Token is a freshly signed session token.
type Token struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issuer signs and verifies session tokens with a process-wide HMAC secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// IssuerOption customises an Issuer.
type IssuerOption func(*Issuer)

// WithClock overrides the time source used for issuing and verifying tokens.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// NewIssuer constructs an Issuer. The secret must not be empty.
func NewIssuer(secret []byte, ttl time.Duration, opts ...IssuerOption) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: token secret must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	key := make([]byte, len(secret))
	copy(key, secret)

	issuer := &Issuer{secret: key, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(issuer)
	}
	return issuer, nil
}

// Issue signs a token embedding the identity's claims verbatim.
func (i *Issuer) Issue(identity Identity) (Token, error) {
	if strings.TrimSpace(identity.ID) == "" {
		return Token{}, errors.New("auth: identity id must be provided")
	}
	if !ValidRole(identity.Role) {
		return Token{}, fmt.Errorf("auth: unknown role %q", identity.Role)
	}

	issuedAt := i.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(i.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID:                 identity.ID,
		Name:                   identity.Name,
		Role:                   identity.Role,
		ProfilePictureFileName: identity.ProfilePicture,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}

	return Token{Value: signed, IssuedAt: issuedAt, ExpiresAt: expiresAt}, nil
}

// Verify checks the token signature and expiry and returns the embedded identity.
// Failures are either ErrTokenExpired or ErrTokenInvalid.
func (i *Issuer) Verify(value string) (Identity, error) {
	if strings.TrimSpace(value) == "" {
		return Identity{}, ErrTokenInvalid
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(value, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if claims.UserID == "" || !ValidRole(claims.Role) {
		return Identity{}, fmt.Errorf("%w: missing identity claims", ErrTokenInvalid)
	}

	return Identity{
		ID:             claims.UserID,
		Name:           claims.Name,
		Role:           claims.Role,
		ProfilePicture: claims.ProfilePictureFileName,
	}, nil
}
