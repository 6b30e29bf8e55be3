package auth // package auth provides password hashing and JWT issuing/verification

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stratboard/strategy-api/internal/model"
)

// Sentinel errors returned by the Verify* methods.  Callers must branch on
// which occurred: an expired token should prompt the client to refresh,
// while an invalid one is rejected outright.
var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// AccessClaims is the payload of an access token.  Besides the registered
// claims it carries enough identity for handlers to authorize most requests
// without a user lookup.
type AccessClaims struct {
	Email         string `json:"email"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token.  It deliberately carries
// nothing beyond the registered claims: the subject is the user ID and the
// account is re-loaded from the database on every refresh.
type RefreshClaims struct {
	jwt.RegisteredClaims
}

// UserID parses the subject claim back into a numeric user ID.
func (c *RefreshClaims) UserID() (uint64, error) {
	return strconv.ParseUint(c.Subject, 10, 64)
}

// UserID parses the subject claim back into a numeric user ID.
func (c *AccessClaims) UserID() (uint64, error) {
	return strconv.ParseUint(c.Subject, 10, 64)
}

// TokenPair bundles the two tokens returned by login, register and refresh.
// ExpiresIn is the access token lifetime in seconds, for clients that
// schedule their refresh calls.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Issuer mints and verifies token pairs.  Access and refresh tokens are
// signed with distinct HS256 secrets so that compromise of one key does not
// compromise the other.  There is no server-side revocation: tokens are
// stateless bearer credentials valid until their own expiry.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	audience      string
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewIssuer constructs an Issuer.  Both secrets must be non-empty and
// distinct; configuration loading enforces presence, distinctness is on the
// operator.
func NewIssuer(accessSecret, refreshSecret, issuer, audience string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		issuer:        issuer,
		audience:      audience,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// IssuePair mints a fresh access/refresh pair for the user.
func (i *Issuer) IssuePair(u *model.User) (TokenPair, error) {
	now := time.Now().UTC()
	sub := strconv.FormatUint(u.ID, 10)

	access := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		Email:         u.Email,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
	})
	signedAccess, err := access.SignedString(i.accessSecret)
	if err != nil {
		return TokenPair{}, err
	}

	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.refreshTTL)),
		},
	})
	signedRefresh, err := refresh.SignedString(i.refreshSecret)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  signedAccess,
		RefreshToken: signedRefresh,
		ExpiresIn:    int64(i.accessTTL.Seconds()),
	}, nil
}

// VerifyAccess validates an access token and returns its claims.  The error
// is ErrTokenExpired for an otherwise well-formed but stale token and
// ErrTokenInvalid for anything else (bad signature, wrong issuer/audience,
// malformed input).
func (i *Issuer) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := i.parse(token, claims, i.accessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefresh validates a refresh token and returns its claims.  Error
// semantics match VerifyAccess.
func (i *Issuer) VerifyRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := i.parse(token, claims, i.refreshSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

func (i *Issuer) parse(token string, claims jwt.Claims, secret []byte) error {
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	if !parsed.Valid {
		return ErrTokenInvalid
	}
	return nil
}

// HashResetToken returns the SHA-256 hash of a raw reset token as a hex
// string.  Only the hash is stored, so a leaked database dump cannot be
// used to complete a password reset.
func HashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
