package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// TokenService signs and verifies the compact HMAC tokens used for both
// org-signed identity assertions and magic-link challenges. Secrets are
// org-scoped and supplied per call; they are never logged.
type TokenService interface {
	Sign(claims jwt.Claims, secret []byte) (string, error)
	Verify(tokenString string, secret []byte, into jwt.Claims) error
}

type tokenService struct {
	logger Logger
}

// NewTokenService creates the default HS256 token service.
func NewTokenService(logger Logger) TokenService {
	if logger == nil {
		logger = defLogger{}
	}
	return &tokenService{logger: logger}
}

// Sign produces a signed token for the given claims. Expiry is part of the
// claims themselves; see NewTimedClaims.
func (ts *tokenService) Sign(claims jwt.Claims, secret []byte) (string, error) {
	if claims == nil {
		return "", goerrors.New("claims must not be nil", goerrors.CategoryInternal)
	}
	if len(secret) == 0 {
		return "", goerrors.New("signing secret must not be empty", goerrors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(secret)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign token")
	}

	return signedString, nil
}

// Verify parses a token into the provided claims value. The signing method is
// pinned to HS256; a method embedded in the token header is never trusted.
// Expired tokens fail with ErrTokenExpired, everything else with
// ErrTokenInvalid, so callers can give different user-facing messages.
func (ts *tokenService) Verify(tokenString string, secret []byte, into jwt.Claims) error {
	if len(secret) == 0 {
		return goerrors.New("verification secret must not be empty", goerrors.CategoryInternal)
	}

	token, err := jwt.ParseWithClaims(tokenString, into, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService verify encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, ErrTokenInvalid
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}

	if !token.Valid {
		return ErrTokenInvalid
	}

	return nil
}

// NewTimedClaims stamps issuance and expiry for a token minted now.
func NewTimedClaims(now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}
