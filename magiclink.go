package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	challengeClaimType = "magic_link_verify"

	// DefaultChallengeTTL bounds the life of a magic-link challenge.
	DefaultChallengeTTL = 15 * time.Minute
	// DefaultMaxAttempts is the per-challenge wrong-code budget.
	DefaultMaxAttempts = 5
)

// challengeClaims carries the whole challenge state inside the signed token.
// Nothing is stored server side; failed attempts are re-signed into a fresh
// token with only the counter changed.
type challengeClaims struct {
	jwt.RegisteredClaims
	Type        string `json:"type"`
	Email       string `json:"email"`
	CodeHash    string `json:"code_hash"`
	Salt        string `json:"salt"`
	OrgSlug     string `json:"org_slug,omitempty"`
	OrgID       string `json:"org_id,omitempty"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
}

// withFailedAttempt is the challenge state transition for a wrong code.
// Everything is carried over verbatim, including iat and exp, so retries
// never extend the original challenge window.
func (c challengeClaims) withFailedAttempt() challengeClaims {
	c.Attempts++
	return c
}

func (c *challengeClaims) exhausted() bool {
	return c.Attempts >= c.MaxAttempts
}

// matches recomputes the digest for the submitted code. The comparison is
// constant time; code guessing must not leak through timing.
func (c *challengeClaims) matches(code string) bool {
	submitted := hashChallengeCode(code, c.Salt)
	return subtle.ConstantTimeCompare([]byte(submitted), []byte(c.CodeHash)) == 1
}

func hashChallengeCode(code, salt string) string {
	sum := sha256.Sum256([]byte(code + salt))
	return hex.EncodeToString(sum[:])
}

// ChallengeIssued is returned by Issue. The raw code travels by email only.
type ChallengeIssued struct {
	Token     string    `json:"verificationToken"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ChallengeRetry accompanies a failed verification that may be retried. The
// caller must round-trip Token on the next submission; the previous token
// still verifies cryptographically but carries a stale counter.
type ChallengeRetry struct {
	Token             string `json:"verificationToken"`
	AttemptsRemaining int    `json:"attemptsRemaining"`
}

// MagicLink issues and verifies six-digit email code challenges. Challenge
// tokens are signed with a service-level secret, not the org SSO secret, so
// the flow stays available as a fallback channel for every organization.
type MagicLink struct {
	tokens      TokenService
	secret      []byte
	mailer      EmailSender
	logger      Logger
	now         func() time.Time
	ttl         time.Duration
	maxAttempts int
}

// MagicLinkOption customizes challenge issuance.
type MagicLinkOption func(*MagicLink)

// WithChallengeClock injects a custom clock (useful for tests).
func WithChallengeClock(clock func() time.Time) MagicLinkOption {
	return func(m *MagicLink) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithChallengeTTL overrides the default 15 minute expiry.
func WithChallengeTTL(ttl time.Duration) MagicLinkOption {
	return func(m *MagicLink) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithChallengeMaxAttempts overrides the default wrong-code budget.
func WithChallengeMaxAttempts(max int) MagicLinkOption {
	return func(m *MagicLink) {
		if max > 0 {
			m.maxAttempts = max
		}
	}
}

// WithMagicLinkLogger overrides the default logger.
func WithMagicLinkLogger(logger Logger) MagicLinkOption {
	return func(m *MagicLink) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMagicLink creates the challenge issuer/verifier.
func NewMagicLink(tokens TokenService, secret []byte, mailer EmailSender, opts ...MagicLinkOption) *MagicLink {
	m := &MagicLink{
		tokens:      tokens,
		secret:      secret,
		mailer:      mailer,
		logger:      defLogger{},
		now:         time.Now,
		ttl:         DefaultChallengeTTL,
		maxAttempts: DefaultMaxAttempts,
	}
	if m.tokens == nil {
		m.tokens = NewTokenService(m.logger)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Issue validates the email shape, generates a fresh challenge, emails the
// raw code, and returns the signed token carrying the challenge state.
func (m *MagicLink) Issue(ctx context.Context, email, orgSlug string, orgID uuid.UUID) (*ChallengeIssued, error) {
	email = strings.TrimSpace(email)
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return nil, ErrInvalidEmailFormat
	}

	code, err := randomChallengeCode()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate challenge code")
	}

	salt, err := randomChallengeSalt()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate challenge salt")
	}

	now := m.now()
	claims := challengeClaims{
		RegisteredClaims: NewTimedClaims(now, m.ttl),
		Type:             challengeClaimType,
		Email:            email,
		CodeHash:         hashChallengeCode(code, salt),
		Salt:             salt,
		OrgSlug:          orgSlug,
		Attempts:         0,
		MaxAttempts:      m.maxAttempts,
	}
	if orgID != uuid.Nil {
		claims.OrgID = orgID.String()
	}

	token, err := m.tokens.Sign(claims, m.secret)
	if err != nil {
		return nil, err
	}

	if err := m.mailer.Send(ctx, email, "Your verification code", challengeEmailBody(code, orgSlug)); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to deliver verification code")
	}

	return &ChallengeIssued{
		Token:     token,
		Email:     email,
		ExpiresAt: now.Add(m.ttl),
	}, nil
}

// Verify consumes a challenge submission. On a wrong code with budget left it
// returns ErrInvalidCode plus a ChallengeRetry holding the re-signed token;
// the wrong attempt that spends the last slot returns ErrAttemptsExhausted
// together with the exhausted token, so subsequent submissions (correct code
// included) stay rejected.
func (m *MagicLink) Verify(tokenString, code string) (ResolvedIdentity, *ChallengeRetry, error) {
	guest := ResolvedIdentity{Source: SourceGuest}

	claims := &challengeClaims{}
	if err := m.tokens.Verify(tokenString, m.secret, claims); err != nil {
		if IsTokenExpiredError(err) {
			return guest, nil, ErrCodeExpired
		}
		return guest, nil, err
	}

	if claims.Type != challengeClaimType {
		return guest, nil, ErrTokenInvalid
	}

	if claims.exhausted() {
		return guest, nil, ErrAttemptsExhausted
	}

	if !claims.matches(code) {
		next := claims.withFailedAttempt()
		retryToken, err := m.tokens.Sign(next, m.secret)
		if err != nil {
			return guest, nil, err
		}

		retry := &ChallengeRetry{
			Token:             retryToken,
			AttemptsRemaining: next.MaxAttempts - next.Attempts,
		}

		if next.exhausted() {
			return guest, retry, ErrAttemptsExhausted
		}
		return guest, retry, ErrInvalidCode.WithMetadata(map[string]any{
			"attempts_remaining": retry.AttemptsRemaining,
		})
	}

	return ResolvedIdentity{
		User:   &IdentifiedUser{Email: claims.Email},
		Source: SourceMagicLink,
	}, nil, nil
}

// randomChallengeCode draws uniformly from 100000-999999.
func randomChallengeCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", n.Int64()+100000), nil
}

func randomChallengeSalt() (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	return hex.EncodeToString(salt), nil
}

func challengeEmailBody(code, orgSlug string) string {
	heading := "Confirm your email"
	if orgSlug != "" {
		heading = fmt.Sprintf("Confirm your email for %s", orgSlug)
	}
	return fmt.Sprintf(
		"<h2>%s</h2><p>Your verification code is:</p><p><strong style=\"font-size:24px;letter-spacing:4px;\">%s</strong></p><p>The code expires in 15 minutes. If you did not request it you can ignore this email.</p>",
		heading, code,
	)
}
