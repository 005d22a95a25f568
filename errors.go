package identity

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeSSONotConfigured      = "SSO_NOT_CONFIGURED"
	TextCodeTokenExpired          = "TOKEN_EXPIRED"
	TextCodeTokenInvalid          = "TOKEN_INVALID"
	TextCodeMissingRequiredClaims = "MISSING_REQUIRED_CLAIMS"
	TextCodeCodeExpired           = "CODE_EXPIRED"
	TextCodeCodeInvalid           = "CODE_INVALID"
	TextCodeAttemptsExhausted     = "ATTEMPTS_EXHAUSTED"
	TextCodeInvalidEmail          = "INVALID_EMAIL"
	TextCodeUserBanned            = "USER_BANNED"
)

// ErrSSONotConfigured is returned when a signed token arrives for an org with
// no secret on file. This is an operator misconfiguration, not end-user input;
// handlers should log it distinctly and must not treat it as anonymous success.
var ErrSSONotConfigured = goerrors.New("organization has no SSO secret configured", goerrors.CategoryOperation).
	WithTextCode(TextCodeSSONotConfigured).
	WithCode(goerrors.CodeConflict)

// ErrTokenExpired is returned when a signed token's expiry has passed.
var ErrTokenExpired = goerrors.New("identity token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenInvalid is returned for tampered, malformed, or wrongly signed tokens.
var ErrTokenInvalid = goerrors.New("identity token is invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrMissingRequiredClaims is returned when an otherwise valid token lacks the
// mandatory id and email claims.
var ErrMissingRequiredClaims = goerrors.New("identity token is missing required claims", goerrors.CategoryAuth).
	WithTextCode(TextCodeMissingRequiredClaims).
	WithCode(goerrors.CodeUnauthorized)

// ErrCodeExpired is returned when a magic-link challenge token has expired.
// The user must request a brand-new challenge.
var ErrCodeExpired = goerrors.New("verification code has expired, request a new one", goerrors.CategoryAuth).
	WithTextCode(TextCodeCodeExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidCode is returned for a wrong code while attempts remain.
var ErrInvalidCode = goerrors.New("verification code does not match", goerrors.CategoryBadInput).
	WithTextCode(TextCodeCodeInvalid).
	WithCode(goerrors.CodeBadRequest)

// ErrAttemptsExhausted is returned once the retry budget is spent. No further
// submissions are accepted for the challenge, even with the correct code.
var ErrAttemptsExhausted = goerrors.New("too many wrong codes, request a new one", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeAttemptsExhausted).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidEmailFormat is returned before any challenge is generated.
var ErrInvalidEmailFormat = goerrors.New("email address is not valid", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidEmail).
	WithCode(goerrors.CodeBadRequest)

// ErrUserBanned rejects actions from banned widget users.
var ErrUserBanned = goerrors.New("user is banned from this organization", goerrors.CategoryAuthz).
	WithTextCode(TextCodeUserBanned).
	WithCode(goerrors.CodeForbidden)

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// IsTokenExpiredError will check for expired identity tokens.
func IsTokenExpiredError(err error) bool {
	return hasTextCode(err, TextCodeTokenExpired)
}

// IsTokenInvalidError will check for tampered or malformed tokens.
func IsTokenInvalidError(err error) bool {
	return hasTextCode(err, TextCodeTokenInvalid)
}

// IsCodeExpiredError will check for expired magic-link challenges.
func IsCodeExpiredError(err error) bool {
	return hasTextCode(err, TextCodeCodeExpired)
}

// IsAttemptsExhaustedError will check for spent retry budgets.
func IsAttemptsExhaustedError(err error) bool {
	return hasTextCode(err, TextCodeAttemptsExhausted)
}

// IsUserBannedError will check for ban rejections.
func IsUserBannedError(err error) bool {
	return hasTextCode(err, TextCodeUserBanned)
}
