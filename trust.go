package identity

import "strings"

// TrustSource identifies how an end-user identity was established. It is the
// single canonical union; legacy synonyms are folded in at the boundary by
// NormalizeTrustSource and must never reach persistence.
type TrustSource string

const (
	// SourceGuest is an anonymous interaction; guests have no directory record.
	SourceGuest TrustSource = "guest"
	// SourceIdentified is a trust-mode assertion, accepted without verification.
	SourceIdentified TrustSource = "identified"
	// SourceSocialGoogle is a profile obtained through Google sign-in.
	SourceSocialGoogle TrustSource = "social_google"
	// SourceSocialGitHub is a profile obtained through GitHub sign-in.
	SourceSocialGitHub TrustSource = "social_github"
	// SourceMagicLink is an email ownership proof via the code challenge.
	SourceMagicLink TrustSource = "magic_link"
	// SourceVerifiedJWT is a profile carried in a token signed with the org secret.
	SourceVerifiedJWT TrustSource = "verified_jwt"
)

// legacySourceVerifiedSSO is the historical synonym some callers still report.
const legacySourceVerifiedSSO = "verified_sso"

var trustRanks = map[TrustSource]int{
	SourceGuest:        1,
	SourceIdentified:   2,
	SourceSocialGoogle: 3,
	SourceSocialGitHub: 3,
	SourceMagicLink:    3,
	SourceVerifiedJWT:  4,
}

// IsValid checks if the source is one of the canonical values.
func (s TrustSource) IsValid() bool {
	_, ok := trustRanks[s]
	return ok
}

// Rank returns the source position in the fixed trust order. Unknown
// sources rank below guest so they can never displace a stored value.
func (s TrustSource) Rank() int {
	return trustRanks[s]
}

// AtLeast reports whether s ranks at or above other.
func (s TrustSource) AtLeast(other TrustSource) bool {
	return s.Rank() >= other.Rank()
}

// NormalizeTrustSource folds raw caller input into the canonical union.
// The legacy "verified_sso" synonym maps to SourceVerifiedJWT; anything
// unrecognized degrades to SourceGuest.
func NormalizeTrustSource(raw string) TrustSource {
	source := TrustSource(strings.ToLower(strings.TrimSpace(raw)))
	if source == legacySourceVerifiedSSO {
		return SourceVerifiedJWT
	}
	if source.IsValid() {
		return source
	}
	return SourceGuest
}

// UpgradeTrustSource applies the monotonic merge policy: the incoming source
// replaces current only when strictly higher ranked. Ties and downgrades
// keep the stored value.
func UpgradeTrustSource(current, incoming TrustSource) TrustSource {
	if incoming.Rank() > current.Rank() {
		return incoming
	}
	return current
}
