package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TrustMode is the org-level identity policy.
type TrustMode = string

const (
	// ModeGuestOnly accepts anonymous interactions only.
	ModeGuestOnly TrustMode = "guest_only"
	// ModeTrust accepts unverified caller-supplied profiles (low security, easy setup).
	ModeTrust TrustMode = "trust"
	// ModeJWTRequired requires actions to carry a token signed with the org secret.
	ModeJWTRequired TrustMode = "jwt_required"
)

// OrgTrustConfig is the per-organization identity configuration. It is read
// on every inbound action and mutated only by org owners.
type OrgTrustConfig struct {
	bun.BaseModel       `bun:"table:org_trust_configs,alias:otc"`
	ID                  uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	OrgID               uuid.UUID  `bun:"org_id,notnull,unique,type:uuid" json:"org_id,omitempty"`
	OrgSlug             string     `bun:"org_slug,notnull" json:"org_slug,omitempty"`
	Mode                TrustMode  `bun:"mode,notnull" json:"mode,omitempty"`
	SecretKey           string     `bun:"secret_key" json:"-"`
	GuestPostingEnabled bool       `bun:"guest_posting_enabled" json:"guest_posting_enabled,omitempty"`
	CreatedAt           *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt           *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt           *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// HasSecret reports whether JWT-mode tokens can be verified for this org.
func (c *OrgTrustConfig) HasSecret() bool {
	return c != nil && c.SecretKey != ""
}

// AllowsGuestPosting reports whether anonymous actions are accepted.
func (c *OrgTrustConfig) AllowsGuestPosting() bool {
	return c != nil && c.GuestPostingEnabled
}

// EnsureMode backfills the default mode for older rows.
func (c *OrgTrustConfig) EnsureMode() {
	if c != nil && c.Mode == "" {
		c.Mode = ModeGuestOnly
	}
}

// Counter names the per-user action counters the directory maintains.
type Counter string

const (
	CounterPosts    Counter = "posts"
	CounterVotes    Counter = "votes"
	CounterComments Counter = "comments"
)

func (c Counter) column() (string, bool) {
	switch c {
	case CounterPosts:
		return "post_count", true
	case CounterVotes:
		return "vote_count", true
	case CounterComments:
		return "comment_count", true
	default:
		return "", false
	}
}

// WidgetUser is the durable end-user record, one row per org and end-user.
// Rows are never deleted by normal flow; banning is a soft flag.
type WidgetUser struct {
	bun.BaseModel       `bun:"table:widget_users,alias:wu"`
	ID                  uuid.UUID   `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	OrgID               uuid.UUID   `bun:"org_id,notnull,type:uuid" json:"org_id,omitempty"`
	ExternalID          string      `bun:"external_id" json:"external_id,omitempty"`
	Email               string      `bun:"email,notnull" json:"email,omitempty"`
	Name                string      `bun:"name" json:"name,omitempty"`
	AvatarURL           string      `bun:"avatar_url" json:"avatar_url,omitempty"`
	UserSource          TrustSource `bun:"user_source,notnull" json:"user_source,omitempty"`
	CompanyID           string      `bun:"company_id" json:"company_id,omitempty"`
	CompanyName         string      `bun:"company_name" json:"company_name,omitempty"`
	CompanyPlan         string      `bun:"company_plan" json:"company_plan,omitempty"`
	CompanyMonthlySpend *float64    `bun:"company_monthly_spend" json:"company_monthly_spend,omitempty"`
	PostCount           int         `bun:"post_count" json:"post_count"`
	VoteCount           int         `bun:"vote_count" json:"vote_count"`
	CommentCount        int         `bun:"comment_count" json:"comment_count"`
	IsBanned            bool        `bun:"is_banned" json:"is_banned"`
	BannedAt            *time.Time  `bun:"banned_at,nullzero" json:"banned_at,omitempty"`
	BannedReason        string      `bun:"banned_reason" json:"banned_reason,omitempty"`
	FirstSeenAt         *time.Time  `bun:"first_seen_at,nullzero" json:"first_seen_at,omitempty"`
	LastSeenAt          *time.Time  `bun:"last_seen_at,nullzero" json:"last_seen_at,omitempty"`
	CreatedAt           *time.Time  `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt           *time.Time  `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt           *time.Time  `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureSource backfills and normalizes the stored trust source.
func (u *WidgetUser) EnsureSource() {
	if u == nil {
		return
	}
	u.UserSource = NormalizeTrustSource(string(u.UserSource))
}

// Touch refreshes the last-seen timestamp.
func (u *WidgetUser) Touch(now time.Time) {
	if u == nil {
		return
	}
	u.LastSeenAt = &now
}
