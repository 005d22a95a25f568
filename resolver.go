package identity

// Company is the optional company sub-object attached to an identity.
type Company struct {
	ID           string   `json:"id,omitempty"`
	Name         string   `json:"name,omitempty"`
	Plan         string   `json:"plan,omitempty"`
	MonthlySpend *float64 `json:"monthlySpend,omitempty"`
}

func (c *Company) clone() *Company {
	if c == nil {
		return nil
	}
	out := *c
	if c.MonthlySpend != nil {
		spend := *c.MonthlySpend
		out.MonthlySpend = &spend
	}
	return &out
}

// IdentifyPayload is the raw assertion from a caller. It is either a signed
// token or a trust-mode profile; when both are present the token wins.
type IdentifyPayload struct {
	ID      string   `json:"id,omitempty" form:"id"`
	Email   string   `json:"email,omitempty" form:"email"`
	Name    string   `json:"name,omitempty" form:"name"`
	Avatar  string   `json:"avatar,omitempty" form:"avatar"`
	Company *Company `json:"company,omitempty" form:"-"`
	Token   string   `json:"token,omitempty" form:"token"`
}

// IdentifiedUser is the extracted profile a directory upsert consumes.
type IdentifiedUser struct {
	ID      string   `json:"id,omitempty"`
	Email   string   `json:"email,omitempty"`
	Name    string   `json:"name,omitempty"`
	Avatar  string   `json:"avatar,omitempty"`
	Company *Company `json:"company,omitempty"`
}

// ResolvedIdentity is the outcome of classifying an IdentifyPayload.
// User is nil exactly when Source is SourceGuest.
type ResolvedIdentity struct {
	User   *IdentifiedUser `json:"user,omitempty"`
	Source TrustSource     `json:"source"`
}

// Guest reports whether the identity resolved to an anonymous interaction.
func (r ResolvedIdentity) Guest() bool {
	return r.User == nil
}

// Resolver classifies inbound identify payloads against an organization's
// trust configuration.
type Resolver struct {
	tokens TokenService
	logger Logger
}

// ResolverOption customizes resolver construction.
type ResolverOption func(*Resolver)

// WithResolverLogger overrides the default logger.
func WithResolverLogger(logger Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver creates a Resolver backed by the given token service.
func NewResolver(tokens TokenService, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		tokens: tokens,
		logger: defLogger{},
	}
	if r.tokens == nil {
		r.tokens = NewTokenService(r.logger)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Resolve classifies payload into a ResolvedIdentity. First match wins:
//
//  1. Absent payload resolves to guest.
//  2. A token field selects JWT mode: the token must verify against the org
//     secret and carry id + email. Failures here are hard failures; the
//     caller receives the error and must reject the action rather than
//     pretend anonymity.
//  3. A payload with both id and email is accepted verbatim as the low-trust
//     "identified" source. No verification is performed.
//  4. Anything else is treated the same as absent: guest, no error.
func (r *Resolver) Resolve(payload *IdentifyPayload, cfg *OrgTrustConfig) (ResolvedIdentity, error) {
	guest := ResolvedIdentity{Source: SourceGuest}

	if payload == nil {
		return guest, nil
	}

	if payload.Token != "" {
		return r.resolveToken(payload.Token, cfg)
	}

	if payload.ID != "" && payload.Email != "" {
		return ResolvedIdentity{
			User: &IdentifiedUser{
				ID:      payload.ID,
				Email:   payload.Email,
				Name:    payload.Name,
				Avatar:  payload.Avatar,
				Company: payload.Company.clone(),
			},
			Source: SourceIdentified,
		}, nil
	}

	return guest, nil
}

func (r *Resolver) resolveToken(tokenString string, cfg *OrgTrustConfig) (ResolvedIdentity, error) {
	guest := ResolvedIdentity{Source: SourceGuest}

	if cfg == nil || !cfg.HasSecret() {
		r.logger.Warn("identify token received but org has no SSO secret configured")
		return guest, ErrSSONotConfigured
	}

	claims := &IdentityClaims{}
	if err := r.tokens.Verify(tokenString, []byte(cfg.SecretKey), claims); err != nil {
		return guest, err
	}

	if err := claims.RequireIdentity(); err != nil {
		return guest, err
	}

	return ResolvedIdentity{
		User:   claims.Profile(),
		Source: SourceVerifiedJWT,
	}, nil
}
