package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// ErrNoDurableIdentity is returned when a guest identity reaches the
// directory; guests have no row and nothing to upsert.
var ErrNoDurableIdentity = goerrors.New("guest identities have no directory record", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest)

// Directory maps resolved identities onto exactly one durable WidgetUser per
// organization, applying the trust-upgrade-only merge policy.
type Directory struct {
	repo     WidgetUsers
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// DirectoryOption customizes directory construction.
type DirectoryOption func(*Directory)

// WithDirectoryClock injects a custom clock (useful for tests).
func WithDirectoryClock(clock func() time.Time) DirectoryOption {
	return func(d *Directory) {
		if clock != nil {
			d.now = clock
		}
	}
}

// WithDirectoryActivitySink sets the ActivitySink used to publish directory events.
func WithDirectoryActivitySink(sink ActivitySink) DirectoryOption {
	return func(d *Directory) {
		d.activity = normalizeActivitySink(sink)
	}
}

// WithDirectoryLogger overrides the logger used for sink failures.
func WithDirectoryLogger(logger Logger) DirectoryOption {
	return func(d *Directory) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDirectory returns the default implementation backed by the provided repository.
func NewDirectory(repo WidgetUsers, opts ...DirectoryOption) *Directory {
	d := &Directory{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}

	return d
}

// Upsert finds or creates the durable record for a resolved identity and
// merges profile and trust data into it. Lookup tries the stable external id
// first, then the case-insensitive email.
//
// Two concurrent first-contact requests for the same identity can race the
// find-or-create step and produce a duplicate row; the window is accepted for
// this workload. Deployments that need the stronger guarantee should replace
// the flow with a single atomic upsert keyed on (org_id, external_id) /
// (org_id, lower(email)).
func (d *Directory) Upsert(ctx context.Context, orgID uuid.UUID, resolved ResolvedIdentity) (*WidgetUser, error) {
	if resolved.User == nil {
		return nil, ErrNoDurableIdentity
	}
	if orgID == uuid.Nil {
		return nil, goerrors.New("org id is required", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	incoming := resolved.User
	source := NormalizeTrustSource(string(resolved.Source))
	now := d.now()

	existing, err := d.repo.FindByIdentity(ctx, orgID, incoming.ID, incoming.Email)
	if err != nil {
		if !repository.IsRecordNotFound(err) {
			return nil, err
		}
		return d.create(ctx, orgID, incoming, source, now)
	}

	fromSource := existing.UserSource
	upgraded := mergeWidgetUser(existing, incoming, source, now)

	updated, err := d.repo.Update(ctx, existing, repository.UpdateByID(existing.ID.String()))
	if err != nil {
		return nil, err
	}

	if upgraded {
		d.recordActivity(ctx, ActivityEvent{
			EventType:  ActivityEventUserSourceUpgraded,
			OrgID:      orgID.String(),
			UserID:     existing.ID.String(),
			FromSource: fromSource,
			ToSource:   existing.UserSource,
		})
	}

	if updated != nil {
		return updated, nil
	}
	return existing, nil
}

func (d *Directory) create(ctx context.Context, orgID uuid.UUID, incoming *IdentifiedUser, source TrustSource, now time.Time) (*WidgetUser, error) {
	record := &WidgetUser{
		OrgID:       orgID,
		ExternalID:  incoming.ID,
		Email:       incoming.Email,
		Name:        incoming.Name,
		AvatarURL:   incoming.Avatar,
		UserSource:  source,
		FirstSeenAt: &now,
		LastSeenAt:  &now,
	}

	if incoming.Company != nil {
		record.CompanyID = incoming.Company.ID
		record.CompanyName = incoming.Company.Name
		record.CompanyPlan = incoming.Company.Plan
		if incoming.Company.MonthlySpend != nil {
			spend := *incoming.Company.MonthlySpend
			record.CompanyMonthlySpend = &spend
		}
	}

	created, err := d.repo.Create(ctx, record)
	if err != nil {
		return nil, err
	}

	d.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventUserCreated,
		OrgID:     orgID.String(),
		UserID:    created.ID.String(),
		ToSource:  created.UserSource,
	})

	return created, nil
}

// RequireActor resolves the durable record for an identity that intends to
// act (post, vote, comment) and rejects banned users before any write.
func (d *Directory) RequireActor(ctx context.Context, orgID uuid.UUID, resolved ResolvedIdentity) (*WidgetUser, error) {
	user, err := d.Upsert(ctx, orgID, resolved)
	if err != nil {
		return nil, err
	}

	if user.IsBanned {
		return nil, ErrUserBanned.WithMetadata(map[string]any{
			"user_id": user.ID.String(),
		})
	}

	return user, nil
}

// IncrementCounter bumps exactly one action counter and refreshes last seen.
func (d *Directory) IncrementCounter(ctx context.Context, userID uuid.UUID, counter Counter) error {
	return d.repo.IncrementCounter(ctx, userID, counter, d.now())
}

// SetBanned toggles the soft ban flag. The operation is idempotent and
// restricted to org admins; the actor is recorded with the event.
func (d *Directory) SetBanned(ctx context.Context, actor ActorRef, userID uuid.UUID, banned bool, reason string) (*WidgetUser, error) {
	user, err := d.repo.SetBanned(ctx, userID, banned, reason, d.now())
	if err != nil {
		return nil, err
	}

	eventType := ActivityEventUserUnbanned
	var metadata map[string]any
	if banned {
		eventType = ActivityEventUserBanned
		if reason != "" {
			metadata = map[string]any{"reason": reason}
		}
	}

	d.recordActivity(ctx, ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		OrgID:     user.OrgID.String(),
		UserID:    user.ID.String(),
		Metadata:  metadata,
	})

	return user, nil
}

func (d *Directory) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: "system"}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = d.now()
	}

	sink := normalizeActivitySink(d.activity)
	if err := sink.Record(ctx, event); err != nil {
		d.logger.Warn("directory activity sink error: %v", err)
	}
}

// mergeWidgetUser applies the merge policy to an existing record: the trust
// source upgrades monotonically, profile fields fill only from non-empty
// incoming values, monthly spend uses non-nil semantics (zero is a valid
// spend), and last seen is always refreshed. Counters are never touched.
// It reports whether the trust source was upgraded.
func mergeWidgetUser(record *WidgetUser, incoming *IdentifiedUser, source TrustSource, now time.Time) bool {
	record.EnsureSource()
	previous := record.UserSource
	record.UserSource = UpgradeTrustSource(previous, source)

	fillString(&record.ExternalID, incoming.ID)
	fillString(&record.Email, incoming.Email)
	fillString(&record.Name, incoming.Name)
	fillString(&record.AvatarURL, incoming.Avatar)

	if incoming.Company != nil {
		fillString(&record.CompanyID, incoming.Company.ID)
		fillString(&record.CompanyName, incoming.Company.Name)
		fillString(&record.CompanyPlan, incoming.Company.Plan)
		if incoming.Company.MonthlySpend != nil {
			spend := *incoming.Company.MonthlySpend
			record.CompanyMonthlySpend = &spend
		}
	}

	record.Touch(now)

	return record.UserSource != previous
}

func fillString(dst *string, incoming string) {
	if incoming != "" {
		*dst = incoming
	}
}
