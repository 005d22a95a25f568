package identity_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	identity "github.com/pulseboard/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	_, err = db.NewCreateTable().Model((*identity.WidgetUser)(nil)).Exec(ctx)
	require.NoError(t, err)
	_, err = db.NewCreateTable().Model((*identity.OrgTrustConfig)(nil)).Exec(ctx)
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })
	return db
}

// recordingSink collects directory activity events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []identity.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event identity.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) byType(eventType identity.ActivityEventType) []identity.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []identity.ActivityEvent
	for _, e := range s.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func newTestDirectory(t *testing.T, opts ...identity.DirectoryOption) (*identity.Directory, identity.WidgetUsers, *recordingSink) {
	t.Helper()

	db := setupTestDB(t)
	repo := identity.NewWidgetUsersRepository(db)
	sink := &recordingSink{}

	opts = append([]identity.DirectoryOption{identity.WithDirectoryActivitySink(sink)}, opts...)
	return identity.NewDirectory(repo, opts...), repo, sink
}

func identified(id, email string) identity.ResolvedIdentity {
	return identity.ResolvedIdentity{
		User:   &identity.IdentifiedUser{ID: id, Email: email},
		Source: identity.SourceIdentified,
	}
}

func TestDirectoryUpsertCreate(t *testing.T) {
	dir, _, sink := newTestDirectory(t)
	ctx := context.Background()
	orgID := uuid.New()

	spend := 99.0
	resolved := identity.ResolvedIdentity{
		User: &identity.IdentifiedUser{
			ID:     "ext-1",
			Email:  "ada@example.com",
			Name:   "Ada",
			Avatar: "https://cdn.example.com/ada.png",
			Company: &identity.Company{
				ID:           "c-1",
				Name:         "Acme",
				Plan:         "scale",
				MonthlySpend: &spend,
			},
		},
		Source: identity.SourceVerifiedJWT,
	}

	user, err := dir.Upsert(ctx, orgID, resolved)
	require.NoError(t, err)
	require.NotNil(t, user)

	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.Equal(t, orgID, user.OrgID)
	assert.Equal(t, "ext-1", user.ExternalID)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, identity.SourceVerifiedJWT, user.UserSource)
	assert.Equal(t, "Acme", user.CompanyName)
	require.NotNil(t, user.CompanyMonthlySpend)
	assert.Equal(t, 99.0, *user.CompanyMonthlySpend)
	require.NotNil(t, user.FirstSeenAt)
	require.NotNil(t, user.LastSeenAt)
	assert.Zero(t, user.PostCount)
	assert.False(t, user.IsBanned)

	created := sink.byType(identity.ActivityEventUserCreated)
	require.Len(t, created, 1)
	assert.Equal(t, user.ID.String(), created[0].UserID)
}

func TestDirectoryUpsertGuard(t *testing.T) {
	dir, _, _ := newTestDirectory(t)
	ctx := context.Background()

	t.Run("guest identities have no record", func(t *testing.T) {
		_, err := dir.Upsert(ctx, uuid.New(), identity.ResolvedIdentity{Source: identity.SourceGuest})
		assert.ErrorIs(t, err, identity.ErrNoDurableIdentity)
	})

	t.Run("org id is required", func(t *testing.T) {
		_, err := dir.Upsert(ctx, uuid.Nil, identified("ext-1", "a@example.com"))
		assert.Error(t, err)
	})
}

func TestDirectoryUpsertDeduplicates(t *testing.T) {
	ctx := context.Background()

	t.Run("by external id", func(t *testing.T) {
		dir, _, _ := newTestDirectory(t)
		orgID := uuid.New()

		first, err := dir.Upsert(ctx, orgID, identified("ext-1", "ada@example.com"))
		require.NoError(t, err)

		// same external id, new email: same row, email updated
		second, err := dir.Upsert(ctx, orgID, identified("ext-1", "ada@newjob.com"))
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "ada@newjob.com", second.Email)
	})

	t.Run("by case insensitive email", func(t *testing.T) {
		dir, _, _ := newTestDirectory(t)
		orgID := uuid.New()

		first, err := dir.Upsert(ctx, orgID, identity.ResolvedIdentity{
			User:   &identity.IdentifiedUser{Email: "Ada@Example.com"},
			Source: identity.SourceMagicLink,
		})
		require.NoError(t, err)

		second, err := dir.Upsert(ctx, orgID, identity.ResolvedIdentity{
			User:   &identity.IdentifiedUser{Email: "ada@example.COM"},
			Source: identity.SourceMagicLink,
		})
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("same identity in another org is a new row", func(t *testing.T) {
		dir, _, _ := newTestDirectory(t)

		first, err := dir.Upsert(ctx, uuid.New(), identified("ext-1", "ada@example.com"))
		require.NoError(t, err)

		second, err := dir.Upsert(ctx, uuid.New(), identified("ext-1", "ada@example.com"))
		require.NoError(t, err)

		assert.NotEqual(t, first.ID, second.ID)
	})
}

func TestDirectoryUpsertMergePolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("trust source only upgrades", func(t *testing.T) {
		dir, _, sink := newTestDirectory(t)
		orgID := uuid.New()

		_, err := dir.Upsert(ctx, orgID, identified("ext-1", "ada@example.com"))
		require.NoError(t, err)

		upgraded, err := dir.Upsert(ctx, orgID, identity.ResolvedIdentity{
			User:   &identity.IdentifiedUser{ID: "ext-1", Email: "ada@example.com"},
			Source: identity.SourceVerifiedJWT,
		})
		require.NoError(t, err)
		assert.Equal(t, identity.SourceVerifiedJWT, upgraded.UserSource)

		events := sink.byType(identity.ActivityEventUserSourceUpgraded)
		require.Len(t, events, 1)
		assert.Equal(t, identity.SourceIdentified, events[0].FromSource)
		assert.Equal(t, identity.SourceVerifiedJWT, events[0].ToSource)

		// a later low-trust sighting does not downgrade
		after, err := dir.Upsert(ctx, orgID, identified("ext-1", "ada@example.com"))
		require.NoError(t, err)
		assert.Equal(t, identity.SourceVerifiedJWT, after.UserSource)
		assert.Len(t, sink.byType(identity.ActivityEventUserSourceUpgraded), 1)
	})

	t.Run("empty fields never blank stored values", func(t *testing.T) {
		dir, _, _ := newTestDirectory(t)
		orgID := uuid.New()

		spend := 500.0
		_, err := dir.Upsert(ctx, orgID, identity.ResolvedIdentity{
			User: &identity.IdentifiedUser{
				ID:     "ext-1",
				Email:  "ada@example.com",
				Name:   "Ada",
				Avatar: "ada.png",
				Company: &identity.Company{
					Name:         "Acme",
					MonthlySpend: &spend,
				},
			},
			Source: identity.SourceVerifiedJWT,
		})
		require.NoError(t, err)

		// sparse follow-up: only the id, everything else missing
		after, err := dir.Upsert(ctx, orgID, identified("ext-1", ""))
		require.NoError(t, err)

		assert.Equal(t, "ada@example.com", after.Email)
		assert.Equal(t, "Ada", after.Name)
		assert.Equal(t, "ada.png", after.AvatarURL)
		assert.Equal(t, "Acme", after.CompanyName)
		require.NotNil(t, after.CompanyMonthlySpend)
		assert.Equal(t, 500.0, *after.CompanyMonthlySpend)
	})

	t.Run("zero monthly spend is a real value", func(t *testing.T) {
		dir, _, _ := newTestDirectory(t)
		orgID := uuid.New()

		spend := 500.0
		_, err := dir.Upsert(ctx, orgID, identity.ResolvedIdentity{
			User: &identity.IdentifiedUser{
				ID:      "ext-1",
				Email:   "ada@example.com",
				Company: &identity.Company{Name: "Acme", MonthlySpend: &spend},
			},
			Source: identity.SourceIdentified,
		})
		require.NoError(t, err)

		zero := 0.0
		after, err := dir.Upsert(ctx, orgID, identity.ResolvedIdentity{
			User: &identity.IdentifiedUser{
				ID:      "ext-1",
				Email:   "ada@example.com",
				Company: &identity.Company{MonthlySpend: &zero},
			},
			Source: identity.SourceIdentified,
		})
		require.NoError(t, err)

		require.NotNil(t, after.CompanyMonthlySpend)
		assert.Equal(t, 0.0, *after.CompanyMonthlySpend)
		// fill-if-non-empty still holds for the name
		assert.Equal(t, "Acme", after.CompanyName)
	})

	t.Run("legacy verified_sso source normalizes on merge", func(t *testing.T) {
		dir, repo, _ := newTestDirectory(t)
		orgID := uuid.New()

		created, err := repo.Create(context.Background(), &identity.WidgetUser{
			OrgID:      orgID,
			ExternalID: "ext-legacy",
			Email:      "legacy@example.com",
			UserSource: identity.TrustSource("verified_sso"),
		})
		require.NoError(t, err)

		after, err := dir.Upsert(ctx, orgID, identified("ext-legacy", "legacy@example.com"))
		require.NoError(t, err)
		assert.Equal(t, created.ID, after.ID)
		assert.Equal(t, identity.SourceVerifiedJWT, after.UserSource)
	})
}

func TestDirectoryRequireActor(t *testing.T) {
	dir, _, _ := newTestDirectory(t)
	ctx := context.Background()
	orgID := uuid.New()

	user, err := dir.RequireActor(ctx, orgID, identified("ext-1", "ada@example.com"))
	require.NoError(t, err)

	_, err = dir.SetBanned(ctx, identity.ActorRef{ID: "admin-1", Type: "admin"}, user.ID, true, "spam")
	require.NoError(t, err)

	_, err = dir.RequireActor(ctx, orgID, identified("ext-1", "ada@example.com"))
	require.Error(t, err)
	assert.True(t, identity.IsUserBannedError(err))
}

func TestDirectoryCounters(t *testing.T) {
	dir, repo, _ := newTestDirectory(t)
	ctx := context.Background()
	orgID := uuid.New()

	user, err := dir.Upsert(ctx, orgID, identified("ext-1", "ada@example.com"))
	require.NoError(t, err)

	require.NoError(t, dir.IncrementCounter(ctx, user.ID, identity.CounterPosts))
	require.NoError(t, dir.IncrementCounter(ctx, user.ID, identity.CounterVotes))
	require.NoError(t, dir.IncrementCounter(ctx, user.ID, identity.CounterVotes))

	after, err := repo.GetByExternalID(ctx, orgID, "ext-1")
	require.NoError(t, err)

	assert.Equal(t, 1, after.PostCount)
	assert.Equal(t, 2, after.VoteCount)
	assert.Equal(t, 0, after.CommentCount)

	t.Run("unknown counter is rejected", func(t *testing.T) {
		err := dir.IncrementCounter(ctx, user.ID, identity.Counter("downloads"))
		assert.Error(t, err)
	})
}

func TestDirectorySetBanned(t *testing.T) {
	dir, _, sink := newTestDirectory(t)
	ctx := context.Background()
	orgID := uuid.New()
	admin := identity.ActorRef{ID: "admin-1", Type: "admin"}

	user, err := dir.Upsert(ctx, orgID, identified("ext-1", "ada@example.com"))
	require.NoError(t, err)

	t.Run("ban sets the flag and records the actor", func(t *testing.T) {
		banned, err := dir.SetBanned(ctx, admin, user.ID, true, "spam")
		require.NoError(t, err)

		assert.True(t, banned.IsBanned)
		assert.Equal(t, "spam", banned.BannedReason)
		require.NotNil(t, banned.BannedAt)

		events := sink.byType(identity.ActivityEventUserBanned)
		require.Len(t, events, 1)
		assert.Equal(t, admin, events[0].Actor)
		assert.Equal(t, "spam", events[0].Metadata["reason"])
	})

	t.Run("ban is idempotent", func(t *testing.T) {
		again, err := dir.SetBanned(ctx, admin, user.ID, true, "spam")
		require.NoError(t, err)
		assert.True(t, again.IsBanned)
	})

	t.Run("unban clears ban state", func(t *testing.T) {
		unbanned, err := dir.SetBanned(ctx, admin, user.ID, false, "")
		require.NoError(t, err)

		assert.False(t, unbanned.IsBanned)
		assert.Nil(t, unbanned.BannedAt)
		assert.Empty(t, unbanned.BannedReason)
		assert.Len(t, sink.byType(identity.ActivityEventUserUnbanned), 1)
	})

	t.Run("ban keeps the row and its history", func(t *testing.T) {
		before, err := dir.Upsert(ctx, orgID, identified("ext-1", "ada@example.com"))
		require.NoError(t, err)
		assert.Equal(t, user.ID, before.ID)
	})

	t.Run("unknown user is not found", func(t *testing.T) {
		_, err := dir.SetBanned(ctx, admin, uuid.New(), true, "spam")
		require.Error(t, err)
	})

	t.Run("clock is injectable", func(t *testing.T) {
		frozen := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
		dir2, _, _ := newTestDirectory(t, identity.WithDirectoryClock(func() time.Time { return frozen }))

		u, err := dir2.Upsert(ctx, uuid.New(), identified("ext-9", "nine@example.com"))
		require.NoError(t, err)

		require.NotNil(t, u.FirstSeenAt)
		assert.True(t, u.FirstSeenAt.Equal(frozen))
	})
}
