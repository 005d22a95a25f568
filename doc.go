// Package identity resolves end-user identities for widget actions (posts,
// votes, comments) in a multi-tenant feedback product, and maintains the
// durable per-organization widget-user directory those actions write to.
//
// Identity resolution:
//   - Resolver classifies an inbound IdentifyPayload into a ResolvedIdentity
//     against the organization's OrgTrustConfig. Signed tokens verify against
//     the org secret (HS256 only); trust-mode payloads are accepted verbatim
//     as the low-trust "identified" source; anything else degrades to guest.
//     Signed-token failures are hard failures, never a silent guest.
//   - MagicLink implements the email-code fallback channel. All challenge
//     state (code digest, salt, attempt counter) rides inside the signed token
//     handed back to the caller, so nothing is stored server-side.
//
// Directory:
//   - Directory maps a resolved identity onto exactly one WidgetUser per org,
//     deduplicating by external id and case-insensitive email. The stored
//     trust source only ever upgrades, and sparser payloads never blank
//     previously captured profile fields. Bans are soft flags checked before
//     any action write.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter notified when directory
//     records are created, upgraded, banned, or unbanned. Sinks run
//     best-effort (errors are logged) so you can forward to a database or
//     queue without blocking resolution.
package identity
