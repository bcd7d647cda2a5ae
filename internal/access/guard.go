// Package access implements AccessGuard and namespace resolution from
// spec.md §4.3, grounded on the teacher's cmd/gateway/middleware.go
// authMiddleware (a single gate function consulted by every handler before
// it touches the underlying repository).
package access

import (
	"strings"

	"github.com/blite-io/blite-server/internal/identity"
	"github.com/blite-io/blite-server/internal/svcerr"
)

// Guard resolves logical/physical collection names under a user's
// namespace and authorizes operations against a user's permission entries.
type Guard struct{}

// New constructs a Guard. It carries no state — every decision is a pure
// function of the user and the request it's asked about.
func New() *Guard { return &Guard{} }

// ResolvePhysicalName maps the name a caller used onto the name the engine
// actually stores, per spec.md §4.3: a namespaced user's logical name gets
// prefixed with "ns/" unless it already carries that prefix or is the
// wildcard "*".
func (g *Guard) ResolvePhysicalName(user identity.User, logical string) string {
	if user.Namespace == "" || logical == "*" {
		return logical
	}
	prefix := user.Namespace + "/"
	if strings.HasPrefix(logical, prefix) {
		return logical
	}
	return prefix + logical
}

// StripNamespace maps a physical collection name back to the logical name a
// namespaced user should see when listing collections, and reports whether
// the physical name belongs to that user's namespace at all.
func (g *Guard) StripNamespace(user identity.User, physical string) (logical string, owned bool) {
	if user.Namespace == "" {
		return physical, true
	}
	prefix := user.Namespace + "/"
	if !strings.HasPrefix(physical, prefix) {
		return "", false
	}
	return strings.TrimPrefix(physical, prefix), true
}

// Check resolves logical into its physical name and reports whether user
// may perform op against it.
func (g *Guard) Check(user identity.User, logicalCollection string, op identity.Op) (physical string, allow bool) {
	physical = g.ResolvePhysicalName(user, logicalCollection)
	if !user.Active {
		return physical, false
	}
	for _, entry := range user.Permissions {
		if entry.Collection != "*" && entry.Collection != physical {
			continue
		}
		if entry.Ops.Has(op) {
			return physical, true
		}
	}
	return physical, false
}

// Authorize is Check plus the conventional svcerr on denial, for handlers
// that just want to bail out.
func (g *Guard) Authorize(user identity.User, logicalCollection string, op identity.Op) (string, error) {
	physical, allow := g.Check(user, logicalCollection, op)
	if !allow {
		if !user.Active {
			return physical, svcerr.InactiveUser("user " + user.Username + " is not active")
		}
		return physical, svcerr.PermissionDenied("user " + user.Username + " lacks permission for " + physical)
	}
	return physical, nil
}

// CheckDatabase enforces a user's optional database restriction
// (spec.md §4.3): if set, it must equal the resolved target database id,
// compared case-insensitively.
func (g *Guard) CheckDatabase(user identity.User, targetDatabaseID string) error {
	if user.RestrictedDatabaseID == nil {
		return nil
	}
	if !strings.EqualFold(*user.RestrictedDatabaseID, targetDatabaseID) {
		return svcerr.PermissionDenied("user restricted to database " + *user.RestrictedDatabaseID)
	}
	return nil
}
