package access

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blite-io/blite-server/internal/identity"
)

func TestResolvePhysicalNameAddsNamespacePrefix(t *testing.T) {
	g := New()
	user := identity.User{Namespace: "tenantA"}
	require.Equal(t, "tenantA/widgets", g.ResolvePhysicalName(user, "widgets"))
	require.Equal(t, "tenantA/widgets", g.ResolvePhysicalName(user, "tenantA/widgets"))
	require.Equal(t, "*", g.ResolvePhysicalName(user, "*"))
}

func TestStripNamespaceExcludesForeignCollections(t *testing.T) {
	g := New()
	user := identity.User{Namespace: "tenantA"}
	logical, owned := g.StripNamespace(user, "tenantA/widgets")
	require.True(t, owned)
	require.Equal(t, "widgets", logical)

	_, owned = g.StripNamespace(user, "tenantB/widgets")
	require.False(t, owned)
}

func TestCheckRequiresActiveUserAndMatchingPermission(t *testing.T) {
	g := New()
	user := identity.User{
		Username: "alice",
		Active:   true,
		Permissions: []identity.PermissionEntry{
			{Collection: "widgets", Ops: identity.OpQuery},
		},
	}
	_, allow := g.Check(user, "widgets", identity.OpQuery)
	require.True(t, allow)

	_, allow = g.Check(user, "widgets", identity.OpDelete)
	require.False(t, allow)

	user.Active = false
	_, allow = g.Check(user, "widgets", identity.OpQuery)
	require.False(t, allow)
}

func TestCheckWildcardPermission(t *testing.T) {
	g := New()
	user := identity.User{
		Username: "root",
		Active:   true,
		Permissions: []identity.PermissionEntry{
			{Collection: "*", Ops: identity.OpAll},
		},
	}
	_, allow := g.Check(user, "anything", identity.OpDrop)
	require.True(t, allow)
}

func TestCheckDatabaseRestriction(t *testing.T) {
	g := New()
	restricted := "tenant-7"
	user := identity.User{Username: "bob", RestrictedDatabaseID: &restricted}
	require.NoError(t, g.CheckDatabase(user, "Tenant-7"))
	require.Error(t, g.CheckDatabase(user, "tenant-8"))
}
