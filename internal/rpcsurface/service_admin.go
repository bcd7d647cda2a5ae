package rpcsurface

import (
	"context"

	"github.com/blite-io/blite-server/internal/identity"
	"github.com/blite-io/blite-server/internal/svcerr"
)

// AdminService methods (spec.md §4.9's "AdminService" bullet): every
// method requires Admin on "*" or "_admin"; the root user can never be
// revoked.
const (
	methodCreateUser        byte = 1
	methodRevokeUser        byte = 2
	methodRotateKey         byte = 3
	methodListUsers         byte = 4
	methodUpdatePerms       byte = 5
	methodProvisionTenant   byte = 6
	methodDeprovisionTenant byte = 7
	methodListTenants       byte = 8
)

func init() {
	registerUnary(ServiceAdmin, methodCreateUser, "CreateUser", handleCreateUser)
	registerUnary(ServiceAdmin, methodRevokeUser, "RevokeUser", handleRevokeUser)
	registerUnary(ServiceAdmin, methodRotateKey, "RotateKey", handleRotateKey)
	registerUnary(ServiceAdmin, methodListUsers, "ListUsers", handleListUsers)
	registerUnary(ServiceAdmin, methodUpdatePerms, "UpdatePerms", handleUpdatePerms)
	registerUnary(ServiceAdmin, methodProvisionTenant, "ProvisionTenant", handleProvisionTenant)
	registerUnary(ServiceAdmin, methodDeprovisionTenant, "DeprovisionTenant", handleDeprovisionTenant)
	registerUnary(ServiceAdmin, methodListTenants, "ListTenants", handleListTenants)
}

// requireAdmin is AdminService's per-call gate: every method needs Admin
// on "*" or "_admin", never a specific data collection.
func requireAdmin(user identity.User) error {
	if !user.Active {
		return svcerr.InactiveUser("user " + user.Username + " is not active")
	}
	for _, entry := range user.Permissions {
		if (entry.Collection == "*" || entry.Collection == "_admin") && entry.Ops.Has(identity.OpAdmin) {
			return nil
		}
	}
	return svcerr.PermissionDenied("user " + user.Username + " lacks Admin on * or _admin")
}

func readPermissionEntries(r *payloadReader) ([]identity.PermissionEntry, error) {
	count, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	entries := make([]identity.PermissionEntry, count)
	for i := range entries {
		if entries[i].Collection, err = r.readString(); err != nil {
			return nil, err
		}
		ops, err := r.readUvarint()
		if err != nil {
			return nil, err
		}
		entries[i].Ops = identity.Op(ops)
	}
	return entries, nil
}

func writePermissionEntries(w *payloadWriter, entries []identity.PermissionEntry) {
	w.writeUvarint(uint64(len(entries)))
	for _, e := range entries {
		w.writeString(e.Collection)
		w.writeUvarint(uint64(e.Ops))
	}
}

func handleCreateUser(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	if err := requireAdmin(c.user); err != nil {
		return nil, err
	}
	r := newPayloadReader(payload)
	username, err := r.readString()
	if err != nil {
		return nil, err
	}
	namespace, err := r.readString()
	if err != nil {
		return nil, err
	}
	hasRestriction, err := r.readBool()
	if err != nil {
		return nil, err
	}
	var restrictedDatabaseID *string
	if hasRestriction {
		v, err := r.readString()
		if err != nil {
			return nil, err
		}
		restrictedDatabaseID = &v
	}
	perms, err := readPermissionEntries(r)
	if err != nil {
		return nil, err
	}

	rawKey, err := s.identity.CreateUser(ctx, username, perms, namespace, restrictedDatabaseID)
	if err != nil {
		return nil, err
	}
	w := &payloadWriter{}
	w.writeString(rawKey)
	return w.bytes(), nil
}

// handleRevokeUser deactivates a user (spec.md: "Root user cannot be
// revoked").
func handleRevokeUser(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	if err := requireAdmin(c.user); err != nil {
		return nil, err
	}
	r := newPayloadReader(payload)
	username, err := r.readString()
	if err != nil {
		return nil, err
	}
	if username == identity.RootUsername {
		return nil, svcerr.PermissionDenied("root user cannot be revoked")
	}
	if err := s.identity.SetActive(ctx, username, false); err != nil {
		return nil, err
	}
	return nil, nil
}

func handleRotateKey(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	if err := requireAdmin(c.user); err != nil {
		return nil, err
	}
	r := newPayloadReader(payload)
	username, err := r.readString()
	if err != nil {
		return nil, err
	}
	rawKey, err := s.identity.RotateKey(ctx, username)
	if err != nil {
		return nil, err
	}
	w := &payloadWriter{}
	w.writeString(rawKey)
	return w.bytes(), nil
}

func handleListUsers(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	if err := requireAdmin(c.user); err != nil {
		return nil, err
	}
	users, err := s.identity.List(ctx)
	if err != nil {
		return nil, err
	}
	w := &payloadWriter{}
	w.writeUvarint(uint64(len(users)))
	for _, u := range users {
		w.writeString(u.Username)
		w.writeBool(u.Active)
		w.writeString(u.Namespace)
		if u.RestrictedDatabaseID != nil {
			w.writeBool(true)
			w.writeString(*u.RestrictedDatabaseID)
		} else {
			w.writeBool(false)
		}
		writePermissionEntries(w, u.Permissions)
	}
	return w.bytes(), nil
}

func handleUpdatePerms(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	if err := requireAdmin(c.user); err != nil {
		return nil, err
	}
	r := newPayloadReader(payload)
	username, err := r.readString()
	if err != nil {
		return nil, err
	}
	perms, err := readPermissionEntries(r)
	if err != nil {
		return nil, err
	}
	if err := s.identity.UpdatePermissions(ctx, username, perms); err != nil {
		return nil, err
	}
	return nil, nil
}

func handleProvisionTenant(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	if err := requireAdmin(c.user); err != nil {
		return nil, err
	}
	r := newPayloadReader(payload)
	databaseID, err := r.readString()
	if err != nil {
		return nil, err
	}
	if err := s.registry.Provision(ctx, databaseID); err != nil {
		return nil, err
	}
	return nil, nil
}

func handleDeprovisionTenant(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	if err := requireAdmin(c.user); err != nil {
		return nil, err
	}
	r := newPayloadReader(payload)
	databaseID, err := r.readString()
	if err != nil {
		return nil, err
	}
	deleteFiles, err := r.readBool()
	if err != nil {
		return nil, err
	}
	if err := s.registry.Deprovision(ctx, databaseID, deleteFiles); err != nil {
		return nil, err
	}
	return nil, nil
}

func handleListTenants(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	if err := requireAdmin(c.user); err != nil {
		return nil, err
	}
	tenants := s.registry.List()
	w := &payloadWriter{}
	w.writeUvarint(uint64(len(tenants)))
	for _, t := range tenants {
		w.writeString(t.ID)
		w.writeBool(t.Active)
	}
	return w.bytes(), nil
}
