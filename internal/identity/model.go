// Package identity implements the user/permission model from spec.md §3
// and the API-key issuance scheme it depends on, persisted inside the
// system engine's "_users" collection.
package identity

import "time"

// Op is the permission-entry operation bitmask from spec.md §3.
type Op uint8

const (
	OpQuery Op = 1 << iota
	OpInsert
	OpUpdate
	OpDelete
	OpDrop
	OpAdmin

	OpWrite = OpInsert | OpUpdate | OpDelete
	OpAll   = OpQuery | OpInsert | OpUpdate | OpDelete | OpDrop | OpAdmin
)

// Has reports whether op includes flag.
func (op Op) Has(flag Op) bool { return op&flag == flag }

// PermissionEntry grants ops on collection (or "*" for every collection).
type PermissionEntry struct {
	Collection string `json:"collection"`
	Ops        Op     `json:"ops"`
}

// RootUsername is the bootstrap user that can never be revoked.
const RootUsername = "root"

// User is the spec.md §3 user record. RestrictedDatabaseID is nil when the
// user is not confined to one database.
type User struct {
	Username              string            `json:"username"`
	Active                bool              `json:"active"`
	CreatedAt             time.Time         `json:"createdAt"`
	Permissions           []PermissionEntry `json:"permissions"`
	Namespace             string            `json:"namespace,omitempty"`
	RestrictedDatabaseID  *string           `json:"restrictedDatabaseId,omitempty"`
	KeyHash               string            `json:"-"`
	KeyPrefix             string            `json:"keyPrefix"`
}

// IsRoot reports whether u is the bootstrap root user.
func (u User) IsRoot() bool { return u.Username == RootUsername }
