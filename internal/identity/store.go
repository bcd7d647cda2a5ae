package identity

import (
	"context"
	"time"

	"github.com/blite-io/blite-server/internal/dictionary"
	"github.com/blite-io/blite-server/internal/engine"
	"github.com/blite-io/blite-server/internal/queryd"
	"github.com/blite-io/blite-server/internal/svcerr"
)

const (
	usersCollection     = "_users"
	recoveryCollection  = "_root_recovery"
	keyHashIndexName    = "by_keyhash"
	recoveryDocUsername = "root"
)

// Store persists User records inside the system engine's "_users"
// collection, and the root recovery secret inside "_root_recovery",
// following spec.md §3's "_emb_queue" leading-underscore convention for
// server-internal state. The access guard does not reserve that prefix:
// the document API reaches these collections like any other, subject to
// the caller's permissions on the system database.
type Store struct {
	sys engine.Engine
}

// NewStore wires a Store to the always-present system engine and ensures
// its backing collections and indexes exist.
func NewStore(ctx context.Context, sys engine.Engine) (*Store, error) {
	s := &Store{sys: sys}
	if err := ensureCollection(ctx, sys, usersCollection); err != nil {
		return nil, err
	}
	if err := ensureCollection(ctx, sys, recoveryCollection); err != nil {
		return nil, err
	}
	if err := ensureKeyHashIndex(ctx, sys); err != nil {
		return nil, err
	}
	return s, nil
}

func ensureCollection(ctx context.Context, eng engine.Engine, name string) error {
	err := eng.CreateCollection(ctx, name)
	if se, ok := svcerr.As(err); ok && se.Kind == svcerr.KindConflict {
		return nil
	}
	return err
}

func ensureKeyHashIndex(ctx context.Context, eng engine.Engine) error {
	err := eng.CreateIndex(ctx, usersCollection, engine.IndexDescriptor{
		Name:      keyHashIndexName,
		FieldPath: "keyhash",
		Kind:      engine.IndexBTree,
		Unique:    true,
	})
	if se, ok := svcerr.As(err); ok && se.Kind == svcerr.KindConflict {
		return nil
	}
	return err
}

func userDocID(username string) dictionary.DocID {
	return dictionary.DocID{Kind: dictionary.DocIDString, Bytes: []byte(username)}
}

func toDocument(u User) dictionary.Document {
	perms := make([]dictionary.Value, 0, len(u.Permissions))
	for _, p := range u.Permissions {
		perms = append(perms, dictionary.VDocument(dictionary.Document{
			"collection": dictionary.VString(p.Collection),
			"ops":        dictionary.VInt32(int32(p.Ops)),
		}))
	}
	doc := dictionary.Document{
		"username":  dictionary.VString(u.Username),
		"active":    dictionary.VBool(u.Active),
		"createdat": dictionary.VTimestamp(u.CreatedAt.UnixNano()),
		"permissions": dictionary.VArray(perms),
		"namespace": dictionary.VString(u.Namespace),
		"keyhash":   dictionary.VString(u.KeyHash),
		"keyprefix": dictionary.VString(u.KeyPrefix),
	}
	if u.RestrictedDatabaseID != nil {
		doc["restricteddatabaseid"] = dictionary.VString(*u.RestrictedDatabaseID)
	}
	return doc
}

func fromDocument(doc dictionary.Document) User {
	u := User{
		Username:  doc["username"].Str,
		Active:    doc["active"].Bool,
		CreatedAt: time.Unix(0, doc["createdat"].Int64).UTC(),
		Namespace: doc["namespace"].Str,
		KeyHash:   doc["keyhash"].Str,
		KeyPrefix: doc["keyprefix"].Str,
	}
	if v, ok := doc["permissions"]; ok {
		for _, pv := range v.Array {
			u.Permissions = append(u.Permissions, PermissionEntry{
				Collection: pv.Doc["collection"].Str,
				Ops:        Op(pv.Doc["ops"].Int64),
			})
		}
	}
	if v, ok := doc["restricteddatabaseid"]; ok {
		dbID := v.Str
		u.RestrictedDatabaseID = &dbID
	}
	return u
}

// Bootstrap creates the root user the first time a system engine is opened.
// It is a no-op (returning an empty rawKey) if root already exists. The
// plaintext key and recovery passphrase are returned exactly once, per
// spec.md §3's "the plaintext key is never recoverable."
func (s *Store) Bootstrap(ctx context.Context) (rawKey, recoveryPassphrase string, err error) {
	if _, found, err := s.sys.FindByID(ctx, nil, usersCollection, userDocID(RootUsername)); err != nil {
		return "", "", err
	} else if found {
		return "", "", nil
	}

	raw, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		return "", "", err
	}
	root := User{
		Username:    RootUsername,
		Active:      true,
		CreatedAt:   time.Now(),
		Permissions: []PermissionEntry{{Collection: "*", Ops: OpAll}},
		KeyHash:     hash,
		KeyPrefix:   prefix,
	}
	id := userDocID(RootUsername)
	if _, err := s.sys.Insert(ctx, nil, usersCollection, toDocument(root), &id); err != nil {
		return "", "", err
	}

	passphrase, err := generateRecoveryPassphrase()
	if err != nil {
		return "", "", err
	}
	recoveryHash, err := hashRecoveryPassphrase(passphrase)
	if err != nil {
		return "", "", err
	}
	recID := userDocID(recoveryDocUsername)
	recDoc := dictionary.Document{"passphrasehash": dictionary.VString(recoveryHash)}
	if _, err := s.sys.Insert(ctx, nil, recoveryCollection, recDoc, &recID); err != nil {
		return "", "", err
	}
	return raw, passphrase, nil
}

// Get returns a user by name.
func (s *Store) Get(ctx context.Context, username string) (User, bool, error) {
	doc, found, err := s.sys.FindByID(ctx, nil, usersCollection, userDocID(username))
	if err != nil || !found {
		return User{}, found, err
	}
	return fromDocument(doc), true, nil
}

// List enumerates every user.
func (s *Store) List(ctx context.Context) ([]User, error) {
	iter, _, err := s.sys.Query(ctx, nil, engine.Plan{Collection: usersCollection})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []User
	for {
		doc, _, ok, err := iter.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, fromDocument(doc))
	}
	return out, nil
}

// Authenticate resolves the user owning rawKey via the keyhash index.
func (s *Store) Authenticate(ctx context.Context, rawKey string) (User, error) {
	hash := HashToken(rawKey)
	filter := &queryd.FilterNode{Kind: queryd.NodeBinary, Field: "keyhash", BinOp: queryd.OpEq, Value: queryd.Scalar{Kind: queryd.ScalarString, Str: hash}}
	iter, _, err := s.sys.Query(ctx, nil, engine.Plan{Collection: usersCollection, Filter: filter, Take: 1})
	if err != nil {
		return User{}, err
	}
	defer iter.Close()
	doc, _, ok, err := iter.Next(ctx)
	if err != nil {
		return User{}, err
	}
	if !ok {
		return User{}, svcerr.MissingKey("no user matches the supplied API key")
	}
	return fromDocument(doc), nil
}

// CreateUser provisions a new user and returns its plaintext API key.
func (s *Store) CreateUser(ctx context.Context, username string, perms []PermissionEntry, namespace string, restrictedDatabaseID *string) (string, error) {
	if _, found, err := s.sys.FindByID(ctx, nil, usersCollection, userDocID(username)); err != nil {
		return "", err
	} else if found {
		return "", svcerr.Conflict("user already exists: " + username)
	}
	raw, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		return "", err
	}
	u := User{
		Username:             username,
		Active:               true,
		CreatedAt:            time.Now(),
		Permissions:          perms,
		Namespace:            namespace,
		RestrictedDatabaseID: restrictedDatabaseID,
		KeyHash:              hash,
		KeyPrefix:            prefix,
	}
	id := userDocID(username)
	if _, err := s.sys.Insert(ctx, nil, usersCollection, toDocument(u), &id); err != nil {
		return "", err
	}
	return raw, nil
}

func (s *Store) update(ctx context.Context, username string, mutate func(*User) error) error {
	u, found, err := s.Get(ctx, username)
	if err != nil {
		return err
	}
	if !found {
		return svcerr.NotFound("user not found: " + username)
	}
	if err := mutate(&u); err != nil {
		return err
	}
	_, err = s.sys.Update(ctx, nil, usersCollection, userDocID(username), toDocument(u))
	return err
}

// UpdatePermissions replaces a user's permission entries.
func (s *Store) UpdatePermissions(ctx context.Context, username string, perms []PermissionEntry) error {
	return s.update(ctx, username, func(u *User) error {
		u.Permissions = perms
		return nil
	})
}

// SetActive flips a user's active flag. Root cannot be deactivated.
func (s *Store) SetActive(ctx context.Context, username string, active bool) error {
	if username == RootUsername && !active {
		return svcerr.InvalidInput("the root user cannot be deactivated")
	}
	return s.update(ctx, username, func(u *User) error {
		u.Active = active
		return nil
	})
}

// SetRestrictedDatabase sets or clears a user's database restriction.
func (s *Store) SetRestrictedDatabase(ctx context.Context, username string, dbID *string) error {
	return s.update(ctx, username, func(u *User) error {
		u.RestrictedDatabaseID = dbID
		return nil
	})
}

// RotateKey replaces a user's API key, returning the new plaintext value.
func (s *Store) RotateKey(ctx context.Context, username string) (string, error) {
	var raw string
	err := s.update(ctx, username, func(u *User) error {
		r, hash, prefix, err := GenerateAPIKey()
		if err != nil {
			return err
		}
		u.KeyHash, u.KeyPrefix = hash, prefix
		raw = r
		return nil
	})
	return raw, err
}

// Delete removes a user. Root can never be deleted.
func (s *Store) Delete(ctx context.Context, username string) error {
	if username == RootUsername {
		return svcerr.InvalidInput("the root user cannot be deleted")
	}
	deleted, err := s.sys.Delete(ctx, nil, usersCollection, userDocID(username))
	if err != nil {
		return err
	}
	if !deleted {
		return svcerr.NotFound("user not found: " + username)
	}
	return nil
}

// ResetRootKey verifies the recovery passphrase and issues a fresh root API
// key, the emergency path when root's key is lost.
func (s *Store) ResetRootKey(ctx context.Context, passphrase string) (string, error) {
	doc, found, err := s.sys.FindByID(ctx, nil, recoveryCollection, userDocID(recoveryDocUsername))
	if err != nil {
		return "", err
	}
	if !found || !verifyRecoveryPassphrase(doc["passphrasehash"].Str, passphrase) {
		return "", svcerr.PermissionDenied("invalid recovery passphrase")
	}
	return s.RotateKey(ctx, RootUsername)
}
