// Package txn implements the TransactionCoordinator from spec.md §4.5: the
// at-most-one-active-transaction-per-database invariant, the process-wide
// session table, and idle-session sweeping.
package txn

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/blite-io/blite-server/internal/engine"
	"github.com/blite-io/blite-server/internal/identity"
	"github.com/blite-io/blite-server/internal/logging"
	"github.com/blite-io/blite-server/internal/svcerr"
)

// CacheInvalidator is the subset of internal/cache.Cache the coordinator
// needs, kept as an interface here so this package never imports the cache
// package (the cache, conversely, never imports txn — they're wired
// together in cmd/bliteserver).
type CacheInvalidator interface {
	Invalidate(databaseID, physicalCollection string)
	InvalidateDatabase(databaseID string)
}

// noopInvalidator is used when no cache is configured.
type noopInvalidator struct{}

func (noopInvalidator) Invalidate(string, string) {}
func (noopInvalidator) InvalidateDatabase(string)  {}

// Coordinator is the process-wide transaction coordinator.
type Coordinator struct {
	registry    *engine.Registry
	invalidator CacheInvalidator
	log         *logging.Logger
	auditSecret []byte

	idleThreshold   time.Duration
	acquireWait     time.Duration

	mu           sync.Mutex
	sessions     map[string]*Session
	activeByDB   map[string]string // databaseId -> sessionId currently holding it
	semaphores   map[string]chan struct{}
	sweptTombstones map[string]time.Time

	cron *cron.Cron
}

// Config holds the tunables consolidated from spec.md §9's Open Question
// about the idle threshold and sweep cadence.
type Config struct {
	IdleThreshold      time.Duration
	AcquireWait        time.Duration
	SweepCronSchedule  string
	AuditSigningSecret []byte
}

// New constructs a Coordinator bound to registry. If invalidator is nil, a
// no-op is used (equivalent to a disabled QueryCache).
func New(registry *engine.Registry, invalidator CacheInvalidator, log *logging.Logger, cfg Config) *Coordinator {
	if invalidator == nil {
		invalidator = noopInvalidator{}
	}
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = 5 * time.Minute
	}
	if cfg.AcquireWait <= 0 {
		cfg.AcquireWait = 2 * time.Second
	}
	c := &Coordinator{
		registry:        registry,
		invalidator:     invalidator,
		log:             log,
		auditSecret:     cfg.AuditSigningSecret,
		idleThreshold:   cfg.IdleThreshold,
		acquireWait:     cfg.AcquireWait,
		sessions:        make(map[string]*Session),
		activeByDB:      make(map[string]string),
		semaphores:      make(map[string]chan struct{}),
		sweptTombstones: make(map[string]time.Time),
	}
	if cfg.SweepCronSchedule != "" {
		c.cron = cron.New()
		_, _ = c.cron.AddFunc(cfg.SweepCronSchedule, c.Sweep)
		c.cron.Start()
	}
	return c
}

// Stop halts the background sweep scheduler, if one is running.
func (c *Coordinator) Stop() {
	if c.cron != nil {
		c.cron.Stop()
	}
}

func (c *Coordinator) semaphoreFor(databaseID string) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	sem, ok := c.semaphores[databaseID]
	if !ok {
		sem = make(chan struct{}, 1)
		c.semaphores[databaseID] = sem
	}
	return sem
}

// Begin resolves the target engine from user's database restriction,
// acquires the per-database semaphore, opens an engine transaction, and
// records a new session.
func (c *Coordinator) Begin(ctx context.Context, user identity.User) (string, error) {
	databaseID := engine.SystemDatabaseID
	if user.RestrictedDatabaseID != nil {
		databaseID = engine.NormalizeDatabaseID(*user.RestrictedDatabaseID)
	}

	sem := c.semaphoreFor(databaseID)
	acquireCtx, cancel := context.WithTimeout(ctx, c.acquireWait)
	defer cancel()
	select {
	case sem <- struct{}{}:
	case <-acquireCtx.Done():
		return "", svcerr.FailedPrecondition("could not acquire the transaction slot for database " + databaseID + " within the bounded wait")
	}

	eng, err := c.registry.Get(databaseID)
	if err != nil {
		<-sem
		return "", err
	}
	engTx, err := eng.BeginTx(ctx)
	if err != nil {
		<-sem
		return "", svcerr.Internal("opening engine transaction", err)
	}

	id := uuid.NewString()
	sess := newSession(id, user.Username, databaseID, engTx)
	sess.AuditToken = c.issueAuditToken(id, user.Username, databaseID)

	c.mu.Lock()
	c.sessions[id] = sess
	c.activeByDB[databaseID] = id
	c.mu.Unlock()

	if c.log != nil {
		c.log.WithContext(ctx).WithField("session", id).WithField("database", databaseID).Info("transaction begin")
	}
	return id, nil
}

// Require looks up a session and verifies caller ownership.
func (c *Coordinator) Require(sessionID, callerUsername string) (*Session, error) {
	c.mu.Lock()
	sess, ok := c.sessions[sessionID]
	_, swept := c.sweptTombstones[sessionID]
	c.mu.Unlock()

	if !ok {
		if swept {
			return nil, svcerr.FailedPrecondition("transaction " + sessionID + " was rolled back after exceeding the idle threshold")
		}
		return nil, svcerr.NotFound("transaction not found: " + sessionID)
	}
	if sess.User != callerUsername {
		return nil, svcerr.PermissionDenied("transaction " + sessionID + " does not belong to " + callerUsername)
	}
	return sess, nil
}

// MarkDirty idempotently records that physicalCollection was written
// during sess.
func (c *Coordinator) MarkDirty(sess *Session, physicalCollection string) {
	sess.markDirty(physicalCollection)
}

func (c *Coordinator) release(sess *Session) {
	c.mu.Lock()
	delete(c.sessions, sess.ID)
	if c.activeByDB[sess.DatabaseID] == sess.ID {
		delete(c.activeByDB, sess.DatabaseID)
	}
	c.mu.Unlock()
	sem := c.semaphoreFor(sess.DatabaseID)
	<-sem
}

// Commit commits sess's engine transaction, invalidates the cache for
// every dirtied collection, releases the semaphore, and removes the
// session. A commit failure still rolls back and releases the slot.
func (c *Coordinator) Commit(ctx context.Context, sessionID, callerUsername string) error {
	sess, err := c.Require(sessionID, callerUsername)
	if err != nil {
		return err
	}
	eng, err := c.registry.Get(sess.DatabaseID)
	if err != nil {
		c.release(sess)
		return err
	}

	if err := eng.CommitTx(ctx, sess.engineTx); err != nil {
		_ = eng.RollbackTx(ctx, sess.engineTx)
		c.release(sess)
		if c.log != nil {
			c.log.WithContext(ctx).WithField("session", sessionID).WithError(err).Error("transaction commit failed, rolled back")
		}
		return svcerr.Internal("committing transaction", err)
	}

	for _, col := range sess.dirtyCollections() {
		c.invalidator.Invalidate(sess.DatabaseID, col)
	}
	c.release(sess)
	if c.log != nil {
		c.log.WithContext(ctx).WithField("session", sessionID).WithField("auditToken", sess.AuditToken).Info("transaction commit")
	}
	return nil
}

// Rollback rolls back sess's engine transaction, releases the semaphore,
// and removes the session. No cache invalidation occurs.
func (c *Coordinator) Rollback(ctx context.Context, sessionID, callerUsername string) error {
	sess, err := c.Require(sessionID, callerUsername)
	if err != nil {
		return err
	}
	eng, err := c.registry.Get(sess.DatabaseID)
	if err == nil {
		_ = eng.RollbackTx(ctx, sess.engineTx)
	}
	c.release(sess)
	if c.log != nil {
		c.log.WithContext(ctx).WithField("session", sessionID).WithField("auditToken", sess.AuditToken).Info("transaction rollback")
	}
	return nil
}

// HasActive reports whether any session currently holds databaseID's slot.
func (c *Coordinator) HasActive(databaseID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.activeByDB[databaseID]
	return ok
}

const tombstoneRetention = 10 * time.Minute

// Sweep rolls back every session idle longer than the configured
// threshold, as if the client had called Rollback.
func (c *Coordinator) Sweep() {
	ctx := context.Background()
	c.mu.Lock()
	var stale []*Session
	for _, sess := range c.sessions {
		if sess.idleSince() > c.idleThreshold {
			stale = append(stale, sess)
		}
	}
	now := time.Now()
	for id, at := range c.sweptTombstones {
		if now.Sub(at) > tombstoneRetention {
			delete(c.sweptTombstones, id)
		}
	}
	c.mu.Unlock()

	for _, sess := range stale {
		eng, err := c.registry.Get(sess.DatabaseID)
		if err == nil {
			_ = eng.RollbackTx(ctx, sess.engineTx)
		}
		c.mu.Lock()
		c.sweptTombstones[sess.ID] = time.Now()
		c.mu.Unlock()
		c.release(sess)
		if c.log != nil {
			c.log.WithField("session", sess.ID).WithField("database", sess.DatabaseID).Warn("swept idle transaction")
		}
	}
}
