package rpcsurface

import (
	"github.com/blite-io/blite-server/internal/cache"
	"github.com/blite-io/blite-server/internal/engine"
	"github.com/blite-io/blite-server/internal/identity"
	"github.com/blite-io/blite-server/internal/txn"
)

// callContext bundles the per-call resolution every Dynamic/Document/
// Metadata method needs: the target engine, the physical collection name
// the caller's logical name resolves to, and (if the call carried a
// transaction id) the session whose engine handle writes must go through.
type callContext struct {
	databaseID string
	eng        engine.Engine
	physical   string
	sess       *txn.Session
	tx         engine.Tx
}

// resolve authenticates collection access for c's user against op,
// applies the database restriction check, looks up the target engine,
// and — if transactionID is non-empty — attaches the caller's session.
func (s *Server) resolve(c *Conn, databaseID, logicalCollection string, op identity.Op, transactionID string) (callContext, error) {
	databaseID = engine.NormalizeDatabaseID(databaseID)
	if err := s.guard.CheckDatabase(c.user, databaseID); err != nil {
		return callContext{}, err
	}
	physical, err := s.guard.Authorize(c.user, logicalCollection, op)
	if err != nil {
		return callContext{}, err
	}
	eng, err := s.registry.Get(databaseID)
	if err != nil {
		return callContext{}, err
	}
	cc := callContext{databaseID: databaseID, eng: eng, physical: physical}
	if transactionID != "" {
		sess, err := s.coord.Require(transactionID, c.user.Username)
		if err != nil {
			return callContext{}, err
		}
		cc.sess = sess
		cc.tx = sess.EngineTx()
	}
	return cc, nil
}

// markDirty invalidates the query cache (ad hoc writes) or flags the
// session's physical collection as dirty (transactional writes), the RPC
// counterpart of httpapi's engineAndTx/cache-invalidate pairing.
func (s *Server) markDirty(cc callContext) {
	if cc.sess != nil {
		s.coord.MarkDirty(cc.sess, cc.physical)
		return
	}
	if s.cache != nil {
		s.cache.Invalidate(cc.databaseID, cc.physical)
	}
}

// cachedRead returns a cached result for key if the cache is enabled and
// no transaction is active on the database (spec.md §5's cache-bypass
// rule), mirroring httpapi's runQuery/listDocuments guard.
func (s *Server) cachedRead(cc callContext, variant cache.Variant, paramsHash string) (interface{}, bool) {
	if s.cache == nil || s.coord.HasActive(cc.databaseID) {
		return nil, false
	}
	return s.cache.Get(cache.Key(cc.databaseID, cc.physical, variant, paramsHash), cc.databaseID, cc.physical)
}

func (s *Server) cacheStore(cc callContext, variant cache.Variant, paramsHash string, value interface{}) {
	if s.cache == nil || s.coord.HasActive(cc.databaseID) {
		return
	}
	s.cache.Set(cache.Key(cc.databaseID, cc.physical, variant, paramsHash), value, cc.databaseID, cc.physical)
}
