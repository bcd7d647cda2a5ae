package rpcsurface

import (
	"context"

	"github.com/blite-io/blite-server/internal/engine"
)

// TransactionService methods (spec.md §4.5): Begin returns an opaque
// transactionId; Commit/Rollback take that id. Commit routes every dirty
// collection through the cache invalidation the coordinator already owns;
// Rollback invalidates nothing.
const (
	methodBegin    byte = 1
	methodCommit   byte = 2
	methodRollback byte = 3
)

func init() {
	registerUnary(ServiceTransaction, methodBegin, "Begin", handleBegin)
	registerUnary(ServiceTransaction, methodCommit, "Commit", handleCommit)
	registerUnary(ServiceTransaction, methodRollback, "Rollback", handleRollback)
}

func handleBegin(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	r := newPayloadReader(payload)
	databaseID, err := r.readString()
	if err != nil {
		return nil, err
	}
	databaseID = engine.NormalizeDatabaseID(databaseID)
	if err := s.guard.CheckDatabase(c.user, databaseID); err != nil {
		return nil, err
	}

	transactionID, err := s.coord.Begin(ctx, c.user)
	if err != nil {
		return nil, err
	}
	w := &payloadWriter{}
	w.writeString(transactionID)
	return w.bytes(), nil
}

func handleCommit(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	r := newPayloadReader(payload)
	transactionID, err := r.readString()
	if err != nil {
		return nil, err
	}
	if err := s.coord.Commit(ctx, transactionID, c.user.Username); err != nil {
		return nil, err
	}
	return nil, nil
}

func handleRollback(ctx context.Context, s *Server, c *Conn, corr uint32, payload []byte) ([]byte, error) {
	r := newPayloadReader(payload)
	transactionID, err := r.readString()
	if err != nil {
		return nil, err
	}
	if err := s.coord.Rollback(ctx, transactionID, c.user.Username); err != nil {
		return nil, err
	}
	return nil, nil
}
