package txn

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// auditClaims is the payload of the signed, opaque-to-clients audit token
// issued alongside every transaction session. It is never required to
// authorize anything — Require still looks sessions up by id in the
// sessions table — it exists purely so an operator can independently
// verify, offline, that a logged Begin/Commit/Rollback triple was not
// tampered with after the fact.
type auditClaims struct {
	SessionID  string `json:"sid"`
	User       string `json:"usr"`
	DatabaseID string `json:"db"`
	jwt.RegisteredClaims
}

func (c *Coordinator) issueAuditToken(sessionID, user, databaseID string) string {
	if len(c.auditSecret) == 0 {
		return ""
	}
	claims := auditClaims{
		SessionID:  sessionID,
		User:       user,
		DatabaseID: databaseID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
			Issuer:   "blite-server-txn",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.auditSecret)
	if err != nil {
		return ""
	}
	return signed
}
