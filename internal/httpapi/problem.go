package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/blite-io/blite-server/internal/logging"
	"github.com/blite-io/blite-server/internal/svcerr"
)

// problemDetails is the RFC-9457 "application/problem+json" body
// spec.md §7 requires every error response to carry.
type problemDetails struct {
	Type    string                 `json:"type,omitempty"`
	Title   string                 `json:"title"`
	Status  int                    `json:"status"`
	Detail  string                 `json:"detail,omitempty"`
	Code    string                 `json:"code"`
	TraceID string                 `json:"traceId,omitempty"`
	Extra   map[string]interface{} `json:"extra,omitempty"`
}

// writeError maps err onto a ProblemDetails response. Unrecognised
// errors (not *svcerr.Error) are reported as 500 Internal without
// leaking their message, matching spec.md §7's "cause/stack never
// leaves the process" rule.
func writeError(w http.ResponseWriter, r *http.Request, log *logging.Logger, err error) {
	se, ok := svcerr.As(err)
	if !ok {
		se = svcerr.Internal("unexpected error", err)
	}
	if log != nil && se.Kind == svcerr.KindInternal {
		log.WithContext(r.Context()).WithError(err).Error("request failed")
	}
	writeJSON(w, se.HTTPStatus, problemDetails{
		Type:    "about:blank",
		Title:   string(se.Kind),
		Status:  se.HTTPStatus,
		Detail:  se.Message,
		Code:    string(se.Kind),
		TraceID: traceIDFromContext(r.Context()),
		Extra:   se.Details,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
