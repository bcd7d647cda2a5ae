package rpcsurface

import (
	"fmt"

	"github.com/blite-io/blite-server/internal/svcerr"
)

func errUnknownMethod(service Service, method byte) error {
	return svcerr.InvalidInput(fmt.Sprintf("%s has no method #%d", service, method))
}

// rpcStatusByKind mirrors spec.md §7's Kind -> Surface table on the RPC
// side, the way httpapi's svcerr.httpStatusByKind does on the HTTP side.
var rpcStatusByKind = map[svcerr.Kind]string{
	svcerr.KindMissingKey:    "Unauthenticated",
	svcerr.KindInactiveUser:  "PermissionDenied",
	svcerr.KindPermission:    "PermissionDenied",
	svcerr.KindNotFound:      "NotFound",
	svcerr.KindConflict:      "AlreadyExists",
	svcerr.KindInvalidInput:  "InvalidArgument",
	svcerr.KindSemantic:      "FailedPrecondition",
	svcerr.KindFailedPrecond: "FailedPrecondition",
	svcerr.KindInternal:      "Internal",
}

// rpcStatus resolves err to an (*svcerr.Error)-aware status string plus
// message, never leaking an unrecognised error's detail (spec.md §7:
// "cause/stack never leaves the process").
func rpcStatus(err error) (status, message string) {
	se, ok := svcerr.As(err)
	if !ok {
		return "Internal", "internal server error"
	}
	status, ok = rpcStatusByKind[se.Kind]
	if !ok {
		status = "Internal"
	}
	return status, se.Message
}
