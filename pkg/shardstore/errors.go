package shardstore

import "fmt"

// ErrorCode is the closed set of typed errors a prepare or apply handler
// can return to a caller. It never grows silently: every handler that can
// fail names one of these, and a caller-facing response carries the code
// verbatim rather than a free-form message, the same closed-enum-plus-
// response-body convention pkg/metadata/errors.go uses for NFS status
// codes.
type ErrorCode uint16

const (
	ErrorCodeNone ErrorCode = iota
	ErrorCodeBadShard
	ErrorCodeBadName
	ErrorCodeBadCookie
	ErrorCodeBadSpanBody
	ErrorCodeBadBlockProof
	ErrorCodeBadNumberOfBlockProofs
	ErrorCodeCouldNotPickBlockServices
	ErrorCodeDirectoryNotFound
	ErrorCodeDirectoryNotEmpty
	ErrorCodeDirectoryHasOwner
	ErrorCodeEdgeNotFound
	ErrorCodeEdgeIsLocked
	ErrorCodeEdgeNotOwned
	ErrorCodeFileNotFound
	ErrorCodeFileIsNotTransient
	ErrorCodeFileNotEmpty
	ErrorCodeFileEmpty
	ErrorCodeLastSpanStateNotClean
	ErrorCodeMismatchingTarget
	ErrorCodeMismatchingCreationTime
	ErrorCodeMismatchingOwner
	ErrorCodeMoreRecentCurrentEdge
	ErrorCodeMoreRecentSnapshotEdge
	ErrorCodeMtimeIsTooRecent
	ErrorCodeNameIsLocked
	ErrorCodeCannotOverrideName
	ErrorCodeCannotRemoveRoot
	ErrorCodeDeadlineNotPassed
	ErrorCodeSpanNotFound
	ErrorCodeCannotCertifyBlocklessSpan
	ErrorCodeSwapMismatchingSize
	ErrorCodeSwapMismatchingCrc
	ErrorCodeSwapMismatchingState
	ErrorCodeSwapMismatchingLocation
	ErrorCodeSwapNotClean
	ErrorCodeSwapInlineStorage
	ErrorCodeSwapLocationExists
	ErrorCodeBlockNotFound
	ErrorCodeTypeIsDirectory
	ErrorCodeTypeIsNotDirectory
	ErrorCodeNameNotFound
)

var errorCodeNames = map[ErrorCode]string{
	ErrorCodeNone:                       "NONE",
	ErrorCodeBadShard:                   "BAD_SHARD",
	ErrorCodeBadName:                    "BAD_NAME",
	ErrorCodeBadCookie:                  "BAD_COOKIE",
	ErrorCodeBadSpanBody:                "BAD_SPAN_BODY",
	ErrorCodeBadBlockProof:              "BAD_BLOCK_PROOF",
	ErrorCodeBadNumberOfBlockProofs:     "BAD_NUMBER_OF_BLOCK_PROOFS",
	ErrorCodeCouldNotPickBlockServices:  "COULD_NOT_PICK_BLOCK_SERVICES",
	ErrorCodeDirectoryNotFound:          "DIRECTORY_NOT_FOUND",
	ErrorCodeDirectoryNotEmpty:          "DIRECTORY_NOT_EMPTY",
	ErrorCodeDirectoryHasOwner:          "DIRECTORY_HAS_OWNER",
	ErrorCodeEdgeNotFound:               "EDGE_NOT_FOUND",
	ErrorCodeEdgeIsLocked:               "EDGE_IS_LOCKED",
	ErrorCodeEdgeNotOwned:               "EDGE_NOT_OWNED",
	ErrorCodeFileNotFound:               "FILE_NOT_FOUND",
	ErrorCodeFileIsNotTransient:         "FILE_IS_NOT_TRANSIENT",
	ErrorCodeFileNotEmpty:               "FILE_NOT_EMPTY",
	ErrorCodeFileEmpty:                  "FILE_EMPTY",
	ErrorCodeLastSpanStateNotClean:      "LAST_SPAN_STATE_NOT_CLEAN",
	ErrorCodeMismatchingTarget:          "MISMATCHING_TARGET",
	ErrorCodeMismatchingCreationTime:    "MISMATCHING_CREATION_TIME",
	ErrorCodeMismatchingOwner:           "MISMATCHING_OWNER",
	ErrorCodeMoreRecentCurrentEdge:      "MORE_RECENT_CURRENT_EDGE",
	ErrorCodeMoreRecentSnapshotEdge:     "MORE_RECENT_SNAPSHOT_EDGE",
	ErrorCodeMtimeIsTooRecent:           "MTIME_IS_TOO_RECENT",
	ErrorCodeNameIsLocked:               "NAME_IS_LOCKED",
	ErrorCodeCannotOverrideName:         "CANNOT_OVERRIDE_NAME",
	ErrorCodeCannotRemoveRoot:           "CANNOT_REMOVE_ROOT",
	ErrorCodeDeadlineNotPassed:          "DEADLINE_NOT_PASSED",
	ErrorCodeSpanNotFound:               "SPAN_NOT_FOUND",
	ErrorCodeCannotCertifyBlocklessSpan: "CANNOT_CERTIFY_BLOCKLESS_SPAN",
	ErrorCodeSwapMismatchingSize:        "SWAP_MISMATCHING_SIZE",
	ErrorCodeSwapMismatchingCrc:         "SWAP_MISMATCHING_CRC",
	ErrorCodeSwapMismatchingState:       "SWAP_MISMATCHING_STATE",
	ErrorCodeSwapMismatchingLocation:    "SWAP_MISMATCHING_LOCATION",
	ErrorCodeSwapNotClean:               "SWAP_NOT_CLEAN",
	ErrorCodeSwapInlineStorage:          "SWAP_INLINE_STORAGE",
	ErrorCodeSwapLocationExists:         "SWAP_LOCATION_EXISTS",
	ErrorCodeBlockNotFound:              "BLOCK_NOT_FOUND",
	ErrorCodeTypeIsDirectory:            "TYPE_IS_DIRECTORY",
	ErrorCodeTypeIsNotDirectory:         "TYPE_IS_NOT_DIRECTORY",
	ErrorCodeNameNotFound:               "NAME_NOT_FOUND",
}

func (c ErrorCode) String() string {
	if s, ok := errorCodeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("ErrorCode(%d)", uint16(c))
}

// Error is the typed error every prepare/apply handler returns. It is not
// a Go panic-worthy condition: it is data, meant to be serialized back to
// the caller as a response body. Fatal invariant violations (protocol
// mismatches, out-of-order log indices) use FatalError instead and are
// never wrapped here.
type Error struct {
	Code   ErrorCode
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// NewError builds a typed handler error, optionally with a human-readable
// detail string (never parsed by callers, purely diagnostic).
func NewError(code ErrorCode, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

// Is lets errors.Is match on ErrorCode alone, ignoring Detail, so callers
// can write `errors.Is(err, shardstore.NewError(ErrorCodeFileNotFound, ""))`.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// FatalError marks an invariant violation that must abort the process
// rather than be reported to a caller: log-index ordering, protocol
// version mismatches, key/size bounds baked into the wire format. Per
// §7, these are never recoverable at the handler level.
type FatalError struct {
	Reason string
}

func (e *FatalError) Error() string { return "fatal: " + e.Reason }
