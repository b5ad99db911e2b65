// Package syncerr defines the error kinds every engine failure is tagged with.
package syncerr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnknown          Kind = "Unknown"
	KindNotInitialized   Kind = "NotInitialized"
	KindSyncInProgress   Kind = "SyncInProgress"
	KindProjectNotFound  Kind = "ProjectNotFound"
	KindInvalidArgument  Kind = "InvalidArgument"
	KindMergeUnsupported Kind = "MergeUnsupported"
	KindAssetTooLarge    Kind = "AssetTooLarge"
	KindAssetsDisabled   Kind = "AssetsDisabled"
	KindChecksumMismatch Kind = "ChecksumMismatch"
	KindNotFound         Kind = "NotFound"
	KindInviteExpired    Kind = "InviteExpired"
	KindUnsupported      Kind = "Unsupported"
	KindBackend          Kind = "Backend"
	KindStaleState       Kind = "StaleState"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}

	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same kind, so sentinels like
// ErrSyncInProgress work with errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Kind == e.Kind
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	if e, ok := errors.AsType[*Error](err); ok {
		return e.Kind
	}

	return KindUnknown
}

var (
	ErrNotInitialized   = &Error{Kind: KindNotInitialized, Msg: "sync engine is not initialized"}
	ErrSyncInProgress   = &Error{Kind: KindSyncInProgress, Msg: "sync already in progress"}
	ErrProjectNotFound  = &Error{Kind: KindProjectNotFound, Msg: "project not found"}
	ErrMergeUnsupported = &Error{Kind: KindMergeUnsupported, Msg: "no merge function registered"}
	ErrAssetTooLarge    = &Error{Kind: KindAssetTooLarge, Msg: "asset exceeds max upload size"}
	ErrAssetsDisabled   = &Error{Kind: KindAssetsDisabled, Msg: "asset sync is disabled"}
	ErrChecksumMismatch = &Error{Kind: KindChecksumMismatch, Msg: "checksum mismatch"}
	ErrNotFound         = &Error{Kind: KindNotFound, Msg: "not found"}
	ErrInviteExpired    = &Error{Kind: KindInviteExpired, Msg: "invite expired"}
	ErrStaleState       = &Error{Kind: KindStaleState, Msg: "remote state is newer"}
)
