package match

import (
	"errors"
	"fmt"
)

// Kind classifies a domain rejection.
type Kind string

const (
	KindNotFound     Kind = "NOT_FOUND"
	KindValidation   Kind = "VALIDATION"
	KindInvalidState Kind = "INVALID_STATE"
	KindConflict     Kind = "CONFLICT"
)

const (
	CodeMatchNotFound      = "MATCH_NOT_FOUND"
	CodePlayerNotFound     = "PLAYER_NOT_FOUND"
	CodeInvalidMove        = "INVALID_MOVE"
	CodeSamePlayer         = "SAME_PLAYER"
	CodeMatchNotInProgress = "MATCH_NOT_IN_PROGRESS"
	CodeOriginNotFinished  = "ORIGIN_NOT_FINISHED"
	CodeRematchOutstanding = "REMATCH_OUTSTANDING"
	CodeHandleRequired     = "HANDLE_REQUIRED"
	CodeHandleTaken        = "HANDLE_TAKEN"
	CodePlayerReferenced   = "PLAYER_REFERENCED"
	CodeMatchReferenced    = "MATCH_REFERENCED"
	CodeInvalidID          = "INVALID_ID"
)

// Error is a domain rejection. Meta carries the values the message refers to
// so the request layer can render its own text.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Meta    map[string]any
}

func (e *Error) Error() string { return e.Message }

// ErrStorage marks infrastructure failures. It is never a *Error.
var ErrStorage = errors.New("storage failure")

func newError(kind Kind, code string, meta map[string]any, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...), Meta: meta}
}

func matchNotFound(id int64) *Error {
	return newError(KindNotFound, CodeMatchNotFound, map[string]any{"match_id": id}, "match %d not found", id)
}

func playerNotFound(ref any) *Error {
	return newError(KindNotFound, CodePlayerNotFound, map[string]any{"player": ref}, "player %v not found", ref)
}

func invalidMove(move string) *Error {
	return newError(KindValidation, CodeInvalidMove, map[string]any{"move": move}, "invalid move %q", move)
}

// InvalidID is returned by callers that fail to parse an identifier.
func InvalidID(value string) *Error {
	return newError(KindValidation, CodeInvalidID, map[string]any{"value": value}, "invalid id %q", value)
}

// AsError extracts the domain error from err.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// KindOf returns the kind of a domain error; ok is false for anything else.
func KindOf(err error) (Kind, bool) {
	if de, ok := AsError(err); ok {
		return de.Kind, true
	}
	return "", false
}

func IsKind(err error, k Kind) bool {
	got, ok := KindOf(err)
	return ok && got == k
}

func wrapStorage(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
