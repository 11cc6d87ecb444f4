// Package fault carries tagged error values across component boundaries and
// runs compensating rollbacks when an effectful sequence fails partway.
//
// Errors are plain data, not exceptions: every effectful operation returns
// either (value, nil) or (nil, *Entry), optionally with the list of rollbacks
// accumulated so far. Only truly unexpected conditions panic and those are
// recovered at the request boundary.
package fault

import "fmt"

// DefaultLocale is the language used when no external message exists for the
// requested one.
const DefaultLocale = "en"

// Entry is a tagged error value. It carries everything the outer layers need
// to answer the request and to decide whether the condition is log-worthy.
type Entry struct {
	// Code is a dotted machine-readable identifier, e.g. "datastore.not_found".
	Code string
	// Internal is the operator-facing message, never shown to callers.
	Internal string
	// External maps language codes to the caller-facing message.
	External map[string]string
	// Status is the HTTP status the error maps to.
	Status int
	// ShouldLog marks the entry for the async log writer.
	ShouldLog bool
	// Params are structured values attached to the log record.
	Params map[string]any
}

// Error implements the error interface for logging convenience. Entries are
// still passed by value contract, not via error returns.
func (e *Entry) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Internal)
}

// Message returns the external message in the requested language, falling
// back to English and finally to the code itself.
func (e *Entry) Message(lang string) string {
	if m, ok := e.External[lang]; ok {
		return m
	}
	if m, ok := e.External[DefaultLocale]; ok {
		return m
	}
	return e.Code
}

// WithExternal adds a translation for lang and returns the entry.
func (e *Entry) WithExternal(lang, msg string) *Entry {
	if e.External == nil {
		e.External = map[string]string{}
	}
	e.External[lang] = msg
	return e
}

// WithInternal replaces the internal message and returns the entry.
func (e *Entry) WithInternal(format string, args ...any) *Entry {
	e.Internal = fmt.Sprintf(format, args...)
	return e
}

// WithParams attaches structured log parameters and returns the entry.
func (e *Entry) WithParams(params map[string]any) *Entry {
	e.Params = params
	return e
}

func newEntry(code, external string, status int, loggable bool) *Entry {
	return &Entry{
		Code:      code,
		Internal:  external,
		External:  map[string]string{DefaultLocale: external},
		Status:    status,
		ShouldLog: loggable,
	}
}

// Input reports a malformed request. Not logged.
func Input(code, external string) *Entry {
	return newEntry(code, external, 400, false)
}

// NotFound reports an absent resource under the active organization. Not logged.
func NotFound(code, external string) *Entry {
	return newEntry(code, external, 404, false)
}

// Conflict reports a uniqueness violation such as a duplicate name. Not logged.
func Conflict(code, external string) *Entry {
	return newEntry(code, external, 409, false)
}

// Denied reports a permission check failure. Not logged as an error; callers
// may audit-log it separately.
func Denied(code, external string) *Entry {
	return newEntry(code, external, 403, false)
}

// Engine wraps a database engine failure. Logged; triggers rollback.
func Engine(code string, err error) *Entry {
	e := newEntry(code, "a database operation failed", 500, true)
	if err != nil {
		e.Internal = err.Error()
	}
	return e
}

// Internal wraps an unexpected condition. Logged; triggers rollback.
func Internal(code string, err error) *Entry {
	e := newEntry(code, "an internal error occurred", 500, true)
	if err != nil {
		e.Internal = err.Error()
	}
	return e
}
