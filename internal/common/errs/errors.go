// Copyright © 2025 DBDiag Agents Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errs defines the error taxonomy shared by every layer of the
// diagnostic agent suite, so workflows can pattern-match on error kind
// rather than parsing messages.
package errs

import "fmt"

// Kind is one of the error kinds named across the DB gateway, tool
// runtime, log ingestor, and orchestrator.
type Kind string

const (
	KindUnsafeQuery             Kind = "UnsafeQuery"
	KindBadArgs                 Kind = "BadArgs"
	KindInputBlocked            Kind = "InputBlocked"
	KindTimeout                 Kind = "Timeout"
	KindCancelled               Kind = "Cancelled"
	KindConnectionLost          Kind = "ConnectionLost"
	KindAuthFailed              Kind = "AuthFailed"
	KindBackendError            Kind = "BackendError"
	KindSchemaMissing           Kind = "SchemaMissing"
	KindInstrumentationDisabled Kind = "InstrumentationDisabled"
	KindUnauthorized            Kind = "Unauthorized"
	KindForbidden               Kind = "Forbidden"
	KindNotConfigured           Kind = "NotConfigured"
	KindTooLarge                Kind = "TooLarge"
	KindFileNotFound            Kind = "FileNotFound"
	KindPermissionDenied        Kind = "PermissionDenied"
	KindUnknownTool             Kind = "UnknownTool"
	KindBudgetExceeded          Kind = "BudgetExceeded"
)

// DBDiagError is the interface every error kind implements. Callers
// branch on Kind rather than on message text.
type DBDiagError interface {
	error
	Kind() Kind
	Code() int
	Suggestion() string
	Unwrap() error
}

type baseError struct {
	kind       Kind
	code       int
	message    string
	suggestion string
	cause      error
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

func (e *baseError) Kind() Kind         { return e.kind }
func (e *baseError) Code() int          { return e.code }
func (e *baseError) Suggestion() string { return e.suggestion }
func (e *baseError) Unwrap() error      { return e.cause }

// New constructs a DBDiagError of the given kind with no wrapped cause.
func New(kind Kind, message string) DBDiagError {
	return &baseError{kind: kind, message: message}
}

// Newf is New with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) DBDiagError {
	return &baseError{kind: kind, message: fmt.Sprintf(format, args...)}
}

// Wrap constructs a DBDiagError of the given kind wrapping an existing error.
func Wrap(kind Kind, message string, cause error) DBDiagError {
	return &baseError{kind: kind, message: message, cause: cause}
}

// WithSuggestion attaches a human-readable remediation hint.
func WithSuggestion(e DBDiagError, suggestion string) DBDiagError {
	if be, ok := e.(*baseError); ok {
		cp := *be
		cp.suggestion = suggestion
		return &cp
	}
	return e
}

// WithCode attaches a backend-specific numeric code, used by BackendError
// and observability-API errors that carry an HTTP/driver status.
func WithCode(e DBDiagError, code int) DBDiagError {
	if be, ok := e.(*baseError); ok {
		cp := *be
		cp.code = code
		return &cp
	}
	return e
}

// BackendError wraps a database driver error with its numeric code.
func BackendError(code int, cause error) DBDiagError {
	return &baseError{kind: KindBackendError, code: code, message: "backend error", cause: cause}
}

// Is reports whether err is a DBDiagError of the given kind.
func Is(err error, kind Kind) bool {
	de, ok := err.(DBDiagError)
	return ok && de.Kind() == kind
}

// GetKind extracts the Kind from err, or "" if err is not a DBDiagError.
func GetKind(err error) Kind {
	if de, ok := err.(DBDiagError); ok {
		return de.Kind()
	}
	return ""
}
