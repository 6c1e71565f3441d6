package bundle

import (
	"errors"
	"time"
)

// ErrorCode classifies every failure the pipeline can produce. The set is
// closed: the cache derives TTLs from it and callers derive HTTP statuses,
// so new codes are a compatibility event.
type ErrorCode string

const (
	CodeFetchFailed       ErrorCode = "FETCH_FAILED"
	CodeInstallFailed     ErrorCode = "INSTALL_FAILED"
	CodeSizeLimitExceeded ErrorCode = "SIZE_LIMIT_EXCEEDED"
	CodeUnsupported       ErrorCode = "UNSUPPORTED_PACKAGE"
	CodeNodeBuiltins      ErrorCode = "NODE_BUILTIN_MODULES"
	CodeNoEntryPoint      ErrorCode = "NO_ENTRY_POINT"
	CodeBundleFailed      ErrorCode = "BUNDLE_FAILED"
	CodeTimeout           ErrorCode = "TIMEOUT"
	CodeUnknown           ErrorCode = "UNKNOWN"
)

// PipelineError is the single error type crossing pipeline stage
// boundaries. Stages return it instead of throwing heterogeneous errors;
// the worker turns it into a failure BundleResponse at the edge.
type PipelineError struct {
	Code     ErrorCode
	Message  string
	Subpaths []string // candidate entry points, NO_ENTRY_POINT only
}

func (e *PipelineError) Error() string {
	return e.Message
}

// NewPipelineError creates a PipelineError with a code and message.
func NewPipelineError(code ErrorCode, message string) *PipelineError {
	return &PipelineError{Code: code, Message: message}
}

// CodeFor extracts the error code from an error, defaulting to UNKNOWN for
// anything that is not a PipelineError.
func CodeFor(err error) ErrorCode {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeUnknown
}

// FailedFromError builds a failure response from a pipeline error,
// preserving candidate subpaths when present.
func FailedFromError(req BundleRequest, err error, started time.Time) BundleResponse {
	resp := Failed(req, CodeFor(err), err.Error(), started)

	var pe *PipelineError
	if errors.As(err, &pe) && len(pe.Subpaths) > 0 {
		resp.Error.Subpaths = pe.Subpaths
	}
	return resp
}
