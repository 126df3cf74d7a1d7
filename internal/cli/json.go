package cli

import (
	"encoding/json"
	"errors"
	"io"
	"strings"

	dherrors "github.com/rileyhilliard/deckhand/internal/errors"
	"github.com/rileyhilliard/deckhand/internal/probe"
	"github.com/rileyhilliard/deckhand/internal/session"
)

// JSONEnvelope wraps command output in a consistent structure for machine parsing.
// All --json output should use this envelope.
type JSONEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *JSONError  `json:"error,omitempty"`
}

// JSONError provides structured error information for machine parsing.
type JSONError struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Suggestion string      `json:"suggestion,omitempty"`
	Details    interface{} `json:"details,omitempty"`
}

// Error codes for machine-readable output.
const (
	ErrCodeConfigNotFound = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "CONFIG_INVALID"
	ErrCodeProbeFailed    = "PROBE_FAILED"
	ErrCodeSessionDenied  = "SESSION_DENIED"
	ErrCodeSessionFailed  = "SESSION_FAILED"
	ErrCodeFilterInvalid  = "FILTER_INVALID"
	ErrCodeServerFailed   = "SERVER_FAILED"
	ErrCodeUnknown        = "UNKNOWN"
)

// WriteJSONSuccess writes a successful response with data to the writer.
func WriteJSONSuccess(w io.Writer, data interface{}) error {
	return writeJSONEnvelope(w, JSONEnvelope{Success: true, Data: data})
}

// WriteJSONFromError converts a Go error to a JSON error response.
func WriteJSONFromError(w io.Writer, err error) error {
	return writeJSONEnvelope(w, JSONEnvelope{Success: false, Error: ErrorToJSON(err)})
}

func writeJSONEnvelope(w io.Writer, env JSONEnvelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

// ErrorToJSON converts a Go error to a JSONError with appropriate code mapping.
func ErrorToJSON(err error) *JSONError {
	if err == nil {
		return nil
	}

	var pe *probe.ProbeError
	if errors.As(err, &pe) {
		return &JSONError{
			Code:    ErrCodeProbeFailed,
			Message: pe.Error(),
			Details: map[string]interface{}{"node": pe.Node, "reason": string(pe.Reason)},
		}
	}

	var dhErr *dherrors.Error
	if errors.As(err, &dhErr) {
		code := mapErrorCode(dhErr.Code, dhErr.Message)
		if errors.Is(err, session.ErrDenied) {
			code = ErrCodeSessionDenied
		}
		return &JSONError{
			Code:       code,
			Message:    dhErr.Message,
			Suggestion: dhErr.Suggestion,
		}
	}

	if errors.Is(err, session.ErrDenied) {
		return &JSONError{Code: ErrCodeSessionDenied, Message: err.Error()}
	}
	return &JSONError{Code: ErrCodeUnknown, Message: err.Error()}
}

// mapErrorCode maps internal error codes to machine-readable codes.
func mapErrorCode(internalCode, message string) string {
	switch internalCode {
	case dherrors.ErrConfig:
		if strings.Contains(strings.ToLower(message), "not found") {
			return ErrCodeConfigNotFound
		}
		return ErrCodeConfigInvalid
	case dherrors.ErrProbe:
		return ErrCodeProbeFailed
	case dherrors.ErrSession:
		return ErrCodeSessionFailed
	case dherrors.ErrFilter:
		return ErrCodeFilterInvalid
	case dherrors.ErrServer:
		return ErrCodeServerFailed
	}
	return ErrCodeUnknown
}
