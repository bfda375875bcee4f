package cli

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"strings"

	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/rileyhilliard/fleet/internal/host"
)

// Machine mode flag - when true, outputs JSON and suppresses human-friendly decorations
var machineMode bool

// MachineMode returns true if machine-readable output is enabled
func MachineMode() bool {
	return machineMode
}

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
// These map to specific actions an agent can take.
const (
	ErrCodeConfigNotFound    = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid     = "CONFIG_INVALID"
	ErrCodeValidation        = "VALIDATION_FAILED"
	ErrCodeHostNotFound      = "HOST_NOT_FOUND"
	ErrCodeProjectNotFound   = "PROJECT_NOT_FOUND"
	ErrCodeProjectAmbiguous  = "PROJECT_AMBIGUOUS"
	ErrCodePoolExhausted     = "POOL_EXHAUSTED"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeCacheCorrupt      = "CACHE_CORRUPT"
	ErrCodeSSHTimeout        = "SSH_TIMEOUT"
	ErrCodeSSHAuthFailed     = "SSH_AUTH_FAILED"
	ErrCodeSSHHostKey        = "SSH_HOST_KEY"
	ErrCodeSSHConnectionFail = "SSH_CONNECTION_FAILED"
	ErrCodeCommandFailed     = "COMMAND_FAILED"
	ErrCodeUnknown           = "UNKNOWN"
)

// WriteJSONSuccess writes a successful response with data to the writer.
func WriteJSONSuccess(w io.Writer, data interface{}) error {
	env := JSONEnvelope{
		Success: true,
		Data:    data,
	}
	return writeJSONEnvelope(w, env)
}

// WriteJSONError writes an error response to the writer.
func WriteJSONError(w io.Writer, code, message, suggestion string, details interface{}) error {
	env := JSONEnvelope{
		Success: false,
		Error: &JSONError{
			Code:       code,
			Message:    message,
			Suggestion: suggestion,
			Details:    details,
		},
	}
	return writeJSONEnvelope(w, env)
}

// WriteJSONFromError converts a Go error to a JSON error response.
func WriteJSONFromError(w io.Writer, err error) error {
	env := JSONEnvelope{
		Success: false,
		Error:   ErrorToJSON(err),
	}
	return writeJSONEnvelope(w, env)
}

// writeJSONEnvelope writes the envelope with consistent formatting.
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

	// Probe errors carry a more specific SSH reason than the wrapping code.
	var probeErr *host.ProbeError
	if stderrors.As(err, &probeErr) {
		return probeErrorToJSON(probeErr)
	}

	var fleetErr *errors.Error
	if stderrors.As(err, &fleetErr) {
		jsonErr := &JSONError{
			Code:       mapErrorCode(fleetErr.Code, fleetErr.Message),
			Message:    fleetErr.Message,
			Suggestion: fleetErr.Suggestion,
		}
		if details := errorDetails(fleetErr); len(details) > 0 {
			jsonErr.Details = details
		}
		return jsonErr
	}

	return &JSONError{
		Code:    ErrCodeUnknown,
		Message: err.Error(),
	}
}

// mapErrorCode maps internal error codes to machine-readable codes.
func mapErrorCode(internalCode, message string) string {
	msgLower := strings.ToLower(message)
	switch internalCode {
	case errors.ErrConfig:
		if strings.Contains(msgLower, "not found") || strings.Contains(msgLower, "couldn't find") {
			return ErrCodeConfigNotFound
		}
		return ErrCodeConfigInvalid
	case errors.ErrValidation:
		return ErrCodeValidation
	case errors.ErrResolve:
		switch {
		case strings.HasPrefix(msgLower, "host "):
			return ErrCodeHostNotFound
		case strings.Contains(msgLower, "multiple hosts"):
			return ErrCodeProjectAmbiguous
		case strings.Contains(msgLower, "not found"):
			return ErrCodeProjectNotFound
		}
		return ErrCodeHostNotFound
	case errors.ErrPool:
		if strings.Contains(msgLower, "exhausted") {
			return ErrCodePoolExhausted
		}
		return ErrCodeSSHConnectionFail
	case errors.ErrTimeout:
		return ErrCodeTimeout
	case errors.ErrCache:
		return ErrCodeCacheCorrupt
	case errors.ErrSSH:
		return ErrCodeSSHConnectionFail
	case errors.ErrExec:
		return ErrCodeCommandFailed
	}

	return ErrCodeUnknown
}

func errorDetails(e *errors.Error) map[string]interface{} {
	details := map[string]interface{}{}
	if e.Host != "" {
		details["host"] = e.Host
	}
	if e.Op != "" {
		details["op"] = e.Op
	}
	if e.Param != "" {
		details["param"] = e.Param
	}
	return details
}

// probeErrorToJSON converts a probe error to JSON with specific SSH error codes.
func probeErrorToJSON(probeErr *host.ProbeError) *JSONError {
	var code string
	switch probeErr.Reason {
	case host.ProbeFailTimeout:
		code = ErrCodeSSHTimeout
	case host.ProbeFailAuth:
		code = ErrCodeSSHAuthFailed
	case host.ProbeFailHostKey:
		code = ErrCodeSSHHostKey
	case host.ProbeFailPool:
		code = ErrCodePoolExhausted
	default:
		code = ErrCodeSSHConnectionFail
	}

	return &JSONError{
		Code:       code,
		Message:    probeErr.Error(),
		Suggestion: probeErr.Suggestion(),
		Details: map[string]interface{}{
			"reason": probeErr.Reason.String(),
			"host":   probeErr.Host,
		},
	}
}
