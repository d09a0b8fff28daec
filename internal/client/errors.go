package client

import (
	"fmt"
	"strings"
)

// Code is the closed error taxonomy. Every failure surfaced by this package
// carries exactly one of these values.
type Code string

const (
	CodeMTLSHandshakeFailed Code = "mtls_handshake_failed"
	CodeForbidden           Code = "forbidden"
	CodePIIBlocked          Code = "pii_blocked"
	CodeValidationError     Code = "validation_error"
	CodeNotFound            Code = "not_found"
	CodeDBDown              Code = "db_down"
	CodeServerError         Code = "server_error"
	CodeNetworkError        Code = "network_error"
	CodeTimeout             Code = "timeout"
	CodeUnknown             Code = "unknown"
)

// Error is a classified backend or transport failure.
// TransportLevel is true when the failure occurred before any HTTP response
// was received, so no status code exists.
type Error struct {
	Code           Code   `json:"code"`
	Message        string `json:"message"`
	RequestID      string `json:"request_id,omitempty"`
	TransportLevel bool   `json:"-"`
}

func (e *Error) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("%s: %s (request_id=%s)", e.Code, e.Message, e.RequestID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// userMessage is the single source of truth for user-facing remediation text.
// Call sites select by code, they never invent their own wording.
func userMessage(code Code, detail string) string {
	switch code {
	case CodeMTLSHandshakeFailed:
		return "Klientcertifikat krävs. Installera ditt mTLS-certifikat i webbläsaren. Se: docs/MTLS_BROWSER_SETUP.md"
	case CodeForbidden:
		return "Åtkomst nekad. Kontrollera dina behörigheter."
	case CodePIIBlocked:
		return "Personuppgifter detekterades. Data måste anonymiseras innan bearbetning."
	case CodeDBDown:
		return "Databas saknas. Vänta eller kontakta operatör."
	case CodeServerError:
		return "Serverfel. Försök igen senare."
	case CodeNetworkError:
		return "Nätverksfel. Kontrollera anslutning."
	case CodeTimeout:
		return "Inget svar från servern. Försök igen."
	case CodeValidationError:
		if detail != "" {
			return detail
		}
		return "Valideringsfel. Kontrollera indata."
	case CodeNotFound:
		return "Resurs hittades inte."
	default:
		if detail != "" {
			return detail
		}
		return "Ett okänt fel uppstod."
	}
}

// tlsFailure reports whether a transport error message points at a TLS
// client-certificate problem rather than generic connectivity. The backend
// sits behind an mTLS-terminating proxy, so a handshake failure has a
// specific remediation and must not be reported as a plain network error.
func tlsFailure(msg string) bool {
	for _, marker := range []string{"certificate", "handshake", "SSL", "TLS", "tls:", "x509"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// errorBody is the subset of a failure response body the classifier inspects.
type errorBody struct {
	Detail string `json:"detail,omitempty"`
	Status string `json:"status,omitempty"`
	Error  *struct {
		Detail  string `json:"detail,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error,omitempty"`
}

func (b *errorBody) detail() string {
	if b == nil {
		return ""
	}
	if b.Detail != "" {
		return b.Detail
	}
	if b.Error != nil {
		if b.Error.Detail != "" {
			return b.Error.Detail
		}
		return b.Error.Message
	}
	return ""
}

// databaseUnavailable detects a 503 caused by missing backend storage, which
// needs a different remediation than a generic server error.
func (b *errorBody) databaseUnavailable() bool {
	if b == nil {
		return false
	}
	if b.Status == "db_uninitialized" || b.Status == "db_down" {
		return true
	}
	return strings.Contains(b.detail(), "Database not available")
}

// Classify maps a transport outcome to the closed taxonomy. status is zero
// when no HTTP response was received; rawErr is the transport error if any;
// body is the parsed failure body if one was readable. Classify is pure: it
// performs no I/O and retains no state between calls.
func Classify(status int, rawErr error, body *errorBody) *Error {
	if status == 0 {
		code := CodeNetworkError
		if rawErr != nil && tlsFailure(rawErr.Error()) {
			code = CodeMTLSHandshakeFailed
		}
		return &Error{
			Code:           code,
			Message:        userMessage(code, ""),
			TransportLevel: true,
		}
	}

	var code Code
	switch status {
	case 401, 403:
		code = CodeForbidden
	case 422:
		code = CodePIIBlocked
	case 404:
		code = CodeNotFound
	case 400:
		code = CodeValidationError
	case 503:
		if body.databaseUnavailable() {
			code = CodeDBDown
		} else {
			code = CodeServerError
		}
	case 500, 502, 504:
		code = CodeServerError
	default:
		code = CodeUnknown
	}

	return &Error{
		Code:    code,
		Message: userMessage(code, body.detail()),
	}
}

// NewValidationError builds a client-side validation failure that never
// reached the network, so it carries no request id.
func NewValidationError(detail string) *Error {
	return &Error{
		Code:    CodeValidationError,
		Message: userMessage(CodeValidationError, detail),
	}
}

// NewTimeoutError marks a call that produced no response within its deadline.
func NewTimeoutError(requestID string) *Error {
	return &Error{
		Code:           CodeTimeout,
		Message:        userMessage(CodeTimeout, ""),
		RequestID:      requestID,
		TransportLevel: true,
	}
}

// AsError extracts a classified error, wrapping anything foreign as unknown.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*Error); ok {
		return apiErr
	}
	return &Error{
		Code:    CodeUnknown,
		Message: userMessage(CodeUnknown, err.Error()),
	}
}
