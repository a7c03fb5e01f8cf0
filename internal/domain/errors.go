package domain

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Sentinel errors for the query and settings paths.
var (
	ErrValidation        = fmt.Errorf("invalid request")
	ErrNotConfigured     = fmt.Errorf("no ai providers configured")
	ErrUnknownProvider   = fmt.Errorf("unknown provider")
	ErrProviderDisabled  = fmt.Errorf("provider is not enabled")
	ErrMissingCredential = fmt.Errorf("api key not configured")
	ErrTransport         = fmt.Errorf("http request error")
	ErrUpstream          = fmt.Errorf("upstream http error")
	ErrInvalidResponse   = fmt.Errorf("invalid provider response")
	ErrDecryption        = fmt.Errorf("decryption failed")
	ErrEncryption        = fmt.Errorf("encryption failed")
	ErrConfigLoad        = fmt.Errorf("failed to load configuration")
	ErrConfigSave        = fmt.Errorf("failed to save configuration")

	// Gateway / RPC errors.
	ErrAuthInvalid       = fmt.Errorf("authentication failed")
	ErrGatewayAuthFailed = fmt.Errorf("gateway: %w", ErrAuthInvalid)
	ErrRPCMethodNotFound = fmt.Errorf("rpc method not found")
	ErrRPCInvalidPayload = fmt.Errorf("rpc payload invalid")

	// RBAC errors.
	ErrForbidden = fmt.Errorf("forbidden: insufficient permissions")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "QueryService.Ask")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// maxUpstreamBody bounds how much of a failed provider response is kept.
const maxUpstreamBody = 2048

// UpstreamError carries the status and a truncated body of a non-2xx
// provider response. It unwraps to ErrUpstream.
type UpstreamError struct {
	StatusCode int
	Body       string
}

// NewUpstreamError builds an UpstreamError, truncating body on a rune
// boundary to a bounded length.
func NewUpstreamError(status int, body []byte) *UpstreamError {
	s := string(body)
	if len(s) > maxUpstreamBody {
		cut := maxUpstreamBody
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	return &UpstreamError{StatusCode: status, Body: s}
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error { return ErrUpstream }

// ErrorCode is a machine-parseable error category for clients and alerting.
type ErrorCode string

// Error codes. Every sentinel error maps to exactly one code.
const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeValidation        ErrorCode = "VALIDATION"
	CodeNotConfigured     ErrorCode = "NOT_CONFIGURED"
	CodeUnknownProvider   ErrorCode = "UNKNOWN_PROVIDER"
	CodeProviderDisabled  ErrorCode = "PROVIDER_DISABLED"
	CodeMissingCredential ErrorCode = "MISSING_CREDENTIAL"
	CodeTransport         ErrorCode = "TRANSPORT"
	CodeUpstream          ErrorCode = "UPSTREAM"
	CodeInvalidResponse   ErrorCode = "INVALID_RESPONSE"
	CodeDecryption        ErrorCode = "DECRYPTION"
	CodeEncryption        ErrorCode = "ENCRYPTION"
	CodeConfigLoad        ErrorCode = "CONFIG_LOAD"
	CodeConfigSave        ErrorCode = "CONFIG_SAVE"
	CodeAuthInvalid       ErrorCode = "AUTH_INVALID"
	CodeGatewayAuth       ErrorCode = "GATEWAY_AUTH"
	CodeRPCMethodNotFound ErrorCode = "RPC_METHOD_NOT_FOUND"
	CodeRPCInvalidPayload ErrorCode = "RPC_INVALID_PAYLOAD"
	CodeForbidden         ErrorCode = "FORBIDDEN"
)

// errorCodeMap is checked in order; more specific sentinels come first.
var errorCodeMap = []struct {
	err  error
	code ErrorCode
}{
	{ErrGatewayAuthFailed, CodeGatewayAuth},
	{ErrAuthInvalid, CodeAuthInvalid},
	{ErrValidation, CodeValidation},
	{ErrNotConfigured, CodeNotConfigured},
	{ErrUnknownProvider, CodeUnknownProvider},
	{ErrProviderDisabled, CodeProviderDisabled},
	{ErrMissingCredential, CodeMissingCredential},
	{ErrTransport, CodeTransport},
	{ErrUpstream, CodeUpstream},
	{ErrInvalidResponse, CodeInvalidResponse},
	{ErrDecryption, CodeDecryption},
	{ErrEncryption, CodeEncryption},
	{ErrConfigLoad, CodeConfigLoad},
	{ErrConfigSave, CodeConfigSave},
	{ErrRPCMethodNotFound, CodeRPCMethodNotFound},
	{ErrRPCInvalidPayload, CodeRPCInvalidPayload},
	{ErrForbidden, CodeForbidden},
}

// ErrorCodeOf returns the ErrorCode for err, or CodeUnknown.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for _, m := range errorCodeMap {
		if errors.Is(err, m.err) {
			return m.code
		}
	}
	return CodeUnknown
}
