package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

var (
	// ErrUnsupportedCombination is returned for (provider, service) pairs
	// the scope registry has no mapping for. This is a configuration error
	// and should fail fast at call sites.
	ErrUnsupportedCombination = errors.New("core: unsupported provider/service combination")
	// ErrCsrfValidationFailed marks a callback whose state parameter did
	// not match a pending authorization.
	ErrCsrfValidationFailed = errors.New("core: oauth callback state validation failed")
	// ErrUserDeniedConsent marks a callback where the user declined the
	// consent screen. Nothing is persisted.
	ErrUserDeniedConsent = errors.New("core: user denied consent")
	// ErrExchangeFailed wraps authorization-code exchange failures.
	ErrExchangeFailed = errors.New("core: authorization code exchange failed")
	// ErrRefreshFailed wraps refresh-token refresh failures. The stored
	// record is never mutated on this path.
	ErrRefreshFailed = errors.New("core: credential refresh failed")
	// ErrVersionConflict is returned by stores when a Put carries a stale
	// Version. Callers re-read and retry or adopt the winner's record.
	ErrVersionConflict = errors.New("core: credential version conflict")
)

const (
	CredentialErrorBadInput               = "CREDENTIALS_BAD_INPUT"
	CredentialErrorAdapterNotFound        = "CREDENTIALS_ADAPTER_NOT_FOUND"
	CredentialErrorUnsupportedCombination = "CREDENTIALS_UNSUPPORTED_COMBINATION"
	CredentialErrorStateInvalid           = "CREDENTIALS_OAUTH_STATE_INVALID"
	CredentialErrorConsentDenied          = "CREDENTIALS_CONSENT_DENIED"
	CredentialErrorExchangeFailed         = "CREDENTIALS_EXCHANGE_FAILED"
	CredentialErrorRefreshFailed          = "CREDENTIALS_REFRESH_FAILED"
	CredentialErrorVersionConflict        = "CREDENTIALS_VERSION_CONFLICT"
	CredentialErrorInternal               = "CREDENTIALS_INTERNAL_ERROR"
)

func credentialErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureCredentialErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrUnsupportedCombination):
		return newCredentialError(err.Error(), goerrors.CategoryBadInput, CredentialErrorUnsupportedCombination)
	case errors.Is(err, ErrCsrfValidationFailed):
		return newCredentialError(err.Error(), goerrors.CategoryAuth, CredentialErrorStateInvalid)
	case errors.Is(err, ErrUserDeniedConsent):
		return newCredentialError(err.Error(), goerrors.CategoryAuth, CredentialErrorConsentDenied)
	case errors.Is(err, ErrExchangeFailed):
		return newCredentialError(err.Error(), goerrors.CategoryOperation, CredentialErrorExchangeFailed)
	case errors.Is(err, ErrRefreshFailed):
		return newCredentialError(err.Error(), goerrors.CategoryAuth, CredentialErrorRefreshFailed)
	case errors.Is(err, ErrVersionConflict):
		return newCredentialError(err.Error(), goerrors.CategoryConflict, CredentialErrorVersionConflict)
	case errors.Is(err, ErrAdapterNotFound):
		return newCredentialError(err.Error(), goerrors.CategoryNotFound, CredentialErrorAdapterNotFound)
	case errors.Is(err, ErrInvalidProvider), errors.Is(err, ErrInvalidService):
		return newCredentialError(err.Error(), goerrors.CategoryBadInput, CredentialErrorBadInput)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newCredentialError(err.Error(), goerrors.CategoryBadInput, CredentialErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureCredentialErrorEnvelope(mapped)
}

func newCredentialError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureCredentialErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureCredentialErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = credentialHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultCredentialTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultCredentialTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return CredentialErrorBadInput
	case goerrors.CategoryNotFound:
		return CredentialErrorAdapterNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return CredentialErrorRefreshFailed
	case goerrors.CategoryConflict:
		return CredentialErrorVersionConflict
	case goerrors.CategoryOperation:
		return CredentialErrorExchangeFailed
	default:
		return CredentialErrorInternal
	}
}

func credentialHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
