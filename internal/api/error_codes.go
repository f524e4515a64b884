package api

import (
	"net/http"

	"latera/internal/coreerr"
)

func errorCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "unprocessable"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	default:
		if status >= http.StatusInternalServerError {
			return "internal_error"
		}
	}
	return ""
}

// statusForCoreError maps a boundary error onto an HTTP status.
func statusForCoreError(err *coreerr.Error) int {
	if err == nil {
		return http.StatusOK
	}
	switch err.Code {
	case coreerr.CodeWatcherAlreadyRunning:
		return http.StatusConflict
	case coreerr.CodeInvalidPath, coreerr.CodeFileNameMissing:
		return http.StatusUnprocessableEntity
	}
	switch err.Kind {
	case coreerr.KindConfig:
		return http.StatusBadRequest
	case coreerr.KindPlatform, coreerr.KindInitialization:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func apiErrorFromCore(err *coreerr.Error) *apiError {
	return &apiError{
		Status:  statusForCoreError(err),
		Message: err.Message,
		Code:    err.Code,
		Kind:    string(err.Kind),
	}
}
