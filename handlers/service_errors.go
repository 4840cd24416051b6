package handlers

import (
	"errors"
	"net/http"

	"github.com/upb/sessionauth/services"
	"github.com/upb/sessionauth/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses.
// The domain code is always echoed in details.code so clients can tell conditions apart.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := responseDetails(err)
	message := publicMessage(err)

	var status int
	switch {
	case services.IsUnauthorizedError(err):
		status = http.StatusUnauthorized
	case services.IsForbiddenError(err):
		status = http.StatusForbidden
	case services.IsValidationError(err):
		status = http.StatusBadRequest
	case services.IsNotFoundError(err):
		status = http.StatusNotFound
	case services.IsUnavailableError(err):
		logger.Error("backing store unavailable", zap.Error(err))
		status = http.StatusServiceUnavailable
	case services.IsInternalError(err):
		// Log internal errors but return generic message
		logger.Error("internal server error", zap.Error(err))
		status = http.StatusInternalServerError
		message = "An internal error occurred"
	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		status = http.StatusInternalServerError
		message = "An unexpected error occurred"
	}

	if werr := utils.WriteError(w, status, message, details); werr != nil {
		logger.Error("failed to write error response", zap.Error(werr))
	}

	logger.Debug("handled service error",
		zap.Int("status", status),
		zap.String("code", services.GetErrorCode(err)))
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	// Generic validation error
	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

func responseDetails(err error) map[string]interface{} {
	code := services.GetErrorCode(err)
	src := services.GetErrorDetails(err)
	if code == "" && len(src) == 0 {
		return nil
	}
	details := make(map[string]interface{}, len(src)+1)
	for k, v := range src {
		details[k] = v
	}
	if code != "" {
		details["code"] = code
	}
	return details
}

// publicMessage never exposes the wrapped cause
func publicMessage(err error) string {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}
