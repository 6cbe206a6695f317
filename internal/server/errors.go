package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/accessgate/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/accessgate/internal/payment/domain"
	waitlistdomain "github.com/smallbiznis/accessgate/internal/waitlist/domain"
	"go.uber.org/zap"
)

const (
	errorTypeInvalidRequest = "invalid_request"
	errorTypeValidation     = "validation_error"
	errorTypeRateLimited    = "rate_limited"
	errorTypeUnavailable    = "unavailable"
	errorTypeNotFound       = "not_found"
	errorTypeInternal       = "internal_error"
)

var (
	ErrNotFound    = &APIError{Status: http.StatusNotFound, Type: errorTypeNotFound, Message: "resource not found"}
	ErrRateLimited = &APIError{Status: http.StatusTooManyRequests, Type: errorTypeRateLimited, Message: "too many requests, try again later"}
	ErrDisabled    = &APIError{Status: http.StatusServiceUnavailable, Type: errorTypeUnavailable, Message: "this feature is currently unavailable"}
)

// APIError is the error body returned to callers.
type APIError struct {
	Status  int               `json:"-"`
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (e *APIError) Error() string { return e.Type + ": " + e.Message }

func invalidRequestError() *APIError {
	return &APIError{Status: http.StatusBadRequest, Type: errorTypeInvalidRequest, Message: "invalid request"}
}

func newValidationError(field, code, message string) *APIError {
	return &APIError{
		Status:  http.StatusUnprocessableEntity,
		Type:    errorTypeValidation,
		Message: "validation failed",
		Fields:  map[string]string{field: code + ": " + message},
	}
}

// AbortWithError writes err as a JSON error body and stops the handler chain.
// Messages are sanitized; internal failures never expose their cause.
func AbortWithError(c *gin.Context, err error) {
	apiErr := toAPIError(err)
	if apiErr.Status >= http.StatusInternalServerError && apiErr.Type == errorTypeInternal {
		logger.FromContext(c.Request.Context()).Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}

	body := APIError{
		Type:    apiErr.Type,
		Message: logger.SanitizeMessage(apiErr.Message),
	}
	if len(apiErr.Fields) > 0 {
		body.Fields = make(map[string]string, len(apiErr.Fields))
		for field, message := range apiErr.Fields {
			body.Fields[field] = logger.SanitizeMessage(message)
		}
	}
	c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": body})
}

func toAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var validation *waitlistdomain.ValidationError
	if errors.As(err, &validation) {
		return &APIError{
			Status:  http.StatusUnprocessableEntity,
			Type:    errorTypeValidation,
			Message: "validation failed",
			Fields:  validation.Fields,
		}
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return &APIError{Status: http.StatusRequestEntityTooLarge, Type: errorTypeInvalidRequest, Message: "request body too large"}
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return &APIError{Status: http.StatusBadRequest, Type: errorTypeInvalidRequest, Message: "invalid signature"}
	case errors.Is(err, paymentdomain.ErrInvalidPayload):
		return &APIError{Status: http.StatusBadRequest, Type: errorTypeInvalidRequest, Message: "malformed payload"}
	case errors.Is(err, waitlistdomain.ErrDisabled):
		return ErrDisabled
	default:
		return &APIError{Status: http.StatusInternalServerError, Type: errorTypeInternal, Message: "internal server error"}
	}
}
