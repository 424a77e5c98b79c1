package errors

import (
	"Hearth/pkg/log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Standard for Error reponses to the client.
type ErrorResponse struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	StatusCode int         `json:"statusCode"`
	RequestID  string      `json:"requestId"`
	Details    interface{} `json:"details,omitempty"`
}

// Error is required by the error interface.
func (e ErrorResponse) Error() string {
	return e.Message
}

// Abort stamps the request ID onto the error and stops the gin handler chain with it.
func Abort(gctx *gin.Context, err ErrorResponse) {
	err.RequestID = gctx.GetString(log.RequestIDKey)
	gctx.AbortWithStatusJSON(err.StatusCode, err)
}

// InternalServerError creates a new error response representing an internal server error (HTTP 500)
func InternalServerError(msg string) ErrorResponse {
	if msg == "" {
		msg = "We encountered an error while processing your request."
	}
	return ErrorResponse{
		Code:       "INTERNAL_SERVER_ERROR",
		StatusCode: http.StatusInternalServerError,
		Message:    msg,
	}
}

// NotFound creates a new error response representing a resource-not-found error (HTTP 404)
func NotFound(msg string) ErrorResponse {
	if msg == "" {
		msg = "The requested resource was not found."
	}
	return ErrorResponse{
		Code:       "NOT_FOUND",
		StatusCode: http.StatusNotFound,
		Message:    msg,
	}
}

// Unauthorized creates a new error response representing an authentication/authorization failure (HTTP 401)
func Unauthorized(msg string) ErrorResponse {
	if msg == "" {
		msg = "You are not authenticated to perform the requested action."
	}
	return ErrorResponse{
		Code:       "UNAUTHORIZED",
		StatusCode: http.StatusUnauthorized,
		Message:    msg,
	}
}

// Standard for Validation-error responses to the client.
type validationError struct {
	Param   string `json:"param"`   // Parameter or Field
	Message string `json:"message"` // Issue in Field
}

// Captures multiple validation issues and sends it as a response in one go.
type ValidationErrorResponse struct {
	Response []validationError `json:"errors"`
}

// Scans through set of validation errors found by govalidator,
// Generates a slice of serializable validationErrorResponse.
func GenerateValidationErrorResponse(errs []error) ErrorResponse {
	// govalidator returns array of errors in -> Param:Message format
	// We split the error from the first ":"
	resp := []validationError{}
	for _, err := range errs {
		param, msg, found := strings.Cut(err.Error(), ":")
		if !found {
			param, msg = "", param
		}
		resp = append(resp, validationError{
			Param:   param,
			Message: strings.TrimSpace(msg),
		})
	}
	return ErrorResponse{
		Code:       "VALIDATION_ERROR",
		StatusCode: http.StatusBadRequest,
		Message:    "Data validation error",
		Details:    ValidationErrorResponse{Response: resp},
	}
}
