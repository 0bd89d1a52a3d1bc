package server

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	awarddomain "github.com/glowhub/portal/internal/award/domain"
	cartdomain "github.com/glowhub/portal/internal/cart/domain"
	"github.com/glowhub/portal/internal/catalog"
	checkoutdomain "github.com/glowhub/portal/internal/checkout/domain"
	"github.com/glowhub/portal/internal/customer"
	"github.com/glowhub/portal/internal/docstore"
	"github.com/glowhub/portal/internal/feedback"
	fulfillmentdomain "github.com/glowhub/portal/internal/fulfillment/domain"
	ledgerdomain "github.com/glowhub/portal/internal/ledger/domain"
	"github.com/glowhub/portal/internal/wallet"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}

	// Checkout reports field-level errors in its own shape.
	var cErr checkoutdomain.ValidationErrors
	if errors.As(err, &cErr) && len(cErr) > 0 {
		fields := make([]string, 0, len(cErr))
		for field := range cErr {
			fields = append(fields, field)
		}
		sort.Strings(fields)

		out := &ValidationErrors{}
		for _, field := range fields {
			out.Errors = append(out.Errors, ValidationError{
				Field:   field,
				Code:    cErr[field],
				Message: "field is " + cErr[field],
			})
		}
		return out
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, awarddomain.ErrInvalidPoints),
		errors.Is(err, awarddomain.ErrInvalidAmount),
		errors.Is(err, awarddomain.ErrInvalidReferenceID),
		errors.Is(err, awarddomain.ErrInvalidCustomer),
		errors.Is(err, awarddomain.ErrInsufficientPoints),
		errors.Is(err, cartdomain.ErrInvalidCustomer),
		errors.Is(err, checkoutdomain.ErrInvalidCustomer),
		errors.Is(err, checkoutdomain.ErrEmptyCart),
		errors.Is(err, checkoutdomain.ErrNoProductItems),
		errors.Is(err, customer.ErrInvalidCustomer),
		errors.Is(err, customer.ErrInvalidBirthDate),
		errors.Is(err, feedback.ErrInvalidCustomer),
		errors.Is(err, feedback.ErrInvalidRating),
		errors.Is(err, fulfillmentdomain.ErrInvalidCustomer),
		errors.Is(err, fulfillmentdomain.ErrInvalidAmount),
		errors.Is(err, ledgerdomain.ErrInvalidCustomer),
		errors.Is(err, ledgerdomain.ErrInvalidType),
		errors.Is(err, ledgerdomain.ErrInvalidReferenceID),
		errors.Is(err, catalog.ErrInvalidKind):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, cartdomain.ErrDuplicateService),
		errors.Is(err, feedback.ErrAlreadyReviewed):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, docstore.ErrNotFound),
		errors.Is(err, catalog.ErrItemNotFound),
		errors.Is(err, cartdomain.ErrItemNotFound),
		errors.Is(err, customer.ErrCustomerNotFound),
		errors.Is(err, feedback.ErrFeedbackNotFound),
		errors.Is(err, fulfillmentdomain.ErrBookingNotFound),
		errors.Is(err, fulfillmentdomain.ErrOrderNotFound),
		errors.Is(err, wallet.ErrNotLoaded),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "server_error", payload.Type
	case status >= http.StatusBadRequest:
		return "client_error", payload.Type
	default:
		return "", payload.Type
	}
}
