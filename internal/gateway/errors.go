package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// ErrServerUnreachable wraps every transport failure: the request never got
// an HTTP response.
var ErrServerUnreachable = errors.New("server unreachable")

const ConnectionErrorMessage = "Cannot connect to server. Please check your network connection."

// APIError is a non-2xx response. Message is what the server said, or the
// best fallback available.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Has reports whether the server message mentions code. The backend puts
// error codes inside free text, so this is a substring match.
func (e *APIError) Has(code string) bool {
	return strings.Contains(e.Message, code)
}

// ValidationError is a local check that failed before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// Known business error codes.
const (
	CodeQuotaExceeded          = "QUOTA_EXCEEDED"
	CodeScheduleConflict       = "SCHEDULE_CONFLICT"
	CodeRegistrationClosed     = "REGISTRATION_CLOSED"
	CodeAccountPendingApproval = "ACCOUNT_PENDING_APPROVAL"
	CodeUserNotFound           = "USER_NOT_FOUND"
	CodeCreditLimitExceeded    = "CREDIT_LIMIT_EXCEEDED"
)

var userCopy = []struct {
	match []string
	msg   string
}{
	{[]string{CodeQuotaExceeded}, "This workshop is already full. No seats available."},
	{[]string{CodeScheduleConflict}, "This workshop clashes with one you are already enrolled in."},
	{[]string{CodeRegistrationClosed}, "Registration has closed. You cannot drop this workshop."},
	{[]string{CodeAccountPendingApproval, "pending approval"}, "Your account is pending approval. Please wait for a mentor to approve your registration."},
	{[]string{CodeUserNotFound}, "No account found with that NIM and email. Please check your details."},
	{[]string{CodeCreditLimitExceeded}, "Adding this workshop would exceed your credit limit."},
}

// UserMessage turns any gateway error into copy fit for a person.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	if errors.Is(err, ErrServerUnreachable) {
		return ConnectionErrorMessage
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		for _, c := range userCopy {
			for _, m := range c.match {
				if apiErr.Has(m) {
					return c.msg
				}
			}
		}
		if apiErr.Message != "" {
			return apiErr.Message
		}
	}
	return "Something went wrong. Please try again."
}

// IsAuth reports a 401.
func IsAuth(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == 401
}
