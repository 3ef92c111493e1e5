package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes shared by the chat handlers and the ops API.
const (
	CodeValidation           = "VALIDATION_FAILED"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeNotTicketOwner       = "NOT_TICKET_OWNER"
	CodeNotFound             = "NOT_FOUND"
	CodeAlreadyTerminal      = "ALREADY_TERMINAL"
	CodeOwnershipConflict    = "OWNERSHIP_CONFLICT"
	CodeConflict             = "CONFLICT"
	CodeNoActiveConversation = "NO_ACTIVE_CONVERSATION"
	CodeConfiguration        = "CONFIGURATION_ERROR"
	CodeInternal             = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewNotTicketOwner(ticketID string) error {
	return NewDomainError(CodeNotTicketOwner, "only the ticket creator can do this", http.StatusForbidden,
		map[string]any{"ticket_id": ticketID})
}

func NewAlreadyTerminal(ticketID, status string) error {
	return NewDomainError(CodeAlreadyTerminal, fmt.Sprintf("ticket %s is already %s", ticketID, status), http.StatusConflict,
		map[string]any{"ticket_id": ticketID, "status": status})
}

// NewOwnershipConflict reports that another staff member owns the ticket.
func NewOwnershipConflict(ticketID, ownerID, ownerName string) error {
	return NewDomainError(CodeOwnershipConflict, fmt.Sprintf("ticket %s is handled by %s", ticketID, ownerName), http.StatusConflict,
		map[string]any{"ticket_id": ticketID, "owner_id": ownerID, "owner_name": ownerName})
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewNoActiveConversation(userID string) error {
	return NewDomainError(CodeNoActiveConversation, "no active conversation", http.StatusConflict,
		map[string]any{"user_id": userID})
}

func NewConfigurationError(message string, details map[string]any) error {
	return NewDomainError(CodeConfiguration, message, http.StatusInternalServerError, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err carries a DomainError with the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
