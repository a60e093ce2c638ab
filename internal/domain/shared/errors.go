package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target is a DomainError with the same code, so that
// errors.Is matches errors created with NewDomainError as well as the
// package-level sentinels below.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound        = NewDomainError("NOT_FOUND", "Resource not found")
	ErrInvalidInput    = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrInvalidState    = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrUnknownResource = NewDomainError("UNKNOWN_RESOURCE", "Unknown resource")
	ErrInvalidAction   = NewDomainError("INVALID_ACTION", "Action is not supported for this resource")
	ErrEmptySelection  = NewDomainError("EMPTY_SELECTION", "Choose at least one item")
	ErrItemNotPending  = NewDomainError("ITEM_NOT_PENDING", "Item has already been decided")
	ErrItemNotFound    = NewDomainError("ITEM_NOT_FOUND", "Item does not belong to this transfer")
	ErrInvalidTransfer = NewDomainError("INVALID_TRANSFER", "Invalid transfer request")
	ErrForbidden       = NewDomainError("FORBIDDEN", "Access to this resource is forbidden")
)
