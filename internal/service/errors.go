package service

import "fmt"

// Kind classifies a business error so the transport layer can map it to a
// response code.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindInsufficientStock
	KindInvalidState
	KindUpstream
)

// Error is a business-rule failure. A bare kind sentinel (empty Message)
// matches every Error of that kind under errors.Is.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("service error kind %d", e.Kind)
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrUpstream          = &Error{Kind: KindUpstream}
)

var (
	ErrUserAlreadyExists  = &Error{KindValidation, "User already exists"}
	ErrInvalidCredentials = &Error{KindUnauthorized, "Invalid credentials"}
	ErrUserNotFound       = &Error{KindNotFound, "User not found"}
	ErrInvalidRole        = &Error{KindValidation, "Role must be user or admin"}

	ErrProductNotFound = &Error{KindNotFound, "Product not found or unavailable"}
	ErrInvalidCategory = &Error{KindValidation, "Invalid product category"}
	ErrInvalidRating   = &Error{KindValidation, "Rating must be between 1 and 5"}
	ErrAlreadyReviewed = &Error{KindInvalidState, "Product already reviewed"}
	ErrNotProductOwner = &Error{KindForbidden, "Not authorized to modify this product"}

	ErrInvalidQuantity  = &Error{KindValidation, "Quantity must be at least 1"}
	ErrCartItemNotFound = &Error{KindNotFound, "Cart item not found"}

	ErrIncompleteAddress    = &Error{KindValidation, "Please provide complete shipping address"}
	ErrInvalidPaymentMethod = &Error{KindValidation, "Invalid payment method"}
	ErrCartEmpty            = &Error{KindInvalidState, "Cart is empty"}
	ErrOrderNotFound        = &Error{KindNotFound, "Order not found"}
	ErrOrderAccessDenied    = &Error{KindForbidden, "Not authorized to access this order"}
	ErrOrderAlreadyPaid     = &Error{KindInvalidState, "Order is already paid"}
	ErrOrderNotCancellable  = &Error{KindInvalidState, "Order cannot be cancelled at this stage"}
	ErrInvalidStatus        = &Error{KindValidation, "Invalid order status"}
	ErrIllegalTransition    = &Error{KindInvalidState, "Illegal order status transition"}
	ErrConcurrentUpdate     = &Error{KindInvalidState, "Order was modified concurrently, please retry"}

	ErrInvalidSignature = &Error{KindInvalidState, "Webhook signature verification failed"}
)

func insufficientStock(available int) *Error {
	return newError(KindInsufficientStock, "Only %d items available in stock", available)
}
