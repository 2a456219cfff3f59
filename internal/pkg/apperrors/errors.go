// Package apperrors holds the error taxonomy shared by the checkout and
// order lifecycle flows, and its mapping onto HTTP status codes.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write loses against the current state
	ErrConflict = errors.New("conflict")
)

// ValidationError is a user-facing input problem. Nothing is persisted.
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

// Validation builds a ValidationError.
func Validation(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// StockShortfall describes one line that cannot be fulfilled.
type StockShortfall struct {
	VariantID   uint   `json:"variant_id"`
	ProductName string `json:"product_name"`
	Requested   int    `json:"requested"`
	Available   int    `json:"available"`
}

// StockError reports every line whose requested quantity exceeds stock.
type StockError struct {
	Lines []StockShortfall
}

func (e *StockError) Error() string {
	if len(e.Lines) == 0 {
		return "insufficient stock"
	}
	names := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		names = append(names, l.ProductName)
	}
	return fmt.Sprintf("insufficient stock for %s", strings.Join(names, ", "))
}

// GatewayError wraps a payment gateway failure.
type GatewayError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// PersistenceError wraps a store failure. The surrounding transaction has
// been rolled back when this is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persistence wraps err unless it already carries a domain meaning.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	var se *StockError
	var pe *PersistenceError
	if errors.As(err, &ve) || errors.As(err, &se) || errors.As(err, &pe) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// HTTPStatus maps an error to the status code handlers should answer with.
func HTTPStatus(err error) int {
	var ve *ValidationError
	var se *StockError
	var ge *GatewayError

	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &ve), errors.As(err, &se):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.As(err, &ge):
		if ge.Retryable {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show to a shopper.
func PublicMessage(err error) string {
	var ve *ValidationError
	var se *StockError
	var ge *GatewayError

	switch {
	case errors.As(err, &ve):
		return ve.Error()
	case errors.As(err, &se):
		return se.Error()
	case errors.Is(err, ErrNotFound):
		return err.Error()
	case errors.Is(err, ErrConflict):
		return err.Error()
	case errors.As(err, &ge):
		if ge.Retryable {
			return "Payment provider is unavailable, please try again"
		}
		return "Payment provider rejected the request"
	default:
		return "Internal server error"
	}
}
