package repositories

import "fmt"

// StockErrorCode categorises stock mutation failures.
type StockErrorCode string

const (
	// StockErrorInsufficientStock signals the removal exceeded availability.
	StockErrorInsufficientStock StockErrorCode = "insufficient_stock"
	// StockErrorProductNotFound signals the product document is missing.
	StockErrorProductNotFound StockErrorCode = "product_not_found"
	// StockErrorInvalidAdjustment signals malformed adjustment parameters.
	StockErrorInvalidAdjustment StockErrorCode = "invalid_adjustment"
)

// StockError carries a categorised stock mutation failure.
type StockError struct {
	Code    StockErrorCode
	Message string
	Err     error
}

// NewStockError constructs a StockError.
func NewStockError(code StockErrorCode, message string, err error) *StockError {
	return &StockError{Code: code, Message: message, Err: err}
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("stock %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("stock %s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *StockError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
