package repositories

import "fmt"

// InventoryErrorCode enumerates repository error causes for stock operations.
type InventoryErrorCode string

const (
	// InventoryErrorUnknown represents an unspecified failure.
	InventoryErrorUnknown InventoryErrorCode = "inventory_unknown"
	// InventoryErrorInsufficientStock indicates requested quantity exceeds availability.
	InventoryErrorInsufficientStock InventoryErrorCode = "inventory_insufficient_stock"
	// InventoryErrorStockNotFound indicates the product has no stock record.
	InventoryErrorStockNotFound InventoryErrorCode = "inventory_stock_not_found"
)

// InventoryError wraps stock-mutation failures with machine readable codes.
// For insufficient-stock failures it names the offending product and the
// available versus requested quantities so callers can report per-product.
type InventoryError struct {
	Op        string
	Code      InventoryErrorCode
	Message   string
	ProductID string
	Available int64
	Requested int64
	Err       error
}

// Error implements the error interface.
func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewInventoryError constructs a typed inventory error.
func NewInventoryError(code InventoryErrorCode, message string, err error) *InventoryError {
	if message == "" {
		message = string(code)
	}
	return &InventoryError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewInsufficientStockError reports a guard violation for one product line.
func NewInsufficientStockError(productID string, available, requested int64) *InventoryError {
	return &InventoryError{
		Code:      InventoryErrorInsufficientStock,
		Message:   fmt.Sprintf("insufficient stock for product %s: available %d, requested %d", productID, available, requested),
		ProductID: productID,
		Available: available,
		Requested: requested,
	}
}
