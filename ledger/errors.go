/*
errors.go - Ledger error types

All user-visible ledger failures live here. Duplicate receipts unwrap to
docstore.ErrConflict so the HTTP layer maps them to 409 with the same
classification it uses for duplicate signups.
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/greenbank/points-engine/docstore"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientBalance is returned when a spend exceeds the wallet
	// balance. Reported synchronously, never retried.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrDuplicateReceipt is returned when a claim reuses a receipt number.
	ErrDuplicateReceipt = errors.New("duplicate receipt number")

	// ErrUnknownItem is returned when a cart line or redemption references a
	// product that does not exist or is inactive.
	ErrUnknownItem = errors.New("unknown marketplace item")

	// ErrOutOfStock is returned when a tracked inventory is exhausted.
	ErrOutOfStock = errors.New("item out of stock")

	// ErrNoWallet is returned when an account has no wallet record.
	ErrNoWallet = errors.New("no wallet for account")

	// ErrClaimNotPending is returned when approving a claim that is missing
	// or already approved.
	ErrClaimNotPending = errors.New("claim not found or not pending")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// InsufficientBalanceError reports the shortfall of a rejected spend.
type InsufficientBalanceError struct {
	Email     string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: need %s, have %s",
		e.Requested.String(), e.Available.String())
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// DuplicateReceiptError identifies the claim already holding a receipt number.
type DuplicateReceiptError struct {
	ReceiptNumber string
	ExistingID    int64
}

func (e *DuplicateReceiptError) Error() string {
	return fmt.Sprintf("receipt %q already claimed (claim %d)", e.ReceiptNumber, e.ExistingID)
}

// Unwrap chains through ErrDuplicateReceipt to docstore.ErrConflict.
func (e *DuplicateReceiptError) Unwrap() error { return ErrDuplicateReceipt }

// IsConflict reports whether err is a unique-key rejection.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateReceipt) || docstore.IsConflict(err)
}

// IsClientError reports whether err should surface as a 4xx rejection rather
// than an internal fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrDuplicateReceipt) ||
		errors.Is(err, ErrUnknownItem) ||
		errors.Is(err, ErrOutOfStock) ||
		errors.Is(err, ErrNoWallet) ||
		errors.Is(err, ErrClaimNotPending)
}
