/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  Defines the JSON shapes exchanged with clients. These mirror but are
  decoupled from domain types: handlers convert at the boundary so the
  ledger and identity packages never learn about JSON tags or string
  formatting choices.

CONVENTIONS:
  - Money and point amounts travel as JSON numbers (float64); the domain
    keeps decimals internally
  - Timestamps are RFC3339 strings
  - Errors are {"error": "...", "details": "..."}

SEE ALSO:
  - handlers.go: Where the conversions happen
*/
package api

import (
	"time"

	"github.com/greenbank/points-engine/identity"
	"github.com/greenbank/points-engine/ledger"
	"github.com/greenbank/points-engine/receipt"
)

// =============================================================================
// AUTH
// =============================================================================

// SignupRequest creates an account plus its wallet.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest exchanges credentials for a token pair.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest exchanges a refresh token for a fresh pair.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// AccountDTO is the public view of an account.
type AccountDTO struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	KYCComplete bool   `json:"kycComplete"`
	FraudClear  bool   `json:"fraudClear"`
	GreenScore  *int   `json:"greenScore,omitempty"`
	CreatedAt   string `json:"createdAt"`
}

// AuthResponse bundles the account with its tokens.
type AuthResponse struct {
	Account      AccountDTO `json:"account"`
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	ExpiresIn    int        `json:"expiresIn"`
}

// =============================================================================
// IDENTITY
// =============================================================================

// KYCRequest carries the applicant details forwarded to the compliance
// gateway.
type KYCRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	SSN       string `json:"ssn"`
	DOB       string `json:"dob"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
	Phone     string `json:"phone"`
}

func (r KYCRequest) toDetails() identity.KYCDetails {
	return identity.KYCDetails{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		SSN:       r.SSN,
		DOB:       r.DOB,
		Address:   r.Address,
		City:      r.City,
		State:     r.State,
		Zip:       r.Zip,
		Phone:     r.Phone,
	}
}

// KYCResponse reports the verification verdict.
type KYCResponse struct {
	Verified bool   `json:"verified"`
	Provider string `json:"provider,omitempty"`
}

// FraudResponse reports the fraud screen verdict.
type FraudResponse struct {
	Clear     bool   `json:"clear"`
	RiskScore int    `json:"riskScore"`
	Provider  string `json:"provider,omitempty"`
}

// CreditRequest names the bureau to pull from.
type CreditRequest struct {
	Bureau string `json:"bureau"`
}

// CreditResponse reports the pulled score.
type CreditResponse struct {
	Score  int    `json:"score"`
	Bureau string `json:"bureau"`
}

// GreenScoreResponse carries the freshly recomputed score.
type GreenScoreResponse struct {
	Email      string `json:"email"`
	GreenScore int    `json:"greenScore"`
}

// =============================================================================
// CLAIMS
// =============================================================================

// SubmitClaimRequest accepts either a pre-parsed claim or raw OCR lines.
// When Lines is non-empty the receipt parser fills the other fields.
type SubmitClaimRequest struct {
	ReceiptNumber string  `json:"receiptNumber"`
	Category      string  `json:"category"`
	Description   string  `json:"description"`
	Amount        float64 `json:"amount"`
	Date          string  `json:"date"` // YYYY-MM-DD, optional

	Lines         []receipt.Line `json:"lines,omitempty"`
	DetectedTotal float64        `json:"detectedTotal,omitempty"`

	// Pending submits to the review queue instead of auto-approving.
	Pending bool `json:"pending,omitempty"`
}

// ClaimDTO is the public view of a claim.
type ClaimDTO struct {
	ID            int64   `json:"id"`
	Email         string  `json:"email"`
	ReceiptNumber string  `json:"receiptNumber"`
	Category      string  `json:"category"`
	Description   string  `json:"description"`
	Amount        float64 `json:"amount"`
	PointsAwarded float64 `json:"pointsAwarded"`
	Status        string  `json:"status"`
	Timestamp     string  `json:"timestamp"`
}

func toClaimDTO(c ledger.Claim) ClaimDTO {
	return ClaimDTO{
		ID:            c.ID,
		Email:         c.Email,
		ReceiptNumber: c.ReceiptNumber,
		Category:      c.Category,
		Description:   c.Description,
		Amount:        c.Amount.InexactFloat64(),
		PointsAwarded: c.PointsAwarded.InexactFloat64(),
		Status:        string(c.Status),
		Timestamp:     c.Timestamp.Format(time.RFC3339),
	}
}

// =============================================================================
// WALLET
// =============================================================================

// WalletDTO is the public view of a wallet.
type WalletDTO struct {
	ID      int64   `json:"id"`
	Email   string  `json:"email"`
	Balance float64 `json:"balance"`
}

func toWalletDTO(w ledger.Wallet) WalletDTO {
	return WalletDTO{ID: w.ID, Email: w.Email, Balance: w.Balance.InexactFloat64()}
}

// TransactionDTO is the public view of a ledger transaction.
type TransactionDTO struct {
	ID          int64          `json:"id"`
	Email       string         `json:"email"`
	Type        string         `json:"type"`
	Amount      float64        `json:"amount"`
	Description string         `json:"description"`
	Timestamp   string         `json:"timestamp"`
	OrderID     string         `json:"orderId,omitempty"`
	Items       []OrderLineDTO `json:"items,omitempty"`
}

// OrderLineDTO is one purchased line inside a SPEND transaction.
type OrderLineDTO struct {
	Title    string  `json:"title"`
	Quantity int     `json:"quantity"`
	Cost     float64 `json:"cost"`
}

func toTransactionDTO(t ledger.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:          t.ID,
		Email:       t.Email,
		Type:        string(t.Type),
		Amount:      t.Amount.InexactFloat64(),
		Description: t.Description,
		Timestamp:   t.Timestamp.Format(time.RFC3339),
		OrderID:     t.OrderID,
	}
	for _, l := range t.Items {
		dto.Items = append(dto.Items, OrderLineDTO{
			Title:    l.Title,
			Quantity: l.Quantity,
			Cost:     l.Cost.InexactFloat64(),
		})
	}
	return dto
}

// =============================================================================
// MARKETPLACE
// =============================================================================

// ItemDTO is one marketplace listing.
type ItemDTO struct {
	ID        int64   `json:"id"`
	CUID      string  `json:"cuid"`
	Title     string  `json:"title"`
	Category  string  `json:"category"`
	Cost      float64 `json:"cost"`
	Inventory *int    `json:"inventory,omitempty"` // absent means unlimited
}

func toItemDTO(i ledger.Item) ItemDTO {
	return ItemDTO{
		ID:        i.ID,
		CUID:      i.CUID,
		Title:     i.Title,
		Category:  i.Category,
		Cost:      i.Cost.InexactFloat64(),
		Inventory: i.Inventory,
	}
}

// RedeemRequest buys a single item by id.
type RedeemRequest struct {
	ProductID int64 `json:"productId"`
}

// CheckoutRequest buys a cart in one atomic deduction.
type CheckoutRequest struct {
	Items []CheckoutLine `json:"items"`
}

// CheckoutLine is one cart entry, addressed by product cuid.
type CheckoutLine struct {
	CUID     string `json:"cuid"`
	Quantity int    `json:"quantity"`
}

// CheckoutResponse summarizes the completed order.
type CheckoutResponse struct {
	OrderID    string         `json:"orderId"`
	Total      float64        `json:"total"`
	NewBalance float64        `json:"newBalance"`
	Items      []OrderLineDTO `json:"items"`
}

// =============================================================================
// ADMIN / MISC
// =============================================================================

// ReconcileRequest names the account to audit.
type ReconcileRequest struct {
	Email string `json:"email"`
}

// ReconcileResponse reports the audit outcome.
type ReconcileResponse struct {
	Email    string  `json:"email"`
	Stored   float64 `json:"stored"`
	Derived  float64 `json:"derived"`
	Repaired bool    `json:"repaired"`
}

// HealthResponse reports liveness plus the persistence tier state.
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAccountDTO(a identity.Account) AccountDTO {
	return AccountDTO{
		ID:          a.ID,
		Name:        a.Name,
		Email:       a.Email,
		Role:        a.Role,
		KYCComplete: a.KYCComplete,
		FraudClear:  a.FraudClear,
		GreenScore:  a.GreenScore,
		CreatedAt:   a.CreatedAt.Format(time.RFC3339),
	}
}
