/*
handlers.go - HTTP handlers for the points engine

PURPOSE:
  Exposes the ledger, identity, and marketplace via REST. Handlers parse
  HTTP, delegate to domain services, and translate domain errors to HTTP
  status codes. No business rules live here.

ENDPOINTS:
  Auth:
    POST   /api/auth/signup          Create account + wallet, return tokens
    POST   /api/auth/login           Exchange credentials for tokens
    POST   /api/auth/refresh         Rotate token pair
    GET    /api/auth/me              Current account

  Identity:
    POST   /api/identity/kyc          Run KYC verification
    POST   /api/identity/fraud-check  Run fraud screen (may move the account)
    POST   /api/identity/credit-check Pull a bureau credit score
    GET    /api/identity/green-score  Recompute and return the green score

  Claims:
    POST   /api/claims                Submit claim (auto-award or pending)
    GET    /api/claims                Caller's claims
    GET    /api/review/claims         Pending review queue (admin)
    POST   /api/review/claims/{id}/approve  Approve pending claim (admin)

  Wallet:
    GET    /api/wallet                Balance
    GET    /api/wallet/transactions   History, newest first
    GET    /api/wallet/statement      Plain-text statement

  Marketplace:
    GET    /api/marketplace           Active catalog
    POST   /api/marketplace/redeem    Buy one item
    POST   /api/marketplace/checkout  Buy a cart atomically

  Admin:
    POST   /api/admin/reconcile       Audit and repair one wallet
    POST   /api/admin/seed            Load demo catalog and accounts

  GET /healthz                        Liveness + persistence tier state

ERROR HANDLING:
  - 400: validation failures, insufficient balance, unknown item
  - 401: missing/invalid/expired token, bad credentials
  - 403: role mismatch
  - 404: record not found
  - 409: duplicate email or receipt number
  - 500: everything else (transport faults never reach here; the store
         fails over instead)

SEE ALSO:
  - dto.go: Request/response shapes
  - server.go: Router, middleware, auth enforcement
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/greenbank/points-engine/auth"
	"github.com/greenbank/points-engine/docstore"
	"github.com/greenbank/points-engine/identity"
	"github.com/greenbank/points-engine/ledger"
	"github.com/greenbank/points-engine/receipt"
	"github.com/greenbank/points-engine/statement"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Identity  *identity.Service
	Ledger    *ledger.Service
	Issuer    *auth.Issuer
	Store     *docstore.Facade
	Bureau    identity.CreditBureau
	Statement statement.Renderer
	Log       *zap.Logger
}

// NewHandler wires the handler. A nil renderer defaults to the plain-text
// statement; a nil logger is replaced with a no-op.
func NewHandler(id *identity.Service, led *ledger.Service, issuer *auth.Issuer, store *docstore.Facade, bureau identity.CreditBureau, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Identity:  id,
		Ledger:    led,
		Issuer:    issuer,
		Store:     store,
		Bureau:    bureau,
		Statement: statement.Text{},
		Log:       log,
	}
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

// Signup creates an account and its wallet, then returns tokens so the
// client is logged in immediately.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" || req.Email == "" || len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "name, email and a password of at least 8 characters are required", nil)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to process password", err)
		return
	}

	acct, err := h.Identity.Signup(r.Context(), req.Name, req.Email, hash)
	if err != nil {
		if docstore.IsConflict(err) {
			writeError(w, http.StatusConflict, "An account with this email already exists", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create account", err)
		return
	}

	if _, err := h.Ledger.CreateWallet(r.Context(), acct.Email); err != nil {
		// The account exists; the wallet write is retried on first use.
		h.Log.Warn("wallet provisioning failed after signup",
			zap.String("email", acct.Email), zap.Error(err))
	}

	h.writeAuthResponse(w, http.StatusCreated, acct)
}

// Login verifies credentials and returns a token pair.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	acct, err := h.Identity.Lookup(r.Context(), req.Email)
	if err != nil {
		// Same message as a bad password; do not leak which emails exist.
		writeError(w, http.StatusUnauthorized, "Invalid email or password", nil)
		return
	}
	if err := auth.CheckPassword(acct.Password, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid email or password", nil)
		return
	}

	h.writeAuthResponse(w, http.StatusOK, acct)
}

// Refresh rotates a refresh token into a fresh pair.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	claims, err := h.Issuer.Parse(req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid refresh token", nil)
		return
	}

	// Re-read the account so role changes and fraud moves take effect here.
	acct, err := h.Identity.Lookup(r.Context(), claims.Email)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Account no longer exists", nil)
		return
	}

	h.writeAuthResponse(w, http.StatusOK, acct)
}

// Me returns the authenticated account.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	acct, err := h.Identity.Lookup(r.Context(), claims.Email)
	if err != nil {
		writeError(w, http.StatusNotFound, "Account not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(acct))
}

func (h *Handler) writeAuthResponse(w http.ResponseWriter, status int, acct identity.Account) {
	pair, err := h.Issuer.Issue(acct.Email, acct.Name, acct.Role, acct.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue tokens", err)
		return
	}
	writeJSON(w, status, AuthResponse{
		Account:      toAccountDTO(acct),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	})
}

// =============================================================================
// IDENTITY HANDLERS
// =============================================================================

// CompleteKYC forwards applicant details to the verification provider and
// persists the verdict. The green score is recomputed on success.
func (h *Handler) CompleteKYC(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req KYCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.Identity.CompleteKYC(r.Context(), claims.Email, req.toDetails())
	if err != nil {
		writeDomainError(w, "KYC verification failed", err)
		return
	}

	if res.Verified {
		if _, err := h.Ledger.RecomputeGreenScore(r.Context(), claims.Email); err != nil {
			h.Log.Warn("green score recompute failed after kyc",
				zap.String("email", claims.Email), zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, KYCResponse{Verified: res.Verified, Provider: res.Provider})
}

// RunFraudCheck screens the account. A flagged account is moved to the
// fraud collection and keeps working through the same lookup path.
func (h *Handler) RunFraudCheck(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	res, err := h.Identity.RunFraudCheck(r.Context(), claims.Email)
	if err != nil {
		writeDomainError(w, "Fraud check failed", err)
		return
	}

	if _, err := h.Ledger.RecomputeGreenScore(r.Context(), claims.Email); err != nil {
		h.Log.Warn("green score recompute failed after fraud check",
			zap.String("email", claims.Email), zap.Error(err))
	}

	writeJSON(w, http.StatusOK, FraudResponse{
		Clear:     res.Clear,
		RiskScore: res.RiskScore,
		Provider:  res.Provider,
	})
}

// RunCreditCheck pulls a score from the named bureau.
func (h *Handler) RunCreditCheck(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Bureau == "" {
		req.Bureau = "transunion"
	}

	acct, err := h.Identity.Lookup(r.Context(), claims.Email)
	if err != nil {
		writeError(w, http.StatusNotFound, "Account not found", nil)
		return
	}

	res, err := h.Bureau.Score(r.Context(), acct, req.Bureau)
	if err != nil {
		writeDomainError(w, "Credit check failed", err)
		return
	}

	writeJSON(w, http.StatusOK, CreditResponse{Score: res.Score, Bureau: res.Bureau})
}

// GreenScore recomputes the caller's sustainability score from current
// account flags and ledger activity.
func (h *Handler) GreenScore(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	score, err := h.Ledger.RecomputeGreenScore(r.Context(), claims.Email)
	if err != nil {
		writeDomainError(w, "Failed to compute green score", err)
		return
	}
	writeJSON(w, http.StatusOK, GreenScoreResponse{Email: claims.Email, GreenScore: score})
}

// =============================================================================
// CLAIM HANDLERS
// =============================================================================

// SubmitClaim records a sustainability claim. Raw OCR lines are parsed
// server-side; explicit fields in the request win over parsed ones.
func (h *Handler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req SubmitClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	cr := claimRequestFrom(req, claims.Email)
	if cr.ReceiptNumber == "" {
		writeError(w, http.StatusBadRequest, "A receipt number is required", nil)
		return
	}
	if !cr.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "Claim amount must be positive", nil)
		return
	}

	var (
		claim ledger.Claim
		err   error
	)
	if req.Pending {
		claim, err = h.Ledger.SubmitPendingClaim(r.Context(), cr)
	} else {
		claim, err = h.Ledger.SubmitClaim(r.Context(), cr)
	}
	if err != nil {
		writeDomainError(w, "Failed to submit claim", err)
		return
	}

	writeJSON(w, http.StatusCreated, toClaimDTO(claim))
}

// claimRequestFrom merges OCR-parsed fields with explicit ones.
func claimRequestFrom(req SubmitClaimRequest, email string) ledger.ClaimRequest {
	cr := ledger.ClaimRequest{
		Email:         email,
		ReceiptNumber: req.ReceiptNumber,
		Category:      req.Category,
		Description:   req.Description,
		Amount:        decimal.NewFromFloat(req.Amount),
	}
	if req.Date != "" {
		if t, err := time.Parse("2006-01-02", req.Date); err == nil {
			cr.OccurredAt = t
		}
	}

	if len(req.Lines) > 0 {
		parsed := receipt.Parse(req.Lines, req.DetectedTotal)
		if cr.ReceiptNumber == "" {
			cr.ReceiptNumber = parsed.ReceiptNumber
		}
		if cr.Category == "" {
			cr.Category = parsed.Category
		}
		if cr.Description == "" {
			cr.Description = parsed.Description
		}
		if !cr.Amount.IsPositive() {
			cr.Amount = parsed.Amount
		}
		if cr.OccurredAt.IsZero() {
			cr.OccurredAt = parsed.Date
		}
	}
	return cr
}

// ListClaims returns the caller's claims, newest first.
func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	list, err := h.Ledger.Claims(r.Context(), claims.Email)
	if err != nil {
		writeDomainError(w, "Failed to list claims", err)
		return
	}

	dtos := make([]ClaimDTO, len(list))
	for i, c := range list {
		dtos[i] = toClaimDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListPendingClaims returns the review queue.
func (h *Handler) ListPendingClaims(w http.ResponseWriter, r *http.Request) {
	list, err := h.Ledger.PendingClaims(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list pending claims", err)
		return
	}

	dtos := make([]ClaimDTO, len(list))
	for i, c := range list {
		dtos[i] = toClaimDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ApproveClaim flips a pending claim to approved and awards its points.
func (h *Handler) ApproveClaim(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid claim id", err)
		return
	}

	claim, err := h.Ledger.ApproveClaim(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to approve claim", err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimDTO(claim))
}

// =============================================================================
// WALLET HANDLERS
// =============================================================================

// GetWallet returns the caller's balance.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	wallet, err := h.Ledger.Wallet(r.Context(), claims.Email)
	if err != nil {
		writeDomainError(w, "Failed to load wallet", err)
		return
	}
	writeJSON(w, http.StatusOK, toWalletDTO(wallet))
}

// GetTransactions returns the caller's history, newest first.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	txs, err := h.Ledger.Transactions(r.Context(), claims.Email)
	if err != nil {
		writeDomainError(w, "Failed to load transactions", err)
		return
	}

	dtos := make([]TransactionDTO, len(txs))
	for i, t := range txs {
		dtos[i] = toTransactionDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetStatement streams a rendered account statement.
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	ctx := r.Context()

	acct, err := h.Identity.Lookup(ctx, claims.Email)
	if err != nil {
		writeError(w, http.StatusNotFound, "Account not found", nil)
		return
	}
	wallet, err := h.Ledger.Wallet(ctx, claims.Email)
	if err != nil {
		writeDomainError(w, "Failed to load wallet", err)
		return
	}
	txs, err := h.Ledger.Transactions(ctx, claims.Email)
	if err != nil {
		writeDomainError(w, "Failed to load transactions", err)
		return
	}

	w.Header().Set("Content-Type", h.Statement.ContentType())
	w.WriteHeader(http.StatusOK)
	if err := h.Statement.Render(w, acct, wallet, txs); err != nil {
		h.Log.Warn("statement rendering aborted", zap.String("email", claims.Email), zap.Error(err))
	}
}

// =============================================================================
// MARKETPLACE HANDLERS
// =============================================================================

// ListMarketplace returns active catalog items, cheapest first.
func (h *Handler) ListMarketplace(w http.ResponseWriter, r *http.Request) {
	items, err := h.Ledger.Items(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to load marketplace", err)
		return
	}

	dtos := make([]ItemDTO, len(items))
	for i, it := range items {
		dtos[i] = toItemDTO(it)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Redeem buys a single item and returns the updated wallet.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	wallet, err := h.Ledger.Redeem(r.Context(), claims.Email, req.ProductID)
	if err != nil {
		writeDomainError(w, "Redemption failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toWalletDTO(wallet))
}

// Checkout buys a whole cart in one balance deduction.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "Cart is empty", nil)
		return
	}

	cart := make([]ledger.CartLine, len(req.Items))
	for i, l := range req.Items {
		if l.Quantity <= 0 {
			l.Quantity = 1
		}
		cart[i] = ledger.CartLine{CUID: l.CUID, Quantity: l.Quantity}
	}

	res, err := h.Ledger.Checkout(r.Context(), claims.Email, cart)
	if err != nil {
		writeDomainError(w, "Checkout failed", err)
		return
	}

	out := CheckoutResponse{
		OrderID:    res.OrderID,
		Total:      res.Total.InexactFloat64(),
		NewBalance: res.NewBalance.InexactFloat64(),
	}
	for _, l := range res.Lines {
		out.Items = append(out.Items, OrderLineDTO{
			Title:    l.Title,
			Quantity: l.Quantity,
			Cost:     l.Cost.InexactFloat64(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// Reconcile audits one wallet against its transaction history and repairs
// the balance if they diverge.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "An email is required", nil)
		return
	}

	report, err := h.Ledger.Reconcile(r.Context(), req.Email)
	if err != nil {
		writeDomainError(w, "Reconciliation failed", err)
		return
	}

	writeJSON(w, http.StatusOK, ReconcileResponse{
		Email:    report.Email,
		Stored:   report.Stored.InexactFloat64(),
		Derived:  report.Derived.InexactFloat64(),
		Repaired: report.Repaired,
	})
}

// SeedDemoData loads the demo catalog and accounts.
func (h *Handler) SeedDemoData(w http.ResponseWriter, r *http.Request) {
	res, err := h.Ledger.Seed(r.Context(), auth.HashPassword)
	if err != nil {
		writeDomainError(w, "Seeding failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Health reports liveness and whether the store has failed over.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Store:  string(h.Store.State()),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP statuses. Conflicts beat
// the generic client-error check because duplicate receipts satisfy both.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case docstore.IsNotFound(err) || errors.Is(err, ledger.ErrNoWallet):
		writeError(w, http.StatusNotFound, message, err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
