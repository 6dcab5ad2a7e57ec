/*
Package identity manages accounts and the external verification boundary.

The KYC, fraud-scoring and credit-bureau providers are collaborators behind
narrow interfaces: the core only consumes a {verified} flag, a {clear, risk
score} verdict and a numeric credit score, and persists them onto the account.
Retries and provider-specific payloads are the collaborator's concern.

ACCOUNT PLACEMENT INVARIANT:
  An account lives in exactly one of {verified_users, fraud_users} at a time.
  A fraud verdict moves the record; the delete from the old collection is
  best-effort because a spurious retained record is tolerable while a
  double-presence is prevented by the write-then-delete order being driven
  off one verdict at a time.
*/
package identity

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/greenbank/points-engine/docstore"
)

// =============================================================================
// ACCOUNT ENTITY
// =============================================================================

type Account struct {
	ID          int64
	Name        string
	Email       string
	Password    string // bcrypt hash
	Role        string
	KYCComplete bool
	FraudClear  bool
	GreenScore  *int
	CreatedAt   time.Time

	extra docstore.Payload
}

func (a Account) ToPayload() docstore.Payload {
	p := docstore.ClonePayload(a.extra)
	if p == nil {
		p = docstore.Payload{}
	}
	p["name"] = a.Name
	p["email"] = a.Email
	p["password"] = a.Password
	p["role"] = a.Role
	p["kycComplete"] = a.KYCComplete
	p["fraudClear"] = a.FraudClear
	if a.GreenScore != nil {
		p["greenScore"] = float64(*a.GreenScore)
	} else if _, ok := p["greenScore"]; !ok {
		p["greenScore"] = nil
	}
	p["createdAt"] = a.CreatedAt.UTC().Format(time.RFC3339)
	return p
}

func AccountFromDocument(doc docstore.Document) Account {
	p := doc.Payload
	a := Account{
		ID:          doc.ID,
		Name:        docstore.String(p, "name"),
		Email:       docstore.String(p, "email"),
		Password:    docstore.String(p, "password"),
		Role:        docstore.String(p, "role"),
		KYCComplete: docstore.Bool(p, "kycComplete"),
		FraudClear:  docstore.Bool(p, "fraudClear"),
	}
	if raw, ok := p["greenScore"]; ok && raw != nil {
		n := int(docstore.Float(p, "greenScore"))
		a.GreenScore = &n
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, docstore.String(p, "createdAt"))
	a.extra = extraAccountFields(p)
	return a
}

func extraAccountFields(p docstore.Payload) docstore.Payload {
	known := map[string]bool{
		"name": true, "email": true, "password": true, "role": true,
		"kycComplete": true, "fraudClear": true, "greenScore": true, "createdAt": true,
	}
	var extra docstore.Payload
	for k, v := range p {
		if known[k] {
			continue
		}
		if extra == nil {
			extra = docstore.Payload{}
		}
		extra[k] = v
	}
	return docstore.ClonePayload(extra)
}

// =============================================================================
// VERIFICATION BOUNDARY
// =============================================================================

// KYCDetails is what the verification provider needs.
type KYCDetails struct {
	FirstName string
	LastName  string
	SSN       string
	DOB       string
	Address   string
	City      string
	State     string
	Zip       string
	Phone     string
}

// KYCResult is the only shape the core consumes from the provider.
type KYCResult struct {
	Verified bool
	Provider string
}

// FraudResult is the only shape the core consumes from the provider.
type FraudResult struct {
	Clear     bool
	RiskScore int
	Provider  string
}

// CreditResult is what the bureau boundary returns.
type CreditResult struct {
	Score    int
	Bureau   string
	Provider string
}

type KYCVerifier interface {
	Verify(ctx context.Context, details KYCDetails) (KYCResult, error)
}

type FraudChecker interface {
	Check(ctx context.Context, acct Account) (FraudResult, error)
}

type CreditBureau interface {
	Score(ctx context.Context, acct Account, bureau string) (CreditResult, error)
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store *docstore.Facade
	kyc   KYCVerifier
	fraud FraudChecker
	log   *zap.Logger
}

func NewService(store *docstore.Facade, kyc KYCVerifier, fraud FraudChecker, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, kyc: kyc, fraud: fraud, log: log}
}

// Signup creates an account in the verified collection. Duplicate emails are
// rejected with docstore.ErrConflict.
func (s *Service) Signup(ctx context.Context, name, email, passwordHash string) (Account, error) {
	if _, err := s.Lookup(ctx, email); err == nil {
		return Account{}, docstore.ErrConflict
	} else if !docstore.IsNotFound(err) {
		return Account{}, err
	}

	acct := Account{
		ID:        s.store.IDs().NextID(),
		Name:      name,
		Email:     email,
		Password:  passwordHash,
		Role:      "USER",
		CreatedAt: time.Now(),
	}
	if err := s.store.Put(ctx, docstore.CollectionVerifiedUsers, acct.ID, acct.ToPayload()); err != nil {
		return Account{}, err
	}
	return acct, nil
}

// Lookup finds an account by email in either placement collection.
func (s *Service) Lookup(ctx context.Context, email string) (Account, error) {
	doc, err := s.store.FindOne(ctx, docstore.CollectionVerifiedUsers, "email", email)
	if docstore.IsNotFound(err) {
		doc, err = s.store.FindOne(ctx, docstore.CollectionFraudUsers, "email", email)
	}
	if err != nil {
		return Account{}, err
	}
	return AccountFromDocument(doc), nil
}

// CompleteKYC runs the verification boundary and persists the verdict plus
// the submitted details onto the account.
func (s *Service) CompleteKYC(ctx context.Context, email string, details KYCDetails) (KYCResult, error) {
	result, err := s.kyc.Verify(ctx, details)
	if err != nil {
		return KYCResult{}, err
	}

	acct, err := s.Lookup(ctx, email)
	if err != nil {
		return KYCResult{}, err
	}
	acct.KYCComplete = result.Verified
	if acct.extra == nil {
		acct.extra = docstore.Payload{}
	}
	acct.extra["firstName"] = details.FirstName
	acct.extra["lastName"] = details.LastName
	acct.extra["ssn"] = details.SSN
	acct.extra["dob"] = details.DOB
	acct.extra["address"] = details.Address
	acct.extra["city"] = details.City
	acct.extra["state"] = details.State
	acct.extra["zip"] = details.Zip
	acct.extra["phone"] = details.Phone

	if err := s.store.Put(ctx, docstore.CollectionVerifiedUsers, acct.ID, acct.ToPayload()); err != nil {
		return KYCResult{}, err
	}
	return result, nil
}

// RunFraudCheck consults the fraud boundary and persists the verdict. A
// flagged account is moved to the fraud collection; a clear verdict moves a
// previously flagged account back. The account is in exactly one collection
// when this returns.
func (s *Service) RunFraudCheck(ctx context.Context, email string) (FraudResult, error) {
	acct, err := s.Lookup(ctx, email)
	if err != nil {
		return FraudResult{}, err
	}

	result, err := s.fraud.Check(ctx, acct)
	if err != nil {
		return FraudResult{}, err
	}

	acct.FraudClear = result.Clear
	target, other := docstore.CollectionVerifiedUsers, docstore.CollectionFraudUsers
	if !result.Clear {
		target, other = docstore.CollectionFraudUsers, docstore.CollectionVerifiedUsers
		s.log.Warn("account flagged by fraud check",
			zap.String("email", email), zap.Int("riskScore", result.RiskScore))
	}

	// Write the new placement first, then best-effort remove the old one.
	if err := s.store.Put(ctx, target, acct.ID, acct.ToPayload()); err != nil {
		return FraudResult{}, err
	}
	s.store.Delete(ctx, other, acct.ID)
	return result, nil
}
