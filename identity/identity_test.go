package identity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenbank/points-engine/docstore"
	"github.com/greenbank/points-engine/docstore/memstore"
	"github.com/greenbank/points-engine/identity"
)

func newService(t *testing.T, kyc identity.KYCVerifier, fraud identity.FraudChecker) (*identity.Service, *docstore.Facade) {
	t.Helper()
	idx, err := docstore.LoadIndex("")
	require.NoError(t, err)
	fo := docstore.NewFailover(memstore.New(), memstore.New(), nil, nil)
	store := docstore.New(fo, idx, docstore.MustGenerator(), nil)
	return identity.NewService(store, kyc, fraud, nil), store
}

func TestSignup_DuplicateEmailRejected(t *testing.T) {
	// GIVEN: An existing account
	// WHEN: Signing up the same email again
	// THEN: The second attempt conflicts

	svc, _ := newService(t, identity.StaticKYC{Verified: true}, identity.StaticFraud{Clear: true})
	ctx := context.Background()

	first, err := svc.Signup(ctx, "Alice", "alice@example.com", "hash-a")
	require.NoError(t, err)
	assert.Equal(t, "USER", first.Role)
	assert.NotZero(t, first.ID)

	_, err = svc.Signup(ctx, "Imposter", "alice@example.com", "hash-b")
	assert.True(t, docstore.IsConflict(err), "want conflict, got %v", err)
}

func TestLookup_FindsFlaggedAccounts(t *testing.T) {
	// GIVEN: An account moved to the fraud collection by a dirty verdict
	// WHEN: Looking it up by email
	// THEN: Lookup still finds it

	svc, _ := newService(t, identity.StaticKYC{Verified: true}, identity.StaticFraud{Clear: false, RiskScore: 93})
	ctx := context.Background()

	_, err := svc.Signup(ctx, "Mallory", "mallory@example.com", "hash")
	require.NoError(t, err)

	verdict, err := svc.RunFraudCheck(ctx, "mallory@example.com")
	require.NoError(t, err)
	assert.False(t, verdict.Clear)

	acct, err := svc.Lookup(ctx, "mallory@example.com")
	require.NoError(t, err)
	assert.Equal(t, "mallory@example.com", acct.Email)
	assert.False(t, acct.FraudClear)
}

func TestLookup_UnknownEmailIsNotFound(t *testing.T) {
	svc, _ := newService(t, identity.StaticKYC{Verified: true}, identity.StaticFraud{Clear: true})

	_, err := svc.Lookup(context.Background(), "ghost@example.com")
	assert.True(t, docstore.IsNotFound(err), "want not found, got %v", err)
}

func TestCompleteKYC_PersistsVerdictAndDetails(t *testing.T) {
	// GIVEN: A fresh account and a verifier that approves
	// WHEN: Completing KYC
	// THEN: The flag and the submitted details survive a re-read

	svc, store := newService(t, identity.StaticKYC{Verified: true}, identity.StaticFraud{Clear: true})
	ctx := context.Background()

	acct, err := svc.Signup(ctx, "Alice", "alice@example.com", "hash")
	require.NoError(t, err)
	require.False(t, acct.KYCComplete)

	result, err := svc.CompleteKYC(ctx, "alice@example.com", identity.KYCDetails{
		FirstName: "Alice",
		LastName:  "Nguyen",
		City:      "Portland",
	})
	require.NoError(t, err)
	assert.True(t, result.Verified)

	doc, err := store.GetByID(ctx, docstore.CollectionVerifiedUsers, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, true, doc.Payload["kycComplete"])
	assert.Equal(t, "Nguyen", doc.Payload["lastName"])
	assert.Equal(t, "Portland", doc.Payload["city"])
}

func TestCompleteKYC_FailedVerificationLeavesFlagUnset(t *testing.T) {
	svc, _ := newService(t, identity.StaticKYC{Verified: false}, identity.StaticFraud{Clear: true})
	ctx := context.Background()

	_, err := svc.Signup(ctx, "Alice", "alice@example.com", "hash")
	require.NoError(t, err)

	result, err := svc.CompleteKYC(ctx, "alice@example.com", identity.KYCDetails{FirstName: "Alice"})
	require.NoError(t, err)
	assert.False(t, result.Verified)

	acct, err := svc.Lookup(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, acct.KYCComplete)
}

func TestRunFraudCheck_MovesAccountBetweenCollections(t *testing.T) {
	// GIVEN: An account flagged by the fraud boundary
	// WHEN: The verdict flips to clear on a later check
	// THEN: The record moves fraud_users -> verified_users and never lands
	//       in both

	svc, store := newService(t, identity.StaticKYC{Verified: true}, identity.StaticFraud{Clear: false, RiskScore: 88})
	ctx := context.Background()

	acct, err := svc.Signup(ctx, "Mallory", "mallory@example.com", "hash")
	require.NoError(t, err)

	_, err = svc.RunFraudCheck(ctx, "mallory@example.com")
	require.NoError(t, err)

	_, err = store.GetByID(ctx, docstore.CollectionFraudUsers, acct.ID)
	require.NoError(t, err, "flagged account should sit in fraud_users")
	_, err = store.GetByID(ctx, docstore.CollectionVerifiedUsers, acct.ID)
	assert.True(t, docstore.IsNotFound(err), "flagged account should leave verified_users")

	// Second opinion against the same store clears the account.
	svc2 := identity.NewService(store, identity.StaticKYC{Verified: true}, identity.StaticFraud{Clear: true, RiskScore: 5}, nil)
	verdict, err := svc2.RunFraudCheck(ctx, "mallory@example.com")
	require.NoError(t, err)
	assert.True(t, verdict.Clear)

	_, err = store.GetByID(ctx, docstore.CollectionVerifiedUsers, acct.ID)
	require.NoError(t, err, "cleared account should be back in verified_users")
	_, err = store.GetByID(ctx, docstore.CollectionFraudUsers, acct.ID)
	assert.True(t, docstore.IsNotFound(err))
}

func TestStaticProviders(t *testing.T) {
	ctx := context.Background()

	kyc, err := identity.StaticKYC{Verified: true}.Verify(ctx, identity.KYCDetails{})
	require.NoError(t, err)
	assert.True(t, kyc.Verified)

	fraud, err := identity.StaticFraud{Clear: true, RiskScore: 12}.Check(ctx, identity.Account{})
	require.NoError(t, err)
	assert.True(t, fraud.Clear)
	assert.Equal(t, 12, fraud.RiskScore)

	credit, err := identity.StaticBureau{CreditScore: 720}.Score(ctx, identity.Account{}, "equifax")
	require.NoError(t, err)
	assert.Equal(t, 720, credit.Score)
	assert.Equal(t, "equifax", credit.Bureau)
}
