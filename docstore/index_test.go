package docstore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenbank/points-engine/docstore"
)

func TestIndex_ColdStartWhenFileAbsent(t *testing.T) {
	// GIVEN: No index file on disk
	// WHEN: Loading
	// THEN: An empty index, not an error

	idx, err := docstore.LoadIndex(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	_, ok := idx.LookupEmail(docstore.CollectionWallets, "a@x.io")
	assert.False(t, ok)
}

func TestIndex_ObservePersistsAndReloads(t *testing.T) {
	// GIVEN: Observations for a wallet, a claim, and two transactions
	// WHEN: Reloading the file from disk
	// THEN: All three maps survive the restart

	path := filepath.Join(t.TempDir(), "index.json")
	idx, err := docstore.LoadIndex(path)
	require.NoError(t, err)

	require.NoError(t, idx.Observe(docstore.CollectionWallets, 10, docstore.Payload{"email": "a@x.io"}))
	require.NoError(t, idx.Observe(docstore.CollectionClaims, 20, docstore.Payload{"receiptNumber": "R-2024-001"}))
	require.NoError(t, idx.Observe(docstore.CollectionTransactions, 30, docstore.Payload{"email": "a@x.io"}))
	require.NoError(t, idx.Observe(docstore.CollectionTransactions, 31, docstore.Payload{"email": "a@x.io"}))

	reloaded, err := docstore.LoadIndex(path)
	require.NoError(t, err)

	id, ok := reloaded.LookupEmail(docstore.CollectionWallets, "a@x.io")
	require.True(t, ok)
	assert.Equal(t, int64(10), id)

	id, ok = reloaded.LookupReceipt("R-2024-001")
	require.True(t, ok)
	assert.Equal(t, int64(20), id)

	assert.Equal(t, []int64{30, 31}, reloaded.TransactionIDs("a@x.io"))
}

func TestIndex_SameEmailAcrossCollections(t *testing.T) {
	// GIVEN: The same email used by an account record and its wallet
	// WHEN: Both are observed
	// THEN: Each collection resolves to its own record id

	idx, err := docstore.LoadIndex("") // ephemeral
	require.NoError(t, err)

	require.NoError(t, idx.Observe(docstore.CollectionVerifiedUsers, 1, docstore.Payload{"email": "a@x.io"}))
	require.NoError(t, idx.Observe(docstore.CollectionWallets, 2, docstore.Payload{"email": "a@x.io"}))

	id, ok := idx.LookupEmail(docstore.CollectionVerifiedUsers, "a@x.io")
	require.True(t, ok)
	assert.Equal(t, int64(1), id)

	id, ok = idx.LookupEmail(docstore.CollectionWallets, "a@x.io")
	require.True(t, ok)
	assert.Equal(t, int64(2), id)
}

func TestIndex_RewriteOverwritesEntry(t *testing.T) {
	// GIVEN: An email indexed to one record
	// WHEN: A later Put indexes the same email to a new id (account moved)
	// THEN: The lookup returns the new id

	idx, err := docstore.LoadIndex("")
	require.NoError(t, err)

	require.NoError(t, idx.Observe(docstore.CollectionVerifiedUsers, 1, docstore.Payload{"email": "a@x.io"}))
	require.NoError(t, idx.Observe(docstore.CollectionVerifiedUsers, 9, docstore.Payload{"email": "a@x.io"}))

	id, ok := idx.LookupEmail(docstore.CollectionVerifiedUsers, "a@x.io")
	require.True(t, ok)
	assert.Equal(t, int64(9), id)
}

func TestIndex_NoTempFileLeftBehind(t *testing.T) {
	// GIVEN: A write-through persist
	// WHEN: Observe returns
	// THEN: Only the final file exists; the temp file was renamed away

	dir := t.TempDir()
	path := filepath.Join(dir, "index.json")
	idx, err := docstore.LoadIndex(path)
	require.NoError(t, err)

	require.NoError(t, idx.Observe(docstore.CollectionWallets, 1, docstore.Payload{"email": "a@x.io"}))

	_, err = os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
