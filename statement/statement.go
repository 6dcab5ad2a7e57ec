/*
Package statement is the export boundary: given an account, its wallet and a
pre-sorted transaction list, a Renderer produces a document. PDF rendering
lives with an external collaborator; the in-tree Text renderer exists so the
endpoint works standalone and so the contract (caller sorts, renderer
formats) has a reference implementation.
*/
package statement

import (
	"fmt"
	"io"
	"time"

	"github.com/greenbank/points-engine/identity"
	"github.com/greenbank/points-engine/ledger"
)

// Renderer writes a statement document. Transactions must already be sorted
// as the caller wants them presented.
type Renderer interface {
	Render(w io.Writer, acct identity.Account, wallet ledger.Wallet, txs []ledger.Transaction) error
	ContentType() string
}

// Text renders a plain-text statement.
type Text struct{}

func (Text) ContentType() string { return "text/plain; charset=utf-8" }

func (Text) Render(w io.Writer, acct identity.Account, wallet ledger.Wallet, txs []ledger.Transaction) error {
	if _, err := fmt.Fprintf(w, "GREEN POINTS STATEMENT\n%s <%s>\nGenerated %s\n\n",
		acct.Name, acct.Email, time.Now().UTC().Format("2006-01-02 15:04 UTC")); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%-12s %-8s %10s  %s\n", "DATE", "TYPE", "POINTS", "DESCRIPTION"); err != nil {
		return err
	}
	for _, tx := range txs {
		date := "-"
		if !tx.Timestamp.IsZero() {
			date = tx.Timestamp.Format("2006-01-02")
		}
		desc := tx.Description
		if tx.OrderID != "" {
			desc = fmt.Sprintf("%s  #%s", desc, tx.OrderID)
		}
		if _, err := fmt.Fprintf(w, "%-12s %-8s %10s  %s\n", date, tx.Type, tx.Amount.StringFixed(2), desc); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "\nCLOSING BALANCE: %s points\n", wallet.Balance.StringFixed(2))
	return err
}
