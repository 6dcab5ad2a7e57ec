/*
Package ledger maintains the point-balance ledger on top of the collection
facade: wallet balances, the append-only transaction log, claims, marketplace
redemptions and the derived green score.

KEY CONCEPTS IN THIS FILE (types.go):
  - Transaction: an immutable ledger entry with a signed point amount
  - Wallet: the materialized balance a ledger operation keeps in sync with
    the transaction sum
  - Claim: a receipt-backed submission, unique by receipt number
  - Item / OrderLine: marketplace catalog and checkout lines

DESIGN PRINCIPLES:
  1. Transactions are append-only; the wallet balance is conceptually their
     running sum seeded by the signup bonus
  2. Precision: decimal.Decimal for all point arithmetic; payloads store
     plain numbers for backend portability
  3. Entities convert to and from docstore payloads explicitly - unknown
     payload fields survive a round trip untouched
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/greenbank/points-engine/docstore"
)

// =============================================================================
// TRANSACTION - Append-only ledger entry
// =============================================================================

type TxType string

const (
	TxBonus  TxType = "BONUS"  // signup welcome bonus
	TxEarn   TxType = "EARN"   // auto-approved claim award
	TxMint   TxType = "MINT"   // reviewer-approved claim award
	TxSpend  TxType = "SPEND"  // cart checkout (itemized, order-tagged)
	TxRedeem TxType = "REDEEM" // single-item redemption
)

// Transaction is immutable once written. Negative amounts are spends.
type Transaction struct {
	ID          int64
	Email       string
	Type        TxType
	Amount      decimal.Decimal
	Description string
	Timestamp   time.Time
	OrderID     string
	Items       []OrderLine

	extra docstore.Payload
}

// OrderLine is one line of an itemized checkout.
type OrderLine struct {
	Title    string
	Quantity int
	Cost     decimal.Decimal // unit cost in points
}

func (t Transaction) ToPayload() docstore.Payload {
	p := docstore.ClonePayload(t.extra)
	if p == nil {
		p = docstore.Payload{}
	}
	p["email"] = t.Email
	p["type"] = string(t.Type)
	p["amount"] = t.Amount.InexactFloat64()
	p["description"] = t.Description
	p["timestamp"] = t.Timestamp.UTC().Format(time.RFC3339)
	if t.OrderID != "" {
		p["order_id"] = t.OrderID
	}
	if len(t.Items) > 0 {
		items := make([]any, 0, len(t.Items))
		for _, l := range t.Items {
			items = append(items, docstore.Payload{
				"title":    l.Title,
				"quantity": l.Quantity,
				"cost":     l.Cost.InexactFloat64(),
			})
		}
		p["items"] = items
	}
	return p
}

func TransactionFromDocument(doc docstore.Document) Transaction {
	p := doc.Payload
	t := Transaction{
		ID:          doc.ID,
		Email:       docstore.String(p, "email"),
		Type:        TxType(docstore.String(p, "type")),
		Amount:      decimal.NewFromFloat(docstore.Float(p, "amount")),
		Description: docstore.String(p, "description"),
		OrderID:     docstore.String(p, "order_id"),
		extra:       extraFields(p, "email", "type", "amount", "description", "timestamp", "order_id", "items"),
	}
	t.Timestamp, _ = time.Parse(time.RFC3339, docstore.String(p, "timestamp"))
	if items, ok := p["items"].([]any); ok {
		for _, it := range items {
			line, ok := it.(docstore.Payload)
			if !ok {
				continue
			}
			t.Items = append(t.Items, OrderLine{
				Title:    docstore.String(line, "title"),
				Quantity: int(docstore.Float(line, "quantity")),
				Cost:     decimal.NewFromFloat(docstore.Float(line, "cost")),
			})
		}
	}
	return t
}

// =============================================================================
// WALLET - Materialized balance
// =============================================================================

type Wallet struct {
	ID      int64
	Email   string
	Balance decimal.Decimal

	extra docstore.Payload
}

func (w Wallet) ToPayload() docstore.Payload {
	p := docstore.ClonePayload(w.extra)
	if p == nil {
		p = docstore.Payload{}
	}
	p["email"] = w.Email
	p["balance"] = w.Balance.InexactFloat64()
	return p
}

func WalletFromDocument(doc docstore.Document) Wallet {
	return Wallet{
		ID:      doc.ID,
		Email:   docstore.String(doc.Payload, "email"),
		Balance: decimal.NewFromFloat(docstore.Float(doc.Payload, "balance")),
		extra:   extraFields(doc.Payload, "email", "balance"),
	}
}

// =============================================================================
// CLAIM - Receipt-backed submission
// =============================================================================

type ClaimStatus string

const (
	ClaimPending  ClaimStatus = "PENDING"
	ClaimApproved ClaimStatus = "APPROVED"
)

type Claim struct {
	ID            int64
	Email         string
	ReceiptNumber string
	Category      string
	Description   string
	Amount        decimal.Decimal // receipt amount in currency
	PointsAwarded decimal.Decimal
	Status        ClaimStatus
	Timestamp     time.Time

	extra docstore.Payload
}

func (c Claim) ToPayload() docstore.Payload {
	p := docstore.ClonePayload(c.extra)
	if p == nil {
		p = docstore.Payload{}
	}
	p["email"] = c.Email
	p["receiptNumber"] = c.ReceiptNumber
	p["category"] = c.Category
	p["description"] = c.Description
	p["amount"] = c.Amount.InexactFloat64()
	p["pointsAwarded"] = c.PointsAwarded.InexactFloat64()
	p["status"] = string(c.Status)
	p["timestamp"] = c.Timestamp.UTC().Format(time.RFC3339)
	return p
}

func ClaimFromDocument(doc docstore.Document) Claim {
	p := doc.Payload
	c := Claim{
		ID:            doc.ID,
		Email:         docstore.String(p, "email"),
		ReceiptNumber: docstore.String(p, "receiptNumber"),
		Category:      docstore.String(p, "category"),
		Description:   docstore.String(p, "description"),
		Amount:        decimal.NewFromFloat(docstore.Float(p, "amount")),
		PointsAwarded: decimal.NewFromFloat(docstore.Float(p, "pointsAwarded")),
		Status:        ClaimStatus(docstore.String(p, "status")),
		extra: extraFields(p, "email", "receiptNumber", "category", "description",
			"amount", "pointsAwarded", "status", "timestamp"),
	}
	c.Timestamp, _ = time.Parse(time.RFC3339, docstore.String(p, "timestamp"))
	return c
}

// =============================================================================
// MARKETPLACE ITEM
// =============================================================================

// Item is a marketplace product. Inventory == nil means unlimited stock.
// Items are soft-deactivated via Active, never removed in the hot path.
type Item struct {
	ID        int64
	CUID      string
	Title     string
	Category  string
	Cost      decimal.Decimal
	Inventory *int
	Active    bool

	extra docstore.Payload
}

func (i Item) ToPayload() docstore.Payload {
	p := docstore.ClonePayload(i.extra)
	if p == nil {
		p = docstore.Payload{}
	}
	p["cuid"] = i.CUID
	p["title"] = i.Title
	p["category"] = i.Category
	p["cost"] = i.Cost.InexactFloat64()
	p["active"] = i.Active
	if i.Inventory != nil {
		p["inventory"] = float64(*i.Inventory)
	} else {
		p["inventory"] = nil
	}
	return p
}

func ItemFromDocument(doc docstore.Document) Item {
	p := doc.Payload
	item := Item{
		ID:       doc.ID,
		CUID:     docstore.String(p, "cuid"),
		Title:    docstore.String(p, "title"),
		Category: docstore.String(p, "category"),
		Cost:     decimal.NewFromFloat(docstore.Float(p, "cost")),
		Active:   docstore.Bool(p, "active"),
		extra:    extraFields(p, "cuid", "title", "category", "cost", "active", "inventory"),
	}
	if raw, ok := p["inventory"]; ok && raw != nil {
		n := int(docstore.Float(p, "inventory"))
		item.Inventory = &n
	}
	return item
}

// extraFields keeps the payload fields this package does not model, so they
// survive a read-modify-write untouched.
func extraFields(p docstore.Payload, known ...string) docstore.Payload {
	skip := make(map[string]bool, len(known))
	for _, k := range known {
		skip[k] = true
	}
	var extra docstore.Payload
	for k, v := range p {
		if skip[k] {
			continue
		}
		if extra == nil {
			extra = docstore.Payload{}
		}
		extra[k] = v
	}
	return docstore.ClonePayload(extra)
}
