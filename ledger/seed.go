/*
seed.go - Demo catalog and accounts

Seeds the marketplace catalog and a handful of demo accounts through the
facade's BatchPut, which preserves the consistency-index side effect per
record. Safe to re-run: record ids are regenerated, but emails and cuids
overwrite their index entries.
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/greenbank/points-engine/docstore"
)

type seedItem struct {
	title     string
	category  string
	cost      int64
	inventory int // <0 means unlimited
}

var catalog = []seedItem{
	{"Campus Café $5 Gift Card", "food", 50, 100},
	{"Library Print Credits (100 pages)", "academic", 30, 200},
	{"Portable Solar Charger", "tech", 500, 10},
	{"Bamboo Water Bottle", "lifestyle", 80, 50},
	{"Recycled Notebook Set", "academic", 25, 150},
	{"Organic Cotton Tote Bag", "lifestyle", 40, 75},
	{"LED Desk Lamp", "tech", 150, 30},
	{"Public Transit Pass (1 Week)", "transport", 200, 40},
	{"Farmers Market Voucher ($10)", "food", 100, 60},
	{"Tree Planting Certificate", "impact", 300, -1},
}

type seedUser struct {
	name  string
	email string
	role  string
}

var demoUsers = []seedUser{
	{"Alice Johnson", "alice@greenbank.io", "USER"},
	{"Bob Smith", "bob@greenbank.io", "REVIEWER"},
	{"Charlie Admin", "admin@greenbank.io", "ADMIN"},
	{"Diana Chen", "diana@greenbank.io", "USER"},
	{"Ethan Patel", "ethan@greenbank.io", "USER"},
	{"Fiona Garcia", "fiona@greenbank.io", "USER"},
}

// SeedResult reports what Seed provisioned.
type SeedResult struct {
	Users    int `json:"users"`
	Wallets  int `json:"wallets"`
	Products int `json:"products"`
}

// Seed provisions the demo catalog and accounts. Demo passwords are stored
// pre-hashed by the caller via hashPassword.
func (s *Service) Seed(ctx context.Context, hashPassword func(string) (string, error)) (SeedResult, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	users := make([]docstore.Document, 0, len(demoUsers))
	wallets := make([]docstore.Document, 0, len(demoUsers))
	for _, u := range demoUsers {
		hashed := "Pass123!"
		if hashPassword != nil {
			if h, err := hashPassword("Pass123!"); err == nil {
				hashed = h
			}
		}
		users = append(users, docstore.Document{
			ID: s.store.IDs().NextID(),
			Payload: docstore.Payload{
				"name":        u.name,
				"email":       u.email,
				"password":    hashed,
				"role":        u.role,
				"kycComplete": false,
				"fraudClear":  false,
				"greenScore":  nil,
				"createdAt":   now,
			},
		})
		wallets = append(wallets, docstore.Document{
			ID: s.store.IDs().NextID(),
			Payload: Wallet{Email: u.email, Balance: s.bonus}.ToPayload(),
		})
	}

	products := make([]docstore.Document, 0, len(catalog))
	for _, it := range catalog {
		item := Item{
			ID:       s.store.IDs().NextID(),
			CUID:     s.store.IDs().NewCUID(),
			Title:    it.title,
			Category: it.category,
			Cost:     decimal.NewFromInt(it.cost),
			Active:   true,
		}
		if it.inventory >= 0 {
			n := it.inventory
			item.Inventory = &n
		}
		products = append(products, docstore.Document{ID: item.ID, Payload: item.ToPayload()})
	}

	if err := s.store.BatchPut(ctx, docstore.CollectionVerifiedUsers, users); err != nil {
		return SeedResult{}, err
	}
	if err := s.store.BatchPut(ctx, docstore.CollectionWallets, wallets); err != nil {
		return SeedResult{}, err
	}
	if err := s.store.BatchPut(ctx, docstore.CollectionProducts, products); err != nil {
		return SeedResult{}, err
	}

	return SeedResult{Users: len(users), Wallets: len(wallets), Products: len(products)}, nil
}
