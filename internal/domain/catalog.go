package domain

import "github.com/shopspring/decimal"

// CreditPackage is a purchasable bundle. PriceTZS is what the gateway charges;
// DisplayPriceUSD is what the app shows next to it.
type CreditPackage struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Credits         int64           `json:"credits"`
	PriceTZS        decimal.Decimal `json:"priceTzs"`
	DisplayPriceUSD decimal.Decimal `json:"price"`
	Popular         bool            `json:"popular"`
	Discount        string          `json:"discount,omitempty"`
}

var Catalog = []CreditPackage{
	{ID: "pack_10", Name: "10 Credits", Credits: 10, PriceTZS: decimal.NewFromInt(12000), DisplayPriceUSD: decimal.RequireFromString("4.99")},
	{ID: "pack_25", Name: "25 Credits", Credits: 25, PriceTZS: decimal.NewFromInt(24000), DisplayPriceUSD: decimal.RequireFromString("9.99"), Popular: true, Discount: "20% off"},
	{ID: "pack_50", Name: "50 Credits", Credits: 50, PriceTZS: decimal.NewFromInt(43000), DisplayPriceUSD: decimal.RequireFromString("17.99"), Discount: "28% off"},
	{ID: "pack_100", Name: "100 Credits", Credits: 100, PriceTZS: decimal.NewFromInt(72000), DisplayPriceUSD: decimal.RequireFromString("29.99"), Discount: "40% off"},
}

func LookupPackage(id string) (CreditPackage, bool) {
	for _, p := range Catalog {
		if p.ID == id {
			return p, true
		}
	}
	return CreditPackage{}, false
}
