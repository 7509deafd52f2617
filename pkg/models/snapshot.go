package models

import "time"

// PlatformListing is the current offer for an item on one platform.
// FeePercent is the platform's transaction fee, applied on top of the price
// for the buyer and deducted from the price for the seller.
type PlatformListing struct {
	Platform   string  `json:"platform"`
	Price      float64 `json:"price"`
	FeePercent float64 `json:"feePercent"`
}

// BuyCost is the total a buyer pays on this platform.
func (l PlatformListing) BuyCost() float64 {
	return l.Price * (1 + l.FeePercent/100)
}

// SellProceeds is what a seller nets on this platform.
func (l PlatformListing) SellProceeds() float64 {
	return l.Price * (1 - l.FeePercent/100)
}

// ItemSnapshot is the point-in-time market view of one tracked item.
// Historical fields are pointers: nil means the data was not available when
// the snapshot was taken, and any field derived from it resolves as
// unavailable rather than zero.
type ItemSnapshot struct {
	ItemID   string `json:"itemId"`
	Name     string `json:"name"`
	Category string `json:"category"`

	Listings []PlatformListing `json:"listings"`

	Price7dAgo    *float64 `json:"price7dAgo,omitempty"`
	MovingAvg30d  *float64 `json:"movingAvg30d,omitempty"`
	Volume        float64  `json:"volume"`
	Volume30dAgo  *float64 `json:"volume30dAgo,omitempty"`
	Recommendation string  `json:"recommendation,omitempty"` // supplied by external analytics
	RiskLevel      string  `json:"riskLevel,omitempty"`
}

// MarketSnapshot is the shared, sweep-scoped read-only market view. It is
// built once per sweep and must not be mutated afterwards.
type MarketSnapshot struct {
	TakenAt time.Time                `json:"takenAt"`
	Items   map[string]*ItemSnapshot `json:"items"`
}

// Item returns the snapshot for an item, or nil when the sweep has no data
// for it.
func (s *MarketSnapshot) Item(itemID string) *ItemSnapshot {
	if s == nil {
		return nil
	}
	return s.Items[itemID]
}

// CatalogItem is the indexed catalog view used by candidate selection.
type CatalogItem struct {
	ItemID   string  `json:"itemId"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
}
