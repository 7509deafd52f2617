package engine

import (
	"errors"
	"fmt"

	"github.com/dealradar/alert-engine/pkg/models"
)

// Sentinel errors for the resolution and comparison paths. Both are policy
// "evaluate false", never thrown past the evaluator.
var (
	ErrDataUnavailable = errors.New("field data unavailable in snapshot")
	ErrTypeMismatch    = errors.New("operator incompatible with value type")
	ErrUnknownField    = errors.New("unknown field")
)

// ValueKind discriminates the two value shapes a field can resolve to.
type ValueKind int

const (
	NumberValue ValueKind = iota
	TextValue
)

// Value is a resolved field value: a number or a categorical string.
type Value struct {
	Kind ValueKind
	Num  float64
	Text string
}

func numberValue(n float64) Value { return Value{Kind: NumberValue, Num: n} }
func textValue(s string) Value    { return Value{Kind: TextValue, Text: s} }

// Raw returns the underlying Go value, for alert value snapshots.
func (v Value) Raw() interface{} {
	if v.Kind == NumberValue {
		return v.Num
	}
	return v.Text
}

func (v Value) String() string {
	if v.Kind == NumberValue {
		return fmt.Sprintf("%.2f", v.Num)
	}
	return v.Text
}

type resolverFunc func(item *models.ItemSnapshot) (Value, error)

// fieldResolvers is the fixed dispatch table mapping each FieldID to its
// formula. Adding or removing a field is a single edit here plus the
// constant in pkg/models.
var fieldResolvers = map[models.FieldID]resolverFunc{
	models.FieldPrice:                resolvePrice,
	models.FieldPriceDropPercent:     resolvePriceDropPercent,
	models.FieldRecommendation:       resolveRecommendation,
	models.FieldRiskLevel:            resolveRiskLevel,
	models.FieldVolumeChangePercent:  resolveVolumeChangePercent,
	models.FieldPlatform:             resolvePlatform,
	models.FieldPriceVsAverage:       resolvePriceVsAverage,
	models.FieldArbitrageOpportunity: resolveArbitrageOpportunity,
}

// KnownField reports whether the field is in the resolver table.
func KnownField(field models.FieldID) bool {
	_, ok := fieldResolvers[field]
	return ok
}

// Resolve computes the named field for one item from the sweep snapshot.
// Missing data yields ErrDataUnavailable, never a panic or a zero value.
func Resolve(field models.FieldID, itemID string, snapshot *models.MarketSnapshot) (Value, error) {
	resolver, ok := fieldResolvers[field]
	if !ok {
		return Value{}, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	item := snapshot.Item(itemID)
	if item == nil {
		return Value{}, fmt.Errorf("%w: no snapshot for item %s", ErrDataUnavailable, itemID)
	}
	return resolver(item)
}

// bestListing returns the listing with the lowest fee-adjusted buy cost.
func bestListing(item *models.ItemSnapshot) (models.PlatformListing, bool) {
	if len(item.Listings) == 0 {
		return models.PlatformListing{}, false
	}
	best := item.Listings[0]
	for _, l := range item.Listings[1:] {
		if l.BuyCost() < best.BuyCost() {
			best = l
		}
	}
	return best, true
}

func resolvePrice(item *models.ItemSnapshot) (Value, error) {
	best, ok := bestListing(item)
	if !ok {
		return Value{}, fmt.Errorf("%w: item %s has no listings", ErrDataUnavailable, item.ItemID)
	}
	return numberValue(best.BuyCost()), nil
}

func resolvePriceDropPercent(item *models.ItemSnapshot) (Value, error) {
	best, ok := bestListing(item)
	if !ok || item.Price7dAgo == nil || *item.Price7dAgo == 0 {
		return Value{}, fmt.Errorf("%w: item %s lacks a 7d price baseline", ErrDataUnavailable, item.ItemID)
	}
	baseline := *item.Price7dAgo
	drop := (best.BuyCost() - baseline) / baseline * 100
	if drop < 0 {
		drop = -drop
	}
	return numberValue(drop), nil
}

func resolveRecommendation(item *models.ItemSnapshot) (Value, error) {
	if item.Recommendation == "" {
		return Value{}, fmt.Errorf("%w: item %s has no recommendation", ErrDataUnavailable, item.ItemID)
	}
	return textValue(item.Recommendation), nil
}

func resolveRiskLevel(item *models.ItemSnapshot) (Value, error) {
	if item.RiskLevel == "" {
		return Value{}, fmt.Errorf("%w: item %s has no risk level", ErrDataUnavailable, item.ItemID)
	}
	return textValue(item.RiskLevel), nil
}

func resolveVolumeChangePercent(item *models.ItemSnapshot) (Value, error) {
	if item.Volume30dAgo == nil || *item.Volume30dAgo == 0 {
		return Value{}, fmt.Errorf("%w: item %s lacks a 30d volume baseline", ErrDataUnavailable, item.ItemID)
	}
	baseline := *item.Volume30dAgo
	return numberValue((item.Volume - baseline) / baseline * 100), nil
}

func resolvePlatform(item *models.ItemSnapshot) (Value, error) {
	best, ok := bestListing(item)
	if !ok {
		return Value{}, fmt.Errorf("%w: item %s has no listings", ErrDataUnavailable, item.ItemID)
	}
	return textValue(best.Platform), nil
}

func resolvePriceVsAverage(item *models.ItemSnapshot) (Value, error) {
	best, ok := bestListing(item)
	if !ok || item.MovingAvg30d == nil || *item.MovingAvg30d == 0 {
		return Value{}, fmt.Errorf("%w: item %s lacks a 30d average", ErrDataUnavailable, item.ItemID)
	}
	return numberValue(best.BuyCost() / *item.MovingAvg30d * 100), nil
}

// resolveArbitrageOpportunity computes the best profit from buying on one
// platform and selling on another, after both legs' fees.
func resolveArbitrageOpportunity(item *models.ItemSnapshot) (Value, error) {
	if len(item.Listings) < 2 {
		return Value{}, fmt.Errorf("%w: item %s is listed on fewer than two platforms", ErrDataUnavailable, item.ItemID)
	}
	best := 0.0
	found := false
	for i, buy := range item.Listings {
		for j, sell := range item.Listings {
			if i == j {
				continue
			}
			profit := sell.SellProceeds() - buy.BuyCost()
			if !found || profit > best {
				best = profit
				found = true
			}
		}
	}
	return numberValue(best), nil
}
