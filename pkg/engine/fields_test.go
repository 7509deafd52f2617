package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealradar/alert-engine/pkg/models"
)

func floatPtr(f float64) *float64 { return &f }

func testSnapshot(items ...*models.ItemSnapshot) *models.MarketSnapshot {
	byID := make(map[string]*models.ItemSnapshot, len(items))
	for _, item := range items {
		byID[item.ItemID] = item
	}
	return &models.MarketSnapshot{TakenAt: time.Now(), Items: byID}
}

func TestResolvePriceUsesLowestFeeAdjustedListing(t *testing.T) {
	snapshot := testSnapshot(&models.ItemSnapshot{
		ItemID: "knife-1",
		Listings: []models.PlatformListing{
			{Platform: "marketA", Price: 10.00, FeePercent: 10}, // buy cost 11.00
			{Platform: "marketB", Price: 10.50, FeePercent: 0},  // buy cost 10.50
		},
	})

	value, err := Resolve(models.FieldPrice, "knife-1", snapshot)
	require.NoError(t, err)
	assert.InDelta(t, 10.50, value.Num, 0.001)

	platform, err := Resolve(models.FieldPlatform, "knife-1", snapshot)
	require.NoError(t, err)
	assert.Equal(t, "marketB", platform.Text)
}

func TestResolvePriceDropPercent(t *testing.T) {
	snapshot := testSnapshot(&models.ItemSnapshot{
		ItemID:     "knife-1",
		Listings:   []models.PlatformListing{{Platform: "marketA", Price: 7.50}},
		Price7dAgo: floatPtr(10.00),
	})

	value, err := Resolve(models.FieldPriceDropPercent, "knife-1", snapshot)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, value.Num, 0.001)
}

func TestResolvePriceVsAverage(t *testing.T) {
	snapshot := testSnapshot(&models.ItemSnapshot{
		ItemID:       "knife-1",
		Listings:     []models.PlatformListing{{Platform: "marketA", Price: 8.00}},
		MovingAvg30d: floatPtr(10.00),
	})

	value, err := Resolve(models.FieldPriceVsAverage, "knife-1", snapshot)
	require.NoError(t, err)
	assert.InDelta(t, 80.0, value.Num, 0.001)
}

func TestResolveVolumeChangePercent(t *testing.T) {
	snapshot := testSnapshot(&models.ItemSnapshot{
		ItemID:       "knife-1",
		Volume:       150,
		Volume30dAgo: floatPtr(100),
	})

	value, err := Resolve(models.FieldVolumeChangePercent, "knife-1", snapshot)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, value.Num, 0.001)
}

func TestResolveArbitrageAppliesBothLegsFees(t *testing.T) {
	// Buy at $10 with no fee, sell at $12 with a 2% fee:
	// proceeds 12 * 0.98 = 11.76, profit 1.76.
	snapshot := testSnapshot(&models.ItemSnapshot{
		ItemID: "knife-1",
		Listings: []models.PlatformListing{
			{Platform: "marketA", Price: 10.00, FeePercent: 0},
			{Platform: "marketB", Price: 12.00, FeePercent: 2},
		},
	})

	value, err := Resolve(models.FieldArbitrageOpportunity, "knife-1", snapshot)
	require.NoError(t, err)
	assert.InDelta(t, 1.76, value.Num, 0.001)
}

func TestResolveArbitragePicksBestPair(t *testing.T) {
	snapshot := testSnapshot(&models.ItemSnapshot{
		ItemID: "knife-1",
		Listings: []models.PlatformListing{
			{Platform: "marketA", Price: 10.00, FeePercent: 0},
			{Platform: "marketB", Price: 11.00, FeePercent: 5},
			{Platform: "marketC", Price: 12.00, FeePercent: 2},
		},
	})

	value, err := Resolve(models.FieldArbitrageOpportunity, "knife-1", snapshot)
	require.NoError(t, err)
	// Best: buy on marketA ($10.00), sell on marketC ($11.76).
	assert.InDelta(t, 1.76, value.Num, 0.001)
}

func TestResolveDataUnavailable(t *testing.T) {
	tests := []struct {
		name  string
		field models.FieldID
		item  *models.ItemSnapshot
	}{
		{
			name:  "no listings",
			field: models.FieldPrice,
			item:  &models.ItemSnapshot{ItemID: "x"},
		},
		{
			name:  "missing 7d baseline",
			field: models.FieldPriceDropPercent,
			item: &models.ItemSnapshot{
				ItemID:   "x",
				Listings: []models.PlatformListing{{Platform: "a", Price: 5}},
			},
		},
		{
			name:  "zero 7d baseline",
			field: models.FieldPriceDropPercent,
			item: &models.ItemSnapshot{
				ItemID:     "x",
				Listings:   []models.PlatformListing{{Platform: "a", Price: 5}},
				Price7dAgo: floatPtr(0),
			},
		},
		{
			name:  "missing 30d average",
			field: models.FieldPriceVsAverage,
			item: &models.ItemSnapshot{
				ItemID:   "x",
				Listings: []models.PlatformListing{{Platform: "a", Price: 5}},
			},
		},
		{
			name:  "missing volume baseline",
			field: models.FieldVolumeChangePercent,
			item:  &models.ItemSnapshot{ItemID: "x", Volume: 100},
		},
		{
			name:  "no recommendation",
			field: models.FieldRecommendation,
			item:  &models.ItemSnapshot{ItemID: "x"},
		},
		{
			name:  "no risk level",
			field: models.FieldRiskLevel,
			item:  &models.ItemSnapshot{ItemID: "x"},
		},
		{
			name:  "single platform has no arbitrage",
			field: models.FieldArbitrageOpportunity,
			item: &models.ItemSnapshot{
				ItemID:   "x",
				Listings: []models.PlatformListing{{Platform: "a", Price: 5}},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Resolve(tc.field, "x", testSnapshot(tc.item))
			assert.True(t, errors.Is(err, ErrDataUnavailable), "expected ErrDataUnavailable, got %v", err)
		})
	}
}

func TestResolveItemMissingFromSnapshot(t *testing.T) {
	_, err := Resolve(models.FieldPrice, "missing", testSnapshot())
	assert.True(t, errors.Is(err, ErrDataUnavailable))
}

func TestResolveUnknownField(t *testing.T) {
	snapshot := testSnapshot(&models.ItemSnapshot{ItemID: "x"})
	_, err := Resolve("sentiment", "x", snapshot)
	assert.True(t, errors.Is(err, ErrUnknownField))
}

func TestKnownField(t *testing.T) {
	assert.True(t, KnownField(models.FieldPrice))
	assert.True(t, KnownField(models.FieldArbitrageOpportunity))
	assert.False(t, KnownField("sentiment"))
}
