package timeplus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dealradar/alert-engine/pkg/models"
	"github.com/dealradar/alert-engine/pkg/stores"
)

// MarketStore reads the quote, analytics and catalog streams maintained by
// the external ingest pipeline. It implements both the snapshot provider and
// the catalog index query interface.
type MarketStore struct {
	client Client
}

var (
	_ stores.MarketDataProvider = (*MarketStore)(nil)
	_ stores.Catalog            = (*MarketStore)(nil)
)

func NewMarketStore(client Client) *MarketStore {
	return &MarketStore{client: client}
}

// Snapshot builds the shared per-sweep market view for the given items:
// latest listing per platform, the 7d price baseline, 30d averages and the
// externally computed categoricals.
func (s *MarketStore) Snapshot(ctx context.Context, itemIDs []string) (*models.MarketSnapshot, error) {
	snapshot := &models.MarketSnapshot{
		TakenAt: time.Now().UTC(),
		Items:   make(map[string]*models.ItemSnapshot, len(itemIDs)),
	}
	if len(itemIDs) == 0 {
		return snapshot, nil
	}
	idList := quoteList(itemIDs)

	// Latest quote per (item, platform).
	latest := fmt.Sprintf(`
		SELECT item_id, item_name, category, platform, price, fee_percent, volume
		FROM (
			SELECT *, row_number() OVER (PARTITION BY item_id, platform ORDER BY _tp_time DESC) AS rn
			FROM table(%s) WHERE item_id IN (%s)
		) WHERE rn = 1`, QuotesStream, idList)
	rows, err := s.client.ExecuteQuery(ctx, latest)
	if err != nil {
		return nil, fmt.Errorf("failed to load current quotes: %w", err)
	}
	for _, row := range rows {
		itemID := rowString(row, "item_id")
		item := snapshot.Items[itemID]
		if item == nil {
			item = &models.ItemSnapshot{
				ItemID:   itemID,
				Name:     rowString(row, "item_name"),
				Category: rowString(row, "category"),
			}
			snapshot.Items[itemID] = item
		}
		item.Listings = append(item.Listings, models.PlatformListing{
			Platform:   rowString(row, "platform"),
			Price:      rowFloat(row, "price"),
			FeePercent: rowFloat(row, "fee_percent"),
		})
		item.Volume += rowFloat(row, "volume")
	}

	if err := s.loadBaselines(ctx, idList, snapshot); err != nil {
		return nil, err
	}
	if err := s.loadAnalytics(ctx, idList, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// loadBaselines fills the historical fields. Items missing history keep nil
// pointers and the derived fields resolve as unavailable.
func (s *MarketStore) loadBaselines(ctx context.Context, idList string, snapshot *models.MarketSnapshot) error {
	// Baselines use the newest quote at or before the lookback boundary,
	// not the minimum over all older quotes.
	baselines := fmt.Sprintf(`
		SELECT item_id,
		       arg_max_if(price, _tp_time, _tp_time <= now() - 7d) AS price_7d,
		       count_if(_tp_time <= now() - 7d) AS n_7d,
		       avg_if(price, _tp_time >= now() - 30d) AS avg_30d,
		       count_if(_tp_time >= now() - 30d) AS n_30d,
		       arg_max_if(volume, _tp_time, _tp_time <= now() - 30d) AS volume_30d,
		       count_if(_tp_time <= now() - 30d) AS n_vol
		FROM table(%s) WHERE item_id IN (%s)
		GROUP BY item_id`, QuotesStream, idList)
	rows, err := s.client.ExecuteQuery(ctx, baselines)
	if err != nil {
		return fmt.Errorf("failed to load price baselines: %w", err)
	}
	for _, row := range rows {
		item := snapshot.Items[rowString(row, "item_id")]
		if item == nil {
			continue
		}
		if rowInt(row, "n_7d") > 0 {
			price7d := rowFloat(row, "price_7d")
			item.Price7dAgo = &price7d
		}
		if rowInt(row, "n_30d") > 0 {
			avg30d := rowFloat(row, "avg_30d")
			item.MovingAvg30d = &avg30d
		}
		if rowInt(row, "n_vol") > 0 {
			volume30d := rowFloat(row, "volume_30d")
			item.Volume30dAgo = &volume30d
		}
	}
	return nil
}

func (s *MarketStore) loadAnalytics(ctx context.Context, idList string, snapshot *models.MarketSnapshot) error {
	analytics := fmt.Sprintf(`
		SELECT item_id, recommendation, risk_level
		FROM (
			SELECT *, row_number() OVER (PARTITION BY item_id ORDER BY _tp_time DESC) AS rn
			FROM table(%s) WHERE item_id IN (%s)
		) WHERE rn = 1`, AnalyticsStream, idList)
	rows, err := s.client.ExecuteQuery(ctx, analytics)
	if err != nil {
		return fmt.Errorf("failed to load analytics: %w", err)
	}
	for _, row := range rows {
		if item := snapshot.Items[rowString(row, "item_id")]; item != nil {
			item.Recommendation = rowString(row, "recommendation")
			item.RiskLevel = rowString(row, "risk_level")
		}
	}
	return nil
}

func (s *MarketStore) ItemsByIDs(ctx context.Context, itemIDs []string) ([]models.CatalogItem, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf("SELECT item_id, name, category, price FROM table(%s) WHERE item_id IN (%s)",
		ItemsStream, quoteList(itemIDs))
	return s.queryItems(ctx, query)
}

func (s *MarketStore) ItemsByCategories(ctx context.Context, categories []string, maxPrice float64) ([]models.CatalogItem, error) {
	conditions := make([]string, 0, 2)
	if len(categories) > 0 {
		conditions = append(conditions, fmt.Sprintf("category IN (%s)", quoteList(categories)))
	}
	if maxPrice > 0 {
		conditions = append(conditions, fmt.Sprintf("price <= %f", maxPrice))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	query := fmt.Sprintf("SELECT item_id, name, category, price FROM table(%s) %s", ItemsStream, where)
	return s.queryItems(ctx, query)
}

func (s *MarketStore) AllItems(ctx context.Context, limit int) ([]models.CatalogItem, error) {
	query := fmt.Sprintf("SELECT item_id, name, category, price FROM table(%s) LIMIT %d", ItemsStream, limit)
	return s.queryItems(ctx, query)
}

func (s *MarketStore) Size(ctx context.Context) (int, error) {
	rows, err := s.client.ExecuteQuery(ctx, fmt.Sprintf("SELECT count() AS n FROM table(%s)", ItemsStream))
	if err != nil {
		return 0, fmt.Errorf("failed to count catalog: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rowInt(rows[0], "n"), nil
}

func (s *MarketStore) queryItems(ctx context.Context, query string) ([]models.CatalogItem, error) {
	rows, err := s.client.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	items := make([]models.CatalogItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, models.CatalogItem{
			ItemID:   rowString(row, "item_id"),
			Name:     rowString(row, "name"),
			Category: rowString(row, "category"),
			Price:    rowFloat(row, "price"),
		})
	}
	return items, nil
}

func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("'%s'", escape(v))
	}
	return strings.Join(quoted, ", ")
}
