// Package stores defines the engine's boundaries to its external
// collaborators: rule persistence, alert persistence, market data and the
// catalog index. Implementations live in pkg/timeplus; tests use mocks.
package stores

import (
	"context"
	"time"

	"github.com/dealradar/alert-engine/pkg/models"
)

// RuleStore owns rule definitions and their mutable counters. Counter
// updates go through IncrementTrigger so the store can apply its own
// optimistic versioning.
type RuleStore interface {
	ListActiveRules(ctx context.Context) ([]models.AlertRule, error)
	GetRule(ctx context.Context, ruleID string) (*models.AlertRule, error)
	SaveRule(ctx context.Context, rule *models.AlertRule) error
	IncrementTrigger(ctx context.Context, ruleID, itemID string, triggeredAt time.Time) error
	Deactivate(ctx context.Context, ruleID string) error
}

// AlertStore persists triggered alerts and answers the throttle queries.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert *models.TriggeredAlert) error
	// RecentTriggers returns, per item, the most recent trigger time for the
	// rule since the given instant. Used for per-item cooldown exclusion.
	RecentTriggers(ctx context.Context, ruleID string, since time.Time) (map[string]time.Time, error)
	CountTriggersSince(ctx context.Context, ruleID string, since time.Time) (int, error)
	ListAlerts(ctx context.Context, ruleID string, limit int) ([]models.TriggeredAlert, error)
	RecordEngagement(ctx context.Context, alertID string, kind models.FeedbackKind, usefulness int) error
}

// MarketDataProvider builds the shared per-sweep snapshot.
type MarketDataProvider interface {
	Snapshot(ctx context.Context, itemIDs []string) (*models.MarketSnapshot, error)
}

// Catalog is the indexed item view used by candidate selection. The index
// itself is maintained by an external collaborator; this interface only
// issues filtered queries against it.
type Catalog interface {
	ItemsByIDs(ctx context.Context, itemIDs []string) ([]models.CatalogItem, error)
	ItemsByCategories(ctx context.Context, categories []string, maxPrice float64) ([]models.CatalogItem, error)
	AllItems(ctx context.Context, limit int) ([]models.CatalogItem, error)
	Size(ctx context.Context) (int, error)
}
