package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dealradar/alert-engine/pkg/models"
	"github.com/dealradar/alert-engine/pkg/stores"
)

// ErrCatalogTooLarge marks a rule with no filters against a catalog above the
// configured scan limit. This is a configuration error surfaced at authoring
// time; at sweep time the rule is skipped and logged, never scanned.
var ErrCatalogTooLarge = errors.New("unfiltered rule against catalog above scan limit")

// Selector narrows the item universe for a rule before evaluation. It only
// issues filtered queries; the catalog index is maintained externally.
type Selector struct {
	catalog           stores.Catalog
	maxUnfilteredSize int
}

// NewSelector creates a selector. maxUnfilteredSize bounds the catalog size
// an unfiltered rule is still allowed to sweep.
func NewSelector(catalog stores.Catalog, maxUnfilteredSize int) *Selector {
	if maxUnfilteredSize <= 0 {
		maxUnfilteredSize = 1000
	}
	return &Selector{catalog: catalog, maxUnfilteredSize: maxUnfilteredSize}
}

// Select returns the candidate item IDs for a rule. An explicit ID allowlist
// wins outright; otherwise the category set and price ceiling are pushed
// down to the catalog index.
func (s *Selector) Select(ctx context.Context, rule *models.AlertRule) ([]string, error) {
	if len(rule.Filters.ItemIDs) > 0 {
		items, err := s.catalog.ItemsByIDs(ctx, rule.Filters.ItemIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to look up allowlisted items for rule %s: %w", rule.ID, err)
		}
		return itemIDs(items), nil
	}

	if len(rule.Filters.Categories) > 0 || rule.Filters.MaxPrice > 0 {
		items, err := s.catalog.ItemsByCategories(ctx, rule.Filters.Categories, rule.Filters.MaxPrice)
		if err != nil {
			return nil, fmt.Errorf("failed to query catalog for rule %s: %w", rule.ID, err)
		}
		return itemIDs(items), nil
	}

	size, err := s.catalog.Size(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog size: %w", err)
	}
	if size > s.maxUnfilteredSize {
		return nil, fmt.Errorf("%w: rule %s, catalog size %d, limit %d",
			ErrCatalogTooLarge, rule.ID, size, s.maxUnfilteredSize)
	}
	items, err := s.catalog.AllItems(ctx, s.maxUnfilteredSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog for rule %s: %w", rule.ID, err)
	}
	return itemIDs(items), nil
}

func itemIDs(items []models.CatalogItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ItemID)
	}
	return ids
}
