package engine

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dealradar/alert-engine/pkg/channels"
	"github.com/dealradar/alert-engine/pkg/models"
	"github.com/dealradar/alert-engine/pkg/stores"
)

// MockRuleStore is a mock implementation of the RuleStore interface
type MockRuleStore struct {
	mock.Mock
}

var _ stores.RuleStore = (*MockRuleStore)(nil)

func (m *MockRuleStore) ListActiveRules(ctx context.Context) ([]models.AlertRule, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.AlertRule), args.Error(1)
}

func (m *MockRuleStore) GetRule(ctx context.Context, ruleID string) (*models.AlertRule, error) {
	args := m.Called(ctx, ruleID)
	if rule, ok := args.Get(0).(*models.AlertRule); ok {
		return rule, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRuleStore) SaveRule(ctx context.Context, rule *models.AlertRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockRuleStore) IncrementTrigger(ctx context.Context, ruleID, itemID string, triggeredAt time.Time) error {
	args := m.Called(ctx, ruleID, itemID, triggeredAt)
	return args.Error(0)
}

func (m *MockRuleStore) Deactivate(ctx context.Context, ruleID string) error {
	args := m.Called(ctx, ruleID)
	return args.Error(0)
}

// MockAlertStore is a mock implementation of the AlertStore interface
type MockAlertStore struct {
	mock.Mock
}

var _ stores.AlertStore = (*MockAlertStore)(nil)

func (m *MockAlertStore) InsertAlert(ctx context.Context, alert *models.TriggeredAlert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

func (m *MockAlertStore) RecentTriggers(ctx context.Context, ruleID string, since time.Time) (map[string]time.Time, error) {
	args := m.Called(ctx, ruleID, since)
	if recent, ok := args.Get(0).(map[string]time.Time); ok {
		return recent, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAlertStore) CountTriggersSince(ctx context.Context, ruleID string, since time.Time) (int, error) {
	args := m.Called(ctx, ruleID, since)
	return args.Int(0), args.Error(1)
}

func (m *MockAlertStore) ListAlerts(ctx context.Context, ruleID string, limit int) ([]models.TriggeredAlert, error) {
	args := m.Called(ctx, ruleID, limit)
	if alerts, ok := args.Get(0).([]models.TriggeredAlert); ok {
		return alerts, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAlertStore) RecordEngagement(ctx context.Context, alertID string, kind models.FeedbackKind, usefulness int) error {
	args := m.Called(ctx, alertID, kind, usefulness)
	return args.Error(0)
}

// MockMarketData is a mock implementation of the MarketDataProvider interface
type MockMarketData struct {
	mock.Mock
}

var _ stores.MarketDataProvider = (*MockMarketData)(nil)

func (m *MockMarketData) Snapshot(ctx context.Context, itemIDs []string) (*models.MarketSnapshot, error) {
	args := m.Called(ctx, itemIDs)
	if snapshot, ok := args.Get(0).(*models.MarketSnapshot); ok {
		return snapshot, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockCatalog is a mock implementation of the Catalog interface
type MockCatalog struct {
	mock.Mock
}

var _ stores.Catalog = (*MockCatalog)(nil)

func (m *MockCatalog) ItemsByIDs(ctx context.Context, itemIDs []string) ([]models.CatalogItem, error) {
	args := m.Called(ctx, itemIDs)
	if items, ok := args.Get(0).([]models.CatalogItem); ok {
		return items, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCatalog) ItemsByCategories(ctx context.Context, categories []string, maxPrice float64) ([]models.CatalogItem, error) {
	args := m.Called(ctx, categories, maxPrice)
	if items, ok := args.Get(0).([]models.CatalogItem); ok {
		return items, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCatalog) AllItems(ctx context.Context, limit int) ([]models.CatalogItem, error) {
	args := m.Called(ctx, limit)
	if items, ok := args.Get(0).([]models.CatalogItem); ok {
		return items, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCatalog) Size(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// MockSender is a mock implementation of the channels.Sender interface
type MockSender struct {
	mock.Mock
	channel models.Channel
}

var _ channels.Sender = (*MockSender)(nil)

func NewMockSender(channel models.Channel) *MockSender {
	return &MockSender{channel: channel}
}

func (m *MockSender) Name() models.Channel {
	return m.channel
}

func (m *MockSender) Send(ctx context.Context, recipient string, payload channels.Payload) error {
	args := m.Called(ctx, recipient, payload)
	return args.Error(0)
}
