package timeplus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dealradar/alert-engine/pkg/models"
	"github.com/dealradar/alert-engine/pkg/stores"
)

// RuleStore persists rules in the dr_rules mutable stream. Counter updates
// go through a read-modify-write on the version column; a concurrent writer
// (e.g. the authoring service) bumping the version first wins and the
// increment is retried against the fresh row.
type RuleStore struct {
	client Client
}

var _ stores.RuleStore = (*RuleStore)(nil)

func NewRuleStore(client Client) *RuleStore {
	return &RuleStore{client: client}
}

func (s *RuleStore) ListActiveRules(ctx context.Context) ([]models.AlertRule, error) {
	query := fmt.Sprintf("SELECT * FROM table(%s) WHERE is_active = true", RulesStream)
	rows, err := s.client.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", err)
	}
	rules := make([]models.AlertRule, 0, len(rows))
	for _, row := range rows {
		rule, err := ruleFromRow(row)
		if err != nil {
			// A rule that fails to decode must not take down the sweep.
			logrus.Errorf("Skipping undecodable rule %s: %v", rowString(row, "id"), err)
			continue
		}
		rules = append(rules, *rule)
	}
	return rules, nil
}

func (s *RuleStore) GetRule(ctx context.Context, ruleID string) (*models.AlertRule, error) {
	query := fmt.Sprintf("SELECT * FROM table(%s) WHERE id = '%s' LIMIT 1", RulesStream, escape(ruleID))
	rows, err := s.client.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get rule %s: %w", ruleID, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("rule %s not found", ruleID)
	}
	return ruleFromRow(rows[0])
}

func (s *RuleStore) SaveRule(ctx context.Context, rule *models.AlertRule) error {
	columns, values, err := ruleToRow(rule)
	if err != nil {
		return err
	}
	if err := s.client.InsertIntoStream(ctx, RulesStream, columns, values); err != nil {
		return fmt.Errorf("failed to save rule %s: %w", rule.ID, err)
	}
	return nil
}

// IncrementTrigger bumps the rule's counters. Retries on version conflict.
func (s *RuleStore) IncrementTrigger(ctx context.Context, ruleID, itemID string, triggeredAt time.Time) error {
	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		rule, err := s.GetRule(ctx, ruleID)
		if err != nil {
			return err
		}
		expectedVersion := rule.Version
		rule.TriggerCount++
		rule.LastTriggeredAt = &triggeredAt
		rule.Version++
		rule.UpdatedAt = triggeredAt

		if err := s.writeIfVersion(ctx, rule, expectedVersion); err != nil {
			lastErr = err
			logrus.Debugf("Version conflict incrementing rule %s (attempt %d): %v", ruleID, attempt+1, err)
			continue
		}
		return nil
	}
	return fmt.Errorf("failed to increment trigger for rule %s after %d attempts: %w", ruleID, maxAttempts, lastErr)
}

func (s *RuleStore) Deactivate(ctx context.Context, ruleID string) error {
	rule, err := s.GetRule(ctx, ruleID)
	if err != nil {
		return err
	}
	if !rule.IsActive {
		return nil
	}
	expectedVersion := rule.Version
	rule.IsActive = false
	rule.Version++
	rule.UpdatedAt = time.Now().UTC()
	if err := s.writeIfVersion(ctx, rule, expectedVersion); err != nil {
		return fmt.Errorf("failed to deactivate rule %s: %w", ruleID, err)
	}
	return nil
}

// writeIfVersion re-reads the stored version before writing; a mismatch
// means another writer got there first.
func (s *RuleStore) writeIfVersion(ctx context.Context, rule *models.AlertRule, expectedVersion int64) error {
	query := fmt.Sprintf("SELECT version FROM table(%s) WHERE id = '%s' LIMIT 1", RulesStream, escape(rule.ID))
	rows, err := s.client.ExecuteQuery(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to read version for rule %s: %w", rule.ID, err)
	}
	if len(rows) > 0 && int64(rowInt(rows[0], "version")) != expectedVersion {
		return fmt.Errorf("version conflict on rule %s: expected %d, found %d",
			rule.ID, expectedVersion, rowInt(rows[0], "version"))
	}
	return s.SaveRule(ctx, rule)
}

func ruleToRow(rule *models.AlertRule) ([]string, []interface{}, error) {
	conditionJSON, err := models.MarshalCondition(rule.Condition)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode condition for rule %s: %w", rule.ID, err)
	}
	filtersJSON, _ := json.Marshal(rule.Filters)
	channelsJSON, _ := json.Marshal(rule.Channels)
	contactsJSON, _ := json.Marshal(rule.Contacts)
	var quietHours interface{}
	if rule.QuietHours != nil {
		raw, _ := json.Marshal(rule.QuietHours)
		quietHours = string(raw)
	}

	columns := []string{
		"id", "owner_id", "name", "condition", "filters", "priority",
		"channels", "contacts", "is_active", "is_one_time",
		"max_alerts_per_day", "cooldown_hours", "quiet_hours",
		"last_triggered_at", "trigger_count", "version", "created_at", "updated_at",
	}
	values := []interface{}{
		rule.ID, rule.OwnerID, rule.Name, string(conditionJSON), string(filtersJSON), string(rule.Priority),
		string(channelsJSON), string(contactsJSON), rule.IsActive, rule.IsOneTime,
		rule.MaxAlertsPerDay, rule.CooldownHours, quietHours,
		rule.LastTriggeredAt, rule.TriggerCount, rule.Version, rule.CreatedAt, rule.UpdatedAt,
	}
	return columns, values, nil
}

func ruleFromRow(row map[string]interface{}) (*models.AlertRule, error) {
	condition, err := models.UnmarshalCondition([]byte(rowString(row, "condition")))
	if err != nil {
		return nil, fmt.Errorf("failed to decode condition: %w", err)
	}

	rule := &models.AlertRule{
		ID:              rowString(row, "id"),
		OwnerID:         rowString(row, "owner_id"),
		Name:            rowString(row, "name"),
		Condition:       condition,
		Priority:        models.Priority(rowString(row, "priority")),
		IsActive:        rowBool(row, "is_active"),
		IsOneTime:       rowBool(row, "is_one_time"),
		MaxAlertsPerDay: rowInt(row, "max_alerts_per_day"),
		CooldownHours:   rowInt(row, "cooldown_hours"),
		TriggerCount:    rowInt(row, "trigger_count"),
		Version:         int64(rowInt(row, "version")),
	}
	if raw := rowString(row, "filters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &rule.Filters); err != nil {
			return nil, fmt.Errorf("failed to decode filters: %w", err)
		}
	}
	if raw := rowString(row, "channels"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &rule.Channels); err != nil {
			return nil, fmt.Errorf("failed to decode channels: %w", err)
		}
	}
	if raw := rowString(row, "contacts"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &rule.Contacts); err != nil {
			return nil, fmt.Errorf("failed to decode contacts: %w", err)
		}
	}
	if raw := rowString(row, "quiet_hours"); raw != "" {
		var window models.QuietHours
		if err := json.Unmarshal([]byte(raw), &window); err != nil {
			return nil, fmt.Errorf("failed to decode quiet hours: %w", err)
		}
		rule.QuietHours = &window
	}
	if ts, ok := rowTime(row, "last_triggered_at"); ok {
		rule.LastTriggeredAt = &ts
	}
	if ts, ok := rowTime(row, "created_at"); ok {
		rule.CreatedAt = ts
	}
	if ts, ok := rowTime(row, "updated_at"); ok {
		rule.UpdatedAt = ts
	}
	return rule, nil
}
