package timeplus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dealradar/alert-engine/pkg/models"
	"github.com/dealradar/alert-engine/pkg/stores"
)

// AlertStore persists triggered alerts in the dr_alerts mutable stream and
// answers the throttle controller's cooldown and daily-cap queries.
type AlertStore struct {
	client Client
}

var _ stores.AlertStore = (*AlertStore)(nil)

func NewAlertStore(client Client) *AlertStore {
	return &AlertStore{client: client}
}

func (s *AlertStore) InsertAlert(ctx context.Context, alert *models.TriggeredAlert) error {
	valuesJSON, _ := json.Marshal(alert.Values)
	outcomesJSON, _ := json.Marshal(alert.Outcomes)

	columns := []string{
		"id", "rule_id", "rule_name", "owner_id", "item_id", "item_name",
		"reason", "field_values", "priority", "outcomes", "created_at",
		"clicked", "purchased", "dismissed", "usefulness",
	}
	values := []interface{}{
		alert.ID, alert.RuleID, alert.RuleName, alert.OwnerID, alert.ItemID, alert.ItemName,
		alert.Reason, string(valuesJSON), string(alert.Priority), string(outcomesJSON), alert.CreatedAt,
		alert.Engagement.Clicked, alert.Engagement.Purchased, alert.Engagement.Dismissed, alert.Engagement.Usefulness,
	}
	if err := s.client.InsertIntoStream(ctx, AlertsStream, columns, values); err != nil {
		return fmt.Errorf("failed to insert alert %s: %w", alert.ID, err)
	}
	return nil
}

func (s *AlertStore) RecentTriggers(ctx context.Context, ruleID string, since time.Time) (map[string]time.Time, error) {
	query := fmt.Sprintf(
		"SELECT item_id, max(created_at) AS last_triggered FROM table(%s) WHERE rule_id = '%s' AND created_at > '%s' GROUP BY item_id",
		AlertsStream, escape(ruleID), since.UTC().Format("2006-01-02 15:04:05.000"))
	rows, err := s.client.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent triggers for rule %s: %w", ruleID, err)
	}
	recent := make(map[string]time.Time, len(rows))
	for _, row := range rows {
		if ts, ok := rowTime(row, "last_triggered"); ok {
			recent[rowString(row, "item_id")] = ts
		}
	}
	return recent, nil
}

func (s *AlertStore) CountTriggersSince(ctx context.Context, ruleID string, since time.Time) (int, error) {
	query := fmt.Sprintf(
		"SELECT count() AS n FROM table(%s) WHERE rule_id = '%s' AND created_at >= '%s'",
		AlertsStream, escape(ruleID), since.UTC().Format("2006-01-02 15:04:05.000"))
	rows, err := s.client.ExecuteQuery(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count triggers for rule %s: %w", ruleID, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rowInt(rows[0], "n"), nil
}

func (s *AlertStore) ListAlerts(ctx context.Context, ruleID string, limit int) ([]models.TriggeredAlert, error) {
	if limit <= 0 {
		limit = 100
	}
	where := ""
	if ruleID != "" {
		where = fmt.Sprintf("WHERE rule_id = '%s' ", escape(ruleID))
	}
	query := fmt.Sprintf("SELECT * FROM table(%s) %sORDER BY created_at DESC LIMIT %d",
		AlertsStream, where, limit)
	rows, err := s.client.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	alerts := make([]models.TriggeredAlert, 0, len(rows))
	for _, row := range rows {
		alerts = append(alerts, alertFromRow(row))
	}
	return alerts, nil
}

// RecordEngagement appends an engagement flag to a stored alert. The alerts
// stream is mutable keyed by id, so re-inserting the row with the flag set
// is an upsert.
func (s *AlertStore) RecordEngagement(ctx context.Context, alertID string, kind models.FeedbackKind, usefulness int) error {
	query := fmt.Sprintf("SELECT * FROM table(%s) WHERE id = '%s' LIMIT 1", AlertsStream, escape(alertID))
	rows, err := s.client.ExecuteQuery(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to look up alert %s: %w", alertID, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("alert %s not found", alertID)
	}
	alert := alertFromRow(rows[0])

	switch kind {
	case models.FeedbackClicked:
		alert.Engagement.Clicked = true
	case models.FeedbackPurchased:
		alert.Engagement.Purchased = true
	case models.FeedbackDismissed:
		alert.Engagement.Dismissed = true
	case models.FeedbackUsefulness:
		alert.Engagement.Usefulness = usefulness
	default:
		return fmt.Errorf("unknown feedback kind %q", kind)
	}
	return s.InsertAlert(ctx, &alert)
}

func alertFromRow(row map[string]interface{}) models.TriggeredAlert {
	alert := models.TriggeredAlert{
		ID:       rowString(row, "id"),
		RuleID:   rowString(row, "rule_id"),
		RuleName: rowString(row, "rule_name"),
		OwnerID:  rowString(row, "owner_id"),
		ItemID:   rowString(row, "item_id"),
		ItemName: rowString(row, "item_name"),
		Reason:   rowString(row, "reason"),
		Priority: models.Priority(rowString(row, "priority")),
		Engagement: models.Engagement{
			Clicked:    rowBool(row, "clicked"),
			Purchased:  rowBool(row, "purchased"),
			Dismissed:  rowBool(row, "dismissed"),
			Usefulness: rowInt(row, "usefulness"),
		},
	}
	if raw := rowString(row, "field_values"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &alert.Values)
	}
	if raw := rowString(row, "outcomes"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &alert.Outcomes)
	}
	if ts, ok := rowTime(row, "created_at"); ok {
		alert.CreatedAt = ts
	}
	return alert
}

func escape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
