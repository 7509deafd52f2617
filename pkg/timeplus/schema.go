package timeplus

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Stream names
const (
	// RulesStream holds rule definitions, one mutable row per rule.
	RulesStream = "dr_rules"

	// AlertsStream holds triggered alerts. Mutable so the feedback consumer
	// can append engagement flags to an existing row.
	AlertsStream = "dr_alerts"

	// QuotesStream is the append stream of per-platform price quotes written
	// by the external ingest pipeline. The engine only reads it.
	QuotesStream = "dr_quotes"

	// AnalyticsStream carries externally computed recommendation and risk
	// categoricals per item. Read-only for the engine.
	AnalyticsStream = "dr_analytics"

	// ItemsStream is the catalog index maintained by the import pipeline.
	ItemsStream = "dr_items"
)

// GetRulesSchema returns the schema for the rules stream. Structured fields
// (condition, filters, channels, contacts, quiet hours) are stored as JSON.
func GetRulesSchema() []Column {
	return []Column{
		{Name: "id", Type: "string"},
		{Name: "owner_id", Type: "string"},
		{Name: "name", Type: "string"},
		{Name: "condition", Type: "string"},
		{Name: "filters", Type: "string"},
		{Name: "priority", Type: "string"},
		{Name: "channels", Type: "string"},
		{Name: "contacts", Type: "string"},
		{Name: "is_active", Type: "bool"},
		{Name: "is_one_time", Type: "bool"},
		{Name: "max_alerts_per_day", Type: "int32"},
		{Name: "cooldown_hours", Type: "int32"},
		{Name: "quiet_hours", Type: "string", Nullable: true},
		{Name: "last_triggered_at", Type: "datetime64", Nullable: true},
		{Name: "trigger_count", Type: "int32"},
		{Name: "version", Type: "int64"},
		{Name: "created_at", Type: "datetime64"},
		{Name: "updated_at", Type: "datetime64"},
	}
}

// GetAlertsSchema returns the schema for the triggered alerts stream.
func GetAlertsSchema() []Column {
	return []Column{
		{Name: "id", Type: "string"},
		{Name: "rule_id", Type: "string"},
		{Name: "rule_name", Type: "string"},
		{Name: "owner_id", Type: "string"},
		{Name: "item_id", Type: "string"},
		{Name: "item_name", Type: "string"},
		{Name: "reason", Type: "string"},
		{Name: "field_values", Type: "string"}, // JSON snapshot of satisfying values
		{Name: "priority", Type: "string"},
		{Name: "outcomes", Type: "string"}, // JSON per-channel delivery outcomes
		{Name: "created_at", Type: "datetime64"},
		{Name: "clicked", Type: "bool"},
		{Name: "purchased", Type: "bool"},
		{Name: "dismissed", Type: "bool"},
		{Name: "usefulness", Type: "int32"},
	}
}

func columnsDDL(schema []Column) string {
	parts := make([]string, len(schema))
	for i, col := range schema {
		nullable := ""
		if col.Nullable {
			nullable = " NULL"
		}
		parts[i] = fmt.Sprintf("`%s` %s%s", col.Name, col.Type, nullable)
	}
	return strings.Join(parts, ", ")
}

// SetupStreams ensures the engine's own streams exist. The quote, analytics
// and catalog streams belong to the ingest pipeline and are not created here.
func SetupStreams(ctx context.Context, client Client) error {
	mutable := []struct {
		name       string
		schema     []Column
		primaryKey string
	}{
		{RulesStream, GetRulesSchema(), "id"},
		{AlertsStream, GetAlertsSchema(), "id"},
	}
	for _, stream := range mutable {
		exists, err := client.StreamExists(ctx, stream.name)
		if err != nil {
			return fmt.Errorf("failed to check stream %s: %w", stream.name, err)
		}
		if exists {
			logrus.Debugf("Stream %s already exists", stream.name)
			continue
		}
		ddl := fmt.Sprintf("CREATE MUTABLE STREAM `%s` (%s) PRIMARY KEY (%s)",
			stream.name, columnsDDL(stream.schema), stream.primaryKey)
		if err := client.ExecuteDDL(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create stream %s: %w", stream.name, err)
		}
		logrus.Infof("Created mutable stream %s", stream.name)
	}
	return nil
}
