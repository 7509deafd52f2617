package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dealradar/alert-engine/pkg/channels"
	"github.com/dealradar/alert-engine/pkg/metrics"
	"github.com/dealradar/alert-engine/pkg/models"
	"github.com/dealradar/alert-engine/pkg/stores"
)

// Dispatcher turns a satisfied (rule, item) pair into a persisted
// TriggeredAlert and fans it out to the rule's delivery channels. Channels
// fail independently; the record is persisted exactly once regardless of
// per-channel outcomes.
type Dispatcher struct {
	alerts        stores.AlertStore
	rules         stores.RuleStore
	senders       map[models.Channel]channels.Sender
	retryAttempts int
}

func NewDispatcher(alerts stores.AlertStore, rules stores.RuleStore, senders []channels.Sender, retryAttempts int) *Dispatcher {
	byName := make(map[models.Channel]channels.Sender, len(senders))
	for _, s := range senders {
		byName[s.Name()] = s
	}
	if retryAttempts <= 0 {
		retryAttempts = 2
	}
	return &Dispatcher{alerts: alerts, rules: rules, senders: byName, retryAttempts: retryAttempts}
}

// Dispatch builds the alert record from the evaluation trace, attempts every
// channel, persists the record, then updates the rule's counters. If the
// context is cancelled before persistence, nothing is recorded for this item
// this sweep.
func (d *Dispatcher) Dispatch(ctx context.Context, rule *models.AlertRule, item *models.ItemSnapshot, trace *Trace, now time.Time) (*models.TriggeredAlert, error) {
	alert := &models.TriggeredAlert{
		ID:        uuid.New().String(),
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		OwnerID:   rule.OwnerID,
		ItemID:    item.ItemID,
		ItemName:  item.Name,
		Reason:    BuildReason(trace, item),
		Values:    traceValues(trace),
		Priority:  rule.Priority,
		CreatedAt: now,
	}

	payload := channels.Payload{
		AlertID:     alert.ID,
		RuleName:    rule.Name,
		ItemID:      item.ItemID,
		ItemName:    item.Name,
		Reason:      alert.Reason,
		Priority:    rule.Priority,
		TriggeredAt: now,
	}

	for _, channel := range rule.Channels {
		alert.Outcomes = append(alert.Outcomes, d.deliver(ctx, channel, rule, payload))
	}

	// The full per-item trigger path either completes or leaves no trace:
	// a cancelled sweep must not record half a trigger.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("sweep cancelled before alert for rule %s item %s was persisted: %w", rule.ID, item.ItemID, err)
	}
	if err := d.alerts.InsertAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to persist alert for rule %s item %s: %w", rule.ID, item.ItemID, err)
	}
	metrics.AlertsTriggeredTotal.WithLabelValues(string(rule.Priority)).Inc()

	if err := d.rules.IncrementTrigger(ctx, rule.ID, item.ItemID, now); err != nil {
		// The alert exists; counter drift is recoverable, losing the alert
		// would not be.
		logrus.Errorf("Failed to increment trigger counters for rule %s: %v", rule.ID, err)
	}
	if rule.IsOneTime {
		if err := d.rules.Deactivate(ctx, rule.ID); err != nil {
			logrus.Errorf("Failed to deactivate one-shot rule %s: %v", rule.ID, err)
		}
	}

	logrus.Infof("Alert %s triggered: rule %q, item %q, %s", alert.ID, rule.Name, item.Name, alert.Reason)
	return alert, nil
}

// deliver attempts one channel in isolation.
func (d *Dispatcher) deliver(ctx context.Context, channel models.Channel, rule *models.AlertRule, payload channels.Payload) models.DeliveryOutcome {
	sender, ok := d.senders[channel]
	if !ok {
		metrics.ChannelSendFailuresTotal.WithLabelValues(string(channel)).Inc()
		return models.DeliveryOutcome{
			Channel: channel,
			Status:  models.DeliveryFailed,
			Error:   "channel not configured",
		}
	}

	recipient := recipientFor(channel, rule)
	attempts, err := channels.SendWithRetry(ctx, sender, recipient, payload, d.retryAttempts)
	if err != nil {
		metrics.ChannelSendFailuresTotal.WithLabelValues(string(channel)).Inc()
		logrus.Warnf("Delivery failed for alert %s on %s: %v", payload.AlertID, channel, err)
		return models.DeliveryOutcome{
			Channel:  channel,
			Status:   models.DeliveryFailed,
			Attempts: attempts,
			Error:    err.Error(),
		}
	}
	return models.DeliveryOutcome{Channel: channel, Status: models.DeliverySent, Attempts: attempts}
}

func recipientFor(channel models.Channel, rule *models.AlertRule) string {
	switch channel {
	case models.ChannelEmail:
		return rule.Contacts.Email
	case models.ChannelSMS:
		return rule.Contacts.Phone
	case models.ChannelPush:
		return rule.OwnerID
	default:
		return ""
	}
}

// BuildReason walks the satisfied leaves and renders a human-readable
// explanation, e.g. "price dropped 22.0% to $7.50; Strong Buy rating".
func BuildReason(trace *Trace, item *models.ItemSnapshot) string {
	if trace == nil || len(trace.Matched) == 0 {
		return "rule conditions satisfied"
	}
	parts := make([]string, 0, len(trace.Matched))
	for _, leaf := range trace.Matched {
		parts = append(parts, describeLeaf(leaf, item))
	}
	return strings.Join(parts, "; ")
}

func describeLeaf(leaf MatchedLeaf, item *models.ItemSnapshot) string {
	switch leaf.Field {
	case models.FieldPrice:
		return fmt.Sprintf("price is $%.2f", leaf.Value.Num)
	case models.FieldPriceDropPercent:
		if best, ok := bestListing(item); ok {
			return fmt.Sprintf("price dropped %.1f%% to $%.2f", leaf.Value.Num, best.BuyCost())
		}
		return fmt.Sprintf("price dropped %.1f%%", leaf.Value.Num)
	case models.FieldRecommendation:
		return fmt.Sprintf("%s rating", leaf.Value.Text)
	case models.FieldRiskLevel:
		return fmt.Sprintf("risk level %s", leaf.Value.Text)
	case models.FieldVolumeChangePercent:
		return fmt.Sprintf("volume changed %.1f%% over 30d", leaf.Value.Num)
	case models.FieldPlatform:
		return fmt.Sprintf("best price on %s", leaf.Value.Text)
	case models.FieldPriceVsAverage:
		return fmt.Sprintf("price at %.1f%% of 30d average", leaf.Value.Num)
	case models.FieldArbitrageOpportunity:
		return fmt.Sprintf("arbitrage profit of $%.2f after fees", leaf.Value.Num)
	default:
		return fmt.Sprintf("%s %s %v", leaf.Field, leaf.Operator, leaf.Literal)
	}
}

func traceValues(trace *Trace) map[string]interface{} {
	values := make(map[string]interface{})
	if trace == nil {
		return values
	}
	for _, leaf := range trace.Matched {
		values[string(leaf.Field)] = leaf.Value.Raw()
	}
	return values
}
