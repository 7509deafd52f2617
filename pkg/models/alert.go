package models

import "time"

// DeliveryStatus is the outcome of one delivery attempt series on a channel.
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// DeliveryOutcome records the result of attempting one channel. A failure on
// one channel never affects the others; partial delivery is a normal state.
type DeliveryOutcome struct {
	Channel  Channel        `json:"channel"`
	Status   DeliveryStatus `json:"status"`
	Attempts int            `json:"attempts"`
	Error    string         `json:"error,omitempty"`
}

// Engagement holds the flags appended to an alert after delivery. Written
// only by the feedback consumer, never by the engine itself.
type Engagement struct {
	Clicked    bool `json:"clicked"`
	Purchased  bool `json:"purchased"`
	Dismissed  bool `json:"dismissed"`
	Usefulness int  `json:"usefulness,omitempty"` // 1..5, 0 when unrated
}

// TriggeredAlert is the immutable record produced when a rule's conditions
// are satisfied for an item. Values holds the resolved field values that
// satisfied the condition tree, captured at evaluation time.
type TriggeredAlert struct {
	ID        string                 `json:"id"`
	RuleID    string                 `json:"ruleId"`
	RuleName  string                 `json:"ruleName"`
	OwnerID   string                 `json:"ownerId"`
	ItemID    string                 `json:"itemId"`
	ItemName  string                 `json:"itemName"`
	Reason    string                 `json:"reason"`
	Values    map[string]interface{} `json:"values"`
	Priority  Priority               `json:"priority"`
	Outcomes  []DeliveryOutcome      `json:"outcomes"`
	CreatedAt time.Time              `json:"createdAt"`

	Engagement Engagement `json:"engagement"`
}

// FeedbackKind classifies an engagement event from the feedback topic.
type FeedbackKind string

const (
	FeedbackClicked    FeedbackKind = "clicked"
	FeedbackPurchased  FeedbackKind = "purchased"
	FeedbackDismissed  FeedbackKind = "dismissed"
	FeedbackUsefulness FeedbackKind = "usefulness"
)

// FeedbackEvent is one engagement event consumed from the feedback topic.
type FeedbackEvent struct {
	TriggeredAlertID string       `json:"triggeredAlertId"`
	Kind             FeedbackKind `json:"kind"`
	Usefulness       int          `json:"usefulness,omitempty"`
	OccurredAt       time.Time    `json:"occurredAt"`
}

// AlertMetrics are per-rule aggregates recomputed from alert history.
// They feed the ops surface only; nothing in the evaluation path reads them.
type AlertMetrics struct {
	RuleID         string    `json:"ruleId"`
	Triggers       int       `json:"triggers"`
	Clicks         int       `json:"clicks"`
	Purchases      int       `json:"purchases"`
	Dismissals     int       `json:"dismissals"`
	ClickThrough   float64   `json:"clickThroughRate"`
	ConversionRate float64   `json:"conversionRate"`
	AvgUsefulness  float64   `json:"avgUsefulness"`
	ComputedAt     time.Time `json:"computedAt"`
}

// ComputeAlertMetrics derives the per-rule aggregates from alert history.
func ComputeAlertMetrics(ruleID string, alerts []TriggeredAlert, now time.Time) AlertMetrics {
	m := AlertMetrics{RuleID: ruleID, ComputedAt: now}
	usefulnessSum, rated := 0, 0
	for _, a := range alerts {
		m.Triggers++
		if a.Engagement.Clicked {
			m.Clicks++
		}
		if a.Engagement.Purchased {
			m.Purchases++
		}
		if a.Engagement.Dismissed {
			m.Dismissals++
		}
		if a.Engagement.Usefulness > 0 {
			usefulnessSum += a.Engagement.Usefulness
			rated++
		}
	}
	if m.Triggers > 0 {
		m.ClickThrough = float64(m.Clicks) / float64(m.Triggers)
		m.ConversionRate = float64(m.Purchases) / float64(m.Triggers)
	}
	if rated > 0 {
		m.AvgUsefulness = float64(usefulnessSum) / float64(rated)
	}
	return m
}
