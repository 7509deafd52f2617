package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Priority represents the priority level assigned to a rule's alerts
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Channel identifies a delivery channel
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
	ChannelSMS   Channel = "sms"
)

// ItemFilters narrows the item universe before condition evaluation.
// A non-empty ID allowlist short-circuits the other filters.
type ItemFilters struct {
	ItemIDs    []string `json:"itemIds,omitempty"`
	Categories []string `json:"categories,omitempty"`
	MaxPrice   float64  `json:"maxPrice,omitempty"` // 0 means no ceiling
}

// QuietHours is a wall-clock window during which a rule is not evaluated.
// The window may cross midnight (e.g. 22:00-08:00). Times are "HH:MM" in the
// rule's own timezone; an empty timezone means UTC.
type QuietHours struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone,omitempty"`
}

// Contacts holds the delivery addresses for a rule owner.
type Contacts struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// AlertRule is a user-authored condition tree plus filters and throttle
// settings. The engine mutates only LastTriggeredAt, TriggerCount and the
// IsActive transition for one-shot rules; everything else belongs to the
// authoring interface.
type AlertRule struct {
	ID              string      `json:"id"`
	OwnerID         string      `json:"ownerId"`
	Name            string      `json:"name"`
	Condition       Condition   `json:"condition"`
	Filters         ItemFilters `json:"filters"`
	Priority        Priority    `json:"priority"`
	Channels        []Channel   `json:"channels"`
	Contacts        Contacts    `json:"contacts"`
	IsActive        bool        `json:"isActive"`
	IsOneTime       bool        `json:"isOneTime"`
	MaxAlertsPerDay int         `json:"maxAlertsPerDay"` // 0 means no cap
	CooldownHours   int         `json:"cooldownHours"`   // 0 means no cooldown
	QuietHours      *QuietHours `json:"quietHours,omitempty"`
	LastTriggeredAt *time.Time  `json:"lastTriggeredAt,omitempty"`
	TriggerCount    int         `json:"triggerCount"`
	Version         int64       `json:"version"` // optimistic concurrency token, owned by the rule store
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// ruleAlias avoids recursing into AlertRule's own (Un)MarshalJSON while the
// Condition interface field is handled by hand.
type ruleAlias AlertRule

type ruleJSON struct {
	ruleAlias
	Condition json.RawMessage `json:"condition"`
}

func (r AlertRule) MarshalJSON() ([]byte, error) {
	raw, err := MarshalCondition(r.Condition)
	if err != nil {
		return nil, fmt.Errorf("failed to encode condition for rule %s: %w", r.ID, err)
	}
	return json.Marshal(ruleJSON{ruleAlias: ruleAlias(r), Condition: raw})
}

func (r *AlertRule) UnmarshalJSON(data []byte) error {
	var decoded ruleJSON
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	cond, err := UnmarshalCondition(decoded.Condition)
	if err != nil {
		return fmt.Errorf("failed to decode condition: %w", err)
	}
	*r = AlertRule(decoded.ruleAlias)
	r.Condition = cond
	return nil
}
