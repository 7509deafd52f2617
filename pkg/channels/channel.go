// Package channels implements the delivery side of the engine: one Sender
// per channel, each failing independently, plus the bounded retry wrapper
// the dispatcher uses.
package channels

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dealradar/alert-engine/pkg/models"
)

// Payload is the resolved notification content handed to every channel.
type Payload struct {
	AlertID     string          `json:"alertId"`
	RuleName    string          `json:"ruleName"`
	ItemID      string          `json:"itemId"`
	ItemName    string          `json:"itemName"`
	Reason      string          `json:"reason"`
	Priority    models.Priority `json:"priority"`
	TriggeredAt time.Time       `json:"triggeredAt"`
}

// Sender delivers a payload to one recipient over one channel.
type Sender interface {
	Name() models.Channel
	Send(ctx context.Context, recipient string, payload Payload) error
}

// ChannelError wraps a delivery failure with the channel and attempt count.
type ChannelError struct {
	Channel  models.Channel
	Attempts int
	Err      error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s failed after %d attempt(s): %v", e.Channel, e.Attempts, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// SendWithRetry attempts delivery up to maxAttempts times with a short
// fixed backoff. It returns the number of Send calls actually made and,
// on failure, a ChannelError carrying that count and the last error.
func SendWithRetry(ctx context.Context, sender Sender, recipient string, payload Payload, maxAttempts int) (int, error) {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	attempts := 0
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		attempts++
		err := sender.Send(ctx, recipient, payload)
		if err == nil {
			return attempts, nil
		}
		lastErr = err
		logrus.Warnf("Delivery on %s failed (attempt %d/%d): %v", sender.Name(), attempt, maxAttempts, err)
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = maxAttempts
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
	}
	return attempts, &ChannelError{Channel: sender.Name(), Attempts: attempts, Err: lastErr}
}
