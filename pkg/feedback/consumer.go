// Package feedback consumes engagement events (clicked, purchased,
// dismissed, usefulness ratings) from a Kafka topic and appends them to the
// stored alerts. The evaluation path never reads this data back.
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/dealradar/alert-engine/pkg/metrics"
	"github.com/dealradar/alert-engine/pkg/models"
	"github.com/dealradar/alert-engine/pkg/stores"
)

// Config holds the Kafka consumer settings.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Consumer reads feedback events and records them against alerts.
type Consumer struct {
	reader *kafka.Reader
	alerts stores.AlertStore

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewConsumer(cfg Config, alerts stores.AlertStore) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		CommitInterval: time.Second,
	})
	return &Consumer{reader: reader, alerts: alerts}, nil
}

// Start launches the consume loop in the background.
func (c *Consumer) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		logrus.Infof("Feedback consumer started on topic %s", c.reader.Config().Topic)
		for {
			msg, err := c.reader.ReadMessage(runCtx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
					return
				}
				logrus.Errorf("Feedback read failed: %v", err)
				continue
			}
			if err := c.handle(runCtx, msg.Value); err != nil {
				logrus.Warnf("Dropping feedback event at offset %d: %v", msg.Offset, err)
			}
		}
	}()
}

// Stop cancels the loop and closes the reader.
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.reader.Close()
}

func (c *Consumer) handle(ctx context.Context, raw []byte) error {
	event, err := ParseEvent(raw)
	if err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := c.alerts.RecordEngagement(opCtx, event.TriggeredAlertID, event.Kind, event.Usefulness); err != nil {
		return fmt.Errorf("failed to record %s for alert %s: %w", event.Kind, event.TriggeredAlertID, err)
	}
	metrics.FeedbackEventsTotal.WithLabelValues(string(event.Kind)).Inc()
	logrus.Debugf("Recorded %s engagement for alert %s", event.Kind, event.TriggeredAlertID)
	return nil
}

// ParseEvent decodes and validates one feedback event.
func ParseEvent(raw []byte) (*models.FeedbackEvent, error) {
	var event models.FeedbackEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("malformed feedback event: %w", err)
	}
	if event.TriggeredAlertID == "" {
		return nil, errors.New("feedback event has no alert id")
	}
	switch event.Kind {
	case models.FeedbackClicked, models.FeedbackPurchased, models.FeedbackDismissed:
	case models.FeedbackUsefulness:
		if event.Usefulness < 1 || event.Usefulness > 5 {
			return nil, fmt.Errorf("usefulness rating %d out of range", event.Usefulness)
		}
	default:
		return nil, fmt.Errorf("unknown feedback kind %q", event.Kind)
	}
	return &event, nil
}
