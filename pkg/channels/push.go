package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"

	"github.com/dealradar/alert-engine/pkg/models"
)

// PushStreamName is the JetStream stream push payloads are published into.
// Mobile push workers consume it downstream.
const PushStreamName = "ALERT_PUSH"

// PushSender publishes alert payloads to a per-user NATS JetStream subject.
type PushSender struct {
	conn      *nats.Conn
	jetStream jetstream.JetStream
}

// NewPushSender connects to NATS and ensures the push stream exists.
func NewPushSender(url string) (*PushSender, error) {
	conn, err := nats.Connect(url,
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logrus.Warnf("NATS connection lost: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logrus.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	setupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = js.CreateOrUpdateStream(setupCtx, jetstream.StreamConfig{
		Name:      PushStreamName,
		Subjects:  []string{"alerts.push.*"},
		Retention: jetstream.LimitsPolicy,
		MaxMsgs:   50000,
		MaxAge:    7 * 24 * time.Hour,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set up push stream: %w", err)
	}

	return &PushSender{conn: conn, jetStream: js}, nil
}

func (s *PushSender) Name() models.Channel { return models.ChannelPush }

func (s *PushSender) Send(ctx context.Context, recipient string, payload Payload) error {
	if recipient == "" {
		return fmt.Errorf("no push recipient on record")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode push payload: %w", err)
	}
	subject := fmt.Sprintf("alerts.push.%s", recipient)
	if _, err := s.jetStream.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	logrus.Debugf("Published push payload for alert %s to %s", payload.AlertID, subject)
	return nil
}

// Close shuts down the NATS connection.
func (s *PushSender) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
}
