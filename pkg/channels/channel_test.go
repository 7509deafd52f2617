package channels

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealradar/alert-engine/pkg/models"
)

type fakeSender struct {
	name      models.Channel
	failUntil int
	calls     int
}

func (f *fakeSender) Name() models.Channel { return f.name }

func (f *fakeSender) Send(ctx context.Context, recipient string, payload Payload) error {
	f.calls++
	if f.calls <= f.failUntil {
		return errors.New("transient failure")
	}
	return nil
}

func TestSendWithRetrySucceedsFirstAttempt(t *testing.T) {
	sender := &fakeSender{name: models.ChannelPush}
	attempts, err := SendWithRetry(context.Background(), sender, "user-1", Payload{}, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, sender.calls)
}

func TestSendWithRetryRecoversAfterFailure(t *testing.T) {
	sender := &fakeSender{name: models.ChannelPush, failUntil: 1}
	attempts, err := SendWithRetry(context.Background(), sender, "user-1", Payload{}, 3)
	require.NoError(t, err)
	// The count reflects the real number of sends, not just "success".
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 2, sender.calls)
}

func TestSendWithRetryExhaustsAttempts(t *testing.T) {
	sender := &fakeSender{name: models.ChannelEmail, failUntil: 10}
	attempts, err := SendWithRetry(context.Background(), sender, "user-1", Payload{}, 2)
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 2, sender.calls)

	var chErr *ChannelError
	require.True(t, errors.As(err, &chErr))
	assert.Equal(t, models.ChannelEmail, chErr.Channel)
	assert.Equal(t, 2, chErr.Attempts)
}

func TestSendWithRetryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sender := &fakeSender{name: models.ChannelPush, failUntil: 10}
	attempts, err := SendWithRetry(ctx, sender, "user-1", Payload{}, 3)
	require.Error(t, err)
	assert.Equal(t, 0, attempts)
	assert.Equal(t, 0, sender.calls)
	assert.True(t, errors.Is(err, context.Canceled))

	// A cancellation before any send reports zero attempts, not the cap.
	var chErr *ChannelError
	require.True(t, errors.As(err, &chErr))
	assert.Equal(t, 0, chErr.Attempts)
}

func TestSendWithRetryDefaultsToOneAttempt(t *testing.T) {
	sender := &fakeSender{name: models.ChannelPush, failUntil: 10}
	attempts, err := SendWithRetry(context.Background(), sender, "user-1", Payload{}, 0)
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, sender.calls)
}
