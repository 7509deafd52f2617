package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dealradar/alert-engine/pkg/channels"
	"github.com/dealradar/alert-engine/pkg/models"
)

func dispatchFixture() (*models.AlertRule, *models.ItemSnapshot, *Trace) {
	rule := &models.AlertRule{
		ID:       "r1",
		OwnerID:  "user-1",
		Name:     "Cheap knives",
		Priority: models.PriorityHigh,
		Channels: []models.Channel{models.ChannelPush, models.ChannelEmail},
		Contacts: models.Contacts{Email: "user@example.com", Phone: "+15550100"},
		IsActive: true,
	}
	item := &models.ItemSnapshot{
		ItemID:     "knife-1",
		Name:       "Karambit Fade",
		Listings:   []models.PlatformListing{{Platform: "marketA", Price: 7.50}},
		Price7dAgo: floatPtr(10.00),
	}
	trace := &Trace{Matched: []MatchedLeaf{{
		Field:    models.FieldPriceDropPercent,
		Operator: models.OpGt,
		Literal:  20.0,
		Value:    Value{Kind: NumberValue, Num: 25.0},
	}}}
	return rule, item, trace
}

func TestDispatchPersistsOnceAndFansOut(t *testing.T) {
	rule, item, trace := dispatchFixture()
	now := time.Now()

	alerts := new(MockAlertStore)
	alerts.On("InsertAlert", mock.Anything, mock.Anything).Return(nil).Once()
	ruleStore := new(MockRuleStore)
	ruleStore.On("IncrementTrigger", mock.Anything, "r1", "knife-1", now).Return(nil)

	push := NewMockSender(models.ChannelPush)
	push.On("Send", mock.Anything, "user-1", mock.Anything).Return(nil)
	email := NewMockSender(models.ChannelEmail)
	email.On("Send", mock.Anything, "user@example.com", mock.Anything).Return(nil)

	d := NewDispatcher(alerts, ruleStore, []channels.Sender{push, email}, 2)
	alert, err := d.Dispatch(context.Background(), rule, item, trace, now)
	require.NoError(t, err)

	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, "r1", alert.RuleID)
	assert.Equal(t, "knife-1", alert.ItemID)
	assert.Equal(t, "price dropped 25.0% to $7.50", alert.Reason)
	assert.Equal(t, 25.0, alert.Values[string(models.FieldPriceDropPercent)])
	require.Len(t, alert.Outcomes, 2)
	assert.Equal(t, models.DeliverySent, alert.Outcomes[0].Status)
	assert.Equal(t, models.DeliverySent, alert.Outcomes[1].Status)

	alerts.AssertExpectations(t)
	ruleStore.AssertExpectations(t)
}

func TestDispatchPartialDeliveryStillPersists(t *testing.T) {
	rule, item, trace := dispatchFixture()
	now := time.Now()

	var persisted *models.TriggeredAlert
	alerts := new(MockAlertStore)
	alerts.On("InsertAlert", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		persisted = args.Get(1).(*models.TriggeredAlert)
	}).Return(nil).Once()
	ruleStore := new(MockRuleStore)
	ruleStore.On("IncrementTrigger", mock.Anything, "r1", "knife-1", now).Return(nil)

	push := NewMockSender(models.ChannelPush)
	push.On("Send", mock.Anything, "user-1", mock.Anything).Return(errors.New("broker down"))
	email := NewMockSender(models.ChannelEmail)
	email.On("Send", mock.Anything, "user@example.com", mock.Anything).Return(nil)

	d := NewDispatcher(alerts, ruleStore, []channels.Sender{push, email}, 2)
	alert, err := d.Dispatch(context.Background(), rule, item, trace, now)
	require.NoError(t, err)
	require.Same(t, alert, persisted)

	require.Len(t, alert.Outcomes, 2)
	assert.Equal(t, models.ChannelPush, alert.Outcomes[0].Channel)
	assert.Equal(t, models.DeliveryFailed, alert.Outcomes[0].Status)
	assert.Equal(t, 2, alert.Outcomes[0].Attempts)
	assert.Contains(t, alert.Outcomes[0].Error, "broker down")
	assert.Equal(t, models.ChannelEmail, alert.Outcomes[1].Channel)
	assert.Equal(t, models.DeliverySent, alert.Outcomes[1].Status)
	assert.Equal(t, 1, alert.Outcomes[1].Attempts)

	// Both attempts were made for the failing channel.
	push.AssertNumberOfCalls(t, "Send", 2)
	alerts.AssertExpectations(t)
}

func TestDispatchRecordsRealAttemptCountAfterRetry(t *testing.T) {
	rule, item, trace := dispatchFixture()
	rule.Channels = []models.Channel{models.ChannelPush}

	alerts := new(MockAlertStore)
	alerts.On("InsertAlert", mock.Anything, mock.Anything).Return(nil)
	ruleStore := new(MockRuleStore)
	ruleStore.On("IncrementTrigger", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	push := NewMockSender(models.ChannelPush)
	push.On("Send", mock.Anything, "user-1", mock.Anything).Return(errors.New("broker down")).Once()
	push.On("Send", mock.Anything, "user-1", mock.Anything).Return(nil)

	d := NewDispatcher(alerts, ruleStore, []channels.Sender{push}, 3)
	alert, err := d.Dispatch(context.Background(), rule, item, trace, time.Now())
	require.NoError(t, err)

	// The delivery succeeded on the second try and the outcome says so.
	require.Len(t, alert.Outcomes, 1)
	assert.Equal(t, models.DeliverySent, alert.Outcomes[0].Status)
	assert.Equal(t, 2, alert.Outcomes[0].Attempts)
}

func TestDispatchUnconfiguredChannelIsARecordedFailure(t *testing.T) {
	rule, item, trace := dispatchFixture()
	rule.Channels = []models.Channel{models.ChannelSMS}

	alerts := new(MockAlertStore)
	alerts.On("InsertAlert", mock.Anything, mock.Anything).Return(nil)
	ruleStore := new(MockRuleStore)
	ruleStore.On("IncrementTrigger", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	d := NewDispatcher(alerts, ruleStore, nil, 2)
	alert, err := d.Dispatch(context.Background(), rule, item, trace, time.Now())
	require.NoError(t, err)
	require.Len(t, alert.Outcomes, 1)
	assert.Equal(t, models.DeliveryFailed, alert.Outcomes[0].Status)
	assert.Equal(t, "channel not configured", alert.Outcomes[0].Error)
}

func TestDispatchOneShotDeactivatesRule(t *testing.T) {
	rule, item, trace := dispatchFixture()
	rule.IsOneTime = true
	rule.Channels = []models.Channel{models.ChannelPush}

	alerts := new(MockAlertStore)
	alerts.On("InsertAlert", mock.Anything, mock.Anything).Return(nil)
	ruleStore := new(MockRuleStore)
	ruleStore.On("IncrementTrigger", mock.Anything, "r1", "knife-1", mock.Anything).Return(nil)
	ruleStore.On("Deactivate", mock.Anything, "r1").Return(nil).Once()

	push := NewMockSender(models.ChannelPush)
	push.On("Send", mock.Anything, "user-1", mock.Anything).Return(nil)

	d := NewDispatcher(alerts, ruleStore, []channels.Sender{push}, 1)
	_, err := d.Dispatch(context.Background(), rule, item, trace, time.Now())
	require.NoError(t, err)
	ruleStore.AssertExpectations(t)
}

func TestDispatchCancelledContextPersistsNothing(t *testing.T) {
	rule, item, trace := dispatchFixture()
	rule.Channels = []models.Channel{models.ChannelPush}

	alerts := new(MockAlertStore)
	ruleStore := new(MockRuleStore)
	push := NewMockSender(models.ChannelPush)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDispatcher(alerts, ruleStore, []channels.Sender{push}, 1)
	_, err := d.Dispatch(ctx, rule, item, trace, time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	alerts.AssertNotCalled(t, "InsertAlert", mock.Anything, mock.Anything)
	ruleStore.AssertNotCalled(t, "IncrementTrigger", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatchInsertFailureSkipsCounters(t *testing.T) {
	rule, item, trace := dispatchFixture()
	rule.Channels = []models.Channel{models.ChannelPush}

	alerts := new(MockAlertStore)
	alerts.On("InsertAlert", mock.Anything, mock.Anything).Return(errors.New("store down"))
	ruleStore := new(MockRuleStore)
	push := NewMockSender(models.ChannelPush)
	push.On("Send", mock.Anything, "user-1", mock.Anything).Return(nil)

	d := NewDispatcher(alerts, ruleStore, []channels.Sender{push}, 1)
	_, err := d.Dispatch(context.Background(), rule, item, trace, time.Now())
	require.Error(t, err)
	ruleStore.AssertNotCalled(t, "IncrementTrigger", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBuildReasonCombinesLeaves(t *testing.T) {
	item := &models.ItemSnapshot{
		ItemID:   "knife-1",
		Listings: []models.PlatformListing{{Platform: "marketA", Price: 7.50}},
	}
	trace := &Trace{Matched: []MatchedLeaf{
		{Field: models.FieldPriceDropPercent, Value: Value{Kind: NumberValue, Num: 22.0}},
		{Field: models.FieldRecommendation, Value: Value{Kind: TextValue, Text: "Strong Buy"}},
	}}
	assert.Equal(t, "price dropped 22.0% to $7.50; Strong Buy rating", BuildReason(trace, item))

	arb := &Trace{Matched: []MatchedLeaf{
		{Field: models.FieldArbitrageOpportunity, Value: Value{Kind: NumberValue, Num: 1.76}},
	}}
	assert.Equal(t, "arbitrage profit of $1.76 after fees", BuildReason(arb, item))

	assert.Equal(t, "rule conditions satisfied", BuildReason(&Trace{}, item))
}
