package approval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/slack-approval-bot/internal/connectors"
	"github.com/xela07ax/slack-approval-bot/internal/domain"
	"github.com/xela07ax/slack-approval-bot/internal/engine"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestCoordinator(claims ClaimStore) (*Coordinator, *connectors.MockMessenger, *engine.Metrics, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	mock := connectors.NewMockMessenger()
	metrics := engine.NewMetrics(nil)
	return NewCoordinator(mock, claims, metrics, zap.New(core)), mock, metrics, logs
}

func submission(requester, approver, text string) domain.SubmissionEvent {
	return domain.SubmissionEvent{
		CallbackID: domain.RequestModalCallbackID,
		UserID:     requester,
		Values: map[string]map[string]domain.FieldValue{
			domain.ApproverBlockID:     {domain.ApproverActionID: {SelectedUser: approver}},
			domain.ApprovalTextBlockID: {domain.ApprovalTextActionID: {Value: text}},
		},
	}
}

// click строит нажатие кнопки из реально отправленного уведомления.
func click(t *testing.T, sent connectors.Call, actionID, clicker string) domain.InteractionEvent {
	t.Helper()
	require.NotNil(t, sent.Message.Actions)
	for _, c := range sent.Message.Actions.Controls {
		if c.ActionID == actionID {
			return domain.InteractionEvent{
				BlockID:  sent.Message.Actions.BlockID,
				ActionID: c.ActionID,
				Value:    c.Value,
				UserID:   clicker,
				Message:  sent.Ref,
			}
		}
	}
	t.Fatalf("control %s not found", actionID)
	return domain.InteractionEvent{}
}

func TestCoordinator_StartRequest(t *testing.T) {
	c, mock, _, _ := newTestCoordinator(nil)

	err := c.StartRequest(context.Background(), domain.CommandEvent{
		Command: "/approval-test", UserID: "U1", TriggerID: "trigger-1",
	})
	require.NoError(t, err)

	calls := mock.CallsOf("OpenSurface")
	require.Len(t, calls, 1)
	assert.Equal(t, "trigger-1", calls[0].TriggerID)

	surface := calls[0].Surface
	assert.Equal(t, domain.RequestModalCallbackID, surface.CallbackID)
	require.Len(t, surface.Inputs, 2)
	assert.Equal(t, domain.InputUserSelect, surface.Inputs[0].Kind)
	assert.Equal(t, domain.ApproverBlockID, surface.Inputs[0].BlockID)
	assert.Equal(t, domain.InputText, surface.Inputs[1].Kind)
	assert.True(t, surface.Inputs[1].Multiline)
	assert.Equal(t, domain.ApprovalTextBlockID, surface.Inputs[1].BlockID)
}

func TestCoordinator_StartRequest_DisplayFailure(t *testing.T) {
	c, mock, metrics, logs := newTestCoordinator(nil)
	mock.FailOn("OpenSurface", errors.New("expired_trigger_id"))

	err := c.StartRequest(context.Background(), domain.CommandEvent{UserID: "U1", TriggerID: "stale"})
	assert.True(t, errors.Is(err, domain.ErrDisplayFailure))
	assert.Empty(t, mock.Calls())
	assert.Equal(t, 1, logs.FilterMessage("error opening modal").Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.FailureTotal.WithLabelValues(engine.FailureDisplay)))

	err = c.StartRequest(context.Background(), domain.CommandEvent{UserID: "U1"})
	assert.True(t, errors.Is(err, domain.ErrMalformedPayload))
}

func TestCoordinator_Dispatch(t *testing.T) {
	c, mock, _, _ := newTestCoordinator(nil)

	req, err := c.Dispatch(context.Background(), submission("U1", "U2", "Needs sign-off"))
	require.NoError(t, err)
	assert.Equal(t, "U1", req.RequesterID)
	assert.Equal(t, "U2", req.ApproverID)
	assert.NotEmpty(t, req.ID)
	assert.False(t, req.Origin.IsZero())

	sent := mock.CallsOf("SendMessage")
	require.Len(t, sent, 1)
	assert.Equal(t, "U2", sent[0].TargetID)

	msg := sent[0].Message
	assert.Contains(t, msg.Text, "Needs sign-off")
	require.Len(t, msg.Sections, 1)
	assert.Contains(t, msg.Sections[0], "from <@U1>")
	assert.Contains(t, msg.Sections[0], "Needs sign-off")

	require.True(t, msg.HasControls())
	assert.Equal(t, domain.ApprovalActionsBlockID, msg.Actions.BlockID)
	require.Len(t, msg.Actions.Controls, 2)
	approve, reject := msg.Actions.Controls[0], msg.Actions.Controls[1]
	assert.Equal(t, domain.ApproveActionID, approve.ActionID)
	assert.Equal(t, domain.RejectActionID, reject.ActionID)
	assert.NotEqual(t, approve.ActionID, reject.ActionID)
	assert.Equal(t, domain.StyleAffirmative, approve.Style)
	assert.Equal(t, domain.StyleDestructive, reject.Style)
	assert.Equal(t, "U1", approve.Value)
	assert.Equal(t, "U1", reject.Value)
}

func TestCoordinator_Dispatch_Malformed(t *testing.T) {
	var testCases = []struct {
		description string
		event       domain.SubmissionEvent
	}{
		{description: "no approver", event: submission("U1", "", "text")},
		{description: "no text", event: submission("U1", "U2", "")},
		{description: "blank text", event: submission("U1", "U2", "   \n  ")},
		{description: "no values", event: domain.SubmissionEvent{CallbackID: domain.RequestModalCallbackID, UserID: "U1"}},
	}

	for _, testCase := range testCases {
		c, mock, _, logs := newTestCoordinator(nil)
		_, err := c.Dispatch(context.Background(), testCase.event)
		assert.True(t, errors.Is(err, domain.ErrMalformedPayload), testCase.description)
		assert.Empty(t, mock.Calls(), testCase.description)
		assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len(), testCase.description)
	}
}

func TestCoordinator_Dispatch_DeliveryFailure(t *testing.T) {
	c, mock, metrics, logs := newTestCoordinator(nil)
	mock.FailOn("SendMessage", errors.New("network unreachable"))

	var err error
	assert.NotPanics(t, func() {
		_, err = c.Dispatch(context.Background(), submission("U1", "U2", "Needs sign-off"))
	})
	assert.True(t, errors.Is(err, domain.ErrDeliveryFailure))
	assert.Empty(t, mock.Calls())
	assert.Equal(t, 1, logs.FilterMessage("error sending approval request").Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.FailureTotal.WithLabelValues(engine.FailureDelivery)))

	// Процесс продолжает работать: следующая команда обрабатывается
	mock.FailOn("SendMessage", nil)
	require.NoError(t, c.StartRequest(context.Background(), domain.CommandEvent{UserID: "U1", TriggerID: "t2"}))
	assert.Len(t, mock.CallsOf("OpenSurface"), 1)
}

func TestCoordinator_Scenario(t *testing.T) {
	var testCases = []struct {
		description string
		actionID    string
		outcome     domain.Outcome
		notice      string
		summary     string
	}{
		{
			description: "approve",
			actionID:    domain.ApproveActionID,
			outcome:     domain.OutcomeApproved,
			notice:      "Your request has been approved by <@U2>.",
			summary:     "Request approved by <@U2>",
		},
		{
			description: "reject",
			actionID:    domain.RejectActionID,
			outcome:     domain.OutcomeRejected,
			notice:      "Your request has been rejected by <@U2>.",
			summary:     "Request rejected by <@U2>",
		},
	}

	for _, testCase := range testCases {
		c, mock, metrics, _ := newTestCoordinator(NewMemoryClaims(time.Hour))
		ctx := context.Background()

		require.NoError(t, c.StartRequest(ctx, domain.CommandEvent{Command: "/approval-test", UserID: "U1", TriggerID: "t1"}), testCase.description)
		_, err := c.Dispatch(ctx, submission("U1", "U2", "Needs sign-off"))
		require.NoError(t, err, testCase.description)
		request := mock.CallsOf("SendMessage")[0]

		decision, err := c.Resolve(ctx, click(t, request, testCase.actionID, "U2"))
		require.NoError(t, err, testCase.description)
		assert.Equal(t, testCase.outcome, decision.Outcome, testCase.description)
		assert.Equal(t, "U2", decision.DecidedBy, testCase.description)

		sent := mock.CallsOf("SendMessage")
		require.Len(t, sent, 2, testCase.description)
		assert.Equal(t, "U1", sent[1].TargetID, testCase.description)
		assert.Equal(t, testCase.notice, sent[1].Message.Text, testCase.description)

		updates := mock.CallsOf("UpdateMessage")
		require.Len(t, updates, 1, testCase.description)
		assert.Equal(t, request.Ref, updates[0].Ref, testCase.description)
		assert.Equal(t, testCase.summary, updates[0].Message.Text, testCase.description)
		assert.Equal(t, []string{"*" + testCase.summary + "*"}, updates[0].Message.Sections, testCase.description)
		assert.False(t, updates[0].Message.HasControls(), testCase.description)

		// notify строго перед update
		calls := mock.Calls()
		assert.Equal(t, "SendMessage", calls[len(calls)-2].Method, testCase.description)
		assert.Equal(t, "UpdateMessage", calls[len(calls)-1].Method, testCase.description)

		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.DecisionsTotal.WithLabelValues(string(testCase.outcome))), testCase.description)
	}
}

func TestCoordinator_Resolve_RequesterFromPayload(t *testing.T) {
	c, mock, _, _ := newTestCoordinator(nil)

	// Нажимает не адресат, а третий пользователь: автор все равно берется из value
	decision, err := c.Resolve(context.Background(), domain.InteractionEvent{
		BlockID:  domain.ApprovalActionsBlockID,
		ActionID: domain.ApproveActionID,
		Value:    "U1",
		UserID:   "U9",
		Message:  domain.MessageRef{ChannelID: "DU2", Timestamp: "1700000000.000001"},
	})
	require.NoError(t, err)
	assert.Equal(t, "U1", decision.RequesterID)
	assert.Equal(t, "U9", decision.DecidedBy)

	sent := mock.CallsOf("SendMessage")
	require.Len(t, sent, 1)
	assert.Equal(t, "U1", sent[0].TargetID)
	assert.Equal(t, "Your request has been approved by <@U9>.", sent[0].Message.Text)
}

func TestCoordinator_Resolve_Malformed(t *testing.T) {
	ref := domain.MessageRef{ChannelID: "DU2", Timestamp: "1"}
	var testCases = []struct {
		description string
		event       domain.InteractionEvent
		expectErr   error
	}{
		{
			description: "unknown action",
			event:       domain.InteractionEvent{ActionID: "approve", Value: "U1", UserID: "U2", Message: ref},
			expectErr:   domain.ErrUnrecognizedAction,
		},
		{
			description: "no requester",
			event:       domain.InteractionEvent{ActionID: domain.ApproveActionID, UserID: "U2", Message: ref},
			expectErr:   domain.ErrMalformedPayload,
		},
		{
			description: "no message ref",
			event:       domain.InteractionEvent{ActionID: domain.RejectActionID, Value: "U1", UserID: "U2"},
			expectErr:   domain.ErrMalformedPayload,
		},
	}

	for _, testCase := range testCases {
		c, mock, metrics, _ := newTestCoordinator(nil)
		_, err := c.Resolve(context.Background(), testCase.event)
		assert.True(t, errors.Is(err, testCase.expectErr), testCase.description)
		assert.Empty(t, mock.Calls(), testCase.description)
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.FailureTotal.WithLabelValues(engine.FailureMalformed)), testCase.description)
	}
}

func TestCoordinator_Resolve_PartialFailure(t *testing.T) {
	c, mock, _, logs := newTestCoordinator(nil)
	mock.FailOn("UpdateMessage", errors.New("message_not_found"))

	evt := domain.InteractionEvent{
		ActionID: domain.RejectActionID, Value: "U1", UserID: "U2",
		Message: domain.MessageRef{ChannelID: "DU2", Timestamp: "1"},
	}
	decision, err := c.Resolve(context.Background(), evt)
	assert.True(t, errors.Is(err, domain.ErrDeliveryFailure))
	require.NotNil(t, decision)
	assert.Len(t, mock.CallsOf("SendMessage"), 1) // автор уже уведомлен, отката нет
	assert.Equal(t, 1, logs.FilterMessage("error updating approval message").Len())

	mock.FailOn("UpdateMessage", nil)
	mock.FailOn("SendMessage", errors.New("timeout"))
	_, err = c.Resolve(context.Background(), domain.InteractionEvent{
		ActionID: domain.ApproveActionID, Value: "U1", UserID: "U2",
		Message: domain.MessageRef{ChannelID: "DU2", Timestamp: "2"},
	})
	assert.True(t, errors.Is(err, domain.ErrDeliveryFailure))
	assert.Empty(t, mock.CallsOf("UpdateMessage")) // остановились после первого отказа
}

func TestCoordinator_Resolve_Duplicates(t *testing.T) {
	evt := domain.InteractionEvent{
		ActionID: domain.ApproveActionID, Value: "U1", UserID: "U2",
		Message: domain.MessageRef{ChannelID: "DU2", Timestamp: "1"},
	}

	// Без защиты: два нажатия — два уведомления
	c, mock, _, _ := newTestCoordinator(NoopClaims{})
	_, err := c.Resolve(context.Background(), evt)
	require.NoError(t, err)
	_, err = c.Resolve(context.Background(), evt)
	require.NoError(t, err)
	assert.Len(t, mock.CallsOf("SendMessage"), 2)

	// С защитой: второе нажатие (даже конкурентное) игнорируется
	c, mock, _, _ = newTestCoordinator(NewMemoryClaims(time.Hour))
	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Resolve(context.Background(), evt)
		}(i)
	}
	wg.Wait()

	decided := 0
	for _, err := range errs {
		if err == nil {
			decided++
			continue
		}
		assert.True(t, errors.Is(err, domain.ErrAlreadyDecided))
	}
	assert.Equal(t, 1, decided)
	assert.Len(t, mock.CallsOf("SendMessage"), 1)
	assert.Len(t, mock.CallsOf("UpdateMessage"), 1)
}

func TestCoordinator_Resolve_RetryAfterFailedNotification(t *testing.T) {
	claims := NewMemoryClaims(24 * time.Hour)
	c, mock, _, _ := newTestCoordinator(claims)
	evt := domain.InteractionEvent{
		ActionID: domain.ApproveActionID, Value: "U1", UserID: "U2",
		Message: domain.MessageRef{ChannelID: "DU2", Timestamp: "1"},
	}

	mock.FailOn("SendMessage", errors.New("network unreachable"))
	_, err := c.Resolve(context.Background(), evt)
	require.True(t, errors.Is(err, domain.ErrDeliveryFailure))
	assert.Equal(t, 0, claims.Len()) // автор не уведомлен: сообщение снова свободно

	// Повторное нажатие после восстановления сети доходит до конца
	mock.FailOn("SendMessage", nil)
	decision, err := c.Resolve(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApproved, decision.Outcome)
	assert.Len(t, mock.CallsOf("SendMessage"), 1)
	assert.Len(t, mock.CallsOf("UpdateMessage"), 1)
}

func TestCoordinator_Resolve_ClaimKeptAfterNotification(t *testing.T) {
	claims := NewMemoryClaims(24 * time.Hour)
	c, mock, _, _ := newTestCoordinator(claims)
	evt := domain.InteractionEvent{
		ActionID: domain.RejectActionID, Value: "U1", UserID: "U2",
		Message: domain.MessageRef{ChannelID: "DU2", Timestamp: "1"},
	}

	mock.FailOn("UpdateMessage", errors.New("message_not_found"))
	_, err := c.Resolve(context.Background(), evt)
	require.True(t, errors.Is(err, domain.ErrDeliveryFailure))
	assert.Equal(t, 1, claims.Len())

	// Автор уже уведомлен: второе уведомление не уходит
	mock.FailOn("UpdateMessage", nil)
	_, err = c.Resolve(context.Background(), evt)
	assert.True(t, errors.Is(err, domain.ErrAlreadyDecided))
	assert.Len(t, mock.CallsOf("SendMessage"), 1)
}

type brokenClaims struct{}

func (brokenClaims) Claim(ctx context.Context, messageKey, decidedBy string, at time.Time) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func (brokenClaims) Release(ctx context.Context, messageKey string) error {
	return errors.New("redis: connection refused")
}

func TestCoordinator_Resolve_ClaimStoreFailOpen(t *testing.T) {
	c, mock, metrics, _ := newTestCoordinator(brokenClaims{})

	_, err := c.Resolve(context.Background(), domain.InteractionEvent{
		ActionID: domain.ApproveActionID, Value: "U1", UserID: "U2",
		Message: domain.MessageRef{ChannelID: "DU2", Timestamp: "1"},
	})
	require.NoError(t, err)
	assert.Len(t, mock.CallsOf("UpdateMessage"), 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.FailureTotal.WithLabelValues(engine.FailureClaim)))
}
