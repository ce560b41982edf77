package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/slack-approval-bot/internal/domain"
	"github.com/xela07ax/slack-approval-bot/internal/engine"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestBot() (*Bot, *engine.Metrics, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	metrics := engine.NewMetrics(nil)
	return New(metrics, zap.New(core)), metrics, logs
}

func TestBot_AckBeforeHandler(t *testing.T) {
	b, metrics, _ := newTestBot()

	var steps []string
	b.Command("/hello", func(ctx context.Context, evt domain.CommandEvent) error {
		steps = append(steps, "handler:"+evt.UserID)
		return nil
	})

	matched := b.DispatchCommand(context.Background(), domain.CommandEvent{Command: "/hello", UserID: "U1"}, func() {
		steps = append(steps, "ack")
	})

	assert.True(t, matched)
	assert.Equal(t, []string{"ack", "handler:U1"}, steps)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EventsTotal.WithLabelValues(KindCommand, "/hello")))
}

func TestBot_UnknownEventsAreAckedAndIgnored(t *testing.T) {
	b, _, _ := newTestBot()
	acks := 0
	ack := func() { acks++ }

	assert.False(t, b.DispatchCommand(context.Background(), domain.CommandEvent{Command: "/nope"}, ack))
	assert.False(t, b.DispatchSubmission(context.Background(), domain.SubmissionEvent{CallbackID: "other_modal"}, ack))
	assert.False(t, b.DispatchInteraction(context.Background(), domain.InteractionEvent{BlockID: "x", ActionID: "y"}, ack))
	assert.Equal(t, 3, acks)
}

func TestBot_ActionRouting(t *testing.T) {
	b, _, _ := newTestBot()

	var got []string
	b.Action(domain.ApprovalActionsBlockID, domain.DecisionActionIDs(), func(ctx context.Context, evt domain.InteractionEvent) error {
		got = append(got, evt.ActionID)
		return nil
	})

	noop := func() {}
	for _, id := range []string{domain.ApproveActionID, domain.RejectActionID, "approve_request_2"} {
		b.DispatchInteraction(context.Background(), domain.InteractionEvent{BlockID: domain.ApprovalActionsBlockID, ActionID: id}, noop)
	}
	// Кнопка из другого блока не должна попасть в обработчик решений
	b.DispatchInteraction(context.Background(), domain.InteractionEvent{BlockID: "other_block", ActionID: domain.ApproveActionID}, noop)

	assert.Equal(t, []string{domain.ApproveActionID, domain.RejectActionID}, got)
}

func TestBot_ViewRouting(t *testing.T) {
	b, _, _ := newTestBot()

	var got domain.SubmissionEvent
	b.View(domain.RequestModalCallbackID, func(ctx context.Context, evt domain.SubmissionEvent) error {
		got = evt
		return nil
	})

	evt := domain.SubmissionEvent{CallbackID: domain.RequestModalCallbackID, UserID: "UR"}
	require.True(t, b.DispatchSubmission(context.Background(), evt, func() {}))
	assert.Equal(t, "UR", got.UserID)
}

func TestBot_PanicIsContained(t *testing.T) {
	b, metrics, logs := newTestBot()

	b.Command("/boom", func(ctx context.Context, evt domain.CommandEvent) error {
		panic("nil map write")
	})
	b.Command("/fine", func(ctx context.Context, evt domain.CommandEvent) error {
		return errors.New("handled elsewhere")
	})

	assert.NotPanics(t, func() {
		b.DispatchCommand(context.Background(), domain.CommandEvent{Command: "/boom"}, func() {})
	})
	// Следующее событие обрабатывается как обычно
	assert.True(t, b.DispatchCommand(context.Background(), domain.CommandEvent{Command: "/fine"}, func() {}))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FailureTotal.WithLabelValues(engine.FailurePanic)))
	assert.Equal(t, 1, logs.FilterMessage("handler panic recovered").Len())
}

func TestBot_HandlerContextSurvivesCancel(t *testing.T) {
	b, _, _ := newTestBot()

	ctx, cancel := context.WithCancel(engine.WithTraceID(context.Background(), "trace-1"))
	cancel()

	var handlerErr error
	var trace string
	b.Command("/hello", func(ctx context.Context, evt domain.CommandEvent) error {
		handlerErr = ctx.Err()
		trace = engine.TraceID(ctx)
		return nil
	})
	b.DispatchCommand(ctx, domain.CommandEvent{Command: "/hello"}, func() {})

	assert.NoError(t, handlerErr)
	assert.Equal(t, "trace-1", trace)
}
