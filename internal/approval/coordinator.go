// Package approval реализует двухсторонний workflow согласования:
// открыть форму -> отправить заявку апруверу -> зафиксировать решение.
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/slack-approval-bot/internal/domain"
	"github.com/xela07ax/slack-approval-bot/internal/engine"
	"go.uber.org/zap"
)

// Messenger Описываем, что нам нужно от платформы чата
type Messenger interface {
	OpenSurface(ctx context.Context, triggerID string, s domain.Surface) error
	SendMessage(ctx context.Context, targetID string, msg domain.Message) (domain.MessageRef, error)
	UpdateMessage(ctx context.Context, ref domain.MessageRef, msg domain.Message) error
}

// Coordinator не держит изменяемого состояния между вызовами (кроме опционального ClaimStore),
// поэтому параллельные события обрабатываются без блокировок.
type Coordinator struct {
	messenger Messenger
	claims    ClaimStore
	metrics   *engine.Metrics
	logger    *zap.Logger
}

func NewCoordinator(messenger Messenger, claims ClaimStore, metrics *engine.Metrics, logger *zap.Logger) *Coordinator {
	if claims == nil {
		claims = NoopClaims{}
	}
	return &Coordinator{
		messenger: messenger,
		claims:    claims,
		metrics:   metrics,
		logger:    logger.Named("approval"),
	}
}

// RequestSurface — форма запроса: апрувер (один пользователь) и текст, оба обязательны.
func RequestSurface() domain.Surface {
	return domain.Surface{
		CallbackID:  domain.RequestModalCallbackID,
		Title:       "Request Approval",
		SubmitLabel: "Submit",
		Inputs: []domain.Input{
			{
				BlockID:     domain.ApproverBlockID,
				ActionID:    domain.ApproverActionID,
				Label:       "Select Approver",
				Placeholder: "Choose an approver",
				Kind:        domain.InputUserSelect,
			},
			{
				BlockID:   domain.ApprovalTextBlockID,
				ActionID:  domain.ApprovalTextActionID,
				Label:     "Approval Details",
				Kind:      domain.InputText,
				Multiline: true,
			},
		},
	}
}

// RequestNotification — сообщение апруверу. Обе кнопки несут requesterID в value:
// это единственный способ узнать автора заявки при нажатии.
func RequestNotification(req domain.ApprovalRequest) domain.Message {
	return domain.Message{
		Text:     fmt.Sprintf("Approval Request:\n%s", req.Text),
		Sections: []string{fmt.Sprintf("*Approval Request from %s:*\n%s", domain.Mention(req.RequesterID), req.Text)},
		Actions: &domain.ActionSet{
			BlockID: domain.ApprovalActionsBlockID,
			Controls: []domain.Control{
				{ActionID: domain.ApproveActionID, Label: "Approve", Value: req.RequesterID, Style: domain.StyleAffirmative},
				{ActionID: domain.RejectActionID, Label: "Reject", Value: req.RequesterID, Style: domain.StyleDestructive},
			},
		},
	}
}

// OutcomeMessage — замена исходного сообщения: без кнопок, чтобы решение нельзя было повторить.
func OutcomeMessage(d domain.Decision) domain.Message {
	summary := d.Summary()
	return domain.Message{
		Text:     summary,
		Sections: []string{"*" + summary + "*"},
	}
}

// StartRequest — Request Initiation. Вызывается уже после ack команды.
func (c *Coordinator) StartRequest(ctx context.Context, evt domain.CommandEvent) error {
	log := c.logger.With(
		zap.String("trace_id", engine.TraceID(ctx)),
		zap.String("user_id", evt.UserID),
	)

	if evt.TriggerID == "" {
		err := fmt.Errorf("%w: command without trigger id", domain.ErrMalformedPayload)
		c.fail(log, engine.FailureMalformed, "cannot open approval form", err)
		return err
	}

	if err := c.messenger.OpenSurface(ctx, evt.TriggerID, RequestSurface()); err != nil {
		c.fail(log, engine.FailureDisplay, "error opening modal", err)
		return err
	}

	log.Info("approval form opened")
	return nil
}

// Dispatch — Request Dispatch. Отправляет апруверу ровно одно уведомление.
func (c *Coordinator) Dispatch(ctx context.Context, evt domain.SubmissionEvent) (*domain.ApprovalRequest, error) {
	approver, _ := evt.Field(domain.ApproverBlockID, domain.ApproverActionID)
	text, _ := evt.Field(domain.ApprovalTextBlockID, domain.ApprovalTextActionID)

	req := &domain.ApprovalRequest{
		ID:          uuid.New().String(),
		RequesterID: evt.UserID,
		ApproverID:  approver.SelectedUser,
		Text:        text.Value,
	}

	log := c.logger.With(
		zap.String("trace_id", engine.TraceID(ctx)),
		zap.String("request_id", req.ID),
		zap.String("requester_id", req.RequesterID),
		zap.String("approver_id", req.ApproverID),
	)

	if err := req.Validate(); err != nil {
		c.fail(log, engine.FailureMalformed, "invalid approval submission", err)
		return nil, err
	}

	ref, err := c.messenger.SendMessage(ctx, req.ApproverID, RequestNotification(*req))
	if err != nil {
		// Автор заявки не узнает об ошибке: обратного канала у формы уже нет
		c.fail(log, engine.FailureDelivery, "error sending approval request", err)
		return nil, err
	}
	req.Origin = ref

	log.Info("approval request sent to approver",
		zap.String("channel", ref.ChannelID),
		zap.String("ts", ref.Timestamp))
	return req, nil
}

// Resolve — Decision Resolution: уведомить автора, затем заменить исходное сообщение.
// Отката нет: если второй шаг упал, автор уже уведомлен.
func (c *Coordinator) Resolve(ctx context.Context, evt domain.InteractionEvent) (*domain.Decision, error) {
	log := c.logger.With(
		zap.String("trace_id", engine.TraceID(ctx)),
		zap.String("action_id", evt.ActionID),
		zap.String("approver_id", evt.UserID),
		zap.String("requester_id", evt.Value),
	)

	// 1. Решение — только по точному совпадению action_id
	outcome, err := domain.ParseOutcome(evt.ActionID)
	if err != nil {
		c.fail(log, engine.FailureMalformed, "unrecognized decision action", err)
		return nil, err
	}

	decision := &domain.Decision{
		Outcome:     outcome,
		DecidedBy:   evt.UserID,
		RequesterID: evt.Value,
		Message:     evt.Message,
	}
	if err := validateDecision(decision); err != nil {
		c.fail(log, engine.FailureMalformed, "invalid decision payload", err)
		return nil, err
	}

	// 2. Защита от повторного нажатия (fail-open при ошибке хранилища)
	if err := c.claim(ctx, log, decision); err != nil {
		return nil, err
	}

	// 3. Уведомляем автора заявки. Ни одного побочного эффекта еще нет,
	// поэтому снимаем отметку: апрувер может нажать кнопку повторно.
	if _, err := c.messenger.SendMessage(ctx, decision.RequesterID, domain.Message{Text: decision.RequesterNotice()}); err != nil {
		c.fail(log, engine.FailureDelivery, "error sending decision notification", err)
		c.release(ctx, log, decision)
		return decision, err
	}

	// 4. Заменяем сообщение у апрувера (кнопки исчезают)
	if err := c.messenger.UpdateMessage(ctx, decision.Message, OutcomeMessage(*decision)); err != nil {
		c.fail(log, engine.FailureDelivery, "error updating approval message", err)
		return decision, err
	}

	if c.metrics != nil {
		c.metrics.DecisionsTotal.WithLabelValues(string(outcome)).Inc()
	}
	log.Info("approval decision processed", zap.String("result", string(outcome)))
	return decision, nil
}

func (c *Coordinator) claim(ctx context.Context, log *zap.Logger, d *domain.Decision) error {
	claimed, err := c.claims.Claim(ctx, d.Message.Key(), d.DecidedBy, time.Now())
	if err != nil {
		c.metrics.Failure(engine.FailureClaim)
		log.Warn("claim store unavailable, proceeding without duplicate guard", zap.Error(err))
		return nil
	}
	if !claimed {
		log.Info("decision ignored: message already resolved",
			zap.String("channel", d.Message.ChannelID),
			zap.String("ts", d.Message.Timestamp))
		return domain.ErrAlreadyDecided
	}
	return nil
}

func (c *Coordinator) release(ctx context.Context, log *zap.Logger, d *domain.Decision) {
	if err := c.claims.Release(ctx, d.Message.Key()); err != nil {
		c.metrics.Failure(engine.FailureClaim)
		log.Warn("cannot release decision claim", zap.Error(err))
	}
}

func validateDecision(d *domain.Decision) error {
	switch {
	case d.RequesterID == "":
		return fmt.Errorf("%w: action carries no requester id", domain.ErrMalformedPayload)
	case d.DecidedBy == "":
		return fmt.Errorf("%w: interaction without user", domain.ErrMalformedPayload)
	case d.Message.IsZero():
		return fmt.Errorf("%w: interaction without message reference", domain.ErrMalformedPayload)
	}
	return nil
}

func (c *Coordinator) fail(log *zap.Logger, kind, msg string, err error) {
	c.metrics.Failure(kind)
	if errors.Is(err, domain.ErrMalformedPayload) || errors.Is(err, domain.ErrUnrecognizedAction) {
		log.Warn(msg, zap.Error(err))
		return
	}
	log.Error(msg, zap.Error(err))
}
