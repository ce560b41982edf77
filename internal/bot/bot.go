package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/xela07ax/slack-approval-bot/internal/domain"
	"github.com/xela07ax/slack-approval-bot/internal/engine"
	"go.uber.org/zap"
)

type (
	CommandHandler func(ctx context.Context, evt domain.CommandEvent) error
	ViewHandler    func(ctx context.Context, evt domain.SubmissionEvent) error
	ActionHandler  func(ctx context.Context, evt domain.InteractionEvent) error
)

// Виды событий (метка kind в метриках)
const (
	KindCommand = "command"
	KindView    = "view"
	KindAction  = "action"
)

type actionKey struct {
	blockID  string
	actionID string
}

// Bot — единственный долгоживущий объект подключения.
// Регистрация обработчиков выполняется один раз при старте, до запуска транспорта;
// после этого таблицы маршрутов только читаются, поэтому блокировки не нужны.
type Bot struct {
	commands map[string]CommandHandler
	views    map[string]ViewHandler
	actions  map[actionKey]ActionHandler
	metrics  *engine.Metrics
	logger   *zap.Logger
}

func New(metrics *engine.Metrics, logger *zap.Logger) *Bot {
	return &Bot{
		commands: make(map[string]CommandHandler),
		views:    make(map[string]ViewHandler),
		actions:  make(map[actionKey]ActionHandler),
		metrics:  metrics,
		logger:   logger.Named("bot"),
	}
}

// Command маршрутизирует slash-команду по имени.
func (b *Bot) Command(name string, h CommandHandler) {
	b.commands[name] = h
}

// View маршрутизирует отправку формы по callback_id.
func (b *Bot) View(callbackID string, h ViewHandler) {
	b.views[callbackID] = h
}

// Action привязывает один обработчик к нескольким action_id внутри block_id.
func (b *Bot) Action(blockID string, actionIDs []string, h ActionHandler) {
	for _, id := range actionIDs {
		b.actions[actionKey{blockID: blockID, actionID: id}] = h
	}
}

// DispatchCommand: ack -> обработчик. Возвращает false, если маршрута нет (ack все равно отправлен).
func (b *Bot) DispatchCommand(ctx context.Context, evt domain.CommandEvent, ack func()) bool {
	ack()
	h, ok := b.commands[evt.Command]
	if !ok {
		b.unrouted(KindCommand, evt.Command)
		return false
	}
	b.run(ctx, KindCommand, evt.Command, func(ctx context.Context) error { return h(ctx, evt) })
	return true
}

// DispatchSubmission: ack -> обработчик формы.
func (b *Bot) DispatchSubmission(ctx context.Context, evt domain.SubmissionEvent, ack func()) bool {
	ack()
	h, ok := b.views[evt.CallbackID]
	if !ok {
		b.unrouted(KindView, evt.CallbackID)
		return false
	}
	b.run(ctx, KindView, evt.CallbackID, func(ctx context.Context) error { return h(ctx, evt) })
	return true
}

// DispatchInteraction: ack -> обработчик кнопки по паре (block_id, action_id).
func (b *Bot) DispatchInteraction(ctx context.Context, evt domain.InteractionEvent, ack func()) bool {
	ack()
	h, ok := b.actions[actionKey{blockID: evt.BlockID, actionID: evt.ActionID}]
	if !ok {
		b.unrouted(KindAction, evt.BlockID+"/"+evt.ActionID)
		return false
	}
	b.run(ctx, KindAction, evt.ActionID, func(ctx context.Context) error { return h(ctx, evt) })
	return true
}

// run изолирует вызов: паника или ошибка не выходят за пределы обработчика.
func (b *Bot) run(ctx context.Context, kind, name string, fn func(ctx context.Context) error) {
	start := time.Now()
	// Исходящий вызов доводится до конца даже при остановке процесса
	ctx = context.WithoutCancel(ctx)
	log := b.logger.With(zap.String("trace_id", engine.TraceID(ctx)), zap.String("kind", kind), zap.String("name", name))

	if b.metrics != nil {
		b.metrics.EventsTotal.WithLabelValues(kind, name).Inc()
		defer func() {
			b.metrics.HandlerDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		}()
	}

	defer func() {
		if r := recover(); r != nil {
			b.metrics.Failure(engine.FailurePanic)
			log.Error("handler panic recovered",
				zap.String("panic", fmt.Sprint(r)),
				zap.ByteString("stack", debug.Stack()))
		}
	}()

	if err := fn(ctx); err != nil {
		// Обработчик уже залогировал причину; здесь только итог
		log.Debug("handler finished with error", zap.Error(err))
	}
}

func (b *Bot) unrouted(kind, name string) {
	b.logger.Debug("no handler registered", zap.String("kind", kind), zap.String("name", name))
}
