package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xela07ax/slack-approval-bot/internal/domain"
	"github.com/xela07ax/slack-approval-bot/internal/engine"
	"go.uber.org/zap"
)

// Имена простых команд
const (
	CmdHello = domain.HelloCommand
	CmdEcho  = domain.EchoCommand
	CmdSum   = domain.SumCommand
	CmdQuote = domain.QuoteCommand
)

const quoteUnavailable = "Could not fetch a quote right now, try again later."

// Sender — все, что нужно от мессенджера простым командам.
type Sender interface {
	SendMessage(ctx context.Context, targetID string, msg domain.Message) (domain.MessageRef, error)
}

// Handler отвечает на простые команды сообщением в тот же канал.
type Handler struct {
	sender  Sender
	quotes  engine.QuoteProvider
	metrics *engine.Metrics
	logger  *zap.Logger
}

func NewHandler(sender Sender, quotes engine.QuoteProvider, metrics *engine.Metrics, logger *zap.Logger) *Handler {
	return &Handler{sender: sender, quotes: quotes, metrics: metrics, logger: logger.Named("commands")}
}

// Names — команды, которые нужно зарегистрировать в боте.
func (h *Handler) Names() []string {
	return domain.UtilityCommands()
}

// Reply вычисляет ответ на команду. Ошибки пользователя превращаются в текст подсказки.
func (h *Handler) Reply(ctx context.Context, evt domain.CommandEvent) (string, error) {
	switch evt.Command {
	case CmdHello:
		return Greet(evt.UserID), nil
	case CmdEcho:
		text, err := Echo(evt.Text)
		if err != nil {
			return usage(err), nil
		}
		return text, nil
	case CmdSum:
		total, err := Sum(evt.Text)
		if err != nil {
			if errors.Is(err, ErrUsage) {
				return usage(err), nil
			}
			return "Cannot sum: " + err.Error(), nil
		}
		return fmt.Sprintf("Sum: %d", total), nil
	case CmdQuote:
		quote, err := h.quotes.Random(ctx)
		if err != nil {
			h.metrics.Failure(engine.FailureQuote)
			h.logger.Warn("quote fetch failed", zap.String("trace_id", engine.TraceID(ctx)), zap.Error(err))
			return quoteUnavailable, nil
		}
		return quote.Markdown(), nil
	}
	return "", fmt.Errorf("%w: unknown command %q", domain.ErrMalformedPayload, evt.Command)
}

// Handle — command -> (ack уже отправлен) -> ответ в канал.
func (h *Handler) Handle(ctx context.Context, evt domain.CommandEvent) error {
	log := h.logger.With(
		zap.String("trace_id", engine.TraceID(ctx)),
		zap.String("command", evt.Command),
		zap.String("user_id", evt.UserID),
	)

	text, err := h.Reply(ctx, evt)
	if err != nil {
		h.metrics.Failure(engine.FailureMalformed)
		log.Warn("command rejected", zap.Error(err))
		return err
	}

	target := evt.ChannelID
	if target == "" {
		target = evt.UserID
	}
	if _, err := h.sender.SendMessage(ctx, target, domain.Message{Text: text}); err != nil {
		h.metrics.Failure(engine.FailureDelivery)
		log.Error("error sending command reply", zap.Error(err))
		return err
	}
	log.Debug("command answered")
	return nil
}

func usage(err error) string {
	return "Usage: " + strings.TrimPrefix(err.Error(), ErrUsage.Error()+": ")
}
