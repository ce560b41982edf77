package bot

import (
	"context"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
	"github.com/xela07ax/slack-approval-bot/internal/engine"
	"go.uber.org/zap"
)

// SocketClient — то, что нужно транспорту от socketmode.Client.
type SocketClient interface {
	Ack(req socketmode.Request, payload ...interface{})
	RunContext(ctx context.Context) error
}

var _ SocketClient = (*socketmode.Client)(nil)

// SocketTransport получает события по исходящему WebSocket (Socket Mode),
// публичный URL не нужен.
type SocketTransport struct {
	client SocketClient
	events <-chan socketmode.Event
	bot    *Bot
	logger *zap.Logger
}

func NewSocketTransport(api *slack.Client, bot *Bot, debug bool, logger *zap.Logger) *SocketTransport {
	client := socketmode.New(api, socketmode.OptionDebug(debug))
	return newSocketTransport(client, client.Events, bot, logger)
}

func newSocketTransport(client SocketClient, events <-chan socketmode.Event, bot *Bot, logger *zap.Logger) *SocketTransport {
	return &SocketTransport{
		client: client,
		events: events,
		bot:    bot,
		logger: logger.Named("socket"),
	}
}

// Run блокируется до отмены ctx или фатальной ошибки соединения.
func (t *SocketTransport) Run(ctx context.Context) error {
	go t.loop(ctx)
	return t.client.RunContext(ctx)
}

func (t *SocketTransport) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-t.events:
			if !ok {
				return
			}
			t.handle(ctx, evt)
		}
	}
}

// handle не блокирует цикл чтения: каждый обработчик в своей горутине.
func (t *SocketTransport) handle(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		t.logger.Info("connecting to Slack with Socket Mode")
	case socketmode.EventTypeConnected:
		t.logger.Info("connected to Slack with Socket Mode")
	case socketmode.EventTypeConnectionError:
		t.logger.Warn("socket mode connection failed, retrying")

	case socketmode.EventTypeSlashCommand:
		cmd, ok := evt.Data.(slack.SlashCommand)
		if !ok {
			t.reject(evt, "unexpected slash command payload")
			return
		}
		ctx := engine.WithTraceID(ctx, "")
		go t.bot.DispatchCommand(ctx, CommandFromSlack(cmd), t.acker(evt))

	case socketmode.EventTypeInteractive:
		ic, ok := evt.Data.(slack.InteractionCallback)
		if !ok {
			t.reject(evt, "unexpected interaction payload")
			return
		}
		t.interactive(engine.WithTraceID(ctx, ""), evt, ic)

	default:
		// hello, events_api и прочее: подтверждаем, чтобы Slack не повторял доставку
		t.acker(evt)()
	}
}

func (t *SocketTransport) interactive(ctx context.Context, evt socketmode.Event, ic slack.InteractionCallback) {
	ack := t.acker(evt)
	switch ic.Type {
	case slack.InteractionTypeViewSubmission:
		go t.bot.DispatchSubmission(ctx, SubmissionFromSlack(ic), ack)
	case slack.InteractionTypeBlockActions:
		actions := InteractionsFromSlack(ic)
		if len(actions) == 0 {
			ack()
			return
		}
		for _, a := range actions {
			go t.bot.DispatchInteraction(ctx, a, ack)
		}
	default:
		ack()
	}
}

// acker подтверждает конверт ровно один раз, сколько бы обработчиков его ни разделяли.
func (t *SocketTransport) acker(evt socketmode.Event) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			if evt.Request != nil {
				t.client.Ack(*evt.Request)
			}
		})
	}
}

func (t *SocketTransport) reject(evt socketmode.Event, msg string) {
	t.acker(evt)()
	t.bot.metrics.Failure(engine.FailureMalformed)
	t.logger.Warn(msg, zap.String("type", string(evt.Type)))
}
