package connectors

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"github.com/xela07ax/slack-approval-bot/internal/domain"
	"go.uber.org/zap"
)

// SlackAPI — подмножество slack.Client, которое нужно боту.
// Интерфейс позволяет подменить клиент в тестах без живого подключения.
type SlackAPI interface {
	OpenViewContext(ctx context.Context, triggerID string, view slack.ModalViewRequest) (*slack.ViewResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
}

// compile-time проверка, что slack.Client реализует SlackAPI
var _ SlackAPI = (*slack.Client)(nil)

// SlackMessenger отрисовывает domain.Surface / domain.Message в Block Kit и отправляет в Slack.
type SlackMessenger struct {
	api    SlackAPI
	logger *zap.Logger
}

func NewSlackMessenger(api SlackAPI, logger *zap.Logger) *SlackMessenger {
	return &SlackMessenger{api: api, logger: logger.Named("slack-messenger")}
}

// OpenSurface открывает модальное окно по trigger_id.
func (m *SlackMessenger) OpenSurface(ctx context.Context, triggerID string, s domain.Surface) error {
	view := RenderModal(s)
	if _, err := m.api.OpenViewContext(ctx, triggerID, view); err != nil {
		return fmt.Errorf("%w: views.open: %w", domain.ErrDisplayFailure, asThrottle(err))
	}
	m.logger.Debug("modal opened", zap.String("callback_id", s.CallbackID))
	return nil
}

// SendMessage пишет сообщение пользователю (ID пользователя = DM канал) или в канал.
func (m *SlackMessenger) SendMessage(ctx context.Context, targetID string, msg domain.Message) (domain.MessageRef, error) {
	channel, ts, err := m.api.PostMessageContext(ctx, targetID, RenderMessage(msg)...)
	if err != nil {
		return domain.MessageRef{}, fmt.Errorf("%w: chat.postMessage: %w", domain.ErrDeliveryFailure, asThrottle(err))
	}
	return domain.MessageRef{ChannelID: channel, Timestamp: ts}, nil
}

// UpdateMessage полностью заменяет содержимое сообщения.
func (m *SlackMessenger) UpdateMessage(ctx context.Context, ref domain.MessageRef, msg domain.Message) error {
	if _, _, _, err := m.api.UpdateMessageContext(ctx, ref.ChannelID, ref.Timestamp, RenderMessage(msg)...); err != nil {
		return fmt.Errorf("%w: chat.update: %w", domain.ErrDeliveryFailure, asThrottle(err))
	}
	return nil
}

// RenderModal строит запрос views.open.
func RenderModal(s domain.Surface) slack.ModalViewRequest {
	blocks := make([]slack.Block, 0, len(s.Inputs))
	for _, in := range s.Inputs {
		blocks = append(blocks, renderInput(in))
	}

	return slack.ModalViewRequest{
		Type:       slack.VTModal,
		CallbackID: s.CallbackID,
		Title:      plain(s.Title),
		Submit:     plain(s.SubmitLabel),
		Blocks:     slack.Blocks{BlockSet: blocks},
	}
}

func renderInput(in domain.Input) *slack.InputBlock {
	var element slack.BlockElement
	switch in.Kind {
	case domain.InputUserSelect:
		element = slack.NewOptionsSelectBlockElement(slack.OptTypeUser, plain(in.Placeholder), in.ActionID)
	default:
		text := slack.NewPlainTextInputBlockElement(plain(in.Placeholder), in.ActionID)
		text.Multiline = in.Multiline
		element = text
	}
	// Поле обязательное: Optional=false по умолчанию
	return slack.NewInputBlock(in.BlockID, plain(in.Label), nil, element)
}

// RenderMessage превращает сообщение в опции chat.postMessage / chat.update.
func RenderMessage(msg domain.Message) []slack.MsgOption {
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Text, false)}
	if blocks := RenderBlocks(msg); len(blocks) > 0 {
		opts = append(opts, slack.MsgOptionBlocks(blocks...))
	}
	return opts
}

// RenderBlocks строит Block Kit представление сообщения.
// Если кнопок нет, они не попадают в блоки — так update "снимает" их с сообщения.
func RenderBlocks(msg domain.Message) []slack.Block {
	blocks := make([]slack.Block, 0, len(msg.Sections)+1)
	for _, section := range msg.Sections {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, section, false, false), nil, nil))
	}

	if msg.HasControls() {
		elements := make([]slack.BlockElement, 0, len(msg.Actions.Controls))
		for _, c := range msg.Actions.Controls {
			btn := slack.NewButtonBlockElement(c.ActionID, c.Value, plain(c.Label))
			if c.Style != domain.StyleDefault {
				btn = btn.WithStyle(slack.Style(c.Style))
			}
			elements = append(elements, btn)
		}
		blocks = append(blocks, slack.NewActionBlock(msg.Actions.BlockID, elements...))
	}
	return blocks
}

func plain(text string) *slack.TextBlockObject {
	if text == "" {
		return nil
	}
	return slack.NewTextBlockObject(slack.PlainTextType, text, false, false)
}
