package bot

import (
	"github.com/slack-go/slack"
	"github.com/xela07ax/slack-approval-bot/internal/domain"
)

// CommandFromSlack переводит slash-команду Slack в доменное событие.
func CommandFromSlack(cmd slack.SlashCommand) domain.CommandEvent {
	return domain.CommandEvent{
		Command:   cmd.Command,
		UserID:    cmd.UserID,
		ChannelID: cmd.ChannelID,
		TriggerID: cmd.TriggerID,
		Text:      cmd.Text,
	}
}

// SubmissionFromSlack достает значения полей формы (view_submission).
func SubmissionFromSlack(ic slack.InteractionCallback) domain.SubmissionEvent {
	evt := domain.SubmissionEvent{
		CallbackID: ic.View.CallbackID,
		UserID:     ic.User.ID,
		Values:     make(map[string]map[string]domain.FieldValue),
	}
	if ic.View.State == nil {
		return evt
	}
	for blockID, actions := range ic.View.State.Values {
		fields := make(map[string]domain.FieldValue, len(actions))
		for actionID, action := range actions {
			fields[actionID] = domain.FieldValue{SelectedUser: action.SelectedUser, Value: action.Value}
		}
		evt.Values[blockID] = fields
	}
	return evt
}

// InteractionsFromSlack разворачивает block_actions в отдельные нажатия.
// Ссылка на сообщение берется из channel/message, а при их отсутствии — из container.
func InteractionsFromSlack(ic slack.InteractionCallback) []domain.InteractionEvent {
	ref := domain.MessageRef{ChannelID: ic.Channel.ID, Timestamp: ic.Message.Timestamp}
	if ref.ChannelID == "" {
		ref.ChannelID = ic.Container.ChannelID
	}
	if ref.Timestamp == "" {
		ref.Timestamp = ic.Container.MessageTs
	}

	events := make([]domain.InteractionEvent, 0, len(ic.ActionCallback.BlockActions))
	for _, action := range ic.ActionCallback.BlockActions {
		if action == nil {
			continue
		}
		events = append(events, domain.InteractionEvent{
			BlockID:  action.BlockID,
			ActionID: action.ActionID,
			Value:    action.Value,
			UserID:   ic.User.ID,
			Message:  ref,
		})
	}
	return events
}
