package domain

// MessageRef указывает на уже отправленное сообщение (канал + timestamp).
type MessageRef struct {
	ChannelID string `json:"channel_id"`
	Timestamp string `json:"ts"`
}

func (r MessageRef) IsZero() bool {
	return r.ChannelID == "" || r.Timestamp == ""
}

// Key — стабильный ключ сообщения, например для защиты от повторных решений.
func (r MessageRef) Key() string {
	return r.ChannelID + ":" + r.Timestamp
}

// CommandEvent — вызов slash-команды.
type CommandEvent struct {
	Command   string
	UserID    string
	ChannelID string
	TriggerID string // одноразовый и короткоживущий, нужен для открытия формы
	Text      string
}

// FieldValue — значение одного поля отправленной формы.
type FieldValue struct {
	SelectedUser string
	Value        string
}

// SubmissionEvent — отправка формы. Values: block_id -> action_id -> значение.
type SubmissionEvent struct {
	CallbackID string
	UserID     string
	Values     map[string]map[string]FieldValue
}

// Field безопасно достает значение поля; отсутствие поля не паникует.
func (e SubmissionEvent) Field(blockID, actionID string) (FieldValue, bool) {
	block, ok := e.Values[blockID]
	if !ok {
		return FieldValue{}, false
	}
	v, ok := block[actionID]
	return v, ok
}

// InteractionEvent — нажатие на кнопку в сообщении.
type InteractionEvent struct {
	BlockID  string
	ActionID string
	Value    string // непрозрачное значение, положенное в кнопку при отправке
	UserID   string
	Message  MessageRef
}
