package domain

// Платформо-независимое описание исходящего контента.
// Конкретный коннектор (Slack) сам решает, как это отрисовать.

type InputKind string

const (
	InputUserSelect InputKind = "user_select"
	InputText       InputKind = "text"
)

// Input — обязательное поле формы.
type Input struct {
	BlockID     string
	ActionID    string
	Label       string
	Placeholder string
	Kind        InputKind
	Multiline   bool
}

// Surface — модальная форма ввода.
type Surface struct {
	CallbackID  string
	Title       string
	SubmitLabel string
	Inputs      []Input
}

type ControlStyle string

const (
	StyleDefault     ControlStyle = ""
	StyleAffirmative ControlStyle = "primary"
	StyleDestructive ControlStyle = "danger"
)

// Control — кнопка с непрозрачным значением.
type Control struct {
	ActionID string
	Label    string
	Value    string
	Style    ControlStyle
}

// ActionSet — группа кнопок под одним block_id.
type ActionSet struct {
	BlockID  string
	Controls []Control
}

// Message — текст (fallback), markdown-секции и необязательные кнопки.
type Message struct {
	Text     string
	Sections []string
	Actions  *ActionSet
}

// HasControls true, если в сообщении есть хотя бы одна кнопка.
func (m Message) HasControls() bool {
	return m.Actions != nil && len(m.Actions.Controls) > 0
}
