package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Идентификаторы, которыми связаны три шага workflow.
// Они "прошиты" в отправленные сообщения, поэтому менять их нельзя без миграции.
const (
	ApprovalCommand = "/approval-test"

	RequestModalCallbackID = "approval_request_modal"

	ApproverBlockID  = "approver_block"
	ApproverActionID = "approver"

	ApprovalTextBlockID  = "approval_text_block"
	ApprovalTextActionID = "approval_text"

	ApprovalActionsBlockID = "approval_actions"
	ApproveActionID        = "approve_request"
	RejectActionID         = "reject_request"
)

var (
	ErrDisplayFailure     = errors.New("surface could not be opened")
	ErrDeliveryFailure    = errors.New("message delivery failed")
	ErrMalformedPayload   = errors.New("malformed payload")
	ErrUnrecognizedAction = errors.New("unrecognized approval action")
	ErrAlreadyDecided     = errors.New("approval request already decided")
)

// Outcome — итог решения. Других значений, кроме Approved/Rejected, быть не может.
type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
)

// outcomeByAction — таблица точного соответствия action_id -> решение.
var outcomeByAction = map[string]Outcome{
	ApproveActionID: OutcomeApproved,
	RejectActionID:  OutcomeRejected,
}

// DecisionActionIDs возвращает action_id обеих кнопок (для регистрации одного обработчика).
func DecisionActionIDs() []string {
	return []string{ApproveActionID, RejectActionID}
}

// ParseOutcome переводит action_id кнопки в решение.
// Неизвестный идентификатор — явная ошибка, а не молчаливый "rejected".
func ParseOutcome(actionID string) (Outcome, error) {
	outcome, ok := outcomeByAction[actionID]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnrecognizedAction, actionID)
	}
	return outcome, nil
}

// ApprovalRequest живет только между Dispatch и отправкой уведомления.
// Единственный "след" заявки — само сообщение у апрувера.
type ApprovalRequest struct {
	ID          string
	RequesterID string
	ApproverID  string
	Text        string
	Origin      MessageRef
}

// Validate проверяет поля, извлеченные из формы.
func (r *ApprovalRequest) Validate() error {
	switch {
	case r.RequesterID == "":
		return fmt.Errorf("%w: requester id is empty", ErrMalformedPayload)
	case r.ApproverID == "":
		return fmt.Errorf("%w: approver is not selected", ErrMalformedPayload)
	case strings.TrimSpace(r.Text) == "":
		return fmt.Errorf("%w: approval text is empty", ErrMalformedPayload)
	}
	return nil
}

// Decision вычисляется в момент нажатия кнопки и нигде не хранится.
type Decision struct {
	Outcome     Outcome
	DecidedBy   string
	RequesterID string
	Message     MessageRef
}

// RequesterNotice — текст уведомления для автора заявки.
func (d Decision) RequesterNotice() string {
	return fmt.Sprintf("Your request has been %s by %s.", d.Outcome, Mention(d.DecidedBy))
}

// Summary — строка, которой заменяется исходное сообщение с кнопками.
func (d Decision) Summary() string {
	return fmt.Sprintf("Request %s by %s", d.Outcome, Mention(d.DecidedBy))
}

// Mention форматирует ссылку на пользователя в разметке чата.
func Mention(userID string) string {
	return "<@" + userID + ">"
}
