package connectors

import (
	"context"
	"fmt"
	"sync"

	"github.com/xela07ax/slack-approval-bot/internal/domain"
)

// Call — один исходящий вызов, записанный MockMessenger.
type Call struct {
	Method    string // OpenSurface, SendMessage, UpdateMessage
	TriggerID string
	TargetID  string
	Ref       domain.MessageRef
	Surface   domain.Surface
	Message   domain.Message
}

// MockMessenger запоминает вызовы и умеет имитировать отказ отдельного метода.
// Используется в тестах вместо живого Slack.
type MockMessenger struct {
	mu    sync.Mutex
	calls []Call
	fail  map[string]error
	seq   int
}

func NewMockMessenger() *MockMessenger {
	return &MockMessenger{fail: make(map[string]error)}
}

// FailOn заставляет метод возвращать err (nil — снять отказ).
func (m *MockMessenger) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, method)
		return
	}
	m.fail[method] = err
}

// Calls возвращает копию журнала вызовов.
func (m *MockMessenger) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsOf фильтрует журнал по имени метода.
func (m *MockMessenger) CallsOf(method string) []Call {
	var out []Call
	for _, c := range m.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (m *MockMessenger) OpenSurface(ctx context.Context, triggerID string, s domain.Surface) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["OpenSurface"]; err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDisplayFailure, err)
	}
	m.calls = append(m.calls, Call{Method: "OpenSurface", TriggerID: triggerID, Surface: s})
	return nil
}

func (m *MockMessenger) SendMessage(ctx context.Context, targetID string, msg domain.Message) (domain.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["SendMessage"]; err != nil {
		return domain.MessageRef{}, fmt.Errorf("%w: %w", domain.ErrDeliveryFailure, err)
	}
	m.seq++
	// Как и в Slack: DM с пользователем получает свой канал "D<user>"
	ref := domain.MessageRef{ChannelID: "D" + targetID, Timestamp: fmt.Sprintf("1700000000.%06d", m.seq)}
	m.calls = append(m.calls, Call{Method: "SendMessage", TargetID: targetID, Ref: ref, Message: msg})
	return ref, nil
}

func (m *MockMessenger) UpdateMessage(ctx context.Context, ref domain.MessageRef, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["UpdateMessage"]; err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDeliveryFailure, err)
	}
	m.calls = append(m.calls, Call{Method: "UpdateMessage", Ref: ref, Message: msg})
	return nil
}
