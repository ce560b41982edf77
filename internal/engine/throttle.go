package engine

import (
	"context"
	"fmt"

	"github.com/xela07ax/slack-approval-bot/internal/domain"
	"golang.org/x/time/rate"
)

// Messenger — исходящие вызовы к платформе чата.
type Messenger interface {
	OpenSurface(ctx context.Context, triggerID string, s domain.Surface) error
	SendMessage(ctx context.Context, targetID string, msg domain.Message) (domain.MessageRef, error)
	UpdateMessage(ctx context.Context, ref domain.MessageRef, msg domain.Message) error
}

// ThrottledMessenger ограничивает частоту записи в API платформы (Slack tier ~1 rps).
// Ретраев здесь нет: неудачная доставка просто возвращается вызывающему.
type ThrottledMessenger struct {
	next    Messenger
	limiter *rate.Limiter
}

func NewThrottledMessenger(next Messenger, perSecond float64, burst int) *ThrottledMessenger {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &ThrottledMessenger{next: next, limiter: rate.NewLimiter(limit, burst)}
}

// OpenSurface не ждет лимитера: trigger_id живет ~3 секунды.
func (m *ThrottledMessenger) OpenSurface(ctx context.Context, triggerID string, s domain.Surface) error {
	return m.next.OpenSurface(ctx, triggerID, s)
}

func (m *ThrottledMessenger) SendMessage(ctx context.Context, targetID string, msg domain.Message) (domain.MessageRef, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return domain.MessageRef{}, fmt.Errorf("%w: rate limit wait: %w", domain.ErrDeliveryFailure, err)
	}
	return m.next.SendMessage(ctx, targetID, msg)
}

func (m *ThrottledMessenger) UpdateMessage(ctx context.Context, ref domain.MessageRef, msg domain.Message) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limit wait: %w", domain.ErrDeliveryFailure, err)
	}
	return m.next.UpdateMessage(ctx, ref, msg)
}
