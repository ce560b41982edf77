package approval

import (
	"context"
	"sync"
	"time"
)

// ClaimStore фиксирует первое решение по сообщению с кнопками.
// Claim возвращает false, если сообщение уже было "занято" другим нажатием.
// Release снимает отметку, если решение так и не дошло до автора заявки.
type ClaimStore interface {
	Claim(ctx context.Context, messageKey, decidedBy string, at time.Time) (bool, error)
	Release(ctx context.Context, messageKey string) error
}

// NoopClaims воспроизводит поведение без защиты: каждое нажатие обрабатывается.
type NoopClaims struct{}

func (NoopClaims) Claim(ctx context.Context, messageKey, decidedBy string, at time.Time) (bool, error) {
	return true, nil
}

func (NoopClaims) Release(ctx context.Context, messageKey string) error {
	return nil
}

type memoryClaim struct {
	decidedBy string
	expires   time.Time
}

// MemoryClaims — локальный для процесса кэш решений с TTL. После рестарта пуст.
type MemoryClaims struct {
	mu     sync.Mutex
	ttl    time.Duration
	claims map[string]memoryClaim
}

func NewMemoryClaims(ttl time.Duration) *MemoryClaims {
	return &MemoryClaims{ttl: ttl, claims: make(map[string]memoryClaim)}
}

func (m *MemoryClaims) Claim(ctx context.Context, messageKey, decidedBy string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.claims[messageKey]; ok && at.Before(existing.expires) {
		return false, nil
	}
	m.claims[messageKey] = memoryClaim{decidedBy: decidedBy, expires: at.Add(m.ttl)}
	m.evict(at)
	return true, nil
}

func (m *MemoryClaims) Release(ctx context.Context, messageKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, messageKey)
	return nil
}

// evict чистит просроченные записи, чтобы карта не росла бесконечно.
func (m *MemoryClaims) evict(now time.Time) {
	for key, c := range m.claims {
		if !now.Before(c.expires) {
			delete(m.claims, key)
		}
	}
}

// Len — количество активных записей (для тестов и отладки).
func (m *MemoryClaims) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.claims)
}
