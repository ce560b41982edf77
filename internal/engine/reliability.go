package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/slack-approval-bot/internal/connectors"
	"github.com/xela07ax/slack-approval-bot/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// QuoteProvider — источник случайных цитат.
type QuoteProvider interface {
	Random(ctx context.Context) (domain.Quote, error)
}

// ReliabilitySettings — параметры обертки над внешним API.
type ReliabilitySettings struct {
	Name       string
	Attempts   uint
	Timeout    time.Duration // на одну попытку
	RatePerSec float64
	Burst      int
}

// ReliabilityWrapper: Rate Limiter -> Circuit Breaker -> Retries -> Timeout.
// Применяется только к чтению (цитаты); доставка сообщений не ретраится.
type ReliabilityWrapper struct {
	next     QuoteProvider
	cb       *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	attempts uint
	timeout  time.Duration
}

func NewReliabilityWrapper(next QuoteProvider, s ReliabilitySettings, metrics *Metrics, logger *zap.Logger) *ReliabilityWrapper {
	if s.Attempts == 0 {
		s.Attempts = 1
	}
	if s.Timeout <= 0 {
		s.Timeout = 10 * time.Second
	}
	if s.RatePerSec <= 0 {
		s.RatePerSec = 5
	}
	if s.Burst <= 0 {
		s.Burst = 1
	}
	log := logger.Named("reliability")

	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if metrics != nil {
				metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})

	return &ReliabilityWrapper{
		next:     next,
		cb:       cb,
		limiter:  rate.NewLimiter(rate.Limit(s.RatePerSec), s.Burst),
		attempts: s.Attempts,
		timeout:  s.Timeout,
	}
}

// Random реализует QuoteProvider поверх защищенного вызова.
func (w *ReliabilityWrapper) Random(ctx context.Context) (domain.Quote, error) {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return domain.Quote{}, fmt.Errorf("rate limit exceeded: %w", err)
	}

	// 2. Circuit Breaker
	result, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.attempts),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// API сам сказал, сколько ждать
				var tErr *connectors.ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}
				return retry.BackOffDelay(n, err, config)
			}),
			retry.RetryIf(retryable),
		)

		var quote domain.Quote
		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, w.timeout)
			defer cancel()

			var callErr error
			quote, callErr = w.next.Random(tCtx)
			return callErr
		})
		return quote, retryErr
	})
	if err != nil {
		return domain.Quote{}, err
	}
	return result.(domain.Quote), nil
}

// retryable: повторяем только 429, 5xx и сетевые ошибки.
// 4xx, битый JSON и пустой ответ повтором не лечатся.
func retryable(err error) bool {
	var tErr *connectors.ThrottleError
	if errors.As(err, &tErr) {
		return true
	}
	var sErr *connectors.StatusError
	if errors.As(err, &sErr) {
		return sErr.Code >= http.StatusInternalServerError
	}
	var uErr *url.Error
	return errors.As(err, &uErr)
}
