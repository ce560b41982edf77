package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/xela07ax/slack-approval-bot/internal/domain"
)

// Ответ zenquotes.io: [{"q": "...", "a": "...", "h": "..."}]
type zenQuote struct {
	Q string `json:"q"`
	A string `json:"a"`
}

// QuoteClient — "сырой" HTTP клиент API цитат, без ретраев.
// Надежность (ретраи, Circuit Breaker) добавляет engine.ReliabilityWrapper.
type QuoteClient struct {
	url    string
	client *http.Client
}

// NewQuoteClient создает экземпляр клиента
func NewQuoteClient(url string, client *http.Client) *QuoteClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &QuoteClient{url: url, client: client}
}

// Random реализует интерфейс engine.QuoteProvider
func (c *QuoteClient) Random(ctx context.Context) (domain.Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("quote: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("quote: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return domain.Quote{}, &ThrottleError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Second),
			Cause:      &StatusError{Code: resp.StatusCode},
		}
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, fmt.Errorf("quote: %w", &StatusError{Code: resp.StatusCode})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return domain.Quote{}, fmt.Errorf("quote: read body: %w", err)
	}

	var quotes []zenQuote
	if err := json.Unmarshal(body, &quotes); err != nil {
		return domain.Quote{}, fmt.Errorf("quote: decode body: %w", err)
	}
	if len(quotes) == 0 || quotes[0].Q == "" {
		return domain.Quote{}, errors.New("quote: empty response")
	}
	return domain.Quote{Text: quotes[0].Q, Author: quotes[0].A}, nil
}
