package domain

import "fmt"

// Quote — случайная цитата из внешнего API.
type Quote struct {
	Text   string
	Author string
}

// Markdown форматирует цитату для чата.
func (q Quote) Markdown() string {
	if q.Author == "" {
		return "> " + q.Text
	}
	return fmt.Sprintf("> %s\n— %s", q.Text, q.Author)
}
