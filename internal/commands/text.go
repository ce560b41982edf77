package commands

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xela07ax/slack-approval-bot/internal/domain"
)

var ErrUsage = errors.New("usage")

// Greet — ответ на /hello.
func Greet(userID string) string {
	return fmt.Sprintf("Hello, %s!", domain.Mention(userID))
}

// Echo возвращает аргументы команды как есть.
func Echo(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: /echo <text>", ErrUsage)
	}
	return text, nil
}

// Sum складывает целые числа, разделенные пробелами или запятыми.
func Sum(text string) (int64, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	if len(fields) == 0 {
		return 0, fmt.Errorf("%w: /sum <int> <int> ...", ErrUsage)
	}

	var total int64
	for _, f := range fields {
		n, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", f)
		}
		if (n > 0 && total > math.MaxInt64-n) || (n < 0 && total < math.MinInt64-n) {
			return 0, errors.New("result overflows a 64-bit integer")
		}
		total += n
	}
	return total, nil
}
