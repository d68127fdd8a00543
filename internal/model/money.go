package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseAmountCents преобразует сумму из ответа распознавания в копейки.
// Принимает строку вида "584.00" или число; сумма с более чем двумя знаками
// после запятой или нечисловым содержимым считается отсутствующей.
func ParseAmountCents(v any) (int64, error) {
	switch val := v.(type) {
	case string:
		return parseAmountString(val)
	case json.Number:
		return parseAmountString(val.String())
	case float64:
		cents := math.Round(val * 100)
		if math.Abs(val*100-cents) > 1e-6 {
			return 0, fmt.Errorf("amount %v has more than two decimal places", val)
		}
		if cents < 0 {
			return 0, fmt.Errorf("amount %v is negative", val)
		}
		return int64(cents), nil
	default:
		return 0, fmt.Errorf("amount has unsupported type %T", v)
	}
}

func parseAmountString(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("amount is empty")
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("amount %q is negative", s)
	}

	whole, frac, hasFrac := strings.Cut(s, ".")

	cents, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q is not a number", s)
	}
	cents *= 100

	if !hasFrac {
		return cents, nil
	}
	if len(frac) == 0 || len(frac) > 2 {
		return 0, fmt.Errorf("amount %q must have at most two decimal places", s)
	}

	fracVal, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q is not a number", s)
	}
	if len(frac) == 1 {
		fracVal *= 10
	}

	return cents + fracVal, nil
}

// AmountFromCents возвращает сумму в денежных единицах для внешних ответов.
func AmountFromCents(cents int64) float64 {
	return float64(cents) / 100
}
