package chart

import (
	"encoding/json"
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/querydash/querydash/internal/query"
)

const DefaultPlaceholder = "—"

type StatOptions struct {
	Locale      language.Tag
	Placeholder string
}

// StatSummary renders the first column of the first row as display text.
// Numbers get locale grouping; a missing or null value becomes the
// placeholder.
func StatSummary(result query.Result, opts StatOptions) string {
	placeholder := opts.Placeholder
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}
	if len(result.Rows) == 0 || len(result.Columns) == 0 {
		return placeholder
	}

	value, ok := result.Rows[0][result.Columns[0]]
	if !ok || value == nil {
		return placeholder
	}

	locale := opts.Locale
	if locale == language.Und {
		locale = language.English
	}
	if numeric, ok := numericValue(value); ok {
		printer := message.NewPrinter(locale)
		return printer.Sprint(number.Decimal(numeric, number.MaxFractionDigits(3)))
	}
	return fmt.Sprint(value)
}

func numericValue(value any) (any, bool) {
	switch typed := value.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return typed, true
	case json.Number:
		if asInt, err := typed.Int64(); err == nil {
			return asInt, true
		}
		if asFloat, err := typed.Float64(); err == nil {
			return asFloat, true
		}
	}
	return nil, false
}
