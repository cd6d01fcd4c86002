package chart

import (
	"encoding/json"
	"regexp"
)

// ColumnType is the semantic type a column is drawn with.
type ColumnType string

const (
	ColumnNumber   ColumnType = "number"
	ColumnDatetime ColumnType = "datetime"
	ColumnString   ColumnType = "string"
)

// Anchored at the start only, so trailing fractions and zones still match.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`),
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}`),
	regexp.MustCompile(`^\d{4}/\d{2}/\d{2}`),
	regexp.MustCompile(`^\d{2}/\d{2}/\d{4}`),
}

func InferColumnType(value any) ColumnType {
	switch typed := value.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return ColumnNumber
	case string:
		if looksLikeDate(typed) {
			return ColumnDatetime
		}
	}
	return ColumnString
}

func looksLikeDate(value string) bool {
	for _, pattern := range datePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}
