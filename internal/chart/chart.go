// Package chart reshapes normalized query results into matrices a charting
// surface can draw, and resolves the display options that go with them.
package chart

import (
	"errors"
	"fmt"
	"strings"

	"github.com/querydash/querydash/internal/query"
)

// Kind is a widget's visual form.
type Kind string

const (
	KindLine  Kind = "line"
	KindBar   Kind = "bar"
	KindPie   Kind = "pie"
	KindArea  Kind = "area"
	KindTable Kind = "table"
	KindStat  Kind = "stat"
)

var kinds = []Kind{KindLine, KindBar, KindPie, KindArea, KindTable, KindStat}

func ParseKind(raw string) (Kind, error) {
	candidate := Kind(strings.ToLower(strings.TrimSpace(raw)))
	for _, kind := range kinds {
		if candidate == kind {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unsupported widget type: %s", raw)
}

func (k Kind) Valid() bool {
	_, err := ParseKind(string(k))
	return err == nil
}

// Matrix is a header row followed by one row per result record.
type Matrix [][]any

// Transformer turns a result into a matrix.
type Transformer func(result query.Result) Matrix

// ErrNoMatrix is returned by Transform for kinds rendered without a matrix.
var ErrNoMatrix = errors.New("chart: kind has no matrix form")

// TransformerFor maps a kind to its transform. Temporal kinds get typed
// columns, categorical and tabular kinds get raw values.
func TransformerFor(kind Kind) (Transformer, error) {
	switch kind {
	case KindLine, KindArea:
		return TypedMatrix, nil
	case KindBar, KindPie, KindTable:
		return SimpleMatrix, nil
	case KindStat:
		return nil, fmt.Errorf("%w: %s", ErrNoMatrix, kind)
	default:
		return nil, fmt.Errorf("unsupported widget type: %s", kind)
	}
}

func Transform(kind Kind, result query.Result) (Matrix, error) {
	transformer, err := TransformerFor(kind)
	if err != nil {
		return nil, err
	}
	return transformer(result), nil
}
