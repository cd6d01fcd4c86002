// Package export writes widget query results to the object store as Parquet.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"github.com/querydash/querydash/internal/chart"
	"github.com/querydash/querydash/internal/query"
)

type ParquetEncodeResult struct {
	Data     []byte
	RowCount int64
	Columns  []EncodedColumn
}

// EncodedColumn records the physical type chosen for one result column.
type EncodedColumn struct {
	Name   string
	Source string
	Kind   ColumnKind
}

type ColumnKind string

const (
	KindDouble    ColumnKind = "double"
	KindTimestamp ColumnKind = "timestamp_ms"
	KindString    ColumnKind = "string"
)

// EncodeResultToParquet writes result as a single Parquet file. Column kinds
// come from the first row. A number or datetime column falls back to string
// when any later value does not fit. Every column is optional so nulls
// survive.
func EncodeResultToParquet(result query.Result) (ParquetEncodeResult, error) {
	if len(result.Columns) == 0 {
		return ParquetEncodeResult{}, fmt.Errorf("result has no columns")
	}

	columns := planColumns(result)
	group := parquet.Group{}
	for _, column := range columns {
		group[column.Name] = parquet.Optional(nodeFor(column.Kind))
	}
	schema := parquet.NewSchema("query_result", group)

	indexes := make([]int, len(columns))
	for i, column := range columns {
		leaf, ok := schema.Lookup(column.Name)
		if !ok {
			return ParquetEncodeResult{}, fmt.Errorf("schema is missing column %q", column.Name)
		}
		indexes[i] = leaf.ColumnIndex
	}

	rows := make([]parquet.Row, 0, len(result.Rows))
	for _, source := range result.Rows {
		row := make(parquet.Row, len(columns))
		for i, column := range columns {
			row[indexes[i]] = encodeValue(column.Kind, source[column.Source]).Level(0, definitionLevel(source[column.Source]), indexes[i])
		}
		rows = append(rows, row)
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewWriter(buf, schema)
	if len(rows) > 0 {
		if _, err := writer.WriteRows(rows); err != nil {
			return ParquetEncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return ParquetEncodeResult{
		Data:     buf.Bytes(),
		RowCount: int64(len(rows)),
		Columns:  columns,
	}, nil
}

func planColumns(result query.Result) []EncodedColumn {
	types := chart.InferColumnTypes(result)
	seen := make(map[string]int, len(result.Columns))
	columns := make([]EncodedColumn, 0, len(result.Columns))
	for i, source := range result.Columns {
		kind := KindString
		if types != nil {
			switch types[i] {
			case chart.ColumnNumber:
				kind = KindDouble
			case chart.ColumnDatetime:
				kind = KindTimestamp
			}
		}
		for _, row := range result.Rows {
			if !fits(kind, row[source]) {
				kind = KindString
				break
			}
		}
		columns = append(columns, EncodedColumn{Name: uniqueName(source, i, seen), Source: source, Kind: kind})
	}
	return columns
}

// uniqueName returns source, or source_N with the lowest N not already taken.
func uniqueName(source string, position int, seen map[string]int) string {
	base := source
	if base == "" {
		base = "column_" + strconv.Itoa(position+1)
	}
	name := base
	for suffix := seen[base] + 1; ; suffix++ {
		if _, taken := seen[name]; !taken {
			break
		}
		name = base + "_" + strconv.Itoa(suffix)
	}
	seen[base]++
	if name != base {
		seen[name]++
	}
	return name
}

func nodeFor(kind ColumnKind) parquet.Node {
	switch kind {
	case KindDouble:
		return parquet.Leaf(parquet.DoubleType)
	case KindTimestamp:
		return parquet.Timestamp(parquet.Millisecond)
	default:
		return parquet.String()
	}
}

func fits(kind ColumnKind, value any) bool {
	if value == nil {
		return true
	}
	switch kind {
	case KindDouble:
		_, ok := asFloat(value)
		return ok
	case KindTimestamp:
		text, ok := value.(string)
		return ok && chart.ParseDate(text).Valid
	default:
		return true
	}
}

func definitionLevel(value any) int {
	if value == nil {
		return 0
	}
	return 1
}

func encodeValue(kind ColumnKind, value any) parquet.Value {
	if value == nil {
		return parquet.NullValue()
	}
	switch kind {
	case KindDouble:
		number, _ := asFloat(value)
		return parquet.DoubleValue(number)
	case KindTimestamp:
		return parquet.Int64Value(chart.ParseDate(value.(string)).Time.UnixMilli())
	default:
		return parquet.ByteArrayValue([]byte(asString(value)))
	}
}

func asFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case int:
		return float64(typed), true
	case int8:
		return float64(typed), true
	case int16:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case uint:
		return float64(typed), true
	case uint8:
		return float64(typed), true
	case uint16:
		return float64(typed), true
	case uint32:
		return float64(typed), true
	case uint64:
		return float64(typed), true
	case float32:
		return float64(typed), true
	case float64:
		return typed, true
	case json.Number:
		parsed, err := typed.Float64()
		return parsed, err == nil
	default:
		return 0, false
	}
}

func asString(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	default:
		return fmt.Sprint(typed)
	}
}
