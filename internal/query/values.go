package query

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"
)

// NormalizeValue reduces a driver value to a string, int64, float64, bool or
// nil.
func NormalizeValue(value any) any {
	switch typed := value.(type) {
	case nil:
		return nil
	case string, bool, int64, float64:
		return typed
	case []byte:
		return string(typed)
	case int:
		return int64(typed)
	case int8:
		return int64(typed)
	case int16:
		return int64(typed)
	case int32:
		return int64(typed)
	case uint:
		return unsignedValue(uint64(typed))
	case uint8:
		return int64(typed)
	case uint16:
		return int64(typed)
	case uint32:
		return int64(typed)
	case uint64:
		return unsignedValue(typed)
	case float32:
		return float64(typed)
	case time.Time:
		return typed.Format(time.RFC3339Nano)
	case json.Number:
		if asInt, err := typed.Int64(); err == nil {
			return asInt
		}
		if asFloat, err := typed.Float64(); err == nil {
			return asFloat
		}
		return typed.String()
	case [16]byte:
		return formatUUID(typed)
	case driver.Valuer:
		inner, err := typed.Value()
		if err != nil {
			return fmt.Sprint(typed)
		}
		if _, loops := inner.(driver.Valuer); loops {
			return fmt.Sprint(inner)
		}
		return NormalizeValue(inner)
	case fmt.Stringer:
		return typed.String()
	}

	switch reflect.ValueOf(value).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		encoded, err := json.Marshal(value)
		if err == nil {
			return string(encoded)
		}
	case reflect.Pointer:
		ref := reflect.ValueOf(value)
		if ref.IsNil() {
			return nil
		}
		return NormalizeValue(ref.Elem().Interface())
	}
	return fmt.Sprint(value)
}

// ScanRows drains rows into name-keyed records. The caller keeps ownership of
// rows and must close it.
func ScanRows(rows *sql.Rows) ([]string, []Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("query columns: %w", err)
	}

	out := make([]Row, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, BuildRow(columns, values))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}
	return columns, out, nil
}

func BuildRow(columns []string, values []any) Row {
	row := make(Row, len(columns))
	for i, column := range columns {
		if i >= len(values) {
			row[column] = nil
			continue
		}
		row[column] = NormalizeValue(values[i])
	}
	return row
}

// unsignedValue keeps values above MaxInt64 as float64 rather than letting
// them wrap negative.
func unsignedValue(v uint64) any {
	if v > math.MaxInt64 {
		return float64(v)
	}
	return int64(v)
}

func formatUUID(b [16]byte) string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
