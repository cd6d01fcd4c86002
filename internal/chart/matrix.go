package chart

import "github.com/querydash/querydash/internal/query"

// Column is a typed header cell.
type Column struct {
	Type  ColumnType `json:"type"`
	Label string     `json:"label"`
}

// InferColumnTypes classifies every column from the first row. Later rows are
// not consulted, so a null in row one pins that column to string.
func InferColumnTypes(result query.Result) []ColumnType {
	if len(result.Rows) == 0 {
		return nil
	}
	first := result.Rows[0]
	types := make([]ColumnType, len(result.Columns))
	for i, column := range result.Columns {
		types[i] = InferColumnType(first[column])
	}
	return types
}

// TypedMatrix builds a matrix with a typed header. String cells in datetime
// columns become DateValue; everything else passes through. An empty result
// yields only the plain column names.
func TypedMatrix(result query.Result) Matrix {
	if len(result.Rows) == 0 {
		return Matrix{namesRow(result.Columns)}
	}

	types := InferColumnTypes(result)
	header := make([]any, len(result.Columns))
	for i, column := range result.Columns {
		header[i] = Column{Type: types[i], Label: column}
	}

	matrix := make(Matrix, 0, len(result.Rows)+1)
	matrix = append(matrix, header)
	for _, row := range result.Rows {
		cells := make([]any, len(result.Columns))
		for i, column := range result.Columns {
			value := row[column]
			if types[i] == ColumnDatetime {
				if text, ok := value.(string); ok {
					cells[i] = ParseDate(text)
					continue
				}
			}
			cells[i] = value
		}
		matrix = append(matrix, cells)
	}
	return matrix
}

// SimpleMatrix builds a matrix of raw values under a plain name header.
func SimpleMatrix(result query.Result) Matrix {
	matrix := make(Matrix, 0, len(result.Rows)+1)
	matrix = append(matrix, namesRow(result.Columns))
	for _, row := range result.Rows {
		cells := make([]any, len(result.Columns))
		for i, column := range result.Columns {
			cells[i] = row[column]
		}
		matrix = append(matrix, cells)
	}
	return matrix
}

func namesRow(columns []string) []any {
	out := make([]any, len(columns))
	for i, column := range columns {
		out[i] = column
	}
	return out
}
