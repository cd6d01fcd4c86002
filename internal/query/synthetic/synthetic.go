// Package synthetic serves fixed sample results for widgets that have no
// connection or query attached yet.
package synthetic

import "github.com/querydash/querydash/internal/query"

// Generate returns the sample result for a widget kind. Unknown kinds get an
// empty result.
func Generate(kind string) query.Result {
	switch kind {
	case "line", "area":
		return build([]string{"month", "sales", "revenue"}, [][]any{
			{"Jan", int64(100), int64(5000)},
			{"Feb", int64(120), int64(6000)},
			{"Mar", int64(90), int64(4500)},
			{"Apr", int64(150), int64(7500)},
			{"May", int64(180), int64(9000)},
			{"Jun", int64(160), int64(8000)},
		})
	case "bar":
		return build([]string{"category", "value"}, [][]any{
			{"Product A", int64(420)},
			{"Product B", int64(380)},
			{"Product C", int64(290)},
			{"Product D", int64(510)},
			{"Product E", int64(350)},
		})
	case "pie":
		return build([]string{"segment", "percentage"}, [][]any{
			{"Desktop", int64(45)},
			{"Mobile", int64(35)},
			{"Tablet", int64(15)},
			{"Other", int64(5)},
		})
	case "table":
		return build([]string{"id", "name", "email", "status"}, [][]any{
			{int64(1), "John Doe", "john@example.com", "Active"},
			{int64(2), "Jane Smith", "jane@example.com", "Pending"},
			{int64(3), "Bob Johnson", "bob@example.com", "Active"},
			{int64(4), "Alice Brown", "alice@example.com", "Inactive"},
			{int64(5), "Charlie Wilson", "charlie@example.com", "Active"},
		})
	case "stat":
		return build([]string{"value"}, [][]any{{int64(12847)}})
	default:
		return query.EmptyResult()
	}
}

func build(columns []string, values [][]any) query.Result {
	rows := make([]query.Row, 0, len(values))
	for _, rowValues := range values {
		rows = append(rows, query.BuildRow(columns, rowValues))
	}
	return query.Result{Columns: columns, Rows: rows, RowCount: int64(len(rows))}
}
