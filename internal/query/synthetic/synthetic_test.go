package synthetic

import "testing"

func TestGenerateShapes(t *testing.T) {
	cases := []struct {
		kind    string
		columns []string
		rows    int
	}{
		{kind: "line", columns: []string{"month", "sales", "revenue"}, rows: 6},
		{kind: "area", columns: []string{"month", "sales", "revenue"}, rows: 6},
		{kind: "bar", columns: []string{"category", "value"}, rows: 5},
		{kind: "pie", columns: []string{"segment", "percentage"}, rows: 4},
		{kind: "table", columns: []string{"id", "name", "email", "status"}, rows: 5},
		{kind: "stat", columns: []string{"value"}, rows: 1},
		{kind: "heatmap", columns: []string{}, rows: 0},
	}
	for _, tc := range cases {
		t.Run(tc.kind, func(t *testing.T) {
			result := Generate(tc.kind)
			if len(result.Columns) != len(tc.columns) {
				t.Fatalf("columns = %#v", result.Columns)
			}
			for i, column := range tc.columns {
				if result.Columns[i] != column {
					t.Fatalf("columns[%d] = %q, want %q", i, result.Columns[i], column)
				}
			}
			if len(result.Rows) != tc.rows || result.RowCount != int64(tc.rows) {
				t.Fatalf("rows = %d rowCount = %d", len(result.Rows), result.RowCount)
			}
			for _, row := range result.Rows {
				for _, column := range tc.columns {
					if _, ok := row[column]; !ok {
						t.Fatalf("row %#v missing column %q", row, column)
					}
				}
			}
		})
	}
}

func TestGenerateStatValue(t *testing.T) {
	result := Generate("stat")
	if result.Rows[0]["value"] != int64(12847) {
		t.Fatalf("value = %#v", result.Rows[0]["value"])
	}
}

func TestGenerateReturnsFreshRows(t *testing.T) {
	first := Generate("bar")
	first.Rows[0]["value"] = int64(0)
	if Generate("bar").Rows[0]["value"] != int64(420) {
		t.Fatalf("expected fixture to be unaffected by caller mutation")
	}
}
