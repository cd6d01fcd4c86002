package chart

import "testing"

func TestResolveOptionsDefaults(t *testing.T) {
	resolved := ResolveOptions(KindLine, ThemeDark, nil)

	if resolved["backgroundColor"] != "transparent" {
		t.Fatalf("backgroundColor = %#v", resolved["backgroundColor"])
	}
	if resolved["curveType"] != "function" || resolved["pointSize"] != 5 {
		t.Fatalf("line extras missing: %#v", resolved)
	}
	legend := resolved["legend"].(Options)
	if legend["position"] != "bottom" {
		t.Fatalf("legend.position = %#v", legend["position"])
	}
	textStyle := legend["textStyle"].(Options)
	if textStyle["color"] != "#94a3b8" {
		t.Fatalf("legend text color = %#v", textStyle["color"])
	}
	hAxis := resolved["hAxis"].(Options)
	if hAxis["format"] != "MMM d, HH:mm" {
		t.Fatalf("hAxis.format = %#v", hAxis["format"])
	}
	colors := resolved["colors"].([]any)
	if len(colors) != len(DefaultPalette) || colors[0] != "#22c55e" {
		t.Fatalf("colors = %#v", colors)
	}
}

func TestResolveOptionsCallerWins(t *testing.T) {
	overrides := map[string]any{
		"title":     "Revenue",
		"legend":    map[string]any{"position": "top"},
		"hAxis":     map[string]any{"title": "Month"},
		"colors":    []any{"#000000"},
		"pieHole":   0.2,
		"isStacked": true,
	}
	resolved := ResolveOptions(KindPie, ThemeLight, overrides)

	if resolved["title"] != "Revenue" {
		t.Fatalf("title = %#v", resolved["title"])
	}
	legend := resolved["legend"].(Options)
	if legend["position"] != "top" {
		t.Fatalf("legend.position = %#v", legend["position"])
	}
	if legend["textStyle"].(Options)["color"] != "#64748b" {
		t.Fatalf("expected base legend text style to survive merge")
	}
	hAxis := resolved["hAxis"].(Options)
	if hAxis["title"] != "Month" || hAxis["format"] != "MMM d, HH:mm" {
		t.Fatalf("hAxis = %#v", hAxis)
	}
	if colors := resolved["colors"].([]any); len(colors) != 1 {
		t.Fatalf("colors = %#v", colors)
	}
	if resolved["pieHole"] != 0.2 || resolved["pieSliceText"] != "percentage" {
		t.Fatalf("pie options = %#v", resolved)
	}
	if resolved["isStacked"] != true {
		t.Fatalf("expected unknown key to pass through")
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	base := BaseOptions(ThemeDark)
	overrides := map[string]any{"legend": map[string]any{"position": "none"}}
	_ = Merge(base, overrides)

	if base["legend"].(Options)["position"] != "bottom" {
		t.Fatalf("base mutated")
	}
	if _, ok := overrides["legend"].(map[string]any)["textStyle"]; ok {
		t.Fatalf("overrides mutated")
	}
}

func TestValidateOptions(t *testing.T) {
	valid := []map[string]any{
		nil,
		{"title": "x", "colors": []any{"#fff"}, "legend": map[string]any{"position": "none"}},
		{"hAxis": map[string]any{"title": "t"}, "custom": 1},
	}
	for _, options := range valid {
		if err := ValidateOptions(options); err != nil {
			t.Fatalf("ValidateOptions(%#v) error = %v", options, err)
		}
	}

	invalid := []map[string]any{
		{"title": 3},
		{"colors": "red"},
		{"colors": []any{"#fff", 1}},
		{"legend": map[string]any{"position": "center"}},
		{"legend": "top"},
		{"vAxis": map[string]any{"title": false}},
	}
	for _, options := range invalid {
		if err := ValidateOptions(options); err == nil {
			t.Fatalf("expected error for %#v", options)
		}
	}
}

func TestParseTheme(t *testing.T) {
	if theme, err := ParseTheme("Light"); err != nil || theme != ThemeLight {
		t.Fatalf("ParseTheme() = %q, %v", theme, err)
	}
	if _, err := ParseTheme("sepia"); err == nil {
		t.Fatalf("expected error")
	}
}
