package chart

import (
	"fmt"
	"strings"
)

// Options is a chart option tree. Keys the resolver does not know about are
// carried through to the rendering surface untouched.
type Options map[string]any

type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

func ParseTheme(raw string) (Theme, error) {
	switch Theme(strings.ToLower(strings.TrimSpace(raw))) {
	case ThemeDark:
		return ThemeDark, nil
	case ThemeLight:
		return ThemeLight, nil
	default:
		return "", fmt.Errorf("unsupported theme: %s", raw)
	}
}

var DefaultPalette = []string{"#22c55e", "#d946ef", "#3b82f6", "#f59e0b", "#ef4444", "#8b5cf6"}

var legendPositions = map[string]struct{}{
	"top": {}, "bottom": {}, "left": {}, "right": {}, "none": {},
}

type palette struct {
	text     string
	title    string
	gridline string
}

func themePalette(theme Theme) palette {
	if theme == ThemeLight {
		return palette{text: "#64748b", title: "#1e293b", gridline: "#e2e8f0"}
	}
	return palette{text: "#94a3b8", title: "#f1f5f9", gridline: "#334155"}
}

// BaseOptions is the fixed layer every chart starts from.
func BaseOptions(theme Theme) Options {
	colors := themePalette(theme)
	axis := func() Options {
		return Options{
			"textStyle":      Options{"color": colors.text},
			"titleTextStyle": Options{"color": colors.text},
			"gridlines":      Options{"color": colors.gridline},
		}
	}
	hAxis := axis()
	hAxis["format"] = "MMM d, HH:mm"

	seriesColors := make([]any, len(DefaultPalette))
	for i, color := range DefaultPalette {
		seriesColors[i] = color
	}

	return Options{
		"backgroundColor": "transparent",
		"chartArea":       Options{"width": "85%", "height": "75%"},
		"legend": Options{
			"position":  "bottom",
			"textStyle": Options{"color": colors.text, "fontSize": 12},
		},
		"titleTextStyle": Options{"color": colors.title, "fontSize": 14, "bold": true},
		"hAxis":          hAxis,
		"vAxis":          axis(),
		"colors":         seriesColors,
		"fontName":       "DM Sans",
	}
}

// KindOptions is the per-kind layer applied on top of the base.
func KindOptions(kind Kind) Options {
	switch kind {
	case KindLine:
		return Options{"curveType": "function", "pointSize": 5}
	case KindPie:
		return Options{"pieHole": 0.4, "pieSliceText": "percentage"}
	case KindArea:
		return Options{"areaOpacity": 0.3}
	default:
		return Options{}
	}
}

// ResolveOptions layers base, kind extras and caller overrides, in that
// order. Later layers win key by key and nested objects merge recursively.
func ResolveOptions(kind Kind, theme Theme, overrides map[string]any) Options {
	resolved := BaseOptions(theme)
	resolved = Merge(resolved, KindOptions(kind))
	return Merge(resolved, overrides)
}

// Merge returns base with overrides applied key by key. Neither input is
// modified. A nil override value replaces the base value.
func Merge(base Options, overrides map[string]any) Options {
	out := make(Options, len(base)+len(overrides))
	for key, value := range base {
		out[key] = cloneValue(value)
	}
	for key, value := range overrides {
		nested, isMap := asMap(value)
		existing, existingIsMap := asMap(out[key])
		if isMap && existingIsMap {
			out[key] = Merge(existing, nested)
			continue
		}
		out[key] = cloneValue(value)
	}
	return out
}

// ValidateOptions checks the option keys with a known meaning.
func ValidateOptions(options map[string]any) error {
	if raw, ok := options["title"]; ok && raw != nil {
		if _, isString := raw.(string); !isString {
			return fmt.Errorf("title must be a string")
		}
	}
	if raw, ok := options["colors"]; ok && raw != nil {
		if err := validateColors(raw); err != nil {
			return err
		}
	}
	if raw, ok := options["legend"]; ok && raw != nil {
		legend, isMap := asMap(raw)
		if !isMap {
			return fmt.Errorf("legend must be an object")
		}
		if position, ok := legend["position"]; ok && position != nil {
			text, isString := position.(string)
			if _, known := legendPositions[text]; !isString || !known {
				return fmt.Errorf("legend.position must be one of top, bottom, left, right, none")
			}
		}
	}
	for _, axis := range []string{"hAxis", "vAxis"} {
		raw, ok := options[axis]
		if !ok || raw == nil {
			continue
		}
		values, isMap := asMap(raw)
		if !isMap {
			return fmt.Errorf("%s must be an object", axis)
		}
		if title, ok := values["title"]; ok && title != nil {
			if _, isString := title.(string); !isString {
				return fmt.Errorf("%s.title must be a string", axis)
			}
		}
	}
	return nil
}

func validateColors(raw any) error {
	switch typed := raw.(type) {
	case []string:
		return nil
	case []any:
		for i, item := range typed {
			if _, ok := item.(string); !ok {
				return fmt.Errorf("colors[%d] must be a string", i)
			}
		}
		return nil
	default:
		return fmt.Errorf("colors must be a list of strings")
	}
}

func asMap(value any) (map[string]any, bool) {
	switch typed := value.(type) {
	case Options:
		return typed, true
	case map[string]any:
		return typed, true
	default:
		return nil, false
	}
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case Options:
		return Merge(nil, typed)
	case map[string]any:
		return Merge(nil, typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return typed
	}
}
