package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

const exportRoot = "exports"

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildExportPath returns the object key for one widget result export:
// exports/<dashboard>/<widget>/date=YYYY-MM-DD/result-<unixms>.parquet, in UTC.
func BuildExportPath(dashboardID, widgetID string, at time.Time) (string, error) {
	if err := validatePathComponent(dashboardID, "dashboard id"); err != nil {
		return "", err
	}
	if err := validatePathComponent(widgetID, "widget id"); err != nil {
		return "", err
	}
	if at.IsZero() {
		return "", fmt.Errorf("export time is required")
	}

	ts := at.UTC()
	return path.Join(
		exportRoot,
		dashboardID,
		widgetID,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("result-%d.parquet", ts.UnixMilli()),
	), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
