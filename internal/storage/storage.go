// Package storage holds the object store contract used for widget result
// exports and the key layout those exports are written under.
package storage

import (
	"context"
	"errors"
	"io"
	"strconv"
	"time"
)

const ParquetContentType = "application/vnd.apache.parquet"

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	// Metadata is only populated by Stat.
	Metadata map[string]string
}

type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// ExportPutOptions tags a parquet export with the widget it came from so
// objects can be traced back without the catalog.
func ExportPutOptions(dashboardID, widgetID string, rowCount int64) PutOptions {
	return PutOptions{
		ContentType: ParquetContentType,
		Metadata: map[string]string{
			"dashboard-id": dashboardID,
			"widget-id":    widgetID,
			"row-count":    strconv.FormatInt(rowCount, 10),
		},
	}
}

// Uploader is the write side the export service needs.
type Uploader interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
}

type Presigner interface {
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}
