package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/querydash/querydash/internal/catalog"
	"github.com/querydash/querydash/internal/observability"
	"github.com/querydash/querydash/internal/query"
	"github.com/querydash/querydash/internal/storage"
)

// Recorder persists an audit row per export.
type Recorder interface {
	RecordExport(ctx context.Context, in catalog.RecordExportInput) (catalog.ExportRecord, error)
}

type Options struct {
	PresignExpiry time.Duration
	Logger        *slog.Logger
	Now           func() time.Time
}

type Service struct {
	store         storage.Uploader
	recorder      Recorder
	presignExpiry time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// Summary describes one completed export.
type Summary struct {
	ObjectKey   string    `json:"object_key"`
	SizeBytes   int64     `json:"size_bytes"`
	RowCount    int64     `json:"row_count"`
	ETag        string    `json:"etag,omitempty"`
	DownloadURL string    `json:"download_url,omitempty"`
	ExportedAt  time.Time `json:"exported_at"`
}

func NewService(store storage.Uploader, recorder Recorder, opts Options) (*Service, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:         store,
		recorder:      recorder,
		presignExpiry: opts.PresignExpiry,
		logger:        logger,
		now:           now,
	}, nil
}

// ExportWidget encodes result and uploads it under the widget's export path.
// Recording the audit row and presigning are best effort once the object is
// stored.
func (s *Service) ExportWidget(ctx context.Context, widget catalog.Widget, result query.Result) (summary Summary, err error) {
	defer func() {
		observability.ObserveExport(summary.SizeBytes, err)
	}()

	exportedAt := s.now().UTC()
	key, err := storage.BuildExportPath(widget.DashboardID, widget.WidgetID, exportedAt)
	if err != nil {
		return Summary{}, fmt.Errorf("build export path: %w", err)
	}
	encoded, err := EncodeResultToParquet(result)
	if err != nil {
		return Summary{}, fmt.Errorf("encode export: %w", err)
	}

	info, err := s.store.Put(ctx, key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.ExportPutOptions(widget.DashboardID, widget.WidgetID, encoded.RowCount))
	if err != nil {
		return Summary{}, fmt.Errorf("upload export: %w", err)
	}

	summary = Summary{
		ObjectKey:  key,
		SizeBytes:  int64(len(encoded.Data)),
		RowCount:   encoded.RowCount,
		ETag:       info.ETag,
		ExportedAt: exportedAt,
	}

	if s.recorder != nil {
		if _, recordErr := s.recorder.RecordExport(ctx, catalog.RecordExportInput{
			WidgetID:  widget.WidgetID,
			ObjectKey: key,
			RowCount:  summary.RowCount,
			SizeBytes: summary.SizeBytes,
		}); recordErr != nil {
			s.logger.WarnContext(ctx, "record export failed",
				slog.String("trace_id", observability.TraceIDFromContext(ctx)),
				slog.String("widget_id", widget.WidgetID),
				slog.String("error", recordErr.Error()),
			)
		}
	}

	if presigner, ok := s.store.(storage.Presigner); ok && s.presignExpiry > 0 {
		link, presignErr := presigner.PresignGet(ctx, key, s.presignExpiry)
		if presignErr != nil {
			s.logger.WarnContext(ctx, "presign export failed",
				slog.String("trace_id", observability.TraceIDFromContext(ctx)),
				slog.String("object_key", key),
				slog.String("error", presignErr.Error()),
			)
		} else {
			summary.DownloadURL = link
		}
	}

	s.logger.InfoContext(ctx, "widget exported",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("widget_id", widget.WidgetID),
		slog.String("object_key", key),
		slog.Int64("row_count", summary.RowCount),
		slog.Int64("size_bytes", summary.SizeBytes),
	)
	return summary, nil
}
