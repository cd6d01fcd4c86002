// Package engine dispatches query execution and connection probes to the
// adapter registered for a connection's kind.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/querydash/querydash/internal/observability"
	"github.com/querydash/querydash/internal/query"
	"github.com/querydash/querydash/internal/query/mysql"
	"github.com/querydash/querydash/internal/query/postgres"
	"github.com/querydash/querydash/internal/query/sqlite"
)

const (
	DefaultProbeTimeout = 5 * time.Second
	probeStatement      = "SELECT 1"
)

type Options struct {
	ProbeTimeout time.Duration
	Logger       *slog.Logger
}

type Executor struct {
	adapters     map[query.Kind]query.Adapter
	probeTimeout time.Duration
	logger       *slog.Logger
}

func New(adapters map[query.Kind]query.Adapter, opts Options) *Executor {
	registered := make(map[query.Kind]query.Adapter, len(adapters))
	for kind, adapter := range adapters {
		if adapter != nil {
			registered[kind] = adapter
		}
	}
	probeTimeout := opts.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Executor{adapters: registered, probeTimeout: probeTimeout, logger: logger}
}

// NewDefault registers the postgres, mysql and sqlite adapters.
func NewDefault(opts Options) *Executor {
	return New(map[query.Kind]query.Adapter{
		query.KindPostgres: postgres.NewAdapter(),
		query.KindMySQL:    mysql.NewAdapter(),
		query.KindSQLite:   sqlite.NewAdapter(),
	}, opts)
}

// Execute opens a session, runs one statement and closes the session. The
// caller's context is the only deadline.
func (e *Executor) Execute(ctx context.Context, conn query.Connection, sqlText string) (query.Result, error) {
	start := time.Now()
	result, err := e.execute(ctx, conn, sqlText)
	outcome := outcomeOf(err)
	observability.ObserveQueryExecution(string(conn.Kind), outcome, result.RowCount, time.Since(start))

	attrs := []slog.Attr{
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("kind", string(conn.Kind)),
		slog.String("outcome", outcome),
		slog.Int64("row_count", result.RowCount),
		slog.Duration("duration", time.Since(start)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	e.logger.LogAttrs(ctx, slog.LevelDebug, "query executed", attrs...)
	return result, err
}

func (e *Executor) execute(ctx context.Context, conn query.Connection, sqlText string) (query.Result, error) {
	if strings.TrimSpace(sqlText) == "" {
		return query.Result{}, query.ExecutionErrorf("query is required")
	}
	adapter, err := e.adapterFor(conn.Kind)
	if err != nil {
		return query.Result{}, err
	}

	session, err := adapter.Open(ctx, conn, query.OpenOptions{})
	if err != nil {
		return query.Result{}, query.NewConnectionError(err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			e.logger.WarnContext(ctx, "close query session", slog.String("kind", string(conn.Kind)), slog.String("error", closeErr.Error()))
		}
	}()

	result, err := session.Run(ctx, sqlText)
	if err != nil {
		return query.Result{}, query.NewRunError(err)
	}
	if result.Columns == nil {
		result.Columns = []string{}
	}
	if result.Rows == nil {
		result.Rows = []query.Row{}
	}
	return result, nil
}

// TestConnection connects, runs a trivial statement and disconnects. It
// reports failures in the probe and never panics.
func (e *Executor) TestConnection(ctx context.Context, conn query.Connection) (probe query.Probe) {
	defer func() {
		if recovered := recover(); recovered != nil {
			probe = query.Probe{Success: false, Error: fmt.Sprint(recovered)}
			e.logger.ErrorContext(ctx, "connection probe panic", slog.String("kind", string(conn.Kind)), slog.String("panic", probe.Error))
		}
		observability.ObserveConnectionProbe(string(conn.Kind), probe.Success)
	}()

	if err := e.probe(ctx, conn); err != nil {
		e.logger.InfoContext(ctx, "connection probe failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("kind", string(conn.Kind)),
			slog.String("error", err.Error()),
		)
		return query.Probe{Success: false, Error: err.Error()}
	}
	return query.Probe{Success: true}
}

func (e *Executor) probe(ctx context.Context, conn query.Connection) error {
	adapter, err := e.adapterFor(conn.Kind)
	if err != nil {
		return err
	}

	opts := query.OpenOptions{}
	if conn.Kind != query.KindSQLite {
		opts.ConnectTimeout = e.probeTimeout
	}
	session, err := adapter.Open(ctx, conn, opts)
	if err != nil {
		return err
	}
	defer func() { _ = session.Close() }()

	_, err = session.Run(ctx, probeStatement)
	return err
}

func (e *Executor) adapterFor(kind query.Kind) (query.Adapter, error) {
	adapter, ok := e.adapters[kind]
	if !ok {
		return nil, query.ConnectionErrorf("unsupported connection type: %s", kind)
	}
	return adapter, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case query.IsConnectionError(err):
		return "connection_error"
	default:
		return "execution_error"
	}
}
