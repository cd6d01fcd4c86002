package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/querydash/querydash/internal/catalog"
)

type dbTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

type Repository struct {
	db    *sql.DB
	newID func() string
}

var _ catalog.Repository = (*Repository)(nil)

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, newID: uuid.NewString}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping catalog db: %w", err)
	}
	return nil
}

const dashboardColumns = `dashboard_id, name, description, layout, created_at, updated_at`

func (r *Repository) CreateDashboard(ctx context.Context, in catalog.CreateDashboardInput) (catalog.Dashboard, error) {
	layout, err := encodeLayout(in.Layout)
	if err != nil {
		return catalog.Dashboard{}, fmt.Errorf("create dashboard: %w", err)
	}

	query := `
INSERT INTO dashboard (dashboard_id, name, description, layout)
VALUES ($1, $2, $3, $4::jsonb)
RETURNING ` + dashboardColumns
	dashboard, err := scanDashboard(r.db.QueryRowContext(ctx, query, r.newID(), in.Name, in.Description, layout))
	if err != nil {
		return catalog.Dashboard{}, fmt.Errorf("create dashboard: %w", err)
	}
	return dashboard, nil
}

func (r *Repository) GetDashboard(ctx context.Context, dashboardID string) (catalog.Dashboard, error) {
	if !validID(dashboardID) {
		return catalog.Dashboard{}, catalog.ErrNotFound
	}
	query := `
SELECT ` + dashboardColumns + `
FROM dashboard
WHERE dashboard_id = $1`
	dashboard, err := scanDashboard(r.db.QueryRowContext(ctx, query, dashboardID))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.Dashboard{}, err
		}
		return catalog.Dashboard{}, fmt.Errorf("get dashboard: %w", err)
	}
	return dashboard, nil
}

func (r *Repository) ListDashboards(ctx context.Context) ([]catalog.Dashboard, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+dashboardColumns+`
FROM dashboard
ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list dashboards: %w", err)
	}
	defer func() { _ = rows.Close() }()

	dashboards := make([]catalog.Dashboard, 0)
	for rows.Next() {
		dashboard, err := scanDashboard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dashboard row: %w", err)
		}
		dashboards = append(dashboards, dashboard)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dashboard rows: %w", err)
	}
	return dashboards, nil
}

func (r *Repository) UpdateDashboard(ctx context.Context, dashboardID string, in catalog.UpdateDashboardInput) (catalog.Dashboard, error) {
	if !validID(dashboardID) {
		return catalog.Dashboard{}, catalog.ErrNotFound
	}
	var layout any
	if in.Layout != nil {
		encoded, err := encodeLayout(*in.Layout)
		if err != nil {
			return catalog.Dashboard{}, fmt.Errorf("update dashboard: %w", err)
		}
		layout = encoded
	}

	query := `
UPDATE dashboard
SET name = COALESCE($2, name),
    description = COALESCE($3, description),
    layout = COALESCE($4::jsonb, layout),
    updated_at = now()
WHERE dashboard_id = $1
RETURNING ` + dashboardColumns
	dashboard, err := scanDashboard(r.db.QueryRowContext(ctx, query, dashboardID, nullable(in.Name), nullable(in.Description), layout))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.Dashboard{}, err
		}
		return catalog.Dashboard{}, fmt.Errorf("update dashboard: %w", err)
	}
	return dashboard, nil
}

// DeleteDashboard removes the dashboard and its widgets in one transaction.
func (r *Repository) DeleteDashboard(ctx context.Context, dashboardID string) (bool, error) {
	if !validID(dashboardID) {
		return false, nil
	}
	deleted := false
	err := r.WithTx(ctx, func(tx *TxRepository) error {
		if _, err := tx.q.ExecContext(ctx, `DELETE FROM widget WHERE dashboard_id = $1`, dashboardID); err != nil {
			return fmt.Errorf("delete dashboard widgets: %w", err)
		}
		var err error
		deleted, err = execDeleted(ctx, tx.q, `DELETE FROM dashboard WHERE dashboard_id = $1`, dashboardID)
		if err != nil {
			return fmt.Errorf("delete dashboard: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

const widgetColumns = `widget_id, dashboard_id, title, widget_type, config, connection_id, query_text, chart_options, created_at, updated_at`

func (r *Repository) CreateWidget(ctx context.Context, in catalog.CreateWidgetInput) (catalog.Widget, error) {
	if !validID(in.DashboardID) {
		return catalog.Widget{}, catalog.ErrNotFound
	}
	config, err := encodeObject(in.Config)
	if err != nil {
		return catalog.Widget{}, fmt.Errorf("create widget: encode config: %w", err)
	}
	chartOptions, err := encodeObject(in.ChartOptions)
	if err != nil {
		return catalog.Widget{}, fmt.Errorf("create widget: encode chart options: %w", err)
	}

	query := `
INSERT INTO widget (widget_id, dashboard_id, title, widget_type, config, connection_id, query_text, chart_options)
VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8::jsonb)
RETURNING ` + widgetColumns
	widget, err := scanWidget(r.db.QueryRowContext(ctx, query,
		r.newID(),
		in.DashboardID,
		in.Title,
		in.Type,
		config,
		nullable(in.ConnectionID),
		in.Query,
		chartOptions,
	))
	if err != nil {
		return catalog.Widget{}, fmt.Errorf("create widget: %w", err)
	}
	return widget, nil
}

func (r *Repository) GetWidget(ctx context.Context, widgetID string) (catalog.Widget, error) {
	if !validID(widgetID) {
		return catalog.Widget{}, catalog.ErrNotFound
	}
	query := `
SELECT ` + widgetColumns + `
FROM widget
WHERE widget_id = $1`
	widget, err := scanWidget(r.db.QueryRowContext(ctx, query, widgetID))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.Widget{}, err
		}
		return catalog.Widget{}, fmt.Errorf("get widget: %w", err)
	}
	return widget, nil
}

func (r *Repository) ListWidgetsByDashboard(ctx context.Context, dashboardID string) ([]catalog.Widget, error) {
	if !validID(dashboardID) {
		return []catalog.Widget{}, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+widgetColumns+`
FROM widget
WHERE dashboard_id = $1
ORDER BY created_at ASC`, dashboardID)
	if err != nil {
		return nil, fmt.Errorf("list widgets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	widgets := make([]catalog.Widget, 0)
	for rows.Next() {
		widget, err := scanWidget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan widget row: %w", err)
		}
		widgets = append(widgets, widget)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate widget rows: %w", err)
	}
	return widgets, nil
}

func (r *Repository) UpdateWidget(ctx context.Context, widgetID string, in catalog.UpdateWidgetInput) (catalog.Widget, error) {
	if !validID(widgetID) {
		return catalog.Widget{}, catalog.ErrNotFound
	}
	var config, chartOptions any
	if in.Config != nil {
		encoded, err := encodeObject(in.Config)
		if err != nil {
			return catalog.Widget{}, fmt.Errorf("update widget: encode config: %w", err)
		}
		config = encoded
	}
	if in.ChartOptions != nil {
		encoded, err := encodeObject(in.ChartOptions)
		if err != nil {
			return catalog.Widget{}, fmt.Errorf("update widget: encode chart options: %w", err)
		}
		chartOptions = encoded
	}

	query := `
UPDATE widget
SET title = COALESCE($2, title),
    widget_type = COALESCE($3, widget_type),
    config = COALESCE($4::jsonb, config),
    connection_id = CASE WHEN $5 THEN $6::uuid ELSE connection_id END,
    query_text = COALESCE($7, query_text),
    chart_options = COALESCE($8::jsonb, chart_options),
    updated_at = now()
WHERE widget_id = $1
RETURNING ` + widgetColumns
	widget, err := scanWidget(r.db.QueryRowContext(ctx, query,
		widgetID,
		nullable(in.Title),
		nullable(in.Type),
		config,
		in.SetConnectionID,
		nullable(in.ConnectionID),
		nullable(in.Query),
		chartOptions,
	))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.Widget{}, err
		}
		return catalog.Widget{}, fmt.Errorf("update widget: %w", err)
	}
	return widget, nil
}

func (r *Repository) DeleteWidget(ctx context.Context, widgetID string) (bool, error) {
	if !validID(widgetID) {
		return false, nil
	}
	deleted, err := execDeleted(ctx, r.db, `DELETE FROM widget WHERE widget_id = $1`, widgetID)
	if err != nil {
		return false, fmt.Errorf("delete widget: %w", err)
	}
	return deleted, nil
}

const connectionColumns = `connection_id, name, connection_type, host, port, database_name, username, password, ssl, created_at, updated_at`

func (r *Repository) CreateConnection(ctx context.Context, in catalog.CreateConnectionInput) (catalog.Connection, error) {
	query := `
INSERT INTO data_connection (connection_id, name, connection_type, host, port, database_name, username, password, ssl)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + connectionColumns
	conn, err := scanConnection(r.db.QueryRowContext(ctx, query,
		r.newID(),
		in.Name,
		in.Type,
		in.Host,
		in.Port,
		in.Database,
		in.Username,
		in.Password,
		in.SSL,
	))
	if err != nil {
		return catalog.Connection{}, fmt.Errorf("create connection: %w", err)
	}
	return conn, nil
}

func (r *Repository) GetConnection(ctx context.Context, connectionID string) (catalog.Connection, error) {
	if !validID(connectionID) {
		return catalog.Connection{}, catalog.ErrNotFound
	}
	query := `
SELECT ` + connectionColumns + `
FROM data_connection
WHERE connection_id = $1`
	conn, err := scanConnection(r.db.QueryRowContext(ctx, query, connectionID))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.Connection{}, err
		}
		return catalog.Connection{}, fmt.Errorf("get connection: %w", err)
	}
	return conn, nil
}

func (r *Repository) ListConnections(ctx context.Context) ([]catalog.Connection, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+connectionColumns+`
FROM data_connection
ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	conns := make([]catalog.Connection, 0)
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connection row: %w", err)
		}
		conns = append(conns, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connection rows: %w", err)
	}
	return conns, nil
}

func (r *Repository) UpdateConnection(ctx context.Context, connectionID string, in catalog.UpdateConnectionInput) (catalog.Connection, error) {
	if !validID(connectionID) {
		return catalog.Connection{}, catalog.ErrNotFound
	}
	query := `
UPDATE data_connection
SET name = COALESCE($2, name),
    host = COALESCE($3, host),
    port = COALESCE($4, port),
    database_name = COALESCE($5, database_name),
    username = COALESCE($6, username),
    password = COALESCE($7, password),
    ssl = COALESCE($8, ssl),
    updated_at = now()
WHERE connection_id = $1
RETURNING ` + connectionColumns
	conn, err := scanConnection(r.db.QueryRowContext(ctx, query,
		connectionID,
		nullable(in.Name),
		nullable(in.Host),
		nullable(in.Port),
		nullable(in.Database),
		nullable(in.Username),
		nullable(in.Password),
		nullable(in.SSL),
	))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.Connection{}, err
		}
		return catalog.Connection{}, fmt.Errorf("update connection: %w", err)
	}
	return conn, nil
}

// DeleteConnection removes the connection. Widgets that referenced it keep
// their query with connection_id cleared by the foreign key.
func (r *Repository) DeleteConnection(ctx context.Context, connectionID string) (bool, error) {
	if !validID(connectionID) {
		return false, nil
	}
	deleted, err := execDeleted(ctx, r.db, `DELETE FROM data_connection WHERE connection_id = $1`, connectionID)
	if err != nil {
		return false, fmt.Errorf("delete connection: %w", err)
	}
	return deleted, nil
}

func (r *Repository) RecordExport(ctx context.Context, in catalog.RecordExportInput) (catalog.ExportRecord, error) {
	query := `
INSERT INTO widget_export (widget_id, object_key, row_count, size_bytes)
VALUES ($1, $2, $3, $4)
RETURNING export_id, created_at`

	record := catalog.ExportRecord{
		WidgetID:  in.WidgetID,
		ObjectKey: in.ObjectKey,
		RowCount:  in.RowCount,
		SizeBytes: in.SizeBytes,
	}
	if err := r.db.QueryRowContext(ctx, query, in.WidgetID, in.ObjectKey, in.RowCount, in.SizeBytes).Scan(&record.ExportID, &record.CreatedAt); err != nil {
		return catalog.ExportRecord{}, fmt.Errorf("record export: %w", err)
	}
	return record, nil
}

func (r *Repository) ListExports(ctx context.Context, widgetID string, limit int) ([]catalog.ExportRecord, error) {
	if !validID(widgetID) {
		return []catalog.ExportRecord{}, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT export_id, widget_id, object_key, row_count, size_bytes, created_at
FROM widget_export
WHERE widget_id = $1
ORDER BY created_at DESC
LIMIT $2`, widgetID, limit)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]catalog.ExportRecord, 0)
	for rows.Next() {
		var record catalog.ExportRecord
		if err := rows.Scan(&record.ExportID, &record.WidgetID, &record.ObjectKey, &record.RowCount, &record.SizeBytes, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan export row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate export rows: %w", err)
	}
	return records, nil
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx *TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	txRepo := &TxRepository{q: tx}
	if err := fn(txRepo); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type TxRepository struct {
	q dbTX
}

func execDeleted(ctx context.Context, q dbTX, query string, args ...any) (bool, error) {
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanDashboard(row rowScanner) (catalog.Dashboard, error) {
	var dashboard catalog.Dashboard
	var layout []byte
	if err := row.Scan(
		&dashboard.DashboardID,
		&dashboard.Name,
		&dashboard.Description,
		&layout,
		&dashboard.CreatedAt,
		&dashboard.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Dashboard{}, catalog.ErrNotFound
		}
		return catalog.Dashboard{}, err
	}
	dashboard.Layout = make([]catalog.LayoutItem, 0)
	if len(layout) > 0 {
		if err := json.Unmarshal(layout, &dashboard.Layout); err != nil {
			return catalog.Dashboard{}, fmt.Errorf("decode layout: %w", err)
		}
	}
	return dashboard, nil
}

func scanWidget(row rowScanner) (catalog.Widget, error) {
	var widget catalog.Widget
	var config, chartOptions []byte
	var connectionID sql.NullString
	if err := row.Scan(
		&widget.WidgetID,
		&widget.DashboardID,
		&widget.Title,
		&widget.Type,
		&config,
		&connectionID,
		&widget.Query,
		&chartOptions,
		&widget.CreatedAt,
		&widget.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Widget{}, catalog.ErrNotFound
		}
		return catalog.Widget{}, err
	}
	if connectionID.Valid {
		id := connectionID.String
		widget.ConnectionID = &id
	}
	var err error
	if widget.Config, err = decodeObject(config); err != nil {
		return catalog.Widget{}, fmt.Errorf("decode config: %w", err)
	}
	if widget.ChartOptions, err = decodeObject(chartOptions); err != nil {
		return catalog.Widget{}, fmt.Errorf("decode chart options: %w", err)
	}
	return widget, nil
}

func scanConnection(row rowScanner) (catalog.Connection, error) {
	var conn catalog.Connection
	if err := row.Scan(
		&conn.ConnectionID,
		&conn.Name,
		&conn.Type,
		&conn.Host,
		&conn.Port,
		&conn.Database,
		&conn.Username,
		&conn.Password,
		&conn.SSL,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Connection{}, catalog.ErrNotFound
		}
		return catalog.Connection{}, err
	}
	return conn, nil
}

func encodeLayout(layout []catalog.LayoutItem) (string, error) {
	if layout == nil {
		layout = []catalog.LayoutItem{}
	}
	encoded, err := json.Marshal(layout)
	if err != nil {
		return "", fmt.Errorf("encode layout: %w", err)
	}
	return string(encoded), nil
}

func encodeObject(value map[string]any) (string, error) {
	if value == nil {
		return "{}", nil
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func decodeObject(raw []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// nullable turns a nil pointer into a SQL NULL so COALESCE keeps the stored
// value.
func nullable[T any](value *T) any {
	if value == nil {
		return nil
	}
	return *value
}

// validID reports whether id can name a catalog row. Malformed ids never
// match and are treated as missing instead of surfacing a cast error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
