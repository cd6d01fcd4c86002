package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/querydash/querydash/internal/catalog"
)

const (
	dashboardID  = "6f1c2a51-2a0e-4f7e-9a53-1f0b7d3c9e01"
	widgetID     = "0b5e8c7d-43a1-4d1f-8f61-7c2d9e4a5b02"
	connectionID = "9d7a6b5c-1e2f-4a3b-8c4d-5e6f7a8b9c03"
)

var (
	dashboardCols  = []string{"dashboard_id", "name", "description", "layout", "created_at", "updated_at"}
	widgetCols     = []string{"widget_id", "dashboard_id", "title", "widget_type", "config", "connection_id", "query_text", "chart_options", "created_at", "updated_at"}
	connectionCols = []string{"connection_id", "name", "connection_type", "host", "port", "database_name", "username", "password", "ssl", "created_at", "updated_at"}
)

func TestCreateDashboard(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newTestRepository(db, dashboardID)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`
INSERT INTO dashboard (dashboard_id, name, description, layout)
VALUES ($1, $2, $3, $4::jsonb)
RETURNING dashboard_id, name, description, layout, created_at, updated_at`)).
		WithArgs(dashboardID, "Sales", "Weekly numbers", `[{"i":"w1","x":0,"y":0,"w":4,"h":3}]`).
		WillReturnRows(sqlmock.NewRows(dashboardCols).
			AddRow(dashboardID, "Sales", "Weekly numbers", []byte(`[{"i":"w1","x":0,"y":0,"w":4,"h":3}]`), now, now))

	dashboard, err := repo.CreateDashboard(context.Background(), catalog.CreateDashboardInput{
		Name:        "Sales",
		Description: "Weekly numbers",
		Layout:      []catalog.LayoutItem{{I: "w1", W: 4, H: 3}},
	})
	if err != nil {
		t.Fatalf("CreateDashboard() error = %v", err)
	}
	if dashboard.DashboardID != dashboardID || dashboard.Name != "Sales" {
		t.Fatalf("dashboard = %+v", dashboard)
	}
	if len(dashboard.Layout) != 1 || dashboard.Layout[0].I != "w1" || dashboard.Layout[0].W != 4 {
		t.Fatalf("Layout = %+v", dashboard.Layout)
	}
	if !dashboard.CreatedAt.Equal(now) {
		t.Fatalf("CreatedAt = %v, want %v", dashboard.CreatedAt, now)
	}
	assertSQLMock(t, mock)
}

func TestCreateDashboardDefaultsEmptyLayout(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newTestRepository(db, dashboardID)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO dashboard`)).
		WithArgs(dashboardID, "Empty", "", `[]`).
		WillReturnRows(sqlmock.NewRows(dashboardCols).AddRow(dashboardID, "Empty", "", []byte(`[]`), now, now))

	dashboard, err := repo.CreateDashboard(context.Background(), catalog.CreateDashboardInput{Name: "Empty"})
	if err != nil {
		t.Fatalf("CreateDashboard() error = %v", err)
	}
	if dashboard.Layout == nil || len(dashboard.Layout) != 0 {
		t.Fatalf("Layout = %#v", dashboard.Layout)
	}
	assertSQLMock(t, mock)
}

func TestGetDashboardNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM dashboard
WHERE dashboard_id = $1`)).
		WithArgs(dashboardID).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetDashboard(context.Background(), dashboardID)
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("GetDashboard() error = %v, want ErrNotFound", err)
	}
	assertSQLMock(t, mock)
}

func TestMalformedIDsAreNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	ctx := context.Background()

	if _, err := repo.GetDashboard(ctx, "nope"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("GetDashboard() error = %v", err)
	}
	if _, err := repo.GetWidget(ctx, "nope"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("GetWidget() error = %v", err)
	}
	if _, err := repo.GetConnection(ctx, "nope"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("GetConnection() error = %v", err)
	}
	if deleted, err := repo.DeleteWidget(ctx, "nope"); err != nil || deleted {
		t.Fatalf("DeleteWidget() = %v, %v", deleted, err)
	}
	assertSQLMock(t, mock)
}

func TestListDashboardsOrdersByUpdatedAt(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM dashboard
ORDER BY updated_at DESC`)).
		WillReturnRows(sqlmock.NewRows(dashboardCols).
			AddRow(dashboardID, "Newest", "", []byte(`[]`), now, now).
			AddRow("1a2b3c4d-0000-4000-8000-000000000000", "Older", "", nil, now, now.Add(-time.Hour)))

	dashboards, err := repo.ListDashboards(context.Background())
	if err != nil {
		t.Fatalf("ListDashboards() error = %v", err)
	}
	if len(dashboards) != 2 || dashboards[0].Name != "Newest" {
		t.Fatalf("dashboards = %+v", dashboards)
	}
	if dashboards[1].Layout == nil {
		t.Fatal("expected empty layout for null column")
	}
	assertSQLMock(t, mock)
}

func TestUpdateDashboardPartial(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()
	name := "Renamed"

	mock.ExpectQuery(regexp.QuoteMeta(`
UPDATE dashboard
SET name = COALESCE($2, name),
    description = COALESCE($3, description),
    layout = COALESCE($4::jsonb, layout),
    updated_at = now()
WHERE dashboard_id = $1`)).
		WithArgs(dashboardID, "Renamed", nil, nil).
		WillReturnRows(sqlmock.NewRows(dashboardCols).AddRow(dashboardID, "Renamed", "kept", []byte(`[]`), now, now))

	dashboard, err := repo.UpdateDashboard(context.Background(), dashboardID, catalog.UpdateDashboardInput{Name: &name})
	if err != nil {
		t.Fatalf("UpdateDashboard() error = %v", err)
	}
	if dashboard.Name != "Renamed" || dashboard.Description != "kept" {
		t.Fatalf("dashboard = %+v", dashboard)
	}
	assertSQLMock(t, mock)
}

func TestDeleteDashboardRemovesWidgetsInTransaction(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM widget WHERE dashboard_id = $1`)).
		WithArgs(dashboardID).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM dashboard WHERE dashboard_id = $1`)).
		WithArgs(dashboardID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	deleted, err := repo.DeleteDashboard(context.Background(), dashboardID)
	if err != nil {
		t.Fatalf("DeleteDashboard() error = %v", err)
	}
	if !deleted {
		t.Fatal("expected deleted = true")
	}
	assertSQLMock(t, mock)
}

func TestDeleteDashboardRollsBackOnFailure(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM widget WHERE dashboard_id = $1`)).
		WithArgs(dashboardID).
		WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	if _, err := repo.DeleteDashboard(context.Background(), dashboardID); err == nil {
		t.Fatal("expected error")
	}
	assertSQLMock(t, mock)
}

func TestCreateWidget(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newTestRepository(db, widgetID)
	now := time.Now().UTC()
	connID := connectionID

	mock.ExpectQuery(regexp.QuoteMeta(`
INSERT INTO widget (widget_id, dashboard_id, title, widget_type, config, connection_id, query_text, chart_options)
VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8::jsonb)`)).
		WithArgs(widgetID, dashboardID, "Revenue", "line", `{"refreshInterval":30}`, connectionID, "SELECT 1", `{}`).
		WillReturnRows(sqlmock.NewRows(widgetCols).
			AddRow(widgetID, dashboardID, "Revenue", "line", []byte(`{"refreshInterval":30}`), connectionID, "SELECT 1", []byte(`{}`), now, now))

	widget, err := repo.CreateWidget(context.Background(), catalog.CreateWidgetInput{
		DashboardID:  dashboardID,
		Title:        "Revenue",
		Type:         "line",
		Config:       map[string]any{"refreshInterval": 30},
		ConnectionID: &connID,
		Query:        "SELECT 1",
	})
	if err != nil {
		t.Fatalf("CreateWidget() error = %v", err)
	}
	if widget.ConnectionID == nil || *widget.ConnectionID != connectionID {
		t.Fatalf("ConnectionID = %v", widget.ConnectionID)
	}
	if widget.Config["refreshInterval"] != float64(30) {
		t.Fatalf("Config = %#v", widget.Config)
	}
	if widget.ChartOptions == nil {
		t.Fatal("expected non-nil chart options")
	}
	assertSQLMock(t, mock)
}

func TestListWidgetsByDashboard(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM widget
WHERE dashboard_id = $1
ORDER BY created_at ASC`)).
		WithArgs(dashboardID).
		WillReturnRows(sqlmock.NewRows(widgetCols).
			AddRow(widgetID, dashboardID, "Stat", "stat", []byte(`{}`), nil, "", []byte(`{"title":"Total"}`), now, now))

	widgets, err := repo.ListWidgetsByDashboard(context.Background(), dashboardID)
	if err != nil {
		t.Fatalf("ListWidgetsByDashboard() error = %v", err)
	}
	if len(widgets) != 1 || widgets[0].ConnectionID != nil {
		t.Fatalf("widgets = %+v", widgets)
	}
	if widgets[0].ChartOptions["title"] != "Total" {
		t.Fatalf("ChartOptions = %#v", widgets[0].ChartOptions)
	}
	assertSQLMock(t, mock)
}

func TestUpdateWidgetClearsConnection(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`connection_id = CASE WHEN $5 THEN $6::uuid ELSE connection_id END`)).
		WithArgs(widgetID, nil, nil, nil, true, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows(widgetCols).
			AddRow(widgetID, dashboardID, "Revenue", "line", []byte(`{}`), nil, "SELECT 1", []byte(`{}`), now, now))

	widget, err := repo.UpdateWidget(context.Background(), widgetID, catalog.UpdateWidgetInput{SetConnectionID: true})
	if err != nil {
		t.Fatalf("UpdateWidget() error = %v", err)
	}
	if widget.ConnectionID != nil {
		t.Fatalf("ConnectionID = %v, want nil", *widget.ConnectionID)
	}
	assertSQLMock(t, mock)
}

func TestUpdateWidgetNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	title := "New"

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE widget`)).
		WithArgs(widgetID, "New", nil, nil, false, nil, nil, nil).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.UpdateWidget(context.Background(), widgetID, catalog.UpdateWidgetInput{Title: &title})
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("UpdateWidget() error = %v, want ErrNotFound", err)
	}
	assertSQLMock(t, mock)
}

func TestDeleteWidgetReportsMissing(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM widget WHERE widget_id = $1`)).
		WithArgs(widgetID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := repo.DeleteWidget(context.Background(), widgetID)
	if err != nil {
		t.Fatalf("DeleteWidget() error = %v", err)
	}
	if deleted {
		t.Fatal("expected deleted = false")
	}
	assertSQLMock(t, mock)
}

func TestCreateConnection(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := newTestRepository(db, connectionID)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`
INSERT INTO data_connection (connection_id, name, connection_type, host, port, database_name, username, password, ssl)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)).
		WithArgs(connectionID, "warehouse", "postgresql", "db.internal", int64(5432), "analytics", "reader", "secret", true).
		WillReturnRows(sqlmock.NewRows(connectionCols).
			AddRow(connectionID, "warehouse", "postgresql", "db.internal", int64(5432), "analytics", "reader", "secret", true, now, now))

	conn, err := repo.CreateConnection(context.Background(), catalog.CreateConnectionInput{
		Name:     "warehouse",
		Type:     "postgresql",
		Host:     "db.internal",
		Port:     5432,
		Database: "analytics",
		Username: "reader",
		Password: "secret",
		SSL:      true,
	})
	if err != nil {
		t.Fatalf("CreateConnection() error = %v", err)
	}
	descriptor := conn.Descriptor()
	if descriptor.Kind != "postgresql" || descriptor.Port != 5432 || !descriptor.SSL || descriptor.Password != "secret" {
		t.Fatalf("Descriptor() = %+v", descriptor)
	}
	assertSQLMock(t, mock)
}

func TestListConnectionsOrdersByName(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM data_connection
ORDER BY name ASC`)).
		WillReturnRows(sqlmock.NewRows(connectionCols).
			AddRow(connectionID, "local", "sqlite", "", int64(0), "/data/app.db", "", "", false, now, now))

	conns, err := repo.ListConnections(context.Background())
	if err != nil {
		t.Fatalf("ListConnections() error = %v", err)
	}
	if len(conns) != 1 || conns[0].Database != "/data/app.db" {
		t.Fatalf("conns = %+v", conns)
	}
	assertSQLMock(t, mock)
}

func TestUpdateConnectionKeepsUnsetFields(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()
	host := "replica.internal"
	port := 6543

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE data_connection`)).
		WithArgs(connectionID, nil, "replica.internal", int64(6543), nil, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows(connectionCols).
			AddRow(connectionID, "warehouse", "postgresql", "replica.internal", int64(6543), "analytics", "reader", "secret", false, now, now))

	conn, err := repo.UpdateConnection(context.Background(), connectionID, catalog.UpdateConnectionInput{Host: &host, Port: &port})
	if err != nil {
		t.Fatalf("UpdateConnection() error = %v", err)
	}
	if conn.Host != "replica.internal" || conn.Port != 6543 || conn.Password != "secret" {
		t.Fatalf("conn = %+v", conn)
	}
	assertSQLMock(t, mock)
}

func TestDeleteConnection(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM data_connection WHERE connection_id = $1`)).
		WithArgs(connectionID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := repo.DeleteConnection(context.Background(), connectionID)
	if err != nil {
		t.Fatalf("DeleteConnection() error = %v", err)
	}
	if !deleted {
		t.Fatal("expected deleted = true")
	}
	assertSQLMock(t, mock)
}

func TestRecordAndListExports(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()
	key := "exports/d/w/date=2026-01-02/result-1.parquet"

	mock.ExpectQuery(regexp.QuoteMeta(`
INSERT INTO widget_export (widget_id, object_key, row_count, size_bytes)
VALUES ($1, $2, $3, $4)
RETURNING export_id, created_at`)).
		WithArgs(widgetID, key, int64(12), int64(2048)).
		WillReturnRows(sqlmock.NewRows([]string{"export_id", "created_at"}).AddRow(int64(7), now))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM widget_export
WHERE widget_id = $1
ORDER BY created_at DESC
LIMIT $2`)).
		WithArgs(widgetID, int64(50)).
		WillReturnRows(sqlmock.NewRows([]string{"export_id", "widget_id", "object_key", "row_count", "size_bytes", "created_at"}).
			AddRow(int64(7), widgetID, key, int64(12), int64(2048), now))

	record, err := repo.RecordExport(context.Background(), catalog.RecordExportInput{
		WidgetID:  widgetID,
		ObjectKey: key,
		RowCount:  12,
		SizeBytes: 2048,
	})
	if err != nil {
		t.Fatalf("RecordExport() error = %v", err)
	}
	if record.ExportID != 7 || record.ObjectKey != key {
		t.Fatalf("record = %+v", record)
	}

	records, err := repo.ListExports(context.Background(), widgetID, 0)
	if err != nil {
		t.Fatalf("ListExports() error = %v", err)
	}
	if len(records) != 1 || records[0].SizeBytes != 2048 {
		t.Fatalf("records = %+v", records)
	}
	assertSQLMock(t, mock)
}

func newTestRepository(db *sql.DB, id string) *Repository {
	repo := NewRepository(db)
	repo.newID = func() string { return id }
	return repo
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
