package api

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/querydash/querydash/internal/catalog"
	"github.com/querydash/querydash/internal/export"
	"github.com/querydash/querydash/internal/query"
)

type inMemoryCatalog struct {
	mu          sync.Mutex
	seq         int
	now         time.Time
	dashboards  map[string]catalog.Dashboard
	widgets     map[string]catalog.Widget
	connections map[string]catalog.Connection
	exports     []catalog.ExportRecord
	failWith    error
}

var _ catalog.Repository = (*inMemoryCatalog)(nil)

func newInMemoryCatalog() *inMemoryCatalog {
	return &inMemoryCatalog{
		now:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		dashboards:  map[string]catalog.Dashboard{},
		widgets:     map[string]catalog.Widget{},
		connections: map[string]catalog.Connection{},
	}
}

func (c *inMemoryCatalog) nextID(prefix string) string {
	c.seq++
	return fmt.Sprintf("%s-%d", prefix, c.seq)
}

func (c *inMemoryCatalog) HealthCheck(context.Context) error {
	return c.failWith
}

func (c *inMemoryCatalog) CreateDashboard(_ context.Context, in catalog.CreateDashboardInput) (catalog.Dashboard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWith != nil {
		return catalog.Dashboard{}, c.failWith
	}
	dashboard := catalog.Dashboard{
		DashboardID: c.nextID("d"),
		Name:        in.Name,
		Description: in.Description,
		Layout:      in.Layout,
		CreatedAt:   c.now,
		UpdatedAt:   c.now,
	}
	c.dashboards[dashboard.DashboardID] = dashboard
	return dashboard, nil
}

func (c *inMemoryCatalog) GetDashboard(_ context.Context, dashboardID string) (catalog.Dashboard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWith != nil {
		return catalog.Dashboard{}, c.failWith
	}
	dashboard, ok := c.dashboards[dashboardID]
	if !ok {
		return catalog.Dashboard{}, catalog.ErrNotFound
	}
	return dashboard, nil
}

func (c *inMemoryCatalog) ListDashboards(context.Context) ([]catalog.Dashboard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWith != nil {
		return nil, c.failWith
	}
	out := make([]catalog.Dashboard, 0, len(c.dashboards))
	for _, dashboard := range c.dashboards {
		out = append(out, dashboard)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DashboardID < out[j].DashboardID })
	return out, nil
}

func (c *inMemoryCatalog) UpdateDashboard(_ context.Context, dashboardID string, in catalog.UpdateDashboardInput) (catalog.Dashboard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	dashboard, ok := c.dashboards[dashboardID]
	if !ok {
		return catalog.Dashboard{}, catalog.ErrNotFound
	}
	if in.Name != nil {
		dashboard.Name = *in.Name
	}
	if in.Description != nil {
		dashboard.Description = *in.Description
	}
	if in.Layout != nil {
		dashboard.Layout = *in.Layout
	}
	dashboard.UpdatedAt = c.now.Add(time.Minute)
	c.dashboards[dashboardID] = dashboard
	return dashboard, nil
}

func (c *inMemoryCatalog) DeleteDashboard(_ context.Context, dashboardID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.dashboards[dashboardID]; !ok {
		return false, nil
	}
	delete(c.dashboards, dashboardID)
	for id, widget := range c.widgets {
		if widget.DashboardID == dashboardID {
			delete(c.widgets, id)
		}
	}
	return true, nil
}

func (c *inMemoryCatalog) CreateWidget(_ context.Context, in catalog.CreateWidgetInput) (catalog.Widget, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	widget := catalog.Widget{
		WidgetID:     c.nextID("w"),
		DashboardID:  in.DashboardID,
		Title:        in.Title,
		Type:         in.Type,
		Config:       in.Config,
		ConnectionID: in.ConnectionID,
		Query:        in.Query,
		ChartOptions: in.ChartOptions,
		CreatedAt:    c.now,
		UpdatedAt:    c.now,
	}
	c.widgets[widget.WidgetID] = widget
	return widget, nil
}

func (c *inMemoryCatalog) GetWidget(_ context.Context, widgetID string) (catalog.Widget, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	widget, ok := c.widgets[widgetID]
	if !ok {
		return catalog.Widget{}, catalog.ErrNotFound
	}
	return widget, nil
}

func (c *inMemoryCatalog) ListWidgetsByDashboard(_ context.Context, dashboardID string) ([]catalog.Widget, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]catalog.Widget, 0)
	for _, widget := range c.widgets {
		if widget.DashboardID == dashboardID {
			out = append(out, widget)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WidgetID < out[j].WidgetID })
	return out, nil
}

func (c *inMemoryCatalog) UpdateWidget(_ context.Context, widgetID string, in catalog.UpdateWidgetInput) (catalog.Widget, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	widget, ok := c.widgets[widgetID]
	if !ok {
		return catalog.Widget{}, catalog.ErrNotFound
	}
	if in.Title != nil {
		widget.Title = *in.Title
	}
	if in.Type != nil {
		widget.Type = *in.Type
	}
	if in.Config != nil {
		widget.Config = in.Config
	}
	if in.SetConnectionID {
		widget.ConnectionID = in.ConnectionID
	}
	if in.Query != nil {
		widget.Query = *in.Query
	}
	if in.ChartOptions != nil {
		widget.ChartOptions = in.ChartOptions
	}
	c.widgets[widgetID] = widget
	return widget, nil
}

func (c *inMemoryCatalog) DeleteWidget(_ context.Context, widgetID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.widgets[widgetID]; !ok {
		return false, nil
	}
	delete(c.widgets, widgetID)
	return true, nil
}

func (c *inMemoryCatalog) CreateConnection(_ context.Context, in catalog.CreateConnectionInput) (catalog.Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	connection := catalog.Connection{
		ConnectionID: c.nextID("c"),
		Name:         in.Name,
		Type:         in.Type,
		Host:         in.Host,
		Port:         in.Port,
		Database:     in.Database,
		Username:     in.Username,
		Password:     in.Password,
		SSL:          in.SSL,
		CreatedAt:    c.now,
		UpdatedAt:    c.now,
	}
	c.connections[connection.ConnectionID] = connection
	return connection, nil
}

func (c *inMemoryCatalog) GetConnection(_ context.Context, connectionID string) (catalog.Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	connection, ok := c.connections[connectionID]
	if !ok {
		return catalog.Connection{}, catalog.ErrNotFound
	}
	return connection, nil
}

func (c *inMemoryCatalog) ListConnections(context.Context) ([]catalog.Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]catalog.Connection, 0, len(c.connections))
	for _, connection := range c.connections {
		out = append(out, connection)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectionID < out[j].ConnectionID })
	return out, nil
}

func (c *inMemoryCatalog) UpdateConnection(_ context.Context, connectionID string, in catalog.UpdateConnectionInput) (catalog.Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	connection, ok := c.connections[connectionID]
	if !ok {
		return catalog.Connection{}, catalog.ErrNotFound
	}
	if in.Name != nil {
		connection.Name = *in.Name
	}
	if in.Host != nil {
		connection.Host = *in.Host
	}
	if in.Port != nil {
		connection.Port = *in.Port
	}
	if in.Database != nil {
		connection.Database = *in.Database
	}
	if in.Username != nil {
		connection.Username = *in.Username
	}
	if in.Password != nil {
		connection.Password = *in.Password
	}
	if in.SSL != nil {
		connection.SSL = *in.SSL
	}
	c.connections[connectionID] = connection
	return connection, nil
}

func (c *inMemoryCatalog) DeleteConnection(_ context.Context, connectionID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.connections[connectionID]; !ok {
		return false, nil
	}
	delete(c.connections, connectionID)
	for id, widget := range c.widgets {
		if widget.ConnectionID != nil && *widget.ConnectionID == connectionID {
			widget.ConnectionID = nil
			c.widgets[id] = widget
		}
	}
	return true, nil
}

func (c *inMemoryCatalog) RecordExport(_ context.Context, in catalog.RecordExportInput) (catalog.ExportRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	record := catalog.ExportRecord{
		ExportID:  int64(len(c.exports) + 1),
		WidgetID:  in.WidgetID,
		ObjectKey: in.ObjectKey,
		RowCount:  in.RowCount,
		SizeBytes: in.SizeBytes,
		CreatedAt: c.now,
	}
	c.exports = append(c.exports, record)
	return record, nil
}

func (c *inMemoryCatalog) ListExports(_ context.Context, widgetID string, limit int) ([]catalog.ExportRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]catalog.ExportRecord, 0)
	for i := len(c.exports) - 1; i >= 0 && len(out) < limit; i-- {
		if c.exports[i].WidgetID == widgetID {
			out = append(out, c.exports[i])
		}
	}
	return out, nil
}

type fakeEngine struct {
	mu       sync.Mutex
	result   query.Result
	err      error
	probe    query.Probe
	executed []string
	probed   []query.Connection
}

func (e *fakeEngine) Execute(_ context.Context, conn query.Connection, sqlText string) (query.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executed = append(e.executed, string(conn.Kind)+":"+sqlText)
	if e.err != nil {
		return query.Result{}, e.err
	}
	return e.result, nil
}

func (e *fakeEngine) TestConnection(_ context.Context, conn query.Connection) query.Probe {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.probed = append(e.probed, conn)
	return e.probe
}

type fakeExporter struct {
	calls   []catalog.Widget
	summary export.Summary
	err     error
}

func (e *fakeExporter) ExportWidget(_ context.Context, widget catalog.Widget, result query.Result) (export.Summary, error) {
	e.calls = append(e.calls, widget)
	if e.err != nil {
		return export.Summary{}, e.err
	}
	summary := e.summary
	summary.RowCount = result.RowCount
	return summary, nil
}
