package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/querydash/querydash/internal/auth"
	"github.com/querydash/querydash/internal/catalog"
	"github.com/querydash/querydash/internal/chart"
	"github.com/querydash/querydash/internal/observability"
	"github.com/querydash/querydash/internal/query"
	"github.com/querydash/querydash/internal/query/synthetic"
)

const (
	noDataMessage     = "No data available"
	defaultExportList = 20
	maxExportList     = 200
)

type widgetCreateRequest struct {
	DashboardID  string         `json:"dashboard_id"`
	Title        string         `json:"title"`
	Type         string         `json:"type"`
	Config       map[string]any `json:"config"`
	ConnectionID *string        `json:"connection_id"`
	Query        string         `json:"query"`
	ChartOptions map[string]any `json:"chart_options"`
}

// connection_id stays raw so an explicit null can be told apart from an
// absent field.
type widgetUpdateRequest struct {
	Title        *string         `json:"title"`
	Type         *string         `json:"type"`
	Config       map[string]any  `json:"config"`
	ConnectionID json.RawMessage `json:"connection_id"`
	Query        *string         `json:"query"`
	ChartOptions map[string]any  `json:"chart_options"`
}

type widgetPreviewRequest struct {
	ConnectionID string `json:"connection_id"`
	Query        string `json:"query"`
	Type         string `json:"type"`
}

func handleCreateWidget(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) || !requireRole(w, r, auth.RoleEditor) {
		return
	}
	var req widgetCreateRequest
	if !decodeBody(w, r, &req, "create widget") {
		return
	}
	dashboardID := strings.TrimSpace(req.DashboardID)
	if dashboardID == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "DASHBOARD_ID_REQUIRED", "dashboard_id is required", false, nil)
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "TITLE_REQUIRED", "title is required", false, nil)
		return
	}
	kind, err := chart.ParseKind(req.Type)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_WIDGET_TYPE", err.Error(), false, nil)
		return
	}
	if err := chart.ValidateOptions(req.ChartOptions); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_CHART_OPTIONS", err.Error(), false, nil)
		return
	}
	if _, err := deps.Catalog.GetDashboard(r.Context(), dashboardID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeDashboardNotFound(w, r)
			return
		}
		writeCatalogError(w, r, "failed to get dashboard", err)
		return
	}
	connectionID := normalizeID(req.ConnectionID)
	if connectionID != nil && !connectionExists(deps, w, r, *connectionID) {
		return
	}

	widget, err := deps.Catalog.CreateWidget(r.Context(), catalog.CreateWidgetInput{
		DashboardID:  dashboardID,
		Title:        title,
		Type:         string(kind),
		Config:       req.Config,
		ConnectionID: connectionID,
		Query:        req.Query,
		ChartOptions: req.ChartOptions,
	})
	if err != nil {
		writeCatalogError(w, r, "failed to create widget", err)
		return
	}
	writeJSON(w, http.StatusCreated, widgetPayload(widget))
}

func handleGetWidget(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) || !requireRole(w, r, auth.RoleReader) {
		return
	}
	widget, ok := loadWidget(deps, w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, widgetPayload(widget))
}

func handleUpdateWidget(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) || !requireRole(w, r, auth.RoleEditor) {
		return
	}
	var req widgetUpdateRequest
	if !decodeBody(w, r, &req, "update widget") {
		return
	}

	in := catalog.UpdateWidgetInput{
		Config:       req.Config,
		Query:        req.Query,
		ChartOptions: req.ChartOptions,
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			writeError(r.Context(), w, http.StatusBadRequest, "TITLE_REQUIRED", "title cannot be empty", false, nil)
			return
		}
		in.Title = &title
	}
	if req.Type != nil {
		kind, err := chart.ParseKind(*req.Type)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_WIDGET_TYPE", err.Error(), false, nil)
			return
		}
		widgetType := string(kind)
		in.Type = &widgetType
	}
	if req.ChartOptions != nil {
		if err := chart.ValidateOptions(req.ChartOptions); err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_CHART_OPTIONS", err.Error(), false, nil)
			return
		}
	}
	if len(req.ConnectionID) > 0 {
		in.SetConnectionID = true
		if !bytes.Equal(bytes.TrimSpace(req.ConnectionID), []byte("null")) {
			var raw string
			if err := json.Unmarshal(req.ConnectionID, &raw); err != nil {
				writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "connection_id must be a string or null", false, map[string]any{"details": err.Error()})
				return
			}
			in.ConnectionID = normalizeID(&raw)
		}
		if in.ConnectionID != nil && !connectionExists(deps, w, r, *in.ConnectionID) {
			return
		}
	}

	widget, err := deps.Catalog.UpdateWidget(r.Context(), r.PathValue("id"), in)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeWidgetNotFound(w, r)
			return
		}
		writeCatalogError(w, r, "failed to update widget", err)
		return
	}
	writeJSON(w, http.StatusOK, widgetPayload(widget))
}

func handleDeleteWidget(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) || !requireRole(w, r, auth.RoleEditor) {
		return
	}
	deleted, err := deps.Catalog.DeleteWidget(r.Context(), r.PathValue("id"))
	if err != nil {
		writeCatalogError(w, r, "failed to delete widget", err)
		return
	}
	if !deleted {
		writeWidgetNotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func handleExecuteWidget(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) || !requireRole(w, r, auth.RoleReader) {
		return
	}
	widget, ok := loadWidget(deps, w, r)
	if !ok {
		return
	}
	result, ok := runQuery(deps, w, r, widget.Type, widget.ConnectionID, widget.Query)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func handlePreviewWidget(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) || !requireRole(w, r, auth.RoleReader) {
		return
	}
	var req widgetPreviewRequest
	if !decodeBody(w, r, &req, "preview widget") {
		return
	}
	widgetType := strings.TrimSpace(req.Type)
	if widgetType == "" {
		widgetType = string(chart.KindTable)
	}
	result, ok := runQuery(deps, w, r, widgetType, normalizeID(&req.ConnectionID), req.Query)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func handleWidgetChart(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) || !requireRole(w, r, auth.RoleReader) {
		return
	}
	theme := deps.render.theme
	if raw := strings.TrimSpace(r.URL.Query().Get("theme")); raw != "" {
		parsed, err := chart.ParseTheme(raw)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_THEME", err.Error(), false, nil)
			return
		}
		theme = parsed
	}
	widget, ok := loadWidget(deps, w, r)
	if !ok {
		return
	}
	kind, err := chart.ParseKind(widget.Type)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_WIDGET_TYPE", err.Error(), false, nil)
		return
	}
	result, ok := runQuery(deps, w, r, widget.Type, widget.ConnectionID, widget.Query)
	if !ok {
		return
	}

	payload := map[string]any{
		"type":     kind,
		"data":     nil,
		"value":    nil,
		"options":  chart.ResolveOptions(kind, theme, widget.ChartOptions),
		"rowCount": result.RowCount,
	}
	matrix, err := chart.Transform(kind, result)
	switch {
	case errors.Is(err, chart.ErrNoMatrix):
		payload["value"] = chart.StatSummary(result, chart.StatOptions{
			Locale:      deps.render.locale,
			Placeholder: deps.render.placeholder,
		})
	case err != nil:
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_WIDGET_TYPE", err.Error(), false, nil)
		return
	default:
		payload["data"] = matrix
	}
	if result.RowCount == 0 {
		payload["message"] = noDataMessage
	}
	writeJSON(w, http.StatusOK, payload)
}

func handleExportWidget(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) || !requireRole(w, r, auth.RoleEditor) {
		return
	}
	if deps.Exporter == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED", "object store export is not configured", false, nil)
		return
	}
	widget, ok := loadWidget(deps, w, r)
	if !ok {
		return
	}
	result, ok := runQuery(deps, w, r, widget.Type, widget.ConnectionID, widget.Query)
	if !ok {
		return
	}
	summary, err := deps.Exporter.ExportWidget(r.Context(), widget, result)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "EXPORT_FAILED", "failed to export widget result", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

func handleListWidgetExports(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) || !requireRole(w, r, auth.RoleReader) {
		return
	}
	limit := defaultExportList
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxExportList {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and "+strconv.Itoa(maxExportList), false, nil)
			return
		}
		limit = parsed
	}
	widget, ok := loadWidget(deps, w, r)
	if !ok {
		return
	}
	records, err := deps.Catalog.ListExports(r.Context(), widget.WidgetID, limit)
	if err != nil {
		writeCatalogError(w, r, "failed to list widget exports", err)
		return
	}
	items := make([]map[string]any, 0, len(records))
	for _, record := range records {
		items = append(items, map[string]any{
			"export_id":  record.ExportID,
			"object_key": record.ObjectKey,
			"row_count":  record.RowCount,
			"size_bytes": record.SizeBytes,
			"created_at": record.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"widget_id": widget.WidgetID,
		"exports":   items,
	})
}

// runQuery executes sqlText on the referenced connection. A missing
// connection or blank query yields the sample result for widgetType.
func runQuery(deps Dependencies, w http.ResponseWriter, r *http.Request, widgetType string, connectionID *string, sqlText string) (query.Result, bool) {
	if connectionID == nil || strings.TrimSpace(sqlText) == "" {
		label := "unknown"
		if kind, err := chart.ParseKind(widgetType); err == nil {
			label = string(kind)
		}
		observability.IncrementSyntheticResult(label)
		return synthetic.Generate(label), true
	}
	if deps.QueryEngine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query engine is not configured", false, nil)
		return query.Result{}, false
	}
	connection, ok := loadConnectionByID(deps, w, r, *connectionID)
	if !ok {
		return query.Result{}, false
	}
	result, err := deps.QueryEngine.Execute(r.Context(), connection.Descriptor(), sqlText)
	if err != nil {
		writeQueryError(w, r, err)
		return query.Result{}, false
	}
	return result, true
}

func writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case query.IsConnectionError(err):
		writeError(r.Context(), w, http.StatusBadGateway, "CONNECTION_FAILED", err.Error(), true, nil)
	case query.IsExecutionError(err):
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", err.Error(), false, nil)
	default:
		writeError(r.Context(), w, http.StatusInternalServerError, "QUERY_FAILED", err.Error(), true, nil)
	}
}

func loadWidget(deps Dependencies, w http.ResponseWriter, r *http.Request) (catalog.Widget, bool) {
	widget, err := deps.Catalog.GetWidget(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeWidgetNotFound(w, r)
			return catalog.Widget{}, false
		}
		writeCatalogError(w, r, "failed to get widget", err)
		return catalog.Widget{}, false
	}
	return widget, true
}

func writeWidgetNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(r.Context(), w, http.StatusNotFound, "WIDGET_NOT_FOUND", "widget was not found", false, nil)
}

func normalizeID(raw *string) *string {
	if raw == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*raw)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func widgetPayload(widget catalog.Widget) map[string]any {
	config := widget.Config
	if config == nil {
		config = map[string]any{}
	}
	chartOptions := widget.ChartOptions
	if chartOptions == nil {
		chartOptions = map[string]any{}
	}
	return map[string]any{
		"widget_id":     widget.WidgetID,
		"dashboard_id":  widget.DashboardID,
		"title":         widget.Title,
		"type":          widget.Type,
		"config":        config,
		"connection_id": widget.ConnectionID,
		"query":         widget.Query,
		"chart_options": chartOptions,
		"created_at":    widget.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":    widget.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
