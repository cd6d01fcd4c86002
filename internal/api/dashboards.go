package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/querydash/querydash/internal/auth"
	"github.com/querydash/querydash/internal/catalog"
)

type dashboardCreateRequest struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Layout      []catalog.LayoutItem `json:"layout"`
}

type dashboardUpdateRequest struct {
	Name        *string               `json:"name"`
	Description *string               `json:"description"`
	Layout      *[]catalog.LayoutItem `json:"layout"`
}

func handleListDashboards(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) || !requireRole(w, r, auth.RoleReader) {
		return
	}
	dashboards, err := deps.Catalog.ListDashboards(r.Context())
	if err != nil {
		writeCatalogError(w, r, "failed to list dashboards", err)
		return
	}
	items := make([]map[string]any, 0, len(dashboards))
	for _, dashboard := range dashboards {
		items = append(items, dashboardPayload(dashboard))
	}
	writeJSON(w, http.StatusOK, map[string]any{"dashboards": items})
}

func handleCreateDashboard(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) || !requireRole(w, r, auth.RoleEditor) {
		return
	}
	var req dashboardCreateRequest
	if !decodeBody(w, r, &req, "create dashboard") {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "NAME_REQUIRED", "name is required", false, nil)
		return
	}
	dashboard, err := deps.Catalog.CreateDashboard(r.Context(), catalog.CreateDashboardInput{
		Name:        name,
		Description: req.Description,
		Layout:      req.Layout,
	})
	if err != nil {
		writeCatalogError(w, r, "failed to create dashboard", err)
		return
	}
	writeJSON(w, http.StatusCreated, dashboardPayload(dashboard))
}

func handleGetDashboard(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) || !requireRole(w, r, auth.RoleReader) {
		return
	}
	dashboard, ok := loadDashboard(deps, w, r)
	if !ok {
		return
	}
	widgets, err := deps.Catalog.ListWidgetsByDashboard(r.Context(), dashboard.DashboardID)
	if err != nil {
		writeCatalogError(w, r, "failed to list dashboard widgets", err)
		return
	}
	payload := dashboardPayload(dashboard)
	items := make([]map[string]any, 0, len(widgets))
	for _, widget := range widgets {
		items = append(items, widgetPayload(widget))
	}
	payload["widgets"] = items
	writeJSON(w, http.StatusOK, payload)
}

func handleUpdateDashboard(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) || !requireRole(w, r, auth.RoleEditor) {
		return
	}
	var req dashboardUpdateRequest
	if !decodeBody(w, r, &req, "update dashboard") {
		return
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			writeError(r.Context(), w, http.StatusBadRequest, "NAME_REQUIRED", "name cannot be empty", false, nil)
			return
		}
		req.Name = &name
	}
	dashboard, err := deps.Catalog.UpdateDashboard(r.Context(), r.PathValue("id"), catalog.UpdateDashboardInput{
		Name:        req.Name,
		Description: req.Description,
		Layout:      req.Layout,
	})
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeDashboardNotFound(w, r)
			return
		}
		writeCatalogError(w, r, "failed to update dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, dashboardPayload(dashboard))
}

func handleDeleteDashboard(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) || !requireRole(w, r, auth.RoleEditor) {
		return
	}
	deleted, err := deps.Catalog.DeleteDashboard(r.Context(), r.PathValue("id"))
	if err != nil {
		writeCatalogError(w, r, "failed to delete dashboard", err)
		return
	}
	if !deleted {
		writeDashboardNotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func loadDashboard(deps Dependencies, w http.ResponseWriter, r *http.Request) (catalog.Dashboard, bool) {
	dashboard, err := deps.Catalog.GetDashboard(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeDashboardNotFound(w, r)
			return catalog.Dashboard{}, false
		}
		writeCatalogError(w, r, "failed to get dashboard", err)
		return catalog.Dashboard{}, false
	}
	return dashboard, true
}

func writeDashboardNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(r.Context(), w, http.StatusNotFound, "DASHBOARD_NOT_FOUND", "dashboard was not found", false, nil)
}

func dashboardPayload(dashboard catalog.Dashboard) map[string]any {
	layout := dashboard.Layout
	if layout == nil {
		layout = []catalog.LayoutItem{}
	}
	return map[string]any{
		"dashboard_id": dashboard.DashboardID,
		"name":         dashboard.Name,
		"description":  dashboard.Description,
		"layout":       layout,
		"created_at":   dashboard.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":   dashboard.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func requireCatalog(deps Dependencies, w http.ResponseWriter, r *http.Request) bool {
	if deps.Catalog == nil {
		writeCatalogMissing(w, r)
		return false
	}
	return true
}

func requireRole(w http.ResponseWriter, r *http.Request, role string) bool {
	if err := auth.RequireRole(r, role); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return false
	}
	return true
}
