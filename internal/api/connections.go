package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/querydash/querydash/internal/auth"
	"github.com/querydash/querydash/internal/catalog"
	"github.com/querydash/querydash/internal/query"
)

const maskedPassword = "********"

type connectionCreateRequest struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
	SSL      bool   `json:"ssl"`
}

type connectionUpdateRequest struct {
	Name     *string `json:"name"`
	Type     *string `json:"type"`
	Host     *string `json:"host"`
	Port     *int    `json:"port"`
	Database *string `json:"database"`
	Username *string `json:"username"`
	Password *string `json:"password"`
	SSL      *bool   `json:"ssl"`
}

func handleListConnections(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) || !requireRole(w, r, auth.RoleReader) {
		return
	}
	connections, err := deps.Catalog.ListConnections(r.Context())
	if err != nil {
		writeCatalogError(w, r, "failed to list connections", err)
		return
	}
	items := make([]map[string]any, 0, len(connections))
	for _, connection := range connections {
		items = append(items, connectionPayload(connection))
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": items})
}

func handleCreateConnection(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) || !requireRole(w, r, auth.RoleEditor) {
		return
	}
	var req connectionCreateRequest
	if !decodeBody(w, r, &req, "create connection") {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "NAME_REQUIRED", "name is required", false, nil)
		return
	}
	kind, err := query.ParseKind(req.Type)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_CONNECTION_TYPE", err.Error(), false, nil)
		return
	}
	if req.Port < 0 || req.Port > 65535 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_PORT", "port must be between 0 and 65535", false, nil)
		return
	}
	connection, err := deps.Catalog.CreateConnection(r.Context(), catalog.CreateConnectionInput{
		Name:     name,
		Type:     string(kind),
		Host:     strings.TrimSpace(req.Host),
		Port:     req.Port,
		Database: strings.TrimSpace(req.Database),
		Username: req.Username,
		Password: req.Password,
		SSL:      req.SSL,
	})
	if err != nil {
		writeCatalogError(w, r, "failed to create connection", err)
		return
	}
	writeJSON(w, http.StatusCreated, connectionPayload(connection))
}

func handleGetConnection(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) || !requireRole(w, r, auth.RoleReader) {
		return
	}
	connection, ok := loadConnectionByID(deps, w, r, r.PathValue("id"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, connectionPayload(connection))
}

func handleUpdateConnection(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) || !requireRole(w, r, auth.RoleEditor) {
		return
	}
	var req connectionUpdateRequest
	if !decodeBody(w, r, &req, "update connection") {
		return
	}
	connectionID := r.PathValue("id")

	if req.Type != nil {
		kind, err := query.ParseKind(*req.Type)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_CONNECTION_TYPE", err.Error(), false, nil)
			return
		}
		current, ok := loadConnectionByID(deps, w, r, connectionID)
		if !ok {
			return
		}
		if string(kind) != current.Type {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_CONNECTION_TYPE", "connection type cannot be changed", false, map[string]any{"current": current.Type})
			return
		}
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			writeError(r.Context(), w, http.StatusBadRequest, "NAME_REQUIRED", "name cannot be empty", false, nil)
			return
		}
		req.Name = &name
	}
	if req.Port != nil && (*req.Port < 0 || *req.Port > 65535) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_PORT", "port must be between 0 and 65535", false, nil)
		return
	}
	password := req.Password
	if password != nil && (*password == "" || *password == maskedPassword) {
		password = nil
	}

	connection, err := deps.Catalog.UpdateConnection(r.Context(), connectionID, catalog.UpdateConnectionInput{
		Name:     req.Name,
		Host:     req.Host,
		Port:     req.Port,
		Database: req.Database,
		Username: req.Username,
		Password: password,
		SSL:      req.SSL,
	})
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeConnectionNotFound(w, r)
			return
		}
		writeCatalogError(w, r, "failed to update connection", err)
		return
	}
	writeJSON(w, http.StatusOK, connectionPayload(connection))
}

func handleDeleteConnection(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) || !requireRole(w, r, auth.RoleEditor) {
		return
	}
	deleted, err := deps.Catalog.DeleteConnection(r.Context(), r.PathValue("id"))
	if err != nil {
		writeCatalogError(w, r, "failed to delete connection", err)
		return
	}
	if !deleted {
		writeConnectionNotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func handleProbeConnection(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) || !requireRole(w, r, auth.RoleReader) || !requireEngine(deps, w, r) {
		return
	}
	connection, ok := loadConnectionByID(deps, w, r, r.PathValue("id"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, deps.QueryEngine.TestConnection(r.Context(), connection.Descriptor()))
}

// handleProbeDescriptor checks an unsaved descriptor. Failures, including an
// unknown type, are reported in the probe body.
func handleProbeDescriptor(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, auth.RoleReader) || !requireEngine(deps, w, r) {
		return
	}
	var req connectionCreateRequest
	if !decodeBody(w, r, &req, "test connection") {
		return
	}
	descriptor := query.Connection{
		Kind:     query.Kind(strings.ToLower(strings.TrimSpace(req.Type))),
		Host:     strings.TrimSpace(req.Host),
		Port:     req.Port,
		Database: strings.TrimSpace(req.Database),
		Username: req.Username,
		Password: req.Password,
		SSL:      req.SSL,
	}
	writeJSON(w, http.StatusOK, deps.QueryEngine.TestConnection(r.Context(), descriptor))
}

func requireEngine(deps Dependencies, w http.ResponseWriter, r *http.Request) bool {
	if deps.QueryEngine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query engine is not configured", false, nil)
		return false
	}
	return true
}

func loadConnectionByID(deps Dependencies, w http.ResponseWriter, r *http.Request, connectionID string) (catalog.Connection, bool) {
	connection, err := deps.Catalog.GetConnection(r.Context(), connectionID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeConnectionNotFound(w, r)
			return catalog.Connection{}, false
		}
		writeCatalogError(w, r, "failed to get connection", err)
		return catalog.Connection{}, false
	}
	return connection, true
}

func connectionExists(deps Dependencies, w http.ResponseWriter, r *http.Request, connectionID string) bool {
	_, ok := loadConnectionByID(deps, w, r, connectionID)
	return ok
}

func writeConnectionNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(r.Context(), w, http.StatusNotFound, "CONNECTION_NOT_FOUND", "connection was not found", false, nil)
}

func connectionPayload(connection catalog.Connection) map[string]any {
	return map[string]any{
		"connection_id": connection.ConnectionID,
		"name":          connection.Name,
		"type":          connection.Type,
		"host":          connection.Host,
		"port":          connection.Port,
		"database":      connection.Database,
		"username":      connection.Username,
		"password":      maskedPassword,
		"ssl":           connection.SSL,
		"created_at":    connection.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":    connection.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
