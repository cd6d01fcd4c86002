package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/text/language"

	"github.com/querydash/querydash/internal/catalog"
	"github.com/querydash/querydash/internal/chart"
	"github.com/querydash/querydash/internal/config"
	"github.com/querydash/querydash/internal/export"
	"github.com/querydash/querydash/internal/observability"
	"github.com/querydash/querydash/internal/query"
)

type ReadinessCheck func(ctx context.Context) error

// Exporter writes an executed widget result to the object store.
type Exporter interface {
	ExportWidget(ctx context.Context, widget catalog.Widget, result query.Result) (export.Summary, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Catalog           catalog.Repository
	QueryEngine       query.Engine
	Exporter          Exporter

	render renderSettings
}

type renderSettings struct {
	theme       chart.Theme
	locale      language.Tag
	placeholder string
}

type route struct {
	pattern string
	handle  func(Dependencies, http.ResponseWriter, *http.Request)
}

var protectedRoutes = []route{
	{"GET /v1/dashboards", handleListDashboards},
	{"POST /v1/dashboards", handleCreateDashboard},
	{"GET /v1/dashboards/{id}", handleGetDashboard},
	{"PUT /v1/dashboards/{id}", handleUpdateDashboard},
	{"DELETE /v1/dashboards/{id}", handleDeleteDashboard},

	{"POST /v1/widgets", handleCreateWidget},
	{"POST /v1/widgets/preview", handlePreviewWidget},
	{"GET /v1/widgets/{id}", handleGetWidget},
	{"PUT /v1/widgets/{id}", handleUpdateWidget},
	{"DELETE /v1/widgets/{id}", handleDeleteWidget},
	{"POST /v1/widgets/{id}/execute", handleExecuteWidget},
	{"GET /v1/widgets/{id}/chart", handleWidgetChart},
	{"POST /v1/widgets/{id}/export", handleExportWidget},
	{"GET /v1/widgets/{id}/exports", handleListWidgetExports},

	{"GET /v1/connections", handleListConnections},
	{"POST /v1/connections", handleCreateConnection},
	{"POST /v1/connections/test", handleProbeDescriptor},
	{"GET /v1/connections/{id}", handleGetConnection},
	{"PUT /v1/connections/{id}", handleUpdateConnection},
	{"DELETE /v1/connections/{id}", handleDeleteConnection},
	{"POST /v1/connections/{id}/test", handleProbeConnection},
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	deps.render = renderSettingsFrom(cfg.Render)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	for _, rt := range protectedRoutes {
		handle := rt.handle
		protected.HandleFunc(rt.pattern, func(w http.ResponseWriter, r *http.Request) {
			handle(deps, w, r)
		})
	}

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for _, rt := range protectedRoutes {
		mux.Handle(rt.pattern, protectedHandler)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares,
			observability.LoggingMiddleware(deps.Logger),
			observability.RecoverMiddleware(deps.Logger),
		)
	}
	return chain(mux, middlewares...)
}

func renderSettingsFrom(cfg config.RenderConfig) renderSettings {
	theme, err := chart.ParseTheme(cfg.Theme)
	if err != nil {
		theme = chart.ThemeDark
	}
	return renderSettings{
		theme:       theme,
		locale:      cfg.LocaleTag(),
		placeholder: cfg.Placeholder,
	}
}

func CheckCatalogDSN(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Catalog.DSN == "" {
			return errors.New("catalog dsn is not configured")
		}
		return nil
	}
}

// CheckObjectStoreConfig passes when export is disabled.
func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if !cfg.ObjectStore.Enabled {
			return nil
		}
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, what string) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid "+what+" request body", false, map[string]any{"details": err.Error()})
		return false
	}
	return true
}

func writeCatalogError(w http.ResponseWriter, r *http.Request, message string, err error) {
	writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", message, true, map[string]any{"details": err.Error()})
}

func writeCatalogMissing(w http.ResponseWriter, r *http.Request) {
	writeError(r.Context(), w, http.StatusNotImplemented, "CATALOG_NOT_CONFIGURED", "catalog dependency is not configured", false, nil)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
