package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/querydash/querydash/internal/query"
)

var ErrNotFound = errors.New("catalog: not found")

type Repository interface {
	HealthCheck(ctx context.Context) error

	CreateDashboard(ctx context.Context, in CreateDashboardInput) (Dashboard, error)
	GetDashboard(ctx context.Context, dashboardID string) (Dashboard, error)
	ListDashboards(ctx context.Context) ([]Dashboard, error)
	UpdateDashboard(ctx context.Context, dashboardID string, in UpdateDashboardInput) (Dashboard, error)
	DeleteDashboard(ctx context.Context, dashboardID string) (bool, error)

	CreateWidget(ctx context.Context, in CreateWidgetInput) (Widget, error)
	GetWidget(ctx context.Context, widgetID string) (Widget, error)
	ListWidgetsByDashboard(ctx context.Context, dashboardID string) ([]Widget, error)
	UpdateWidget(ctx context.Context, widgetID string, in UpdateWidgetInput) (Widget, error)
	DeleteWidget(ctx context.Context, widgetID string) (bool, error)

	CreateConnection(ctx context.Context, in CreateConnectionInput) (Connection, error)
	GetConnection(ctx context.Context, connectionID string) (Connection, error)
	ListConnections(ctx context.Context) ([]Connection, error)
	UpdateConnection(ctx context.Context, connectionID string, in UpdateConnectionInput) (Connection, error)
	DeleteConnection(ctx context.Context, connectionID string) (bool, error)

	RecordExport(ctx context.Context, in RecordExportInput) (ExportRecord, error)
	ListExports(ctx context.Context, widgetID string, limit int) ([]ExportRecord, error)
}

// LayoutItem is one grid cell of a dashboard layout. I is the widget id.
type LayoutItem struct {
	I    string `json:"i"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
	W    int    `json:"w"`
	H    int    `json:"h"`
	MinW *int   `json:"minW,omitempty"`
	MinH *int   `json:"minH,omitempty"`
}

type Dashboard struct {
	DashboardID string
	Name        string
	Description string
	Layout      []LayoutItem
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type CreateDashboardInput struct {
	Name        string
	Description string
	Layout      []LayoutItem
}

// UpdateDashboardInput leaves fields with nil values unchanged.
type UpdateDashboardInput struct {
	Name        *string
	Description *string
	Layout      *[]LayoutItem
}

type Widget struct {
	WidgetID     string
	DashboardID  string
	Title        string
	Type         string
	Config       map[string]any
	ConnectionID *string
	Query        string
	ChartOptions map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CreateWidgetInput struct {
	DashboardID  string
	Title        string
	Type         string
	Config       map[string]any
	ConnectionID *string
	Query        string
	ChartOptions map[string]any
}

// UpdateWidgetInput leaves fields with nil values unchanged. ConnectionID is
// applied only when SetConnectionID is true, so it can be cleared with nil.
type UpdateWidgetInput struct {
	Title           *string
	Type            *string
	Config          map[string]any
	SetConnectionID bool
	ConnectionID    *string
	Query           *string
	ChartOptions    map[string]any
}

type Connection struct {
	ConnectionID string
	Name         string
	Type         string
	Host         string
	Port         int
	Database     string
	Username     string
	Password     string
	SSL          bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Descriptor converts the stored record into the engine's connection
// descriptor.
func (c Connection) Descriptor() query.Connection {
	return query.Connection{
		Kind:     query.Kind(c.Type),
		Host:     c.Host,
		Port:     c.Port,
		Database: c.Database,
		Username: c.Username,
		Password: c.Password,
		SSL:      c.SSL,
	}
}

type CreateConnectionInput struct {
	Name     string
	Type     string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSL      bool
}

// UpdateConnectionInput leaves fields with nil values unchanged. The
// connection type cannot be changed after creation.
type UpdateConnectionInput struct {
	Name     *string
	Host     *string
	Port     *int
	Database *string
	Username *string
	Password *string
	SSL      *bool
}

// ExportRecord is the audit row written after a widget result lands in the
// object store.
type ExportRecord struct {
	ExportID  int64
	WidgetID  string
	ObjectKey string
	RowCount  int64
	SizeBytes int64
	CreatedAt time.Time
}

type RecordExportInput struct {
	WidgetID  string
	ObjectKey string
	RowCount  int64
	SizeBytes int64
}
