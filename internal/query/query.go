package query

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Kind identifies a database engine. The set is closed.
type Kind string

const (
	KindPostgres Kind = "postgresql"
	KindMySQL    Kind = "mysql"
	KindSQLite   Kind = "sqlite"
)

var kinds = []Kind{KindPostgres, KindMySQL, KindSQLite}

func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

func ParseKind(raw string) (Kind, error) {
	candidate := Kind(strings.ToLower(strings.TrimSpace(raw)))
	for _, kind := range kinds {
		if candidate == kind {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unsupported connection type: %s", raw)
}

// Connection describes how to reach a database. For sqlite only Database is
// used and it holds a filesystem path.
type Connection struct {
	Kind     Kind
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSL      bool
}

// Row maps column name to a scalar value. Duplicate column names collapse to
// the last value read.
type Row map[string]any

type Result struct {
	Columns  []string `json:"columns"`
	Rows     []Row    `json:"rows"`
	RowCount int64    `json:"rowCount"`
}

func EmptyResult() Result {
	return Result{Columns: []string{}, Rows: []Row{}}
}

// Probe reports the outcome of a connectivity check.
type Probe struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type OpenOptions struct {
	// ConnectTimeout bounds connection establishment for network engines.
	// Zero leaves it to the caller's context.
	ConnectTimeout time.Duration
}

// Adapter opens sessions against one database kind.
type Adapter interface {
	Open(ctx context.Context, conn Connection, opts OpenOptions) (Session, error)
}

// Session runs single statements over one open connection.
type Session interface {
	Run(ctx context.Context, sqlText string) (Result, error)
	Close() error
}

// Engine is the execution surface consumed by the API.
type Engine interface {
	Execute(ctx context.Context, conn Connection, sqlText string) (Result, error)
	TestConnection(ctx context.Context, conn Connection) Probe
}
