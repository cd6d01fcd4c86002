package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/querydash/querydash/internal/query"
)

const defaultPort = 5432

type Adapter struct{}

func NewAdapter() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Open(ctx context.Context, conn query.Connection, opts query.OpenOptions) (query.Session, error) {
	config, err := pgx.ParseConfig(BuildDSN(conn))
	if err != nil {
		return nil, query.NewConnectionError(fmt.Errorf("parse postgres config: %w", err))
	}
	if opts.ConnectTimeout > 0 {
		config.ConnectTimeout = opts.ConnectTimeout
	}
	// Statements reach the server as written; no prepare round trip.
	config.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pgConn, err := pgx.ConnectConfig(ctx, config)
	if err != nil {
		return nil, query.NewConnectionError(err)
	}
	return &session{conn: pgConn}, nil
}

// BuildDSN renders a connection URL. SSL maps to sslmode=require without
// certificate verification.
func BuildDSN(conn query.Connection) string {
	port := conn.Port
	if port <= 0 {
		port = defaultPort
	}
	host := conn.Host
	if host == "" {
		host = "localhost"
	}

	dsn := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + conn.Database,
	}
	if conn.Username != "" {
		if conn.Password != "" {
			dsn.User = url.UserPassword(conn.Username, conn.Password)
		} else {
			dsn.User = url.User(conn.Username)
		}
	}
	params := url.Values{}
	if conn.SSL {
		params.Set("sslmode", "require")
	} else {
		params.Set("sslmode", "disable")
	}
	dsn.RawQuery = params.Encode()
	return dsn.String()
}

type session struct {
	conn *pgx.Conn
}

// runError treats any failure that left the connection closed as a lost
// connection rather than a bad statement.
func (s *session) runError(err error) error {
	if s.conn.IsClosed() && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return query.NewConnectionError(err)
	}
	return query.NewRunError(err)
}

func (s *session) Run(ctx context.Context, sqlText string) (query.Result, error) {
	rows, err := s.conn.Query(ctx, sqlText)
	if err != nil {
		return query.Result{}, s.runError(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, field := range fields {
		columns[i] = field.Name
	}

	out := make([]query.Row, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return query.Result{}, s.runError(fmt.Errorf("read row: %w", err))
		}
		for i := range values {
			values[i] = normalizePGValue(values[i])
		}
		out = append(out, query.BuildRow(columns, values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, s.runError(err)
	}

	return query.Result{
		Columns:  columns,
		Rows:     out,
		RowCount: rows.CommandTag().RowsAffected(),
	}, nil
}

func (s *session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.conn.Close(ctx)
}

func normalizePGValue(value any) any {
	switch typed := value.(type) {
	case pgtype.Numeric:
		if !typed.Valid {
			return nil
		}
		if typed.NaN {
			return "NaN"
		}
		asFloat, err := typed.Float64Value()
		if err != nil || !asFloat.Valid {
			return nil
		}
		return asFloat.Float64
	case pgtype.Interval:
		if !typed.Valid {
			return nil
		}
		encoded, err := typed.Value()
		if err != nil {
			return nil
		}
		return encoded
	default:
		return value
	}
}
