package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"unicode"

	mysqldriver "github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/querydash/querydash/internal/query"
)

const defaultPort = 3306

// DialectorFunc builds the gorm dialector for a DSN. Tests swap it to run
// against sqlmock.
type DialectorFunc func(dsn string) gorm.Dialector

type Adapter struct {
	Dialector DialectorFunc
}

func NewAdapter() *Adapter {
	return &Adapter{Dialector: func(dsn string) gorm.Dialector { return gormmysql.Open(dsn) }}
}

func (a *Adapter) Open(ctx context.Context, conn query.Connection, opts query.OpenOptions) (query.Session, error) {
	dialector := a.Dialector
	if dialector == nil {
		dialector = NewAdapter().Dialector
	}

	dsn := BuildDSN(conn, opts)
	db, err := gorm.Open(dialector(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, query.NewConnectionError(err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, query.NewConnectionError(err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, query.NewConnectionError(err)
	}
	return &session{db: db, sqlDB: sqlDB}, nil
}

// BuildDSN renders a go-sql-driver DSN. Datetime columns are parsed into
// time values and SSL turns on TLS with certificate verification.
func BuildDSN(conn query.Connection, opts query.OpenOptions) string {
	port := conn.Port
	if port <= 0 {
		port = defaultPort
	}
	host := conn.Host
	if host == "" {
		host = "localhost"
	}

	cfg := mysqldriver.NewConfig()
	cfg.User = conn.Username
	cfg.Passwd = conn.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	cfg.DBName = conn.Database
	cfg.ParseTime = true
	if conn.SSL {
		cfg.TLSConfig = "true"
	}
	if opts.ConnectTimeout > 0 {
		cfg.Timeout = opts.ConnectTimeout
	}
	return cfg.FormatDSN()
}

// ReturnsRows reports whether a statement produces a row set rather than an
// affected-row count. Leading comments and parentheses are skipped before the
// first keyword is read.
func ReturnsRows(sqlText string) bool {
	switch leadingKeyword(sqlText) {
	case "select", "with", "show", "describe", "desc", "explain", "values", "table", "call":
		return true
	default:
		return false
	}
}

func leadingKeyword(sqlText string) string {
	rest := sqlText
	for {
		rest = strings.TrimLeft(rest, " \t\r\n(")
		switch {
		case strings.HasPrefix(rest, "--"), strings.HasPrefix(rest, "#"):
			end := strings.IndexByte(rest, '\n')
			if end < 0 {
				return ""
			}
			rest = rest[end+1:]
		case strings.HasPrefix(rest, "/*"):
			end := strings.Index(rest[2:], "*/")
			if end < 0 {
				return ""
			}
			rest = rest[2+end+2:]
		default:
			end := strings.IndexFunc(rest, func(r rune) bool { return !unicode.IsLetter(r) })
			if end < 0 {
				end = len(rest)
			}
			return strings.ToLower(rest[:end])
		}
	}
}

type session struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

func (s *session) Run(ctx context.Context, sqlText string) (query.Result, error) {
	db := s.db.WithContext(ctx)

	if !ReturnsRows(sqlText) {
		res := db.Exec(sqlText)
		if res.Error != nil {
			return query.Result{}, runError(res.Error)
		}
		result := query.EmptyResult()
		result.RowCount = res.RowsAffected
		return result, nil
	}

	rows, err := db.Raw(sqlText).Rows()
	if err != nil {
		return query.Result{}, runError(err)
	}
	defer func() { _ = rows.Close() }()

	columns, out, err := scanTypedRows(rows)
	if err != nil {
		return query.Result{}, runError(err)
	}
	return query.Result{Columns: columns, Rows: out, RowCount: int64(len(out))}, nil
}

func runError(err error) error {
	if errors.Is(err, mysqldriver.ErrInvalidConn) {
		return query.NewConnectionError(err)
	}
	return query.NewRunError(err)
}

func (s *session) Close() error {
	return s.sqlDB.Close()
}

// scanTypedRows reads a text-protocol row set, where every value arrives as
// bytes, and restores numbers using the reported column types.
func scanTypedRows(rows *sql.Rows) ([]string, []query.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("query columns: %w", err)
	}
	dbTypes := make([]string, len(columns))
	if columnTypes, err := rows.ColumnTypes(); err == nil {
		for i, columnType := range columnTypes {
			if i < len(dbTypes) {
				dbTypes[i] = columnType.DatabaseTypeName()
			}
		}
	}

	out := make([]query.Row, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		for i := range values {
			values[i] = coerce(dbTypes[i], values[i])
		}
		out = append(out, query.BuildRow(columns, values))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}
	return columns, out, nil
}

func coerce(dbType string, value any) any {
	raw, ok := value.([]byte)
	if !ok {
		return value
	}
	text := string(raw)
	dbType = strings.ToUpper(dbType)

	switch {
	case strings.HasSuffix(dbType, "INT") || dbType == "YEAR":
		if parsed, err := strconv.ParseInt(text, 10, 64); err == nil {
			return parsed
		}
		if parsed, err := strconv.ParseUint(text, 10, 64); err == nil {
			return float64(parsed)
		}
	case strings.HasSuffix(dbType, "DECIMAL") || strings.HasSuffix(dbType, "FLOAT") || strings.HasSuffix(dbType, "DOUBLE"):
		if parsed, err := strconv.ParseFloat(text, 64); err == nil {
			return parsed
		}
	}
	return text
}
