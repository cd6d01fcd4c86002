package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/querydash/querydash/internal/query"
)

// Adapter runs statements against a local database file. Host, port,
// credentials and SSL are ignored.
type Adapter struct{}

func NewAdapter() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Open(ctx context.Context, conn query.Connection, _ query.OpenOptions) (query.Session, error) {
	path := strings.TrimSpace(conn.Database)
	if path == "" {
		return nil, query.ConnectionErrorf("sqlite database path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, query.ConnectionErrorf("SQLite database file not found: %s", path)
		}
		return nil, query.NewConnectionError(err)
	}
	if info.IsDir() {
		return nil, query.ConnectionErrorf("sqlite database path is a directory: %s", path)
	}

	db, err := gorm.Open(sqlite.Open(BuildDSN(path)), &gorm.Config{
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
	// One handle per session; statements stay on the same connection.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, query.NewConnectionError(err)
	}
	return &session{db: db, sqlDB: sqlDB}, nil
}

// BuildDSN opens the file read-write and never creates it. The path is
// percent-escaped so '?', '#' and '%' in file names stay part of the path.
func BuildDSN(path string) string {
	dsn := url.URL{Scheme: "file", Path: path, OmitHost: true, RawQuery: "mode=rw"}
	return dsn.String()
}

type session struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

// Run steps through every statement result, so writes report a zero row
// count.
func (s *session) Run(ctx context.Context, sqlText string) (query.Result, error) {
	rows, err := s.db.WithContext(ctx).Raw(sqlText).Rows()
	if err != nil {
		return query.Result{}, query.NewRunError(err)
	}
	defer func() { _ = rows.Close() }()

	columns, out, err := query.ScanRows(rows)
	if err != nil {
		return query.Result{}, query.NewRunError(err)
	}
	if columns == nil {
		columns = []string{}
	}
	return query.Result{Columns: columns, Rows: out, RowCount: int64(len(out))}, nil
}

func (s *session) Close() error {
	return s.sqlDB.Close()
}
