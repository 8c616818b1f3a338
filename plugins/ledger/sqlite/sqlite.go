package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"nrconv/pkg/contract"
)

// Options: 账本数据库位置。
type Options struct {
	// Path: SQLite 文件路径；":memory:" 为进程内临时库。
	Path string `json:"path"`
}

// Ledger 以 SQLite 记录每次收敛分析的摘要（一行一个运行）。
type Ledger struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	created_at  TEXT NOT NULL,
	coord_time  REAL NOT NULL,
	component   TEXT NOT NULL,
	conv_order  REAL NOT NULL,
	residual    REAL NOT NULL,
	iterations  INTEGER NOT NULL,
	points      INTEGER NOT NULL,
	files       TEXT NOT NULL,
	spacings    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
`

// Open 打开（必要时创建）账本。
func Open(opts *Options) (*Ledger, error) {
	if opts == nil || strings.TrimSpace(opts.Path) == "" {
		return nil, fmt.Errorf("ledger: path required")
	}
	path := opts.Path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ledger: create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open database: %w", err)
	}
	// 单连接：:memory: 库按连接隔离，且写入无需并发
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: create schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

var _ contract.Ledger = (*Ledger)(nil)

// Record 写入一条摘要；ID/CreatedAt 为空时自动生成。
func (l *Ledger) Record(ctx context.Context, s contract.RunSummary) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	files, err := json.Marshal(s.Files)
	if err != nil {
		return err
	}
	spacings, err := json.Marshal(s.Spacings)
	if err != nil {
		return err
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, coord_time, component, conv_order, residual, iterations, points, files, spacings)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.CreatedAt.UTC().Format(time.RFC3339Nano), s.Time, s.Component, s.Order, s.Residual,
		s.Iterations, s.Points, string(files), string(spacings))
	if err != nil {
		return fmt.Errorf("ledger: insert run %s: %w", s.ID, err)
	}
	return nil
}

// Recent 按创建时间倒序返回最多 limit 条（limit<=0 取 20）。
func (l *Ledger) Recent(ctx context.Context, limit int) ([]contract.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, created_at, coord_time, component, conv_order, residual, iterations, points, files, spacings
		 FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: query: %w", err)
	}
	defer rows.Close()

	var out []contract.RunSummary
	for rows.Next() {
		var (
			s               contract.RunSummary
			created         string
			files, spacings string
		)
		if err := rows.Scan(&s.ID, &created, &s.Time, &s.Component, &s.Order, &s.Residual, &s.Iterations, &s.Points, &files, &spacings); err != nil {
			return nil, fmt.Errorf("ledger: scan: %w", err)
		}
		if s.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("ledger: run %s created_at: %w", s.ID, err)
		}
		if err := json.Unmarshal([]byte(files), &s.Files); err != nil {
			return nil, fmt.Errorf("ledger: run %s files: %w", s.ID, err)
		}
		if err := json.Unmarshal([]byte(spacings), &s.Spacings); err != nil {
			return nil, fmt.Errorf("ledger: run %s spacings: %w", s.ID, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close 关闭数据库。
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}
