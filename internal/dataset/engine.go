package dataset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"insight-qa-go/internal/apperr"
	"insight-qa-go/internal/model"
	"insight-qa-go/pkg/log"

	_ "modernc.org/sqlite"
)

// Options 控制查询沙箱。
type Options struct {
	QueryTimeout time.Duration
	MaxRows      int
}

// Engine 是一份数据集的私有内存数据库。加载完成后切换为只读。
type Engine struct {
	db   *sql.DB
	opts Options
}

var _ model.Querier = (*Engine)(nil)

// Open 创建内存数据库并载入所有表，完成后开启 query_only。
func Open(ctx context.Context, tables []*model.Table, opts Options) (*Engine, error) {
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 10 * time.Second
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = 200
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("打开内存数据库失败: %w", err)
	}
	// 内存库只存在于单个连接上
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	for _, t := range tables {
		if err := load(ctx, db, t); err != nil {
			db.Close()
			return nil, fmt.Errorf("载入表 %s 失败: %w", t.Name, err)
		}
	}
	if _, err := db.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("切换只读模式失败: %w", err)
	}
	return &Engine{db: db, opts: opts}, nil
}

func load(ctx context.Context, db *sql.DB, t *model.Table) error {
	defs := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		defs[i] = QuoteIdent(c) + " " + t.Types[i]
		marks[i] = "?"
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", QuoteIdent(t.Name), strings.Join(defs, ", "))
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", QuoteIdent(t.Name), strings.Join(marks, ", ")))
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, row := range t.Rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Query 校验并执行一条只读语句。校验失败、超时与执行错误都返回携带原语句的可恢复错误。
func (e *Engine) Query(ctx context.Context, query string) (*model.QueryResult, error) {
	if err := CheckReadOnly(query); err != nil {
		log.Warnf("[Dataset] 拒绝执行生成的语句, Query: %s, Reason: %v", query, err)
		return nil, apperr.QueryFailed(query, err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.QueryTimeout)
	defer cancel()

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperr.QueryFailed(query, timeoutAware(ctx, err))
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, apperr.QueryFailed(query, err)
	}
	result := &model.QueryResult{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		if len(result.Rows) >= e.opts.MaxRows {
			result.Truncated = true
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, apperr.QueryFailed(query, err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.QueryFailed(query, timeoutAware(ctx, err))
	}
	result.RowCount = len(result.Rows)
	return result, nil
}

// Close 关闭内存数据库，数据随之释放。
func (e *Engine) Close() error {
	return e.db.Close()
}

func timeoutAware(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("query timed out: %w", err)
	}
	return err
}

// QuoteIdent 以双引号引用 SQL 标识符。
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
