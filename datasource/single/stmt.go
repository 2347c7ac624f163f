package single

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/ecodeclub/ekit/sqlx"
	"github.com/meoying/sqltemplate/datasource"
)

// settings 三种语句共用的配置。标准库没有 fetch size 的概念，
// 记下来只是为了保持负数哨兵原样可见；max rows 在行遍历层截断；
// 超时在执行时换算成 context 截止时间
type settings struct {
	fetchSize int
	maxRows   int
	timeout   time.Duration
}

func (s *settings) SetFetchSize(size int) error {
	s.fetchSize = size
	return nil
}

func (s *settings) SetMaxRows(max int) error {
	s.maxRows = max
	return nil
}

func (s *settings) SetQueryTimeout(timeout time.Duration) error {
	s.timeout = timeout
	return nil
}

// Warnings 标准库不暴露警告链
func (s *settings) Warnings() *datasource.Warning {
	return nil
}

func (s *settings) execCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return ctx, func() {}
}

func (s *settings) wrapRows(rows *sql.Rows) sqlx.Rows {
	if s.maxRows > 0 {
		return newLimitRows(rows, s.maxRows)
	}
	return rows
}

var _ datasource.Stmt = &stmt{}

type stmt struct {
	settings
	conn *sql.Conn
}

func (s *stmt) Query(ctx context.Context, query string) (sqlx.Rows, error) {
	ctx, cancel := s.execCtx(ctx)
	defer cancel()
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.wrapRows(rows), nil
}

func (s *stmt) Exec(ctx context.Context, query string) (sql.Result, error) {
	ctx, cancel := s.execCtx(ctx)
	defer cancel()
	return s.conn.ExecContext(ctx, query)
}

func (s *stmt) Execute(ctx context.Context, query string) (bool, int64, error) {
	if returnsRows(query) {
		rows, err := s.Query(ctx, query)
		if err != nil {
			return false, 0, err
		}
		return true, 0, rows.Close()
	}
	res, err := s.Exec(ctx, query)
	if err != nil {
		return false, 0, err
	}
	affected, err := res.RowsAffected()
	return false, affected, err
}

// Close 静态语句没有独立于连接的驱动资源
func (s *stmt) Close() error {
	return nil
}

// returnsRows 标准库的语句对象不提供[第一个结果是不是结果集]的协议，
// 只能按动词判断
func returnsRows(query string) bool {
	verb, _, _ := strings.Cut(strings.TrimSpace(query), " ")
	switch strings.ToUpper(verb) {
	case "SELECT", "SHOW", "DESCRIBE", "EXPLAIN", "VALUES", "WITH":
		return true
	default:
		return false
	}
}

var _ datasource.PreparedStmt = &preparedStmt{}

type preparedStmt struct {
	settings
	stmt  *sql.Stmt
	query string
	args  []any
}

func (p *preparedStmt) SetParams(args ...any) error {
	p.args = make([]any, len(args))
	copy(p.args, args)
	return nil
}

func (p *preparedStmt) Query(ctx context.Context) (sqlx.Rows, error) {
	ctx, cancel := p.execCtx(ctx)
	defer cancel()
	rows, err := p.stmt.QueryContext(ctx, p.args...)
	if err != nil {
		return nil, err
	}
	return p.wrapRows(rows), nil
}

func (p *preparedStmt) Exec(ctx context.Context) (sql.Result, error) {
	ctx, cancel := p.execCtx(ctx)
	defer cancel()
	return p.stmt.ExecContext(ctx, p.args...)
}

func (p *preparedStmt) Close() error {
	return p.stmt.Close()
}

var _ datasource.CallableStmt = &callableStmt{}

// callableStmt 标准库之上的尽力实现：结果集通过
// *sql.Rows.NextResultSet 逐个暴露，更新计数拿不到，
// 输出参数不支持
type callableStmt struct {
	settings
	stmt  *sql.Stmt
	query string
	args  []any
	rows  *sql.Rows
}

func (c *callableStmt) SetParams(args ...any) error {
	c.args = make([]any, len(args))
	copy(c.args, args)
	return nil
}

func (c *callableStmt) RegisterOutParam(_ int) error {
	return ErrOutParamsNotSupported
}

func (c *callableStmt) Execute(ctx context.Context) (bool, error) {
	ctx, cancel := c.execCtx(ctx)
	defer cancel()
	rows, err := c.stmt.QueryContext(ctx, c.args...)
	if err != nil {
		return false, err
	}
	c.rows = rows
	return true, nil
}

func (c *callableStmt) ResultSet() (sqlx.Rows, error) {
	return &resultSetView{rows: c.rows, maxRows: c.maxRows}, nil
}

func (c *callableStmt) UpdateCount() int64 {
	return -1
}

func (c *callableStmt) MoreResults() (bool, error) {
	if c.rows == nil {
		return false, nil
	}
	if c.rows.NextResultSet() {
		return true, nil
	}
	return false, c.rows.Err()
}

func (c *callableStmt) OutValue(_ int) (any, error) {
	return nil, ErrOutParamsNotSupported
}

func (c *callableStmt) Close() error {
	if c.rows != nil {
		_ = c.rows.Close()
	}
	return c.stmt.Close()
}
