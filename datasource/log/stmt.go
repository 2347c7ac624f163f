package log

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/ecodeclub/ekit/sqlx"
	"github.com/meoying/sqltemplate/datasource"
)

var _ datasource.Stmt = &stmtWrapper{}

type stmtWrapper struct {
	stmt   datasource.Stmt
	logger *slog.Logger
}

func (s *stmtWrapper) SetFetchSize(size int) error {
	return s.stmt.SetFetchSize(size)
}

func (s *stmtWrapper) SetMaxRows(max int) error {
	return s.stmt.SetMaxRows(max)
}

func (s *stmtWrapper) SetQueryTimeout(timeout time.Duration) error {
	return s.stmt.SetQueryTimeout(timeout)
}

func (s *stmtWrapper) Warnings() *datasource.Warning {
	return s.stmt.Warnings()
}

func (s *stmtWrapper) Close() error {
	err := s.stmt.Close()
	if err != nil {
		s.logger.Error("关闭语句失败", "错误", err)
	}
	return err
}

func (s *stmtWrapper) Query(ctx context.Context, query string) (sqlx.Rows, error) {
	rows, err := s.stmt.Query(ctx, query)
	if err != nil {
		s.logger.Error("查询失败", "语句", query, "错误", err)
		return nil, err
	}
	s.logger.Debug("查询成功", "语句", query)
	return rows, nil
}

func (s *stmtWrapper) Exec(ctx context.Context, query string) (sql.Result, error) {
	res, err := s.stmt.Exec(ctx, query)
	if err != nil {
		s.logger.Error("执行失败", "语句", query, "错误", err)
		return nil, err
	}
	s.logger.Debug("执行成功", "语句", query)
	return res, nil
}

func (s *stmtWrapper) Execute(ctx context.Context, query string) (bool, int64, error) {
	isRows, affected, err := s.stmt.Execute(ctx, query)
	if err != nil {
		s.logger.Error("执行失败", "语句", query, "错误", err)
		return isRows, affected, err
	}
	s.logger.Debug("执行成功", "语句", query, "结果集", isRows, "影响行数", affected)
	return isRows, affected, nil
}

var (
	_ datasource.Stmt        = &batchStmtWrapper{}
	_ datasource.StmtBatcher = &batchStmtWrapper{}
)

// batchStmtWrapper 只在底层语句有批量能力时使用，
// 这样类型断言探测能力的结果和裸语句保持一致
type batchStmtWrapper struct {
	*stmtWrapper
	batcher datasource.StmtBatcher
}

func (s *batchStmtWrapper) AddBatch(query string) error {
	return s.batcher.AddBatch(query)
}

func (s *batchStmtWrapper) ExecBatch(ctx context.Context) ([]int64, error) {
	counts, err := s.batcher.ExecBatch(ctx)
	if err != nil {
		s.logger.Error("批量执行失败", "错误", err)
		return counts, err
	}
	s.logger.Debug("批量执行成功", "批次大小", len(counts))
	return counts, nil
}

var _ datasource.PreparedStmt = &preparedStmtWrapper{}

type preparedStmtWrapper struct {
	stmt   datasource.PreparedStmt
	query  string
	logger *slog.Logger
}

func (p *preparedStmtWrapper) SetFetchSize(size int) error {
	return p.stmt.SetFetchSize(size)
}

func (p *preparedStmtWrapper) SetMaxRows(max int) error {
	return p.stmt.SetMaxRows(max)
}

func (p *preparedStmtWrapper) SetQueryTimeout(timeout time.Duration) error {
	return p.stmt.SetQueryTimeout(timeout)
}

func (p *preparedStmtWrapper) Warnings() *datasource.Warning {
	return p.stmt.Warnings()
}

func (p *preparedStmtWrapper) SetParams(args ...any) error {
	return p.stmt.SetParams(args...)
}

func (p *preparedStmtWrapper) Query(ctx context.Context) (sqlx.Rows, error) {
	rows, err := p.stmt.Query(ctx)
	if err != nil {
		p.logger.Error("查询失败", "语句", p.query, "错误", err)
		return nil, err
	}
	p.logger.Debug("查询成功", "语句", p.query)
	return rows, nil
}

func (p *preparedStmtWrapper) Exec(ctx context.Context) (sql.Result, error) {
	res, err := p.stmt.Exec(ctx)
	if err != nil {
		p.logger.Error("执行失败", "语句", p.query, "错误", err)
		return nil, err
	}
	p.logger.Debug("执行成功", "语句", p.query)
	return res, nil
}

func (p *preparedStmtWrapper) Close() error {
	err := p.stmt.Close()
	if err != nil {
		p.logger.Error("关闭语句失败", "语句", p.query, "错误", err)
	}
	return err
}

var (
	_ datasource.PreparedStmt = &batchPreparedStmtWrapper{}
	_ datasource.Batcher      = &batchPreparedStmtWrapper{}
)

// batchPreparedStmtWrapper 同 batchStmtWrapper，
// 只给有批量能力的预编译语句用
type batchPreparedStmtWrapper struct {
	*preparedStmtWrapper
	batcher datasource.Batcher
}

func (p *batchPreparedStmtWrapper) AddBatch() error {
	return p.batcher.AddBatch()
}

func (p *batchPreparedStmtWrapper) ExecBatch(ctx context.Context) ([]int64, error) {
	counts, err := p.batcher.ExecBatch(ctx)
	if err != nil {
		p.logger.Error("批量执行失败", "语句", p.query, "错误", err)
		return counts, err
	}
	p.logger.Debug("批量执行成功", "语句", p.query, "批次大小", len(counts))
	return counts, nil
}

var _ datasource.CallableStmt = &callableStmtWrapper{}

type callableStmtWrapper struct {
	stmt   datasource.CallableStmt
	query  string
	logger *slog.Logger
}

func (c *callableStmtWrapper) SetFetchSize(size int) error {
	return c.stmt.SetFetchSize(size)
}

func (c *callableStmtWrapper) SetMaxRows(max int) error {
	return c.stmt.SetMaxRows(max)
}

func (c *callableStmtWrapper) SetQueryTimeout(timeout time.Duration) error {
	return c.stmt.SetQueryTimeout(timeout)
}

func (c *callableStmtWrapper) Warnings() *datasource.Warning {
	return c.stmt.Warnings()
}

func (c *callableStmtWrapper) SetParams(args ...any) error {
	return c.stmt.SetParams(args...)
}

func (c *callableStmtWrapper) RegisterOutParam(index int) error {
	return c.stmt.RegisterOutParam(index)
}

func (c *callableStmtWrapper) Execute(ctx context.Context) (bool, error) {
	isRows, err := c.stmt.Execute(ctx)
	if err != nil {
		c.logger.Error("存储过程调用失败", "语句", c.query, "错误", err)
		return isRows, err
	}
	c.logger.Debug("存储过程调用成功", "语句", c.query, "结果集", isRows)
	return isRows, nil
}

func (c *callableStmtWrapper) ResultSet() (sqlx.Rows, error) {
	return c.stmt.ResultSet()
}

func (c *callableStmtWrapper) UpdateCount() int64 {
	return c.stmt.UpdateCount()
}

func (c *callableStmtWrapper) MoreResults() (bool, error) {
	return c.stmt.MoreResults()
}

func (c *callableStmtWrapper) OutValue(index int) (any, error) {
	return c.stmt.OutValue(index)
}

func (c *callableStmtWrapper) Close() error {
	err := c.stmt.Close()
	if err != nil {
		c.logger.Error("关闭语句失败", "语句", c.query, "错误", err)
	}
	return err
}
