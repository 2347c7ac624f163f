// Package log 给 ConnectionSource 套一层 slog 日志装饰器，
// 连接的借还、语句的创建执行都会留下日志
package log

import (
	"context"
	"log/slog"

	"github.com/meoying/sqltemplate/datasource"
)

type options struct {
	l *slog.Logger
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(opts *options) {
		opts.l = l
	}
}

var _ datasource.ConnectionSource = &connectionSource{}

type connectionSource struct {
	src    datasource.ConnectionSource
	logger *slog.Logger
}

func NewConnectionSource(src datasource.ConnectionSource, opts ...Option) datasource.ConnectionSource {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.l == nil {
		o.l = slog.Default()
	}
	return &connectionSource{src: src, logger: o.l}
}

func (s *connectionSource) Acquire(ctx context.Context) (datasource.Conn, error) {
	conn, err := s.src.Acquire(ctx)
	if err != nil {
		s.logger.Error("获取连接失败", "错误", err)
		return nil, err
	}
	s.logger.Debug("获取连接成功")
	return &connWrapper{conn: conn, logger: s.logger}, nil
}

func (s *connectionSource) Release(conn datasource.Conn) error {
	cw, ok := conn.(*connWrapper)
	if ok {
		conn = cw.conn
	}
	err := s.src.Release(conn)
	if err != nil {
		s.logger.Error("归还连接失败", "错误", err)
		return err
	}
	s.logger.Debug("归还连接成功")
	return nil
}

var _ datasource.Conn = &connWrapper{}

type connWrapper struct {
	conn   datasource.Conn
	logger *slog.Logger
}

func (c *connWrapper) Statement(ctx context.Context) (datasource.Stmt, error) {
	stmt, err := c.conn.Statement(ctx)
	if err != nil {
		c.logger.Error("创建语句失败", "错误", err)
		return nil, err
	}
	w := &stmtWrapper{stmt: stmt, logger: c.logger}
	if b, ok := stmt.(datasource.StmtBatcher); ok {
		return &batchStmtWrapper{stmtWrapper: w, batcher: b}, nil
	}
	return w, nil
}

func (c *connWrapper) Prepare(ctx context.Context, query string) (datasource.PreparedStmt, error) {
	stmt, err := c.conn.Prepare(ctx, query)
	if err != nil {
		c.logger.Error("预编译语句失败", "语句", query, "错误", err)
		return nil, err
	}
	c.logger.Debug("预编译语句成功", "语句", query)
	w := &preparedStmtWrapper{stmt: stmt, query: query, logger: c.logger}
	if b, ok := stmt.(datasource.Batcher); ok {
		return &batchPreparedStmtWrapper{preparedStmtWrapper: w, batcher: b}, nil
	}
	return w, nil
}

func (c *connWrapper) PrepareCall(ctx context.Context, query string) (datasource.CallableStmt, error) {
	stmt, err := c.conn.PrepareCall(ctx, query)
	if err != nil {
		c.logger.Error("准备存储过程调用失败", "语句", query, "错误", err)
		return nil, err
	}
	c.logger.Debug("准备存储过程调用成功", "语句", query)
	return &callableStmtWrapper{stmt: stmt, query: query, logger: c.logger}, nil
}
