// Package single 提供建立在标准库 *sql.DB 之上的 ConnectionSource。
// 连接池由 database/sql 自己管理，Acquire 从池里借出一条物理连接，
// Release 把它还回去
package single

import (
	"context"
	"database/sql"

	"github.com/meoying/sqltemplate/datasource"
	"github.com/meoying/sqltemplate/errs"
	"github.com/pkg/errors"
)

var (
	ErrOutParamsNotSupported = errors.New("single: 标准库驱动不支持输出参数")
	ErrUnknownConn           = errors.New("single: 归还的连接不是本 ConnectionSource 发出的")
)

var _ datasource.ConnectionSource = &ConnectionSource{}

type ConnectionSource struct {
	db *sql.DB
}

func NewConnectionSource(db *sql.DB) *ConnectionSource {
	return &ConnectionSource{db: db}
}

func (s *ConnectionSource) Acquire(ctx context.Context) (datasource.Conn, error) {
	c, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &conn{raw: c}, nil
}

func (s *ConnectionSource) Release(c datasource.Conn) error {
	sc, ok := c.(*conn)
	if !ok {
		return errs.NewSQLError("Release", "", errs.ErrInvalidConfiguration, ErrUnknownConn)
	}
	return sc.raw.Close()
}

var _ datasource.Conn = &conn{}

type conn struct {
	raw *sql.Conn
}

func (c *conn) Statement(_ context.Context) (datasource.Stmt, error) {
	return &stmt{conn: c.raw}, nil
}

func (c *conn) Prepare(ctx context.Context, query string) (datasource.PreparedStmt, error) {
	ps, err := c.raw.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &preparedStmt{stmt: ps, query: query}, nil
}

func (c *conn) PrepareCall(ctx context.Context, query string) (datasource.CallableStmt, error) {
	ps, err := c.raw.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &callableStmt{stmt: ps, query: query}, nil
}
