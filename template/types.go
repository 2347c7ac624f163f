package template

import (
	"context"

	"github.com/ecodeclub/ekit/sqlx"
	"github.com/meoying/sqltemplate/datasource"
)

// PreparedStatementCreator 在一条连接上创建预编译语句。
// 创建出来的语句归执行核心所有，由它负责关闭
type PreparedStatementCreator interface {
	CreateStatement(ctx context.Context, conn datasource.Conn) (datasource.PreparedStmt, error)
}

// CallableStatementCreator 在一条连接上创建存储过程调用语句
type CallableStatementCreator interface {
	CreateStatement(ctx context.Context, conn datasource.Conn) (datasource.CallableStmt, error)
}

// SQLProvider 创建器实现这个接口的话，出错时的诊断信息里会带上 SQL 文本
type SQLProvider interface {
	SQL() string
}

// ParameterBinder 把参数绑定到预编译语句上。
// 实现可以额外实现 ParameterDisposer 来释放绑定期间占用的资源
type ParameterBinder interface {
	Bind(stmt datasource.PreparedStmt) error
}

// ParameterDisposer 绑定器持有的资源(比如流式大对象)在执行结束后
// 恰好释放一次，无论执行成功还是失败
type ParameterDisposer interface {
	DisposeParams()
}

// RowMapper 把结果集的当前行映射成一个值，rowNum 从 0 开始
type RowMapper[T any] func(rows sqlx.Rows, rowNum int) (T, error)

// RowVisitor 对结果集的每一行做带副作用的处理
type RowVisitor func(rows sqlx.Rows) error

// RowsExtractor 消费整个结果集，返回任意值。
// 实现不能在自己的遍历结束后再推进游标
type RowsExtractor[T any] interface {
	Extract(rows sqlx.Rows) (T, error)
}

// RowsExtractorFunc 函数形式的 RowsExtractor
type RowsExtractorFunc[T any] func(rows sqlx.Rows) (T, error)

func (f RowsExtractorFunc[T]) Extract(rows sqlx.Rows) (T, error) {
	return f(rows)
}

// NewPreparedStatementCreator 用一条 SQL 创建最简单的创建器
func NewPreparedStatementCreator(query string) PreparedStatementCreator {
	return simpleCreator{query: query}
}

// NewCallableStatementCreator 用一条调用语句创建最简单的创建器
func NewCallableStatementCreator(query string) CallableStatementCreator {
	return callCreator{query: query}
}

var _ PreparedStatementCreator = simpleCreator{}

type simpleCreator struct {
	query string
}

func (c simpleCreator) CreateStatement(ctx context.Context, conn datasource.Conn) (datasource.PreparedStmt, error) {
	return conn.Prepare(ctx, c.query)
}

func (c simpleCreator) SQL() string {
	return c.query
}

var _ CallableStatementCreator = callCreator{}

type callCreator struct {
	query string
}

func (c callCreator) CreateStatement(ctx context.Context, conn datasource.Conn) (datasource.CallableStmt, error) {
	return conn.PrepareCall(ctx, c.query)
}

func (c callCreator) SQL() string {
	return c.query
}

// NewArgsBinder 按位置绑定一组参数值
func NewArgsBinder(args ...any) ParameterBinder {
	return argsBinder(args)
}

type argsBinder []any

func (b argsBinder) Bind(stmt datasource.PreparedStmt) error {
	return stmt.SetParams(b...)
}

// sqlOf 从创建器里尽力拿出 SQL 文本
func sqlOf(provider any) string {
	if sp, ok := provider.(SQLProvider); ok {
		return sp.SQL()
	}
	return ""
}
