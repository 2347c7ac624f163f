package datasource

import (
	"context"
	"database/sql"
	"time"

	"github.com/ecodeclub/ekit/sqlx"
)

// ExecFailed 批量执行结果中标记[这一条语句执行失败]的哨兵
const ExecFailed int64 = -3

// ConnectionSource 把连接的获取与归还从执行核心中剥离出去。
// 实现可以是连接池，也可以是绑定了进行中事务的单条连接
type ConnectionSource interface {
	Acquire(ctx context.Context) (Conn, error)
	// Release 归还连接。事务场景下实现只做引用计数递减，
	// 不真正关闭物理连接
	Release(conn Conn) error
}

// DeadlineHolder 有截止时间的 ConnectionSource 实现这个接口，
// 语句超时会被压缩到不超过剩余的事务时间
type DeadlineHolder interface {
	Deadline() (time.Time, bool)
}

// Conn 表示一条可以创建语句的连接。
// 注意: 这里没有 Close，连接的生命周期完全归 ConnectionSource 管
type Conn interface {
	// Statement 创建一个执行时才携带 SQL 的静态语句
	Statement(ctx context.Context) (Stmt, error)
	// Prepare 创建一个预编译语句
	Prepare(ctx context.Context, query string) (PreparedStmt, error)
	// PrepareCall 创建一个存储过程调用语句
	PrepareCall(ctx context.Context, query string) (CallableStmt, error)
}

// BaseStmt 所有语句共有的方法集合。
// fetch size 和 max rows 的负数哨兵原样传给实现，
// 有些驱动会给负数赋予别的含义，-1 以外的负数不做拦截
type BaseStmt interface {
	SetFetchSize(size int) error
	SetMaxRows(max int) error
	SetQueryTimeout(timeout time.Duration) error
	// Warnings 返回执行后驱动挂在语句上的警告链，没有则为 nil
	Warnings() *Warning
	Close() error
}

// Stmt 静态语句，SQL 文本在执行时才给出
type Stmt interface {
	BaseStmt
	Query(ctx context.Context, query string) (sqlx.Rows, error)
	Exec(ctx context.Context, query string) (sql.Result, error)
	// Execute 返回第一个结果是不是结果集，不是的话附带更新计数。
	// 独立语句批量更新用它来拒绝查询语句
	Execute(ctx context.Context, query string) (isRows bool, affected int64, err error)
}

// PreparedStmt 预编译语句。参数先 SetParams 再执行，
// 这样同一组参数既能走单次执行也能走批量累积
type PreparedStmt interface {
	BaseStmt
	SetParams(args ...any) error
	Query(ctx context.Context) (sqlx.Rows, error)
	Exec(ctx context.Context) (sql.Result, error)
}

// Batcher 支持驱动层批量执行的预编译语句额外实现这个接口。
// 执行核心用类型断言探测，断言失败就退回逐条执行
type Batcher interface {
	// AddBatch 把当前已绑定的参数快照进批次
	AddBatch() error
	// ExecBatch 执行累积的批次并清空，返回每条语句影响的行数
	ExecBatch(ctx context.Context) ([]int64, error)
}

// StmtBatcher 静态语句的批量能力
type StmtBatcher interface {
	AddBatch(query string) error
	ExecBatch(ctx context.Context) ([]int64, error)
}

// CallableStmt 存储过程调用语句，驱动按多结果协议暴露结果:
// 任意时刻要么有一个当前结果集(UpdateCount 返回 -1)，
// 要么有一个当前更新计数
type CallableStmt interface {
	BaseStmt
	SetParams(args ...any) error
	// RegisterOutParam 声明 index 位置(从 0 开始)是输出参数
	RegisterOutParam(index int) error
	// Execute 执行调用，返回第一个结果是不是结果集
	Execute(ctx context.Context) (isRows bool, err error)
	// ResultSet 返回当前结果集
	ResultSet() (sqlx.Rows, error)
	// UpdateCount 返回当前更新计数，当前结果是结果集
	// 或者已经没有更多结果时返回 -1
	UpdateCount() int64
	// MoreResults 前进到下一个结果，返回下一个结果是不是结果集
	MoreResults() (bool, error)
	// OutValue 读取输出参数的值，结果集型输出参数返回 sqlx.Rows
	OutValue(index int) (any, error)
}
