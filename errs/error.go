package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// 固定的错误分类。调用方永远用 errors.Is 来判断，
// 不依赖任何驱动内部的错误类型
var (
	// ErrAcquireConnection 无法从 ConnectionSource 拿到连接。
	// 这一类错误发生在任何 SQL 执行之前，不会经过 ErrorTranslator
	ErrAcquireConnection = errors.New("sqltemplate: 获取数据库连接失败")

	// ErrStatementPreparation 驱动拒绝创建语句
	ErrStatementPreparation = errors.New("sqltemplate: 创建语句失败")

	ErrDuplicateKey        = errors.New("sqltemplate: 唯一键冲突")
	ErrIntegrityConstraint = errors.New("sqltemplate: 完整性约束冲突")
	ErrBadSQLGrammar       = errors.New("sqltemplate: SQL 语法错误")
	ErrQueryTimeout        = errors.New("sqltemplate: 查询超时")
	ErrConcurrency         = errors.New("sqltemplate: 并发冲突")
	ErrConnectionLost      = errors.New("sqltemplate: 连接已失效")
	// ErrUncategorized 兜底分类，翻译器找不到更具体的分类时使用，
	// 原始错误仍然在错误链上
	ErrUncategorized = errors.New("sqltemplate: 未归类的数据库错误")

	// ErrWarningNotIgnored 严格警告策略下，语句执行后存在 SQL 警告
	ErrWarningNotIgnored = errors.New("sqltemplate: 存在未被忽略的 SQL 警告")

	// ErrEmptyResult 单结果查询没有查到任何一行
	ErrEmptyResult = errors.New("sqltemplate: 结果集为空")
	// ErrNonUniqueResult 单结果查询查到了超过一行
	ErrNonUniqueResult = errors.New("sqltemplate: 结果不唯一")

	// ErrInvalidBatchStatement 独立语句批量更新中混入了返回结果集的语句
	ErrInvalidBatchStatement = errors.New("sqltemplate: 批量更新中出现非更新语句")

	// ErrInvalidConfiguration 在执行任何 SQL 之前就能检测出来的配置错误
	ErrInvalidConfiguration = errors.New("sqltemplate: 配置错误")
)

// SQLError 把任务名、SQL 文本、固定分类和驱动原始错误绑在一起。
// errors.Is 对分类哨兵和原始错误都成立
type SQLError struct {
	// Task 出错时正在执行的任务，例如 StatementCallback
	Task string
	// SQL 能拿到的话就是出错语句的文本
	SQL string
	// Kind 上面的固定分类哨兵之一
	Kind error
	// Cause 驱动返回的原始错误
	Cause error
}

func (e *SQLError) Error() string {
	if e.SQL != "" {
		return fmt.Sprintf("%s: 任务 %s, sql [%s]: %v", e.Kind.Error(), e.Task, e.SQL, e.Cause)
	}
	return fmt.Sprintf("%s: 任务 %s: %v", e.Kind.Error(), e.Task, e.Cause)
}

func (e *SQLError) Unwrap() []error {
	return []error{e.Kind, e.Cause}
}

func NewSQLError(task, sql string, kind, cause error) *SQLError {
	return &SQLError{Task: task, SQL: sql, Kind: kind, Cause: cause}
}

// NewAcquireError 包装连接获取阶段的失败
func NewAcquireError(cause error) error {
	return fmt.Errorf("%w: %w", ErrAcquireConnection, cause)
}

// NewStatementPreparationError 包装语句创建阶段的失败，
// translated 是已经过翻译器分类的错误
func NewStatementPreparationError(translated error) error {
	return fmt.Errorf("%w: %w", ErrStatementPreparation, translated)
}

// NewAnonymousOutParamError 输出参数没有名字。
// 在执行任何语句之前就会被检测出来
func NewAnonymousOutParamError(index int) error {
	return fmt.Errorf("%w: 第 %d 个输出参数缺少名字", ErrInvalidConfiguration, index)
}

func NewInvalidBatchStatementError(sql string) error {
	return fmt.Errorf("%w: %s", ErrInvalidBatchStatement, sql)
}

// BatchError 批量执行失败。SQL 是第一批失败语句的文本，
// Counts 是驱动报告的每条语句的结果，
// 其中 datasource.ExecFailed 哨兵标记失败的语句
type BatchError struct {
	SQL    string
	Counts []int64
	Cause  error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("sqltemplate: 批量执行失败, 失败语句 [%s]: %v", e.SQL, e.Cause)
}

func (e *BatchError) Unwrap() error {
	return e.Cause
}
