// Package template 提供资源安全的 SQL 执行模板。
// 连接、语句、结果集三元组的获取与释放全部由执行核心负责，
// 回调只会看到一个已经创建好、配置好的语句
package template

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/meoying/sqltemplate/datasource"
	"github.com/meoying/sqltemplate/errs"
	"github.com/meoying/sqltemplate/translator"
)

type Template struct {
	src        datasource.ConnectionSource
	translator translator.ErrorTranslator
	logger     *slog.Logger
	cfg        Config
}

type Option func(*Template)

func WithLogger(l *slog.Logger) Option {
	return func(t *Template) {
		t.logger = l
	}
}

func WithTranslator(tr translator.ErrorTranslator) Option {
	return func(t *Template) {
		t.translator = tr
	}
}

func WithConfig(cfg Config) Option {
	return func(t *Template) {
		t.cfg = cfg
	}
}

func New(src datasource.ConnectionSource, opts ...Option) *Template {
	t := &Template{
		src: src,
		cfg: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	if t.translator == nil {
		t.translator = translator.Uncategorized{}
	}
	return t
}

// Config 返回当前配置的副本
func (t *Template) Config() Config {
	return t.cfg
}

// Execute 静态语句原语。sql 只用于诊断，
// 回调可以在语句上执行任意文本
func Execute[T any](ctx context.Context, t *Template, sql string,
	action func(ctx context.Context, stmt datasource.Stmt) (T, error)) (T, error) {
	var zero T
	conn, err := t.src.Acquire(ctx)
	if err != nil {
		return zero, errs.NewAcquireError(err)
	}
	var stmt datasource.Stmt
	defer func() {
		t.releaseAll(nil, stmt, conn)
	}()
	stmt, err = (&connProxy{conn: conn, tpl: t}).Statement(ctx)
	if err != nil {
		return zero, errs.NewStatementPreparationError(t.translate("StatementCreate", sql, err))
	}
	res, err := action(ctx, stmt)
	if err != nil {
		return zero, t.translate("StatementCallback", sql, err)
	}
	if err = t.handleWarnings(stmt, sql); err != nil {
		return zero, err
	}
	return res, nil
}

// ExecutePrepared 预编译语句原语
func ExecutePrepared[T any](ctx context.Context, t *Template, psc PreparedStatementCreator,
	action func(ctx context.Context, stmt datasource.PreparedStmt) (T, error)) (T, error) {
	var zero T
	conn, err := t.src.Acquire(ctx)
	if err != nil {
		return zero, errs.NewAcquireError(err)
	}
	var stmt datasource.PreparedStmt
	defer func() {
		// 释放顺序固定：绑定资源 → 语句 → 连接
		t.releaseAll(psc, stmt, conn)
	}()
	stmt, err = psc.CreateStatement(ctx, &connProxy{conn: conn, tpl: t})
	if err != nil {
		return zero, errs.NewStatementPreparationError(t.translate("PreparedStatementCreate", sqlOf(psc), err))
	}
	res, err := action(ctx, stmt)
	if err != nil {
		return zero, t.translate("PreparedStatementCallback", sqlOf(psc), err)
	}
	if err = t.handleWarnings(stmt, sqlOf(psc)); err != nil {
		return zero, err
	}
	return res, nil
}

// ExecuteCall 存储过程调用原语
func ExecuteCall[T any](ctx context.Context, t *Template, csc CallableStatementCreator,
	action func(ctx context.Context, stmt datasource.CallableStmt) (T, error)) (T, error) {
	var zero T
	conn, err := t.src.Acquire(ctx)
	if err != nil {
		return zero, errs.NewAcquireError(err)
	}
	var stmt datasource.CallableStmt
	defer func() {
		t.releaseAll(csc, stmt, conn)
	}()
	stmt, err = csc.CreateStatement(ctx, &connProxy{conn: conn, tpl: t})
	if err != nil {
		return zero, errs.NewStatementPreparationError(t.translate("CallableStatementCreate", sqlOf(csc), err))
	}
	res, err := action(ctx, stmt)
	if err != nil {
		return zero, t.translate("CallableStatementCallback", sqlOf(csc), err)
	}
	if err = t.handleWarnings(stmt, sqlOf(csc)); err != nil {
		return zero, err
	}
	return res, nil
}

// ExecuteConn 连接级原语。回调拿到的是代理过的连接：
// 回调窗口内通过它创建的每个语句都会被套上同样的语句配置
func ExecuteConn[T any](ctx context.Context, t *Template,
	action func(ctx context.Context, conn datasource.Conn) (T, error)) (T, error) {
	var zero T
	conn, err := t.src.Acquire(ctx)
	if err != nil {
		return zero, errs.NewAcquireError(err)
	}
	defer func() {
		t.releaseAll(nil, nil, conn)
	}()
	res, err := action(ctx, &connProxy{conn: conn, tpl: t})
	if err != nil {
		return zero, t.translate("ConnCallback", sqlOf(action), err)
	}
	return res, nil
}

// releaseAll 每个执行原语的所有退出路径都走这里，
// 顺序：创建器持有的绑定资源 → 语句 → 连接。
// 释放失败不覆盖主错误，只记日志
func (t *Template) releaseAll(creator any, stmt datasource.BaseStmt, conn datasource.Conn) {
	if d, ok := creator.(ParameterDisposer); ok {
		d.DisposeParams()
	}
	var merr *multierror.Error
	if stmt != nil {
		merr = multierror.Append(merr, stmt.Close())
	}
	if conn != nil {
		merr = multierror.Append(merr, t.src.Release(conn))
	}
	if err := merr.ErrorOrNil(); err != nil {
		t.logger.Error("释放资源失败", "错误", err)
	}
}

// translate 把驱动错误翻译成固定分类。
// 已经分类过的错误原样放行，避免二次包装
func (t *Template) translate(task, sql string, err error) error {
	var se *errs.SQLError
	if errors.As(err, &se) {
		return err
	}
	var be *errs.BatchError
	if errors.As(err, &be) {
		return err
	}
	if errors.Is(err, errs.ErrEmptyResult) || errors.Is(err, errs.ErrNonUniqueResult) ||
		errors.Is(err, errs.ErrInvalidConfiguration) || errors.Is(err, errs.ErrInvalidBatchStatement) ||
		errors.Is(err, context.Canceled) {
		return err
	}
	return t.translator.Translate(task, sql, err)
}

// handleWarnings 成功路径上检查语句的警告链。
// 忽略模式下逐条记日志，严格模式下第一个警告就返回错误
func (t *Template) handleWarnings(stmt datasource.BaseStmt, sql string) error {
	warning := stmt.Warnings()
	if t.cfg.IgnoreWarnings {
		for ; warning != nil; warning = warning.Next {
			t.logger.Debug("忽略 SQL 警告",
				"state", warning.State,
				"code", warning.Code,
				"message", warning.Message)
		}
		return nil
	}
	if warning != nil {
		return fmt.Errorf("%w: state %s, code %d, %s, sql [%s]",
			errs.ErrWarningNotIgnored, warning.State, warning.Code, warning.Message, sql)
	}
	return nil
}

// applyStatementSettings -1 表示不设置，其余值(包括别的负数)原样下发
func (t *Template) applyStatementSettings(stmt datasource.BaseStmt) error {
	if t.cfg.FetchSize != -1 {
		if err := stmt.SetFetchSize(t.cfg.FetchSize); err != nil {
			return err
		}
	}
	if t.cfg.MaxRows != -1 {
		if err := stmt.SetMaxRows(t.cfg.MaxRows); err != nil {
			return err
		}
	}
	if timeout := t.effectiveTimeout(); timeout > 0 {
		return stmt.SetQueryTimeout(timeout)
	}
	return nil
}

// effectiveTimeout 配置超时和剩余事务时间里取较短的那个
func (t *Template) effectiveTimeout() time.Duration {
	timeout := t.cfg.QueryTimeout
	holder, ok := t.src.(datasource.DeadlineHolder)
	if !ok {
		return timeout
	}
	deadline, has := holder.Deadline()
	if !has {
		return timeout
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		// 事务已经超时，给驱动一个立刻就会触发的超时
		return time.Nanosecond
	}
	if timeout <= 0 || remaining < timeout {
		return remaining
	}
	return timeout
}

var _ datasource.Conn = &connProxy{}

// connProxy 拦截连接上的语句创建，保证回调窗口内创建的
// 每个语句都带上模板的语句配置
type connProxy struct {
	conn datasource.Conn
	tpl  *Template
}

func (p *connProxy) Statement(ctx context.Context) (datasource.Stmt, error) {
	stmt, err := p.conn.Statement(ctx)
	if err != nil {
		return nil, err
	}
	if err = p.tpl.applyStatementSettings(stmt); err != nil {
		_ = stmt.Close()
		return nil, err
	}
	return stmt, nil
}

func (p *connProxy) Prepare(ctx context.Context, query string) (datasource.PreparedStmt, error) {
	stmt, err := p.conn.Prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	if err = p.tpl.applyStatementSettings(stmt); err != nil {
		_ = stmt.Close()
		return nil, err
	}
	return stmt, nil
}

func (p *connProxy) PrepareCall(ctx context.Context, query string) (datasource.CallableStmt, error) {
	stmt, err := p.conn.PrepareCall(ctx, query)
	if err != nil {
		return nil, err
	}
	if err = p.tpl.applyStatementSettings(stmt); err != nil {
		_ = stmt.Close()
		return nil, err
	}
	return stmt, nil
}
