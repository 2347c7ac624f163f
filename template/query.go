package template

import (
	"context"

	"go.uber.org/multierr"

	"github.com/meoying/sqltemplate/datasource"
)

// QueryWithBinder 查询原语：绑定参数、执行、把打开的结果集交给提取器。
// 结果集在提取器返回后关闭，绑定器持有的资源随后释放
func QueryWithBinder[T any](ctx context.Context, t *Template, psc PreparedStatementCreator,
	binder ParameterBinder, extractor RowsExtractor[T]) (T, error) {
	return ExecutePrepared(ctx, t, psc, func(ctx context.Context, stmt datasource.PreparedStmt) (T, error) {
		var zero T
		if binder != nil {
			defer func() {
				if d, ok := binder.(ParameterDisposer); ok {
					d.DisposeParams()
				}
			}()
			if err := binder.Bind(stmt); err != nil {
				return zero, err
			}
		}
		rows, err := stmt.Query(ctx)
		if err != nil {
			return zero, err
		}
		res, err := extractor.Extract(rows)
		return res, multierr.Append(err, rows.Close())
	})
}

// Query 用提取器消费查询结果
func Query[T any](ctx context.Context, t *Template, sql string,
	extractor RowsExtractor[T], args ...any) (T, error) {
	return QueryWithBinder(ctx, t, NewPreparedStatementCreator(sql), NewArgsBinder(args...), extractor)
}

// QueryForList 逐行映射成有序列表，空结果返回空列表而不是错误
func QueryForList[T any](ctx context.Context, t *Template, sql string,
	mapper RowMapper[T], args ...any) ([]T, error) {
	return Query(ctx, t, sql, NewRowMapperExtractor(mapper, 0), args...)
}

// QueryForObject 要求结果恰好一行：
// 零行返回 errs.ErrEmptyResult，多行返回 errs.ErrNonUniqueResult。
// 读到第二行就停，不会拖完整个结果集
func QueryForObject[T any](ctx context.Context, t *Template, sql string,
	mapper RowMapper[T], args ...any) (T, error) {
	res, err := Query(ctx, t, sql, NewRowMapperExtractor(mapper, 2), args...)
	if err != nil {
		var zero T
		return zero, err
	}
	return requiredSingleResult(res)
}

// QueryForMap 单行查询，结果是列名到值的有序映射
func (t *Template) QueryForMap(ctx context.Context, sql string, args ...any) (*ResultBag, error) {
	return QueryForObject(ctx, t, sql, ColumnMapRowMapper(t.cfg.ResultKeysCaseInsensitive), args...)
}

// QueryForMapList 每行一个列名到值的映射
func (t *Template) QueryForMapList(ctx context.Context, sql string, args ...any) ([]*ResultBag, error) {
	return QueryForList(ctx, t, sql, ColumnMapRowMapper(t.cfg.ResultKeysCaseInsensitive), args...)
}

// QueryVisit 对每一行应用带副作用的访问器
func (t *Template) QueryVisit(ctx context.Context, sql string, visitor RowVisitor, args ...any) error {
	_, err := Query(ctx, t, sql, NewRowVisitorExtractor(visitor), args...)
	return err
}

// Exec 执行一条不关心结果的语句
func (t *Template) Exec(ctx context.Context, sql string) error {
	_, err := Execute(ctx, t, sql, func(ctx context.Context, stmt datasource.Stmt) (struct{}, error) {
		_, _, err := stmt.Execute(ctx, sql)
		return struct{}{}, err
	})
	return err
}
