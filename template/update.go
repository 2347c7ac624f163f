package template

import (
	"context"
	"fmt"
	"strings"

	"github.com/ecodeclub/ekit/slice"
	"github.com/meoying/sqltemplate/datasource"
	"github.com/meoying/sqltemplate/errs"
)

// Update 执行更新语句，返回影响的行数
func (t *Template) Update(ctx context.Context, sql string, args ...any) (int64, error) {
	return UpdateWithBinder(ctx, t, NewPreparedStatementCreator(sql), NewArgsBinder(args...))
}

// UpdateWithBinder 用自定义绑定器执行更新
func UpdateWithBinder(ctx context.Context, t *Template, psc PreparedStatementCreator, binder ParameterBinder) (int64, error) {
	return ExecutePrepared(ctx, t, psc, func(ctx context.Context, stmt datasource.PreparedStmt) (int64, error) {
		if binder != nil {
			defer func() {
				if d, ok := binder.(ParameterDisposer); ok {
					d.DisposeParams()
				}
			}()
			if err := binder.Bind(stmt); err != nil {
				return 0, err
			}
		}
		res, err := stmt.Exec(ctx)
		if err != nil {
			return 0, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		t.logger.Debug("更新完成", "语句", sqlOf(psc), "影响行数", affected)
		return affected, nil
	})
}

// UpdateWithKey 执行插入并带回驱动生成的自增主键
func (t *Template) UpdateWithKey(ctx context.Context, sql string, args ...any) (affected, lastInsertID int64, err error) {
	type outcome struct {
		affected int64
		key      int64
	}
	res, err := ExecutePrepared(ctx, t, NewPreparedStatementCreator(sql),
		func(ctx context.Context, stmt datasource.PreparedStmt) (outcome, error) {
			if err := stmt.SetParams(args...); err != nil {
				return outcome{}, err
			}
			r, err := stmt.Exec(ctx)
			if err != nil {
				return outcome{}, err
			}
			affected, err := r.RowsAffected()
			if err != nil {
				return outcome{}, err
			}
			key, err := r.LastInsertId()
			if err != nil {
				return outcome{}, err
			}
			return outcome{affected: affected, key: key}, nil
		})
	return res.affected, res.key, err
}

// BatchUpdate 把一组互不相关的更新语句作为一个批次执行。
// 驱动没有批量能力时逐条执行；任何一条语句被识别为查询
// 都会立刻失败，不返回部分结果
func (t *Template) BatchUpdate(ctx context.Context, sqls ...string) ([]int64, error) {
	if len(sqls) == 0 {
		return nil, fmt.Errorf("%w: 批量更新语句列表为空", errs.ErrInvalidConfiguration)
	}
	return Execute(ctx, t, strings.Join(sqls, "; "),
		func(ctx context.Context, stmt datasource.Stmt) ([]int64, error) {
			batcher, ok := stmt.(datasource.StmtBatcher)
			if !ok {
				counts := make([]int64, len(sqls))
				for i, query := range sqls {
					isRows, affected, err := stmt.Execute(ctx, query)
					if err != nil {
						return nil, err
					}
					if isRows {
						return nil, errs.NewInvalidBatchStatementError(query)
					}
					counts[i] = affected
				}
				return counts, nil
			}
			for _, query := range sqls {
				if err := batcher.AddBatch(query); err != nil {
					return nil, err
				}
			}
			counts, err := batcher.ExecBatch(ctx)
			if err != nil {
				return nil, t.newBatchError(func(i int) string { return sqls[i] }, counts, err)
			}
			return counts, nil
		})
}

// BatchUpdateParams 同一条语句配多组参数，整体作为一个批次
func (t *Template) BatchUpdateParams(ctx context.Context, sql string, batchArgs [][]any) ([]int64, error) {
	chunkSize := len(batchArgs)
	if chunkSize == 0 {
		return nil, fmt.Errorf("%w: 批量更新参数列表为空", errs.ErrInvalidConfiguration)
	}
	grid, err := BatchUpdateChunked(ctx, t, sql, batchArgs, chunkSize,
		func(stmt datasource.PreparedStmt, args []any) error {
			return stmt.SetParams(args...)
		})
	if err != nil {
		return nil, err
	}
	counts := make([]int64, 0, chunkSize)
	for _, chunk := range grid {
		counts = append(counts, chunk...)
	}
	return counts, nil
}

// BatchUpdateChunked 把 items 按 chunkSize 切成若干批次执行，
// 返回每个批次里每条语句影响的行数。批次数量是 ceil(n/chunkSize)，
// 最后一个批次可能不满。驱动没有批量能力时逐条执行，
// 每条语句的行数包成单元素批次，返回形状保持一致
func BatchUpdateChunked[T any](ctx context.Context, t *Template, sql string, items []T, chunkSize int,
	binder func(stmt datasource.PreparedStmt, item T) error) ([][]int64, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: 批次大小 %d", errs.ErrInvalidConfiguration, chunkSize)
	}
	return ExecutePrepared(ctx, t, NewPreparedStatementCreator(sql),
		func(ctx context.Context, stmt datasource.PreparedStmt) ([][]int64, error) {
			batcher, ok := stmt.(datasource.Batcher)
			if !ok {
				t.logger.Warn("驱动不支持批量执行，退化为逐条执行", "语句", sql)
				counts := make([]int64, 0, len(items))
				for _, item := range items {
					if err := binder(stmt, item); err != nil {
						return nil, err
					}
					res, err := stmt.Exec(ctx)
					if err != nil {
						return nil, err
					}
					affected, err := res.RowsAffected()
					if err != nil {
						return nil, err
					}
					counts = append(counts, affected)
				}
				return slice.Map(counts, func(_ int, count int64) []int64 {
					return []int64{count}
				}), nil
			}
			chunkCount := (len(items) + chunkSize - 1) / chunkSize
			grid := make([][]int64, 0, chunkCount)
			for i, item := range items {
				if err := binder(stmt, item); err != nil {
					return nil, err
				}
				if err := batcher.AddBatch(); err != nil {
					return nil, err
				}
				if (i+1)%chunkSize == 0 || i+1 == len(items) {
					counts, err := batcher.ExecBatch(ctx)
					if err != nil {
						return nil, t.newBatchError(func(int) string { return sql }, counts, err)
					}
					t.logger.Debug("发送批量更新",
						"语句", sql,
						"批次", len(grid)+1,
						"总批次", chunkCount,
						"条数", len(counts))
					grid = append(grid, counts)
				}
			}
			return grid, nil
		})
}

// newBatchError 收集批次里被驱动标记为执行失败的语句文本，
// 原始失败原因原样保留
func (t *Template) newBatchError(sqlAt func(int) string, counts []int64, cause error) error {
	var failed []string
	for i, count := range counts {
		if count == datasource.ExecFailed {
			failed = append(failed, sqlAt(i))
		}
	}
	return &errs.BatchError{
		SQL:    strings.Join(failed, "; "),
		Counts: counts,
		Cause:  cause,
	}
}
