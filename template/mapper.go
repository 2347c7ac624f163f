package template

import (
	"github.com/ecodeclub/ekit/sqlx"
	"github.com/meoying/sqltemplate/errs"
)

// NewRowMapperExtractor 逐行映射成有序列表。
// limit 大于 0 时在第 limit 行处确定性截断，行数不足也不报错；
// limit 为 0 表示读完整个结果集
func NewRowMapperExtractor[T any](mapper RowMapper[T], limit int) RowsExtractor[[]T] {
	return RowsExtractorFunc[[]T](func(rows sqlx.Rows) ([]T, error) {
		var res []T
		for rowNum := 0; rows.Next(); rowNum++ {
			if limit > 0 && rowNum >= limit {
				break
			}
			val, err := mapper(rows, rowNum)
			if err != nil {
				return nil, err
			}
			res = append(res, val)
		}
		return res, rows.Err()
	})
}

// NewRowVisitorExtractor 逐行应用带副作用的访问器，不产出值
func NewRowVisitorExtractor(visitor RowVisitor) RowsExtractor[struct{}] {
	return RowsExtractorFunc[struct{}](func(rows sqlx.Rows) (struct{}, error) {
		for rows.Next() {
			if err := visitor(rows); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, rows.Err()
	})
}

// SingleColumnRowMapper 把每行的第一列扫描成 T
func SingleColumnRowMapper[T any]() RowMapper[T] {
	return func(rows sqlx.Rows, _ int) (T, error) {
		var val T
		err := rows.Scan(&val)
		return val, err
	}
}

// ColumnMapRowMapper 把每行映射成列名到值的有序映射
func ColumnMapRowMapper(caseInsensitive bool) RowMapper[*ResultBag] {
	return func(rows sqlx.Rows, _ int) (*ResultBag, error) {
		cols, err := rows.Columns()
		if err != nil {
			return nil, err
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err = rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		bag := NewResultBag(caseInsensitive)
		for i, col := range cols {
			bag.Put(col, vals[i])
		}
		return bag, nil
	}
}

// requiredSingleResult 单结果帮助方法的收口：
// 空列表和多于一个元素的列表都是错误，与列表查询的空返回不同
func requiredSingleResult[T any](res []T) (T, error) {
	var zero T
	switch len(res) {
	case 0:
		return zero, errs.ErrEmptyResult
	case 1:
		return res[0], nil
	default:
		return zero, errs.ErrNonUniqueResult
	}
}
