package single

import (
	"database/sql"

	"github.com/ecodeclub/ekit/sqlx"
)

var _ sqlx.Rows = &limitRows{}

// limitRows 在行遍历层实现 max rows 截断。
// 截断对每个结果集独立生效，切换结果集后重新计数
type limitRows struct {
	rows   *sql.Rows
	max    int
	remain int
}

func newLimitRows(rows *sql.Rows, max int) *limitRows {
	return &limitRows{rows: rows, max: max, remain: max}
}

func (r *limitRows) Next() bool {
	if r.remain <= 0 {
		return false
	}
	if !r.rows.Next() {
		return false
	}
	r.remain--
	return true
}

func (r *limitRows) NextResultSet() bool {
	if !r.rows.NextResultSet() {
		return false
	}
	r.remain = r.max
	return true
}

func (r *limitRows) Err() error {
	return r.rows.Err()
}

func (r *limitRows) Columns() ([]string, error) {
	return r.rows.Columns()
}

func (r *limitRows) ColumnTypes() ([]*sql.ColumnType, error) {
	return r.rows.ColumnTypes()
}

func (r *limitRows) Scan(dest ...any) error {
	return r.rows.Scan(dest...)
}

func (r *limitRows) Close() error {
	return r.rows.Close()
}

var _ sqlx.Rows = &resultSetView{}

// resultSetView 把多结果 *sql.Rows 的当前结果集暴露成一个独立的
// sqlx.Rows。Close 是空操作，底层 rows 的推进和关闭由
// callableStmt 统一负责
type resultSetView struct {
	rows    *sql.Rows
	maxRows int
	scanned int
}

func (v *resultSetView) Next() bool {
	if v.maxRows > 0 && v.scanned >= v.maxRows {
		return false
	}
	if !v.rows.Next() {
		return false
	}
	v.scanned++
	return true
}

// NextResultSet 视图只代表一个结果集
func (v *resultSetView) NextResultSet() bool {
	return false
}

func (v *resultSetView) Err() error {
	return v.rows.Err()
}

func (v *resultSetView) Columns() ([]string, error) {
	return v.rows.Columns()
}

func (v *resultSetView) ColumnTypes() ([]*sql.ColumnType, error) {
	return v.rows.ColumnTypes()
}

func (v *resultSetView) Scan(dest ...any) error {
	return v.rows.Scan(dest...)
}

func (v *resultSetView) Close() error {
	return nil
}
