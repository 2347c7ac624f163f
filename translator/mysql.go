package translator

import (
	"database/sql/driver"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/meoying/sqltemplate/errs"
)

var _ ErrorTranslator = MySQL{}

// MySQL 按 MySQL 服务端错误码分类
type MySQL struct{}

func (MySQL) Translate(task, sql string, err error) error {
	if err == nil {
		return nil
	}
	kind := errs.ErrUncategorized
	var me *mysql.MySQLError
	switch {
	case errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn):
		kind = errs.ErrConnectionLost
	case errors.As(err, &me):
		kind = mysqlKind(me.Number)
	}
	return errs.NewSQLError(task, sql, kind, err)
}

func mysqlKind(number uint16) error {
	switch number {
	case 1062, 1169:
		// ER_DUP_ENTRY / ER_DUP_UNIQUE
		return errs.ErrDuplicateKey
	case 1048, 1216, 1217, 1364, 1451, 1452, 1557:
		// 非空约束和外键约束
		return errs.ErrIntegrityConstraint
	case 1054, 1064, 1146:
		// 列不存在/语法错误/表不存在
		return errs.ErrBadSQLGrammar
	case 1205, 1213:
		// 锁等待超时和死锁
		return errs.ErrConcurrency
	case 1317, 3024:
		// 查询被中断/超出 max_execution_time
		return errs.ErrQueryTimeout
	case 1040, 1042, 1043, 1129, 1130:
		return errs.ErrConnectionLost
	default:
		return errs.ErrUncategorized
	}
}
