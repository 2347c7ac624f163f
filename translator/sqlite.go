package translator

import (
	"database/sql/driver"
	"errors"

	"github.com/mattn/go-sqlite3"
	"github.com/meoying/sqltemplate/errs"
)

var _ ErrorTranslator = SQLite{}

// SQLite 按 SQLite 的结果码分类
type SQLite struct{}

func (SQLite) Translate(task, sql string, err error) error {
	if err == nil {
		return nil
	}
	kind := errs.ErrUncategorized
	var se sqlite3.Error
	switch {
	case errors.Is(err, driver.ErrBadConn):
		kind = errs.ErrConnectionLost
	case errors.As(err, &se):
		kind = sqliteKind(se)
	}
	return errs.NewSQLError(task, sql, kind, err)
}

func sqliteKind(se sqlite3.Error) error {
	switch se.Code {
	case sqlite3.ErrConstraint:
		switch se.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return errs.ErrDuplicateKey
		default:
			return errs.ErrIntegrityConstraint
		}
	case sqlite3.ErrError:
		// SQLITE_ERROR 基本都是语句本身的问题
		return errs.ErrBadSQLGrammar
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return errs.ErrConcurrency
	case sqlite3.ErrInterrupt:
		return errs.ErrQueryTimeout
	case sqlite3.ErrIoErr, sqlite3.ErrCantOpen, sqlite3.ErrNotADB:
		return errs.ErrConnectionLost
	default:
		return errs.ErrUncategorized
	}
}
