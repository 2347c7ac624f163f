package template

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/ecodeclub/ekit/sqlx"
	"github.com/meoying/sqltemplate/datasource"
	"github.com/meoying/sqltemplate/errs"
)

// 未声明结果的合成命名约定，编号从 1 开始
const (
	returnResultSetPrefix   = "#result-set-"
	returnUpdateCountPrefix = "#update-count-"
)

type paramKind uint8

const (
	paramIn paramKind = iota
	paramOut
	paramReturnResultSet
	paramReturnUpdateCount
)

// Param 存储过程的声明参数。输入/输出参数按声明顺序对应调用
// 语句里的占位符，结果集和更新计数参数不占位置，只用来接收
// 调用返回的结果
type Param struct {
	name   string
	value  any
	kind   paramKind
	mapper RowMapper[any]
}

// NewParam 输入参数
func NewParam(name string, value any) Param {
	return Param{name: name, value: value, kind: paramIn}
}

// NewOutParam 输出参数。名字不能为空，调用前就会校验
func NewOutParam(name string) Param {
	return Param{name: name, kind: paramOut}
}

// NewOutResultSetParam 值是结果集的输出参数，带行映射
func NewOutResultSetParam(name string, mapper RowMapper[any]) Param {
	return Param{name: name, kind: paramOut, mapper: mapper}
}

// NewReturnResultSet 声明调用会直接返回的一个结果集
func NewReturnResultSet(name string, mapper RowMapper[any]) Param {
	return Param{name: name, kind: paramReturnResultSet, mapper: mapper}
}

// NewReturnUpdateCount 声明调用会返回的一个更新计数
func NewReturnUpdateCount(name string) Param {
	return Param{name: name, kind: paramReturnUpdateCount}
}

func (p Param) isResultsParam() bool {
	return p.kind == paramReturnResultSet || p.kind == paramReturnUpdateCount
}

// callState 多结果协议的显式状态。任意时刻要么在等待判定下一个
// 结果的种类，要么在处理一个结果集或一个更新计数
type callState uint8

const (
	stateAwaitingResult callState = iota
	stateProcessingResultSet
	stateProcessingUpdateCount
	stateDone
)

// Call 执行存储过程调用，按声明参数处理交错的结果集和更新计数，
// 返回一个按名字组织的有序结果集合。
// 输入值按声明顺序绑定，输出参数按它在输入/输出参数中的下标注册
func (t *Template) Call(ctx context.Context, call string, params []Param) (*ResultBag, error) {
	var rsParams, ucParams, callParams []Param
	for i, param := range params {
		if (param.kind == paramOut || param.isResultsParam()) && param.name == "" {
			return nil, errs.NewAnonymousOutParamError(i)
		}
		switch param.kind {
		case paramReturnResultSet:
			rsParams = append(rsParams, param)
		case paramReturnUpdateCount:
			ucParams = append(ucParams, param)
		default:
			callParams = append(callParams, param)
		}
	}
	return ExecuteCall(ctx, t, NewCallableStatementCreator(call),
		func(ctx context.Context, stmt datasource.CallableStmt) (*ResultBag, error) {
			var inValues []any
			for i, param := range callParams {
				if param.kind == paramOut {
					if err := stmt.RegisterOutParam(i); err != nil {
						return nil, err
					}
					continue
				}
				inValues = append(inValues, param.value)
			}
			if len(inValues) > 0 {
				if err := stmt.SetParams(inValues...); err != nil {
					return nil, err
				}
			}
			isRows, err := stmt.Execute(ctx)
			if err != nil {
				return nil, err
			}
			updateCount := stmt.UpdateCount()
			t.logger.Debug("存储过程调用返回", "语句", call, "结果集", isRows, "更新计数", updateCount)
			bag := NewResultBag(t.cfg.ResultKeysCaseInsensitive)
			if (isRows || updateCount != -1) && !t.cfg.SkipResultsProcessing {
				if err = t.processReturnedResults(stmt, rsParams, ucParams, updateCount, bag); err != nil {
					return nil, err
				}
			}
			if err = t.extractOutParams(stmt, callParams, bag); err != nil {
				return nil, err
			}
			return bag, nil
		})
}

// processReturnedResults 驱动多结果协议的状态机：
// 更新计数为 -1 说明当前结果是结果集，消费下一个声明的结果集参数，
// 用完则按位置约定合成一个默认参数；更新计数不为 -1 时对更新计数
// 参数做同样的事。没有更多结果且更新计数为 -1 时终止
func (t *Template) processReturnedResults(stmt datasource.CallableStmt,
	rsParams, ucParams []Param, updateCount int64, bag *ResultBag) error {
	var rsIndex, ucIndex int
	state := stateAwaitingResult
	for state != stateDone {
		switch state {
		case stateAwaitingResult:
			if updateCount == -1 {
				state = stateProcessingResultSet
			} else {
				state = stateProcessingUpdateCount
			}
			continue
		case stateProcessingResultSet:
			param, declared := paramAt(rsParams, rsIndex)
			if !declared {
				if t.cfg.SkipUndeclaredResults {
					break
				}
				name := fmt.Sprintf("%s%d", returnResultSetPrefix, rsIndex+1)
				t.logger.Debug("合成默认结果集参数", "名字", name)
				param = NewReturnResultSet(name, t.anyColumnMapMapper())
			}
			rows, err := stmt.ResultSet()
			if err != nil {
				return err
			}
			if err = t.processResultSet(rows, param, bag); err != nil {
				return err
			}
			rsIndex++
		case stateProcessingUpdateCount:
			param, declared := paramAt(ucParams, ucIndex)
			if !declared {
				if t.cfg.SkipUndeclaredResults {
					break
				}
				name := fmt.Sprintf("%s%d", returnUpdateCountPrefix, ucIndex+1)
				t.logger.Debug("合成默认更新计数参数", "名字", name)
				param = NewReturnUpdateCount(name)
			}
			bag.Put(param.name, updateCount)
			ucIndex++
		}
		more, err := stmt.MoreResults()
		if err != nil {
			return err
		}
		updateCount = stmt.UpdateCount()
		if !more && updateCount == -1 {
			state = stateDone
		} else {
			state = stateAwaitingResult
		}
	}
	return nil
}

// extractOutParams 按声明顺序读取输出参数；
// 值是结果集的输出参数走和直接结果集一样的处理，
// 没有声明行映射的话合成一个默认的列映射
func (t *Template) extractOutParams(stmt datasource.CallableStmt, callParams []Param, bag *ResultBag) error {
	for i, param := range callParams {
		if param.kind != paramOut {
			continue
		}
		val, err := stmt.OutValue(i)
		if err != nil {
			return err
		}
		if rows, ok := val.(sqlx.Rows); ok {
			if param.mapper == nil {
				t.logger.Debug("输出参数返回了结果集，合成默认结果集参数", "名字", param.name)
				param.mapper = t.anyColumnMapMapper()
			}
			if err = t.processResultSet(rows, param, bag); err != nil {
				return err
			}
			continue
		}
		bag.Put(param.name, val)
	}
	return nil
}

// processResultSet 结果集在这里被完整消费并关闭。
// 参数没有声明行映射的话只负责关闭
func (t *Template) processResultSet(rows sqlx.Rows, param Param, bag *ResultBag) error {
	if rows == nil {
		return nil
	}
	if param.mapper == nil {
		return rows.Close()
	}
	list, err := NewRowMapperExtractor(param.mapper, 0).Extract(rows)
	if err = multierr.Append(err, rows.Close()); err != nil {
		return err
	}
	bag.Put(param.name, list)
	return nil
}

func (t *Template) anyColumnMapMapper() RowMapper[any] {
	mapper := ColumnMapRowMapper(t.cfg.ResultKeysCaseInsensitive)
	return func(rows sqlx.Rows, rowNum int) (any, error) {
		return mapper(rows, rowNum)
	}
}

func paramAt(params []Param, index int) (Param, bool) {
	if index < len(params) {
		return params[index], true
	}
	return Param{}, false
}
