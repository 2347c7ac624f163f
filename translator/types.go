package translator

import "github.com/meoying/sqltemplate/errs"

// ErrorTranslator 把驱动返回的原生错误翻译成固定分类。
// task 是出错时正在执行的任务名，sql 能拿到的话是出错语句的文本。
// 翻译永远不丢信息：找不到具体分类就落到 errs.ErrUncategorized，
// 原生错误始终保留在错误链上
type ErrorTranslator interface {
	Translate(task, sql string, err error) error
}

// Uncategorized 兜底翻译器，所有错误都归为未分类。
// 模板没有配置翻译器时用它
type Uncategorized struct{}

func (Uncategorized) Translate(task, sql string, err error) error {
	if err == nil {
		return nil
	}
	return errs.NewSQLError(task, sql, errs.ErrUncategorized, err)
}
