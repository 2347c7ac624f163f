package template

import "time"

// Config 执行配置。构造完成之后就不再变化，
// 正在执行的操作期间修改它不在保证范围之内
type Config struct {
	// FetchSize 每次网络往返取回的行数。-1 表示用驱动默认值。
	// -1 以外的负数原样传给驱动，有些驱动给负数赋予了别的含义
	FetchSize int
	// MaxRows 结果集最多返回的行数，-1 表示不限制
	MaxRows int
	// QueryTimeout 语句级超时，0 或负数表示不限制。
	// 事务有截止时间的话，实际生效的是两者中较短的那个
	QueryTimeout time.Duration
	// IgnoreWarnings 为 true 时执行后的 SQL 警告只记日志，
	// 为 false 时第一个警告就会变成错误
	IgnoreWarnings bool
	// SkipResultsProcessing 存储过程调用完全跳过结果处理
	SkipResultsProcessing bool
	// SkipUndeclaredResults 只处理声明过的结果，
	// 多出来的结果集/更新计数不再合成默认参数
	SkipUndeclaredResults bool
	// ResultKeysCaseInsensitive 结果映射的键不区分大小写
	ResultKeysCaseInsensitive bool
}

// DefaultConfig 对齐驱动默认行为：不限行数、不设超时、忽略警告
func DefaultConfig() Config {
	return Config{
		FetchSize:      -1,
		MaxRows:        -1,
		QueryTimeout:   -1,
		IgnoreWarnings: true,
	}
}
