package template

import "strings"

// ResultBag 保持放入顺序的名字到值的映射，
// 存储过程结果和单行 map 查询都用它承载。
// 键是否区分大小写由构造时决定
type ResultBag struct {
	caseInsensitive bool
	keys            []string
	vals            map[string]any
}

func NewResultBag(caseInsensitive bool) *ResultBag {
	return &ResultBag{
		caseInsensitive: caseInsensitive,
		vals:            map[string]any{},
	}
}

func (b *ResultBag) norm(key string) string {
	if b.caseInsensitive {
		return strings.ToLower(key)
	}
	return key
}

// Put 同名覆盖值但保持第一次放入时的顺序和写法
func (b *ResultBag) Put(key string, val any) {
	k := b.norm(key)
	if _, ok := b.vals[k]; !ok {
		b.keys = append(b.keys, key)
	}
	b.vals[k] = val
}

func (b *ResultBag) Get(key string) (any, bool) {
	val, ok := b.vals[b.norm(key)]
	return val, ok
}

// Keys 按放入顺序返回键
func (b *ResultBag) Keys() []string {
	return b.keys
}

func (b *ResultBag) Len() int {
	return len(b.keys)
}
