package datasource

// Warning 驱动挂在语句或连接上的非致命诊断信息，
// 通过 Next 串成链表
type Warning struct {
	// State SQLSTATE 码
	State string
	// Code 驱动自己的错误码
	Code int64
	// Message 警告文本
	Message string
	Next *Warning
}

// Append 把 w 挂到链尾，空链上直接返回 w
func (w *Warning) Append(next *Warning) *Warning {
	if w == nil {
		return next
	}
	cur := w
	for cur.Next != nil {
		cur = cur.Next
	}
	cur.Next = next
	return w
}
