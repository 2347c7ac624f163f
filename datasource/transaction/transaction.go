// Package transaction 把一条绑定了进行中事务的连接伪装成
// ConnectionSource。事务内的每次执行都拿到同一条连接，
// Release 只做引用计数递减，物理归还推迟到事务结束
package transaction

import (
	"context"
	"sync"
	"time"

	"github.com/meoying/sqltemplate/datasource"
	"github.com/pkg/errors"
)

var (
	ErrTxEnded     = errors.New("transaction: 事务已经结束")
	ErrForeignConn = errors.New("transaction: 归还的连接不是事务绑定的那条")
)

var (
	_ datasource.ConnectionSource = &ConnectionSource{}
	_ datasource.DeadlineHolder   = &ConnectionSource{}
)

type ConnectionSource struct {
	mu       sync.Mutex
	conn     datasource.Conn
	delegate datasource.ConnectionSource
	deadline time.Time
	refs     int
	ended    bool
}

type Option func(*ConnectionSource)

// WithDeadline 事务的截止时间，语句超时会被压缩到剩余事务时间以内
func WithDeadline(deadline time.Time) Option {
	return func(src *ConnectionSource) {
		src.deadline = deadline
	}
}

// NewConnectionSource conn 是外部事务管理器已经开启事务的连接，
// delegate 是事务结束时真正归还连接的地方
func NewConnectionSource(conn datasource.Conn, delegate datasource.ConnectionSource, opts ...Option) *ConnectionSource {
	src := &ConnectionSource{conn: conn, delegate: delegate}
	for _, opt := range opts {
		opt(src)
	}
	return src
}

func (s *ConnectionSource) Acquire(_ context.Context) (datasource.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return nil, ErrTxEnded
	}
	s.refs++
	return s.conn, nil
}

func (s *ConnectionSource) Release(conn datasource.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn != s.conn {
		return ErrForeignConn
	}
	if s.refs > 0 {
		s.refs--
	}
	return nil
}

func (s *ConnectionSource) Deadline() (time.Time, bool) {
	return s.deadline, !s.deadline.IsZero()
}

// End 事务提交或回滚之后由事务管理器调用，此时才物理归还连接。
// 幂等，重复调用不会归还两次
func (s *ConnectionSource) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return nil
	}
	s.ended = true
	if s.delegate == nil {
		return nil
	}
	return s.delegate.Release(s.conn)
}
