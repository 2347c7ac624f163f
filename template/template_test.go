package template

import (
	"context"
	"database/sql"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ecodeclub/ekit/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/meoying/sqltemplate/datasource"
	"github.com/meoying/sqltemplate/errs"
)

var (
	mockAcquireErr  = errors.New("template: MockAcquireErr")
	mockPrepareErr  = errors.New("template: MockPrepareErr")
	mockCallbackErr = errors.New("template: MockCallbackErr")
	mockSettingErr  = errors.New("template: MockSettingErr")
)

// fakeSource 记录获取和归还次数的 ConnectionSource
type fakeSource struct {
	mu         sync.Mutex
	conn       datasource.Conn
	acquireErr error
	acquired   int
	released   int
}

func (f *fakeSource) Acquire(_ context.Context) (datasource.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	f.acquired++
	return f.conn, nil
}

func (f *fakeSource) Release(_ datasource.Conn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
	return nil
}

// deadlineSource 带截止时间的 fakeSource
type deadlineSource struct {
	fakeSource
	deadline time.Time
}

func (d *deadlineSource) Deadline() (time.Time, bool) {
	return d.deadline, !d.deadline.IsZero()
}

type fakeConn struct {
	mu         sync.Mutex
	stmt       datasource.Stmt
	prepared   datasource.PreparedStmt
	callable   datasource.CallableStmt
	createErr  error
	lastQuery  string
	statements int
}

func (f *fakeConn) Statement(_ context.Context) (datasource.Stmt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.statements++
	return f.stmt, nil
}

func (f *fakeConn) Prepare(_ context.Context, query string) (datasource.PreparedStmt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.statements++
	f.lastQuery = query
	return f.prepared, nil
}

func (f *fakeConn) PrepareCall(_ context.Context, query string) (datasource.CallableStmt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.statements++
	f.lastQuery = query
	return f.callable, nil
}

// fakeBase 三种假语句共用的配置记录。
// set 标志位区分[被设置成零]和[没被设置]
type fakeBase struct {
	mu         sync.Mutex
	fetchSize  int
	fetchSet   bool
	maxRows    int
	maxSet     bool
	timeout    time.Duration
	timeoutSet bool

	fetchErr   error
	maxRowsErr error
	warnings   *datasource.Warning
	closed     int
}

func (b *fakeBase) SetFetchSize(size int) error {
	if b.fetchErr != nil {
		return b.fetchErr
	}
	b.fetchSize = size
	b.fetchSet = true
	return nil
}

func (b *fakeBase) SetMaxRows(max int) error {
	if b.maxRowsErr != nil {
		return b.maxRowsErr
	}
	b.maxRows = max
	b.maxSet = true
	return nil
}

func (b *fakeBase) SetQueryTimeout(timeout time.Duration) error {
	b.timeout = timeout
	b.timeoutSet = true
	return nil
}

func (b *fakeBase) Warnings() *datasource.Warning {
	return b.warnings
}

func (b *fakeBase) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed++
	return nil
}

// execResult 脚本化的 Execute 结果
type execResult struct {
	isRows   bool
	affected int64
	err      error
}

type fakeStmt struct {
	fakeBase
	results  []execResult
	executed []string
}

func (s *fakeStmt) Query(_ context.Context, query string) (sqlx.Rows, error) {
	s.executed = append(s.executed, query)
	return &sliceRows{}, nil
}

func (s *fakeStmt) Exec(_ context.Context, query string) (sql.Result, error) {
	s.executed = append(s.executed, query)
	return fakeResult{}, nil
}

func (s *fakeStmt) Execute(_ context.Context, query string) (bool, int64, error) {
	idx := len(s.executed)
	s.executed = append(s.executed, query)
	if idx >= len(s.results) {
		return false, 0, nil
	}
	res := s.results[idx]
	return res.isRows, res.affected, res.err
}

type fakeResult struct {
	affected int64
	key      int64
	err      error
}

func (r fakeResult) LastInsertId() (int64, error) {
	return r.key, r.err
}

func (r fakeResult) RowsAffected() (int64, error) {
	return r.affected, r.err
}

type fakePreparedStmt struct {
	fakeBase
	args     []any
	bindErr  error
	execErr  error
	queryErr error
	rows     *sliceRows
	results  []fakeResult
	execs    int
}

func (p *fakePreparedStmt) SetParams(args ...any) error {
	if p.bindErr != nil {
		return p.bindErr
	}
	p.args = make([]any, len(args))
	copy(p.args, args)
	return nil
}

func (p *fakePreparedStmt) Query(_ context.Context) (sqlx.Rows, error) {
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	if p.rows == nil {
		return &sliceRows{}, nil
	}
	return p.rows, nil
}

func (p *fakePreparedStmt) Exec(_ context.Context) (sql.Result, error) {
	if p.execErr != nil {
		return nil, p.execErr
	}
	idx := p.execs
	p.execs++
	if idx < len(p.results) {
		return p.results[idx], nil
	}
	return fakeResult{affected: 1}, nil
}

// sliceRows 内存里的 sqlx.Rows，测试里当结果集用
type sliceRows struct {
	cols []string
	data [][]any
	idx  int
	errs error

	closed int
}

func (r *sliceRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *sliceRows) NextResultSet() bool {
	return false
}

func (r *sliceRows) Err() error {
	return r.errs
}

func (r *sliceRows) Columns() ([]string, error) {
	return r.cols, nil
}

func (r *sliceRows) ColumnTypes() ([]*sql.ColumnType, error) {
	return nil, nil
}

func (r *sliceRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	for i, d := range dest {
		if i >= len(row) {
			break
		}
		if p, ok := d.(*any); ok {
			*p = row[i]
			continue
		}
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(row[i]))
	}
	return nil
}

func (r *sliceRows) Close() error {
	r.closed++
	return nil
}

func TestExecute_释放协议(t *testing.T) {
	testcases := []struct {
		name         string
		src          func() *fakeSource
		action       func(ctx context.Context, stmt datasource.Stmt) (int, error)
		wantErr      error
		wantReleased int
		wantClosed   int
	}{
		{
			name: "成功路径",
			src: func() *fakeSource {
				return &fakeSource{conn: &fakeConn{stmt: &fakeStmt{}}}
			},
			action: func(ctx context.Context, stmt datasource.Stmt) (int, error) {
				return 1, nil
			},
			wantReleased: 1,
			wantClosed:   1,
		},
		{
			name: "回调出错也要释放",
			src: func() *fakeSource {
				return &fakeSource{conn: &fakeConn{stmt: &fakeStmt{}}}
			},
			action: func(ctx context.Context, stmt datasource.Stmt) (int, error) {
				return 0, mockCallbackErr
			},
			wantErr:      errs.ErrUncategorized,
			wantReleased: 1,
			wantClosed:   1,
		},
		{
			name: "创建语句失败只释放连接",
			src: func() *fakeSource {
				return &fakeSource{conn: &fakeConn{createErr: mockPrepareErr}}
			},
			action: func(ctx context.Context, stmt datasource.Stmt) (int, error) {
				return 1, nil
			},
			wantErr:      errs.ErrStatementPreparation,
			wantReleased: 1,
		},
		{
			name: "获取连接失败",
			src: func() *fakeSource {
				return &fakeSource{acquireErr: mockAcquireErr}
			},
			action: func(ctx context.Context, stmt datasource.Stmt) (int, error) {
				return 1, nil
			},
			wantErr: errs.ErrAcquireConnection,
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			src := tc.src()
			tpl := New(src)
			_, err := Execute(context.Background(), tpl, "SELECT 1", tc.action)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.wantReleased, src.released)
			if conn, ok := src.conn.(*fakeConn); ok && conn.stmt != nil {
				assert.Equal(t, tc.wantClosed, conn.stmt.(*fakeStmt).closed)
			}
		})
	}
}

func TestExecute_获取连接失败不经过翻译器(t *testing.T) {
	src := &fakeSource{acquireErr: mockAcquireErr}
	tpl := New(src)
	_, err := Execute(context.Background(), tpl, "SELECT 1",
		func(ctx context.Context, stmt datasource.Stmt) (int, error) {
			return 1, nil
		})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrAcquireConnection)
	assert.ErrorIs(t, err, mockAcquireErr)
	// 翻译器只处理语句执行阶段的错误
	var se *errs.SQLError
	assert.False(t, errors.As(err, &se))
}

func TestExecute_回调错误经过翻译器(t *testing.T) {
	stmt := &fakeStmt{}
	src := &fakeSource{conn: &fakeConn{stmt: stmt}}
	tpl := New(src)
	_, err := Execute(context.Background(), tpl, "SELECT 1",
		func(ctx context.Context, stmt datasource.Stmt) (int, error) {
			return 0, mockCallbackErr
		})
	require.Error(t, err)
	var se *errs.SQLError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "StatementCallback", se.Task)
	assert.Equal(t, "SELECT 1", se.SQL)
	assert.ErrorIs(t, err, errs.ErrUncategorized)
	assert.ErrorIs(t, err, mockCallbackErr)
}

func TestTemplate_警告策略(t *testing.T) {
	testcases := []struct {
		name    string
		ignore  bool
		wantErr error
	}{
		{
			name:   "忽略模式只记日志",
			ignore: true,
		},
		{
			name:    "严格模式第一个警告就报错",
			ignore:  false,
			wantErr: errs.ErrWarningNotIgnored,
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			stmt := &fakeStmt{}
			stmt.warnings = (&datasource.Warning{State: "01000", Code: 1287, Message: "deprecated syntax"}).
				Append(&datasource.Warning{State: "01000", Code: 1681, Message: "integer display width"})
			src := &fakeSource{conn: &fakeConn{stmt: stmt}}
			cfg := DefaultConfig()
			cfg.IgnoreWarnings = tc.ignore
			tpl := New(src, WithConfig(cfg))
			res, err := Execute(context.Background(), tpl, "SELECT 1",
				func(ctx context.Context, stmt datasource.Stmt) (int, error) {
					return 7, nil
				})
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Contains(t, err.Error(), "1287")
			} else {
				assert.NoError(t, err)
				assert.Equal(t, 7, res)
			}
			// 警告不影响资源释放
			assert.Equal(t, 1, src.released)
			assert.Equal(t, 1, stmt.closed)
		})
	}
}

func TestTemplate_语句配置(t *testing.T) {
	testcases := []struct {
		name          string
		cfg           Config
		wantFetchSet  bool
		wantFetchSize int
		wantMaxSet    bool
		wantMaxRows   int
		wantTimeout   time.Duration
	}{
		{
			name: "默认配置什么都不设置",
			cfg:  DefaultConfig(),
		},
		{
			name: "显式配置原样下发",
			cfg: Config{
				FetchSize:      100,
				MaxRows:        5,
				QueryTimeout:   time.Second,
				IgnoreWarnings: true,
			},
			wantFetchSet:  true,
			wantFetchSize: 100,
			wantMaxSet:    true,
			wantMaxRows:   5,
			wantTimeout:   time.Second,
		},
		{
			name: "零值也会下发",
			cfg: Config{
				FetchSize:      0,
				MaxRows:        0,
				QueryTimeout:   -1,
				IgnoreWarnings: true,
			},
			wantFetchSet: true,
			wantMaxSet:   true,
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			stmt := &fakeStmt{}
			src := &fakeSource{conn: &fakeConn{stmt: stmt}}
			tpl := New(src, WithConfig(tc.cfg))
			_, err := Execute(context.Background(), tpl, "SELECT 1",
				func(ctx context.Context, stmt datasource.Stmt) (int, error) {
					return 1, nil
				})
			require.NoError(t, err)
			assert.Equal(t, tc.wantFetchSet, stmt.fetchSet)
			assert.Equal(t, tc.wantFetchSize, stmt.fetchSize)
			assert.Equal(t, tc.wantMaxSet, stmt.maxSet)
			assert.Equal(t, tc.wantMaxRows, stmt.maxRows)
			assert.Equal(t, tc.wantTimeout, stmt.timeout)
		})
	}
}

func TestTemplate_配置失败语句立刻关闭(t *testing.T) {
	stmt := &fakeStmt{}
	stmt.maxRowsErr = mockSettingErr
	src := &fakeSource{conn: &fakeConn{stmt: stmt}}
	cfg := DefaultConfig()
	cfg.MaxRows = 10
	tpl := New(src, WithConfig(cfg))
	called := false
	_, err := Execute(context.Background(), tpl, "SELECT 1",
		func(ctx context.Context, stmt datasource.Stmt) (int, error) {
			called = true
			return 1, nil
		})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrStatementPreparation)
	assert.False(t, called)
	assert.Equal(t, 1, stmt.closed)
	assert.Equal(t, 1, src.released)
}

func TestExecuteConn_回调窗口内创建的语句也带配置(t *testing.T) {
	stmt := &fakeStmt{}
	prepared := &fakePreparedStmt{}
	src := &fakeSource{conn: &fakeConn{stmt: stmt, prepared: prepared}}
	cfg := DefaultConfig()
	cfg.MaxRows = 3
	tpl := New(src, WithConfig(cfg))
	_, err := ExecuteConn(context.Background(), tpl,
		func(ctx context.Context, conn datasource.Conn) (int, error) {
			s1, err := conn.Statement(ctx)
			require.NoError(t, err)
			defer func() { _ = s1.Close() }()
			s2, err := conn.Prepare(ctx, "SELECT 1")
			require.NoError(t, err)
			defer func() { _ = s2.Close() }()
			return 1, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 3, stmt.maxRows)
	assert.Equal(t, 3, prepared.maxRows)
	assert.Equal(t, 1, src.released)
}

func TestTemplate_有效超时(t *testing.T) {
	testcases := []struct {
		name     string
		cfg      time.Duration
		deadline time.Time
		check    func(t *testing.T, got time.Duration)
	}{
		{
			name:     "剩余事务时间更短",
			cfg:      time.Hour,
			deadline: time.Now().Add(time.Second),
			check: func(t *testing.T, got time.Duration) {
				assert.Greater(t, got, time.Duration(0))
				assert.LessOrEqual(t, got, time.Second)
			},
		},
		{
			name:     "配置超时更短",
			cfg:      time.Millisecond,
			deadline: time.Now().Add(time.Hour),
			check: func(t *testing.T, got time.Duration) {
				assert.Equal(t, time.Millisecond, got)
			},
		},
		{
			name:     "没配超时跟随剩余事务时间",
			cfg:      -1,
			deadline: time.Now().Add(time.Second),
			check: func(t *testing.T, got time.Duration) {
				assert.Greater(t, got, time.Duration(0))
				assert.LessOrEqual(t, got, time.Second)
			},
		},
		{
			name:     "事务已经超时",
			cfg:      time.Hour,
			deadline: time.Now().Add(-time.Second),
			check: func(t *testing.T, got time.Duration) {
				assert.Equal(t, time.Nanosecond, got)
			},
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			stmt := &fakeStmt{}
			src := &deadlineSource{deadline: tc.deadline}
			src.conn = &fakeConn{stmt: stmt}
			cfg := DefaultConfig()
			cfg.QueryTimeout = tc.cfg
			tpl := New(src, WithConfig(cfg))
			_, err := Execute(context.Background(), tpl, "SELECT 1",
				func(ctx context.Context, stmt datasource.Stmt) (int, error) {
					return 1, nil
				})
			require.NoError(t, err)
			require.True(t, stmt.timeoutSet)
			tc.check(t, stmt.timeout)
		})
	}
}

// disposingCreator 记录 DisposeParams 被调用的次数
type disposingCreator struct {
	PreparedStatementCreator
	disposed int
}

func (d *disposingCreator) DisposeParams() {
	d.disposed++
}

func TestExecutePrepared_绑定资源恰好释放一次(t *testing.T) {
	testcases := []struct {
		name   string
		action func(ctx context.Context, stmt datasource.PreparedStmt) (int, error)
	}{
		{
			name: "成功",
			action: func(ctx context.Context, stmt datasource.PreparedStmt) (int, error) {
				return 1, nil
			},
		},
		{
			name: "失败",
			action: func(ctx context.Context, stmt datasource.PreparedStmt) (int, error) {
				return 0, mockCallbackErr
			},
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			prepared := &fakePreparedStmt{}
			src := &fakeSource{conn: &fakeConn{prepared: prepared}}
			tpl := New(src)
			creator := &disposingCreator{
				PreparedStatementCreator: NewPreparedStatementCreator("INSERT INTO t(a) VALUES(?)"),
			}
			_, _ = ExecutePrepared(context.Background(), tpl, creator, tc.action)
			assert.Equal(t, 1, creator.disposed)
			assert.Equal(t, 1, prepared.closed)
			assert.Equal(t, 1, src.released)
		})
	}
}

func TestTemplate_并发执行(t *testing.T) {
	stmt := &fakeStmt{}
	src := &fakeSource{conn: &fakeConn{stmt: stmt}}
	tpl := New(src)
	var eg errgroup.Group
	for i := 0; i < 16; i++ {
		eg.Go(func() error {
			_, err := Execute(context.Background(), tpl, "SELECT 1",
				func(ctx context.Context, stmt datasource.Stmt) (int, error) {
					return 1, nil
				})
			return err
		})
	}
	require.NoError(t, eg.Wait())
	assert.Equal(t, 16, src.acquired)
	assert.Equal(t, 16, src.released)
}
