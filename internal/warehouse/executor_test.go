package warehouse

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapsheets/internal/testutil"
	"github.com/leapstack-labs/leapsheets/pkg/adapter"
	"github.com/leapstack-labs/leapsheets/pkg/core"
)

type mockAdapter struct {
	adapter.BaseSQLAdapter
}

func (m *mockAdapter) Connect(context.Context, adapter.Config) error { return nil }
func (m *mockAdapter) DialectName() string                          { return "mock" }

// mockOpener hands out one sqlmock connection per open, configured by the
// matching setup function.
type mockOpener struct {
	t      *testing.T
	setups []func(sqlmock.Sqlmock)
	opens  atomic.Int32
	mocks  []sqlmock.Sqlmock
	delay  time.Duration
	// quietPings leaves pings unmonitored.
	quietPings bool
}

func (o *mockOpener) open(_ context.Context, _ core.AdapterConfig, _ *slog.Logger) (adapter.Adapter, error) {
	n := int(o.opens.Add(1))
	time.Sleep(o.delay)
	if n > len(o.setups) {
		return nil, fmt.Errorf("unexpected open %d", n)
	}
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(!o.quietPings))
	require.NoError(o.t, err)
	o.setups[n-1](mock)
	o.mocks = append(o.mocks, mock)
	return &mockAdapter{BaseSQLAdapter: adapter.BaseSQLAdapter{DB: db}}, nil
}

func newTestExecutor(t *testing.T, o *mockOpener) *Executor {
	t.Helper()
	return New(core.AdapterConfig{Type: "mock"}, testutil.NewTestLogger(t),
		WithOpener(o.open),
		WithRetryPolicy(RetryPolicy{MaxRetries: 1, Backoff: time.Millisecond}),
	)
}

func TestExecutor_ReusesConnection(t *testing.T) {
	o := &mockOpener{t: t, setups: []func(sqlmock.Sqlmock){
		func(m sqlmock.Sqlmock) {
			m.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"a"}).AddRow(1))
			m.ExpectPing()
			m.ExpectQuery("SELECT 2").WillReturnRows(sqlmock.NewRows([]string{"b"}).AddRow(2))
		},
	}}
	e := newTestExecutor(t, o)
	ctx := context.Background()

	rs, err := e.Query(ctx, "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, rs.Columns)

	rs, err = e.Query(ctx, "SELECT 2")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, rs.Columns)

	assert.Equal(t, int32(1), o.opens.Load())
	assert.NoError(t, o.mocks[0].ExpectationsWereMet())
}

func TestExecutor_ReopensAfterFailedPing(t *testing.T) {
	o := &mockOpener{t: t, setups: []func(sqlmock.Sqlmock){
		func(m sqlmock.Sqlmock) {
			m.ExpectExec("CREATE TABLE t").WillReturnResult(sqlmock.NewResult(0, 0))
			m.ExpectPing().WillReturnError(errors.New("server gone"))
		},
		func(m sqlmock.Sqlmock) {
			m.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(3))
		},
	}}
	e := newTestExecutor(t, o)
	ctx := context.Background()

	require.NoError(t, e.Exec(ctx, "CREATE TABLE t (n INT)"))
	rs, err := e.Query(ctx, "SELECT n FROM t")
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Len())
	assert.Equal(t, int32(2), o.opens.Load())
}

func TestExecutor_RetriesTransientOnce(t *testing.T) {
	shutdown := &pgconn.PgError{Code: "57P01", Message: "terminating connection due to administrator command"}
	o := &mockOpener{t: t, setups: []func(sqlmock.Sqlmock){
		func(m sqlmock.Sqlmock) {
			m.ExpectQuery("SELECT").WillReturnError(shutdown)
		},
		func(m sqlmock.Sqlmock) {
			m.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"ok"}).AddRow(true))
		},
	}}
	e := newTestExecutor(t, o)

	rs, err := e.Query(context.Background(), "SELECT true AS ok")
	require.NoError(t, err)
	assert.Equal(t, []any{true}, rs.Rows[0])
	assert.Equal(t, int32(2), o.opens.Load())
}

func TestExecutor_GivesUpAfterMaxRetries(t *testing.T) {
	lost := errors.New("write: broken pipe")
	o := &mockOpener{t: t, setups: []func(sqlmock.Sqlmock){
		func(m sqlmock.Sqlmock) { m.ExpectQuery("SELECT").WillReturnError(lost) },
		func(m sqlmock.Sqlmock) { m.ExpectQuery("SELECT").WillReturnError(lost) },
	}}
	e := newTestExecutor(t, o)

	_, err := e.Query(context.Background(), "SELECT 1")
	require.ErrorIs(t, err, lost)
	assert.Equal(t, int32(2), o.opens.Load())
}

func TestExecutor_DoesNotRetryQueryErrors(t *testing.T) {
	syntax := &pgconn.PgError{Code: "42601", Message: "syntax error"}
	o := &mockOpener{t: t, setups: []func(sqlmock.Sqlmock){
		func(m sqlmock.Sqlmock) { m.ExpectQuery("SELEC").WillReturnError(syntax) },
	}}
	e := newTestExecutor(t, o)

	_, err := e.Query(context.Background(), "SELEC 1")
	var pgErr *pgconn.PgError
	require.True(t, errors.As(err, &pgErr))
	assert.Equal(t, "42601", pgErr.Code)
	assert.Equal(t, int32(1), o.opens.Load())
}

func TestExecutor_SingleOpenUnderConcurrency(t *testing.T) {
	o := &mockOpener{t: t, delay: 20 * time.Millisecond, quietPings: true, setups: []func(sqlmock.Sqlmock){
		func(sqlmock.Sqlmock) {},
	}}
	e := newTestExecutor(t, o)

	var g errgroup.Group
	for range 8 {
		g.Go(func() error { return e.Ping(context.Background()) })
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), o.opens.Load())
}

func TestExecutor_NotConfigured(t *testing.T) {
	e := New(core.AdapterConfig{}, nil)
	assert.False(t, e.Configured())

	_, err := e.Query(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.NoError(t, e.Close())
}

func TestExecutor_OpenFailure(t *testing.T) {
	e := New(core.AdapterConfig{Type: "no_such_adapter"}, testutil.NewTestLogger(t))
	err := e.Ping(context.Background())

	var unknown *adapter.UnknownAdapterError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "no_such_adapter", unknown.Type)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad conn", fmt.Errorf("query: %w", driver.ErrBadConn), true},
		{"conn done", sql.ErrConnDone, true},
		{"pg connection exception", &pgconn.PgError{Code: "08006"}, true},
		{"pg admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"pg cannot connect now", &pgconn.PgError{Code: "57P03"}, true},
		{"pg query canceled", &pgconn.PgError{Code: "57014"}, false},
		{"pg unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"connection reset message", errors.New("read tcp: connection reset by peer"), true},
		{"session expired message", errors.New("Session Expired, please login"), true},
		{"invalid session message", errors.New("invalid session id"), true},
		{"context canceled", context.Canceled, false},
		{"plain error", errors.New("table not found"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
