package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseSQLAdapter_Close(t *testing.T) {
	tests := []struct {
		name    string
		setupDB bool
	}{
		{name: "close with nil DB"},
		{name: "close with open DB", setupDB: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &BaseSQLAdapter{}
			if tt.setupDB {
				db, mock, err := sqlmock.New()
				require.NoError(t, err)
				mock.ExpectClose()
				base.DB = db
			}

			assert.NoError(t, base.Close())
			assert.False(t, base.IsConnected())
		})
	}
}

func TestBaseSQLAdapter_Exec(t *testing.T) {
	tests := []struct {
		name      string
		setupDB   bool
		setupMock func(mock sqlmock.Sqlmock)
		sql       string
		errMsg    string
	}{
		{
			name:   "exec without connection",
			sql:    "SELECT 1",
			errMsg: "database connection not established",
		},
		{
			name:    "exec success",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("CREATE TABLE users").WillReturnResult(sqlmock.NewResult(0, 0))
			},
			sql: "CREATE TABLE users (id INT)",
		},
		{
			name:    "exec with error",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INVALID SQL").WillReturnError(assert.AnError)
			},
			sql:    "INVALID SQL",
			errMsg: "failed to execute SQL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &BaseSQLAdapter{}
			var mock sqlmock.Sqlmock
			if tt.setupDB {
				db, m, err := sqlmock.New()
				require.NoError(t, err)
				defer func() { _ = db.Close() }()
				base.DB, mock = db, m
				tt.setupMock(mock)
			}

			err := base.Exec(context.Background(), tt.sql)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
			if mock != nil {
				assert.NoError(t, mock.ExpectationsWereMet())
			}
		})
	}
}

func TestBaseSQLAdapter_Query(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT region").WillReturnRows(
		sqlmock.NewRows([]string{"region", "total", "region", "updated"}).
			AddRow([]byte("north"), int64(10), "n", ts).
			AddRow("south", nil, "s", ts),
	)

	base := &BaseSQLAdapter{DB: db}
	rs, err := base.Query(context.Background(), "SELECT region, total, region, updated FROM sales")
	require.NoError(t, err)

	assert.Equal(t, []string{"region", "total", "region_2", "updated"}, rs.Columns)
	require.Equal(t, 2, rs.Len())
	assert.Equal(t, []any{"north", int64(10), "n", ts}, rs.Rows[0])
	assert.Nil(t, rs.Rows[1][1])
	assert.Equal(t, "s", rs.Record(1)["region_2"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBaseSQLAdapter_QueryErrors(t *testing.T) {
	_, err := (&BaseSQLAdapter{}).Query(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrNotConnected)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT broken").WillReturnError(assert.AnError)
	mock.ExpectQuery("SELECT rows").WillReturnRows(
		sqlmock.NewRows([]string{"a"}).AddRow(1).RowError(0, assert.AnError),
	)

	base := &BaseSQLAdapter{DB: db}
	_, err = base.Query(context.Background(), "SELECT broken")
	assert.ErrorIs(t, err, assert.AnError)

	_, err = base.Query(context.Background(), "SELECT rows")
	assert.ErrorIs(t, err, assert.AnError)
}

func TestBaseSQLAdapter_Ping(t *testing.T) {
	assert.ErrorIs(t, (&BaseSQLAdapter{}).Ping(context.Background()), ErrNotConnected)

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(assert.AnError)

	base := &BaseSQLAdapter{DB: db}
	assert.NoError(t, base.Ping(context.Background()))
	assert.ErrorIs(t, base.Ping(context.Background()), assert.AnError)
}
