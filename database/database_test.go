/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type recordingLogger struct {
	mu      sync.Mutex
	entries []string
	fields  [][]interface{}
}

func (l *recordingLogger) record(level, msg string, fields []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, level+" "+msg)
	l.fields = append(l.fields, fields)
}

func (l *recordingLogger) SetLevel(LogLevel) {}
func (l *recordingLogger) Debug(msg string, fields ...interface{}) { l.record("DEBUG", msg, fields) }
func (l *recordingLogger) Info(msg string, fields ...interface{}) { l.record("INFO", msg, fields) }
func (l *recordingLogger) Warn(msg string, fields ...interface{}) { l.record("WARN", msg, fields) }
func (l *recordingLogger) Error(msg string, fields ...interface{}) { l.record("ERROR", msg, fields) }

func TestIsSqlError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		is   bool
		kind SQLError
	}{
		{"no rows", fmt.Errorf("find: %w", sql.ErrNoRows), true, NoRowsErr},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, true, DuplicateKeyErr},
		{"mysql missing table", &mysql.MySQLError{Number: 1146}, true, NoTableErr},
		{"mysql fk", &mysql.MySQLError{Number: 1452}, true, ForeignKeyViolationErr},
		{"sqlite unique", errors.New("constraint failed: UNIQUE constraint failed: articles.title"), true, DuplicateKeyErr},
		{"sqlite no table", errors.New("SQL logic error: no such table: articles"), true, NoTableErr},
		{"pg not null", errors.New(`pq: null value violates not-null constraint "title"`), true, NotNullViolationErr},
		{"other", errors.New("connection refused"), false, UnknownErr},
		{"nil", nil, false, UnknownErr},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			is, kind := IsSqlError(c.err)
			assert.Equal(t, c.is, is)
			assert.Equal(t, c.kind, kind, kind.String())
		})
	}
	assert.Equal(t, "duplicate_key", DuplicateKeyErr.String())
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
connection_config:
  type: sqlite
  dbname: app
  slow_query_time: 500ms
repository:
  per_page: 25
`))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.ConnectionConfig.Type)
	assert.Equal(t, 500*time.Millisecond, cfg.ConnectionConfig.SlowQueryTime)
	assert.Equal(t, 100, cfg.ConnectionConfig.MaxOpenConns, "defaults survive partial files")
	assert.Equal(t, 25, cfg.Repository.PerPage)
}

func TestParseConfigDefaultsAndEnv(t *testing.T) {
	t.Setenv("REPOSITORY_PER_PAGE", "40")
	t.Setenv("DB_NAME", "from_env")
	cfg, err := ParseConfig([]byte(`connection_config: {type: sqlite}`))
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Repository.PerPage)
	assert.Equal(t, "from_env", cfg.ConnectionConfig.DBName)

	t.Setenv("REPOSITORY_PER_PAGE", "0")
	cfg, err = ParseConfig([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultPerPage, cfg.Repository.PerPage)

	_, err = ParseConfig([]byte("repository: ["))
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("repository:\n  per_page: 30\n"), 0o644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Repository.PerPage)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPerPage(t *testing.T) {
	prev := GetConfig()
	t.Cleanup(func() { SetConfig(prev) })

	SetConfig(nil)
	assert.Equal(t, DefaultPerPage, PerPage())

	SetConfig(&Config{Repository: RepositoryConfig{PerPage: 50}})
	assert.Equal(t, 50, PerPage())
}

func TestSqliteDSN(t *testing.T) {
	assert.Equal(t, "file::memory:?cache=shared", sqliteDSN(":memory:"))
	assert.Equal(t, "file:test.db?mode=rwc", sqliteDSN("file:test.db?mode=rwc"))
	assert.Equal(t, "app.db", sqliteDSN("app"))
}

func TestOpenSQLite(t *testing.T) {
	logger := &recordingLogger{}
	cfg := DefaultConnectionConfig()
	cfg.Type = "sqlite"
	cfg.DBName = filepath.Join(t.TempDir(), "open")

	db, err := Open(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var one int
	require.NoError(t, db.NewSelect().ColumnExpr("1").Scan(context.Background(), &one))
	assert.Equal(t, 1, one)
	assert.Contains(t, logger.entries, "INFO Database connected successfully")
}

func TestOpenUnsupported(t *testing.T) {
	_, err := Open(context.Background(), &ConnectionConfig{Type: "oracle"}, nil)
	assert.ErrorContains(t, err, "unsupported database type")

	_, err = Open(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestInitDB(t *testing.T) {
	prev := GetConfig()
	t.Cleanup(func() { SetConfig(prev) })

	cfg := DefaultConfig()
	cfg.ConnectionConfig.Type = "sqlite"
	cfg.ConnectionConfig.DBName = filepath.Join(t.TempDir(), "global")
	cfg.Repository.PerPage = 12

	db, err := InitDB(context.Background(), cfg)
	require.NoError(t, err)
	assert.Same(t, db, GetDB())
	assert.Equal(t, 12, PerPage())

	require.NoError(t, CloseDB())
	assert.Nil(t, GetDB())
	require.NoError(t, CloseDB())
}

func TestSlowQueryHook(t *testing.T) {
	logger := &recordingLogger{}
	hook := NewSlowQueryHook(10*time.Millisecond, logger)

	hook.AfterQuery(context.Background(), &bun.QueryEvent{
		Query:     "SELECT 1",
		StartTime: time.Now(),
	})
	assert.Empty(t, logger.entries)

	hook.AfterQuery(context.Background(), &bun.QueryEvent{
		Query:     "SELECT 2",
		StartTime: time.Now().Add(-time.Second),
	})
	require.Len(t, logger.entries, 1)
	assert.Equal(t, "WARN Database slow query detected", logger.entries[0])

	hook.AfterQuery(context.Background(), &bun.QueryEvent{
		Query:     "SELECT 3",
		StartTime: time.Now().Add(-time.Second),
		Err:       errors.New("boom"),
	})
	assert.Len(t, logger.entries, 1)
}

func TestToFields(t *testing.T) {
	assert.Nil(t, toFields(nil))
	f := toFields([]interface{}{"table", "articles", "rows", 3, "dangling"})
	assert.Equal(t, "articles", f["table"])
	assert.Equal(t, 3, f["rows"])
	assert.Equal(t, "dangling", f["!BADKEY"])
}
