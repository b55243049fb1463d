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

package repository

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tomoncle/bunsession/database"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type article struct {
	bun.BaseModel `bun:"table:articles,alias:a"`

	ID        int64     `bun:"id,pk,autoincrement"`
	TenantID  int64     `bun:"tenant_id,notnull"`
	Title     string    `bun:"title,notnull"`
	Status    string    `bun:"status,notnull"`
	Views     int       `bun:"views,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

type note struct {
	bun.BaseModel `bun:"table:notes,alias:n"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Body      string    `bun:"body,notnull"`
	DeletedAt time.Time `bun:"deleted_at,soft_delete,nullzero"`
}

// tag has no primary key.
type tag struct {
	bun.BaseModel `bun:"table:tags"`

	Name string `bun:"name"`
}

// queryRecorder keeps the SQL of every executed query.
type queryRecorder struct {
	mu      sync.Mutex
	queries []string
}

func (r *queryRecorder) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (r *queryRecorder) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, event.Query)
}

func (r *queryRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = nil
}

func (r *queryRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.queries...)
}

func (r *queryRecorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queries) == 0 {
		return ""
	}
	return r.queries[len(r.queries)-1]
}

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

func (l *recordingLogger) SetLevel(database.LogLevel) {}
func (l *recordingLogger) Debug(msg string, fields ...interface{}) { l.record("DEBUG", msg, fields) }
func (l *recordingLogger) Info(msg string, fields ...interface{}) { l.record("INFO", msg, fields) }
func (l *recordingLogger) Warn(msg string, fields ...interface{}) { l.record("WARN", msg, fields) }
func (l *recordingLogger) Error(msg string, fields ...interface{}) { l.record("ERROR", msg, fields) }

var baseTime = time.Date(2025, 3, 7, 9, 30, 0, 0, time.UTC)

// newTestDB opens a private in-memory SQLite database with the articles and
// notes tables and a few seeded rows.
func newTestDB(t *testing.T) (*bun.DB, *queryRecorder) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	sqldb, err := sql.Open(sqliteshim.ShimName, "file:"+name+"?mode=memory&cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	_, err = db.NewCreateTable().Model((*article)(nil)).Exec(ctx)
	require.NoError(t, err)
	_, err = db.NewCreateTable().Model((*note)(nil)).Exec(ctx)
	require.NoError(t, err)

	seed := []*article{
		{TenantID: 1, Title: "alpha", Status: "active", Views: 10, CreatedAt: baseTime},
		{TenantID: 1, Title: "bravo", Status: "draft", Views: 20, CreatedAt: baseTime.Add(24 * time.Hour)},
		{TenantID: 1, Title: "charlie", Status: "active", Views: 30, CreatedAt: baseTime.Add(48 * time.Hour)},
		{TenantID: 2, Title: "delta", Status: "active", Views: 40, CreatedAt: baseTime.Add(72 * time.Hour)},
		{TenantID: 2, Title: "echo", Status: "archived", Views: 50, CreatedAt: baseTime.Add(96 * time.Hour)},
	}
	_, err = db.NewInsert().Model(&seed).Exec(ctx)
	require.NoError(t, err)

	rec := &queryRecorder{}
	db.AddQueryHook(rec)
	return db, rec
}

func newArticles(t *testing.T, db *bun.DB, opts ...Option) *Session[article] {
	t.Helper()
	s, err := NewSession[article](db, opts...)
	require.NoError(t, err)
	return s
}

// tenantScope restricts queries to tenant and counts its invocations.
func tenantScope(tenant int64, calls *int) GlobalScope {
	return func(q bun.QueryBuilder) bun.QueryBuilder {
		*calls++
		return q.Where("? = ?", bun.Ident("tenant_id"), tenant)
	}
}

func titles(items []*article) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Title)
	}
	return out
}
