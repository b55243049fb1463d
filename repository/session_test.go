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
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/bunsession/database"
	"github.com/uptrace/bun"
)

func TestNewSessionValidation(t *testing.T) {
	db, _ := newTestDB(t)

	var nilDB *bun.DB
	_, err := NewSession[article](nilDB)
	assert.ErrorIs(t, err, ErrNilDB)

	_, err = NewSession[article](nil)
	assert.ErrorIs(t, err, ErrNilDB)

	_, err = NewSession[int](db)
	assert.ErrorIs(t, err, ErrInvalidModel)

	_, err = NewSession[article](db, WithDefaultOrder("", Desc))
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, err = NewSession[article](db, WithDefaultOrder("created_at", "sideways"))
	assert.ErrorIs(t, err, ErrInvalidOrder)

	s, err := NewSession[article](db, WithDefaultOrder("created_at", "desc"))
	require.NoError(t, err)
	order, ok := s.DefaultOrder()
	assert.True(t, ok)
	assert.Equal(t, OrderClause{Column: "created_at", Direction: Desc}, order)
	assert.Equal(t, "articles", s.Table())
	assert.True(t, s.Pending().IsFresh())
}

func TestPageSize(t *testing.T) {
	db, _ := newTestDB(t)

	assert.Equal(t, database.PerPage(), newArticles(t, db).PageSize())
	assert.Equal(t, 7, newArticles(t, db, WithPageSize(7)).PageSize())
	assert.Equal(t, database.PerPage(), newArticles(t, db, WithPageSize(0)).PageSize())
}

func TestDefaultOrderWithFilter(t *testing.T) {
	db, rec := newTestDB(t)
	ctx := context.Background()
	s := newArticles(t, db, WithDefaultOrder("created_at", Desc))

	rec.reset()
	items, err := s.Where("status", "=", "active").Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"delta", "charlie", "alpha"}, titles(items))

	query := rec.last()
	assert.True(t, strings.HasSuffix(query, `WHERE ("status" = 'active') ORDER BY "created_at" DESC`), query)
	assert.True(t, s.Pending().IsFresh())
	assert.False(t, s.Pending().SkipsOrderBy())
	assert.False(t, s.Pending().SkipsGlobalScope())
}

func TestDefaultOrderWithGlobalScope(t *testing.T) {
	db, rec := newTestDB(t)
	ctx := context.Background()
	var calls int
	s := newArticles(t, db,
		WithDefaultOrder("created_at", Desc),
		WithGlobalScope(tenantScope(1, &calls)),
	)

	rec.reset()
	items, err := s.Where("status", "=", "active").Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"charlie", "alpha"}, titles(items))
	assert.Equal(t, 1, calls)

	query := rec.last()
	assert.Contains(t, query, `("status" = 'active')`)
	assert.Contains(t, query, `("tenant_id" = 1)`)
	assert.Equal(t, 1, strings.Count(query, `ORDER BY "created_at" DESC`))
	assert.True(t, s.Pending().IsFresh())
}

func TestDefaultOrderAppliedOnce(t *testing.T) {
	db, rec := newTestDB(t)
	ctx := context.Background()
	s := newArticles(t, db, WithDefaultOrder("created_at", Desc))

	rec.reset()
	_, err := s.Where("status", "=", "active").Where("views", ">", 5).WhereNotNull("title").Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(rec.last(), `"created_at" DESC`))

	_, err = s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(rec.last(), `"created_at" DESC`))
}

func TestExplicitOrderReplacesDefault(t *testing.T) {
	db, rec := newTestDB(t)
	ctx := context.Background()
	s := newArticles(t, db, WithDefaultOrder("created_at", Desc))

	rec.reset()
	items, err := s.OrderBy("title", Asc).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "bravo", "charlie", "delta", "echo"}, titles(items))

	query := rec.last()
	assert.Equal(t, 1, strings.Count(query, `ORDER BY "title" ASC`))
	assert.NotContains(t, query, `"created_at" DESC`)

	// the skip flag lasts for one terminal only
	_, err = s.Get(ctx)
	require.NoError(t, err)
	assert.Contains(t, rec.last(), `ORDER BY "created_at" DESC`)
}

func TestOrderByDeduplicates(t *testing.T) {
	db, rec := newTestDB(t)
	ctx := context.Background()
	s := newArticles(t, db)

	s.OrderBy("title", Asc).OrderBy("title", "asc")
	assert.Equal(t, []OrderClause{{Column: "title", Direction: Asc}}, s.Pending().OrderClauses())
	assert.True(t, s.Pending().HasOrder(OrderClause{Column: "title", Direction: Asc}))
	assert.True(t, s.Pending().SkipsOrderBy())

	rec.reset()
	_, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(rec.last(), `"title" ASC`))

	s.OrderBy("title", Asc).OrderByDesc("title")
	assert.Equal(t, []OrderClause{
		{Column: "title", Direction: Asc},
		{Column: "title", Direction: Desc},
	}, s.Pending().OrderClauses())
	s.NewQuery()
}

func TestOrderByInvalidDirection(t *testing.T) {
	db, _ := newTestDB(t)
	s := newArticles(t, db)

	_, err := s.OrderBy("title", "up").Get(context.Background())
	assert.ErrorIs(t, err, ErrInvalidOrder)
	assert.True(t, s.Pending().IsFresh())
}

func TestSetDefaultOrderRejectsInvalidDirection(t *testing.T) {
	db, rec := newTestDB(t)
	ctx := context.Background()
	s := newArticles(t, db, WithDefaultOrder("views", Desc))

	_, err := s.SetDefaultOrder("created_at", "sideways").Get(ctx)
	assert.ErrorIs(t, err, ErrInvalidOrder)
	order, ok := s.DefaultOrder()
	require.True(t, ok)
	assert.Equal(t, OrderClause{Column: "views", Direction: Desc}, order)

	rec.reset()
	items, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 5)
	assert.NotContains(t, strings.ToUpper(rec.last()), "SIDEWAYS")
	assert.Contains(t, rec.last(), `ORDER BY "views" DESC`)

	s = newArticles(t, db)
	_, err = s.SetDefaultOrder("created_at", "sideways").Get(ctx)
	assert.ErrorIs(t, err, ErrInvalidOrder)
	_, ok = s.DefaultOrder()
	assert.False(t, ok)
	_, err = s.Get(ctx)
	require.NoError(t, err)
	assert.NotContains(t, rec.last(), "ORDER BY")
}

func TestLatestKeepsDefaultOrder(t *testing.T) {
	db, rec := newTestDB(t)
	ctx := context.Background()
	s := newArticles(t, db, WithDefaultOrder("created_at", Desc))

	rec.reset()
	_, err := s.Latest("views").Get(ctx)
	require.NoError(t, err)
	assert.Contains(t, rec.last(), `ORDER BY "views" DESC, "created_at" DESC`)

	_, err = s.OrderByRaw("length(title) ASC").Get(ctx)
	require.NoError(t, err)
	assert.Contains(t, rec.last(), `ORDER BY length(title) ASC, "created_at" DESC`)
}

func TestSkipOrderBy(t *testing.T) {
	db, rec := newTestDB(t)
	ctx := context.Background()
	s := newArticles(t, db, WithDefaultOrder("created_at", Desc))

	rec.reset()
	_, err := s.SkipOrderBy().Get(ctx)
	require.NoError(t, err)
	assert.NotContains(t, rec.last(), "ORDER BY")
	assert.False(t, s.Pending().SkipsOrderBy())

	_, err = s.Get(ctx, WithoutDefaultOrder())
	require.NoError(t, err)
	assert.NotContains(t, rec.last(), "ORDER BY")

	_, err = s.Get(ctx)
	require.NoError(t, err)
	assert.Contains(t, rec.last(), `ORDER BY "created_at" DESC`)
}

func TestSkipGlobalScope(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()
	var calls int
	s := newArticles(t, db, WithGlobalScope(tenantScope(2, &calls)))

	items, err := s.SkipGlobalScope().Get(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 5)
	assert.Equal(t, 0, calls)
	assert.False(t, s.Pending().SkipsGlobalScope())

	items, err = s.Get(ctx, WithoutGlobalScope())
	require.NoError(t, err)
	assert.Len(t, items, 5)
	assert.Equal(t, 0, calls)

	items, err = s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"delta", "echo"}, titles(items))
	assert.Equal(t, 1, calls)
}

func TestSetGlobalScopeAndDefaultOrder(t *testing.T) {
	db, rec := newTestDB(t)
	ctx := context.Background()
	var calls int
	s := newArticles(t, db)

	s.SetGlobalScope(tenantScope(1, &calls)).SetDefaultOrder("views", Desc)
	items, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"charlie", "bravo", "alpha"}, titles(items))
	assert.Equal(t, 1, calls)

	s.SetGlobalScope(nil).SetDefaultOrder("", Asc)
	_, ok := s.DefaultOrder()
	assert.False(t, ok)
	_, err = s.Get(ctx)
	require.NoError(t, err)
	assert.NotContains(t, rec.last(), "ORDER BY")
	assert.Equal(t, 1, calls)
}

func TestResetAfterFailedTerminal(t *testing.T) {
	db, rec := newTestDB(t)
	ctx := context.Background()
	s := newArticles(t, db)

	_, err := s.Where("views", "~", 3).SkipGlobalScope().Get(ctx)
	assert.ErrorIs(t, err, ErrInvalidOperator)
	assert.True(t, s.Pending().IsFresh())

	items, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 5)

	_, err = s.WhereRaw("no_such_column = ?", 1).Get(ctx)
	assert.Error(t, err)
	assert.True(t, s.Pending().IsFresh())
	assert.Contains(t, rec.last(), "no_such_column")
}

func TestNewQueryAndToSQL(t *testing.T) {
	db, _ := newTestDB(t)
	var calls int
	s := newArticles(t, db,
		WithDefaultOrder("created_at", Desc),
		WithGlobalScope(tenantScope(1, &calls)),
	)

	s.Where("status", "=", "draft").SkipOrderBy()
	query := s.ToSQL()
	assert.Contains(t, query, `("status" = 'draft')`)
	assert.NotContains(t, query, "ORDER BY")
	assert.NotContains(t, query, "tenant_id\" = 1")
	assert.Equal(t, 0, calls)
	assert.False(t, s.Pending().IsFresh())

	s.NewQuery()
	assert.True(t, s.Pending().IsFresh())
	assert.NotContains(t, s.ToSQL(), "WHERE")
}

func TestFactorySessionsAreIndependent(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()
	f, err := NewFactory[article](db, WithDefaultOrder("views", Asc))
	require.NoError(t, err)

	a, b := f.Session(), f.Session()
	a.Where("status", "=", "archived")

	items, err := b.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alpha", items[0].Title)
	assert.False(t, a.Pending().IsFresh())

	items, err = a.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo"}, titles(items))
}

func TestRunInTx(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()
	var calls int
	s := newArticles(t, db, WithGlobalScope(tenantScope(1, &calls)))

	err := s.RunInTx(ctx, func(ctx context.Context, tx *Session[article]) error {
		assert.NotSame(t, s, tx)
		if err := tx.Create(ctx, &article{TenantID: 1, Title: "foxtrot", Status: "draft", CreatedAt: baseTime}); err != nil {
			return err
		}
		n, err := tx.Count(ctx)
		if err != nil {
			return err
		}
		assert.Equal(t, 4, n)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	rollback := errors.New("rollback")
	err = s.RunInTx(ctx, func(ctx context.Context, tx *Session[article]) error {
		if err := tx.Create(ctx, &article{TenantID: 1, Title: "golf", Status: "draft", CreatedAt: baseTime}); err != nil {
			return err
		}
		return rollback
	})
	assert.ErrorIs(t, err, rollback)

	n, err := s.SkipGlobalScope().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestDebugTrace(t *testing.T) {
	db, _ := newTestDB(t)
	logger := &recordingLogger{}
	s := newArticles(t, db, WithDebug(true), WithLogger(logger))

	_, err := s.Where("status", "=", "active").Get(context.Background())
	require.NoError(t, err)
	require.Len(t, logger.entries, 1)
	assert.Equal(t, "DEBUG repository query", logger.entries[0])
	assert.Equal(t, []interface{}{"op", "get", "table", "articles"}, logger.fields[0][:4])
	assert.Contains(t, logger.fields[0][5], "status")

	quiet := &recordingLogger{}
	_, err = newArticles(t, db, WithLogger(quiet)).Count(context.Background())
	require.NoError(t, err)
	assert.Empty(t, quiet.entries)
}
