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
	"errors"
	"sort"

	"github.com/tomoncle/bunsession/types"
	"github.com/uptrace/bun"
)

// Get runs the pending select and returns every matching row.
func (s *Session[T]) Get(ctx context.Context, opts ...CallOption) ([]*T, error) {
	q := s.prepare(opts)
	defer s.reset()
	if q.err != nil {
		return nil, q.err
	}
	items := make([]*T, 0)
	sel := q.buildSelect(s.db.NewSelect().Model(&items), true)
	s.trace("get", sel)
	if err := sel.Scan(ctx); err != nil {
		return nil, err
	}
	return items, nil
}

// All is Get.
func (s *Session[T]) All(ctx context.Context, opts ...CallOption) ([]*T, error) {
	return s.Get(ctx, opts...)
}

// FirstOrFail returns the first matching row or sql.ErrNoRows.
func (s *Session[T]) FirstOrFail(ctx context.Context, opts ...CallOption) (*T, error) {
	q := s.prepare(opts)
	defer s.reset()
	if q.err != nil {
		return nil, q.err
	}
	item := new(T)
	sel := q.buildSelect(s.db.NewSelect().Model(item), true).Limit(1)
	s.trace("first", sel)
	if err := sel.Scan(ctx); err != nil {
		return nil, err
	}
	return item, nil
}

// First returns the first matching row, or nil when nothing matches.
func (s *Session[T]) First(ctx context.Context, opts ...CallOption) (*T, error) {
	item, err := s.FirstOrFail(ctx, opts...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

// FirstOr returns the first matching row or the result of fallback. The
// session is already reset when fallback runs.
func (s *Session[T]) FirstOr(ctx context.Context, fallback func() (*T, error), opts ...CallOption) (*T, error) {
	item, err := s.First(ctx, opts...)
	if err != nil || item != nil || fallback == nil {
		return item, err
	}
	return fallback()
}

// Value scans column of the first matching row into dest. It reports false
// when no row matches.
func (s *Session[T]) Value(ctx context.Context, column string, dest interface{}, opts ...CallOption) (bool, error) {
	q := s.prepare(opts)
	defer s.reset()
	if q.err != nil {
		return false, q.err
	}
	sel := q.buildSelect(s.db.NewSelect().Model((*T)(nil)), false).Column(column)
	sel = q.applyOrders(sel).Limit(1)
	s.trace("value", sel)
	if err := sel.Scan(ctx, dest); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Pluck scans column of every matching row into dest, a pointer to a slice.
func (s *Session[T]) Pluck(ctx context.Context, column string, dest interface{}, opts ...CallOption) error {
	q := s.prepare(opts)
	defer s.reset()
	if q.err != nil {
		return q.err
	}
	sel := q.applyOrders(q.buildSelect(s.db.NewSelect().Model((*T)(nil)), false).Column(column))
	s.trace("pluck", sel)
	return sel.Scan(ctx, dest)
}

// PluckMap scans key and column of every matching row into a map from key to
// column value. Later rows overwrite earlier ones with the same key.
func PluckMap[K comparable, V any, T any](ctx context.Context, s *Session[T], column, key string, opts ...CallOption) (map[K]V, error) {
	q := s.prepare(opts)
	defer s.reset()
	if q.err != nil {
		return nil, q.err
	}
	sel := q.applyOrders(q.buildSelect(s.db.NewSelect().Model((*T)(nil)), false).Column(key, column))
	s.trace("pluck", sel)
	var keys []K
	var values []V
	if err := sel.Scan(ctx, &keys, &values); err != nil {
		return nil, err
	}
	out := make(map[K]V, len(keys))
	for i, k := range keys {
		out[k] = values[i]
	}
	return out, nil
}

// Count returns the number of matching rows.
func (s *Session[T]) Count(ctx context.Context, opts ...CallOption) (int, error) {
	q := s.prepare(opts)
	defer s.reset()
	if q.err != nil {
		return 0, q.err
	}
	sel := q.buildSelect(s.db.NewSelect().Model((*T)(nil)), false)
	s.trace("count", sel)
	return sel.Count(ctx)
}

// Exists reports whether any row matches.
func (s *Session[T]) Exists(ctx context.Context, opts ...CallOption) (bool, error) {
	q := s.prepare(opts)
	defer s.reset()
	if q.err != nil {
		return false, q.err
	}
	sel := q.buildSelect(s.db.NewSelect().Model((*T)(nil)), false)
	s.trace("exists", sel)
	return sel.Exists(ctx)
}

func (s *Session[T]) aggregate(ctx context.Context, fn, column string, dest interface{}, opts []CallOption) error {
	q := s.prepare(opts)
	defer s.reset()
	if q.err != nil {
		return q.err
	}
	sel := q.buildSelect(s.db.NewSelect().Model((*T)(nil)), false).
		ColumnExpr(fn+"(?)", bun.Ident(column))
	s.trace(fn, sel)
	return sel.Scan(ctx, dest)
}

// Min scans the smallest value of column into dest. Use a sql.Null* type when
// the result may be NULL.
func (s *Session[T]) Min(ctx context.Context, column string, dest interface{}, opts ...CallOption) error {
	return s.aggregate(ctx, "MIN", column, dest, opts)
}

// Max scans the largest value of column into dest.
func (s *Session[T]) Max(ctx context.Context, column string, dest interface{}, opts ...CallOption) error {
	return s.aggregate(ctx, "MAX", column, dest, opts)
}

// Sum returns the sum of column, 0 when nothing matches.
func (s *Session[T]) Sum(ctx context.Context, column string, opts ...CallOption) (float64, error) {
	var v sql.NullFloat64
	if err := s.aggregate(ctx, "SUM", column, &v, opts); err != nil {
		return 0, err
	}
	return v.Float64, nil
}

// Avg returns the average of column, 0 when nothing matches.
func (s *Session[T]) Avg(ctx context.Context, column string, opts ...CallOption) (float64, error) {
	var v sql.NullFloat64
	if err := s.aggregate(ctx, "AVG", column, &v, opts); err != nil {
		return 0, err
	}
	return v.Float64, nil
}

// Average is Avg.
func (s *Session[T]) Average(ctx context.Context, column string, opts ...CallOption) (float64, error) {
	return s.Avg(ctx, column, opts...)
}

// Paginate returns one page of rows and the total row count. page < 1 means
// the first page and perPage < 1 the session page size.
func (s *Session[T]) Paginate(ctx context.Context, page, perPage int, opts ...CallOption) (*types.Pagination[T], error) {
	q := s.prepare(opts)
	defer s.reset()
	if q.err != nil {
		return nil, q.err
	}
	page, perPage = types.NormalizePage(page, perPage, s.pageSize)
	result := types.NewDefaultPagination[T](page, perPage)
	sel := q.buildSelect(s.db.NewSelect().Model(&result.Items), true).
		Limit(perPage).
		Offset(types.Offset(page, perPage))
	s.trace("paginate", sel)
	total, err := sel.ScanAndCount(ctx)
	if err != nil {
		return nil, err
	}
	result.SetTotal(total)
	return result, nil
}

// SimplePaginate returns one page of rows without counting, fetching one
// extra row to tell whether another page exists.
func (s *Session[T]) SimplePaginate(ctx context.Context, page, perPage int, opts ...CallOption) (*types.SimplePagination[T], error) {
	q := s.prepare(opts)
	defer s.reset()
	if q.err != nil {
		return nil, q.err
	}
	page, perPage = types.NormalizePage(page, perPage, s.pageSize)
	items := make([]*T, 0, perPage+1)
	sel := q.buildSelect(s.db.NewSelect().Model(&items), true).
		Limit(perPage + 1).
		Offset(types.Offset(page, perPage))
	s.trace("simple_paginate", sel)
	if err := sel.Scan(ctx); err != nil {
		return nil, err
	}
	return types.NewSimplePagination(page, perPage, items), nil
}

func sortedKeys(values map[string]interface{}) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func setValues(upd *bun.UpdateQuery, values map[string]interface{}) *bun.UpdateQuery {
	for _, k := range sortedKeys(values) {
		upd = upd.Set("? = ?", bun.Ident(k), values[k])
	}
	return upd
}

func (s *Session[T]) execUpdate(ctx context.Context, op string, opts []CallOption, set func(*bun.UpdateQuery) *bun.UpdateQuery) (int64, error) {
	q := s.prepare(opts)
	defer s.reset()
	if q.err != nil {
		return 0, q.err
	}
	upd := q.buildUpdate(set(s.db.NewUpdate().Model((*T)(nil))))
	s.trace(op, upd)
	return rowsAffected(upd.Exec(ctx))
}

// Update sets values on every matching row and returns the affected count.
func (s *Session[T]) Update(ctx context.Context, values map[string]interface{}, opts ...CallOption) (int64, error) {
	if len(values) == 0 {
		// nothing to set; the scope still sees the query but no statement runs
		q := s.prepare(opts)
		defer s.reset()
		if q.err != nil {
			return 0, q.err
		}
		q.buildUpdate(s.db.NewUpdate().Model((*T)(nil)))
		return 0, nil
	}
	return s.execUpdate(ctx, "update", opts, func(upd *bun.UpdateQuery) *bun.UpdateQuery {
		return setValues(upd, values)
	})
}

// Increment adds amount to column on every matching row, also setting extra.
func (s *Session[T]) Increment(ctx context.Context, column string, amount interface{}, extra map[string]interface{}, opts ...CallOption) (int64, error) {
	return s.execUpdate(ctx, "increment", opts, func(upd *bun.UpdateQuery) *bun.UpdateQuery {
		upd = upd.Set("? = ? + ?", bun.Ident(column), bun.Ident(column), amount)
		return setValues(upd, extra)
	})
}

// Decrement subtracts amount from column on every matching row.
func (s *Session[T]) Decrement(ctx context.Context, column string, amount interface{}, extra map[string]interface{}, opts ...CallOption) (int64, error) {
	return s.execUpdate(ctx, "decrement", opts, func(upd *bun.UpdateQuery) *bun.UpdateQuery {
		upd = upd.Set("? = ? - ?", bun.Ident(column), bun.Ident(column), amount)
		return setValues(upd, extra)
	})
}

func (s *Session[T]) execDelete(ctx context.Context, force bool, opts []CallOption) (int64, error) {
	q := s.prepare(opts)
	defer s.reset()
	if q.err != nil {
		return 0, q.err
	}
	del := q.buildDelete(s.db.NewDelete().Model(new(T)))
	op := "delete"
	if force {
		del = del.ForceDelete()
		op = "force_delete"
	}
	s.trace(op, del)
	return rowsAffected(del.Exec(ctx))
}

// Delete removes every matching row. Models with a soft_delete column are
// marked deleted instead.
func (s *Session[T]) Delete(ctx context.Context, opts ...CallOption) (int64, error) {
	return s.execDelete(ctx, false, opts)
}

// ForceDelete removes matching rows even for soft-delete models.
func (s *Session[T]) ForceDelete(ctx context.Context, opts ...CallOption) (int64, error) {
	return s.execDelete(ctx, true, opts)
}

// Destroy deletes the rows with the given primary keys. Pending filters and
// the global scope still apply.
func (s *Session[T]) Destroy(ctx context.Context, ids ...interface{}) (int64, error) {
	if len(ids) == 0 {
		q := s.prepare(nil)
		defer s.reset()
		if q.err != nil {
			return 0, q.err
		}
		q.buildDelete(s.db.NewDelete().Model(new(T)))
		return 0, nil
	}
	return s.WhereKey(ids...).Delete(ctx)
}

func rowsAffected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
