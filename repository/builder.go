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
	"fmt"
	"reflect"
	"strings"

	"github.com/uptrace/bun"
)

var operators = map[string]struct{}{
	"=": {}, "<": {}, ">": {}, "<=": {}, ">=": {}, "<>": {}, "!=": {},
	"LIKE": {}, "NOT LIKE": {},
}

func normalizeOperator(op string) (string, bool) {
	op = strings.ToUpper(strings.TrimSpace(op))
	_, ok := operators[op]
	return op, ok
}

func (s *Session[T]) addWhere(or bool, query string, args ...interface{}) *Session[T] {
	if or {
		s.current.orWhere(func(qb bun.QueryBuilder) bun.QueryBuilder {
			return qb.WhereOr(query, args...)
		})
	} else {
		s.current.where(func(qb bun.QueryBuilder) bun.QueryBuilder {
			return qb.Where(query, args...)
		})
	}
	return s
}

func (s *Session[T]) addCompare(or bool, column, operator string, value interface{}) *Session[T] {
	op, ok := normalizeOperator(operator)
	if !ok {
		s.current.setErr(fmt.Errorf("%w: %q", ErrInvalidOperator, operator))
		return s
	}
	if value == nil {
		switch op {
		case "=":
			return s.addWhere(or, "? IS NULL", bun.Ident(column))
		case "!=", "<>":
			return s.addWhere(or, "? IS NOT NULL", bun.Ident(column))
		}
	}
	return s.addWhere(or, "? "+op+" ?", bun.Ident(column), value)
}

// Where adds "column operator value". A nil value with = or != becomes
// IS NULL / IS NOT NULL.
func (s *Session[T]) Where(column, operator string, value interface{}) *Session[T] {
	return s.addCompare(false, column, operator, value)
}

// OrWhere is Where joined with OR.
func (s *Session[T]) OrWhere(column, operator string, value interface{}) *Session[T] {
	return s.addCompare(true, column, operator, value)
}

// WhereRaw adds a Bun predicate such as "lower(title) = ?".
func (s *Session[T]) WhereRaw(query string, args ...interface{}) *Session[T] {
	return s.addWhere(false, query, args...)
}

// OrWhereRaw is WhereRaw joined with OR.
func (s *Session[T]) OrWhereRaw(query string, args ...interface{}) *Session[T] {
	return s.addWhere(true, query, args...)
}

// asSlice wraps a non-slice value and reports whether the result is empty.
func asSlice(values interface{}) (interface{}, bool) {
	v := reflect.ValueOf(values)
	if !v.IsValid() {
		return []interface{}{}, true
	}
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return []interface{}{values}, false
	}
	return values, v.Len() == 0
}

func (s *Session[T]) addIn(or, not bool, column string, values interface{}) *Session[T] {
	list, empty := asSlice(values)
	if empty {
		// IN () matches nothing, NOT IN () matches everything.
		if not {
			return s.addWhere(or, "1 = 1")
		}
		return s.addWhere(or, "1 = 0")
	}
	if not {
		return s.addWhere(or, "? NOT IN (?)", bun.Ident(column), bun.In(list))
	}
	return s.addWhere(or, "? IN (?)", bun.Ident(column), bun.In(list))
}

// WhereIn adds "column IN (values)". A scalar value is treated as a single
// element and an empty slice matches nothing.
func (s *Session[T]) WhereIn(column string, values interface{}) *Session[T] {
	return s.addIn(false, false, column, values)
}

// OrWhereIn is WhereIn joined with OR.
func (s *Session[T]) OrWhereIn(column string, values interface{}) *Session[T] {
	return s.addIn(true, false, column, values)
}

// WhereNotIn adds "column NOT IN (values)". An empty slice matches every row.
func (s *Session[T]) WhereNotIn(column string, values interface{}) *Session[T] {
	return s.addIn(false, true, column, values)
}

// OrWhereNotIn is WhereNotIn joined with OR.
func (s *Session[T]) OrWhereNotIn(column string, values interface{}) *Session[T] {
	return s.addIn(true, true, column, values)
}

// WhereNull adds "column IS NULL".
func (s *Session[T]) WhereNull(column string) *Session[T] {
	return s.addWhere(false, "? IS NULL", bun.Ident(column))
}

// OrWhereNull is WhereNull joined with OR.
func (s *Session[T]) OrWhereNull(column string) *Session[T] {
	return s.addWhere(true, "? IS NULL", bun.Ident(column))
}

// WhereNotNull adds "column IS NOT NULL".
func (s *Session[T]) WhereNotNull(column string) *Session[T] {
	return s.addWhere(false, "? IS NOT NULL", bun.Ident(column))
}

// OrWhereNotNull is WhereNotNull joined with OR.
func (s *Session[T]) OrWhereNotNull(column string) *Session[T] {
	return s.addWhere(true, "? IS NOT NULL", bun.Ident(column))
}

// WhereBetween adds "column BETWEEN from AND to".
func (s *Session[T]) WhereBetween(column string, from, to interface{}) *Session[T] {
	return s.addWhere(false, "? BETWEEN ? AND ?", bun.Ident(column), from, to)
}

// OrWhereBetween is WhereBetween joined with OR.
func (s *Session[T]) OrWhereBetween(column string, from, to interface{}) *Session[T] {
	return s.addWhere(true, "? BETWEEN ? AND ?", bun.Ident(column), from, to)
}

// WhereNotBetween adds "column NOT BETWEEN from AND to".
func (s *Session[T]) WhereNotBetween(column string, from, to interface{}) *Session[T] {
	return s.addWhere(false, "? NOT BETWEEN ? AND ?", bun.Ident(column), from, to)
}

// OrWhereNotBetween is WhereNotBetween joined with OR.
func (s *Session[T]) OrWhereNotBetween(column string, from, to interface{}) *Session[T] {
	return s.addWhere(true, "? NOT BETWEEN ? AND ?", bun.Ident(column), from, to)
}

func (s *Session[T]) addDatePart(or bool, part datePart, column, operator string, value interface{}) *Session[T] {
	op, ok := normalizeOperator(operator)
	if !ok {
		s.current.setErr(fmt.Errorf("%w: %q", ErrInvalidOperator, operator))
		return s
	}
	name := s.db.Dialect().Name()
	lhs, rhs := datePartSQL(name, part)
	return s.addWhere(or, lhs+" "+op+" "+rhs, bun.Ident(column), datePartValue(name, part, value))
}

// WhereDate compares the date part of column. value may be a time.Time or a
// "2006-01-02" string.
func (s *Session[T]) WhereDate(column, operator string, value interface{}) *Session[T] {
	return s.addDatePart(false, partDate, column, operator, value)
}

// OrWhereDate is WhereDate joined with OR.
func (s *Session[T]) OrWhereDate(column, operator string, value interface{}) *Session[T] {
	return s.addDatePart(true, partDate, column, operator, value)
}

// WhereTime compares the time of day of column, as "15:04:05".
func (s *Session[T]) WhereTime(column, operator string, value interface{}) *Session[T] {
	return s.addDatePart(false, partTime, column, operator, value)
}

// OrWhereTime is WhereTime joined with OR.
func (s *Session[T]) OrWhereTime(column, operator string, value interface{}) *Session[T] {
	return s.addDatePart(true, partTime, column, operator, value)
}

// WhereDay compares the day of month of column.
func (s *Session[T]) WhereDay(column, operator string, value interface{}) *Session[T] {
	return s.addDatePart(false, partDay, column, operator, value)
}

// WhereMonth compares the month (1-12) of column.
func (s *Session[T]) WhereMonth(column, operator string, value interface{}) *Session[T] {
	return s.addDatePart(false, partMonth, column, operator, value)
}

// WhereYear compares the year of column.
func (s *Session[T]) WhereYear(column, operator string, value interface{}) *Session[T] {
	return s.addDatePart(false, partYear, column, operator, value)
}

// primaryKey returns the single primary key column of T.
func (s *Session[T]) primaryKey() (string, error) {
	if len(s.table.PKs) != 1 {
		return "", fmt.Errorf("%w: %s has %d", ErrNoPrimaryKey, s.table.Name, len(s.table.PKs))
	}
	return s.table.PKs[0].Name, nil
}

// WhereKey restricts the query to the given primary key values.
func (s *Session[T]) WhereKey(ids ...interface{}) *Session[T] {
	pk, err := s.primaryKey()
	if err != nil {
		s.current.setErr(err)
		return s
	}
	if len(ids) == 1 {
		return s.addWhere(false, "? = ?", bun.Ident(pk), ids[0])
	}
	return s.addIn(false, false, pk, ids)
}

// WhereKeyNot excludes the given primary key values.
func (s *Session[T]) WhereKeyNot(ids ...interface{}) *Session[T] {
	pk, err := s.primaryKey()
	if err != nil {
		s.current.setErr(err)
		return s
	}
	if len(ids) == 1 {
		return s.addWhere(false, "? != ?", bun.Ident(pk), ids[0])
	}
	return s.addIn(false, true, pk, ids)
}

// OnlyTrashed restricts a soft-delete model to deleted rows.
func (s *Session[T]) OnlyTrashed() *Session[T] {
	s.current.deleted = deletedOnly
	return s
}

// WithTrashed includes soft-deleted rows.
func (s *Session[T]) WithTrashed() *Session[T] {
	s.current.deleted = deletedIncluded
	return s
}

// Select replaces the selected columns.
func (s *Session[T]) Select(columns ...string) *Session[T] {
	s.current.columns = []selectModifier{func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Column(columns...)
	}}
	return s
}

// AddSelect appends columns to the selection.
func (s *Session[T]) AddSelect(columns ...string) *Session[T] {
	s.current.columns = append(s.current.columns, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Column(columns...)
	})
	return s
}

// SelectRaw appends a column expression such as "COUNT(*) AS total".
func (s *Session[T]) SelectRaw(expr string, args ...interface{}) *Session[T] {
	s.current.columns = append(s.current.columns, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.ColumnExpr(expr, args...)
	})
	return s
}

func (s *Session[T]) modify(fn selectModifier) *Session[T] {
	s.current.modifiers = append(s.current.modifiers, fn)
	return s
}

// Distinct selects distinct rows.
func (s *Session[T]) Distinct() *Session[T] {
	return s.modify(func(q *bun.SelectQuery) *bun.SelectQuery { return q.Distinct() })
}

// Join adds a join in Bun syntax, e.g. "JOIN users AS u ON u.id = ?TableAlias.user_id".
func (s *Session[T]) Join(join string, args ...interface{}) *Session[T] {
	return s.modify(func(q *bun.SelectQuery) *bun.SelectQuery { return q.Join(join, args...) })
}

// GroupBy adds GROUP BY columns.
func (s *Session[T]) GroupBy(columns ...string) *Session[T] {
	return s.modify(func(q *bun.SelectQuery) *bun.SelectQuery { return q.Group(columns...) })
}

// Having adds "column operator value" to the HAVING clause.
func (s *Session[T]) Having(column, operator string, value interface{}) *Session[T] {
	return s.addHaving(false, column, operator, value)
}

// OrHaving is Having joined with OR.
func (s *Session[T]) OrHaving(column, operator string, value interface{}) *Session[T] {
	return s.addHaving(true, column, operator, value)
}

// HavingRaw adds a raw condition to the HAVING clause.
func (s *Session[T]) HavingRaw(query string, args ...interface{}) *Session[T] {
	s.current.having(query, args, false)
	return s
}

// OrHavingRaw is HavingRaw joined with OR.
func (s *Session[T]) OrHavingRaw(query string, args ...interface{}) *Session[T] {
	s.current.having(query, args, true)
	return s
}

func (s *Session[T]) addHaving(or bool, column, operator string, value interface{}) *Session[T] {
	op, ok := normalizeOperator(operator)
	if !ok {
		s.current.setErr(fmt.Errorf("%w: %q", ErrInvalidOperator, operator))
		return s
	}
	s.current.having("? "+op+" ?", []interface{}{bun.Ident(column), value}, or)
	return s
}

// Limit caps the number of rows returned.
func (s *Session[T]) Limit(n int) *Session[T] {
	return s.modify(func(q *bun.SelectQuery) *bun.SelectQuery { return q.Limit(n) })
}

// Take is Limit.
func (s *Session[T]) Take(n int) *Session[T] { return s.Limit(n) }

// Offset skips the first n rows.
func (s *Session[T]) Offset(n int) *Session[T] {
	return s.modify(func(q *bun.SelectQuery) *bun.SelectQuery { return q.Offset(n) })
}

// Skip is Offset.
func (s *Session[T]) Skip(n int) *Session[T] { return s.Offset(n) }

// With eager-loads Bun relations of T.
func (s *Session[T]) With(relations ...string) *Session[T] {
	s.current.relations = append(s.current.relations, relations...)
	return s
}

// Without removes previously requested relations.
func (s *Session[T]) Without(relations ...string) *Session[T] {
	drop := make(map[string]struct{}, len(relations))
	for _, r := range relations {
		drop[r] = struct{}{}
	}
	kept := s.current.relations[:0]
	for _, r := range s.current.relations {
		if _, ok := drop[r]; !ok {
			kept = append(kept, r)
		}
	}
	s.current.relations = kept
	return s
}

// OrderBy adds ORDER BY column direction unless an identical clause is
// already pending, and suppresses the default order for the next terminal.
func (s *Session[T]) OrderBy(column string, direction Direction) *Session[T] {
	clause := OrderClause{Column: column, Direction: direction.Normalize()}
	if !clause.Direction.IsValid() {
		s.current.setErr(fmt.Errorf("%w: %q", ErrInvalidOrder, string(direction)))
		return s
	}
	if !s.current.HasOrder(clause) {
		s.current.appendOrder(clause)
	}
	s.current.skipOrderBy = true
	return s
}

// OrderByDesc is OrderBy(column, Desc).
func (s *Session[T]) OrderByDesc(column string) *Session[T] {
	return s.OrderBy(column, Desc)
}

// OrderByRaw appends a raw ORDER BY expression. It neither deduplicates nor
// suppresses the default order.
func (s *Session[T]) OrderByRaw(query string, args ...interface{}) *Session[T] {
	s.current.appendRawOrder(query, args)
	return s
}

func timestampColumn(column []string) string {
	if len(column) > 0 && column[0] != "" {
		return column[0]
	}
	return "created_at"
}

// Latest orders by column (default created_at) descending. Like OrderByRaw
// it leaves the default order in place.
func (s *Session[T]) Latest(column ...string) *Session[T] {
	s.current.appendOrder(OrderClause{Column: timestampColumn(column), Direction: Desc})
	return s
}

// Oldest orders by column (default created_at) ascending.
func (s *Session[T]) Oldest(column ...string) *Session[T] {
	s.current.appendOrder(OrderClause{Column: timestampColumn(column), Direction: Asc})
	return s
}
