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
	"strings"

	"github.com/uptrace/bun"
)

type filter func(bun.QueryBuilder) bun.QueryBuilder

type selectModifier func(*bun.SelectQuery) *bun.SelectQuery

type deletedMode int

const (
	deletedExcluded deletedMode = iota
	deletedIncluded
	deletedOnly
)

// orderEntry is either a structured clause or a raw expression.
type orderEntry struct {
	clause *OrderClause
	raw    string
	args   []interface{}
}

// havingEntry is one HAVING condition; or joins it to the previous one with OR.
type havingEntry struct {
	query string
	args  []interface{}
	or    bool
}

// Query is the pending state a Session accumulates between terminal calls.
// It is rebuilt into a fresh Bun query for every terminal and then discarded.
type Query struct {
	filters   []filter
	hasOr     bool
	columns   []selectModifier
	modifiers []selectModifier
	havings   []havingEntry
	orders    []orderEntry
	relations []string
	deleted   deletedMode
	err       error

	// set by the lifecycle, not by builder calls
	scope GlobalScope

	skipGlobalScope bool
	skipOrderBy     bool
}

func newQuery() *Query {
	return &Query{}
}

// OrderClauses returns the structured ORDER BY clauses accumulated so far.
func (q *Query) OrderClauses() []OrderClause {
	out := make([]OrderClause, 0, len(q.orders))
	for _, o := range q.orders {
		if o.clause != nil {
			out = append(out, *o.clause)
		}
	}
	return out
}

// HasOrder reports whether an identical clause is already present.
func (q *Query) HasOrder(clause OrderClause) bool {
	for _, existing := range q.OrderClauses() {
		if existing == clause {
			return true
		}
	}
	return false
}

// SkipsGlobalScope reports the one-shot global scope bypass flag.
func (q *Query) SkipsGlobalScope() bool { return q.skipGlobalScope }

// SkipsOrderBy reports the one-shot default order bypass flag.
func (q *Query) SkipsOrderBy() bool { return q.skipOrderBy }

// IsFresh reports whether no builder call has touched the query.
func (q *Query) IsFresh() bool {
	return len(q.filters) == 0 && len(q.columns) == 0 && len(q.modifiers) == 0 &&
		len(q.havings) == 0 && len(q.orders) == 0 && len(q.relations) == 0 && q.deleted == deletedExcluded &&
		q.err == nil && q.scope == nil && !q.skipGlobalScope && !q.skipOrderBy
}

func (q *Query) setErr(err error) {
	if q.err == nil {
		q.err = err
	}
}

func (q *Query) where(f filter) {
	q.filters = append(q.filters, f)
}

func (q *Query) orWhere(f filter) {
	q.hasOr = true
	q.filters = append(q.filters, f)
}

func (q *Query) appendOrder(clause OrderClause) {
	q.orders = append(q.orders, orderEntry{clause: &clause})
}

func (q *Query) appendRawOrder(raw string, args []interface{}) {
	q.orders = append(q.orders, orderEntry{raw: raw, args: args})
}

func (q *Query) having(query string, args []interface{}, or bool) {
	q.havings = append(q.havings, havingEntry{query: query, args: args, or: or})
}

// hasPredicates reports whether the built statement will carry a WHERE.
func (q *Query) hasPredicates() bool {
	return len(q.filters) > 0 || q.scope != nil || q.deleted == deletedOnly
}

// applyFilters writes the soft-delete mode, user filters and global scope.
// User filters are grouped when they contain an OR so the scope predicate
// cannot be bypassed by operator precedence.
func (q *Query) applyFilters(qb bun.QueryBuilder) bun.QueryBuilder {
	switch q.deleted {
	case deletedIncluded:
		qb = qb.WhereAllWithDeleted()
	case deletedOnly:
		qb = qb.WhereDeleted()
	}
	if q.scope != nil && q.hasOr {
		qb = qb.WhereGroup(" AND ", func(g bun.QueryBuilder) bun.QueryBuilder {
			return q.applyUserFilters(g)
		})
	} else {
		qb = q.applyUserFilters(qb)
	}
	if q.scope != nil {
		qb = q.scope(qb)
	}
	return qb
}

func (q *Query) applyUserFilters(qb bun.QueryBuilder) bun.QueryBuilder {
	for _, f := range q.filters {
		qb = f(qb)
	}
	return qb
}

// buildSelect applies the pending state to sel. With rows unset only filters
// and modifiers are applied, leaving the select list and ORDER BY to the
// caller.
func (q *Query) buildSelect(sel *bun.SelectQuery, rows bool) *bun.SelectQuery {
	sel = sel.ApplyQueryBuilder(q.applyFilters)
	for _, fn := range q.modifiers {
		sel = fn(sel)
	}
	sel = q.applyHavings(sel)
	if !rows {
		return sel
	}
	for _, fn := range q.columns {
		sel = fn(sel)
	}
	for _, rel := range q.relations {
		sel = sel.Relation(rel)
	}
	return q.applyOrders(sel)
}

// applyHavings renders all HAVING conditions as one expression so OR entries
// join the chain in call order.
func (q *Query) applyHavings(sel *bun.SelectQuery) *bun.SelectQuery {
	if len(q.havings) == 0 {
		return sel
	}
	var b strings.Builder
	args := make([]interface{}, 0, len(q.havings))
	for i, h := range q.havings {
		if i > 0 {
			if h.or {
				b.WriteString(" OR ")
			} else {
				b.WriteString(" AND ")
			}
		}
		b.WriteString("(" + h.query + ")")
		args = append(args, h.args...)
	}
	return sel.Having(b.String(), args...)
}

func (q *Query) applyOrders(sel *bun.SelectQuery) *bun.SelectQuery {
	for _, o := range q.orders {
		if o.clause != nil {
			sel = sel.OrderExpr("? "+string(o.clause.Direction), bun.Ident(o.clause.Column))
		} else {
			sel = sel.OrderExpr(o.raw, o.args...)
		}
	}
	return sel
}

func (q *Query) buildUpdate(upd *bun.UpdateQuery) *bun.UpdateQuery {
	upd = upd.ApplyQueryBuilder(q.applyFilters)
	if !q.hasPredicates() {
		upd = upd.Where("1 = 1")
	}
	return upd
}

func (q *Query) buildDelete(del *bun.DeleteQuery) *bun.DeleteQuery {
	del = del.ApplyQueryBuilder(q.applyFilters)
	if !q.hasPredicates() {
		del = del.Where("1 = 1")
	}
	return del
}
