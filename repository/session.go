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
	"fmt"
	"reflect"

	"github.com/tomoncle/bunsession/database"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// Session is a repository base for model T. Host repositories embed it:
//
//	type ArticleRepository struct {
//		*repository.Session[Article]
//	}
//
// A Session is owned by a single caller and is not safe for concurrent use.
// Use a Factory to create one Session per unit of work.
type Session[T any] struct {
	settings
	db      bun.IDB
	table   *schema.Table
	current *Query
}

// Factory validates model T once and builds Sessions sharing its settings.
// A Factory is immutable and safe for concurrent use.
type Factory[T any] struct {
	settings settings
	db       bun.IDB
	table    *schema.Table
}

// NewFactory resolves the Bun table of T and validates opts. It fails with
// ErrInvalidModel when T cannot be mapped to a table.
func NewFactory[T any](db bun.IDB, opts ...Option) (*Factory[T], error) {
	if isNilDB(db) {
		return nil, ErrNilDB
	}
	table, err := resolveTable[T](db)
	if err != nil {
		return nil, err
	}
	s := newSettings(opts)
	if o := s.defaultOrder; o != nil {
		if o.Column == "" {
			return nil, fmt.Errorf("%w: default order column cannot be empty", ErrInvalidOrder)
		}
		if !o.Direction.IsValid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidOrder, string(o.Direction))
		}
	}
	return &Factory[T]{settings: s, db: db, table: table}, nil
}

// Session returns a new Session with a fresh pending query.
func (f *Factory[T]) Session() *Session[T] {
	return &Session[T]{settings: f.settings, db: f.db, table: f.table, current: newQuery()}
}

// NewSession is shorthand for NewFactory followed by Factory.Session.
func NewSession[T any](db bun.IDB, opts ...Option) (*Session[T], error) {
	f, err := NewFactory[T](db, opts...)
	if err != nil {
		return nil, err
	}
	return f.Session(), nil
}

func isNilDB(db bun.IDB) bool {
	if db == nil {
		return true
	}
	if d, ok := db.(*bun.DB); ok && d == nil {
		return true
	}
	return false
}

func resolveTable[T any](db bun.IDB) (table *schema.Table, err error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrInvalidModel, typ)
	}
	defer func() {
		if r := recover(); r != nil {
			table, err = nil, fmt.Errorf("%w: %s: %v", ErrInvalidModel, typ, r)
		}
	}()
	table = db.Dialect().Tables().Get(typ)
	if table == nil || table.Name == "" {
		return nil, fmt.Errorf("%w: %s has no table name", ErrInvalidModel, typ)
	}
	return table, nil
}

// DB returns the database or transaction the Session executes against.
func (s *Session[T]) DB() bun.IDB { return s.db }

// Table returns the table name of T.
func (s *Session[T]) Table() string { return s.table.Name }

// PageSize returns the page size used when Paginate gets perPage <= 0.
func (s *Session[T]) PageSize() int { return s.pageSize }

// DefaultOrder returns the configured default order, if any.
func (s *Session[T]) DefaultOrder() (OrderClause, bool) {
	if s.defaultOrder == nil {
		return OrderClause{}, false
	}
	return *s.defaultOrder, true
}

// SetDefaultOrder changes the default order of this Session. An empty column
// removes it. An invalid direction is rejected and reported by the next
// terminal.
func (s *Session[T]) SetDefaultOrder(column string, direction Direction) *Session[T] {
	if column == "" {
		s.defaultOrder = nil
		return s
	}
	order := OrderClause{Column: column, Direction: direction.Normalize()}
	if !order.Direction.IsValid() {
		// the previous default order stays in place
		s.current.setErr(fmt.Errorf("%w: %q", ErrInvalidOrder, string(direction)))
		return s
	}
	s.defaultOrder = &order
	return s
}

// SetGlobalScope replaces the global scope of this Session.
func (s *Session[T]) SetGlobalScope(scope GlobalScope) *Session[T] {
	s.scope = scope
	return s
}

// Pending returns the query accumulated since the last terminal call.
func (s *Session[T]) Pending() *Query { return s.current }

// NewQuery discards the pending query and both bypass flags.
func (s *Session[T]) NewQuery() *Session[T] {
	s.reset()
	return s
}

// SkipGlobalScope bypasses the global scope for the next terminal call.
func (s *Session[T]) SkipGlobalScope() *Session[T] {
	s.current.skipGlobalScope = true
	return s
}

// SkipOrderBy bypasses the default order for the next terminal call.
func (s *Session[T]) SkipOrderBy() *Session[T] {
	s.current.skipOrderBy = true
	return s
}

// WithTx returns a Session with the same settings bound to tx.
func (s *Session[T]) WithTx(tx bun.Tx) *Session[T] {
	return &Session[T]{settings: s.settings, db: tx, table: s.table, current: newQuery()}
}

// RunInTx runs fn with a transaction-bound Session, committing when fn
// returns nil and rolling back otherwise.
func (s *Session[T]) RunInTx(ctx context.Context, fn func(ctx context.Context, tx *Session[T]) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, s.WithTx(tx))
	})
}

// ToSQL renders the pending select as-is, without default order or scope.
func (s *Session[T]) ToSQL() string {
	return s.current.buildSelect(s.db.NewSelect().Model((*T)(nil)), true).String()
}

func (s *Session[T]) reset() {
	s.current = newQuery()
}

// prepare applies the default order and global scope policy to the pending
// query before a scope-aware terminal. The scope itself runs when the terminal
// builds its statement, so a terminal returning a held builder error never
// invokes it.
func (s *Session[T]) prepare(opts []CallOption) *Query {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	q := s.current
	if !q.skipOrderBy && !o.skipOrderBy && s.defaultOrder != nil {
		q.appendOrder(*s.defaultOrder)
	}
	if !q.skipGlobalScope && !o.skipGlobalScope && s.scope != nil {
		q.scope = s.scope
	}
	return q
}

type tracedQuery interface {
	Operation() string
	String() string
}

func (s *Session[T]) trace(op string, q tracedQuery) {
	if !s.debug || s.logger == nil {
		return
	}
	s.logger.Debug("repository query",
		"op", op,
		"table", s.table.Name,
		"sql", database.ColorizeQuery(q.Operation(), q.String()),
	)
}
