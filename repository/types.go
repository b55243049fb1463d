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
	"github.com/tomoncle/bunsession/database"
	"github.com/tomoncle/bunsession/types"
	"github.com/uptrace/bun"
)

type Direction = types.Direction

const (
	Asc  = types.Asc
	Desc = types.Desc
)

// OrderClause is a single structured ORDER BY entry.
type OrderClause struct {
	Column    string
	Direction Direction
}

// GlobalScope adds request-wide predicates, such as a tenant filter, to the
// pending query before a scope-aware terminal executes.
type GlobalScope func(q bun.QueryBuilder) bun.QueryBuilder

// Option configures a Session or Factory.
type Option func(*settings)

type settings struct {
	pageSize     int
	defaultOrder *OrderClause
	scope        GlobalScope
	logger       database.Logger
	debug        bool
}

func newSettings(opts []Option) settings {
	s := settings{}
	for _, opt := range opts {
		opt(&s)
	}
	if s.pageSize < 1 {
		s.pageSize = database.PerPage()
	}
	if s.logger == nil {
		s.logger = database.GetLogger()
	}
	return s
}

// WithPageSize sets the page size used when Paginate gets perPage <= 0.
func WithPageSize(n int) Option {
	return func(s *settings) { s.pageSize = n }
}

// WithDefaultOrder appends ORDER BY column direction to scope-aware terminals
// unless an explicit OrderBy was chained or the call opts out.
func WithDefaultOrder(column string, direction Direction) Option {
	return func(s *settings) {
		s.defaultOrder = &OrderClause{Column: column, Direction: direction.Normalize()}
	}
}

// WithGlobalScope installs the scope applied before scope-aware terminals.
func WithGlobalScope(scope GlobalScope) Option {
	return func(s *settings) { s.scope = scope }
}

// WithLogger sets the logger used for debug traces.
func WithLogger(logger database.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithDebug logs the SQL of every terminal at debug level.
func WithDebug(debug bool) Option {
	return func(s *settings) { s.debug = debug }
}

// CallOption adjusts a single terminal call.
type CallOption func(*callOptions)

type callOptions struct {
	skipGlobalScope bool
	skipOrderBy     bool
}

// WithoutGlobalScope skips the global scope for this call only.
func WithoutGlobalScope() CallOption {
	return func(o *callOptions) { o.skipGlobalScope = true }
}

// WithoutDefaultOrder skips the default order for this call only.
func WithoutDefaultOrder() CallOption {
	return func(o *callOptions) { o.skipOrderBy = true }
}
