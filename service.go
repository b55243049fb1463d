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

// Package bunsession wires repository sessions to the global database
// connection opened by database.InitDB.
package bunsession

import (
	"context"
	"sync"

	"github.com/tomoncle/bunsession/database"
	"github.com/tomoncle/bunsession/repository"
	"github.com/tomoncle/bunsession/types"

	"github.com/uptrace/bun"
)

type Service[T any] interface {
	// Session returns a fresh repository session for one unit of work.
	Session() (*repository.Session[T], error)

	// Get returns a single entity by its primary key, or nil.
	Get(ctx context.Context, id any) (*T, error)

	// All returns all entities visible through the global scope.
	All(ctx context.Context) ([]*T, error)

	// Page returns a paginated list of entities.
	Page(ctx context.Context, page, pageSize int) (*types.Pagination[T], error)

	// Delete removes entities by primary key.
	Delete(ctx context.Context, id ...any) (int64, error)

	// Save inserts one or more new entities.
	Save(ctx context.Context, model ...*T) error

	// SaveOrUpdate upserts entities, updating fields on duplicate keys.
	SaveOrUpdate(ctx context.Context, fields []string, duplicateKeys []string, model ...*T) error

	// SaveWithTx inserts entities within an existing transaction.
	SaveWithTx(ctx context.Context, tx bun.Tx, model ...*T) error

	// SaveOrUpdateWithTx upserts entities within a transaction.
	SaveOrUpdateWithTx(ctx context.Context, tx bun.Tx, fields []string, duplicateKeys []string, model ...*T) error

	// DeleteWithTx removes entities by primary key within a transaction.
	DeleteWithTx(ctx context.Context, tx bun.Tx, id ...any) (int64, error)
}

type baseServiceImpl[T any] struct {
	opts    []repository.Option
	factory *repository.Factory[T]
	err     error
	once    sync.Once
}

// NewService returns a default Service backed by the global database
// connection. The connection is resolved on first use.
func NewService[T any](opts ...repository.Option) Service[T] {
	return newBaseServiceImpl[T](opts...)
}

func newBaseServiceImpl[T any](opts ...repository.Option) *baseServiceImpl[T] {
	return &baseServiceImpl[T]{opts: opts}
}

func (s *baseServiceImpl[T]) baseFactory() (*repository.Factory[T], error) {
	s.once.Do(func() { s.factory, s.err = repository.NewFactory[T](database.GetDB(), s.opts...) })
	return s.factory, s.err
}

func (s *baseServiceImpl[T]) Session() (*repository.Session[T], error) {
	f, err := s.baseFactory()
	if err != nil {
		return nil, err
	}
	return f.Session(), nil
}

func (s *baseServiceImpl[T]) txSession(tx bun.Tx) (*repository.Session[T], error) {
	session, err := s.Session()
	if err != nil {
		return nil, err
	}
	return session.WithTx(tx), nil
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, id any) (*T, error) {
	session, err := s.Session()
	if err != nil {
		return nil, err
	}
	return session.Find(ctx, id)
}

func (s *baseServiceImpl[T]) All(ctx context.Context) ([]*T, error) {
	session, err := s.Session()
	if err != nil {
		return nil, err
	}
	return session.All(ctx)
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, page, pageSize int) (*types.Pagination[T], error) {
	session, err := s.Session()
	if err != nil {
		return nil, err
	}
	return session.Paginate(ctx, page, pageSize)
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, id ...any) (int64, error) {
	session, err := s.Session()
	if err != nil {
		return 0, err
	}
	return session.Destroy(ctx, id...)
}

func (s *baseServiceImpl[T]) Save(ctx context.Context, model ...*T) error {
	session, err := s.Session()
	if err != nil {
		return err
	}
	return session.Insert(ctx, model...)
}

func (s *baseServiceImpl[T]) SaveOrUpdate(ctx context.Context, fields []string, duplicateKeys []string, model ...*T) error {
	session, err := s.Session()
	if err != nil {
		return err
	}
	return session.Upsert(ctx, fields, duplicateKeys, model...)
}

func (s *baseServiceImpl[T]) SaveWithTx(ctx context.Context, tx bun.Tx, model ...*T) error {
	session, err := s.txSession(tx)
	if err != nil {
		return err
	}
	return session.Insert(ctx, model...)
}

func (s *baseServiceImpl[T]) SaveOrUpdateWithTx(ctx context.Context, tx bun.Tx, fields []string, duplicateKeys []string, model ...*T) error {
	session, err := s.txSession(tx)
	if err != nil {
		return err
	}
	return session.Upsert(ctx, fields, duplicateKeys, model...)
}

func (s *baseServiceImpl[T]) DeleteWithTx(ctx context.Context, tx bun.Tx, id ...any) (int64, error) {
	session, err := s.txSession(tx)
	if err != nil {
		return 0, err
	}
	return session.Destroy(ctx, id...)
}
