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
	"fmt"
	"reflect"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
)

// Identity lookups discard the pending query and run without the default
// order or the global scope.

// FindOrFail returns the row with the given primary key or sql.ErrNoRows.
func (s *Session[T]) FindOrFail(ctx context.Context, id interface{}) (*T, error) {
	s.reset()
	defer s.reset()
	pk, err := s.primaryKey()
	if err != nil {
		return nil, err
	}
	item := new(T)
	sel := s.db.NewSelect().Model(item).Where("? = ?", bun.Ident(pk), id).Limit(1)
	s.trace("find", sel)
	if err := sel.Scan(ctx); err != nil {
		return nil, err
	}
	return item, nil
}

// Find returns the row with the given primary key, or nil when it does not
// exist.
func (s *Session[T]) Find(ctx context.Context, id interface{}) (*T, error) {
	item, err := s.FindOrFail(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

// FindOrNew returns the row with the given primary key or a new zero entity.
func (s *Session[T]) FindOrNew(ctx context.Context, id interface{}) (*T, error) {
	item, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return new(T), nil
	}
	return item, nil
}

// FindMany returns the rows with the given primary keys.
func (s *Session[T]) FindMany(ctx context.Context, ids ...interface{}) ([]*T, error) {
	s.reset()
	defer s.reset()
	pk, err := s.primaryKey()
	if err != nil {
		return nil, err
	}
	items := make([]*T, 0, len(ids))
	if len(ids) == 0 {
		return items, nil
	}
	sel := s.db.NewSelect().Model(&items).Where("? IN (?)", bun.Ident(pk), bun.In(ids))
	s.trace("find_many", sel)
	if err := sel.Scan(ctx); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Session[T]) firstWhere(ctx context.Context, attributes map[string]interface{}) (*T, error) {
	item := new(T)
	sel := s.db.NewSelect().Model(item).Limit(1)
	for _, k := range sortedKeys(attributes) {
		sel = sel.Where("? = ?", bun.Ident(k), attributes[k])
	}
	s.trace("first_where", sel)
	if err := sel.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return item, nil
}

// FirstOrCreate returns the first row matching attributes, inserting entity
// when there is none.
func (s *Session[T]) FirstOrCreate(ctx context.Context, attributes map[string]interface{}, entity *T) (*T, error) {
	s.reset()
	defer s.reset()
	if entity == nil {
		return nil, fmt.Errorf("%w: entity cannot be nil", ErrInvalidModel)
	}
	found, err := s.firstWhere(ctx, attributes)
	if err != nil || found != nil {
		return found, err
	}
	if err := s.insert(ctx, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// UpdateOrCreate updates the first row matching attributes with values, or
// inserts a row built from both maps. It returns the stored row.
func (s *Session[T]) UpdateOrCreate(ctx context.Context, attributes, values map[string]interface{}) (*T, error) {
	s.reset()
	defer s.reset()
	found, err := s.firstWhere(ctx, attributes)
	if err != nil {
		return nil, err
	}
	if found == nil {
		row := make(map[string]interface{}, len(attributes)+len(values))
		for k, v := range attributes {
			row[k] = v
		}
		for k, v := range values {
			row[k] = v
		}
		ins := s.db.NewInsert().Model(&row).TableExpr("?", bun.Ident(s.table.Name))
		s.trace("update_or_create", ins)
		if _, err := ins.Exec(ctx); err != nil {
			return nil, err
		}
		return s.firstWhere(ctx, attributes)
	}
	if len(values) == 0 {
		return found, nil
	}
	pk, err := s.primaryKey()
	if err != nil {
		return nil, err
	}
	id := s.table.PKs[0].Value(reflect.ValueOf(found).Elem()).Interface()
	upd := setValues(s.db.NewUpdate().Model((*T)(nil)), values).Where("? = ?", bun.Ident(pk), id)
	s.trace("update_or_create", upd)
	if _, err := upd.Exec(ctx); err != nil {
		return nil, err
	}
	return s.firstWhere(ctx, map[string]interface{}{pk: id})
}

func (s *Session[T]) insert(ctx context.Context, entities ...*T) error {
	if len(entities) == 0 {
		return nil
	}
	var ins *bun.InsertQuery
	if len(entities) == 1 {
		ins = s.db.NewInsert().Model(entities[0])
	} else {
		ins = s.db.NewInsert().Model(&entities)
	}
	s.trace("insert", ins)
	_, err := ins.Exec(ctx)
	return err
}

// Create inserts entity. Generated columns returned by the database are
// scanned back into it.
func (s *Session[T]) Create(ctx context.Context, entity *T) error {
	s.reset()
	defer s.reset()
	if entity == nil {
		return fmt.Errorf("%w: entity cannot be nil", ErrInvalidModel)
	}
	return s.insert(ctx, entity)
}

// Insert inserts entities in one statement.
func (s *Session[T]) Insert(ctx context.Context, entities ...*T) error {
	s.reset()
	defer s.reset()
	return s.insert(ctx, entities...)
}

// InsertGetID inserts entity and returns its integer primary key.
func (s *Session[T]) InsertGetID(ctx context.Context, entity *T) (int64, error) {
	s.reset()
	defer s.reset()
	if entity == nil {
		return 0, fmt.Errorf("%w: entity cannot be nil", ErrInvalidModel)
	}
	if _, err := s.primaryKey(); err != nil {
		return 0, err
	}
	ins := s.db.NewInsert().Model(entity)
	s.trace("insert_get_id", ins)
	res, err := ins.Exec(ctx)
	if err != nil {
		return 0, err
	}
	v := s.table.PKs[0].Value(reflect.ValueOf(entity).Elem())
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if id := v.Int(); id != 0 {
			return id, nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if id := v.Uint(); id != 0 {
			return int64(id), nil
		}
	}
	return res.LastInsertId()
}

// Upsert inserts entities, updating fields on rows that collide on
// conflictKeys (default: the primary key). MySQL ignores conflictKeys and
// uses the table's unique indexes.
func (s *Session[T]) Upsert(ctx context.Context, fields []string, conflictKeys []string, entities ...*T) error {
	s.reset()
	defer s.reset()
	if len(fields) == 0 {
		return fmt.Errorf("repository: upsert fields cannot be empty")
	}
	if len(entities) == 0 {
		return nil
	}
	features := s.db.Dialect().Features()
	switch {
	case features.Has(feature.InsertOnConflict):
		return s.upsertOnConflict(ctx, fields, conflictKeys, entities)
	case features.Has(feature.InsertOnDuplicateKey):
		return s.upsertOnDuplicateKey(ctx, fields, entities)
	default:
		return s.upsertFallback(ctx, entities)
	}
}

func (s *Session[T]) upsertOnConflict(ctx context.Context, fields, conflictKeys []string, entities []*T) error {
	if len(conflictKeys) == 0 {
		for _, pk := range s.table.PKs {
			conflictKeys = append(conflictKeys, pk.Name)
		}
	}
	ins := s.db.NewInsert().Model(&entities).On("CONFLICT (" + strings.Join(conflictKeys, ", ") + ") DO UPDATE")
	for _, f := range fields {
		ins = ins.Set("? = EXCLUDED.?", bun.Ident(f), bun.Ident(f))
	}
	s.trace("upsert", ins)
	_, err := ins.Exec(ctx)
	return err
}

func (s *Session[T]) upsertOnDuplicateKey(ctx context.Context, fields []string, entities []*T) error {
	ins := s.db.NewInsert().Model(&entities).On("DUPLICATE KEY UPDATE")
	for _, f := range fields {
		ins = ins.Set("? = VALUES(?)", bun.Ident(f), bun.Ident(f))
	}
	s.trace("upsert", ins)
	_, err := ins.Exec(ctx)
	return err
}

func (s *Session[T]) upsertFallback(ctx context.Context, entities []*T) error {
	for _, entity := range entities {
		if _, err := s.db.NewInsert().Model(entity).Exec(ctx); err != nil {
			if _, updateErr := s.db.NewUpdate().Model(entity).WherePK().Exec(ctx); updateErr != nil {
				return fmt.Errorf("upsert failed: insert error: %v, update error: %w", err, updateErr)
			}
		}
	}
	return nil
}
