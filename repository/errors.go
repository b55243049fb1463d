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
	"errors"

	"github.com/tomoncle/bunsession/database"
)

var (
	ErrNilDB           = errors.New("repository: database cannot be nil")
	ErrInvalidModel    = errors.New("repository: invalid model")
	ErrNoPrimaryKey    = errors.New("repository: model must have a single-column primary key")
	ErrInvalidOperator = errors.New("repository: invalid comparison operator")
	ErrInvalidOrder    = errors.New("repository: invalid order direction")
)

// IsNotFound reports whether err means no row matched.
func IsNotFound(err error) bool {
	is, kind := database.IsSqlError(err)
	return is && kind == database.NoRowsErr
}
