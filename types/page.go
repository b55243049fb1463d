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

package types

// NormalizePage clamps page to 1 and pageSize to def when they are not positive.
func NormalizePage(page, pageSize, def int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = def
	}
	return page, pageSize
}

// Offset returns the row offset of the given 1-based page.
func Offset(page, pageSize int) int {
	if page < 1 {
		return 0
	}
	return (page - 1) * pageSize
}

// Pagination holds paged result items along with pagination metadata.
type Pagination[T any] struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	Total    int  `json:"total"`
	LastPage int  `json:"last_page"`
	Items    []*T `json:"items"`
}

// NewDefaultPagination constructs an empty pagination container.
func NewDefaultPagination[T any](page int, pageSize int) *Pagination[T] {
	return &Pagination[T]{Page: page, PageSize: pageSize, LastPage: 1, Items: make([]*T, 0)}
}

// SetTotal records the total row count and derives LastPage from it.
func (p *Pagination[T]) SetTotal(total int) {
	p.Total = total
	p.LastPage = 1
	if p.PageSize > 0 && total > 0 {
		p.LastPage = (total + p.PageSize - 1) / p.PageSize
	}
}

// HasMorePages reports whether pages exist after the current one.
func (p *Pagination[T]) HasMorePages() bool {
	return p.Page < p.LastPage
}

// SimplePagination is a page of items without a total row count.
type SimplePagination[T any] struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasMore  bool `json:"has_more"`
	Items    []*T `json:"items"`
}

// NewSimplePagination trims a result fetched with pageSize+1 rows and records
// whether a following page exists.
func NewSimplePagination[T any](page int, pageSize int, items []*T) *SimplePagination[T] {
	p := &SimplePagination[T]{Page: page, PageSize: pageSize, Items: items}
	if p.Items == nil {
		p.Items = make([]*T, 0)
	}
	if len(p.Items) > pageSize {
		p.HasMore = true
		p.Items = p.Items[:pageSize]
	}
	return p
}
